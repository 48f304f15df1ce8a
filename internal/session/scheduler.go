package session

import (
	"sync"
	"time"
)

// TaskHandle cancels a scheduled repeating task. Cancel is idempotent and
// synchronous: once it returns, the task will not run again.
type TaskHandle interface {
	Cancel()
}

// Scheduler schedules a repeating task and returns a cancellable handle.
// The manager depends on this interface rather than on OS timers directly so
// tests can drive ticks by hand.
type Scheduler interface {
	Every(interval time.Duration, task func()) TaskHandle
}

// TickerScheduler is the production Scheduler backed by time.Ticker.
type TickerScheduler struct{}

// NewTickerScheduler returns the ticker-backed scheduler.
func NewTickerScheduler() *TickerScheduler {
	return &TickerScheduler{}
}

// Every starts a goroutine that invokes task on each tick until cancelled.
func (s *TickerScheduler) Every(interval time.Duration, task func()) TaskHandle {
	h := &tickerHandle{stop: make(chan struct{})}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				// The run mutex serializes task invocations against Cancel:
				// once Cancel has taken the lock and set cancelled, no
				// further invocation can start.
				h.mu.Lock()
				if h.cancelled {
					h.mu.Unlock()
					return
				}
				task()
				h.mu.Unlock()
			case <-h.stop:
				return
			}
		}
	}()

	return h
}

type tickerHandle struct {
	mu        sync.Mutex
	cancelled bool
	stop      chan struct{}
	once      sync.Once
}

// Cancel stops the task. It blocks until any in-flight invocation finishes,
// so no tick can fire after Cancel returns. Safe to call multiple times.
func (h *tickerHandle) Cancel() {
	h.mu.Lock()
	h.cancelled = true
	h.mu.Unlock()
	h.once.Do(func() { close(h.stop) })
}
