package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"hauntedmap/internal/types"
)

// Freshness tags a delivered rating as freshly computed or served from the
// fallback cache after a failed refresh.
type Freshness string

const (
	FreshnessFresh Freshness = "fresh"
	FreshnessStale Freshness = "stale"
)

// Callbacks receive the outcome of each automatic or forced refresh.
// OnUpdate fires with every rating delivered, fresh or stale; OnError fires
// only when a refresh fails and no cached fallback exists. Either may be nil.
type Callbacks struct {
	OnUpdate func(rating types.HauntedRating, freshness Freshness)
	OnError  func(err error)
}

// FactorsProvider fetches current environmental factors for a coordinate.
// A nil instant means "now".
type FactorsProvider interface {
	Fetch(ctx context.Context, coords types.Coordinates, at *time.Time) (types.EnvironmentalFactors, error)
}

// LocationResolver identifies and classifies the place at a coordinate.
type LocationResolver interface {
	Resolve(ctx context.Context, coords types.Coordinates) types.Location
}

// Rater computes a haunted rating from a location and its environment.
type Rater interface {
	Calculate(loc types.Location, env types.EnvironmentalFactors) types.HauntedRating
}

// Info is a point-in-time snapshot of a session returned to callers. Key is
// the session's coordinate key (lat/lon rounded to 4 decimals).
type Info struct {
	Key         string                     `json:"key"`
	Location    types.Location             `json:"location"`
	Rating      types.HauntedRating        `json:"rating"`
	Factors     types.EnvironmentalFactors `json:"factors"`
	Freshness   Freshness                  `json:"freshness"`
	CreatedAt   time.Time                  `json:"created_at"`
	LastUpdated time.Time                  `json:"last_updated"`
	NextRefresh time.Time                  `json:"next_refresh"`
}

// session is the manager's internal per-watch state. All fields after handle
// are guarded by Manager.mu.
type session struct {
	key       string
	coords    types.Coordinates
	location  types.Location
	callbacks Callbacks
	handle    TaskHandle

	lastRating    types.HauntedRating
	lastFactors   types.EnvironmentalFactors
	lastFreshness Freshness
	createdAt     time.Time
	lastUpdated   time.Time
	nextRefresh   time.Time
	refreshing    bool
}

// Manager owns rating sessions: it resolves the location once at session
// start, recomputes the rating on a fixed interval, falls back to the last
// good result when a refresh fails, and sweeps sessions that have gone too
// long without a successful update.
type Manager struct {
	factors  FactorsProvider
	resolver LocationResolver
	rater    Rater
	cache    *FallbackCache

	interval       time.Duration
	staleAfter     time.Duration
	refreshTimeout time.Duration

	clock     func() time.Time
	scheduler Scheduler
	logger    *slog.Logger

	mu          sync.Mutex
	sessions    map[string]*session
	sweepHandle TaskHandle
	closed      bool
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithClock overrides the manager's time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.clock = now }
}

// WithScheduler overrides the ticker-backed scheduler.
func WithScheduler(s Scheduler) ManagerOption {
	return func(m *Manager) { m.scheduler = s }
}

// WithRefreshTimeout bounds the upstream work done by a single background
// refresh.
func WithRefreshTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.refreshTimeout = d }
}

// NewManager wires a Manager and starts its periodic staleness sweep.
func NewManager(factors FactorsProvider, resolver LocationResolver, rater Rater, cache *FallbackCache,
	interval, staleAfter, sweepInterval time.Duration, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		factors:        factors,
		resolver:       resolver,
		rater:          rater,
		cache:          cache,
		interval:       interval,
		staleAfter:     staleAfter,
		refreshTimeout: 30 * time.Second,
		clock:          time.Now,
		scheduler:      NewTickerScheduler(),
		logger:         logger,
		sessions:       make(map[string]*session),
	}
	for _, opt := range opts {
		opt(m)
	}
	if sweepInterval > 0 {
		m.sweepHandle = m.scheduler.Every(sweepInterval, m.sweep)
	}
	return m
}

// StartAutoRefresh creates a session for the coordinate: it classifies the
// location, computes an initial rating synchronously, and schedules periodic
// recomputation. At most one session exists per coordinate key; starting a
// session for a coordinate that already has one returns the existing session
// unchanged. If the initial fetch fails it falls back to the cached last good
// result; with no cache either, no session is created and an error is
// returned.
func (m *Manager) StartAutoRefresh(ctx context.Context, coords types.Coordinates, cb Callbacks) (Info, error) {
	key := coords.Key()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Info{}, types.NewAppError(types.ErrCodeInternalUnexpected, "session manager is shut down", nil)
	}
	if existing, ok := m.sessions[key]; ok {
		info := snapshot(existing)
		m.mu.Unlock()
		m.logger.Info("session already active for coordinate", "session", key)
		return info, nil
	}
	m.mu.Unlock()

	loc := m.resolver.Resolve(ctx, coords)

	freshness := FreshnessFresh
	var rating types.HauntedRating
	var factors types.EnvironmentalFactors

	env, err := m.factors.Fetch(ctx, coords, nil)
	if err != nil {
		entry, ok := m.cache.Get(key)
		if !ok {
			return Info{}, types.NewAppError(types.ErrCodeDataUnavailable,
				fmt.Sprintf("no rating available for %s", key), err)
		}
		m.logger.Warn("initial rating fetch failed, serving cached fallback",
			"coordinates", key, "error", err)
		rating, factors, freshness = entry.Rating, entry.Factors, FreshnessStale
	} else {
		factors = env
		rating = m.rater.Calculate(loc, factors)
		m.cache.Put(key, rating, factors)
	}

	now := m.clock()
	s := &session{
		key:           key,
		coords:        coords,
		location:      loc,
		callbacks:     cb,
		lastRating:    rating,
		lastFactors:   factors,
		lastFreshness: freshness,
		createdAt:     now,
		lastUpdated:   now,
		nextRefresh:   now.Add(m.interval),
	}
	s.handle = m.scheduler.Every(m.interval, func() { m.runScheduled(key) })

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		s.handle.Cancel()
		return Info{}, types.NewAppError(types.ErrCodeInternalUnexpected, "session manager is shut down", nil)
	}
	// A concurrent start for the same coordinate may have won the race while
	// the initial fetch ran; keep the registered session.
	if existing, ok := m.sessions[key]; ok {
		info := snapshot(existing)
		m.mu.Unlock()
		s.handle.Cancel()
		return info, nil
	}
	m.sessions[key] = s
	info := snapshot(s)
	m.mu.Unlock()

	m.logger.Info("session started",
		"session", key, "location_type", loc.Type, "freshness", freshness)
	return info, nil
}

// StopAutoRefresh cancels the session's timer and removes it. It reports
// whether a session with the key existed; repeat calls are no-ops.
func (m *Manager) StopAutoRefresh(key string) bool {
	m.mu.Lock()
	s, ok := m.sessions[key]
	if ok {
		delete(m.sessions, key)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}

	// Cancel outside the lock: it blocks on any in-flight tick, and the tick
	// itself takes the lock.
	s.handle.Cancel()
	m.logger.Info("session stopped", "session", key)
	return true
}

// ForceRefresh recomputes the session's rating immediately. The recurring
// timer keeps its original cadence. A refresh already in flight for the
// session is reported as a conflict.
func (m *Manager) ForceRefresh(ctx context.Context, key string) (Info, error) {
	m.mu.Lock()
	s, ok := m.sessions[key]
	if !ok {
		m.mu.Unlock()
		return Info{}, types.NewAppError(types.ErrCodeNotFoundSession,
			fmt.Sprintf("no session with key %s", key), nil)
	}
	if s.refreshing {
		m.mu.Unlock()
		return Info{}, types.NewAppError(types.ErrCodeConflictRefreshInFlight,
			"a refresh for this session is already in progress", nil)
	}
	s.refreshing = true
	m.mu.Unlock()

	err := m.refresh(ctx, s, false)

	m.mu.Lock()
	s.refreshing = false
	info := snapshot(s)
	m.mu.Unlock()
	return info, err
}

// Get returns the session's last delivered state.
func (m *Manager) Get(key string) (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		return Info{}, false
	}
	return snapshot(s), true
}

// TimeUntilNextRefresh reports how long until the session's next scheduled
// refresh, and whether the session exists. Never negative.
func (m *Manager) TimeUntilNextRefresh(key string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		return 0, false
	}
	d := s.nextRefresh.Sub(m.clock())
	if d < 0 {
		d = 0
	}
	return d, true
}

// Count reports the number of active sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close stops the sweep and every session. The manager accepts no new
// sessions afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	stopped := make([]*session, 0, len(m.sessions))
	for key, s := range m.sessions {
		delete(m.sessions, key)
		stopped = append(stopped, s)
	}
	m.mu.Unlock()

	if m.sweepHandle != nil {
		m.sweepHandle.Cancel()
	}
	for _, s := range stopped {
		s.handle.Cancel()
	}
}

// runScheduled is the periodic tick for one session.
func (m *Manager) runScheduled(key string) {
	m.mu.Lock()
	s, ok := m.sessions[key]
	if !ok || s.refreshing {
		// Stopped, swept, or a forced refresh is mid-flight; skip the tick.
		m.mu.Unlock()
		return
	}
	s.refreshing = true
	s.nextRefresh = m.clock().Add(m.interval)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.refreshTimeout)
	defer cancel()
	_ = m.refresh(ctx, s, true)

	m.mu.Lock()
	s.refreshing = false
	m.mu.Unlock()
}

// refresh recomputes the session's rating and delivers the outcome through
// the session callbacks. A failure with a cached fallback delivers the stale
// rating and is not an error; only a failure with nothing to serve returns
// (and delivers) one. Sessions survive failed refreshes.
func (m *Manager) refresh(ctx context.Context, s *session, scheduled bool) error {
	env, err := m.factors.Fetch(ctx, s.coords, nil)
	if err == nil {
		rating := m.rater.Calculate(s.location, env)
		m.cache.Put(s.coords.Key(), rating, env)

		m.mu.Lock()
		s.lastRating = rating
		s.lastFactors = env
		s.lastFreshness = FreshnessFresh
		s.lastUpdated = m.clock()
		cb := s.callbacks
		m.mu.Unlock()

		if cb.OnUpdate != nil {
			cb.OnUpdate(rating, FreshnessFresh)
		}
		return nil
	}

	if entry, ok := m.cache.Get(s.coords.Key()); ok {
		m.logger.Warn("refresh failed, serving cached fallback",
			"session", s.key, "scheduled", scheduled, "error", err)

		m.mu.Lock()
		s.lastRating = entry.Rating
		s.lastFactors = entry.Factors
		s.lastFreshness = FreshnessStale
		cb := s.callbacks
		m.mu.Unlock()

		if cb.OnUpdate != nil {
			cb.OnUpdate(entry.Rating, FreshnessStale)
		}
		return nil
	}

	m.logger.Error("refresh failed with no cached fallback",
		"session", s.key, "scheduled", scheduled, "error", err)
	appErr := types.NewAppError(types.ErrCodeDataUnavailable,
		fmt.Sprintf("no rating available for %s", s.coords.Key()), err)

	m.mu.Lock()
	cb := s.callbacks
	m.mu.Unlock()
	if cb.OnError != nil {
		cb.OnError(appErr)
	}
	return appErr
}

// sweep drops sessions whose rating has not successfully updated within the
// staleness window.
func (m *Manager) sweep() {
	now := m.clock()

	m.mu.Lock()
	var expired []*session
	for key, s := range m.sessions {
		if !s.refreshing && now.Sub(s.lastUpdated) > m.staleAfter {
			delete(m.sessions, key)
			expired = append(expired, s)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.handle.Cancel()
		m.logger.Info("session swept", "session", s.key, "last_updated", s.lastUpdated)
	}
}

func snapshot(s *session) Info {
	return Info{
		Key:         s.key,
		Location:    s.location,
		Rating:      s.lastRating,
		Factors:     s.lastFactors,
		Freshness:   s.lastFreshness,
		CreatedAt:   s.createdAt,
		LastUpdated: s.lastUpdated,
		NextRefresh: s.nextRefresh,
	}
}
