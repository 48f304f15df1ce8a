package core

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"hauntedmap/internal/types"
)

// RateLimitResult reports the outcome of a single limiter check.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RateLimiter is a fixed-window request counter keyed by client. Windows are
// tracked in memory; counters for a key reset when its window elapses. This
// is a single-process limiter, which matches the deployment shape of the
// service.
type RateLimiter struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*rateBucket
}

type rateBucket struct {
	count   int
	resetAt time.Time
}

// NewRateLimiter creates a limiter allowing max requests per window per key.
func NewRateLimiter(max int, window time.Duration, now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		max:     max,
		window:  window,
		now:     now,
		buckets: make(map[string]*rateBucket),
	}
}

// Check counts a request against the key's current window and reports
// whether it is allowed. Expired windows restart on access; expired buckets
// belonging to other keys are dropped opportunistically to bound memory.
func (l *RateLimiter) Check(key string) RateLimitResult {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.buckets) > 1024 {
		for k, b := range l.buckets {
			if now.After(b.resetAt) {
				delete(l.buckets, k)
			}
		}
	}

	b, ok := l.buckets[key]
	if !ok || now.After(b.resetAt) {
		b = &rateBucket{resetAt: now.Add(l.window)}
		l.buckets[key] = b
	}

	b.count++
	remaining := l.max - b.count
	if remaining < 0 {
		remaining = 0
	}
	return RateLimitResult{
		Allowed:   b.count <= l.max,
		Remaining: remaining,
		ResetAt:   b.resetAt,
	}
}

// RateLimit enforces a per-client request budget. The client key is the
// first X-Forwarded-For hop when present, otherwise the connection's remote
// address. If no limiter is configured (e.g. during tests), the middleware
// passes through.
//
// On every request the middleware sets the standard rate limit headers:
// X-RateLimit-Limit, X-RateLimit-Remaining, and X-RateLimit-Reset. Denied
// requests additionally carry Retry-After.
func (s *Server) RateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := clientKey(r)
			result := limiter.Check(key)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.max))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				s.Logger.Warn("rate limit exceeded",
					"client", key, "method", r.Method, "path", r.URL.Path)

				retryAfter := int(time.Until(result.ResetAt).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

				JSON(w, r, http.StatusTooManyRequests, APIErrorResponse{
					Error: ErrorDetail{
						Code:      string(types.ErrCodeRateLimit),
						Message:   "rate limit exceeded, retry after the reset time",
						RequestID: types.GetRequestID(r.Context()),
					},
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientKey derives the rate limit key for a request.
func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
