package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"hauntedmap/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is a hand-driven time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, time.October, 31, 22, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// manualScheduler records scheduled tasks and fires them only when the test
// says so.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []*manualTask
}

type manualTask struct {
	interval  time.Duration
	run       func()
	cancelled bool
}

func (t *manualTask) Cancel() { t.cancelled = true }

func (s *manualScheduler) Every(interval time.Duration, task func()) TaskHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	mt := &manualTask{interval: interval, run: task}
	s.tasks = append(s.tasks, mt)
	return mt
}

// tick fires every live task registered with the given interval.
func (s *manualScheduler) tick(interval time.Duration) {
	s.mu.Lock()
	var due []*manualTask
	for _, t := range s.tasks {
		if t.interval == interval && !t.cancelled {
			due = append(due, t)
		}
	}
	s.mu.Unlock()
	for _, t := range due {
		t.run()
	}
}

func (s *manualScheduler) liveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if !t.cancelled {
			n++
		}
	}
	return n
}

// fakeFactors returns canned environmental factors or a canned error, and
// can block mid-fetch for concurrency tests.
type fakeFactors struct {
	mu      sync.Mutex
	env     types.EnvironmentalFactors
	err     error
	calls   int
	blockOn chan struct{}
}

func (f *fakeFactors) Fetch(_ context.Context, _ types.Coordinates, _ *time.Time) (types.EnvironmentalFactors, error) {
	f.mu.Lock()
	f.calls++
	env, err, block := f.env, f.err, f.blockOn
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return env, err
}

func (f *fakeFactors) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeFactors) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeResolver struct {
	loc types.Location
}

func (r *fakeResolver) Resolve(_ context.Context, coords types.Coordinates) types.Location {
	loc := r.loc
	loc.Coordinates = coords
	return loc
}

// fakeRater returns a rating whose score is taken from a counter so tests
// can tell successive recomputations apart.
type fakeRater struct {
	mu    sync.Mutex
	score int
}

func (r *fakeRater) Calculate(_ types.Location, _ types.EnvironmentalFactors) types.HauntedRating {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.score++
	return types.HauntedRating{OverallScore: r.score}
}

const (
	testInterval   = 30 * time.Minute
	testStaleAfter = 3 * time.Hour
	testSweepEvery = 15 * time.Minute
)

type managerFixture struct {
	clock     *fakeClock
	scheduler *manualScheduler
	factors   *fakeFactors
	cache     *FallbackCache
	manager   *Manager
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	clock := newFakeClock()
	scheduler := &manualScheduler{}
	factors := &fakeFactors{env: types.EnvironmentalFactors{
		Weather: types.WeatherData{Condition: types.WeatherFoggy},
		Time:    types.TimeData{Hour: 22, IsNighttime: true},
		Season:  types.SeasonAutumn,
	}}
	cache := NewFallbackCache(2*time.Hour, clock.Now)
	m := NewManager(factors, &fakeResolver{loc: types.Location{Type: types.LocationCastle, Name: "Test Keep"}},
		&fakeRater{}, cache,
		testInterval, testStaleAfter, testSweepEvery, discardLogger(),
		WithClock(clock.Now), WithScheduler(scheduler))
	t.Cleanup(m.Close)
	return &managerFixture{clock: clock, scheduler: scheduler, factors: factors, cache: cache, manager: m}
}

type updateRecorder struct {
	mu      sync.Mutex
	ratings []types.HauntedRating
	fresh   []Freshness
	errs    []error
}

func (r *updateRecorder) callbacks() Callbacks {
	return Callbacks{
		OnUpdate: func(rating types.HauntedRating, f Freshness) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.ratings = append(r.ratings, rating)
			r.fresh = append(r.fresh, f)
		},
		OnError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, err)
		},
	}
}

func (r *updateRecorder) updates() ([]types.HauntedRating, []Freshness) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.HauntedRating(nil), r.ratings...), append([]Freshness(nil), r.fresh...)
}

func (r *updateRecorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func TestStartAutoRefresh_InitialSuccess(t *testing.T) {
	fx := newManagerFixture(t)

	info, err := fx.manager.StartAutoRefresh(context.Background(), types.Coordinates{Latitude: 55.9486, Longitude: -3.1999}, Callbacks{})
	if err != nil {
		t.Fatalf("StartAutoRefresh() returned error: %v", err)
	}

	if info.Key == "" {
		t.Error("session key is empty")
	}
	if info.Freshness != FreshnessFresh {
		t.Errorf("Freshness = %q, want fresh", info.Freshness)
	}
	if info.Location.Type != types.LocationCastle {
		t.Errorf("Location.Type = %q, want castle", info.Location.Type)
	}
	if info.Rating.OverallScore != 1 {
		t.Errorf("OverallScore = %d, want first rater score 1", info.Rating.OverallScore)
	}
	if fx.manager.Count() != 1 {
		t.Errorf("Count() = %d, want 1", fx.manager.Count())
	}

	d, ok := fx.manager.TimeUntilNextRefresh(info.Key)
	if !ok || d != testInterval {
		t.Errorf("TimeUntilNextRefresh = (%v, %v), want (%v, true)", d, ok, testInterval)
	}
}

func TestStartAutoRefresh_SameCoordinateReusesSession(t *testing.T) {
	fx := newManagerFixture(t)
	coords := types.Coordinates{Latitude: 55.9486, Longitude: -3.1999}

	first, err := fx.manager.StartAutoRefresh(context.Background(), coords, Callbacks{})
	if err != nil {
		t.Fatalf("StartAutoRefresh() returned error: %v", err)
	}
	if first.Key != coords.Key() {
		t.Errorf("Key = %q, want coordinate key %q", first.Key, coords.Key())
	}
	calls := fx.factors.callCount()

	second, err := fx.manager.StartAutoRefresh(context.Background(), coords, Callbacks{})
	if err != nil {
		t.Fatalf("second StartAutoRefresh() returned error: %v", err)
	}

	if second.Key != first.Key {
		t.Errorf("second Key = %q, want existing %q", second.Key, first.Key)
	}
	if second.Rating.OverallScore != first.Rating.OverallScore {
		t.Errorf("second OverallScore = %d, want unchanged %d", second.Rating.OverallScore, first.Rating.OverallScore)
	}
	if fx.manager.Count() != 1 {
		t.Errorf("Count() = %d, want 1 session per coordinate", fx.manager.Count())
	}
	if live := fx.scheduler.liveCount(); live != 2 {
		t.Errorf("live scheduled tasks = %d, want 2 (sweep + one session timer)", live)
	}
	if fx.factors.callCount() != calls {
		t.Error("second start for the same coordinate refetched factors")
	}

	// Coordinates that round to the same key share the session.
	nearby := types.Coordinates{Latitude: 55.94861, Longitude: -3.19991}
	third, err := fx.manager.StartAutoRefresh(context.Background(), nearby, Callbacks{})
	if err != nil {
		t.Fatalf("StartAutoRefresh() for rounding-equal coordinate returned error: %v", err)
	}
	if third.Key != first.Key || fx.manager.Count() != 1 {
		t.Errorf("rounding-equal coordinate got key %q and count %d, want %q and 1",
			third.Key, fx.manager.Count(), first.Key)
	}
}

func TestStartAutoRefresh_FailureWithoutFallbackCreatesNoSession(t *testing.T) {
	fx := newManagerFixture(t)
	fx.factors.setErr(errors.New("upstream down"))

	_, err := fx.manager.StartAutoRefresh(context.Background(), types.Coordinates{Latitude: 1, Longitude: 2}, Callbacks{})
	if err == nil {
		t.Fatal("StartAutoRefresh() succeeded, want error with no data and no fallback")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeDataUnavailable {
		t.Errorf("error = %v, want AppError with code data_unavailable", err)
	}
	if fx.manager.Count() != 0 {
		t.Errorf("Count() = %d, want 0 after failed start", fx.manager.Count())
	}
}

func TestStartAutoRefresh_FailureServesCachedFallback(t *testing.T) {
	fx := newManagerFixture(t)
	coords := types.Coordinates{Latitude: 55.9486, Longitude: -3.1999}
	cached := types.HauntedRating{OverallScore: 77}
	fx.cache.Put(coords.Key(), cached, types.EnvironmentalFactors{})
	fx.factors.setErr(errors.New("upstream down"))

	info, err := fx.manager.StartAutoRefresh(context.Background(), coords, Callbacks{})
	if err != nil {
		t.Fatalf("StartAutoRefresh() returned error despite fallback: %v", err)
	}

	if info.Freshness != FreshnessStale {
		t.Errorf("Freshness = %q, want stale", info.Freshness)
	}
	if info.Rating.OverallScore != 77 {
		t.Errorf("OverallScore = %d, want cached 77", info.Rating.OverallScore)
	}
	if fx.manager.Count() != 1 {
		t.Errorf("Count() = %d, want 1; a fallback start still creates the session", fx.manager.Count())
	}
}

func TestScheduledRefresh_DeliversFreshRating(t *testing.T) {
	fx := newManagerFixture(t)
	rec := &updateRecorder{}

	info, err := fx.manager.StartAutoRefresh(context.Background(), types.Coordinates{Latitude: 55.9486, Longitude: -3.1999}, rec.callbacks())
	if err != nil {
		t.Fatalf("StartAutoRefresh() returned error: %v", err)
	}

	fx.clock.Advance(testInterval)
	fx.scheduler.tick(testInterval)

	ratings, fresh := rec.updates()
	if len(ratings) != 1 {
		t.Fatalf("got %d updates, want 1", len(ratings))
	}
	if fresh[0] != FreshnessFresh {
		t.Errorf("freshness = %q, want fresh", fresh[0])
	}
	if ratings[0].OverallScore != 2 {
		t.Errorf("OverallScore = %d, want second rater score 2", ratings[0].OverallScore)
	}

	got, ok := fx.manager.Get(info.Key)
	if !ok || got.Rating.OverallScore != 2 {
		t.Errorf("Get() = (%+v, %v), want the refreshed rating", got.Rating, ok)
	}
	if !got.LastUpdated.Equal(fx.clock.Now()) {
		t.Errorf("LastUpdated = %v, want %v", got.LastUpdated, fx.clock.Now())
	}
}

func TestScheduledRefresh_FailureServesCachedFallback(t *testing.T) {
	fx := newManagerFixture(t)
	rec := &updateRecorder{}

	info, err := fx.manager.StartAutoRefresh(context.Background(), types.Coordinates{Latitude: 55.9486, Longitude: -3.1999}, rec.callbacks())
	if err != nil {
		t.Fatalf("StartAutoRefresh() returned error: %v", err)
	}
	initial := info.Rating

	fx.factors.setErr(errors.New("upstream down"))
	fx.clock.Advance(testInterval)
	fx.scheduler.tick(testInterval)

	ratings, fresh := rec.updates()
	if len(ratings) != 1 {
		t.Fatalf("got %d updates, want 1", len(ratings))
	}
	if fresh[0] != FreshnessStale {
		t.Errorf("freshness = %q, want stale", fresh[0])
	}
	if ratings[0].OverallScore != initial.OverallScore {
		t.Errorf("OverallScore = %d, want cached initial %d", ratings[0].OverallScore, initial.OverallScore)
	}
	if errs := rec.errors(); len(errs) != 0 {
		t.Errorf("OnError fired %d times, want 0 when a fallback exists", len(errs))
	}
	if fx.manager.Count() != 1 {
		t.Errorf("Count() = %d, want 1; failed refreshes keep the session", fx.manager.Count())
	}

	// The failed refresh must not count as a successful update.
	got, _ := fx.manager.Get(info.Key)
	if !got.LastUpdated.Equal(info.LastUpdated) {
		t.Errorf("LastUpdated = %v, want unchanged %v", got.LastUpdated, info.LastUpdated)
	}
}

func TestScheduledRefresh_FailureWithExpiredFallbackFiresOnError(t *testing.T) {
	fx := newManagerFixture(t)
	rec := &updateRecorder{}

	_, err := fx.manager.StartAutoRefresh(context.Background(), types.Coordinates{Latitude: 55.9486, Longitude: -3.1999}, rec.callbacks())
	if err != nil {
		t.Fatalf("StartAutoRefresh() returned error: %v", err)
	}

	fx.factors.setErr(errors.New("upstream down"))
	// Past the cache TTL, the stored fallback no longer counts.
	fx.clock.Advance(2*time.Hour + time.Minute)
	fx.scheduler.tick(testInterval)

	if ratings, _ := rec.updates(); len(ratings) != 0 {
		t.Errorf("got %d updates, want 0 with no usable fallback", len(ratings))
	}
	errs := rec.errors()
	if len(errs) != 1 {
		t.Fatalf("OnError fired %d times, want 1", len(errs))
	}
	var appErr *types.AppError
	if !errors.As(errs[0], &appErr) || appErr.Code != types.ErrCodeDataUnavailable {
		t.Errorf("OnError error = %v, want code data_unavailable", errs[0])
	}
	if fx.manager.Count() != 1 {
		t.Errorf("Count() = %d, want 1; even a total failure keeps the session", fx.manager.Count())
	}
}

func TestStopAutoRefresh_Idempotent(t *testing.T) {
	fx := newManagerFixture(t)

	info, err := fx.manager.StartAutoRefresh(context.Background(), types.Coordinates{Latitude: 1, Longitude: 2}, Callbacks{})
	if err != nil {
		t.Fatalf("StartAutoRefresh() returned error: %v", err)
	}

	if !fx.manager.StopAutoRefresh(info.Key) {
		t.Error("first StopAutoRefresh() = false, want true")
	}
	if fx.manager.StopAutoRefresh(info.Key) {
		t.Error("second StopAutoRefresh() = true, want false")
	}
	if fx.manager.Count() != 0 {
		t.Errorf("Count() = %d, want 0", fx.manager.Count())
	}

	// Only the sweep task should still be live.
	if live := fx.scheduler.liveCount(); live != 1 {
		t.Errorf("live scheduled tasks = %d, want 1 (the sweep)", live)
	}

	calls := fx.factors.callCount()
	fx.scheduler.tick(testInterval)
	if fx.factors.callCount() != calls {
		t.Error("a tick after stop still fetched factors")
	}
}

func TestForceRefresh(t *testing.T) {
	fx := newManagerFixture(t)
	rec := &updateRecorder{}

	info, err := fx.manager.StartAutoRefresh(context.Background(), types.Coordinates{Latitude: 55.9486, Longitude: -3.1999}, rec.callbacks())
	if err != nil {
		t.Fatalf("StartAutoRefresh() returned error: %v", err)
	}

	fx.clock.Advance(10 * time.Minute)
	got, err := fx.manager.ForceRefresh(context.Background(), info.Key)
	if err != nil {
		t.Fatalf("ForceRefresh() returned error: %v", err)
	}

	if got.Rating.OverallScore != 2 {
		t.Errorf("OverallScore = %d, want recomputed score 2", got.Rating.OverallScore)
	}
	if got.Freshness != FreshnessFresh {
		t.Errorf("Freshness = %q, want fresh", got.Freshness)
	}
	if ratings, _ := rec.updates(); len(ratings) != 1 {
		t.Errorf("got %d updates, want 1 from the forced refresh", len(ratings))
	}

	// The recurring timer keeps its cadence: 20 minutes left, not 30.
	d, ok := fx.manager.TimeUntilNextRefresh(info.Key)
	if !ok || d != 20*time.Minute {
		t.Errorf("TimeUntilNextRefresh = (%v, %v), want (20m, true)", d, ok)
	}
}

func TestForceRefresh_UnknownSession(t *testing.T) {
	fx := newManagerFixture(t)

	_, err := fx.manager.ForceRefresh(context.Background(), "no-such-key")
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeNotFoundSession {
		t.Errorf("error = %v, want code not_found_session", err)
	}
}

func TestForceRefresh_ConflictWhileInFlight(t *testing.T) {
	fx := newManagerFixture(t)

	info, err := fx.manager.StartAutoRefresh(context.Background(), types.Coordinates{Latitude: 1, Longitude: 2}, Callbacks{})
	if err != nil {
		t.Fatalf("StartAutoRefresh() returned error: %v", err)
	}

	release := make(chan struct{})
	fx.factors.mu.Lock()
	fx.factors.blockOn = release
	fx.factors.mu.Unlock()

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_, _ = fx.manager.ForceRefresh(context.Background(), info.Key)
	}()

	// Wait for the first refresh to enter its fetch.
	deadline := time.After(2 * time.Second)
	for fx.factors.callCount() < 2 {
		select {
		case <-deadline:
			t.Fatal("first ForceRefresh never reached the factors fetch")
		case <-time.After(time.Millisecond):
		}
	}

	_, err = fx.manager.ForceRefresh(context.Background(), info.Key)
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeConflictRefreshInFlight {
		t.Errorf("overlapping ForceRefresh error = %v, want code conflict_refresh_in_flight", err)
	}

	close(release)
	<-firstDone

	// With the first refresh finished, another one goes through.
	if _, err := fx.manager.ForceRefresh(context.Background(), info.Key); err != nil {
		t.Errorf("ForceRefresh() after release returned error: %v", err)
	}
}

func TestSweep_DropsSessionsWithoutRecentUpdates(t *testing.T) {
	fx := newManagerFixture(t)

	info, err := fx.manager.StartAutoRefresh(context.Background(), types.Coordinates{Latitude: 1, Longitude: 2}, Callbacks{})
	if err != nil {
		t.Fatalf("StartAutoRefresh() returned error: %v", err)
	}

	// Refreshes keep failing and the fallback has long expired.
	fx.factors.setErr(errors.New("upstream down"))
	fx.clock.Advance(testStaleAfter + time.Minute)

	fx.scheduler.tick(testSweepEvery)

	if fx.manager.Count() != 0 {
		t.Errorf("Count() = %d, want 0 after sweep", fx.manager.Count())
	}
	if _, ok := fx.manager.Get(info.Key); ok {
		t.Error("Get() found the session after sweep")
	}
}

func TestSweep_KeepsRecentlyUpdatedSessions(t *testing.T) {
	fx := newManagerFixture(t)

	_, err := fx.manager.StartAutoRefresh(context.Background(), types.Coordinates{Latitude: 1, Longitude: 2}, Callbacks{})
	if err != nil {
		t.Fatalf("StartAutoRefresh() returned error: %v", err)
	}

	fx.clock.Advance(testStaleAfter - time.Minute)
	fx.scheduler.tick(testSweepEvery)

	if fx.manager.Count() != 1 {
		t.Errorf("Count() = %d, want 1; session updated within the window", fx.manager.Count())
	}
}

func TestClose_StopsEverything(t *testing.T) {
	fx := newManagerFixture(t)

	if _, err := fx.manager.StartAutoRefresh(context.Background(), types.Coordinates{Latitude: 1, Longitude: 2}, Callbacks{}); err != nil {
		t.Fatalf("StartAutoRefresh() returned error: %v", err)
	}

	fx.manager.Close()

	if fx.manager.Count() != 0 {
		t.Errorf("Count() = %d, want 0 after Close", fx.manager.Count())
	}
	if live := fx.scheduler.liveCount(); live != 0 {
		t.Errorf("live scheduled tasks = %d, want 0 after Close", live)
	}
	if _, err := fx.manager.StartAutoRefresh(context.Background(), types.Coordinates{Latitude: 3, Longitude: 4}, Callbacks{}); err == nil {
		t.Error("StartAutoRefresh() after Close succeeded, want error")
	}
}
