// Package environment assembles the dynamic inputs to a rating computation:
// current weather at a coordinate, local time-of-day, and season. It is the
// single place that talks to the weather provider; everything downstream
// consumes the EnvironmentalFactors contract and nothing else.
package environment

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"hauntedmap/internal/types"
)

// WeatherProvider fetches current conditions for a coordinate and reports
// the IANA timezone the provider resolved for it.
type WeatherProvider interface {
	Current(ctx context.Context, coords types.Coordinates) (types.WeatherData, string, error)
}

// nightStartHour and nightEndHour bound the local hours considered nighttime
// (hour >= 20 or hour < 6).
const (
	nightEndHour   = 6
	nightStartHour = 20
)

// Service builds EnvironmentalFactors for a coordinate. A short-TTL cache
// keyed by rounded coordinate and hour bucket fronts the weather provider so
// bursts of requests for the same spot cost one upstream call.
type Service struct {
	weather WeatherProvider
	logger  *slog.Logger
	now     func() time.Time

	cacheTTL time.Duration
	mu       sync.Mutex
	cache    map[string]weatherCacheEntry
}

type weatherCacheEntry struct {
	data     types.WeatherData
	timezone string
	storedAt time.Time
}

// ServiceOption is a functional option for configuring a Service.
type ServiceOption func(*Service)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service. cacheTTL <= 0 disables the weather cache.
func NewService(weather WeatherProvider, cacheTTL time.Duration, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		weather:  weather,
		logger:   logger,
		now:      time.Now,
		cacheTTL: cacheTTL,
		cache:    make(map[string]weatherCacheEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch returns a fresh EnvironmentalFactors snapshot for the coordinate.
// When at is non-nil the time and season components are evaluated for that
// instant instead of now (the weather is always current; the provider has no
// time machine). Any provider failure is returned as-is for the caller's
// fallback handling; Fetch never partially succeeds.
func (s *Service) Fetch(ctx context.Context, coords types.Coordinates, at *time.Time) (types.EnvironmentalFactors, error) {
	weather, tz, err := s.currentWeather(ctx, coords)
	if err != nil {
		return types.EnvironmentalFactors{}, err
	}

	instant := s.now()
	if at != nil {
		instant = *at
	}

	local := instant
	loc, locErr := time.LoadLocation(tz)
	if locErr != nil {
		// An unknown zone name from the provider downgrades to UTC rather
		// than failing the whole fetch; the hour will be off but usable.
		s.logger.WarnContext(ctx, "unresolvable provider timezone, using UTC",
			"timezone", tz,
			"coordinates", coords.Key(),
		)
		loc = time.UTC
	}
	local = instant.In(loc)

	hour := local.Hour()
	factors := types.EnvironmentalFactors{
		Weather: weather,
		Time: types.TimeData{
			Hour:        hour,
			IsNighttime: hour >= nightStartHour || hour < nightEndHour,
			Timezone:    loc.String(),
		},
		Season: SeasonAt(local, coords.Latitude),
	}
	return factors, nil
}

// currentWeather consults the cache before the provider. Entries are keyed
// by coordinate and hour bucket so a cached value never outlives the hour it
// describes, even with a generous TTL.
func (s *Service) currentWeather(ctx context.Context, coords types.Coordinates) (types.WeatherData, string, error) {
	key := s.cacheKey(coords)

	if s.cacheTTL > 0 {
		s.mu.Lock()
		entry, ok := s.cache[key]
		s.mu.Unlock()
		if ok && s.now().Sub(entry.storedAt) < s.cacheTTL {
			return entry.data, entry.timezone, nil
		}
	}

	data, tz, err := s.weather.Current(ctx, coords)
	if err != nil {
		return types.WeatherData{}, "", err
	}

	if s.cacheTTL > 0 {
		s.mu.Lock()
		s.cache[key] = weatherCacheEntry{data: data, timezone: tz, storedAt: s.now()}
		s.mu.Unlock()
	}
	return data, tz, nil
}

func (s *Service) cacheKey(coords types.Coordinates) string {
	return fmt.Sprintf("%s@%d", coords.Key(), s.now().UTC().Hour())
}
