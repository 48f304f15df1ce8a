package environment

import (
	"context"
	"errors"
	"testing"
	"time"

	"hauntedmap/internal/types"
)

// mockWeatherProvider implements WeatherProvider for testing.
type mockWeatherProvider struct {
	data  types.WeatherData
	tz    string
	err   error
	calls int
}

func (m *mockWeatherProvider) Current(_ context.Context, _ types.Coordinates) (types.WeatherData, string, error) {
	m.calls++
	if m.err != nil {
		return types.WeatherData{}, "", m.err
	}
	return m.data, m.tz, nil
}

func edinburgh() types.Coordinates {
	return types.Coordinates{Latitude: 55.9533, Longitude: -3.1883}
}

func TestService_Fetch_AssemblesFactors(t *testing.T) {
	provider := &mockWeatherProvider{
		data: types.WeatherData{Condition: types.WeatherFoggy, TemperatureC: 4, VisibilityM: 650},
		tz:   "UTC",
	}
	// 22:30 UTC on an October night.
	now := time.Date(2026, 10, 31, 22, 30, 0, 0, time.UTC)
	svc := NewService(provider, 0, nil, WithClock(func() time.Time { return now }))

	factors, err := svc.Fetch(context.Background(), edinburgh(), nil)
	if err != nil {
		t.Fatalf("Fetch() returned error: %v", err)
	}

	if factors.Weather.Condition != types.WeatherFoggy {
		t.Errorf("weather condition = %q, want foggy", factors.Weather.Condition)
	}
	if factors.Time.Hour != 22 {
		t.Errorf("hour = %d, want 22", factors.Time.Hour)
	}
	if !factors.Time.IsNighttime {
		t.Error("22:30 should be nighttime")
	}
	if factors.Season != types.SeasonAutumn {
		t.Errorf("season = %q, want autumn", factors.Season)
	}
}

func TestService_Fetch_LocalHourUsesProviderTimezone(t *testing.T) {
	provider := &mockWeatherProvider{tz: "America/New_York"}
	// 03:00 UTC is 22:00 or 23:00 in New York depending on DST; either way
	// the local hour must not be 3.
	now := time.Date(2026, 7, 1, 3, 0, 0, 0, time.UTC)
	svc := NewService(provider, 0, nil, WithClock(func() time.Time { return now }))

	factors, err := svc.Fetch(context.Background(), types.Coordinates{Latitude: 40.71, Longitude: -74.0}, nil)
	if err != nil {
		t.Fatalf("Fetch() returned error: %v", err)
	}

	if factors.Time.Hour == 3 {
		t.Error("hour should be local to the coordinate, not UTC")
	}
	if factors.Time.Timezone != "America/New_York" {
		t.Errorf("timezone = %q, want America/New_York", factors.Time.Timezone)
	}
}

func TestService_Fetch_UnknownTimezoneFallsBackToUTC(t *testing.T) {
	provider := &mockWeatherProvider{tz: "Mars/Olympus_Mons"}
	now := time.Date(2026, 1, 10, 14, 0, 0, 0, time.UTC)
	svc := NewService(provider, 0, nil, WithClock(func() time.Time { return now }))

	factors, err := svc.Fetch(context.Background(), edinburgh(), nil)
	if err != nil {
		t.Fatalf("Fetch() should not fail on a bad timezone name: %v", err)
	}
	if factors.Time.Hour != 14 {
		t.Errorf("hour = %d, want 14 (UTC fallback)", factors.Time.Hour)
	}
}

func TestService_Fetch_ExplicitInstantOverridesClock(t *testing.T) {
	provider := &mockWeatherProvider{tz: "UTC"}
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(provider, 0, nil, WithClock(func() time.Time { return now }))

	at := time.Date(2026, 12, 25, 1, 0, 0, 0, time.UTC)
	factors, err := svc.Fetch(context.Background(), edinburgh(), &at)
	if err != nil {
		t.Fatalf("Fetch() returned error: %v", err)
	}

	if factors.Time.Hour != 1 {
		t.Errorf("hour = %d, want 1 from the explicit instant", factors.Time.Hour)
	}
	if factors.Season != types.SeasonWinter {
		t.Errorf("season = %q, want winter from the explicit instant", factors.Season)
	}
}

func TestService_Fetch_CachesWithinTTL(t *testing.T) {
	provider := &mockWeatherProvider{tz: "UTC"}
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	svc := NewService(provider, 10*time.Minute, nil, WithClock(func() time.Time { return now }))

	for i := 0; i < 5; i++ {
		if _, err := svc.Fetch(context.Background(), edinburgh(), nil); err != nil {
			t.Fatalf("Fetch() returned error: %v", err)
		}
	}

	if provider.calls != 1 {
		t.Errorf("provider called %d times, want 1 (cached)", provider.calls)
	}

	// Advance past the TTL; the next fetch must hit the provider again.
	now = now.Add(11 * time.Minute)
	if _, err := svc.Fetch(context.Background(), edinburgh(), nil); err != nil {
		t.Fatalf("Fetch() returned error: %v", err)
	}
	if provider.calls != 2 {
		t.Errorf("provider called %d times after TTL expiry, want 2", provider.calls)
	}
}

func TestService_Fetch_PropagatesProviderError(t *testing.T) {
	wantErr := types.NewAppError(types.ErrCodeUpstreamWeather, "provider down", nil)
	provider := &mockWeatherProvider{err: wantErr}
	svc := NewService(provider, time.Minute, nil)

	_, err := svc.Fetch(context.Background(), edinburgh(), nil)
	if err == nil {
		t.Fatal("Fetch() should propagate the provider failure")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeUpstreamWeather {
		t.Errorf("error = %v, want upstream weather AppError", err)
	}
}
