// Package config defines the global configuration structure for the haunted
// rating service. Configuration is loaded once at process initialization and
// is immutable thereafter, following 12-Factor principles: OS environment
// (highest priority) over a local .env file.
//
// Any missing required value or invalid format fails the process immediately
// on startup.
package config

import "time"

// Config is the top-level configuration struct. It is populated once during
// process initialization and never modified. Sub-components receive only the
// config subsets they require.
type Config struct {
	// System metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"hauntedmap"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Domain configurations
	Server    ServerConfig
	Weather   WeatherConfig
	Places    PlacesConfig
	Session   SessionConfig
	RateLimit RateLimitConfig

	// Build metadata (injected via ldflags, not env)
	Build BuildInfo
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	CORSOrigins     []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// WeatherConfig configures the weather provider adapter.
type WeatherConfig struct {
	BaseURL  string        `envconfig:"WEATHER_BASE_URL" default:"https://api.open-meteo.com" validate:"url"`
	Timeout  time.Duration `envconfig:"WEATHER_TIMEOUT" default:"10s"`
	CacheTTL time.Duration `envconfig:"WEATHER_CACHE_TTL" default:"10m"`
}

// PlacesConfig configures the geocoding/places adapter.
type PlacesConfig struct {
	BaseURL     string        `envconfig:"PLACES_BASE_URL" default:"https://nominatim.openstreetmap.org" validate:"url"`
	Timeout     time.Duration `envconfig:"PLACES_TIMEOUT" default:"10s"`
	UserAgent   string        `envconfig:"PLACES_USER_AGENT" default:"hauntedmap/1.0"`
	NearbyLimit int           `envconfig:"PLACES_NEARBY_LIMIT" default:"5" validate:"min=0,max=20"`
}

// SessionConfig configures the auto-refresh session manager.
type SessionConfig struct {
	RefreshInterval time.Duration `envconfig:"SESSION_REFRESH_INTERVAL" default:"30m"`
	// StaleAfter is how long an idle session survives before the periodic
	// sweep removes it.
	StaleAfter    time.Duration `envconfig:"SESSION_STALE_AFTER" default:"3h"`
	SweepInterval time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"15m"`
	// FallbackTTL is the lifetime of the last-known-good rating cache that
	// serves stale results when a refresh fails.
	FallbackTTL time.Duration `envconfig:"SESSION_FALLBACK_TTL" default:"2h"`
}

// RateLimitConfig configures the per-client request rate limiter.
type RateLimitConfig struct {
	Enabled bool          `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	Max     int           `envconfig:"RATE_LIMIT_MAX" default:"120" validate:"min=1"`
	Window  time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
}

// BuildInfo carries compile-time build metadata.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrParsing indicates a failure parsing environment variable values
	// into the Config struct.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
)
