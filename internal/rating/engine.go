// Package rating implements the haunted-rating engine: pure functions that
// map a location classification and a set of environmental factors to a
// deterministic 0-100 score, plus the breakdown and explanation generators
// that make the score legible.
//
// Scoring rules:
//   - Each factor produces a raw 0-100 sub-score from fixed lookup tables
//     and additive modifiers; sub-scores are clamped after modifiers.
//   - The overall score weights the UNROUNDED raw sub-scores and rounds only
//     the final weighted sum. Rounding per-factor first would compound error,
//     so the per-factor integers in FactorScores are presentation values only.
//   - Unknown enum values never panic; they fall back to the most neutral
//     table entry (Regular location, Clear base, default season score).
//
// Everything in this package is synchronous, allocation-light, and free of
// side effects; for a fixed input the score is identical on every call.
package rating

import (
	"math"
	"time"

	"hauntedmap/internal/types"
)

// Factor weights. These are fixed product constants, not configuration:
// they must sum to 1.0 and changing them invalidates every cached rating.
const (
	WeightLocation = 0.40
	WeightWeather  = 0.25
	WeightTime     = 0.25
	WeightSeason   = 0.10
)

// defaultLocationScore is the raw score for unclassified or unknown places.
const defaultLocationScore = 10

// defaultSeasonScore is the raw score for an unrecognized season value.
const defaultSeasonScore = 20

var locationScores = map[types.LocationType]float64{
	types.LocationCastle:            90,
	types.LocationGraveyard:         85,
	types.LocationAbandonedBuilding: 80,
	types.LocationFort:              70,
	types.LocationRegular:           10,
}

var weatherBaseScores = map[types.WeatherCondition]float64{
	types.WeatherFoggy:  90,
	types.WeatherStormy: 80,
	types.WeatherRainy:  70,
	types.WeatherCloudy: 40,
	types.WeatherClear:  10,
}

var seasonScores = map[types.Season]float64{
	types.SeasonAutumn: 80,
	types.SeasonWinter: 70,
	types.SeasonSpring: 30,
	types.SeasonSummer: 20,
}

// LocationScore returns the raw location sub-score. Unknown types score as
// Regular.
func LocationScore(t types.LocationType) float64 {
	if s, ok := locationScores[t]; ok {
		return s
	}
	return defaultLocationScore
}

// WeatherScore returns the raw weather sub-score: the base score for the
// condition plus additive modifiers for cold, poor visibility, and active
// precipitation, clamped to [0,100]. Modifiers are additive and unweighted;
// only the final weather score participates in the weighted aggregation.
//
// Temperature bands use exclusive upper bounds: below 10 degrees C adds 10,
// otherwise below 20 adds 5. Visibility is in meters.
func WeatherScore(w types.WeatherData) float64 {
	score, ok := weatherBaseScores[w.Condition]
	if !ok {
		score = weatherBaseScores[types.WeatherClear]
	}

	switch {
	case w.TemperatureC < 10:
		score += 10
	case w.TemperatureC < 20:
		score += 5
	}

	switch {
	case w.VisibilityM < 1000:
		score += 15
	case w.VisibilityM < 5000:
		score += 8
	}

	if w.Precipitation {
		score += 5
	}

	return clamp(score)
}

// TimeScore returns the raw time-of-day sub-score. Bands are evaluated in
// priority order and the first match wins; the witching-hour band [0,3)
// therefore takes hour 0 even though the late-evening band also covers it.
func TimeScore(t types.TimeData) float64 {
	h := t.Hour
	switch {
	case h >= 0 && h < 3:
		return 100 // witching hour
	case h >= 21 || h < 1:
		return 80 // late evening
	case h >= 18 && h < 21:
		return 60 // twilight
	case h >= 3 && h < 6:
		return 70 // early morning
	default:
		return 10 // daytime
	}
}

// SeasonScore returns the raw season sub-score. Unrecognized values get the
// neutral default.
func SeasonScore(s types.Season) float64 {
	if v, ok := seasonScores[s]; ok {
		return v
	}
	return defaultSeasonScore
}

// Engine computes haunted ratings. The only state it carries is the clock
// used to timestamp results, injectable so tests can pin time.
type Engine struct {
	now func() time.Time
}

// EngineOption is a functional option for configuring an Engine.
type EngineOption func(*Engine)

// WithClock overrides the timestamp source. Intended for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine using the real clock unless overridden.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Calculate computes the haunted rating for a location under the given
// environmental factors. The returned rating carries no breakdown; callers
// that need the explanation attach it via Breakdown. This split lets
// lightweight previews skip the string templating entirely.
func (e *Engine) Calculate(loc types.Location, env types.EnvironmentalFactors) types.HauntedRating {
	locScore := LocationScore(loc.Type)
	weatherScore := WeatherScore(env.Weather)
	timeScore := TimeScore(env.Time)
	seasonScore := SeasonScore(env.Season)

	weighted := locScore*WeightLocation +
		weatherScore*WeightWeather +
		timeScore*WeightTime +
		seasonScore*WeightSeason

	return types.HauntedRating{
		OverallScore: int(math.Round(math.Min(100, weighted))),
		Factors: types.FactorScores{
			Location: int(math.Round(locScore)),
			Weather:  int(math.Round(weatherScore)),
			Time:     int(math.Round(timeScore)),
			Season:   int(math.Round(seasonScore)),
		},
		CalculatedAt: e.now().UTC(),
	}
}

// clamp bounds a raw sub-score to [0,100].
func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
