package types

import (
	"fmt"
	"time"
)

// Coordinates is a WGS84 latitude/longitude pair.
type Coordinates struct {
	Latitude  float64 `json:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `json:"longitude" validate:"min=-180,max=180"`
}

// Key returns the canonical cache/session key for the coordinate pair:
// both components rounded to 4 decimal places (roughly 11 meters at the
// equator). Two requests inside that radius share sessions and cache entries.
func (c Coordinates) Key() string {
	return fmt.Sprintf("%.4f,%.4f", c.Latitude, c.Longitude)
}

// IsNorthern reports whether the coordinate lies in the Northern hemisphere.
// The equator counts as Northern.
func (c Coordinates) IsNorthern() bool {
	return c.Latitude >= 0
}

// PointOfInterest is a named place near the rated location.
type PointOfInterest struct {
	Name           string `json:"name"`
	Type           string `json:"type"`
	DistanceMeters int    `json:"distance_meters"`
}

// PlaceRecord is the raw place description produced by the geocoding adapter
// before classification. Name and Categories feed the classifier heuristics.
type PlaceRecord struct {
	Name       string   `json:"name"`
	Categories []string `json:"categories"`
	Address    string   `json:"address"`
}

// Location describes the place being rated. It is owned by the caller and
// treated as read-only input by the rating engine.
type Location struct {
	Coordinates Coordinates       `json:"coordinates"`
	Name        string            `json:"name"`
	Type        LocationType      `json:"type"`
	NearbyPOIs  []PointOfInterest `json:"nearby_pois,omitempty"`
	Address     string            `json:"address,omitempty"`
}

// WeatherData is the narrow weather contract consumed by the rating engine.
// Numeric fields carry whatever the upstream provider reported; the engine
// clamps its derived scores rather than rejecting out-of-range values.
// Visibility is in meters.
type WeatherData struct {
	Condition     WeatherCondition `json:"condition"`
	TemperatureC  float64          `json:"temperature_c"`
	VisibilityM   float64          `json:"visibility_m"`
	Precipitation bool             `json:"precipitation"`
	Humidity      float64          `json:"humidity_percent"`
	WindSpeedKmh  float64          `json:"wind_speed_kmh"`
}

// TimeData captures local time at the target coordinate. Hour is local time,
// not UTC.
type TimeData struct {
	Hour        int    `json:"hour"`
	IsNighttime bool   `json:"is_nighttime"`
	Timezone    string `json:"timezone"`
}

// EnvironmentalFactors bundles the dynamic inputs to a rating computation.
// A refresh replaces the whole structure; individual fields are never
// mutated in place.
type EnvironmentalFactors struct {
	Weather WeatherData `json:"weather"`
	Time    TimeData    `json:"time"`
	Season  Season      `json:"season"`
}

// FactorScores holds the four weight-independent raw sub-scores, each
// rounded to the nearest integer and clamped to [0,100].
type FactorScores struct {
	Location int `json:"location_score"`
	Weather  int `json:"weather_score"`
	Time     int `json:"time_score"`
	Season   int `json:"season_score"`
}

// FactorBreakdown explains one factor's contribution to the overall score.
type FactorBreakdown struct {
	Factor       string  `json:"factor"`
	Weight       float64 `json:"weight"`
	Contribution int     `json:"contribution"`
	Description  string  `json:"description"`
}

// HauntedRating is the engine's output: the overall 0-100 score, the
// per-factor sub-scores, and (when requested) the factor breakdown.
// A rating is immutable once produced; a recomputation yields a new value.
type HauntedRating struct {
	OverallScore int               `json:"overall_score"`
	Factors      FactorScores      `json:"factors"`
	Breakdown    []FactorBreakdown `json:"breakdown,omitempty"`
	CalculatedAt time.Time         `json:"calculated_at"`
}
