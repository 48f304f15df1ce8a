package types

// LocationType classifies a place into one of the closed set of categories
// the rating engine knows how to score. Assignment happens once, in the
// places classifier; the engine treats the value as read-only input.
type LocationType string

const (
	LocationCastle            LocationType = "castle"
	LocationGraveyard         LocationType = "graveyard"
	LocationAbandonedBuilding LocationType = "abandoned_building"
	LocationFort              LocationType = "fort"
	LocationRegular           LocationType = "regular"
)

// Valid reports whether the value is a member of the closed set.
func (t LocationType) Valid() bool {
	switch t {
	case LocationCastle, LocationGraveyard, LocationAbandonedBuilding, LocationFort, LocationRegular:
		return true
	}
	return false
}

// WeatherCondition is the normalized weather state produced by the weather
// adapter. Provider-specific condition codes never leave the adapter; this
// enum is the only weather vocabulary the rest of the system speaks.
type WeatherCondition string

const (
	WeatherClear  WeatherCondition = "clear"
	WeatherCloudy WeatherCondition = "cloudy"
	WeatherRainy  WeatherCondition = "rainy"
	WeatherFoggy  WeatherCondition = "foggy"
	WeatherStormy WeatherCondition = "stormy"
)

// Valid reports whether the value is a member of the closed set.
func (c WeatherCondition) Valid() bool {
	switch c {
	case WeatherClear, WeatherCloudy, WeatherRainy, WeatherFoggy, WeatherStormy:
		return true
	}
	return false
}

// Season is the meteorological season at the target coordinate.
type Season string

const (
	SeasonSpring Season = "spring"
	SeasonSummer Season = "summer"
	SeasonAutumn Season = "autumn"
	SeasonWinter Season = "winter"
)

// Valid reports whether the value is a member of the closed set.
func (s Season) Valid() bool {
	switch s {
	case SeasonSpring, SeasonSummer, SeasonAutumn, SeasonWinter:
		return true
	}
	return false
}

// Opposite returns the season rotated by two positions, which is how a
// Northern-hemisphere season maps to the Southern hemisphere for the same
// date (Spring<->Autumn, Summer<->Winter).
func (s Season) Opposite() Season {
	switch s {
	case SeasonSpring:
		return SeasonAutumn
	case SeasonSummer:
		return SeasonWinter
	case SeasonAutumn:
		return SeasonSpring
	case SeasonWinter:
		return SeasonSummer
	default:
		return s
	}
}
