package environment

import (
	"time"

	"hauntedmap/internal/types"
)

// SeasonAt returns the meteorological season for a date at a given latitude.
// Months map to the Northern-hemisphere season (Mar-May Spring, Jun-Aug
// Summer, Sep-Nov Autumn, Dec-Feb Winter); Southern-hemisphere latitudes get
// that season rotated by two positions. The equator counts as Northern.
func SeasonAt(date time.Time, latitude float64) types.Season {
	var season types.Season
	switch date.Month() {
	case time.March, time.April, time.May:
		season = types.SeasonSpring
	case time.June, time.July, time.August:
		season = types.SeasonSummer
	case time.September, time.October, time.November:
		season = types.SeasonAutumn
	default:
		season = types.SeasonWinter
	}

	if latitude < 0 {
		season = season.Opposite()
	}
	return season
}
