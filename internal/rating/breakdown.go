package rating

import (
	"math"
	"strings"

	"hauntedmap/internal/types"
)

// Factor display names, in the fixed breakdown order.
const (
	FactorLocation = "Location"
	FactorWeather  = "Weather"
	FactorTime     = "Time"
	FactorSeason   = "Season"
)

var locationDescriptions = map[types.LocationType]string{
	types.LocationCastle:            "Centuries-old castle walls hold onto their former occupants.",
	types.LocationGraveyard:         "A graveyard is as close to the other side as geography gets.",
	types.LocationAbandonedBuilding: "Abandoned buildings invite whatever moves in after the living leave.",
	types.LocationFort:              "Old fortifications remember every siege fought over them.",
	types.LocationRegular:           "An ordinary spot with no particular paranormal pedigree.",
}

var weatherDescriptions = map[types.WeatherCondition]string{
	types.WeatherFoggy:  "Thick fog blurs the line between this world and the next.",
	types.WeatherStormy: "Storm energy is a classic catalyst for manifestations.",
	types.WeatherRainy:  "Steady rain sets an unmistakably somber scene.",
	types.WeatherCloudy: "An overcast sky dims the mood a notch.",
	types.WeatherClear:  "Clear skies keep the spirits mostly at bay.",
}

var seasonDescriptions = map[types.Season]string{
	types.SeasonAutumn: "Autumn, the season of the thinning veil.",
	types.SeasonWinter: "Long winter nights give restless things more time to roam.",
	types.SeasonSpring: "Spring's renewal leaves little room for the departed.",
	types.SeasonSummer: "Bright summer days are the off-season for hauntings.",
}

// Breakdown generates the per-factor explanation for a computed rating, in
// fixed order: Location, Weather, Time, Season. Contributions multiply the
// already-rounded per-factor scores from the rating by the factor weight and
// round to the nearest integer. This is pure string templating over data the
// engine already produced; no scoring logic lives here.
func Breakdown(loc types.Location, env types.EnvironmentalFactors, r types.HauntedRating) []types.FactorBreakdown {
	return []types.FactorBreakdown{
		{
			Factor:       FactorLocation,
			Weight:       WeightLocation,
			Contribution: contribution(r.Factors.Location, WeightLocation),
			Description:  describeLocation(loc.Type),
		},
		{
			Factor:       FactorWeather,
			Weight:       WeightWeather,
			Contribution: contribution(r.Factors.Weather, WeightWeather),
			Description:  describeWeather(env.Weather),
		},
		{
			Factor:       FactorTime,
			Weight:       WeightTime,
			Contribution: contribution(r.Factors.Time, WeightTime),
			Description:  describeTime(env.Time),
		},
		{
			Factor:       FactorSeason,
			Weight:       WeightSeason,
			Contribution: contribution(r.Factors.Season, WeightSeason),
			Description:  describeSeason(env.Season),
		},
	}
}

// Explanation returns the human-readable verdict for a final overall score.
func Explanation(overallScore int) string {
	switch {
	case overallScore >= 90:
		return "Extremely haunted"
	case overallScore >= 75:
		return "Highly haunted"
	case overallScore >= 60:
		return "Moderately haunted"
	case overallScore >= 40:
		return "Mildly haunted"
	case overallScore >= 25:
		return "Low paranormal activity"
	default:
		return "Minimal haunting"
	}
}

func contribution(roundedScore int, weight float64) int {
	return int(math.Round(float64(roundedScore) * weight))
}

func describeLocation(t types.LocationType) string {
	if d, ok := locationDescriptions[t]; ok {
		return d
	}
	return locationDescriptions[types.LocationRegular]
}

// describeWeather builds the weather sentence from the condition template
// plus clauses for each modifier that actually contributed to the score.
func describeWeather(w types.WeatherData) string {
	base, ok := weatherDescriptions[w.Condition]
	if !ok {
		base = weatherDescriptions[types.WeatherClear]
	}

	var clauses []string
	switch {
	case w.TemperatureC < 10:
		clauses = append(clauses, "A biting chill hangs in the air.")
	case w.TemperatureC < 20:
		clauses = append(clauses, "There is a noticeable cold spot or two.")
	}
	switch {
	case w.VisibilityM < 1000:
		clauses = append(clauses, "Visibility is nearly gone.")
	case w.VisibilityM < 5000:
		clauses = append(clauses, "Visibility is poor.")
	}
	if w.Precipitation {
		clauses = append(clauses, "Something is falling from the sky.")
	}

	if len(clauses) == 0 {
		return base
	}
	return base + " " + strings.Join(clauses, " ")
}

func describeTime(t types.TimeData) string {
	h := t.Hour
	switch {
	case h >= 0 && h < 3:
		return "The witching hour: peak activity by every account."
	case h >= 21 || h < 1:
		return "Late evening, when most sightings are reported."
	case h >= 18 && h < 21:
		return "Twilight blurs shapes into suggestions."
	case h >= 3 && h < 6:
		return "The small hours before dawn still belong to the night."
	default:
		return "Broad daylight; apparitions rarely bother."
	}
}

func describeSeason(s types.Season) string {
	if d, ok := seasonDescriptions[s]; ok {
		return d
	}
	return "An unremarkable stretch of the calendar."
}
