// Package places resolves a coordinate into a classified Location: reverse
// geocoding through a Nominatim-style provider, keyword classification into
// the closed LocationType set, and a nearby point-of-interest lookup.
package places

import (
	"strings"

	"hauntedmap/internal/types"
)

// Keyword tables for the classifier. Matching is case-insensitive substring
// matching over the place name and its category tags. Tables are checked in
// enum declaration order, so a "ruined castle" classifies as a castle.
var (
	castleKeywords    = []string{"castle", "château", "chateau", "schloss", "keep"}
	graveyardKeywords = []string{"cemetery", "graveyard", "churchyard", "burial", "necropolis", "crypt", "mausoleum"}
	abandonedKeywords = []string{"abandoned", "ruin", "derelict", "disused", "ghost town"}
	fortKeywords      = []string{"fort", "fortress", "battery", "citadel", "bastion", "garrison"}
)

// Classify maps a raw place record to a LocationType using name and category
// heuristics. Pure; unmatched records are Regular.
func Classify(place types.PlaceRecord) types.LocationType {
	haystack := strings.ToLower(place.Name)
	for _, c := range place.Categories {
		haystack += " " + strings.ToLower(c)
	}

	switch {
	case containsAny(haystack, castleKeywords):
		return types.LocationCastle
	case containsAny(haystack, graveyardKeywords):
		return types.LocationGraveyard
	case containsAny(haystack, abandonedKeywords):
		return types.LocationAbandonedBuilding
	case containsAny(haystack, fortKeywords):
		return types.LocationFort
	default:
		return types.LocationRegular
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
