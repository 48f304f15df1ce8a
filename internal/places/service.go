package places

import (
	"context"
	"log/slog"

	"hauntedmap/internal/types"
)

// Geocoder is the narrow contract the resolver needs from the geocoding
// adapter.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, coords types.Coordinates) (types.PlaceRecord, error)
	Nearby(ctx context.Context, coords types.Coordinates, limit int) ([]types.PointOfInterest, error)
}

// Resolver builds a classified Location for a coordinate.
type Resolver struct {
	geocoder    Geocoder
	nearbyLimit int
	logger      *slog.Logger
}

// NewResolver creates a Resolver. nearbyLimit <= 0 disables the POI lookup.
func NewResolver(geocoder Geocoder, nearbyLimit int, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{geocoder: geocoder, nearbyLimit: nearbyLimit, logger: logger}
}

// Resolve reverse-geocodes the coordinate, classifies the result, and
// attaches nearby points of interest. Geocoding failures degrade to an
// unnamed Regular location rather than failing the rating: the score is
// still computable from environmental factors alone, and a dull-but-present
// rating beats an error page. POI lookup failures are likewise non-fatal.
func (r *Resolver) Resolve(ctx context.Context, coords types.Coordinates) types.Location {
	loc := types.Location{Coordinates: coords, Type: types.LocationRegular}

	record, err := r.geocoder.ReverseGeocode(ctx, coords)
	if err != nil {
		r.logger.WarnContext(ctx, "reverse geocoding failed, classifying as regular",
			"coordinates", coords.Key(),
			"error", err,
		)
		return loc
	}

	loc.Name = record.Name
	loc.Address = record.Address
	loc.Type = Classify(record)

	if r.nearbyLimit > 0 {
		pois, err := r.geocoder.Nearby(ctx, coords, r.nearbyLimit)
		if err != nil {
			r.logger.WarnContext(ctx, "nearby POI lookup failed",
				"coordinates", coords.Key(),
				"error", err,
			)
		} else {
			loc.NearbyPOIs = pois
		}
	}
	return loc
}
