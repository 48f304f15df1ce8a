// Package handlers contains the HTTP handler implementations for the
// haunted rating API. Handlers depend on locally defined interfaces so each
// one can be tested against small hand-rolled mocks.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"hauntedmap/internal/core"
	"hauntedmap/internal/rating"
	"hauntedmap/internal/types"
)

// FactorsProvider fetches current environmental factors for a coordinate.
type FactorsProvider interface {
	Fetch(ctx context.Context, coords types.Coordinates, at *time.Time) (types.EnvironmentalFactors, error)
}

// LocationResolver identifies and classifies the place at a coordinate.
type LocationResolver interface {
	Resolve(ctx context.Context, coords types.Coordinates) types.Location
}

// Rater computes a haunted rating from a location and its environment.
type Rater interface {
	Calculate(loc types.Location, env types.EnvironmentalFactors) types.HauntedRating
}

// RatingResponse is the payload for single-shot rating queries.
type RatingResponse struct {
	Location    types.Location             `json:"location"`
	Factors     types.EnvironmentalFactors `json:"factors"`
	Rating      types.HauntedRating        `json:"rating"`
	Explanation string                     `json:"explanation,omitempty"`
}

// RatingsHandler serves on-demand rating computations.
type RatingsHandler struct {
	factors  FactorsProvider
	resolver LocationResolver
	rater    Rater
	logger   *slog.Logger

	// flight collapses concurrent requests for the same coordinate into a
	// single resolve-and-fetch.
	flight singleflight.Group
}

// NewRatingsHandler creates a RatingsHandler with the provided dependencies.
func NewRatingsHandler(factors FactorsProvider, resolver LocationResolver, rater Rater, logger *slog.Logger) *RatingsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RatingsHandler{
		factors:  factors,
		resolver: resolver,
		rater:    rater,
		logger:   logger,
	}
}

// RegisterRoutes mounts the rating endpoints onto the mux.
func (h *RatingsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleGetRating)
	r.Get("/preview", h.HandleGetPreview)
}

// HandleGetRating handles GET /v1/ratings. It returns the full rating with
// the per-factor breakdown and a human-readable explanation.
func (h *RatingsHandler) HandleGetRating(w http.ResponseWriter, r *http.Request) {
	coords, err := parseCoordinates(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	resp, err := h.compute(r.Context(), coords)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	resp.Rating.Breakdown = rating.Breakdown(resp.Location, resp.Factors, resp.Rating)
	resp.Explanation = rating.Explanation(resp.Rating.OverallScore)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: resp})
}

// HandleGetPreview handles GET /v1/ratings/preview: the score and factors
// without the breakdown strings, for map pins and bulk displays.
func (h *RatingsHandler) HandleGetPreview(w http.ResponseWriter, r *http.Request) {
	coords, err := parseCoordinates(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	resp, err := h.compute(r.Context(), coords)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: resp})
}

// compute resolves the location and fetches environmental factors
// concurrently, then rates the result. Concurrent requests for the same
// coordinate share one computation.
func (h *RatingsHandler) compute(ctx context.Context, coords types.Coordinates) (RatingResponse, error) {
	v, err, _ := h.flight.Do(coords.Key(), func() (any, error) {
		var (
			loc     types.Location
			factors types.EnvironmentalFactors
		)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			loc = h.resolver.Resolve(gctx, coords)
			return nil
		})
		g.Go(func() error {
			var err error
			factors, err = h.factors.Fetch(gctx, coords, nil)
			return err
		})
		if err := g.Wait(); err != nil {
			return RatingResponse{}, err
		}

		return RatingResponse{
			Location: loc,
			Factors:  factors,
			Rating:   h.rater.Calculate(loc, factors),
		}, nil
	})
	if err != nil {
		return RatingResponse{}, err
	}
	return v.(RatingResponse), nil
}

// parseCoordinates reads and validates the lat/lon query parameters.
func parseCoordinates(r *http.Request) (types.Coordinates, error) {
	q := r.URL.Query()

	latStr := q.Get("lat")
	if latStr == "" {
		return types.Coordinates{}, types.NewAppError(types.ErrCodeValidationMissingField,
			"lat query parameter is required", nil)
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil || lat < -90 || lat > 90 {
		return types.Coordinates{}, types.NewAppError(types.ErrCodeValidationInvalidLat,
			"lat must be a number in [-90, 90]", err)
	}

	lonStr := q.Get("lon")
	if lonStr == "" {
		return types.Coordinates{}, types.NewAppError(types.ErrCodeValidationMissingField,
			"lon query parameter is required", nil)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil || lon < -180 || lon > 180 {
		return types.Coordinates{}, types.NewAppError(types.ErrCodeValidationInvalidLon,
			"lon must be a number in [-180, 180]", err)
	}

	return types.Coordinates{Latitude: lat, Longitude: lon}, nil
}
