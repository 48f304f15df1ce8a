package places

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"hauntedmap/internal/external"
	"hauntedmap/internal/types"
)

// nearbyQueries are the feature searches used to populate the nearby-POI
// list. Each runs as a bounded search around the target coordinate.
var nearbyQueries = []string{"castle", "cemetery", "fort", "ruins"}

// nearbyBoxDegrees is the half-width of the bounded search viewbox
// (~2 km at mid latitudes).
const nearbyBoxDegrees = 0.02

// NominatimClient is the geocoding adapter. All provider-specific response
// shapes stay inside this file; callers get PlaceRecord and PointOfInterest.
type NominatimClient struct {
	baseURL string
	client  *external.Client
}

// NewNominatimClient creates an adapter against the given base URL.
func NewNominatimClient(baseURL string, client *external.Client) *NominatimClient {
	return &NominatimClient{baseURL: baseURL, client: client}
}

// nominatimPlace mirrors the subset of the provider payload we consume.
type nominatimPlace struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Category    string `json:"category"`
	Type        string `json:"type"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

// ReverseGeocode resolves the place record at a coordinate.
func (c *NominatimClient) ReverseGeocode(ctx context.Context, coords types.Coordinates) (types.PlaceRecord, error) {
	endpoint := fmt.Sprintf("%s/reverse?lat=%.4f&lon=%.4f&format=jsonv2&zoom=18",
		c.baseURL, coords.Latitude, coords.Longitude)

	var place nominatimPlace
	if err := c.getJSON(ctx, endpoint, &place); err != nil {
		return types.PlaceRecord{}, err
	}

	name := place.Name
	if name == "" {
		name = place.DisplayName
	}
	return types.PlaceRecord{
		Name:       name,
		Categories: []string{place.Category, place.Type},
		Address:    place.DisplayName,
	}, nil
}

// Nearby returns up to limit points of interest around the coordinate,
// ordered by distance. Each feature query runs as a bounded viewbox search;
// failures of individual queries are skipped so one sparse area does not
// fail the whole lookup.
func (c *NominatimClient) Nearby(ctx context.Context, coords types.Coordinates, limit int) ([]types.PointOfInterest, error) {
	if limit <= 0 {
		return nil, nil
	}

	viewbox := fmt.Sprintf("%.4f,%.4f,%.4f,%.4f",
		coords.Longitude-nearbyBoxDegrees, coords.Latitude+nearbyBoxDegrees,
		coords.Longitude+nearbyBoxDegrees, coords.Latitude-nearbyBoxDegrees)

	var pois []types.PointOfInterest
	for _, q := range nearbyQueries {
		endpoint := fmt.Sprintf("%s/search?q=%s&format=jsonv2&bounded=1&viewbox=%s&limit=%d",
			c.baseURL, url.QueryEscape(q), url.QueryEscape(viewbox), limit)

		var results []nominatimPlace
		if err := c.getJSON(ctx, endpoint, &results); err != nil {
			continue
		}

		for _, p := range results {
			lat, latErr := strconv.ParseFloat(p.Lat, 64)
			lon, lonErr := strconv.ParseFloat(p.Lon, 64)
			if latErr != nil || lonErr != nil {
				continue
			}
			name := p.Name
			if name == "" {
				name = p.DisplayName
			}
			pois = append(pois, types.PointOfInterest{
				Name:           name,
				Type:           p.Type,
				DistanceMeters: int(haversineMeters(coords, types.Coordinates{Latitude: lat, Longitude: lon})),
			})
		}
	}

	sort.Slice(pois, func(i, j int) bool { return pois[i].DistanceMeters < pois[j].DistanceMeters })
	if len(pois) > limit {
		pois = pois[:limit]
	}
	return pois, nil
}

func (c *NominatimClient) getJSON(ctx context.Context, endpoint string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "building geocoding request", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.NewAppError(types.ErrCodeUpstreamGeocoding,
			fmt.Sprintf("geocoding provider returned status %d", resp.StatusCode), nil)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamGeocoding,
			"decoding geocoding provider response", err)
	}
	return nil
}

// earthRadiusMeters is the mean Earth radius used for distance calculations.
const earthRadiusMeters = 6371000

// haversineMeters computes the great-circle distance between two coordinates.
func haversineMeters(a, b types.Coordinates) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}
