package environment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"hauntedmap/internal/external"
	"hauntedmap/internal/types"
)

// currentVariables is the fixed set of variables requested from the
// current-conditions endpoint.
const currentVariables = "temperature_2m,relative_humidity_2m,precipitation,weather_code,visibility,wind_speed_10m"

// OpenMeteoClient fetches current conditions from the Open-Meteo forecast
// API and maps them onto the narrow WeatherData contract. Provider-specific
// shapes (WMO weather codes, field names) never leave this file.
type OpenMeteoClient struct {
	baseURL string
	client  *external.Client
}

// NewOpenMeteoClient creates an adapter against the given base URL
// (overridable for tests) using the shared resilient client.
func NewOpenMeteoClient(baseURL string, client *external.Client) *OpenMeteoClient {
	return &OpenMeteoClient{baseURL: baseURL, client: client}
}

// openMeteoResponse mirrors the subset of the provider payload we consume.
type openMeteoResponse struct {
	Timezone string `json:"timezone"`
	Current  struct {
		Time          string  `json:"time"`
		Temperature   float64 `json:"temperature_2m"`
		Humidity      float64 `json:"relative_humidity_2m"`
		Precipitation float64 `json:"precipitation"`
		WeatherCode   int     `json:"weather_code"`
		VisibilityM   float64 `json:"visibility"`
		WindSpeedKmh  float64 `json:"wind_speed_10m"`
	} `json:"current"`
}

// Current returns the present conditions at the coordinate plus the IANA
// timezone name the provider resolved for it (timezone=auto).
func (c *OpenMeteoClient) Current(ctx context.Context, coords types.Coordinates) (types.WeatherData, string, error) {
	endpoint := fmt.Sprintf(
		"%s/v1/forecast?latitude=%.4f&longitude=%.4f&current=%s&timezone=auto",
		c.baseURL, coords.Latitude, coords.Longitude, url.QueryEscape(currentVariables),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return types.WeatherData{}, "", types.NewAppError(
			types.ErrCodeInternalUnexpected, "building weather request", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return types.WeatherData{}, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.WeatherData{}, "", types.NewAppError(
			types.ErrCodeUpstreamWeather,
			fmt.Sprintf("weather provider returned status %d", resp.StatusCode), nil)
	}

	var payload openMeteoResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return types.WeatherData{}, "", types.NewAppError(
			types.ErrCodeUpstreamWeather, "decoding weather provider response", err)
	}

	data := types.WeatherData{
		Condition:     conditionFromWMOCode(payload.Current.WeatherCode),
		TemperatureC:  payload.Current.Temperature,
		VisibilityM:   payload.Current.VisibilityM,
		Precipitation: payload.Current.Precipitation > 0,
		Humidity:      payload.Current.Humidity,
		WindSpeedKmh:  payload.Current.WindSpeedKmh,
	}
	return data, payload.Timezone, nil
}

// conditionFromWMOCode collapses the WMO weather interpretation codes used
// by Open-Meteo into the closed WeatherCondition enum.
//
//	45, 48        fog / depositing rime fog
//	95..99        thunderstorm
//	51..67        drizzle and rain
//	71..77, 85,86 snow
//	80..82        rain showers
//	2, 3          partly cloudy / overcast
//	everything else, including clear (0) and unknown codes, maps to Clear.
func conditionFromWMOCode(code int) types.WeatherCondition {
	switch {
	case code == 45 || code == 48:
		return types.WeatherFoggy
	case code >= 95 && code <= 99:
		return types.WeatherStormy
	case (code >= 51 && code <= 67) || (code >= 71 && code <= 77) || (code >= 80 && code <= 86):
		return types.WeatherRainy
	case code == 2 || code == 3:
		return types.WeatherCloudy
	default:
		return types.WeatherClear
	}
}
