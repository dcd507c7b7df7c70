package weatherclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
)

// Forecast is the subset of the Open-Meteo forecast response the dashboard
// uses. Unknown shapes are rejected at this boundary instead of being passed
// through as untyped maps.
type Forecast struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Current   Current `json:"current"`
	Daily     Daily   `json:"daily"`
}

type Current struct {
	Time        string  `json:"time"`
	Temperature float64 `json:"temperature_2m"`
	Humidity    float64 `json:"relative_humidity_2m"`
	Rain        float64 `json:"precipitation"`
	WindSpeed   float64 `json:"wind_speed_10m"`
}

type Daily struct {
	Time           []string  `json:"time"`
	TemperatureMax []float64 `json:"temperature_2m_max"`
	TemperatureMin []float64 `json:"temperature_2m_min"`
	RainSum        []float64 `json:"precipitation_sum"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
	}
}

func (c *Client) Forecast(ctx context.Context, lat, lon float64) (Forecast, error) {
	var ret Forecast

	endpointURL, err := url.Parse(c.baseURL)
	if err != nil {
		return ret, errors.Wrap(err, "Parsing weather base URL")
	}
	endpointURL.Path = "/v1/forecast"

	query := url.Values{}
	query.Set("latitude", fmt.Sprintf("%.4f", lat))
	query.Set("longitude", fmt.Sprintf("%.4f", lon))
	query.Set("current", "temperature_2m,relative_humidity_2m,precipitation,wind_speed_10m")
	query.Set("daily", "temperature_2m_max,temperature_2m_min,precipitation_sum")
	query.Set("timezone", "auto")
	endpointURL.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL.String(), nil)
	if err != nil {
		return ret, errors.Wrap(err, "Building forecast request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ret, errors.Wrap(err, "Requesting forecast")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return ret, errors.Wrap(err, "Failed to read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return ret, fmt.Errorf("Failed to fetch forecast: %s", string(respBody))
	}

	if err := json.Unmarshal(respBody, &ret); err != nil {
		return ret, errors.Wrap(err, "Decoding forecast response")
	}

	return ret, nil
}
