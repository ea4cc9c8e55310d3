// Package weather provides a client for the OpenWeatherMap current
// conditions endpoint, backing the "what's the weather" voice command.
package weather

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// cacheTTL bounds how stale a served report may be. Conditions change
// slowly and the API has a tight request quota on the free tier.
const cacheTTL = 10 * time.Minute

// Report represents the current conditions at the configured city.
type Report struct {
	City        string
	Description string  // e.g. "light rain"
	Temperature float64 // in the configured units
}

// Client is an OpenWeatherMap client.
type Client struct {
	apiKey     string
	city       string
	units      string
	baseURL    string
	httpClient *http.Client

	cacheMu   sync.RWMutex
	cached    Report
	fetchedAt time.Time
}

// Config represents weather client configuration.
type Config struct {
	APIKey string
	City   string
	Units  string // metric or imperial
}

// conditionsResponse represents the response from the current weather API.
type conditionsResponse struct {
	Cod     any    `json:"cod"` // the API returns a number on success, a string on error
	Message string `json:"message"`
	Name    string `json:"name"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
}

// New creates a new weather client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("weather API key is required")
	}
	if cfg.City == "" {
		return nil, errors.New("weather city is required")
	}

	units := cfg.Units
	if units == "" {
		units = "metric"
	}

	return &Client{
		apiKey:     cfg.APIKey,
		city:       cfg.City,
		units:      units,
		baseURL:    "https://api.openweathermap.org/data/2.5/weather",
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Current retrieves the current conditions, served from cache when fresh
// enough.
func (c *Client) Current(ctx context.Context) (Report, error) {
	c.cacheMu.RLock()
	if time.Since(c.fetchedAt) < cacheTTL {
		report := c.cached
		c.cacheMu.RUnlock()
		zlog.Debug().Msgf("weather: serving cached report: city=%s", report.City)
		return report, nil
	}
	c.cacheMu.RUnlock()

	params := url.Values{}
	params.Set("q", c.city)
	params.Set("units", c.units)
	params.Set("appid", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return Report{}, errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Report{}, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Report{}, errors.Wrap(err, "failed to read response body")
	}

	var response conditionsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return Report{}, errors.Wrap(err, "failed to parse response")
	}
	if resp.StatusCode != http.StatusOK {
		return Report{}, errors.Newf("weather error %v: %s", response.Cod, response.Message)
	}
	if len(response.Weather) == 0 {
		return Report{}, errors.New("weather response carried no conditions")
	}

	report := Report{
		City:        response.Name,
		Description: response.Weather[0].Description,
		Temperature: response.Main.Temp,
	}

	c.cacheMu.Lock()
	c.cached = report
	c.fetchedAt = time.Now()
	c.cacheMu.Unlock()
	zlog.Debug().Msgf("weather: cached report: city=%s", report.City)

	return report, nil
}
