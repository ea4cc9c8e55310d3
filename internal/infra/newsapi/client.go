// Package newsapi provides a client for the NewsAPI.org top headlines
// endpoint, backing the "news" voice command.
package newsapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// cacheTTL bounds how stale served headlines may be. Headlines change
// slowly and the API has a tight request quota on the free tier.
const cacheTTL = 10 * time.Minute

// Headline represents a single news headline.
type Headline struct {
	Title  string
	Source string
}

// Client is a NewsAPI client.
type Client struct {
	apiKey     string
	country    string
	baseURL    string
	httpClient *http.Client

	cacheMu   sync.RWMutex
	cached    []Headline
	fetchedAt time.Time
}

// Config represents NewsAPI client configuration.
type Config struct {
	APIKey  string
	Country string // two-letter country code
}

// headlinesResponse represents the response from the top-headlines API.
type headlinesResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		Title  string `json:"title"`
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}

// New creates a new NewsAPI client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("newsapi API key is required")
	}

	country := cfg.Country
	if country == "" {
		country = "us"
	}

	return &Client{
		apiKey:     cfg.APIKey,
		country:    country,
		baseURL:    "https://newsapi.org/v2/top-headlines",
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// TopHeadlines retrieves up to limit current headlines, served from cache
// when fresh enough.
func (c *Client) TopHeadlines(ctx context.Context, limit int) ([]Headline, error) {
	if limit <= 0 {
		limit = 5
	}
	if limit > 20 {
		limit = 20
	}

	c.cacheMu.RLock()
	if time.Since(c.fetchedAt) < cacheTTL && len(c.cached) > 0 {
		headlines := clamp(c.cached, limit)
		c.cacheMu.RUnlock()
		zlog.Debug().Msgf("newsapi: serving cached headlines: count=%d", len(headlines))
		return headlines, nil
	}
	c.cacheMu.RUnlock()

	params := url.Values{}
	params.Set("country", c.country)
	params.Set("pageSize", strconv.Itoa(limit))
	params.Set("apiKey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	var response headlinesResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, errors.Wrap(err, "failed to parse response")
	}
	if response.Status != "ok" {
		return nil, errors.Newf("newsapi error %s: %s", response.Code, response.Message)
	}

	headlines := make([]Headline, 0, len(response.Articles))
	for _, a := range response.Articles {
		if a.Title == "" {
			continue
		}
		headlines = append(headlines, Headline{
			Title:  a.Title,
			Source: a.Source.Name,
		})
	}

	c.cacheMu.Lock()
	c.cached = headlines
	c.fetchedAt = time.Now()
	c.cacheMu.Unlock()
	zlog.Debug().Msgf("newsapi: cached headlines: count=%d", len(headlines))

	return clamp(headlines, limit), nil
}

func clamp(headlines []Headline, limit int) []Headline {
	if len(headlines) > limit {
		headlines = headlines[:limit]
	}
	out := make([]Headline, len(headlines))
	copy(out, headlines)
	return out
}
