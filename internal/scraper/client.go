// Package scraper talks to the upstream showtime provider over net/http.
// It returns records as loose maps and leaves field extraction and
// normalization to the consumer, so this package stays a thin transport.
package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cinemap/go-showtimes-backend/internal/config"
)

// Client fetches provider payloads over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

// NewClient builds a Client from configuration. The per-request deadline
// comes from the caller's context, so the underlying http.Client carries
// no timeout of its own.
func NewClient(cfg config.ScrapeConfig) *Client {
	return &Client{
		baseURL:    cfg.ProviderBaseURL,
		httpClient: &http.Client{},
		userAgent:  "go-showtimes-backend/1.0",
	}
}

// FetchCinemas returns the provider's cinema directory.
func (c *Client) FetchCinemas(ctx context.Context) ([]map[string]any, error) {
	return c.getRecords(ctx, "/cinemas", nil)
}

// FetchListing returns movie metadata records playing at a cinema on a day.
func (c *Client) FetchListing(ctx context.Context, cinemaID string, date time.Time) ([]map[string]any, error) {
	return c.getRecords(ctx, "/cinemas/"+url.PathEscape(cinemaID)+"/listing", url.Values{
		"date": {date.Format("2006-01-02")},
	})
}

// FetchShowtimes returns per-screening records for a cinema on a day.
func (c *Client) FetchShowtimes(ctx context.Context, cinemaID string, date time.Time) ([]map[string]any, error) {
	return c.getRecords(ctx, "/cinemas/"+url.PathEscape(cinemaID)+"/showtimes", url.Values{
		"date": {date.Format("2006-01-02")},
	})
}

func (c *Client) getRecords(ctx context.Context, path string, query url.Values) ([]map[string]any, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("scraper: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scraper: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("scraper: %s: unexpected status %d", path, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("scraper: %s: read body: %w", path, err)
	}
	return decodeRecords(body)
}

// decodeRecords accepts either a bare JSON array of objects or an envelope
// with a "results" key, which is how the provider wraps paginated answers.
func decodeRecords(body []byte) ([]map[string]any, error) {
	var list []map[string]any
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}

	var envelope struct {
		Results []map[string]any `json:"results"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("scraper: decode response: %w", err)
	}
	return envelope.Results, nil
}
