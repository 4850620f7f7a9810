package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultURL is the USGS "all earthquakes, past hour" summary feed.
const DefaultURL = "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/all_hour.geojson"

const defaultTimeout = 15 * time.Second

type Config struct {
	URL     string
	Timeout time.Duration
}

// Client fetches one feed document per call. The HTTP timeout bounds the whole
// exchange so a hung fetch surfaces as an ordinary fetch failure.
type Client struct {
	url string
	hc  *http.Client
}

func NewClient(cfg Config) *Client {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		url = DefaultURL
	}
	to := cfg.Timeout
	if to <= 0 {
		to = defaultTimeout
	}
	return &Client{url: url, hc: &http.Client{Timeout: to}}
}

// Fetch performs one GET of the feed. A transport error, a non-200 status or an
// undecodable body is a fetch failure; callers abort the cycle and retry on the
// next tick.
func (c *Client) Fetch(ctx context.Context) (Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Document{}, fmt.Errorf("feed: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("feed: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Document{}, fmt.Errorf("feed: unexpected status %s", resp.Status)
	}

	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("feed: decode: %w", err)
	}
	return doc, nil
}

// URL reports the configured feed URL (for status surfaces).
func (c *Client) URL() string { return c.url }
