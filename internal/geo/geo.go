package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Unknown is the fallback hint when lookup fails or times out. A slow
// or broken geo service must never fail or delay a scan.
const Unknown = "unknown"

const (
	lookupTimeout = 2 * time.Second
	cacheTTL      = 1 * time.Hour
	maxCached     = 4096
)

type cached struct {
	hint    string
	fetched time.Time
}

// Client resolves an IP address to a coarse "country/region" hint via an
// external HTTP service, with a per-IP cache so repeat scanners do not
// re-query.
type Client struct {
	client  *http.Client
	baseURL string

	mu    sync.Mutex
	cache map[string]cached
}

// NewClient creates a geo client for the given lookup endpoint. An empty
// baseURL disables lookups entirely; every Lookup returns Unknown.
func NewClient(baseURL string) *Client {
	return &Client{
		client:  &http.Client{Timeout: lookupTimeout},
		baseURL: baseURL,
		cache:   make(map[string]cached),
	}
}

type apiResponse struct {
	Country string `json:"country"`
	Region  string `json:"region"`
}

// Lookup resolves an IP to "country/region". It is best-effort: any
// error, timeout, or unconfigured endpoint degrades to Unknown.
func (c *Client) Lookup(ctx context.Context, ip string) string {
	if c.baseURL == "" || ip == "" {
		return Unknown
	}

	c.mu.Lock()
	if entry, ok := c.cache[ip]; ok && time.Since(entry.fetched) < cacheTTL {
		c.mu.Unlock()
		return entry.hint
	}
	c.mu.Unlock()

	hint, err := c.fetch(ctx, ip)
	if err != nil {
		return Unknown
	}

	c.mu.Lock()
	if len(c.cache) >= maxCached {
		// Cheap bound: reset rather than track LRU order.
		c.cache = make(map[string]cached)
	}
	c.cache[ip] = cached{hint: hint, fetched: time.Now()}
	c.mu.Unlock()
	return hint
}

func (c *Client) fetch(ctx context.Context, ip string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+url.PathEscape(ip), nil)
	if err != nil {
		return "", fmt.Errorf("geo request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("geo lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geo lookup returned status %d", resp.StatusCode)
	}

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", fmt.Errorf("decode geo response: %w", err)
	}
	if apiResp.Country == "" {
		return Unknown, nil
	}
	if apiResp.Region == "" {
		return apiResp.Country, nil
	}
	return apiResp.Country + "/" + apiResp.Region, nil
}
