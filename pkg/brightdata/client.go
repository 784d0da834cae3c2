// Package brightdata wraps the Bright Data unlocker and dataset APIs used to
// run Google searches and scrape LinkedIn profiles in batch.
package brightdata

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/profile-scout/internal/resilience"
)

const (
	defaultBaseURL = "https://api.brightdata.com"
	defaultZone    = "unblocker"

	// Bright Data dataset for LinkedIn people profiles.
	defaultProfileDataset = "gd_l1viktl72bvl7bjuj0"
)

// Client performs searches and batch profile scrapes against Bright Data.
type Client interface {
	// SearchGoogle runs one Google search page through the unlocker zone and
	// returns the parsed organic results.
	SearchGoogle(ctx context.Context, query string, page int, countryCode string) (*SearchResponse, error)
	// ScrapeProfiles fetches LinkedIn profile data for the given URLs in one
	// batched dataset call. Partial results are possible; callers should not
	// assume one result per input URL.
	ScrapeProfiles(ctx context.Context, urls []string) ([]ProfileResult, error)
}

// SearchResponse is the brd_json=1 Google SERP payload.
type SearchResponse struct {
	Organic []OrganicResult `json:"organic"`
	Related []string        `json:"related,omitempty"`
}

// OrganicResult is a single organic search hit.
type OrganicResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet,omitempty"`
}

// ProfileResult is one scraped LinkedIn profile payload.
type ProfileResult struct {
	URL            string   `json:"url"`
	Name           string   `json:"name"`
	Position       string   `json:"position,omitempty"`
	City           string   `json:"city,omitempty"`
	CountryCode    string   `json:"country_code,omitempty"`
	About          string   `json:"about,omitempty"`
	CurrentCompany string   `json:"current_company_name,omitempty"`
	Skills         []string `json:"skills,omitempty"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
}

// WithZone overrides the default unlocker zone.
func WithZone(zone string) Option {
	return func(c *httpClient) {
		c.zone = zone
	}
}

// WithProfileDataset overrides the LinkedIn dataset ID.
func WithProfileDataset(id string) Option {
	return func(c *httpClient) {
		c.dataset = id
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outbound requests per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

type httpClient struct {
	token   string
	baseURL string
	zone    string
	dataset string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Bright Data API client.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: defaultBaseURL,
		zone:    defaultZone,
		dataset: defaultProfileDataset,
		http: &http.Client{
			Timeout: 120 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(5), 5),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) SearchGoogle(ctx context.Context, query string, page int, countryCode string) (*SearchResponse, error) {
	body := map[string]string{
		"url":    googleSearchURL(query, page, countryCode),
		"zone":   c.zone,
		"format": "raw",
	}

	respBody, err := c.post(ctx, "/request", body)
	if err != nil {
		return nil, err
	}

	var result SearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "brightdata: unmarshal search response")
	}
	return &result, nil
}

func (c *httpClient) ScrapeProfiles(ctx context.Context, urls []string) ([]ProfileResult, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	input := make([]map[string]string, len(urls))
	for i, u := range urls {
		input[i] = map[string]string{"url": u}
	}

	path := "/datasets/v3/scrape?dataset_id=" + url.QueryEscape(c.dataset) + "&format=json"
	respBody, err := c.post(ctx, path, map[string]any{"input": input})
	if err != nil {
		return nil, err
	}

	var results []ProfileResult
	if err := json.Unmarshal(respBody, &results); err != nil {
		return nil, eris.Wrap(err, "brightdata: unmarshal profile results")
	}
	return results, nil
}

func (c *httpClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "brightdata: rate limit wait")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "brightdata: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "brightdata: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "brightdata: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "brightdata: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("brightdata: unexpected status %d: %s", resp.StatusCode, string(respBody))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}
	return respBody, nil
}

// googleSearchURL builds the Google SERP URL with JSON output and optional
// geolocation. Page is 0-indexed, 10 results per page.
func googleSearchURL(query string, page int, countryCode string) string {
	u := "https://www.google.com/search?q=" + url.QueryEscape(query) +
		"&start=" + strconv.Itoa(page*10) + "&brd_json=1"
	if countryCode != "" {
		u += "&gl=" + strings.ToUpper(countryCode)
	}
	return u
}
