package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jonathan/sponsor-leads/internal/fetch"
)

// DefaultSerpAPIURL is the SerpAPI JSON endpoint.
const DefaultSerpAPIURL = "https://serpapi.com/search.json"

// SerpAPISearcher queries Google through SerpAPI.
type SerpAPISearcher struct {
	endpoint string
	apiKey   string
	client   *fetch.Client
}

// NewSerpAPISearcher creates a SerpAPISearcher. An empty endpoint uses DefaultSerpAPIURL.
func NewSerpAPISearcher(apiKey, endpoint string, client *fetch.Client) (*SerpAPISearcher, error) {
	if apiKey == "" {
		return nil, errors.New("serpapi requires an API key")
	}
	if endpoint == "" {
		endpoint = DefaultSerpAPIURL
	}
	if client == nil {
		client = fetch.NewClient(nil)
	}
	return &SerpAPISearcher{endpoint: endpoint, apiKey: apiKey, client: client}, nil
}

// Name returns the provider name.
func (s *SerpAPISearcher) Name() string { return "serpapi" }

type serpResponse struct {
	Error          string `json:"error"`
	OrganicResults []struct {
		Link    string `json:"link"`
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
	} `json:"organic_results"`
}

// Search runs one UK-localized Google query.
func (s *SerpAPISearcher) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	q := url.Values{}
	q.Set("engine", "google")
	q.Set("q", query)
	q.Set("api_key", s.apiKey)
	q.Set("google_domain", "google.co.uk")
	q.Set("hl", "en")
	q.Set("gl", "gb")
	q.Set("num", strconv.Itoa(limit))

	res, err := s.client.Get(ctx, s.endpoint+"?"+q.Encode())
	if err != nil {
		if fetch.StatusCode(err) == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return nil, fmt.Errorf("serpapi request failed: %w", err)
	}

	var resp serpResponse
	if err := json.Unmarshal([]byte(res.HTML), &resp); err != nil {
		return nil, fmt.Errorf("failed to decode serpapi response: %w", err)
	}
	if resp.Error != "" {
		lower := strings.ToLower(resp.Error)
		if strings.Contains(lower, "run out of searches") || strings.Contains(lower, "rate limit") {
			return nil, fmt.Errorf("%w: %s", ErrRateLimited, resp.Error)
		}
		if strings.Contains(lower, "hasn't returned any results") {
			return nil, nil
		}
		return nil, fmt.Errorf("serpapi error: %s", resp.Error)
	}

	out := make([]Result, 0, len(resp.OrganicResults))
	for _, r := range resp.OrganicResults {
		out = append(out, Result{URL: r.Link, Title: r.Title, Snippet: r.Snippet})
	}
	return out, nil
}
