// Package companieshouse adapts the Companies House public data API.
package companieshouse

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jonathan/sponsor-leads/internal/fetch"
)

// DefaultBaseURL is the public data API.
const DefaultBaseURL = "https://api.company-information.service.gov.uk"

// MaxPageSize is the largest page advanced search accepts.
const MaxPageSize = 5000

// ErrNotFound is returned for 404 responses.
var ErrNotFound = errors.New("companies house: not found")

// ClientConfig configures the API client.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	// RatePerSecond and Burst feed the request limiter.
	RatePerSecond float64
	Burst         int
	Timeout       time.Duration
	Retry         fetch.RetryPolicy
}

// DefaultClientConfig returns settings inside the published rate limit
// (600 requests per five minutes).
func DefaultClientConfig(apiKey string) ClientConfig {
	return ClientConfig{
		BaseURL:       DefaultBaseURL,
		APIKey:        apiKey,
		RatePerSecond: 2,
		Burst:         5,
		Timeout:       fetch.DefaultTimeout,
		Retry:         fetch.DefaultRetryPolicy(),
	}
}

// Client calls the API with basic auth, a shared rate limiter and bounded retries.
type Client struct {
	baseURL string
	auth    string
	http    *fetch.Client
	limiter *rate.Limiter
	retry   fetch.RetryPolicy
	logger  *zap.Logger
}

// NewClient creates a Client.
func NewClient(cfg ClientConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("companies house API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := fetch.DefaultOptions()
	if cfg.Timeout > 0 {
		opts.Timeout = cfg.Timeout
	}
	return &Client{
		baseURL: cfg.BaseURL,
		auth:    "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.APIKey+":")),
		http:    fetch.NewClient(opts),
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		retry:   cfg.Retry,
		logger:  logger,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	headers := map[string]string{
		"Authorization": c.auth,
		"Accept":        "application/json",
	}

	var body string
	err := fetch.Retry(ctx, c.retry, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		res, err := c.http.Do(ctx, u, headers)
		if err != nil {
			if fetch.StatusCode(err) == http.StatusNotFound {
				return ErrNotFound
			}
			return err
		}
		body = res.HTML
		return nil
	}, func(err error, wait time.Duration) {
		c.logger.Warn("retrying companies house request", zap.String("path", path), zap.Duration("wait", wait), zap.Error(err))
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// Address is a registered office or correspondence address.
type Address struct {
	AddressLine1 string `json:"address_line_1"`
	AddressLine2 string `json:"address_line_2"`
	Locality     string `json:"locality"`
	PostTown     string `json:"post_town"`
	Region       string `json:"region"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"`
}

// CompanyItem is one advanced-search hit or a company profile.
type CompanyItem struct {
	CompanyNumber           string   `json:"company_number"`
	CompanyName             string   `json:"company_name"`
	CompanyStatus           string   `json:"company_status"`
	CompanyType             string   `json:"company_type"`
	Type                    string   `json:"type"`
	DateOfCreation          string   `json:"date_of_creation"`
	RegisteredOfficeAddress Address  `json:"registered_office_address"`
	SICCodes                []string `json:"sic_codes"`
}

type advancedSearchResponse struct {
	Hits  int           `json:"hits"`
	Items []CompanyItem `json:"items"`
}

// OfficerItem is one entry of the officers list.
type OfficerItem struct {
	Name               string  `json:"name"`
	OfficerRole        string  `json:"officer_role"`
	Nationality        string  `json:"nationality"`
	CountryOfResidence string  `json:"country_of_residence"`
	ResignedOn         string  `json:"resigned_on"`
	Address            Address `json:"address"`
}

type officersResponse struct {
	Items []OfficerItem `json:"items"`
}

// PSCItem is one person with significant control.
type PSCItem struct {
	Name     string  `json:"name"`
	Kind     string  `json:"kind"`
	CeasedOn string  `json:"ceased_on"`
	Address  Address `json:"address"`
	// Identification is set for corporate PSCs.
	Identification struct {
		CountryRegistered string `json:"country_registered"`
		PlaceRegistered   string `json:"place_registered"`
	} `json:"identification"`
}

type pscResponse struct {
	Items []PSCItem `json:"items"`
}

// SearchItem is one hit from the name search endpoint.
type SearchItem struct {
	Title          string  `json:"title"`
	CompanyNumber  string  `json:"company_number"`
	CompanyStatus  string  `json:"company_status"`
	AddressSnippet string  `json:"address_snippet"`
	DateOfCreation string  `json:"date_of_creation"`
	Address        Address `json:"address"`
}

type searchResponse struct {
	Items []SearchItem `json:"items"`
}

// AdvancedSearch returns one page of companies incorporated between from and to.
func (c *Client) AdvancedSearch(ctx context.Context, from, to time.Time, startIndex, size int) ([]CompanyItem, error) {
	if size <= 0 || size > MaxPageSize {
		size = MaxPageSize
	}
	q := url.Values{}
	q.Set("incorporated_from", from.Format(time.DateOnly))
	q.Set("incorporated_to", to.Format(time.DateOnly))
	q.Set("company_status", "active")
	q.Set("size", strconv.Itoa(size))
	q.Set("start_index", strconv.Itoa(startIndex))

	var resp advancedSearchResponse
	if err := c.getJSON(ctx, "/advanced-search/companies", q, &resp); err != nil {
		if errors.Is(err, ErrNotFound) {
			// No hits is reported as 404.
			return nil, nil
		}
		return nil, fmt.Errorf("failed to run advanced search: %w", err)
	}
	return resp.Items, nil
}

// Profile returns the company profile.
func (c *Client) Profile(ctx context.Context, number string) (*CompanyItem, error) {
	var p CompanyItem
	if err := c.getJSON(ctx, "/company/"+url.PathEscape(number), nil, &p); err != nil {
		return nil, fmt.Errorf("failed to get profile %s: %w", number, err)
	}
	return &p, nil
}

// Officers returns the current officers. Resigned officers are dropped.
func (c *Client) Officers(ctx context.Context, number string) ([]OfficerItem, error) {
	q := url.Values{}
	q.Set("items_per_page", "100")
	var resp officersResponse
	if err := c.getJSON(ctx, "/company/"+url.PathEscape(number)+"/officers", q, &resp); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list officers for %s: %w", number, err)
	}
	out := resp.Items[:0]
	for _, o := range resp.Items {
		if o.ResignedOn == "" {
			out = append(out, o)
		}
	}
	return out, nil
}

// PSCs returns active persons with significant control. A company with no
// PSC register returns an empty list.
func (c *Client) PSCs(ctx context.Context, number string) ([]PSCItem, error) {
	q := url.Values{}
	q.Set("items_per_page", "100")
	var resp pscResponse
	if err := c.getJSON(ctx, "/company/"+url.PathEscape(number)+"/persons-with-significant-control", q, &resp); err != nil {
		if errors.Is(err, ErrNotFound) {
			return []PSCItem{}, nil
		}
		return nil, fmt.Errorf("failed to list PSCs for %s: %w", number, err)
	}
	out := resp.Items[:0]
	for _, p := range resp.Items {
		if p.CeasedOn == "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// Search runs a company name search.
func (c *Client) Search(ctx context.Context, query string, perPage int) ([]SearchItem, error) {
	if perPage <= 0 {
		perPage = 10
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("items_per_page", strconv.Itoa(perPage))
	var resp searchResponse
	if err := c.getJSON(ctx, "/search/companies", q, &resp); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to search companies for %q: %w", query, err)
	}
	return resp.Items, nil
}
