package resolve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GoogleSearcher queries Google Programmable Search.
type GoogleSearcher struct {
	svc *customsearch.Service
	cx  string
}

// NewGoogleSearcher creates a GoogleSearcher. Extra client options (an HTTP
// client or endpoint) are appended after the API key.
func NewGoogleSearcher(ctx context.Context, apiKey, cx string, opts ...option.ClientOption) (*GoogleSearcher, error) {
	if apiKey == "" || cx == "" {
		return nil, errors.New("google search requires an API key and a search engine id")
	}
	svc, err := customsearch.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create customsearch service: %w", err)
	}
	return &GoogleSearcher{svc: svc, cx: cx}, nil
}

// Name returns the provider name.
func (g *GoogleSearcher) Name() string { return "google" }

// Search returns up to limit results (the API caps a page at 10).
func (g *GoogleSearcher) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 || limit > 10 {
		limit = 10
	}
	resp, err := g.svc.Cse.List().Cx(g.cx).Q(query).Num(int64(limit)).Gl("uk").Context(ctx).Do()
	if err != nil {
		if isQuotaError(err) {
			return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}

	out := make([]Result, 0, len(resp.Items))
	for _, item := range resp.Items {
		out = append(out, Result{URL: item.Link, Title: item.Title, Snippet: item.Snippet})
	}
	return out, nil
}

func isQuotaError(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	if gerr.Code == http.StatusTooManyRequests {
		return true
	}
	if gerr.Code == http.StatusForbidden {
		for _, e := range gerr.Errors {
			if strings.Contains(e.Reason, "Limit") || strings.Contains(e.Reason, "quota") {
				return true
			}
		}
	}
	return false
}
