// Package resolve proposes candidate websites for registry records through a
// web search API with a hard per-run query budget.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/jonathan/sponsor-leads/internal/names"
	"github.com/jonathan/sponsor-leads/internal/types"
)

var (
	// ErrBudgetExhausted is returned once the per-run query cap is reached.
	ErrBudgetExhausted = errors.New("search query budget exhausted")
	// ErrRateLimited is returned when the search API throttles or runs out of
	// quota. The resolver stays disabled for the rest of the run.
	ErrRateLimited = errors.New("search API rate limited")
)

// DefaultMaxCandidates is how many distinct hosts are proposed per record.
const DefaultMaxCandidates = 3

// Result is one organic search hit.
type Result struct {
	URL     string
	Title   string
	Snippet string
}

// Searcher runs one web search.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
	Name() string
}

// Stage proposes candidate websites for a record.
type Stage interface {
	Resolve(ctx context.Context, rec *types.RegistryRecord) ([]types.CandidateWebsite, error)
	Enabled() bool
}

// Disabled is the stage used when no search provider is configured.
type Disabled struct{}

// Resolve returns no candidates.
func (Disabled) Resolve(context.Context, *types.RegistryRecord) ([]types.CandidateWebsite, error) {
	return nil, nil
}

// Enabled reports false.
func (Disabled) Enabled() bool { return false }

// Options configures a Resolver.
type Options struct {
	MaxQueries    int
	MaxCandidates int
	// ResultsPerQuery is passed to the searcher.
	ResultsPerQuery int
	DenyDomains     []string
}

// Resolver turns search hits into ranked candidate websites.
type Resolver struct {
	searcher Searcher
	opts     Options
	deny     map[string]bool
	used     atomic.Int64
	limited  atomic.Bool
	logger   *zap.Logger
}

// New creates a Resolver. A MaxQueries of zero or less allows no queries.
func New(searcher Searcher, opts Options, logger *zap.Logger) *Resolver {
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = DefaultMaxCandidates
	}
	if opts.ResultsPerQuery <= 0 {
		opts.ResultsPerQuery = 10
	}
	if len(opts.DenyDomains) == 0 {
		opts.DenyDomains = DefaultDenyDomains()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	deny := make(map[string]bool, len(opts.DenyDomains))
	for _, d := range opts.DenyDomains {
		deny[strings.ToLower(strings.TrimPrefix(d, "www."))] = true
	}
	return &Resolver{searcher: searcher, opts: opts, deny: deny, logger: logger}
}

// Enabled reports true.
func (r *Resolver) Enabled() bool { return true }

// QueriesUsed returns how many queries were charged to the budget.
func (r *Resolver) QueriesUsed() int {
	used := int(r.used.Load())
	if used > r.opts.MaxQueries {
		return r.opts.MaxQueries
	}
	return used
}

// Query builds the search query for a record.
func Query(rec *types.RegistryRecord) string {
	name := names.CleanDisplay(rec.Name)
	if rec.Postcode != "" {
		return fmt.Sprintf(`"%s" %s`, name, rec.Postcode)
	}
	if rec.Town != "" {
		return fmt.Sprintf(`"%s" %s contact`, name, rec.Town)
	}
	return fmt.Sprintf(`"%s" official website`, name)
}

// Resolve runs one search for rec and returns up to MaxCandidates candidates
// ordered by confidence.
func (r *Resolver) Resolve(ctx context.Context, rec *types.RegistryRecord) ([]types.CandidateWebsite, error) {
	if r.limited.Load() {
		return nil, ErrRateLimited
	}
	if r.used.Add(1) > int64(r.opts.MaxQueries) {
		return nil, ErrBudgetExhausted
	}

	q := Query(rec)
	results, err := r.searcher.Search(ctx, q, r.opts.ResultsPerQuery)
	if err != nil {
		if errors.Is(err, ErrRateLimited) {
			if !r.limited.Swap(true) {
				r.logger.Warn("search provider rate limited, disabling search for this run", zap.String("provider", r.searcher.Name()))
			}
			return nil, ErrRateLimited
		}
		return nil, fmt.Errorf("failed to search for %q: %w", rec.Name, err)
	}

	return r.rank(rec, results), nil
}

func (r *Resolver) rank(rec *types.RegistryRecord, results []Result) []types.CandidateWebsite {
	best := map[string]types.CandidateWebsite{}
	var order []string
	for i, res := range results {
		base, host, ok := baseURL(res.URL)
		if !ok || r.Denied(host) {
			continue
		}
		c := types.CandidateWebsite{
			URL:        base,
			Confidence: candidateConfidence(rec.Name, host, res, i),
			Title:      res.Title,
			Snippet:    res.Snippet,
		}
		// www and the bare host are one site.
		key := strings.Replace(base, "://www.", "://", 1)
		prev, seen := best[key]
		if !seen {
			order = append(order, key)
		}
		if !seen || c.Confidence > prev.Confidence {
			best[key] = c
		}
	}

	out := make([]types.CandidateWebsite, 0, len(order))
	for _, k := range order {
		out = append(out, best[k])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if len(out) > r.opts.MaxCandidates {
		out = out[:r.opts.MaxCandidates]
	}
	return out
}

// Denied reports whether host or one of its parent domains is on the denylist.
func (r *Resolver) Denied(host string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	for host != "" {
		if r.deny[host] {
			return true
		}
		i := strings.IndexByte(host, '.')
		if i < 0 {
			break
		}
		host = host[i+1:]
	}
	return false
}

func baseURL(raw string) (base, host string, ok bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", "", false
	}
	host = strings.ToLower(u.Hostname())
	return u.Scheme + "://" + host, host, true
}

var directoryPhrases = []string{"company profile", "company information", "companies house", "director", "filings"}

// candidateConfidence blends name similarity (title and host) with search rank.
func candidateConfidence(name, host string, res Result, rank int) float64 {
	core := names.Core(name)
	titleSim := float64(names.TokenSetRatio(core, res.Title)) / 100

	compact := strings.ToLower(strings.ReplaceAll(core, " ", ""))
	label := hostLabel(host)
	hostSim := 0.0
	if compact != "" && label != "" {
		if strings.Contains(label, compact) || (len(label) >= 4 && strings.Contains(compact, label)) {
			hostSim = 1
		} else {
			hostSim = float64(names.Ratio(compact, label)) / 100
		}
	}

	sim := titleSim
	if hostSim > sim {
		sim = hostSim
	}
	conf := 0.7*sim + 0.3/float64(rank+1)

	lower := strings.ToLower(res.Title + " " + res.Snippet)
	for _, p := range directoryPhrases {
		if strings.Contains(lower, p) {
			conf -= 0.2
			break
		}
	}
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return conf
}

// hostLabel returns the registrable label of host: "www.acme.co.uk" gives "acme".
func hostLabel(host string) string {
	host = strings.TrimPrefix(host, "www.")
	parts := strings.Split(host, ".")
	if len(parts) == 0 {
		return ""
	}
	// Drop the public suffix: one label, or two for second-level country domains.
	n := len(parts) - 1
	if n >= 2 && len(parts[n]) == 2 && (parts[n-1] == "co" || parts[n-1] == "org" || parts[n-1] == "ac" || parts[n-1] == "com") {
		n--
	}
	if n <= 0 {
		return parts[0]
	}
	return parts[n-1]
}

// DefaultDenyDomains lists registries, directories and social networks that
// are never a company's own site.
func DefaultDenyDomains() []string {
	return []string{
		"find-and-update.company-information.service.gov.uk",
		"company-information.service.gov.uk",
		"companieshouse.gov.uk",
		"gov.uk",
		"opencorporates.com",
		"duedil.com",
		"endole.co.uk",
		"northdata.com",
		"companycheck.co.uk",
		"corporationwiki.com",
		"bizapedia.com",
		"dnb.com",
		"dnb.co.uk",
		"yell.com",
		"linkedin.com",
		"facebook.com",
		"instagram.com",
		"twitter.com",
		"x.com",
		"youtube.com",
		"tiktok.com",
		"crunchbase.com",
		"bloomberg.com",
		"zoominfo.com",
		"signalhire.com",
		"rocketreach.co",
		"glassdoor.co.uk",
		"indeed.co.uk",
		"wikipedia.org",
	}
}
