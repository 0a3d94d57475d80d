// Package pipeline orchestrates one lead run: fetch, diff, prepare, score,
// enrich, rank and commit.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/sponsor-leads/internal/observability"
	"github.com/jonathan/sponsor-leads/internal/resolve"
	"github.com/jonathan/sponsor-leads/internal/sources"
	"github.com/jonathan/sponsor-leads/internal/state"
	"github.com/jonathan/sponsor-leads/internal/triage"
	"github.com/jonathan/sponsor-leads/internal/types"
	"github.com/jonathan/sponsor-leads/internal/verify"
)

// Verifier checks one candidate website against a record.
type Verifier interface {
	Verify(ctx context.Context, cand types.CandidateWebsite, rec *types.RegistryRecord) (*types.VerifiedMatch, verify.Outcome, error)
}

// ContactExtractor reads public contacts from a verified website.
type ContactExtractor interface {
	Extract(ctx context.Context, match *types.VerifiedMatch) (types.ContactInfo, error)
}

// Defaults for Options fields left zero.
const (
	DefaultMaxLeads    = 25
	DefaultWorkers     = 4
	DefaultMaxProfiles = 140
	DefaultRunTimeout  = 15 * time.Minute
	// DefaultEnrichCacheTTL is how long a company's enrichment result is reused.
	DefaultEnrichCacheTTL = 60 * 24 * time.Hour
)

// Options wires the collaborators of a run. Store and Sources are required;
// optional stages default to their disabled variants.
type Options struct {
	Sources   []sources.Adapter
	Preparers map[types.Source]sources.Preparer
	Store     state.Store

	Resolver resolve.Stage
	Verifier Verifier
	Contacts ContactExtractor
	Triage   triage.Stage

	MaxLeads int
	// MaxProfiles caps the Companies House records prepared per run.
	// Records beyond the cap stay unseen for the next run.
	MaxProfiles int
	Workers     int
	RunTimeout  time.Duration
	// EnrichCacheTTL bounds the age of a cached enrichment result that may
	// stand in for a new search. Negative disables the cache.
	EnrichCacheTTL time.Duration
	// DryRun skips the commit, so the store is left untouched.
	DryRun bool

	Logger  *zap.Logger
	Metrics *observability.Metrics
	// Printer receives "Step n/N" progress lines when set.
	Printer *observability.Printer
	// Now is the clock read once at run start.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MaxLeads == 0 {
		o.MaxLeads = DefaultMaxLeads
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.MaxProfiles == 0 {
		o.MaxProfiles = DefaultMaxProfiles
	}
	if o.RunTimeout <= 0 {
		o.RunTimeout = DefaultRunTimeout
	}
	if o.EnrichCacheTTL == 0 {
		o.EnrichCacheTTL = DefaultEnrichCacheTTL
	}
	if o.Resolver == nil {
		o.Resolver = resolve.Disabled{}
	}
	if o.Triage == nil {
		o.Triage = triage.Disabled{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Metrics == nil {
		o.Metrics = observability.NewMetrics()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// websiteStagesEnabled reports whether candidate websites can be verified.
func (o *Options) websiteStagesEnabled() bool {
	return o.Resolver.Enabled() && o.Verifier != nil
}
