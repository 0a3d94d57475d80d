package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/sponsor-leads/internal/pipeline/steps"
	"github.com/jonathan/sponsor-leads/internal/resolve"
	"github.com/jonathan/sponsor-leads/internal/state"
	"github.com/jonathan/sponsor-leads/internal/types"
	"github.com/jonathan/sponsor-leads/internal/verify"
)

// Notes attached to leads whose enrichment stopped early.
const (
	noteNoCompanyNumber = "no company number, website not resolved"
	noteBudget          = "search budget exhausted"
	noteRateLimited     = "search rate limited"
	noteSearchFailed    = "search failed"
	noteTimeout         = "run timeout before enrichment"
	noteNoMatch         = "no candidate website verified"
	noteContactsFailed  = "contact extraction failed"
	noteCached          = "used cached enrichment"
)

// enrich resolves, verifies, extracts contacts and triages each lead in
// place. Workers write only to their own element, so the slice order is
// untouched by completion order.
func (r *run) enrich(ctx context.Context, leads []types.ScoredLead) {
	start := time.Now()
	t := &tally{s: r.summary}

	var g errgroup.Group
	g.SetLimit(r.opts.Workers)
	for i := range leads {
		lead := &leads[i]
		g.Go(func() error {
			r.enrichLead(ctx, lead, t)
			return nil
		})
	}
	_ = g.Wait()

	r.opts.Metrics.StageDuration.WithLabelValues(steps.Resolve).Observe(time.Since(start).Seconds())
}

func (r *run) enrichLead(ctx context.Context, lead *types.ScoredLead, t *tally) {
	log := r.logger.With(zap.String("key", string(lead.Key)))

	if ctx.Err() != nil {
		lead.Notes = append(lead.Notes, noteTimeout)
		t.add(func(s *Summary) { s.Unresolved++ })
		return
	}
	if lead.Record.CompanyNumber == "" {
		lead.Notes = append(lead.Notes, noteNoCompanyNumber)
		t.add(func(s *Summary) { s.Unresolved++ })
		return
	}

	if !r.applyCached(ctx, lead, t, log) {
		if !r.searchAndVerify(ctx, lead, t, log) {
			return
		}
		if lead.Match != nil && r.opts.Contacts != nil {
			r.extractContacts(ctx, lead, t, log)
		}
		if err := r.opts.Store.PutCompany(ctx, state.CompanyRecordFor(lead, r.started)); err != nil {
			log.Warn("failed to cache enrichment", zap.Error(err))
		}
	}
	if lead.Match == nil {
		return
	}

	if r.opts.Triage.Enabled() {
		note, err := r.opts.Triage.Triage(ctx, lead)
		switch {
		case err != nil:
			log.Warn("triage failed", zap.Error(err))
			r.opts.Metrics.TriageFailures.Inc()
			t.add(func(s *Summary) { s.TriageFailed++ })
		case note != nil:
			lead.Triage = note
			t.add(func(s *Summary) { s.Triaged++ })
		}
	}
}

// applyCached fills lead from a fresh cached enrichment of the same company
// and reports whether it did. A cached result spends no search budget.
func (r *run) applyCached(ctx context.Context, lead *types.ScoredLead, t *tally, log *zap.Logger) bool {
	if r.opts.EnrichCacheTTL < 0 {
		return false
	}
	cached, ok, err := r.opts.Store.Company(ctx, lead.Record.CompanyNumber)
	if err != nil {
		log.Warn("enrichment cache lookup failed", zap.Error(err))
		return false
	}
	if !ok || !cached.IsFresh(r.started, r.opts.EnrichCacheTTL) {
		return false
	}

	lead.Notes = append(lead.Notes, noteCached)
	t.add(func(s *Summary) { s.Cached++ })

	match := cached.Match()
	if match == nil {
		lead.Notes = append(lead.Notes, noteNoMatch)
		return true
	}
	lead.Match = match
	if cached.Contact != nil {
		if err := lead.AttachContact(match, *cached.Contact); err != nil {
			log.Error("cached contact rejected", zap.Error(err))
		} else if !cached.Contact.Empty() {
			t.add(func(s *Summary) { s.Contacts++ })
		}
	}
	log.Debug("enrichment reused", zap.String("website", lead.Website()), zap.Time("enriched_at", cached.EnrichedAt))
	return true
}

// searchAndVerify resolves candidate websites and verifies them in rank
// order until one passes. It reports false when the search did not complete,
// so the outcome must not be cached.
func (r *run) searchAndVerify(ctx context.Context, lead *types.ScoredLead, t *tally, log *zap.Logger) bool {
	unresolved := func(note string) {
		lead.Notes = append(lead.Notes, note)
		t.add(func(s *Summary) { s.Unresolved++ })
	}

	cands, err := r.opts.Resolver.Resolve(ctx, &lead.Record)
	switch {
	case errors.Is(err, resolve.ErrBudgetExhausted):
		unresolved(noteBudget)
		return false
	case errors.Is(err, resolve.ErrRateLimited):
		unresolved(noteRateLimited)
		return false
	case err != nil:
		log.Debug("website search failed", zap.Error(err))
		r.opts.Metrics.SearchQueries.Inc()
		t.add(func(s *Summary) { s.Searched++ })
		unresolved(noteSearchFailed)
		return false
	}
	r.opts.Metrics.SearchQueries.Inc()
	lead.Candidates = cands
	t.add(func(s *Summary) {
		s.Searched++
		s.Candidates += len(cands)
	})

	for _, cand := range cands {
		if ctx.Err() != nil {
			break
		}
		match, outcome, err := r.opts.Verifier.Verify(ctx, cand, &lead.Record)
		if err != nil {
			log.Debug("candidate fetch failed", zap.String("url", cand.URL), zap.Error(err))
		}
		r.opts.Metrics.Verifications.WithLabelValues(string(outcome)).Inc()
		t.add(func(s *Summary) { countOutcome(s, outcome) })
		if outcome == verify.OutcomeVerified && match != nil {
			lead.Match = match
			break
		}
	}
	if lead.Match == nil {
		lead.Notes = append(lead.Notes, noteNoMatch)
		return ctx.Err() == nil
	}
	return true
}

func (r *run) extractContacts(ctx context.Context, lead *types.ScoredLead, t *tally, log *zap.Logger) {
	info, err := r.opts.Contacts.Extract(ctx, lead.Match)
	if err != nil {
		log.Debug("contact extraction failed", zap.Error(err))
		lead.Notes = append(lead.Notes, noteContactsFailed)
		return
	}
	if err := lead.AttachContact(lead.Match, info); err != nil {
		log.Error("contact rejected", zap.Error(err))
		return
	}
	if !info.Empty() {
		r.opts.Metrics.ContactsFound.Inc()
		t.add(func(s *Summary) { s.Contacts++ })
	}
}

func countOutcome(s *Summary, o verify.Outcome) {
	switch o {
	case verify.OutcomeVerified:
		s.Verified++
	case verify.OutcomeInconclusive:
		s.Inconclusive++
	case verify.OutcomeMismatch:
		s.Mismatched++
	case verify.OutcomeFetchFailed:
		s.FetchFailures++
	}
}
