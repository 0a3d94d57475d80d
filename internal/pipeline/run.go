package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/sponsor-leads/internal/differ"
	"github.com/jonathan/sponsor-leads/internal/pipeline/steps"
	"github.com/jonathan/sponsor-leads/internal/ranking"
	"github.com/jonathan/sponsor-leads/internal/scoring"
	"github.com/jonathan/sponsor-leads/internal/sources"
	"github.com/jonathan/sponsor-leads/internal/state"
	"github.com/jonathan/sponsor-leads/internal/types"
)

// Result is handed to the notifier once the store has committed.
type Result struct {
	RunID   string
	Leads   []types.ScoredLead
	Summary *Summary
}

// run carries the state of one execution.
type run struct {
	opts     Options
	id       string
	started  time.Time
	logger   *zap.Logger
	summary  *Summary
	progress *steps.Progress
	// baseline is set when this run establishes the sponsor baseline.
	baseline bool
}

// Run executes one pipeline run. A corrupt store or a failed commit aborts
// the run and nothing is returned for emission.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Store == nil {
		return nil, errors.New("pipeline: store is required")
	}
	opts = opts.withDefaults()

	var disabled []string
	if !opts.websiteStagesEnabled() {
		disabled = append(disabled, steps.Resolve)
	}
	if !opts.Triage.Enabled() {
		disabled = append(disabled, steps.Triage)
	}
	if opts.DryRun {
		disabled = append(disabled, steps.Commit)
	}
	plan, err := steps.Plan(disabled...)
	if err != nil {
		return nil, err
	}

	r := &run{
		opts:     opts,
		id:       uuid.NewString(),
		started:  opts.Now().UTC(),
		progress: steps.NewProgress(plan),
	}
	r.logger = opts.Logger.With(zap.String("run_id", r.id))
	r.summary = newSummary(r.id, r.started)
	r.summary.DryRun = opts.DryRun
	r.logger.Info("run started", zap.String("plan", r.progress.String()))

	// Fetch, diff and prepare run on the caller's context: the store must be
	// consistent before anything is scored. The run deadline bounds network
	// work from Prepare onwards.
	r.step(steps.Fetch)
	records := r.fetchAll(ctx)

	r.step(steps.Diff)
	novel, err := r.diff(ctx, records)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, opts.RunTimeout)
	defer cancel()

	r.step(steps.Prepare)
	prepared, err := r.prepare(runCtx, novel)
	if err != nil {
		return nil, err
	}

	r.step(steps.Score)
	scorer := scoring.New(r.started)
	leads := make([]types.ScoredLead, 0, len(prepared))
	for _, rec := range prepared {
		lead := scorer.Score(rec)
		lead.FirstSeen = r.started
		leads = append(leads, lead)
	}
	r.summary.Scored = len(leads)

	// Enrichment never changes confidence, so the shortlist is known before
	// any website work and the search budget is spent on it alone.
	shortlist := ranking.RankAndCap(leads, opts.MaxLeads)
	if r.progress.Has(steps.Resolve) {
		// Enrichment stages interleave per lead; announce them together.
		for _, name := range []string{steps.Resolve, steps.Verify, steps.Contacts, steps.Triage} {
			r.step(name)
		}
		r.enrich(runCtx, shortlist)
	}
	if runCtx.Err() != nil && ctx.Err() == nil {
		r.summary.TimedOut = true
		r.logger.Warn("run timeout reached, emitting leads computed so far", zap.Duration("timeout", opts.RunTimeout))
	}

	r.step(steps.Rank)
	for i := range shortlist {
		if err := shortlist[i].CheckInvariants(); err != nil {
			r.logger.Error("stripping contact from lead", zap.String("key", string(shortlist[i].Key)), zap.Error(err))
			shortlist[i].Contact = nil
			r.summary.Stripped++
		}
	}
	final := ranking.RankAndCap(shortlist, opts.MaxLeads)
	r.summary.Emitted = len(final)

	if !opts.DryRun {
		r.step(steps.Commit)
		if err := r.commit(context.WithoutCancel(ctx)); err != nil {
			return nil, err
		}
	}
	r.summary.FinishedAt = opts.Now().UTC()
	if !opts.DryRun {
		r.recordRun(context.WithoutCancel(ctx))
	}
	r.observe(final)

	r.logger.Info("run finished",
		zap.Int("novel", r.summary.Novel),
		zap.Int("scored", r.summary.Scored),
		zap.Int("verified", r.summary.Verified),
		zap.Int("emitted", r.summary.Emitted))

	return &Result{RunID: r.id, Leads: final, Summary: r.summary}, nil
}

func (r *run) step(name string) {
	if r.opts.Printer == nil {
		return
	}
	if n, total, ok := r.progress.Position(name); ok {
		def, _ := steps.Lookup(name)
		r.opts.Printer.Step(n, total, def.Label)
	}
}

// fetchAll runs every adapter concurrently. A failing adapter degrades its
// stream only. Records are returned in adapter order.
func (r *run) fetchAll(ctx context.Context) []types.RegistryRecord {
	start := time.Now()
	batches := make([]*sources.Batch, len(r.opts.Sources))
	errs := make([]error, len(r.opts.Sources))

	var g errgroup.Group
	for i, adapter := range r.opts.Sources {
		g.Go(func() error {
			b, err := adapter.Fetch(ctx)
			batches[i], errs[i] = b, err
			return nil
		})
	}
	_ = g.Wait()

	var out []types.RegistryRecord
	for i, adapter := range r.opts.Sources {
		src := adapter.Source()
		if errs[i] != nil {
			r.summary.Degraded = append(r.summary.Degraded, src)
			r.opts.Metrics.SourceDegraded.WithLabelValues(string(src)).Inc()
			r.logger.Warn("source unavailable",
				zap.String("source", string(src)),
				zap.Bool("expected", errors.Is(errs[i], sources.ErrSourceUnavailable)),
				zap.Error(errs[i]))
			continue
		}
		b := batches[i]
		r.summary.Fetched[src] += len(b.Records)
		r.summary.Malformed[src] += b.Malformed
		r.summary.Filtered[src] += b.Filtered
		r.opts.Metrics.RecordsFetched.WithLabelValues(string(src)).Add(float64(len(b.Records)))
		r.opts.Metrics.RecordsMalformed.WithLabelValues(string(src)).Add(float64(b.Malformed))
		r.logger.Info("source fetched",
			zap.String("source", string(src)),
			zap.String("origin", b.Origin),
			zap.Int("records", len(b.Records)),
			zap.Int("malformed", b.Malformed),
			zap.Int("filtered", b.Filtered))
		out = append(out, b.Records...)
	}
	r.opts.Metrics.StageDuration.WithLabelValues(steps.Fetch).Observe(time.Since(start).Seconds())
	return out
}

func (r *run) diff(ctx context.Context, records []types.RegistryRecord) ([]types.RegistryRecord, error) {
	novel, stats, err := differ.Diff(ctx, r.opts.Store, records)
	if err != nil {
		return nil, fmt.Errorf("failed to diff against state: %w", err)
	}
	r.summary.Duplicates = stats.Duplicates
	r.summary.AlreadySeen = stats.Seen
	r.summary.Novel = stats.Novel
	r.opts.Metrics.NovelRecords.Add(float64(stats.Novel))

	if !r.sponsorFetched() {
		return novel, nil
	}
	_, baselined, err := r.opts.Store.Meta(ctx, state.MetaSponsorBaselined)
	if err != nil {
		return nil, fmt.Errorf("failed to read sponsor baseline: %w", err)
	}
	if baselined {
		return novel, nil
	}

	// First sight of the register: everything on it predates this bot.
	r.baseline = true
	kept := novel[:0:0]
	for _, rec := range novel {
		if rec.Source != types.SourceSponsorRegister {
			kept = append(kept, rec)
			continue
		}
		if err := r.markSeen(ctx, rec); err != nil {
			return nil, err
		}
		r.summary.Baselined++
	}
	r.logger.Info("sponsor register baselined", zap.Int("rows", r.summary.Baselined))
	return kept, nil
}

func (r *run) sponsorFetched() bool {
	if r.summary.Fetched[types.SourceSponsorRegister] == 0 {
		return false
	}
	for _, d := range r.summary.Degraded {
		if d == types.SourceSponsorRegister {
			return false
		}
	}
	return true
}

type prepared struct {
	rec      types.RegistryRecord
	keep     bool
	deferred bool
	matched  bool
}

// prepare completes novel records with their source's Preparer. Companies
// House records over MaxProfiles, or whose preparation failed, are deferred:
// they are not marked seen and come back next run. Every other novel record
// is marked seen whether or not it is scored.
func (r *run) prepare(ctx context.Context, novel []types.RegistryRecord) ([]types.RegistryRecord, error) {
	start := time.Now()
	results := make([]prepared, len(novel))

	profiles := 0
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for i, rec := range novel {
		results[i] = prepared{rec: rec, keep: true}
		p := r.opts.Preparers[rec.Source]
		if p == nil {
			continue
		}
		if rec.Source == types.SourceCompaniesHouse {
			if r.opts.MaxProfiles > 0 && profiles >= r.opts.MaxProfiles {
				results[i] = prepared{rec: rec, deferred: true}
				continue
			}
			profiles++
		}
		g.Go(func() error {
			out, keep, err := p.Prepare(gCtx, rec)
			if err != nil {
				if rec.Source == types.SourceCompaniesHouse {
					r.logger.Warn("deferring record", zap.String("key", string(rec.Key())), zap.Error(err))
					results[i] = prepared{rec: rec, deferred: true}
					return nil
				}
				r.logger.Debug("preparation failed, scoring as fetched", zap.String("key", string(rec.Key())), zap.Error(err))
				return nil
			}
			results[i] = prepared{
				rec:     out,
				keep:    keep,
				matched: rec.CompanyNumber == "" && out.CompanyNumber != "",
			}
			return nil
		})
	}
	_ = g.Wait()

	var out []types.RegistryRecord
	for _, res := range results {
		if res.deferred {
			r.summary.Deferred++
			continue
		}
		if err := r.markSeen(ctx, res.rec); err != nil {
			return nil, err
		}
		if res.matched {
			r.summary.Matched++
		}
		if !res.keep {
			r.summary.Dropped++
			continue
		}
		out = append(out, res.rec)
	}
	if r.summary.Deferred > 0 {
		r.logger.Info("records deferred to next run", zap.Int("count", r.summary.Deferred))
	}
	r.opts.Metrics.StageDuration.WithLabelValues(steps.Prepare).Observe(time.Since(start).Seconds())
	return out, nil
}

func (r *run) markSeen(ctx context.Context, rec types.RegistryRecord) error {
	meta := types.SeenMeta{Source: rec.Source, FirstSeen: r.started, RunID: r.id}
	if err := r.opts.Store.MarkSeen(context.WithoutCancel(ctx), rec.Key(), meta); err != nil {
		return fmt.Errorf("failed to mark %s seen: %w", rec.Key(), err)
	}
	return nil
}

func (r *run) commit(ctx context.Context) error {
	store := r.opts.Store
	if r.baseline {
		if err := store.SetMeta(ctx, state.MetaSponsorBaselined, r.started.Format(time.RFC3339)); err != nil {
			return fmt.Errorf("failed to set sponsor baseline: %w", err)
		}
	}
	if err := store.SetMeta(ctx, state.MetaLastRunID, r.id); err != nil {
		return fmt.Errorf("failed to set last run: %w", err)
	}
	if err := store.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit state: %w", err)
	}
	r.opts.Metrics.LastSuccess.Set(float64(time.Now().Unix()))
	return nil
}

// recordRun persists the summary. The seen set is already committed, so a
// failure here is logged and the run still emits.
func (r *run) recordRun(ctx context.Context) {
	data, err := json.Marshal(r.summary)
	if err != nil {
		r.logger.Warn("failed to encode run summary", zap.Error(err))
		return
	}
	rec := state.RunRecord{ID: r.id, StartedAt: r.started, FinishedAt: r.summary.FinishedAt, Summary: data}
	if err := r.opts.Store.RecordRun(ctx, rec); err != nil {
		r.logger.Warn("failed to record run", zap.Error(err))
	}
}

func (r *run) observe(final []types.ScoredLead) {
	for caseType, n := range ranking.CountByCaseType(final) {
		r.opts.Metrics.LeadsEmitted.WithLabelValues(string(caseType)).Set(float64(n))
	}
}

// tally serializes summary updates from enrichment workers.
type tally struct {
	mu sync.Mutex
	s  *Summary
}

func (t *tally) add(f func(s *Summary)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f(t.s)
}
