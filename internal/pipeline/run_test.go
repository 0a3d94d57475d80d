package pipeline

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/sponsor-leads/internal/observability"
	"github.com/jonathan/sponsor-leads/internal/sources"
	"github.com/jonathan/sponsor-leads/internal/state"
	"github.com/jonathan/sponsor-leads/internal/types"
	"github.com/jonathan/sponsor-leads/internal/verify"
)

var runTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return runTime }

func chRecord(number, name string, ageDays int) types.RegistryRecord {
	return types.RegistryRecord{
		Source:          types.SourceCompaniesHouse,
		Name:            name,
		CompanyNumber:   number,
		Postcode:        "EC1A 1BB",
		IncorporatedOn:  runTime.AddDate(0, 0, -ageDays),
		SourceTimestamp: runTime.AddDate(0, 0, -ageDays),
		PSCs: []types.PSC{{
			Name:    name + " GmbH",
			Kind:    "corporate-entity-person-with-significant-control",
			Country: "Germany",
		}},
	}
}

func sponsorRecord(name, town string) types.RegistryRecord {
	return types.RegistryRecord{
		Source:          types.SourceSponsorRegister,
		Name:            name,
		Town:            town,
		Route:           "Skilled Worker",
		SourceTimestamp: runTime,
	}
}

func baselinedStore(t *testing.T) *state.Memory {
	t.Helper()
	store := state.NewMemory()
	require.NoError(t, store.SetMeta(context.Background(), state.MetaSponsorBaselined, "2026-01-01T00:00:00Z"))
	require.NoError(t, store.Commit(context.Background()))
	return store
}

func keys(leads []types.ScoredLead) []types.SeenKey {
	out := make([]types.SeenKey, len(leads))
	for i, l := range leads {
		out[i] = l.Key
	}
	return out
}

func TestRun_SecondRunEmitsNothing(t *testing.T) {
	store := baselinedStore(t)
	opts := Options{
		Sources: []sources.Adapter{
			&sources.Static{From: types.SourceCompaniesHouse, Records: []types.RegistryRecord{
				chRecord("15550001", "Alpha Robotics UK Ltd", 3),
				chRecord("15550002", "Beta Systems Ltd", 20),
				chRecord("15550003", "Gamma Foods Ltd", 45),
			}},
			&sources.Static{From: types.SourceSponsorRegister, Records: []types.RegistryRecord{
				sponsorRecord("Delta Care Ltd", "Leeds"),
				sponsorRecord("Epsilon Labs Ltd", "Oxford"),
			}},
		},
		Store: store,
		Now:   fixedNow,
	}

	first, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Len(t, first.Leads, 5)
	assert.Equal(t, 5, first.Summary.Novel)
	assert.NotEmpty(t, first.RunID)

	second, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Empty(t, second.Leads)
	assert.Equal(t, 5, second.Summary.AlreadySeen)
	assert.NotEqual(t, first.RunID, second.RunID)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, stats.SeenKeys)
	assert.Equal(t, 2, stats.Runs)
}

func TestRun_FiveRowsTwoSeen(t *testing.T) {
	ctx := context.Background()
	rows := []types.RegistryRecord{
		sponsorRecord("Acme Ltd", "London"),
		sponsorRecord("Bravo Ltd", "Leeds"),
		sponsorRecord("Charlie Ltd", "York"),
		sponsorRecord("Delta Ltd", "Bath"),
		sponsorRecord("Echo Ltd", "Hull"),
	}
	store := baselinedStore(t)
	for _, r := range []types.RegistryRecord{rows[1], rows[3]} {
		require.NoError(t, store.MarkSeen(ctx, r.Key(), types.SeenMeta{Source: r.Source, RunID: "earlier"}))
	}
	require.NoError(t, store.Commit(ctx))

	res, err := Run(ctx, Options{
		Sources: []sources.Adapter{&sources.Static{From: types.SourceSponsorRegister, Records: rows}},
		Store:   store,
		Now:     fixedNow,
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []types.SeenKey{rows[0].Key(), rows[2].Key(), rows[4].Key()}, keys(res.Leads))
	for _, r := range rows {
		_, ok := store.Seen(r.Key())
		assert.True(t, ok, "%s should be seen", r.Key())
	}
	meta, _ := store.Seen(rows[1].Key())
	assert.Equal(t, "earlier", meta.RunID, "first-seen data is not overwritten")
}

func TestRun_CorruptStoreAborts(t *testing.T) {
	store := state.NewMemory()
	store.FailWith = errors.New("database disk image is malformed")

	res, err := Run(context.Background(), Options{
		Sources: []sources.Adapter{&sources.Static{From: types.SourceCompaniesHouse, Records: []types.RegistryRecord{
			chRecord("15550001", "Alpha Ltd", 3),
		}}},
		Store: store,
		Now:   fixedNow,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, state.ErrStoreCorrupt)
	assert.Nil(t, res)
}

func TestRun_MissingStore(t *testing.T) {
	_, err := Run(context.Background(), Options{})
	assert.Error(t, err)
}

func TestRun_SponsorBaseline(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemory()
	sponsor := &sources.Static{From: types.SourceSponsorRegister, Records: []types.RegistryRecord{
		sponsorRecord("Acme Ltd", "London"),
		sponsorRecord("Bravo Ltd", "Leeds"),
		sponsorRecord("Charlie Ltd", "York"),
	}}
	ch := &sources.Static{From: types.SourceCompaniesHouse, Records: []types.RegistryRecord{
		chRecord("15550001", "Alpha Ltd", 3),
	}}
	opts := Options{Sources: []sources.Adapter{ch, sponsor}, Store: store, Now: fixedNow}

	first, err := Run(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, []types.SeenKey{"CH::15550001"}, keys(first.Leads))
	assert.Equal(t, 3, first.Summary.Baselined)

	_, ok, err := store.Meta(ctx, state.MetaSponsorBaselined)
	require.NoError(t, err)
	assert.True(t, ok)

	sponsor.Records = append(sponsor.Records, sponsorRecord("Delta Ltd", "Bath"))
	second, err := Run(ctx, opts)
	require.NoError(t, err)
	require.Len(t, second.Leads, 1)
	assert.Equal(t, "Delta Ltd", second.Leads[0].Record.Name)
	assert.Equal(t, 0, second.Summary.Baselined)
}

func TestRun_SponsorUnavailableDoesNotBaseline(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemory()
	res, err := Run(ctx, Options{
		Sources: []sources.Adapter{
			&sources.Static{From: types.SourceSponsorRegister, Err: &sources.UnavailableError{
				Source: types.SourceSponsorRegister, Message: "download failed", Cause: errors.New("503"),
			}},
			&sources.Static{From: types.SourceCompaniesHouse, Records: []types.RegistryRecord{chRecord("15550001", "Alpha Ltd", 3)}},
		},
		Store: store,
		Now:   fixedNow,
	})
	require.NoError(t, err)
	assert.Equal(t, []types.Source{types.SourceSponsorRegister}, res.Summary.Degraded)
	assert.Len(t, res.Leads, 1)

	_, ok, err := store.Meta(ctx, state.MetaSponsorBaselined)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRun_SearchDisabledEmitsRegistryOnlyLeads(t *testing.T) {
	contacts := &fakeContacts{}
	res, err := Run(context.Background(), Options{
		Sources: []sources.Adapter{&sources.Static{From: types.SourceCompaniesHouse, Records: []types.RegistryRecord{
			chRecord("15550001", "Alpha Ltd", 3),
			chRecord("15550002", "Beta Ltd", 3),
		}}},
		Store:    baselinedStore(t),
		Verifier: &fakeVerifier{},
		Contacts: contacts,
		Now:      fixedNow,
	})
	require.NoError(t, err)
	require.Len(t, res.Leads, 2)
	for _, l := range res.Leads {
		assert.Nil(t, l.Match)
		assert.Nil(t, l.Contact)
		assert.Empty(t, l.Candidates)
	}
	assert.Equal(t, 0, res.Summary.Searched)
	assert.Zero(t, contacts.callCount())
}

func TestRun_EnrichmentOnlyContactsVerifiedLeads(t *testing.T) {
	resolver := &fakeResolver{}
	verifier := &fakeVerifier{verified: map[string]bool{"https://alpha.example/": true}}
	contacts := &fakeContacts{info: types.ContactInfo{Emails: []string{"hr@alpha.example"}}}
	triager := &fakeTriage{}

	res, err := Run(context.Background(), Options{
		Sources: []sources.Adapter{
			&sources.Static{From: types.SourceCompaniesHouse, Records: []types.RegistryRecord{
				chRecord("15550001", "Alpha", 3),
				chRecord("15550002", "Beta", 3),
			}},
			&sources.Static{From: types.SourceSponsorRegister, Records: []types.RegistryRecord{
				sponsorRecord("Gamma Ltd", "Leeds"),
			}},
		},
		Store:    baselinedStore(t),
		Resolver: resolver,
		Verifier: verifier,
		Contacts: contacts,
		Triage:   triager,
		Now:      fixedNow,
	})
	require.NoError(t, err)
	require.Len(t, res.Leads, 3)

	byKey := map[types.SeenKey]types.ScoredLead{}
	for _, l := range res.Leads {
		byKey[l.Key] = l
	}

	alpha := byKey["CH::15550001"]
	require.NotNil(t, alpha.Match)
	require.NotNil(t, alpha.Contact)
	assert.Equal(t, []string{"hr@alpha.example"}, alpha.Contact.Emails)
	require.NotNil(t, alpha.Triage)

	beta := byKey["CH::15550002"]
	assert.Nil(t, beta.Match)
	assert.Nil(t, beta.Contact)
	assert.Nil(t, beta.Triage)
	assert.Contains(t, beta.Notes, noteNoMatch)

	gammaRec := sponsorRecord("Gamma Ltd", "Leeds")
	gamma := byKey[gammaRec.Key()]
	assert.Contains(t, gamma.Notes, noteNoCompanyNumber)

	assert.Equal(t, 1, contacts.callCount())
	assert.Equal(t, 2, resolver.callCount(), "sponsor row without number is not searched")

	s := res.Summary
	assert.Equal(t, 2, s.Searched)
	assert.Equal(t, 2, s.Candidates)
	assert.Equal(t, 1, s.Verified)
	assert.Equal(t, 1, s.Inconclusive)
	assert.Equal(t, 1, s.Contacts)
	assert.Equal(t, 1, s.Triaged)
	assert.Equal(t, 1, s.Unresolved)
}

func TestRun_CompanyCacheSpansSeenKeys(t *testing.T) {
	alphaCH := chRecord("15550001", "Alpha Robotics UK Ltd", 3)
	betaCH := chRecord("15550002", "Beta Systems Ltd", 3)
	// The same companies later appear on the sponsor register under new keys.
	alphaSponsor := sponsorRecord("Alpha Robotics UK Ltd", "London")
	alphaSponsor.CompanyNumber = "15550001"
	betaSponsor := sponsorRecord("Beta Systems Ltd", "Leeds")
	betaSponsor.CompanyNumber = "15550002"

	enrichOpts := func(store state.Store, resolver *fakeResolver, contacts *fakeContacts, now time.Time) Options {
		return Options{
			Store:    store,
			Resolver: resolver,
			Verifier: &fakeVerifier{verified: map[string]bool{"https://alpha.example/": true}},
			Contacts: contacts,
			Triage:   &fakeTriage{},
			Now:      func() time.Time { return now },
		}
	}
	firstRun := func(t *testing.T, store state.Store, dryRun bool) {
		t.Helper()
		opts := enrichOpts(store, &fakeResolver{}, &fakeContacts{info: types.ContactInfo{Emails: []string{"hr@alpha.example"}}}, runTime)
		opts.Sources = []sources.Adapter{&sources.Static{From: types.SourceCompaniesHouse, Records: []types.RegistryRecord{alphaCH, betaCH}}}
		opts.DryRun = dryRun
		_, err := Run(context.Background(), opts)
		require.NoError(t, err)
	}
	secondRun := func(t *testing.T, store state.Store, now time.Time) (*Result, *fakeResolver, *fakeContacts) {
		t.Helper()
		resolver, contacts := &fakeResolver{}, &fakeContacts{info: types.ContactInfo{Emails: []string{"new@alpha.example"}}}
		opts := enrichOpts(store, resolver, contacts, now)
		opts.Sources = []sources.Adapter{&sources.Static{From: types.SourceSponsorRegister, Records: []types.RegistryRecord{alphaSponsor, betaSponsor}}}
		res, err := Run(context.Background(), opts)
		require.NoError(t, err)
		require.Len(t, res.Leads, 2)
		return res, resolver, contacts
	}
	byNumber := func(leads []types.ScoredLead) map[string]types.ScoredLead {
		out := map[string]types.ScoredLead{}
		for _, l := range leads {
			out[l.Record.CompanyNumber] = l
		}
		return out
	}

	t.Run("fresh result is reused", func(t *testing.T) {
		store := baselinedStore(t)
		firstRun(t, store, false)

		res, resolver, contacts := secondRun(t, store, runTime.AddDate(0, 0, 7))
		assert.Equal(t, 0, resolver.callCount(), "no search budget spent on cached companies")
		assert.Equal(t, 0, contacts.callCount())

		leads := byNumber(res.Leads)
		alpha := leads["15550001"]
		require.NotNil(t, alpha.Match)
		assert.Equal(t, "https://alpha.example/", alpha.Website())
		require.NotNil(t, alpha.Contact)
		assert.Equal(t, []string{"hr@alpha.example"}, alpha.Contact.Emails)
		assert.Contains(t, alpha.Notes, noteCached)
		require.NotNil(t, alpha.Triage, "cached leads are still triaged")
		require.NoError(t, alpha.CheckInvariants())

		beta := leads["15550002"]
		assert.Nil(t, beta.Match)
		assert.Nil(t, beta.Contact)
		assert.Contains(t, beta.Notes, noteCached)
		assert.Contains(t, beta.Notes, noteNoMatch)

		assert.Equal(t, 2, res.Summary.Cached)
		assert.Equal(t, 0, res.Summary.Searched)
		assert.Equal(t, 1, res.Summary.Contacts)
	})

	t.Run("stale result is refreshed", func(t *testing.T) {
		store := baselinedStore(t)
		firstRun(t, store, false)

		later := runTime.Add(DefaultEnrichCacheTTL + time.Hour)
		res, resolver, contacts := secondRun(t, store, later)
		assert.Equal(t, 2, resolver.callCount())
		assert.Equal(t, 1, contacts.callCount())
		assert.Equal(t, 0, res.Summary.Cached)

		rec, ok, err := store.Company(context.Background(), "15550001")
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, rec.EnrichedAt.Equal(later), "refreshed result replaces the stale one")
		require.NotNil(t, rec.Contact)
		assert.Equal(t, []string{"new@alpha.example"}, rec.Contact.Emails)
	})

	t.Run("dry run caches nothing", func(t *testing.T) {
		store := baselinedStore(t)
		firstRun(t, store, true)

		_, ok, err := store.Company(context.Background(), "15550001")
		require.NoError(t, err)
		assert.False(t, ok)

		_, resolver, _ := secondRun(t, store, runTime)
		assert.Equal(t, 2, resolver.callCount())
	})
}

func TestRun_TriageFailureIsCounted(t *testing.T) {
	res, err := Run(context.Background(), Options{
		Sources: []sources.Adapter{&sources.Static{From: types.SourceCompaniesHouse, Records: []types.RegistryRecord{
			chRecord("15550001", "Alpha", 3),
		}}},
		Store:    baselinedStore(t),
		Resolver: &fakeResolver{},
		Verifier: &fakeVerifier{verified: map[string]bool{"https://alpha.example/": true}},
		Triage:   &fakeTriage{err: errors.New("schema")},
		Now:      fixedNow,
	})
	require.NoError(t, err)
	require.Len(t, res.Leads, 1)
	assert.NotNil(t, res.Leads[0].Match)
	assert.Nil(t, res.Leads[0].Triage)
	assert.Equal(t, 1, res.Summary.TriageFailed)
}

func TestRun_MaxProfilesDefersRemainder(t *testing.T) {
	ctx := context.Background()
	store := baselinedStore(t)
	preparer := &fakePreparer{}
	recs := []types.RegistryRecord{
		chRecord("15550001", "Alpha", 3),
		chRecord("15550002", "Beta", 3),
		chRecord("15550003", "Gamma", 3),
	}
	opts := Options{
		Sources:     []sources.Adapter{&sources.Static{From: types.SourceCompaniesHouse, Records: recs}},
		Preparers:   map[types.Source]sources.Preparer{types.SourceCompaniesHouse: preparer},
		Store:       store,
		MaxProfiles: 2,
		Now:         fixedNow,
	}

	first, err := Run(ctx, opts)
	require.NoError(t, err)
	assert.Len(t, first.Leads, 2)
	assert.Equal(t, 1, first.Summary.Deferred)
	_, seen := store.Seen("CH::15550003")
	assert.False(t, seen)

	second, err := Run(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, []types.SeenKey{"CH::15550003"}, keys(second.Leads))
	assert.Equal(t, 3, preparer.callCount())
}

func TestRun_PreparerDropAndFailure(t *testing.T) {
	ctx := context.Background()
	store := baselinedStore(t)
	preparer := &fakePreparer{
		drop: map[string]bool{"15550002": true},
		fail: map[string]bool{"15550003": true},
	}
	res, err := Run(ctx, Options{
		Sources: []sources.Adapter{&sources.Static{From: types.SourceCompaniesHouse, Records: []types.RegistryRecord{
			chRecord("15550001", "Alpha", 3),
			chRecord("15550002", "Beta", 3),
			chRecord("15550003", "Gamma", 3),
		}}},
		Preparers: map[types.Source]sources.Preparer{types.SourceCompaniesHouse: preparer},
		Store:     store,
		Now:       fixedNow,
	})
	require.NoError(t, err)
	assert.Equal(t, []types.SeenKey{"CH::15550001"}, keys(res.Leads))
	assert.Equal(t, 1, res.Summary.Dropped)
	assert.Equal(t, 1, res.Summary.Deferred)

	_, dropped := store.Seen("CH::15550002")
	_, failed := store.Seen("CH::15550003")
	assert.True(t, dropped, "non-overseas record is still marked seen")
	assert.False(t, failed, "failed preparation is retried next run")
}

func TestRun_CapMarksTruncatedSeen(t *testing.T) {
	store := baselinedStore(t)
	res, err := Run(context.Background(), Options{
		Sources: []sources.Adapter{&sources.Static{From: types.SourceCompaniesHouse, Records: []types.RegistryRecord{
			chRecord("15550001", "Alpha", 45), // 31-60d
			chRecord("15550002", "Beta", 3),   // within 14d
			chRecord("15550003", "Gamma", 20), // 15-30d
			chRecord("15550004", "Delta", 3),
		}}},
		Store:    store,
		MaxLeads: 2,
		Now:      fixedNow,
	})
	require.NoError(t, err)
	assert.Equal(t, []types.SeenKey{"CH::15550002", "CH::15550004"}, keys(res.Leads))
	assert.Equal(t, 2, res.Summary.Emitted)

	for _, k := range []types.SeenKey{"CH::15550001", "CH::15550002", "CH::15550003", "CH::15550004"} {
		_, ok := store.Seen(k)
		assert.True(t, ok, "%s should be seen", k)
	}
}

func TestRun_DryRunLeavesStoreUntouched(t *testing.T) {
	store := baselinedStore(t)
	var progress bytes.Buffer
	res, err := Run(context.Background(), Options{
		Sources: []sources.Adapter{&sources.Static{From: types.SourceCompaniesHouse, Records: []types.RegistryRecord{
			chRecord("15550001", "Alpha", 3),
		}}},
		Store:   store,
		DryRun:  true,
		Printer: observability.NewPrinter(&progress),
		Now:     fixedNow,
	})
	require.NoError(t, err)
	assert.Len(t, res.Leads, 1)
	assert.True(t, res.Summary.DryRun)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.SeenKeys)
	assert.Zero(t, stats.Runs)

	assert.Contains(t, progress.String(), "Step 1/5: Fetching registry sources")
	assert.NotContains(t, progress.String(), "Committing")
}

func TestRun_TimeoutStillEmits(t *testing.T) {
	res, err := Run(context.Background(), Options{
		Sources: []sources.Adapter{&sources.Static{From: types.SourceCompaniesHouse, Records: []types.RegistryRecord{
			chRecord("15550001", "Alpha", 3),
			chRecord("15550002", "Beta", 3),
		}}},
		Store:      baselinedStore(t),
		Resolver:   &fakeResolver{block: true},
		Verifier:   &fakeVerifier{},
		RunTimeout: 20 * time.Millisecond,
		Now:        fixedNow,
	})
	require.NoError(t, err)
	assert.True(t, res.Summary.TimedOut)
	assert.Len(t, res.Leads, 2)
	for _, l := range res.Leads {
		assert.Nil(t, l.Match)
	}
}

func TestRun_CommitFailureIsFatal(t *testing.T) {
	store := &failingCommitStore{Memory: baselinedStore(t)}
	res, err := Run(context.Background(), Options{
		Sources: []sources.Adapter{&sources.Static{From: types.SourceCompaniesHouse, Records: []types.RegistryRecord{
			chRecord("15550001", "Alpha", 3),
		}}},
		Store: store,
		Now:   fixedNow,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to commit state")
	assert.Nil(t, res)
}

func TestSummary_Fields(t *testing.T) {
	s := newSummary("run-1", runTime)
	s.Fetched[types.SourceSponsorRegister] = 10
	s.Malformed[types.SourceSponsorRegister] = 1
	s.Degraded = []types.Source{types.SourceCompaniesHouse}
	s.TimedOut = true

	labels := map[string]string{}
	for _, f := range s.Fields() {
		labels[f.Label] = f.Value
	}
	assert.Equal(t, "10 (malformed 1, filtered 0)", labels["Fetched sponsor_register"])
	assert.Equal(t, "companies_house", labels["Unavailable sources"])
	assert.Contains(t, labels, "Timed out")
	assert.NotContains(t, labels, "Triaged")
}

// Fakes

type counter struct {
	mu sync.Mutex
	n  int
}

func (c *counter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *counter) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

type fakePreparer struct {
	counter
	drop map[string]bool
	fail map[string]bool
}

func (f *fakePreparer) Prepare(_ context.Context, rec types.RegistryRecord) (types.RegistryRecord, bool, error) {
	f.inc()
	if f.fail[rec.CompanyNumber] {
		return rec, false, errors.New("profile unavailable")
	}
	return rec, !f.drop[rec.CompanyNumber], nil
}

// fakeResolver proposes https://<first name word>.example/ for every record.
type fakeResolver struct {
	counter
	block bool
}

func (f *fakeResolver) Resolve(ctx context.Context, rec *types.RegistryRecord) ([]types.CandidateWebsite, error) {
	f.inc()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	host := lowerFirstWord(rec.Name)
	return []types.CandidateWebsite{{URL: "https://" + host + ".example/", Confidence: 0.8}}, nil
}

func (f *fakeResolver) Enabled() bool { return true }

func lowerFirstWord(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c == ' ' {
			b = b[:i]
			break
		}
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}

type fakeVerifier struct {
	verified map[string]bool
}

func (f *fakeVerifier) Verify(_ context.Context, cand types.CandidateWebsite, _ *types.RegistryRecord) (*types.VerifiedMatch, verify.Outcome, error) {
	if f.verified[cand.URL] {
		return &types.VerifiedMatch{Candidate: cand, Score: 9, Fields: []string{verify.FieldCompanyNumber, verify.FieldPostcode}}, verify.OutcomeVerified, nil
	}
	return nil, verify.OutcomeInconclusive, nil
}

type fakeContacts struct {
	counter
	info types.ContactInfo
}

func (f *fakeContacts) Extract(_ context.Context, match *types.VerifiedMatch) (types.ContactInfo, error) {
	f.inc()
	if match == nil {
		return types.ContactInfo{}, errors.New("extract called without a verified match")
	}
	return f.info, nil
}

type fakeTriage struct {
	err error
}

func (f *fakeTriage) Triage(_ context.Context, lead *types.ScoredLead) (*types.TriageNote, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &types.TriageNote{Bucket: "global_mobility", Score: 70, Summary: lead.Record.Name}, nil
}

func (f *fakeTriage) Enabled() bool { return true }

type failingCommitStore struct {
	*state.Memory
}

func (s *failingCommitStore) Commit(context.Context) error {
	return errors.New("disk full")
}
