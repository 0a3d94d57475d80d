package companieshouse

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/sponsor-leads/internal/fetch"
	"github.com/jonathan/sponsor-leads/internal/sources"
	"github.com/jonathan/sponsor-leads/internal/state"
	"github.com/jonathan/sponsor-leads/internal/types"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := DefaultClientConfig("secret-key")
	cfg.BaseURL = server.URL
	cfg.RatePerSecond = 1000
	cfg.Burst = 100
	cfg.Retry = fetch.RetryPolicy{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
	c, err := NewClient(cfg, nil)
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient(ClientConfig{}, nil)
	assert.Error(t, err)
}

func TestClient_BasicAuthAndProfile(t *testing.T) {
	wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("secret-key:"))
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, wantAuth, r.Header.Get("Authorization"))
		assert.Equal(t, "/company/12345678", r.URL.Path)
		_, _ = w.Write([]byte(`{"company_number":"12345678","company_name":"ACME UK LTD","type":"ltd",
			"registered_office_address":{"address_line_1":"1 High St","locality":"London","postal_code":"EC1A 1BB"},
			"sic_codes":["62012"],"date_of_creation":"2026-02-20"}`))
	}))

	p, err := c.Profile(context.Background(), "12345678")
	require.NoError(t, err)
	assert.Equal(t, "ACME UK LTD", p.CompanyName)
	assert.Equal(t, "EC1A 1BB", p.RegisteredOfficeAddress.PostalCode)
}

func TestClient_PSCNotFoundIsEmpty(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	pscs, err := c.PSCs(context.Background(), "12345678")
	require.NoError(t, err)
	assert.Empty(t, pscs)
}

func TestClient_RetriesRateLimited(t *testing.T) {
	var calls int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"items":[{"name":"DOE, Jane","officer_role":"director","country_of_residence":"Brazil"},
			{"name":"OLD, Bob","officer_role":"director","resigned_on":"2026-01-01"}]}`))
	}))

	officers, err := c.Officers(context.Background(), "12345678")
	require.NoError(t, err)
	require.Len(t, officers, 1)
	assert.Equal(t, "Brazil", officers[0].CountryOfResidence)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_AdvancedSearchQuery(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/advanced-search/companies", r.URL.Path)
		assert.Equal(t, "2026-02-01", q.Get("incorporated_from"))
		assert.Equal(t, "2026-03-03", q.Get("incorporated_to"))
		assert.Equal(t, "100", q.Get("size"))
		assert.Equal(t, "200", q.Get("start_index"))
		_, _ = w.Write([]byte(`{"hits":1,"items":[{"company_number":"1"}]}`))
	}))

	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	items, err := c.AdvancedSearch(context.Background(), from, to, 200, 100)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

// fakeAPI serves canned responses for adapter and matcher tests.
type fakeAPI struct {
	companies []CompanyItem
	officers  map[string][]OfficerItem
	pscs      map[string][]PSCItem
	search    map[string][]SearchItem
	searchErr error
	pages     []int
}

func (f *fakeAPI) AdvancedSearch(_ context.Context, _, _ time.Time, start, size int) ([]CompanyItem, error) {
	f.pages = append(f.pages, start)
	if start >= len(f.companies) {
		return nil, nil
	}
	end := start + size
	if end > len(f.companies) {
		end = len(f.companies)
	}
	return f.companies[start:end], nil
}

func (f *fakeAPI) Profile(_ context.Context, number string) (*CompanyItem, error) {
	for _, c := range f.companies {
		if c.CompanyNumber == number {
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeAPI) Officers(_ context.Context, number string) ([]OfficerItem, error) {
	return f.officers[number], nil
}

func (f *fakeAPI) PSCs(_ context.Context, number string) ([]PSCItem, error) {
	return f.pscs[number], nil
}

func (f *fakeAPI) Search(_ context.Context, q string, _ int) ([]SearchItem, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.search[q], nil
}

func company(number, name string) CompanyItem {
	return CompanyItem{
		CompanyNumber:  number,
		CompanyName:    name,
		CompanyStatus:  "active",
		DateOfCreation: "2026-02-20",
		SICCodes:       []string{"62012"},
		RegisteredOfficeAddress: Address{
			AddressLine1: "1 High St", Locality: "London", PostalCode: "EC1A 1BB",
		},
	}
}

func TestAdapter_FetchPaginatesAndCaps(t *testing.T) {
	api := &fakeAPI{}
	for i := 0; i < 7; i++ {
		api.companies = append(api.companies, company(string(rune('A'+i))+"1234567", "Company Ltd"))
	}
	api.companies = append(api.companies, CompanyItem{CompanyName: "No Number Ltd"})

	a := NewAdapter(api, Config{LookbackDays: 30, PageSize: 3, MaxResults: 8}, nil)
	a.now = func() time.Time { return time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC) }

	batch, err := a.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 3, 6}, api.pages)
	assert.Len(t, batch.Records, 7)
	assert.Equal(t, 1, batch.Malformed)

	rec := batch.Records[0]
	assert.Equal(t, types.SourceCompaniesHouse, rec.Source)
	assert.Equal(t, "1 High St, London, EC1A 1BB", rec.Address)
	assert.Equal(t, "London", rec.Town)
	assert.Equal(t, time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC), rec.IncorporatedOn)
	assert.Equal(t, rec.IncorporatedOn, rec.SourceTimestamp)
}

type failingAPI struct{ fakeAPI }

func (f *failingAPI) AdvancedSearch(context.Context, time.Time, time.Time, int, int) ([]CompanyItem, error) {
	return nil, errors.New("connection refused")
}

func TestAdapter_FetchUnavailable(t *testing.T) {
	a := NewAdapter(&failingAPI{}, DefaultConfig(), nil)
	_, err := a.Fetch(context.Background())
	assert.ErrorIs(t, err, sources.ErrSourceUnavailable)
}

func TestAdapter_PrepareKeepsOverseasLinked(t *testing.T) {
	api := &fakeAPI{
		companies: []CompanyItem{company("11111111", "Brazil Tech UK Ltd"), company("22222222", "Local Bakery Ltd")},
		officers: map[string][]OfficerItem{
			"11111111": {{Name: "SILVA, Ana", Nationality: "Brazilian", CountryOfResidence: "Brazil"}},
			"22222222": {{Name: "SMITH, John", Nationality: "British", CountryOfResidence: "England"}},
		},
	}
	a := NewAdapter(api, DefaultConfig(), nil)
	fetchedAt := time.Now()

	overseas, keep, err := a.Prepare(context.Background(), RecordFromItem(api.companies[0], fetchedAt))
	require.NoError(t, err)
	assert.True(t, keep)
	require.Len(t, overseas.Officers, 1)
	assert.Equal(t, "Brazil", overseas.Officers[0].CountryOfResidence)

	_, keep, err = a.Prepare(context.Background(), RecordFromItem(api.companies[1], fetchedAt))
	require.NoError(t, err)
	assert.False(t, keep)
}

func TestOverseasLinked(t *testing.T) {
	tests := []struct {
		name string
		rec  types.RegistryRecord
		want bool
	}{
		{"foreign corporate psc", types.RegistryRecord{PSCs: []types.PSC{{Kind: "corporate-entity-person-with-significant-control", Country: "India"}}}, true},
		{"uk corporate psc", types.RegistryRecord{PSCs: []types.PSC{{Kind: "corporate-entity-person-with-significant-control", Country: "England"}}}, false},
		{"foreign individual psc", types.RegistryRecord{PSCs: []types.PSC{{Kind: "individual-person-with-significant-control", Country: "India"}}}, false},
		{"resident abroad", types.RegistryRecord{Officers: []types.Officer{{CountryOfResidence: "United States"}}}, true},
		{"nationality alone", types.RegistryRecord{Officers: []types.Officer{{Nationality: "Indian"}}}, false},
		{"nationality with foreign address", types.RegistryRecord{Officers: []types.Officer{{Nationality: "Indian", AddressCountry: "India"}}}, true},
		{"registered abroad", types.RegistryRecord{Country: "Germany"}, true},
		{"domestic", types.RegistryRecord{Country: "United Kingdom"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OverseasLinked(&tt.rec))
		})
	}
}

func TestMatcher_PrepareAdoptsBestMatch(t *testing.T) {
	api := &fakeAPI{search: map[string][]SearchItem{
		"Acme Widgets Ltd": {
			{Title: "ACME WIDGETS LIMITED", CompanyNumber: "01234567", CompanyStatus: "active",
				AddressSnippet: "1 High St, Leeds, LS1 1AA", Address: Address{PostalCode: "LS1 1AA"}, DateOfCreation: "2019-05-01"},
			{Title: "ACME HOLDINGS PLC", CompanyNumber: "07654321", CompanyStatus: "dissolved"},
		},
	}}
	m := NewMatcher(api, 0, nil)
	rec := types.RegistryRecord{Source: types.SourceSponsorRegister, Name: "Acme Widgets Ltd", Town: "Leeds", Route: "Skilled Worker"}
	keyBefore := rec.Key()

	out, keep, err := m.Prepare(context.Background(), rec)
	require.NoError(t, err)
	assert.True(t, keep)
	assert.Equal(t, "01234567", out.CompanyNumber)
	assert.Equal(t, "LS1 1AA", out.Postcode)
	assert.Equal(t, keyBefore, out.Key())
	assert.Empty(t, rec.CompanyNumber)
}

func TestMatcher_BelowThresholdKeepsRecord(t *testing.T) {
	api := &fakeAPI{search: map[string][]SearchItem{
		"Northern Bakery Ltd": {{Title: "QUANTUM SOFTWARE CONSULTING LTD", CompanyNumber: "1", CompanyStatus: "active"}},
	}}
	m := NewMatcher(api, 0, nil)
	rec := types.RegistryRecord{Source: types.SourceSponsorRegister, Name: "Northern Bakery Ltd", Route: "Skilled Worker"}

	out, keep, err := m.Prepare(context.Background(), rec)
	require.NoError(t, err)
	assert.True(t, keep)
	assert.Empty(t, out.CompanyNumber)
}

func TestMatcher_SearchErrorDoesNotDropRecord(t *testing.T) {
	m := NewMatcher(&fakeAPI{searchErr: errors.New("boom")}, 0, nil)
	rec := types.RegistryRecord{Source: types.SourceSponsorRegister, Name: "Acme Ltd", Route: "Skilled Worker"}

	out, keep, err := m.Prepare(context.Background(), rec)
	require.NoError(t, err)
	assert.True(t, keep)
	assert.Equal(t, rec, out)
}

func TestMatcher_RemembersAndReusesMapping(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemory()
	api := &fakeAPI{search: map[string][]SearchItem{
		"Acme Widgets Ltd": {
			{Title: "ACME WIDGETS LIMITED", CompanyNumber: "01234567", CompanyStatus: "active",
				AddressSnippet: "1 High St, Leeds, LS1 1AA", Address: Address{PostalCode: "LS1 1AA"}, DateOfCreation: "2019-05-01"},
		},
	}}
	rec := types.RegistryRecord{Source: types.SourceSponsorRegister, Name: "Acme Widgets Ltd", Town: "Leeds", Route: "Skilled Worker"}

	first, _, err := NewMatcher(api, 0, nil).WithCache(store).Prepare(ctx, rec)
	require.NoError(t, err)
	require.Equal(t, "01234567", first.CompanyNumber)
	require.NoError(t, store.Commit(ctx))

	// A later run cannot search, but the committed mapping still applies.
	offline := NewMatcher(&fakeAPI{searchErr: errors.New("quota")}, 0, nil).WithCache(store)
	second, keep, err := offline.Prepare(ctx, rec)
	require.NoError(t, err)
	assert.True(t, keep)
	assert.Equal(t, first.CompanyNumber, second.CompanyNumber)
	assert.Equal(t, "LS1 1AA", second.Postcode)
	assert.Equal(t, first.IncorporatedOn, second.IncorporatedOn)
	assert.Equal(t, rec.Key(), second.Key())
}

func TestMatcher_UnmatchedRowIsNotRemembered(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemory()
	api := &fakeAPI{search: map[string][]SearchItem{
		"Northern Bakery Ltd": {{Title: "QUANTUM SOFTWARE CONSULTING LTD", CompanyNumber: "1", CompanyStatus: "active"}},
	}}
	rec := types.RegistryRecord{Source: types.SourceSponsorRegister, Name: "Northern Bakery Ltd", Route: "Skilled Worker"}

	_, _, err := NewMatcher(api, 0, nil).WithCache(store).Prepare(ctx, rec)
	require.NoError(t, err)
	require.NoError(t, store.Commit(ctx))

	_, ok, err := store.SponsorMapping(ctx, rec.Key())
	require.NoError(t, err)
	assert.False(t, ok)
}
