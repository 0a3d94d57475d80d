package companieshouse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/sponsor-leads/internal/names"
	"github.com/jonathan/sponsor-leads/internal/sources"
	"github.com/jonathan/sponsor-leads/internal/types"
)

// Config bounds what one run pulls from the API.
type Config struct {
	LookbackDays int
	// PageSize is the advanced search page size.
	PageSize int
	// MaxResults caps the incorporations pulled per run.
	MaxResults int
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{LookbackDays: 30, PageSize: 100, MaxResults: 800}
}

// API is the subset of Client used by the adapter and matcher.
type API interface {
	AdvancedSearch(ctx context.Context, from, to time.Time, startIndex, size int) ([]CompanyItem, error)
	Profile(ctx context.Context, number string) (*CompanyItem, error)
	Officers(ctx context.Context, number string) ([]OfficerItem, error)
	PSCs(ctx context.Context, number string) ([]PSCItem, error)
	Search(ctx context.Context, query string, perPage int) ([]SearchItem, error)
}

// Adapter pulls recent incorporations and hydrates novel ones with officers
// and PSCs.
type Adapter struct {
	api    API
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// NewAdapter creates an Adapter.
func NewAdapter(api API, cfg Config, logger *zap.Logger) *Adapter {
	def := DefaultConfig()
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = def.LookbackDays
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = def.MaxResults
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{api: api, cfg: cfg, logger: logger, now: time.Now}
}

// Source implements sources.Adapter.
func (a *Adapter) Source() types.Source { return types.SourceCompaniesHouse }

// Fetch pages through incorporations in the look-back window. Records carry
// registry data only; Prepare adds officers and PSCs.
func (a *Adapter) Fetch(ctx context.Context) (*sources.Batch, error) {
	now := a.now().UTC()
	to := now
	from := now.AddDate(0, 0, -a.cfg.LookbackDays)

	batch := &sources.Batch{
		Source:    types.SourceCompaniesHouse,
		FetchedAt: now,
		Origin:    fmt.Sprintf("advanced-search %s..%s", from.Format(time.DateOnly), to.Format(time.DateOnly)),
	}

	start := 0
	for start < a.cfg.MaxResults {
		size := a.cfg.PageSize
		if remaining := a.cfg.MaxResults - start; remaining < size {
			size = remaining
		}
		items, err := a.api.AdvancedSearch(ctx, from, to, start, size)
		if err != nil {
			if len(batch.Records) == 0 {
				return nil, &sources.UnavailableError{Source: types.SourceCompaniesHouse, Message: "advanced search failed", Cause: err}
			}
			// Keep what was paged so far.
			a.logger.Warn("advanced search stopped early", zap.Int("start_index", start), zap.Error(err))
			break
		}

		for i, it := range items {
			rec := RecordFromItem(it, now)
			if err := rec.Validate(); err != nil {
				var me *types.MalformedRecordError
				if errors.As(err, &me) {
					me.Row = start + i + 1
				}
				batch.Malformed++
				a.logger.Debug("dropping malformed company", zap.String("company_number", it.CompanyNumber), zap.Error(err))
				continue
			}
			batch.Records = append(batch.Records, rec)
		}

		if len(items) < size {
			break
		}
		start += len(items)
	}

	a.logger.Info("companies house incorporations fetched",
		zap.String("window", batch.Origin),
		zap.Int("records", len(batch.Records)),
		zap.Int("malformed", batch.Malformed))
	return batch, nil
}

// RecordFromItem normalizes an API company into a RegistryRecord. The source
// timestamp is the incorporation date when known.
func RecordFromItem(it CompanyItem, fetchedAt time.Time) types.RegistryRecord {
	addr := it.RegisteredOfficeAddress
	rec := types.RegistryRecord{
		Source:          types.SourceCompaniesHouse,
		Name:            names.CleanDisplay(it.CompanyName),
		CompanyNumber:   strings.ToUpper(strings.TrimSpace(it.CompanyNumber)),
		Town:            townOf(addr),
		Address:         FlattenAddress(addr),
		Postcode:        types.NormalizeSpaces(addr.PostalCode),
		Country:         types.NormalizeSpaces(addr.Country),
		CompanyStatus:   it.CompanyStatus,
		CompanyType:     firstNonEmpty(it.CompanyType, it.Type),
		SICCodes:        it.SICCodes,
		SourceTimestamp: fetchedAt,
	}
	if t, err := parseDate(it.DateOfCreation); err == nil {
		rec.IncorporatedOn = t
		rec.SourceTimestamp = t
	}
	return rec
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(time.DateOnly, strings.TrimSpace(s))
}

// FlattenAddress joins the non-empty address parts.
func FlattenAddress(a Address) string {
	var parts []string
	for _, p := range []string{a.AddressLine1, a.AddressLine2, a.Locality, a.Region, a.PostalCode, a.Country} {
		if p = types.NormalizeSpaces(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

func townOf(a Address) string {
	return types.NormalizeSpaces(firstNonEmpty(a.Locality, a.PostTown))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Prepare hydrates a Companies House record with officers and PSCs and keeps
// it only when it is overseas-linked. Sponsor records pass through untouched.
func (a *Adapter) Prepare(ctx context.Context, rec types.RegistryRecord) (types.RegistryRecord, bool, error) {
	if rec.Source != types.SourceCompaniesHouse {
		return rec, true, nil
	}

	if rec.Address == "" || len(rec.SICCodes) == 0 {
		if p, err := a.api.Profile(ctx, rec.CompanyNumber); err == nil {
			fromProfile := RecordFromItem(*p, rec.SourceTimestamp)
			if rec.Address == "" {
				rec.Address, rec.Postcode, rec.Town, rec.Country = fromProfile.Address, fromProfile.Postcode, fromProfile.Town, fromProfile.Country
			}
			if len(rec.SICCodes) == 0 {
				rec.SICCodes = fromProfile.SICCodes
			}
		} else {
			a.logger.Debug("profile lookup failed", zap.String("company_number", rec.CompanyNumber), zap.Error(err))
		}
	}

	officers, err := a.api.Officers(ctx, rec.CompanyNumber)
	if err != nil {
		return rec, false, err
	}
	pscs, err := a.api.PSCs(ctx, rec.CompanyNumber)
	if err != nil {
		return rec, false, err
	}

	rec.Officers = make([]types.Officer, 0, len(officers))
	for _, o := range officers {
		rec.Officers = append(rec.Officers, types.Officer{
			Name:               names.CleanDisplay(o.Name),
			Role:               o.OfficerRole,
			Nationality:        types.NormalizeSpaces(o.Nationality),
			CountryOfResidence: types.NormalizeSpaces(o.CountryOfResidence),
			AddressCountry:     types.NormalizeSpaces(o.Address.Country),
		})
	}
	rec.PSCs = make([]types.PSC, 0, len(pscs))
	for _, p := range pscs {
		rec.PSCs = append(rec.PSCs, types.PSC{
			Name:    names.CleanDisplay(p.Name),
			Kind:    p.Kind,
			Country: types.NormalizeSpaces(firstNonEmpty(p.Address.Country, p.Identification.CountryRegistered)),
		})
	}

	return rec, OverseasLinked(&rec), nil
}

// OverseasLinked reports whether a company shows at least one overseas
// signal: a foreign corporate PSC, an officer resident abroad, an overseas
// national with a foreign address, or a registered office outside the UK.
func OverseasLinked(r *types.RegistryRecord) bool {
	for _, p := range r.PSCs {
		if p.IsCorporate() && p.Country != "" && !types.IsUKCountry(p.Country) {
			return true
		}
	}
	for _, o := range r.Officers {
		if o.CountryOfResidence != "" && !types.IsUKCountry(o.CountryOfResidence) {
			return true
		}
		if types.IsOverseasNationality(o.Nationality) && o.AddressCountry != "" && !types.IsUKCountry(o.AddressCountry) {
			return true
		}
	}
	return r.Country != "" && !types.IsUKCountry(r.Country)
}
