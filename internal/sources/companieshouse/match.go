package companieshouse

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/sponsor-leads/internal/names"
	"github.com/jonathan/sponsor-leads/internal/state"
	"github.com/jonathan/sponsor-leads/internal/types"
)

// DefaultMatchThreshold is the minimum match score for a sponsor row to adopt
// a company number.
const DefaultMatchThreshold = 72

const (
	townBonus   = 8
	activeBonus = 3
	maxQueries  = 4
	perPage     = 12
)

// Match is the best registry hit for a sponsor name.
type Match struct {
	CompanyNumber string
	Title         string
	Score         int
	Item          SearchItem
}

// MappingCache stores sponsor row matches between runs.
type MappingCache interface {
	SponsorMapping(ctx context.Context, key types.SeenKey) (state.SponsorMapping, bool, error)
	SetSponsorMapping(ctx context.Context, key types.SeenKey, m state.SponsorMapping) error
}

// Matcher finds the registered company behind a sponsor register row.
type Matcher struct {
	api       API
	threshold int
	logger    *zap.Logger
	cache     MappingCache
	now       func() time.Time
}

// NewMatcher creates a Matcher. threshold <= 0 uses DefaultMatchThreshold.
func NewMatcher(api API, threshold int, logger *zap.Logger) *Matcher {
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{api: api, threshold: threshold, logger: logger, now: time.Now}
}

// WithCache makes Prepare reuse earlier matches for the same sponsor row and
// remember new ones.
func (m *Matcher) WithCache(cache MappingCache) *Matcher {
	m.cache = cache
	return m
}

// Best searches up to four name variants (plus a town-qualified query) and
// scores each hit by token-set similarity, a town bonus and an active bonus.
func (m *Matcher) Best(ctx context.Context, name, town string) (Match, error) {
	queries := names.Variants(name)
	if town != "" && len(queries) > 0 {
		queries = append(queries, queries[0]+" "+town)
	}
	if len(queries) > maxQueries {
		queries = queries[:maxQueries]
	}

	townU := strings.ToUpper(types.NormalizeSpaces(town))
	seen := map[string]bool{}
	var best Match
	for _, q := range queries {
		items, err := m.api.Search(ctx, q, perPage)
		if err != nil {
			return best, err
		}
		for _, it := range items {
			if it.Title == "" || it.CompanyNumber == "" || seen[it.CompanyNumber] {
				continue
			}
			seen[it.CompanyNumber] = true

			score := names.TokenSetRatio(name, it.Title)
			if townU != "" && strings.Contains(strings.ToUpper(it.AddressSnippet), townU) {
				score += townBonus
			}
			if strings.EqualFold(it.CompanyStatus, "active") {
				score += activeBonus
			}
			if score > 100 {
				score = 100
			}
			if score > best.Score {
				best = Match{CompanyNumber: it.CompanyNumber, Title: it.Title, Score: score, Item: it}
			}
		}
	}
	return best, nil
}

// Prepare gives a sponsor record the matched company number, postcode and
// incorporation date. The record's SeenKey is unchanged because sponsor keys
// do not include the company number. Unmatched rows are kept as they are.
func (m *Matcher) Prepare(ctx context.Context, rec types.RegistryRecord) (types.RegistryRecord, bool, error) {
	if rec.Source != types.SourceSponsorRegister || rec.CompanyNumber != "" {
		return rec, true, nil
	}
	key := rec.Key()

	if m.cache != nil {
		cached, ok, err := m.cache.SponsorMapping(ctx, key)
		if err != nil {
			m.logger.Warn("sponsor mapping lookup failed", zap.String("key", string(key)), zap.Error(err))
		} else if ok && cached.CompanyNumber != "" {
			m.logger.Debug("sponsor mapping reused", zap.String("name", rec.Name), zap.String("company_number", cached.CompanyNumber))
			return applyMapping(rec, cached), true, nil
		}
	}

	best, err := m.Best(ctx, rec.Name, rec.Town)
	if err != nil {
		m.logger.Debug("sponsor match failed", zap.String("name", rec.Name), zap.Error(err))
		return rec, true, nil
	}
	if best.Score < m.threshold {
		return rec, true, nil
	}

	mapping := state.SponsorMapping{
		CompanyNumber: strings.ToUpper(best.CompanyNumber),
		Score:         best.Score,
		CompanyStatus: best.Item.CompanyStatus,
		Postcode:      types.NormalizeSpaces(best.Item.Address.PostalCode),
		Country:       types.NormalizeSpaces(best.Item.Address.Country),
		MatchedAt:     m.now(),
	}
	if best.Item.DateOfCreation != "" {
		if t, err := parseDate(best.Item.DateOfCreation); err == nil {
			mapping.IncorporatedOn = t
		}
	}
	if m.cache != nil {
		if err := m.cache.SetSponsorMapping(ctx, key, mapping); err != nil {
			m.logger.Warn("failed to remember sponsor mapping", zap.String("key", string(key)), zap.Error(err))
		}
	}

	m.logger.Debug("sponsor matched", zap.String("name", rec.Name), zap.String("company_number", mapping.CompanyNumber), zap.Int("score", best.Score))
	return applyMapping(rec, mapping), true, nil
}

func applyMapping(rec types.RegistryRecord, m state.SponsorMapping) types.RegistryRecord {
	rec.CompanyNumber = m.CompanyNumber
	rec.CompanyStatus = m.CompanyStatus
	if m.Postcode != "" {
		rec.Postcode = m.Postcode
	}
	if m.Country != "" {
		rec.Country = m.Country
	}
	if rec.IncorporatedOn.IsZero() && !m.IncorporatedOn.IsZero() {
		rec.IncorporatedOn = m.IncorporatedOn
	}
	return rec
}
