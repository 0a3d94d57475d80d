package state

import (
	"context"
	"time"

	"github.com/jonathan/sponsor-leads/internal/types"
)

// CompanyCache remembers work that does not need repeating when a company
// comes back under a new SeenKey. Writes are buffered until Commit like every
// other store write; reads see committed data only.
type CompanyCache interface {
	// SponsorMapping returns the company matched to a sponsor register row.
	SponsorMapping(ctx context.Context, key types.SeenKey) (SponsorMapping, bool, error)
	SetSponsorMapping(ctx context.Context, key types.SeenKey, m SponsorMapping) error
	// Company returns the last enrichment result for a company number.
	Company(ctx context.Context, companyNumber string) (CompanyRecord, bool, error)
	PutCompany(ctx context.Context, rec CompanyRecord) error
}

// SponsorMapping is the registered company a sponsor register row was
// matched to, with the profile fields the match supplied.
type SponsorMapping struct {
	CompanyNumber  string
	Score          int
	Postcode       string
	CompanyStatus  string
	Country        string
	IncorporatedOn time.Time
	MatchedAt      time.Time
}

// CompanyRecord is the cached enrichment result for one company number.
type CompanyRecord struct {
	CompanyNumber string
	Name          string
	// Website is empty when the last search verified no candidate.
	Website     string
	FinalURL    string
	Title       string
	MatchScore  int
	MatchFields []string
	Contact     *types.ContactInfo
	EnrichedAt  time.Time
}

// IsFresh reports whether the record was enriched less than maxAge before now.
func (c CompanyRecord) IsFresh(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 || c.EnrichedAt.IsZero() {
		return false
	}
	return now.Sub(c.EnrichedAt) < maxAge
}

// Match rebuilds the verified match, or nil when none was found.
func (c CompanyRecord) Match() *types.VerifiedMatch {
	if c.Website == "" {
		return nil
	}
	return &types.VerifiedMatch{
		Candidate: types.CandidateWebsite{URL: c.Website, Confidence: 1, Title: c.Title},
		Score:     c.MatchScore,
		Fields:    append([]string(nil), c.MatchFields...),
		FinalURL:  c.FinalURL,
	}
}

// CompanyRecordFor captures the enrichment outcome of lead.
func CompanyRecordFor(lead *types.ScoredLead, enrichedAt time.Time) CompanyRecord {
	rec := CompanyRecord{
		CompanyNumber: lead.Record.CompanyNumber,
		Name:          lead.Record.Name,
		EnrichedAt:    enrichedAt,
	}
	if m := lead.Match; m != nil {
		rec.Website = m.Candidate.URL
		rec.FinalURL = m.FinalURL
		rec.Title = m.Candidate.Title
		rec.MatchScore = m.Score
		rec.MatchFields = append([]string(nil), m.Fields...)
		if lead.Contact != nil {
			contact := *lead.Contact
			rec.Contact = &contact
		}
	}
	return rec
}
