package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonathan/sponsor-leads/internal/state"
	"github.com/jonathan/sponsor-leads/internal/types"
)

// SponsorMapping returns the committed mapping for a sponsor row key.
func (s *Store) SponsorMapping(ctx context.Context, key types.SeenKey) (state.SponsorMapping, bool, error) {
	var (
		m                   state.SponsorMapping
		incorporated, stamp string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT company_number, match_score, postcode, company_status, country, incorporated_on, matched_at
		 FROM sponsor_company_map WHERE row_key = ?`,
		string(key),
	).Scan(&m.CompanyNumber, &m.Score, &m.Postcode, &m.CompanyStatus, &m.Country, &incorporated, &stamp)
	if errors.Is(err, sql.ErrNoRows) {
		return m, false, nil
	}
	if err != nil {
		return m, false, state.Corrupt("read sponsor mapping", err)
	}
	m.IncorporatedOn = parseTime(incorporated)
	m.MatchedAt = parseTime(stamp)
	return m, true, nil
}

// SetSponsorMapping buffers a mapping until Commit.
func (s *Store) SetSponsorMapping(_ context.Context, key types.SeenKey, m state.SponsorMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.Mappings[key] = m
	return nil
}

// Company returns the committed enrichment record for a company number.
func (s *Store) Company(ctx context.Context, companyNumber string) (state.CompanyRecord, bool, error) {
	var (
		rec                    state.CompanyRecord
		fields, contact, stamp string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT company_number, name, website, final_url, title, match_score, match_fields, contact, enriched_at
		 FROM companies WHERE company_number = ?`,
		companyNumber,
	).Scan(&rec.CompanyNumber, &rec.Name, &rec.Website, &rec.FinalURL, &rec.Title, &rec.MatchScore, &fields, &contact, &stamp)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, state.Corrupt("read company", err)
	}
	if err := json.Unmarshal([]byte(fields), &rec.MatchFields); err != nil {
		return rec, false, state.Corrupt("decode match fields", err)
	}
	if contact != "" {
		rec.Contact = &types.ContactInfo{}
		if err := json.Unmarshal([]byte(contact), rec.Contact); err != nil {
			return rec, false, state.Corrupt("decode contact", err)
		}
	}
	rec.EnrichedAt = parseTime(stamp)
	return rec, true, nil
}

// PutCompany buffers an enrichment record until Commit.
func (s *Store) PutCompany(_ context.Context, rec state.CompanyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.Companies[rec.CompanyNumber] = rec
	return nil
}

// writeCompanyCache flushes buffered mappings and company records inside tx.
func writeCompanyCache(ctx context.Context, tx *sql.Tx, p *state.Pending) error {
	for key, m := range p.Mappings {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sponsor_company_map
			   (row_key, company_number, match_score, postcode, company_status, country, incorporated_on, matched_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (row_key) DO UPDATE SET
			   company_number = excluded.company_number, match_score = excluded.match_score,
			   postcode = excluded.postcode, company_status = excluded.company_status,
			   country = excluded.country, incorporated_on = excluded.incorporated_on,
			   matched_at = excluded.matched_at`,
			string(key), m.CompanyNumber, m.Score, m.Postcode, m.CompanyStatus, m.Country,
			formatTime(m.IncorporatedOn), formatTime(m.MatchedAt),
		); err != nil {
			return fmt.Errorf("failed to write sponsor mapping %s: %w", key, err)
		}
	}

	for number, rec := range p.Companies {
		fields, err := json.Marshal(nonNil(rec.MatchFields))
		if err != nil {
			return fmt.Errorf("failed to encode match fields for %s: %w", number, err)
		}
		contact := ""
		if rec.Contact != nil {
			b, err := json.Marshal(rec.Contact)
			if err != nil {
				return fmt.Errorf("failed to encode contact for %s: %w", number, err)
			}
			contact = string(b)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO companies
			   (company_number, name, website, final_url, title, match_score, match_fields, contact, enriched_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (company_number) DO UPDATE SET
			   name = excluded.name, website = excluded.website, final_url = excluded.final_url,
			   title = excluded.title, match_score = excluded.match_score,
			   match_fields = excluded.match_fields, contact = excluded.contact,
			   enriched_at = excluded.enriched_at`,
			number, rec.Name, rec.Website, rec.FinalURL, rec.Title, rec.MatchScore,
			string(fields), contact, formatTime(rec.EnrichedAt),
		); err != nil {
			return fmt.Errorf("failed to write company %s: %w", number, err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
