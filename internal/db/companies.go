package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jonathan/sponsor-leads/internal/state"
	"github.com/jonathan/sponsor-leads/internal/types"
)

// -----------------------------------------------------------------------------
// Sponsor Mapping Methods
// -----------------------------------------------------------------------------

// SponsorMapping returns the committed company match for a sponsor row key.
func (db *DB) SponsorMapping(ctx context.Context, key types.SeenKey) (state.SponsorMapping, bool, error) {
	var (
		m            state.SponsorMapping
		incorporated *time.Time
	)
	err := db.pool.QueryRow(ctx,
		`SELECT company_number, match_score, postcode, company_status, country, incorporated_on, matched_at
		 FROM sponsor_company_map WHERE row_key = $1`,
		string(key),
	).Scan(&m.CompanyNumber, &m.Score, &m.Postcode, &m.CompanyStatus, &m.Country, &incorporated, &m.MatchedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return m, false, nil
		}
		return m, false, state.Corrupt("read sponsor mapping", err)
	}
	if incorporated != nil {
		m.IncorporatedOn = *incorporated
	}
	return m, true, nil
}

// SetSponsorMapping buffers a mapping until Commit.
func (db *DB) SetSponsorMapping(_ context.Context, key types.SeenKey, m state.SponsorMapping) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.pending.Mappings[key] = m
	return nil
}

// -----------------------------------------------------------------------------
// Company Methods
// -----------------------------------------------------------------------------

// Company returns the last enrichment result for a company number.
func (db *DB) Company(ctx context.Context, companyNumber string) (state.CompanyRecord, bool, error) {
	var (
		rec             state.CompanyRecord
		fields, contact []byte
	)
	err := db.pool.QueryRow(ctx,
		`SELECT company_number, name, website, final_url, title, match_score, match_fields, contact, enriched_at
		 FROM companies WHERE company_number = $1`,
		companyNumber,
	).Scan(&rec.CompanyNumber, &rec.Name, &rec.Website, &rec.FinalURL, &rec.Title, &rec.MatchScore, &fields, &contact, &rec.EnrichedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rec, false, nil
		}
		return rec, false, state.Corrupt("read company", err)
	}
	if err := json.Unmarshal(fields, &rec.MatchFields); err != nil {
		return rec, false, state.Corrupt("decode match fields", err)
	}
	if len(contact) > 0 {
		rec.Contact = &types.ContactInfo{}
		if err := json.Unmarshal(contact, rec.Contact); err != nil {
			return rec, false, state.Corrupt("decode contact", err)
		}
	}
	return rec, true, nil
}

// PutCompany buffers an enrichment record until Commit.
func (db *DB) PutCompany(_ context.Context, rec state.CompanyRecord) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.pending.Companies[rec.CompanyNumber] = rec
	return nil
}

// queueCompanyCache adds the buffered mappings and company records to batch.
func queueCompanyCache(batch *pgx.Batch, p *state.Pending) error {
	for key, m := range p.Mappings {
		var incorporated *time.Time
		if !m.IncorporatedOn.IsZero() {
			incorporated = &m.IncorporatedOn
		}
		batch.Queue(
			`INSERT INTO sponsor_company_map
			   (row_key, company_number, match_score, postcode, company_status, country, incorporated_on, matched_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (row_key) DO UPDATE SET
			   company_number = $2, match_score = $3, postcode = $4, company_status = $5,
			   country = $6, incorporated_on = $7, matched_at = $8`,
			string(key), m.CompanyNumber, m.Score, m.Postcode, m.CompanyStatus, m.Country, incorporated, m.MatchedAt,
		)
	}

	for number, rec := range p.Companies {
		matchFields := rec.MatchFields
		if matchFields == nil {
			matchFields = []string{}
		}
		fields, err := json.Marshal(matchFields)
		if err != nil {
			return fmt.Errorf("failed to encode match fields for %s: %w", number, err)
		}
		var contact []byte
		if rec.Contact != nil {
			if contact, err = json.Marshal(rec.Contact); err != nil {
				return fmt.Errorf("failed to encode contact for %s: %w", number, err)
			}
		}
		batch.Queue(
			`INSERT INTO companies
			   (company_number, name, website, final_url, title, match_score, match_fields, contact, enriched_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (company_number) DO UPDATE SET
			   name = $2, website = $3, final_url = $4, title = $5, match_score = $6,
			   match_fields = $7, contact = $8, enriched_at = $9, updated_at = NOW()`,
			number, rec.Name, rec.Website, rec.FinalURL, rec.Title, rec.MatchScore, fields, contact, rec.EnrichedAt,
		)
	}
	return nil
}
