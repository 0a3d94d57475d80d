// Package report projects ranked leads into the flat formats handed to the
// notifier: CSV, JSON and a static HTML brief.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/sponsor-leads/internal/types"
)

// Columns is the CSV header, in order.
var Columns = []string{
	"rank", "case_type", "confidence", "company_name", "company_number", "source",
	"route", "incorporated", "town", "postcode", "signals", "website",
	"verification_score", "emails", "phones", "triage_bucket", "first_seen",
}

// Row is one lead flattened for output. Every field is already formatted.
type Row struct {
	Rank              int    `json:"rank"`
	CaseType          string `json:"case_type"`
	Hint              string `json:"hint"`
	Confidence        string `json:"confidence"`
	CompanyName       string `json:"company_name"`
	CompanyNumber     string `json:"company_number"`
	Source            string `json:"source"`
	Route             string `json:"route"`
	Incorporated      string `json:"incorporated"`
	Town              string `json:"town"`
	Postcode          string `json:"postcode"`
	Signals           string `json:"signals"`
	Website           string `json:"website"`
	VerificationScore string `json:"verification_score"`
	Emails            string `json:"emails"`
	Phones            string `json:"phones"`
	TriageBucket      string `json:"triage_bucket"`
	TriageSummary     string `json:"triage_summary,omitempty"`
	FirstSeen         string `json:"first_seen"`
}

// Rows flattens leads in their given order. Rank starts at 1.
func Rows(leads []types.ScoredLead) []Row {
	rows := make([]Row, 0, len(leads))
	for i := range leads {
		rows = append(rows, toRow(i+1, &leads[i]))
	}
	return rows
}

func toRow(rank int, l *types.ScoredLead) Row {
	rec := l.Record
	row := Row{
		Rank:          rank,
		CaseType:      string(l.CaseType),
		Hint:          l.CaseType.Hint(),
		Confidence:    strconv.FormatFloat(l.Confidence, 'f', 2, 64),
		CompanyName:   rec.Name,
		CompanyNumber: rec.CompanyNumber,
		Source:        string(rec.Source),
		Route:         joinNonEmpty(" / ", rec.Route, rec.SubRoute),
		Incorporated:  formatDate(rec.IncorporatedOn),
		Town:          rec.Town,
		Postcode:      rec.Postcode,
		Signals:       strings.Join(l.Signals, "; "),
		Website:       l.Website(),
	}
	if l.Match != nil {
		row.VerificationScore = strconv.Itoa(l.Match.Score)
	}
	if l.Contact != nil && l.Match != nil {
		row.Emails = strings.Join(l.Contact.Emails, "; ")
		row.Phones = strings.Join(l.Contact.Phones, "; ")
	}
	if l.Triage != nil {
		row.TriageBucket = l.Triage.Bucket
		row.TriageSummary = l.Triage.Summary
	}
	if !l.FirstSeen.IsZero() {
		row.FirstSeen = l.FirstSeen.UTC().Format(time.RFC3339)
	}
	return row
}

func (r Row) record() []string {
	return []string{
		strconv.Itoa(r.Rank), r.CaseType, r.Confidence, r.CompanyName, r.CompanyNumber, r.Source,
		r.Route, r.Incorporated, r.Town, r.Postcode, r.Signals, r.Website,
		r.VerificationScore, r.Emails, r.Phones, r.TriageBucket, r.FirstSeen,
	}
}

// WriteCSV writes the header and one row per lead.
func WriteCSV(w io.Writer, leads []types.ScoredLead) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return &WriteError{Format: "csv", Message: "failed to write header", Cause: err}
	}
	for _, row := range Rows(leads) {
		if err := cw.Write(row.record()); err != nil {
			return &WriteError{Format: "csv", Message: fmt.Sprintf("failed to write row %d", row.Rank), Cause: err}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return &WriteError{Format: "csv", Message: "failed to flush", Cause: err}
	}
	return nil
}

// WriteJSON writes the rows as an indented JSON array.
func WriteJSON(w io.Writer, leads []types.ScoredLead) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Rows(leads)); err != nil {
		return &WriteError{Format: "json", Message: "failed to encode", Cause: err}
	}
	return nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

func joinNonEmpty(sep string, parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
