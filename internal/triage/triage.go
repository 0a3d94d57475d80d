// Package triage attaches an advisory LLM note to verified leads. Notes never
// change a lead's confidence, case type or rank.
package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/sponsor-leads/internal/fetch"
	"github.com/jonathan/sponsor-leads/internal/llm"
	"github.com/jonathan/sponsor-leads/internal/prompts"
	"github.com/jonathan/sponsor-leads/internal/schemas"
	"github.com/jonathan/sponsor-leads/internal/types"
)

// MaxExcerptBytes bounds the page text sent to the model.
const MaxExcerptBytes = 6000

// ErrNotVerified is returned for leads without a verified website.
var ErrNotVerified = errors.New("triage requires a verified website")

// Stage is the optional triage step of a run.
type Stage interface {
	Triage(ctx context.Context, lead *types.ScoredLead) (*types.TriageNote, error)
	Enabled() bool
}

// Disabled is the Stage used when no model is configured.
type Disabled struct{}

// Triage always returns no note.
func (Disabled) Triage(context.Context, *types.ScoredLead) (*types.TriageNote, error) {
	return nil, nil
}

// Enabled reports false.
func (Disabled) Enabled() bool { return false }

// Triager classifies leads with an llm.Client.
type Triager struct {
	client llm.Client
	tier   llm.ModelTier
	logger *zap.Logger
}

// New creates a Triager.
func New(client llm.Client, logger *zap.Logger) *Triager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Triager{client: client, tier: llm.TierLite, logger: logger.With(zap.String("stage", "triage"))}
}

// Enabled reports true.
func (t *Triager) Enabled() bool { return true }

// Triage asks the model for a note on lead and validates the answer.
func (t *Triager) Triage(ctx context.Context, lead *types.ScoredLead) (*types.TriageNote, error) {
	if lead == nil || lead.Match == nil {
		return nil, ErrNotVerified
	}

	prompt, err := BuildPrompt(lead)
	if err != nil {
		return nil, err
	}

	raw, err := t.client.GenerateJSON(ctx, prompt, t.tier)
	if err != nil {
		return nil, fmt.Errorf("failed to generate triage note: %w", err)
	}
	if err := schemas.Validate(schemas.Triage, raw); err != nil {
		return nil, fmt.Errorf("triage note rejected: %w", err)
	}

	var note types.TriageNote
	if err := json.Unmarshal([]byte(raw), &note); err != nil {
		return nil, fmt.Errorf("failed to parse triage note: %w", err)
	}
	note.Model = t.client.GetModel(t.tier)

	t.logger.Debug("lead triaged",
		zap.String("key", string(lead.Key)),
		zap.String("bucket", note.Bucket),
		zap.Int("score", note.Score))
	return &note, nil
}

// BuildPrompt fills the triage prompt from the lead and its verified page.
func BuildPrompt(lead *types.ScoredLead) (string, error) {
	rec := lead.Record
	excerpt := pageExcerpt(lead.Match.HTML)
	if excerpt == "" {
		excerpt = lead.Match.Candidate.Snippet
	}

	return prompts.Render("triage.json", "lead-triage", map[string]string{
		"CaseType":      string(lead.CaseType),
		"Company":       rec.Name,
		"CompanyNumber": orNone(rec.CompanyNumber),
		"Route":         orNone(strings.TrimSpace(rec.Route + " " + rec.SubRoute)),
		"Signals":       orNone(strings.Join(lead.Signals, ", ")),
		"URL":           lead.Website(),
		"Title":         orNone(lead.Match.Candidate.Title),
		"Excerpt":       orNone(excerpt),
	})
}

// pageExcerpt prefers the page's main content, without navigation or
// footer, and falls back to all visible text.
func pageExcerpt(html string) string {
	if html == "" {
		return ""
	}
	text, err := fetch.ExtractMainText(html, fetch.DefaultTextSelectors())
	if err != nil || text == "" {
		if text, err = fetch.VisibleText(html); err != nil {
			return ""
		}
	}
	return llm.Excerpt(text, MaxExcerptBytes)
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
