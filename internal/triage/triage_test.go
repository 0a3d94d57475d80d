package triage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/sponsor-leads/internal/llm"
	"github.com/jonathan/sponsor-leads/internal/types"
)

type fakeClient struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeClient) GenerateJSON(_ context.Context, prompt string, _ llm.ModelTier) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.response, f.err
}

func (f *fakeClient) GetModel(llm.ModelTier) string { return "fake-model" }
func (f *fakeClient) Close() error                  { return nil }

func verifiedLead() *types.ScoredLead {
	lead := &types.ScoredLead{
		Record: types.RegistryRecord{
			Source:        types.SourceCompaniesHouse,
			Name:          "Acme Robotics UK Ltd",
			CompanyNumber: "15551234",
		},
		Key:      "CH::15551234",
		CaseType: types.CaseSponsorLicence,
		Signals:  []string{"foreign_corporate_psc", "incorporated_within_14d"},
	}
	lead.Match = &types.VerifiedMatch{
		Candidate: types.CandidateWebsite{URL: "https://acme-robotics.co.uk/", Title: "Acme Robotics"},
		Score:     9,
		HTML:      `<html><body><nav>Menu</nav><main><p>We are relocating engineers from Munich to London.</p></main></body></html>`,
	}
	return lead
}

const goodNote = `{"bucket":"global_mobility","score":81,"summary":"German robotics firm opening in London.",` +
	`"reasons":["foreign parent","new incorporation"],"outreach_angle":"UK Expansion Worker briefing",` +
	`"sponsorship_signal_quote":"relocating engineers"}`

func TestTriage_ValidNote(t *testing.T) {
	client := &fakeClient{response: goodNote}
	tr := New(client, nil)

	note, err := tr.Triage(context.Background(), verifiedLead())
	require.NoError(t, err)

	assert.Equal(t, "global_mobility", note.Bucket)
	assert.Equal(t, 81, note.Score)
	assert.Equal(t, []string{"foreign parent", "new incorporation"}, note.Reasons)
	assert.Equal(t, "relocating engineers", note.SignalQuote)
	assert.Equal(t, "fake-model", note.Model)

	require.Len(t, client.prompts, 1)
	p := client.prompts[0]
	assert.Contains(t, p, "Acme Robotics UK Ltd (15551234)")
	assert.Contains(t, p, "foreign_corporate_psc, incorporated_within_14d")
	assert.Contains(t, p, "relocating engineers from Munich")
	assert.NotContains(t, p, "Menu", "navigation is not part of the excerpt")
	assert.NotContains(t, p, "{{.")
}

func TestTriage_RequiresVerifiedMatch(t *testing.T) {
	client := &fakeClient{response: goodNote}
	lead := verifiedLead()
	lead.Match = nil

	_, err := New(client, nil).Triage(context.Background(), lead)
	assert.ErrorIs(t, err, ErrNotVerified)
	assert.Empty(t, client.prompts)
}

func TestTriage_SchemaViolation(t *testing.T) {
	client := &fakeClient{response: `{"bucket":"maybe","score":50,"summary":"x","reasons":["a","b"],"outreach_angle":""}`}

	_, err := New(client, nil).Triage(context.Background(), verifiedLead())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "triage note rejected")
}

func TestTriage_ClientError(t *testing.T) {
	boom := errors.New("quota")
	client := &fakeClient{err: boom}

	_, err := New(client, nil).Triage(context.Background(), verifiedLead())
	assert.ErrorIs(t, err, boom)
}

func TestBuildPrompt_FallsBackToSnippet(t *testing.T) {
	lead := verifiedLead()
	lead.Match.HTML = ""
	lead.Match.Candidate.Snippet = "Robotics integrator"
	lead.Record.CompanyNumber = ""

	p, err := BuildPrompt(lead)
	require.NoError(t, err)
	assert.Contains(t, p, "Robotics integrator")
	assert.Contains(t, p, "Acme Robotics UK Ltd ((none))")
}

func TestBuildPrompt_PageTextWithPlaceholderSyntax(t *testing.T) {
	lead := verifiedLead()
	lead.Match.HTML = `<html><body><main><p>Use {{.Name}} in your templates, or {{.Company}}.</p></main></body></html>`

	p, err := BuildPrompt(lead)
	require.NoError(t, err)
	assert.Contains(t, p, "Use {{.Name}} in your templates, or {{.Company}}.")
	assert.Contains(t, p, "Acme Robotics UK Ltd (15551234)")
}

func TestPageExcerpt(t *testing.T) {
	assert.Equal(t, "", pageExcerpt(""))
	assert.Equal(t, "Only footer text", pageExcerpt(`<html><body><footer>Only footer text</footer></body></html>`))
}

func TestDisabled(t *testing.T) {
	var s Stage = Disabled{}
	note, err := s.Triage(context.Background(), verifiedLead())
	assert.NoError(t, err)
	assert.Nil(t, note)
	assert.False(t, s.Enabled())
}
