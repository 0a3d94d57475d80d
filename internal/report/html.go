package report

import (
	_ "embed"
	"html/template"
	"io"
	"time"

	"github.com/jonathan/sponsor-leads/internal/types"
)

//go:embed brief.html.tmpl
var briefTemplate string

var brief = template.Must(template.New("brief").Parse(briefTemplate))

// Stat is one labelled figure in the brief header.
type Stat struct {
	Label string
	Value int
}

// Brief is the data passed to the HTML template.
type Brief struct {
	RunID       string
	GeneratedAt time.Time
	Stats       []Stat
	Rows        []Row
}

// NewBrief builds a Brief for leads in their ranked order.
func NewBrief(runID string, at time.Time, stats []Stat, leads []types.ScoredLead) Brief {
	return Brief{RunID: runID, GeneratedAt: at, Stats: stats, Rows: Rows(leads)}
}

// WriteHTML renders b as a standalone HTML page.
func WriteHTML(w io.Writer, b Brief) error {
	if err := brief.Execute(w, b); err != nil {
		return &TemplateError{Message: "failed to execute brief template", Cause: err}
	}
	return nil
}
