package pipeline

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/sponsor-leads/internal/observability"
	"github.com/jonathan/sponsor-leads/internal/types"
)

// Summary counts what happened to every record in a run. It is persisted
// with the run and printed by the CLI.
type Summary struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Fetched   map[types.Source]int `json:"fetched"`
	Malformed map[types.Source]int `json:"malformed"`
	Filtered  map[types.Source]int `json:"filtered"`
	Degraded  []types.Source       `json:"degraded,omitempty"`

	Duplicates  int `json:"duplicates"`
	AlreadySeen int `json:"already_seen"`
	Novel       int `json:"novel"`
	Baselined   int `json:"baselined"`
	Deferred    int `json:"deferred"`
	Dropped     int `json:"dropped"`
	Matched     int `json:"matched"`
	Scored      int `json:"scored"`

	Cached        int `json:"cached"`
	Searched      int `json:"searched"`
	Candidates    int `json:"candidates"`
	Verified      int `json:"verified"`
	Inconclusive  int `json:"inconclusive"`
	Mismatched    int `json:"mismatched"`
	FetchFailures int `json:"fetch_failures"`
	Unresolved    int `json:"unresolved"`
	Contacts      int `json:"contacts"`
	Triaged       int `json:"triaged"`
	TriageFailed  int `json:"triage_failed"`
	Stripped      int `json:"stripped"`

	TimedOut bool `json:"timed_out"`
	Emitted  int  `json:"emitted"`
	DryRun   bool `json:"dry_run,omitempty"`
}

func newSummary(runID string, started time.Time) *Summary {
	return &Summary{
		RunID:     runID,
		StartedAt: started,
		Fetched:   make(map[types.Source]int),
		Malformed: make(map[types.Source]int),
		Filtered:  make(map[types.Source]int),
	}
}

// Fields flattens the summary for the console printer.
func (s *Summary) Fields() []observability.Field {
	itoa := strconv.Itoa
	fields := []observability.Field{{Label: "Run", Value: s.RunID}}
	for _, src := range sortedSources(s.Fetched) {
		fields = append(fields, observability.Field{
			Label: "Fetched " + string(src),
			Value: fmt.Sprintf("%d (malformed %d, filtered %d)", s.Fetched[src], s.Malformed[src], s.Filtered[src]),
		})
	}
	if len(s.Degraded) > 0 {
		names := make([]string, len(s.Degraded))
		for i, d := range s.Degraded {
			names[i] = string(d)
		}
		fields = append(fields, observability.Field{Label: "Unavailable sources", Value: strings.Join(names, ", ")})
	}
	fields = append(fields,
		observability.Field{Label: "Novel", Value: fmt.Sprintf("%d (seen %d, duplicates %d)", s.Novel, s.AlreadySeen, s.Duplicates)},
	)
	if s.Baselined > 0 {
		fields = append(fields, observability.Field{Label: "Baselined sponsors", Value: itoa(s.Baselined)})
	}
	fields = append(fields,
		observability.Field{Label: "Scored", Value: fmt.Sprintf("%d (dropped %d, deferred %d)", s.Scored, s.Dropped, s.Deferred)},
		observability.Field{Label: "Search queries", Value: fmt.Sprintf("%d (cached %d)", s.Searched, s.Cached)},
		observability.Field{Label: "Verified websites", Value: fmt.Sprintf("%d of %d candidates", s.Verified, s.Candidates)},
		observability.Field{Label: "Inconclusive / mismatch", Value: fmt.Sprintf("%d / %d", s.Inconclusive, s.Mismatched)},
		observability.Field{Label: "With contacts", Value: itoa(s.Contacts)},
	)
	if s.Triaged > 0 || s.TriageFailed > 0 {
		fields = append(fields, observability.Field{Label: "Triaged", Value: fmt.Sprintf("%d (failed %d)", s.Triaged, s.TriageFailed)})
	}
	if s.TimedOut {
		fields = append(fields, observability.Field{Label: "Timed out", Value: "yes, enrichment incomplete"})
	}
	fields = append(fields, observability.Field{Label: "Emitted", Value: itoa(s.Emitted)})
	if s.DryRun {
		fields = append(fields, observability.Field{Label: "Dry run", Value: "state not committed"})
	}
	return fields
}

func sortedSources(m map[types.Source]int) []types.Source {
	out := make([]types.Source, 0, len(m))
	for src := range m {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
