// Package steps defines the ordered stages of a lead run and the
// dependencies between them.
package steps

import (
	"fmt"
	"strings"
)

// Stage names.
const (
	Fetch    = "fetch"
	Diff     = "diff"
	Prepare  = "prepare"
	Score    = "score"
	Resolve  = "resolve"
	Verify   = "verify"
	Contacts = "contacts"
	Triage   = "triage"
	Rank     = "rank"
	Commit   = "commit"
)

// Definition defines metadata for a pipeline stage
type Definition struct {
	Name         string
	Label        string
	Dependencies []string
	// Optional stages may be switched off by configuration.
	Optional bool
}

// Registry lists every stage in execution order.
var Registry = []Definition{
	{Name: Fetch, Label: "Fetching registry sources"},
	{Name: Diff, Label: "Diffing against state", Dependencies: []string{Fetch}},
	{Name: Prepare, Label: "Preparing novel records", Dependencies: []string{Diff}},
	{Name: Score, Label: "Scoring leads", Dependencies: []string{Prepare}},
	{Name: Resolve, Label: "Resolving websites", Dependencies: []string{Score}, Optional: true},
	{Name: Verify, Label: "Verifying websites", Dependencies: []string{Resolve}},
	{Name: Contacts, Label: "Extracting contacts", Dependencies: []string{Verify}},
	{Name: Triage, Label: "Triaging verified leads", Dependencies: []string{Verify}, Optional: true},
	{Name: Rank, Label: "Ranking and capping", Dependencies: []string{Score}},
	{Name: Commit, Label: "Committing state", Dependencies: []string{Rank}, Optional: true},
}

// DependencyError reports a stage that cannot be switched off.
type DependencyError struct {
	Step    string
	Message string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("stage %s: %s", e.Step, e.Message)
}

// Plan returns the stages that will run when the named optional stages are
// disabled. Stages whose dependencies are not in the plan are dropped too.
func Plan(disabled ...string) ([]Definition, error) {
	off := make(map[string]bool, len(disabled))
	for _, name := range disabled {
		def, ok := Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown stage: %s", name)
		}
		if !def.Optional {
			return nil, &DependencyError{Step: name, Message: "stage is required"}
		}
		off[name] = true
	}

	in := make(map[string]bool, len(Registry))
	plan := make([]Definition, 0, len(Registry))
	for _, def := range Registry {
		if off[def.Name] {
			continue
		}
		ready := true
		for _, dep := range def.Dependencies {
			if !in[dep] {
				ready = false
				break
			}
		}
		if !ready {
			continue
		}
		in[def.Name] = true
		plan = append(plan, def)
	}
	return plan, nil
}

// Lookup returns the definition of a stage.
func Lookup(name string) (Definition, bool) {
	for _, def := range Registry {
		if def.Name == name {
			return def, true
		}
	}
	return Definition{}, false
}

// Progress numbers stages within a plan for "Step n/N" output.
type Progress struct {
	plan []Definition
}

// NewProgress wraps a plan.
func NewProgress(plan []Definition) *Progress {
	return &Progress{plan: plan}
}

// Position returns the 1-based index of name and the plan length. ok is
// false when the stage is not planned.
func (p *Progress) Position(name string) (n, total int, ok bool) {
	for i, def := range p.plan {
		if def.Name == name {
			return i + 1, len(p.plan), true
		}
	}
	return 0, len(p.plan), false
}

// Has reports whether name is planned.
func (p *Progress) Has(name string) bool {
	_, _, ok := p.Position(name)
	return ok
}

// String lists the planned stage names.
func (p *Progress) String() string {
	names := make([]string, len(p.plan))
	for i, def := range p.plan {
		names[i] = def.Name
	}
	return strings.Join(names, " > ")
}
