// Package observability provides logging, metrics and formatted console
// output for the CLI.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/sponsor-leads/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 72
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 10
)

// Field is one labelled value in a summary box.
type Field struct {
	Label string
	Value string
}

// Printer handles formatted output for the console
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // console output; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// Step prints a progress line such as "Step 2/6: Diffing against state".
//
//nolint:errcheck // console output
func (p *Printer) Step(n, total int, msg string) {
	fmt.Fprintf(p.out, "Step %d/%d: %s\n", n, total, msg)
}

// PrintSummary outputs labelled run figures. Labels are padded to align.
func (p *Printer) PrintSummary(title string, fields []Field) {
	if len(fields) == 0 {
		return
	}
	width := 0
	for _, f := range fields {
		width = max(width, len(f.Label))
	}

	var sb strings.Builder
	for _, f := range fields {
		sb.WriteString(fmt.Sprintf("%-*s  %s\n", width+1, f.Label+":", f.Value))
	}
	p.printBox(title, strings.TrimSuffix(sb.String(), "\n"))
}

// PrintLeads outputs the top ranked leads with case type, confidence and
// verified website.
func (p *Printer) PrintLeads(leads []types.ScoredLead) {
	if len(leads) == 0 {
		p.printBox("LEADS", "No new leads this run.")
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Total leads: %d\n\n", len(leads)))

	count := min(len(leads), maxItemsToShow)
	for i := 0; i < count; i++ {
		l := &leads[i]
		name := l.Record.Name
		if l.Record.CompanyNumber != "" {
			name += " (" + l.Record.CompanyNumber + ")"
		}
		sb.WriteString(fmt.Sprintf("#%d  %s\n", i+1, name))
		sb.WriteString(fmt.Sprintf("    %s  %.2f  %s\n", l.CaseType, l.Confidence, l.Record.Town))
		if site := l.Website(); site != "" {
			sb.WriteString(fmt.Sprintf("    %s (verified %d/10)\n", site, l.Match.Score))
		}
		if l.Contact != nil && !l.Contact.Empty() {
			sb.WriteString(fmt.Sprintf("    %s\n", strings.Join(append(append([]string{}, l.Contact.Emails...), l.Contact.Phones...), ", ")))
		}
		if i < count-1 {
			sb.WriteString("\n")
		}
	}

	if len(leads) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more leads", len(leads)-maxItemsToShow))
	}

	p.printBox("TOP LEADS", sb.String())
}

// PrintSignals outputs the signals and points of a single scored lead.
func (p *Printer) PrintSignals(lead types.ScoredLead) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Company:    %s\n", lead.Record.Name))
	sb.WriteString(fmt.Sprintf("Key:        %s\n", lead.Key))
	sb.WriteString(fmt.Sprintf("Points:     %d (confidence %.2f)\n", lead.Points, lead.Confidence))
	sb.WriteString(fmt.Sprintf("Case type:  %s\n", lead.CaseType))
	sb.WriteString(fmt.Sprintf("            %s\n", lead.CaseType.Hint()))
	if len(lead.Signals) == 0 {
		sb.WriteString("\nNo signals fired.")
	} else {
		sb.WriteString("\nSignals:\n")
		for _, s := range lead.Signals {
			sb.WriteString(fmt.Sprintf("  • %s\n", s))
		}
	}
	p.printBox("SCORE", strings.TrimSuffix(sb.String(), "\n"))
}

// truncate shortens s to n runes with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
