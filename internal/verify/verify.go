// Package verify decides whether a candidate website belongs to a registry
// record. Only hard identifiers (company number, registered postcode) can
// pass the gate; name similarity is supporting evidence.
package verify

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/sponsor-leads/internal/fetch"
	"github.com/jonathan/sponsor-leads/internal/names"
	"github.com/jonathan/sponsor-leads/internal/types"
)

// Outcome is the terminal verification state of one candidate.
type Outcome string

const (
	OutcomeVerified     Outcome = "verified"
	OutcomeInconclusive Outcome = "inconclusive"
	OutcomeMismatch     Outcome = "mismatch"
	OutcomeFetchFailed  Outcome = "fetch_failed"
)

// Field names recorded on a VerifiedMatch.
const (
	FieldCompanyNumber = "company_number"
	FieldPostcode      = "postcode"
	FieldName          = "name"
)

// Points per field and the acceptance threshold.
const (
	PointsCompanyNumber = 6
	PointsPostcode      = 3
	PointsNameStrong    = 2
	PointsNameWeak      = 1
	MaxPoints           = 10
	DefaultThreshold    = 7
)

// Evidence is what a page proved about a record.
type Evidence struct {
	Points int
	Fields []string
	// Strong is true when a company number or postcode matched.
	Strong       bool
	NumberFound  bool
	OtherNumbers []string
}

// Accepted applies the gate: enough points, at least one strong field, and
// the record's own company number when it has one.
func (e Evidence) Accepted(rec *types.RegistryRecord, threshold int) bool {
	if e.Points < threshold || !e.Strong {
		return false
	}
	return rec.CompanyNumber == "" || e.NumberFound
}

// Options configures a Verifier.
type Options struct {
	Threshold int
	// Renderer, when set, re-renders pages whose static text is too thin.
	Renderer fetch.Renderer
}

// Verifier fetches candidate pages and scores them against records.
type Verifier struct {
	client *fetch.Client
	opts   Options
	logger *zap.Logger
}

// New creates a Verifier.
func New(client *fetch.Client, opts Options, logger *zap.Logger) *Verifier {
	if client == nil {
		client = fetch.NewClient(nil)
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{client: client, opts: opts, logger: logger}
}

// Verify fetches cand once and scores it against rec. A nil match with
// OutcomeInconclusive or OutcomeMismatch is a normal result, not an error.
func (v *Verifier) Verify(ctx context.Context, cand types.CandidateWebsite, rec *types.RegistryRecord) (*types.VerifiedMatch, Outcome, error) {
	res, err := v.client.Get(ctx, cand.URL)
	if err != nil {
		return nil, OutcomeFetchFailed, fmt.Errorf("failed to fetch candidate %s: %w", cand.URL, err)
	}

	html := res.HTML
	text, err := fetch.VisibleText(html)
	if err != nil {
		return nil, OutcomeFetchFailed, fmt.Errorf("failed to read candidate %s: %w", cand.URL, err)
	}

	if v.opts.Renderer != nil && fetch.ShouldUseBrowser(text) {
		rendered, rerr := v.opts.Renderer.Render(ctx, res.FinalURL)
		if rerr != nil {
			v.logger.Debug("browser render failed", zap.String("url", res.FinalURL), zap.Error(rerr))
		} else if rtext, terr := fetch.VisibleText(rendered); terr == nil && len(rtext) > len(text) {
			html, text = rendered, rtext
		}
	}

	ev := Score(rec, text)
	outcome := Decide(ev, rec, v.opts.Threshold)
	v.logger.Debug("candidate scored",
		zap.String("url", cand.URL),
		zap.String("company", rec.Name),
		zap.Int("points", ev.Points),
		zap.Strings("fields", ev.Fields),
		zap.String("outcome", string(outcome)))

	if outcome != OutcomeVerified {
		return nil, outcome, nil
	}
	return &types.VerifiedMatch{
		Candidate: cand,
		Score:     ev.Points,
		Fields:    ev.Fields,
		FinalURL:  res.FinalURL,
		HTML:      html,
	}, OutcomeVerified, nil
}

// Decide maps evidence to an outcome. A page that states a different
// registration number and not the record's own is a mismatch.
func Decide(ev Evidence, rec *types.RegistryRecord, threshold int) Outcome {
	if ev.Accepted(rec, threshold) {
		return OutcomeVerified
	}
	if rec.CompanyNumber != "" && !ev.NumberFound && len(ev.OtherNumbers) > 0 {
		return OutcomeMismatch
	}
	return OutcomeInconclusive
}

var registrationNumber = regexp.MustCompile(`(?i)(?:company|registered|registration|reg\.?)\s*(?:number|no\.?|n[oº°])\s*[:.\-]?\s*((?:[A-Z]{2})?\d{6,8})\b`)

// Score collects the evidence text offers for rec.
func Score(rec *types.RegistryRecord, text string) Evidence {
	var ev Evidence
	upper := strings.ToUpper(text)

	if num := normalizeNumber(rec.CompanyNumber); num != "" {
		if containsNumber(upper, num) {
			ev.NumberFound = true
			ev.Strong = true
			ev.Points += PointsCompanyNumber
			ev.Fields = append(ev.Fields, FieldCompanyNumber)
		}
	}
	for _, m := range registrationNumber.FindAllStringSubmatch(upper, -1) {
		other := normalizeNumber(m[1])
		if other != normalizeNumber(rec.CompanyNumber) {
			ev.OtherNumbers = append(ev.OtherNumbers, other)
		}
	}

	if containsPostcode(upper, compact(rec.Postcode)) {
		ev.Strong = true
		ev.Points += PointsPostcode
		ev.Fields = append(ev.Fields, FieldPostcode)
	}

	if core := names.Core(rec.Name); core != "" {
		switch sim := names.TokenSetRatio(core, upper); {
		case sim >= 75:
			ev.Points += PointsNameStrong
			ev.Fields = append(ev.Fields, FieldName)
		case sim >= 60:
			ev.Points += PointsNameWeak
			ev.Fields = append(ev.Fields, FieldName)
		}
	}

	if ev.Points > MaxPoints {
		ev.Points = MaxPoints
	}
	return ev
}

// normalizeNumber uppercases a company number and pads all-digit numbers to
// the registry's eight characters.
func normalizeNumber(n string) string {
	n = strings.ToUpper(strings.TrimSpace(n))
	if n == "" {
		return ""
	}
	allDigits := true
	for _, r := range n {
		if r < '0' || r > '9' {
			allDigits = false
			break
		}
	}
	if allDigits && len(n) < 8 {
		n = strings.Repeat("0", 8-len(n)) + n
	}
	return n
}

// containsNumber reports whether num appears in text as a whole word, with or
// without leading zeros.
func containsNumber(text, num string) bool {
	if containsWord(text, num) {
		return true
	}
	trimmed := strings.TrimLeft(num, "0")
	return trimmed != num && len(trimmed) >= 6 && containsWord(text, trimmed)
}

// containsWord reports whether word occurs in text with no letter or digit on
// either side.
func containsWord(text, word string) bool {
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], word)
		if i < 0 {
			return false
		}
		start := from + i
		if boundaryAt(text, start-1) && boundaryAt(text, start+len(word)) {
			return true
		}
		from = start + 1
	}
	return false
}

// containsPostcode reports whether the compact postcode pc appears in text as
// a whole token, with at most one space between its outward and inward codes.
func containsPostcode(text, pc string) bool {
	if len(pc) < 5 {
		return false
	}
	outward, inward := pc[:len(pc)-3], pc[len(pc)-3:]
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], outward)
		if i < 0 {
			return false
		}
		start := from + i
		rest := start + len(outward)
		if rest < len(text) && isSpace(text[rest]) {
			rest++
		}
		if boundaryAt(text, start-1) &&
			strings.HasPrefix(text[rest:], inward) &&
			boundaryAt(text, rest+len(inward)) {
			return true
		}
		from = start + 1
	}
	return false
}

// boundaryAt reports whether text[i] is outside text or not an uppercase
// letter or digit. text is already uppercased.
func boundaryAt(text string, i int) bool {
	if i < 0 || i >= len(text) {
		return true
	}
	c := text[i]
	return !(c >= 'A' && c <= 'Z' || c >= '0' && c <= '9')
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n'
}

func compact(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}
