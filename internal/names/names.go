// Package names normalizes company names and scores how closely two names match.
package names

import (
	"regexp"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/jonathan/sponsor-leads/internal/types"
)

var legalSuffixes = []string{
	"LIMITED", "LTD", "LLP", "PLC", "LP", "CIC", "INC", "CORP", "GMBH", "BV", "SA", "SRL", "PVT", "PTE", "LLC",
}

var leadingJunk = regexp.MustCompile(`^[\s"'` + "`" + `*@\[\](){}<>#!$%^&=+;:,./\\-]+`)

// CleanDisplay strips leading punctuation and collapses whitespace. Register
// exports sometimes prefix names with quotes or bullets.
func CleanDisplay(name string) string {
	return types.NormalizeSpaces(leadingJunk.ReplaceAllString(types.NormalizeSpaces(name), ""))
}

// Core returns the uppercase name without punctuation, legal suffixes or a
// leading "THE".
func Core(name string) string {
	tokens := strings.Fields(types.NormalizeName(name))
	out := tokens[:0]
	for _, t := range tokens {
		if isSuffix(t) {
			continue
		}
		out = append(out, t)
	}
	if len(out) > 1 && out[0] == "THE" {
		out = out[1:]
	}
	return strings.Join(out, " ")
}

func isSuffix(token string) bool {
	for _, s := range legalSuffixes {
		if token == s {
			return true
		}
	}
	return false
}

// Variants returns up to four search variants of name in preference order.
func Variants(name string) []string {
	display := CleanDisplay(name)
	core := Core(display)
	candidates := []string{
		display,
		core,
		strings.ReplaceAll(core, " AND ", " & "),
		strings.ReplaceAll(display, " & ", " and "),
	}
	var out []string
	seen := map[string]bool{}
	for _, v := range candidates {
		v = types.NormalizeSpaces(v)
		if v == "" || seen[strings.ToUpper(v)] {
			continue
		}
		seen[strings.ToUpper(v)] = true
		out = append(out, v)
		if len(out) == 4 {
			break
		}
	}
	return out
}

// Tokens returns the sorted unique normalized tokens of s.
func Tokens(s string) []string {
	set := map[string]bool{}
	for _, t := range strings.Fields(types.NormalizeName(s)) {
		set[t] = true
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Ratio is the Levenshtein similarity of a and b scaled to 0..100.
func Ratio(a, b string) int {
	if a == "" && b == "" {
		return 100
	}
	la, lb := len([]rune(a)), len([]rune(b))
	longest := la
	if lb > longest {
		longest = lb
	}
	d := levenshtein.ComputeDistance(a, b)
	return int(float64(longest-d) / float64(longest) * 100)
}

// TokenSetRatio compares a and b on their token sets. When every token of
// the smaller side appears in the other the result is 100.
func TokenSetRatio(a, b string) int {
	ta, tb := Tokens(a), Tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	inB := make(map[string]bool, len(tb))
	for _, t := range tb {
		inB[t] = true
	}
	inA := make(map[string]bool, len(ta))
	for _, t := range ta {
		inA[t] = true
	}

	var common, onlyA, onlyB []string
	for _, t := range ta {
		if inB[t] {
			common = append(common, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for _, t := range tb {
		if !inA[t] {
			onlyB = append(onlyB, t)
		}
	}

	if len(common) > 0 && (len(onlyA) == 0 || len(onlyB) == 0) {
		return 100
	}

	t0 := strings.Join(common, " ")
	t1 := strings.TrimSpace(t0 + " " + strings.Join(onlyA, " "))
	t2 := strings.TrimSpace(t0 + " " + strings.Join(onlyB, " "))

	best := Ratio(t1, t2)
	if t0 != "" {
		if r := Ratio(t0, t1); r > best {
			best = r
		}
		if r := Ratio(t0, t2); r > best {
			best = r
		}
	}
	return best
}
