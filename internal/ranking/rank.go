// Package ranking orders scored leads and caps the shortlist.
package ranking

import (
	"sort"

	"github.com/jonathan/sponsor-leads/internal/types"
)

// RankAndCap returns a new slice sorted by descending confidence, ties broken
// by earliest registry timestamp and then by key, truncated to max entries.
// max <= 0 disables truncation. leads is not modified.
func RankAndCap(leads []types.ScoredLead, max int) []types.ScoredLead {
	ranked := make([]types.ScoredLead, len(leads))
	copy(ranked, leads)

	sort.SliceStable(ranked, func(i, j int) bool {
		return less(&ranked[i], &ranked[j])
	})

	if max > 0 && len(ranked) > max {
		ranked = ranked[:max]
	}
	return ranked
}

func less(a, b *types.ScoredLead) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	ta, tb := a.Timestamp(), b.Timestamp()
	if !ta.Equal(tb) {
		return ta.Before(tb)
	}
	return a.Key < b.Key
}

// CountByCaseType tallies leads per case type.
func CountByCaseType(leads []types.ScoredLead) map[types.CaseType]int {
	out := make(map[types.CaseType]int, len(types.AllCaseTypes))
	for _, l := range leads {
		out[l.CaseType]++
	}
	return out
}
