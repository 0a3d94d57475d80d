package scoring

import (
	"time"

	"github.com/jonathan/sponsor-leads/internal/types"
)

// MaxPoints is the ceiling of the point scale; Confidence is Points/MaxPoints.
const MaxPoints = 100

// Threshold maps a minimum point total to a case type.
type Threshold struct {
	MinPoints int
	CaseType  types.CaseType
}

// DefaultThresholds are non-overlapping and sorted strongest first.
// Anything below the last entry falls to CaseWatchlist.
var DefaultThresholds = []Threshold{
	{MinPoints: 80, CaseType: types.CaseExpansionWorker},
	{MinPoints: 60, CaseType: types.CaseSeniorSpecialist},
	{MinPoints: 40, CaseType: types.CaseSponsorLicence},
	{MinPoints: 20, CaseType: types.CaseOverseasReview},
}

// Scorer evaluates rules in order against a fixed reference time.
type Scorer struct {
	Rules      []Rule
	Thresholds []Threshold
	// AsOf is the run's reference time. Score never reads the clock.
	AsOf time.Time
}

// New returns a Scorer with the default rules and thresholds.
func New(asOf time.Time) *Scorer {
	return &Scorer{
		Rules:      DefaultRules(),
		Thresholds: DefaultThresholds,
		AsOf:       asOf,
	}
}

// Score evaluates every rule against r and labels the result. A record
// matching no rule gets zero points and the lowest case type.
func (s *Scorer) Score(r types.RegistryRecord) types.ScoredLead {
	points := 0
	signals := make([]string, 0, len(s.Rules))
	for _, rule := range s.Rules {
		if rule.Predicate(&r, s.AsOf) {
			points += rule.Weight
			signals = append(signals, rule.Name)
		}
	}
	points = clamp(points)

	return types.ScoredLead{
		Record:     r,
		Key:        r.Key(),
		Points:     points,
		Confidence: float64(points) / MaxPoints,
		CaseType:   s.Label(points),
		Signals:    signals,
	}
}

// Label maps a point total to its case type.
func (s *Scorer) Label(points int) types.CaseType {
	for _, t := range s.Thresholds {
		if points >= t.MinPoints {
			return t.CaseType
		}
	}
	return types.CaseWatchlist
}

// ScoreAll scores records in order.
func (s *Scorer) ScoreAll(records []types.RegistryRecord) []types.ScoredLead {
	out := make([]types.ScoredLead, len(records))
	for i, r := range records {
		out[i] = s.Score(r)
	}
	return out
}

func clamp(points int) int {
	if points < 0 {
		return 0
	}
	if points > MaxPoints {
		return MaxPoints
	}
	return points
}
