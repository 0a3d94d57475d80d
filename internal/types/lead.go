package types

import (
	"errors"
	"time"
)

// CaseType is the fixed classification assigned to a scored lead.
type CaseType string

// Case types, strongest first.
const (
	CaseExpansionWorker  CaseType = "expansion_worker"
	CaseSeniorSpecialist CaseType = "senior_specialist"
	CaseSponsorLicence   CaseType = "sponsor_licence"
	CaseOverseasReview   CaseType = "overseas_review"
	CaseWatchlist        CaseType = "watchlist"
)

// AllCaseTypes lists every case type in descending order of strength.
var AllCaseTypes = []CaseType{
	CaseExpansionWorker,
	CaseSeniorSpecialist,
	CaseSponsorLicence,
	CaseOverseasReview,
	CaseWatchlist,
}

// Hint returns the human-readable advisory text shown next to the case type.
func (c CaseType) Hint() string {
	switch c {
	case CaseExpansionWorker:
		return "Likely UK Expansion Worker setup"
	case CaseSeniorSpecialist:
		return "GBM Senior or Specialist Worker transfers"
	case CaseSponsorLicence:
		return "Sponsor licence / compliance support"
	case CaseOverseasReview:
		return "Overseas-linked, needs review"
	default:
		return "Watchlist"
	}
}

// CandidateWebsite is a URL proposed by the website resolver.
type CandidateWebsite struct {
	URL        string  `json:"url"`
	Confidence float64 `json:"confidence"`
	Title      string  `json:"title,omitempty"`
	Snippet    string  `json:"snippet,omitempty"`
}

// VerifiedMatch is a CandidateWebsite that cleared the verification gate.
type VerifiedMatch struct {
	Candidate CandidateWebsite `json:"candidate"`
	Score     int              `json:"score"`
	Fields    []string         `json:"fields"`
	FinalURL  string           `json:"final_url,omitempty"`

	// HTML is the page body fetched during verification. It is reused by the
	// contact extractor and never serialized.
	HTML string `json:"-"`
}

// ContactInfo holds public contact details scraped from a verified website.
type ContactInfo struct {
	Emails []string `json:"emails,omitempty"`
	Phones []string `json:"phones,omitempty"`
	Pages  []string `json:"pages,omitempty"`
}

// Empty reports whether no contact detail was found.
func (c ContactInfo) Empty() bool {
	return len(c.Emails) == 0 && len(c.Phones) == 0
}

// TriageNote is an advisory LLM classification of a verified lead.
type TriageNote struct {
	Bucket        string   `json:"bucket"`
	Score         int      `json:"score"`
	Summary       string   `json:"summary"`
	Reasons       []string `json:"reasons"`
	OutreachAngle string   `json:"outreach_angle"`
	SignalQuote   string   `json:"sponsorship_signal_quote,omitempty"`
	Model         string   `json:"model,omitempty"`
}

// ScoredLead is a RegistryRecord with its score and any enrichment appended
// later in the same run.
type ScoredLead struct {
	Record     RegistryRecord `json:"record"`
	Key        SeenKey        `json:"key"`
	Points     int            `json:"points"`
	Confidence float64        `json:"confidence"`
	CaseType   CaseType       `json:"case_type"`
	Signals    []string       `json:"signals"`

	Candidates []CandidateWebsite `json:"candidates,omitempty"`
	Match      *VerifiedMatch     `json:"match,omitempty"`
	Contact    *ContactInfo       `json:"contact,omitempty"`
	Triage     *TriageNote        `json:"triage,omitempty"`
	Notes      []string           `json:"notes,omitempty"`

	// FirstSeen is the start time of the run that first emitted the lead.
	FirstSeen time.Time `json:"first_seen"`
}

// ErrContactWithoutMatch is returned when contact data would be attached to a
// lead that has no verified website.
var ErrContactWithoutMatch = errors.New("contact info requires a verified match")

// AttachContact attaches contact data extracted from match. The match must be
// the lead's own VerifiedMatch.
func (l *ScoredLead) AttachContact(match *VerifiedMatch, info ContactInfo) error {
	if match == nil || l.Match == nil || l.Match != match {
		return ErrContactWithoutMatch
	}
	l.Contact = &info
	return nil
}

// CheckInvariants reports a structural violation on the lead, if any.
func (l *ScoredLead) CheckInvariants() error {
	if l.Contact != nil && l.Match == nil {
		return ErrContactWithoutMatch
	}
	return nil
}

// Timestamp is the registry timestamp used for tie-breaking.
func (l *ScoredLead) Timestamp() time.Time {
	return l.Record.SourceTimestamp
}

// Website returns the verified URL, if any.
func (l *ScoredLead) Website() string {
	if l.Match == nil {
		return ""
	}
	if l.Match.FinalURL != "" {
		return l.Match.FinalURL
	}
	return l.Match.Candidate.URL
}
