//nolint:revive // types is a standard Go package name pattern
package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoredLead_AttachContact(t *testing.T) {
	t.Run("rejects lead without match", func(t *testing.T) {
		lead := ScoredLead{}
		err := lead.AttachContact(&VerifiedMatch{}, ContactInfo{Emails: []string{"hr@acme.co.uk"}})
		assert.ErrorIs(t, err, ErrContactWithoutMatch)
		assert.Nil(t, lead.Contact)
	})

	t.Run("rejects foreign match", func(t *testing.T) {
		lead := ScoredLead{Match: &VerifiedMatch{Score: 9}}
		err := lead.AttachContact(&VerifiedMatch{Score: 9}, ContactInfo{})
		assert.ErrorIs(t, err, ErrContactWithoutMatch)
	})

	t.Run("attaches to own match", func(t *testing.T) {
		m := &VerifiedMatch{Score: 9}
		lead := ScoredLead{Match: m}
		require.NoError(t, lead.AttachContact(m, ContactInfo{Phones: []string{"+44 20 7946 0000"}}))
		require.NotNil(t, lead.Contact)
		assert.NoError(t, lead.CheckInvariants())
	})
}

func TestScoredLead_CheckInvariants(t *testing.T) {
	lead := ScoredLead{Contact: &ContactInfo{Emails: []string{"x@y.com"}}}
	assert.ErrorIs(t, lead.CheckInvariants(), ErrContactWithoutMatch)
}

func TestScoredLead_Website(t *testing.T) {
	lead := ScoredLead{}
	assert.Empty(t, lead.Website())

	lead.Match = &VerifiedMatch{Candidate: CandidateWebsite{URL: "https://acme.co.uk"}}
	assert.Equal(t, "https://acme.co.uk", lead.Website())

	lead.Match.FinalURL = "https://www.acme.co.uk/"
	assert.Equal(t, "https://www.acme.co.uk/", lead.Website())
}

func TestCaseType_Hint(t *testing.T) {
	for _, c := range AllCaseTypes {
		assert.NotEmpty(t, c.Hint(), c)
	}
	assert.Len(t, AllCaseTypes, 5)
}

func TestContactInfo_Empty(t *testing.T) {
	assert.True(t, ContactInfo{Pages: []string{"https://a"}}.Empty())
	assert.False(t, ContactInfo{Emails: []string{"a@b.co"}}.Empty())
}
