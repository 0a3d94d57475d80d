//nolint:revive // types is a standard Go package name pattern
package types

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRecord_Key(t *testing.T) {
	tests := []struct {
		name   string
		record RegistryRecord
		want   SeenKey
	}{
		{
			name: "companies house uses company number",
			record: RegistryRecord{
				Source:        SourceCompaniesHouse,
				Name:          "Acme Widgets Ltd",
				CompanyNumber: " 12345678 ",
			},
			want: "CH::12345678",
		},
		{
			name: "sponsor normalizes name and fields",
			record: RegistryRecord{
				Source:   SourceSponsorRegister,
				Name:     "Acme & Sons (UK) Ltd.",
				Town:     "London",
				Route:    "Skilled Worker",
				SubRoute: "",
			},
			want: "SPONSOR::ACME SONS UK LTD::LONDON::SKILLED WORKER::",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.record.Key())
		})
	}
}

func TestRegistryRecord_KeyStableAcrossCompanyNumber(t *testing.T) {
	r := RegistryRecord{Source: SourceSponsorRegister, Name: "Acme", Town: "Leeds", Route: "Skilled Worker"}
	before := r.Key()
	r.CompanyNumber = "00000001"
	assert.Equal(t, before, r.Key())
}

func TestRegistryRecord_Validate(t *testing.T) {
	now := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		record  RegistryRecord
		wantErr bool
	}{
		{
			name: "valid companies house record",
			record: RegistryRecord{
				Source: SourceCompaniesHouse, Name: "Acme Ltd", CompanyNumber: "SC123456",
				SICCodes: []string{"62012"}, SourceTimestamp: now,
			},
		},
		{
			name: "valid sponsor record",
			record: RegistryRecord{
				Source: SourceSponsorRegister, Name: "Acme Ltd", Route: "Skilled Worker", SourceTimestamp: now,
			},
		},
		{
			name:    "missing name",
			record:  RegistryRecord{Source: SourceSponsorRegister, Route: "Skilled Worker", SourceTimestamp: now},
			wantErr: true,
		},
		{
			name:    "companies house without number",
			record:  RegistryRecord{Source: SourceCompaniesHouse, Name: "Acme Ltd", SourceTimestamp: now},
			wantErr: true,
		},
		{
			name:    "sponsor without route",
			record:  RegistryRecord{Source: SourceSponsorRegister, Name: "Acme Ltd", SourceTimestamp: now},
			wantErr: true,
		},
		{
			name: "non numeric sic",
			record: RegistryRecord{
				Source: SourceCompaniesHouse, Name: "Acme Ltd", CompanyNumber: "01234567",
				SICCodes: []string{"abc"}, SourceTimestamp: now,
			},
			wantErr: true,
		},
		{
			name:    "unknown source",
			record:  RegistryRecord{Source: "rss", Name: "Acme Ltd", SourceTimestamp: now},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.record.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var malformed *MalformedRecordError
			assert.True(t, errors.As(err, &malformed))
		})
	}
}

func TestRegistryRecord_Countries(t *testing.T) {
	r := RegistryRecord{
		Country: "United Kingdom",
		Officers: []Officer{
			{Name: "A", CountryOfResidence: "India", AddressCountry: " "},
		},
		PSCs: []PSC{{Name: "Parent GmbH", Kind: "corporate-entity-person-with-significant-control", Country: "Germany"}},
	}
	assert.Equal(t, []string{"United Kingdom", "India", "Germany"}, r.Countries())
	assert.True(t, r.PSCs[0].IsCorporate())
}

func TestMalformedRecordError(t *testing.T) {
	cause := errors.New("bad")
	err := &MalformedRecordError{Source: SourceSponsorRegister, Row: 4, Message: "missing name", Cause: cause}
	assert.Equal(t, "malformed record (sponsor_register row 4): missing name: bad", err.Error())
	assert.ErrorIs(t, err, cause)
}
