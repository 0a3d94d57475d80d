// Package types provides type definitions for structured data used throughout the lead pipeline.
package types

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Source identifies the upstream a RegistryRecord was fetched from.
type Source string

const (
	// SourceSponsorRegister is the Home Office register of licensed sponsors (CSV).
	SourceSponsorRegister Source = "sponsor_register"
	// SourceCompaniesHouse is the Companies House public data API.
	SourceCompaniesHouse Source = "companies_house"
)

// Officer is a company officer as returned by the registry API.
type Officer struct {
	Name               string `json:"name"`
	Role               string `json:"role,omitempty"`
	Nationality        string `json:"nationality,omitempty"`
	CountryOfResidence string `json:"country_of_residence,omitempty"`
	AddressCountry     string `json:"address_country,omitempty"`
}

// PSC is a person (or corporate entity) with significant control.
type PSC struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Country string `json:"country,omitempty"`
}

// IsCorporate reports whether the PSC is a corporate entity, legal person or
// other registrable person.
func (p PSC) IsCorporate() bool {
	k := strings.ToLower(p.Kind)
	for _, marker := range []string{"corporate", "legal-person", "other-registrable-person"} {
		if strings.Contains(k, marker) {
			return true
		}
	}
	return false
}

// RegistryRecord is one normalized row from a source adapter.
// Records are treated as immutable once fetched.
type RegistryRecord struct {
	Source          Source    `json:"source" validate:"required,oneof=sponsor_register companies_house"`
	Name            string    `json:"name" validate:"required,min=2"`
	CompanyNumber   string    `json:"company_number,omitempty" validate:"omitempty,alphanum,max=10"`
	Route           string    `json:"route,omitempty" validate:"required_if=Source sponsor_register"`
	SubRoute        string    `json:"sub_route,omitempty"`
	Rating          string    `json:"rating,omitempty"`
	Town            string    `json:"town,omitempty"`
	County          string    `json:"county,omitempty"`
	Address         string    `json:"address,omitempty"`
	Postcode        string    `json:"postcode,omitempty"`
	Country         string    `json:"country,omitempty"`
	CompanyStatus   string    `json:"company_status,omitempty"`
	CompanyType     string    `json:"company_type,omitempty"`
	IncorporatedOn  time.Time `json:"incorporated_on,omitempty"`
	SICCodes        []string  `json:"sic_codes,omitempty" validate:"dive,numeric"`
	Officers        []Officer `json:"officers,omitempty"`
	PSCs            []PSC     `json:"pscs,omitempty"`
	SourceTimestamp time.Time `json:"source_timestamp" validate:"required"`
}

var recordValidator = validator.New()

// Validate checks the record against its schema. A failure is a MalformedRecordError.
func (r *RegistryRecord) Validate() error {
	if err := recordValidator.Struct(r); err != nil {
		return &MalformedRecordError{Source: r.Source, Message: "schema validation failed", Cause: err}
	}
	if r.Source == SourceCompaniesHouse && r.CompanyNumber == "" {
		return &MalformedRecordError{Source: r.Source, Message: "company number is required"}
	}
	return nil
}

var nonAlnum = regexp.MustCompile(`[^A-Z0-9]+`)

// NormalizeName uppercases a name and collapses every run of
// non-alphanumeric characters into one space.
func NormalizeName(name string) string {
	return strings.TrimSpace(nonAlnum.ReplaceAllString(strings.ToUpper(name), " "))
}

// Key derives the record's SeenKey.
func (r *RegistryRecord) Key() SeenKey {
	if r.Source == SourceCompaniesHouse {
		return SeenKey("CH::" + strings.ToUpper(strings.TrimSpace(r.CompanyNumber)))
	}
	upper := func(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }
	return SeenKey(fmt.Sprintf("SPONSOR::%s::%s::%s::%s",
		NormalizeName(r.Name), upper(r.Town), upper(r.Route), upper(r.SubRoute)))
}

// Countries returns every country declared on the record's officers, PSCs and
// registered office, in record order.
func (r *RegistryRecord) Countries() []string {
	var out []string
	add := func(c string) {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	add(r.Country)
	for _, o := range r.Officers {
		add(o.CountryOfResidence)
		add(o.AddressCountry)
	}
	for _, p := range r.PSCs {
		add(p.Country)
	}
	return out
}

// SeenKey is the stable deduplication identifier derived from a RegistryRecord.
type SeenKey string

// SeenMeta is stored alongside a SeenKey.
type SeenMeta struct {
	Source    Source    `json:"source"`
	FirstSeen time.Time `json:"first_seen"`
	RunID     string    `json:"run_id"`
}
