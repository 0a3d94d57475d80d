// Package scoring turns registry records into scored, labelled leads using an
// ordered list of weighted signal rules.
package scoring

import (
	"strings"
	"time"

	"github.com/jonathan/sponsor-leads/internal/types"
)

// Rule is one weighted signal. Predicate must be pure: it may only look at
// the record and the reference time.
type Rule struct {
	Name      string
	Weight    int
	Predicate func(r *types.RegistryRecord, asOf time.Time) bool
}

// Sponsor routes as they appear in the register.
const (
	RouteSkilledWorker    = "Skilled Worker"
	RouteSeniorSpecialist = "Global Business Mobility: Senior or Specialist Worker"
	RouteUKExpansion      = "Global Business Mobility: UK Expansion Worker"
)

// expansionSICPrefixes are sectors where overseas groups commonly open UK entities.
var expansionSICPrefixes = []string{
	"62", "63", "70", "71", "72", "73", "74", "64", "65", "66", "46", "28", "29", "30", "32", "21", "26", "27", "5829",
}

// lowFitSICPrefixes are sectors that rarely lead to expansion work.
var lowFitSICPrefixes = []string{
	"87", "88", "49", "55", "56", "68", "41", "43", "81", "96",
}

var groupNameMarkers = []string{"(UK", " UK ", " EUROPE ", " INTERNATIONAL ", " GLOBAL ", " HOLDINGS ", " GROUP "}

// DefaultRules returns the production rule list. Order is part of the contract:
// signal names are reported in this order.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "foreign_corporate_psc", Weight: 25, Predicate: hasForeignCorporatePSC},
		{Name: "officer_resident_overseas", Weight: 15, Predicate: hasOfficerResidentOverseas},
		{Name: "officer_nationality_overseas", Weight: 10, Predicate: hasOverseasNationality},
		{Name: "registered_office_overseas", Weight: 10, Predicate: registeredOverseas},
		{Name: "priority_trading_hub", Weight: 5, Predicate: linkedToTradingHub},
		{Name: "route_uk_expansion_worker", Weight: 25, Predicate: routeContains("UK Expansion Worker")},
		{Name: "route_senior_specialist_worker", Weight: 18, Predicate: routeContains("Senior or Specialist Worker")},
		{Name: "route_skilled_worker", Weight: 12, Predicate: routeIs(RouteSkilledWorker)},
		{Name: "incorporated_within_14d", Weight: 10, Predicate: incorporatedWithin(0, 14)},
		{Name: "incorporated_15_to_30d", Weight: 6, Predicate: incorporatedWithin(15, 30)},
		{Name: "incorporated_31_to_60d", Weight: 3, Predicate: incorporatedWithin(31, 60)},
		{Name: "sic_expansion_sector", Weight: 10, Predicate: sicPrefixIn(expansionSICPrefixes)},
		{Name: "sic_low_fit_sector", Weight: -20, Predicate: sicPrefixIn(lowFitSICPrefixes)},
		{Name: "group_structure_name", Weight: 5, Predicate: hasGroupName},
	}
}

func hasForeignCorporatePSC(r *types.RegistryRecord, _ time.Time) bool {
	for _, p := range r.PSCs {
		if p.IsCorporate() && strings.TrimSpace(p.Country) != "" && !types.IsUKCountry(p.Country) {
			return true
		}
	}
	return false
}

func hasOfficerResidentOverseas(r *types.RegistryRecord, _ time.Time) bool {
	for _, o := range r.Officers {
		if !types.IsUKCountry(o.CountryOfResidence) {
			return true
		}
	}
	return false
}

func hasOverseasNationality(r *types.RegistryRecord, _ time.Time) bool {
	for _, o := range r.Officers {
		if types.IsOverseasNationality(o.Nationality) {
			return true
		}
	}
	return false
}

func registeredOverseas(r *types.RegistryRecord, _ time.Time) bool {
	return !types.IsUKCountry(r.Country)
}

func linkedToTradingHub(r *types.RegistryRecord, _ time.Time) bool {
	for _, c := range r.Countries() {
		if types.TradingHub(c) != "" {
			return true
		}
	}
	return false
}

func routeContains(fragment string) func(*types.RegistryRecord, time.Time) bool {
	return func(r *types.RegistryRecord, _ time.Time) bool {
		return r.Source == types.SourceSponsorRegister && strings.Contains(r.Route, fragment)
	}
}

func routeIs(route string) func(*types.RegistryRecord, time.Time) bool {
	return func(r *types.RegistryRecord, _ time.Time) bool {
		return r.Source == types.SourceSponsorRegister && strings.EqualFold(strings.TrimSpace(r.Route), route)
	}
}

// incorporatedWithin matches records incorporated between minDays and maxDays
// (inclusive) before asOf, counted in whole UTC days.
func incorporatedWithin(minDays, maxDays int) func(*types.RegistryRecord, time.Time) bool {
	return func(r *types.RegistryRecord, asOf time.Time) bool {
		if r.IncorporatedOn.IsZero() {
			return false
		}
		days := DaysBetween(r.IncorporatedOn, asOf)
		return days >= minDays && days <= maxDays
	}
}

// DaysBetween counts whole calendar days from a to b in UTC.
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

func sicPrefixIn(prefixes []string) func(*types.RegistryRecord, time.Time) bool {
	return func(r *types.RegistryRecord, _ time.Time) bool {
		for _, code := range r.SICCodes {
			for _, p := range prefixes {
				if strings.HasPrefix(strings.TrimSpace(code), p) {
					return true
				}
			}
		}
		return false
	}
}

func hasGroupName(r *types.RegistryRecord, _ time.Time) bool {
	n := " " + types.NormalizeSpaces(strings.ToUpper(r.Name)) + " "
	for _, m := range groupNameMarkers {
		if strings.Contains(n, m) {
			return true
		}
	}
	return false
}
