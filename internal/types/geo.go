package types

import "strings"

var ukCountries = map[string]bool{
	"UNITED KINGDOM":    true,
	"UK":                true,
	"ENGLAND":           true,
	"SCOTLAND":          true,
	"WALES":             true,
	"NORTHERN IRELAND":  true,
	"GREAT BRITAIN":     true,
	"ENGLAND AND WALES": true,
}

var ukNationalities = map[string]bool{
	"BRITISH":        true,
	"ENGLISH":        true,
	"SCOTTISH":       true,
	"WELSH":          true,
	"NORTHERN IRISH": true,
	"IRISH":          true,
}

// NormalizeSpaces collapses runs of whitespace into single spaces and trims.
func NormalizeSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func normUpper(s string) string {
	return strings.ToUpper(NormalizeSpaces(s))
}

// IsUKCountry reports whether country names a UK nation. Blank counts as UK
// because the registry omits the country for most domestic addresses.
func IsUKCountry(country string) bool {
	c := normUpper(country)
	return c == "" || ukCountries[c]
}

// IsOverseasNationality reports whether a declared nationality is outside the
// UK and Ireland. Blank is not overseas.
func IsOverseasNationality(nationality string) bool {
	n := normUpper(nationality)
	if n == "" {
		return false
	}
	for _, part := range strings.Split(n, ",") {
		if !ukNationalities[strings.TrimSpace(part)] {
			return true
		}
	}
	return false
}

// tradingHubs maps country spellings seen in registry data to a canonical hub name.
var tradingHubs = map[string]string{
	"INDIA":                      "India",
	"UNITED STATES":              "United States",
	"UNITED STATES OF AMERICA":   "United States",
	"USA":                        "United States",
	"US":                         "United States",
	"CHINA":                      "China",
	"PEOPLE'S REPUBLIC OF CHINA": "China",
	"UNITED ARAB EMIRATES":       "United Arab Emirates",
	"UAE":                        "United Arab Emirates",
	"AUSTRALIA":                  "Australia",
	"JAPAN":                      "Japan",
	"SOUTH KOREA":                "South Korea",
	"KOREA, REPUBLIC OF":         "South Korea",
	"REPUBLIC OF KOREA":          "South Korea",
	"CANADA":                     "Canada",
	"SINGAPORE":                  "Singapore",
	"HONG KONG":                  "Hong Kong",
	"SWITZERLAND":                "Switzerland",
	"GERMANY":                    "Germany",
	"FRANCE":                     "France",
	"NETHERLANDS":                "Netherlands",
	"THE NETHERLANDS":            "Netherlands",
	"IRELAND":                    "Ireland",
	"LUXEMBOURG":                 "Luxembourg",
	"SAUDI ARABIA":               "Saudi Arabia",
	"QATAR":                      "Qatar",
	"ISRAEL":                     "Israel",
	"TAIWAN":                     "Taiwan",
	"NEW ZEALAND":                "New Zealand",
}

// TradingHub returns the canonical hub name for country, or "" when the
// country is not one of the priority trading hubs.
func TradingHub(country string) string {
	return tradingHubs[normUpper(country)]
}
