// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Store backends.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Search providers.
const (
	SearchGoogle  = "google"
	SearchSerpAPI = "serpapi"
	SearchNone    = "none"
)

// Environment variables read by ApplyEnv.
const (
	EnvCompaniesHouseKey = "COMPANIES_HOUSE_API_KEY"
	EnvGoogleKey         = "GOOGLE_SEARCH_API_KEY"
	EnvGoogleCX          = "GOOGLE_SEARCH_CX"
	EnvSerpAPIKey        = "SERPAPI_KEY"
	EnvGeminiKey         = "GEMINI_API_KEY"
	EnvDatabaseURL       = "DATABASE_URL"
)

// Duration is a time.Duration that reads "20s" style strings from JSON.
type Duration time.Duration

// UnmarshalJSON accepts a duration string or a number of seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("duration must be a string or seconds: %w", err)
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config represents the run configuration that can be loaded from a JSON file.
// All fields are optional; missing values use defaults or CLI flags.
type Config struct {
	// State
	Store       string `json:"store,omitempty" validate:"omitempty,oneof=sqlite postgres memory"`
	StatePath   string `json:"state_path,omitempty"`
	DatabaseURL string `json:"database_url,omitempty"`

	// Sponsor Register
	SponsorPageURL string   `json:"sponsor_page_url,omitempty" validate:"omitempty,url"`
	SponsorCSVURL  string   `json:"sponsor_csv_url,omitempty" validate:"omitempty,url"`
	Routes         []string `json:"routes,omitempty" validate:"omitempty,dive,required"`

	// Companies House
	CompaniesHouseAPIKey string  `json:"companies_house_api_key,omitempty"`
	CHRatePerSecond      float64 `json:"ch_rate_per_second,omitempty" validate:"gte=0"`
	CHBurst              int     `json:"ch_burst,omitempty" validate:"gte=0"`
	LookbackDays         int     `json:"lookback_days,omitempty" validate:"gte=0,lte=365"`
	MaxResults           int     `json:"max_results,omitempty" validate:"gte=0"`
	MaxProfiles          int     `json:"max_profiles,omitempty" validate:"gte=0"`

	// Website resolution
	SearchProvider   string `json:"search_provider,omitempty" validate:"omitempty,oneof=google serpapi none"`
	NoSearch         bool   `json:"no_search,omitempty"`
	GoogleAPIKey     string `json:"google_api_key,omitempty"`
	GoogleCX         string `json:"google_cx,omitempty"`
	SerpAPIKey       string `json:"serpapi_key,omitempty"`
	MaxSearchQueries int    `json:"max_search_queries,omitempty" validate:"gte=0"`

	// Verification and contacts
	VerifyThreshold int  `json:"verify_threshold,omitempty" validate:"gte=0,lte=10"`
	UseBrowser      bool `json:"use_browser,omitempty"`
	ContactPages    int  `json:"contact_pages,omitempty"`
	// EnrichCacheDays is how long a company's enrichment result is reused.
	EnrichCacheDays int `json:"enrich_cache_days,omitempty" validate:"gte=0,lte=365"`

	// Triage
	Triage       bool   `json:"triage,omitempty"`
	GeminiAPIKey string `json:"gemini_api_key,omitempty"`
	TriageModel  string `json:"triage_model,omitempty"`

	// Run limits
	MaxLeads    int      `json:"max_leads,omitempty" validate:"gte=0"`
	Workers     int      `json:"workers,omitempty" validate:"gte=0,lte=64"`
	HTTPTimeout Duration `json:"http_timeout,omitempty" validate:"gte=0"`
	RunTimeout  Duration `json:"run_timeout,omitempty" validate:"gte=0"`
	MaxRetries  int      `json:"max_retries,omitempty" validate:"gte=0,lte=10"`

	// Output
	Verbose     bool   `json:"verbose,omitempty"`
	MetricsFile string `json:"metrics_file,omitempty"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Store:            StoreSQLite,
		StatePath:        "leadbot.db",
		SearchProvider:   SearchGoogle,
		CHRatePerSecond:  2,
		CHBurst:          5,
		LookbackDays:     30,
		MaxResults:       800,
		MaxProfiles:      140,
		MaxSearchQueries: 80,
		VerifyThreshold:  7,
		ContactPages:     4,
		EnrichCacheDays:  60,
		MaxLeads:         25,
		Workers:          4,
		HTTPTimeout:      Duration(20 * time.Second),
		RunTimeout:       Duration(15 * time.Minute),
		MaxRetries:       3,
	}
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// MergeWithDefaults returns a new Config with zero fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	str := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	num := func(dst *int, def int) {
		if *dst == 0 {
			*dst = def
		}
	}

	str(&result.Store, defaults.Store)
	str(&result.StatePath, defaults.StatePath)
	str(&result.DatabaseURL, defaults.DatabaseURL)
	str(&result.SponsorPageURL, defaults.SponsorPageURL)
	str(&result.SponsorCSVURL, defaults.SponsorCSVURL)
	str(&result.CompaniesHouseAPIKey, defaults.CompaniesHouseAPIKey)
	str(&result.SearchProvider, defaults.SearchProvider)
	str(&result.GoogleAPIKey, defaults.GoogleAPIKey)
	str(&result.GoogleCX, defaults.GoogleCX)
	str(&result.SerpAPIKey, defaults.SerpAPIKey)
	str(&result.GeminiAPIKey, defaults.GeminiAPIKey)
	str(&result.TriageModel, defaults.TriageModel)
	str(&result.MetricsFile, defaults.MetricsFile)

	num(&result.CHBurst, defaults.CHBurst)
	num(&result.LookbackDays, defaults.LookbackDays)
	num(&result.MaxResults, defaults.MaxResults)
	num(&result.MaxProfiles, defaults.MaxProfiles)
	num(&result.MaxSearchQueries, defaults.MaxSearchQueries)
	num(&result.VerifyThreshold, defaults.VerifyThreshold)
	num(&result.ContactPages, defaults.ContactPages)
	num(&result.EnrichCacheDays, defaults.EnrichCacheDays)
	num(&result.MaxLeads, defaults.MaxLeads)
	num(&result.Workers, defaults.Workers)
	num(&result.MaxRetries, defaults.MaxRetries)

	if result.CHRatePerSecond == 0 {
		result.CHRatePerSecond = defaults.CHRatePerSecond
	}
	if result.HTTPTimeout == 0 {
		result.HTTPTimeout = defaults.HTTPTimeout
	}
	if result.RunTimeout == 0 {
		result.RunTimeout = defaults.RunTimeout
	}
	if len(result.Routes) == 0 {
		result.Routes = defaults.Routes
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}

// ApplyEnv fills empty secrets from the environment. getenv is os.Getenv in
// production.
func (c *Config) ApplyEnv(getenv func(string) string) {
	fill := func(dst *string, name string) {
		if *dst == "" {
			*dst = strings.TrimSpace(getenv(name))
		}
	}
	fill(&c.CompaniesHouseAPIKey, EnvCompaniesHouseKey)
	fill(&c.GoogleAPIKey, EnvGoogleKey)
	fill(&c.GoogleCX, EnvGoogleCX)
	fill(&c.SerpAPIKey, EnvSerpAPIKey)
	fill(&c.GeminiAPIKey, EnvGeminiKey)
	fill(&c.DatabaseURL, EnvDatabaseURL)
}

var configValidator = validator.New()

// Validate checks field ranges and cross-field requirements.
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	if c.Store == StorePostgres && c.DatabaseURL == "" {
		return fmt.Errorf("config error: store %q requires database_url or %s", StorePostgres, EnvDatabaseURL)
	}
	if c.Triage && c.GeminiAPIKey == "" {
		return fmt.Errorf("config error: triage requires gemini_api_key or %s", EnvGeminiKey)
	}
	if c.SponsorCSVURL != "" && c.SponsorPageURL != "" {
		return fmt.Errorf("config error: 'sponsor_csv_url' and 'sponsor_page_url' are mutually exclusive")
	}

	return nil
}

// SearchEnabled reports whether the configured provider has its credentials.
// Missing credentials disable search rather than failing the run.
func (c *Config) SearchEnabled() bool {
	if c.NoSearch || c.MaxSearchQueries <= 0 {
		return false
	}
	switch c.SearchProvider {
	case SearchGoogle:
		return c.GoogleAPIKey != "" && c.GoogleCX != ""
	case SearchSerpAPI:
		return c.SerpAPIKey != ""
	default:
		return false
	}
}
