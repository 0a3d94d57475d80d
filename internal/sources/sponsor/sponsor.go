// Package sponsor adapts the Home Office register of licensed sponsors (CSV)
// into RegistryRecords.
package sponsor

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/jonathan/sponsor-leads/internal/fetch"
	"github.com/jonathan/sponsor-leads/internal/names"
	"github.com/jonathan/sponsor-leads/internal/sources"
	"github.com/jonathan/sponsor-leads/internal/types"
)

const (
	// DefaultPageURL is the GOV.UK publication that links the current CSV.
	DefaultPageURL = "https://www.gov.uk/government/publications/register-of-licensed-sponsors-workers"
	assetsHost     = "assets.publishing.service.gov.uk"
	govUKOrigin    = "https://www.gov.uk"

	// MaxCSVBytes bounds the download. The register is tens of megabytes.
	MaxCSVBytes = 128 << 20

	DefaultMinNameLength    = 3
	DefaultMaxNonAlnumRatio = 0.35
)

// Routes kept by default.
const (
	RouteSkilledWorker     = "Skilled Worker"
	RouteSeniorSpecialist  = "Global Business Mobility: Senior or Specialist Worker"
	RouteUKExpansionWorker = "Global Business Mobility: UK Expansion Worker"
)

// DefaultRoutes returns the route allowlist.
func DefaultRoutes() []string {
	return []string{RouteSkilledWorker, RouteSeniorSpecialist, RouteUKExpansionWorker}
}

// Config controls where the register is read from and what is kept.
type Config struct {
	// PageURL is scraped for the CSV link when CSVURL is empty.
	PageURL string
	// CSVURL skips discovery when set.
	CSVURL           string
	Routes           []string
	MinNameLength    int
	MaxNonAlnumRatio float64
	Retry            fetch.RetryPolicy
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		PageURL:          DefaultPageURL,
		Routes:           DefaultRoutes(),
		MinNameLength:    DefaultMinNameLength,
		MaxNonAlnumRatio: DefaultMaxNonAlnumRatio,
		Retry:            fetch.DefaultRetryPolicy(),
	}
}

// Adapter fetches and normalizes the register.
type Adapter struct {
	cfg    Config
	client *fetch.Client
	logger *zap.Logger
	now    func() time.Time
}

// New creates an Adapter. A nil client gets one sized for the CSV download.
func New(cfg Config, client *fetch.Client, logger *zap.Logger) *Adapter {
	if client == nil {
		opts := fetch.DefaultOptions()
		opts.MaxBodyBytes = MaxCSVBytes
		opts.Timeout = 2 * time.Minute
		client = fetch.NewClient(opts)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PageURL == "" {
		cfg.PageURL = DefaultPageURL
	}
	if len(cfg.Routes) == 0 {
		cfg.Routes = DefaultRoutes()
	}
	if cfg.MinNameLength <= 0 {
		cfg.MinNameLength = DefaultMinNameLength
	}
	if cfg.MaxNonAlnumRatio <= 0 {
		cfg.MaxNonAlnumRatio = DefaultMaxNonAlnumRatio
	}
	return &Adapter{cfg: cfg, client: client, logger: logger, now: time.Now}
}

// Source implements sources.Adapter.
func (a *Adapter) Source() types.Source { return types.SourceSponsorRegister }

// Fetch downloads the register and returns the kept rows.
func (a *Adapter) Fetch(ctx context.Context) (*sources.Batch, error) {
	csvURL := a.cfg.CSVURL
	if csvURL == "" {
		page, err := a.get(ctx, a.cfg.PageURL)
		if err != nil {
			return nil, a.unavailable("failed to fetch publication page", err)
		}
		csvURL, err = FindCSVLink(page.HTML)
		if err != nil {
			return nil, a.unavailable("failed to find csv link", err)
		}
	}

	res, err := a.get(ctx, csvURL)
	if err != nil {
		return nil, a.unavailable("failed to download csv", err)
	}
	fetchedAt := a.now().UTC()

	batch, err := a.Parse(strings.NewReader(res.HTML), fetchedAt)
	if err != nil {
		return nil, a.unavailable("failed to parse csv", err)
	}
	batch.Origin = csvURL

	a.logger.Info("sponsor register fetched",
		zap.String("url", csvURL),
		zap.Int("kept", len(batch.Records)),
		zap.Int("filtered", batch.Filtered),
		zap.Int("malformed", batch.Malformed))
	return batch, nil
}

func (a *Adapter) get(ctx context.Context, u string) (*fetch.Result, error) {
	var res *fetch.Result
	err := fetch.Retry(ctx, a.cfg.Retry, func() error {
		r, err := a.client.Get(ctx, u)
		if err != nil {
			return err
		}
		res = r
		return nil
	}, func(err error, wait time.Duration) {
		a.logger.Warn("retrying sponsor register request", zap.String("url", u), zap.Duration("wait", wait), zap.Error(err))
	})
	return res, err
}

func (a *Adapter) unavailable(msg string, err error) error {
	return &sources.UnavailableError{Source: types.SourceSponsorRegister, Message: msg, Cause: err}
}

// FindCSVLink returns the first .csv link on the publication page, preferring
// the GOV.UK assets host.
func FindCSVLink(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse publication page: %w", err)
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if strings.Contains(strings.ToLower(href), ".csv") {
			links = append(links, href)
		}
	})
	if len(links) == 0 {
		return "", errors.New("no csv link on publication page")
	}

	pick := links[0]
	for _, l := range links {
		if u, err := url.Parse(l); err == nil && u.Host == assetsHost {
			pick = l
			break
		}
	}
	if strings.HasPrefix(pick, "/") {
		pick = govUKOrigin + pick
	}
	return pick, nil
}

// column aliases for schema v1, lowercased.
var columnAliases = map[string][]string{
	"name":   {"organisation name", "organization name"},
	"town":   {"town/city", "town"},
	"county": {"county"},
	"rating": {"type & rating", "type and rating"},
	"route":  {"route"},
	"sub":    {"sub route", "sub-route"},
}

type columns map[string]int

func (c columns) value(row []string, field string) string {
	i, ok := c[field]
	if !ok || i >= len(row) {
		return ""
	}
	return types.NormalizeSpaces(row[i])
}

func mapHeader(header []string) (columns, error) {
	index := map[string]int{}
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}
	cols := columns{}
	for field, aliases := range columnAliases {
		for _, alias := range aliases {
			if i, ok := index[alias]; ok {
				cols[field] = i
				break
			}
		}
	}
	for _, required := range []string{"name", "route"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("csv header has no %s column: %v", required, header)
		}
	}
	return cols, nil
}

// Parse reads register CSV from r. Rows missing a name or failing validation
// are counted as malformed; rows outside the route allowlist or failing the
// noise filter are counted as filtered.
func (a *Adapter) Parse(r io.Reader, fetchedAt time.Time) (*sources.Batch, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	cols, err := mapHeader(header)
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]bool, len(a.cfg.Routes))
	for _, route := range a.cfg.Routes {
		allowed[strings.ToLower(route)] = true
	}

	batch := &sources.Batch{Source: types.SourceSponsorRegister, FetchedAt: fetchedAt}
	row := 1
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			batch.Malformed++
			a.logger.Debug("unreadable sponsor row", zap.Int("row", row), zap.Error(err))
			continue
		}

		name := names.CleanDisplay(cols.value(fields, "name"))
		if name == "" {
			batch.Malformed++
			a.logger.Debug("sponsor row missing name", zap.Error(&types.MalformedRecordError{
				Source: types.SourceSponsorRegister, Row: row, Message: "missing organisation name",
			}))
			continue
		}

		route := cols.value(fields, "route")
		if !allowed[strings.ToLower(route)] {
			batch.Filtered++
			continue
		}
		if IsNoise(name, a.cfg.MinNameLength, a.cfg.MaxNonAlnumRatio) {
			batch.Filtered++
			continue
		}

		town := cols.value(fields, "town")
		county := cols.value(fields, "county")
		rec := types.RegistryRecord{
			Source:          types.SourceSponsorRegister,
			Name:            name,
			Route:           route,
			SubRoute:        cols.value(fields, "sub"),
			Rating:          cols.value(fields, "rating"),
			Town:            town,
			County:          county,
			Address:         joinNonEmpty(", ", town, county),
			SourceTimestamp: fetchedAt,
		}
		if err := rec.Validate(); err != nil {
			var me *types.MalformedRecordError
			if errors.As(err, &me) {
				me.Row = row
			}
			batch.Malformed++
			a.logger.Debug("dropping malformed sponsor row", zap.Error(err))
			continue
		}
		batch.Records = append(batch.Records, rec)
	}
	return batch, nil
}

// IsNoise reports whether a register name is too short or mostly punctuation
// to be a real organisation.
func IsNoise(name string, minLen int, maxRatio float64) bool {
	runes := []rune(strings.TrimSpace(name))
	if len(runes) < minLen {
		return true
	}
	bad := 0
	for _, r := range runes {
		if !isAlnum(r) && r != ' ' {
			bad++
		}
	}
	return float64(bad)/float64(len(runes)) > maxRatio
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r > 127
}

func joinNonEmpty(sep string, parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
