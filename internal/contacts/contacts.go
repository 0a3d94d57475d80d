// Package contacts extracts publicly displayed contact details from a
// verified company website.
package contacts

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/jonathan/sponsor-leads/internal/crawling"
	"github.com/jonathan/sponsor-leads/internal/fetch"
	"github.com/jonathan/sponsor-leads/internal/types"
)

// ErrNotVerified is returned when Extract is called without a VerifiedMatch.
var ErrNotVerified = errors.New("contact extraction requires a verified website")

const (
	DefaultMaxPages = 4
	maxEmails       = 5
	maxPhones       = 5
)

// Options configures an Extractor.
type Options struct {
	// MaxPages bounds the extra contact or legal pages fetched per site.
	MaxPages int
}

// Extractor collects emails and phone numbers from a verified site.
type Extractor struct {
	client *fetch.Client
	opts   Options
	logger *zap.Logger
}

// New creates an Extractor.
func New(client *fetch.Client, opts Options, logger *zap.Logger) *Extractor {
	if client == nil {
		client = fetch.NewClient(nil)
	}
	// Negative MaxPages reads the verified page only.
	if opts.MaxPages == 0 {
		opts.MaxPages = DefaultMaxPages
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{client: client, opts: opts, logger: logger}
}

// Extract reads the verified page and up to MaxPages same-site contact pages.
// Only contact sections are read: mailto and tel links, footer, address and
// contact-labelled elements, and the full text of contact pages. An empty
// result is not an error.
func (e *Extractor) Extract(ctx context.Context, match *types.VerifiedMatch) (types.ContactInfo, error) {
	if match == nil {
		return types.ContactInfo{}, ErrNotVerified
	}

	base := match.FinalURL
	if base == "" {
		base = match.Candidate.URL
	}
	html := match.HTML
	if html == "" {
		res, err := e.client.Get(ctx, base)
		if err != nil {
			return types.ContactInfo{}, err
		}
		html = res.HTML
	}

	var chunks []string
	chunks = append(chunks, ContactSections(html, false)...)
	pages := []string{base}

	var extra []crawling.Link
	if e.opts.MaxPages > 0 {
		links, err := crawling.ExtractLinks(html, base)
		if err != nil {
			e.logger.Debug("link extraction failed", zap.String("url", base), zap.Error(err))
		}
		extra = crawling.ContactPages(links, e.opts.MaxPages)
	}
	for _, link := range extra {
		if ctx.Err() != nil {
			break
		}
		res, err := e.client.Get(ctx, link.URL)
		if err != nil {
			e.logger.Debug("contact page fetch failed", zap.String("url", link.URL), zap.Error(err))
			continue
		}
		chunks = append(chunks, ContactSections(res.HTML, crawling.Classify(link) == crawling.KindContact)...)
		pages = append(pages, link.URL)
	}

	text := strings.Join(chunks, "\n")
	return types.ContactInfo{
		Emails: RankEmails(ExtractEmails(text), siteDomain(base)),
		Phones: ExtractPhones(text),
		Pages:  pages,
	}, nil
}

// ContactSections returns the parts of a page that publicly display contact
// details. When wholePage is set the page's visible text is included too.
func ContactSections(html string, wholePage bool) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var out []string
	doc.Find(`a[href^="mailto:"], a[href^="tel:"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if i := strings.Index(href, ":"); i >= 0 {
			v := href[i+1:]
			if q := strings.IndexByte(v, '?'); q >= 0 {
				v = v[:q]
			}
			if un, err := url.PathUnescape(v); err == nil {
				v = un
			}
			out = append(out, v)
		}
	})

	doc.Find("script, style, noscript").Remove()
	if wholePage {
		out = append(out, doc.Find("body").Text())
		return out
	}
	doc.Find(`footer, address, [id*="contact"], [class*="contact"]`).Each(func(_ int, s *goquery.Selection) {
		out = append(out, s.Text())
	})
	return out
}

var (
	emailPattern = regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\-\s().]{8,}\d`)
)

var placeholderDomains = []string{"example.com", "domain.com", "email.com", "yourdomain.com"}

var assetSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp"}

// ExtractEmails returns the unique lowercased addresses in text, without
// placeholders or asset file names.
func ExtractEmails(text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range emailPattern.FindAllString(text, -1) {
		e := strings.ToLower(strings.Trim(m, "."))
		if seen[e] || isPlaceholder(e) {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

func isPlaceholder(email string) bool {
	for _, d := range placeholderDomains {
		if strings.HasSuffix(email, "@"+d) || strings.HasSuffix(email, "."+d) {
			return true
		}
	}
	for _, s := range assetSuffixes {
		if strings.HasSuffix(email, s) {
			return true
		}
	}
	return false
}

var rolePreferences = []string{
	"immigration@", "globalmobility@", "mobility@", "hr@", "people@", "talent@",
	"recruitment@", "legal@", "admin@", "office@", "info@",
}

var freeMailDomains = []string{"gmail.com", "yahoo.com", "hotmail.com", "outlook.com", "icloud.com"}

// EmailScore ranks an address: role preference, same domain as the site, and
// a penalty for free mail providers.
func EmailScore(email, domain string) int {
	e := strings.ToLower(email)
	score := 0
	for i, p := range rolePreferences {
		if strings.HasPrefix(e, p) {
			score += 50 - i
			break
		}
	}
	if domain != "" && (strings.HasSuffix(e, "@"+domain) || strings.HasSuffix(e, "."+domain)) {
		score += 25
	}
	for _, d := range freeMailDomains {
		if strings.HasSuffix(e, "@"+d) {
			score -= 10
			break
		}
	}
	return score
}

// RankEmails orders emails by EmailScore, then shorter, then alphabetically,
// and keeps the top five.
func RankEmails(emails []string, domain string) []string {
	out := append([]string(nil), emails...)
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := EmailScore(out[i], domain), EmailScore(out[j], domain)
		if si != sj {
			return si > sj
		}
		if len(out[i]) != len(out[j]) {
			return len(out[i]) < len(out[j])
		}
		return out[i] < out[j]
	})
	if len(out) > maxEmails {
		out = out[:maxEmails]
	}
	return out
}

// ExtractPhones returns up to five phone numbers with at least nine digits,
// deduplicated by their digits, in order of appearance.
func ExtractPhones(text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range phonePattern.FindAllString(text, -1) {
		digits := onlyDigits(m)
		if len(digits) < 9 || len(digits) > 15 || seen[digits] {
			continue
		}
		seen[digits] = true
		out = append(out, types.NormalizeSpaces(m))
		if len(out) == maxPhones {
			break
		}
	}
	return out
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func siteDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
