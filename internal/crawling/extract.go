// Package crawling discovers same-site links on an already verified website.
package crawling

import (
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Link is an absolute same-site URL with its anchor text.
type Link struct {
	URL  string
	Text string
}

// ExtractLinks extracts all same-site http(s) links from HTML content.
// Hosts that differ only by a leading "www." are treated as the same site.
func ExtractLinks(htmlContent string, baseURL string) ([]Link, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, &LinkExtractionError{
			BaseURL: baseURL,
			Message: "failed to parse base URL",
			Cause:   err,
		}
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, &LinkExtractionError{
			BaseURL: baseURL,
			Message: "base URL must have scheme and host",
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, &LinkExtractionError{
			BaseURL: baseURL,
			Message: "failed to parse HTML",
			Cause:   err,
		}
	}

	linkSet := make(map[string]bool)
	links := make([]Link, 0)

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, exists := s.Attr("href")
		if !exists || strings.TrimSpace(href) == "" {
			return
		}

		linkURL, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}

		absoluteURL := base.ResolveReference(linkURL)
		if absoluteURL.Scheme != "http" && absoluteURL.Scheme != "https" {
			return
		}
		if !SameSite(absoluteURL.Host, base.Host) {
			return
		}

		absoluteURL.Fragment = ""
		urlString := strings.TrimSuffix(absoluteURL.String(), "/")

		if !linkSet[urlString] {
			linkSet[urlString] = true
			links = append(links, Link{URL: urlString, Text: strings.Join(strings.Fields(s.Text()), " ")})
		}
	})

	return links, nil
}

// SameSite compares hosts ignoring case and a leading "www.".
func SameSite(a, b string) bool {
	norm := func(h string) string {
		return strings.TrimPrefix(strings.ToLower(h), "www.")
	}
	return norm(a) == norm(b)
}

// PageKind classifies a link by where it points.
type PageKind int

// Page kinds in order of preference for contact discovery.
const (
	KindOther PageKind = iota
	KindContact
	KindLegal
	KindAbout
)

var contactMarkers = []string{"/contact", "contact-us", "contactus", "get-in-touch", "/enquir"}
var legalMarkers = []string{"/privacy", "/terms", "/legal", "/imprint", "/impressum", "/cookie", "/disclaimer"}
var aboutMarkers = []string{"/about", "/company", "/who-we-are"}

// Classify returns the kind of page a link points at, based on its path and text.
func Classify(l Link) PageKind {
	u := strings.ToLower(l.URL)
	if parsed, err := url.Parse(u); err == nil {
		u = parsed.Path
	}
	text := strings.ToLower(l.Text)
	switch {
	case containsAny(u, contactMarkers) || strings.Contains(text, "contact"):
		return KindContact
	case containsAny(u, legalMarkers) || strings.Contains(text, "privacy") || strings.Contains(text, "terms"):
		return KindLegal
	case containsAny(u, aboutMarkers) || strings.Contains(text, "about us"):
		return KindAbout
	default:
		return KindOther
	}
}

// ContactPages selects up to max links likely to carry public contact details:
// contact pages first, then legal pages, then about pages, each in document order.
func ContactPages(links []Link, max int) []Link {
	type ranked struct {
		link Link
		kind PageKind
	}
	var picked []ranked
	for _, l := range links {
		if k := Classify(l); k != KindOther {
			picked = append(picked, ranked{link: l, kind: k})
		}
	}
	sort.SliceStable(picked, func(i, j int) bool {
		return picked[i].kind < picked[j].kind
	})

	out := make([]Link, 0, len(picked))
	for _, p := range picked {
		if max > 0 && len(out) >= max {
			break
		}
		out = append(out, p.link)
	}
	return out
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
