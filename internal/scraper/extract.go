// Package scraper turns CAI listing pages into decision records.
//
// A listing page groups decisions into accordion sections, one per year.
// Each section holds a table whose rows follow one of two layouts, told
// apart by cell count (see ParseRow).
package scraper

import (
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const (
	sectionSelector = "div.modules-accordion_list-item"
	headingSelector = ".list-title__text"
	rowSelector     = "table tbody tr"

	MaxSubjectLen       = 500
	MaxOrganizationLen  = 300
	MaxDocumentTitleLen = 500
)

// Page is one fetched listing page. URL is used to resolve relative links.
type Page struct {
	URL  string
	HTML string
}

// Record is a decision as read from a listing, before any PDF work.
type Record struct {
	DecisionNumber string
	DecisionDate   string
	Subject        string
	Organization   string
	DocumentTitle  string
	DocumentURL    string
	DecisionURL    string
	// PDFFilename is the trailing .pdf segment of DocumentURL, if any.
	PDFFilename string
	Year        int
}

// Extract parses every page in order and returns the concatenated records.
// Malformed sections and rows are skipped; Extract never fails.
func Extract(pages ...Page) []Record {
	var records []Record
	for _, p := range pages {
		records = append(records, extractPage(p)...)
	}
	return records
}

func extractPage(p Page) []Record {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.HTML))
	if err != nil {
		slog.Warn("could not parse listing page", "url", p.URL, "error", err)
		return nil
	}
	base, err := url.Parse(p.URL)
	if err != nil || p.URL == "" {
		base = nil
	}

	var records []Record
	doc.Find(sectionSelector).Each(func(_ int, section *goquery.Selection) {
		heading := strings.TrimSpace(section.Find(headingSelector).Text())
		year, ok := parseYear(heading)
		if !ok {
			slog.Debug("skipping section without a year heading", "url", p.URL, "heading", heading)
			return
		}

		section.Find(rowSelector).Each(func(i int, tr *goquery.Selection) {
			if i == 0 {
				return
			}
			var cells []Cell
			tr.Find("td").Each(func(_ int, td *goquery.Selection) {
				cells = append(cells, readCell(td, base))
			})
			row := ParseRow(cells)
			if row == nil {
				return
			}
			if rec, ok := buildRecord(row, year); ok {
				records = append(records, rec)
			}
		})
	})
	return records
}

var leadingDigits = regexp.MustCompile(`^\d+`)

// parseYear reads the leading decimal digits of a section heading.
func parseYear(heading string) (int, bool) {
	digits := leadingDigits.FindString(heading)
	if digits == "" {
		return 0, false
	}
	year, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return year, true
}

func readCell(td *goquery.Selection, base *url.URL) Cell {
	c := Cell{Text: strings.TrimSpace(td.Text())}
	td.Find("a").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		c.Links = append(c.Links, Link{
			Label: strings.TrimSpace(a.Text()),
			Href:  resolve(base, strings.TrimSpace(href)),
		})
	})
	return c
}

func resolve(base *url.URL, href string) string {
	if base == nil || href == "" {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func buildRecord(row Row, year int) (Record, bool) {
	f := row.Fields()
	if f.Number == "" {
		return Record{}, false
	}

	title, documentURL, decisionURL := classifyLinks(f.Documents.Links)
	return Record{
		DecisionNumber: f.Number,
		DecisionDate:   f.Date,
		Subject:        truncate(f.Subject, MaxSubjectLen),
		Organization:   truncate(Organization(f.Subject), MaxOrganizationLen),
		DocumentTitle:  truncate(title, MaxDocumentTitleLen),
		DocumentURL:    documentURL,
		DecisionURL:    decisionURL,
		PDFFilename:    PDFFilename(documentURL),
		Year:           year,
	}, true
}

// classifyLinks assigns links labelled "décision"/"decision" to the decision
// URL and "document" to the document URL; the first label is the title.
// A lone decision link is the primary document.
func classifyLinks(links []Link) (title, documentURL, decisionURL string) {
	for _, l := range links {
		label := strings.ToLower(l.Label)
		switch {
		case strings.Contains(label, "décision") || strings.Contains(label, "decision"):
			decisionURL = l.Href
		case strings.Contains(label, "document"):
			documentURL = l.Href
		}
		if title == "" {
			title = l.Label
		}
	}
	if documentURL == "" && decisionURL != "" {
		documentURL, decisionURL = decisionURL, ""
	}
	return title, documentURL, decisionURL
}

var (
	organizationPattern = regexp.MustCompile(`à l'endroit (?:de |du |d')?(.+?)(?:\.|$)`)
	ellipsisPattern     = regexp.MustCompile(`\s*\[…\]\s*`)
	pdfFilenamePattern  = regexp.MustCompile(`(?i)/([^/]+\.pdf)`)
)

// Organization derives the organization named in a subject of the form
// "... à l'endroit de <name>." It returns "" when the phrase is absent.
func Organization(subject string) string {
	m := organizationPattern.FindStringSubmatch(subject)
	if m == nil {
		return ""
	}
	org := strings.TrimSpace(m[1])
	return strings.TrimSpace(ellipsisPattern.ReplaceAllString(org, ""))
}

// PDFFilename returns the trailing "*.pdf" path segment of u, or "".
func PDFFilename(u string) string {
	m := pdfFilenamePattern.FindStringSubmatch(u)
	if m == nil {
		return ""
	}
	return m[1]
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
