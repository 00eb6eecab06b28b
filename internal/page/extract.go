package page

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/pkg/errors"
)

// Extraction levels.
const (
	LevelFull  = "full"  // whole document including head
	LevelBody  = "body"  // body inner HTML
	LevelText  = "text"  // body text only
	LevelCSS   = "css"   // outer HTML of every selector match
	LevelXPath = "xpath" // same as css but needs the live page
)

// ValidLevel reports whether level is a known extraction level.
func ValidLevel(level string) bool {
	switch level {
	case LevelFull, LevelBody, LevelText, LevelCSS, LevelXPath:
		return true
	}
	return false
}

// Extract pulls content at the given level out of rendered HTML.
// LevelXPath is not supported here; use ExtractXPath with the live page.
func Extract(html, level, selector string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", errors.Wrap(err, "failed to parse html")
	}

	switch level {
	case LevelFull:
		out, err := goquery.OuterHtml(doc.Selection)
		if err != nil {
			return "", err
		}
		if !strings.Contains(strings.ToLower(out[:min(len(out), 64)]), "<!doctype") {
			out = "<!DOCTYPE html>\n" + out
		}
		return out, nil
	case LevelBody, "":
		return doc.Find("body").Html()
	case LevelText:
		doc.Find("script, style, noscript").Remove()
		return Text(doc.Find("body")), nil
	case LevelCSS:
		if selector == "" {
			return "", errors.New("a selector is required for the css level")
		}
		var parts []string
		var outerErr error
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			h, err := goquery.OuterHtml(s)
			if err != nil {
				outerErr = err
				return
			}
			parts = append(parts, h)
		})
		if outerErr != nil {
			return "", outerErr
		}
		return strings.Join(parts, "\n"), nil
	default:
		return "", errors.Errorf("unsupported level: %s", level)
	}
}

// ExtractXPath returns the outer HTML of every XPath match on a live page.
func ExtractXPath(p *rod.Page, xpath string) (string, error) {
	elements, err := p.Timeout(10 * time.Second).ElementsX(xpath)
	if err != nil {
		return "", errors.Wrap(err, "failed to query xpath")
	}

	parts := make([]string, 0, len(elements))
	for _, el := range elements {
		h, err := el.HTML()
		if err != nil {
			return "", errors.Wrap(err, "failed to get element html")
		}
		parts = append(parts, h)
	}
	return strings.Join(parts, "\n"), nil
}

// Text returns the visible text of a selection with whitespace collapsed per line.
func Text(s *goquery.Selection) string {
	lines := strings.Split(s.Text(), "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// Table is a parsed HTML table.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Tables parses every <table> in html. The first row doubles as the header
// when there is no <thead>.
func Tables(html string) ([]Table, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse html")
	}

	var tables []Table
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		// skip tables nested in another table's cells; they are part of the outer row text
		if table.ParentsFiltered("table").Length() > 0 {
			return
		}

		var t Table
		headerRow := table.Find("thead tr").First()
		rows := table.Find("tbody tr")
		if headerRow.Length() == 0 {
			headerRow = table.Find("tr").First()
			rows = table.Find("tr").Slice(1, goquery.ToEnd)
		} else if rows.Length() == 0 {
			rows = table.Find("tr").Not("thead tr")
		}

		headerRow.Find("th, td").Each(func(_ int, c *goquery.Selection) {
			t.Headers = append(t.Headers, strings.Join(strings.Fields(c.Text()), " "))
		})
		rows.Each(func(_ int, r *goquery.Selection) {
			var cells []string
			r.Find("td, th").Each(func(_ int, c *goquery.Selection) {
				cells = append(cells, strings.Join(strings.Fields(c.Text()), " "))
			})
			if len(cells) > 0 {
				t.Rows = append(t.Rows, cells)
			}
		})
		tables = append(tables, t)
	})
	return tables, nil
}
