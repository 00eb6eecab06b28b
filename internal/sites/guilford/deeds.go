package guilford

import (
	"context"
	"strings"
	"time"

	"deedscout/internal/page"
	"deedscout/internal/records"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/pkg/errors"
)

var (
	lastNameInputs  = []string{`input[name*="last" i]`, `input[id*="last" i]`, `input[name*="name" i]`}
	firstNameInputs = []string{`input[name*="first" i]`, `input[id*="first" i]`}
)

// SearchDeeds runs a party name search ("LAST FIRST") and walks the result
// pages until limit rows are collected, a page adds nothing new, or there
// is no next control.
func (c *Client) SearchDeeds(ctx context.Context, searchURL, name string, limit int) ([]records.Deed, error) {
	p, err := c.open(ctx, searchURL)
	if err != nil {
		return nil, err
	}

	last, first := splitName(name)
	el, err := c.fill(ctx, p, lastNameInputs, last)
	if err != nil {
		return nil, err
	}
	if first != "" {
		if _, err := c.fill(ctx, p, firstNameInputs, first); err != nil {
			// some sites use a single name box
			c.log.Debug().Err(err).Msg("no first name input, searching by full name")
			if el, err = c.fill(ctx, p, lastNameInputs, name); err != nil {
				return nil, err
			}
		}
	}
	if err := c.submit(ctx, p, el); err != nil {
		return nil, err
	}

	var all []records.Deed
	seen := map[string]bool{}

	for pageNum := 1; ; pageNum++ {
		html, current, err := c.html(p)
		if err != nil {
			return nil, err
		}
		deeds, err := ParseDeedResults(html, current)
		if err != nil {
			return nil, err
		}

		added := 0
		for _, d := range deeds {
			key := d.Ref.String()
			if seen[key] {
				continue
			}
			seen[key] = true
			all = append(all, d)
			added++
		}
		c.log.Info().Int("page", pageNum).Int("added", added).Int("total", len(all)).Msg("deed results")

		if limit > 0 && len(all) >= limit {
			return all[:limit], nil
		}
		if added == 0 {
			break
		}

		firstBefore := firstRowText(p)
		moved, err := nextPage(p)
		if err != nil || !moved {
			break
		}
		if !waitForChange(ctx, p, firstBefore, c.timeout) {
			c.log.Debug().Int("page", pageNum).Msg("next page did not load")
			break
		}
	}

	if len(all) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "no deeds for %q", name)
	}
	return all, nil
}

// OpenDocument navigates to the detail/image page of a deed.
func (c *Client) OpenDocument(ctx context.Context, t Templates, ref records.DeedRef) (*rod.Page, error) {
	target, err := DocumentURL(t, ref)
	if err != nil {
		return nil, err
	}
	return c.open(ctx, target)
}

func splitName(name string) (last, first string) {
	name = strings.TrimSpace(name)
	if i := strings.Index(name, ","); i > 0 {
		return strings.TrimSpace(name[:i]), strings.TrimSpace(name[i+1:])
	}
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func nextPage(p *rod.Page) (bool, error) {
	res, err := p.Timeout(5 * time.Second).Eval(`() => {
		const cands = document.querySelectorAll('a, button, input[type=submit], input[type=button]');
		for (const el of cands) {
			const t = (el.innerText || el.value || el.getAttribute('aria-label') || '').trim().toLowerCase();
			const rel = (el.getAttribute('rel') || '').toLowerCase();
			if (t === 'next' || t === '>' || t === 'next >' || t === 'next page' || rel === 'next') {
				if (el.disabled || el.classList.contains('disabled') || el.getAttribute('aria-disabled') === 'true') return false;
				el.click();
				return true;
			}
		}
		return false;
	}`)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

func firstRowText(p *rod.Page) string {
	res, err := p.Timeout(5 * time.Second).Eval(`() => {
		const row = document.querySelector('table tbody tr:nth-child(2), table tr:nth-child(2)');
		return row ? row.innerText : '';
	}`)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

func waitForChange(ctx context.Context, p *rod.Page, before string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if err := page.Sleep(ctx, 500*time.Millisecond); err != nil {
			return false
		}
		if firstRowText(p) != before {
			return true
		}
	}
	return false
}

// ParseDeedResults reads the first table whose header names a book and page
// (or an instrument number). Rows that repeat a reference, one per party,
// are folded into a single deed.
func ParseDeedResults(html, base string) ([]records.Deed, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse html")
	}

	var deeds []records.Deed
	index := map[string]int{}

	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		rows := table.Find("tr")
		if rows.Length() < 2 {
			return true
		}
		cols := map[string]int{}
		rows.First().Find("th, td").Each(func(i int, c *goquery.Selection) {
			if key := deedColumn(page.Text(c)); key != "" {
				if _, dup := cols[key]; !dup {
					cols[key] = i
				}
			}
		})
		_, hasBook := cols["book"]
		_, hasPage := cols["page"]
		_, hasInstr := cols["instrument"]
		if !(hasBook && hasPage) && !hasInstr {
			return true
		}

		rows.Slice(1, goquery.ToEnd).Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td")
			cell := func(key string) string {
				i, ok := cols[key]
				if !ok || i >= cells.Length() {
					return ""
				}
				return strings.Join(strings.Fields(cells.Eq(i).Text()), " ")
			}

			ref := records.DeedRef{Instrument: cell("instrument")}
			if book, pg := cell("book"), cell("page"); book != "" && pg != "" {
				if r, err := records.ParseDeedRef(book + "/" + pg); err == nil {
					ref.Book, ref.Page = r.Book, r.Page
				}
			}
			if ref.IsZero() {
				return
			}
			if d, ok := parseDate(cell("date")); ok {
				ref.Recorded = d
			}

			key := ref.String()
			i, ok := index[key]
			if !ok {
				href, _ := row.Find("a[href]").First().Attr("href")
				deeds = append(deeds, records.Deed{
					Ref:      ref,
					County:   County,
					DocType:  cell("type"),
					ImageURL: resolve(base, href),
				})
				i = len(deeds) - 1
				index[key] = i
			}

			d := &deeds[i]
			addParty(&d.Grantors, cell("grantor"))
			addParty(&d.Grantees, cell("grantee"))
			if name := cell("name"); name != "" {
				if strings.Contains(strings.ToLower(cell("party")), "grantee") ||
					strings.HasPrefix(strings.ToLower(cell("party")), "to") {
					addParty(&d.Grantees, name)
				} else {
					addParty(&d.Grantors, name)
				}
			}
		})
		return false
	})

	return deeds, nil
}

func deedColumn(header string) string {
	h := strings.ToLower(strings.TrimSpace(header))
	switch {
	case h == "":
		return ""
	case strings.Contains(h, "instrument") || h == "inst #" || h == "doc #":
		return "instrument"
	case strings.Contains(h, "book") && !strings.Contains(h, "page"):
		return "book"
	case h == "page" || h == "pg" || strings.HasSuffix(h, " page"):
		return "page"
	case strings.Contains(h, "grantor"):
		return "grantor"
	case strings.Contains(h, "grantee"):
		return "grantee"
	case strings.Contains(h, "date"):
		return "date"
	case strings.Contains(h, "type") && !strings.Contains(h, "party"):
		return "type"
	case strings.Contains(h, "party") || h == "direction" || h == "role":
		return "party"
	case strings.Contains(h, "name"):
		return "name"
	}
	return ""
}

func addParty(list *[]string, name string) {
	if name == "" {
		return
	}
	for _, existing := range *list {
		if strings.EqualFold(existing, name) {
			return
		}
	}
	*list = append(*list, name)
}
