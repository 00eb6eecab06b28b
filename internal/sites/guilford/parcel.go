package guilford

import (
	"context"
	"regexp"
	"strings"
	"time"

	"deedscout/internal/page"
	"deedscout/internal/records"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
)

var (
	parcelIDInputs = []string{`input[name*="parcel" i]`, `input[id*="parcel" i]`, `input[name*="pin" i]`}
	addressInputs  = []string{`input[name*="address" i]`, `input[id*="address" i]`, `input[name*="street" i]`}
)

// ParcelHit is one row of the parcel search results.
type ParcelHit struct {
	Cells []string
	URL   string
}

// LookupParcel searches by PIN or street address and parses the first
// matching detail page.
func (c *Client) LookupParcel(ctx context.Context, searchURL, target string) (*records.Parcel, error) {
	p, err := c.open(ctx, searchURL)
	if err != nil {
		return nil, err
	}

	selectors := addressInputs
	query := strings.TrimSpace(target)
	if pin := records.NormalizeParcelID(target); pin != "" {
		selectors, query = parcelIDInputs, pin
	}

	el, err := c.fill(ctx, p, selectors, query)
	if err != nil {
		return nil, err
	}
	if err := c.submit(ctx, p, el); err != nil {
		return nil, err
	}

	html, current, err := c.html(p)
	if err != nil {
		return nil, err
	}

	// Single matches often redirect straight to the detail page.
	if parcel, err := ParseParcelDetail(html); err == nil {
		return parcel, nil
	}

	hits, err := ParseParcelResults(html, current)
	if err != nil {
		return nil, err
	}
	hit, ok := pickHit(hits, query)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "parcel %q", target)
	}

	c.log.Info().Str("url", hit.URL).Int("hits", len(hits)).Msg("opening parcel detail")
	if err := page.Goto(ctx, p, hit.URL, page.WaitIdle, "", c.timeout); err != nil {
		return nil, err
	}
	html, _, err = c.html(p)
	if err != nil {
		return nil, err
	}
	return ParseParcelDetail(html)
}

func pickHit(hits []ParcelHit, query string) (ParcelHit, bool) {
	if len(hits) == 0 {
		return ParcelHit{}, false
	}
	q := strings.ToUpper(query)
	for _, h := range hits {
		for _, cell := range h.Cells {
			if strings.Contains(strings.ToUpper(cell), q) || records.NormalizeParcelID(cell) == q {
				return h, true
			}
		}
	}
	return hits[0], true
}

// ParseParcelResults returns every table row that links somewhere.
func ParseParcelResults(html, base string) ([]ParcelHit, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse html")
	}

	var hits []ParcelHit
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		href, ok := row.Find("a[href]").First().Attr("href")
		if !ok {
			return
		}
		link := resolve(base, href)
		if link == "" {
			return
		}
		var cells []string
		row.Find("td").Each(func(_ int, td *goquery.Selection) {
			cells = append(cells, page.Text(td))
		})
		if len(cells) == 0 {
			return
		}
		hits = append(hits, ParcelHit{Cells: cells, URL: link})
	})
	return hits, nil
}

var labelAliases = map[string][]string{
	"parcel":   {"parcel number", "parcel id", "parcel #", "pin", "pin number", "parcel"},
	"owner":    {"owner name", "owner(s)", "owner", "current owner"},
	"address":  {"location address", "property address", "situs address", "physical address", "address"},
	"city":     {"city", "municipality"},
	"legal":    {"legal description", "legal desc"},
	"acreage":  {"deeded acres", "acreage", "acres", "calculated acres"},
	"value":    {"total assessed value", "total appraised value", "total value", "assessed value"},
	"book":     {"deed book", "book"},
	"page":     {"deed page", "page"},
	"bookpage": {"deed book/page", "book/page", "deed reference"},
	"date":     {"deed date", "sale date", "recorded date", "date recorded"},
	"instr":    {"instrument number", "instrument #", "instrument"},
}

// ParseParcelDetail reads the label/value pairs of a parcel detail page.
// Labels are matched from table rows, definition lists and label+span pairs.
func ParseParcelDetail(html string) (*records.Parcel, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse html")
	}

	fields := labelValues(doc)
	get := func(key string) string {
		for _, alias := range labelAliases[key] {
			if v, ok := fields[alias]; ok && v != "" {
				return v
			}
		}
		return ""
	}

	parcel := &records.Parcel{
		ParcelID:      records.NormalizeParcelID(get("parcel")),
		Owner:         get("owner"),
		Address:       get("address"),
		City:          get("city"),
		County:        County,
		LegalDesc:     get("legal"),
		Acreage:       get("acreage"),
		AssessedValue: get("value"),
	}
	if parcel.ParcelID == "" || (parcel.Owner == "" && parcel.Address == "") {
		return nil, errors.Wrap(ErrNotFound, "page has no parcel detail")
	}

	if bp := get("bookpage"); bp != "" {
		if ref, err := records.ParseDeedRef(bp); err == nil {
			parcel.Deed = ref
		}
	}
	if parcel.Deed.IsZero() {
		if book, pg := get("book"), get("page"); book != "" && pg != "" {
			if ref, err := records.ParseDeedRef(book + "/" + pg); err == nil {
				parcel.Deed = ref
			}
		}
	}
	if instr := get("instr"); instr != "" && parcel.Deed.Instrument == "" {
		parcel.Deed.Instrument = instr
	}
	if d, ok := parseDate(get("date")); ok {
		parcel.Deed.Recorded = d
	}
	return parcel, nil
}

var labelClean = regexp.MustCompile(`[:\s]+$`)

func normLabel(s string) string {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	return labelClean.ReplaceAllString(s, "")
}

func labelValues(doc *goquery.Document) map[string]string {
	fields := map[string]string{}
	set := func(label, value string) {
		label = normLabel(label)
		value = strings.Join(strings.Fields(value), " ")
		if label == "" || len(label) > 40 {
			return
		}
		if _, ok := fields[label]; !ok {
			fields[label] = value
		}
	}

	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("th, td")
		// rows may hold several label/value pairs side by side
		for i := 0; i+1 < cells.Length(); i += 2 {
			set(cells.Eq(i).Text(), cells.Eq(i+1).Text())
		}
	})
	doc.Find("dt").Each(func(_ int, dt *goquery.Selection) {
		set(dt.Text(), dt.NextFiltered("dd").Text())
	})
	doc.Find("label").Each(func(_ int, l *goquery.Selection) {
		if next := l.Next(); next.Length() > 0 {
			set(l.Text(), next.Text())
		}
	})
	return fields
}

var dateLayouts = []string{"01/02/2006", "1/2/2006", "2006-01-02", "01-02-2006", "Jan 2, 2006", "January 2, 2006"}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	// drop a trailing time of day
	if i := strings.Index(s, " "); i > 0 && strings.Contains(s[i:], ":") {
		s = s[:i]
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
