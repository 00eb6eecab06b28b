// Package inspect lists the interactive structure of a rendered page: forms,
// inputs, buttons, links, tables, frames and likely document links. It is
// used to work out selectors before writing a site scraper.
package inspect

import (
	"context"
	"encoding/json"
	"html"
	"net/url"
	"strconv"
	"strings"

	"deedscout/internal/page"
	"deedscout/internal/report"
	"deedscout/internal/sites/guilford"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/pkg/errors"
)

type Input struct {
	Tag         string `json:"tag"`
	Name        string `json:"name,omitempty"`
	Type        string `json:"type,omitempty"`
	ID          string `json:"id,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Value       string `json:"value,omitempty"`
}

type Form struct {
	ID     string  `json:"id,omitempty"`
	Action string  `json:"action"`
	Method string  `json:"method"`
	Inputs []Input `json:"inputs"`
}

type Button struct {
	Text    string `json:"text"`
	ID      string `json:"id,omitempty"`
	Type    string `json:"type,omitempty"`
	OnClick string `json:"onclick,omitempty"`
}

type Link struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

type TableInfo struct {
	Headers []string `json:"headers"`
	Rows    int      `json:"rows"`
}

// Report is the page inventory. It implements scraper.Content.
type Report struct {
	Title   string      `json:"title"`
	URL     string      `json:"url"`
	Forms   []Form      `json:"forms"`
	Buttons []Button    `json:"buttons"`
	Links   []Link      `json:"links"`
	Tables  []TableInfo `json:"tables"`
	Frames  []string    `json:"frames"`
	PDFs    []string    `json:"pdf_candidates"`
}

// Inventory parses rendered HTML. Relative URLs are resolved against baseURL.
func Inventory(src, baseURL string) (*Report, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse html")
	}
	base, _ := url.Parse(baseURL)
	abs := func(ref string) string {
		ref = strings.TrimSpace(ref)
		if ref == "" || base == nil {
			return ref
		}
		u, err := base.Parse(ref)
		if err != nil {
			return ref
		}
		return u.String()
	}

	r := &Report{Title: page.Text(doc.Find("title").First()), URL: baseURL}

	doc.Find("form").Each(func(_ int, f *goquery.Selection) {
		form := Form{
			ID:     f.AttrOr("id", ""),
			Action: abs(f.AttrOr("action", "")),
			Method: strings.ToUpper(f.AttrOr("method", "GET")),
		}
		f.Find("input, select, textarea").Each(func(_ int, in *goquery.Selection) {
			form.Inputs = append(form.Inputs, input(in))
		})
		r.Forms = append(r.Forms, form)
	})

	// inputs outside any form are common on ASP.NET and SPA search pages
	var loose []Input
	doc.Find("input, select, textarea").Each(func(_ int, in *goquery.Selection) {
		if in.Closest("form").Length() == 0 {
			loose = append(loose, input(in))
		}
	})
	if len(loose) > 0 {
		r.Forms = append(r.Forms, Form{ID: "(no form)", Inputs: loose})
	}

	doc.Find(`button, input[type=submit], input[type=button], [role=button]`).Each(func(_ int, b *goquery.Selection) {
		text := page.Text(b)
		if text == "" {
			text = b.AttrOr("value", b.AttrOr("aria-label", ""))
		}
		r.Buttons = append(r.Buttons, Button{
			Text:    text,
			ID:      b.AttrOr("id", ""),
			Type:    b.AttrOr("type", ""),
			OnClick: b.AttrOr("onclick", ""),
		})
	})

	seen := map[string]bool{}
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		if !strings.HasPrefix(strings.ToLower(href), "javascript:") {
			href = abs(href)
		}
		if seen[href] {
			return
		}
		seen[href] = true
		r.Links = append(r.Links, Link{Text: page.Text(a), Href: href})
	})

	tables, err := page.Tables(src)
	if err != nil {
		return nil, err
	}
	for _, t := range tables {
		r.Tables = append(r.Tables, TableInfo{Headers: t.Headers, Rows: len(t.Rows)})
	}

	cands, err := guilford.FindCandidates(src, baseURL)
	if err != nil {
		return nil, err
	}
	r.Frames = cands.Frames
	r.PDFs = cands.Links
	return r, nil
}

func input(in *goquery.Selection) Input {
	return Input{
		Tag:         goquery.NodeName(in),
		Name:        in.AttrOr("name", ""),
		Type:        in.AttrOr("type", ""),
		ID:          in.AttrOr("id", ""),
		Placeholder: in.AttrOr("placeholder", ""),
		Value:       in.AttrOr("value", ""),
	}
}

func (r *Report) sections() []*report.Table {
	forms := &report.Table{Title: "Inputs", Header: []string{"form", "method", "action", "tag", "name", "type", "id", "placeholder"}}
	for i, f := range r.Forms {
		label := f.ID
		if label == "" {
			label = "#" + strconv.Itoa(i+1)
		}
		for _, in := range f.Inputs {
			forms.Rows = append(forms.Rows, []string{label, f.Method, f.Action, in.Tag, in.Name, in.Type, in.ID, in.Placeholder})
		}
	}

	buttons := &report.Table{Title: "Buttons", Header: []string{"text", "id", "type", "onclick"}}
	for _, b := range r.Buttons {
		buttons.Rows = append(buttons.Rows, []string{b.Text, b.ID, b.Type, b.OnClick})
	}

	links := &report.Table{Title: "Links", Header: []string{"text", "href"}}
	for _, l := range r.Links {
		links.Rows = append(links.Rows, []string{l.Text, l.Href})
	}

	tables := &report.Table{Title: "Tables", Header: []string{"#", "rows", "headers"}}
	for i, t := range r.Tables {
		tables.Rows = append(tables.Rows, []string{strconv.Itoa(i + 1), strconv.Itoa(t.Rows), strings.Join(t.Headers, " | ")})
	}

	docs := &report.Table{Title: "Documents", Header: []string{"kind", "url"}}
	for _, f := range r.Frames {
		docs.Rows = append(docs.Rows, []string{"frame", f})
	}
	for _, p := range r.PDFs {
		docs.Rows = append(docs.Rows, []string{"pdf link", p})
	}

	var out []*report.Table
	for _, t := range []*report.Table{forms, buttons, links, tables, docs} {
		if len(t.Rows) > 0 {
			out = append(out, t)
		}
	}
	return out
}

func (r *Report) render(header string, fn func(*report.Table) (string, error)) (string, error) {
	var sb strings.Builder
	sb.WriteString(header)
	for _, t := range r.sections() {
		s, err := fn(t)
		if err != nil {
			return "", err
		}
		sb.WriteString("\n")
		sb.WriteString(s)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func (r *Report) ToText() (string, error) {
	return r.render("Title: "+r.Title+"\nURL:   "+r.URL+"\n", (*report.Table).ToText)
}

func (r *Report) ToMarkdown() (string, error) {
	return r.render("# "+r.Title+"\n\n<"+r.URL+">\n", (*report.Table).ToMarkdown)
}

func (r *Report) ToHTML() (string, error) {
	return r.render("<p>"+html.EscapeString(r.URL)+"</p>\n", (*report.Table).ToHTML)
}

func (r *Report) ToCSV() (string, error) {
	return r.render("", func(t *report.Table) (string, error) {
		s, err := t.ToCSV()
		return "# " + t.Title + "\n" + s, err
	})
}

func (r *Report) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Fetch renders req.URL and inventories it. The tab stays open so a caller
// showing the browser can leave it up for manual inspection; the caller
// closes it.
func Fetch(ctx context.Context, o page.Opener, req page.Request) (*Report, *rod.Page, error) {
	res, err := page.Fetch(ctx, o, req)
	if err != nil {
		return nil, nil, err
	}
	r, err := Inventory(res.HTML, res.URL)
	if err != nil {
		res.Page.Close()
		return nil, nil, err
	}
	if r.Title == "" {
		r.Title = res.Title
	}
	return r, res.Page, nil
}
