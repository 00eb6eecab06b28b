// Package report renders record lists through the scraper.Content interface.
package report

import (
	"encoding/json"
	"html"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Table is a titled grid of rows plus the typed value emitted by ToJSON.
type Table struct {
	Title  string
	Header []string
	Rows   [][]string
	Data   any

	// writeCSV, when set, replaces the display grid in ToCSV so the file can
	// be read back by the matching loader.
	writeCSV func(io.Writer) error
}

func (t *Table) writer(title bool) table.Writer {
	w := table.NewWriter()
	if title && t.Title != "" {
		w.SetTitle(t.Title)
	}
	header := make(table.Row, len(t.Header))
	for i, h := range t.Header {
		header[i] = h
	}
	w.AppendHeader(header)
	for _, r := range t.Rows {
		row := make(table.Row, len(r))
		for i, c := range r {
			row[i] = c
		}
		w.AppendRow(row)
	}
	return w
}

func (t *Table) ToText() (string, error) {
	w := t.writer(true)
	w.SetStyle(table.StyleLight)
	return w.Render(), nil
}

func (t *Table) ToMarkdown() (string, error) {
	var sb strings.Builder
	if t.Title != "" {
		sb.WriteString("# " + t.Title + "\n\n")
	}
	sb.WriteString(t.writer(false).RenderMarkdown())
	sb.WriteString("\n")
	return sb.String(), nil
}

func (t *Table) ToHTML() (string, error) {
	var sb strings.Builder
	if t.Title != "" {
		sb.WriteString("<h1>" + html.EscapeString(t.Title) + "</h1>\n")
	}
	sb.WriteString(t.writer(false).RenderHTML())
	sb.WriteString("\n")
	return sb.String(), nil
}

func (t *Table) ToCSV() (string, error) {
	if t.writeCSV != nil {
		var sb strings.Builder
		if err := t.writeCSV(&sb); err != nil {
			return "", err
		}
		return sb.String(), nil
	}
	return t.writer(false).RenderCSV() + "\n", nil
}

func (t *Table) ToJSON() ([]byte, error) {
	return json.MarshalIndent(t.Data, "", "  ")
}
