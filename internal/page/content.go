package page

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/pkg/errors"
)

// Content holds content extracted from a page. Everything is read while the
// browser is still open so formatting never needs a live connection.
type Content struct {
	HTML     string        `json:"html"`
	Text     string        `json:"text"`
	Level    string        `json:"level"`
	Title    string        `json:"title"`
	URL      string        `json:"url"`
	LoadTime time.Duration `json:"-"`
}

// NewContent extracts level/selector from a fetch result.
func NewContent(res *Result, level, selector string) (*Content, error) {
	c := &Content{Level: level, Title: res.Title, URL: res.URL, LoadTime: res.LoadTime}

	var err error
	switch level {
	case LevelXPath:
		c.HTML, err = ExtractXPath(res.Page, selector)
	case LevelText:
		c.HTML, err = Extract(res.HTML, LevelBody, "")
		if err == nil {
			c.Text, err = Extract(res.HTML, LevelText, "")
		}
	default:
		c.HTML, err = Extract(res.HTML, level, selector)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to extract content")
	}
	return c, nil
}

func converter() *md.Converter {
	conv := md.NewConverter("", true, nil)
	conv.Use(plugin.GitHubFlavored())
	return conv
}

func (c *Content) ToHTML() (string, error) {
	return c.HTML, nil
}

func (c *Content) ToText() (string, error) {
	if c.Text != "" {
		return c.Text, nil
	}
	text, err := converter().ConvertString(c.HTML)
	if err != nil {
		return "", errors.Wrap(err, "failed to convert html to text")
	}
	return text, nil
}

func (c *Content) ToMarkdown() (string, error) {
	markdown, err := converter().ConvertString(c.HTML)
	if err != nil {
		return "", errors.Wrap(err, "failed to convert html to markdown")
	}
	return markdown, nil
}

func (c *Content) ToJSON() ([]byte, error) {
	markdown, err := c.ToMarkdown()
	if err != nil {
		return nil, err
	}
	text, err := c.ToText()
	if err != nil {
		return nil, err
	}

	type jsonOutput struct {
		HTML     string `json:"html"`
		Text     string `json:"text"`
		Markdown string `json:"markdown"`
		Title    string `json:"title"`
		URL      string `json:"url"`
		LoadTime int64  `json:"load_time"`
	}
	return json.MarshalIndent(jsonOutput{
		HTML:     c.HTML,
		Text:     text,
		Markdown: markdown,
		Title:    c.Title,
		URL:      c.URL,
		LoadTime: c.LoadTime.Milliseconds(),
	}, "", "  ")
}

// ToCSV dumps every table in the extracted HTML, separated by a "# Table N" line.
func (c *Content) ToCSV() (string, error) {
	tables, err := Tables(c.HTML)
	if err != nil {
		return "", err
	}
	if len(tables) == 0 {
		return "", errors.New("no tables found in content")
	}

	var buf bytes.Buffer
	for i, t := range tables {
		if i > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(fmt.Sprintf("# Table %d\n", i+1))
		w := csv.NewWriter(&buf)
		if len(t.Headers) > 0 {
			_ = w.Write(t.Headers)
		}
		for _, row := range t.Rows {
			_ = w.Write(row)
		}
		w.Flush()
	}
	return strings.TrimRight(buf.String(), "\n") + "\n", nil
}
