package websearch

import (
	"context"
	"net/url"
	"strings"
	"time"

	"deedscout/internal/page"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
)

// DefaultSearchURL is Bing's result page; {query} is substituted.
const DefaultSearchURL = "https://www.bing.com/search?q={query}&setlang=en-us"

// Result holds a single search result.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Client runs searches in tabs of a shared browser.
type Client struct {
	opener    page.Opener
	searchURL string
	timeout   time.Duration
}

func NewClient(opener page.Opener, searchURL string, timeout time.Duration) *Client {
	if searchURL == "" {
		searchURL = DefaultSearchURL
	}
	return &Client{opener: opener, searchURL: searchURL, timeout: timeout}
}

// Search opens a tab for query, waits for the results to render and parses them.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	target := strings.ReplaceAll(c.searchURL, "{query}", url.QueryEscape(query))

	res, err := page.Fetch(ctx, c.opener, page.Request{
		URL:     target,
		WaitFor: page.WaitIdle,
		Timeout: c.timeout,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "search for %q failed", query)
	}
	defer res.Page.Close()

	return ParseResults(res.HTML)
}

// ParseResults extracts organic results from a Bing result page.
func ParseResults(html string) ([]Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse html")
	}

	var results []Result
	doc.Find("#b_results li.b_algo").Each(func(_ int, li *goquery.Selection) {
		a := li.Find("h2 a").First()
		title := strings.Join(strings.Fields(a.Text()), " ")
		if title == "" {
			return
		}
		p := li.Find(".b_caption p").First()
		if p.Length() == 0 {
			p = li.Find("p").First()
		}
		results = append(results, Result{
			Title:   title,
			URL:     a.AttrOr("href", ""),
			Snippet: strings.Join(strings.Fields(p.Text()), " "),
		})
	})
	return results, nil
}
