package guilford

import (
	"context"
	"net/url"
	"strings"
	"time"

	"deedscout/internal/browser"
	"deedscout/internal/log"
	"deedscout/internal/page"
	"deedscout/internal/records"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const County = "Guilford"

// Defaults for the county endpoints. Both sites change without notice, so
// every URL can be overridden from config.
const (
	DefaultParcelURL = "https://lrcpwa.ncptscloud.com/guilford/"
	DefaultDeedsURL  = "https://rdlxweb.guilfordcountync.gov/guilfordNameSearch.php"
	// {book} and {page} are substituted. Instrument numbers need a separate
	// template with {instrument}, which has no default.
	DefaultDocumentURL = "https://rdlxweb.guilfordcountync.gov/guilfordDetail.php?book={book}&page={page}"
)

var (
	// ErrNotFound is returned when a search completes but matches nothing.
	ErrNotFound = errors.New("no matching record")
	// ErrUnsupportedRef is returned when no configured template can locate a
	// deed reference.
	ErrUnsupportedRef = errors.New("no document url template for this deed reference")
)

// Client drives one browser tab through the county sites.
type Client struct {
	browser *browser.Browser
	page    *rod.Page
	timeout time.Duration
	log     zerolog.Logger
}

func NewClient(b *browser.Browser, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{browser: b, timeout: timeout, log: log.NewLogger("guilford")}
}

// Page returns the current tab, opening it on first use.
func (c *Client) Page() (*rod.Page, error) {
	if c.page != nil {
		return c.page, nil
	}
	p, err := c.browser.NewPage()
	if err != nil {
		return nil, err
	}
	c.page = p
	return p, nil
}

func (c *Client) Close() {
	if c.page != nil {
		c.page.Close()
	}
}

func (c *Client) open(ctx context.Context, target string) (*rod.Page, error) {
	p, err := c.Page()
	if err != nil {
		return nil, err
	}
	c.log.Debug().Str("url", target).Msg("navigating")
	if err := page.Goto(ctx, p, target, page.WaitIdle, "", c.timeout); err != nil {
		return nil, err
	}
	dismissOverlays(p)
	return p, nil
}

// fill types value into the first selector that exists on the page.
func (c *Client) fill(ctx context.Context, p *rod.Page, selectors []string, value string) (*rod.Element, error) {
	for _, sel := range selectors {
		el, err := p.Context(ctx).Timeout(2 * time.Second).Element(sel)
		if err != nil {
			continue
		}
		el = el.Context(ctx).Timeout(c.timeout)
		_ = el.SelectAllText()
		if err := el.Input(value); err != nil {
			return nil, errors.Wrapf(err, "failed to type into %s", sel)
		}
		return el, nil
	}
	return nil, errors.Errorf("no input matched %v", selectors)
}

// submit presses Enter in el and waits for the follow-up navigation to settle.
func (c *Client) submit(ctx context.Context, p *rod.Page, el *rod.Element) error {
	if err := el.Type(input.Enter); err != nil {
		return errors.Wrap(err, "failed to submit search")
	}
	if err := page.Sleep(ctx, 500*time.Millisecond); err != nil {
		return err
	}
	return page.Wait(ctx, p, page.WaitIdle, "", c.timeout)
}

func (c *Client) html(p *rod.Page) (string, string, error) {
	res, err := page.Snapshot(p)
	if err != nil {
		return "", "", err
	}
	return res.HTML, res.URL, nil
}

// dismissOverlays removes disclaimer and cookie modals that block clicks.
func dismissOverlays(p *rod.Page) {
	_, _ = p.Timeout(5 * time.Second).Eval(`() => {
		for (const b of document.querySelectorAll('button, input[type=button], input[type=submit], a')) {
			const t = (b.innerText || b.value || '').trim().toLowerCase();
			if (t === 'i agree' || t === 'accept' || t === 'i accept') { b.click(); break; }
		}
		document.querySelectorAll('.modal-backdrop, .modal-mask, .overlay').forEach(el => el.remove());
	}`)
}

// resolve makes href absolute against base.
func resolve(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	u, err := b.Parse(href)
	if err != nil {
		return href
	}
	return u.String()
}

// Templates are the document page URL templates.
type Templates struct {
	// BookPage uses {book} and {page}.
	BookPage string
	// Instrument uses {instrument}.
	Instrument string
}

// DocumentURL fills the template that can locate ref. Book and page win when
// both are known.
func DocumentURL(t Templates, ref records.DeedRef) (string, error) {
	r := strings.NewReplacer(
		"{book}", url.QueryEscape(ref.Book),
		"{page}", url.QueryEscape(ref.Page),
		"{instrument}", url.QueryEscape(ref.Instrument),
	)
	if ref.Book != "" && ref.Page != "" && strings.Contains(t.BookPage, "{book}") && strings.Contains(t.BookPage, "{page}") {
		return r.Replace(t.BookPage), nil
	}
	if ref.Instrument != "" {
		for _, tmpl := range []string{t.Instrument, t.BookPage} {
			if strings.Contains(tmpl, "{instrument}") {
				return r.Replace(tmpl), nil
			}
		}
	}
	return "", errors.Wrapf(ErrUnsupportedRef, "%s (set guilford.instrument_url for instrument numbers)", ref)
}
