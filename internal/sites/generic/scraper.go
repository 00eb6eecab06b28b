package generic

import (
	"context"
	"strings"

	"deedscout/internal/browser"
	"deedscout/internal/log"
	"deedscout/internal/page"
	"deedscout/internal/scraper"

	"github.com/pkg/errors"
)

// Keys read from scraper.Options.Extra.
const (
	ExtraLevel      = "generic.level"
	ExtraSelector   = "generic.selector"
	ExtraWait       = "generic.wait"
	ExtraWaitTarget = "generic.wait_target"
)

// Scraper renders an arbitrary URL. It is used when no --site is given and
// is not part of the site registry.
type Scraper struct{}

func New() *Scraper {
	return &Scraper{}
}

func (g *Scraper) Name() string {
	return "generic"
}

// Request is a validated render request built from scraper.Options.
type Request struct {
	page.Request
	Level    string
	Selector string
}

// Prepare validates the generic.* keys of opts and builds the request for
// target.
func Prepare(target string, opts scraper.Options) (Request, error) {
	level := opts.Get(ExtraLevel, page.LevelBody)
	if !page.ValidLevel(level) {
		return Request{}, errors.Errorf("invalid content level: %s", level)
	}
	selector := opts.Get(ExtraSelector, "")
	if (level == page.LevelCSS || level == page.LevelXPath) && selector == "" {
		return Request{}, errors.Errorf("a selector is required for the %s level", level)
	}
	waitTarget := opts.Get(ExtraWaitTarget, "")
	wait, err := page.ParseWait(opts.Get(ExtraWait, ""), waitTarget)
	if err != nil {
		return Request{}, err
	}
	return Request{
		Request:  page.Request{URL: NormalizeURL(target), WaitFor: wait, WaitTarget: waitTarget, Timeout: opts.Timeout},
		Level:    level,
		Selector: selector,
	}, nil
}

// Scrape fetches target directly and, when opts carries a proxy, retries once
// through it. Content is extracted before the browser closes.
func (g *Scraper) Scrape(ctx context.Context, target string, opts scraper.Options) (scraper.Content, error) {
	logger := log.NewLogger("generic")

	req, err := Prepare(target, opts)
	if err != nil {
		return nil, err
	}

	content, err := g.fetch(ctx, browser.Config{Headless: !opts.ShowUI, UserAgent: opts.UserAgent}, req)
	if err == nil || opts.ProxyURL == "" || ctx.Err() != nil {
		return content, err
	}

	logger.Warn().Err(err).Str("proxy", opts.ProxyURL).Msg("first attempt failed, retrying with proxy")
	content, err = g.fetch(ctx, browser.Config{ProxyURL: opts.ProxyURL, Headless: !opts.ShowUI, UserAgent: opts.UserAgent}, req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch page (even with proxy)")
	}
	logger.Info().Str("proxy", opts.ProxyURL).Msg("fetched through proxy")
	return content, nil
}

func (g *Scraper) fetch(ctx context.Context, cfg browser.Config, req Request) (*page.Content, error) {
	b, err := browser.New(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create browser")
	}
	defer b.Close()

	res, err := page.Fetch(ctx, b, req.Request)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch")
	}
	defer res.Page.Close()

	return page.NewContent(res, req.Level, req.Selector)
}

// NormalizeURL adds http:// when no scheme is given.
func NormalizeURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return rawURL
	}
	lower := strings.ToLower(rawURL)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return "http://" + rawURL
	}
	return rawURL
}
