package server

import (
	"context"
	"encoding/json"
	"time"

	"deedscout/internal/browser"
	"deedscout/internal/formatter"
	"deedscout/internal/page"
	"deedscout/internal/scraper"
	"deedscout/internal/sites/generic"

	"github.com/pkg/errors"
)

// RegistryRunner runs registered site scrapers, or the generic scraper for
// url requests.
type RegistryRunner struct{}

func (RegistryRunner) Sites() []string {
	return scraper.Names()
}

func (RegistryRunner) Scrape(ctx context.Context, req ScrapeRequest, opts scraper.Options) (any, error) {
	if req.Site != "" {
		s, ok := scraper.Get(req.Site)
		if !ok {
			return nil, errors.Errorf("unknown site: %s", req.Site)
		}
		content, err := s.Scrape(ctx, req.Target, opts)
		if err != nil {
			return nil, err
		}
		raw, err := content.ToJSON()
		if err != nil {
			return nil, err
		}
		return json.RawMessage(raw), nil
	}

	opts = genericOptions(req, opts)
	content, err := generic.New().Scrape(ctx, req.URL, opts)
	if err != nil {
		return nil, err
	}
	if req.Format == "json" {
		raw, err := content.ToJSON()
		if err != nil {
			return nil, err
		}
		return json.RawMessage(raw), nil
	}
	return formatter.Format(content, req.Format)
}

// genericOptions maps a url request onto the generic scraper's Extra keys.
// Selector only drives extraction; the wait target travels separately.
func genericOptions(req ScrapeRequest, opts scraper.Options) scraper.Options {
	extra := make(map[string]string, len(opts.Extra)+4)
	for k, v := range opts.Extra {
		extra[k] = v
	}
	extra[generic.ExtraLevel] = page.LevelBody
	if req.Selector != "" {
		extra[generic.ExtraLevel] = page.LevelCSS
		extra[generic.ExtraSelector] = req.Selector
	}
	extra[generic.ExtraWait] = req.Wait
	extra[generic.ExtraWaitTarget] = req.WaitTarget
	opts.Extra = extra
	return opts
}

// ChromeProbe launches a headless browser, opens about:blank and reports the
// browser version.
type ChromeProbe struct {
	Config browser.Config
}

func (c ChromeProbe) Probe(ctx context.Context) (ProbeResult, error) {
	start := time.Now()

	cfg := c.Config
	cfg.Headless = true
	b, err := browser.New(cfg)
	if err != nil {
		return ProbeResult{}, err
	}
	defer b.Close()

	res, err := page.Fetch(ctx, b, page.Request{URL: "about:blank", WaitFor: page.WaitLoad, Timeout: 15 * time.Second})
	if err != nil {
		return ProbeResult{}, err
	}
	res.Page.Close()

	version, err := b.Version()
	if err != nil {
		return ProbeResult{}, err
	}
	return ProbeResult{Browser: version, ElapsedMS: time.Since(start).Milliseconds()}, nil
}
