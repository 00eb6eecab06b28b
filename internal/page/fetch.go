package page

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/pkg/errors"
)

// WaitStrategy decides when a navigation counts as finished.
type WaitStrategy string

const (
	WaitLoad    WaitStrategy = "load"    // load event
	WaitElement WaitStrategy = "element" // a selector appears
	WaitIdle    WaitStrategy = "idle"    // load event plus network idle
	WaitTime    WaitStrategy = "time"    // fixed number of milliseconds
)

// ParseWait validates a strategy/target pair coming from flags or a request body.
func ParseWait(strategy, target string) (WaitStrategy, error) {
	switch s := WaitStrategy(strings.ToLower(strings.TrimSpace(strategy))); s {
	case "":
		return WaitIdle, nil
	case WaitLoad, WaitIdle:
		return s, nil
	case WaitElement:
		if strings.TrimSpace(target) == "" {
			return "", errors.New("a selector is required for the 'element' wait strategy")
		}
		return s, nil
	case WaitTime:
		ms, err := strconv.Atoi(strings.TrimSpace(target))
		if err != nil || ms <= 0 {
			return "", errors.Errorf("the 'time' wait strategy needs a positive millisecond count, got %q", target)
		}
		return s, nil
	default:
		return "", errors.Errorf("invalid wait strategy: %s", strategy)
	}
}

// Opener hands out fresh browser tabs. *browser.Browser satisfies it.
type Opener interface {
	NewPage() (*rod.Page, error)
}

// Request describes a single browser navigation.
type Request struct {
	URL        string
	Headers    map[string]string
	WaitFor    WaitStrategy
	WaitTarget string
	Timeout    time.Duration
}

// Result holds the live page plus what was read from it after waiting.
// The caller owns Page and must close it.
type Result struct {
	Page     *rod.Page
	Title    string
	URL      string
	HTML     string
	LoadTime time.Duration
}

// Fetch opens a new tab, navigates to req.URL and waits according to req.WaitFor.
func Fetch(ctx context.Context, b Opener, req Request) (*Result, error) {
	start := time.Now()

	p, err := b.NewPage()
	if err != nil {
		return nil, err
	}

	if len(req.Headers) > 0 {
		headerList := make([]string, 0, len(req.Headers)*2)
		for k, v := range req.Headers {
			headerList = append(headerList, k, v)
		}
		if _, err := p.SetExtraHeaders(headerList); err != nil {
			p.Close()
			return nil, errors.Wrap(err, "failed to set headers")
		}
	}

	if err := Goto(ctx, p, req.URL, req.WaitFor, req.WaitTarget, req.Timeout); err != nil {
		p.Close()
		return nil, err
	}

	res, err := Snapshot(p)
	if err != nil {
		p.Close()
		return nil, err
	}
	res.LoadTime = time.Since(start)
	return res, nil
}

// Goto navigates an existing tab and applies the wait strategy.
func Goto(ctx context.Context, p *rod.Page, url string, strategy WaitStrategy, target string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if err := p.Context(ctx).Timeout(timeout).Navigate(url); err != nil {
		return errors.Wrapf(err, "failed to navigate to %s", url)
	}
	return Wait(ctx, p, strategy, target, timeout)
}

// Wait blocks until the page satisfies the strategy.
func Wait(ctx context.Context, p *rod.Page, strategy WaitStrategy, target string, timeout time.Duration) error {
	tp := p.Context(ctx).Timeout(timeout)

	switch strategy {
	case WaitElement:
		if _, err := tp.Element(target); err != nil {
			return errors.Wrapf(err, "failed to wait for element '%s'", target)
		}
	case WaitTime:
		ms, err := strconv.Atoi(target)
		if err != nil {
			return errors.Wrapf(err, "invalid wait time '%s'", target)
		}
		return Sleep(ctx, time.Duration(ms)*time.Millisecond)
	case WaitLoad:
		if err := tp.WaitLoad(); err != nil {
			return errors.Wrap(err, "failed to wait for page load")
		}
	default:
		if err := tp.WaitLoad(); err != nil {
			return errors.Wrap(err, "failed to wait for page load")
		}
		// Idle waits are best effort; pages with long polling never go quiet.
		wait := tp.WaitRequestIdle(
			500*time.Millisecond, nil, nil,
			[]proto.NetworkResourceType{proto.NetworkResourceTypeImage, proto.NetworkResourceTypeMedia},
		)
		wait()
	}
	return nil
}

// Snapshot reads title, URL and rendered HTML from a live page.
func Snapshot(p *rod.Page) (*Result, error) {
	info, err := p.Info()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read page info")
	}
	html, err := p.HTML()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read page html")
	}
	return &Result{
		Page:  p,
		Title: info.Title,
		URL:   info.URL,
		HTML:  html,
	}, nil
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
