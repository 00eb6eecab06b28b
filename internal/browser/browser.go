package browser

import (
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/pkg/errors"
)

// DefaultUserAgent is sent by every page unless Config.UserAgent overrides it.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const defaultSlowMotion = 250 * time.Millisecond

// Config controls how Chrome is launched.
type Config struct {
	ProxyURL   string
	Headless   bool
	UserAgent  string
	SlowMotion bool // adds a delay to every input action, handy with Headless=false
}

// Browser wraps a launched Chrome instance.
type Browser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	cfg      Config
}

// New launches Chrome and connects to it.
func New(cfg Config) (*Browser, error) {
	l := launcher.New().Headless(cfg.Headless)
	if cfg.ProxyURL != "" {
		l = l.Proxy(cfg.ProxyURL)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, errors.Wrap(err, "failed to launch chrome")
	}

	b := rod.New().ControlURL(controlURL)
	if cfg.SlowMotion {
		b = b.SlowMotion(defaultSlowMotion)
	}
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, errors.Wrap(err, "failed to connect to chrome")
	}

	return &Browser{browser: b, launcher: l, cfg: cfg}, nil
}

// ProxyURL returns the proxy the browser was launched with.
func (b *Browser) ProxyURL() string {
	return b.cfg.ProxyURL
}

// Version reports the product string of the connected browser.
func (b *Browser) Version() (string, error) {
	v, err := b.browser.Version()
	if err != nil {
		return "", err
	}
	return v.Product, nil
}

// NewPage opens a tab with the user agent set and the webdriver flag hidden.
func (b *Browser) NewPage() (*rod.Page, error) {
	page, err := b.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create page")
	}

	ua := b.cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	_ = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua})
	_, _ = page.EvalOnNewDocument(`Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`)

	return page, nil
}

// Close closes the browser and kills the launched process.
func (b *Browser) Close() error {
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			return err
		}
	}
	if b.launcher != nil {
		b.launcher.Kill()
	}
	return nil
}
