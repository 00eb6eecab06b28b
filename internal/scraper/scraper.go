package scraper

import (
	"context"
	"strconv"
	"time"
)

type Scraper interface {
	Name() string
	Scrape(ctx context.Context, target string, opts Options) (Content, error)
}

type Content interface {
	ToHTML() (string, error)
	ToText() (string, error)
	ToMarkdown() (string, error)
	ToJSON() ([]byte, error)
	ToCSV() (string, error)
}

type Options struct {
	Timeout   time.Duration
	ShowUI    bool
	ProxyURL  string
	UserAgent string
	Limit     int               // max records or pages, <= 0 for no limit
	Extra     map[string]string // site-specific settings (base URLs, concurrency, etc.)
}

// Get returns Extra[key], or def when the key is missing or empty.
func (o Options) Get(key, def string) string {
	if v, ok := o.Extra[key]; ok && v != "" {
		return v
	}
	return def
}

// GetInt is Get for integer settings. Unparseable values fall back to def.
func (o Options) GetInt(key string, def int) int {
	n, err := strconv.Atoi(o.Get(key, ""))
	if err != nil {
		return def
	}
	return n
}
