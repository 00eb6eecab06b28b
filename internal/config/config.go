package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"deedscout/internal/log"
	"deedscout/internal/records"
	"deedscout/internal/sites/guilford"
	"deedscout/internal/sites/websearch"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/titanous/json5"
)

// DefaultPath is read when --config is not given.
const DefaultPath = "deedscout.json5"

// Environment overrides.
const (
	EnvAttioKey = "ATTIO_API_KEY"
	EnvProxy    = "DEEDSCOUT_PROXY"
)

type Browser struct {
	Proxy     string `json:"proxy"`
	UserAgent string `json:"user_agent"`
	// TimeoutSeconds bounds each navigation.
	TimeoutSeconds int `json:"timeout_seconds"`
}

type Attio struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
	// DelayMS is the pause between two create requests.
	DelayMS   int  `json:"delay_ms"`
	Companies bool `json:"companies"`
}

type Guilford struct {
	ParcelURL   string `json:"parcel_url"`
	DeedsURL    string `json:"deeds_url"`
	DocumentURL string `json:"document_url"`
	// InstrumentURL opens a deed by instrument number. Empty disables it.
	InstrumentURL string `json:"instrument_url"`
}

type WebSearch struct {
	URL         string  `json:"url"`
	Concurrency int     `json:"concurrency"`
	Similarity  float64 `json:"similarity"`
}

type Server struct {
	Addr            string `json:"addr"`
	CacheTTLSeconds int    `json:"cache_ttl_seconds"`
	CacheSize       int    `json:"cache_size"`
}

type Store struct {
	Path string `json:"path"`
}

type Config struct {
	Browser   Browser   `json:"browser"`
	Attio     Attio     `json:"attio"`
	Guilford  Guilford  `json:"guilford"`
	WebSearch WebSearch `json:"websearch"`
	Server    Server    `json:"server"`
	Store     Store     `json:"store"`
}

func Default() Config {
	return Config{
		Browser: Browser{TimeoutSeconds: 30},
		Attio:   Attio{BaseURL: "https://api.attio.com", DelayMS: 500},
		Guilford: Guilford{
			ParcelURL:   guilford.DefaultParcelURL,
			DeedsURL:    guilford.DefaultDeedsURL,
			DocumentURL: guilford.DefaultDocumentURL,
		},
		WebSearch: WebSearch{URL: websearch.DefaultSearchURL, Concurrency: 2, Similarity: records.DefaultSimilarity},
		Server:    Server{Addr: ":8080", CacheTTLSeconds: 300, CacheSize: 128},
		Store:     Store{Path: "deedscout.db"},
	}
}

func (c Config) Timeout() time.Duration {
	return time.Duration(c.Browser.TimeoutSeconds) * time.Second
}

func (c Config) UploadDelay() time.Duration {
	return time.Duration(c.Attio.DelayMS) * time.Millisecond
}

func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Server.CacheTTLSeconds) * time.Second
}

// DocumentTemplates returns the Guilford document page templates.
func (c Config) DocumentTemplates() guilford.Templates {
	return guilford.Templates{BookPage: c.Guilford.DocumentURL, Instrument: c.Guilford.InstrumentURL}
}

// Extra flattens the site sections into scraper.Options.Extra.
func (c Config) Extra() map[string]string {
	return map[string]string{
		guilford.ExtraParcelURL:     c.Guilford.ParcelURL,
		guilford.ExtraDeedsURL:      c.Guilford.DeedsURL,
		guilford.ExtraDocumentURL:   c.Guilford.DocumentURL,
		guilford.ExtraInstrumentURL: c.Guilford.InstrumentURL,
		websearch.ExtraSearchURL:    c.WebSearch.URL,
		websearch.ExtraConcurrency:  strconv.Itoa(c.WebSearch.Concurrency),
		websearch.ExtraSimilarity:   strconv.FormatFloat(c.WebSearch.Similarity, 'f', -1, 64),
	}
}

func splitExt(f string) (string, string) {
	ext := filepath.Ext(f)
	return f[:len(f)-len(ext)], ext
}

// ReadFile merges <name>.<ext> with <name>.local.<ext>, the local file
// winning. It returns os.ErrNotExist when neither exists.
func ReadFile[T any](name string) (T, error) {
	var out T
	found := false

	data, err := os.ReadFile(name)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(data) > 0 {
		if err := json5.Unmarshal(data, &out); err != nil {
			return out, errors.Wrapf(err, "failed to parse %s", name)
		}
		found = true
	}

	prefix, ext := splitExt(name)
	localName := fmt.Sprintf("%s.local%s", prefix, ext)
	data, err = os.ReadFile(localName)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(data) > 0 {
		var override T
		if err := json5.Unmarshal(data, &override); err != nil {
			return out, errors.Wrapf(err, "failed to parse %s", localName)
		}
		if err := mergo.Merge(&out, override, mergo.WithOverride); err != nil {
			return out, err
		}
		logger := log.NewLogger("config")
		logger.Debug().Str("local", localName).Msg("merging config with local overrides")
		found = true
	}

	if !found {
		return out, os.ErrNotExist
	}
	return out, nil
}

// Load reads the config at path, fills unset values from Default and applies
// environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultPath
	}
	cfg, err := ReadFile[Config](path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, err
	}
	if err := mergo.Merge(&cfg, Default()); err != nil {
		return cfg, err
	}

	// A .env file in the working directory may hold the keys. Variables
	// already set in the environment win.
	_ = godotenv.Load()
	if v := os.Getenv(EnvAttioKey); v != "" {
		cfg.Attio.APIKey = v
	}
	if v := os.Getenv(EnvProxy); v != "" {
		cfg.Browser.Proxy = v
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch {
	case c.Browser.TimeoutSeconds <= 0:
		return errors.New("browser.timeout_seconds must be positive")
	case c.Attio.DelayMS < 0:
		return errors.New("attio.delay_ms cannot be negative")
	case c.WebSearch.Concurrency < 1:
		return errors.New("websearch.concurrency must be at least 1")
	case c.WebSearch.Similarity <= 0 || c.WebSearch.Similarity > 1:
		return errors.New("websearch.similarity must be in (0, 1]")
	case c.Server.CacheSize < 0 || c.Server.CacheTTLSeconds < 0:
		return errors.New("server cache settings cannot be negative")
	}
	return nil
}
