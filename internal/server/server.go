// Package server exposes scraping over HTTP: POST /api/scrape runs a site
// scraper or renders a URL, POST /api/test checks that a headless browser can
// start, and GET /api/sites lists the registered sites.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"deedscout/internal/log"
	"deedscout/internal/scraper"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Runner performs one scrape. An empty site means "render req.URL".
type Runner interface {
	Scrape(ctx context.Context, req ScrapeRequest, opts scraper.Options) (any, error)
	Sites() []string
}

// BrowserProbe starts a browser and reports what it found.
type BrowserProbe interface {
	Probe(ctx context.Context) (ProbeResult, error)
}

type ProbeResult struct {
	Browser   string `json:"browser"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

type Options struct {
	// Scrape is the base option set for every request.
	Scrape    scraper.Options
	CacheSize int
	CacheTTL  time.Duration
	// MaxConcurrent bounds the number of browsers running at once.
	MaxConcurrent int
}

type Server struct {
	runner Runner
	probe  BrowserProbe
	opts   Options
	cache  *expirable.LRU[string, json.RawMessage]
	sem    *semaphore.Weighted
	log    zerolog.Logger
}

func New(runner Runner, probe BrowserProbe, opts Options) *Server {
	s := &Server{
		runner: runner,
		probe:  probe,
		opts:   opts,
		sem:    semaphore.NewWeighted(int64(max(1, opts.MaxConcurrent))),
		log:    log.NewLogger("server"),
	}
	if opts.CacheSize > 0 && opts.CacheTTL > 0 {
		s.cache = expirable.NewLRU[string, json.RawMessage](opts.CacheSize, nil, opts.CacheTTL)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/scrape", s.method(http.MethodPost, s.handleScrape))
	mux.HandleFunc("/api/test", s.method(http.MethodPost, s.handleTest))
	mux.HandleFunc("/api/sites", s.method(http.MethodGet, s.handleSites))
	return s.logRequests(cors(mux))
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return errors.Wrap(err, "server stopped")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown failed")
	}
	return nil
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Error: msg})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) method(method string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method+", OPTIONS")
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		fn(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) handleSites(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: s.runner.Sites()})
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	if err := s.sem.Acquire(r.Context(), 1); err != nil {
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
		return
	}
	defer s.sem.Release(1)

	res, err := s.probe.Probe(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("browser probe failed")
		writeError(w, http.StatusBadGateway, "browser probe failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: res})
}
