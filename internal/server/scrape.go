package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"deedscout/internal/page"

	"github.com/pkg/errors"
)

const (
	maxBodyBytes  = 64 << 10
	maxURLLength  = 2048
	maxTargetLen  = 512
	defaultFormat = "text"
)

var scrapeFormats = map[string]bool{"text": true, "html": true, "markdown": true, "json": true}

// ScrapeRequest is the body of POST /api/scrape. Either URL or Site is set.
type ScrapeRequest struct {
	URL      string `json:"url,omitempty"`
	Selector string `json:"selector,omitempty"`
	Wait     string `json:"wait,omitempty"`
	// WaitTarget is the element selector or millisecond count for wait.
	// An element wait without one waits for Selector.
	WaitTarget string `json:"wait_target,omitempty"`
	Format     string `json:"format,omitempty"`
	Site       string `json:"site,omitempty"`
	Target     string `json:"target,omitempty"`
}

func (r ScrapeRequest) waitTarget() string {
	if r.WaitTarget == "" && page.WaitStrategy(strings.ToLower(r.Wait)) == page.WaitElement {
		return r.Selector
	}
	return r.WaitTarget
}

func (r ScrapeRequest) cacheKey() string {
	if r.Site != "" {
		return "site\x00" + strings.ToLower(r.Site) + "\x00" + r.Target
	}
	return strings.Join([]string{"url", r.URL, r.Selector, r.Wait, r.WaitTarget, r.Format}, "\x00")
}

// requestError carries the status a validation failure maps to.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

// ParseScrapeRequest decodes and validates a request body. Every field must
// be a JSON string and unknown fields are rejected.
func ParseScrapeRequest(body []byte, sites []string) (ScrapeRequest, error) {
	var req ScrapeRequest

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return req, badRequest("body must be a JSON object")
	}

	fields := map[string]*string{
		"url":      &req.URL,
		"selector": &req.Selector,
		"wait":        &req.Wait,
		"wait_target": &req.WaitTarget,
		"format":      &req.Format,
		"site":        &req.Site,
		"target":      &req.Target,
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		dst, ok := fields[k]
		if !ok {
			return req, badRequest("unknown field %q", k)
		}
		v, ok := raw[k].(string)
		if !ok {
			return req, badRequest("field %q must be a string", k)
		}
		*dst = strings.TrimSpace(v)
	}

	switch {
	case req.URL != "" && req.Site != "":
		return req, badRequest("give either url or site, not both")
	case req.Site != "":
		return req, validateSite(req, sites)
	case req.URL != "":
		return req, validateURL(&req)
	}
	return req, badRequest("url or site is required")
}

func validateSite(req ScrapeRequest, sites []string) error {
	found := false
	for _, s := range sites {
		if strings.EqualFold(s, req.Site) {
			found = true
			break
		}
	}
	if !found {
		return &requestError{status: http.StatusNotFound, msg: "unknown site: " + req.Site}
	}
	switch {
	case req.Target == "":
		return badRequest("target is required with site")
	case len(req.Target) > maxTargetLen:
		return badRequest("target is longer than %d characters", maxTargetLen)
	case req.Selector != "" || req.Wait != "" || req.WaitTarget != "":
		return badRequest("selector and wait only apply to url requests")
	}
	return nil
}

func validateURL(req *ScrapeRequest) error {
	if len(req.URL) > maxURLLength {
		return badRequest("url is longer than %d characters", maxURLLength)
	}
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return badRequest("url must be an absolute http(s) URL")
	}
	if req.Target != "" {
		return badRequest("target only applies to site requests")
	}

	if req.Format == "" {
		req.Format = defaultFormat
	}
	req.Format = strings.ToLower(req.Format)
	if !scrapeFormats[req.Format] {
		return badRequest("unsupported format: %s", req.Format)
	}
	wait, err := page.ParseWait(req.Wait, req.waitTarget())
	if err != nil {
		return badRequest("%s", err.Error())
	}
	if wait == page.WaitElement {
		req.WaitTarget = req.waitTarget()
	}
	return nil
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "body is too large or unreadable")
		return
	}

	req, err := ParseScrapeRequest(body, s.runner.Sites())
	if err != nil {
		var reqErr *requestError
		if errors.As(err, &reqErr) {
			writeError(w, reqErr.status, reqErr.msg)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := req.cacheKey()
	if s.cache != nil {
		if data, ok := s.cache.Get(key); ok {
			w.Header().Set("X-Cache", "hit")
			writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
			return
		}
	}

	if err := s.sem.Acquire(r.Context(), 1); err != nil {
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
		return
	}
	result, err := s.runner.Scrape(r.Context(), req, s.opts.Scrape)
	s.sem.Release(1)
	if err != nil {
		s.log.Error().Err(err).Str("url", req.URL).Str("site", req.Site).Str("target", req.Target).Msg("scrape failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode result")
		return
	}
	if s.cache != nil {
		s.cache.Add(key, data)
	}
	w.Header().Set("X-Cache", "miss")
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: json.RawMessage(data)})
}
