package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"deedscout/internal/log"
	"deedscout/internal/page"
	"deedscout/internal/scraper"
	"deedscout/internal/sites/generic"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetOutput(io.Discard)
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []ScrapeRequest
	fail  bool
}

func (f *fakeRunner) Sites() []string {
	return []string{"attorneys.websearch", "guilford.deeds", "guilford.parcel"}
}

func (f *fakeRunner) Scrape(_ context.Context, req ScrapeRequest, _ scraper.Options) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.fail {
		return nil, errors.New("navigation timed out")
	}
	if req.Site != "" {
		return map[string]string{"site": req.Site, "target": req.Target}, nil
	}
	return "rendered " + req.URL, nil
}

type fakeProbe struct{ err error }

func (p fakeProbe) Probe(context.Context) (ProbeResult, error) {
	return ProbeResult{Browser: "HeadlessChrome/120.0.0.0", ElapsedMS: 42}, p.err
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, response) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var res response
	if rec.Code != http.StatusNoContent {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res), rec.Body.String())
	}
	return rec, res
}

func TestScrapeURL(t *testing.T) {
	runner := &fakeRunner{}
	h := New(runner, fakeProbe{}, Options{CacheSize: 8, CacheTTL: time.Minute}).Handler()

	rec, res := do(t, h, http.MethodPost, "/api/scrape", `{"url": "https://example.com/a"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, res.Success)
	assert.JSONEq(t, `"rendered https://example.com/a"`, string(res.Data))
	assert.Equal(t, "miss", rec.Header().Get("X-Cache"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec, res = do(t, h, http.MethodPost, "/api/scrape", `{"url": "https://example.com/a"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hit", rec.Header().Get("X-Cache"))
	assert.JSONEq(t, `"rendered https://example.com/a"`, string(res.Data))

	require.Len(t, runner.calls, 1)
	expected := ScrapeRequest{URL: "https://example.com/a", Format: "text"}
	if diff := cmp.Diff(expected, runner.calls[0]); diff != "" {
		t.Fatal(diff)
	}
}

func TestScrapeSite(t *testing.T) {
	runner := &fakeRunner{}
	h := New(runner, fakeProbe{}, Options{}).Handler()

	rec, res := do(t, h, http.MethodPost, "/api/scrape", `{"site": "Guilford.Parcel", "target": "8123"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"site":"Guilford.Parcel","target":"8123"}`, string(res.Data))

	// no cache configured
	do(t, h, http.MethodPost, "/api/scrape", `{"site": "guilford.parcel", "target": "8123"}`)
	assert.Len(t, runner.calls, 2)
}

func TestScrapeValidation(t *testing.T) {
	runner := &fakeRunner{}
	h := New(runner, fakeProbe{}, Options{}).Handler()

	testCases := []struct {
		body   string
		status int
	}{
		{`not json`, http.StatusBadRequest},
		{`[]`, http.StatusBadRequest},
		{`{}`, http.StatusBadRequest},
		{`{"url": 5}`, http.StatusBadRequest},
		{`{"url": "https://a.com", "extra": "x"}`, http.StatusBadRequest},
		{`{"url": "ftp://a.com"}`, http.StatusBadRequest},
		{`{"url": "/relative"}`, http.StatusBadRequest},
		{`{"url": "https://a.com/` + strings.Repeat("x", 2050) + `"}`, http.StatusBadRequest},
		{`{"url": "https://a.com", "format": "pdf"}`, http.StatusBadRequest},
		{`{"url": "https://a.com", "wait": "element"}`, http.StatusBadRequest},
		{`{"url": "https://a.com", "wait": "time"}`, http.StatusBadRequest},
		{`{"url": "https://a.com", "wait": "time", "wait_target": "soon"}`, http.StatusBadRequest},
		{`{"site": "guilford.parcel", "target": "x", "wait_target": "3000"}`, http.StatusBadRequest},
		{`{"url": "https://a.com", "site": "guilford.parcel"}`, http.StatusBadRequest},
		{`{"site": "guilford.parcel"}`, http.StatusBadRequest},
		{`{"site": "guilford.parcel", "target": "` + strings.Repeat("x", 513) + `"}`, http.StatusBadRequest},
		{`{"site": "nowhere", "target": "x"}`, http.StatusNotFound},
		{`{"url": "https://a.com/` + strings.Repeat("x", 70000) + `"}`, http.StatusBadRequest},
	}
	for _, test := range testCases {
		rec, res := do(t, h, http.MethodPost, "/api/scrape", test.body)
		assert.Equal(t, test.status, rec.Code, test.body[:min(len(test.body), 60)])
		assert.False(t, res.Success)
		assert.NotEmpty(t, res.Error)
	}
	assert.Empty(t, runner.calls)
}

func TestScrapeWaitTarget(t *testing.T) {
	testCases := []struct {
		body     string
		expected ScrapeRequest
		level    string
		wait     page.WaitStrategy
		target   string
	}{
		{
			`{"url": "https://a.com", "wait": "time", "wait_target": "3000"}`,
			ScrapeRequest{URL: "https://a.com", Wait: "time", WaitTarget: "3000", Format: "text"},
			page.LevelBody, page.WaitTime, "3000",
		},
		{
			`{"url": "https://a.com", "selector": "#main", "wait": "time", "wait_target": "500"}`,
			ScrapeRequest{URL: "https://a.com", Selector: "#main", Wait: "time", WaitTarget: "500", Format: "text"},
			page.LevelCSS, page.WaitTime, "500",
		},
		{
			`{"url": "https://a.com", "selector": "#main", "wait": "element"}`,
			ScrapeRequest{URL: "https://a.com", Selector: "#main", Wait: "element", WaitTarget: "#main", Format: "text"},
			page.LevelCSS, page.WaitElement, "#main",
		},
		{
			`{"url": "https://a.com", "selector": "#main", "wait": "element", "wait_target": ".ready"}`,
			ScrapeRequest{URL: "https://a.com", Selector: "#main", Wait: "element", WaitTarget: ".ready", Format: "text"},
			page.LevelCSS, page.WaitElement, ".ready",
		},
	}
	for _, test := range testCases {
		req, err := ParseScrapeRequest([]byte(test.body), nil)
		require.NoError(t, err, test.body)
		if diff := cmp.Diff(test.expected, req); diff != "" {
			t.Fatal(diff)
		}

		prepared, err := generic.Prepare(req.URL, genericOptions(req, scraper.Options{}))
		require.NoError(t, err, test.body)
		assert.Equal(t, test.level, prepared.Level, test.body)
		assert.Equal(t, req.Selector, prepared.Selector, test.body)
		assert.Equal(t, test.wait, prepared.WaitFor, test.body)
		assert.Equal(t, test.target, prepared.WaitTarget, test.body)
	}
}

func TestScrapeFailure(t *testing.T) {
	h := New(&fakeRunner{fail: true}, fakeProbe{}, Options{CacheSize: 8, CacheTTL: time.Minute}).Handler()

	rec, res := do(t, h, http.MethodPost, "/api/scrape", `{"url": "https://example.com"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, res.Error, "navigation timed out")
}

func TestMethodsAndCORS(t *testing.T) {
	h := New(&fakeRunner{}, fakeProbe{}, Options{}).Handler()

	rec, res := do(t, h, http.MethodGet, "/api/scrape", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.False(t, res.Success)
	assert.Equal(t, "POST, OPTIONS", rec.Header().Get("Allow"))

	rec, _ = do(t, h, http.MethodOptions, "/api/scrape", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec, res = do(t, h, http.MethodGet, "/api/sites", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["attorneys.websearch","guilford.deeds","guilford.parcel"]`, string(res.Data))
}

func TestProbe(t *testing.T) {
	h := New(&fakeRunner{}, fakeProbe{}, Options{}).Handler()
	rec, res := do(t, h, http.MethodPost, "/api/test", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"browser":"HeadlessChrome/120.0.0.0","elapsed_ms":42}`, string(res.Data))

	h = New(&fakeRunner{}, fakeProbe{err: errors.New("chrome not found")}, Options{}).Handler()
	rec, res = do(t, h, http.MethodPost, "/api/test", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, res.Error, "chrome not found")
}
