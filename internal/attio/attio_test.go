package attio

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"deedscout/internal/log"
	"deedscout/internal/records"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetOutput(io.Discard)
}

type fakeAttio struct {
	mu       sync.Mutex
	bodies   []map[string]any
	paths    []string
	conflict map[string]bool
	fail     map[string]int
	nextID   int
}

func (f *fakeAttio) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer secret" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"status_code":401,"type":"auth_error","code":"unauthorized","message":"bad key"}`))
		return
	}
	if r.Method == http.MethodGet && r.URL.Path == "/v2/self" {
		_, _ = w.Write([]byte(`{"active":true,"workspace_id":"w1","workspace_name":"Deeds","workspace_slug":"deeds","scope":"record_permission:read-write"}`))
		return
	}

	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.bodies = append(f.bodies, body)
	f.paths = append(f.paths, r.URL.Path)

	name := ""
	values := body["data"].(map[string]any)["values"].(map[string]any)
	switch v := values["name"].(type) {
	case string:
		name = v
	case []any:
		name = v[0].(map[string]any)["full_name"].(string)
	}
	if f.conflict[name] {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"status_code":409,"type":"invalid_request_error","code":"uniqueness_conflict","message":"duplicate"}`))
		return
	}
	if status, ok := f.fail[name]; ok {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"status_code":500,"type":"api_error","code":"internal","message":"boom"}`))
		return
	}
	f.nextID++
	_, _ = w.Write([]byte(`{"data":{"id":{"workspace_id":"w1","object_id":"people","record_id":"r` + string(rune('0'+f.nextID)) + `"},"created_at":"2026-10-18T00:00:00Z"}}`))
}

func newServer(t *testing.T, f *fakeAttio) *Client {
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return NewClient(Options{BaseURL: srv.URL, APIKey: "secret", Timeout: 5 * time.Second})
}

func TestSelf(t *testing.T) {
	c := newServer(t, &fakeAttio{})
	ws, err := c.Self(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Deeds", ws.WorkspaceName)

	srv := httptest.NewServer(&fakeAttio{})
	defer srv.Close()
	bad := NewClient(Options{BaseURL: srv.URL, APIKey: "wrong"})
	_, err = bad.Self(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestCreatePerson(t *testing.T) {
	f := &fakeAttio{}
	c := newServer(t, f)

	rec, err := c.CreatePerson(context.Background(), records.Attorney{
		Name:          "Mary Ann Smith",
		Firm:          "Smith Law",
		City:          "Greensboro",
		State:         "NC",
		Phone:         "(336) 555-0142",
		Email:         "mary@smithlaw.com",
		PracticeAreas: []string{"probate", "real estate"},
	})
	require.NoError(t, err)
	assert.Equal(t, "r1", rec.ID.RecordID)
	assert.Equal(t, "/v2/objects/people/records", f.paths[0])

	expected := map[string]any{
		"data": map[string]any{
			"values": map[string]any{
				"name":            []any{map[string]any{"first_name": "Mary Ann", "last_name": "Smith", "full_name": "Mary Ann Smith"}},
				"job_title":       "Attorney",
				"email_addresses": []any{"mary@smithlaw.com"},
				"phone_numbers":   []any{map[string]any{"original_phone_number": "+13365550142", "country_code": "US"}},
				"description":     "Firm: Smith Law\nLocation: Greensboro, NC\nPractice areas: probate, real estate",
			},
		},
	}
	if diff := cmp.Diff(expected, f.bodies[0]); diff != "" {
		t.Fatal(diff)
	}
}

func TestErrors(t *testing.T) {
	f := &fakeAttio{conflict: map[string]bool{"Dup": true}, fail: map[string]int{"Broken": http.StatusInternalServerError}}
	c := newServer(t, f)

	_, err := c.CreatePerson(context.Background(), records.Attorney{Name: "Dup"})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, err = c.CreatePerson(context.Background(), records.Attorney{Name: "Broken"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, "internal", apiErr.Code)
}

func TestCompanyValues(t *testing.T) {
	expected := map[string]any{"name": "Doe Law PLLC", "domains": []string{"doelaw.com"}}
	if diff := cmp.Diff(expected, CompanyValues("Doe Law PLLC", "https://www.doelaw.com/contact")); diff != "" {
		t.Fatal(diff)
	}
	assert.Equal(t, map[string]any{"name": "Solo"}, CompanyValues("Solo", ""))
}

type memLedger struct {
	done  map[string]string
	marks int
}

func (m *memLedger) Uploaded(_ context.Context, key string) (bool, error) {
	_, ok := m.done[key]
	return ok, nil
}

func (m *memLedger) MarkUploaded(_ context.Context, key, _, status string) error {
	m.done[key] = status
	m.marks++
	return nil
}

func TestUploader(t *testing.T) {
	f := &fakeAttio{conflict: map[string]bool{"Dup Person": true}, fail: map[string]int{"Broken Person": http.StatusBadGateway}}
	ledger := &memLedger{done: map[string]string{"old@firm.com": StatusCreated}}
	u := &Uploader{Client: newServer(t, f), Ledger: ledger, Companies: true}

	sum, err := u.Upload(context.Background(), []records.Attorney{
		{Name: "Jane Doe", Firm: "Doe Law", Email: "jane@doelaw.com"},
		{Name: "Old Contact", Email: "OLD@firm.com"},
		{Name: "  "},
		{Name: "Dup Person"},
		{Name: "Broken Person"},
		{Name: "John Doe", Firm: "Doe Law"},
	})
	require.NoError(t, err)
	assert.Equal(t, Summary{Created: 2, Skipped: 2, Failed: 1, Invalid: 1}, sum)
	assert.Equal(t, 6, sum.Total())

	// one company, five people
	assert.Equal(t, []string{
		"/v2/objects/companies/records",
		"/v2/objects/people/records",
		"/v2/objects/people/records",
		"/v2/objects/people/records",
		"/v2/objects/people/records",
	}, f.paths)
	assert.Equal(t, StatusExists, ledger.done["dup person|"])
	assert.NotContains(t, ledger.done, "broken person|")
	// Jane is recorded under her email and her name|firm key
	assert.Equal(t, StatusCreated, ledger.done["jane doe|doe law"])
	assert.Equal(t, 4, ledger.marks)
}

func TestUploaderSkipsAfterEmailAdded(t *testing.T) {
	f := &fakeAttio{}
	ledger := &memLedger{done: map[string]string{}}
	u := &Uploader{Client: newServer(t, f), Ledger: ledger}

	jane := records.Attorney{Name: "Jane Doe", Firm: "Doe Law"}
	sum, err := u.Upload(context.Background(), []records.Attorney{jane})
	require.NoError(t, err)
	assert.Equal(t, Summary{Created: 1}, sum)

	// enrichment found her address after the first upload
	jane.Email = "jane@doelaw.com"
	sum, err = u.Upload(context.Background(), []records.Attorney{jane})
	require.NoError(t, err)
	assert.Equal(t, Summary{Skipped: 1}, sum)
	assert.Len(t, f.paths, 1)
}

func TestUploaderDryRun(t *testing.T) {
	f := &fakeAttio{}
	u := &Uploader{Client: newServer(t, f), DryRun: true}
	sum, err := u.Upload(context.Background(), []records.Attorney{{Name: "Jane Doe"}, {Name: "Bad", Email: "nope"}})
	require.NoError(t, err)
	assert.Equal(t, Summary{Created: 1, Invalid: 1}, sum)
	assert.Empty(t, f.paths)
}

func TestUploaderAborts(t *testing.T) {
	srv := httptest.NewServer(&fakeAttio{})
	defer srv.Close()
	u := &Uploader{Client: NewClient(Options{BaseURL: srv.URL, APIKey: "wrong"})}
	_, err := u.Upload(context.Background(), []records.Attorney{{Name: "Jane Doe"}, {Name: "John Doe"}})
	assert.ErrorIs(t, err, ErrUnauthorized)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	u = &Uploader{Client: newServer(t, &fakeAttio{}), Delay: time.Hour}
	_, err = u.Upload(ctx, []records.Attorney{{Name: "Jane Doe"}})
	assert.ErrorIs(t, err, context.Canceled)
}
