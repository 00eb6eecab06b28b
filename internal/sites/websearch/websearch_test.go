package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"deedscout/internal/records"
	"deedscout/internal/scraper"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bingPage = `<html><body><ol id="b_results">
<li class="b_algo"><h2><a href="https://www.doelaw.com/real-estate/">Jane Doe - Real Estate Attorney | Doe Law PLLC</a></h2>
  <div class="b_caption"><p>Call   (336) 555-0142 for a consultation in Greensboro.</p></div></li>
<li class="b_algo"><h2><a href="https://www.avvo.com/attorneys/27401-nc-john-roe-1.html">John Roe, Esq. - Greensboro, NC</a></h2>
  <p>Rated 9.8. Phone 336.555.0199</p></li>
<li class="b_algo"><h2><a href="https://news.example.com/list">Top 10 Real Estate Lawyers in Greensboro</a></h2>
  <div class="b_caption"><p>Our ranking.</p></div></li>
<li class="b_ad"><h2><a href="https://ads.example.com">Sponsored</a></h2></li>
<li class="b_algo"><h2><a href="#"></a></h2></li>
</ol></body></html>`

func TestParseResults(t *testing.T) {
	results, err := ParseResults(bingPage)
	require.NoError(t, err)

	expected := []Result{
		{Title: "Jane Doe - Real Estate Attorney | Doe Law PLLC", URL: "https://www.doelaw.com/real-estate/", Snippet: "Call (336) 555-0142 for a consultation in Greensboro."},
		{Title: "John Roe, Esq. - Greensboro, NC", URL: "https://www.avvo.com/attorneys/27401-nc-john-roe-1.html", Snippet: "Rated 9.8. Phone 336.555.0199"},
		{Title: "Top 10 Real Estate Lawyers in Greensboro", URL: "https://news.example.com/list", Snippet: "Our ranking."},
	}
	if diff := cmp.Diff(expected, results); diff != "" {
		t.Fatal(diff)
	}
}

func TestParseQuery(t *testing.T) {
	testCases := []struct {
		in       string
		expected Query
	}{
		{"real estate attorney Greensboro, nc", Query{Raw: "real estate attorney Greensboro, nc", Practice: "real estate", City: "Greensboro", State: "NC"}},
		{"probate lawyers in High Point", Query{Raw: "probate lawyers in High Point", Practice: "probate", City: "High Point"}},
		{"greensboro", Query{Raw: "greensboro"}},
	}
	for _, test := range testCases {
		if diff := cmp.Diff(test.expected, ParseQuery(test.in)); diff != "" {
			t.Errorf("%s: %s", test.in, diff)
		}
	}
}

func TestToAttorney(t *testing.T) {
	results, err := ParseResults(bingPage)
	require.NoError(t, err)
	q := ParseQuery("real estate attorney Greensboro, NC")

	a, ok := ToAttorney(results[0], q)
	require.True(t, ok)
	expected := records.Attorney{
		Name:          "Jane Doe",
		Firm:          "Doe Law PLLC",
		City:          "Greensboro",
		State:         "NC",
		Phone:         "(336) 555-0142",
		Website:       "https://doelaw.com",
		PracticeAreas: []string{"real estate"},
		Source:        "websearch",
	}
	if diff := cmp.Diff(expected, a); diff != "" {
		t.Fatal(diff)
	}

	a, ok = ToAttorney(results[1], q)
	require.True(t, ok)
	assert.Equal(t, "John Roe", a.Name)
	assert.Empty(t, a.Website)
	assert.Equal(t, "websearch:avvo.com", a.Source)
	assert.Equal(t, "(336) 555-0199", a.Phone)

	_, ok = ToAttorney(results[2], q)
	assert.False(t, ok)
}

type fakeSearcher map[string][]Result

func (f fakeSearcher) Search(_ context.Context, query string) ([]Result, error) {
	results, ok := f[query]
	if !ok {
		return nil, errors.New("blocked")
	}
	return results, nil
}

func TestCollect(t *testing.T) {
	jane := Result{Title: "Jane Doe | Doe Law PLLC", URL: "https://doelaw.com"}
	searcher := fakeSearcher{
		"real estate attorney Greensboro, NC": {jane},
		"probate attorney Greensboro, NC":     {jane, {Title: "Sam Poe - Poe & Associates", URL: "https://poelaw.com"}},
	}

	list, err := Collect(context.Background(), searcher, []string{
		"real estate attorney Greensboro, NC",
		"probate attorney Greensboro, NC",
		"tax attorney Nowhere, NC",
	}, scraper.Options{Extra: map[string]string{ExtraConcurrency: "2"}})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Jane Doe", list[0].Name)
	assert.Equal(t, []string{"real estate"}, list[0].PracticeAreas)
	assert.Equal(t, "Sam Poe", list[1].Name)

	list, err = Collect(context.Background(), searcher, []string{
		"real estate attorney Greensboro, NC",
		"probate attorney Greensboro, NC",
	}, scraper.Options{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = Collect(context.Background(), searcher, []string{"tax attorney Nowhere, NC"}, scraper.Options{})
	assert.Error(t, err)
}

func TestSplitQueries(t *testing.T) {
	assert.Equal(t, []string{"a attorney b", "c lawyer d"}, SplitQueries(" a attorney b ;; c lawyer d;"))
	assert.Empty(t, SplitQueries(" ; "))
}

const firmSite = `<html><body>
<header><a href="tel:+1-336-555-0142">Call us</a></header>
<p>Email <a href="MAILTO:Info@DoeLaw.com?subject=Hi">info</a> or jane@doelaw.com.</p>
<p>Fax: 336-555-9999. Logo: logo@2x.png</p>
<script>var x = "tracking@sentry.io";</script>
</body></html>`

func TestParseContacts(t *testing.T) {
	c, err := ParseContacts(firmSite)
	require.NoError(t, err)
	assert.Equal(t, []string{"info@doelaw.com", "jane@doelaw.com"}, c.Emails)
	assert.Equal(t, []string{"(336) 555-0142", "(336) 555-9999"}, c.Phones)
}

func TestApply(t *testing.T) {
	a := records.Attorney{Name: "Jane Doe", Phone: "336-555-0142", Website: "https://doelaw.com"}
	Apply(&a, Contacts{Emails: []string{"x@gmail.com", "jane@doelaw.com"}, Phones: []string{"(336) 555-0142"}})
	assert.True(t, a.Verified)
	assert.Equal(t, "jane@doelaw.com", a.Email)

	b := records.Attorney{Name: "Sam Poe"}
	Apply(&b, Contacts{Phones: []string{"(336) 555-0000"}})
	assert.False(t, b.Verified)
	assert.Equal(t, "(336) 555-0000", b.Phone)
}

func TestEnricher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/pdf" {
			w.Header().Set("Content-Type", "application/pdf")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(firmSite))
	}))
	defer srv.Close()

	e := NewEnricher(5 * time.Second)

	a := records.Attorney{Name: "Jane Doe", Email: "jane@doelaw.com", Website: srv.URL}
	require.NoError(t, e.Enrich(context.Background(), &a))
	assert.True(t, a.Verified)
	assert.Equal(t, "(336) 555-0142", a.Phone)

	b := records.Attorney{Name: "No Site"}
	require.NoError(t, e.Enrich(context.Background(), &b))
	assert.False(t, b.Verified)

	c := records.Attorney{Name: "Bad", Website: srv.URL + "/pdf"}
	assert.Error(t, e.Enrich(context.Background(), &c))
}
