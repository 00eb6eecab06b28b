package guilford

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"deedscout/internal/records"
	"deedscout/internal/scraper"

	"github.com/go-rod/rod"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const parcelDetail = `<html><body>
<h2>Parcel Summary</h2>
<table>
  <tr><th>Parcel Number:</th><td>7865-43-2109</td><th>Owner Name</th><td>SMITH  JOHN &amp; JANE</td></tr>
  <tr><th>Location Address</th><td>123 ELM ST</td><th>City</th><td>GREENSBORO</td></tr>
  <tr><th>Deed Book</th><td>008123</td><th>Deed Page</th><td>0012</td></tr>
  <tr><th>Deed Date</th><td>03/04/2019 12:00:00 AM</td><th>Total Assessed Value</th><td>$245,300</td></tr>
</table>
<dl><dt>Legal Description</dt><dd>LOT 4 ELM ACRES</dd><dt>Acreage</dt><dd>0.52</dd></dl>
</body></html>`

func TestParseParcelDetail(t *testing.T) {
	parcel, err := ParseParcelDetail(parcelDetail)
	require.NoError(t, err)

	expected := &records.Parcel{
		ParcelID:      "7865432109",
		Owner:         "SMITH JOHN & JANE",
		Address:       "123 ELM ST",
		City:          "GREENSBORO",
		County:        "Guilford",
		LegalDesc:     "LOT 4 ELM ACRES",
		Acreage:       "0.52",
		AssessedValue: "$245,300",
		Deed: records.DeedRef{
			Book:     "8123",
			Page:     "12",
			Recorded: time.Date(2019, 3, 4, 0, 0, 0, 0, time.UTC),
		},
	}
	if diff := cmp.Diff(expected, parcel); diff != "" {
		t.Fatal(diff)
	}
}

func TestParseParcelDetailMissing(t *testing.T) {
	_, err := ParseParcelDetail(`<html><body><p>No records found</p></body></html>`)
	assert.True(t, errors.Is(err, ErrNotFound))
}

const parcelResults = `<html><body><table>
<tr><th>PIN</th><th>Owner</th><th>Address</th></tr>
<tr><td><a href="detail.aspx?id=1">7865-43-0001</a></td><td>DOE JANE</td><td>1 OAK ST</td></tr>
<tr><td><a href="/guilford/detail.aspx?id=2">7865-43-2109</a></td><td>SMITH JOHN</td><td>123 ELM ST</td></tr>
<tr><td><a href="javascript:void(0)">x</a></td><td>skip</td></tr>
</table></body></html>`

func TestParseParcelResults(t *testing.T) {
	hits, err := ParseParcelResults(parcelResults, "https://tax.example.test/guilford/search.aspx")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "https://tax.example.test/guilford/detail.aspx?id=1", hits[0].URL)
	assert.Equal(t, []string{"7865-43-2109", "SMITH JOHN", "123 ELM ST"}, hits[1].Cells)

	hit, ok := pickHit(hits, "7865432109")
	require.True(t, ok)
	assert.Equal(t, "https://tax.example.test/guilford/detail.aspx?id=2", hit.URL)

	hit, ok = pickHit(hits, "123 elm st")
	require.True(t, ok)
	assert.Equal(t, "https://tax.example.test/guilford/detail.aspx?id=2", hit.URL)

	hit, ok = pickHit(hits, "999 nowhere")
	require.True(t, ok)
	assert.Equal(t, hits[0], hit)

	_, ok = pickHit(nil, "x")
	assert.False(t, ok)
}

const deedResults = `<html><body>
<table><tr><td>Search results</td></tr></table>
<table>
  <tr><th>Name</th><th>Party Type</th><th>Date Recorded</th><th>Doc Type</th><th>Book</th><th>Page</th><th></th></tr>
  <tr><td>SMITH JOHN</td><td>Grantor</td><td>03/04/2019</td><td>DEED</td><td>8123</td><td>12</td><td><a href="view.php?b=8123&amp;p=12">View</a></td></tr>
  <tr><td>DOE JANE</td><td>Grantee</td><td>03/04/2019</td><td>DEED</td><td>8123</td><td>0012</td><td><a href="view.php?b=8123&amp;p=12">View</a></td></tr>
  <tr><td>SMITH JOHN</td><td>Grantee</td><td>1/2/2005</td><td>DEED OF TRUST</td><td>6001</td><td>450</td><td></td></tr>
  <tr><td>BROKEN ROW</td><td>Grantor</td><td></td><td>DEED</td><td></td><td></td><td></td></tr>
</table></body></html>`

func TestParseDeedResults(t *testing.T) {
	deeds, err := ParseDeedResults(deedResults, "https://rod.example.test/search.php")
	require.NoError(t, err)

	expected := []records.Deed{
		{
			Ref:      records.DeedRef{Book: "8123", Page: "12", Recorded: time.Date(2019, 3, 4, 0, 0, 0, 0, time.UTC)},
			County:   "Guilford",
			DocType:  "DEED",
			Grantors: []string{"SMITH JOHN"},
			Grantees: []string{"DOE JANE"},
			ImageURL: "https://rod.example.test/view.php?b=8123&p=12",
		},
		{
			Ref:      records.DeedRef{Book: "6001", Page: "450", Recorded: time.Date(2005, 1, 2, 0, 0, 0, 0, time.UTC)},
			County:   "Guilford",
			DocType:  "DEED OF TRUST",
			Grantees: []string{"SMITH JOHN"},
		},
	}
	if diff := cmp.Diff(expected, deeds); diff != "" {
		t.Fatal(diff)
	}
}

func TestParseDeedResultsGrantorColumns(t *testing.T) {
	html := `<table>
<tr><th>Instrument #</th><th>Grantor</th><th>Grantee</th></tr>
<tr><td>2019012345</td><td>SMITH JOHN</td><td>DOE JANE</td></tr>
</table>`
	deeds, err := ParseDeedResults(html, "")
	require.NoError(t, err)
	require.Len(t, deeds, 1)
	assert.Equal(t, "2019012345", deeds[0].Ref.Instrument)
	assert.Equal(t, []string{"SMITH JOHN"}, deeds[0].Grantors)
	assert.Equal(t, []string{"DOE JANE"}, deeds[0].Grantees)
}

func TestDeedColumn(t *testing.T) {
	testCases := map[string]string{
		"Book":          "book",
		"Deed Book":     "book",
		"Page":          "page",
		"Instrument #":  "instrument",
		"Party Type":    "party",
		"Doc Type":      "type",
		"Date Recorded": "date",
		"Grantor(s)":    "grantor",
		"Name":          "name",
		"":              "",
	}
	for in, out := range testCases {
		assert.Equal(t, out, deedColumn(in), in)
	}
}

func TestSplitName(t *testing.T) {
	last, first := splitName("Smith, John Q")
	assert.Equal(t, "Smith", last)
	assert.Equal(t, "John Q", first)

	last, first = splitName("  SMITH  JOHN ")
	assert.Equal(t, "SMITH", last)
	assert.Equal(t, "JOHN", first)

	last, first = splitName("")
	assert.Empty(t, last+first)
}

func TestFindCandidates(t *testing.T) {
	html := `<html><body>
<a href="/docs/8123-12.pdf">Download</a>
<a href="GetImage.ashx?id=5">Image</a>
<a href="/docs/8123-12.pdf">Duplicate</a>
<a href="/help.html">Help</a>
<iframe src="viewer/doc?id=5"></iframe>
<object data="blob.pdf"></object>
<iframe src="about:blank"></iframe>
</body></html>`

	c, err := FindCandidates(html, "https://rod.example.test/detail/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://rod.example.test/docs/8123-12.pdf",
		"https://rod.example.test/detail/GetImage.ashx?id=5",
	}, c.Links)
	assert.Equal(t, []string{
		"https://rod.example.test/detail/viewer/doc?id=5",
		"https://rod.example.test/detail/blob.pdf",
	}, c.Frames)
}

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF([]byte("%PDF-1.7\n...")))
	assert.True(t, IsPDF([]byte("\r\n%PDF-1.4")))
	assert.False(t, IsPDF([]byte("<html>")))
	assert.False(t, IsPDF(nil))
}

func TestDocumentURL(t *testing.T) {
	bookPage := Templates{BookPage: DefaultDocumentURL}
	both := Templates{BookPage: DefaultDocumentURL, Instrument: "https://rod.example.test/inst?n={instrument}"}

	testCases := []struct {
		templates Templates
		ref       string
		expected  string
	}{
		{bookPage, "Book 8123 Page 12", "https://rdlxweb.guilfordcountync.gov/guilfordDetail.php?book=8123&page=12"},
		{both, "2019012345", "https://rod.example.test/inst?n=2019012345"},
		{Templates{BookPage: "https://rod.example.test/d?i={instrument}"}, "2019012345", "https://rod.example.test/d?i=2019012345"},
		{bookPage, "2019012345", ""},
		{Templates{Instrument: "https://rod.example.test/inst?n={instrument}"}, "8123/12", ""},
	}
	for _, test := range testCases {
		ref, err := records.ParseDeedRef(test.ref)
		require.NoError(t, err)

		got, err := DocumentURL(test.templates, ref)
		if test.expected == "" {
			assert.ErrorIs(t, err, ErrUnsupportedRef, test.ref)
			continue
		}
		require.NoError(t, err, test.ref)
		assert.Equal(t, test.expected, got)
	}
}

func TestDeedsScraperRejectsInstrumentWithoutTemplate(t *testing.T) {
	_, err := (&DeedsScraper{}).Scrape(context.Background(), "2019012345", scraper.Options{Extra: map[string]string{
		ExtraDocumentURL: DefaultDocumentURL,
	}})
	assert.ErrorIs(t, err, ErrUnsupportedRef)
}

func TestDownloaderGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("ASP.NET_SessionId")
		if err != nil || c.Value != "abc" || r.Header.Get("Referer") == "" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte("%PDF-1.4 fake"))
	}))
	defer srv.Close()

	d := NewDownloader(5 * time.Second)

	body, err := d.Get(context.Background(), srv.URL+"/img", srv.URL+"/detail", []*http.Cookie{{Name: "ASP.NET_SessionId", Value: "abc"}})
	require.NoError(t, err)
	assert.True(t, IsPDF(body))

	_, err = d.Get(context.Background(), srv.URL+"/img", "", nil)
	assert.Error(t, err)
}

func TestDownloaderFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/viewer":
			_, _ = w.Write([]byte("<html><body>Image viewer</body></html>"))
		case "/image.pdf":
			_, _ = w.Write([]byte("%PDF-1.4 deed"))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	d := NewDownloader(5 * time.Second)
	printed := 0
	get := func(urls ...string) attempt {
		return func() ([]byte, error) {
			fetch := func(ctx context.Context, _ *rod.Page, referer, target string) ([]byte, error) {
				return d.Get(ctx, target, referer, nil)
			}
			return d.firstPDF(ctx, nil, srv.URL, urls, fetch)
		}
	}

	attempts := map[Strategy]attempt{
		StrategyDirectLink:     get(srv.URL + "/viewer"),
		StrategyEmbeddedViewer: get(srv.URL + "/broken"),
		StrategyInPageFetch:    get(srv.URL+"/viewer", srv.URL+"/image.pdf"),
		StrategyPrintToPDF: func() ([]byte, error) {
			printed++
			return []byte("%PDF-1.7 screenshot"), nil
		},
	}
	body, strategy, err := d.run(ctx, attempts)
	require.NoError(t, err)
	assert.Equal(t, StrategyInPageFetch, strategy)
	assert.Equal(t, "%PDF-1.4 deed", string(body))
	assert.Zero(t, printed)

	// a 200 that is not a pdf is a failure, and every failure is reported
	attempts[StrategyInPageFetch] = get(srv.URL + "/viewer")
	attempts[StrategyPrintToPDF] = func() ([]byte, error) {
		printed++
		return []byte("<html>"), nil
	}
	_, _, err = d.run(ctx, attempts)
	require.ErrorIs(t, err, ErrNoPDF)
	assert.Equal(t, 1, printed)
	for _, s := range d.Strategies {
		assert.Contains(t, err.Error(), string(s)+": ")
	}
	assert.Contains(t, err.Error(), "did not return a pdf")
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "print-to-pdf: response is not a pdf")

	// the configured order decides which strategy runs first
	d.Strategies = []Strategy{StrategyPrintToPDF, "fax"}
	_, _, err = d.run(ctx, attempts)
	assert.Contains(t, err.Error(), `fax: unknown strategy "fax"`)
}
