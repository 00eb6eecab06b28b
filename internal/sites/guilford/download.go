package guilford

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"deedscout/internal/log"
	"deedscout/internal/page"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ErrNoPDF is returned when every download strategy failed.
var ErrNoPDF = errors.New("no pdf could be retrieved")

// Strategy names one way of getting the document bytes.
type Strategy string

const (
	StrategyDirectLink     Strategy = "direct-link"
	StrategyEmbeddedViewer Strategy = "embedded-viewer"
	StrategyInPageFetch    Strategy = "in-page-fetch"
	StrategyPrintToPDF     Strategy = "print-to-pdf"
)

const pdfMagic = "%PDF-"

// IsPDF checks the magic number rather than trusting Content-Type.
func IsPDF(b []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(b, "\r\n\t "), []byte(pdfMagic))
}

var pdfLinkRegex = regexp.MustCompile(`(?i)(\.pdf($|[?#])|getimage|viewimage|/pdf)`)

// Candidates are the URLs a document page offers for its image.
type Candidates struct {
	Links  []string // anchors that look like document links
	Frames []string // iframe/embed/object sources
}

// FindCandidates lists document URLs in rendered HTML, absolute and deduped.
func FindCandidates(html, base string) (Candidates, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Candidates{}, errors.Wrap(err, "failed to parse html")
	}

	var c Candidates
	seen := map[string]bool{}
	add := func(list *[]string, raw string) {
		u := resolve(base, raw)
		if u == "" || seen[u] || strings.HasPrefix(u, "about:") {
			return
		}
		seen[u] = true
		*list = append(*list, u)
	}

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if pdfLinkRegex.MatchString(href) {
			add(&c.Links, href)
		}
	})
	doc.Find("iframe[src], embed[src], object[data], frame[src]").Each(func(_ int, s *goquery.Selection) {
		src := s.AttrOr("src", s.AttrOr("data", ""))
		add(&c.Frames, src)
	})
	return c, nil
}

// Downloader retrieves a deed image from an open document page by trying
// each strategy in order until one yields a PDF.
type Downloader struct {
	http *resty.Client
	log  zerolog.Logger
	// Strategies defaults to every strategy in declaration order.
	Strategies []Strategy
}

func NewDownloader(timeout time.Duration) *Downloader {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/pdf,*/*")
	return &Downloader{
		http: client,
		log:  log.NewLogger("download"),
		Strategies: []Strategy{
			StrategyDirectLink, StrategyEmbeddedViewer, StrategyInPageFetch, StrategyPrintToPDF,
		},
	}
}

// Download returns the PDF and the strategy that produced it. When all
// strategies fail the error wraps ErrNoPDF and lists every attempt.
func (d *Downloader) Download(ctx context.Context, p *rod.Page) ([]byte, Strategy, error) {
	res, err := page.Snapshot(p)
	if err != nil {
		return nil, "", err
	}
	cands, err := FindCandidates(res.HTML, res.URL)
	if err != nil {
		return nil, "", err
	}

	attempts := map[Strategy]attempt{
		StrategyDirectLink: func() ([]byte, error) {
			return d.firstPDF(ctx, p, res.URL, cands.Links, d.fetchWithCookies)
		},
		StrategyEmbeddedViewer: func() ([]byte, error) {
			return d.firstPDF(ctx, p, res.URL, cands.Frames, d.fetchWithCookies)
		},
		StrategyInPageFetch: func() ([]byte, error) {
			return d.firstPDF(ctx, p, res.URL, append(cands.Links, cands.Frames...), d.fetchInPage)
		},
		StrategyPrintToPDF: func() ([]byte, error) {
			return printToPDF(p)
		},
	}
	return d.run(ctx, attempts)
}

type attempt func() ([]byte, error)

// run tries d.Strategies in order and stops at the first body that is a PDF.
func (d *Downloader) run(ctx context.Context, attempts map[Strategy]attempt) ([]byte, Strategy, error) {
	var failures []string
	for _, s := range d.Strategies {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}

		var (
			body []byte
			err  error
		)
		if try, ok := attempts[s]; ok {
			body, err = try()
		} else {
			err = errors.Errorf("unknown strategy %q", s)
		}

		if err == nil && IsPDF(body) {
			d.log.Info().Str("strategy", string(s)).Int("bytes", len(body)).Msg("downloaded deed image")
			return body, s, nil
		}
		if err == nil {
			err = errors.New("response is not a pdf")
		}
		d.log.Debug().Str("strategy", string(s)).Err(err).Msg("strategy failed")
		failures = append(failures, string(s)+": "+err.Error())
	}

	return nil, "", errors.Wrap(ErrNoPDF, strings.Join(failures, "; "))
}

type fetchFunc func(ctx context.Context, p *rod.Page, referer, target string) ([]byte, error)

func (d *Downloader) firstPDF(ctx context.Context, p *rod.Page, referer string, urls []string, fetch fetchFunc) ([]byte, error) {
	if len(urls) == 0 {
		return nil, errors.New("no candidate urls")
	}
	var lastErr error
	for _, u := range urls {
		body, err := fetch(ctx, p, referer, u)
		if err != nil {
			lastErr = err
			continue
		}
		if IsPDF(body) {
			return body, nil
		}
		lastErr = errors.Errorf("%s did not return a pdf", u)
	}
	return nil, lastErr
}

// fetchWithCookies downloads target over plain HTTP, carrying the browser's
// session cookies for that URL.
func (d *Downloader) fetchWithCookies(ctx context.Context, p *rod.Page, referer, target string) ([]byte, error) {
	cookies, err := p.Cookies([]string{target})
	if err != nil {
		return nil, errors.Wrap(err, "failed to read browser cookies")
	}
	return d.Get(ctx, target, referer, toHTTPCookies(cookies))
}

// Get fetches target with the given cookies and referer.
func (d *Downloader) Get(ctx context.Context, target, referer string, cookies []*http.Cookie) ([]byte, error) {
	req := d.http.R().SetContext(ctx).SetCookies(cookies)
	if referer != "" {
		req.SetHeader("Referer", referer)
	}
	resp, err := req.Get(target)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch %s", target)
	}
	if resp.IsError() {
		return nil, errors.Errorf("fetching %s returned %s", target, resp.Status())
	}
	return resp.Body(), nil
}

func toHTTPCookies(cookies []*proto.NetworkCookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value, Path: c.Path, Domain: c.Domain})
	}
	return out
}

// fetchInPage runs fetch() inside the page so blob URLs and session-bound
// endpoints resolve exactly as they do for the viewer.
func (d *Downloader) fetchInPage(ctx context.Context, p *rod.Page, _ string, target string) ([]byte, error) {
	res, err := p.Context(ctx).Timeout(60*time.Second).Eval(`async (u) => {
		const r = await fetch(u, {credentials: 'include'});
		if (!r.ok) throw new Error('status ' + r.status);
		const buf = new Uint8Array(await r.arrayBuffer());
		let s = '';
		for (let i = 0; i < buf.length; i += 0x8000) {
			s += String.fromCharCode.apply(null, buf.subarray(i, i + 0x8000));
		}
		return btoa(s);
	}`, target)
	if err != nil {
		return nil, errors.Wrapf(err, "in-page fetch of %s failed", target)
	}
	body, err := base64.StdEncoding.DecodeString(res.Value.Str())
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode in-page fetch result")
	}
	return body, nil
}

func printToPDF(p *rod.Page) ([]byte, error) {
	r, err := p.Timeout(60 * time.Second).PDF(&proto.PagePrintToPDF{PrintBackground: true})
	if err != nil {
		return nil, errors.Wrap(err, "print to pdf failed")
	}
	return io.ReadAll(r)
}
