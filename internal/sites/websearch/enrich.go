package websearch

import (
	"bytes"
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"deedscout/internal/browser"
	"deedscout/internal/records"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// Enricher visits a contact's own website without a browser and picks up
// the email and phone it publishes.
type Enricher struct {
	http *resty.Client
}

func NewEnricher(timeout time.Duration) *Enricher {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("user-agent", browser.DefaultUserAgent)
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	return &Enricher{http: client}
}

// Contacts is what a website lists.
type Contacts struct {
	Emails []string
	Phones []string
}

var emailTextRegex = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)

var ignoredEmails = []string{"example.com", "sentry", "wixpress.com", ".png", ".jpg", "noreply", "no-reply"}

// ParseContacts collects mailto:/tel: links, then falls back to addresses
// and numbers in the page text.
func ParseContacts(html string) (Contacts, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Contacts{}, errors.Wrap(err, "failed to parse html")
	}

	var c Contacts
	seen := map[string]bool{}
	addEmail := func(e string) {
		e = strings.ToLower(strings.TrimSpace(e))
		if i := strings.Index(e, "?"); i >= 0 {
			e = e[:i]
		}
		if e == "" || seen[e] || !emailTextRegex.MatchString(e) {
			return
		}
		for _, ignored := range ignoredEmails {
			if strings.Contains(e, ignored) {
				return
			}
		}
		seen[e] = true
		c.Emails = append(c.Emails, e)
	}
	addPhone := func(p string) {
		p = records.FormatPhone(p)
		if p == "" || seen[p] || !strings.HasPrefix(p, "(") {
			return
		}
		seen[p] = true
		c.Phones = append(c.Phones, p)
	}

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		switch lower := strings.ToLower(href); {
		case strings.HasPrefix(lower, "mailto:"):
			addEmail(strings.TrimPrefix(lower, "mailto:"))
		case strings.HasPrefix(lower, "tel:"):
			addPhone(href)
		}
	})

	doc.Find("script, style, noscript").Remove()
	text := doc.Find("body").Text()
	for _, e := range emailTextRegex.FindAllString(text, -1) {
		addEmail(e)
	}
	for _, p := range phoneRegex.FindAllString(text, -1) {
		addPhone(p)
	}
	return c, nil
}

// Fetch downloads a website's HTML.
func (e *Enricher) Fetch(ctx context.Context, site string) (string, error) {
	resp, err := e.http.R().SetContext(ctx).Get(site)
	if err != nil {
		return "", errors.Wrapf(err, "failed to fetch %s", site)
	}
	if resp.IsError() {
		return "", errors.Errorf("fetching %s returned %s", site, resp.Status())
	}
	if ct := resp.Header().Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return "", errors.Errorf("%s is not html (%s)", site, ct)
	}
	return string(bytes.ToValidUTF8(resp.Body(), nil)), nil
}

// Enrich fills a missing email or phone from the contact's website. The
// contact is marked verified when the site lists the phone or email the
// contact already had.
func (e *Enricher) Enrich(ctx context.Context, a *records.Attorney) error {
	if a.Website == "" {
		return nil
	}
	html, err := e.Fetch(ctx, a.Website)
	if err != nil {
		return err
	}
	found, err := ParseContacts(html)
	if err != nil {
		return err
	}
	Apply(a, found)
	return nil
}

// Apply merges found contacts into a.
func Apply(a *records.Attorney, found Contacts) {
	confirmed := false
	for _, e := range found.Emails {
		if a.Email != "" && strings.EqualFold(a.Email, e) {
			confirmed = true
		}
	}
	for _, p := range found.Phones {
		if a.Phone != "" && records.FormatPhone(a.Phone) == p {
			confirmed = true
		}
	}
	if a.Email == "" && len(found.Emails) > 0 {
		a.Email = pickEmail(found.Emails, Host(a.Website))
	}
	if a.Phone == "" && len(found.Phones) > 0 {
		a.Phone = found.Phones[0]
	}
	a.Verified = a.Verified || confirmed
}

// pickEmail prefers an address on the website's own domain.
func pickEmail(emails []string, host string) string {
	for _, e := range emails {
		if host != "" && strings.HasSuffix(e, "@"+host) {
			return e
		}
	}
	return emails[0]
}

func parseFloat(s string, def float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return def
	}
	return f
}
