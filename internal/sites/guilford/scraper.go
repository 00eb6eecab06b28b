package guilford

import (
	"context"
	"strings"

	"deedscout/internal/browser"
	"deedscout/internal/records"
	"deedscout/internal/report"
	"deedscout/internal/scraper"

	"github.com/pkg/errors"
)

// Keys read from scraper.Options.Extra.
const (
	ExtraParcelURL     = "guilford.parcel_url"
	ExtraDeedsURL      = "guilford.deeds_url"
	ExtraDocumentURL   = "guilford.document_url"
	ExtraInstrumentURL = "guilford.instrument_url"
)

func init() {
	scraper.Register(&ParcelScraper{})
	scraper.Register(&DeedsScraper{})
}

func newClient(opts scraper.Options) (*browser.Browser, *Client, error) {
	b, err := browser.New(browser.Config{
		ProxyURL:  opts.ProxyURL,
		Headless:  !opts.ShowUI,
		UserAgent: opts.UserAgent,
	})
	if err != nil {
		return nil, nil, err
	}
	return b, NewClient(b, opts.Timeout), nil
}

// ParcelScraper looks up a tax parcel by PIN or street address.
type ParcelScraper struct{}

func (s *ParcelScraper) Name() string { return "guilford.parcel" }

func (s *ParcelScraper) Scrape(ctx context.Context, target string, opts scraper.Options) (scraper.Content, error) {
	if strings.TrimSpace(target) == "" {
		return nil, errors.New("a parcel id or address is required for --site guilford.parcel")
	}

	b, client, err := newClient(opts)
	if err != nil {
		return nil, err
	}
	defer b.Close()
	defer client.Close()

	parcel, err := client.LookupParcel(ctx, opts.Get(ExtraParcelURL, DefaultParcelURL), target)
	if err != nil {
		return nil, errors.Wrap(err, "parcel lookup failed")
	}
	return report.Parcels("Guilford parcel "+parcel.ParcelID, []records.Parcel{*parcel}), nil
}

// DeedsScraper searches the register of deeds index by party name, or opens
// a single deed when the target is a book/page or instrument reference.
type DeedsScraper struct{}

func (s *DeedsScraper) Name() string { return "guilford.deeds" }

func (s *DeedsScraper) Scrape(ctx context.Context, target string, opts scraper.Options) (scraper.Content, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, errors.New("a party name or deed reference is required for --site guilford.deeds")
	}

	ref, refErr := records.ParseDeedRef(target)
	templates := Templates{
		BookPage:   opts.Get(ExtraDocumentURL, DefaultDocumentURL),
		Instrument: opts.Get(ExtraInstrumentURL, ""),
	}
	if refErr == nil {
		if _, err := DocumentURL(templates, ref); err != nil {
			return nil, err
		}
	}

	b, client, err := newClient(opts)
	if err != nil {
		return nil, err
	}
	defer b.Close()
	defer client.Close()

	if refErr == nil {
		deed, err := client.LookupDeed(ctx, templates, ref)
		if err != nil {
			return nil, err
		}
		return report.Deeds("Guilford deed "+ref.String(), []records.Deed{*deed}), nil
	}

	deeds, err := client.SearchDeeds(ctx, opts.Get(ExtraDeedsURL, DefaultDeedsURL), target, opts.Limit)
	if err != nil {
		return nil, errors.Wrap(err, "deed search failed")
	}
	return report.Deeds("Guilford deeds for "+strings.ToUpper(target), deeds), nil
}

// LookupDeed opens a deed by reference and reads whatever index data the
// document page shows. The page URL stands in for the image URL when the
// page itself is the viewer.
func (c *Client) LookupDeed(ctx context.Context, t Templates, ref records.DeedRef) (*records.Deed, error) {
	p, err := c.OpenDocument(ctx, t, ref)
	if err != nil {
		return nil, err
	}
	html, current, err := c.html(p)
	if err != nil {
		return nil, err
	}

	deeds, err := ParseDeedResults(html, current)
	if err != nil {
		return nil, err
	}
	for _, d := range deeds {
		if d.Ref.String() == ref.String() {
			return &d, nil
		}
	}

	deed := &records.Deed{Ref: ref, County: County, ImageURL: current}
	if cands, err := FindCandidates(html, current); err == nil {
		if len(cands.Links) > 0 {
			deed.ImageURL = cands.Links[0]
		} else if len(cands.Frames) > 0 {
			deed.ImageURL = cands.Frames[0]
		}
	}
	return deed, nil
}
