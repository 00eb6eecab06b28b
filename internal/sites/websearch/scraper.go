package websearch

import (
	"context"
	"strings"

	"deedscout/internal/browser"
	"deedscout/internal/log"
	"deedscout/internal/records"
	"deedscout/internal/report"
	"deedscout/internal/scraper"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Keys read from scraper.Options.Extra.
const (
	ExtraSearchURL   = "websearch.url"
	ExtraConcurrency = "websearch.concurrency"
	ExtraSimilarity  = "websearch.similarity"
)

func init() {
	scraper.Register(&AttorneyScraper{})
}

// AttorneyScraper turns web search results into attorney contacts. The
// target holds one or more queries separated by ";".
type AttorneyScraper struct{}

func (s *AttorneyScraper) Name() string { return "attorneys.websearch" }

func (s *AttorneyScraper) Scrape(ctx context.Context, target string, opts scraper.Options) (scraper.Content, error) {
	list, err := s.Search(ctx, target, opts)
	if err != nil {
		return nil, err
	}
	return report.Attorneys("Attorney search: "+target, list), nil
}

// Search is Scrape without the rendering, for callers that store or upload
// the contacts.
func (s *AttorneyScraper) Search(ctx context.Context, target string, opts scraper.Options) ([]records.Attorney, error) {
	queries := SplitQueries(target)
	if len(queries) == 0 {
		return nil, errors.New(`a query like "real estate attorney Greensboro, NC" is required for --site attorneys.websearch`)
	}

	b, err := browser.New(browser.Config{
		ProxyURL:  opts.ProxyURL,
		Headless:  !opts.ShowUI,
		UserAgent: opts.UserAgent,
	})
	if err != nil {
		return nil, err
	}
	defer b.Close()

	return Collect(ctx, NewClient(b, opts.Get(ExtraSearchURL, DefaultSearchURL), opts.Timeout), queries, opts)
}

// Searcher is the part of Client that Collect needs.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// Collect runs every query with bounded parallelism and merges the contacts.
// A failed query is logged and skipped; the run only fails when all do.
func Collect(ctx context.Context, searcher Searcher, queries []string, opts scraper.Options) ([]records.Attorney, error) {
	logger := log.NewLogger("websearch")

	perQuery := make([][]records.Attorney, len(queries))
	failed := make([]error, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, opts.GetInt(ExtraConcurrency, 2)))
	for i, raw := range queries {
		g.Go(func() error {
			results, err := searcher.Search(gctx, raw)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Warn().Err(err).Str("query", raw).Msg("search failed")
				failed[i] = err
				return nil
			}

			q := ParseQuery(raw)
			for _, r := range results {
				if a, ok := ToAttorney(r, q); ok {
					perQuery[i] = append(perQuery[i], a)
				}
			}
			logger.Info().Str("query", raw).Int("results", len(results)).Int("contacts", len(perQuery[i])).Msg("search done")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []records.Attorney
	failures := 0
	for i := range queries {
		all = append(all, perQuery[i]...)
		if failed[i] != nil {
			failures++
		}
	}
	if failures == len(queries) {
		return nil, errors.Wrap(failed[0], "every search failed")
	}

	threshold := records.DefaultSimilarity
	if v := opts.Get(ExtraSimilarity, ""); v != "" {
		threshold = parseFloat(v, threshold)
	}
	all = records.Dedupe(all, threshold)
	if opts.Limit > 0 && len(all) > opts.Limit {
		all = all[:opts.Limit]
	}
	return all, nil
}

// SplitQueries splits a target on ";" and drops blanks.
func SplitQueries(target string) []string {
	var out []string
	for _, q := range strings.Split(target, ";") {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}
