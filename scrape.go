package main

import (
	"context"

	"deedscout/internal/page"
	"deedscout/internal/records"
	"deedscout/internal/report"
	"deedscout/internal/scraper"
	"deedscout/internal/sites/generic"
	"deedscout/internal/store"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newScrapeCmd() *cobra.Command {
	var (
		out        outputFlags
		site       string
		level      string
		selector   string
		waitFor    string
		waitTarget string
		limit      int
		save       bool
	)

	cmd := &cobra.Command{
		Use:   "scrape [URL|TARGET]",
		Short: "Run a site scraper, or render a URL when no --site is given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := out.resolve(cmd); err != nil {
				return err
			}
			ctx := cmd.Context()
			opts := scrapeOptions(limit)

			var (
				content scraper.Content
				err     error
			)
			if site != "" {
				s, ok := scraper.Get(site)
				if !ok {
					return errors.Errorf("unknown site: %s (see `deedscout sites`)", site)
				}
				content, err = s.Scrape(ctx, args[0], opts)
				if err != nil {
					return errors.Wrap(err, "failed to scrape")
				}
			} else {
				if !page.ValidLevel(level) {
					return errors.Errorf("invalid content level: %s", level)
				}
				if level != page.LevelCSS && level != page.LevelXPath && selector != "" {
					return errors.Errorf("--selector is only valid with the css or xpath level")
				}
				opts.Extra[generic.ExtraLevel] = level
				opts.Extra[generic.ExtraSelector] = selector
				opts.Extra[generic.ExtraWait] = waitFor
				opts.Extra[generic.ExtraWaitTarget] = waitTarget
				content, err = generic.New().Scrape(ctx, args[0], opts)
				if err != nil {
					return err
				}
			}

			if save {
				if err := saveContent(ctx, content); err != nil {
					return err
				}
			}
			return out.write(cmd, content)
		},
	}

	out.register(cmd)
	cmd.Flags().StringVar(&site, "site", "", "Site scraper to run (see `deedscout sites`)")
	cmd.Flags().StringVarP(&level, "level", "l", page.LevelBody, "Content extraction level for URLs (full, body, text, css, xpath)")
	cmd.Flags().StringVarP(&selector, "selector", "s", "", "Selector for the css or xpath level")
	cmd.Flags().StringVarP(&waitFor, "wait-for", "w", string(page.WaitIdle), "Wait strategy (load, idle, element, time)")
	cmd.Flags().StringVarP(&waitTarget, "wait-target", "T", "", "Wait target (selector for 'element', milliseconds for 'time')")
	cmd.Flags().IntVar(&limit, "limit", 0, "Max records or result pages, 0 for no limit")
	cmd.Flags().BoolVar(&save, "save", false, "Also store scraped records in the local database")
	return cmd
}

// saveContent stores the records behind a site scraper's report.
func saveContent(ctx context.Context, content scraper.Content) error {
	t, ok := content.(*report.Table)
	if !ok {
		return errors.New("--save only applies to site scrapers")
	}

	db, err := store.Open(ctx, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	switch data := t.Data.(type) {
	case []records.Attorney:
		return db.SaveAttorneys(ctx, data)
	case []records.Deed:
		return db.SaveDeeds(ctx, data)
	case []records.Parcel:
		for _, p := range data {
			if err := db.SaveParcel(ctx, p); err != nil {
				return err
			}
		}
		return nil
	}
	return errors.Errorf("cannot save %T", t.Data)
}
