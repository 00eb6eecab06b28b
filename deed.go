package main

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"deedscout/internal/browser"
	"deedscout/internal/log"
	"deedscout/internal/records"
	"deedscout/internal/report"
	"deedscout/internal/sites/guilford"
	"deedscout/internal/store"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newDeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deed",
		Short: "Work with individual deeds",
	}
	cmd.AddCommand(newDeedDownloadCmd(), newDeedListCmd())
	return cmd
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func newDeedDownloadCmd() *cobra.Command {
	var (
		file       string
		strategies []string
	)

	cmd := &cobra.Command{
		Use:   "download REF",
		Short: `Download a deed image as PDF ("Book 8012 Page 1443", "8012/1443", or an instrument number when guilford.instrument_url is set)`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := log.NewLogger("deed")

			ref, err := records.ParseDeedRef(args[0])
			if err != nil {
				return err
			}
			// fail before launching a browser when no template can open the ref
			if _, err := guilford.DocumentURL(cfg.DocumentTemplates(), ref); err != nil {
				return err
			}
			if file == "" {
				file = strings.Trim(unsafeFileChars.ReplaceAllString(ref.String(), "_"), "_") + ".pdf"
			}

			d := guilford.NewDownloader(cfg.Timeout())
			if len(strategies) > 0 {
				d.Strategies = nil
				for _, s := range strategies {
					d.Strategies = append(d.Strategies, guilford.Strategy(s))
				}
			}

			b, err := browser.New(browser.Config{
				ProxyURL:  cfg.Browser.Proxy,
				Headless:  !showUI,
				UserAgent: cfg.Browser.UserAgent,
			})
			if err != nil {
				return err
			}
			defer b.Close()

			client := guilford.NewClient(b, cfg.Timeout())
			defer client.Close()

			p, err := client.OpenDocument(ctx, cfg.DocumentTemplates(), ref)
			if err != nil {
				return errors.Wrapf(err, "failed to open %s", ref)
			}

			pdf, strategy, err := d.Download(ctx, p)
			if err != nil {
				return err
			}
			if err := os.WriteFile(file, pdf, 0o644); err != nil {
				return errors.Wrap(err, "failed to write pdf")
			}
			logger.Info().Str("ref", ref.String()).Str("strategy", string(strategy)).Str("file", file).Int("bytes", len(pdf)).Msg("deed saved")
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "output", "o", "", "PDF file to write (default derived from the reference)")
	cmd.Flags().StringSliceVar(&strategies, "strategy", nil, "Strategies to try in order (direct-link, embedded-viewer, in-page-fetch, print-to-pdf)")
	return cmd
}

func newDeedListCmd() *cobra.Command {
	var (
		out    outputFlags
		county string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List deeds saved with scrape --save",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := out.resolve(cmd); err != nil {
				return err
			}
			db, err := store.Open(cmd.Context(), cfg.Store.Path)
			if err != nil {
				return err
			}
			defer db.Close()

			deeds, err := db.Deeds(cmd.Context(), county)
			if err != nil {
				return err
			}
			return out.write(cmd, report.Deeds(fmt.Sprintf("%d stored %s deeds", len(deeds), county), deeds))
		},
	}

	out.register(cmd)
	cmd.Flags().StringVar(&county, "county", guilford.County, "County the deeds were recorded in")
	return cmd
}
