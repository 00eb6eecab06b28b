package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deedscout/internal/config"
	"deedscout/internal/log"
	"deedscout/internal/scraper"
	_ "deedscout/internal/sites/guilford"
	_ "deedscout/internal/sites/websearch"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	configPath string
	verbose    bool
	proxyURL   string
	showUI     bool
	timeout    time.Duration

	cfg config.Config
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "deedscout",
		Short:   "County deed and parcel scraping with CRM upload",
		Version: version,
		Long: `deedscout drives a headless browser against county parcel and register of
deeds sites, downloads deed images, collects attorney contacts from web
search and uploads them to Attio.`,
		Example: `  # Look up a Guilford County parcel by PIN or address
  deedscout scrape --site guilford.parcel 7865123456

  # Search the register of deeds by party name and save the rows
  deedscout scrape --site guilford.deeds "SMITH JOHN" --save -o deeds.csv

  # Download a deed image
  deedscout deed download "Book 8012 Page 1443" -o deed.pdf

  # Find attorneys and upload them
  deedscout scrape --site attorneys.websearch "real estate attorney Greensboro, NC" -o found.json
  deedscout attorneys upload found.json

  # Render any page
  deedscout scrape -l css -s "table.results" -f markdown https://example.com/search`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log.SetVerbose(verbose)

			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("proxy") {
				cfg.Browser.Proxy = proxyURL
			}
			if cmd.Flags().Changed("timeout") {
				if timeout <= 0 {
					return errors.Errorf("--timeout must be positive, got %s", timeout)
				}
				// whole seconds, rounded up so 500ms does not become 0
				cfg.Browser.TimeoutSeconds = int(math.Ceil(timeout.Seconds()))
			}
			return cfg.Validate()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", config.DefaultPath, "Config file (json5); <name>.local.json5 overrides it")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
	flags.StringVarP(&proxyURL, "proxy", "p", "", "Proxy URL (e.g. http://127.0.0.1:7890), defaults to "+config.EnvProxy)
	flags.BoolVar(&showUI, "showui", false, "Show browser UI (disable headless mode)")
	flags.DurationVarP(&timeout, "timeout", "t", 30*time.Second, "Navigation timeout, rounded up to whole seconds")

	rootCmd.AddCommand(
		newScrapeCmd(),
		newDeedCmd(),
		newParcelCmd(),
		newAttorneysCmd(),
		newInspectCmd(),
		newServeCmd(),
		newSitesCmd(),
	)
	return rootCmd
}

// scrapeOptions builds the per-run scraper options from config and flags.
func scrapeOptions(limit int) scraper.Options {
	return scraper.Options{
		Timeout:   cfg.Timeout(),
		ShowUI:    showUI,
		ProxyURL:  cfg.Browser.Proxy,
		UserAgent: cfg.Browser.UserAgent,
		Limit:     limit,
		Extra:     cfg.Extra(),
	}
}

func newSitesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "List the registered site scrapers",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range scraper.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}
