package main

import (
	"deedscout/internal/browser"
	"deedscout/internal/server"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		addr       string
		concurrent int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve /api/scrape, /api/test and /api/sites over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("addr") {
				addr = cfg.Server.Addr
			}

			probe := server.ChromeProbe{Config: browser.Config{
				ProxyURL:  cfg.Browser.Proxy,
				UserAgent: cfg.Browser.UserAgent,
			}}
			srv := server.New(server.RegistryRunner{}, probe, server.Options{
				Scrape:        scrapeOptions(0),
				CacheSize:     cfg.Server.CacheSize,
				CacheTTL:      cfg.CacheTTL(),
				MaxConcurrent: concurrent,
			})
			return srv.ListenAndServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address (default from server.addr)")
	cmd.Flags().IntVar(&concurrent, "concurrency", 2, "Max browsers running at once")
	return cmd
}
