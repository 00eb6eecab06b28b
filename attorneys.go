package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"deedscout/internal/attio"
	"deedscout/internal/config"
	"deedscout/internal/log"
	"deedscout/internal/records"
	"deedscout/internal/report"
	"deedscout/internal/sites/websearch"
	"deedscout/internal/store"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newAttorneysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attorneys",
		Short: "Manage attorney contacts: enrich, list and upload to Attio",
	}
	cmd.AddCommand(newUploadCmd(), newEnrichCmd(), newListCmd(), newUploadsCmd())
	return cmd
}

// loadContacts reads seed files, or the local database when no file is
// given, and merges duplicates.
func loadContacts(cmd *cobra.Command, files []string, source string) ([]records.Attorney, error) {
	var all []records.Attorney
	if len(files) == 0 {
		db, err := store.Open(cmd.Context(), cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		if all, err = db.Attorneys(cmd.Context(), source); err != nil {
			return nil, err
		}
	}
	for _, f := range files {
		list, err := records.LoadAttorneys(f)
		if err != nil {
			return nil, err
		}
		all = append(all, list...)
	}
	for i := range all {
		all[i].Normalize()
	}
	return records.Dedupe(all, cfg.WebSearch.Similarity), nil
}

// apiKey returns the configured Attio key, asking on the terminal when none
// is set.
func apiKey(cmd *cobra.Command) (string, error) {
	if cfg.Attio.APIKey != "" {
		return cfg.Attio.APIKey, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.Errorf("no Attio API key: set %s or attio.api_key", config.EnvAttioKey)
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Attio API key: ")
	key, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", errors.Wrap(err, "failed to read API key")
	}
	if k := strings.TrimSpace(string(key)); k != "" {
		return k, nil
	}
	return "", errors.New("no Attio API key given")
}

func newUploadCmd() *cobra.Command {
	var (
		source    string
		dryRun    bool
		noLedger  bool
		companies bool
		delay     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "upload [FILE...]",
		Short: "Upload contacts from CSV/JSON files, or from the local database, to Attio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := log.NewLogger("upload")

			list, err := loadContacts(cmd, args, source)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				return errors.New("no contacts to upload")
			}

			u := &attio.Uploader{
				Delay:     cfg.UploadDelay(),
				Companies: cfg.Attio.Companies || companies,
				DryRun:    dryRun,
			}
			if cmd.Flags().Changed("delay") {
				u.Delay = delay
			}

			if !dryRun {
				key, err := apiKey(cmd)
				if err != nil {
					return err
				}
				client := attio.NewClient(attio.Options{BaseURL: cfg.Attio.BaseURL, APIKey: key, Timeout: cfg.Timeout()})
				ws, err := client.Self(ctx)
				if err != nil {
					return err
				}
				logger.Info().Str("workspace", ws.WorkspaceName).Int("contacts", len(list)).Msg("uploading")
				u.Client = client
			}

			if !noLedger {
				db, err := store.Open(ctx, cfg.Store.Path)
				if err != nil {
					return err
				}
				defer db.Close()
				logger.Info().Str("run_id", db.RunID()).Msg("recording uploads")
				u.Ledger = db
			}

			sum, err := u.Upload(ctx, list)
			logger.Info().
				Int("created", sum.Created).
				Int("skipped", sum.Skipped).
				Int("failed", sum.Failed).
				Int("invalid", sum.Invalid).
				Msg("upload finished")
			return err
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Only upload stored contacts from this source")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate and print without calling Attio")
	cmd.Flags().BoolVar(&noLedger, "no-ledger", false, "Do not consult or update the local upload ledger")
	cmd.Flags().BoolVar(&companies, "companies", false, "Also create a company record for every firm")
	cmd.Flags().DurationVar(&delay, "delay", 0, "Pause between requests (default from attio.delay_ms)")
	return cmd
}

func newEnrichCmd() *cobra.Command {
	var (
		out    outputFlags
		source string
		save   bool
	)

	cmd := &cobra.Command{
		Use:   "enrich [FILE...]",
		Short: "Visit each contact's website to fill in and verify email and phone",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := out.resolve(cmd); err != nil {
				return err
			}
			ctx := cmd.Context()
			logger := log.NewLogger("enrich")

			list, err := loadContacts(cmd, args, source)
			if err != nil {
				return err
			}

			e := websearch.NewEnricher(cfg.Timeout())
			for i := range list {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := e.Enrich(ctx, &list[i]); err != nil {
					logger.Warn().Err(err).Str("name", list[i].Name).Msg("enrich failed")
				}
			}

			if save {
				db, err := store.Open(ctx, cfg.Store.Path)
				if err != nil {
					return err
				}
				defer db.Close()
				if err := db.SaveAttorneys(ctx, list); err != nil {
					return err
				}
			}
			return out.write(cmd, report.Attorneys("Enriched contacts", list))
		},
	}

	out.register(cmd)
	cmd.Flags().StringVar(&source, "source", "", "Only enrich stored contacts from this source")
	cmd.Flags().BoolVar(&save, "save", false, "Write the enriched contacts back to the local database")
	return cmd
}

func newListCmd() *cobra.Command {
	var (
		out    outputFlags
		source string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contacts in the local database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := out.resolve(cmd); err != nil {
				return err
			}
			list, err := loadContacts(cmd, nil, source)
			if err != nil {
				return err
			}
			return out.write(cmd, report.Attorneys(fmt.Sprintf("%d stored contacts", len(list)), list))
		},
	}

	out.register(cmd)
	cmd.Flags().StringVar(&source, "source", "", "Only list contacts from this source")
	return cmd
}

func newUploadsCmd() *cobra.Command {
	var (
		out   outputFlags
		runID string
	)

	cmd := &cobra.Command{
		Use:   "uploads",
		Short: "Show the upload ledger, optionally for a single run",
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

			rows, err := db.Uploads(cmd.Context(), runID)
			if err != nil {
				return err
			}
			title := fmt.Sprintf("%d uploads", len(rows))
			if runID != "" {
				title += " in run " + runID
			}
			return out.write(cmd, report.Uploads(title, rows))
		},
	}

	out.register(cmd)
	cmd.Flags().StringVar(&runID, "run", "", "Only show uploads from this run (the run_id logged by upload)")
	return cmd
}
