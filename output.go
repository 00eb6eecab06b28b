package main

import (
	"fmt"
	"os"

	"deedscout/internal/formatter"
	"deedscout/internal/log"
	"deedscout/internal/scraper"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// outputFlags are shared by every command that renders a scraper.Content.
type outputFlags struct {
	format string
	file   string
}

func (o *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.format, "format", "f", "text", "Output format (text, html, markdown, json, csv)")
	cmd.Flags().StringVarP(&o.file, "output", "o", "", "Output file path (format inferred from extension if -f not specified)")
}

// resolve infers the format from the output file when -f was left alone.
func (o *outputFlags) resolve(cmd *cobra.Command) error {
	if o.file != "" && !cmd.Flags().Changed("format") {
		if inferred := formatter.InferFormat(o.file); inferred != "" {
			o.format = inferred
		}
	}
	if !formatter.Valid(o.format) {
		return errors.Errorf("invalid output format: %s", o.format)
	}
	return nil
}

func (o *outputFlags) write(cmd *cobra.Command, content scraper.Content) error {
	out, err := formatter.Format(content, o.format)
	if err != nil {
		return errors.Wrap(err, "failed to format output")
	}

	if o.file == "" {
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	}
	if err := os.WriteFile(o.file, []byte(out), 0o644); err != nil {
		return errors.Wrap(err, "failed to write output")
	}
	logger := log.NewLogger("cli")
	logger.Info().Str("file", o.file).Str("format", o.format).Msg("output written")
	return nil
}
