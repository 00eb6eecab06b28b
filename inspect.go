package main

import (
	"time"

	"deedscout/internal/browser"
	"deedscout/internal/inspect"
	"deedscout/internal/log"
	"deedscout/internal/page"
	"deedscout/internal/sites/generic"

	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	var (
		out        outputFlags
		waitFor    string
		waitTarget string
		hold       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "inspect URL",
		Short: "List the forms, inputs, buttons, links, tables and document links of a page",
		Long: `inspect renders a page and prints an inventory of its interactive
elements, which is what you need to write selectors for a new site. With
--showui and --hold the browser stays open so the page can be explored by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := out.resolve(cmd); err != nil {
				return err
			}
			wait, err := page.ParseWait(waitFor, waitTarget)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			b, err := browser.New(browser.Config{
				ProxyURL:  cfg.Browser.Proxy,
				Headless:  !showUI,
				UserAgent: cfg.Browser.UserAgent,
			})
			if err != nil {
				return err
			}
			defer b.Close()

			r, p, err := inspect.Fetch(ctx, b, page.Request{
				URL:        generic.NormalizeURL(args[0]),
				WaitFor:    wait,
				WaitTarget: waitTarget,
				Timeout:    cfg.Timeout(),
			})
			if err != nil {
				return err
			}
			defer p.Close()

			if err := out.write(cmd, r); err != nil {
				return err
			}

			if hold > 0 {
				logger := log.NewLogger("inspect")
				logger.Info().Dur("hold", hold).Msg("keeping the browser open, interrupt to quit")
				if err := page.Sleep(ctx, hold); err != nil && ctx.Err() == nil {
					return err
				}
			}
			return nil
		},
	}

	out.register(cmd)
	cmd.Flags().StringVarP(&waitFor, "wait-for", "w", string(page.WaitIdle), "Wait strategy (load, idle, element, time)")
	cmd.Flags().StringVarP(&waitTarget, "wait-target", "T", "", "Wait target (selector for 'element', milliseconds for 'time')")
	cmd.Flags().DurationVar(&hold, "hold", 0, "Keep the browser open this long after printing (use with --showui)")
	return cmd
}
