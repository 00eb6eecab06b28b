package main

import (
	"deedscout/internal/records"
	"deedscout/internal/report"
	"deedscout/internal/store"

	"github.com/spf13/cobra"
)

func newParcelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parcel",
		Short: "Work with saved parcels",
	}
	cmd.AddCommand(newParcelShowCmd())
	return cmd
}

func newParcelShowCmd() *cobra.Command {
	var out outputFlags

	cmd := &cobra.Command{
		Use:   "show PARCEL_ID",
		Short: "Show a parcel saved with scrape --save",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := out.resolve(cmd); err != nil {
				return err
			}
			id := records.NormalizeParcelID(args[0])
			if id == "" {
				id = args[0]
			}

			db, err := store.Open(cmd.Context(), cfg.Store.Path)
			if err != nil {
				return err
			}
			defer db.Close()

			p, err := db.Parcel(cmd.Context(), id)
			if err != nil {
				return err
			}
			return out.write(cmd, report.Parcels("Parcel "+p.ParcelID, []records.Parcel{p}))
		},
	}

	out.register(cmd)
	return cmd
}
