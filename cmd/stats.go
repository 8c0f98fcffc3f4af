package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ServanKorkmaz/mail-automation/internal/report"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Prints counts for the CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			st, err := app.OpenStore()
			if err != nil {
				return err
			}
			report.Render(cmd.OutOrStdout(), st.Path(), report.Compute(st.Records()))
			return nil
		},
	}
}

func newReorganizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reorganize",
		Short: "Sorts the CSV by has-email, has-website and name",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			st, err := app.OpenStore()
			if err != nil {
				return err
			}
			stats, err := report.Reorganize(cmd.Context(), st)
			if err != nil {
				return err
			}
			report.Render(cmd.OutOrStdout(), st.Path(), stats)
			return nil
		},
	}
}
