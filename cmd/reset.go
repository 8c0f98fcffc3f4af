package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ServanKorkmaz/mail-automation/internal/store"
)

func newResetCmd() *cobra.Command {
	var opts store.ResetOptions
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clears sentinels so the next run retries those schools",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !opts.WebsitesUnknown && !opts.EmailsNotFound {
				return errors.New("choose --websites-unknown, --emails-not-found or both")
			}
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			st, err := app.OpenStore()
			if err != nil {
				return err
			}
			changed := st.Reset(opts)
			if changed > 0 {
				if err := st.Persist(cmd.Context()); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset %d record(s) in %s\n", changed, st.Path())
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.WebsitesUnknown, "websites-unknown", false, "clear website=unknown")
	cmd.Flags().BoolVar(&opts.EmailsNotFound, "emails-not-found", false, "clear email=NOT FOUND")
	return cmd
}
