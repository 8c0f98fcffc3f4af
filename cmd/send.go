package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ServanKorkmaz/mail-automation/internal/id/uuid"
)

func newSendCmd() *cobra.Command {
	var (
		dryRun bool
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Emails eligible schools from the existing CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			stopMetrics := startMetricsServer(app.Config.Metrics.Addr, app.Logger)
			defer stopMetrics()

			st, err := app.OpenStore()
			if err != nil {
				return err
			}
			d, closeDispatcher, err := buildDispatcher(cmd.Context(), app, st, dispatchOptions{dryRun: dryRun, limit: limit})
			if err != nil {
				return err
			}
			defer closeDispatcher()

			runID, err := uuid.New().NewID()
			if err != nil {
				return err
			}
			summary, err := d.Run(cmd.Context(), st.Records(), runID)
			if err != nil {
				return err
			}
			app.Logger.Info("send complete",
				zap.Int("eligible", summary.Eligible),
				zap.Int("sent", summary.Sent),
				zap.Int("failed", summary.Failed),
				zap.Int("dry_run", summary.DryRun),
			)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "render emails without sending them")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of emails to send (0 means no limit)")
	return cmd
}
