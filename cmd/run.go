package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ServanKorkmaz/mail-automation/internal/extractor"
	"github.com/ServanKorkmaz/mail-automation/internal/id/uuid"
	"github.com/ServanKorkmaz/mail-automation/internal/lister"
	"github.com/ServanKorkmaz/mail-automation/internal/pipeline"
	"github.com/ServanKorkmaz/mail-automation/internal/policy/ratelimit"
	"github.com/ServanKorkmaz/mail-automation/internal/resolver"
	"github.com/ServanKorkmaz/mail-automation/internal/retry"
)

type runFlags struct {
	skipList bool
	noSend   bool
	dryRun   bool
	limit    int
}

func newRunCmd() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs the full pipeline once",
		Long: `Lists schools from the directory, merges them into the CSV, resolves
missing websites, extracts missing emails and, when sending is enabled,
emails every eligible school. Progress is saved after every change.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, flags)
		},
	}
	cmd.Flags().BoolVar(&flags.skipList, "skip-list", false, "do not scrape the directory; work on the existing CSV")
	cmd.Flags().BoolVar(&flags.noSend, "no-send", false, "stop after email extraction")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "render emails without sending them")
	cmd.Flags().IntVar(&flags.limit, "limit", 0, "maximum number of emails to send (0 means no limit)")
	return cmd
}

func runPipeline(cmd *cobra.Command, flags runFlags) error {
	app, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	cfg := app.Config
	logger := app.Logger

	runID, err := uuid.New().NewID()
	if err != nil {
		return err
	}
	stopMetrics := startMetricsServer(cfg.Metrics.Addr, logger)
	defer stopMetrics()

	st, err := app.OpenStore()
	if err != nil {
		return err
	}

	policy := retry.NewExponentialPolicy(cfg.Retry)
	limiter := ratelimit.New(cfg.RateLimit)
	stages := pipeline.Stages{}

	if !flags.skipList {
		fetcher, closeFetcher := buildListingFetcher(cfg, limiter, logger)
		defer closeFetcher()
		source := lister.NewHTMLSource(cfg.Listing.BaseURL, fetcher)
		stages.Lister = lister.New(source, policy, cfg.Listing.MaxPages, logger)
	}

	searcher, err := buildSearcher(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init search: %w", err)
	}
	stages.Resolver = resolver.New(searcher, st, policy, cfg.Resolver, logger)
	stages.Extractor = extractor.New(buildHTTPFetcher(cfg, limiter), st, policy, cfg.Extractor, logger)

	if !flags.noSend {
		d, closeDispatcher, err := buildDispatcher(ctx, app, st, dispatchOptions{dryRun: flags.dryRun, limit: flags.limit})
		if err != nil {
			return err
		}
		defer closeDispatcher()
		stages.Dispatcher = d
	}

	archiver, closeArchiver, err := buildArchiver(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init snapshot: %w", err)
	}
	defer closeArchiver()
	if archiver != nil {
		stages.Archiver = archiver
	}

	p, err := pipeline.New(st, stages, logger)
	if err != nil {
		return err
	}
	report, err := p.Run(ctx, runID)
	if err != nil {
		return err
	}
	logger.Info("summary",
		zap.String("run_id", report.RunID),
		zap.Int("listed", report.Listed),
		zap.Int("added", report.Added),
		zap.Int("websites_resolved", report.Resolve.Resolved),
		zap.Int("emails_found", report.Extract.Found),
		zap.Int("emails_sent", report.Dispatch.Sent),
		zap.String("snapshot", report.SnapshotURI),
	)
	return nil
}
