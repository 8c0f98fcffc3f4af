package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/ServanKorkmaz/mail-automation/internal/clock/system"
	"github.com/ServanKorkmaz/mail-automation/internal/config"
	"github.com/ServanKorkmaz/mail-automation/internal/dispatcher"
	collyfetcher "github.com/ServanKorkmaz/mail-automation/internal/fetcher/colly"
	headlessfetcher "github.com/ServanKorkmaz/mail-automation/internal/fetcher/headless"
	"github.com/ServanKorkmaz/mail-automation/internal/hash/sha256"
	"github.com/ServanKorkmaz/mail-automation/internal/id/uuid"
	"github.com/ServanKorkmaz/mail-automation/internal/mailer"
	"github.com/ServanKorkmaz/mail-automation/internal/metrics"
	"github.com/ServanKorkmaz/mail-automation/internal/policy/ratelimit"
	memorypublisher "github.com/ServanKorkmaz/mail-automation/internal/publisher/memory"
	pubsubpublisher "github.com/ServanKorkmaz/mail-automation/internal/publisher/pubsub"
	"github.com/ServanKorkmaz/mail-automation/internal/retry"
	"github.com/ServanKorkmaz/mail-automation/internal/school"
	"github.com/ServanKorkmaz/mail-automation/internal/search/customsearch"
	"github.com/ServanKorkmaz/mail-automation/internal/search/gemini"
	"github.com/ServanKorkmaz/mail-automation/internal/snapshot"
	"github.com/ServanKorkmaz/mail-automation/internal/storage/gcs"
	"github.com/ServanKorkmaz/mail-automation/internal/storage/local"
)

func noop() {}

func requestHeaders(cfg config.Config) http.Header {
	h := http.Header{}
	if cfg.HTTP.AcceptLanguage != "" {
		h.Set("Accept-Language", cfg.HTTP.AcceptLanguage)
	}
	return h
}

func buildHTTPFetcher(cfg config.Config, limiter *ratelimit.Limiter) *collyfetcher.Fetcher {
	return collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.HTTP.UserAgent,
		RespectRobots: cfg.HTTP.RespectRobots,
		Timeout:       cfg.HTTP.Timeout,
		Headers:       requestHeaders(cfg),
	}, limiter)
}

// buildListingFetcher prefers Chrome for the directory and falls back to the
// plain fetcher when no browser can be started.
func buildListingFetcher(cfg config.Config, limiter *ratelimit.Limiter, logger *zap.Logger) (school.Fetcher, func()) {
	if !cfg.Listing.Headless {
		return buildHTTPFetcher(cfg, limiter), noop
	}
	fetcher, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
		MaxParallel:       cfg.Headless.MaxParallel,
		UserAgent:         cfg.HTTP.UserAgent,
		NavigationTimeout: cfg.Headless.NavigationTimeout,
		Settle:            cfg.Headless.Settle,
		Headers:           requestHeaders(cfg),
	}, limiter)
	if err != nil {
		logger.Warn("headless fetcher init failed, using plain HTTP for listing", zap.Error(err))
		return buildHTTPFetcher(cfg, limiter), noop
	}
	return fetcher, fetcher.Close
}

func buildSearcher(ctx context.Context, cfg config.Config, logger *zap.Logger) (school.Searcher, error) {
	switch cfg.Search.Backend {
	case config.BackendGemini:
		return gemini.New(ctx, cfg.Search.Gemini, logger)
	default:
		return customsearch.New(ctx, cfg.Search.CustomSearch(), logger)
	}
}

func buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (school.Publisher, func()) {
	if cfg.PubSub.ProjectID == "" {
		return memorypublisher.New(), noop
	}
	pub, err := pubsubpublisher.New(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
	if err != nil {
		logger.Warn("pubsub publisher init failed, keeping events in memory", zap.Error(err))
		return memorypublisher.New(), noop
	}
	return pub, func() {
		if err := pub.Close(); err != nil {
			logger.Warn("pubsub close failed", zap.Error(err))
		}
	}
}

type dispatchOptions struct {
	dryRun bool
	limit  int
}

func buildDispatcher(
	ctx context.Context,
	app *App,
	st dispatcher.Applier,
	opts dispatchOptions,
) (*dispatcher.Dispatcher, func(), error) {
	cfg := app.Config.Dispatch
	if opts.dryRun {
		cfg.DryRun = true
	}
	if opts.limit > 0 {
		cfg.Limit = opts.limit
	}

	deps := dispatcher.Deps{
		Store:  st,
		Clock:  system.New(),
		IDs:    uuid.New(),
		Policy: retry.NewExponentialPolicy(app.Config.Retry),
	}
	if cfg.Enabled && !cfg.DryRun {
		sender, err := mailer.New(app.Config.SMTP, app.Logger)
		if err != nil {
			return nil, noop, fmt.Errorf("init mailer: %w", err)
		}
		deps.Sender = sender
	}
	publisher, closePublisher := buildPublisher(ctx, app.Config, app.Logger)
	deps.Publisher = publisher

	d, err := dispatcher.New(cfg, deps, app.Logger)
	if err != nil {
		closePublisher()
		return nil, noop, err
	}
	return d, closePublisher, nil
}

func buildArchiver(ctx context.Context, cfg config.Config, logger *zap.Logger) (*snapshot.Archiver, func(), error) {
	if !cfg.Snapshot.Enabled {
		return nil, noop, nil
	}
	var (
		blobs   snapshot.BlobStore
		closeFn = noop
	)
	if cfg.Snapshot.GCSBucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, noop, fmt.Errorf("create storage client: %w", err)
		}
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.Snapshot.GCSBucket, Prefix: cfg.Snapshot.Prefix})
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		blobs = store
		closeFn = func() { _ = client.Close() }
	} else {
		store, err := local.New(local.Config{BaseDir: cfg.Snapshot.Dir})
		if err != nil {
			return nil, noop, err
		}
		blobs = store
	}
	archiver, err := snapshot.New(blobs, sha256.New(), system.New(), logger)
	if err != nil {
		closeFn()
		return nil, noop, err
	}
	return archiver, closeFn, nil
}

// startMetricsServer serves /metrics until the returned stop func is called.
func startMetricsServer(addr string, logger *zap.Logger) func() {
	if addr == "" {
		return noop
	}
	metrics.Init()
	srv := &http.Server{
		Addr:              addr,
		Handler:           metrics.NewRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown failed", zap.Error(err))
		}
	}
}
