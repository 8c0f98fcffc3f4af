// Package pipeline runs one pass of the outreach workflow:
// list, merge, resolve, extract, dispatch, archive.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ServanKorkmaz/mail-automation/internal/dispatcher"
	"github.com/ServanKorkmaz/mail-automation/internal/extractor"
	"github.com/ServanKorkmaz/mail-automation/internal/resolver"
	"github.com/ServanKorkmaz/mail-automation/internal/school"
)

// Store is the dataset the stages read from and write to.
type Store interface {
	Path() string
	Records() []school.Record
	Merge(names []string) int
	Persist(ctx context.Context) error
}

// Lister produces the current directory listing.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

// Resolver fills missing websites.
type Resolver interface {
	Resolve(ctx context.Context, records []school.Record) (resolver.Summary, error)
}

// Extractor fills missing emails.
type Extractor interface {
	Extract(ctx context.Context, records []school.Record) (extractor.Summary, error)
}

// Dispatcher sends outreach mail.
type Dispatcher interface {
	Run(ctx context.Context, records []school.Record, runID string) (dispatcher.Summary, error)
}

// Archiver copies the dataset somewhere durable.
type Archiver interface {
	Archive(ctx context.Context, csvPath, runID string) (string, error)
}

// Stages are the optional steps of a run. A nil stage is skipped.
type Stages struct {
	Lister     Lister
	Resolver   Resolver
	Extractor  Extractor
	Dispatcher Dispatcher
	Archiver   Archiver
}

// Report summarizes one run.
type Report struct {
	RunID       string
	Listed      int
	Added       int
	Resolve     resolver.Summary
	Extract     extractor.Summary
	Dispatch    dispatcher.Summary
	SnapshotURI string
	Duration    time.Duration
}

// Pipeline wires the stages around a Store.
type Pipeline struct {
	store  Store
	stages Stages
	logger *zap.Logger
}

// New builds a Pipeline.
func New(st Store, stages Stages, logger *zap.Logger) (*Pipeline, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{store: st, stages: stages, logger: logger.Named("pipeline")}, nil
}

// Run executes every configured stage in order. Each stage reads a fresh
// snapshot of the store so it sees what the previous stage persisted.
// Persistence failures and cancellation abort the run.
func (p *Pipeline) Run(ctx context.Context, runID string) (Report, error) {
	start := time.Now()
	report := Report{RunID: runID}
	logger := p.logger.With(zap.String("run_id", runID))
	logger.Info("run started", zap.String("csv", p.store.Path()), zap.Int("known", len(p.store.Records())))

	if p.stages.Lister != nil {
		names, listErr := p.stages.Lister.List(ctx)
		report.Listed = len(names)
		if len(names) > 0 {
			report.Added = p.store.Merge(names)
			// Persist even when listing was interrupted so partial progress
			// survives.
			if err := p.store.Persist(context.WithoutCancel(ctx)); err != nil {
				return report, fmt.Errorf("persist listing: %w", err)
			}
		}
		logger.Info("listing merged", zap.Int("listed", report.Listed), zap.Int("added", report.Added))
		if listErr != nil {
			return report, fmt.Errorf("list schools: %w", listErr)
		}
	}

	if p.stages.Resolver != nil {
		summary, err := p.stages.Resolver.Resolve(ctx, p.store.Records())
		report.Resolve = summary
		logger.Info("websites resolved",
			zap.Int("resolved", summary.Resolved),
			zap.Int("unknown", summary.Unknown),
			zap.Int("failed", summary.Failed),
		)
		if err != nil {
			return report, fmt.Errorf("resolve websites: %w", err)
		}
	}

	if p.stages.Extractor != nil {
		summary, err := p.stages.Extractor.Extract(ctx, p.store.Records())
		report.Extract = summary
		logger.Info("emails extracted",
			zap.Int("found", summary.Found),
			zap.Int("not_found", summary.NotFound),
			zap.Int("failed", summary.Failed),
		)
		if err != nil {
			return report, fmt.Errorf("extract emails: %w", err)
		}
	}

	if p.stages.Dispatcher != nil {
		summary, err := p.stages.Dispatcher.Run(ctx, p.store.Records(), runID)
		report.Dispatch = summary
		if err != nil {
			return report, fmt.Errorf("dispatch: %w", err)
		}
	}

	if p.stages.Archiver != nil {
		uri, err := p.stages.Archiver.Archive(ctx, p.store.Path(), runID)
		if err != nil {
			logger.Warn("snapshot failed", zap.Error(err))
		}
		report.SnapshotURI = uri
	}

	report.Duration = time.Since(start)
	logger.Info("run complete", zap.Duration("duration", report.Duration))
	return report, nil
}
