// Package lister walks the paginated school directory and returns the
// deduplicated school names in order of first appearance.
package lister

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ServanKorkmaz/mail-automation/internal/metrics"
	"github.com/ServanKorkmaz/mail-automation/internal/retry"
	"github.com/ServanKorkmaz/mail-automation/internal/school"
)

// DefaultMaxPages bounds pagination when no limit is configured.
const DefaultMaxPages = 50

// PageCounter is implemented by sources that know how many pages the
// listing has, as of the last page they returned.
type PageCounter interface {
	LastPage() int
}

// Lister paginates a school.PageSource.
type Lister struct {
	source   school.PageSource
	policy   retry.Policy
	maxPages int
	logger   *zap.Logger
}

// New builds a Lister. A maxPages of zero or less uses DefaultMaxPages.
func New(source school.PageSource, policy retry.Policy, maxPages int, logger *zap.Logger) *Lister {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lister{
		source:   source,
		policy:   policy,
		maxPages: maxPages,
		logger:   logger.Named("lister"),
	}
}

// List fetches pages starting at 1 until a page adds no new names or the
// page bound is hit. When the source reports its pagination the bound
// tightens to the last linked page. Pages that keep failing are skipped.
// The only error returned is cancellation, together with the names
// gathered so far.
func (l *Lister) List(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var names []string
	limit := l.maxPages

	for page := 1; page <= limit; page++ {
		var batch []string
		attempts, err := retry.Do(ctx, l.policy, func(ctx context.Context, attempt int) error {
			got, err := l.source.FetchPage(ctx, page)
			if err != nil {
				l.logger.Debug("listing page attempt failed",
					zap.Int("page", page),
					zap.Int("attempt", attempt),
					zap.Error(err),
				)
				return err
			}
			batch = got
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return names, fmt.Errorf("listing canceled at page %d: %w", page, ctx.Err())
			}
			metrics.ObserveListingPage(metrics.OutcomeSkipped)
			l.logger.Warn("skipping listing page",
				zap.String("phase", "list"),
				zap.Int("page", page),
				zap.Int("attempts", attempts),
				zap.Error(err),
			)
			continue
		}
		limit = l.pageLimit(page, limit)

		added := 0
		for _, raw := range batch {
			key := school.NormalizeName(raw)
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			names = append(names, school.CleanName(raw))
			added++
		}

		l.logger.Info("listing page done",
			zap.Int("page", page),
			zap.Int("found", len(batch)),
			zap.Int("new", added),
			zap.Int("total", len(names)),
		)
		if added == 0 {
			metrics.ObserveListingPage(metrics.OutcomeEmpty)
			break
		}
		metrics.ObserveListingPage(metrics.OutcomeOK)
	}
	return names, nil
}

func (l *Lister) pageLimit(page, current int) int {
	counter, ok := l.source.(PageCounter)
	if !ok {
		return current
	}
	last := counter.LastPage()
	if last <= 0 {
		return current
	}
	limit := min(max(last, page), l.maxPages)
	if limit != current {
		l.logger.Debug("listing page bound updated", zap.Int("page", page), zap.Int("last_page", limit))
	}
	return limit
}
