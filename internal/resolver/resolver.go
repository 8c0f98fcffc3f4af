// Package resolver finds the official website of each school through a
// search collaborator.
package resolver

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ServanKorkmaz/mail-automation/internal/metrics"
	"github.com/ServanKorkmaz/mail-automation/internal/retry"
	"github.com/ServanKorkmaz/mail-automation/internal/school"
)

// Defaults applied by New.
const (
	DefaultQualifier   = "resmi web sitesi"
	DefaultConcurrency = 5
)

// Config tunes query construction and candidate selection.
type Config struct {
	Qualifier         string   `mapstructure:"qualifier"`
	PreferredSuffixes []string `mapstructure:"preferred_suffixes"`
	Blocklist         []string `mapstructure:"blocklist"`
	Concurrency       int      `mapstructure:"concurrency"`
}

// Applier persists a record mutation.
type Applier interface {
	Apply(ctx context.Context, rec school.Record) (school.Record, error)
}

// Summary counts resolution outcomes for one pass.
type Summary struct {
	Resolved int
	Unknown  int
	Failed   int
}

// Resolver fills the website field of records.
type Resolver struct {
	searcher  school.Searcher
	store     Applier
	policy    retry.Policy
	cfg       Config
	blocklist *domainPatternBlocklist
	logger    *zap.Logger
}

// New builds a Resolver. Empty config fields take the package defaults.
func New(searcher school.Searcher, store Applier, policy retry.Policy, cfg Config, logger *zap.Logger) *Resolver {
	if strings.TrimSpace(cfg.Qualifier) == "" {
		cfg.Qualifier = DefaultQualifier
	}
	if cfg.PreferredSuffixes == nil {
		cfg.PreferredSuffixes = DefaultPreferredSuffixes
	}
	if cfg.Blocklist == nil {
		cfg.Blocklist = DefaultBlocklist
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		searcher:  searcher,
		store:     store,
		policy:    policy,
		cfg:       cfg,
		blocklist: newDomainPatternBlocklist(cfg.Blocklist),
		logger:    logger.Named("resolver"),
	}
}

// Query builds the search query for a school name.
func Query(name, qualifier string) string {
	q := `"` + school.CleanName(name) + `"`
	if qualifier = strings.TrimSpace(qualifier); qualifier != "" {
		q += " " + qualifier
	}
	return q
}

// Resolve looks up every record that still needs a website. Lookups that
// exhaust their retries are logged and left empty. Only persistence
// failures and cancellation are returned.
func (r *Resolver) Resolve(ctx context.Context, records []school.Record) (Summary, error) {
	var (
		mu      sync.Mutex
		summary Summary
	)
	count := func(field *int) {
		mu.Lock()
		*field++
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	for _, rec := range records {
		if !rec.NeedsWebsite() {
			continue
		}
		if gctx.Err() != nil {
			break
		}
		rec := rec
		g.Go(func() error {
			defer metrics.TrackActive("resolve")()

			website, err := r.ResolveOne(gctx, rec.Name)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				count(&summary.Failed)
				metrics.ObserveResolution(metrics.OutcomeFailed)
				return nil
			}

			if _, err := r.store.Apply(gctx, school.Record{Name: rec.Name, Website: website}); err != nil {
				return fmt.Errorf("save website for %q: %w", rec.Name, err)
			}
			if website == school.WebsiteUnknown {
				count(&summary.Unknown)
				metrics.ObserveResolution(metrics.OutcomeUnknown)
			} else {
				count(&summary.Resolved)
				metrics.ObserveResolution(metrics.OutcomeOK)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return summary, err
	}
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("resolve canceled: %w", err)
	}
	return summary, nil
}

// ResolveOne searches for name and returns the selected website, or
// school.WebsiteUnknown when no candidate qualifies. Search errors are
// retried per the policy and returned once exhausted.
func (r *Resolver) ResolveOne(ctx context.Context, name string) (string, error) {
	query := Query(name, r.cfg.Qualifier)
	logger := r.logger.With(zap.String("school", name))

	var candidates []string
	attempts, err := retry.Do(ctx, r.policy, func(ctx context.Context, attempt int) error {
		got, err := r.searcher.Search(ctx, query)
		if err != nil {
			logger.Debug("search attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		candidates = got
		return nil
	})
	if err != nil {
		logger.Warn("website lookup failed",
			zap.String("phase", "resolve"),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return "", fmt.Errorf("search %q: %w", query, err)
	}

	website, ok := r.Select(candidates)
	if !ok {
		logger.Info("no usable website candidate", zap.Int("candidates", len(candidates)))
		return school.WebsiteUnknown, nil
	}
	logger.Info("website resolved", zap.String("website", website))
	return website, nil
}

// Select picks the first valid candidate on a preferred official suffix,
// falling back to the first valid candidate.
func (r *Resolver) Select(candidates []string) (string, bool) {
	var fallback string
	for _, raw := range candidates {
		host, ok := r.validHost(raw)
		if !ok {
			continue
		}
		for _, suffix := range r.cfg.PreferredSuffixes {
			if hasDomainSuffix(host, suffix) {
				return strings.TrimSpace(raw), true
			}
		}
		if fallback == "" {
			fallback = strings.TrimSpace(raw)
		}
	}
	return fallback, fallback != ""
}

func (r *Resolver) validHost(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !u.IsAbs() {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" || r.blocklist.IsBlocked(host) {
		return "", false
	}
	return host, true
}
