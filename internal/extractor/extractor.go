// Package extractor finds a contact email for each resolved school website
// by scanning the homepage and a few likely contact pages.
package extractor

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ServanKorkmaz/mail-automation/internal/metrics"
	"github.com/ServanKorkmaz/mail-automation/internal/retry"
	"github.com/ServanKorkmaz/mail-automation/internal/school"
)

// Defaults applied by New.
const (
	DefaultMaxSubpages = 3
	DefaultConcurrency = 5
)

// Config tunes which pages are scanned and how many sites run at once.
type Config struct {
	MaxSubpages   int      `mapstructure:"max_subpages"`
	RetryNotFound bool     `mapstructure:"retry_not_found"`
	Concurrency   int      `mapstructure:"concurrency"`
	ContactPaths  []string `mapstructure:"contact_paths"`
}

// Applier persists a record mutation.
type Applier interface {
	Apply(ctx context.Context, rec school.Record) (school.Record, error)
}

// Summary counts extraction outcomes for one pass.
type Summary struct {
	Found    int
	NotFound int
	Failed   int
}

// Result is the outcome of scanning one site.
type Result struct {
	// Email is the selected address, school.EmailNotFound, or empty when
	// no page could be fetched at all.
	Email   string
	Scanned int
	Failed  int
}

// Extractor fills the email field of records.
type Extractor struct {
	fetcher school.Fetcher
	store   Applier
	policy  retry.Policy
	cfg     Config
	logger  *zap.Logger
}

// New builds an Extractor. Zero config fields take the package defaults.
func New(fetcher school.Fetcher, store Applier, policy retry.Policy, cfg Config, logger *zap.Logger) *Extractor {
	if cfg.MaxSubpages < 0 {
		cfg.MaxSubpages = 0
	} else if cfg.MaxSubpages == 0 {
		cfg.MaxSubpages = DefaultMaxSubpages
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.ContactPaths == nil {
		cfg.ContactPaths = DefaultContactPaths
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		fetcher: fetcher,
		store:   store,
		policy:  policy,
		cfg:     cfg,
		logger:  logger.Named("extractor"),
	}
}

// Extract scans every eligible record. Sites where no page could be
// fetched keep their current email. Only persistence failures and
// cancellation are returned.
func (e *Extractor) Extract(ctx context.Context, records []school.Record) (Summary, error) {
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
	g.SetLimit(e.cfg.Concurrency)

	for _, rec := range records {
		if !rec.NeedsEmail(e.cfg.RetryNotFound) {
			continue
		}
		if gctx.Err() != nil {
			break
		}
		rec := rec
		g.Go(func() error {
			defer metrics.TrackActive("extract")()

			res := e.ExtractOne(gctx, rec.Website)
			if gctx.Err() != nil {
				return gctx.Err()
			}
			logger := e.logger.With(
				zap.String("school", rec.Name),
				zap.String("website", rec.Website),
				zap.Int("pages_scanned", res.Scanned),
				zap.Int("pages_failed", res.Failed),
			)
			if res.Email == "" {
				count(&summary.Failed)
				metrics.ObserveExtraction(metrics.OutcomeFailed)
				logger.Warn("no page could be fetched", zap.String("phase", "extract"))
				return nil
			}

			if _, err := e.store.Apply(gctx, school.Record{Name: rec.Name, Email: res.Email}); err != nil {
				return fmt.Errorf("save email for %q: %w", rec.Name, err)
			}
			if res.Email == school.EmailNotFound {
				count(&summary.NotFound)
				metrics.ObserveExtraction(metrics.OutcomeNotFound)
				logger.Info("no email found")
			} else {
				count(&summary.Found)
				metrics.ObserveExtraction(metrics.OutcomeOK)
				logger.Info("email found", zap.String("email", res.Email))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return summary, err
	}
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("extract canceled: %w", err)
	}
	return summary, nil
}

// ExtractOne scans website and up to MaxSubpages contact pages. Scanning
// stops early once an address on the site's own domain is found.
func (e *Extractor) ExtractOne(ctx context.Context, website string) Result {
	var (
		res    Result
		emails []string
		seen   = make(map[string]struct{})
	)
	collect := func(found []string) bool {
		for _, addr := range found {
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}
			emails = append(emails, addr)
		}
		best, ok := SelectEmail(emails, website)
		return ok && domainsRelated(emailDomain(best), siteHost(website))
	}

	home, err := url.Parse(normalizeWebsite(website))
	if err != nil || home.Host == "" {
		e.logger.Debug("unusable website", zap.String("website", website), zap.Error(err))
		return res
	}

	var discovered []string
	body, finalURL, ok := e.fetchPage(ctx, home.String())
	if ok {
		res.Scanned++
		if collect(ScanEmails(body)) {
			res.Email, _ = SelectEmail(emails, website)
			return res
		}
		base := home
		if u, err := url.Parse(finalURL); err == nil && u.Host != "" {
			base = u
		}
		if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body)); err == nil {
			discovered = ContactLinks(doc, base)
		}
	} else {
		res.Failed++
	}

	for _, page := range candidatePages(home, discovered, e.cfg.ContactPaths, e.cfg.MaxSubpages) {
		if ctx.Err() != nil {
			return Result{}
		}
		body, _, ok := e.fetchPage(ctx, page)
		if !ok {
			res.Failed++
			continue
		}
		res.Scanned++
		if collect(ScanEmails(body)) {
			break
		}
	}

	switch {
	case res.Scanned == 0:
		res.Email = ""
	case len(emails) == 0:
		res.Email = school.EmailNotFound
	default:
		res.Email, _ = SelectEmail(emails, website)
	}
	return res
}

func (e *Extractor) fetchPage(ctx context.Context, pageURL string) ([]byte, string, bool) {
	var page school.Page
	attempts, err := retry.Do(ctx, e.policy, func(ctx context.Context, _ int) error {
		p, err := e.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		e.logger.Debug("page skipped",
			zap.String("url", pageURL),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return nil, "", false
	}
	return page.Body, page.FinalURL, true
}

func normalizeWebsite(website string) string {
	website = strings.TrimSpace(website)
	if !strings.Contains(website, "://") {
		website = "https://" + website
	}
	return website
}
