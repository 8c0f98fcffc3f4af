// Package customsearch resolves search queries with the Google Programmable
// Search JSON API.
package customsearch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/ServanKorkmaz/mail-automation/internal/school"
)

// maxResults is the per-request ceiling enforced by the API.
const maxResults = 10

// Config carries the credentials for one programmable search engine.
type Config struct {
	APIKey   string `mapstructure:"api_key"`
	EngineID string `mapstructure:"engine_id"`
	// Endpoint overrides the API base URL.
	Endpoint string `mapstructure:"endpoint"`
}

// Searcher implements school.Searcher.
type Searcher struct {
	svc      *customsearch.Service
	engineID string
	logger   *zap.Logger
}

// New builds a Searcher authenticated by API key.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Searcher, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("search api key is required")
	}
	if strings.TrimSpace(cfg.EngineID) == "" {
		return nil, errors.New("search engine id is required")
	}
	opts := []option.ClientOption{option.WithAPIKey(strings.TrimSpace(cfg.APIKey))}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create customsearch service: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Searcher{
		svc:      svc,
		engineID: strings.TrimSpace(cfg.EngineID),
		logger:   logger.Named("customsearch"),
	}, nil
}

// Search returns result links in ranking order. Quota and server errors are
// reported as transient.
func (s *Searcher) Search(ctx context.Context, query string) ([]string, error) {
	res, err := s.svc.Cse.List().
		Q(query).
		Cx(s.engineID).
		Num(maxResults).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classifyErr(err)
	}
	links := make([]string, 0, len(res.Items))
	for _, item := range res.Items {
		if item == nil || strings.TrimSpace(item.Link) == "" {
			continue
		}
		links = append(links, strings.TrimSpace(item.Link))
	}
	s.logger.Debug("search completed", zap.String("query", query), zap.Int("results", len(links)))
	return links, nil
}

func classifyErr(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500 {
			return school.Transient(fmt.Errorf("customsearch: %w", err))
		}
		return fmt.Errorf("customsearch: %w", err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return school.Transient(fmt.Errorf("customsearch: %w", err))
	}
	return fmt.Errorf("customsearch: %w", err)
}
