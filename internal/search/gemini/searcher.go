// Package gemini resolves search queries through Gemini with Google Search
// grounding, for deployments without a programmable search engine.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/ServanKorkmaz/mail-automation/internal/school"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gemini-2.5-flash"

// groundingRedirectHost serves the opaque redirect links Gemini returns as
// grounding sources.
const groundingRedirectHost = "vertexaisearch.cloud.google.com"

const redirectTimeout = 10 * time.Second

var (
	urlPattern  = regexp.MustCompile(`https?://[^\s"'<>()\[\]]+`)
	hostPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)+$`)
)

// Config selects the Gemini model and credentials.
type Config struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
	// BaseURL overrides the Gemini API base URL.
	BaseURL string `mapstructure:"base_url"`
}

// Searcher implements school.Searcher.
type Searcher struct {
	client    *genai.Client
	model     string
	redirects *http.Client
	logger    *zap.Logger
}

// New builds a Searcher against the Gemini API backend.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Searcher, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	redirects := &http.Client{
		Timeout: redirectTimeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &Searcher{
		client:    client,
		model:     model,
		redirects: redirects,
		logger:    logger.Named("gemini"),
	}, nil
}

// Search asks the model for the official website and returns the URLs it
// cites, answer text first and grounding sources after.
func (s *Searcher) Search(ctx context.Context, query string) ([]string, error) {
	resp, err := s.client.Models.GenerateContent(
		ctx,
		s.model,
		genai.Text(buildPrompt(query)),
		&genai.GenerateContentConfig{
			Tools:          []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
			CandidateCount: 1,
		},
	)
	if err != nil {
		return nil, classifyErr(err)
	}
	urls := append(textURLs(resp.Text()), s.groundingURLs(ctx, resp)...)
	urls = dedupePreserveOrder(urls)
	s.logger.Debug("search completed", zap.String("query", query), zap.Int("results", len(urls)))
	return urls, nil
}

func buildPrompt(query string) string {
	return strings.TrimSpace(`
Use Google Search to find the official website for the following search.
Reply with the website URL only, one per line, best match first.
If nothing official exists, reply with nothing.

Search: ` + query + `
`)
}

func textURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimRight(m, ".,;:!?*`"))
	}
	return out
}

// groundingURLs returns the grounding source of each web chunk. Redirect
// links are followed one hop; when that fails the chunk title is used if
// it names a host.
func (s *Searcher) groundingURLs(ctx context.Context, resp *genai.GenerateContentResponse) []string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil
	}
	meta := resp.Candidates[0].GroundingMetadata
	if meta == nil {
		return nil
	}
	var out []string
	for _, chunk := range meta.GroundingChunks {
		if chunk == nil || chunk.Web == nil {
			continue
		}
		uri := strings.TrimSpace(chunk.Web.URI)
		if !isGroundingRedirect(uri) {
			out = append(out, uri)
			continue
		}
		target, err := s.followRedirect(ctx, uri)
		if err == nil {
			out = append(out, target)
			continue
		}
		s.logger.Debug("grounding redirect unresolved", zap.String("title", chunk.Web.Title), zap.Error(err))
		if site, ok := siteFromTitle(chunk.Web.Title); ok {
			out = append(out, site)
		}
	}
	return out
}

func isGroundingRedirect(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && strings.EqualFold(u.Hostname(), groundingRedirectHost)
}

// followRedirect issues a HEAD request without following redirects and
// returns the Location target.
func (s *Searcher) followRedirect(ctx context.Context, uri string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, uri, nil)
	if err != nil {
		return "", fmt.Errorf("build redirect request: %w", err)
	}
	resp, err := s.redirects.Do(req)
	if err != nil {
		return "", fmt.Errorf("resolve redirect: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 300 || resp.StatusCode > 399 {
		return "", fmt.Errorf("resolve redirect: unexpected status %d", resp.StatusCode)
	}
	loc, err := resp.Location()
	if err != nil {
		return "", fmt.Errorf("resolve redirect: %w", err)
	}
	if isGroundingRedirect(loc.String()) {
		return "", errors.New("resolve redirect: location is another redirect")
	}
	return loc.String(), nil
}

// siteFromTitle turns a grounding chunk title such as "alpha.k12.tr" into a
// homepage URL.
func siteFromTitle(title string) (string, bool) {
	host := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(title)), ".")
	host = strings.TrimPrefix(host, "www.")
	if !hostPattern.MatchString(host) {
		return "", false
	}
	return "https://" + host, true
}

func classifyErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code/100 == 5 {
			return school.Transient(fmt.Errorf("gemini: %w", err))
		}
		return fmt.Errorf("gemini: %w", err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return school.Transient(fmt.Errorf("gemini: %w", err))
	}
	return fmt.Errorf("gemini: %w", err)
}

func dedupePreserveOrder(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
