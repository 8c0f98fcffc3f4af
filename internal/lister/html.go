package lister

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ServanKorkmaz/mail-automation/internal/school"
)

// ErrChallenge reports a bot-protection interstitial instead of the listing.
var ErrChallenge = errors.New("listing blocked by challenge page")

var challengeMarkers = []string{
	"challenge-platform",
	"cf-browser-verification",
	"just a moment",
}

var uiTextPatterns = []string{
	"istanbul ortaokulları",
	"istanbul ortaokullar",
	"aradığınız",
	"görüntüleyin",
	"görüntüle",
	"detaylarını",
	"tüm detaylar",
	"detay",
	"giriş yap",
	"devamını",
	"daha fazla",
	"view",
	"details",
	"more",
	"continue",
	"okul listesi",
	"school list",
	"sayfa",
	"page",
}

var (
	containerWords  = []string{"school", "okul", "item", "card"}
	cardWords       = []string{"card", "item", "school", "okul", "list"}
	detailHrefParts = []string{"/okul/", "/school/", "/ortaokul/", "/orta-okul/"}
)

// HTMLSource implements school.PageSource over an HTML directory listing.
type HTMLSource struct {
	baseURL string
	fetcher school.Fetcher

	mu       sync.Mutex
	lastPage int
}

// NewHTMLSource reads listing pages from baseURL through fetcher.
func NewHTMLSource(baseURL string, fetcher school.Fetcher) *HTMLSource {
	return &HTMLSource{baseURL: baseURL, fetcher: fetcher}
}

// FetchPage returns the school names on one listing page.
func (s *HTMLSource) FetchPage(ctx context.Context, page int) ([]string, error) {
	pageURL, err := PageURL(s.baseURL, page)
	if err != nil {
		return nil, err
	}
	res, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch listing page %d: %w", page, err)
	}
	if IsChallenge(res.Body) {
		return nil, school.Transient(fmt.Errorf("page %d: %w", page, ErrChallenge))
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil, fmt.Errorf("parse listing page %d: %w", page, err)
	}
	s.mu.Lock()
	s.lastPage = LastPage(doc)
	s.mu.Unlock()
	return ExtractNames(doc), nil
}

// LastPage returns the highest page number linked from the most recently
// fetched page's pagination, or zero when it had none.
func (s *HTMLSource) LastPage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPage
}

// LastPage reads the highest page number from the pagination block, using
// both page= hrefs and numeric link text. Zero means no pagination.
func LastPage(doc *goquery.Document) int {
	last := 0
	doc.Find(".pagination a").Each(func(_ int, a *goquery.Selection) {
		if href, ok := a.Attr("href"); ok {
			if u, err := url.Parse(strings.TrimSpace(href)); err == nil {
				if n, err := strconv.Atoi(u.Query().Get("page")); err == nil && n > last {
					last = n
				}
			}
		}
		if n, err := strconv.Atoi(strings.TrimSpace(a.Text())); err == nil && n > last {
			last = n
		}
	})
	return last
}

// PageURL addresses page n of the listing. Page 1 is the base URL itself.
func PageURL(base string, page int) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse listing url: %w", err)
	}
	if page <= 1 {
		return u.String(), nil
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// IsChallenge reports whether body looks like a Cloudflare interstitial.
func IsChallenge(body []byte) bool {
	lower := bytes.ToLower(body)
	for _, marker := range challengeMarkers {
		if bytes.Contains(lower, []byte(marker)) {
			return true
		}
	}
	return false
}

// ExtractNames collects candidate school names from list items, detail
// links, cards and table cells, in document order per pattern.
func ExtractNames(doc *goquery.Document) []string {
	var names []string
	add := func(text string) {
		if IsSchoolName(text) {
			names = append(names, school.CleanName(text))
		}
	}

	doc.Find("li").Each(func(_ int, li *goquery.Selection) {
		if !classContains(li, containerWords) {
			return
		}
		add(li.Find("a[href]").First().Text())
	})

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.ToLower(a.AttrOr("href", ""))
		for _, part := range detailHrefParts {
			if strings.Contains(href, part) {
				add(a.Text())
				return
			}
		}
	})

	doc.Find("div, article, section").Each(func(_ int, card *goquery.Selection) {
		if !classContains(card, cardWords) {
			return
		}
		if heading := card.Find("h2, h3, h4, h5").First(); heading.Length() > 0 {
			add(heading.Text())
			return
		}
		add(card.Find("a[href]").First().Text())
	})

	doc.Find("tr").Find("td a[href], th a[href]").Each(func(_ int, a *goquery.Selection) {
		add(a.Text())
	})

	return school.DedupeNames(names)
}

// IsSchoolName filters out UI text and names outside (5, 100) runes.
func IsSchoolName(text string) bool {
	text = school.CleanName(text)
	n := utf8.RuneCountInString(text)
	if n <= 5 || n >= 100 {
		return false
	}
	lower := cases.Lower(language.Turkish).String(text)
	for _, pattern := range uiTextPatterns {
		if strings.Contains(lower, pattern) {
			return false
		}
	}
	return true
}

func classContains(sel *goquery.Selection, words []string) bool {
	class := strings.ToLower(sel.AttrOr("class", ""))
	if class == "" {
		return false
	}
	for _, w := range words {
		if strings.Contains(class, w) {
			return true
		}
	}
	return false
}
