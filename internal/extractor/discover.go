package extractor

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultContactPaths are scanned on every site in addition to discovered links.
var DefaultContactPaths = []string{"/iletisim", "/contact", "/about"}

var contactKeywords = []string{"iletişim", "iletisim", "contact", "bize-ulasin", "bize-ulaşın"}

// ContactLinks returns same-host links whose text or href mentions a
// contact keyword, resolved against base and deduplicated in document order.
func ContactLinks(doc *goquery.Document, base *url.URL) []string {
	var links []string
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(strings.ToLower(href), "mailto:") {
			return
		}
		text := strings.ToLower(strings.TrimSpace(a.Text()))
		hrefLower := strings.ToLower(href)
		if decoded, err := url.PathUnescape(hrefLower); err == nil {
			hrefLower = decoded
		}
		if !mentionsContact(text) && !mentionsContact(hrefLower) {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		abs.Fragment = ""
		if (abs.Scheme != "http" && abs.Scheme != "https") || !sameSite(abs, base) {
			return
		}
		key := abs.String()
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		links = append(links, key)
	})
	return links
}

func mentionsContact(s string) bool {
	for _, kw := range contactKeywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func sameSite(a, b *url.URL) bool {
	return strings.TrimPrefix(strings.ToLower(a.Hostname()), "www.") ==
		strings.TrimPrefix(strings.ToLower(b.Hostname()), "www.")
}

// candidatePages lists the subpages to scan after the homepage: discovered
// contact links first, then the fixed paths, excluding the homepage itself
// and capped at limit.
func candidatePages(home *url.URL, discovered, paths []string, limit int) []string {
	seen := map[string]struct{}{normalizePageKey(home): {}}
	var out []string
	push := func(raw string) {
		if len(out) >= limit {
			return
		}
		u, err := url.Parse(raw)
		if err != nil {
			return
		}
		key := normalizePageKey(u)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, u.String())
	}
	for _, link := range discovered {
		push(link)
	}
	root := &url.URL{Scheme: home.Scheme, Host: home.Host}
	for _, p := range paths {
		push(root.ResolveReference(&url.URL{Path: p}).String())
	}
	return out
}

func normalizePageKey(u *url.URL) string {
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	path := strings.TrimSuffix(u.EscapedPath(), "/")
	key := host + path
	if u.RawQuery != "" {
		key += "?" + u.RawQuery
	}
	return key
}
