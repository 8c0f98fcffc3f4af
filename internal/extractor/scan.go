package extractor

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var (
	emailPattern  = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	obfuscatedAt  = regexp.MustCompile(`(?i)\s*[\[(]\s*at\s*[\])]\s*`)
	obfuscatedDot = regexp.MustCompile(`(?i)\s*[\[(]\s*dot\s*[\])]\s*`)
)

// noiseDomains are placeholder and tracking domains that show up in markup
// without being a school's contact address.
var noiseDomains = []string{
	"example.com",
	"example.org",
	"test.com",
	"domain.com",
	"email.com",
	"yourdomain.com",
	"sentry.io",
	"wixpress.com",
	"sentry-next.wixpress.com",
	"cloudflare.com",
	"googletagmanager.com",
	"google-analytics.com",
	"gstatic.com",
	"cdn.jsdelivr.net",
}

var assetExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".css", ".js"}

// ScanEmails returns the plausible addresses in an HTML document in scan
// order: mailto links, then footer text, then the whole page text, then
// the raw markup. Addresses are lowercased and deduplicated. Unparseable
// input yields no addresses.
func ScanEmails(body []byte) []string {
	var found []string
	seen := make(map[string]struct{})
	add := func(candidates []string) {
		for _, c := range candidates {
			c = strings.ToLower(strings.Trim(c, "."))
			if _, ok := seen[c]; ok || IsNoise(c) {
				continue
			}
			seen[c] = struct{}{}
			found = append(found, c)
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err == nil {
		doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			add(mailtoAddresses(a.AttrOr("href", "")))
		})
		footer := doc.Find("footer")
		if footer.Length() == 0 {
			footer = doc.Find(`[class*="footer"], [id*="footer"]`)
		}
		add(FindEmails(spacedText(footer)))
		add(FindEmails(spacedText(doc.Selection)))
	}
	add(FindEmails(string(body)))
	return found
}

// spacedText joins text nodes with spaces so adjacent elements do not glue
// an address onto the following word.
func spacedText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return b.String()
}

// FindEmails matches addresses in free text after undoing [at]/(at) and
// [dot]/(dot) obfuscation.
func FindEmails(text string) []string {
	text = obfuscatedAt.ReplaceAllString(text, "@")
	text = obfuscatedDot.ReplaceAllString(text, ".")
	return emailPattern.FindAllString(text, -1)
}

func mailtoAddresses(href string) []string {
	href = strings.TrimSpace(href)
	if len(href) < len("mailto:") || !strings.EqualFold(href[:len("mailto:")], "mailto:") {
		return nil
	}
	rest := href[len("mailto:"):]
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		rest = rest[:i]
	}
	if decoded, err := url.PathUnescape(rest); err == nil {
		rest = decoded
	}
	return FindEmails(rest)
}

// IsNoise reports whether addr belongs to a placeholder or tracking domain
// or is really an asset filename.
func IsNoise(addr string) bool {
	addr = strings.ToLower(addr)
	for _, ext := range assetExtensions {
		if strings.HasSuffix(addr, ext) {
			return true
		}
	}
	domain := emailDomain(addr)
	if domain == "" {
		return true
	}
	for _, noisy := range noiseDomains {
		if domain == noisy || strings.HasSuffix(domain, "."+noisy) {
			return true
		}
	}
	return false
}

// SelectEmail prefers the first address whose domain matches the site's
// host (ignoring a leading "www." on both sides, either one may be a
// subdomain of the other) and otherwise returns the first address.
func SelectEmail(emails []string, siteURL string) (string, bool) {
	if len(emails) == 0 {
		return "", false
	}
	if host := siteHost(siteURL); host != "" {
		for _, e := range emails {
			if domainsRelated(emailDomain(e), host) {
				return e, true
			}
		}
	}
	return emails[0], true
}

func emailDomain(addr string) string {
	at := strings.LastIndexByte(addr, '@')
	if at < 0 || at == len(addr)-1 {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(addr[at+1:]), "www.")
}

func siteHost(siteURL string) string {
	raw := strings.TrimSpace(siteURL)
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func domainsRelated(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return a == b || strings.HasSuffix(a, "."+b) || strings.HasSuffix(b, "."+a)
}
