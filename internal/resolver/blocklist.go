package resolver

import "strings"

// DefaultBlocklist lists directory, social and aggregator domains that never
// count as a school's own website.
var DefaultBlocklist = []string{
	"*.okul.com.tr",
	"*.facebook.com",
	"*.instagram.com",
	"*.twitter.com",
	"*.x.com",
	"*.linkedin.com",
	"*.youtube.com",
	"*.wikipedia.org",
	"*.tripadvisor.com",
	"*.google.com",
	"*.foursquare.com",
	"*.yandex.com.tr",
	"*.sahibinden.com",
}

// DefaultPreferredSuffixes are the official Turkish institutional domains.
var DefaultPreferredSuffixes = []string{".k12.tr", ".edu.tr", ".gov.tr", ".bel.tr"}

// domainPatternBlocklist stores exact hosts and suffix wildcards derived from configuration.
type domainPatternBlocklist struct {
	exact    map[string]struct{}
	suffixes []string
}

func newDomainPatternBlocklist(patterns []string) *domainPatternBlocklist {
	matcher := &domainPatternBlocklist{
		exact: make(map[string]struct{}),
	}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		if value == "" {
			continue
		}
		switch {
		case strings.HasPrefix(value, "*."):
			matcher.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			matcher.addSuffix(strings.TrimPrefix(value, "."))
		default:
			matcher.exact[value] = struct{}{}
		}
	}
	if len(matcher.exact) == 0 && len(matcher.suffixes) == 0 {
		return nil
	}
	return matcher
}

func (b *domainPatternBlocklist) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range b.suffixes {
		if existing == suffix {
			return
		}
	}
	b.suffixes = append(b.suffixes, suffix)
}

// IsBlocked reports whether host matches an exact entry or a suffix pattern.
func (b *domainPatternBlocklist) IsBlocked(host string) bool {
	if b == nil {
		return false
	}
	host = strings.TrimSuffix(strings.TrimSpace(strings.ToLower(host)), ".")
	if host == "" {
		return false
	}
	if _, exact := b.exact[host]; exact {
		return true
	}
	for _, suffix := range b.suffixes {
		if hasDomainSuffix(host, suffix) {
			return true
		}
	}
	return false
}

// hasDomainSuffix matches host against suffix on label boundaries.
func hasDomainSuffix(host, suffix string) bool {
	suffix = strings.TrimPrefix(strings.ToLower(suffix), ".")
	if suffix == "" {
		return false
	}
	return host == suffix || strings.HasSuffix(host, "."+suffix)
}
