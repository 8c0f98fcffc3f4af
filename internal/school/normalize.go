package school

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName produces the comparison key for a school name: NFC form,
// case-folded, trimmed, with internal whitespace runs collapsed.
func NormalizeName(name string) string {
	fields := strings.Fields(norm.NFC.String(name))
	if len(fields) == 0 {
		return ""
	}
	// A Caser carries state, so each call gets its own.
	return cases.Fold().String(strings.Join(fields, " "))
}

// CleanName returns the display form stored for a name: trimmed, NFC, single spaced.
func CleanName(name string) string {
	return strings.Join(strings.Fields(norm.NFC.String(name)), " ")
}

// DedupeNames keeps the first appearance of every normalized name and drops blanks.
func DedupeNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, raw := range names {
		key := NormalizeName(raw)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, CleanName(raw))
	}
	return out
}
