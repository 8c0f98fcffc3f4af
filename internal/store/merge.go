package store

import (
	"strings"

	"github.com/ServanKorkmaz/mail-automation/internal/school"
)

// mergeFields folds incoming onto existing without losing information:
// contacted never reverts, concrete values are never replaced, and a
// sentinel never overwrites a concrete value.
func mergeFields(existing, incoming school.Record) school.Record {
	out := existing
	out.Website = mergeWebsite(existing.Website, incoming.Website)
	out.Email = mergeEmail(existing.Email, incoming.Email)
	if existing.Contacted == school.ContactedYes || incoming.Contacted == school.ContactedYes {
		out.Contacted = school.ContactedYes
	} else {
		out.Contacted = school.ContactedNo
	}
	return out
}

func mergeWebsite(existing, incoming string) string {
	existing = strings.TrimSpace(existing)
	incoming = strings.TrimSpace(incoming)
	switch {
	case incoming == "":
		return existing
	case school.IsConcreteWebsite(existing):
		return existing
	case existing != "" && !school.IsConcreteWebsite(incoming):
		return existing
	default:
		return incoming
	}
}

func mergeEmail(existing, incoming string) string {
	existing = strings.TrimSpace(existing)
	incoming = strings.TrimSpace(incoming)
	switch {
	case incoming == "":
		return existing
	case school.IsConcreteEmail(existing):
		return existing
	case existing != "" && !school.IsConcreteEmail(incoming):
		return existing
	default:
		return incoming
	}
}
