package school

import (
	"strings"
)

// Sentinel field values persisted in the CSV.
const (
	// WebsiteUnknown marks a record whose search produced no usable candidate.
	WebsiteUnknown = "unknown"
	// EmailNotFound marks a website that was scanned successfully without a match.
	EmailNotFound = "NOT FOUND"
)

// Contacted is the outreach state of a record.
type Contacted string

// Contacted values. Transitions only go from ContactedNo to ContactedYes.
const (
	ContactedNo  Contacted = "no"
	ContactedYes Contacted = "yes"
)

// ParseContacted maps a raw CSV value onto Contacted. Anything other than
// "yes" (case-insensitive) reads as ContactedNo.
func ParseContacted(raw string) Contacted {
	if strings.EqualFold(strings.TrimSpace(raw), string(ContactedYes)) {
		return ContactedYes
	}
	return ContactedNo
}

// Record is the persisted state for one school.
type Record struct {
	Name      string
	Website   string
	Email     string
	Contacted Contacted
}

// Key returns the normalized dedup key for the record.
func (r Record) Key() string {
	return NormalizeName(r.Name)
}

// HasWebsite reports whether Website holds a concrete URL.
func (r Record) HasWebsite() bool {
	return IsConcreteWebsite(r.Website)
}

// HasEmail reports whether Email holds a concrete address.
func (r Record) HasEmail() bool {
	return IsConcreteEmail(r.Email)
}

// NeedsWebsite reports whether the resolver should look this record up.
func (r Record) NeedsWebsite() bool {
	return strings.TrimSpace(r.Website) == ""
}

// NeedsEmail reports whether the extractor should scan this record's site.
// NOT FOUND is only retried when retryNotFound is set.
func (r Record) NeedsEmail(retryNotFound bool) bool {
	if !r.HasWebsite() {
		return false
	}
	email := strings.TrimSpace(r.Email)
	switch {
	case email == "":
		return true
	case email == EmailNotFound:
		return retryNotFound
	default:
		return false
	}
}

// Contactable reports whether the dispatcher may send to this record.
func (r Record) Contactable() bool {
	return r.HasEmail() && r.Contacted != ContactedYes
}

// IsConcreteWebsite reports whether v is a real website value, not empty or a sentinel.
func IsConcreteWebsite(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && !strings.EqualFold(v, WebsiteUnknown)
}

// IsConcreteEmail reports whether v looks like an address rather than empty or a sentinel.
func IsConcreteEmail(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" || strings.EqualFold(v, EmailNotFound) {
		return false
	}
	at := strings.LastIndex(v, "@")
	return at > 0 && at < len(v)-1
}
