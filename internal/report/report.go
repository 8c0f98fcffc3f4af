// Package report summarizes the dataset and rewrites it in review order.
package report

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/ServanKorkmaz/mail-automation/internal/school"
	"github.com/ServanKorkmaz/mail-automation/internal/store"
)

// Stats are the per-column counts of a dataset.
type Stats struct {
	Total          int
	WithWebsite    int
	WebsiteUnknown int
	WithEmail      int
	EmailNotFound  int
	Contacted      int
	ReadyToContact int
}

// Compute counts records by state.
func Compute(records []school.Record) Stats {
	var s Stats
	for _, rec := range records {
		s.Total++
		switch {
		case rec.HasWebsite():
			s.WithWebsite++
		case rec.Website == school.WebsiteUnknown:
			s.WebsiteUnknown++
		}
		switch {
		case rec.HasEmail():
			s.WithEmail++
		case rec.Email == school.EmailNotFound:
			s.EmailNotFound++
		}
		if rec.Contacted == school.ContactedYes {
			s.Contacted++
		}
		if rec.Contactable() {
			s.ReadyToContact++
		}
	}
	return s
}

// Render writes stats as a table.
func Render(w io.Writer, path string, s Stats) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	t.SetTitle(path)
	t.AppendHeader(table.Row{"Metric", "Count"})
	t.AppendRows([]table.Row{
		{"Total schools", s.Total},
		{"With website", s.WithWebsite},
		{"Website unknown", s.WebsiteUnknown},
		{"With email", s.WithEmail},
		{"Email not found", s.EmailNotFound},
		{"Already contacted", s.Contacted},
	})
	t.AppendFooter(table.Row{"Ready to contact", s.ReadyToContact})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})
	t.Render()
}

// Sorted returns a copy of records ordered by has-email, then has-website,
// then name in Turkish collation order.
func Sorted(records []school.Record) []school.Record {
	out := make([]school.Record, len(records))
	copy(out, records)
	col := collate.New(language.Turkish, collate.IgnoreCase)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.HasEmail() != b.HasEmail() {
			return a.HasEmail()
		}
		if a.HasWebsite() != b.HasWebsite() {
			return a.HasWebsite()
		}
		return col.CompareString(a.Name, b.Name) < 0
	})
	return out
}

// Reorganize rewrites the store in Sorted order and returns its stats.
func Reorganize(ctx context.Context, st *store.Store) (Stats, error) {
	sorted := Sorted(st.Records())
	if err := st.Replace(sorted); err != nil {
		return Stats{}, fmt.Errorf("reorder records: %w", err)
	}
	if err := st.Persist(ctx); err != nil {
		return Stats{}, fmt.Errorf("persist reordered records: %w", err)
	}
	return Compute(sorted), nil
}
