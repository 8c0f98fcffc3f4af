package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ServanKorkmaz/mail-automation/internal/school"
)

const utf8BOM = "\ufeff"

// Header returns the frozen CSV header.
func Header() []string {
	return []string{"name", "website", "email", "contacted"}
}

// WriteCSV writes records with the stable Header() ordering.
func WriteCSV(w io.Writer, records []school.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		contacted := r.Contacted
		if contacted == "" {
			contacted = school.ContactedNo
		}
		if err := cw.Write([]string{r.Name, r.Website, r.Email, string(contacted)}); err != nil {
			return fmt.Errorf("write row %q: %w", r.Name, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads records using the Header() contract.
//
// Extra columns are ignored. Only "name" is required; a missing "contacted"
// column reads as "no". A leading UTF-8 BOM is tolerated.
func ReadCSV(r io.Reader) ([]school.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, utf8BOM)
		}
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := index["name"]; !ok {
		return nil, fmt.Errorf("missing required column %q", "name")
	}

	var records []school.Record
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		get := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		name := school.CleanName(get("name"))
		if name == "" {
			continue
		}
		records = append(records, school.Record{
			Name:      name,
			Website:   get("website"),
			Email:     get("email"),
			Contacted: school.ParseContacted(get("contacted")),
		})
	}
}
