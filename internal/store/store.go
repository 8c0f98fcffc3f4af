package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ServanKorkmaz/mail-automation/internal/metrics"
	"github.com/ServanKorkmaz/mail-automation/internal/school"
)

// ResetOptions selects which sentinels Reset clears.
type ResetOptions struct {
	WebsitesUnknown bool
	EmailsNotFound  bool
}

// Store is the CSV-backed record table.
//
// Reads take snapshots under a read lock. Apply and Persist are serialized
// by a writer mutex so the file on disk always reflects a prefix of the
// applied mutations.
type Store struct {
	path   string
	logger *zap.Logger

	mu      sync.RWMutex
	order   []string
	records map[string]school.Record

	writeMu sync.Mutex

	// beforeRename runs after the temp file is fully written and synced.
	// Tests use it to simulate a crash before the rename lands.
	beforeRename func(tmpPath string) error
}

// Open loads path into a new Store. A missing file yields an empty store.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("store path must not be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		path:    path,
		logger:  logger.Named("store"),
		records: make(map[string]school.Record),
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the CSV location.
func (s *Store) Path() string {
	return s.path
}

// Load replaces the in-memory table with the file contents. Duplicate
// names in the file collapse into one record with a non-destructive merge.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.mu.Lock()
		s.order = nil
		s.records = make(map[string]school.Record)
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", s.path, err)
	}

	rows, err := ReadCSV(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parse %s: %w", s.path, err)
	}

	order := make([]string, 0, len(rows))
	records := make(map[string]school.Record, len(rows))
	dupes := 0
	for _, row := range rows {
		key := row.Key()
		if existing, ok := records[key]; ok {
			records[key] = mergeFields(existing, row)
			dupes++
			continue
		}
		order = append(order, key)
		records[key] = row
	}
	for _, key := range order {
		rec := records[key]
		if rec.Contacted == school.ContactedYes && !school.IsConcreteEmail(rec.Email) {
			s.logger.Warn("contacted record without a concrete email",
				zap.String("school", rec.Name),
				zap.String("email", rec.Email),
			)
		}
	}

	s.mu.Lock()
	s.order = order
	s.records = records
	s.mu.Unlock()

	s.logger.Debug("loaded records",
		zap.String("path", s.path),
		zap.Int("records", len(order)),
		zap.Int("duplicates_collapsed", dupes),
	)
	return nil
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Get returns a copy of the record for name.
func (s *Store) Get(name string) (school.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[school.NormalizeName(name)]
	return rec, ok
}

// Records returns a snapshot of all records in insertion order.
func (s *Store) Records() []school.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]school.Record, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.records[key])
	}
	return out
}

// Select returns the records matching keep, in insertion order.
func (s *Store) Select(keep func(school.Record) bool) []school.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []school.Record
	for _, key := range s.order {
		if rec := s.records[key]; keep(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// Merge appends names that are not present yet. Existing records are left
// untouched. It returns how many records were added.
func (s *Store) Merge(names []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, raw := range names {
		name := school.CleanName(raw)
		if name == "" {
			continue
		}
		key := school.NormalizeName(name)
		if _, ok := s.records[key]; ok {
			continue
		}
		s.order = append(s.order, key)
		s.records[key] = school.Record{Name: name, Contacted: school.ContactedNo}
		added++
	}
	return added
}

// Update folds rec onto the stored record with the same name and returns
// the result. Values only move forward: contacted never reverts, concrete
// values are never replaced, and sentinels never overwrite concrete data.
func (s *Store) Update(rec school.Record) (school.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(rec)
}

func (s *Store) updateLocked(rec school.Record) (school.Record, error) {
	if school.CleanName(rec.Name) == "" {
		return school.Record{}, school.ErrEmptyName
	}
	key := rec.Key()
	existing, ok := s.records[key]
	if !ok {
		return school.Record{}, fmt.Errorf("%w: %q", school.ErrUnknownRecord, rec.Name)
	}
	merged := mergeFields(existing, rec)
	if merged.Contacted == school.ContactedYes &&
		existing.Contacted != school.ContactedYes &&
		!school.IsConcreteEmail(merged.Email) {
		return existing, fmt.Errorf("%w: %q has email %q", school.ErrNotContactable, rec.Name, merged.Email)
	}
	s.records[key] = merged
	return merged, nil
}

// Reset clears the selected sentinels so the next run retries those
// records. Concrete values are never touched. It returns the number of
// records changed.
func (s *Store) Reset(opts ResetOptions) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := 0
	for _, key := range s.order {
		rec := s.records[key]
		dirty := false
		if opts.WebsitesUnknown && rec.Website == school.WebsiteUnknown {
			rec.Website = ""
			dirty = true
		}
		if opts.EmailsNotFound && rec.Email == school.EmailNotFound {
			rec.Email = ""
			dirty = true
		}
		if dirty {
			s.records[key] = rec
			changed++
		}
	}
	return changed
}

// Replace swaps the table for records, keeping their order. Every current
// record must still be present; rows are never dropped.
func (s *Store) Replace(records []school.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]school.Record, len(records))
	order := make([]string, 0, len(records))
	for _, rec := range records {
		key := rec.Key()
		if _, dup := next[key]; dup {
			return fmt.Errorf("duplicate record %q", rec.Name)
		}
		next[key] = rec
		order = append(order, key)
	}
	for key, rec := range s.records {
		if _, ok := next[key]; !ok {
			return fmt.Errorf("replacement drops record %q", rec.Name)
		}
	}
	s.order = order
	s.records = next
	return nil
}

// Apply updates rec and persists the table. The pair runs under the writer
// mutex so concurrent callers never interleave a stale write.
func (s *Store) Apply(ctx context.Context, rec school.Record) (school.Record, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	merged, err := s.Update(rec)
	if err != nil {
		return merged, err
	}
	if err := s.persistLocked(ctx); err != nil {
		return merged, err
	}
	return merged, nil
}

// Persist writes the full table atomically.
func (s *Store) Persist(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.persistLocked(ctx)
}

// persistLocked does not observe ctx cancellation: a mutation already
// applied in memory is always written.
func (s *Store) persistLocked(_ context.Context) (err error) {
	start := time.Now()
	defer func() { metrics.ObservePersist(time.Since(start), err) }()

	var buf bytes.Buffer
	if err := WriteCSV(&buf, s.Records()); err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	if err := writeFileAtomic(s.path, buf.Bytes(), s.beforeRename); err != nil {
		return fmt.Errorf("persist %s: %w", s.path, err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file next to path, syncs it,
// renames it over path and syncs the directory.
func writeFileAtomic(path string, data []byte, beforeRename func(string) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod temp: %w", err)
	}
	if beforeRename != nil {
		if err := beforeRename(tmpPath); err != nil {
			return err
		}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return fmt.Errorf("sync dir: %w", err)
	}
	return nil
}
