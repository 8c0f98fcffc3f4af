// Package snapshot uploads a copy of the dataset to a blob store at the end
// of a run.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/ServanKorkmaz/mail-automation/internal/school"
)

const contentType = "text/csv; charset=utf-8"

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Archiver copies the CSV file into a BlobStore.
type Archiver struct {
	blobs  BlobStore
	hasher Hasher
	clock  school.Clock
	logger *zap.Logger
}

// New wires an Archiver.
func New(blobs BlobStore, hasher Hasher, clock school.Clock, logger *zap.Logger) (*Archiver, error) {
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if hasher == nil {
		return nil, errors.New("hasher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{blobs: blobs, hasher: hasher, clock: clock, logger: logger.Named("snapshot")}, nil
}

// Archive uploads the file at csvPath and returns the object URI.
func (a *Archiver) Archive(ctx context.Context, csvPath, runID string) (string, error) {
	// #nosec G304 -- path comes from operator configuration.
	data, err := os.ReadFile(csvPath)
	if err != nil {
		return "", fmt.Errorf("read snapshot source: %w", err)
	}
	digest, err := a.hasher.Hash(data)
	if err != nil {
		return "", fmt.Errorf("hash snapshot: %w", err)
	}
	key := ObjectName(runID, digest, a.now())
	uri, err := a.blobs.PutObject(ctx, key, contentType, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("upload snapshot: %w", err)
	}
	a.logger.Info("snapshot archived",
		zap.String("uri", uri),
		zap.String("run_id", runID),
		zap.Int("bytes", len(data)),
	)
	return uri, nil
}

func (a *Archiver) now() time.Time {
	if a.clock == nil {
		return time.Now().UTC()
	}
	return a.clock.Now()
}

// ObjectName returns snapshots/<date>/<runID>-<digest prefix>.csv.
func ObjectName(runID, digest string, at time.Time) string {
	if len(digest) > 12 {
		digest = digest[:12]
	}
	if runID == "" {
		runID = "run"
	}
	return path.Join(
		"snapshots",
		at.UTC().Format("2006-01-02"),
		fmt.Sprintf("%s-%s.csv", runID, digest),
	)
}
