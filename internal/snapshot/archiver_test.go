package snapshot

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ServanKorkmaz/mail-automation/internal/hash/sha256"
	"github.com/ServanKorkmaz/mail-automation/internal/storage/local"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type failingStore struct{}

func (failingStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket unavailable")
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "schools.csv")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestObjectName(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 10, 17, 23, 30, 0, 0, time.FixedZone("TRT", 3*3600))
	got := ObjectName("0192abcd", "b94d27b9934d3e08a52e52d7", at)
	assert.Equal(t, "snapshots/2026-10-17/0192abcd-b94d27b9934d.csv", got)
	assert.Equal(t, "snapshots/2026-10-17/run-abc.csv", ObjectName("", "abc", at))
}

func TestArchiveWritesLocalCopy(t *testing.T) {
	t.Parallel()

	content := "name,website,email,contacted\nAlpha School,https://alpha.k12.tr,info@alpha.k12.tr,no\n"
	src := writeCSV(t, content)
	baseDir := t.TempDir()
	blobs, err := local.New(local.Config{BaseDir: baseDir})
	require.NoError(t, err)

	clock := fixedClock{t: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)}
	archiver, err := New(blobs, sha256.New(), clock, nil)
	require.NoError(t, err)

	uri, err := archiver.Archive(context.Background(), src, "run1")
	require.NoError(t, err)

	digest, err := sha256.New().Hash([]byte(content))
	require.NoError(t, err)
	want := filepath.Join(baseDir, "snapshots", "2026-10-17", "run1-"+digest[:12]+".csv")
	assert.Equal(t, "file://"+want, uri)

	// #nosec G304 -- test reads from the controlled temp directory.
	copied, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, content, string(copied))
}

func TestArchiveErrors(t *testing.T) {
	t.Parallel()

	_, err := New(nil, sha256.New(), nil, nil)
	require.Error(t, err)

	archiver, err := New(failingStore{}, sha256.New(), nil, nil)
	require.NoError(t, err)

	_, err = archiver.Archive(context.Background(), filepath.Join(t.TempDir(), "missing.csv"), "run")
	require.ErrorContains(t, err, "read snapshot source")

	_, err = archiver.Archive(context.Background(), writeCSV(t, "name\n"), "run")
	require.ErrorContains(t, err, "bucket unavailable")
}

func TestArchiveToMemoryStore(t *testing.T) {
	t.Parallel()

	blobs := newMemBlobStore()
	clock := fixedClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	archiver, err := New(blobs, sha256.New(), clock, nil)
	require.NoError(t, err)

	uri, err := archiver.Archive(context.Background(), writeCSV(t, "name\n"), "r")
	require.NoError(t, err)

	paths := blobs.paths()
	require.Len(t, paths, 1)
	assert.Equal(t, "memory://"+paths[0], uri)
	assert.True(t, filepath.Dir(paths[0]) == "snapshots/2026-01-02", paths[0])
	obj, ok := blobs.get(paths[0])
	require.True(t, ok)
	assert.Equal(t, "text/csv; charset=utf-8", obj.contentType)
}
