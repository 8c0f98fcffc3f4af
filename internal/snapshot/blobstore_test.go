package snapshot

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

type storedObject struct {
	contentType string
	data        []byte
}

// memBlobStore keeps archived objects in a map and returns memory:// URIs.
type memBlobStore struct {
	mu      sync.Mutex
	objects map[string]storedObject
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{objects: make(map[string]storedObject)}
}

func (s *memBlobStore) PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = storedObject{contentType: contentType, data: b}
	return "memory://" + path, nil
}

func (s *memBlobStore) get(path string) (storedObject, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[path]
	return obj, ok
}

func (s *memBlobStore) paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.objects))
	for p := range s.objects {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
