// Package memory keeps archived reports in process memory.
package memory

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/JakeFAU/broken-link-analyzer/internal/storage"
)

const scheme = "memory://"

// Object is one archived report.
type Object struct {
	Data        []byte
	ContentType string
}

// BlobStore keeps write-once objects keyed by path and hands out memory:// URIs.
type BlobStore struct {
	mu      sync.RWMutex
	objects map[string]Object
}

// NewBlobStore creates an empty store.
func NewBlobStore() *BlobStore {
	return &BlobStore{objects: make(map[string]Object)}
}

// PutObject stores the content unless path already exists.
func (s *BlobStore) PutObject(_ context.Context, path string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	var data []byte
	if r != nil {
		var err error
		if data, err = io.ReadAll(r); err != nil {
			return "", fmt.Errorf("read object %s: %w", path, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objects[path]; exists {
		return "", fmt.Errorf("%w: %s%s", storage.ErrObjectExists, scheme, path)
	}
	s.objects[path] = Object{Data: data, ContentType: contentType}
	return scheme + path, nil
}

// Get returns a copy of the object's bytes.
func (s *BlobStore) Get(path string) ([]byte, bool) {
	obj, ok := s.Object(path)
	return obj.Data, ok
}

// Object returns a copy of the stored object.
func (s *BlobStore) Object(path string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[strings.TrimPrefix(path, scheme)]
	if !ok {
		return Object{}, false
	}
	obj.Data = append([]byte(nil), obj.Data...)
	return obj, true
}

// List returns the sorted paths under prefix.
func (s *BlobStore) List(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var paths []string
	for p := range s.objects {
		if strings.HasPrefix(p, prefix) {
			paths = append(paths, p)
		}
	}
	slices.Sort(paths)
	return paths
}

// Len reports the number of stored objects.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
