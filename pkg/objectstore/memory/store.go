// Package memory provides an in-memory objectstore.Store for unit tests that
// don't need the integration tag's real S3 endpoint.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/nyxstorage/spare/pkg/objectstore"
)

// Store is an in-memory implementation of objectstore.Store.
type Store struct {
	mu      sync.RWMutex
	objects map[string][]byte
	exists  bool
	closed  bool
}

// New creates a new in-memory object store. The bucket does not exist until
// CreateBucket is called, matching the real backend's lifecycle.
func New() *Store {
	return &Store{objects: make(map[string][]byte)}
}

func (s *Store) BucketExists(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, objectstore.ErrStoreClosed
	}
	return s.exists, nil
}

func (s *Store) CreateBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return objectstore.ErrStoreClosed
	}
	s.exists = true
	return nil
}

func (s *Store) PutObject(ctx context.Context, key string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return objectstore.ErrStoreClosed
	}
	copied := make([]byte, len(body))
	copy(copied, body)
	s.objects[key] = copied
	return nil
}

func (s *Store) GetObject(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, objectstore.ErrStoreClosed
	}
	data, ok := s.objects[key]
	if !ok {
		return nil, objectstore.ErrObjectNotFound
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	return copied, nil
}

func (s *Store) ListObjects(ctx context.Context, prefix string, max int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, objectstore.ErrStoreClosed
	}
	var keys []string
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	if max > 0 && len(keys) > max {
		keys = keys[:max]
	}
	return keys, nil
}

func (s *Store) DeleteObjects(ctx context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return objectstore.ErrStoreClosed
	}
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			delete(s.objects, key)
		}
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.objects = nil
	return nil
}

// ObjectCount returns the number of objects stored, for test assertions.
func (s *Store) ObjectCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

var _ objectstore.Store = (*Store)(nil)
