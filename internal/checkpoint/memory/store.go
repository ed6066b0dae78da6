// Package memory provides an in-memory checkpoint store for local
// development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/jordanhale/snapcrawl/internal/checkpoint"
)

// Store keeps values in a map. A positive MaxValueBytes makes Put enforce
// the same capacity limit a remote store would, which exercises the fatal
// path deterministically.
type Store struct {
	mu            sync.RWMutex
	data          map[string][]byte
	maxValueBytes int
}

// NewStore creates a Store. maxValueBytes <= 0 disables the size limit.
func NewStore(maxValueBytes int) *Store {
	return &Store{
		data:          make(map[string][]byte),
		maxValueBytes: maxValueBytes,
	}
}

// Get returns the value stored under key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.data[key]
	if !ok {
		return nil, checkpoint.ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

// Put stores the value under key.
func (s *Store) Put(_ context.Context, key string, value []byte) error {
	if s.maxValueBytes > 0 && len(value) > s.maxValueBytes {
		return fmt.Errorf("value for %s is %d bytes (limit %d): %w",
			key, len(value), s.maxValueBytes, checkpoint.ErrValueTooLarge)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}

// Keys returns the stored keys, for inspection in tests.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}
