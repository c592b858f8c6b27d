package memory

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"worktracker/internal/documents"
)

// Store keeps documents in process memory. Writes are counted so tests can
// assert how many round trips a sync produced.
type Store struct {
	mu     sync.Mutex
	docs   map[string][]byte
	writes map[string]int
}

func New() *Store {
	return &Store{docs: map[string][]byte{}, writes: map[string]int{}}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.docs[key]
	if !ok {
		return nil, fmt.Errorf("get %q: %w", key, documents.ErrNotFound)
	}
	return bytes.Clone(b), nil
}

func (s *Store) Set(ctx context.Context, key string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("set: empty key")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[key] = bytes.Clone(body)
	s.writes[key]++
	return nil
}

// Writes returns how many times key has been written.
func (s *Store) Writes(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[key]
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}
