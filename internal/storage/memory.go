package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is used when no S3 endpoint is configured and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]Object
	puts    int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]Object)}
}

func (s *MemoryStore) PutDocument(ctx context.Context, key string, data []byte, filename string, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]byte, len(data))
	copy(copied, data)
	s.objects[key] = Object{Key: key, Filename: filename, ContentType: contentType, Data: copied}
	s.puts++
	return nil
}

func (s *MemoryStore) GetDocument(ctx context.Context, key string) (*Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrObjectNotFound)
	}
	return &obj, nil
}

func (s *MemoryStore) Link(ctx context.Context, key string, ttl time.Duration) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.objects[key]; !ok {
		return "", fmt.Errorf("%s: %w", key, ErrObjectNotFound)
	}
	return fmt.Sprintf("memory://%s?expires=%d", key, time.Now().Add(ttl).Unix()), nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Puts counts every PutDocument call, including overwrites.
func (s *MemoryStore) Puts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts
}
