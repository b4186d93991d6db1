package progress

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/maheshrc27/instapress/internal/models"
)

// MemoryStore is a process-local Store for single-instance deployments
// without Redis, and for tests. Snapshots are copied through JSON so callers
// never share the stored value.
type MemoryStore struct {
	mu       sync.Mutex
	attempts map[string]memoryEntry
	locks    map[string]time.Time
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		attempts: make(map[string]memoryEntry),
		locks:    make(map[string]time.Time),
	}
}

func (s *MemoryStore) Put(_ context.Context, attempt *models.PublishAttempt, ttl time.Duration) error {
	data, err := json.Marshal(attempt)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[attempt.ProcessingKey] = memoryEntry{data: data, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (*models.PublishAttempt, error) {
	s.mu.Lock()
	entry, ok := s.attempts[key]
	if ok && time.Now().After(entry.expiresAt) {
		delete(s.attempts, key)
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}

	var attempt models.PublishAttempt
	if err := json.Unmarshal(entry.data, &attempt); err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, key)
	delete(s.locks, key)
	return nil
}

func (s *MemoryStore) ClaimPublishing(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if until, held := s.locks[key]; held && time.Now().Before(until) {
		return false, nil
	}
	s.locks[key] = time.Now().Add(ttl)
	return true, nil
}

func (s *MemoryStore) ReleasePublishing(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, key)
	return nil
}
