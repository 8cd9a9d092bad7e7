package session

import (
	"context"
	"sync"
	"time"

	"github.com/opsdesk/deskbot/internal/models"
)

type memoryEntry struct {
	session  models.Session
	deadline time.Time
}

// MemoryStore is an in-process Store for development and tests. Expiry is
// enforced on read against the entry's deadline, so a Get after the TTL
// reports absent even if nothing has swept the map yet.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, threadID string) (*models.Session, bool, error) {
	s.mu.RLock()
	entry, exists := s.entries[threadID]
	s.mu.RUnlock()

	if !exists || s.now().After(entry.deadline) {
		return nil, false, nil
	}
	copied := entry.session
	if entry.session.Slots != nil {
		copied.Slots = make(map[string]string, len(entry.session.Slots))
		for k, v := range entry.session.Slots {
			copied.Slots[k] = v
		}
	}
	return &copied, true, nil
}

func (s *MemoryStore) Put(ctx context.Context, threadID string, sess *models.Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *sess
	if sess.Slots != nil {
		stored.Slots = make(map[string]string, len(sess.Slots))
		for k, v := range sess.Slots {
			stored.Slots[k] = v
		}
	}
	s.entries[threadID] = memoryEntry{
		session:  stored,
		deadline: s.now().Add(ttl),
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, threadID)
	return nil
}

func (s *MemoryStore) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
