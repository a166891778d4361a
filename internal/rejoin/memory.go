package rejoin

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type memoryEntry struct {
	ticket    Ticket
	expiresAt time.Time
}

// MemoryStore keeps tickets in process. It is used when Redis is disabled.
type MemoryStore struct {
	entries map[string]memoryEntry
	mutex   sync.RWMutex
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Save(ctx context.Context, code string, ticket Ticket, ttl time.Duration) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.entries[code] = memoryEntry{ticket: ticket, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, code string) (Ticket, bool, error) {
	s.mutex.RLock()
	entry, ok := s.entries[code]
	s.mutex.RUnlock()

	if !ok || !s.now().Before(entry.expiresAt) {
		return Ticket{}, false, nil
	}
	return entry.ticket, true, nil
}

func (s *MemoryStore) Delete(ctx context.Context, code string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.entries, code)
	return nil
}

// StartCleanup purges expired tickets every interval until ctx ends.
func (s *MemoryStore) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanupExpired()
		}
	}
}

func (s *MemoryStore) cleanupExpired() {
	logger := slog.With("component", "rejoin_store", "operation", "cleanup_expired")

	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	expired := 0
	for code, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, code)
			expired++
		}
	}

	if expired > 0 {
		logger.Debug("Cleaned up expired rejoin codes",
			"expired_count", expired,
			"remaining_count", len(s.entries))
	}
}
