package memory

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore keeps sessions in process memory. Used in tests and when no
// session file is configured.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Turn
}

// NewInMemoryStore creates an empty in-memory store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string][]Turn)}
}

func (s *InMemoryStore) Append(_ context.Context, userID string, turns ...Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range turns {
		if t.Timestamp.IsZero() {
			t.Timestamp = time.Now()
		}
		s.sessions[userID] = append(s.sessions[userID], t)
	}
	return nil
}

func (s *InMemoryStore) History(_ context.Context, userID string, limit int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := tail(s.sessions[userID], limit)
	out := make([]Turn, len(src))
	copy(out, src)
	return out, nil
}

func (s *InMemoryStore) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) Sessions(_ context.Context) ([]SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SessionInfo, 0, len(s.sessions))
	for id, turns := range s.sessions {
		if len(turns) == 0 {
			continue
		}
		out = append(out, SessionInfo{
			UserID:     id,
			Turns:      len(turns),
			LastActive: turns[len(turns)-1].Timestamp,
		})
	}
	return out, nil
}

func (s *InMemoryStore) Prune(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, turns := range s.sessions {
		kept := turns[:0]
		for _, t := range turns {
			if t.Timestamp.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, t)
		}
		if len(kept) == 0 {
			delete(s.sessions, id)
			continue
		}
		s.sessions[id] = kept
	}
	return removed, nil
}

func (s *InMemoryStore) Close() error { return nil }
