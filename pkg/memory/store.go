// Package memory persists conversation history across research runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/wehubfusion/Minerva/pkg/state"
)

// Store loads and appends conversation history for a session. Save must
// create the session implicitly when it does not exist yet.
type Store interface {
	// Load returns up to limit most recent messages, oldest first.
	Load(ctx context.Context, sessionID string, limit int) ([]state.Message, error)

	// Save appends one message to the session's history.
	Save(ctx context.Context, sessionID string, msg state.Message) error
}

// InMemoryStore keeps history in process memory. It backs tests and runs
// where no NATS cluster is configured.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]state.Message
}

// NewInMemoryStore returns an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: map[string][]state.Message{}}
}

// Load returns the session's most recent messages, oldest first. A missing
// session yields an empty history, not an error.
func (s *InMemoryStore) Load(_ context.Context, sessionID string, limit int) ([]state.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.sessions[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := append([]state.Message(nil), msgs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Save appends the message, creating the session on first write.
func (s *InMemoryStore) Save(_ context.Context, sessionID string, msg state.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append(s.sessions[sessionID], msg)
	return nil
}

var _ Store = (*InMemoryStore)(nil)
