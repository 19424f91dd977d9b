// Package memory is an in-memory implementation of the state store, used by
// tests and ephemeral runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/datakettle/dp-composer/internal/domain"
	"github.com/datakettle/dp-composer/internal/store"
)

// Store keeps conversation state in a map. Records are cloned on the way in
// and out so callers never share mutable state with the store.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*domain.ConversationState
	now      func() time.Time
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		sessions: make(map[string]*domain.ConversationState),
		now:      time.Now,
	}
}

func (s *Store) Load(ctx context.Context, sessionID string) (*domain.ConversationState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	state, exists := s.sessions[sessionID]
	if !exists {
		return domain.NewConversationState(sessionID), nil
	}
	return state.Clone(), nil
}

func (s *Store) Save(ctx context.Context, state *domain.ConversationState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if state == nil || state.SessionID == "" {
		return domain.ErrEmptySessionID
	}

	store.Stamp(state, s.now())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[state.SessionID] = state.Clone()
	return nil
}

func (s *Store) List(ctx context.Context) ([]store.SessionInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := []store.SessionInfo{}
	for _, state := range s.sessions {
		infos = append(infos, store.Info(state))
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].LastUpdated.After(infos[j].LastUpdated)
	})
	return infos, nil
}

func (s *Store) Delete(ctx context.Context, sessionID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sessionID]; !exists {
		return false, nil
	}
	delete(s.sessions, sessionID)
	return true, nil
}

func (s *Store) Close() error {
	return nil
}
