// Package file implements the default state store: one JSON document per
// session in a flat directory, named conversation_state_<session_id>.json.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/datakettle/dp-composer/internal/domain"
	"github.com/datakettle/dp-composer/internal/store"
)

const (
	filePrefix = "conversation_state_"
	fileSuffix = ".json"
)

// Store persists conversation state as JSON files under a single directory.
type Store struct {
	dir string
	now func() time.Time
}

// New creates the directory if needed and returns a file-backed store.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage path cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir %s: %w", dir, err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

func (s *Store) path(sessionID string) string {
	return filepath.Join(s.dir, filePrefix+sessionID+fileSuffix)
}

// Load returns the persisted record for sessionID, or a fresh empty record
// when the file is missing, unreadable, malformed, or keyed to another id.
func (s *Store) Load(ctx context.Context, sessionID string) (*domain.ConversationState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !store.ValidSessionID(sessionID) {
		return domain.NewConversationState(sessionID), nil
	}

	raw, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		return domain.NewConversationState(sessionID), nil
	}

	state, ok := store.Decode(raw, sessionID)
	if !ok {
		return domain.NewConversationState(sessionID), nil
	}
	return state, nil
}

// Save writes the record atomically: marshal to a temp file in the same
// directory, then rename over the target.
func (s *Store) Save(ctx context.Context, state *domain.ConversationState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if state == nil || state.SessionID == "" {
		return domain.ErrEmptySessionID
	}
	if !store.ValidSessionID(state.SessionID) {
		return fmt.Errorf("session id %q not storable: %w", state.SessionID, domain.ErrEmptySessionID)
	}

	store.Stamp(state, s.now())

	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", state.SessionID, err)
	}

	tmp, err := os.CreateTemp(s.dir, filePrefix+"*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write session %s: %w", state.SessionID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(state.SessionID)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("persist session %s: %w", state.SessionID, err)
	}
	return nil
}

// List walks the directory and returns every valid record. Files that fail
// to decode or whose session_id does not match their name are deleted as a
// cleanup side effect and skipped.
func (s *Store) List(ctx context.Context) ([]store.SessionInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read storage dir %s: %w", s.dir, err)
	}

	infos := []store.SessionInfo{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		sessionID := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)

		raw, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			continue
		}
		state, ok := store.Decode(raw, sessionID)
		if !ok {
			os.Remove(filepath.Join(s.dir, name))
			continue
		}
		infos = append(infos, store.Info(state))
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].LastUpdated.After(infos[j].LastUpdated)
	})
	return infos, nil
}

// Delete removes the session file, reporting whether it existed.
func (s *Store) Delete(ctx context.Context, sessionID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !store.ValidSessionID(sessionID) {
		return false, nil
	}
	if err := os.Remove(s.path(sessionID)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return true, nil
}

// Close is a no-op for the file backend.
func (s *Store) Close() error {
	return nil
}
