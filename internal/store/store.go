// Package store defines the persistence port for conversation state and the
// session registry built on top of it.
package store

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/datakettle/dp-composer/internal/domain"
)

// Store defines the interface for conversation state persistence.
type Store interface {
	// Load returns the record for sessionID. When no record exists, or the
	// stored one is malformed or carries a different session id, it returns
	// a fresh empty record. Only infrastructure faults return errors.
	Load(ctx context.Context, sessionID string) (*domain.ConversationState, error)

	// Save persists the record, stamping LastUpdated and setting CreatedAt
	// on first write. Returns domain.ErrEmptySessionID when the record has
	// no session id.
	Save(ctx context.Context, state *domain.ConversationState) error

	// List enumerates all valid persisted records. Corrupted records are
	// skipped, never surfaced as entries or errors.
	List(ctx context.Context) ([]SessionInfo, error)

	// Delete removes the backing record, reporting whether one existed.
	Delete(ctx context.Context, sessionID string) (bool, error)

	// Close closes the storage connection.
	Close() error
}

// SessionInfo is one List entry.
type SessionInfo struct {
	SessionID   string    `json:"session_id"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
	Summary     string    `json:"summary,omitempty"`
}

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// ValidSessionID reports whether id is safe to use as a storage key. The
// file backend derives file names from it, so the alphabet is restricted.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// Stamp applies the save-time timestamp rules: LastUpdated always moves,
// CreatedAt is set on first write only.
func Stamp(state *domain.ConversationState, now time.Time) {
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	state.LastUpdated = now
}

// Decode parses a persisted record and verifies it against the lookup key.
// ok is false for malformed payloads and session-id mismatches; both count
// as corruption and callers treat them as "not found".
func Decode(raw []byte, sessionID string) (*domain.ConversationState, bool) {
	var state domain.ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, false
	}
	if state.SessionID == "" || (sessionID != "" && state.SessionID != sessionID) {
		return nil, false
	}
	if state.DataProduct == nil {
		state.DataProduct = map[string]any{}
	}
	if state.PolicyPack == nil {
		state.PolicyPack = map[string]any{}
	}
	if state.History == nil {
		state.History = []domain.Turn{}
	}
	return &state, true
}

// Summarize derives the one-line session summary shown in listings: the
// product name once captured, otherwise the opening user message.
func Summarize(state *domain.ConversationState) string {
	if name, ok := state.DataProduct["name"].(string); ok && name != "" {
		return name
	}
	for _, turn := range state.History {
		if turn.Role == domain.RoleUser && turn.Content != "" {
			return truncate(strings.TrimSpace(turn.Content), 60)
		}
	}
	return ""
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// Info builds the List entry for a record.
func Info(state *domain.ConversationState) SessionInfo {
	return SessionInfo{
		SessionID:   state.SessionID,
		CreatedAt:   state.CreatedAt,
		LastUpdated: state.LastUpdated,
		Summary:     Summarize(state),
	}
}
