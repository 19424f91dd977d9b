// Package domain defines the conversation state model and canonical error
// types shared by every layer of the composer.
package domain

import (
	"encoding/json"
	"time"
)

// Turn roles. History keeps exactly these two.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// State namespaces that field merges target.
const (
	NamespaceDataProduct = "data_product"
	NamespacePolicyPack  = "policy_pack"
)

// Turn is one history entry. Insertion order is chronological and
// append-only; only a full reset discards turns.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConversationState is the sole persisted entity: everything captured so far
// for one interview session. SessionID is immutable once assigned and must
// match the key the record is stored under.
type ConversationState struct {
	SessionID   string         `json:"session_id"`
	DataProduct map[string]any `json:"data_product"`
	PolicyPack  map[string]any `json:"policy_pack"`
	History     []Turn         `json:"history"`
	CreatedAt   time.Time      `json:"created_at,omitzero"`
	LastUpdated time.Time      `json:"last_updated,omitzero"`
}

// NewConversationState returns an empty record for the given session.
func NewConversationState(sessionID string) *ConversationState {
	return &ConversationState{
		SessionID:   sessionID,
		DataProduct: map[string]any{},
		PolicyPack:  map[string]any{},
		History:     []Turn{},
	}
}

// Namespace returns the mutable field map for the given namespace name,
// initializing it when nil. Unknown names fall back to the data product
// namespace so a misconfigured topic can never write into a detached map.
func (s *ConversationState) Namespace(name string) map[string]any {
	switch name {
	case NamespacePolicyPack:
		if s.PolicyPack == nil {
			s.PolicyPack = map[string]any{}
		}
		return s.PolicyPack
	default:
		if s.DataProduct == nil {
			s.DataProduct = map[string]any{}
		}
		return s.DataProduct
	}
}

// AppendTurn appends one history entry.
func (s *ConversationState) AppendTurn(role, content string) {
	s.History = append(s.History, Turn{Role: role, Content: content})
}

// Clone returns a deep copy. State values are JSON-shaped by construction,
// so a marshal round trip copies them faithfully.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		// State only ever holds JSON-decoded values; this cannot fail.
		panic("domain: conversation state not serializable: " + err.Error())
	}
	var out ConversationState
	if err := json.Unmarshal(raw, &out); err != nil {
		panic("domain: conversation state round trip failed: " + err.Error())
	}
	if out.DataProduct == nil {
		out.DataProduct = map[string]any{}
	}
	if out.PolicyPack == nil {
		out.PolicyPack = map[string]any{}
	}
	if out.History == nil {
		out.History = []Turn{}
	}
	return &out
}
