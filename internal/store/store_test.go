package store

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/datakettle/dp-composer/internal/domain"
)

func TestValidSessionID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"abc-123", true},
		{"A.b_C-9", true},
		{uuid.NewString(), true},
		{"", false},
		{"has space", false},
		{"slash/attack", false},
		{"dot./../escape", false},
		{strings.Repeat("x", 128), true},
		{strings.Repeat("x", 129), false},
	}

	for _, tt := range tests {
		if got := ValidSessionID(tt.id); got != tt.want {
			t.Errorf("ValidSessionID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestStamp(t *testing.T) {
	state := domain.NewConversationState("s1")
	first := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	Stamp(state, first)
	if !state.CreatedAt.Equal(first) {
		t.Errorf("CreatedAt after first stamp = %v, want %v", state.CreatedAt, first)
	}
	if !state.LastUpdated.Equal(first) {
		t.Errorf("LastUpdated after first stamp = %v, want %v", state.LastUpdated, first)
	}

	Stamp(state, second)
	if !state.CreatedAt.Equal(first) {
		t.Errorf("CreatedAt moved on second stamp: %v", state.CreatedAt)
	}
	if !state.LastUpdated.Equal(second) {
		t.Errorf("LastUpdated after second stamp = %v, want %v", state.LastUpdated, second)
	}
}

func TestDecode(t *testing.T) {
	good, _ := json.Marshal(domain.NewConversationState("s1"))

	if _, ok := Decode([]byte("{not json"), "s1"); ok {
		t.Error("malformed payload decoded as valid")
	}
	if _, ok := Decode(good, "someone-else"); ok {
		t.Error("session-id mismatch decoded as valid")
	}
	if _, ok := Decode([]byte(`{"history":[]}`), "s1"); ok {
		t.Error("record without session id decoded as valid")
	}

	state, ok := Decode(good, "s1")
	if !ok {
		t.Fatal("valid record rejected")
	}
	if state.SessionID != "s1" {
		t.Errorf("SessionID = %q, want s1", state.SessionID)
	}
}

func TestDecodeNormalizesNilCollections(t *testing.T) {
	raw := []byte(`{"session_id":"s1"}`)

	state, ok := Decode(raw, "s1")
	if !ok {
		t.Fatal("minimal record rejected")
	}
	if state.DataProduct == nil || state.PolicyPack == nil || state.History == nil {
		t.Error("expected nil collections to be initialized")
	}
}

func TestSummarize(t *testing.T) {
	named := domain.NewConversationState("s1")
	named.DataProduct["name"] = "churn_scores"
	named.History = append(named.History, domain.Turn{Role: domain.RoleUser, Content: "call it churn_scores"})
	if got := Summarize(named); got != "churn_scores" {
		t.Errorf("Summarize with name = %q, want churn_scores", got)
	}

	unnamed := domain.NewConversationState("s2")
	unnamed.History = append(unnamed.History,
		domain.Turn{Role: domain.RoleAssistant, Content: "What should it be called?"},
		domain.Turn{Role: domain.RoleUser, Content: "  still thinking about the name  "},
	)
	if got := Summarize(unnamed); got != "still thinking about the name" {
		t.Errorf("Summarize fallback = %q, want first user turn", got)
	}

	long := domain.NewConversationState("s3")
	long.History = append(long.History, domain.Turn{Role: domain.RoleUser, Content: strings.Repeat("a", 80)})
	if got := Summarize(long); got != strings.Repeat("a", 60)+"..." {
		t.Errorf("Summarize did not truncate: %q", got)
	}

	if got := Summarize(domain.NewConversationState("s4")); got != "" {
		t.Errorf("Summarize of empty state = %q, want empty", got)
	}
}

// trackingStore records delegation so registry tests need no real backend.
type trackingStore struct {
	listed  bool
	deleted string
}

func (s *trackingStore) Load(ctx context.Context, id string) (*domain.ConversationState, error) {
	return domain.NewConversationState(id), nil
}

func (s *trackingStore) Save(ctx context.Context, state *domain.ConversationState) error {
	return nil
}

func (s *trackingStore) List(ctx context.Context) ([]SessionInfo, error) {
	s.listed = true
	return []SessionInfo{{SessionID: "s1"}}, nil
}

func (s *trackingStore) Delete(ctx context.Context, id string) (bool, error) {
	s.deleted = id
	return true, nil
}

func (s *trackingStore) Close() error { return nil }

func TestRegistryNewSessionAllocatesUniqueUUIDs(t *testing.T) {
	r := NewRegistry(&trackingStore{})

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id := r.NewSession()
		if _, err := uuid.Parse(id); err != nil {
			t.Fatalf("NewSession() = %q, not a UUID: %v", id, err)
		}
		if !ValidSessionID(id) {
			t.Fatalf("NewSession() = %q fails the storage-key pattern", id)
		}
		if seen[id] {
			t.Fatalf("NewSession() repeated %q", id)
		}
		seen[id] = true
	}
}

func TestRegistryDelegatesToStore(t *testing.T) {
	ts := &trackingStore{}
	r := NewRegistry(ts)

	infos, err := r.Sessions(context.Background())
	if err != nil {
		t.Fatalf("Sessions returned error: %v", err)
	}
	if !ts.listed || len(infos) != 1 {
		t.Errorf("expected one listing delegated to the store, got %d (listed=%v)", len(infos), ts.listed)
	}

	existed, err := r.Delete(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if !existed || ts.deleted != "s1" {
		t.Errorf("expected delete of s1 delegated to the store, got %q", ts.deleted)
	}
}
