package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"

	"github.com/datakettle/dp-composer/internal/domain"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	s, err := New(Config{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return mr, s
}

func TestRedisStore_RoundTrip(t *testing.T) {
	_, s := setupTestRedis(t)
	ctx := context.Background()

	state := domain.NewConversationState("sess-1")
	state.DataProduct["name"] = "customer360"
	state.AppendTurn(domain.RoleUser, "hello")
	state.AppendTurn(domain.RoleAssistant, "hi")

	if err := s.Save(ctx, state); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := s.Load(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(state, loaded); diff != "" {
		t.Errorf("round trip mismatch (-saved +loaded):\n%s", diff)
	}
}

func TestRedisStore_LoadMissingReturnsFresh(t *testing.T) {
	_, s := setupTestRedis(t)

	state, err := s.Load(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if state.SessionID != "ghost" || len(state.History) != 0 {
		t.Errorf("fresh state wrong: %+v", state)
	}
}

func TestRedisStore_SaveEmptySessionID(t *testing.T) {
	_, s := setupTestRedis(t)

	if err := s.Save(context.Background(), domain.NewConversationState("")); err != domain.ErrEmptySessionID {
		t.Errorf("Save() error = %v, want %v", err, domain.ErrEmptySessionID)
	}
}

func TestRedisStore_CorruptionIsolation(t *testing.T) {
	mr, s := setupTestRedis(t)
	ctx := context.Background()

	mr.Set(key("sess-1"), `{"session_id":"other","data_product":{"name":"stolen"}}`)

	state, err := s.Load(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if state.SessionID != "sess-1" || len(state.DataProduct) != 0 {
		t.Errorf("mismatched record leaked content: %+v", state)
	}
}

func TestRedisStore_ListSkipsCorrupted(t *testing.T) {
	mr, s := setupTestRedis(t)
	ctx := context.Background()

	for _, id := range []string{"good-1", "good-2"} {
		if err := s.Save(ctx, domain.NewConversationState(id)); err != nil {
			t.Fatalf("Save(%s) error = %v", id, err)
		}
	}
	mr.Set(key("bad-1"), `{"session_id":"other"}`)

	infos, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("List() count = %d, want 2 (%+v)", len(infos), infos)
	}

	if mr.Exists(key("bad-1")) {
		t.Error("corrupted key still present after List()")
	}
}

func TestRedisStore_Delete(t *testing.T) {
	_, s := setupTestRedis(t)
	ctx := context.Background()

	if err := s.Save(ctx, domain.NewConversationState("sess-1")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	existed, err := s.Delete(ctx, "sess-1")
	if err != nil || !existed {
		t.Fatalf("Delete() = %v, %v, want true, nil", existed, err)
	}

	existed, err = s.Delete(ctx, "sess-1")
	if err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}
	if existed {
		t.Error("second Delete() existed = true, want false")
	}
}

func TestRedisStore_TimestampRules(t *testing.T) {
	_, s := setupTestRedis(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	state := domain.NewConversationState("sess-1")
	if err := s.Save(ctx, state); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	s.now = func() time.Time { return base.Add(time.Hour) }
	loaded, _ := s.Load(ctx, "sess-1")
	if err := s.Save(ctx, loaded); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	final, _ := s.Load(ctx, "sess-1")
	if !final.CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v, want %v", final.CreatedAt, base)
	}
	if !final.LastUpdated.Equal(base.Add(time.Hour)) {
		t.Errorf("LastUpdated = %v, want %v", final.LastUpdated, base.Add(time.Hour))
	}
}
