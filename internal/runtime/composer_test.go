package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/datakettle/dp-composer/internal/config"
	"github.com/datakettle/dp-composer/internal/domain"
	"github.com/datakettle/dp-composer/internal/llm"
	"github.com/datakettle/dp-composer/internal/store/memory"
)

// scriptedCompleter returns queued agent responses, then a generic one.
type scriptedCompleter struct {
	mu      sync.Mutex
	replies []string
}

func (c *scriptedCompleter) Complete(_ context.Context, _ llm.CompletionRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.replies) == 0 {
		return agentReply("Noted.", 0.5, nil), nil
	}
	next := c.replies[0]
	c.replies = c.replies[1:]
	return next, nil
}

func (c *scriptedCompleter) queue(replies ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = append(c.replies, replies...)
}

func agentReply(text string, confidence float64, extracted map[string]any) string {
	data, err := json.Marshal(map[string]any{
		"reply":          text,
		"confidence":     confidence,
		"extracted_data": extracted,
		"missing_fields": []string{},
	})
	if err != nil {
		panic(err)
	}
	return string(data)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Provider.Name = config.ProviderOpenAI
	cfg.Provider.Model = "gpt-4o-mini"
	cfg.Provider.APIKey = "test-key"
	cfg.Storage.Driver = "memory"
	cfg.Router.Mode = "keyword"
	return cfg
}

func newTestComposer(t *testing.T, mutate func(*config.Config)) (*Composer, *scriptedCompleter) {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}

	completer := &scriptedCompleter{}
	comp, err := New(
		WithConfig(cfg),
		WithStore(memory.New()),
		WithCompleter(completer),
		WithMetricsRegistry(prometheus.NewRegistry()),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return comp, completer
}

func TestComposer_New_MissingCredential(t *testing.T) {
	cfg := testConfig()
	cfg.Provider.APIKey = ""

	_, err := New(
		WithConfig(cfg),
		WithStore(memory.New()),
		WithMetricsRegistry(prometheus.NewRegistry()),
	)
	if err == nil {
		t.Fatal("expected error without an API key")
	}

	var derr *domain.Error
	if !errors.As(err, &derr) {
		t.Fatalf("expected domain error, got %T: %v", err, err)
	}
	if derr.Type != domain.ErrorTypeConfiguration {
		t.Errorf("error type = %q, want %q", derr.Type, domain.ErrorTypeConfiguration)
	}
}

func TestComposer_New_UnknownStorageDriver(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Driver = "etcd"

	_, err := New(
		WithConfig(cfg),
		WithCompleter(&scriptedCompleter{}),
		WithMetricsRegistry(prometheus.NewRegistry()),
	)
	if err == nil {
		t.Fatal("expected error for unknown storage driver")
	}
	if !strings.Contains(err.Error(), "etcd") {
		t.Errorf("error %q does not name the driver", err)
	}
}

func TestComposer_New_UnknownRouterMode(t *testing.T) {
	cfg := testConfig()
	cfg.Router.Mode = "embedding"

	_, err := New(
		WithConfig(cfg),
		WithStore(memory.New()),
		WithCompleter(&scriptedCompleter{}),
		WithMetricsRegistry(prometheus.NewRegistry()),
	)
	if err == nil {
		t.Fatal("expected error for unknown router mode")
	}
}

func TestComposer_New_NilOptionValues(t *testing.T) {
	if _, err := New(WithStore(nil)); err == nil {
		t.Error("expected error for nil store")
	}
	if _, err := New(WithCompleter(nil)); err == nil {
		t.Error("expected error for nil completer")
	}
	if _, err := New(WithConfig(nil)); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestComposer_TurnFacade(t *testing.T) {
	comp, completer := newTestComposer(t, nil)
	ctx := context.Background()

	id := comp.NewSession()
	if id == "" {
		t.Fatal("NewSession returned empty id")
	}

	completer.queue(agentReply("Named.", 0.9, map[string]any{"name": "churn_scores"}))

	result, err := comp.HandleTurn(ctx, id, "call it churn_scores")
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if result.Reply != "Named." {
		t.Errorf("reply = %q, want %q", result.Reply, "Named.")
	}

	progress, err := comp.Progress(ctx, id)
	if err != nil {
		t.Fatalf("Progress failed: %v", err)
	}
	if progress.SessionID != id {
		t.Errorf("progress session = %q, want %q", progress.SessionID, id)
	}

	state, err := comp.State(ctx, id)
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}
	if got := state.DataProduct["name"]; got != "churn_scores" {
		t.Errorf("captured name = %v, want churn_scores", got)
	}

	sessions, err := comp.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(sessions))
	}

	if err := comp.Reset(ctx, id); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	state, err = comp.State(ctx, id)
	if err != nil {
		t.Fatalf("State after reset failed: %v", err)
	}
	if len(state.DataProduct) != 0 {
		t.Errorf("data product not cleared by reset: %v", state.DataProduct)
	}

	deleted, err := comp.DeleteSession(ctx, id)
	if err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if !deleted {
		t.Error("DeleteSession reported no record")
	}
}

func TestComposer_Greeting(t *testing.T) {
	comp, _ := newTestComposer(t, nil)

	greeting, err := comp.Greeting(context.Background(), comp.NewSession())
	if err != nil {
		t.Fatalf("Greeting failed: %v", err)
	}
	if greeting == "" {
		t.Error("expected a non-empty greeting")
	}
}

func TestComposer_TopicOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	override := `
name: scoping
greeting: "Welcome to the scoping interview."
`
	if err := os.WriteFile(filepath.Join(tmpDir, "scoping.yaml"), []byte(override), 0o644); err != nil {
		t.Fatal(err)
	}

	comp, _ := newTestComposer(t, func(cfg *config.Config) {
		cfg.Topics.Dir = tmpDir
	})

	greeting, err := comp.Greeting(context.Background(), comp.NewSession())
	if err != nil {
		t.Fatalf("Greeting failed: %v", err)
	}
	if greeting != "Welcome to the scoping interview." {
		t.Errorf("greeting = %q, want the override", greeting)
	}
}

func TestComposer_TopicOverrides_BadDir(t *testing.T) {
	cfg := testConfig()
	cfg.Topics.Dir = filepath.Join(t.TempDir(), "missing")

	_, err := New(
		WithConfig(cfg),
		WithStore(memory.New()),
		WithCompleter(&scriptedCompleter{}),
		WithMetricsRegistry(prometheus.NewRegistry()),
	)
	if err == nil {
		t.Fatal("expected error for unreadable topics dir")
	}
}

func TestComposer_OpenStore(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name string
		cfg  config.StorageConfig
	}{
		{"memory", config.StorageConfig{Driver: "memory"}},
		{"file", config.StorageConfig{Driver: "file", Path: filepath.Join(tmpDir, "sessions")}},
		{"sqlite", config.StorageConfig{Driver: "sqlite", DSN: filepath.Join(tmpDir, "test.db")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := OpenStore(tt.cfg)
			if err != nil {
				t.Fatalf("OpenStore(%s) failed: %v", tt.cfg.Driver, err)
			}
			if err := st.Close(); err != nil {
				t.Errorf("Close failed: %v", err)
			}
		})
	}

	if _, err := OpenStore(config.StorageConfig{Driver: "cassandra"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestComposer_ServeAndShutdown(t *testing.T) {
	comp, _ := newTestComposer(t, nil)

	served := make(chan error, 1)
	go func() {
		served <- comp.Serve(context.Background())
	}()

	// Give the listener time to come up.
	time.Sleep(100 * time.Millisecond)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := comp.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("Serve returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}

func TestComposer_ShutdownWithoutServe(t *testing.T) {
	comp, _ := newTestComposer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := comp.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}
