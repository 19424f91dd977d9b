// Package runtime wires the composer's pieces together and owns their
// lifecycle: configuration, state store, completion client, topic registry,
// orchestrator, and the HTTP front-end.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/datakettle/dp-composer/internal/agent"
	"github.com/datakettle/dp-composer/internal/auth"
	"github.com/datakettle/dp-composer/internal/config"
	"github.com/datakettle/dp-composer/internal/domain"
	"github.com/datakettle/dp-composer/internal/llm"
	"github.com/datakettle/dp-composer/internal/metrics"
	"github.com/datakettle/dp-composer/internal/orchestrator"
	"github.com/datakettle/dp-composer/internal/server"
	"github.com/datakettle/dp-composer/internal/store"
	"github.com/datakettle/dp-composer/internal/telemetry"
	"github.com/datakettle/dp-composer/internal/topics"
)

const (
	// shutdownTimeout bounds the HTTP drain when Serve winds down.
	shutdownTimeout = 30 * time.Second

	// housekeepingInterval paces idle rate-limit bucket eviction.
	housekeepingInterval = time.Minute
)

// Composer is the main entry point for running the data product composer.
// It manages configuration, storage, the completion client, topic agents,
// and HTTP server lifecycle. Composer can be embedded in larger applications
// or run standalone via the CLI.
type Composer struct {
	// Dependencies (injected via options, wired from config otherwise)
	cfg        *config.Config
	configPath string
	store      store.Store
	completer  llm.Completer
	registry   *topics.Registry
	topicsDir  string
	collector  *metrics.Collector
	logger     *slog.Logger

	// Metrics registration, overridable for embedders that own a registry
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer

	// Internal state
	sessions       *store.Registry
	orch           *orchestrator.Orchestrator
	server         *server.Server
	watcher        *topics.Watcher
	tracerShutdown func(context.Context) error

	// Lifecycle management
	cancel context.CancelFunc
	mu     sync.Mutex
}

// New creates a Composer with the given options and wires every component.
// By default it loads config.yaml, opens the configured state store, and
// builds the configured provider's completion client.
func New(opts ...Option) (*Composer, error) {
	c := &Composer{
		registerer: prometheus.DefaultRegisterer,
		gatherer:   prometheus.DefaultGatherer,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}

	if c.cfg == nil {
		cfg, err := config.Load(c.configPath)
		if err != nil {
			return nil, err
		}
		c.cfg = cfg
	}

	if err := c.wire(); err != nil {
		return nil, err
	}

	return c, nil
}

// wire builds the component graph: store → completion client → topic
// registry → orchestrator → HTTP server. Injected dependencies are kept;
// everything else comes from config.
func (c *Composer) wire() error {
	if c.store == nil {
		st, err := OpenStore(c.cfg.Storage)
		if err != nil {
			return fmt.Errorf("open %s store: %w", c.cfg.Storage.Driver, err)
		}
		c.store = st
		c.logger.Debug("state store ready", slog.String("driver", c.cfg.Storage.Driver))
	}
	c.sessions = store.NewRegistry(c.store)

	if c.completer == nil {
		if c.cfg.Provider.APIKey == "" {
			return domain.ErrConfiguration(fmt.Sprintf(
				"no API key for provider %q", c.cfg.Provider.Name,
			)).WithCode(domain.ErrorCodeMissingCredential)
		}
		completer, err := llm.New(c.cfg.Provider)
		if err != nil {
			return err
		}
		c.completer = completer
		c.logger.Debug("completion client ready",
			slog.String("provider", c.cfg.Provider.Name),
			slog.String("model", c.cfg.Provider.Model))
	}

	if c.registry == nil {
		c.registry = topics.Default()
	}
	if c.topicsDir == "" {
		c.topicsDir = c.cfg.Topics.Dir
	}
	if c.topicsDir != "" {
		loaded, err := c.registry.LoadDir(c.topicsDir)
		if err != nil {
			return fmt.Errorf("load topic overrides: %w", err)
		}
		c.logger.Info("topic overrides loaded",
			slog.String("dir", c.topicsDir),
			slog.Int("count", len(loaded)))
	}

	router, err := orchestrator.NewRouter(c.cfg.Router.Mode, c.registry)
	if err != nil {
		return err
	}

	if c.collector == nil {
		c.collector = metrics.NewCollector(c.registerer)
	}

	if c.cfg.Telemetry.Enabled && c.tracerShutdown == nil {
		shutdown, err := telemetry.Init("dp-composer", c.logger)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		c.tracerShutdown = shutdown
	}

	c.orch = orchestrator.New(c.store, c.registry, c.completer,
		orchestrator.Config{
			Provider: c.cfg.Provider.Name,
			Agent: agent.Config{
				Model:        c.cfg.Provider.Model,
				Temperature:  c.cfg.Provider.Temperature,
				MaxTokens:    c.cfg.Provider.MaxTokens,
				HistoryTurns: c.cfg.Context.HistoryTurns,
				TurnMaxChars: c.cfg.Context.TurnMaxChars,
				TokenBudget:  c.cfg.Context.TokenBudget,
			},
		},
		orchestrator.WithLogger(c.logger),
		orchestrator.WithCollector(c.collector),
		orchestrator.WithRouter(router),
	)

	var authenticator *auth.Authenticator
	if c.cfg.Server.Auth.Enabled {
		authenticator = auth.NewAuthenticator(c.cfg.Server.Auth.APIKeys)
	}

	c.server = server.New(c.cfg, server.Deps{
		Orchestrator:  c.orch,
		Registry:      c.sessions,
		Store:         c.store,
		Authenticator: authenticator,
		Gatherer:      c.gatherer,
		Logger:        c.logger,
	})

	return nil
}

// Config returns the effective configuration.
func (c *Composer) Config() *config.Config {
	return c.cfg
}

// NewSession allocates a fresh session identifier.
func (c *Composer) NewSession() string {
	return c.sessions.NewSession()
}

// HandleTurn runs one conversation turn for a session.
func (c *Composer) HandleTurn(ctx context.Context, sessionID, message string) (*orchestrator.TurnResult, error) {
	return c.orch.HandleTurn(ctx, sessionID, message)
}

// Greeting returns the opening line for a session's current topic.
func (c *Composer) Greeting(ctx context.Context, sessionID string) (string, error) {
	return c.orch.Greeting(ctx, sessionID)
}

// Progress reports per-topic completion for a session.
func (c *Composer) Progress(ctx context.Context, sessionID string) (*orchestrator.Progress, error) {
	return c.orch.Progress(ctx, sessionID)
}

// Reset clears a session back to an empty record.
func (c *Composer) Reset(ctx context.Context, sessionID string) error {
	return c.orch.Reset(ctx, sessionID)
}

// State loads a session's full conversation record.
func (c *Composer) State(ctx context.Context, sessionID string) (*domain.ConversationState, error) {
	return c.store.Load(ctx, sessionID)
}

// Sessions lists the persisted sessions.
func (c *Composer) Sessions(ctx context.Context) ([]store.SessionInfo, error) {
	return c.sessions.Sessions(ctx)
}

// DeleteSession removes a session's backing record.
func (c *Composer) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	return c.sessions.Delete(ctx, sessionID)
}

// Serve runs the HTTP front-end until ctx is cancelled, a SIGINT/SIGTERM
// arrives, or the listener fails. In-flight requests get shutdownTimeout to
// drain. Topic-pack watching and rate-limit housekeeping run alongside the
// server and stop with it.
func (c *Composer) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	c.mu.Lock()
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	if c.cfg.Topics.Watch && c.topicsDir != "" {
		watcher, err := topics.NewWatcher(c.topicsDir, c.registry, c.logger)
		if err != nil {
			return fmt.Errorf("create topics watcher: %w", err)
		}
		if err := watcher.Watch(gctx, func(t topics.Topic) {
			c.logger.Info("topic updated", slog.String("topic", t.Name))
		}); err != nil {
			return fmt.Errorf("watch topics dir: %w", err)
		}
		c.mu.Lock()
		c.watcher = watcher
		c.mu.Unlock()
	}

	g.Go(func() error {
		return c.server.Start()
	})

	g.Go(func() error {
		<-gctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return c.server.Shutdown(drainCtx)
	})

	g.Go(func() error {
		c.housekeeping(gctx)
		return nil
	})

	c.logger.Info("composer started",
		slog.String("addr", c.cfg.Addr()),
		slog.String("provider", c.cfg.Provider.Name),
		slog.String("storage", c.cfg.Storage.Driver),
		slog.Int("topics", len(c.registry.Sequence())))

	return g.Wait()
}

// Shutdown stops serving if Serve is running and closes every resource.
// Safe to call after Serve returns, or without ever having served.
func (c *Composer) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	cancel := c.cancel
	watcher := c.watcher
	c.cancel = nil
	c.watcher = nil
	c.mu.Unlock()

	c.logger.Info("shutting down composer")

	if cancel != nil {
		cancel()
	}

	if c.server != nil {
		if err := c.server.Shutdown(ctx); err != nil {
			c.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
			return err
		}
	}

	if watcher != nil {
		if err := watcher.Close(); err != nil {
			c.logger.Error("failed to close topics watcher", slog.String("error", err.Error()))
		}
	}

	if c.store != nil {
		if err := c.store.Close(); err != nil {
			c.logger.Error("failed to close store", slog.String("error", err.Error()))
		}
	}

	if c.tracerShutdown != nil {
		if err := c.tracerShutdown(ctx); err != nil {
			c.logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
		c.tracerShutdown = nil
	}

	c.logger.Info("composer shutdown complete")
	return nil
}

// housekeeping evicts idle rate-limit buckets until ctx is cancelled. A
// no-op when rate limiting is off.
func (c *Composer) housekeeping(ctx context.Context) {
	limiter := c.server.Limiter()
	if limiter == nil {
		return
	}

	ticker := time.NewTicker(housekeepingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := limiter.EvictIdle(); n > 0 {
				c.logger.Debug("evicted idle rate-limit buckets", slog.Int("count", n))
			}
		}
	}
}
