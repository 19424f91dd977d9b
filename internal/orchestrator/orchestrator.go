// Package orchestrator drives the interview state machine: route each
// message to a topic, invoke its agent, fold the result into state, and
// advance through the topic sequence as required fields fill up.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/datakettle/dp-composer/internal/agent"
	"github.com/datakettle/dp-composer/internal/domain"
	"github.com/datakettle/dp-composer/internal/llm"
	"github.com/datakettle/dp-composer/internal/merge"
	"github.com/datakettle/dp-composer/internal/metrics"
	"github.com/datakettle/dp-composer/internal/store"
	"github.com/datakettle/dp-composer/internal/tokens"
	"github.com/datakettle/dp-composer/internal/topics"
)

// Machine states reported by turns and progress.
const (
	StateNoSession   = "no_session"
	StateAwaiting    = "awaiting_topic_completion"
	StateAllComplete = "all_complete"
)

var tracer = otel.Tracer("dp-composer/orchestrator")

// Config tunes the orchestrator.
type Config struct {
	// Provider names the completion service, for metric labels.
	Provider string

	// Agent is passed through to every per-topic agent.
	Agent agent.Config
}

// TurnResult is what one handled turn reports back to the front-end.
type TurnResult struct {
	SessionID     string   `json:"session_id"`
	Topic         string   `json:"topic"`
	Reply         string   `json:"reply"`
	Confidence    float64  `json:"confidence"`
	NextAction    string   `json:"next_action,omitempty"`
	ChangedFields []string `json:"changed_fields"`
	MissingFields []string `json:"missing_fields"`
	Degraded      bool     `json:"degraded"`
	TopicComplete bool     `json:"topic_complete"`
	State         string   `json:"state"`
}

// TopicProgress reports one topic's completion.
type TopicProgress struct {
	Topic     string   `json:"topic"`
	Namespace string   `json:"namespace"`
	Required  []string `json:"required"`
	Captured  []string `json:"captured"`
	Missing   []string `json:"missing"`
	Complete  bool     `json:"complete"`
}

// Progress reports the whole interview's position.
type Progress struct {
	SessionID    string          `json:"session_id"`
	State        string          `json:"state"`
	CurrentTopic string          `json:"current_topic,omitempty"`
	Topics       []TopicProgress `json:"topics"`
}

// Orchestrator owns turn handling for all sessions.
type Orchestrator struct {
	store     store.Store
	registry  *topics.Registry
	completer llm.Completer
	router    Router
	counter   *tokens.Registry
	collector *metrics.Collector
	logger    *slog.Logger
	cfg       Config

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithCollector sets the metrics collector. Nil is fine.
func WithCollector(collector *metrics.Collector) Option {
	return func(o *Orchestrator) {
		o.collector = collector
	}
}

// WithCounter sets the token counter registry shared by agents.
func WithCounter(counter *tokens.Registry) Option {
	return func(o *Orchestrator) {
		o.counter = counter
	}
}

// WithRouter overrides the router.
func WithRouter(router Router) Option {
	return func(o *Orchestrator) {
		o.router = router
	}
}

// New creates an orchestrator. The default router is keyword mode.
func New(st store.Store, registry *topics.Registry, completer llm.Completer, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     st,
		registry:  registry,
		completer: completer,
		router:    &KeywordRouter{registry: registry},
		cfg:       cfg,
		logger:    slog.Default(),
		locks:     make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.counter == nil {
		o.counter = tokens.NewRegistry()
	}
	return o
}

// HandleTurn runs one full turn for a session. Turns for the same session
// are strictly sequential; the merge, history append, and save happen only
// after the completion call returns, so a cancelled call leaves the record
// exactly as last saved.
func (o *Orchestrator) HandleTurn(ctx context.Context, sessionID, text string) (*TurnResult, error) {
	if !store.ValidSessionID(sessionID) {
		return nil, domain.ErrInvalidRequest(fmt.Sprintf("invalid session id %q", sessionID))
	}
	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrInvalidRequest("message is empty")
	}

	unlock := o.lockSession(sessionID)
	defer unlock()

	ctx, span := tracer.Start(ctx, "orchestrator.HandleTurn")
	defer span.End()
	started := time.Now()

	state, err := o.store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	current := o.currentTopic(state)
	routed := o.router.Route(text, current.Name)
	topic, ok := o.registry.Get(routed)
	if !ok {
		topic = current
	}
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("topic", topic.Name),
	)

	ag := agent.New(topic, o.completer, o.cfg.Agent,
		agent.WithLogger(o.logger), agent.WithCounter(o.counter))
	result := ag.Invoke(ctx, state, text)
	degraded := result.Degraded()

	namespace := state.Namespace(topic.Namespace)
	changed := merge.Apply(namespace, result.ExtractedData)

	topicComplete := merge.Complete(namespace, topic.Required)
	if topicComplete && !degraded && topic.Completion != "" {
		result.Reply = topic.Completion
		result.NextAction = domain.ActionComplete
	}

	state.AppendTurn(domain.RoleUser, text)
	state.AppendTurn(domain.RoleAssistant, result.Reply)

	if err := o.store.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("save session %s: %w", sessionID, err)
	}

	machineState := o.machineState(state)
	status := metrics.StatusOK
	if degraded {
		status = metrics.StatusDegraded
		o.collector.RecordInferenceError(o.cfg.Provider)
	}
	duration := time.Since(started)
	o.collector.RecordTurn(topic.Name, status, duration)
	o.collector.RecordFieldsCaptured(topic.Name, len(changed))

	o.logger.Info("turn handled",
		slog.String("session_id", sessionID),
		slog.String("topic", topic.Name),
		slog.Float64("confidence", result.Confidence),
		slog.Any("changed_fields", changed),
		slog.Bool("degraded", degraded),
		slog.Bool("topic_complete", topicComplete),
		slog.String("state", machineState),
		slog.Duration("duration", duration))

	return &TurnResult{
		SessionID:     sessionID,
		Topic:         topic.Name,
		Reply:         result.Reply,
		Confidence:    result.Confidence,
		NextAction:    result.NextAction,
		ChangedFields: changed,
		MissingFields: merge.Missing(namespace, topic.Required),
		Degraded:      degraded,
		TopicComplete: topicComplete,
		State:         machineState,
	}, nil
}

// Greeting returns the opening line for a session: the active topic's
// greeting. Used by front-ends when a conversation starts.
func (o *Orchestrator) Greeting(ctx context.Context, sessionID string) (string, error) {
	state, err := o.store.Load(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("load session %s: %w", sessionID, err)
	}
	return o.currentTopic(state).Greeting, nil
}

// Progress reports per-topic completion and the machine state.
func (o *Orchestrator) Progress(ctx context.Context, sessionID string) (*Progress, error) {
	if !store.ValidSessionID(sessionID) {
		return nil, domain.ErrInvalidRequest(fmt.Sprintf("invalid session id %q", sessionID))
	}

	state, err := o.store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	report := &Progress{
		SessionID: sessionID,
		State:     o.machineState(state),
	}
	for _, t := range o.registry.All() {
		namespace := state.Namespace(t.Namespace)
		tp := TopicProgress{
			Topic:     t.Name,
			Namespace: t.Namespace,
			Required:  t.Required,
			Missing:   merge.Missing(namespace, t.Required),
			Complete:  merge.Complete(namespace, t.Required),
		}
		tp.Captured = captured(t.Required, tp.Missing)
		report.Topics = append(report.Topics, tp)
		if report.CurrentTopic == "" && !tp.Complete {
			report.CurrentTopic = t.Name
		}
	}
	return report, nil
}

// Reset reinitializes a session to empty. This is the only operation that
// discards history.
func (o *Orchestrator) Reset(ctx context.Context, sessionID string) error {
	if !store.ValidSessionID(sessionID) {
		return domain.ErrInvalidRequest(fmt.Sprintf("invalid session id %q", sessionID))
	}

	unlock := o.lockSession(sessionID)
	defer unlock()

	if err := o.store.Save(ctx, domain.NewConversationState(sessionID)); err != nil {
		return fmt.Errorf("reset session %s: %w", sessionID, err)
	}
	o.logger.Info("session reset", slog.String("session_id", sessionID))
	return nil
}

// currentTopic is the first topic in sequence order whose required fields
// are not yet complete. When everything is complete it returns the last
// topic, whose agent can still answer follow-ups.
func (o *Orchestrator) currentTopic(state *domain.ConversationState) topics.Topic {
	all := o.registry.All()
	for _, t := range all {
		if !merge.Complete(state.Namespace(t.Namespace), t.Required) {
			return t
		}
	}
	return all[len(all)-1]
}

// machineState derives the state-machine position from the record alone.
func (o *Orchestrator) machineState(state *domain.ConversationState) string {
	if len(state.History) == 0 && len(state.DataProduct) == 0 && len(state.PolicyPack) == 0 {
		return StateNoSession
	}
	for _, t := range o.registry.All() {
		if !merge.Complete(state.Namespace(t.Namespace), t.Required) {
			return StateAwaiting
		}
	}
	return StateAllComplete
}

// lockSession acquires the per-session mutex, creating it on first use.
func (o *Orchestrator) lockSession(sessionID string) func() {
	o.mu.Lock()
	lock, ok := o.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[sessionID] = lock
	}
	o.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// captured is required minus missing, preserving required order.
func captured(required, missing []string) []string {
	miss := make(map[string]struct{}, len(missing))
	for _, m := range missing {
		miss[m] = struct{}{}
	}
	out := make([]string, 0, len(required))
	for _, f := range required {
		if _, ok := miss[f]; !ok {
			out = append(out, f)
		}
	}
	return out
}
