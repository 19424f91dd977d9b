// Package agent turns one user message plus the captured state into a
// structured result. One generic agent serves every topic; the topic record
// supplies the prompt and field list, the completer supplies the model call.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/datakettle/dp-composer/internal/domain"
	"github.com/datakettle/dp-composer/internal/llm"
	"github.com/datakettle/dp-composer/internal/merge"
	"github.com/datakettle/dp-composer/internal/tokens"
	"github.com/datakettle/dp-composer/internal/topics"
)

// Config tunes context building and the completion call.
type Config struct {
	// Model names the completion model, used for token counting.
	Model string

	// Temperature for the completion call. Zero means provider default.
	Temperature float32

	// MaxTokens caps the reply. Zero means provider default.
	MaxTokens int

	// HistoryTurns is how many trailing history turns enter the context.
	HistoryTurns int

	// TurnMaxChars truncates each history turn in the context.
	TurnMaxChars int

	// TokenBudget is the ceiling for system prompt + context. Oldest turns
	// drop first when over budget. Zero disables the guard.
	TokenBudget int
}

// Defaults for zero-value Config fields.
const (
	DefaultHistoryTurns = 10
	DefaultTurnMaxChars = 100
)

func (c Config) withDefaults() Config {
	if c.HistoryTurns <= 0 {
		c.HistoryTurns = DefaultHistoryTurns
	}
	if c.TurnMaxChars <= 0 {
		c.TurnMaxChars = DefaultTurnMaxChars
	}
	return c
}

// Agent binds one topic to one completer.
type Agent struct {
	topic     topics.Topic
	completer llm.Completer
	counter   *tokens.Registry
	cfg       Config
	logger    *slog.Logger
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		a.logger = logger
	}
}

// WithCounter sets the token counter registry used by the budget guard.
func WithCounter(counter *tokens.Registry) Option {
	return func(a *Agent) {
		a.counter = counter
	}
}

// New creates an agent for one topic.
func New(topic topics.Topic, completer llm.Completer, cfg Config, opts ...Option) *Agent {
	a := &Agent{
		topic:     topic,
		completer: completer,
		cfg:       cfg.withDefaults(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.counter == nil {
		a.counter = tokens.NewRegistry()
	}
	return a
}

// Topic returns the topic this agent serves.
func (a *Agent) Topic() topics.Topic {
	return a.topic
}

// Invoke runs one turn: build context, call the completer, parse and
// validate the reply. It never mutates state and never returns an error —
// every failure collapses to a degraded result that keeps the conversation
// alive and the captured fields intact.
func (a *Agent) Invoke(ctx context.Context, state *domain.ConversationState, userMessage string) domain.AgentResult {
	system := a.systemPrompt()
	user := a.buildUser(state, userMessage, system)

	raw, err := a.completer.Complete(ctx, llm.CompletionRequest{
		System:      system,
		User:        user,
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
	})
	if err != nil {
		a.logger.Warn("completion failed",
			slog.String("topic", a.topic.Name),
			slog.String("session_id", state.SessionID),
			slog.Any("error", err))
		return a.degraded(state, err)
	}

	var result domain.AgentResult
	if err := json.Unmarshal([]byte(extractJSON(raw)), &result); err != nil {
		a.logger.Warn("reply is not valid json",
			slog.String("topic", a.topic.Name),
			slog.String("session_id", state.SessionID),
			slog.Any("error", err))
		return a.degraded(state, domain.ErrSchemaValidation(fmt.Sprintf("reply is not valid JSON: %v", err)))
	}
	result.Normalize()
	if err := result.Validate(); err != nil {
		a.logger.Warn("reply violates response contract",
			slog.String("topic", a.topic.Name),
			slog.String("session_id", state.SessionID),
			slog.Any("error", err))
		return a.degraded(state, domain.ErrSchemaValidation(err.Error()))
	}

	return result
}

// systemPrompt is the topic instructions plus the response contract.
func (a *Agent) systemPrompt() string {
	var sb strings.Builder
	sb.WriteString(a.topic.Instructions)
	sb.WriteString("\n\nRespond with a single JSON object and nothing else. It must match this schema:\n")
	sb.WriteString(topics.ResultSchema())
	return sb.String()
}

// buildUser assembles the user message: captured state, recent history, and
// the current message. When a token budget is set, the oldest history turns
// drop until the request fits.
func (a *Agent) buildUser(state *domain.ConversationState, userMessage, system string) string {
	recent := state.History
	if len(recent) > a.cfg.HistoryTurns {
		recent = recent[len(recent)-a.cfg.HistoryTurns:]
	}

	for start := 0; ; start++ {
		user := a.renderUser(state, recent[start:], userMessage)
		if a.cfg.TokenBudget <= 0 || start >= len(recent) {
			return user
		}
		if a.counter.CountText(a.cfg.Model, system+"\n"+user) <= a.cfg.TokenBudget {
			return user
		}
	}
}

func (a *Agent) renderUser(state *domain.ConversationState, recent []domain.Turn, userMessage string) string {
	var sb strings.Builder
	sb.WriteString("Conversation Context:\n")
	sb.WriteString(a.renderContext(state, recent))
	sb.WriteString("\n\nCurrent Message: ")
	sb.WriteString(userMessage)
	return sb.String()
}

// renderContext lists the truthy captured fields per namespace and the
// recent history window.
func (a *Agent) renderContext(state *domain.ConversationState, recent []domain.Turn) string {
	var parts []string

	if lines := fieldLines(state.DataProduct); len(lines) > 0 {
		parts = append(parts, "Current Data Product State:")
		parts = append(parts, lines...)
	}

	if lines := fieldLines(state.PolicyPack); len(lines) > 0 {
		if len(parts) > 0 {
			parts = append(parts, "")
		}
		parts = append(parts, "Current Policy Pack State:")
		parts = append(parts, lines...)
	}

	if len(recent) > 0 {
		if len(parts) > 0 {
			parts = append(parts, "")
		}
		parts = append(parts, "Recent Conversation History:")
		for _, turn := range recent {
			if turn.Content == "" {
				continue
			}
			parts = append(parts, fmt.Sprintf("- %s: %s", turn.Role, truncate(turn.Content, a.cfg.TurnMaxChars)))
		}
	}

	if len(parts) == 0 {
		return "No previous context available."
	}
	return strings.Join(parts, "\n")
}

// degraded is the recovery result: confidence zero, retry, no extraction,
// and a reply that shows the user nothing was lost.
func (a *Agent) degraded(state *domain.ConversationState, cause error) domain.AgentResult {
	var sb strings.Builder
	sb.WriteString("I ran into a problem processing that message. ")

	captured := fieldLines(namespaceView(state, a.topic.Namespace))
	if len(captured) > 0 {
		sb.WriteString("Here's what I have so far:\n")
		sb.WriteString(strings.Join(captured, "\n"))
		sb.WriteString("\n\nPlease continue providing the missing information.")
	} else if a.topic.Greeting != "" {
		sb.WriteString("Let's try again. ")
		sb.WriteString(a.topic.Greeting)
	} else {
		sb.WriteString("Please try again.")
	}

	return domain.AgentResult{
		Reply:         sb.String(),
		Confidence:    0,
		NextAction:    domain.ActionRetry,
		ExtractedData: map[string]any{},
		MissingFields: []string{},
		Metadata: map[string]string{
			"error":           cause.Error(),
			"state_preserved": "true",
		},
	}
}

// namespaceView reads a namespace without initializing it; Invoke must not
// mutate state.
func namespaceView(state *domain.ConversationState, name string) map[string]any {
	if name == domain.NamespacePolicyPack {
		return state.PolicyPack
	}
	return state.DataProduct
}

// fieldLines renders the truthy fields of a namespace as sorted "- k: v"
// lines. Sorted so prompts and degraded replies are stable across runs.
func fieldLines(namespace map[string]any) []string {
	keys := make([]string, 0, len(namespace))
	for k, v := range namespace {
		if merge.Truthy(v) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("- %s: %s", k, formatValue(namespace[k])))
	}
	return lines
}

// formatValue renders a captured value for prompt text. Strings pass
// through; everything else compacts to JSON.
func formatValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// extractJSON tolerates replies that wrap the JSON object in markdown fences
// or prose. It returns the outermost {...} span, or the input unchanged when
// none exists (the caller's unmarshal will fail and take the degraded path).
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return raw
	}
	return raw[start : end+1]
}
