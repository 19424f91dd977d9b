// Package tokens provides token counting for context budgeting. Counts feed
// a synchronous trim loop that runs before every completion request, so every
// counter here works locally without network calls.
package tokens

import "strings"

// Counter counts tokens in plain text for the models it supports.
type Counter interface {
	// CountText returns the token count of text under the model's encoding.
	CountText(model, text string) (int, error)

	// SupportsModel reports whether this counter handles the model.
	SupportsModel(model string) bool
}

// Registry picks the right counter for a model, with an estimator fallback
// for models that have no exact tokenizer (claude-* included).
type Registry struct {
	counters []Counter
	fallback Counter
}

// NewRegistry creates a registry with tiktoken for OpenAI-family models, a
// claude-tuned approximation for Anthropic models, and a character-ratio
// estimator for everything else.
func NewRegistry() *Registry {
	r := &Registry{fallback: NewEstimator()}
	r.Register(NewOpenAICounter())
	r.Register(NewAnthropicCounter())
	return r
}

// Register adds a counter to the registry.
func (r *Registry) Register(counter Counter) {
	r.counters = append(r.counters, counter)
}

// SetFallback sets the counter used when no registered counter matches.
func (r *Registry) SetFallback(counter Counter) {
	r.fallback = counter
}

// CountText counts tokens using the first counter that supports the model.
// A counter failure degrades to the fallback rather than erroring: budget
// enforcement prefers an estimate over no trim at all.
func (r *Registry) CountText(model, text string) int {
	for _, counter := range r.counters {
		if !counter.SupportsModel(model) {
			continue
		}
		n, err := counter.CountText(model, text)
		if err != nil {
			break
		}
		return n
	}
	n, _ := r.fallback.CountText(model, text)
	return n
}

// Estimator estimates token counts from character length. It is the fallback
// for models without a local tokenizer.
type Estimator struct {
	// CharsPerToken is the average characters per token (default: 4)
	CharsPerToken float64
}

// NewEstimator creates a new token estimator.
func NewEstimator() *Estimator {
	return &Estimator{CharsPerToken: 4.0}
}

// CountText estimates the token count of text.
func (e *Estimator) CountText(model, text string) (int, error) {
	return int(float64(len(text)) / e.CharsPerToken), nil
}

// SupportsModel returns true - the estimator supports all models.
func (e *Estimator) SupportsModel(model string) bool {
	return true
}

// ModelMatcher helps match model names to provider patterns.
type ModelMatcher struct {
	prefixes []string
	exact    []string
}

// NewModelMatcher creates a new model matcher.
func NewModelMatcher(prefixes, exact []string) *ModelMatcher {
	return &ModelMatcher{
		prefixes: prefixes,
		exact:    exact,
	}
}

// Matches returns true if the model matches any pattern.
func (m *ModelMatcher) Matches(model string) bool {
	for _, e := range m.exact {
		if model == e {
			return true
		}
	}
	for _, p := range m.prefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}
