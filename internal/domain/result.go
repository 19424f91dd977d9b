package domain

import "fmt"

// Next-action tokens the composer itself assigns. Topic prompts may emit
// their own (e.g. "provide_domain"); these two have fixed meaning.
const (
	ActionRetry    = "retry"
	ActionComplete = "complete"
)

// AgentResult is the normalized outcome of one agent invocation. It is
// ephemeral: the orchestrator folds ExtractedData into state and appends the
// reply to history, and the result itself is never persisted.
type AgentResult struct {
	Reply         string            `json:"reply"`
	Confidence    float64           `json:"confidence"`
	NextAction    string            `json:"next_action,omitempty"`
	ExtractedData map[string]any    `json:"extracted_data"`
	MissingFields []string          `json:"missing_fields"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Validate checks the response contract: a non-empty reply and a confidence
// inside [0,1]. A violation means the completion service went off-script and
// the caller must take the degraded path.
func (r *AgentResult) Validate() error {
	if r.Reply == "" {
		return fmt.Errorf("agent result has empty reply")
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("agent result confidence %v outside [0,1]", r.Confidence)
	}
	return nil
}

// Degraded reports whether this result came from the recovery path rather
// than a successful completion. The recovery path always marks its metadata.
func (r *AgentResult) Degraded() bool {
	return r.Metadata["state_preserved"] == "true"
}

// Normalize fills nil collections so callers can range and merge without
// nil checks.
func (r *AgentResult) Normalize() {
	if r.ExtractedData == nil {
		r.ExtractedData = map[string]any{}
	}
	if r.MissingFields == nil {
		r.MissingFields = []string{}
	}
}
