// Package llm defines the completion-service boundary: one logical operation
// that turns a system prompt plus user content into a JSON reply string.
package llm

import "context"

// UserAgent identifies the composer to upstream APIs.
const UserAgent = "dp-composer/1.0"

// CompletionRequest is the single exchange shape every provider accepts.
type CompletionRequest struct {
	// System carries the topic instructions and response contract.
	System string

	// User carries the built conversation context plus the current message.
	User string

	// Temperature defaults to 0.1 when zero; extraction wants determinism.
	Temperature float32

	// MaxTokens caps the reply length. Zero means the provider default.
	MaxTokens int
}

// Completer issues exactly one request to a completion service and returns
// the raw reply text, expected to be a JSON object matching the agent result
// contract. Transport and API failures come back as canonical domain errors;
// validating the payload is the caller's job.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
