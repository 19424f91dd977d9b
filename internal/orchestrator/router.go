package orchestrator

import (
	"fmt"
	"strings"

	"github.com/datakettle/dp-composer/internal/topics"
)

// Router modes accepted by config.
const (
	ModeKeyword  = "keyword"
	ModeSequence = "sequence"
)

// Router selects the topic a message belongs to. current is the first
// incomplete topic in sequence order; routers fall back to it when the
// message carries no stronger signal.
type Router interface {
	Route(message, current string) string
}

// NewRouter builds the configured router.
func NewRouter(mode string, registry *topics.Registry) (Router, error) {
	switch mode {
	case ModeKeyword:
		return &KeywordRouter{registry: registry}, nil
	case ModeSequence:
		return &SequenceRouter{}, nil
	default:
		return nil, fmt.Errorf("unknown router mode %q", mode)
	}
}

// SequenceRouter always stays on the current topic: the interview advances
// strictly in sequence order.
type SequenceRouter struct{}

// Route returns the current topic unchanged.
func (r *SequenceRouter) Route(message, current string) string {
	return current
}

// KeywordRouter matches the message against each topic's keyword hints in
// sequence order. Hints are substrings ("name:", "sla:", "mask:"), so
// structured shorthand like "sla: 99.9" jumps straight to its topic even
// when an earlier topic is still incomplete.
type KeywordRouter struct {
	registry *topics.Registry
}

// Route returns the first topic with a keyword hit, or current when none hit.
func (r *KeywordRouter) Route(message, current string) string {
	lower := strings.ToLower(message)
	for _, name := range r.registry.Sequence() {
		topic, ok := r.registry.Get(name)
		if !ok {
			continue
		}
		for _, kw := range topic.Keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				return name
			}
		}
	}
	return current
}
