package tokens

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// OpenAICounter counts tokens for OpenAI chat models with tiktoken. Exact
// counts matter most here: openai is the default provider, so this counter
// decides how much interview history survives the budget trim.
type OpenAICounter struct {
	matcher *ModelMatcher

	mu     sync.RWMutex
	codecs map[tokenizer.Encoding]tokenizer.Codec
}

// NewOpenAICounter creates a counter for the gpt- and o-series chat models.
func NewOpenAICounter() *OpenAICounter {
	return &OpenAICounter{
		matcher: NewModelMatcher(
			[]string{"gpt-", "chatgpt-", "o1", "o3", "o4"},
			nil,
		),
		codecs: make(map[tokenizer.Encoding]tokenizer.Codec),
	}
}

// CountText counts the tokens in text under the model's encoding.
func (c *OpenAICounter) CountText(model, text string) (int, error) {
	codec, err := c.codec(model)
	if err != nil {
		return 0, err
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return 0, fmt.Errorf("encode text for %s: %w", model, err)
	}
	return len(ids), nil
}

// SupportsModel reports whether the model is an OpenAI chat model.
func (c *OpenAICounter) SupportsModel(model string) bool {
	return c.matcher.Matches(strings.ToLower(model))
}

// codec resolves the tokenizer for a model. tiktoken knows current models by
// name; dated snapshots and models newer than the library fall back to the
// family encoding, cached because building an encoding is expensive.
func (c *OpenAICounter) codec(model string) (tokenizer.Codec, error) {
	name := strings.ToLower(model)

	if codec, err := tokenizer.ForModel(tokenizer.Model(name)); err == nil {
		return codec, nil
	}

	enc := familyEncoding(name)

	c.mu.RLock()
	cached, ok := c.codecs[enc]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	codec, err := tokenizer.Get(enc)
	if err != nil {
		return nil, fmt.Errorf("load %s encoding: %w", enc, err)
	}

	c.mu.Lock()
	c.codecs[enc] = codec
	c.mu.Unlock()

	return codec, nil
}

// familyEncoding maps a chat model to its token encoding. gpt-4 and gpt-3.5
// use cl100k_base; everything from gpt-4o onward, o-series included, uses
// o200k_base. Unrecognized models are assumed new rather than old.
func familyEncoding(model string) tokenizer.Encoding {
	switch {
	case model == "gpt-4", strings.HasPrefix(model, "gpt-4-"),
		strings.HasPrefix(model, "gpt-3.5"):
		return tokenizer.Cl100kBase
	default:
		return tokenizer.O200kBase
	}
}
