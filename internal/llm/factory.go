package llm

import (
	"context"
	"fmt"

	"github.com/datakettle/dp-composer/internal/config"
	"github.com/datakettle/dp-composer/internal/llm/anthropic"
	"github.com/datakettle/dp-composer/internal/llm/openai"
)

// New builds the configured provider's completer. Unknown names are a
// configuration error; the caller should have validated already.
func New(cfg config.ProviderConfig) (Completer, error) {
	switch cfg.Name {
	case config.ProviderOpenAI:
		opts := []openai.ClientOption{openai.WithUserAgent(UserAgent)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openaiCompleter{openai.NewClient(cfg.APIKey, cfg.Model, opts...)}, nil

	case config.ProviderAnthropic:
		opts := []anthropic.ClientOption{anthropic.WithUserAgent(UserAgent)}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		return anthropicCompleter{anthropic.NewClient(cfg.APIKey, cfg.Model, opts...)}, nil

	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Name)
	}
}

// The wire clients carry their own request types so they stay importable on
// their own; these adapters convert at the port boundary.

type openaiCompleter struct {
	client *openai.Client
}

func (a openaiCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	return a.client.Complete(ctx, openai.CompletionRequest(req))
}

type anthropicCompleter struct {
	client *anthropic.Client
}

func (a anthropicCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	return a.client.Complete(ctx, anthropic.CompletionRequest(req))
}
