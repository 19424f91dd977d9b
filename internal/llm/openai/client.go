// Package openai is a minimal chat-completions client used for structured
// field extraction: one system prompt, one user message, JSON-object replies.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/datakettle/dp-composer/internal/domain"
)

const defaultBaseURL = "https://api.openai.com/v1"

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithUserAgent sets the User-Agent header sent upstream.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// Client is a custom HTTP client for the OpenAI chat completions API.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// NewClient creates a new OpenAI API client bound to one model.
func NewClient(apiKey, model string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultBaseURL,
		userAgent:  "dp-composer/1.0",
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CompletionRequest is one structured-extraction exchange.
type CompletionRequest struct {
	System      string
	User        string
	Temperature float32
	MaxTokens   int
}

// Complete sends one chat completion constrained to a JSON-object response
// and returns the raw reply content. API errors come back canonical.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	temperature := req.Temperature
	if temperature == 0 {
		temperature = 0.1
	}

	wire := &chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Temperature:    &temperature,
		MaxTokens:      req.MaxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", domain.ErrInference(fmt.Sprintf("openai request failed: %v", err)).WithProvider("openai")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.ErrInference(fmt.Sprintf("failed to read response: %v", err)).WithProvider("openai")
	}

	if resp.StatusCode != http.StatusOK {
		if apiErr, err := parseErrorResponse(respBody); err == nil && apiErr != nil {
			return "", apiErr.ToCanonical(resp.StatusCode)
		}
		return "", domain.ErrInference(fmt.Sprintf("API error (status %d): %s", resp.StatusCode, respBody)).
			WithStatusCode(resp.StatusCode).WithProvider("openai")
	}

	var result chatCompletionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", domain.ErrInference(fmt.Sprintf("failed to unmarshal response: %v", err)).WithProvider("openai")
	}
	if len(result.Choices) == 0 {
		return "", domain.ErrInference("response has no choices").WithProvider("openai")
	}

	return result.Choices[0].Message.Content, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", c.userAgent)
}
