// Package anthropic is a minimal Messages API client used for structured
// field extraction: one system prompt, one user message, text replies.
package anthropic

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

const (
	defaultBaseURL   = "https://api.anthropic.com"
	defaultVersion   = "2023-06-01"
	defaultMaxTokens = 1024
)

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

// WithVersion sets the API version header.
func WithVersion(version string) ClientOption {
	return func(c *Client) {
		c.version = version
	}
}

// WithUserAgent sets the User-Agent header sent upstream.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// Client is a custom HTTP client for the Anthropic Messages API.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	version    string
	userAgent  string
	httpClient *http.Client
}

// NewClient creates a new Anthropic API client bound to one model.
func NewClient(apiKey, model string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultBaseURL,
		version:    defaultVersion,
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

// Complete sends one messages request and returns the concatenated text
// content. API errors come back canonical.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = 0.1
	}

	wire := &messagesRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    req.System,
		Messages: []message{
			{Role: "user", Content: req.User},
		},
		Temperature: &temperature,
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", domain.ErrInference(fmt.Sprintf("anthropic request failed: %v", err)).WithProvider("anthropic")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.ErrInference(fmt.Sprintf("failed to read response: %v", err)).WithProvider("anthropic")
	}

	if resp.StatusCode != http.StatusOK {
		if apiErr, err := parseErrorResponse(respBody); err == nil && apiErr != nil {
			return "", apiErr.ToCanonical(resp.StatusCode)
		}
		return "", domain.ErrInference(fmt.Sprintf("API error (status %d): %s", resp.StatusCode, respBody)).
			WithStatusCode(resp.StatusCode).WithProvider("anthropic")
	}

	var result messagesResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", domain.ErrInference(fmt.Sprintf("failed to unmarshal response: %v", err)).WithProvider("anthropic")
	}

	var sb strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", domain.ErrInference("response has no text content").WithProvider("anthropic")
	}

	return sb.String(), nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", c.version)
	req.Header.Set("User-Agent", c.userAgent)
}
