package openai

import (
	"encoding/json"
	"strings"

	"github.com/datakettle/dp-composer/internal/domain"
)

// chatCompletionRequest is the wire form of a chat completion request.
// Extraction calls are non-streaming and tool-free, so the shape stays small.
type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    *float32        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

// chatMessage is a message in the chat completion request/response.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
}

// responseFormat specifies the format of the response.
type responseFormat struct {
	Type string `json:"type"`
}

// chatCompletionResponse is the wire form of a chat completion response.
type chatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
	Usage   usage    `json:"usage,omitempty"`
}

// choice is a completion choice.
type choice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// usage reports token consumption.
type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// errorResponse is the error envelope the API returns on non-200 statuses.
type errorResponse struct {
	Error *apiError `json:"error"`
}

// apiError contains upstream error details.
type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}

func (e *apiError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// ToCanonical converts the upstream error to a canonical domain error.
func (e *apiError) ToCanonical(statusCode int) *domain.Error {
	errType, code := mapErrorType(e.Type, e.Code)
	return domain.NewError(errType, e.Message).
		WithCode(code).
		WithStatusCode(statusCode).
		WithProvider("openai")
}

// mapErrorType maps upstream error types/codes to domain error types.
func mapErrorType(errType, errCode string) (domain.ErrorType, domain.ErrorCode) {
	// Specific error codes take precedence over the broad type.
	switch errCode {
	case "rate_limit_exceeded":
		return domain.ErrorTypeRateLimit, domain.ErrorCodeRateLimitExceeded
	case "invalid_api_key":
		return domain.ErrorTypeAuthentication, domain.ErrorCodeInvalidAPIKey
	case "model_not_found":
		return domain.ErrorTypeNotFound, domain.ErrorCodeModelNotFound
	}

	switch strings.ToLower(errType) {
	case "invalid_request_error":
		return domain.ErrorTypeInvalidRequest, ""
	case "authentication_error":
		return domain.ErrorTypeAuthentication, domain.ErrorCodeInvalidAPIKey
	case "not_found":
		return domain.ErrorTypeNotFound, domain.ErrorCodeModelNotFound
	case "rate_limit_error", "rate_limit_exceeded":
		return domain.ErrorTypeRateLimit, domain.ErrorCodeRateLimitExceeded
	case "service_unavailable":
		return domain.ErrorTypeOverloaded, ""
	default:
		return domain.ErrorTypeServer, ""
	}
}

// parseErrorResponse attempts to parse an error envelope from JSON.
func parseErrorResponse(data []byte) (*apiError, error) {
	var errResp errorResponse
	if err := json.Unmarshal(data, &errResp); err != nil {
		return nil, err
	}
	if errResp.Error == nil {
		return nil, nil
	}
	return errResp.Error, nil
}
