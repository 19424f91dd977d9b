package anthropic

import (
	"encoding/json"
	"fmt"

	"github.com/datakettle/dp-composer/internal/domain"
)

// messagesRequest is the wire form of a Messages API request. Extraction
// calls are non-streaming and tool-free, so the shape stays small.
type messagesRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Temperature *float32  `json:"temperature,omitempty"`
}

// message is one conversation turn.
type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// messagesResponse is the wire form of a Messages API response.
type messagesResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Model        string         `json:"model"`
	Content      []contentBlock `json:"content"`
	StopReason   string         `json:"stop_reason,omitempty"`
	StopSequence string         `json:"stop_sequence,omitempty"`
	Usage        usage          `json:"usage"`
}

// contentBlock is one block of response content.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// usage reports token consumption.
type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// errorResponse is the error envelope the API returns on non-200 statuses.
type errorResponse struct {
	Type  string    `json:"type"`
	Error *apiError `json:"error"`
}

// apiError contains upstream error details.
type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ToCanonical converts the upstream error to a canonical domain error.
func (e *apiError) ToCanonical(statusCode int) *domain.Error {
	return domain.NewError(mapErrorType(e.Type), e.Message).
		WithStatusCode(statusCode).
		WithProvider("anthropic")
}

// mapErrorType maps Anthropic error types to domain error types.
func mapErrorType(errType string) domain.ErrorType {
	switch errType {
	case "invalid_request_error":
		return domain.ErrorTypeInvalidRequest
	case "authentication_error", "permission_error":
		return domain.ErrorTypeAuthentication
	case "not_found_error":
		return domain.ErrorTypeNotFound
	case "rate_limit_error":
		return domain.ErrorTypeRateLimit
	case "overloaded_error":
		return domain.ErrorTypeOverloaded
	default:
		return domain.ErrorTypeServer
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
