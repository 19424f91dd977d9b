package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorString(t *testing.T) {
	e := NewError(ErrorTypeInference, "upstream timed out")
	if got, want := e.Error(), "inference: upstream timed out"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	e = e.WithCode(ErrorCodeSchemaValidation)
	if got, want := e.Error(), "inference (schema_validation_failed): upstream timed out"; got != want {
		t.Errorf("Error() with code = %q, want %q", got, want)
	}
}

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		errType ErrorType
		want    int
	}{
		{ErrorTypeInvalidRequest, http.StatusBadRequest},
		{ErrorTypeAuthentication, http.StatusUnauthorized},
		{ErrorTypeNotFound, http.StatusNotFound},
		{ErrorTypeRateLimit, http.StatusTooManyRequests},
		{ErrorTypeOverloaded, http.StatusServiceUnavailable},
		{ErrorTypeInference, http.StatusBadGateway},
		{ErrorTypeServer, http.StatusInternalServerError},
		{ErrorTypeConfiguration, http.StatusInternalServerError},
		{ErrorTypeCorruption, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := NewError(tt.errType, "x").HTTPStatusCode(); got != tt.want {
			t.Errorf("HTTPStatusCode(%s) = %d, want %d", tt.errType, got, tt.want)
		}
	}

	explicit := NewError(ErrorTypeServer, "x").WithStatusCode(http.StatusTeapot)
	if got := explicit.HTTPStatusCode(); got != http.StatusTeapot {
		t.Errorf("explicit status = %d, want %d", got, http.StatusTeapot)
	}
}

func TestIsInference(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrInference("call failed"), true},
		{ErrSchemaValidation("bad payload"), true},
		{ErrRateLimit("slow down"), true},
		{ErrOverloaded("busy"), true},
		{ErrServer("boom"), true},
		{ErrConfiguration("no key"), false},
		{ErrInvalidRequest("bad"), false},
		{errors.New("plain"), false},
		{fmt.Errorf("wrapped: %w", ErrInference("inner")), true},
	}

	for _, tt := range tests {
		if got := IsInference(tt.err); got != tt.want {
			t.Errorf("IsInference(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestAgentResultValidate(t *testing.T) {
	ok := AgentResult{Reply: "hi", Confidence: 0.9}
	if err := ok.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}

	empty := AgentResult{Confidence: 0.5}
	if err := empty.Validate(); err == nil {
		t.Error("Validate() with empty reply = nil, want error")
	}

	for _, c := range []float64{-0.1, 1.1, 42} {
		bad := AgentResult{Reply: "hi", Confidence: c}
		if err := bad.Validate(); err == nil {
			t.Errorf("Validate() with confidence %v = nil, want error", c)
		}
	}
}

func TestAgentResultNormalize(t *testing.T) {
	var r AgentResult
	r.Normalize()
	if r.ExtractedData == nil {
		t.Error("ExtractedData still nil after Normalize")
	}
	if r.MissingFields == nil {
		t.Error("MissingFields still nil after Normalize")
	}
}
