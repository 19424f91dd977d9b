package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandler(t *testing.T) {
	handler := Handler()

	tests := []struct {
		name string
		path string
	}{
		{"root serves the page", "/"},
		{"unknown path falls back to the page", "/sessions/abc123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("GET %s = %d, want %d", tt.path, rec.Code, http.StatusOK)
			}
			if !strings.Contains(rec.Body.String(), "dp-composer") {
				t.Errorf("GET %s did not serve the chat page", tt.path)
			}
		})
	}
}
