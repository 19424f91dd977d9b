package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

// RequestIDKey is the context key under which the request ID travels.
const RequestIDKey contextKey = "request_id"

// requestIDHeader is honored inbound so CLI and websocket clients can
// correlate their own logs, and always echoed outbound.
const requestIDHeader = "X-Request-ID"

// maxRequestIDLen caps client-supplied IDs. The ID lands on every log line
// for the request, so an oversized header gets replaced, not truncated.
const maxRequestIDLen = 64

// RequestIDMiddleware tags each request with an ID: the inbound X-Request-ID
// when acceptable, a fresh UUID otherwise. The ID rides the request context
// and is echoed as a response header.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), RequestIDKey, id)
		w.Header().Set(requestIDHeader, id)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request ID from ctx, or "" when the middleware
// did not run.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}
