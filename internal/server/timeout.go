package server

import (
	"context"
	"net/http"
	"time"
)

// TimeoutMiddleware bounds how long a request's work may take by attaching
// a deadline to its context. Cancellation is cooperative: the completion
// call inside a turn observes ctx.Done() and the degraded path takes over.
// A zero or negative timeout disables the deadline entirely. Long-lived
// routes (the websocket) are registered outside this middleware.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
