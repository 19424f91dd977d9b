package server

import (
	"context"
	"net/http"

	"github.com/datakettle/dp-composer/internal/auth"
)

// clientKeyKey is the context key for the authenticated client identity.
type clientKeyKey struct{}

// AuthMiddleware validates API keys. If the authenticator is nil, the
// middleware is a no-op. The key comes from the Authorization header
// (Bearer or bare), or from the api_key query parameter as a fallback for
// browser websocket clients, which cannot set request headers.
func AuthMiddleware(authenticator *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if authenticator == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey, err := auth.ExtractAPIKey(r)
			if err != nil {
				if apiKey = r.URL.Query().Get("api_key"); apiKey == "" {
					writeError(w, r, err)
					return
				}
			}

			if err := authenticator.ValidateAPIKey(apiKey); err != nil {
				writeError(w, r, err)
				return
			}

			// The key's hash prefix identifies the client for rate
			// limiting and request logs without exposing the key.
			fingerprint := auth.HashAPIKey(apiKey)[:12]
			AddLogField(r.Context(), "client", fingerprint)
			ctx := context.WithValue(r.Context(), clientKeyKey{}, fingerprint)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientKey returns the authenticated client's identity, or empty when the
// request is anonymous.
func ClientKey(ctx context.Context) string {
	if key, ok := ctx.Value(clientKeyKey{}).(string); ok {
		return key
	}
	return ""
}
