// Package auth validates serve-mode API keys. Keys are never stored: the
// configuration carries SHA-256 hashes (as printed by `composer keygen`) and
// incoming keys are hashed and compared in constant time.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/datakettle/dp-composer/internal/domain"
)

// KeyPrefix marks generated keys so they are recognizable in configs and
// shell history without revealing anything about their value.
const KeyPrefix = "dpc_"

// Authenticator validates API keys against a set of accepted key hashes.
type Authenticator struct {
	hashes []string
}

// NewAuthenticator creates an authenticator from hex-encoded SHA-256 key
// hashes. Hash casing is normalized; empty entries are dropped.
func NewAuthenticator(keyHashes []string) *Authenticator {
	a := &Authenticator{}
	for _, h := range keyHashes {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		a.hashes = append(a.hashes, h)
	}
	return a
}

// ValidateAPIKey reports whether apiKey hashes to one of the accepted
// hashes. Every stored hash is compared in constant time so the check's
// duration does not depend on which entry matched.
func (a *Authenticator) ValidateAPIKey(apiKey string) error {
	keyHash := []byte(HashAPIKey(apiKey))

	matched := 0
	for _, h := range a.hashes {
		matched |= subtle.ConstantTimeCompare(keyHash, []byte(h))
	}
	if matched != 1 {
		return domain.ErrAuthentication("invalid API key").
			WithCode(domain.ErrorCodeInvalidAPIKey)
	}
	return nil
}

// ExtractAPIKey extracts the API key from the Authorization header.
// Both "Bearer <key>" and a bare key are accepted.
func ExtractAPIKey(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", domain.ErrAuthentication("missing Authorization header")
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 1 {
		return parts[0], nil
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return "", domain.ErrAuthentication("unsupported authorization scheme")
	}
	return parts[1], nil
}

// HashAPIKey creates the hex-encoded SHA-256 hash of an API key, the form
// keys take in server.auth.api_keys.
func HashAPIKey(apiKey string) string {
	hash := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(hash[:])
}

// GenerateAPIKey creates a new random API key. The caller shows the key to
// the operator once and stores only its hash.
func GenerateAPIKey() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate API key: %w", err)
	}
	return KeyPrefix + hex.EncodeToString(raw), nil
}
