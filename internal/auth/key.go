// Package auth provides API key validation, authentication middleware and
// per-client rate limiting for the call-center HTTP API.
package auth

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"
)

// DefaultEnvVar is the environment variable name for the API key.
const DefaultEnvVar = "DEALERLINE_API_KEY"

// HeaderAPIKey is the alternative header carrying the API key.
const HeaderAPIKey = "X-API-Key"

// ValidateKey performs timing-safe comparison of the provided key
// against the expected key. Returns true if they match.
func ValidateKey(provided, expected string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// KeyFromEnv reads the API key from the environment variable.
// Returns empty string if not set.
func KeyFromEnv() string {
	return os.Getenv(DefaultEnvVar)
}

// KeyFromRequest extracts the presented key from a Bearer Authorization
// header or the X-API-Key header. ok is false when neither carries a key;
// a malformed Authorization header yields ok=false with errMsg set.
func KeyFromRequest(r *http.Request) (key string, ok bool, errMsg string) {
	if h := r.Header.Get("Authorization"); h != "" {
		const prefix = "Bearer "
		if !strings.HasPrefix(h, prefix) {
			return "", false, "invalid Authorization format, expected 'Bearer <key>'"
		}
		return strings.TrimPrefix(h, prefix), true, ""
	}
	if k := r.Header.Get(HeaderAPIKey); k != "" {
		return k, true, ""
	}
	return "", false, "missing Authorization or X-API-Key header"
}
