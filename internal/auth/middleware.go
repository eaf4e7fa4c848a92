package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Middleware returns an HTTP middleware that validates API key authentication.
// Requests to skipPaths (e.g., "/healthz") are allowed without
// authentication. If noAuth is true, all requests are allowed.
// If rl is non-nil, failed auth attempts are tracked and clients are blocked
// after exceeding the threshold (10 failures/min, 5-min block).
func Middleware(apiKey string, noAuth bool, skipPaths []string, rl *RateLimiter) func(http.Handler) http.Handler {
	skipSet := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skipSet[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if noAuth || skipSet[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			clientIP := ClientIPKeyFunc(r)
			if rl != nil && rl.IsAuthBlocked(clientIP) {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", rl.AuthBlockRetryAfter(clientIP)))
				WriteError(w, http.StatusTooManyRequests, "Too many failed authentication attempts. Try again later.")
				return
			}

			if apiKey == "" {
				WriteError(w, http.StatusUnauthorized, "API key not configured")
				return
			}

			key, ok, msg := KeyFromRequest(r)
			if ok && !ValidateKey(key, apiKey) {
				ok, msg = false, "invalid API key"
			}
			if !ok {
				if rl != nil {
					rl.AuthFailure(clientIP)
				}
				WriteError(w, http.StatusUnauthorized, msg)
				return
			}

			if rl != nil {
				rl.AuthSuccess(clientIP)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteError writes the {error, message} JSON error body used across the API.
func WriteError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   http.StatusText(status),
		"message": message,
	})
}
