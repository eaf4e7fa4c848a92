// Package secrets resolves env() references in configuration and keeps
// resolved secrets and customer phone numbers out of log output.
package secrets

import (
	"context"
	"strings"
)

// Resolver resolves secret references to their values.
type Resolver interface {
	// Resolve looks up a secret reference and returns its value.
	Resolve(ctx context.Context, ref string) (string, error)
}

// IsRef reports whether v is an env(NAME) reference.
func IsRef(v string) bool {
	v = strings.TrimSpace(v)
	return strings.HasPrefix(v, "env(") && strings.HasSuffix(v, ")")
}

// Expand resolves v if it is a reference and returns it unchanged
// otherwise. resolved reports whether a lookup happened, so callers know to
// register the value for redaction.
func Expand(ctx context.Context, r Resolver, v string) (value string, resolved bool, err error) {
	if !IsRef(v) {
		return v, false, nil
	}
	value, err = r.Resolve(ctx, strings.TrimSpace(v))
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}
