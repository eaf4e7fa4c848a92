package secrets

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"
)

const placeholder = "***REDACTED***"

// phonePattern matches phone numbers of 10 or more digits, optionally with a
// leading + and space or dash separators.
var phonePattern = regexp.MustCompile(`\+?\d(?:[\s-]?\d){9,}`)

// MaskPhones replaces all but the last four digits of every phone number in
// s with asterisks.
func MaskPhones(s string) string {
	return phonePattern.ReplaceAllStringFunc(s, func(m string) string {
		digits := 0
		for _, r := range m {
			if r >= '0' && r <= '9' {
				digits++
			}
		}
		var b strings.Builder
		seen := 0
		for _, r := range m {
			if r >= '0' && r <= '9' {
				seen++
				if seen <= digits-4 {
					b.WriteByte('*')
					continue
				}
			}
			b.WriteRune(r)
		}
		return b.String()
	})
}

// RedactFilter wraps a slog handler to scrub resolved secret values and,
// when enabled, customer phone numbers from log output.
type RedactFilter struct {
	inner  slog.Handler
	shared *redactState
}

type redactState struct {
	mu      sync.RWMutex
	secrets map[string]bool
	phones  bool
}

// NewRedactFilter creates a log handler that redacts known secret values.
func NewRedactFilter(inner slog.Handler) *RedactFilter {
	return &RedactFilter{
		inner:  inner,
		shared: &redactState{secrets: make(map[string]bool)},
	}
}

// AddSecret registers a value to be redacted from log output.
func (f *RedactFilter) AddSecret(value string) {
	if value == "" {
		return
	}
	f.shared.mu.Lock()
	defer f.shared.mu.Unlock()
	f.shared.secrets[value] = true
}

// SetMaskPhones turns phone number masking on or off.
func (f *RedactFilter) SetMaskPhones(on bool) {
	f.shared.mu.Lock()
	defer f.shared.mu.Unlock()
	f.shared.phones = on
}

// Enabled delegates to the inner handler.
func (f *RedactFilter) Enabled(ctx context.Context, level slog.Level) bool {
	return f.inner.Enabled(ctx, level)
}

// Handle redacts the message and attribute values, including nested groups.
func (f *RedactFilter) Handle(ctx context.Context, record slog.Record) error {
	scrub := f.scrubber()
	if scrub == nil {
		return f.inner.Handle(ctx, record)
	}

	redacted := slog.NewRecord(record.Time, record.Level, scrub(record.Message), record.PC)
	record.Attrs(func(a slog.Attr) bool {
		redacted.AddAttrs(redactAttr(a, scrub))
		return true
	})
	return f.inner.Handle(ctx, redacted)
}

// WithAttrs redacts the attributes before handing them to the inner handler.
// Derived handlers share the parent's secrets.
func (f *RedactFilter) WithAttrs(attrs []slog.Attr) slog.Handler {
	if scrub := f.scrubber(); scrub != nil {
		out := make([]slog.Attr, len(attrs))
		for i, a := range attrs {
			out[i] = redactAttr(a, scrub)
		}
		attrs = out
	}
	return &RedactFilter{inner: f.inner.WithAttrs(attrs), shared: f.shared}
}

// WithGroup delegates to the inner handler.
func (f *RedactFilter) WithGroup(name string) slog.Handler {
	return &RedactFilter{inner: f.inner.WithGroup(name), shared: f.shared}
}

// RedactString applies the same scrubbing as log output to s.
func (f *RedactFilter) RedactString(s string) string {
	if scrub := f.scrubber(); scrub != nil {
		return scrub(s)
	}
	return s
}

func (f *RedactFilter) scrubber() func(string) string {
	f.shared.mu.RLock()
	secrets := make([]string, 0, len(f.shared.secrets))
	for s := range f.shared.secrets {
		secrets = append(secrets, s)
	}
	phones := f.shared.phones
	f.shared.mu.RUnlock()

	if len(secrets) == 0 && !phones {
		return nil
	}
	return func(s string) string {
		for _, secret := range secrets {
			s = strings.ReplaceAll(s, secret, placeholder)
		}
		if phones {
			s = MaskPhones(s)
		}
		return s
	}
}

func redactAttr(a slog.Attr, scrub func(string) string) slog.Attr {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, scrub(v.String()))
	case slog.KindGroup:
		group := v.Group()
		out := make([]slog.Attr, len(group))
		for i, g := range group {
			out[i] = redactAttr(g, scrub)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}
	return slog.Attr{Key: a.Key, Value: v}
}
