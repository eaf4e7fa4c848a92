// Package testutil provides shared test helpers to reduce boilerplate across unit tests.
package testutil

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/szaher/dealerline/internal/crm"
)

// Clock is a settable time source safe for concurrent use.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock returns a clock stopped at t.
func NewClock(t time.Time) *Clock {
	return &Clock{t: t}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// SeededCRM opens a CRM store on a SQLite file in a temp dir and loads the
// demo catalog. The store is closed when the test finishes.
func SeededCRM(t *testing.T, now func() time.Time) *crm.Store {
	t.Helper()
	store, err := crm.Open("sqlite", filepath.Join(t.TempDir(), "crm.db"), crm.WithClock(now))
	if err != nil {
		t.Fatalf("crm.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if _, err := store.Seed(context.Background()); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	return store
}

// AssertErrorContains asserts that err is non-nil and its message contains substr.
func AssertErrorContains(t *testing.T, err error, substr string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got nil", substr)
	}
	if !strings.Contains(err.Error(), substr) {
		t.Fatalf("expected error containing %q, got %q", substr, err.Error())
	}
}
