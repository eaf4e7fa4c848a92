package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrUnknownSession is returned by BeginTurn when the call is not live.
var ErrUnknownSession = errors.New("session not found")

// entry guards one session. mu serialises mutations and is never held
// across I/O; ending serialises End calls; turn admits one conversational
// turn at a time. While finalizing, the session can be read but not changed.
type entry struct {
	mu         sync.Mutex
	s          *Session
	evicted    bool
	finalizing bool
	ending     sync.Mutex
	turn       chan struct{}
}

// Registry is the table of live calls. Operations on unknown or ended calls
// are no-ops that report absence rather than failing.
type Registry struct {
	mu        sync.RWMutex
	entries   map[string]*entry
	finalizer Finalizer
	now       func() time.Time
	newID     func() string
	logger    *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the registry's time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithIDGenerator overrides call id generation.
func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) { r.newID = fn }
}

// WithLogger sets the registry's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// NewCallID returns a new time-ordered call id.
func NewCallID() string {
	return "CALL-" + ulid.Make().String()
}

// NewRegistry creates an empty registry that hands finished calls to fin.
func NewRegistry(fin Finalizer, opts ...Option) *Registry {
	r := &Registry{
		entries:   make(map[string]*entry),
		finalizer: fin,
		now:       time.Now,
		newID:     NewCallID,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start registers a new active call handled by the AI.
func (r *Registry) Start(phone string, direction Direction, callType, name string) *Session {
	if direction == "" {
		direction = Inbound
	}
	s := &Session{
		ID:           r.newID(),
		Phone:        phone,
		CustomerName: name,
		Direction:    direction,
		Type:         callType,
		StartTime:    r.now(),
		Status:       StatusActive,
		HandledBy:    HandledByAI,
		Confidence:   1.0,
		Context:      Context{FunctionsCalled: []string{}},
		Transcript:   []Entry{},
	}

	r.mu.Lock()
	r.entries[s.ID] = &entry{s: s, turn: make(chan struct{}, 1)}
	r.mu.Unlock()

	r.logger.Info("call started", "call_id", s.ID, "direction", direction, "type", callType)
	return s.Clone()
}

func (r *Registry) lookup(id string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[id]
}

// with runs fn on the live session id under its lock. It reports false when
// the call is unknown, already ended or being finalized.
func (r *Registry) with(id string, fn func(s *Session)) bool {
	e := r.lookup(id)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evicted || e.finalizing {
		return false
	}
	fn(e.s)
	return true
}

// Get returns a snapshot of the call, or nil if it is not live.
func (r *Registry) Get(id string) *Session {
	e := r.lookup(id)
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evicted {
		return nil
	}
	return e.s.Clone()
}

// List returns snapshots of all live calls, oldest first.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]*Session, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.evicted {
			out = append(out, e.s.Clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// Count returns the number of live calls.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// AddMessage appends a transcript entry stamped with the time elapsed since
// the call started. It returns nil if the call is not live.
func (r *Registry) AddMessage(id string, role Role, content string) *Entry {
	return r.AddMessageAt(id, role, content, "")
}

// AddMessageAt appends a transcript entry with an explicit mm:ss timestamp.
// An empty timestamp is computed from the call start. Unknown roles are
// rejected with nil.
func (r *Registry) AddMessageAt(id string, role Role, content, timestamp string) *Entry {
	if !role.Valid() {
		r.logger.Warn("dropping transcript entry with unknown role", "call_id", id, "role", role)
		return nil
	}
	var out *Entry
	r.with(id, func(s *Session) {
		if timestamp == "" {
			timestamp = Elapsed(s.StartTime, r.now())
		}
		e := Entry{Timestamp: timestamp, Role: role, Content: content}
		s.Transcript = append(s.Transcript, e)
		out = &e
	})
	return out
}

// UpdateContext applies patch to the call context.
func (r *Registry) UpdateContext(id string, patch func(c *Context)) bool {
	return r.with(id, func(s *Session) { patch(&s.Context) })
}

// RecordAction appends an invoked action name to the call context.
func (r *Registry) RecordAction(id, name string) bool {
	return r.with(id, func(s *Session) {
		s.Context.FunctionsCalled = append(s.Context.FunctionsCalled, name)
	})
}

// SetSentiment stores the latest sentiment score, clamped to [-1, 1].
func (r *Registry) SetSentiment(id string, v float64) bool {
	return r.with(id, func(s *Session) { s.Sentiment = min(max(v, -1), 1) })
}

// SetConfidence stores the latest confidence score, clamped to [0, 1].
func (r *Registry) SetConfidence(id string, v float64) bool {
	return r.with(id, func(s *Session) { s.Confidence = min(max(v, 0), 1) })
}

// Takeover hands the call to a human agent. Repeated takeovers re-apply
// with the latest reason.
func (r *Registry) Takeover(id, reason string) bool {
	ok := r.with(id, func(s *Session) {
		s.Status = StatusTakeover
		s.HandledBy = HandledByAIThenHuman
		s.TakeoverReason = reason
	})
	if ok {
		r.logger.Info("call taken over", "call_id", id, "reason", reason)
	}
	return ok
}

// BeginTurn waits until no other turn is running for the call and returns
// a release function. It fails with ErrUnknownSession if the call is not
// live, or with the context's error.
func (r *Registry) BeginTurn(ctx context.Context, id string) (func(), error) {
	e := r.lookup(id)
	if e == nil {
		return nil, ErrUnknownSession
	}
	select {
	case e.turn <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	e.mu.Lock()
	evicted := e.evicted
	e.mu.Unlock()
	if evicted {
		<-e.turn
		return nil, ErrUnknownSession
	}
	var once sync.Once
	return func() { once.Do(func() { <-e.turn }) }, nil
}

// End finalizes the call and evicts it. The record is produced from a
// snapshot and handed to the finalizer; only if that succeeds is the call
// marked ended and removed. The finalizer runs without the session lock:
// reads proceed meanwhile and mutations are refused. It returns nil, nil if
// the call is not live.
func (r *Registry) End(ctx context.Context, id, outcome string) (*Record, error) {
	e := r.lookup(id)
	if e == nil {
		return nil, nil
	}
	e.ending.Lock()
	defer e.ending.Unlock()

	e.mu.Lock()
	if e.evicted {
		e.mu.Unlock()
		return nil, nil
	}

	end := r.now()
	snap := e.s.Clone()
	snap.EndTime = &end
	snap.Status = StatusEnded
	snap.Outcome = outcome
	rec := &Record{
		Session:         *snap,
		DurationSeconds: int64(end.Sub(snap.StartTime) / time.Second),
	}

	e.finalizing = true
	e.mu.Unlock()

	var err error
	if r.finalizer != nil {
		err = r.finalizer.Finalize(ctx, rec)
	}

	e.mu.Lock()
	e.finalizing = false
	if err != nil {
		e.mu.Unlock()
		r.logger.Error("call finalization failed, keeping session", "call_id", id, "error", err)
		return nil, fmt.Errorf("finalize %s: %w", id, err)
	}
	e.s = snap
	e.evicted = true
	e.mu.Unlock()

	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()

	r.logger.Info("call ended", "call_id", id, "outcome", outcome, "duration_seconds", rec.DurationSeconds)
	return rec, nil
}

// Elapsed formats the time between start and now as mm:ss.
func Elapsed(start, now time.Time) string {
	secs := int(now.Sub(start) / time.Second)
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
