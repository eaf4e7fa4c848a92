// Package callcenter is the entry point for callers of the call engine: it
// starts calls, runs customer turns through the agent, hands calls to human
// agents and ends them with a durable record.
package callcenter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/szaher/dealerline/internal/agent"
	"github.com/szaher/dealerline/internal/conversation"
	"github.com/szaher/dealerline/internal/events"
	"github.com/szaher/dealerline/internal/session"
	"github.com/szaher/dealerline/internal/storage"
	"github.com/szaher/dealerline/internal/telemetry"
)

var (
	// ErrSessionNotFound is returned when the call is unknown or has ended.
	ErrSessionNotFound = errors.New("call not found or already ended")
	// ErrTakeoverActive is returned when an AI turn is submitted for a call
	// a human agent is handling.
	ErrTakeoverActive = errors.New("call is in takeover mode, a human agent is handling it")
	// ErrEmptyMessage is returned for blank utterances and agent messages.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrHistoryUnavailable is returned when no call log store is configured.
	ErrHistoryUnavailable = errors.New("call history is not configured")
)

// DefaultGreetings are spoken when a call starts.
var DefaultGreetings = []string{
	"Hello! Satis Motor se Priya bol rahi hoon. Kaise help kar sakti hoon aapki?",
	"Haan ji, Satis Motor - Priya here! Bataiye kya kar sakti hoon aapke liye?",
	"Good morning! Satis Motor se baat ho rahi hai. Main Priya, bataiye?",
	"Hello ji! Satis Motor, Priya speaking. Kya help chahiye aapko?",
}

const (
	defaultCallType = "inquiry"
	defaultName     = "Unknown"
	defaultOutcome  = "resolved"
)

// Turner runs one agent turn.
type Turner interface {
	ProcessTurn(ctx context.Context, callID, utterance string) *agent.TurnOutcome
	HandoffReply() string
}

// Option configures a Center.
type Option func(*Center)

// WithEmitter sets the sink for live call events.
func WithEmitter(e events.Emitter) Option {
	return func(c *Center) { c.emitter = e }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Center) { c.metrics = m }
}

// WithGreetings replaces the greeting lines.
func WithGreetings(g []string) Option {
	return func(c *Center) {
		if len(g) > 0 {
			c.greetings = g
		}
	}
}

// WithPicker sets how a greeting index is chosen from n candidates.
func WithPicker(pick func(n int) int) Option {
	return func(c *Center) { c.pick = pick }
}

// WithHistory sets the stores finished calls are read back from.
func WithHistory(logs storage.CallLog, transcripts storage.TranscriptStore) Option {
	return func(c *Center) {
		c.logs = logs
		c.transcripts = transcripts
	}
}

// WithClock overrides the time source used for daily stats.
func WithClock(now func() time.Time) Option {
	return func(c *Center) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Center) { c.logger = l }
}

// Center coordinates the session registry, the conversation store and the
// agent.
type Center struct {
	sessions    *session.Registry
	convs       *conversation.Store
	agent       Turner
	emitter     events.Emitter
	metrics     *telemetry.Metrics
	greetings   []string
	pick        func(n int) int
	logs        storage.CallLog
	transcripts storage.TranscriptStore
	now         func() time.Time
	logger      *slog.Logger
}

// New creates a Center.
func New(sessions *session.Registry, convs *conversation.Store, turner Turner, opts ...Option) *Center {
	c := &Center{
		sessions:  sessions,
		convs:     convs,
		agent:     turner,
		emitter:   events.NoopEmitter{},
		greetings: DefaultGreetings,
		pick:      rand.IntN,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartSession registers a call and speaks the greeting. The returned
// snapshot already contains the greeting entry.
func (c *Center) StartSession(phone string, direction session.Direction, callType, name string) (*session.Session, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, errors.New("phone is required")
	}
	switch direction {
	case "":
		direction = session.Inbound
	case session.Inbound, session.Outbound:
	default:
		return nil, fmt.Errorf("invalid direction %q", direction)
	}
	if callType == "" {
		callType = defaultCallType
	}
	if name == "" {
		name = defaultName
	}

	s := c.sessions.Start(phone, direction, callType, name)
	c.convs.GetOrCreate(s.ID)
	c.sessions.AddMessage(s.ID, session.RoleAssistant, c.greetings[c.pick(len(c.greetings))])
	c.metrics.CallStarted(string(direction))

	snap := c.sessions.Get(s.ID)
	c.emitter.Emit(events.New(events.CallStarted, s.ID).WithData("call", snap))
	return snap, nil
}

// SubmitUtterance runs one AI turn for the customer's utterance. It fails
// with ErrSessionNotFound for unknown calls and ErrTakeoverActive while a
// human handles the call. Upstream failures do not fail the call; they
// arrive as a degraded outcome.
func (c *Center) SubmitUtterance(ctx context.Context, id, text string) (*agent.TurnOutcome, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if err := c.checkTurnable(id); err != nil {
		return nil, err
	}

	release, err := c.sessions.BeginTurn(ctx, id)
	if errors.Is(err, session.ErrUnknownSession) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	defer release()

	// The call may have been taken over while this turn waited.
	if err := c.checkTurnable(id); err != nil {
		return nil, err
	}

	if entry := c.sessions.AddMessage(id, session.RoleUser, text); entry != nil {
		c.emitter.Emit(events.New(events.CallMessage, id).WithData("entry", entry))
	}

	out := c.agent.ProcessTurn(ctx, id, text)

	entry := c.sessions.AddMessage(id, session.RoleAssistant, out.Reply)
	if entry == nil {
		// Ended while the turn ran; drop the conversation it recreated.
		c.convs.Clear(id)
		return out, nil
	}
	c.emitter.Emit(events.New(events.CallMessage, id).WithData("entry", entry))
	c.emitter.Emit(events.New(events.CallTurn, id).
		WithData("confidence", out.Confidence).
		WithData("sentiment", out.Sentiment).
		WithData("actions", actionNames(out.Actions)).
		WithData("degraded", out.Degraded))
	if out.TakeoverRequested {
		c.emitter.Emit(events.New(events.CallTakeover, id).
			WithData("reason", out.TakeoverReason).
			WithData("source", "agent"))
	}
	return out, nil
}

func (c *Center) checkTurnable(id string) error {
	s := c.sessions.Get(id)
	if s == nil {
		return ErrSessionNotFound
	}
	if s.Status == session.StatusTakeover {
		return ErrTakeoverActive
	}
	return nil
}

// RequestTakeover hands the call to a human agent and speaks the handoff
// line. It returns false if the call is not live.
func (c *Center) RequestTakeover(id, reason string) bool {
	if reason == "" {
		reason = "manual"
	}
	if !c.sessions.Takeover(id, reason) {
		return false
	}
	c.metrics.Takeover("manual")
	if entry := c.sessions.AddMessage(id, session.RoleAssistant, c.agent.HandoffReply()); entry != nil {
		c.emitter.Emit(events.New(events.CallMessage, id).WithData("entry", entry))
	}
	c.emitter.Emit(events.New(events.CallTakeover, id).WithData("reason", reason).WithData("source", "manual"))
	return true
}

// PostHumanMessage appends a human agent's line to the transcript. It
// returns nil if the call is not live.
func (c *Center) PostHumanMessage(id, text string) (*session.Entry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	entry := c.sessions.AddMessage(id, session.RoleHumanAgent, text)
	if entry != nil {
		c.emitter.Emit(events.New(events.CallMessage, id).WithData("entry", entry))
	}
	return entry, nil
}

// EndSession finalizes the call. It returns nil, nil if the call is not
// live, and an error if the record could not be persisted, in which case
// the call stays live so the end can be retried.
func (c *Center) EndSession(ctx context.Context, id, outcome string) (*session.Record, error) {
	if outcome == "" {
		outcome = defaultOutcome
	}
	rec, err := c.sessions.End(ctx, id, outcome)
	if err != nil {
		c.metrics.FinalizeFailed()
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	c.convs.Clear(id)
	c.metrics.CallEnded(string(rec.HandledBy))
	c.emitter.Emit(events.New(events.CallEnded, id).
		WithData("outcome", rec.Outcome).
		WithData("duration_seconds", rec.DurationSeconds).
		WithData("handled_by", rec.HandledBy))
	return rec, nil
}

// GetSession returns a snapshot of the call, or nil if it is not live.
func (c *Center) GetSession(id string) *session.Session {
	return c.sessions.Get(id)
}

// ListActiveSessions returns snapshots of all live calls, oldest first.
func (c *Center) ListActiveSessions() []*session.Session {
	return c.sessions.List()
}

func actionNames(invs []agent.Invocation) []string {
	names := make([]string, len(invs))
	for i, inv := range invs {
		names[i] = inv.Name
	}
	return names
}
