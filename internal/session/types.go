// Package session tracks live calls: their status, transcript, scores and
// context, from start until the durable record is written.
package session

import (
	"context"
	"time"
)

// Status is the lifecycle state of a call.
type Status string

const (
	StatusActive   Status = "active"
	StatusTakeover Status = "takeover"
	StatusEnded    Status = "ended"
)

// HandledBy records who handled the call.
type HandledBy string

const (
	HandledByAI          HandledBy = "ai"
	HandledByAIThenHuman HandledBy = "ai_then_human"
)

// Role is the speaker of a transcript entry.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleHumanAgent Role = "human_agent"
)

// Valid reports whether r is a known speaker role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleHumanAgent:
		return true
	}
	return false
}

// Direction is the direction of the call.
type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

// Entry is one transcript line. Entries are never modified after append.
type Entry struct {
	Timestamp string `json:"timestamp"` // mm:ss since call start
	Role      Role   `json:"role"`
	Content   string `json:"content"`
}

// Context is free-form call context accumulated during the conversation.
type Context struct {
	Intent          string   `json:"intent,omitempty"`
	ModelDiscussed  string   `json:"model_discussed,omitempty"`
	FunctionsCalled []string `json:"functions_called"`
}

// Session is one live call.
type Session struct {
	ID             string     `json:"call_id"`
	Phone          string     `json:"phone"`
	CustomerName   string     `json:"customer_name"`
	Direction      Direction  `json:"direction"`
	Type           string     `json:"type"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	Status         Status     `json:"status"`
	HandledBy      HandledBy  `json:"handled_by"`
	TakeoverReason string     `json:"takeover_reason,omitempty"`
	Outcome        string     `json:"outcome,omitempty"`
	Sentiment      float64    `json:"sentiment_score"`
	Confidence     float64    `json:"ai_confidence"`
	Context        Context    `json:"context"`
	Transcript     []Entry    `json:"transcript"`
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	c := *s
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	c.Context.FunctionsCalled = append([]string{}, s.Context.FunctionsCalled...)
	c.Transcript = append([]Entry{}, s.Transcript...)
	return &c
}

// Record is the durable summary of a finished call: the session frozen at
// end time plus its duration.
type Record struct {
	Session
	DurationSeconds int64 `json:"duration_seconds"`
}

// Finalizer persists a finished call. The registry evicts a session only
// after Finalize returns nil.
type Finalizer interface {
	Finalize(ctx context.Context, rec *Record) error
}

// FinalizerFunc adapts a function to Finalizer.
type FinalizerFunc func(ctx context.Context, rec *Record) error

// Finalize calls f.
func (f FinalizerFunc) Finalize(ctx context.Context, rec *Record) error { return f(ctx, rec) }
