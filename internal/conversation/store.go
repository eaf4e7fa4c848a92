// Package conversation keeps the per-call message history sent to the
// language model. Histories live only for the lifetime of the process.
package conversation

import (
	"errors"
	"fmt"
	"sync"

	"github.com/szaher/dealerline/internal/llm"
)

var (
	// ErrOrphanToolResult is returned when tool results do not answer the
	// tool calls of the immediately preceding assistant message.
	ErrOrphanToolResult = errors.New("tool results do not match preceding tool calls")

	// ErrWrongRole is returned when a message is appended through the wrong
	// method for its role.
	ErrWrongRole = errors.New("message has wrong role")
)

// Store holds one append-only conversation per call id. The first message of
// every conversation is the fixed priming message.
type Store struct {
	mu       sync.Mutex
	priming  llm.Message
	sessions map[string][]llm.Message
}

// New creates a store whose conversations start with the given system
// priming content.
func New(priming string) *Store {
	return &Store{
		priming:  llm.Message{Role: llm.RoleSystem, Content: priming},
		sessions: make(map[string][]llm.Message),
	}
}

// GetOrCreate returns a copy of the conversation for id, initialising it
// with the priming message if it does not exist yet.
func (s *Store) GetOrCreate(id string) []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.ensure(id)
	out := make([]llm.Message, len(msgs))
	copy(out, msgs)
	return out
}

// AppendUser appends a user utterance.
func (s *Store) AppendUser(id, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = append(s.ensure(id), llm.Message{Role: llm.RoleUser, Content: text})
}

// AppendAssistant appends an assistant message, which may carry tool calls.
func (s *Store) AppendAssistant(id string, msg llm.Message) error {
	if msg.Role != llm.RoleAssistant {
		return fmt.Errorf("append assistant: %w: %q", ErrWrongRole, msg.Role)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = append(s.ensure(id), msg)
	return nil
}

// AppendToolResults appends one tool message per result. The conversation
// must end with an assistant message whose tool calls are answered exactly
// by results.
func (s *Store) AppendToolResults(id string, results []llm.ToolResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.ensure(id)
	last := msgs[len(msgs)-1]
	if last.Role != llm.RoleAssistant {
		return fmt.Errorf("append tool results: %w: last message is %q", ErrOrphanToolResult, last.Role)
	}
	if err := matchResults(last.ToolCalls, results); err != nil {
		return fmt.Errorf("append tool results: %w", err)
	}
	s.sessions[id] = appendResults(msgs, results)
	return nil
}

// AppendExchange appends an assistant tool-call message and its results as
// one unit, so a failed turn never leaves half an exchange behind.
func (s *Store) AppendExchange(id string, call llm.Message, results []llm.ToolResult) error {
	if call.Role != llm.RoleAssistant {
		return fmt.Errorf("append exchange: %w: %q", ErrWrongRole, call.Role)
	}
	if err := matchResults(call.ToolCalls, results); err != nil {
		return fmt.Errorf("append exchange: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = appendResults(append(s.ensure(id), call), results)
	return nil
}

// Len returns the number of messages in the conversation, or 0 if none.
func (s *Store) Len(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions[id])
}

// Has reports whether a conversation exists for id.
func (s *Store) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	return ok
}

// Clear drops the conversation for id.
func (s *Store) Clear(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// ensure must be called with mu held.
func (s *Store) ensure(id string) []llm.Message {
	msgs, ok := s.sessions[id]
	if !ok {
		msgs = []llm.Message{s.priming}
		s.sessions[id] = msgs
	}
	return msgs
}

func appendResults(msgs []llm.Message, results []llm.ToolResult) []llm.Message {
	for i := range results {
		r := results[i]
		msgs = append(msgs, llm.Message{Role: llm.RoleTool, ToolResult: &r})
	}
	return msgs
}

func matchResults(calls []llm.ToolCall, results []llm.ToolResult) error {
	if len(calls) == 0 {
		return fmt.Errorf("%w: assistant message has no tool calls", ErrOrphanToolResult)
	}
	if len(calls) != len(results) {
		return fmt.Errorf("%w: %d calls, %d results", ErrOrphanToolResult, len(calls), len(results))
	}
	pending := make(map[string]bool, len(calls))
	for _, c := range calls {
		pending[c.ID] = true
	}
	for _, r := range results {
		if !pending[r.ToolUseID] {
			return fmt.Errorf("%w: unexpected result for %q", ErrOrphanToolResult, r.ToolUseID)
		}
		delete(pending, r.ToolUseID)
	}
	return nil
}
