package agent

import (
	"fmt"

	"github.com/szaher/dealerline/internal/actions"
)

// Phase is a state of the per-turn protocol.
type Phase string

const (
	// PhaseAwaitingToolResults covers the first model call, which may
	// request actions, and the dispatch of those actions.
	PhaseAwaitingToolResults Phase = "awaiting_tool_results"
	// PhaseAwaitingFinalReply covers the model call that produces the
	// customer-facing reply after action results are folded back in.
	PhaseAwaitingFinalReply Phase = "awaiting_final_reply"
)

// Invocation is one action run during a turn.
type Invocation struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
	Result    actions.Result         `json:"result"`
}

// TurnError records an upstream failure and the phase it happened in.
type TurnError struct {
	Phase Phase
	Err   error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }

// TurnOutcome is the result of one turn. A degraded outcome carries the
// fallback reply, neutral scores and a non-nil Err.
type TurnOutcome struct {
	Reply             string       `json:"response"`
	Actions           []Invocation `json:"functions_called"`
	Confidence        float64      `json:"confidence"`
	Sentiment         float64      `json:"sentiment"`
	TakeoverRequested bool         `json:"takeover_requested"`
	TakeoverReason    string       `json:"takeover_reason,omitempty"`
	// EscalationRule names the policy rule that forced a takeover, if any.
	EscalationRule string     `json:"escalation_rule,omitempty"`
	Degraded       bool       `json:"degraded,omitempty"`
	Err            *TurnError `json:"-"`
}

// ErrorText returns the failure message of a degraded turn, or "".
func (o *TurnOutcome) ErrorText() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}
