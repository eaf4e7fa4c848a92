// Package agent drives one conversational turn of a call: it consults the
// language model, dispatches the actions it requests, folds their results
// back into the conversation and produces the reply for the customer.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/szaher/dealerline/internal/actions"
	"github.com/szaher/dealerline/internal/conversation"
	"github.com/szaher/dealerline/internal/escalation"
	"github.com/szaher/dealerline/internal/llm"
	"github.com/szaher/dealerline/internal/session"
	"github.com/szaher/dealerline/internal/telemetry"
)

const (
	// DefaultFallbackReply is spoken when a turn fails upstream.
	DefaultFallbackReply = "I apologize, I'm having some technical difficulty. Let me connect you to our team."
	// DefaultHandoffReply is spoken when the call is handed to a human.
	DefaultHandoffReply = "Sir, ek second, main aapko hamare senior executive se connect kar raha hoon..."

	fallbackConfidence = 0.5
	fallbackSentiment  = 0.0
)

// Dispatcher advertises and runs business actions.
type Dispatcher interface {
	Describe() []llm.ToolDefinition
	Dispatch(ctx context.Context, name string, args map[string]interface{}, sessionID string) (actions.Result, error)
}

// Scorer computes the per-turn advisory signals.
type Scorer interface {
	Confidence(reply *llm.ChatResponse, utterance string) float64
	Sentiment(utterance string) float64
}

// Sessions is the part of the session registry a turn mutates.
type Sessions interface {
	Takeover(id, reason string) bool
	RecordAction(id, name string) bool
	UpdateContext(id string, patch func(c *session.Context)) bool
	SetSentiment(id string, v float64) bool
	SetConfidence(id string, v float64) bool
}

// Config controls the model calls of a turn.
type Config struct {
	Model         string
	MaxTokens     int
	Temperature   float64
	PhaseTimeout  time.Duration
	PhaseRetries  int
	FallbackReply string
	HandoffReply  string
}

func (c *Config) applyDefaults() {
	if c.MaxTokens <= 0 {
		c.MaxTokens = 300
	}
	if c.Temperature == 0 {
		c.Temperature = 0.85
	}
	if c.PhaseTimeout <= 0 {
		c.PhaseTimeout = 20 * time.Second
	}
	if c.PhaseRetries < 0 {
		c.PhaseRetries = 0
	}
	if c.FallbackReply == "" {
		c.FallbackReply = DefaultFallbackReply
	}
	if c.HandoffReply == "" {
		c.HandoffReply = DefaultHandoffReply
	}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithPolicy sets the auto-escalation policy evaluated after each turn.
func WithPolicy(p *escalation.Policy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// Orchestrator runs turns. It does not serialize turns of the same call;
// callers hold the session's turn slot for the duration of ProcessTurn.
type Orchestrator struct {
	client   llm.Client
	registry Dispatcher
	convs    *conversation.Store
	sessions Sessions
	scorer   Scorer
	cfg      Config
	policy   *escalation.Policy
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

// New creates an Orchestrator.
func New(client llm.Client, registry Dispatcher, convs *conversation.Store, sessions Sessions, scorer Scorer, cfg Config, opts ...Option) *Orchestrator {
	cfg.applyDefaults()
	o := &Orchestrator{
		client:   client,
		registry: registry,
		convs:    convs,
		sessions: sessions,
		scorer:   scorer,
		cfg:      cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// HandoffReply returns the configured handoff line.
func (o *Orchestrator) HandoffReply() string { return o.cfg.HandoffReply }

// ProcessTurn runs one turn for callID. Upstream failures never escape: they
// produce a degraded outcome and leave the call usable.
func (o *Orchestrator) ProcessTurn(ctx context.Context, callID, utterance string) *TurnOutcome {
	start := time.Now()
	logger := o.logger.With("call_id", callID)
	ctx = telemetry.WithCallID(ctx, callID)

	out, err := o.run(ctx, callID, utterance, logger)
	if err != nil {
		out = o.degrade(callID, out, err, logger)
	}
	o.metrics.RecordTurn(out.Degraded, time.Since(start), out.Confidence)
	return out
}

func (o *Orchestrator) run(ctx context.Context, callID, utterance string, logger *slog.Logger) (*TurnOutcome, error) {
	out := &TurnOutcome{Actions: []Invocation{}}
	o.convs.AppendUser(callID, utterance)

	first, err := o.chat(ctx, PhaseAwaitingToolResults, llm.ChatRequest{
		Messages: o.convs.GetOrCreate(callID),
		Tools:    o.registry.Describe(),
	}, logger)
	if err != nil {
		return out, &TurnError{Phase: PhaseAwaitingToolResults, Err: err}
	}

	reply := first.Content
	if len(first.ToolCalls) > 0 {
		calls := uniqueToolCallIDs(first.ToolCalls)
		results := make([]llm.ToolResult, 0, len(calls))
		for _, tc := range calls {
			res, err := o.registry.Dispatch(ctx, tc.Name, tc.Input, callID)
			if err != nil {
				o.metrics.RecordAction(tc.Name, false)
				return out, &TurnError{Phase: PhaseAwaitingToolResults, Err: err}
			}
			o.metrics.RecordAction(tc.Name, res.Success())
			out.Actions = append(out.Actions, Invocation{Name: tc.Name, Arguments: tc.Input, Result: res})
			o.noteAction(callID, tc)

			if reason, ok := actions.TakeoverReason(tc.Name, res); ok {
				out.TakeoverRequested = true
				out.TakeoverReason = reason
				o.sessions.Takeover(callID, reason)
				o.metrics.Takeover("action")
				logger.Info("takeover requested by agent", "reason", reason)
			}
			results = append(results, llm.ToolResult{
				ToolUseID: tc.ID,
				Content:   res.JSON(),
				IsError:   !res.Success(),
			})
		}

		call := llm.Message{Role: llm.RoleAssistant, Content: first.Content, ToolCalls: calls}
		if err := o.convs.AppendExchange(callID, call, results); err != nil {
			return out, &TurnError{Phase: PhaseAwaitingToolResults, Err: err}
		}

		if out.TakeoverRequested {
			reply = o.cfg.HandoffReply
		} else {
			final, err := o.chat(ctx, PhaseAwaitingFinalReply, llm.ChatRequest{
				Messages: o.convs.GetOrCreate(callID),
			}, logger)
			if err != nil {
				return out, &TurnError{Phase: PhaseAwaitingFinalReply, Err: err}
			}
			reply = final.Content
		}
	}

	out.Confidence = o.scorer.Confidence(first, utterance)
	out.Sentiment = o.scorer.Sentiment(utterance)
	o.sessions.SetConfidence(callID, out.Confidence)
	o.sessions.SetSentiment(callID, out.Sentiment)

	if !out.TakeoverRequested {
		if d, ok := o.escalate(callID, utterance, out, logger); ok {
			out.TakeoverRequested = true
			out.TakeoverReason = d.Reason
			out.EscalationRule = d.Rule
			reply = o.cfg.HandoffReply
		}
	}

	out.Reply = reply
	if err := o.convs.AppendAssistant(callID, llm.Message{Role: llm.RoleAssistant, Content: reply}); err != nil {
		logger.Error("appending reply to conversation", "error", err)
	}
	logger.Info("turn complete",
		"actions", len(out.Actions),
		"confidence", out.Confidence,
		"sentiment", out.Sentiment,
		"takeover", out.TakeoverRequested,
	)
	return out, nil
}

// chat runs one protocol phase with its own timeout and retry budget.
func (o *Orchestrator) chat(ctx context.Context, phase Phase, req llm.ChatRequest, logger *slog.Logger) (*llm.ChatResponse, error) {
	req.Model = o.cfg.Model
	req.MaxTokens = o.cfg.MaxTokens
	req.Temperature = llm.Float(o.cfg.Temperature)

	var lastErr error
	for attempt := 0; attempt <= o.cfg.PhaseRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := o.attempt(ctx, phase, req)
		if err == nil {
			o.metrics.RecordTokens(resp.Usage.InputTokens, resp.Usage.OutputTokens)
			return resp, nil
		}
		lastErr = err
		o.metrics.PhaseFailed(string(phase))
		logger.Warn("model call failed", "phase", phase, "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("after %d attempts: %w", o.cfg.PhaseRetries+1, lastErr)
}

func (o *Orchestrator) attempt(ctx context.Context, phase Phase, req llm.ChatRequest) (*llm.ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.PhaseTimeout)
	defer cancel()

	resp, err := o.client.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("empty model response")
	}
	if phase == PhaseAwaitingFinalReply && len(resp.ToolCalls) > 0 {
		return nil, errors.New("model requested actions while producing the final reply")
	}
	if strings.TrimSpace(resp.Content) == "" && len(resp.ToolCalls) == 0 {
		return nil, errors.New("model returned an empty reply")
	}
	return resp, nil
}

// uniqueToolCallIDs returns a copy of calls in which every call has a
// distinct id, so each action result can be paired with its call.
// OpenAI-compatible servers sometimes omit or repeat ids.
func uniqueToolCallIDs(calls []llm.ToolCall) []llm.ToolCall {
	taken := make(map[string]bool, len(calls))
	for _, tc := range calls {
		taken[tc.ID] = true
	}
	out := make([]llm.ToolCall, len(calls))
	seen := make(map[string]bool, len(calls))
	next := 0
	for i, tc := range calls {
		if tc.ID == "" || seen[tc.ID] {
			for {
				next++
				id := fmt.Sprintf("call_%d", next)
				if !taken[id] {
					tc.ID = id
					taken[id] = true
					break
				}
			}
		}
		seen[tc.ID] = true
		out[i] = tc
	}
	return out
}

// noteAction records the action on the session and tracks which vehicle
// model and intent the call is about.
func (o *Orchestrator) noteAction(callID string, tc llm.ToolCall) {
	o.sessions.RecordAction(callID, tc.Name)

	model := stringArg(tc.Input, "model_name")
	if model == "" {
		model = stringArg(tc.Input, "vehicle_model")
	}
	intent := intents[actions.Name(tc.Name)]
	if model == "" && intent == "" {
		return
	}
	o.sessions.UpdateContext(callID, func(c *session.Context) {
		if model != "" {
			c.ModelDiscussed = model
		}
		if intent != "" {
			c.Intent = intent
		}
	})
}

var intents = map[actions.Name]string{
	actions.GetVehicleInfo:         "vehicle_enquiry",
	actions.GetCurrentOffers:       "offers_enquiry",
	actions.BookTestDrive:          "test_drive",
	actions.BookServiceAppointment: "service",
	actions.RegisterComplaint:      "complaint",
	actions.AddLead:                "purchase_enquiry",
}

func stringArg(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

func (o *Orchestrator) escalate(callID, utterance string, out *TurnOutcome, logger *slog.Logger) (escalation.Decision, bool) {
	if o.policy.Len() == 0 {
		return escalation.Decision{}, false
	}
	names := make([]string, len(out.Actions))
	for i, a := range out.Actions {
		names[i] = a.Name
	}
	d, ok, err := o.policy.Evaluate(escalation.Signals{
		Confidence: out.Confidence,
		Sentiment:  out.Sentiment,
		Turn:       userTurns(o.convs.GetOrCreate(callID)),
		Utterance:  utterance,
		Actions:    names,
	})
	if err != nil {
		logger.Warn("escalation policy failed", "error", err)
		return escalation.Decision{}, false
	}
	if !ok {
		return escalation.Decision{}, false
	}
	o.sessions.Takeover(callID, d.Reason)
	o.metrics.Takeover("policy")
	logger.Info("takeover forced by escalation policy", "rule", d.Rule, "reason", d.Reason)
	return d, true
}

func userTurns(msgs []llm.Message) int {
	n := 0
	for _, m := range msgs {
		if m.Role == llm.RoleUser {
			n++
		}
	}
	return n
}

// degrade replaces a failed turn with the fallback reply. The reply is
// appended to the conversation so user and assistant messages keep
// alternating; the session scores are left untouched.
func (o *Orchestrator) degrade(callID string, partial *TurnOutcome, err error, logger *slog.Logger) *TurnOutcome {
	var te *TurnError
	if !errors.As(err, &te) {
		te = &TurnError{Phase: PhaseAwaitingToolResults, Err: err}
	}
	logger.Error("turn degraded", "phase", te.Phase, "error", te.Err)

	if aerr := o.convs.AppendAssistant(callID, llm.Message{Role: llm.RoleAssistant, Content: o.cfg.FallbackReply}); aerr != nil {
		logger.Error("appending fallback reply to conversation", "error", aerr)
	}
	out := &TurnOutcome{
		Reply:      o.cfg.FallbackReply,
		Actions:    []Invocation{},
		Confidence: fallbackConfidence,
		Sentiment:  fallbackSentiment,
		Degraded:   true,
		Err:        te,
	}
	if partial != nil {
		out.TakeoverRequested = partial.TakeoverRequested
		out.TakeoverReason = partial.TakeoverReason
	}
	return out
}
