// Package actions implements the closed set of business actions the call
// agent may invoke, and the registry that advertises and dispatches them.
package actions

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/szaher/dealerline/internal/llm"
)

// Name identifies an action.
type Name string

const (
	GetVehicleInfo         Name = "get_vehicle_info"
	CheckAppointmentSlots  Name = "check_appointment_slots"
	BookTestDrive          Name = "book_test_drive"
	BookServiceAppointment Name = "book_service_appointment"
	RegisterComplaint      Name = "register_complaint"
	GetCurrentOffers       Name = "get_current_offers"
	AddLead                Name = "add_lead"
	RequestHumanTakeover   Name = "request_human_takeover"
	GetCustomerHistory     Name = "get_customer_history"
)

// Names is the closed set of actions, in advertisement order.
var Names = []Name{
	GetVehicleInfo,
	CheckAppointmentSlots,
	BookTestDrive,
	BookServiceAppointment,
	RegisterComplaint,
	GetCurrentOffers,
	AddLead,
	RequestHumanTakeover,
	GetCustomerHistory,
}

// Known reports whether name belongs to the closed action set.
func Known(name string) bool {
	for _, n := range Names {
		if string(n) == name {
			return true
		}
	}
	return false
}

// Call carries per-invocation context supplied by the dispatcher.
type Call struct {
	SessionID string
}

// Action is a named, schema-described business operation.
type Action interface {
	Name() Name
	Definition() llm.ToolDefinition
	Execute(ctx context.Context, args map[string]interface{}, call Call) (Result, error)
}

// Registry routes invocations to actions. It is immutable after construction.
type Registry struct {
	actions map[Name]Action
	order   []Name
	logger  *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the registry's logger.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry validates and indexes acts. Every action must belong to the
// closed set and appear at most once.
func NewRegistry(acts []Action, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		actions: make(map[Name]Action, len(acts)),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, a := range acts {
		name := a.Name()
		if !Known(string(name)) {
			return nil, fmt.Errorf("actions: %q is not a known action", name)
		}
		if _, dup := r.actions[name]; dup {
			return nil, fmt.Errorf("actions: %q registered twice", name)
		}
		if def := a.Definition(); def.Name != string(name) {
			return nil, fmt.Errorf("actions: %q advertises mismatched name %q", name, def.Name)
		}
		r.actions[name] = a
	}
	for _, n := range Names {
		if _, ok := r.actions[n]; ok {
			r.order = append(r.order, n)
		}
	}
	return r, nil
}

// Describe returns the tool definitions advertised to the language model,
// in stable order.
func (r *Registry) Describe() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, n := range r.order {
		defs = append(defs, r.actions[n].Definition())
	}
	return defs
}

// Dispatch runs the named action. An unregistered name yields a
// success:false result, not an error. The returned error is reserved for
// failures of the collaborator behind the action.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]interface{}, sessionID string) (Result, error) {
	a, ok := r.actions[Name(name)]
	if !ok {
		r.logger.Warn("unknown action requested", "action", name, "call_id", sessionID)
		return Result{"success": false, "message": "unknown action", "action": name}, nil
	}
	if args == nil {
		args = map[string]interface{}{}
	}

	res, err := a.Execute(ctx, args, Call{SessionID: sessionID})
	if err != nil {
		return nil, fmt.Errorf("action %s: %w", name, err)
	}
	r.logger.Debug("action dispatched", "action", name, "call_id", sessionID, "success", res.Success())
	return res, nil
}
