// Package server exposes the call engine and the dealership CRM over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/szaher/dealerline/internal/auth"
	"github.com/szaher/dealerline/internal/callcenter"
	"github.com/szaher/dealerline/internal/crm"
	"github.com/szaher/dealerline/internal/events"
	"github.com/szaher/dealerline/internal/telemetry"
)

// CRM is the subset of the CRM store served by the API.
type CRM interface {
	ListVehicles(ctx context.Context) ([]crm.Vehicle, error)
	SearchVehicles(ctx context.Context, query string) ([]crm.Vehicle, error)
	CurrentOffers(ctx context.Context, model string) (*crm.Offers, error)
	ListCustomers(ctx context.Context) ([]crm.Customer, error)
	ListLeads(ctx context.Context, stage string) ([]crm.Lead, error)
	AddLead(ctx context.Context, l crm.Lead) (*crm.Lead, error)
	ListAppointments(ctx context.Context, date string) ([]crm.Appointment, error)
	AvailableSlots(ctx context.Context, date string) ([]string, error)
	ListComplaints(ctx context.Context, status string) ([]crm.Complaint, error)
	UpdateComplaintStatus(ctx context.Context, id, status string) (*crm.Complaint, error)
	Dashboard(ctx context.Context) (*crm.DashboardStats, error)
}

// Server is the HTTP API server.
type Server struct {
	center    *callcenter.Center
	crm       CRM
	hub       *events.Hub
	metrics   *telemetry.Metrics
	limiter   *auth.RateLimiter
	apiKey    string
	noAuth    bool
	keepAlive time.Duration
	version   string
	now       func() time.Time
	mux       *http.ServeMux
	server    *http.Server
	logger    *slog.Logger
	startTime time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithAPIKey sets the API key for authentication.
func WithAPIKey(key string) Option {
	return func(s *Server) { s.apiKey = key }
}

// WithNoAuth disables authentication.
func WithNoAuth(noAuth bool) Option {
	return func(s *Server) { s.noAuth = noAuth }
}

// WithRateLimit enables per-client rate limiting.
func WithRateLimit(cfg auth.RateLimitConfig) Option {
	return func(s *Server) { s.limiter = auth.NewRateLimiter(cfg) }
}

// WithCRM serves the CRM routes.
func WithCRM(c CRM) Option {
	return func(s *Server) { s.crm = c }
}

// WithHub serves live call events from hub. keepAlive sets the SSE comment
// interval.
func WithHub(hub *events.Hub, keepAlive time.Duration) Option {
	return func(s *Server) {
		s.hub = hub
		s.keepAlive = keepAlive
	}
}

// WithMetrics serves /metrics from m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithVersion sets the version reported by /healthz.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithClock overrides the time source used for date defaults.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New creates the API server for center.
func New(center *callcenter.Center, opts ...Option) *Server {
	s := &Server{
		center:    center,
		version:   "dev",
		now:       time.Now,
		logger:    slog.Default(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.HandleFunc("POST /api/calls", s.handleStartCall)
	mux.HandleFunc("GET /api/calls/active", s.handleListActive)
	mux.HandleFunc("GET /api/calls/active/{id}", s.handleGetActive)
	mux.HandleFunc("POST /api/calls/{id}/messages", s.handleMessage)
	mux.HandleFunc("POST /api/calls/{id}/takeover", s.handleTakeover)
	mux.HandleFunc("POST /api/calls/{id}/human-messages", s.handleHumanMessage)
	mux.HandleFunc("POST /api/calls/{id}/end", s.handleEndCall)
	mux.HandleFunc("GET /api/calls/logs", s.handleCallLogs)
	mux.HandleFunc("GET /api/calls/logs/{id}", s.handleCallLog)
	mux.HandleFunc("GET /api/calls/transcripts/{id}", s.handleTranscript)
	mux.HandleFunc("GET /api/calls/stats", s.handleCallStats)
	if s.hub != nil {
		mux.Handle("GET /api/calls/events", s.hub.Handler(s.keepAlive))
	}

	if s.crm != nil {
		mux.HandleFunc("GET /api/vehicles", s.handleVehicles)
		mux.HandleFunc("GET /api/vehicles/offers", s.handleOffers)
		mux.HandleFunc("GET /api/customers", s.handleCustomers)
		mux.HandleFunc("GET /api/leads", s.handleLeads)
		mux.HandleFunc("POST /api/leads", s.handleAddLead)
		mux.HandleFunc("GET /api/appointments", s.handleAppointments)
		mux.HandleFunc("GET /api/appointments/slots", s.handleSlots)
		mux.HandleFunc("GET /api/complaints", s.handleComplaints)
		mux.HandleFunc("PATCH /api/complaints/{id}/status", s.handleComplaintStatus)
		mux.HandleFunc("GET /api/dashboard/stats", s.handleDashboard)
	}

	s.mux = mux
	return s
}

// Handler returns the HTTP handler for use with httptest or custom servers.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = auth.Middleware(s.apiKey, s.noAuth, []string{"/healthz", "/metrics"}, s.limiter)(h)
	if s.limiter != nil {
		h = s.limiter.Middleware(auth.ClientIPKeyFunc)(h)
	}
	return h
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("api server starting", "addr", addr, "auth", !s.noAuth, "crm", s.crm != nil)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "healthy",
		"uptime":       time.Since(s.startTime).Round(time.Second).String(),
		"active_calls": len(s.center.ListActiveSessions()),
		"version":      s.version,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	auth.WriteError(w, status, message)
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func orEmpty[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
