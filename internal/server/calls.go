package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/szaher/dealerline/internal/callcenter"
	"github.com/szaher/dealerline/internal/session"
	"github.com/szaher/dealerline/internal/telemetry"
)

type startCallRequest struct {
	Phone        string `json:"phone"`
	Direction    string `json:"direction"`
	CallType     string `json:"call_type"`
	CustomerName string `json:"customer_name"`
}

type messageRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleStartCall(w http.ResponseWriter, r *http.Request) {
	var req startCallRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	sess, err := s.center.StartSession(req.Phone, session.Direction(req.Direction), req.CallType, req.CustomerName)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleListActive(w http.ResponseWriter, _ *http.Request) {
	calls := s.center.ListActiveSessions()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"calls": orEmpty(calls),
		"count": len(calls),
	})
}

func (s *Server) handleGetActive(w http.ResponseWriter, r *http.Request) {
	sess := s.center.GetSession(r.PathValue("id"))
	if sess == nil {
		writeError(w, http.StatusNotFound, callcenter.ErrSessionNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req messageRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx := telemetry.WithCallID(r.Context(), id)
	out, err := s.center.SubmitUtterance(ctx, id, req.Message)
	switch {
	case errors.Is(err, callcenter.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, callcenter.ErrTakeoverActive):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, callcenter.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		telemetry.CallLogger(s.logger, ctx).Error("turn failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTakeover(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !s.center.RequestTakeover(id, req.Reason) {
		writeError(w, http.StatusNotFound, callcenter.ErrSessionNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"call_id": id,
		"status":  string(session.StatusTakeover),
	})
}

func (s *Server) handleHumanMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	entry, err := s.center.PostHumanMessage(r.PathValue("id"), req.Message)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if entry == nil {
		writeError(w, http.StatusNotFound, callcenter.ErrSessionNotFound.Error())
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleEndCall(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Outcome string `json:"outcome"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx := telemetry.WithCallID(r.Context(), id)
	rec, err := s.center.EndSession(ctx, id, req.Outcome)
	if err != nil {
		telemetry.CallLogger(s.logger, ctx).Error("ending call failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to save call record, retry ending the call: "+err.Error())
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, callcenter.ErrSessionNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCallLogs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	rows, err := s.center.CallLogs(r.Context(), limit)
	if err != nil {
		s.historyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": rows, "count": len(rows)})
}

func (s *Server) handleCallLog(w http.ResponseWriter, r *http.Request) {
	row, err := s.center.CallLog(r.Context(), r.PathValue("id"))
	if err != nil {
		s.historyError(w, err)
		return
	}
	if row == nil {
		writeError(w, http.StatusNotFound, "call log not found")
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	text, ok, err := s.center.Transcript(r.Context(), r.PathValue("id"))
	if err != nil {
		s.historyError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "transcript not found")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}

func (s *Server) handleCallStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.center.Stats(r.Context())
	if err != nil {
		s.historyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) historyError(w http.ResponseWriter, err error) {
	if errors.Is(err, callcenter.ErrHistoryUnavailable) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.logger.Error("reading call history failed", "error", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}
