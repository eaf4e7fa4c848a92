package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/szaher/dealerline/internal/crm"
)

func (s *Server) handleVehicles(w http.ResponseWriter, r *http.Request) {
	var (
		vehicles []crm.Vehicle
		err      error
	)
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		vehicles, err = s.crm.SearchVehicles(r.Context(), q)
	} else {
		vehicles, err = s.crm.ListVehicles(r.Context())
	}
	if err != nil {
		s.crmError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"vehicles": orEmpty(vehicles)})
}

func (s *Server) handleOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := s.crm.CurrentOffers(r.Context(), r.URL.Query().Get("model"))
	if err != nil {
		s.crmError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offers)
}

func (s *Server) handleCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := s.crm.ListCustomers(r.Context())
	if err != nil {
		s.crmError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"customers": orEmpty(customers)})
}

func (s *Server) handleLeads(w http.ResponseWriter, r *http.Request) {
	leads, err := s.crm.ListLeads(r.Context(), r.URL.Query().Get("stage"))
	if err != nil {
		s.crmError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"leads": orEmpty(leads)})
}

func (s *Server) handleAddLead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name            string `json:"name"`
		Phone           string `json:"phone"`
		InterestedModel string `json:"interested_model"`
		Budget          string `json:"budget"`
		Source          string `json:"source"`
		Notes           string `json:"notes"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Phone) == "" {
		writeError(w, http.StatusBadRequest, "name and phone are required")
		return
	}
	source := req.Source
	if source == "" {
		source = "walk_in"
	}
	lead, err := s.crm.AddLead(r.Context(), crm.Lead{
		Name:            req.Name,
		Phone:           req.Phone,
		InterestedModel: req.InterestedModel,
		Budget:          req.Budget,
		Source:          source,
		Notes:           req.Notes,
	})
	if err != nil {
		s.crmError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, lead)
}

func (s *Server) handleAppointments(w http.ResponseWriter, r *http.Request) {
	appts, err := s.crm.ListAppointments(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		s.crmError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"appointments": orEmpty(appts)})
}

func (s *Server) handleSlots(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = s.now().Add(24 * time.Hour).Format("2006-01-02")
	}
	slots, err := s.crm.AvailableSlots(r.Context(), date)
	if err != nil {
		s.crmError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"date":            date,
		"available_slots": orEmpty(slots),
	})
}

func (s *Server) handleComplaints(w http.ResponseWriter, r *http.Request) {
	complaints, err := s.crm.ListComplaints(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		s.crmError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"complaints": orEmpty(complaints)})
}

func (s *Server) handleComplaintStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	c, err := s.crm.UpdateComplaintStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		s.crmError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	calls, err := s.center.Stats(r.Context())
	if err != nil {
		s.historyError(w, err)
		return
	}
	dash, err := s.crm.Dashboard(r.Context())
	if err != nil {
		s.crmError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"calls":                calls,
		"complaints_by_status": dash.ComplaintsByStatus,
		"leads_by_stage":       dash.LeadsByStage,
		"appointments_today":   dash.AppointmentsToday,
		"total_customers":      dash.TotalCustomers,
	})
}

func (s *Server) crmError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, crm.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, crm.ErrInvalidDate), errors.Is(err, crm.ErrInvalidStatus),
		errors.Is(err, crm.ErrInvalidSlot), errors.Is(err, crm.ErrInvalidCategory):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("crm request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
