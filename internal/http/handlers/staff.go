package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-scheduler/internal/appointments"
	"github.com/wolfman30/clinic-scheduler/internal/calendar"
	"github.com/wolfman30/clinic-scheduler/internal/clinicapi"
	"github.com/wolfman30/clinic-scheduler/internal/dashboard"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// StaffHandler serves the staff calendar and queue actions.
type StaffHandler struct {
	svc    *dashboard.Service
	loc    *time.Location
	logger *logging.Logger
}

// NewStaffHandler creates a staff handler. Dates in query strings are read
// in loc.
func NewStaffHandler(svc *dashboard.Service, loc *time.Location, logger *logging.Logger) *StaffHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &StaffHandler{svc: svc, loc: loc, logger: logger}
}

// Routes mounts the staff endpoints.
func (h *StaffHandler) Routes(r chi.Router) {
	r.Get("/calendar", h.Calendar)
	r.Get("/overview", h.Overview)
	r.Get("/appointments", h.Appointments)
	r.Get("/pending", h.Pending)
	r.Post("/appointments", h.BookForPatient)
	r.Post("/appointments/{id}/status", h.UpdateStatus)
	r.Post("/lab-tests", h.BookLabForPatient)
	r.Post("/refresh", h.Refresh)
}

// Calendar handles GET /calendar?unit=week|month&offset=N&ref=YYYY-MM-DD.
func (h *StaffHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	unit, err := calendar.ParseUnit(q.Get("unit"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	req := dashboard.ViewRequest{Unit: unit}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "offset must be an integer")
			return
		}
		req.Offset = offset
	}
	if raw := q.Get("ref"); raw != "" {
		ref, err := time.ParseInLocation(appointments.DateLayout, raw, h.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "ref must be YYYY-MM-DD")
			return
		}
		req.Ref = ref
	}

	view, err := h.svc.CalendarView(r.Context(), req)
	if err != nil {
		h.logger.Error("calendar view failed", "error", err)
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Overview handles GET /overview.
func (h *StaffHandler) Overview(w http.ResponseWriter, r *http.Request) {
	ov, err := h.svc.Overview(r.Context())
	if err != nil {
		h.logger.Error("overview failed", "error", err)
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

// Appointments handles GET /appointments?status=pending.
func (h *StaffHandler) Appointments(w http.ResponseWriter, r *http.Request) {
	var status appointments.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		s, err := appointments.ParseStatus(raw)
		if err != nil {
			writeFailure(w, err)
			return
		}
		status = s
	}
	records, err := h.svc.Appointments(r.Context(), status)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": records, "total": len(records)})
}

// Pending handles GET /pending?limit=N.
func (h *StaffHandler) Pending(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	records, err := h.svc.Pending(r.Context(), limit)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": records})
}

type statusRequest struct {
	Action  string `json:"action,omitempty"`
	Status  string `json:"status,omitempty"`
	NewDate string `json:"new_date,omitempty"`
	NewTime string `json:"new_time,omitempty"`
	Result  string `json:"result,omitempty"`
}

// UpdateStatus handles POST /appointments/{id}/status. The body names
// either a staff action (confirm, reschedule, ...) or a raw status, and
// may attach a lab result.
func (h *StaffHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid appointment id")
		return
	}
	var req statusRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	update := appointments.StatusUpdate{
		ItemType:  appointments.ItemTypeAppointment,
		ItemID:    id,
		NewStatus: appointments.Status(req.Status),
		NewDate:   req.NewDate,
		NewTime:   req.NewTime,
		NewResult: req.Result,
	}
	if action := strings.ToLower(strings.TrimSpace(req.Action)); action != "" {
		err = h.svc.Act(r.Context(), appointments.Action(action), update)
	} else {
		err = h.svc.UpdateStatus(r.Context(), update)
	}
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": true, "appointment_id": id})
}

// BookForPatient handles POST /appointments for walk-in bookings.
func (h *StaffHandler) BookForPatient(w http.ResponseWriter, r *http.Request) {
	var req clinicapi.StaffBookingRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.svc.BookForPatient(r.Context(), req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"appointment": res.Record, "message": res.Message})
}

// BookLabForPatient handles POST /lab-tests.
func (h *StaffHandler) BookLabForPatient(w http.ResponseWriter, r *http.Request) {
	var req clinicapi.StaffLabRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.svc.BookLabForPatient(r.Context(), req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": res.ID, "message": res.Message})
}

// Refresh handles POST /refresh, dropping the cached feed.
func (h *StaffHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.svc.Refresh(r.Context())
	w.WriteHeader(http.StatusNoContent)
}
