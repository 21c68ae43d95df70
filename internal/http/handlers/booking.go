package handlers

import (
	"context"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/wolfman30/clinic-scheduler/internal/appointments"
	"github.com/wolfman30/clinic-scheduler/internal/booking"
	"github.com/wolfman30/clinic-scheduler/internal/clinicapi"
	"github.com/wolfman30/clinic-scheduler/internal/http/middleware"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// BackendFactory returns the backend a wizard talks to on behalf of s.
type BackendFactory func(s clinicapi.Session) booking.Backend

// PatientAppointments lists a patient's own bookings.
type PatientAppointments interface {
	MyAppointments(ctx context.Context, patientID int64) ([]appointments.Record, error)
}

// SessionGauge tracks how many wizards the gateway holds.
type SessionGauge interface {
	SetActiveWizards(n int)
}

// BookingConfig configures the wizard endpoints.
type BookingConfig struct {
	Backend    BackendFactory
	Wizard     booking.Options
	MaxActive  int
	SessionTTL time.Duration
	Gauge      SessionGauge

	// Appointments serves GET /appointments; the route is absent when nil.
	Appointments func(s clinicapi.Session) PatientAppointments
}

type wizardEntry struct {
	wizard    *booking.Wizard
	patientID int64
}

// BookingHandler drives booking wizards over HTTP. Each wizard lives in a
// bounded, expiring store keyed by a random id and is only reachable by
// the patient who opened it.
type BookingHandler struct {
	cfg     BookingConfig
	wizards *expirable.LRU[string, *wizardEntry]
	active  atomic.Int64
	logger  *logging.Logger
}

// NewBookingHandler creates the handler. Evicted or expired wizards are
// closed.
func NewBookingHandler(cfg BookingConfig, logger *logging.Logger) *BookingHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.MaxActive <= 0 {
		cfg.MaxActive = 1024
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	h := &BookingHandler{cfg: cfg, logger: logger.Component("booking.http")}
	h.wizards = expirable.NewLRU[string, *wizardEntry](cfg.MaxActive, func(id string, e *wizardEntry) {
		e.wizard.Close()
		h.reportActive(h.active.Add(-1))
		h.logger.Debug("booking session closed", "session_id", id)
	}, cfg.SessionTTL)
	return h
}

// Routes mounts the wizard endpoints. Every route needs a patient session.
func (h *BookingHandler) Routes(r chi.Router) {
	r.Use(middleware.RequirePatient)
	r.Post("/", h.Start)
	if h.cfg.Appointments != nil {
		r.Get("/appointments", h.MyAppointments)
	}
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.Cancel)
		r.Post("/department", h.SelectDepartment)
		r.Post("/doctor", h.SelectDoctor)
		r.Post("/date", h.SelectDate)
		r.Post("/slot", h.SelectSlot)
		r.Post("/type", h.SetType)
		r.Post("/advance", h.Advance)
		r.Post("/back", h.Back)
		r.Post("/slots/refresh", h.RefreshSlots)
		r.Post("/submit", h.Submit)
	})
}

type sessionResponse struct {
	ID string `json:"id"`
	booking.Snapshot
}

// Start handles POST / and opens a fresh wizard with the doctor list
// loaded. A failed doctor load still opens the wizard, with a notice.
func (h *BookingHandler) Start(w http.ResponseWriter, r *http.Request) {
	session, _ := middleware.SessionFrom(r.Context())
	wiz := booking.New(h.cfg.Backend(session), session, h.cfg.Wizard, h.logger)
	if err := wiz.LoadDoctors(r.Context()); err != nil {
		h.logger.Warn("wizard opened without doctors", "patient_id", session.PatientID, "error", err)
	}

	id := uuid.NewString()
	h.wizards.Add(id, &wizardEntry{wizard: wiz, patientID: session.PatientID})
	h.reportActive(h.active.Add(1))
	h.logger.Info("booking session opened", "session_id", id, "patient_id", session.PatientID)
	writeJSON(w, http.StatusCreated, sessionResponse{ID: id, Snapshot: wiz.Snapshot()})
}

// Get handles GET /{id}. With ?wait=true it first waits for in-flight slot
// fetches so the reply carries a settled slot state.
func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, wiz, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		wiz.Wait()
	}
	writeJSON(w, http.StatusOK, sessionResponse{ID: id, Snapshot: wiz.Snapshot()})
}

// MyAppointments handles GET /appointments, the caller's own bookings.
func (h *BookingHandler) MyAppointments(w http.ResponseWriter, r *http.Request) {
	session, _ := middleware.SessionFrom(r.Context())
	records, err := h.cfg.Appointments(session).MyAppointments(r.Context(), session.PatientID)
	if err != nil {
		h.logger.Warn("listing patient appointments failed", "patient_id", session.PatientID, "error", err)
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": records, "total": len(records)})
}

// Cancel handles DELETE /{id}.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, wiz, ok := h.lookup(w, r)
	if !ok {
		return
	}
	err := wiz.Cancel()
	snap := wiz.Snapshot()
	h.wizards.Remove(id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{ID: id, Snapshot: snap})
}

func (h *BookingHandler) SelectDepartment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Department string `json:"department"`
	}
	h.apply(w, r, &body, func(wiz *booking.Wizard) error { return wiz.SelectDepartment(body.Department) })
}

func (h *BookingHandler) SelectDoctor(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DoctorID int64 `json:"doctor_id"`
	}
	h.apply(w, r, &body, func(wiz *booking.Wizard) error { return wiz.SelectDoctor(body.DoctorID) })
}

func (h *BookingHandler) SelectDate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Date string `json:"date"`
	}
	h.apply(w, r, &body, func(wiz *booking.Wizard) error { return wiz.SelectDate(body.Date) })
}

func (h *BookingHandler) SelectSlot(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Slot string `json:"slot"`
	}
	h.apply(w, r, &body, func(wiz *booking.Wizard) error { return wiz.SelectSlot(body.Slot) })
}

func (h *BookingHandler) SetType(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Type string `json:"type"`
	}
	h.apply(w, r, &body, func(wiz *booking.Wizard) error { return wiz.SetType(body.Type) })
}

func (h *BookingHandler) Back(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, nil, func(wiz *booking.Wizard) error { return wiz.Back() })
}

func (h *BookingHandler) RefreshSlots(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, nil, func(wiz *booking.Wizard) error { return wiz.RefreshSlots() })
}

// Advance handles POST /{id}/advance. A blocked advance is a 200 with
// "advanced": false and a validation notice.
func (h *BookingHandler) Advance(w http.ResponseWriter, r *http.Request) {
	id, wiz, ok := h.lookup(w, r)
	if !ok {
		return
	}
	advanced := wiz.Advance()
	writeJSON(w, http.StatusOK, struct {
		sessionResponse
		Advanced bool `json:"advanced"`
	}{sessionResponse{ID: id, Snapshot: wiz.Snapshot()}, advanced})
}

// Submit handles POST /{id}/submit. Backend failures answer with the
// mapped status and the wizard, still on confirm, in the body.
func (h *BookingHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id, wiz, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if _, err := wiz.Submit(r.Context()); err != nil {
		writeJSON(w, statusFor(err), struct {
			sessionResponse
			Error string `json:"error"`
		}{sessionResponse{ID: id, Snapshot: wiz.Snapshot()}, err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{ID: id, Snapshot: wiz.Snapshot()})
}

// apply decodes body (when non-nil), runs fn and replies with the
// resulting snapshot.
func (h *BookingHandler) apply(w http.ResponseWriter, r *http.Request, body any, fn func(*booking.Wizard) error) {
	id, wiz, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if body != nil {
		if err := decodeBody(w, r, body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if err := fn(wiz); err != nil {
		writeJSON(w, statusFor(err), struct {
			sessionResponse
			Error string `json:"error"`
		}{sessionResponse{ID: id, Snapshot: wiz.Snapshot()}, err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{ID: id, Snapshot: wiz.Snapshot()})
}

func (h *BookingHandler) lookup(w http.ResponseWriter, r *http.Request) (string, *booking.Wizard, bool) {
	id := chi.URLParam(r, "id")
	entry, ok := h.wizards.Get(id)
	session, _ := middleware.SessionFrom(r.Context())
	if !ok || entry.patientID != session.PatientID {
		writeError(w, http.StatusNotFound, "booking session not found")
		return "", nil, false
	}
	return id, entry.wizard, true
}

// reportActive must not touch the store: the eviction callback runs with
// its lock held.
func (h *BookingHandler) reportActive(n int64) {
	if h.cfg.Gauge != nil {
		h.cfg.Gauge.SetActiveWizards(int(n))
	}
}

// Close drops every held wizard, abandoning their in-flight fetches.
func (h *BookingHandler) Close() {
	h.wizards.Purge()
}

// Active returns the number of held wizards.
func (h *BookingHandler) Active() int {
	return h.wizards.Len()
}
