// Package handlers exposes the calendar, staff dashboard and booking
// wizard over JSON.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/clinic-scheduler/internal/appointments"
	"github.com/wolfman30/clinic-scheduler/internal/booking"
	"github.com/wolfman30/clinic-scheduler/internal/calendar"
	"github.com/wolfman30/clinic-scheduler/internal/clinicapi"
)

const maxBodyBytes = 1 << 16

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeFailure maps an error from the core onto an HTTP status.
func writeFailure(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}
	var apiErr *clinicapi.APIError
	if errors.As(err, &apiErr) {
		body.Detail = apiErr.Detail
	}
	writeJSON(w, status, body)
}

func statusFor(err error) int {
	var apiErr *clinicapi.APIError
	switch {
	case errors.Is(err, booking.ErrNoSession):
		return http.StatusUnauthorized
	case errors.Is(err, booking.ErrTerminal),
		errors.Is(err, booking.ErrWrongStep),
		errors.Is(err, booking.ErrSubmitInProgress),
		errors.Is(err, booking.ErrCancelled):
		return http.StatusConflict
	case errors.Is(err, booking.ErrUnknownDepartment),
		errors.Is(err, booking.ErrUnknownDoctor),
		errors.Is(err, booking.ErrDepartmentMismatch),
		errors.Is(err, booking.ErrInvalidDate),
		errors.Is(err, booking.ErrDateInPast),
		errors.Is(err, booking.ErrSlotUnavailable),
		errors.Is(err, booking.ErrUnsupportedType),
		errors.Is(err, booking.ErrIncompleteDraft):
		return http.StatusUnprocessableEntity
	case errors.Is(err, clinicapi.ErrInvalidRequest),
		errors.Is(err, calendar.ErrUnknownUnit),
		errors.Is(err, appointments.ErrRescheduleIncomplete),
		errors.Is(err, appointments.ErrInvalidItem),
		errors.Is(err, appointments.ErrInvalidDate),
		errors.Is(err, appointments.ErrInvalidTime),
		errors.Is(err, appointments.ErrUnknownStatus):
		return http.StatusBadRequest
	case errors.As(err, &apiErr):
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			return apiErr.StatusCode
		}
		return http.StatusBadGateway
	case clinicapi.IsRetryable(err):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
