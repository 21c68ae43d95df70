// Package appointments defines the validated appointment record consumed
// from the clinic backend and the staff-side status update request.
package appointments

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Type tags what kind of visit an appointment is.
type Type string

const (
	TypeConsultation Type = "consultation"
	TypeClinicVisit  Type = "clinic"
	TypeOnlineVideo  Type = "online"
	TypeLabTest      Type = "lab_test"
)

// Status is the backend lifecycle state of an appointment.
type Status string

const (
	StatusPending     Status = "pending"
	StatusConfirmed   Status = "confirmed"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusRescheduled Status = "rescheduled"
	StatusProcessing  Status = "processing"
)

var (
	ErrUnknownType    = errors.New("appointments: unknown type")
	ErrUnknownStatus  = errors.New("appointments: unknown status")
	ErrMissingID      = errors.New("appointments: missing id")
	ErrMissingPatient = errors.New("appointments: missing patient_id")
)

// ParseType normalizes a wire type tag. Hyphenated and long-form aliases
// seen from older endpoints map onto the canonical tags.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "consultation":
		return TypeConsultation, nil
	case "clinic", "clinic-visit", "clinic_visit":
		return TypeClinicVisit, nil
	case "online", "online-video", "online_video", "video":
		return TypeOnlineVideo, nil
	case "lab_test", "lab-test", "lab":
		return TypeLabTest, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// ParseStatus validates a wire status tag.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if st.Valid() {
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusRescheduled, StatusProcessing:
		return true
	}
	return false
}

// Record is one appointment as the staff calendar and patient views see it.
// Time is nil when the backend sent no usable timestamp; such records are
// kept so lists still show them, but they never reach the calendar grid.
type Record struct {
	ID           int64      `json:"id"`
	PatientID    int64      `json:"patient_id"`
	DoctorID     *int64     `json:"doctor_id,omitempty"`
	Time         *time.Time `json:"appointment_time,omitempty"`
	Type         Type       `json:"type"`
	Status       Status     `json:"status"`
	PatientName  string     `json:"patient_name,omitempty"`
	PatientPhone string     `json:"patient_phone,omitempty"`
	DoctorName   string     `json:"doctor_name,omitempty"`
	MeetingLink  string     `json:"zoom_link,omitempty"`
}

// IsLabTest reports whether the record belongs to the lab queue.
func (r Record) IsLabTest() bool {
	return r.Type == TypeLabTest
}

// Label is the short title shown on a calendar block.
func (r Record) Label() string {
	if r.Type == TypeConsultation {
		return "Consultation"
	}
	return "Appointment"
}
