// Package booking implements the patient booking wizard: department,
// specialist, date and slot, then confirmation against the clinic backend.
package booking

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/clinic-scheduler/internal/appointments"
	"github.com/wolfman30/clinic-scheduler/internal/clinicapi"
)

// Step is a wizard state. Success and Cancelled are terminal.
type Step int

const (
	StepSelectDepartment Step = iota
	StepSelectSpecialist
	StepSelectSchedule
	StepConfirm
	StepSuccess
	StepCancelled
)

var stepNames = [...]string{
	StepSelectDepartment: "select_department",
	StepSelectSpecialist: "select_specialist",
	StepSelectSchedule:   "select_schedule",
	StepConfirm:          "confirm",
	StepSuccess:          "success",
	StepCancelled:        "cancelled",
}

func (s Step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return fmt.Sprintf("step(%d)", int(s))
	}
	return stepNames[s]
}

// MarshalText renders the step name in JSON.
func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether the flow has ended.
func (s Step) Terminal() bool {
	return s == StepSuccess || s == StepCancelled
}

// SlotState tells "still fetching" apart from "fetched, nothing free".
type SlotState string

const (
	SlotIdle    SlotState = "idle"
	SlotLoading SlotState = "loading"
	SlotReady   SlotState = "ready"
	SlotFailed  SlotState = "failed"
)

var (
	ErrTerminal           = errors.New("booking: flow has ended")
	ErrWrongStep          = errors.New("booking: action not allowed at this step")
	ErrUnknownDepartment  = errors.New("booking: unknown department")
	ErrUnknownDoctor      = errors.New("booking: unknown doctor")
	ErrDepartmentMismatch = errors.New("booking: doctor is not in the selected department")
	ErrInvalidDate        = errors.New("booking: invalid date")
	ErrDateInPast         = errors.New("booking: date is in the past")
	ErrSlotUnavailable    = errors.New("booking: slot is not in the current availability")
	ErrUnsupportedType    = errors.New("booking: unsupported consultation type")
	ErrNoSession          = errors.New("booking: no patient session")
	ErrSubmitInProgress   = errors.New("booking: submission already in progress")
	ErrIncompleteDraft    = errors.New("booking: draft is incomplete")
	ErrCancelled          = errors.New("booking: flow was cancelled")
)

// Draft is the in-progress selection. It is discarded when the flow ends.
type Draft struct {
	Department string            `json:"department,omitempty"`
	Doctor     *clinicapi.Doctor `json:"doctor,omitempty"`
	Date       string            `json:"date,omitempty"`
	Slot       string            `json:"slot,omitempty"`
	Type       appointments.Type `json:"type"`
}

func (d Draft) complete() bool {
	return d.Doctor != nil && d.Date != "" && d.Slot != "" && d.Type != ""
}

// NoticeKind separates input problems from backend failures.
type NoticeKind string

const (
	NoticeValidation NoticeKind = "validation"
	NoticeBackend    NoticeKind = "backend"
)

// Notice is the inline, non-fatal message shown beside the current step.
type Notice struct {
	Kind      NoticeKind `json:"kind"`
	Message   string     `json:"message"`
	Retryable bool       `json:"retryable"`
}

func validationNotice(err error) *Notice {
	msg := err.Error()
	msg = strings.TrimPrefix(msg, "booking: ")
	return &Notice{Kind: NoticeValidation, Message: msg}
}

func backendNotice(err error) *Notice {
	msg := err.Error()
	var apiErr *clinicapi.APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		msg = apiErr.Detail
	}
	return &Notice{
		Kind:      NoticeBackend,
		Message:   msg,
		Retryable: !errors.Is(err, clinicapi.ErrInvalidRequest),
	}
}

// Confirmation is what the patient sees after a successful booking.
type Confirmation struct {
	Record     *appointments.Record `json:"appointment,omitempty"`
	Message    string               `json:"message,omitempty"`
	Doctor     clinicapi.Doctor     `json:"doctor"`
	Date       string               `json:"date"`
	Slot       string               `json:"slot"`
	Type       appointments.Type    `json:"type"`
	PriceCents int64                `json:"price_cents"`
	MeetingURL string               `json:"meeting_url,omitempty"`
}

// Snapshot is a read-only copy of the wizard for rendering.
type Snapshot struct {
	Step         Step               `json:"step"`
	Departments  []string           `json:"departments"`
	Draft        Draft              `json:"draft"`
	Specialists  []clinicapi.Doctor `json:"specialists"`
	Slots        []string           `json:"slots"`
	SlotState    SlotState          `json:"slot_state"`
	PriceCents   int64              `json:"price_cents"`
	PriceLabel   string             `json:"price_label"`
	Submitting   bool               `json:"submitting"`
	Notice       *Notice            `json:"notice,omitempty"`
	Confirmation *Confirmation      `json:"confirmation,omitempty"`
}
