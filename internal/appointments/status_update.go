package appointments

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ItemTypeAppointment is the only item kind this service updates.
const ItemTypeAppointment = "appointment"

var (
	ErrRescheduleIncomplete = errors.New("appointments: reschedule requires both new date and new time")
	ErrInvalidItem          = errors.New("appointments: invalid item")
	ErrInvalidDate          = errors.New("appointments: invalid date")
	ErrInvalidTime          = errors.New("appointments: invalid time")
)

// Date and time layouts used by the backend for booking fields.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// StatusUpdate is a staff action on one appointment. NewResult carries a
// lab result and is sent with any status.
type StatusUpdate struct {
	ItemType  string `json:"item_type"`
	ItemID    int64  `json:"item_id"`
	NewStatus Status `json:"new_status"`
	NewDate   string `json:"new_date,omitempty"`
	NewTime   string `json:"new_time,omitempty"`
	NewResult string `json:"new_result,omitempty"`
}

// Validate checks the update before any network call. Date and time are
// required together only for a reschedule and are dropped otherwise.
func (u *StatusUpdate) Validate() error {
	u.NewResult = strings.TrimSpace(u.NewResult)
	if u.ItemType == "" {
		u.ItemType = ItemTypeAppointment
	}
	if u.ItemType != ItemTypeAppointment {
		return fmt.Errorf("%w: type %q", ErrInvalidItem, u.ItemType)
	}
	if u.ItemID <= 0 {
		return fmt.Errorf("%w: id %d", ErrInvalidItem, u.ItemID)
	}
	status, err := ParseStatus(string(u.NewStatus))
	if err != nil {
		return err
	}
	u.NewStatus = status

	if status != StatusRescheduled {
		u.NewDate, u.NewTime = "", ""
		return nil
	}
	u.NewDate = strings.TrimSpace(u.NewDate)
	u.NewTime = strings.TrimSpace(u.NewTime)
	if u.NewDate == "" || u.NewTime == "" {
		return ErrRescheduleIncomplete
	}
	if _, err := time.Parse(DateLayout, u.NewDate); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, u.NewDate)
	}
	if _, err := time.Parse(TimeLayout, u.NewTime); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidTime, u.NewTime)
	}
	return nil
}

// Action names a staff button on the appointment detail panel.
type Action string

const (
	ActionConfirm    Action = "confirm"
	ActionReschedule Action = "reschedule"
	ActionCancel     Action = "cancel"
	ActionProcess    Action = "process"
	ActionComplete   Action = "complete"
)

// StatusFor maps a staff action onto the status it sets.
func StatusFor(a Action) (Status, bool) {
	switch a {
	case ActionConfirm:
		return StatusConfirmed, true
	case ActionReschedule:
		return StatusRescheduled, true
	case ActionCancel:
		return StatusCancelled, true
	case ActionProcess:
		return StatusProcessing, true
	case ActionComplete:
		return StatusCompleted, true
	}
	return "", false
}
