package calendar

import (
	"time"

	"github.com/wolfman30/clinic-scheduler/internal/appointments"
)

// GridConfig describes the visual time-of-day grid.
type GridConfig struct {
	StartHour  int
	EndHour    int
	HourHeight float64
	// ExcludeTypes are record types that never appear on this grid.
	ExcludeTypes []appointments.Type
	// Location is the wall-clock zone records are viewed in. Nil keeps each
	// record's own zone.
	Location *time.Location
}

// DefaultGridConfig matches the staff week view: 08:00-18:00, 80 units per
// hour, lab tests excluded.
func DefaultGridConfig() GridConfig {
	return GridConfig{
		StartHour:    8,
		EndHour:      18,
		HourHeight:   80,
		ExcludeTypes: []appointments.Type{appointments.TypeLabTest},
	}
}

// Category is the closed set of visual treatments for a status.
type Category string

const (
	CategoryConfirmed Category = "confirmed"
	CategoryPending   Category = "pending"
	CategoryOther     Category = "other"
)

// CategoryFor maps a status onto its visual category.
func CategoryFor(s appointments.Status) Category {
	switch s {
	case appointments.StatusConfirmed:
		return CategoryConfirmed
	case appointments.StatusPending:
		return CategoryPending
	default:
		return CategoryOther
	}
}

// Placed is a record with its grid coordinates. Top and Height are in
// HourHeight units; Left and Width are fractions of the grid body width.
type Placed struct {
	Record   appointments.Record `json:"record"`
	DayIndex int                 `json:"day_index"`
	Top      float64             `json:"top"`
	Height   float64             `json:"height"`
	Left     float64             `json:"left"`
	Width    float64             `json:"width"`
	Category Category            `json:"category"`
}

// DropReason explains why a record was left off the grid.
type DropReason string

const (
	DropExcludedType DropReason = "excluded_type"
	DropNoTimestamp  DropReason = "no_timestamp"
	DropOutOfWindow  DropReason = "out_of_window"
	DropOutOfHours   DropReason = "out_of_hours"
)

// Report counts the records dropped by each filter.
type Report struct {
	Placed  int
	Dropped map[DropReason]int
}

// PlaceAppointments maps records onto the week grid covering rng.
func PlaceAppointments(records []appointments.Record, rng Range, cfg GridConfig) []Placed {
	placed, _ := PlaceWithReport(records, rng, cfg)
	return placed
}

// PlaceWithReport is PlaceAppointments plus per-reason drop counts. The
// filters apply in order and stop at the first failure. Records at the
// same coordinates are placed independently.
func PlaceWithReport(records []appointments.Record, rng Range, cfg GridConfig) ([]Placed, Report) {
	report := Report{Dropped: make(map[DropReason]int)}
	placed := make([]Placed, 0, len(records))
	for _, rec := range records {
		p, reason, ok := place(rec, rng, cfg)
		if !ok {
			report.Dropped[reason]++
			continue
		}
		placed = append(placed, p)
	}
	report.Placed = len(placed)
	return placed, report
}

func place(rec appointments.Record, rng Range, cfg GridConfig) (Placed, DropReason, bool) {
	if excluded(rec.Type, cfg.ExcludeTypes) {
		return Placed{}, DropExcludedType, false
	}
	if rec.Time == nil || rec.Time.IsZero() {
		return Placed{}, DropNoTimestamp, false
	}
	at := *rec.Time
	if cfg.Location != nil {
		at = at.In(cfg.Location)
	}
	if !rng.Contains(at) {
		return Placed{}, DropOutOfWindow, false
	}
	if !withinHours(at, cfg.StartHour, cfg.EndHour) {
		return Placed{}, DropOutOfHours, false
	}

	dayIndex := MondayIndex(at.Weekday())
	hour, minute := at.Hour(), at.Minute()
	top := float64(hour-cfg.StartHour)*cfg.HourHeight + (float64(minute)/60)*cfg.HourHeight
	return Placed{
		Record:   rec,
		DayIndex: dayIndex,
		Top:      top,
		Height:   cfg.HourHeight,
		Left:     float64(dayIndex) / 7,
		Width:    1.0 / 7,
		Category: CategoryFor(rec.Status),
	}, "", true
}

// withinHours keeps [startHour:00, endHour:00]. Anything after endHour:00,
// even by a second, is clamped off the grid.
func withinHours(t time.Time, startHour, endHour int) bool {
	hour := t.Hour()
	if hour < startHour || hour > endHour {
		return false
	}
	if hour == endHour && (t.Minute() > 0 || t.Second() > 0 || t.Nanosecond() > 0) {
		return false
	}
	return true
}

func excluded(t appointments.Type, list []appointments.Type) bool {
	for _, x := range list {
		if x == t {
			return true
		}
	}
	return false
}

// MonthPlacement assigns a record to a cell of a month window.
type MonthPlacement struct {
	Record    appointments.Record `json:"record"`
	CellIndex int                 `json:"cell_index"`
	Category  Category            `json:"category"`
}

// PlaceInMonth maps records onto month cells by calendar date. The type,
// timestamp and window filters match the week grid; the hour clamp does
// too, so a record hidden in the week view is hidden here as well.
func PlaceInMonth(records []appointments.Record, cells []Cell, cfg GridConfig) []MonthPlacement {
	index := make(map[string]int, len(cells))
	for i, c := range cells {
		if !c.Blank {
			index[c.Date.Format(appointments.DateLayout)] = i
		}
	}
	rng := RangeOf(cells)
	out := make([]MonthPlacement, 0, len(records))
	for _, rec := range records {
		p, _, ok := place(rec, rng, cfg)
		if !ok {
			continue
		}
		at := *rec.Time
		if cfg.Location != nil {
			at = at.In(cfg.Location)
		}
		i, found := index[at.Format(appointments.DateLayout)]
		if !found {
			continue
		}
		out = append(out, MonthPlacement{Record: rec, CellIndex: i, Category: p.Category})
	}
	return out
}
