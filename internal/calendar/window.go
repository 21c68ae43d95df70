// Package calendar builds week and month grids for the schedule views and
// places appointment records onto them.
package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Unit selects the size of a calendar window.
type Unit string

const (
	UnitWeek  Unit = "week"
	UnitMonth Unit = "month"
)

// ErrUnknownUnit is returned by ParseUnit.
var ErrUnknownUnit = errors.New("calendar: unknown unit")

// ParseUnit accepts "week" or "month"; empty defaults to week.
func ParseUnit(s string) (Unit, error) {
	switch Unit(strings.ToLower(strings.TrimSpace(s))) {
	case "", UnitWeek:
		return UnitWeek, nil
	case UnitMonth:
		return UnitMonth, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownUnit, s)
}

// Cell is one day slot of a rendered window. Blank cells pad the first week
// of a month view and carry no date.
type Cell struct {
	Date     time.Time `json:"date"`
	IsToday  bool      `json:"is_today"`
	InPeriod bool      `json:"in_period"`
	Blank    bool      `json:"blank,omitempty"`
}

// MondayIndex remaps Go's Sunday=0 weekday numbering to Monday=0..Sunday=6.
func MondayIndex(d time.Weekday) int {
	if d == time.Sunday {
		return 6
	}
	return int(d) - 1
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SameDate compares calendar dates, not instants. b is viewed in a's zone.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}

// WeekStart returns midnight of the Monday of t's week shifted by offset weeks.
func WeekStart(t time.Time, offset int) time.Time {
	day := StartOfDay(t)
	return day.AddDate(0, 0, -MondayIndex(day.Weekday())+offset*7)
}

// MonthStart returns the first of t's month shifted by offset months.
func MonthStart(t time.Time, offset int) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m+time.Month(offset), 1, 0, 0, 0, 0, t.Location())
}

// ComputeWindow builds the cells for the window containing ref, moved by
// offset units. today marks the IsToday cell and is compared by calendar
// date in ref's location. Offsets are not clamped.
func ComputeWindow(ref time.Time, offset int, unit Unit, today time.Time) []Cell {
	if unit == UnitMonth {
		return monthCells(ref, offset, today)
	}
	return weekCells(ref, offset, today)
}

func weekCells(ref time.Time, offset int, today time.Time) []Cell {
	start := WeekStart(ref, offset)
	cells := make([]Cell, 7)
	for i := range cells {
		d := start.AddDate(0, 0, i)
		cells[i] = Cell{Date: d, IsToday: SameDate(d, today), InPeriod: true}
	}
	return cells
}

func monthCells(ref time.Time, offset int, today time.Time) []Cell {
	first := MonthStart(ref, offset)
	lead := MondayIndex(first.Weekday())
	days := first.AddDate(0, 1, -1).Day()

	cells := make([]Cell, 0, lead+days)
	for i := 0; i < lead; i++ {
		cells = append(cells, Cell{Blank: true})
	}
	for i := 0; i < days; i++ {
		d := first.AddDate(0, 0, i)
		cells = append(cells, Cell{Date: d, IsToday: SameDate(d, today), InPeriod: true})
	}
	return cells
}

// Range is the half-open interval [Start, End) covered by a window.
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls in [Start, End).
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Days is the number of whole days in the range.
func (r Range) Days() int {
	return int(r.End.Sub(r.Start).Round(time.Hour).Hours() / 24)
}

// RangeOf returns [first dated cell, last dated cell + 1 day). It is the
// zero Range when cells holds no dated cell.
func RangeOf(cells []Cell) Range {
	var r Range
	for _, c := range cells {
		if c.Blank {
			continue
		}
		if r.Start.IsZero() {
			r.Start = c.Date
		}
		r.End = c.Date.AddDate(0, 0, 1)
	}
	return r
}

// Builder computes windows against a clock that is read on every call, so
// IsToday is never cached across renders.
type Builder struct {
	Location *time.Location
	Now      func() time.Time
}

// NewBuilder returns a Builder on the wall clock in loc.
func NewBuilder(loc *time.Location) *Builder {
	if loc == nil {
		loc = time.Local
	}
	return &Builder{Location: loc, Now: time.Now}
}

// Today is the current instant in the builder's location.
func (b *Builder) Today() time.Time {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	return now().In(b.Location)
}

// Window builds the window around ref. A zero ref means "today".
func (b *Builder) Window(ref time.Time, offset int, unit Unit) []Cell {
	today := b.Today()
	if ref.IsZero() {
		ref = today
	}
	return ComputeWindow(ref.In(b.Location), offset, unit, today)
}
