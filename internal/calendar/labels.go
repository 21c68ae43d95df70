package calendar

import (
	"fmt"
	"time"
)

// HeaderLabel formats a range as "Oct 19 - Oct 25" with the year appended
// to each end that is not in the current year of now.
func HeaderLabel(r Range, now time.Time) string {
	if r.Start.IsZero() {
		return ""
	}
	last := r.End.AddDate(0, 0, -1)
	return fmt.Sprintf("%s - %s", shortDate(r.Start, now), shortDate(last, now))
}

func shortDate(d, now time.Time) string {
	if d.Year() != now.Year() {
		return d.Format("Jan 2, 2006")
	}
	return d.Format("Jan 2")
}

// MonthLabel formats the month of the first dated cell, e.g. "October 2026".
func MonthLabel(r Range) string {
	if r.Start.IsZero() {
		return ""
	}
	return r.Start.Format("January 2006")
}

// HourLabels returns the time-axis labels from startHour through endHour
// inclusive, e.g. "08:00 AM".
func HourLabels(startHour, endHour int) []string {
	if endHour < startHour {
		return nil
	}
	labels := make([]string, 0, endHour-startHour+1)
	base := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	for h := startHour; h <= endHour; h++ {
		labels = append(labels, base.Add(time.Duration(h)*time.Hour).Format("03:04 PM"))
	}
	return labels
}

// WeekdayLabels are the column headers of a Monday-first grid.
func WeekdayLabels() []string {
	return []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}
}
