package terminal

import (
	"fmt"
	"time"
)

// Date is a calendar date with no time of day.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, invalidf("parse date", "date %q must be YYYY-MM-DD", s)
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Compare returns -1, 0 or +1.
func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return cmpInt(d.Year, o.Year)
	case d.Month != o.Month:
		return cmpInt(int(d.Month), int(o.Month))
	default:
		return cmpInt(d.Day, o.Day)
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// MonthWindow returns the inclusive window used for "this month":
// the first day of the previous calendar month through today.
func MonthWindow(today Date) (from, to Date) {
	first := time.Date(today.Year, today.Month, 1, 0, 0, 0, 0, time.UTC)
	prev := first.AddDate(0, -1, 0)
	return DateOf(prev), today
}

// AttendanceFilter selects attendance events. Zero fields match everything.
type AttendanceFilter struct {
	// UserID matches the event's user id exactly.
	UserID string

	// On, when set, keeps only events on that calendar date.
	On *Date

	// From and To bound the calendar date inclusively.
	From *Date
	To   *Date

	// AfterYear keeps only events strictly after that year. 0 disables it.
	AfterYear int
}

// Match reports whether e passes the filter. Dates compare on the
// calendar date of the event timestamp in its own location.
func (f AttendanceFilter) Match(e AttendanceEvent) bool {
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.AfterYear > 0 && e.Timestamp.Year() <= f.AfterYear {
		return false
	}
	d := DateOf(e.Timestamp)
	if f.On != nil && d != *f.On {
		return false
	}
	if f.From != nil && d.Compare(*f.From) < 0 {
		return false
	}
	if f.To != nil && d.Compare(*f.To) > 0 {
		return false
	}
	return true
}

// FilterAttendance returns the events matching f, preserving order.
func FilterAttendance(events []AttendanceEvent, f AttendanceFilter) []AttendanceEvent {
	out := make([]AttendanceEvent, 0, len(events))
	for _, e := range events {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}
