package period

import (
	"fmt"
	"time"
)

// Date normalises t to midnight UTC of its calendar day.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewDate builds a civil date.
func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// MustParse parses a YYYY-MM-DD date and panics on malformed input.
// Intended for tests and constants.
func MustParse(s string) time.Time {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Parse parses a YYYY-MM-DD date.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// Ptr returns a pointer to the normalised date of t.
func Ptr(t time.Time) *time.Time {
	d := Date(t)
	return &d
}

// IsActive reports whether at lies inside [start, end]. Both bounds are
// inclusive; a nil start means "since the beginning of time" and a nil end
// means "never expires".
func IsActive(start, end *time.Time, at time.Time) bool {
	day := Date(at)
	if start != nil && Date(*start).After(day) {
		return false
	}
	if end != nil && Date(*end).Before(day) {
		return false
	}
	return true
}

// Interval is an optionally open-ended date range.
type Interval struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// Contains reports whether at is inside the interval.
func (i Interval) Contains(at time.Time) bool {
	return IsActive(i.Start, i.End, at)
}

// Valid reports whether the interval can contain at least one day.
func (i Interval) Valid() bool {
	if i.Start == nil || i.End == nil {
		return true
	}
	return !Date(*i.Start).After(Date(*i.End))
}

// Clamp intersects the interval with the closed range [start, end].
// ok is false when the intersection is empty.
func (i Interval) Clamp(start, end time.Time) (from, to time.Time, ok bool) {
	from, to = Date(start), Date(end)
	if i.Start != nil && Date(*i.Start).After(from) {
		from = Date(*i.Start)
	}
	if i.End != nil && Date(*i.End).Before(to) {
		to = Date(*i.End)
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func (i Interval) String() string {
	start, end := "-inf", "+inf"
	if i.Start != nil {
		start = Date(*i.Start).Format(time.DateOnly)
	}
	if i.End != nil {
		end = Date(*i.End).Format(time.DateOnly)
	}
	return "[" + start + ", " + end + "]"
}

// DaysInclusive counts the calendar days in [start, end], counting both ends.
// The result is zero or negative when end precedes start.
func DaysInclusive(start, end time.Time) int {
	return int((Date(end).Unix()-Date(start).Unix())/secondsPerDay) + 1
}

const secondsPerDay = 24 * 60 * 60

// Billing is a calendar-month billing window. End is the last day accrued,
// which is "today" for the month in progress.
type Billing struct {
	Start time.Time
	End   time.Time
}

// Month returns the billing window [first day of today's month, today].
func Month(today time.Time) Billing {
	d := Date(today)
	return Billing{
		Start: time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC),
		End:   d,
	}
}

// Key identifies the billing month, e.g. "2024-01".
func (b Billing) Key() string {
	return b.Start.Format("2006-01")
}

// Days returns the number of days accrued in the window.
func (b Billing) Days() int {
	return DaysInclusive(b.Start, b.End)
}
