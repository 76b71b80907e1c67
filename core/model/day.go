package model

import (
	"fmt"
	"time"
)

// DayLayout is the wire format of a planning day.
const DayLayout = "2006-01-02"

// Day truncates t to the calendar day it falls on, expressed as UTC midnight.
// The calendar day is read in t's own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string into a planning day.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad date %q", ErrInvalid, s)
	}
	return t, nil
}

// SameDay reports whether a and b fall on the same planning day.
func SameDay(a, b time.Time) bool {
	return Day(a).Equal(Day(b))
}
