package util

import "time"

// IsBusinessDay reports whether t falls on Monday through Friday. Exchange
// holidays are not modeled.
func IsBusinessDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}

// NextBusinessDays returns the n business days strictly after t, each at
// midnight in t's location.
func NextBusinessDays(t time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	out := make([]time.Time, 0, n)
	for len(out) < n {
		day = day.AddDate(0, 0, 1)
		if IsBusinessDay(day) {
			out = append(out, day)
		}
	}
	return out
}

// StartOfWeek returns midnight of the Monday on or before t.
func StartOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return d.AddDate(0, 0, -offset)
}
