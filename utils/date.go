// Package utils provides utility functions for the menu-co2e application.
package utils //nolint:revive // utils is a common and acceptable package name

import "time"

// DateLayout is the calendar date layout used by the cache documents.
const DateLayout = "2006-01-02"

// FormatDate formats t as YYYY-MM-DD in its own location.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD string as midnight of that date in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, loc)
}

// StartOfDay returns midnight of the calendar date t falls on when observed in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
