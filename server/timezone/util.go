// Package timezone converts the millisecond timestamps of history records to and
// from user-facing local times.
package timezone

import (
	"fmt"
	"time"
)

// UTC is the default location.
var UTC = time.UTC

// DayLayout is the format of a calendar day parameter.
const DayLayout = "2006-01-02"

// ParseTimezone parses an IANA timezone identifier (e.g., "Europe/Paris").
// If the timezone is invalid, returns UTC and an error.
func ParseTimezone(tz string) (*time.Location, error) {
	if tz == "" || tz == "UTC" {
		return UTC, nil
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return UTC, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	return loc, nil
}

// IsValidTimezone checks if a timezone identifier is valid.
func IsValidTimezone(tz string) bool {
	_, err := ParseTimezone(tz)
	return err == nil
}

// ToLocal converts an epoch-millisecond timestamp to a time in tz.
func ToLocal(ts int64, tz *time.Location) time.Time {
	if tz == nil {
		tz = UTC
	}
	return time.UnixMilli(ts).In(tz)
}

// FormatTimestamp formats an epoch-millisecond timestamp in tz.
// The format should be a valid Go time layout (e.g., time.RFC3339).
func FormatTimestamp(ts int64, tz *time.Location, layout string) string {
	return ToLocal(ts, tz).Format(layout)
}

// StartOfDay returns the start of the day (00:00:00) in the given timezone.
func StartOfDay(t time.Time, tz *time.Location) time.Time {
	if tz == nil {
		tz = UTC
	}
	local := t.In(tz)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, tz)
}

// EndOfDay returns the last millisecond of the day in the given timezone.
func EndOfDay(t time.Time, tz *time.Location) time.Time {
	return StartOfDay(t, tz).AddDate(0, 0, 1).Add(-time.Millisecond)
}

// DayRange returns the inclusive epoch-millisecond bounds of a calendar day
// ("2006-01-02") in tz.
func DayRange(day string, tz *time.Location) (int64, int64, error) {
	if tz == nil {
		tz = UTC
	}
	t, err := time.ParseInLocation(DayLayout, day, tz)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid day %q: expected YYYY-MM-DD", day)
	}
	return StartOfDay(t, tz).UnixMilli(), EndOfDay(t, tz).UnixMilli(), nil
}
