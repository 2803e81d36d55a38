package bind

import (
	"strings"
	"sync/atomic"
	"time"
)

var timeZone atomic.Pointer[time.Location]

// SetTimeZone sets the location used for datetime strings that carry no
// offset. The default is UTC.
func SetTimeZone(loc *time.Location) {
	timeZone.Store(loc)
}

// TimeZone returns the location set by SetTimeZone.
func TimeZone() *time.Location {
	if loc := timeZone.Load(); loc != nil {
		return loc
	}
	return time.UTC
}

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05 -0700",
	time.RFC1123Z,
}

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

func coerceDateTime(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		return x
	case *time.Time:
		if x == nil {
			return nil
		}
		return *x
	case string:
		t, ok := parseTime(x)
		if !ok {
			return nil
		}
		return t
	}
	return nil
}

func coerceDate(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		return x
	case string:
		t, ok := parseTime(x)
		if !ok {
			return nil
		}
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return nil
}

// parseTime accepts RFC 3339 style timestamps with or without an offset.
// Blank or unrecognized input reports false.
func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	loc := TimeZone()
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
