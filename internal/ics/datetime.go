package ics

import (
	"fmt"
	"strings"
	"time"
)

const (
	layoutDate     = "20060102"
	layoutDateTime = "20060102T150405"
)

// NormalizeDate converts one calendar date token into a UTC instant.
//
//   - Anything up to the last ':' is discarded, so raw values carrying a
//     qualifier such as "VALUE=DATE:20240610" are accepted.
//   - An 8-digit all-day date becomes midnight UTC of that day (allDay=true).
//     All-day DTEND values are exclusive: a two-night stay from the 10th ends
//     on the 12th, and the value is returned as-is.
//   - A timestamp (YYYYMMDDTHHMMSS, with or without a trailing Z) is read as UTC.
func NormalizeDate(token string) (t time.Time, allDay bool, err error) {
	v := strings.TrimSpace(token)
	if i := strings.LastIndexByte(v, ':'); i >= 0 {
		v = strings.TrimSpace(v[i+1:])
	}

	switch {
	case len(v) == len(layoutDate) && isDigits(v):
		t, err = time.ParseInLocation(layoutDate, v, time.UTC)
		return t, true, err
	case len(v) >= len(layoutDateTime) && v[8] == 'T':
		t, err = time.ParseInLocation(layoutDateTime, strings.TrimSuffix(v, "Z"), time.UTC)
		return t, false, err
	}
	return time.Time{}, false, fmt.Errorf("ics: unrecognized date value %q", token)
}

// inZone reinterprets a floating timestamp (parsed as UTC wall clock) in the
// named IANA zone. Unknown zones leave t unchanged.
func inZone(t time.Time, tzid string) time.Time {
	loc, err := time.LoadLocation(strings.Trim(tzid, `"`))
	if err != nil {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc).UTC()
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
