package ics

import (
	"bytes"
	"strings"
	"time"
)

// Event is one VEVENT read from an inbound feed. It is transient: produced by
// Parse, consumed by the reconciler, then discarded.
type Event struct {
	UID         string
	Summary     string
	Description string
	// Status is the raw STATUS value (e.g. "CONFIRMED", "CANCELLED"), if any.
	Status string

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule string
	ExDates  []time.Time
}

// Cancelled reports whether the feed marks the event as cancelled.
func (e Event) Cancelled() bool {
	return strings.EqualFold(e.Status, "CANCELLED")
}

// ParseStats describes what Parse saw, so callers can tell "feed empty" apart
// from "every block was malformed".
type ParseStats struct {
	Blocks  int // BEGIN:VEVENT occurrences
	Dropped int // blocks discarded for missing DTSTART or DTEND
}

// Parse converts raw feed text into events. It never fails: blocks without
// both a start and an end are dropped, unknown lines are ignored and input
// that is not a calendar at all yields an empty slice.
func Parse(body []byte) []Event {
	events, _ := ParseWithStats(body)
	return events
}

// ParseWithStats is Parse plus a count of opened and dropped VEVENT blocks.
func ParseWithStats(body []byte) ([]Event, ParseStats) {
	var stats ParseStats
	events := make([]Event, 0)

	var cur *eventBuilder
	// depth counts components nested inside the current VEVENT (VALARM etc.);
	// their properties must not leak into the event.
	depth := 0

	for _, line := range unfold(body) {
		name, params, value, ok := splitContentLine(line)
		if !ok {
			continue
		}

		switch name {
		case "BEGIN":
			if strings.EqualFold(value, "VEVENT") {
				stats.Blocks++
				if cur != nil {
					// previous block never closed
					stats.Dropped++
				}
				cur = &eventBuilder{}
				depth = 0
			} else if cur != nil {
				depth++
			}
			continue
		case "END":
			if cur == nil {
				continue
			}
			if !strings.EqualFold(value, "VEVENT") {
				if depth > 0 {
					depth--
				}
				continue
			}
			if cur.hasStart && cur.hasEnd {
				events = append(events, cur.ev)
			} else {
				stats.Dropped++
			}
			cur = nil
			continue
		}

		if cur == nil || depth > 0 {
			continue
		}
		cur.apply(name, params, value)
	}

	if cur != nil {
		stats.Dropped++
	}
	return events, stats
}

type eventBuilder struct {
	ev       Event
	hasStart bool
	hasEnd   bool
}

func (b *eventBuilder) apply(name string, params map[string]string, value string) {
	switch name {
	case "UID":
		b.ev.UID = strings.TrimSpace(value)
	case "SUMMARY":
		b.ev.Summary = unescapeText(value)
	case "DESCRIPTION":
		b.ev.Description = unescapeText(value)
	case "STATUS":
		b.ev.Status = strings.ToUpper(strings.TrimSpace(value))
	case "RRULE":
		b.ev.RawRRule = strings.TrimSpace(value)
	case "DTSTART":
		if t, allDay, ok := parseDateProp(params, value); ok {
			b.ev.Start = t
			b.ev.AllDay = allDay
			b.hasStart = true
		}
	case "DTEND":
		if t, _, ok := parseDateProp(params, value); ok {
			b.ev.End = t
			b.hasEnd = true
		}
	case "EXDATE":
		for _, part := range strings.Split(value, ",") {
			if t, _, ok := parseDateProp(params, part); ok {
				b.ev.ExDates = append(b.ev.ExDates, t)
			}
		}
	}
}

func parseDateProp(params map[string]string, value string) (time.Time, bool, bool) {
	t, allDay, err := NormalizeDate(value)
	if err != nil {
		return time.Time{}, false, false
	}
	if strings.EqualFold(params["VALUE"], "DATE") {
		allDay = true
	}
	v := strings.TrimSpace(value)
	if tz := params["TZID"]; tz != "" && !allDay && !strings.HasSuffix(v, "Z") {
		t = inZone(t, tz)
	}
	return t, allDay, true
}

// unfold splits the body into logical lines, joining RFC 5545 continuation
// lines (leading space or tab) and tolerating both CRLF and LF.
func unfold(body []byte) []string {
	raw := bytes.Split(body, []byte("\n"))
	lines := make([]string, 0, len(raw))
	for _, r := range raw {
		l := strings.TrimRight(string(r), "\r")
		if l == "" {
			continue
		}
		if (l[0] == ' ' || l[0] == '\t') && len(lines) > 0 {
			lines[len(lines)-1] += l[1:]
			continue
		}
		lines = append(lines, l)
	}
	return lines
}

// splitContentLine splits `NAME;P1=a;P2="b:c":value` into its parts. The
// name and parameter keys are upper-cased.
func splitContentLine(line string) (name string, params map[string]string, value string, ok bool) {
	line = strings.TrimSpace(line)
	colon := -1
	inQuote := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			inQuote = !inQuote
		case ':':
			if !inQuote {
				colon = i
			}
		}
		if colon >= 0 {
			break
		}
	}
	if colon <= 0 {
		return "", nil, "", false
	}

	head := strings.Split(line[:colon], ";")
	name = strings.ToUpper(strings.TrimSpace(head[0]))
	params = make(map[string]string, len(head)-1)
	for _, p := range head[1:] {
		k, v, found := strings.Cut(p, "=")
		if !found {
			continue
		}
		params[strings.ToUpper(strings.TrimSpace(k))] = strings.Trim(strings.TrimSpace(v), `"`)
	}
	return name, params, line[colon+1:], true
}

var textUnescaper = strings.NewReplacer(`\\`, `\`, `\,`, `,`, `\;`, `;`, `\n`, "\n", `\N`, "\n")

func unescapeText(s string) string {
	return textUnescaper.Replace(strings.TrimSpace(s))
}
