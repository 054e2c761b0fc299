package ics

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	appLog "delfin/internal/log"
)

const (
	defaultMaxOccurrencesPerEvent = 5000
)

// Expand turns recurring blocks into one Event per occurrence inside
// [from, to]. Events without an RRULE pass through unchanged, whatever their
// dates. Each occurrence gets the UID "<uid>#<YYYYMMDD>" so it reconciles to
// the same reservation on every sync.
//
// An RRULE that cannot be parsed leaves the base event as-is.
func Expand(events []Event, from, to time.Time, maxPerEvent int) []Event {
	if maxPerEvent <= 0 {
		maxPerEvent = defaultMaxOccurrencesPerEvent
	}

	out := make([]Event, 0, len(events))
	for _, ev := range events {
		if ev.RawRRule == "" {
			out = append(out, ev)
			continue
		}

		occ, hitCap, err := expandRecurring(ev, from, to, maxPerEvent)
		if err != nil {
			appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
			out = append(out, ev)
			continue
		}
		if hitCap {
			appLog.Error("expand: truncated occurrences for UID due to cap",
				errors.New("max occurrences reached"),
				"uid", ev.UID,
				"cap", maxPerEvent,
			)
		}
		out = append(out, occ...)
	}
	return out
}

func expandRecurring(ev Event, from, to time.Time, maxPerEvent int) ([]Event, bool, error) {
	opt, err := rrule.StrToROption(ev.RawRRule)
	if err != nil {
		return nil, false, err
	}
	opt.Dtstart = ev.Start
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, false, err
	}

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex)
	}

	starts := set.Between(from, to, true)
	hitCap := false
	if len(starts) > maxPerEvent {
		starts = starts[:maxPerEvent]
		hitCap = true
	}

	dur := ev.End.Sub(ev.Start)
	out := make([]Event, 0, len(starts))
	for _, s := range starts {
		s = s.UTC()
		occ := ev
		occ.UID = fmt.Sprintf("%s#%s", ev.UID, s.Format(layoutDate))
		occ.Start = s
		occ.End = s.Add(dur)
		occ.RawRRule = ""
		occ.ExDates = nil
		out = append(out, occ)
	}
	return out, hitCap, nil
}
