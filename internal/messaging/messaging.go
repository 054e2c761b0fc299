// Package messaging renders guest message templates and decides when a
// scheduled template is due for a reservation.
package messaging

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"delfin/internal/model"
)

// DateLayout is how dates appear in guest-facing messages (dd/mm/yyyy).
const DateLayout = "02/01/2006"

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Render replaces {{ key }} placeholders with values from vars. Unknown
// placeholders are left untouched so a typo is visible in the preview
// instead of silently vanishing.
func Render(body string, vars map[string]string) string {
	return placeholder.ReplaceAllStringFunc(body, func(m string) string {
		key := placeholder.FindStringSubmatch(m)[1]
		if v, ok := vars[key]; ok {
			return v
		}
		return m
	})
}

// Placeholders lists the distinct keys referenced by body, in order of
// first appearance.
func Placeholders(body string) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, m := range placeholder.FindAllStringSubmatch(body, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			keys = append(keys, m[1])
		}
	}
	return keys
}

// VarsFor builds the template variables for a reservation. Dates are shown
// in loc. extra (e.g. directions, wifi) is merged first so reservation data
// always wins on a name clash.
func VarsFor(res model.Reservation, room model.Room, loc *time.Location, extra map[string]string) map[string]string {
	if loc == nil {
		loc = time.UTC
	}
	vars := make(map[string]string, len(extra)+10)
	for k, v := range extra {
		vars[k] = v
	}

	vars["guest_name"] = res.GuestName
	vars["room_name"] = room.Name
	vars["room_number"] = room.ID
	vars["check_in_date"] = res.CheckIn.In(loc).Format(DateLayout)
	vars["check_out_date"] = res.CheckOut.In(loc).Format(DateLayout)
	vars["nights"] = strconv.Itoa(res.Nights())
	vars["guest_paid"] = fmt.Sprintf("%.2f", res.GuestPaid)
	vars["total_price"] = fmt.Sprintf("%.2f", res.TotalPrice)
	vars["currency"] = res.Currency
	vars["reservation_id"] = res.ID
	return vars
}

// Due reports whether a scheduled trigger fires for res at now. Windows are
// half-open, [start, end):
//
//	t_minus_7_days        [check-in - N days, +24h)
//	t_minus_24_hours      [check-in - 24h, check-in)
//	checkin_instructions  [check-in - 12h, check-in + 12h)
//	post_checkout         [check-out + 2h, check-out + 26h)
//
// reservation_confirmed is event-driven and never due here. Only confirmed
// reservations qualify.
func Due(trigger model.Trigger, res model.Reservation, now time.Time, daysBefore int) bool {
	if res.Status != model.StatusConfirmed {
		return false
	}
	if daysBefore <= 0 {
		daysBefore = 7
	}

	var start, end time.Time
	switch trigger {
	case model.TriggerDaysBeforeArrival:
		start = res.CheckIn.AddDate(0, 0, -daysBefore)
		end = start.Add(24 * time.Hour)
	case model.TriggerHoursBeforeArrival:
		start = res.CheckIn.Add(-24 * time.Hour)
		end = res.CheckIn
	case model.TriggerCheckinInstructions:
		start = res.CheckIn.Add(-12 * time.Hour)
		end = res.CheckIn.Add(12 * time.Hour)
	case model.TriggerPostCheckout:
		start = res.CheckOut.Add(2 * time.Hour)
		end = res.CheckOut.Add(26 * time.Hour)
	default:
		return false
	}
	return !now.Before(start) && now.Before(end)
}

// ScheduledTriggers are the triggers evaluated by the periodic dispatcher.
var ScheduledTriggers = []model.Trigger{
	model.TriggerDaysBeforeArrival,
	model.TriggerHoursBeforeArrival,
	model.TriggerCheckinInstructions,
	model.TriggerPostCheckout,
}

// Subject returns the e-mail subject line for a trigger.
func Subject(trigger model.Trigger, room model.Room) string {
	switch trigger {
	case model.TriggerReservationConfirmed:
		return "Reserva confirmada - " + room.Name
	case model.TriggerDaysBeforeArrival:
		return "Tu llegada se acerca - " + room.Name
	case model.TriggerHoursBeforeArrival:
		return "Mañana es tu llegada - " + room.Name
	case model.TriggerCheckinInstructions:
		return "Instrucciones de check-in - " + room.Name
	case model.TriggerPostCheckout:
		return "Gracias por tu estancia"
	}
	return "Delfín Check-in"
}
