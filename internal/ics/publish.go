package ics

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"delfin/internal/model"
)

const (
	ProductID = "-//Delfin Check-in//EN"
	uidDomain = "delfin-checkin"
)

// EventUID is the outbound UID of a reservation. It is stable so platforms
// importing the feed update rather than duplicate the block.
func EventUID(reservationID string) string {
	return reservationID + "@" + uidDomain
}

// Publish renders the outbound calendar for one room. Only confirmed
// reservations are blocked out; the envelope is emitted even when there are
// none so importers see a valid, empty calendar.
func Publish(room model.Room, reservations []model.Reservation, now time.Time) string {
	cal := ical.NewCalendar()
	cal.SetProductId(ProductID)
	cal.SetCalscale("GREGORIAN")
	cal.SetMethod(ical.MethodPublish)
	cal.SetXWRCalName(room.Name)

	stamp := now.UTC()
	for _, r := range reservations {
		if r.Status != model.StatusConfirmed {
			continue
		}
		ev := cal.AddEvent(EventUID(r.ID))
		ev.SetDtStampTime(stamp)
		ev.SetStartAt(r.CheckIn.UTC())
		ev.SetEndAt(r.CheckOut.UTC())
		ev.SetSummary(fmt.Sprintf("%s - %s", room.Name, r.GuestName))
		ev.SetDescription(describe(r))
		ev.SetStatus(ical.ObjectStatusConfirmed)
	}

	return cal.Serialize()
}

func describe(r model.Reservation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Reserva %s", r.ID)
	if r.Channel != "" {
		fmt.Fprintf(&b, " (%s)", r.Channel)
	}
	if n := r.Nights(); n > 0 {
		fmt.Fprintf(&b, ", %d noches", n)
	}
	return b.String()
}
