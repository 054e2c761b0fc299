package ics

import (
	"strings"
	"testing"
	"time"

	"delfin/internal/model"
)

func TestPublishEmptyCalendar(t *testing.T) {
	out := Publish(model.Room{ID: "r1", Name: "Room 3"}, nil, time.Now())

	for _, want := range []string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:" + ProductID, "METHOD:PUBLISH", "CALSCALE:GREGORIAN", "END:VCALENDAR"} {
		if strings.Count(out, want) != 1 {
			t.Errorf("output should contain %q exactly once:\n%s", want, out)
		}
	}
	if strings.Contains(out, "BEGIN:VEVENT") {
		t.Error("unexpected VEVENT in empty calendar")
	}
}

func TestPublishRoundTrip(t *testing.T) {
	room := model.Room{ID: "r1", Name: "Room 3"}
	in := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	res := []model.Reservation{
		{ID: "res-1", RoomID: "r1", GuestName: "Jane Doe", CheckIn: in, CheckOut: in.AddDate(0, 0, 2), Status: model.StatusConfirmed, Channel: model.ChannelBooking},
		{ID: "res-2", RoomID: "r1", GuestName: "Gone", CheckIn: in, CheckOut: in.AddDate(0, 0, 1), Status: model.StatusCancelled},
	}

	out := Publish(room, res, time.Now())
	events := Parse([]byte(out))
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1:\n%s", len(events), out)
	}
	ev := events[0]
	if ev.UID != "res-1@delfin-checkin" {
		t.Errorf("uid = %q", ev.UID)
	}
	if ev.Summary != "Room 3 - Jane Doe" {
		t.Errorf("summary = %q", ev.Summary)
	}
	if !ev.Start.Equal(in) || !ev.End.Equal(in.AddDate(0, 0, 2)) {
		t.Errorf("dates = %v..%v", ev.Start, ev.End)
	}
	if ev.Status != "CONFIRMED" {
		t.Errorf("status = %q", ev.Status)
	}
}
