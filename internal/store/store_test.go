package store

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	appLog "delfin/internal/log"
	"delfin/internal/model"
)

func TestMain(m *testing.M) {
	appLog.SetOutput(io.Discard)
	m.Run()
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_foreign_keys=on"
	s, err := Open(DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func TestRebind(t *testing.T) {
	q := `SELECT * FROM t WHERE a = ? AND b = ?`
	if got := rebind(DriverSQLite, q); got != q {
		t.Errorf("sqlite rebind changed query: %q", got)
	}
	if got, want := rebind(DriverPostgres, q), `SELECT * FROM t WHERE a = $1 AND b = $2`; got != want {
		t.Errorf("postgres rebind = %q, want %q", got, want)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open("mysql", "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestRoomCRUD(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	room := model.Room{Name: "Room 3", BasePrice: 80, ICalInBookingURL: "https://booking.test/r3.ics"}
	if err := s.Rooms.Create(ctx, &room); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if room.ID == "" {
		t.Fatal("ID not assigned")
	}

	got, err := s.Rooms.Get(ctx, room.ID)
	if err != nil || got.Name != "Room 3" || got.BasePrice != 80 {
		t.Fatalf("Get = %+v, %v", got, err)
	}

	withFeed, err := s.Rooms.ListWithFeed(ctx, model.ChannelBooking)
	if err != nil || len(withFeed) != 1 {
		t.Fatalf("ListWithFeed(booking) = %v, %v", withFeed, err)
	}
	withFeed, _ = s.Rooms.ListWithFeed(ctx, model.ChannelAirbnb)
	if len(withFeed) != 0 {
		t.Fatalf("ListWithFeed(airbnb) = %v", withFeed)
	}

	room.Name = "Suite"
	if err := s.Rooms.Update(ctx, &room); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := s.Rooms.Delete(ctx, room.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Rooms.Get(ctx, room.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete err = %v, want ErrNotFound", err)
	}
	if err := s.Rooms.Delete(ctx, room.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Delete err = %v", err)
	}
}

func TestRoomDeleteBlockedByReservations(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	room := model.Room{Name: "Room 1"}
	if err := s.Rooms.Create(ctx, &room); err != nil {
		t.Fatal(err)
	}
	res := model.Reservation{RoomID: room.ID, GuestName: "Ana", Channel: model.ChannelManual,
		CheckIn: day(2024, 6, 10), CheckOut: day(2024, 6, 12)}
	if err := s.Reservations.Create(ctx, &res); err != nil {
		t.Fatal(err)
	}

	if err := s.Rooms.Delete(ctx, room.ID); !errors.Is(err, ErrInUse) {
		t.Fatalf("Delete err = %v, want ErrInUse", err)
	}
}

func TestReservationUniqueExternalID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	room := model.Room{Name: "Room 1"}
	if err := s.Rooms.Create(ctx, &room); err != nil {
		t.Fatal(err)
	}

	first := model.Reservation{ExternalID: "bk-1", RoomID: room.ID, GuestName: "Jane", Channel: model.ChannelBooking,
		CheckIn: day(2024, 6, 10), CheckOut: day(2024, 6, 12)}
	if err := s.Reservations.Create(ctx, &first); err != nil {
		t.Fatal(err)
	}
	if first.Currency != "EUR" || first.Status != model.StatusConfirmed {
		t.Errorf("defaults not applied: %+v", first)
	}

	dup := first
	dup.ID = ""
	if err := s.Reservations.Create(ctx, &dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate Create err = %v, want ErrConflict", err)
	}

	// Same external id on another channel is a different reservation.
	other := first
	other.ID = ""
	other.Channel = model.ChannelAirbnb
	if err := s.Reservations.Create(ctx, &other); err != nil {
		t.Fatalf("other channel Create: %v", err)
	}

	found, err := s.Reservations.FindByExternalID(ctx, model.ChannelBooking, "bk-1")
	if err != nil || found.ID != first.ID {
		t.Fatalf("FindByExternalID = %+v, %v", found, err)
	}
	if !found.CheckIn.Equal(day(2024, 6, 10)) {
		t.Errorf("check-in = %v", found.CheckIn)
	}
	if _, err := s.Reservations.FindByExternalID(ctx, model.ChannelBooking, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing err = %v", err)
	}
}

func TestReservationFeedUpdateKeepsFinancials(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	room := model.Room{Name: "Room 1"}
	s.Rooms.Create(ctx, &room)

	res := model.Reservation{ExternalID: "ab-1", RoomID: room.ID, GuestName: "Guest", Channel: model.ChannelAirbnb,
		CheckIn: day(2024, 6, 10), CheckOut: day(2024, 6, 12)}
	if err := s.Reservations.Create(ctx, &res); err != nil {
		t.Fatal(err)
	}
	if err := s.Reservations.UpdateFinancials(ctx, res.ID, 200, 200, 28, 172); err != nil {
		t.Fatal(err)
	}
	if err := s.Reservations.UpdateFromFeed(ctx, res.ID, "Ana", day(2024, 6, 11), day(2024, 6, 14)); err != nil {
		t.Fatal(err)
	}

	got, err := s.Reservations.Get(ctx, res.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.GuestName != "Ana" || !got.CheckOut.Equal(day(2024, 6, 14)) {
		t.Errorf("feed fields not updated: %+v", got)
	}
	if got.TotalPrice != 200 || got.PlatformCommission != 28 || got.NetIncome != 172 {
		t.Errorf("financials changed: %+v", got)
	}
}

func TestReservationListFilter(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	a := model.Room{Name: "A"}
	b := model.Room{Name: "B"}
	s.Rooms.Create(ctx, &a)
	s.Rooms.Create(ctx, &b)

	mk := func(room string, ch model.Channel, in, out time.Time, st model.ReservationStatus) {
		r := model.Reservation{RoomID: room, GuestName: "x", Channel: ch, CheckIn: in, CheckOut: out, Status: st}
		if err := s.Reservations.Create(ctx, &r); err != nil {
			t.Fatal(err)
		}
	}
	mk(a.ID, model.ChannelBooking, day(2024, 6, 1), day(2024, 6, 3), model.StatusConfirmed)
	mk(a.ID, model.ChannelManual, day(2024, 6, 10), day(2024, 6, 12), model.StatusCancelled)
	mk(b.ID, model.ChannelAirbnb, day(2024, 7, 1), day(2024, 7, 5), model.StatusConfirmed)

	tests := []struct {
		name string
		f    ReservationFilter
		want int
	}{
		{"all", ReservationFilter{}, 3},
		{"room", ReservationFilter{RoomID: a.ID}, 2},
		{"status", ReservationFilter{Status: model.StatusConfirmed}, 2},
		{"channel", ReservationFilter{Channel: model.ChannelAirbnb}, 1},
		{"overlap june", ReservationFilter{DateFrom: day(2024, 6, 2), DateTo: day(2024, 6, 11)}, 2},
		{"after", ReservationFilter{DateFrom: day(2024, 6, 30)}, 1},
	}
	for _, tt := range tests {
		got, err := s.Reservations.List(ctx, tt.f)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if len(got) != tt.want {
			t.Errorf("%s: got %d, want %d", tt.name, len(got), tt.want)
		}
	}

	n, err := s.Reservations.CountByRoom(ctx, a.ID)
	if err != nil || n != 2 {
		t.Errorf("CountByRoom = %d, %v", n, err)
	}
}

func TestSaveCheckinReplacesGuests(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	room := model.Room{Name: "A"}
	s.Rooms.Create(ctx, &room)
	res := model.Reservation{RoomID: room.ID, GuestName: "Ana", Channel: model.ChannelManual,
		CheckIn: day(2024, 6, 1), CheckOut: day(2024, 6, 3)}
	s.Reservations.Create(ctx, &res)

	guest := func(name string) model.Guest {
		return model.Guest{Name: name, DocumentType: model.DocumentDNI, DocumentNumber: "12345678Z",
			BirthDate: "1990-01-01", Country: "ES", AcceptsRules: true}
	}
	if err := s.Guests.SaveCheckin(ctx, res.ID, "15:00", "", []model.Guest{guest("Ana"), guest("Luis")}); err != nil {
		t.Fatal(err)
	}
	if err := s.Guests.SaveCheckin(ctx, res.ID, "18:00", "late", []model.Guest{guest("Ana")}); err != nil {
		t.Fatal(err)
	}

	guests, err := s.Guests.ListByReservation(ctx, res.ID)
	if err != nil || len(guests) != 1 || !guests[0].AcceptsRules {
		t.Fatalf("guests = %+v, %v", guests, err)
	}
	got, _ := s.Reservations.Get(ctx, res.ID)
	if got.ArrivalTime != "18:00" || got.SpecialRequests != "late" {
		t.Errorf("check-in fields = %q %q", got.ArrivalTime, got.SpecialRequests)
	}

	if err := s.Guests.SaveCheckin(ctx, "missing", "", "", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown reservation err = %v", err)
	}
}

func TestSeedAndDeliveries(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.SeedDefaults(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.SeedDefaults(ctx); err != nil {
		t.Fatal(err)
	}
	all, _ := s.Templates.List(ctx)
	if len(all) != len(DefaultTemplates) {
		t.Fatalf("templates = %d, want %d", len(all), len(DefaultTemplates))
	}
	active, err := s.Templates.ListActive(ctx, model.TriggerDaysBeforeArrival)
	if err != nil || len(active) != 1 {
		t.Fatalf("ListActive = %v, %v", active, err)
	}

	room := model.Room{Name: "A"}
	s.Rooms.Create(ctx, &room)
	res := model.Reservation{RoomID: room.ID, GuestName: "Ana", Channel: model.ChannelManual,
		CheckIn: day(2024, 6, 1), CheckOut: day(2024, 6, 3)}
	s.Reservations.Create(ctx, &res)

	tpl := active[0]
	if ok, _ := s.Deliveries.Delivered(ctx, res.ID, tpl.ID); ok {
		t.Fatal("delivered before record")
	}
	d := model.Delivery{ReservationID: res.ID, TemplateID: tpl.ID, Channel: tpl.Channel, Recipient: "ana@example.com"}
	if err := s.Deliveries.Record(ctx, &d); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Deliveries.Delivered(ctx, res.ID, tpl.ID); !ok {
		t.Fatal("not delivered after record")
	}
	again := model.Delivery{ReservationID: res.ID, TemplateID: tpl.ID, Channel: tpl.Channel}
	if err := s.Deliveries.Record(ctx, &again); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate Record err = %v", err)
	}

	tpl.Active = false
	if err := s.Templates.Update(ctx, &tpl); err != nil {
		t.Fatal(err)
	}
	active, _ = s.Templates.ListActive(ctx, model.TriggerDaysBeforeArrival)
	if len(active) != 0 {
		t.Errorf("inactive template still listed")
	}
}

func TestRegistrationTransmission(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	reg := model.GuestRegistration{Name: "Ana", Surname: "García", DocumentType: model.DocumentDNI,
		TravelPurpose: model.PurposeTourism, AcceptsTerms: true, AcceptsDataProcessing: true}
	if err := s.Registrations.Create(ctx, &reg); err != nil {
		t.Fatal(err)
	}
	if reg.Transmission != model.TransmissionNotSent {
		t.Errorf("initial status = %q", reg.Transmission)
	}
	if err := s.Registrations.UpdateTransmission(ctx, reg.ID, model.TransmissionSent, `{"success":true}`, ""); err != nil {
		t.Fatal(err)
	}
	got, err := s.Registrations.Get(ctx, reg.ID)
	if err != nil || got.Transmission != model.TransmissionSent || got.MinistryResponse == "" {
		t.Fatalf("Get = %+v, %v", got, err)
	}
	list, _ := s.Registrations.List(ctx)
	if len(list) != 1 || !list[0].AcceptsTerms {
		t.Errorf("List = %+v", list)
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
