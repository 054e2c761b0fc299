package calsync

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"delfin/internal/ics"
	appLog "delfin/internal/log"
	"delfin/internal/model"
	"delfin/internal/notify"
	"delfin/internal/store"
)

func TestMain(m *testing.M) {
	appLog.SetOutput(io.Discard)
	m.Run()
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []notify.Job
}

func (q *recordingQueue) Enqueue(ctx context.Context, job notify.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(store.DriverSQLite, "file:"+filepath.Join(t.TempDir(), "sync.db")+"?_foreign_keys=on")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return st
}

func createRoom(t *testing.T, st *store.Store, name, bookingURL string) model.Room {
	t.Helper()
	room := model.Room{Name: name, ICalInBookingURL: bookingURL}
	if err := st.Rooms.Create(context.Background(), &room); err != nil {
		t.Fatalf("create room: %v", err)
	}
	return room
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestGuestName(t *testing.T) {
	tests := map[string]string{
		"Room 1 - Jane Doe":      "Jane Doe",
		"CLOSED - Not available": "Not available",
		"Reserved":               PlaceholderGuestName,
		"Room 1 - ":              PlaceholderGuestName,
		"A - B - C":              "B - C",
	}
	for in, want := range tests {
		if got := GuestName(in); got != want {
			t.Errorf("GuestName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSyntheticUIDStable(t *testing.T) {
	a := SyntheticUID(model.ChannelAirbnb, "r1", day(2024, 6, 1), day(2024, 6, 3))
	b := SyntheticUID(model.ChannelAirbnb, "r1", day(2024, 6, 1), day(2024, 6, 3))
	c := SyntheticUID(model.ChannelAirbnb, "r1", day(2024, 6, 1), day(2024, 6, 4))
	if a != b {
		t.Errorf("same inputs gave %q and %q", a, b)
	}
	if a == c {
		t.Errorf("different dates gave the same id %q", a)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	room := createRoom(t, st, "Room 1", "")
	q := &recordingQueue{}
	r := NewReconciler(st, q)

	ev := ics.Event{UID: "bk-100", Summary: "Room 1 - Jane Doe", Start: day(2024, 6, 1), End: day(2024, 6, 3)}
	out, err := r.Apply(ctx, room.ID, model.ChannelBooking, ev)
	if err != nil || out != OutcomeCreated {
		t.Fatalf("first Apply = %v, %v", out, err)
	}

	created, err := st.Reservations.FindByExternalID(ctx, model.ChannelBooking, "bk-100")
	if err != nil {
		t.Fatal(err)
	}
	if created.Status != model.StatusConfirmed || created.GuestName != "Jane Doe" || created.Currency != "EUR" || created.TotalPrice != 0 {
		t.Fatalf("created = %+v", created)
	}
	if err := st.Reservations.UpdateFinancials(ctx, created.ID, 200, 200, 30, 170); err != nil {
		t.Fatal(err)
	}

	ev.Summary = "Room 1 - Jane Smith"
	ev.End = day(2024, 6, 4)
	out, err = r.Apply(ctx, room.ID, model.ChannelBooking, ev)
	if err != nil || out != OutcomeUpdated {
		t.Fatalf("second Apply = %v, %v", out, err)
	}

	all, err := st.Reservations.List(ctx, store.ReservationFilter{RoomID: room.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("got %d reservations, want 1", len(all))
	}
	got := all[0]
	if got.GuestName != "Jane Smith" || !got.CheckOut.Equal(day(2024, 6, 4)) {
		t.Errorf("update not applied: %+v", got)
	}
	if got.GuestPaid != 200 || got.PlatformCommission != 30 || got.NetIncome != 170 {
		t.Errorf("financials overwritten: %+v", got)
	}
	if q.count() != 1 {
		t.Errorf("enqueued %d jobs, want 1", q.count())
	}
}

func TestApplyCancellation(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	room := createRoom(t, st, "Room 1", "")
	r := NewReconciler(st, nil)

	ev := ics.Event{UID: "ab-1", Summary: "Reserved", Start: day(2024, 7, 1), End: day(2024, 7, 5)}
	if _, err := r.Apply(ctx, room.ID, model.ChannelAirbnb, ev); err != nil {
		t.Fatal(err)
	}

	ev.Status = "CANCELLED"
	out, err := r.Apply(ctx, room.ID, model.ChannelAirbnb, ev)
	if err != nil || out != OutcomeCancelled {
		t.Fatalf("cancel Apply = %v, %v", out, err)
	}
	got, err := st.Reservations.FindByExternalID(ctx, model.ChannelAirbnb, "ab-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.StatusCancelled {
		t.Errorf("status = %s", got.Status)
	}

	out, err = r.Apply(ctx, room.ID, model.ChannelAirbnb, ev)
	if err != nil || out != OutcomeSkipped {
		t.Errorf("repeat cancel = %v, %v", out, err)
	}

	unknown := ics.Event{UID: "ab-2", Status: "CANCELLED", Start: day(2024, 8, 1), End: day(2024, 8, 2)}
	out, err = r.Apply(ctx, room.ID, model.ChannelAirbnb, unknown)
	if err != nil || out != OutcomeSkipped {
		t.Errorf("unknown cancel = %v, %v", out, err)
	}
	if _, err := st.Reservations.FindByExternalID(ctx, model.ChannelAirbnb, "ab-2"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("cancelled unknown event was stored: %v", err)
	}
}

func TestApplyWithoutUID(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	room := createRoom(t, st, "Room 1", "")
	r := NewReconciler(st, nil)

	ev := ics.Event{Summary: "Blocked", Start: day(2024, 9, 1), End: day(2024, 9, 2)}
	for i := 0; i < 2; i++ {
		if _, err := r.Apply(ctx, room.ID, model.ChannelAirbnb, ev); err != nil {
			t.Fatal(err)
		}
	}
	n, err := st.Reservations.CountByRoom(ctx, room.ID)
	if err != nil || n != 1 {
		t.Fatalf("count = %d, %v", n, err)
	}
}

const feedTemplate = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\n" +
	"BEGIN:VEVENT\r\nUID:%s-1\r\nDTSTART;VALUE=DATE:20300601\r\nDTEND;VALUE=DATE:20300603\r\nSUMMARY:%s - Ana\r\nEND:VEVENT\r\n" +
	"BEGIN:VEVENT\r\nUID:%s-2\r\nDTSTART;VALUE=DATE:20300610\r\nDTEND;VALUE=DATE:20300612\r\nSUMMARY:%s - Luis\r\nEND:VEVENT\r\n" +
	"BEGIN:VEVENT\r\nUID:broken\r\nSUMMARY:no dates\r\nEND:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func feed(name string) string {
	return strings.NewReplacer("%s", name).Replace(feedTemplate)
}

func TestSyncChannelPartialFailure(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a.ics":
			time.Sleep(20 * time.Millisecond)
			io.WriteString(w, feed("a"))
		case "/b.ics":
			io.WriteString(w, feed("b"))
		default:
			http.Error(w, "gone", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	st := openTestStore(t)
	createRoom(t, st, "A", srv.URL+"/a.ics")
	createRoom(t, st, "B", srv.URL+"/b.ics")
	bad := createRoom(t, st, "C", srv.URL+"/c.ics")
	createRoom(t, st, "D", "")

	q := &recordingQueue{}
	s := NewSyncer(st, ics.NewFetcher("", 5*time.Second), NewReconciler(st, q), 0)

	res := s.SyncChannel(ctx, model.ChannelBooking)
	if !res.Success {
		t.Fatalf("Success = false: %s", res.Message)
	}
	if res.RoomsTotal != 3 || res.RoomsSynced != 2 || res.RoomsFailed != 1 {
		t.Fatalf("counts = %+v", res)
	}
	if res.Message != "sync completed: 2 of 3 rooms synced, 1 failed" {
		t.Errorf("message = %q", res.Message)
	}
	if len(res.Failures) != 1 || res.Failures[0].RoomID != bad.ID || res.Failures[0].RoomName != "C" {
		t.Errorf("failures = %+v", res.Failures)
	}
	if res.Created != 4 || res.EventsProcessed != 4 {
		t.Errorf("created = %d, processed = %d", res.Created, res.EventsProcessed)
	}
	if q.count() != 4 {
		t.Errorf("enqueued %d", q.count())
	}
	if res.Duration < 20*time.Millisecond {
		t.Errorf("duration = %v", res.Duration)
	}

	again := s.SyncChannel(ctx, model.ChannelBooking)
	if again.Created != 0 || again.Updated != 4 {
		t.Errorf("second run created %d updated %d", again.Created, again.Updated)
	}
	all, err := st.Reservations.List(ctx, store.ReservationFilter{Channel: model.ChannelBooking})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Errorf("stored %d reservations, want 4", len(all))
	}
}

type failingApplier struct {
	next *Reconciler
	uid  string
}

func (f failingApplier) Apply(ctx context.Context, roomID string, ch model.Channel, ev ics.Event) (Outcome, error) {
	if ev.UID == f.uid {
		return OutcomeSkipped, errors.New("disk full")
	}
	return f.next.Apply(ctx, roomID, ch, ev)
}

func TestSyncRoomContinuesAfterEventError(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, feed("a"))
	}))
	defer srv.Close()

	st := openTestStore(t)
	room := createRoom(t, st, "A", srv.URL+"/a.ics")
	s := NewSyncer(st, ics.NewFetcher("", 5*time.Second), nil, 0)
	s.reconciler = failingApplier{next: NewReconciler(st, nil), uid: "a-1"}

	res := s.SyncChannel(ctx, model.ChannelBooking)
	if res.RoomsFailed != 1 || res.RoomsSynced != 0 {
		t.Fatalf("counts = %+v", res)
	}
	if len(res.Failures) != 1 || !strings.Contains(res.Failures[0].Error, `"a-1"`) {
		t.Errorf("failures = %+v", res.Failures)
	}
	if res.Created != 1 || res.EventsProcessed != 1 {
		t.Errorf("created = %d, processed = %d", res.Created, res.EventsProcessed)
	}
	n, err := st.Reservations.CountByRoom(ctx, room.ID)
	if err != nil || n != 1 {
		t.Errorf("stored %d, %v", n, err)
	}
}

func TestSyncChannelNoRooms(t *testing.T) {
	st := openTestStore(t)
	s := NewSyncer(st, ics.NewFetcher("", time.Second), NewReconciler(st, nil), 0)
	res := s.SyncChannel(context.Background(), model.ChannelAirbnb)
	if res.Success || res.RoomsTotal != 0 {
		t.Fatalf("res = %+v", res)
	}
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	room := createRoom(t, st, "Room 7", "")
	res := model.Reservation{RoomID: room.ID, GuestName: "Eva", Channel: model.ChannelManual,
		CheckIn: day(2030, 5, 1), CheckOut: day(2030, 5, 3)}
	if err := st.Reservations.Create(ctx, &res); err != nil {
		t.Fatal(err)
	}

	e := NewExporter(st)
	body, err := e.Export(ctx, room.ID)
	if err != nil {
		t.Fatal(err)
	}
	events := ics.Parse([]byte(body))
	if len(events) != 1 || events[0].UID != ics.EventUID(res.ID) {
		t.Fatalf("events = %+v", events)
	}

	if _, err := e.Export(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown room err = %v", err)
	}
}

func TestOutboundURL(t *testing.T) {
	if got := OutboundURL("https://delfin.example.com/", "abc"); got != "https://delfin.example.com/api/ical/abc" {
		t.Errorf("OutboundURL = %q", got)
	}
}
