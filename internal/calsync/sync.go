package calsync

import (
	"context"
	"fmt"
	"time"

	"delfin/internal/ics"
	appLog "delfin/internal/log"
	"delfin/internal/model"
	"delfin/internal/store"
)

// Failure describes one room that could not be synced.
type Failure struct {
	RoomID   string `json:"room_id"`
	RoomName string `json:"room_name"`
	Error    string `json:"error"`
}

// Result summarizes one channel sync. Success is false only when there was
// nothing to sync; partial failure still counts as a completed run.
type Result struct {
	Channel         model.Channel `json:"channel"`
	RoomsTotal      int           `json:"rooms_total"`
	RoomsSynced     int           `json:"rooms_synced"`
	RoomsFailed     int           `json:"rooms_failed"`
	EventsProcessed int           `json:"events_processed"`
	Created         int           `json:"created"`
	Updated         int           `json:"updated"`
	Cancelled       int           `json:"cancelled"`
	Failures        []Failure     `json:"failures,omitempty"`
	Success         bool          `json:"success"`
	Message         string        `json:"message"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration_ns"`
}

// Syncer runs the fetch, parse, expand, reconcile pipeline over every room
// with a feed for a channel. Rooms are processed one at a time; a failing
// room is recorded and the run moves on.
type Syncer struct {
	store      *store.Store
	fetcher    *ics.Fetcher
	reconciler applier
	horizon    time.Duration
	now        func() time.Time
}

type applier interface {
	Apply(ctx context.Context, roomID string, ch model.Channel, ev ics.Event) (Outcome, error)
}

// NewSyncer creates a Syncer. horizon bounds recurrence expansion.
func NewSyncer(st *store.Store, fetcher *ics.Fetcher, reconciler *Reconciler, horizon time.Duration) *Syncer {
	if horizon <= 0 {
		horizon = 365 * 24 * time.Hour
	}
	return &Syncer{
		store:      st,
		fetcher:    fetcher,
		reconciler: reconciler,
		horizon:    horizon,
		now:        time.Now,
	}
}

func (s *Syncer) SyncChannel(ctx context.Context, ch model.Channel) (res Result) {
	started := s.now()
	clock := time.Now()
	res = Result{Channel: ch, StartedAt: started.UTC()}
	defer func() { res.Duration = time.Since(clock) }()

	rooms, err := s.store.Rooms.ListWithFeed(ctx, ch)
	if err != nil {
		res.Message = fmt.Sprintf("could not list rooms: %v", err)
		appLog.Error("sync: list rooms failed", err, "channel", ch)
		return res
	}
	res.RoomsTotal = len(rooms)
	if len(rooms) == 0 {
		res.Message = fmt.Sprintf("no rooms have a %s calendar configured", ch)
		appLog.Info("sync skipped", "channel", ch, "reason", "no rooms")
		return res
	}

	from := started.Add(-24 * time.Hour)
	to := started.Add(s.horizon)

	for _, room := range rooms {
		if err := ctx.Err(); err != nil {
			res.RoomsFailed++
			res.Failures = append(res.Failures, Failure{RoomID: room.ID, RoomName: room.Name, Error: err.Error()})
			continue
		}
		if err := s.syncRoom(ctx, room, ch, from, to, &res); err != nil {
			res.RoomsFailed++
			res.Failures = append(res.Failures, Failure{RoomID: room.ID, RoomName: room.Name, Error: err.Error()})
			appLog.Error("sync: room failed", err, "channel", ch, "room_id", room.ID, "room", room.Name)
			continue
		}
		res.RoomsSynced++
	}

	res.Success = true
	res.Message = fmt.Sprintf("sync completed: %d of %d rooms synced, %d failed", res.RoomsSynced, res.RoomsTotal, res.RoomsFailed)
	appLog.Info("sync finished",
		"channel", ch,
		"rooms", res.RoomsTotal,
		"synced", res.RoomsSynced,
		"failed", res.RoomsFailed,
		"events", res.EventsProcessed,
		"created", res.Created,
		"updated", res.Updated,
		"cancelled", res.Cancelled,
	)
	return res
}

func (s *Syncer) syncRoom(ctx context.Context, room model.Room, ch model.Channel, from, to time.Time, res *Result) error {
	src := ics.Source{ID: room.ID + "/" + string(ch), URL: room.InboundURL(ch)}
	fetched, err := s.fetcher.FetchOne(ctx, src)
	if err != nil {
		return err
	}

	events, stats := ics.ParseWithStats(fetched.Body)
	if stats.Dropped > 0 {
		appLog.Debug("sync: dropped incomplete events", "room_id", room.ID, "channel", ch, "dropped", stats.Dropped, "blocks", stats.Blocks)
	}
	events = ics.Expand(events, from, to, 0)

	// A bad event fails the room but not its other events.
	var firstErr error
	failed := 0
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		outcome, err := s.reconciler.Apply(ctx, room.ID, ch, ev)
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = fmt.Errorf("reconcile event %q: %w", ev.UID, err)
			}
			continue
		}
		res.EventsProcessed++
		switch outcome {
		case OutcomeCreated:
			res.Created++
		case OutcomeUpdated:
			res.Updated++
		case OutcomeCancelled:
			res.Cancelled++
		}
	}
	if firstErr != nil {
		return fmt.Errorf("%d of %d events failed: %w", failed, len(events), firstErr)
	}
	return nil
}

// SyncAll syncs each channel in turn.
func (s *Syncer) SyncAll(ctx context.Context, channels []model.Channel) []Result {
	results := make([]Result, 0, len(channels))
	for _, ch := range channels {
		results = append(results, s.SyncChannel(ctx, ch))
	}
	return results
}
