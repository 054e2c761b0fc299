package calsync

import (
	"context"
	"strings"
	"time"

	"delfin/internal/ics"
	"delfin/internal/model"
	"delfin/internal/store"
)

// Exporter renders a room's outbound calendar.
type Exporter struct {
	store *store.Store
	now   func() time.Time
}

func NewExporter(st *store.Store) *Exporter {
	return &Exporter{store: st, now: time.Now}
}

// Export returns the feed text for a room; store.ErrNotFound for an
// unknown room.
func (e *Exporter) Export(ctx context.Context, roomID string) (string, error) {
	room, err := e.store.Rooms.Get(ctx, roomID)
	if err != nil {
		return "", err
	}
	reservations, err := e.store.Reservations.List(ctx, store.ReservationFilter{
		RoomID: roomID,
		Status: model.StatusConfirmed,
	})
	if err != nil {
		return "", err
	}
	return ics.Publish(room, reservations, e.now()), nil
}

// OutboundURL is the public address of a room's feed, given to channels
// so they can block the dates.
func OutboundURL(publicURL, roomID string) string {
	return strings.TrimRight(publicURL, "/") + "/api/ical/" + roomID
}
