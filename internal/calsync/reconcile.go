// Package calsync keeps reservations in step with the channel calendars:
// inbound feeds are reconciled into reservations, and each room's confirmed
// reservations are published as an outbound feed.
package calsync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"delfin/internal/ics"
	appLog "delfin/internal/log"
	"delfin/internal/model"
	"delfin/internal/notify"
	"delfin/internal/store"
)

// PlaceholderGuestName is used when a feed does not reveal the guest.
const PlaceholderGuestName = "Guest"

type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeCreated
	OutcomeUpdated
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	case OutcomeCancelled:
		return "cancelled"
	}
	return "skipped"
}

// Reconciler applies single feed events to the reservation store. The
// (channel, external id) unique key is what makes repeated syncs converge:
// applying the same event twice leaves exactly one reservation.
type Reconciler struct {
	store *store.Store
	queue notify.Enqueuer
}

// NewReconciler creates a Reconciler. queue may be nil to disable
// new-reservation notifications.
func NewReconciler(st *store.Store, queue notify.Enqueuer) *Reconciler {
	return &Reconciler{store: st, queue: queue}
}

// Apply reconciles one event for a room on a channel.
//
//   - unknown key: insert a confirmed reservation with zero financials and
//     queue a new_reservation notification
//   - known key: refresh guest name and dates only; financials are owned by
//     the host and never touched by a sync
//   - STATUS:CANCELLED: cancel the existing reservation, or skip if none
func (r *Reconciler) Apply(ctx context.Context, roomID string, ch model.Channel, ev ics.Event) (Outcome, error) {
	extID := ev.UID
	if extID == "" {
		extID = SyntheticUID(ch, roomID, ev.Start, ev.End)
	}

	existing, err := r.store.Reservations.FindByExternalID(ctx, ch, extID)
	switch {
	case err == nil:
		if ev.Cancelled() {
			return r.cancel(ctx, existing)
		}
		return r.update(ctx, existing, ev)
	case !errors.Is(err, store.ErrNotFound):
		return OutcomeSkipped, err
	}

	if ev.Cancelled() {
		return OutcomeSkipped, nil
	}

	res := model.Reservation{
		ExternalID: extID,
		RoomID:     roomID,
		GuestName:  GuestName(ev.Summary),
		CheckIn:    ev.Start,
		CheckOut:   ev.End,
		Channel:    ch,
		Status:     model.StatusConfirmed,
		Currency:   model.DefaultCurrency,
	}
	if err := r.store.Reservations.Create(ctx, &res); err != nil {
		if !errors.Is(err, store.ErrConflict) {
			return OutcomeSkipped, err
		}
		// Lost a race with a concurrent sync; the row exists now.
		existing, ferr := r.store.Reservations.FindByExternalID(ctx, ch, extID)
		if ferr != nil {
			return OutcomeSkipped, fmt.Errorf("reconcile %s after conflict: %w", extID, ferr)
		}
		return r.update(ctx, existing, ev)
	}

	appLog.Info("reservation created from feed", "channel", ch, "room_id", roomID, "reservation_id", res.ID)
	r.enqueue(ctx, notify.NewJob(notify.KindNewReservation, res.ID, roomID))
	return OutcomeCreated, nil
}

func (r *Reconciler) update(ctx context.Context, existing model.Reservation, ev ics.Event) (Outcome, error) {
	if err := r.store.Reservations.UpdateFromFeed(ctx, existing.ID, GuestName(ev.Summary), ev.Start, ev.End); err != nil {
		return OutcomeSkipped, err
	}
	return OutcomeUpdated, nil
}

func (r *Reconciler) cancel(ctx context.Context, existing model.Reservation) (Outcome, error) {
	if existing.Status == model.StatusCancelled {
		return OutcomeSkipped, nil
	}
	if err := r.store.Reservations.UpdateStatus(ctx, existing.ID, model.StatusCancelled); err != nil {
		return OutcomeSkipped, err
	}
	appLog.Info("reservation cancelled from feed", "channel", existing.Channel, "reservation_id", existing.ID)
	return OutcomeCancelled, nil
}

// enqueue is fire-and-forget: a failed notification never undoes the write.
func (r *Reconciler) enqueue(ctx context.Context, job notify.Job) {
	if r.queue == nil {
		return
	}
	if err := r.queue.Enqueue(ctx, job); err != nil {
		appLog.Error("notification enqueue failed", err, "kind", job.Kind, "reservation_id", job.ReservationID)
	}
}

// GuestName extracts the guest from a "Room - Guest" summary. Anything
// without a non-empty part after the first " - " yields the placeholder.
func GuestName(summary string) string {
	_, after, found := strings.Cut(summary, " - ")
	if !found {
		return PlaceholderGuestName
	}
	if name := strings.TrimSpace(after); name != "" {
		return name
	}
	return PlaceholderGuestName
}

// SyntheticUID derives a stable key for events published without a UID.
func SyntheticUID(ch model.Channel, roomID string, start, end time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s", ch, roomID,
		start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))))
	return "synthetic-" + hex.EncodeToString(sum[:16])
}
