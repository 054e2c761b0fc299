// Package notify delivers host notices and guest messages asynchronously.
// Producers enqueue small jobs; workers resolve them against the store and
// hand the rendered text to a channel-specific Sender.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrQueueFull is returned by a bounded queue that cannot take more work.
	// Callers treat it as a dropped notification, never as a failed write.
	ErrQueueFull   = errors.New("notification queue full")
	ErrQueueClosed = errors.New("notification queue closed")
)

type Kind string

const (
	KindNewReservation   Kind = "new_reservation"
	KindCheckinCompleted Kind = "checkin_completed"
)

// Job is the unit of work on the queue. It carries ids, not entities, so a
// worker always acts on the current state of the reservation.
type Job struct {
	ID            string    `json:"id"`
	Kind          Kind      `json:"kind"`
	ReservationID string    `json:"reservation_id"`
	RoomID        string    `json:"room_id,omitempty"`
	Text          string    `json:"text,omitempty"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

func NewJob(kind Kind, reservationID, roomID string) Job {
	return Job{
		ID:            uuid.NewString(),
		Kind:          kind,
		ReservationID: reservationID,
		RoomID:        roomID,
		EnqueuedAt:    time.Now().UTC(),
	}
}

// Handler processes one job. Errors are logged by the queue; there is no
// automatic retry.
type Handler func(ctx context.Context, job Job) error

// Queue is a fire-and-forget job queue.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// Consume runs workers that call h for each job until ctx is cancelled
	// or the queue is closed. It blocks.
	Consume(ctx context.Context, h Handler)
	Close() error
}

// Enqueuer is the producer half of Queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) error
}
