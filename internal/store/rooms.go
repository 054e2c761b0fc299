package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"delfin/internal/model"
)

type RoomRepository interface {
	List(ctx context.Context) ([]model.Room, error)
	// ListWithFeed returns rooms that have an inbound feed URL for the channel.
	ListWithFeed(ctx context.Context, ch model.Channel) ([]model.Room, error)
	Get(ctx context.Context, id string) (model.Room, error)
	Create(ctx context.Context, room *model.Room) error
	Update(ctx context.Context, room *model.Room) error
	// Delete removes a room. It fails with ErrInUse while reservations
	// reference it.
	Delete(ctx context.Context, id string) error
}

type roomRepository struct {
	*conn
}

const roomColumns = `id, name, description, capacity, base_price, ical_in_booking_url, ical_in_airbnb_url, ical_out_url, created_at, updated_at`

func scanRoom(row scanner) (model.Room, error) {
	var r model.Room
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Capacity, &r.BasePrice,
		&r.ICalInBookingURL, &r.ICalInAirbnbURL, &r.ICalOutURL, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (r *roomRepository) List(ctx context.Context) ([]model.Room, error) {
	return r.list(ctx, `SELECT `+roomColumns+` FROM rooms ORDER BY name`)
}

func (r *roomRepository) ListWithFeed(ctx context.Context, ch model.Channel) ([]model.Room, error) {
	switch ch {
	case model.ChannelBooking:
		return r.list(ctx, `SELECT `+roomColumns+` FROM rooms WHERE ical_in_booking_url <> '' ORDER BY name`)
	case model.ChannelAirbnb:
		return r.list(ctx, `SELECT `+roomColumns+` FROM rooms WHERE ical_in_airbnb_url <> '' ORDER BY name`)
	}
	return nil, nil
}

func (r *roomRepository) list(ctx context.Context, q string, args ...any) ([]model.Room, error) {
	rows, err := r.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := make([]model.Room, 0)
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func (r *roomRepository) Get(ctx context.Context, id string) (model.Room, error) {
	room, err := scanRoom(r.queryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id))
	return room, mapError(err)
}

func (r *roomRepository) Create(ctx context.Context, room *model.Room) error {
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	room.CreatedAt, room.UpdatedAt = now, now

	_, err := r.exec(ctx, `
		INSERT INTO rooms (`+roomColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		room.ID, room.Name, room.Description, room.Capacity, room.BasePrice,
		room.ICalInBookingURL, room.ICalInAirbnbURL, room.ICalOutURL, room.CreatedAt, room.UpdatedAt)
	return mapError(err)
}

func (r *roomRepository) Update(ctx context.Context, room *model.Room) error {
	room.UpdatedAt = time.Now().UTC()
	res, err := r.exec(ctx, `
		UPDATE rooms
		SET name = ?, description = ?, capacity = ?, base_price = ?,
			ical_in_booking_url = ?, ical_in_airbnb_url = ?, ical_out_url = ?, updated_at = ?
		WHERE id = ?`,
		room.Name, room.Description, room.Capacity, room.BasePrice,
		room.ICalInBookingURL, room.ICalInAirbnbURL, room.ICalOutURL, room.UpdatedAt, room.ID)
	if err != nil {
		return mapError(err)
	}
	return affectedOrNotFound(res)
}

func (r *roomRepository) Delete(ctx context.Context, id string) error {
	var n int
	if err := r.queryRow(ctx, `SELECT COUNT(*) FROM reservations WHERE room_id = ?`, id).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return ErrInUse
	}

	res, err := r.exec(ctx, `DELETE FROM rooms WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	return affectedOrNotFound(res)
}
