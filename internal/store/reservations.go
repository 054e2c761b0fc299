package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"delfin/internal/model"
)

// ReservationFilter narrows List. Zero values mean "any". DateFrom/DateTo
// select reservations overlapping the window.
type ReservationFilter struct {
	RoomID   string
	Status   model.ReservationStatus
	Channel  model.Channel
	DateFrom time.Time
	DateTo   time.Time
}

type ReservationRepository interface {
	List(ctx context.Context, f ReservationFilter) ([]model.Reservation, error)
	ListByRoom(ctx context.Context, roomID string) ([]model.Reservation, error)
	Get(ctx context.Context, id string) (model.Reservation, error)
	FindByExternalID(ctx context.Context, ch model.Channel, externalID string) (model.Reservation, error)
	CountByRoom(ctx context.Context, roomID string) (int, error)

	// Create inserts a reservation; ErrConflict if (channel, external_id)
	// already exists.
	Create(ctx context.Context, res *model.Reservation) error
	// Update rewrites every editable field (admin edits).
	Update(ctx context.Context, res *model.Reservation) error
	// UpdateFromFeed touches only what a feed carries: guest name and dates.
	// Financial fields are never changed by a sync.
	UpdateFromFeed(ctx context.Context, id, guestName string, checkIn, checkOut time.Time) error
	UpdateStatus(ctx context.Context, id string, status model.ReservationStatus) error
	UpdateFinancials(ctx context.Context, id string, total, paid, commission, net float64) error
	Delete(ctx context.Context, id string) error
}

type reservationRepository struct {
	*conn
}

const reservationColumns = `id, external_id, room_id, guest_name, guest_email, guest_phone, check_in, check_out,
	channel, status, total_price, guest_paid, platform_commission, net_income, currency,
	arrival_time, special_requests, created_at, updated_at`

func scanReservation(row scanner) (model.Reservation, error) {
	var r model.Reservation
	err := row.Scan(&r.ID, &r.ExternalID, &r.RoomID, &r.GuestName, &r.GuestEmail, &r.GuestPhone,
		&r.CheckIn, &r.CheckOut, &r.Channel, &r.Status, &r.TotalPrice, &r.GuestPaid,
		&r.PlatformCommission, &r.NetIncome, &r.Currency, &r.ArrivalTime, &r.SpecialRequests,
		&r.CreatedAt, &r.UpdatedAt)
	r.CheckIn = r.CheckIn.UTC()
	r.CheckOut = r.CheckOut.UTC()
	return r, err
}

func (r *reservationRepository) List(ctx context.Context, f ReservationFilter) ([]model.Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations WHERE 1=1`
	var args []any

	if f.RoomID != "" {
		q += ` AND room_id = ?`
		args = append(args, f.RoomID)
	}
	if f.Status != "" {
		q += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.Channel != "" {
		q += ` AND channel = ?`
		args = append(args, f.Channel)
	}
	if !f.DateFrom.IsZero() {
		q += ` AND check_out > ?`
		args = append(args, f.DateFrom.UTC())
	}
	if !f.DateTo.IsZero() {
		q += ` AND check_in < ?`
		args = append(args, f.DateTo.UTC())
	}
	q += ` ORDER BY check_in, id`

	return r.list(ctx, q, args...)
}

func (r *reservationRepository) ListByRoom(ctx context.Context, roomID string) ([]model.Reservation, error) {
	return r.List(ctx, ReservationFilter{RoomID: roomID})
}

func (r *reservationRepository) list(ctx context.Context, q string, args ...any) ([]model.Reservation, error) {
	rows, err := r.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *reservationRepository) Get(ctx context.Context, id string) (model.Reservation, error) {
	res, err := scanReservation(r.queryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id))
	return res, mapError(err)
}

func (r *reservationRepository) FindByExternalID(ctx context.Context, ch model.Channel, externalID string) (model.Reservation, error) {
	res, err := scanReservation(r.queryRow(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE channel = ? AND external_id = ?`, ch, externalID))
	return res, mapError(err)
}

func (r *reservationRepository) CountByRoom(ctx context.Context, roomID string) (int, error) {
	var n int
	err := r.queryRow(ctx, `SELECT COUNT(*) FROM reservations WHERE room_id = ?`, roomID).Scan(&n)
	return n, err
}

func (r *reservationRepository) Create(ctx context.Context, res *model.Reservation) error {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	if res.ExternalID == "" {
		// Manual reservations have no upstream id; their own id keeps the
		// (channel, external_id) key unique.
		res.ExternalID = res.ID
	}
	if res.Currency == "" {
		res.Currency = model.DefaultCurrency
	}
	if res.Status == "" {
		res.Status = model.StatusConfirmed
	}
	now := time.Now().UTC()
	res.CreatedAt, res.UpdatedAt = now, now
	res.CheckIn, res.CheckOut = res.CheckIn.UTC(), res.CheckOut.UTC()

	_, err := r.exec(ctx, `
		INSERT INTO reservations (`+reservationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.ExternalID, res.RoomID, res.GuestName, res.GuestEmail, res.GuestPhone,
		res.CheckIn, res.CheckOut, res.Channel, res.Status, res.TotalPrice, res.GuestPaid,
		res.PlatformCommission, res.NetIncome, res.Currency, res.ArrivalTime, res.SpecialRequests,
		res.CreatedAt, res.UpdatedAt)
	return mapError(err)
}

func (r *reservationRepository) Update(ctx context.Context, res *model.Reservation) error {
	res.UpdatedAt = time.Now().UTC()
	res.CheckIn, res.CheckOut = res.CheckIn.UTC(), res.CheckOut.UTC()

	result, err := r.exec(ctx, `
		UPDATE reservations
		SET room_id = ?, guest_name = ?, guest_email = ?, guest_phone = ?, check_in = ?, check_out = ?,
			status = ?, total_price = ?, guest_paid = ?, platform_commission = ?, net_income = ?,
			currency = ?, updated_at = ?
		WHERE id = ?`,
		res.RoomID, res.GuestName, res.GuestEmail, res.GuestPhone, res.CheckIn, res.CheckOut,
		res.Status, res.TotalPrice, res.GuestPaid, res.PlatformCommission, res.NetIncome,
		res.Currency, res.UpdatedAt, res.ID)
	if err != nil {
		return mapError(err)
	}
	return affectedOrNotFound(result)
}

func (r *reservationRepository) UpdateFromFeed(ctx context.Context, id, guestName string, checkIn, checkOut time.Time) error {
	res, err := r.exec(ctx, `
		UPDATE reservations SET guest_name = ?, check_in = ?, check_out = ?, updated_at = ?
		WHERE id = ?`,
		guestName, checkIn.UTC(), checkOut.UTC(), time.Now().UTC(), id)
	if err != nil {
		return mapError(err)
	}
	return affectedOrNotFound(res)
}

func (r *reservationRepository) UpdateStatus(ctx context.Context, id string, status model.ReservationStatus) error {
	res, err := r.exec(ctx, `UPDATE reservations SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
	if err != nil {
		return mapError(err)
	}
	return affectedOrNotFound(res)
}

func (r *reservationRepository) UpdateFinancials(ctx context.Context, id string, total, paid, commission, net float64) error {
	res, err := r.exec(ctx, `
		UPDATE reservations
		SET total_price = ?, guest_paid = ?, platform_commission = ?, net_income = ?, updated_at = ?
		WHERE id = ?`,
		total, paid, commission, net, time.Now().UTC(), id)
	if err != nil {
		return mapError(err)
	}
	return affectedOrNotFound(res)
}

func (r *reservationRepository) Delete(ctx context.Context, id string) error {
	res, err := r.exec(ctx, `DELETE FROM reservations WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	return affectedOrNotFound(res)
}
