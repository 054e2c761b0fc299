package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"delfin/internal/model"
)

type GuestRepository interface {
	ListByReservation(ctx context.Context, reservationID string) ([]model.Guest, error)
	// SaveCheckin stores the guests of a digital check-in together with the
	// announced arrival time and requests. A repeated check-in replaces the
	// previous guest list.
	SaveCheckin(ctx context.Context, reservationID, arrivalTime, specialRequests string, guests []model.Guest) error
}

type guestRepository struct {
	*conn
}

func (r *guestRepository) ListByReservation(ctx context.Context, reservationID string) ([]model.Guest, error) {
	rows, err := r.query(ctx, `
		SELECT id, reservation_id, name, document_type, document_number, birth_date, country,
			signature_url, accepts_rules, created_at
		FROM guests WHERE reservation_id = ? ORDER BY created_at, id`, reservationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Guest, 0)
	for rows.Next() {
		var g model.Guest
		if err := rows.Scan(&g.ID, &g.ReservationID, &g.Name, &g.DocumentType, &g.DocumentNumber,
			&g.BirthDate, &g.Country, &g.SignatureURL, &g.AcceptsRules, &g.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *guestRepository) SaveCheckin(ctx context.Context, reservationID, arrivalTime, specialRequests string, guests []model.Guest) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, r.rebind(`
		UPDATE reservations SET arrival_time = ?, special_requests = ?, updated_at = ? WHERE id = ?`),
		arrivalTime, specialRequests, now, reservationID)
	if err != nil {
		return mapError(err)
	}
	if err = affectedOrNotFound(res); err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, r.rebind(`DELETE FROM guests WHERE reservation_id = ?`), reservationID); err != nil {
		return err
	}

	insert := r.rebind(`
		INSERT INTO guests (id, reservation_id, name, document_type, document_number, birth_date,
			country, signature_url, accepts_rules, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	for i := range guests {
		g := &guests[i]
		if g.ID == "" {
			g.ID = uuid.NewString()
		}
		g.ReservationID = reservationID
		g.CreatedAt = now
		if _, err = tx.ExecContext(ctx, insert, g.ID, g.ReservationID, g.Name, g.DocumentType,
			g.DocumentNumber, g.BirthDate, g.Country, g.SignatureURL, g.AcceptsRules, g.CreatedAt); err != nil {
			return fmt.Errorf("insert guest %d: %w", i, mapError(err))
		}
	}

	return tx.Commit()
}
