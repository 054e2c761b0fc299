package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"delfin/internal/model"
)

type TemplateRepository interface {
	List(ctx context.Context) ([]model.MessageTemplate, error)
	// ListActive returns active templates for a trigger, oldest first.
	ListActive(ctx context.Context, trigger model.Trigger) ([]model.MessageTemplate, error)
	Get(ctx context.Context, id string) (model.MessageTemplate, error)
	Create(ctx context.Context, t *model.MessageTemplate) error
	Update(ctx context.Context, t *model.MessageTemplate) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

type DeliveryRepository interface {
	// Delivered reports whether the template was already sent for the reservation.
	Delivered(ctx context.Context, reservationID, templateID string) (bool, error)
	// Record marks a delivery; ErrConflict if it was already recorded.
	Record(ctx context.Context, d *model.Delivery) error
}

type templateRepository struct {
	*conn
}

const templateColumns = `id, trigger_type, channel, body, language, is_active, created_at, updated_at`

func scanTemplate(row scanner) (model.MessageTemplate, error) {
	var t model.MessageTemplate
	err := row.Scan(&t.ID, &t.Trigger, &t.Channel, &t.Body, &t.Language, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (r *templateRepository) List(ctx context.Context) ([]model.MessageTemplate, error) {
	return r.list(ctx, `SELECT `+templateColumns+` FROM message_templates ORDER BY trigger_type, created_at, id`)
}

func (r *templateRepository) ListActive(ctx context.Context, trigger model.Trigger) ([]model.MessageTemplate, error) {
	return r.list(ctx, `SELECT `+templateColumns+` FROM message_templates
		WHERE trigger_type = ? AND is_active = ? ORDER BY created_at, id`, trigger, true)
}

func (r *templateRepository) list(ctx context.Context, q string, args ...any) ([]model.MessageTemplate, error) {
	rows, err := r.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.MessageTemplate, 0)
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *templateRepository) Get(ctx context.Context, id string) (model.MessageTemplate, error) {
	t, err := scanTemplate(r.queryRow(ctx, `SELECT `+templateColumns+` FROM message_templates WHERE id = ?`, id))
	return t, mapError(err)
}

func (r *templateRepository) Create(ctx context.Context, t *model.MessageTemplate) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	_, err := r.exec(ctx, `INSERT INTO message_templates (`+templateColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Trigger, t.Channel, t.Body, t.Language, t.Active, t.CreatedAt, t.UpdatedAt)
	return mapError(err)
}

func (r *templateRepository) Update(ctx context.Context, t *model.MessageTemplate) error {
	t.UpdatedAt = time.Now().UTC()
	res, err := r.exec(ctx, `
		UPDATE message_templates
		SET trigger_type = ?, channel = ?, body = ?, language = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		t.Trigger, t.Channel, t.Body, t.Language, t.Active, t.UpdatedAt, t.ID)
	if err != nil {
		return mapError(err)
	}
	return affectedOrNotFound(res)
}

func (r *templateRepository) Delete(ctx context.Context, id string) error {
	res, err := r.exec(ctx, `DELETE FROM message_templates WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	return affectedOrNotFound(res)
}

func (r *templateRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.queryRow(ctx, `SELECT COUNT(*) FROM message_templates`).Scan(&n)
	return n, err
}

type deliveryRepository struct {
	*conn
}

func (r *deliveryRepository) Delivered(ctx context.Context, reservationID, templateID string) (bool, error) {
	var n int
	err := r.queryRow(ctx, `SELECT COUNT(*) FROM message_deliveries WHERE reservation_id = ? AND template_id = ?`,
		reservationID, templateID).Scan(&n)
	return n > 0, err
}

func (r *deliveryRepository) Record(ctx context.Context, d *model.Delivery) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.SentAt.IsZero() {
		d.SentAt = time.Now()
	}
	d.SentAt = d.SentAt.UTC()

	_, err := r.exec(ctx, `
		INSERT INTO message_deliveries (id, reservation_id, template_id, channel, recipient, sent_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.ReservationID, d.TemplateID, d.Channel, d.Recipient, d.SentAt)
	return mapError(err)
}
