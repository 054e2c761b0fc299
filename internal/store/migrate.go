package store

import (
	"context"
	"fmt"
)

// Column types are chosen to work unchanged on SQLite and PostgreSQL.
// go-sqlite3 only converts TIMESTAMP/DATETIME/DATE columns back into
// time.Time, so no TIMESTAMPTZ here; all times are stored in UTC.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		capacity INTEGER NOT NULL DEFAULT 0,
		base_price DOUBLE PRECISION NOT NULL DEFAULT 0,
		ical_in_booking_url TEXT NOT NULL DEFAULT '',
		ical_in_airbnb_url TEXT NOT NULL DEFAULT '',
		ical_out_url TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id TEXT PRIMARY KEY,
		external_id TEXT NOT NULL,
		room_id TEXT NOT NULL REFERENCES rooms(id),
		guest_name TEXT NOT NULL,
		guest_email TEXT NOT NULL DEFAULT '',
		guest_phone TEXT NOT NULL DEFAULT '',
		check_in TIMESTAMP NOT NULL,
		check_out TIMESTAMP NOT NULL,
		channel TEXT NOT NULL,
		status TEXT NOT NULL,
		total_price DOUBLE PRECISION NOT NULL DEFAULT 0,
		guest_paid DOUBLE PRECISION NOT NULL DEFAULT 0,
		platform_commission DOUBLE PRECISION NOT NULL DEFAULT 0,
		net_income DOUBLE PRECISION NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT 'EUR',
		arrival_time TEXT NOT NULL DEFAULT '',
		special_requests TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (channel, external_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_room ON reservations (room_id, check_in)`,
	`CREATE TABLE IF NOT EXISTS guests (
		id TEXT PRIMARY KEY,
		reservation_id TEXT NOT NULL REFERENCES reservations(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		document_type TEXT NOT NULL,
		document_number TEXT NOT NULL,
		birth_date TEXT NOT NULL,
		country TEXT NOT NULL,
		signature_url TEXT NOT NULL DEFAULT '',
		accepts_rules BOOLEAN NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS message_templates (
		id TEXT PRIMARY KEY,
		trigger_type TEXT NOT NULL,
		channel TEXT NOT NULL,
		body TEXT NOT NULL,
		language TEXT NOT NULL,
		is_active BOOLEAN NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS message_deliveries (
		id TEXT PRIMARY KEY,
		reservation_id TEXT NOT NULL REFERENCES reservations(id) ON DELETE CASCADE,
		template_id TEXT NOT NULL REFERENCES message_templates(id) ON DELETE CASCADE,
		channel TEXT NOT NULL,
		recipient TEXT NOT NULL,
		sent_at TIMESTAMP NOT NULL,
		UNIQUE (reservation_id, template_id)
	)`,
	`CREATE TABLE IF NOT EXISTS guest_registrations (
		id TEXT PRIMARY KEY,
		reservation_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		surname TEXT NOT NULL,
		birth_date TEXT NOT NULL,
		birth_place TEXT NOT NULL,
		nationality TEXT NOT NULL,
		document_type TEXT NOT NULL,
		document_number TEXT NOT NULL,
		document_issuing_country TEXT NOT NULL,
		document_expiry_date TEXT NOT NULL,
		email TEXT NOT NULL,
		phone TEXT NOT NULL,
		address TEXT NOT NULL,
		city TEXT NOT NULL,
		postal_code TEXT NOT NULL,
		country TEXT NOT NULL,
		arrival_date TEXT NOT NULL,
		departure_date TEXT NOT NULL,
		room_number TEXT NOT NULL,
		travel_purpose TEXT NOT NULL,
		previous_accommodation TEXT NOT NULL DEFAULT '',
		next_destination TEXT NOT NULL DEFAULT '',
		vehicle_registration TEXT NOT NULL DEFAULT '',
		accepts_terms BOOLEAN NOT NULL,
		accepts_data_processing BOOLEAN NOT NULL,
		transmission_status TEXT NOT NULL,
		ministry_response TEXT NOT NULL DEFAULT '',
		ministry_error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
}

// Migrate creates any missing tables. It is idempotent and never drops data.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: migration %d: %w", i, err)
		}
	}
	return nil
}
