package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"delfin/internal/model"
)

type RegistrationRepository interface {
	List(ctx context.Context) ([]model.GuestRegistration, error)
	Get(ctx context.Context, id string) (model.GuestRegistration, error)
	Create(ctx context.Context, reg *model.GuestRegistration) error
	// UpdateTransmission records the outcome of a submission to the authorities.
	UpdateTransmission(ctx context.Context, id string, status model.TransmissionStatus, response, errMsg string) error
}

type registrationRepository struct {
	*conn
}

const registrationColumns = `id, reservation_id, name, surname, birth_date, birth_place, nationality,
	document_type, document_number, document_issuing_country, document_expiry_date,
	email, phone, address, city, postal_code, country,
	arrival_date, departure_date, room_number, travel_purpose,
	previous_accommodation, next_destination, vehicle_registration,
	accepts_terms, accepts_data_processing, transmission_status, ministry_response, ministry_error,
	created_at, updated_at`

func scanRegistration(row scanner) (model.GuestRegistration, error) {
	var g model.GuestRegistration
	err := row.Scan(&g.ID, &g.ReservationID, &g.Name, &g.Surname, &g.BirthDate, &g.BirthPlace, &g.Nationality,
		&g.DocumentType, &g.DocumentNumber, &g.DocumentIssuingCountry, &g.DocumentExpiryDate,
		&g.Email, &g.Phone, &g.Address, &g.City, &g.PostalCode, &g.Country,
		&g.ArrivalDate, &g.DepartureDate, &g.RoomNumber, &g.TravelPurpose,
		&g.PreviousAccommodation, &g.NextDestination, &g.VehicleRegistration,
		&g.AcceptsTerms, &g.AcceptsDataProcessing, &g.Transmission, &g.MinistryResponse, &g.MinistryError,
		&g.CreatedAt, &g.UpdatedAt)
	return g, err
}

func (r *registrationRepository) List(ctx context.Context) ([]model.GuestRegistration, error) {
	rows, err := r.query(ctx, `SELECT `+registrationColumns+` FROM guest_registrations ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.GuestRegistration, 0)
	for rows.Next() {
		g, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *registrationRepository) Get(ctx context.Context, id string) (model.GuestRegistration, error) {
	g, err := scanRegistration(r.queryRow(ctx, `SELECT `+registrationColumns+` FROM guest_registrations WHERE id = ?`, id))
	return g, mapError(err)
}

func (r *registrationRepository) Create(ctx context.Context, g *model.GuestRegistration) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.Transmission == "" {
		g.Transmission = model.TransmissionNotSent
	}
	now := time.Now().UTC()
	g.CreatedAt, g.UpdatedAt = now, now

	_, err := r.exec(ctx, `INSERT INTO guest_registrations (`+registrationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.ReservationID, g.Name, g.Surname, g.BirthDate, g.BirthPlace, g.Nationality,
		g.DocumentType, g.DocumentNumber, g.DocumentIssuingCountry, g.DocumentExpiryDate,
		g.Email, g.Phone, g.Address, g.City, g.PostalCode, g.Country,
		g.ArrivalDate, g.DepartureDate, g.RoomNumber, g.TravelPurpose,
		g.PreviousAccommodation, g.NextDestination, g.VehicleRegistration,
		g.AcceptsTerms, g.AcceptsDataProcessing, g.Transmission, g.MinistryResponse, g.MinistryError,
		g.CreatedAt, g.UpdatedAt)
	return mapError(err)
}

func (r *registrationRepository) UpdateTransmission(ctx context.Context, id string, status model.TransmissionStatus, response, errMsg string) error {
	res, err := r.exec(ctx, `
		UPDATE guest_registrations
		SET transmission_status = ?, ministry_response = ?, ministry_error = ?, updated_at = ?
		WHERE id = ?`,
		status, response, errMsg, time.Now().UTC(), id)
	if err != nil {
		return mapError(err)
	}
	return affectedOrNotFound(res)
}
