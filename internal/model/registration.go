package model

import "time"

type TravelPurpose string

const (
	PurposeTourism  TravelPurpose = "tourism"
	PurposeBusiness TravelPurpose = "business"
	PurposeFamily   TravelPurpose = "family"
	PurposeOther    TravelPurpose = "other"
)

// TransmissionStatus tracks a registration's submission to the authorities.
type TransmissionStatus string

const (
	TransmissionNotSent TransmissionStatus = "not_sent"
	TransmissionSent    TransmissionStatus = "sent"
	TransmissionError   TransmissionStatus = "error"
)

// GuestRegistration is the per-traveler record required by Spanish law
// (Ley 4/2015, RD 933/2021). Dates are kept as YYYY-MM-DD strings as entered.
type GuestRegistration struct {
	ID            string `json:"id"`
	ReservationID string `json:"reservation_id"`

	Name        string `json:"name" validate:"required"`
	Surname     string `json:"surname" validate:"required"`
	BirthDate   string `json:"birth_date" validate:"required,datetime=2006-01-02"`
	BirthPlace  string `json:"birth_place" validate:"required"`
	Nationality string `json:"nationality" validate:"required"`

	DocumentType           DocumentType `json:"document_type" validate:"required,oneof=dni passport nie other"`
	DocumentNumber         string       `json:"document_number" validate:"required"`
	DocumentIssuingCountry string       `json:"document_issuing_country" validate:"required"`
	DocumentExpiryDate     string       `json:"document_expiry_date" validate:"required,datetime=2006-01-02"`

	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone" validate:"required"`
	Address    string `json:"address" validate:"required"`
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country" validate:"required"`

	ArrivalDate           string        `json:"arrival_date" validate:"required,datetime=2006-01-02"`
	DepartureDate         string        `json:"departure_date" validate:"required,datetime=2006-01-02"`
	RoomNumber            string        `json:"room_number" validate:"required"`
	TravelPurpose         TravelPurpose `json:"travel_purpose" validate:"required,oneof=tourism business family other"`
	PreviousAccommodation string        `json:"previous_accommodation,omitempty"`
	NextDestination       string        `json:"next_destination,omitempty"`
	VehicleRegistration   string        `json:"vehicle_registration,omitempty"`

	AcceptsTerms          bool `json:"accepts_terms"`
	AcceptsDataProcessing bool `json:"accepts_data_processing"`

	Transmission     TransmissionStatus `json:"transmission_status"`
	MinistryResponse string             `json:"ministry_response,omitempty"`
	MinistryError    string             `json:"ministry_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
