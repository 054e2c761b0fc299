// Package registration validates traveler registrations and submits them to
// the Ministry of the Interior. The transmission is simulated locally: the
// payload is built exactly as it would be sent and a synthetic receipt is
// returned.
package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"delfin/internal/config"
	appLog "delfin/internal/log"
	"delfin/internal/model"
)

// ErrNotConfigured is returned when no establishment code is set.
var ErrNotConfigured = errors.New("ministry: establishment code not configured")

const (
	establishmentType = "HOTEL"
	accommodationType = "HOTEL_ROOM"
	dataSource        = "Delfin Check-in System"
	complianceLaw     = "Ley 4/2015 de Protección de Seguridad Ciudadana"
	lawReference      = "Ley 4/2015, Artículo 25.1"
)

var documentCodes = map[model.DocumentType]string{
	model.DocumentPassport: "PASSPORT",
	model.DocumentDNI:      "DNI",
	model.DocumentNIE:      "NIE",
	model.DocumentOther:    "OTHER",
}

var purposeCodes = map[model.TravelPurpose]string{
	model.PurposeTourism:  "TOURISM",
	model.PurposeBusiness: "BUSINESS",
	model.PurposeFamily:   "FAMILY",
	model.PurposeOther:    "OTHER",
}

type Payload struct {
	Establishment Establishment `json:"establishment"`
	Traveler      Traveler      `json:"traveler"`
	Stay          Stay          `json:"stay"`

	RegistrationTimestamp time.Time `json:"registration_timestamp"`
	DataSource            string    `json:"data_source"`
	ComplianceLaw         string    `json:"compliance_law"`
}

type Establishment struct {
	Code string `json:"code"`
	Type string `json:"type"`
}

type Traveler struct {
	PersonalData PersonalData `json:"personal_data"`
	Document     Document     `json:"document"`
	Contact      Contact      `json:"contact"`
}

type PersonalData struct {
	Name        string `json:"name"`
	Surname     string `json:"surname"`
	BirthDate   string `json:"birth_date"`
	BirthPlace  string `json:"birth_place"`
	Nationality string `json:"nationality"`
	Gender      string `json:"gender"`
}

type Document struct {
	Type           string `json:"type"`
	Number         string `json:"number"`
	IssuingCountry string `json:"issuing_country"`
	ExpiryDate     string `json:"expiry_date"`
}

type Contact struct {
	Email   string  `json:"email"`
	Phone   string  `json:"phone"`
	Address Address `json:"address"`
}

type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type Stay struct {
	ArrivalDate           string `json:"arrival_date"`
	DepartureDate         string `json:"departure_date"`
	RoomNumber            string `json:"room_number"`
	TravelPurpose         string `json:"travel_purpose"`
	AccommodationType     string `json:"accommodation_type"`
	PreviousAccommodation string `json:"previous_accommodation,omitempty"`
	NextDestination       string `json:"next_destination,omitempty"`
	VehicleRegistration   string `json:"vehicle_registration,omitempty"`
}

// Response is the ministry receipt stored with the registration.
type Response struct {
	Success          bool      `json:"success"`
	RegistrationID   string    `json:"registration_id"`
	Timestamp        time.Time `json:"timestamp"`
	Message          string    `json:"message"`
	ComplianceStatus string    `json:"compliance_status"`
	LawReference     string    `json:"law_reference"`
}

// Ministry submits registrations on behalf of one establishment.
type Ministry struct {
	cfg config.MinistryConfig
	now func() time.Time
}

func NewMinistry(cfg config.MinistryConfig) *Ministry {
	return &Ministry{cfg: cfg, now: time.Now}
}

// Submit sends one registration and returns the receipt.
func (m *Ministry) Submit(ctx context.Context, reg model.GuestRegistration) (Response, error) {
	if m.cfg.EstablishmentCode == "" {
		return Response{}, ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	payload := m.BuildPayload(reg)
	appLog.Debug("ministry submission",
		"establishment", payload.Establishment.Code,
		"document_type", payload.Traveler.Document.Type,
		"api_url", m.cfg.APIURL,
	)

	now := m.now().UTC()
	return Response{
		Success:          true,
		RegistrationID:   fmt.Sprintf("ES-%d", now.UnixMilli()),
		Timestamp:        now,
		Message:          "Datos registrados correctamente en el sistema oficial español",
		ComplianceStatus: "COMPLIANT",
		LawReference:     lawReference,
	}, nil
}

// BuildPayload maps a registration to the ministry's nested format.
func (m *Ministry) BuildPayload(reg model.GuestRegistration) Payload {
	return Payload{
		Establishment: Establishment{Code: m.cfg.EstablishmentCode, Type: establishmentType},
		Traveler: Traveler{
			PersonalData: PersonalData{
				Name:        reg.Name,
				Surname:     reg.Surname,
				BirthDate:   reg.BirthDate,
				BirthPlace:  reg.BirthPlace,
				Nationality: reg.Nationality,
				Gender:      GenderFromDocument(reg.DocumentNumber),
			},
			Document: Document{
				Type:           DocumentCode(reg.DocumentType),
				Number:         reg.DocumentNumber,
				IssuingCountry: reg.DocumentIssuingCountry,
				ExpiryDate:     reg.DocumentExpiryDate,
			},
			Contact: Contact{
				Email: reg.Email,
				Phone: reg.Phone,
				Address: Address{
					Street:     reg.Address,
					City:       reg.City,
					PostalCode: reg.PostalCode,
					Country:    reg.Country,
				},
			},
		},
		Stay: Stay{
			ArrivalDate:           reg.ArrivalDate,
			DepartureDate:         reg.DepartureDate,
			RoomNumber:            reg.RoomNumber,
			TravelPurpose:         PurposeCode(reg.TravelPurpose),
			AccommodationType:     accommodationType,
			PreviousAccommodation: reg.PreviousAccommodation,
			NextDestination:       reg.NextDestination,
			VehicleRegistration:   reg.VehicleRegistration,
		},
		RegistrationTimestamp: m.now().UTC(),
		DataSource:            dataSource,
		ComplianceLaw:         complianceLaw,
	}
}

func DocumentCode(t model.DocumentType) string {
	if c, ok := documentCodes[t]; ok {
		return c
	}
	return "OTHER"
}

func PurposeCode(p model.TravelPurpose) string {
	if c, ok := purposeCodes[p]; ok {
		return c
	}
	return "OTHER"
}

// GenderFromDocument derives gender from a Spanish DNI (eight digits and a
// letter): even number FEMALE, odd MALE. Anything else is UNKNOWN.
func GenderFromDocument(number string) string {
	if len(number) != 9 {
		return "UNKNOWN"
	}
	n := 0
	for i := 0; i < 8; i++ {
		c := number[i]
		if c < '0' || c > '9' {
			return "UNKNOWN"
		}
		n = n*10 + int(c-'0')
	}
	if last := number[8]; last < 'A' || last > 'Z' {
		return "UNKNOWN"
	}
	if n%2 == 0 {
		return "FEMALE"
	}
	return "MALE"
}
