package registration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	appLog "delfin/internal/log"
	"delfin/internal/model"
	"delfin/internal/store"
	"delfin/internal/validation"
)

// ErrAlreadySent is returned when submitting a registration the ministry
// has already accepted.
var ErrAlreadySent = errors.New("registration already sent")

const dateLayout = "2006-01-02"

// Validate checks a registration before it is stored. The result is nil or
// *validation.Error.
func Validate(reg model.GuestRegistration) error {
	verr := &validation.Error{}
	if err := validation.Struct(reg); err != nil {
		if !errors.As(err, &verr) {
			return err
		}
	}
	if !reg.AcceptsTerms {
		verr.Add("accepts_terms", "must be accepted")
	}
	if !reg.AcceptsDataProcessing {
		verr.Add("accepts_data_processing", "must be accepted")
	}

	arrival, aerr := time.Parse(dateLayout, reg.ArrivalDate)
	departure, derr := time.Parse(dateLayout, reg.DepartureDate)
	if aerr == nil && derr == nil && departure.Before(arrival) {
		verr.Add("departure_date", "must not be before arrival_date")
	}
	return verr.Err()
}

// Submitter sends a registration to the authorities.
type Submitter interface {
	Submit(ctx context.Context, reg model.GuestRegistration) (Response, error)
}

type Service struct {
	store    *store.Store
	ministry Submitter
}

func NewService(st *store.Store, ministry Submitter) *Service {
	return &Service{store: st, ministry: ministry}
}

// Create validates and stores a new registration with status not_sent.
func (s *Service) Create(ctx context.Context, reg *model.GuestRegistration) error {
	if err := Validate(*reg); err != nil {
		return err
	}
	reg.Transmission = model.TransmissionNotSent
	reg.MinistryResponse, reg.MinistryError = "", ""
	if err := s.store.Registrations.Create(ctx, reg); err != nil {
		return err
	}
	appLog.Info("guest registration created", "registration_id", reg.ID, "reservation_id", reg.ReservationID)
	return nil
}

// Submit sends a stored registration and persists the outcome: sent with
// the receipt JSON, or error with the failure message. Only storage
// failures and ErrAlreadySent are returned as errors; a rejected
// submission is reflected in the returned record.
func (s *Service) Submit(ctx context.Context, id string) (model.GuestRegistration, error) {
	reg, err := s.store.Registrations.Get(ctx, id)
	if err != nil {
		return model.GuestRegistration{}, err
	}
	if reg.Transmission == model.TransmissionSent {
		return reg, ErrAlreadySent
	}

	resp, serr := s.ministry.Submit(ctx, reg)
	if serr != nil {
		appLog.Error("ministry submission failed", serr, "registration_id", id)
		reg.Transmission = model.TransmissionError
		reg.MinistryResponse = ""
		reg.MinistryError = serr.Error()
	} else {
		raw, err := json.Marshal(resp)
		if err != nil {
			return reg, fmt.Errorf("encode ministry response: %w", err)
		}
		reg.Transmission = model.TransmissionSent
		reg.MinistryResponse = string(raw)
		reg.MinistryError = ""
		appLog.Info("ministry submission accepted", "registration_id", id, "ministry_id", resp.RegistrationID)
	}

	if err := s.store.Registrations.UpdateTransmission(ctx, id, reg.Transmission, reg.MinistryResponse, reg.MinistryError); err != nil {
		return reg, err
	}
	return s.store.Registrations.Get(ctx, id)
}

// Stats summarizes transmission outcomes across all registrations.
type Stats struct {
	Total          int     `json:"total_registrations"`
	Sent           int     `json:"successful_sends"`
	Failed         int     `json:"failed_sends"`
	Pending        int     `json:"pending"`
	ComplianceRate float64 `json:"compliance_rate"`
}

// Stats reports the share of registrations accepted by the ministry. An
// empty register is fully compliant.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	regs, err := s.store.Registrations.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Total: len(regs), ComplianceRate: 100}
	for _, r := range regs {
		switch r.Transmission {
		case model.TransmissionSent:
			st.Sent++
		case model.TransmissionError:
			st.Failed++
		default:
			st.Pending++
		}
	}
	if st.Total > 0 {
		st.ComplianceRate = math.Round(float64(st.Sent)/float64(st.Total)*10000) / 100
	}
	return st, nil
}
