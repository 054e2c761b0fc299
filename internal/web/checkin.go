package web

import (
	"net/http"

	appLog "delfin/internal/log"
	"delfin/internal/model"
	"delfin/internal/notify"
	"delfin/internal/validation"
)

type checkinGuest struct {
	Name           string             `json:"name" validate:"required"`
	DocumentType   model.DocumentType `json:"document_type" validate:"required,oneof=dni passport nie other"`
	DocumentNumber string             `json:"document_number" validate:"required"`
	BirthDate      string             `json:"birth_date" validate:"required,datetime=2006-01-02"`
	Country        string             `json:"country" validate:"required"`
	SignatureURL   string             `json:"signature_url"`
	AcceptsRules   bool               `json:"accepts_rules" validate:"eq=true"`
}

type checkinRequest struct {
	ReservationID   string         `json:"reservation_id" validate:"required"`
	Guests          []checkinGuest `json:"guests" validate:"required,min=1,dive"`
	ArrivalTime     string         `json:"arrival_time" validate:"required"`
	SpecialRequests string         `json:"special_requests"`
}

type checkinResponse struct {
	Success bool          `json:"success"`
	Guests  []model.Guest `json:"guests"`
}

// handleCheckin records the travelers of a reservation and tells the host.
func (s *Server) handleCheckin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req checkinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validation.Struct(req); err != nil {
		writeFailure(w, err, "check-in")
		return
	}

	guests := make([]model.Guest, 0, len(req.Guests))
	for _, g := range req.Guests {
		guests = append(guests, model.Guest{
			Name:           g.Name,
			DocumentType:   g.DocumentType,
			DocumentNumber: g.DocumentNumber,
			BirthDate:      g.BirthDate,
			Country:        g.Country,
			SignatureURL:   g.SignatureURL,
			AcceptsRules:   g.AcceptsRules,
		})
	}

	if err := s.deps.Store.Guests.SaveCheckin(ctx, req.ReservationID, req.ArrivalTime, req.SpecialRequests, guests); err != nil {
		writeFailure(w, err, "reservation")
		return
	}
	appLog.Info("check-in completed", "reservation_id", req.ReservationID, "guests", len(guests))

	roomID := ""
	if res, err := s.deps.Store.Reservations.Get(ctx, req.ReservationID); err == nil {
		roomID = res.RoomID
	}
	s.enqueue(r, notify.NewJob(notify.KindCheckinCompleted, req.ReservationID, roomID))
	writeJSON(w, http.StatusCreated, checkinResponse{Success: true, Guests: guests})
}
