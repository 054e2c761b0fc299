package web

import (
	"errors"
	"net/http"
	"time"

	"delfin/internal/finance"
	"delfin/internal/model"
	"delfin/internal/notify"
	"delfin/internal/store"
	"delfin/internal/validation"
)

type reservationRequest struct {
	RoomID     string                  `json:"room_id" validate:"required"`
	ExternalID string                  `json:"external_id"`
	GuestName  string                  `json:"guest_name" validate:"required"`
	GuestEmail string                  `json:"guest_email" validate:"omitempty,email"`
	GuestPhone string                  `json:"guest_phone"`
	CheckIn    string                  `json:"check_in" validate:"required"`
	CheckOut   string                  `json:"check_out" validate:"required"`
	Channel    model.Channel           `json:"channel" validate:"omitempty,oneof=manual booking airbnb"`
	Status     model.ReservationStatus `json:"status" validate:"omitempty,oneof=confirmed cancelled completed"`
	Currency   string                  `json:"currency" validate:"omitempty,len=3"`

	TotalPrice         *float64 `json:"total_price" validate:"omitempty,gte=0"`
	GuestPaid          *float64 `json:"guest_paid" validate:"omitempty,gte=0"`
	PlatformCommission *float64 `json:"platform_commission"`
	NetIncome          *float64 `json:"net_income"`
}

// dates parses and checks the stay. Check-out on the check-in day is
// allowed; check-out before check-in is not.
func (req reservationRequest) dates() (checkIn, checkOut time.Time, err error) {
	verr := &validation.Error{}
	checkIn, ierr := parseDate(req.CheckIn)
	if ierr != nil {
		verr.Add("check_in", ierr.Error())
	}
	checkOut, oerr := parseDate(req.CheckOut)
	if oerr != nil {
		verr.Add("check_out", oerr.Error())
	}
	if ierr == nil && oerr == nil && checkOut.Before(checkIn) {
		verr.Add("check_out", "must not be before check_in")
	}
	return checkIn, checkOut, verr.Err()
}

type financialsRequest struct {
	GuestPaid          *float64 `json:"guest_paid" validate:"required,gte=0"`
	TotalPrice         *float64 `json:"total_price" validate:"omitempty,gte=0"`
	PlatformCommission *float64 `json:"platform_commission"`
	NetIncome          *float64 `json:"net_income"`
}

func (s *Server) handleListReservations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.ReservationFilter{
		RoomID:  q.Get("room_id"),
		Status:  model.ReservationStatus(q.Get("status")),
		Channel: model.Channel(q.Get("channel")),
	}

	verr := &validation.Error{}
	if f.Status != "" && !model.ValidStatus(f.Status) {
		verr.Add("status", "must be one of: confirmed cancelled completed")
	}
	if f.Channel != "" && !model.ValidChannel(f.Channel) {
		verr.Add("channel", "must be one of: manual booking airbnb")
	}
	if v := q.Get("date_from"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			verr.Add("date_from", err.Error())
		}
		f.DateFrom = t
	}
	if v := q.Get("date_to"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			verr.Add("date_to", err.Error())
		}
		f.DateTo = t
	}
	if err := verr.Err(); err != nil {
		writeFailure(w, err, "reservations")
		return
	}

	list, err := s.deps.Store.Reservations.List(r.Context(), f)
	if err != nil {
		writeFailure(w, err, "reservations")
		return
	}
	if list == nil {
		list = []model.Reservation{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetReservation(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Store.Reservations.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err, "reservation")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req reservationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validation.Struct(req); err != nil {
		writeFailure(w, err, "reservation")
		return
	}
	checkIn, checkOut, err := req.dates()
	if err != nil {
		writeFailure(w, err, "reservation")
		return
	}
	if !s.roomExists(w, r, req.RoomID) {
		return
	}

	res := model.Reservation{
		ExternalID: req.ExternalID,
		RoomID:     req.RoomID,
		GuestName:  req.GuestName,
		GuestEmail: req.GuestEmail,
		GuestPhone: req.GuestPhone,
		CheckIn:    checkIn,
		CheckOut:   checkOut,
		Channel:    req.Channel,
		Status:     req.Status,
		Currency:   req.Currency,
	}
	if res.Channel == "" {
		res.Channel = model.ChannelManual
	}

	gross := 0.0
	switch {
	case req.GuestPaid != nil:
		gross = *req.GuestPaid
	case req.TotalPrice != nil:
		gross = *req.TotalPrice
	}
	finance.Apply(&res, gross, req.PlatformCommission, req.NetIncome)
	res.TotalPrice = gross
	if req.TotalPrice != nil {
		res.TotalPrice = *req.TotalPrice
	}

	if err := s.deps.Store.Reservations.Create(ctx, &res); err != nil {
		writeFailure(w, err, "reservation")
		return
	}
	s.enqueue(r, notify.NewJob(notify.KindNewReservation, res.ID, res.RoomID))
	writeJSON(w, http.StatusCreated, res)
}

// handleUpdateReservation edits guest, stay and status fields. Money is
// changed only through the financials endpoint.
func (s *Server) handleUpdateReservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := s.deps.Store.Reservations.Get(ctx, r.PathValue("id"))
	if err != nil {
		writeFailure(w, err, "reservation")
		return
	}

	var req reservationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validation.Struct(req); err != nil {
		writeFailure(w, err, "reservation")
		return
	}
	checkIn, checkOut, err := req.dates()
	if err != nil {
		writeFailure(w, err, "reservation")
		return
	}
	if req.RoomID != res.RoomID && !s.roomExists(w, r, req.RoomID) {
		return
	}

	res.RoomID = req.RoomID
	res.GuestName = req.GuestName
	res.GuestEmail = req.GuestEmail
	res.GuestPhone = req.GuestPhone
	res.CheckIn, res.CheckOut = checkIn, checkOut
	if req.Status != "" {
		res.Status = req.Status
	}
	if req.Currency != "" {
		res.Currency = req.Currency
	}

	if err := s.deps.Store.Reservations.Update(ctx, &res); err != nil {
		writeFailure(w, err, "reservation")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleUpdateFinancials assigns the gross amount and re-derives commission
// and net unless they are given explicitly.
func (s *Server) handleUpdateFinancials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := s.deps.Store.Reservations.Get(ctx, r.PathValue("id"))
	if err != nil {
		writeFailure(w, err, "reservation")
		return
	}

	var req financialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validation.Struct(req); err != nil {
		writeFailure(w, err, "reservation")
		return
	}

	finance.Apply(&res, *req.GuestPaid, req.PlatformCommission, req.NetIncome)
	res.TotalPrice = *req.GuestPaid
	if req.TotalPrice != nil {
		res.TotalPrice = *req.TotalPrice
	}
	if err := s.deps.Store.Reservations.UpdateFinancials(ctx, res.ID, res.TotalPrice, res.GuestPaid, res.PlatformCommission, res.NetIncome); err != nil {
		writeFailure(w, err, "reservation")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeleteReservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := s.deps.Store.Reservations.Get(ctx, r.PathValue("id"))
	if err != nil {
		writeFailure(w, err, "reservation")
		return
	}
	if err := s.deps.Store.Reservations.Delete(ctx, res.ID); err != nil {
		writeFailure(w, err, "reservation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleListGuests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	if _, err := s.deps.Store.Reservations.Get(ctx, id); err != nil {
		writeFailure(w, err, "reservation")
		return
	}
	guests, err := s.deps.Store.Guests.ListByReservation(ctx, id)
	if err != nil {
		writeFailure(w, err, "guests")
		return
	}
	if guests == nil {
		guests = []model.Guest{}
	}
	writeJSON(w, http.StatusOK, guests)
}

// roomExists writes a 400 and returns false when the referenced room is
// missing.
func (s *Server) roomExists(w http.ResponseWriter, r *http.Request, roomID string) bool {
	_, err := s.deps.Store.Rooms.Get(r.Context(), roomID)
	if err == nil {
		return true
	}
	if errors.Is(err, store.ErrNotFound) {
		verr := &validation.Error{}
		verr.Add("room_id", "does not exist")
		writeFailure(w, verr, "reservation")
		return false
	}
	writeFailure(w, err, "room")
	return false
}
