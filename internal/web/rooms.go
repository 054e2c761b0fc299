package web

import (
	"net/http"

	"github.com/google/uuid"

	"delfin/internal/calsync"
	"delfin/internal/model"
	"delfin/internal/validation"
)

type roomRequest struct {
	Name             string   `json:"name" validate:"required"`
	Description      string   `json:"description"`
	Capacity         int      `json:"capacity" validate:"gte=0"`
	BasePrice        *float64 `json:"base_price" validate:"required,gte=0"`
	ICalInBookingURL string   `json:"ical_in_booking_url" validate:"omitempty,url"`
	ICalInAirbnbURL  string   `json:"ical_in_airbnb_url" validate:"omitempty,url"`
	ICalOutURL       string   `json:"ical_out_url" validate:"omitempty,url"`
}

func (req roomRequest) apply(room *model.Room) {
	room.Name = req.Name
	room.Description = req.Description
	room.Capacity = req.Capacity
	room.BasePrice = *req.BasePrice
	room.ICalInBookingURL = req.ICalInBookingURL
	room.ICalInAirbnbURL = req.ICalInAirbnbURL
	room.ICalOutURL = req.ICalOutURL
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.deps.Store.Rooms.List(r.Context())
	if err != nil {
		writeFailure(w, err, "rooms")
		return
	}
	if rooms == nil {
		rooms = []model.Room{}
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := s.deps.Store.Rooms.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err, "room")
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req roomRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validation.Struct(req); err != nil {
		writeFailure(w, err, "room")
		return
	}

	room := model.Room{ID: uuid.NewString()}
	req.apply(&room)
	if room.ICalOutURL == "" {
		room.ICalOutURL = calsync.OutboundURL(s.cfg.PublicURL, room.ID)
	}
	if err := s.deps.Store.Rooms.Create(r.Context(), &room); err != nil {
		writeFailure(w, err, "room")
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

func (s *Server) handleUpdateRoom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	room, err := s.deps.Store.Rooms.Get(ctx, r.PathValue("id"))
	if err != nil {
		writeFailure(w, err, "room")
		return
	}

	var req roomRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validation.Struct(req); err != nil {
		writeFailure(w, err, "room")
		return
	}

	req.apply(&room)
	if room.ICalOutURL == "" {
		room.ICalOutURL = calsync.OutboundURL(s.cfg.PublicURL, room.ID)
	}
	if err := s.deps.Store.Rooms.Update(ctx, &room); err != nil {
		writeFailure(w, err, "room")
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (s *Server) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.deps.Store.Rooms.Delete(r.Context(), id); err != nil {
		writeFailure(w, err, "room")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
