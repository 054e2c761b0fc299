package web

import (
	"errors"
	"net/http"

	"delfin/internal/model"
	"delfin/internal/registration"
)

func (s *Server) handleListRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := s.deps.Store.Registrations.List(r.Context())
	if err != nil {
		writeFailure(w, err, "guest registrations")
		return
	}
	if regs == nil {
		regs = []model.GuestRegistration{}
	}
	writeJSON(w, http.StatusOK, regs)
}

func (s *Server) handleGetRegistration(w http.ResponseWriter, r *http.Request) {
	reg, err := s.deps.Store.Registrations.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err, "guest registration")
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

func (s *Server) handleCreateRegistration(w http.ResponseWriter, r *http.Request) {
	var reg model.GuestRegistration
	if err := decodeJSON(w, r, &reg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// Identity and transmission state are server-owned.
	reg.ID = ""
	if err := s.deps.Registrations.Create(r.Context(), &reg); err != nil {
		writeFailure(w, err, "guest registration")
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

func (s *Server) handleSubmitRegistration(w http.ResponseWriter, r *http.Request) {
	reg, err := s.deps.Registrations.Submit(r.Context(), r.PathValue("id"))
	if errors.Is(err, registration.ErrAlreadySent) {
		writeError(w, http.StatusConflict, "guest registration already sent")
		return
	}
	if err != nil {
		writeFailure(w, err, "guest registration")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      reg.Transmission == model.TransmissionSent,
		"registration": reg,
	})
}

func (s *Server) handleRegistrationStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Registrations.Stats(r.Context())
	if err != nil {
		writeFailure(w, err, "guest registrations")
		return
	}
	writeJSON(w, http.StatusOK, st)
}
