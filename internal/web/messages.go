package web

import (
	"net/http"

	"delfin/internal/messaging"
	"delfin/internal/model"
	"delfin/internal/validation"
)

type templateRequest struct {
	Trigger  model.Trigger         `json:"trigger" validate:"required,oneof=reservation_confirmed t_minus_7_days t_minus_24_hours checkin_instructions post_checkout"`
	Channel  model.DeliveryChannel `json:"channel" validate:"required,oneof=email telegram whatsapp"`
	Body     string                `json:"template" validate:"required"`
	Language string                `json:"language" validate:"omitempty,max=8"`
	Active   *bool                 `json:"is_active"`
}

func (req templateRequest) apply(t *model.MessageTemplate) {
	t.Trigger = req.Trigger
	t.Channel = req.Channel
	t.Body = req.Body
	t.Language = req.Language
	if req.Active != nil {
		t.Active = *req.Active
	}
}

type templateResponse struct {
	model.MessageTemplate
	Placeholders []string `json:"placeholders"`
}

func newTemplateResponse(t model.MessageTemplate) templateResponse {
	p := messaging.Placeholders(t.Body)
	if p == nil {
		p = []string{}
	}
	return templateResponse{MessageTemplate: t, Placeholders: p}
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	tpls, err := s.deps.Store.Templates.List(r.Context())
	if err != nil {
		writeFailure(w, err, "message templates")
		return
	}
	out := make([]templateResponse, 0, len(tpls))
	for _, t := range tpls {
		out = append(out, newTemplateResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.deps.Store.Templates.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err, "message template")
		return
	}
	writeJSON(w, http.StatusOK, newTemplateResponse(t))
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validation.Struct(req); err != nil {
		writeFailure(w, err, "message template")
		return
	}

	t := model.MessageTemplate{Active: true}
	req.apply(&t)
	if err := s.deps.Store.Templates.Create(r.Context(), &t); err != nil {
		writeFailure(w, err, "message template")
		return
	}
	writeJSON(w, http.StatusCreated, newTemplateResponse(t))
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := s.deps.Store.Templates.Get(ctx, r.PathValue("id"))
	if err != nil {
		writeFailure(w, err, "message template")
		return
	}

	var req templateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validation.Struct(req); err != nil {
		writeFailure(w, err, "message template")
		return
	}

	req.apply(&t)
	if err := s.deps.Store.Templates.Update(ctx, &t); err != nil {
		writeFailure(w, err, "message template")
		return
	}
	writeJSON(w, http.StatusOK, newTemplateResponse(t))
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.Templates.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeFailure(w, err, "message template")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type previewRequest struct {
	ReservationID string `json:"reservation_id" validate:"required"`
}

type previewResponse struct {
	Preview string `json:"preview"`
}

// handlePreviewTemplate renders a template against a real reservation
// without sending anything.
func (s *Server) handlePreviewTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := s.deps.Store.Templates.Get(ctx, r.PathValue("id"))
	if err != nil {
		writeFailure(w, err, "message template")
		return
	}

	var req previewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validation.Struct(req); err != nil {
		writeFailure(w, err, "preview")
		return
	}

	text, err := s.deps.Dispatcher.Preview(ctx, t, req.ReservationID)
	if err != nil {
		writeFailure(w, err, "reservation")
		return
	}
	writeJSON(w, http.StatusOK, previewResponse{Preview: text})
}
