package web

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"delfin/internal/calsync"
	"delfin/internal/config"
	appLog "delfin/internal/log"
	"delfin/internal/notify"
	"delfin/internal/registration"
	"delfin/internal/store"
	"delfin/internal/validation"
)

const maxBodyBytes = 1 << 20

// Deps are the services the HTTP API is a thin layer over.
type Deps struct {
	Store         *store.Store
	Syncer        *calsync.Syncer
	Exporter      *calsync.Exporter
	Dispatcher    *notify.Dispatcher
	Queue         notify.Enqueuer
	Registrations *registration.Service
}

// Server provides the JSON API for rooms, reservations, sync, calendar
// export, message templates, check-in and guest registration.
type Server struct {
	cfg  *config.Config
	deps Deps
	mux  *http.ServeMux
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mux:  http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password counts as disabled.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers with HTTP Basic Auth except /health
// and the outbound calendars, which Booking.com and Airbnb fetch without
// credentials.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || strings.HasPrefix(r.URL.Path, "/api/ical/") {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Delfin", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/rooms", s.handleListRooms)
	s.mux.HandleFunc("POST /api/rooms", s.handleCreateRoom)
	s.mux.HandleFunc("GET /api/rooms/{id}", s.handleGetRoom)
	s.mux.HandleFunc("PUT /api/rooms/{id}", s.handleUpdateRoom)
	s.mux.HandleFunc("DELETE /api/rooms/{id}", s.handleDeleteRoom)

	s.mux.HandleFunc("GET /api/reservations", s.handleListReservations)
	s.mux.HandleFunc("POST /api/reservations", s.handleCreateReservation)
	s.mux.HandleFunc("GET /api/reservations/{id}", s.handleGetReservation)
	s.mux.HandleFunc("PUT /api/reservations/{id}", s.handleUpdateReservation)
	s.mux.HandleFunc("DELETE /api/reservations/{id}", s.handleDeleteReservation)
	s.mux.HandleFunc("PUT /api/reservations/{id}/financials", s.handleUpdateFinancials)
	s.mux.HandleFunc("GET /api/reservations/{id}/guests", s.handleListGuests)

	s.mux.HandleFunc("GET /api/sync", s.handleSyncInfo)
	s.mux.HandleFunc("POST /api/sync", s.handleSync)
	s.mux.HandleFunc("GET /api/ical/{roomId}", s.handleExport)

	s.mux.HandleFunc("GET /api/messages", s.handleListTemplates)
	s.mux.HandleFunc("POST /api/messages", s.handleCreateTemplate)
	s.mux.HandleFunc("GET /api/messages/{id}", s.handleGetTemplate)
	s.mux.HandleFunc("PUT /api/messages/{id}", s.handleUpdateTemplate)
	s.mux.HandleFunc("DELETE /api/messages/{id}", s.handleDeleteTemplate)
	s.mux.HandleFunc("POST /api/messages/{id}/preview", s.handlePreviewTemplate)

	s.mux.HandleFunc("POST /api/checkin", s.handleCheckin)

	s.mux.HandleFunc("GET /api/guest-registrations", s.handleListRegistrations)
	s.mux.HandleFunc("POST /api/guest-registrations", s.handleCreateRegistration)
	s.mux.HandleFunc("GET /api/guest-registrations/stats", s.handleRegistrationStats)
	s.mux.HandleFunc("GET /api/guest-registrations/{id}", s.handleGetRegistration)
	s.mux.HandleFunc("POST /api/guest-registrations/{id}/submit", s.handleSubmitRegistration)
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.Ping(r.Context()); err != nil {
		appLog.Error("health: database ping failed", err)
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Database: "unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Database: "ok"})
}

// enqueue hands a job to the notification queue without failing the
// request that produced it.
func (s *Server) enqueue(r *http.Request, job notify.Job) {
	if s.deps.Queue == nil {
		return
	}
	if err := s.deps.Queue.Enqueue(r.Context(), job); err != nil {
		appLog.Error("notification enqueue failed", err, "kind", job.Kind, "reservation_id", job.ReservationID)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

// writeFailure maps service and store errors onto status codes. what names
// the resource for not-found messages.
func writeFailure(w http.ResponseWriter, err error, what string) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		type validationResp struct {
			Error  string            `json:"error"`
			Fields map[string]string `json:"fields"`
		}
		writeJSON(w, http.StatusBadRequest, validationResp{Error: "validation failed", Fields: verr.Fields})
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, what+" not found")
	case errors.Is(err, store.ErrInUse):
		writeError(w, http.StatusConflict, what+" is still referenced by other records")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, what+" already exists")
	default:
		appLog.Error("request failed", err, "resource", what)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseDate accepts YYYY-MM-DD (UTC midnight) or RFC 3339.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not a YYYY-MM-DD or RFC 3339 date", s)
	}
	return t.UTC(), nil
}
