package web

import (
	"fmt"
	"net/http"

	"delfin/internal/calsync"
	appLog "delfin/internal/log"
	"delfin/internal/model"
)

type syncResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Count   int             `json:"count"`
	Failed  int             `json:"failed"`
	Result  *calsync.Result `json:"result,omitempty"`
}

// handleSync runs a manual sync for one inbound channel (default booking).
// Partial failure is still a success; only "nothing to sync" is not.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	ch := model.Channel(r.URL.Query().Get("channel"))
	if ch == "" {
		ch = model.ChannelBooking
	}
	if ch != model.ChannelBooking && ch != model.ChannelAirbnb {
		writeJSON(w, http.StatusBadRequest, syncResponse{
			Success: false,
			Message: fmt.Sprintf("unsupported channel %q", ch),
		})
		return
	}

	appLog.Info("manual sync requested", "channel", ch)
	res := s.deps.Syncer.SyncChannel(r.Context(), ch)

	status := http.StatusOK
	if !res.Success {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, syncResponse{
		Success: res.Success,
		Message: res.Message,
		Count:   res.RoomsSynced,
		Failed:  res.RoomsFailed,
		Result:  &res,
	})
}

func (s *Server) handleSyncInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Sync endpoint available. Use POST to sync.",
		"endpoints": map[string]string{
			"sync": "POST /api/sync?channel=booking|airbnb - sync every room's inbound calendar",
			"ical": "GET /api/ical/{roomId} - outbound calendar of a room",
		},
	})
}

// handleExport serves a room's confirmed reservations as an iCalendar feed.
// The feed is built on every request so scheduled syncs show up at once.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomId")

	body, err := s.deps.Exporter.Export(r.Context(), roomID)
	if err != nil {
		writeFailure(w, err, "room")
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="room-%s.ics"`, roomID))
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
