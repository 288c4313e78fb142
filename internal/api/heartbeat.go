package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/openexhibits/tessera-core/internal/component"
)

// handleHeartbeat ingests one device heartbeat and replies with the
// device's config object plus its drained command queue. This is the
// hottest endpoint in the system: every dynamic component calls it on a
// few-second cadence.
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var hb component.Heartbeat
	if err := json.NewDecoder(r.Body).Decode(&hb); err != nil {
		writeBadRequest(w, "invalid heartbeat payload: "+err.Error())
		return
	}

	reply, err := s.registry.IngestHeartbeat(r.Context(), hb)
	if err != nil {
		switch {
		case errors.Is(err, component.ErrNoIdentity):
			writeBadRequest(w, "heartbeat must carry a uuid or id")
		case errors.Is(err, component.ErrInvalidID):
			writeBadRequest(w, err.Error())
		default:
			writeInternalError(w, "heartbeat ingest failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, reply)
}

// syncCheckInRequest is one participant's synchronization request.
type syncCheckInRequest struct {
	ID    string   `json:"id"`
	Peers []string `json:"peers"`
}

// syncCheckInResponse reports barrier progress to the participant.
// StartAt is the shared start time in unix milliseconds, zero until the
// last participant checks in.
type syncCheckInResponse struct {
	Released bool  `json:"released"`
	StartAt  int64 `json:"start_at,omitempty"`
}

// handleSyncCheckIn registers a synchronization check-in from a device.
// Like heartbeats, these come from the exhibit machines themselves and
// carry no credentials.
func (s *Server) handleSyncCheckIn(w http.ResponseWriter, r *http.Request) {
	if s.barrier == nil {
		writeServiceUnavailable(w, "synchronization not configured")
		return
	}

	var req syncCheckInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid check-in payload: "+err.Error())
		return
	}
	if req.ID == "" {
		writeBadRequest(w, "id is required")
		return
	}

	startAt, err := s.barrier.CheckIn(r.Context(), req.ID, req.Peers)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	resp := syncCheckInResponse{}
	if !startAt.IsZero() {
		resp.Released = true
		resp.StartAt = startAt.UnixMilli()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleClock returns the current change notification counter. Consoles
// compare it against the value they last saw to decide whether to refetch.
func (s *Server) handleClock(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"clock": s.registry.Clock().Value(),
	})
}
