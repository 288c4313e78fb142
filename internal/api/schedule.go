package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openexhibits/tessera-core/internal/schedule"
)

// handleScheduleWindow returns the resolved 21-day calendar window.
func (s *Server) handleScheduleWindow(w http.ResponseWriter, _ *http.Request) {
	if s.schedule == nil {
		writeServiceUnavailable(w, "scheduler not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"days": s.schedule.Window(),
	})
}

// handleScheduleNext returns the next entries due to fire. Entries sharing
// the same fire time are returned together.
func (s *Server) handleScheduleNext(w http.ResponseWriter, _ *http.Request) {
	if s.schedule == nil {
		writeServiceUnavailable(w, "scheduler not configured")
		return
	}

	entries, at, ok := s.schedule.NextEvent()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"pending": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pending": true,
		"at":      at,
		"entries": entries,
	})
}

// handleScheduleReload forces a schedule reload from disk.
func (s *Server) handleScheduleReload(w http.ResponseWriter, r *http.Request) {
	if s.schedule == nil {
		writeServiceUnavailable(w, "scheduler not configured")
		return
	}

	if err := s.schedule.Reload(r.Context()); err != nil {
		writeInternalError(w, "schedule reload failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reloaded": true})
}

// handleUpsertScheduleEntry writes one entry to a day file. The day key is
// a weekday name ("monday") or a date ("2026-09-01"); an entry with an
// existing schedule_id replaces it.
func (s *Server) handleUpsertScheduleEntry(w http.ResponseWriter, r *http.Request) {
	if s.schedule == nil {
		writeServiceUnavailable(w, "scheduler not configured")
		return
	}
	day := chi.URLParam(r, "day")

	var entry schedule.Entry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeBadRequest(w, "invalid entry payload: "+err.Error())
		return
	}

	if err := s.schedule.UpsertEntry(r.Context(), day, entry); err != nil {
		switch {
		case errors.Is(err, schedule.ErrInvalidDay),
			errors.Is(err, schedule.ErrInvalidEntry),
			errors.Is(err, schedule.ErrUnparseableTime):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		default:
			writeInternalError(w, "writing schedule entry failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"day": day, "schedule_id": entry.ScheduleID})
}

// handleDeleteScheduleEntry removes one entry from a day file.
func (s *Server) handleDeleteScheduleEntry(w http.ResponseWriter, r *http.Request) {
	if s.schedule == nil {
		writeServiceUnavailable(w, "scheduler not configured")
		return
	}
	day := chi.URLParam(r, "day")
	scheduleID := chi.URLParam(r, "scheduleID")

	if err := s.schedule.DeleteEntry(r.Context(), day, scheduleID); err != nil {
		switch {
		case errors.Is(err, schedule.ErrEntryNotFound):
			writeNotFound(w, "schedule entry not found")
		case errors.Is(err, schedule.ErrInvalidDay):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		default:
			writeInternalError(w, "deleting schedule entry failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"day": day, "deleted": scheduleID})
}
