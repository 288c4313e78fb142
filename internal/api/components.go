package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openexhibits/tessera-core/internal/component"
)

// handleListComponents returns the fleet, optionally filtered by group.
func (s *Server) handleListComponents(w http.ResponseWriter, r *http.Request) {
	var list []component.Component
	if group := r.URL.Query().Get("group"); group != "" {
		list = s.registry.ListByGroup(group)
	} else {
		list = s.registry.List()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"components": list,
		"count":      len(list),
	})
}

// handleGetComponent returns one component by stable id or uuid.
func (s *Server) handleGetComponent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := s.registry.Get(id)
	if err != nil {
		c, err = s.registry.GetByUUID(id)
	}
	if err != nil {
		writeNotFound(w, "component not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleCreateComponent registers a component ahead of first contact.
// Used for projectors, wake-on-LAN hosts and static entries that never
// self-register via heartbeat.
func (s *Server) handleCreateComponent(w http.ResponseWriter, r *http.Request) {
	var c component.Component
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeBadRequest(w, "invalid component payload: "+err.Error())
		return
	}

	if err := s.registry.Create(r.Context(), &c); err != nil {
		switch {
		case errors.Is(err, component.ErrExists):
			writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
		case errors.Is(err, component.ErrInvalid),
			errors.Is(err, component.ErrInvalidID),
			errors.Is(err, component.ErrInvalidKind):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		default:
			writeInternalError(w, "creating component failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, c)
}

// handleRemoveComponent deletes a component by stable id or uuid.
func (s *Server) handleRemoveComponent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.registry.Remove(r.Context(), id); err != nil {
		if errors.Is(err, component.ErrNotFound) {
			writeNotFound(w, "component not found")
			return
		}
		writeInternalError(w, "removing component failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": id})
}

// renameRequest carries the new stable id for a component.
type renameRequest struct {
	NewID string `json:"new_id"`
}

// handleRenameComponent changes a component's stable id. The path
// parameter must be the uuid: renames are keyed by the identity that
// survives them.
func (s *Server) handleRenameComponent(w http.ResponseWriter, r *http.Request) {
	uuid := chi.URLParam(r, "id")

	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid rename payload: "+err.Error())
		return
	}
	if req.NewID == "" {
		writeBadRequest(w, "new_id is required")
		return
	}

	if err := s.registry.Rename(r.Context(), uuid, req.NewID); err != nil {
		switch {
		case errors.Is(err, component.ErrNotFound):
			writeNotFound(w, "component not found")
		case errors.Is(err, component.ErrExists):
			writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
		case errors.Is(err, component.ErrInvalidID):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		default:
			writeInternalError(w, "renaming component failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"uuid": uuid, "id": req.NewID})
}

// commandRequest carries one command for a component.
type commandRequest struct {
	Command string `json:"command"`
}

// handleQueueCommand routes a command to a component: immediate delivery
// where a driver applies, otherwise queued for the next heartbeat.
func (s *Server) handleQueueCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid command payload: "+err.Error())
		return
	}
	if req.Command == "" {
		writeBadRequest(w, "command is required")
		return
	}

	result := s.registry.QueueCommand(r.Context(), id, req.Command)
	if !result.Accepted {
		if result.Reason == "component_not_found" {
			writeNotFound(w, "component not found")
			return
		}
		writeError(w, http.StatusBadGateway, result.Reason, "command not accepted")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// fleetCommandRequest carries one command for a target expression.
type fleetCommandRequest struct {
	Command string   `json:"command"`
	Target  []string `json:"target"`
}

// handleFleetCommand fans one command out across a target expression:
// "__all", "__group:<g>", "__id:<id>" or bare stable ids, in any mix.
// Unknown ids are dropped during resolution rather than failing the whole
// fan-out, so a schedule-style target keeps working while the fleet churns.
func (s *Server) handleFleetCommand(w http.ResponseWriter, r *http.Request) {
	var req fleetCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid command payload: "+err.Error())
		return
	}
	if req.Command == "" {
		writeBadRequest(w, "command is required")
		return
	}
	if len(req.Target) == 0 {
		writeBadRequest(w, "target is required")
		return
	}

	ids := s.registry.ResolveTarget(req.Target)
	results := make(map[string]component.CommandResult, len(ids))
	accepted := 0
	for _, id := range ids {
		res := s.registry.QueueCommand(r.Context(), id, req.Command)
		if res.Accepted {
			accepted++
		}
		results[id] = res
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"command":  req.Command,
		"matched":  len(ids),
		"accepted": accepted,
		"results":  results,
	})
}

// contentRequest assigns an app or content definition.
type contentRequest struct {
	Value string `json:"value"`
}

// handleSetApp assigns the app a component should run.
func (s *Server) handleSetApp(w http.ResponseWriter, r *http.Request) {
	s.handleSetContent(w, r, s.registry.SetApp)
}

// handleSetDefinition assigns the content definition a component should show.
func (s *Server) handleSetDefinition(w http.ResponseWriter, r *http.Request) {
	s.handleSetContent(w, r, s.registry.SetDefinition)
}

func (s *Server) handleSetContent(w http.ResponseWriter, r *http.Request, set func(ctx context.Context, id, value string) error) {
	id := chi.URLParam(r, "id")

	var req contentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid payload: "+err.Error())
		return
	}
	if req.Value == "" {
		writeBadRequest(w, "value is required")
		return
	}

	if err := set(r.Context(), id, req.Value); err != nil {
		if errors.Is(err, component.ErrNotFound) {
			writeNotFound(w, "component not found")
			return
		}
		writeInternalError(w, "content assignment failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "value": req.Value})
}

// maintenanceRequest updates the maintenance trail.
type maintenanceRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

// handleSetMaintenance records maintenance status and notes for a component.
func (s *Server) handleSetMaintenance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req maintenanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid maintenance payload: "+err.Error())
		return
	}

	if err := s.registry.SetMaintenance(r.Context(), id, req.Status, req.Notes); err != nil {
		if errors.Is(err, component.ErrNotFound) {
			writeNotFound(w, "component not found")
			return
		}
		writeInternalError(w, "maintenance update failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": req.Status})
}

// handleComponentStats summarises the fleet by kind and status.
func (s *Server) handleComponentStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.registry.GetStats()
	writeJSON(w, http.StatusOK, map[string]any{
		"total":     stats.Total,
		"by_kind":   stats.ByKind,
		"by_status": stats.ByStatus,
	})
}
