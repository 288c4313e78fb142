package component

import (
	"context"
	"time"
)

// Heartbeat is the liveness/telemetry push a device sends on each ping.
// UUID is preferred for identity; ID is the fallback for first contact
// from a freshly provisioned device.
type Heartbeat struct {
	UUID        string             `json:"uuid,omitempty"`
	ID          string             `json:"id,omitempty"`
	Address     string             `json:"address,omitempty"`
	Interacting bool               `json:"interacting,omitempty"`
	Permissions map[string]bool    `json:"permissions,omitempty"`
	Platform    map[string]any     `json:"platform,omitempty"`
	Telemetry   map[string]float64 `json:"telemetry,omitempty"`
}

// HeartbeatReply is the device's config object returned on each ping.
// Commands holds the entire pending queue, cleared server-side in the
// same call: delivery is at-most-once per command per ping.
type HeartbeatReply struct {
	ID           string          `json:"id"`
	UUID         string          `json:"uuid"`
	AppName      string          `json:"app_name,omitempty"`
	DefinitionID string          `json:"definition_id,omitempty"`
	Permissions  map[string]bool `json:"permissions,omitempty"`
	Commands     []string        `json:"commands"`
}

// TelemetrySink receives heartbeat telemetry for out-of-band recording.
// The InfluxDB client implements this; a nil sink discards telemetry.
type TelemetrySink interface {
	WriteHeartbeatTelemetry(componentID string, telemetry map[string]float64)
}

// SetTelemetrySink wires the telemetry recorder.
func (r *Registry) SetTelemetrySink(sink TelemetrySink) { r.telemetry = sink }

// IngestHeartbeat processes one inbound heartbeat: it creates the
// component if unseen, refreshes address/permissions/contact timestamps,
// feeds the state machine, and returns the pending command queue, cleared
// atomically under the registry lock. Two racing pollers can never both
// receive the same command.
func (r *Registry) IngestHeartbeat(ctx context.Context, hb Heartbeat) (*HeartbeatReply, error) {
	if hb.UUID == "" && hb.ID == "" {
		return nil, ErrNoIdentity
	}

	r.mu.Lock()
	c := r.lookupLocked(hb)
	created := false
	if c == nil {
		c = &Component{
			ID:        hb.ID,
			UUID:      GenerateUUID(),
			Kind:      KindExhibit,
			Status:    StatusOffline,
			LatencyMS: -1,
		}
		if c.ID == "" {
			// UUID-only first contact: the uuid doubles as the stable id
			// until an operator assigns one.
			c.UUID = hb.UUID
			c.ID = hb.UUID
		}
		if err := Validate(c); err != nil {
			r.mu.Unlock()
			return nil, err
		}
		r.byUUID[c.UUID] = c
		r.byID[c.ID] = c
		created = true
	}

	if hb.Address != "" {
		c.Address = hb.Address
	}
	if hb.Platform != nil {
		c.Platform = deepCopyMap(hb.Platform)
	}
	// Permission updates are additive/removal per key: unmentioned keys
	// keep their previous value.
	if len(hb.Permissions) > 0 {
		if c.Permissions == nil {
			c.Permissions = make(map[string]bool, len(hb.Permissions))
		}
		for k, v := range hb.Permissions {
			c.Permissions[k] = v
		}
	}

	prevStatus := c.Status
	statusChanged := r.touch(c, hb.Interacting)

	// Drain the queue while still holding the lock: returning and
	// clearing must be one atomic step.
	commands := c.Commands
	c.Commands = nil

	reply := &HeartbeatReply{
		ID:           c.ID,
		UUID:         c.UUID,
		AppName:      c.AppName,
		DefinitionID: c.DefinitionID,
		Commands:     commands,
	}
	if len(c.Permissions) > 0 {
		reply.Permissions = make(map[string]bool, len(c.Permissions))
		for k, v := range c.Permissions {
			reply.Permissions[k] = v
		}
	}
	if reply.Commands == nil {
		reply.Commands = []string{}
	}
	snapshot := c.DeepCopy()
	r.mu.Unlock()

	if created {
		if err := r.repo.Create(ctx, snapshot); err != nil {
			r.logger.Error("persisting new component failed", "id", snapshot.ID, "error", err)
		}
		r.bump("component.created", map[string]any{"id": snapshot.ID, "uuid": snapshot.UUID})
		r.logger.Info("component self-registered via heartbeat", "id", snapshot.ID)
	} else if err := r.repo.UpdateContact(ctx, snapshot.UUID, snapshot.LastContact); err != nil {
		r.logger.Warn("persisting last contact failed", "id", snapshot.ID, "error", err)
	}

	if statusChanged {
		r.recordTransition(snapshot.ID, prevStatus, snapshot.Status)
		r.bump("component.status", map[string]any{"id": snapshot.ID, "status": snapshot.Status})
	}
	if r.telemetry != nil && len(hb.Telemetry) > 0 {
		r.telemetry.WriteHeartbeatTelemetry(snapshot.ID, hb.Telemetry)
	}

	return reply, nil
}

// lookupLocked resolves heartbeat identity: uuid preferred, id fallback.
// Caller must hold r.mu.
func (r *Registry) lookupLocked(hb Heartbeat) *Component {
	if hb.UUID != "" {
		if c, ok := r.byUUID[hb.UUID]; ok {
			return c
		}
	}
	if hb.ID != "" {
		if c, ok := r.byID[hb.ID]; ok {
			return c
		}
	}
	return nil
}

// LastContactAge reports how long ago a component was last heard from.
func (r *Registry) LastContactAge(id string) (time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok {
		return 0, ErrNotFound
	}
	if c.LastContact.IsZero() {
		return -1, nil
	}
	return r.nowFn().Sub(c.LastContact), nil
}
