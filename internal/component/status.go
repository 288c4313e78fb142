package component

import (
	"time"

	"github.com/openexhibits/tessera-core/internal/timers"
)

// The status state machine for heartbeating components.
//
// Status is always derived from the contact timestamps, never carried
// forward from a captured value: a decay callback recomputes the effective
// status at fire time, so a fresh heartbeat racing an in-flight decay can
// never move a component backwards. Decay deadlines are re-derived from
// wall-clock last-contact on every arm, avoiding compounding drift.

// effectiveStatus computes what the status should be right now, given the
// component's contact timestamps and the decay windows.
func (r *Registry) effectiveStatus(c *Component, now time.Time) Status {
	if c.Kind == KindStatic {
		return StatusStatic
	}
	if !c.Kind.Heartbeats() {
		return c.Status // probed kinds are managed by ApplyProbe
	}
	if c.LastContact.IsZero() {
		return StatusOffline
	}

	sinceContact := now.Sub(c.LastContact)
	switch {
	case sinceContact >= r.decay.OnlineHold+r.decay.WaitingHold:
		return StatusOffline
	case sinceContact >= r.decay.OnlineHold:
		return StatusWaiting
	default:
		if !c.LastInteraction.IsZero() && now.Sub(c.LastInteraction) < r.decay.ActiveHold {
			return StatusActive
		}
		return StatusOnline
	}
}

// nextDecayAt returns the next wall-clock instant at which the effective
// status can change without fresh contact. Zero time means no timer is
// needed (already OFFLINE, or the kind has no machine).
func (r *Registry) nextDecayAt(c *Component, now time.Time) time.Time {
	if !c.Kind.Heartbeats() || c.LastContact.IsZero() {
		return time.Time{}
	}

	var candidates []time.Time
	switch r.effectiveStatus(c, now) {
	case StatusActive:
		candidates = append(candidates,
			c.LastInteraction.Add(r.decay.ActiveHold),
			c.LastContact.Add(r.decay.OnlineHold),
		)
	case StatusOnline:
		candidates = append(candidates, c.LastContact.Add(r.decay.OnlineHold))
	case StatusWaiting:
		candidates = append(candidates, c.LastContact.Add(r.decay.OnlineHold+r.decay.WaitingHold))
	default:
		return time.Time{}
	}

	next := candidates[0]
	for _, t := range candidates[1:] {
		if t.Before(next) {
			next = t
		}
	}
	return next
}

// touch records fresh contact. Caller must hold r.mu. Returns the
// (channel, payload) event to broadcast after unlock, or "" if the
// externally visible status did not change.
func (r *Registry) touch(c *Component, interacting bool) (changed bool) {
	now := r.nowFn()
	c.LastContact = now
	if interacting {
		c.LastInteraction = now
	}

	status := r.effectiveStatus(c, now)
	changed = c.Status != status
	c.Status = status

	r.rearmDecay(c, now)
	return changed
}

// rearmDecay cancels the previous decay timer and arms the next one.
// Caller must hold r.mu. The previous timer is always cancelled before a
// new one arms so an edit can never leave two timers racing.
func (r *Registry) rearmDecay(c *Component, now time.Time) {
	if h, armed := r.decays[c.UUID]; armed {
		r.wheel.Cancel(h)
		delete(r.decays, c.UUID)
	}

	at := r.nextDecayAt(c, now)
	if at.IsZero() {
		return
	}

	uuid := c.UUID
	fired := new(timers.Handle)
	*fired = r.wheel.Schedule(at, func() {
		r.decayFired(uuid, fired)
	})
	r.decays[uuid] = *fired
}

// decayFired is the decay timer callback. It is a no-op when the
// component is gone or a fresh contact already moved past the timer's
// reference point.
func (r *Registry) decayFired(uuid string, fired *timers.Handle) {
	r.mu.Lock()
	c, ok := r.byUUID[uuid]
	if !ok {
		r.mu.Unlock()
		return
	}
	// Only the currently armed timer may advance the machine. A heartbeat
	// can re-arm between the wheel firing and this lock being taken; the
	// superseded fire must stand down or it would orphan the fresh timer.
	if cur, armed := r.decays[uuid]; !armed || cur != *fired {
		r.mu.Unlock()
		return
	}
	delete(r.decays, uuid)

	now := r.nowFn()
	status := r.effectiveStatus(c, now)
	from := c.Status
	changed := from != status
	c.Status = status
	r.rearmDecay(c, now)
	id := c.ID
	r.mu.Unlock()

	if changed {
		r.logger.Debug("component decayed", "id", id, "status", status)
		r.recordTransition(id, from, status)
		r.bump("component.status", map[string]any{"id": id, "status": status})
	}
}
