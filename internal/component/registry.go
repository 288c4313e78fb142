package component

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/openexhibits/tessera-core/internal/timers"
)

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// CommandSender delivers a command to a component's own control point
// right now, bypassing the pull queue. Implemented by the MQTT bridge
// driver; the registry never encodes protocol bytes itself.
type CommandSender interface {
	Send(ctx context.Context, c *Component, command string) error
}

// Waker sends a wake-on-LAN magic packet to a component.
type Waker interface {
	Wake(ctx context.Context, c *Component) error
}

// Target sentinels understood by ResolveTarget.
const (
	TargetAll         = "__all"
	TargetGroupPrefix = "__group:"
	TargetIDPrefix    = "__id:"
)

// lifecycleCommands are privileged actions routed straight to the device's
// local control point instead of the pull queue, when permitted.
var lifecycleCommands = map[string]bool{
	"restart":  true,
	"shutdown": true,
	"sleep":    true,
}

// wakeCommands are commands that only make sense pushed, never pulled: an
// offline host cannot poll for its own wake-up.
var wakeCommands = map[string]bool{
	"wake":     true,
	"power_on": true,
}

// Registry owns every known component. One coarse mutex protects the
// collection and all mutable per-component fields; cross-field invariants
// (returning the command queue and clearing it in the same operation) hold
// the lock across read+clear. Driver calls happen outside the critical
// section so one stuck device never stalls the rest of the fleet.
type Registry struct {
	mu     sync.Mutex
	byUUID map[string]*Component
	byID   map[string]*Component
	decays map[string]timers.Handle // uuid -> armed decay timer

	repo   Repository
	wheel  *timers.Wheel
	clock  Clock
	decay  DecayConfig
	logger Logger

	sink        EventSink      // optional
	sender      CommandSender  // optional
	waker       Waker          // optional
	telemetry   TelemetrySink  // optional
	transitions StatusRecorder // optional
	nowFn       func() time.Time
}

// StatusRecorder receives status transitions for time-series recording.
// The InfluxDB client implements this; a nil recorder discards them.
type StatusRecorder interface {
	WriteStatusTransition(componentID, from, to string)
}

// DecayConfig holds the wall-clock windows of the status state machine.
type DecayConfig struct {
	// ActiveHold is how long after the last interaction a component stays
	// ACTIVE before decaying to ONLINE.
	ActiveHold time.Duration

	// OnlineHold is how long after the last contact a component stays
	// ONLINE (or ACTIVE) before decaying to WAITING.
	OnlineHold time.Duration

	// WaitingHold is how much longer after that WAITING lasts before the
	// component is declared OFFLINE.
	WaitingHold time.Duration
}

// DefaultDecayConfig returns the standard decay windows.
func DefaultDecayConfig() DecayConfig {
	return DecayConfig{
		ActiveHold:  10 * time.Second,
		OnlineHold:  30 * time.Second,
		WaitingHold: 30 * time.Second,
	}
}

// NewRegistry creates a registry over the given repository and timer wheel.
func NewRegistry(repo Repository, wheel *timers.Wheel) *Registry {
	return &Registry{
		byUUID: make(map[string]*Component),
		byID:   make(map[string]*Component),
		decays: make(map[string]timers.Handle),
		repo:   repo,
		wheel:  wheel,
		decay:  DefaultDecayConfig(),
		logger: noopLogger{},
		nowFn:  time.Now,
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) { r.logger = logger }

// SetEventSink wires the websocket hub (or any fan-out) for change events.
func (r *Registry) SetEventSink(sink EventSink) { r.sink = sink }

// SetDrivers wires the immediate-send and wake capabilities. Either may
// be nil; affected commands then fall back to the pull queue.
func (r *Registry) SetDrivers(sender CommandSender, waker Waker) {
	r.sender = sender
	r.waker = waker
}

// SetStatusRecorder wires the status-transition recorder.
func (r *Registry) SetStatusRecorder(rec StatusRecorder) { r.transitions = rec }

// recordTransition forwards a status change to the recorder, if any.
func (r *Registry) recordTransition(id string, from, to Status) {
	if r.transitions != nil {
		r.transitions.WriteStatusTransition(id, string(from), string(to))
	}
}

// SetDecayConfig overrides the decay windows. Call before Load.
func (r *Registry) SetDecayConfig(cfg DecayConfig) { r.decay = cfg }

// Clock returns the change notification clock.
func (r *Registry) Clock() *Clock { return &r.clock }

// Load populates the registry from the repository. Called once at startup;
// every loaded dynamic component starts OFFLINE until it phones home or a
// probe says otherwise.
func (r *Registry) Load(ctx context.Context) error {
	comps, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading components: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range comps {
		c := comps[i].DeepCopy()
		c.Status = initialStatus(c.Kind)
		r.byUUID[c.UUID] = c
		r.byID[c.ID] = c
	}

	r.logger.Info("component registry loaded", "count", len(comps))
	return nil
}

func initialStatus(k Kind) Status {
	switch k {
	case KindStatic:
		return StatusStatic
	case KindProjector, KindWakeOnLAN:
		return StatusUnknown
	default:
		return StatusOffline
	}
}

// Create registers and persists a new component. The uuid is generated
// here and never changes afterwards.
func (r *Registry) Create(ctx context.Context, c *Component) error {
	if c.UUID == "" {
		c.UUID = GenerateUUID()
	}
	c.Status = initialStatus(c.Kind)
	c.LatencyMS = -1

	if err := Validate(c); err != nil {
		return err
	}

	r.mu.Lock()
	if _, dup := r.byID[c.ID]; dup {
		r.mu.Unlock()
		return ErrExists
	}
	if _, dup := r.byUUID[c.UUID]; dup {
		r.mu.Unlock()
		return ErrExists
	}
	r.byUUID[c.UUID] = c.DeepCopy()
	r.byID[c.ID] = r.byUUID[c.UUID]
	r.mu.Unlock()

	if err := r.repo.Create(ctx, c); err != nil {
		// Roll the index back so memory and disk agree.
		r.mu.Lock()
		delete(r.byUUID, c.UUID)
		delete(r.byID, c.ID)
		r.mu.Unlock()
		return err
	}

	r.bump("component.created", map[string]any{"id": c.ID, "uuid": c.UUID})
	r.logger.Info("component created", "id", c.ID, "kind", c.Kind)
	return nil
}

// Get retrieves a component by stable id. The result is a deep copy.
func (r *Registry) Get(id string) (*Component, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.byID[id]; ok {
		return c.DeepCopy(), nil
	}
	return nil, ErrNotFound
}

// GetByUUID retrieves a component by immutable uuid. The result is a
// deep copy.
func (r *Registry) GetByUUID(uuid string) (*Component, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.byUUID[uuid]; ok {
		return c.DeepCopy(), nil
	}
	return nil, ErrNotFound
}

// List returns deep copies of every component, ordered by stable id.
func (r *Registry) List() []Component {
	r.mu.Lock()
	defer r.mu.Unlock()

	comps := make([]Component, 0, len(r.byUUID))
	for _, c := range r.byUUID {
		comps = append(comps, *c.DeepCopy())
	}
	sort.Slice(comps, func(i, j int) bool { return comps[i].ID < comps[j].ID })
	return comps
}

// ListByGroup returns deep copies of components carrying the group tag.
func (r *Registry) ListByGroup(group string) []Component {
	r.mu.Lock()
	defer r.mu.Unlock()

	var comps []Component
	for _, c := range r.byUUID {
		if c.InGroup(group) {
			comps = append(comps, *c.DeepCopy())
		}
	}
	sort.Slice(comps, func(i, j int) bool { return comps[i].ID < comps[j].ID })
	return comps
}

// ResolveTarget expands a schedule/control target expression into stable
// ids. Understands "__all", "__group:<g>", "__id:<id>", and otherwise
// treats every element as a literal id (unknown ids are dropped).
func (r *Registry) ResolveTarget(target []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{})
	var ids []string
	add := func(id string) {
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	for _, t := range target {
		switch {
		case t == TargetAll:
			for id := range r.byID {
				add(id)
			}
		case strings.HasPrefix(t, TargetGroupPrefix):
			group := strings.TrimPrefix(t, TargetGroupPrefix)
			for id, c := range r.byID {
				if c.InGroup(group) {
					add(id)
				}
			}
		case strings.HasPrefix(t, TargetIDPrefix):
			id := strings.TrimPrefix(t, TargetIDPrefix)
			if _, ok := r.byID[id]; ok {
				add(id)
			}
		default:
			if _, ok := r.byID[t]; ok {
				add(t)
			}
		}
	}

	sort.Strings(ids)
	return ids
}

// Rename changes a component's stable id. The uuid, and everything keyed
// by it, survives.
func (r *Registry) Rename(ctx context.Context, uuid, newID string) error {
	if newID == "" || !idPattern.MatchString(newID) {
		return fmt.Errorf("%w: %q", ErrInvalidID, newID)
	}

	r.mu.Lock()
	c, ok := r.byUUID[uuid]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if existing, dup := r.byID[newID]; dup && existing.UUID != uuid {
		r.mu.Unlock()
		return ErrExists
	}
	oldID := c.ID
	delete(r.byID, oldID)
	c.ID = newID
	r.byID[newID] = c
	snapshot := c.DeepCopy()
	r.mu.Unlock()

	if err := r.repo.Update(ctx, snapshot); err != nil {
		r.mu.Lock()
		delete(r.byID, newID)
		c.ID = oldID
		r.byID[oldID] = c
		r.mu.Unlock()
		return err
	}

	r.bump("component.renamed", map[string]any{"uuid": uuid, "from": oldID, "to": newID})
	return nil
}

// Remove deletes a component, cancelling every timer that references it
// first so an in-flight decay callback cannot resurrect the record.
func (r *Registry) Remove(ctx context.Context, idOrUUID string) error {
	r.mu.Lock()
	c, ok := r.byUUID[idOrUUID]
	if !ok {
		c, ok = r.byID[idOrUUID]
	}
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	uuid, id := c.UUID, c.ID
	if h, armed := r.decays[uuid]; armed {
		r.wheel.Cancel(h)
		delete(r.decays, uuid)
	}
	delete(r.byUUID, uuid)
	delete(r.byID, id)
	r.mu.Unlock()

	if err := r.repo.Delete(ctx, uuid); err != nil && err != ErrNotFound {
		return err
	}

	r.bump("component.removed", map[string]any{"id": id, "uuid": uuid})
	r.logger.Info("component removed", "id", id)
	return nil
}

// QueueCommand routes a command to a component. Wake primitives for
// wake-capable hosts fire immediately via the wake driver; permitted
// lifecycle actions go straight to the device's control point; everything
// else joins the pull queue for the next heartbeat. Driver failures fall
// back to the queue rather than dropping the command.
func (r *Registry) QueueCommand(ctx context.Context, idOrUUID, command string) CommandResult {
	r.mu.Lock()
	c, ok := r.byUUID[idOrUUID]
	if !ok {
		c, ok = r.byID[idOrUUID]
	}
	if !ok {
		r.mu.Unlock()
		return CommandResult{Reason: "component_not_found"}
	}
	snapshot := c.DeepCopy()
	r.mu.Unlock()

	// Wake primitives: an offline host cannot pull its own wake-up.
	if wakeCommands[command] && snapshot.Kind == KindWakeOnLAN && snapshot.HardwareAddress != "" {
		if r.waker == nil {
			return CommandResult{Reason: "driver_unavailable"}
		}
		if err := r.waker.Wake(ctx, snapshot); err != nil {
			r.logger.Warn("wake failed", "id", snapshot.ID, "error", err)
			return CommandResult{Reason: "wake_failed"}
		}
		r.bump("component.command", map[string]any{"id": snapshot.ID, "command": command, "mode": ModeWoken})
		return CommandResult{Accepted: true, Mode: ModeWoken}
	}

	// Privileged lifecycle actions go to the device's local control point
	// immediately when the device has granted the capability.
	if lifecycleCommands[command] && snapshot.Permissions[command] && snapshot.Address != "" && r.sender != nil {
		if err := r.sender.Send(ctx, snapshot, command); err == nil {
			r.bump("component.command", map[string]any{"id": snapshot.ID, "command": command, "mode": ModeSent})
			return CommandResult{Accepted: true, Mode: ModeSent}
		}
		r.logger.Warn("immediate send failed, queueing instead", "id", snapshot.ID, "command", command)
	}

	r.mu.Lock()
	// Re-check: the component may have been removed while we probed.
	c, ok = r.byUUID[snapshot.UUID]
	if !ok {
		r.mu.Unlock()
		return CommandResult{Reason: "component_not_found"}
	}
	c.Commands = append(c.Commands, command)
	r.mu.Unlock()

	r.bump("component.command", map[string]any{"id": snapshot.ID, "command": command, "mode": ModeQueued})
	return CommandResult{Accepted: true, Mode: ModeQueued}
}

// Queue adapts QueueCommand to an error-returning form for collaborators
// (the barrier coordinator, the scheduler) that only need acceptance.
func (r *Registry) Queue(ctx context.Context, componentID, command string) error {
	res := r.QueueCommand(ctx, componentID, command)
	if !res.Accepted {
		return fmt.Errorf("component %q: %s", componentID, res.Reason)
	}
	return nil
}

// SetApp assigns the app a component should run and queues the matching
// content-change command for pickup.
func (r *Registry) SetApp(ctx context.Context, id, app string) error {
	return r.setContent(ctx, id, "app", app)
}

// SetDefinition assigns the content definition a component should show
// and queues the matching command.
func (r *Registry) SetDefinition(ctx context.Context, id, definition string) error {
	return r.setContent(ctx, id, "definition", definition)
}

func (r *Registry) setContent(ctx context.Context, id, field, value string) error {
	r.mu.Lock()
	c, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	var command string
	switch field {
	case "app":
		c.AppName = value
		command = "setApp__" + value
	case "definition":
		c.DefinitionID = value
		command = "setDefinition__" + value
	}
	c.Commands = append(c.Commands, command)
	snapshot := c.DeepCopy()
	r.mu.Unlock()

	if err := r.repo.Update(ctx, snapshot); err != nil {
		r.logger.Error("persisting content assignment failed", "id", id, "error", err)
	}

	r.bump("component.content", map[string]any{"id": id, field: value})
	return nil
}

// SetMaintenance updates the maintenance trail for a component.
func (r *Registry) SetMaintenance(ctx context.Context, id, status, notes string) error {
	r.mu.Lock()
	c, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	c.MaintenanceStatus = status
	c.MaintenanceNotes = notes
	snapshot := c.DeepCopy()
	r.mu.Unlock()

	if err := r.repo.Update(ctx, snapshot); err != nil {
		return err
	}
	r.bump("component.maintenance", map[string]any{"id": id, "status": status})
	return nil
}

// ApplyProbe applies a health-probe snapshot to a non-heartbeating
// component. The change clock bumps only when the externally visible
// value actually changed, so unchanged polls cause no notification storm.
func (r *Registry) ApplyProbe(uuid string, snap Snapshot) bool {
	r.mu.Lock()
	c, ok := r.byUUID[uuid]
	if !ok {
		r.mu.Unlock()
		return false
	}

	changed := false
	statusChanged := false
	prevStatus := c.Status
	if c.Kind != KindStatic && !c.Kind.Heartbeats() {
		status := StatusOffline
		if snap.Reachable {
			status = StatusOnline
		}
		if c.Status != status {
			c.Status = status
			changed = true
			statusChanged = true
		}
	}
	if snap.Reachable {
		c.LastContact = r.nowFn()
	}
	if c.Kind == KindProjector {
		if c.Projector == nil {
			c.Projector = &ProjectorState{}
		}
		if snap.PowerState != "" && c.Projector.PowerState != snap.PowerState {
			c.Projector.PowerState = snap.PowerState
			changed = true
		}
		if snap.LampHours > 0 && c.Projector.LampHours != snap.LampHours {
			c.Projector.LampHours = snap.LampHours
			changed = true
		}
		if c.Projector.ErrorStatus != snap.ErrorStatus {
			c.Projector.ErrorStatus = snap.ErrorStatus
			changed = true
		}
	}
	id, status := c.ID, c.Status
	r.mu.Unlock()

	if statusChanged {
		r.recordTransition(id, prevStatus, status)
	}
	if changed {
		r.bump("component.status", map[string]any{"id": id, "status": status})
	}
	return changed
}

// SetLatency records a latency probe result. known=false degrades the
// reading to "unknown" (for example when ICMP is permission-denied).
// Returns true when the visible value changed.
func (r *Registry) SetLatency(uuid string, ms float64, known bool) bool {
	if !known {
		ms = -1
	}

	r.mu.Lock()
	c, ok := r.byUUID[uuid]
	if !ok {
		r.mu.Unlock()
		return false
	}
	prevKnown := c.LatencyMS >= 0
	changed := prevKnown != known || (known && c.LatencyMS != ms)
	c.LatencyMS = ms
	id := c.ID
	r.mu.Unlock()

	if changed {
		r.bump("component.latency", map[string]any{"id": id, "latency_ms": ms})
	}
	return changed
}

// Count returns the number of registered components.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUUID)
}

// Stats summarises the fleet for monitoring.
type Stats struct {
	Total    int
	ByKind   map[Kind]int
	ByStatus map[Status]int
}

// GetStats returns current fleet statistics.
func (r *Registry) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := Stats{
		Total:    len(r.byUUID),
		ByKind:   make(map[Kind]int),
		ByStatus: make(map[Status]int),
	}
	for _, c := range r.byUUID {
		stats.ByKind[c.Kind]++
		stats.ByStatus[c.Status]++
	}
	return stats
}

// bump advances the change clock and fans the event out to the sink.
func (r *Registry) bump(channel string, payload map[string]any) {
	tick := r.clock.Bump()
	if r.sink != nil {
		if payload == nil {
			payload = map[string]any{}
		}
		payload["clock"] = tick
		r.sink.Broadcast(channel, payload)
	}
}
