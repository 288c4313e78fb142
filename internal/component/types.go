package component

import "time"

// Component represents one orchestrated device in the installation: an
// interactive exhibit, a projector, a wake-on-LAN host, or a static entry
// that is tracked but never expected to phone home.
//
// The stable ID is user-assigned and may be renamed; the UUID is generated
// once and survives renames. A component belongs to exactly one Registry.
type Component struct {
	// Identity
	ID   string `json:"id"`
	UUID string `json:"uuid"`
	Kind Kind   `json:"kind"`

	// Groups are free-form tags used for schedule targeting and fleet-wide
	// commands. Example: ["gallery-2", "projection"]
	Groups []string `json:"groups,omitempty"`

	Description string `json:"description,omitempty"`

	// Address is the network address (host or host:port) used for latency
	// probes and immediate command delivery. Optional; heartbeating
	// components fill it in on first contact.
	Address string `json:"address,omitempty"`

	// HardwareAddress is the MAC address for wake-on-LAN capable hosts.
	HardwareAddress string `json:"hardware_address,omitempty"`

	// Liveness
	Status          Status    `json:"status"`
	LastContact     time.Time `json:"last_contact,omitempty"`
	LastInteraction time.Time `json:"last_interaction,omitempty"`

	// LatencyMS is the most recent round-trip probe result in milliseconds.
	// Negative means never measured (or currently unknown).
	LatencyMS float64 `json:"latency_ms"`

	// Commands is the pending command queue, drained in insertion order on
	// the next heartbeat.
	Commands []string `json:"commands,omitempty"`

	// Permissions maps capability names (e.g. "restart", "shutdown",
	// "sleep") to whether the device has granted them.
	Permissions map[string]bool `json:"permissions,omitempty"`

	// Content
	AppName      string `json:"app_name,omitempty"`
	DefinitionID string `json:"definition_id,omitempty"`

	// Platform holds self-reported platform details from the last heartbeat.
	Platform map[string]any `json:"platform,omitempty"`

	// Projector holds the last probed state for projector kinds.
	Projector *ProjectorState `json:"projector,omitempty"`

	// Maintenance trail
	MaintenanceStatus string `json:"maintenance_status,omitempty"`
	MaintenanceNotes  string `json:"maintenance_notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProjectorState is the last probed state of a projector.
type ProjectorState struct {
	Make        string `json:"make,omitempty"`
	PowerState  string `json:"power_state,omitempty"`
	LampHours   int    `json:"lamp_hours,omitempty"`
	ErrorStatus string `json:"error_status,omitempty"`
}

// DeepCopy creates an independent copy of the Component. All map and slice
// fields are cloned so mutations of the copy never reach the registry's
// internal record.
func (c *Component) DeepCopy() *Component {
	if c == nil {
		return nil
	}

	cpy := *c

	if c.Groups != nil {
		cpy.Groups = make([]string, len(c.Groups))
		copy(cpy.Groups, c.Groups)
	}
	if c.Commands != nil {
		cpy.Commands = make([]string, len(c.Commands))
		copy(cpy.Commands, c.Commands)
	}
	if c.Permissions != nil {
		cpy.Permissions = make(map[string]bool, len(c.Permissions))
		for k, v := range c.Permissions {
			cpy.Permissions[k] = v
		}
	}
	cpy.Platform = deepCopyMap(c.Platform)
	if c.Projector != nil {
		p := *c.Projector
		cpy.Projector = &p
	}

	return &cpy
}

// deepCopyMap recursively copies a map[string]any.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}

// InGroup reports whether the component carries the given group tag.
func (c *Component) InGroup(group string) bool {
	for _, g := range c.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// Kind identifies how a component is orchestrated. The registry itself is
// kind-agnostic; kinds select drivers and poll behaviour.
type Kind string

// Kind constants.
const (
	// KindExhibit is a heartbeating interactive exhibit component.
	KindExhibit Kind = "exhibit"

	// KindProjector is probed over its control protocol; it never heartbeats.
	KindProjector Kind = "projector"

	// KindWakeOnLAN is a host woken by magic packet and probed for
	// reachability; it never heartbeats.
	KindWakeOnLAN Kind = "wake_on_lan"

	// KindStatic is tracked for inventory only and excluded from the
	// status state machine.
	KindStatic Kind = "static"
)

// AllKinds returns all valid component kinds.
func AllKinds() []Kind {
	return []Kind{KindExhibit, KindProjector, KindWakeOnLAN, KindStatic}
}

// Heartbeats reports whether this kind is expected to phone home. Kinds
// that don't are covered by the health poller instead.
func (k Kind) Heartbeats() bool {
	return k == KindExhibit
}

// Status is the liveness state of a component.
type Status string

// Status constants. Dynamic components move OFFLINE → ONLINE → ACTIVE on
// fresh contact and decay ACTIVE → ONLINE → WAITING → OFFLINE without it.
const (
	StatusOffline Status = "OFFLINE"
	StatusOnline  Status = "ONLINE"
	StatusActive  Status = "ACTIVE"
	StatusWaiting Status = "WAITING"
	StatusStatic  Status = "STATIC"
	StatusUnknown Status = "UNKNOWN"
)

// AllStatuses returns all valid status values.
func AllStatuses() []Status {
	return []Status{
		StatusOffline, StatusOnline, StatusActive,
		StatusWaiting, StatusStatic, StatusUnknown,
	}
}

// Snapshot is the result of one driver probe, applied to the registry by
// the health poller. Zero-value fields mean "no reading".
type Snapshot struct {
	Reachable   bool
	PowerState  string
	LampHours   int
	ErrorStatus string
}

// CommandResult reports how QueueCommand delivered (or failed to deliver)
// a command. Core operations return a flag plus a machine-readable reason
// instead of propagating driver errors to the caller.
type CommandResult struct {
	// Accepted is true when the command was queued or sent.
	Accepted bool `json:"accepted"`

	// Mode is one of "queued", "sent", "woken" when accepted.
	Mode string `json:"mode,omitempty"`

	// Reason is a machine-readable failure reason when not accepted
	// (e.g. "component_not_found", "driver_unavailable").
	Reason string `json:"reason,omitempty"`
}

// Delivery modes reported in CommandResult.Mode.
const (
	ModeQueued = "queued"
	ModeSent   = "sent"
	ModeWoken  = "woken"
)
