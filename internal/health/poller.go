// Package health implements the periodic probing subsystems: projector
// state probes, wake-state probes for wake-on-LAN hosts, and latency
// measurement for every component with a network address.
//
// Each device owns its own probe cycle on the shared timer wheel, so a
// slow or unreachable probe for one device never delays the others.
// Probes run off the registry lock; only their results are applied under
// it, and the change notification clock bumps only when the externally
// visible value actually changed.
package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/openexhibits/tessera-core/internal/component"
	"github.com/openexhibits/tessera-core/internal/timers"
)

// ErrPermissionDenied marks a probe that failed because the process lacks
// the needed privilege (for example raw-socket ICMP). The poller degrades
// that one signal to "unknown" and logs once per capability; it never
// retries more aggressively than the normal poll interval.
var ErrPermissionDenied = errors.New("health: probe permission denied")

// probeTimeout bounds a single probe so one wedged device can't pin a
// goroutine past its next cycle.
const probeTimeout = 4 * time.Second

// Prober checks the state of one non-heartbeating component.
type Prober interface {
	Probe(ctx context.Context, c component.Component) (component.Snapshot, error)
}

// LatencyProber measures round-trip time to a network address.
type LatencyProber interface {
	Latency(ctx context.Context, address string) (time.Duration, error)
}

// Fleet is what the poller needs from the component registry.
type Fleet interface {
	List() []component.Component
	GetByUUID(uuid string) (*component.Component, error)
	ApplyProbe(uuid string, snap component.Snapshot) bool
	SetLatency(uuid string, ms float64, known bool) bool
}

// LatencySink receives successful latency samples for recording.
// Optional; the InfluxDB client implements it.
type LatencySink interface {
	WriteLatency(componentID string, ms float64)
}

// Logger is the logging interface used by the poller.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Intervals holds the per-signal poll cadences.
type Intervals struct {
	Projector time.Duration // projector state probe
	WakeState time.Duration // wake-on-LAN reachability probe
	Latency   time.Duration // latency probe, all kinds with an address
	Rescan    time.Duration // pick up newly registered components
}

// DefaultIntervals returns the standard poll cadences.
func DefaultIntervals() Intervals {
	return Intervals{
		Projector: 5 * time.Second,
		WakeState: 30 * time.Second,
		Latency:   10 * time.Second,
		Rescan:    30 * time.Second,
	}
}

// Poller drives the periodic probes.
type Poller struct {
	fleet   Fleet
	wheel   *timers.Wheel
	probers map[component.Kind]Prober
	latency LatencyProber // optional
	sink    LatencySink   // optional
	iv      Intervals
	logger  Logger

	mu         sync.Mutex
	tracked    map[string]struct{} // "status:<uuid>" / "latency:<uuid>"
	permLogged map[string]bool     // capability -> already logged
}

// New creates a poller over the fleet and timer wheel.
func New(fleet Fleet, wheel *timers.Wheel) *Poller {
	return &Poller{
		fleet:      fleet,
		wheel:      wheel,
		probers:    make(map[component.Kind]Prober),
		iv:         DefaultIntervals(),
		logger:     noopLogger{},
		tracked:    make(map[string]struct{}),
		permLogged: make(map[string]bool),
	}
}

// SetLogger sets the poller's logger.
func (p *Poller) SetLogger(logger Logger) { p.logger = logger }

// SetIntervals overrides the poll cadences. Call before Start.
func (p *Poller) SetIntervals(iv Intervals) { p.iv = iv }

// SetProber registers the state prober for one component kind.
func (p *Poller) SetProber(kind component.Kind, prober Prober) {
	p.probers[kind] = prober
}

// SetLatencyProber registers the latency prober.
func (p *Poller) SetLatencyProber(lp LatencyProber) { p.latency = lp }

// SetLatencySink wires the telemetry recorder for latency samples.
func (p *Poller) SetLatencySink(sink LatencySink) { p.sink = sink }

// Start begins polling every known component and rescans for new ones at
// the rescan interval. Polling stops when the context is cancelled.
func (p *Poller) Start(ctx context.Context) {
	p.rescan(ctx)
	p.logger.Info("health poller started",
		"projector_interval", p.iv.Projector,
		"wake_interval", p.iv.WakeState,
		"latency_interval", p.iv.Latency,
	)
}

// rescan walks the fleet and starts a probe cycle for anything untracked,
// then re-arms itself. New components begin polling within one rescan
// interval of registration.
func (p *Poller) rescan(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	for _, c := range p.fleet.List() {
		p.track(ctx, c)
	}

	p.wheel.After(p.iv.Rescan, func() { p.rescan(ctx) })
}

// track starts the probe cycles a component needs, once each.
func (p *Poller) track(ctx context.Context, c component.Component) {
	if interval := p.statusInterval(c.Kind); interval > 0 {
		if p.claim("status:" + c.UUID) {
			uuid := c.UUID
			p.wheel.After(interval, func() { p.probeStatus(ctx, uuid) })
		}
	}
	if c.Address != "" && p.latency != nil {
		if p.claim("latency:" + c.UUID) {
			uuid := c.UUID
			p.wheel.After(p.iv.Latency, func() { p.probeLatency(ctx, uuid) })
		}
	}
}

// statusInterval returns the state-probe cadence for a kind, zero when
// the kind heartbeats (or is static) and needs no probe.
func (p *Poller) statusInterval(kind component.Kind) time.Duration {
	switch kind {
	case component.KindProjector:
		return p.iv.Projector
	case component.KindWakeOnLAN:
		return p.iv.WakeState
	default:
		return 0
	}
}

func (p *Poller) claim(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.tracked[key]; ok {
		return false
	}
	p.tracked[key] = struct{}{}
	return true
}

func (p *Poller) release(key string) {
	p.mu.Lock()
	delete(p.tracked, key)
	p.mu.Unlock()
}

// probeStatus runs one state probe cycle for a component and re-arms.
// A removed component ends the cycle; a probe error counts toward the
// contact picture (the snapshot stays unreachable) but is never fatal.
func (p *Poller) probeStatus(ctx context.Context, uuid string) {
	if ctx.Err() != nil {
		p.release("status:" + uuid)
		return
	}

	c, err := p.fleet.GetByUUID(uuid)
	if err != nil {
		p.release("status:" + uuid)
		return
	}

	prober, ok := p.probers[c.Kind]
	if ok {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		snap, probeErr := prober.Probe(probeCtx, *c)
		cancel()

		switch {
		case probeErr == nil:
			p.fleet.ApplyProbe(uuid, snap)
		case errors.Is(probeErr, ErrPermissionDenied):
			p.logPermissionOnce("probe:"+string(c.Kind), probeErr)
		default:
			// Transient unreachability: apply the unreachable snapshot and
			// let the registry decide what that means for status.
			p.fleet.ApplyProbe(uuid, component.Snapshot{Reachable: false})
			p.logger.Debug("state probe failed", "id", c.ID, "error", probeErr)
		}
	}

	p.wheel.After(p.statusInterval(c.Kind), func() { p.probeStatus(ctx, uuid) })
}

// probeLatency runs one latency probe cycle for a component and re-arms.
func (p *Poller) probeLatency(ctx context.Context, uuid string) {
	if ctx.Err() != nil {
		p.release("latency:" + uuid)
		return
	}

	c, err := p.fleet.GetByUUID(uuid)
	if err != nil {
		p.release("latency:" + uuid)
		return
	}

	if c.Address != "" {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		rtt, probeErr := p.latency.Latency(probeCtx, c.Address)
		cancel()

		switch {
		case probeErr == nil:
			ms := float64(rtt) / float64(time.Millisecond)
			p.fleet.SetLatency(uuid, ms, true)
			if p.sink != nil {
				p.sink.WriteLatency(c.ID, ms)
			}
		case errors.Is(probeErr, ErrPermissionDenied):
			// Degrade this one signal to unknown; the registry keeps
			// serving everything else.
			p.fleet.SetLatency(uuid, 0, false)
			p.logPermissionOnce("latency", probeErr)
		default:
			p.fleet.SetLatency(uuid, 0, false)
			p.logger.Debug("latency probe failed", "id", c.ID, "error", probeErr)
		}
	}

	p.wheel.After(p.iv.Latency, func() { p.probeLatency(ctx, uuid) })
}

// logPermissionOnce logs a permission-denied probe once per capability
// per process lifetime.
func (p *Poller) logPermissionOnce(capability string, err error) {
	p.mu.Lock()
	logged := p.permLogged[capability]
	p.permLogged[capability] = true
	p.mu.Unlock()

	if !logged {
		p.logger.Warn("probe capability unavailable, degrading to unknown",
			"capability", capability, "error", err)
	}
}
