// Package component implements the component registry and the per-device
// status state machine at the heart of the orchestrator.
//
// The Registry owns every known device in the installation — interactive
// exhibits, projectors, wake-on-LAN hosts, static inventory entries — under
// one coarse mutex. Exhibits phone home via IngestHeartbeat, which feeds the
// liveness state machine and drains the pending command queue atomically
// (at-most-once delivery). Projectors and wake-on-LAN hosts never heartbeat;
// the health poller applies probe results through ApplyProbe and SetLatency.
//
// Status transitions are timer-driven: decay timers on the shared timer
// wheel downgrade ACTIVE → ONLINE → WAITING → OFFLINE as contact goes stale,
// and every externally visible mutation bumps the change notification Clock
// consumed by the event-stream surface.
//
// Persistence is one SQLite record per component (identity, groups, content
// assignment, maintenance trail); runtime state is memory-only and rebuilt
// from heartbeats and probes after a restart.
package component
