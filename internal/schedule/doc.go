// Package schedule turns the installation's calendar files into armed
// timers and fleet-wide actions.
//
// The calendar lives on disk as one JSON file per weekday default
// (monday.json … sunday.json) plus one per date-specific override
// (2026-09-01.json); a date file fully overrides the weekday file for
// that date. The Store owns the file format and the write boundary —
// unparseable times are rejected there with a descriptive reason.
//
// The Engine resolves a rolling 21-day window at load and at each local
// midnight, arms one-shot timers for today's remaining entries on the
// shared timer wheel, and dispatches actions through the component
// registry when they fire. Special actions (set_exhibit, set_definition,
// set_dmx_scene) bypass the generic per-device queue and call dedicated
// operations directly.
package schedule
