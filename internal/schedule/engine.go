package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openexhibits/tessera-core/internal/timers"
)

// windowDays is how far ahead the calendar resolves.
const windowDays = 21

// Fleet is what the engine needs from the component registry: target
// expansion, the generic pull queue, and the dedicated content-change
// operations that bypass it.
type Fleet interface {
	ResolveTarget(target []string) []string
	Queue(ctx context.Context, componentID, command string) error
	SetApp(ctx context.Context, componentID, app string) error
	SetDefinition(ctx context.Context, componentID, definition string) error
}

// ScenePublisher activates lighting scenes on the DMX bridge. Optional;
// set_dmx_scene entries are dropped with a log entry when absent.
type ScenePublisher interface {
	PublishScene(ctx context.Context, scene string) error
}

// Notifier bumps the change notification clock on schedule edits.
type Notifier interface {
	Bump() int64
}

// Restarter performs the configured process restart. Optional.
type Restarter interface {
	Restart()
}

// Engine resolves the calendar into armed timers and dispatches entries
// when they fire.
//
// Re-arming is atomic relative to the previous timer set: every
// previously armed timer is cancelled before new ones install, so an
// edit can never leave a stale timer to double-fire. Beyond the day's
// entries the engine always arms its own reload at the next local
// midnight, plus one timer for the configured process restart time if
// present.
type Engine struct {
	store  *Store
	wheel  *timers.Wheel
	fleet  Fleet
	scenes ScenePublisher // optional
	notify Notifier       // optional
	logger Logger

	restartTime string    // "HH:MM", empty to disable
	restarter   Restarter // optional

	mu     sync.Mutex
	armed  []timers.Handle
	window []DaySchedule

	nowFn func() time.Time
}

// NewEngine creates a schedule engine. Reload must be called (typically
// at startup) before any timers fire.
func NewEngine(store *Store, wheel *timers.Wheel, fleet Fleet) *Engine {
	return &Engine{
		store:  store,
		wheel:  wheel,
		fleet:  fleet,
		logger: noopLogger{},
		nowFn:  time.Now,
	}
}

// SetLogger sets the engine's logger.
func (e *Engine) SetLogger(logger Logger) { e.logger = logger }

// SetScenePublisher wires the DMX bridge for set_dmx_scene entries.
func (e *Engine) SetScenePublisher(p ScenePublisher) { e.scenes = p }

// SetNotifier wires the change notification clock.
func (e *Engine) SetNotifier(n Notifier) { e.notify = n }

// SetRestart configures the daily process restart timer. timeOfDay uses
// the same formats as schedule entries; empty disables.
func (e *Engine) SetRestart(timeOfDay string, r Restarter) {
	e.restartTime = timeOfDay
	e.restarter = r
}

// Reload re-resolves the 21-day window from disk and re-arms today's
// timers. Safe to call concurrently; the last call wins.
func (e *Engine) Reload(ctx context.Context) error {
	now := e.nowFn().In(e.store.Location())

	window := make([]DaySchedule, 0, windowDays)
	for i := 0; i < windowDays; i++ {
		date := now.AddDate(0, 0, i)
		entries, source, err := e.store.LoadDay(date)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", date.Format(dateFileLayout), err)
		}
		if entries == nil {
			entries = []Entry{}
		}
		window = append(window, DaySchedule{
			Date:    date.Format(dateFileLayout),
			Source:  source,
			Entries: entries,
		})
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Cancel the previous timer set before installing the new one.
	for _, h := range e.armed {
		e.wheel.Cancel(h)
	}
	e.armed = e.armed[:0]
	e.window = window

	midnight := startOfDay(now)
	secondsNow := now.Sub(midnight).Seconds()

	armedCount := 0
	for _, entry := range window[0].Entries {
		wait := entry.SecondsFromMidnight - secondsNow
		if wait < 0 {
			continue
		}
		fire := entry // capture
		at := midnight.Add(time.Duration(entry.SecondsFromMidnight * float64(time.Second)))
		e.armed = append(e.armed, e.wheel.Schedule(at, func() {
			e.Dispatch(context.Background(), fire)
		}))
		armedCount++
	}

	// The schedule's own reload at the next local midnight.
	nextMidnight := startOfDay(now.AddDate(0, 0, 1))
	e.armed = append(e.armed, e.wheel.Schedule(nextMidnight, func() {
		if err := e.Reload(context.Background()); err != nil {
			e.logger.Error("midnight schedule reload failed", "error", err)
		}
	}))

	// The configured process restart, if present.
	if e.restartTime != "" && e.restarter != nil {
		if seconds, err := SecondsFromMidnight(e.restartTime, e.store.Location()); err != nil {
			e.logger.Error("invalid restart time", "time", e.restartTime, "error", err)
		} else {
			at := midnight.Add(time.Duration(seconds * float64(time.Second)))
			if !at.After(now) {
				at = at.AddDate(0, 0, 1)
			}
			e.armed = append(e.armed, e.wheel.Schedule(at, func() {
				e.logger.Info("scheduled process restart firing")
				e.restarter.Restart()
			}))
		}
	}

	e.logger.Info("schedule reloaded",
		"source", window[0].Source,
		"entries_today", len(window[0].Entries),
		"armed", armedCount,
	)

	if e.notify != nil {
		e.notify.Bump()
	}
	return nil
}

// Dispatch executes one schedule entry now. Exposed so the control
// surface can force-fire an entry; normal operation goes through the
// armed timers. Per-target failures are logged, never propagated — one
// bad component must not halt a fleet-wide action.
func (e *Engine) Dispatch(ctx context.Context, entry Entry) {
	e.logger.Info("dispatching schedule entry",
		"schedule_id", entry.ScheduleID,
		"action", entry.Action,
		"target", []string(entry.Target),
	)

	switch entry.Action {
	case ActionReload:
		if err := e.Reload(ctx); err != nil {
			e.logger.Error("scheduled reload failed", "error", err)
		}
		return
	case ActionSetDMXScene:
		if e.scenes == nil {
			e.logger.Warn("set_dmx_scene entry with no scene publisher", "schedule_id", entry.ScheduleID)
			return
		}
		if err := e.scenes.PublishScene(ctx, entry.Value); err != nil {
			e.logger.Error("publishing dmx scene failed", "scene", entry.Value, "error", err)
		}
		return
	}

	ids := e.fleet.ResolveTarget(entry.Target)
	if len(ids) == 0 {
		e.logger.Warn("schedule entry resolved no targets", "schedule_id", entry.ScheduleID)
		return
	}

	for _, id := range ids {
		var err error
		switch entry.Action {
		case ActionSetExhibit:
			err = e.fleet.SetApp(ctx, id, entry.Value)
		case ActionSetDefinition:
			err = e.fleet.SetDefinition(ctx, id, entry.Value)
		case ActionCommand:
			err = e.fleet.Queue(ctx, id, entry.Value)
		default:
			e.logger.Warn("unknown schedule action", "action", entry.Action)
			return
		}
		if err != nil {
			e.logger.Error("schedule dispatch failed", "id", id, "action", entry.Action, "error", err)
		}
	}
}

// Window returns the resolved 21-day window from the last Reload.
func (e *Engine) Window() []DaySchedule {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]DaySchedule, len(e.window))
	copy(out, e.window)
	return out
}

// NextEvent returns today's next entries — the co-equal set sharing the
// smallest seconds-from-midnight at or after now — and their fire time.
// ok is false when nothing remains today.
func (e *Engine) NextEvent() (entries []Entry, at time.Time, ok bool) {
	now := e.nowFn().In(e.store.Location())
	midnight := startOfDay(now)
	secondsNow := now.Sub(midnight).Seconds()

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.window) == 0 {
		return nil, time.Time{}, false
	}

	best := -1.0
	for _, entry := range e.window[0].Entries {
		if entry.SecondsFromMidnight < secondsNow {
			continue
		}
		if best < 0 || entry.SecondsFromMidnight < best {
			best = entry.SecondsFromMidnight
			entries = entries[:0]
		}
		if entry.SecondsFromMidnight == best {
			entries = append(entries, entry)
		}
	}
	if best < 0 {
		return nil, time.Time{}, false
	}
	return entries, midnight.Add(time.Duration(best * float64(time.Second))), true
}

// UpsertEntry writes one entry through the store, then re-resolves and
// re-arms. The time string is validated at this boundary.
func (e *Engine) UpsertEntry(ctx context.Context, dayKey string, entry Entry) error {
	if err := e.store.UpsertEntry(dayKey, entry); err != nil {
		return err
	}
	return e.Reload(ctx)
}

// DeleteEntry removes one entry, then re-resolves and re-arms.
func (e *Engine) DeleteEntry(ctx context.Context, dayKey, scheduleID string) error {
	if err := e.store.DeleteEntry(dayKey, scheduleID); err != nil {
		return err
	}
	return e.Reload(ctx)
}

// startOfDay returns local midnight for t.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
