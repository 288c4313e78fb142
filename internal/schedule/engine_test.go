package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/openexhibits/tessera-core/internal/timers"
)

// fakeFleet records dispatched operations.
type fakeFleet struct {
	mu       sync.Mutex
	known    map[string]bool
	apps     map[string]string
	defs     map[string]string
	commands map[string][]string
}

func newFakeFleet(ids ...string) *fakeFleet {
	f := &fakeFleet{
		known:    make(map[string]bool),
		apps:     make(map[string]string),
		defs:     make(map[string]string),
		commands: make(map[string][]string),
	}
	for _, id := range ids {
		f.known[id] = true
	}
	return f
}

func (f *fakeFleet) ResolveTarget(target []string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, t := range target {
		if t == "__all" {
			for id := range f.known {
				ids = append(ids, id)
			}
			continue
		}
		if f.known[t] {
			ids = append(ids, t)
		}
	}
	return ids
}

func (f *fakeFleet) Queue(_ context.Context, id, command string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands[id] = append(f.commands[id], command)
	return nil
}

func (f *fakeFleet) SetApp(_ context.Context, id, app string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apps[id] = app
	return nil
}

func (f *fakeFleet) SetDefinition(_ context.Context, id, definition string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defs[id] = definition
	return nil
}

type fakeScenes struct {
	mu     sync.Mutex
	scenes []string
}

func (s *fakeScenes) PublishScene(_ context.Context, scene string) error {
	s.mu.Lock()
	s.scenes = append(s.scenes, scene)
	s.mu.Unlock()
	return nil
}

type countingNotifier struct {
	mu    sync.Mutex
	bumps int
}

func (n *countingNotifier) Bump() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bumps++
	return int64(n.bumps)
}

func newTestEngine(t *testing.T, fleet Fleet) (*Engine, *Store, *timers.Wheel) {
	t.Helper()
	store := newTestStore(t)
	wheel := timers.NewWheel()
	return NewEngine(store, wheel, fleet), store, wheel
}

func TestReloadResolvesFullWindow(t *testing.T) {
	engine, store, _ := newTestEngine(t, newFakeFleet())

	if err := store.UpsertEntry("monday", Entry{
		ScheduleID: "s1", Time: "10:00", Action: ActionCommand, Value: "x",
	}); err != nil {
		t.Fatal(err)
	}

	// Fixed Monday noon.
	engine.nowFn = func() time.Time {
		return time.Date(2026, 9, 7, 12, 0, 0, 0, time.UTC)
	}
	if err := engine.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	window := engine.Window()
	if len(window) != 21 {
		t.Fatalf("window length = %d, want 21", len(window))
	}
	if window[0].Date != "2026-09-07" || window[20].Date != "2026-09-27" {
		t.Errorf("window spans %s..%s", window[0].Date, window[20].Date)
	}
	// Mondays in the window carry the entry; other days resolve empty.
	for i, day := range window {
		wantEntries := 0
		if day.Date == "2026-09-07" || day.Date == "2026-09-14" || day.Date == "2026-09-21" {
			wantEntries = 1
		}
		if len(day.Entries) != wantEntries {
			t.Errorf("day %d (%s): %d entries, want %d", i, day.Date, len(day.Entries), wantEntries)
		}
		if day.Entries == nil {
			t.Errorf("day %s has nil entries, want empty slice", day.Date)
		}
	}
}

func TestReloadArmsOnlyRemainingEntries(t *testing.T) {
	engine, store, wheel := newTestEngine(t, newFakeFleet())

	for _, e := range []Entry{
		{ScheduleID: "past", Time: "08:00", Action: ActionCommand, Value: "a"},
		{ScheduleID: "future-1", Time: "15:00", Action: ActionCommand, Value: "b"},
		{ScheduleID: "future-2", Time: "17:00", Action: ActionCommand, Value: "c"},
	} {
		if err := store.UpsertEntry("monday", e); err != nil {
			t.Fatal(err)
		}
	}

	engine.nowFn = func() time.Time {
		return time.Date(2026, 9, 7, 12, 0, 0, 0, time.UTC)
	}
	if err := engine.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Two remaining entries plus the midnight reload.
	if got := wheel.Len(); got != 3 {
		t.Errorf("armed timers = %d, want 3", got)
	}

	// Reloading again replaces, never accumulates.
	if err := engine.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := wheel.Len(); got != 3 {
		t.Errorf("armed timers after second reload = %d, want 3", got)
	}
}

func TestReloadArmsRestartTimer(t *testing.T) {
	engine, _, wheel := newTestEngine(t, newFakeFleet())
	engine.SetRestart("04:00", &fakeRestarter{})

	engine.nowFn = func() time.Time {
		return time.Date(2026, 9, 7, 12, 0, 0, 0, time.UTC)
	}
	if err := engine.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Midnight reload plus the restart timer (rolled to tomorrow, 04:00
	// already passed).
	if got := wheel.Len(); got != 2 {
		t.Errorf("armed timers = %d, want 2", got)
	}
}

type fakeRestarter struct {
	mu    sync.Mutex
	calls int
}

func (r *fakeRestarter) Restart() {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
}

func TestReloadBumpsNotifier(t *testing.T) {
	engine, _, _ := newTestEngine(t, newFakeFleet())
	notifier := &countingNotifier{}
	engine.SetNotifier(notifier)

	if err := engine.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if notifier.bumps != 1 {
		t.Errorf("notifier bumps = %d, want 1", notifier.bumps)
	}
}

func TestNextEvent(t *testing.T) {
	engine, store, _ := newTestEngine(t, newFakeFleet())

	for _, e := range []Entry{
		{ScheduleID: "past", Time: "08:00", Action: ActionCommand},
		{ScheduleID: "tie-a", Time: "15:00", Action: ActionCommand},
		{ScheduleID: "tie-b", Time: "15:00", Action: ActionCommand},
		{ScheduleID: "later", Time: "17:00", Action: ActionCommand},
	} {
		if err := store.UpsertEntry("monday", e); err != nil {
			t.Fatal(err)
		}
	}

	engine.nowFn = func() time.Time {
		return time.Date(2026, 9, 7, 12, 0, 0, 0, time.UTC)
	}
	if err := engine.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}

	entries, at, ok := engine.NextEvent()
	if !ok {
		t.Fatal("NextEvent() ok = false, want true")
	}
	// Co-equal tied entries share next-event status.
	if len(entries) != 2 || entries[0].ScheduleID != "tie-a" || entries[1].ScheduleID != "tie-b" {
		t.Errorf("next entries = %+v", entries)
	}
	want := time.Date(2026, 9, 7, 15, 0, 0, 0, time.UTC)
	if !at.Equal(want) {
		t.Errorf("next at = %v, want %v", at, want)
	}

	// After the last entry, nothing remains today.
	engine.nowFn = func() time.Time {
		return time.Date(2026, 9, 7, 18, 0, 0, 0, time.UTC)
	}
	if _, _, ok := engine.NextEvent(); ok {
		t.Error("NextEvent() after last entry ok = true, want false")
	}
}

func TestDispatchActions(t *testing.T) {
	fleet := newFakeFleet("kiosk-1", "kiosk-2")
	engine, _, _ := newTestEngine(t, fleet)
	scenes := &fakeScenes{}
	engine.SetScenePublisher(scenes)
	ctx := context.Background()

	engine.Dispatch(ctx, Entry{
		ScheduleID: "s1", Action: ActionSetExhibit,
		Target: Target{"kiosk-1"}, Value: "timeline",
	})
	if fleet.apps["kiosk-1"] != "timeline" {
		t.Errorf("apps = %v", fleet.apps)
	}

	engine.Dispatch(ctx, Entry{
		ScheduleID: "s2", Action: ActionSetDefinition,
		Target: Target{"kiosk-2"}, Value: "exhibit-2026",
	})
	if fleet.defs["kiosk-2"] != "exhibit-2026" {
		t.Errorf("defs = %v", fleet.defs)
	}

	engine.Dispatch(ctx, Entry{
		ScheduleID: "s3", Action: ActionCommand,
		Target: Target{"__all"}, Value: "reloadContent",
	})
	for _, id := range []string{"kiosk-1", "kiosk-2"} {
		if len(fleet.commands[id]) != 1 || fleet.commands[id][0] != "reloadContent" {
			t.Errorf("commands for %s = %v", id, fleet.commands[id])
		}
	}

	// Scene entries bypass target resolution entirely.
	engine.Dispatch(ctx, Entry{
		ScheduleID: "s4", Action: ActionSetDMXScene, Value: "evening-warm",
	})
	if len(scenes.scenes) != 1 || scenes.scenes[0] != "evening-warm" {
		t.Errorf("scenes = %v", scenes.scenes)
	}

	// Unknown targets are dropped without error.
	engine.Dispatch(ctx, Entry{
		ScheduleID: "s5", Action: ActionCommand,
		Target: Target{"ghost"}, Value: "x",
	})
	if len(fleet.commands["ghost"]) != 0 {
		t.Errorf("ghost received commands: %v", fleet.commands["ghost"])
	}
}

func TestDispatchSceneWithoutPublisher(t *testing.T) {
	engine, _, _ := newTestEngine(t, newFakeFleet())

	// No publisher wired: the entry is dropped, not a panic.
	engine.Dispatch(context.Background(), Entry{
		ScheduleID: "s1", Action: ActionSetDMXScene, Value: "x",
	})
}

func TestUpsertAndDeleteEntryRearm(t *testing.T) {
	engine, _, wheel := newTestEngine(t, newFakeFleet())
	ctx := context.Background()

	engine.nowFn = func() time.Time {
		return time.Date(2026, 9, 7, 12, 0, 0, 0, time.UTC)
	}

	if err := engine.UpsertEntry(ctx, "monday", Entry{
		ScheduleID: "s1", Time: "15:00", Action: ActionCommand, Value: "x",
	}); err != nil {
		t.Fatalf("UpsertEntry() error = %v", err)
	}
	if len(engine.Window()[0].Entries) != 1 {
		t.Error("upserted entry missing from window")
	}
	if got := wheel.Len(); got != 2 { // entry + midnight reload
		t.Errorf("armed timers = %d, want 2", got)
	}

	if err := engine.DeleteEntry(ctx, "monday", "s1"); err != nil {
		t.Fatalf("DeleteEntry() error = %v", err)
	}
	if len(engine.Window()[0].Entries) != 0 {
		t.Error("deleted entry still in window")
	}
	if got := wheel.Len(); got != 1 { // midnight reload only
		t.Errorf("armed timers after delete = %d, want 1", got)
	}

	if err := engine.DeleteEntry(ctx, "monday", "ghost"); err == nil {
		t.Error("deleting unknown entry should fail")
	}
}

func TestScheduledEntryFires(t *testing.T) {
	fleet := newFakeFleet("kiosk-1")
	engine, store, wheel := newTestEngine(t, fleet)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go wheel.Run(ctx)

	// Arm an entry a moment in the future, on today's real clock.
	now := time.Now().In(store.Location())
	at := now.Add(1200 * time.Millisecond)
	if at.Day() != now.Day() {
		t.Skip("too close to midnight for a same-day fire")
	}
	if err := engine.UpsertEntry(ctx, now.Format("2006-01-02"), Entry{
		ScheduleID: "fire-now",
		Time:       at.Format("15:04:05"),
		Action:     ActionCommand,
		Target:     Target{"kiosk-1"},
		Value:      "ping",
	}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		fleet.mu.Lock()
		fired := len(fleet.commands["kiosk-1"]) > 0
		fleet.mu.Unlock()
		if fired {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("scheduled entry never fired")
}
