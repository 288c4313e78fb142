package component

import (
	"context"
	"testing"
	"time"

	"github.com/openexhibits/tessera-core/internal/timers"
)

// fixedNow pins the registry clock for deterministic derivation tests.
func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestEffectiveStatus(t *testing.T) {
	r, _ := newTestRegistry(t)
	// ActiveHold 10s, OnlineHold 30s, WaitingHold 30s.
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name            string
		kind            Kind
		lastContact     time.Duration // age, 0 means never
		lastInteraction time.Duration // age, 0 means never
		want            Status
	}{
		{"never heard from", KindExhibit, 0, 0, StatusOffline},
		{"fresh contact no interaction", KindExhibit, 5 * time.Second, 0, StatusOnline},
		{"fresh contact fresh interaction", KindExhibit, 2 * time.Second, 2 * time.Second, StatusActive},
		{"interaction just inside hold", KindExhibit, 5 * time.Second, 9 * time.Second, StatusActive},
		{"interaction expired", KindExhibit, 5 * time.Second, 11 * time.Second, StatusOnline},
		{"contact at online hold boundary", KindExhibit, 30 * time.Second, 0, StatusWaiting},
		{"contact mid waiting window", KindExhibit, 45 * time.Second, 0, StatusWaiting},
		{"stale interaction cannot outrank waiting", KindExhibit, 45 * time.Second, 44 * time.Second, StatusWaiting},
		{"contact past both windows", KindExhibit, 60 * time.Second, 0, StatusOffline},
		{"long gone", KindExhibit, 24 * time.Hour, 0, StatusOffline},
		{"static never decays", KindStatic, 24 * time.Hour, 0, StatusStatic},
	}

	for _, tt := range tests {
		c := &Component{Kind: tt.kind}
		if tt.lastContact > 0 {
			c.LastContact = base.Add(-tt.lastContact)
		}
		if tt.lastInteraction > 0 {
			c.LastInteraction = base.Add(-tt.lastInteraction)
		}
		if got := r.effectiveStatus(c, base); got != tt.want {
			t.Errorf("%s: effectiveStatus() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestEffectiveStatusProbedKindsUntouched(t *testing.T) {
	r, _ := newTestRegistry(t)
	now := time.Now()

	// Probed kinds keep whatever ApplyProbe last set, regardless of age.
	c := &Component{Kind: KindProjector, Status: StatusOnline, LastContact: now.Add(-2 * time.Hour)}
	if got := r.effectiveStatus(c, now); got != StatusOnline {
		t.Errorf("projector effectiveStatus() = %q, want ONLINE", got)
	}
}

func TestNextDecayAt(t *testing.T) {
	r, _ := newTestRegistry(t)
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	// ACTIVE: the earlier of interaction+ActiveHold and contact+OnlineHold.
	c := &Component{Kind: KindExhibit, LastContact: base, LastInteraction: base}
	if got, want := r.nextDecayAt(c, base), base.Add(10*time.Second); !got.Equal(want) {
		t.Errorf("active decay at = %v, want %v", got, want)
	}

	// ONLINE: contact+OnlineHold.
	c = &Component{Kind: KindExhibit, LastContact: base.Add(-15 * time.Second)}
	if got, want := r.nextDecayAt(c, base), base.Add(15*time.Second); !got.Equal(want) {
		t.Errorf("online decay at = %v, want %v", got, want)
	}

	// WAITING: contact+OnlineHold+WaitingHold.
	c = &Component{Kind: KindExhibit, LastContact: base.Add(-40 * time.Second)}
	if got, want := r.nextDecayAt(c, base), base.Add(20*time.Second); !got.Equal(want) {
		t.Errorf("waiting decay at = %v, want %v", got, want)
	}

	// OFFLINE or never contacted: no timer.
	c = &Component{Kind: KindExhibit, LastContact: base.Add(-90 * time.Second)}
	if got := r.nextDecayAt(c, base); !got.IsZero() {
		t.Errorf("offline decay at = %v, want zero", got)
	}
	c = &Component{Kind: KindExhibit}
	if got := r.nextDecayAt(c, base); !got.IsZero() {
		t.Errorf("uncontacted decay at = %v, want zero", got)
	}

	// Probed kinds never arm decay timers.
	c = &Component{Kind: KindProjector, LastContact: base}
	if got := r.nextDecayAt(c, base); !got.IsZero() {
		t.Errorf("projector decay at = %v, want zero", got)
	}
}

// waitForStatus polls until the component reaches the wanted status or the
// deadline passes.
func waitForStatus(t *testing.T, r *Registry, id string, want Status, deadline time.Duration) {
	t.Helper()
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		c, err := r.Get(id)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", id, err)
		}
		if c.Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	c, _ := r.Get(id)
	t.Fatalf("component %s stuck at %q, want %q", id, c.Status, want)
}

func TestDecaySequence(t *testing.T) {
	repo := newMemRepo()
	wheel := timers.NewWheel()
	r := NewRegistry(repo, wheel)
	r.SetDecayConfig(DecayConfig{
		ActiveHold:  40 * time.Millisecond,
		OnlineHold:  80 * time.Millisecond,
		WaitingHold: 80 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go wheel.Run(ctx)

	if _, err := r.IngestHeartbeat(ctx, Heartbeat{ID: "kiosk-1", Interacting: true}); err != nil {
		t.Fatalf("IngestHeartbeat() error = %v", err)
	}

	c, _ := r.Get("kiosk-1")
	if c.Status != StatusActive {
		t.Fatalf("status after interacting heartbeat = %q, want ACTIVE", c.Status)
	}

	waitForStatus(t, r, "kiosk-1", StatusOnline, 2*time.Second)
	waitForStatus(t, r, "kiosk-1", StatusWaiting, 2*time.Second)
	waitForStatus(t, r, "kiosk-1", StatusOffline, 2*time.Second)

	// Fully decayed: the next heartbeat revives it.
	if _, err := r.IngestHeartbeat(ctx, Heartbeat{ID: "kiosk-1"}); err != nil {
		t.Fatalf("IngestHeartbeat() error = %v", err)
	}
	c, _ = r.Get("kiosk-1")
	if c.Status != StatusOnline {
		t.Errorf("status after revival heartbeat = %q, want ONLINE", c.Status)
	}
}

func TestHeartbeatRacingDecayDoesNotRegress(t *testing.T) {
	repo := newMemRepo()
	wheel := timers.NewWheel()
	r := NewRegistry(repo, wheel)
	r.SetDecayConfig(DecayConfig{
		ActiveHold:  30 * time.Millisecond,
		OnlineHold:  60 * time.Millisecond,
		WaitingHold: 60 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go wheel.Run(ctx)

	if _, err := r.IngestHeartbeat(ctx, Heartbeat{ID: "kiosk-1"}); err != nil {
		t.Fatal(err)
	}

	// Keep heartbeating faster than the online hold; the status must hold
	// ONLINE throughout, decay callbacks notwithstanding.
	end := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(end) {
		if _, err := r.IngestHeartbeat(ctx, Heartbeat{ID: "kiosk-1"}); err != nil {
			t.Fatal(err)
		}
		c, _ := r.Get("kiosk-1")
		if c.Status != StatusOnline {
			t.Fatalf("status regressed to %q while heartbeating", c.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStaleDecayFireLeavesFreshTimerArmed(t *testing.T) {
	repo := newMemRepo()
	wheel := timers.NewWheel()
	r := NewRegistry(repo, wheel)

	ctx := context.Background()
	reply, err := r.IngestHeartbeat(ctx, Heartbeat{ID: "kiosk-1"})
	if err != nil {
		t.Fatal(err)
	}
	uuid := reply.UUID

	// The wheel is not running, so the first heartbeat's timer sits armed.
	// Capture its handle, then heartbeat again: the re-arm cancels it and
	// installs a fresh one.
	r.mu.Lock()
	stale := r.decays[uuid]
	r.mu.Unlock()

	if _, err := r.IngestHeartbeat(ctx, Heartbeat{ID: "kiosk-1"}); err != nil {
		t.Fatal(err)
	}
	r.mu.Lock()
	fresh := r.decays[uuid]
	r.mu.Unlock()
	if fresh == stale {
		t.Fatal("second heartbeat should have re-armed a new decay timer")
	}

	// Deliver the superseded fire, as the wheel would if it had popped the
	// first timer just before the re-arm cancelled it. It must stand down
	// without touching the fresh timer.
	armed := wheel.Len()
	r.decayFired(uuid, &stale)

	if got := wheel.Len(); got != armed {
		t.Errorf("armed timers after stale fire = %d, want %d", got, armed)
	}
	r.mu.Lock()
	cur, ok := r.decays[uuid]
	r.mu.Unlock()
	if !ok || cur != fresh {
		t.Errorf("tracked decay handle after stale fire = %v, want %v", cur, fresh)
	}
}

func TestRemoveCancelsDecay(t *testing.T) {
	repo := newMemRepo()
	wheel := timers.NewWheel()
	r := NewRegistry(repo, wheel)

	ctx := context.Background()
	if _, err := r.IngestHeartbeat(ctx, Heartbeat{ID: "kiosk-1"}); err != nil {
		t.Fatal(err)
	}
	if wheel.Len() == 0 {
		t.Fatal("heartbeat should arm a decay timer")
	}

	if err := r.Remove(ctx, "kiosk-1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if wheel.Len() != 0 {
		t.Errorf("timers still armed after remove: %d", wheel.Len())
	}
}
