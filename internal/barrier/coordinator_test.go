package barrier

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeQueuer records queued commands per component id.
type fakeQueuer struct {
	mu     sync.Mutex
	queued map[string][]string
	err    error
}

func newFakeQueuer() *fakeQueuer {
	return &fakeQueuer{queued: make(map[string][]string)}
}

func (q *fakeQueuer) Queue(_ context.Context, componentID, command string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.queued[componentID] = append(q.queued[componentID], command)
	return nil
}

func (q *fakeQueuer) commandsFor(id string) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.queued[id]...)
}

func TestCheckInReleasesOnLastParticipant(t *testing.T) {
	q := newFakeQueuer()
	c := New(q)
	ctx := context.Background()

	start, err := c.CheckIn(ctx, "wall-left", []string{"wall-right", "wall-centre"})
	if err != nil {
		t.Fatalf("CheckIn() error = %v", err)
	}
	if !start.IsZero() {
		t.Fatal("first check-in should not release")
	}
	start, err = c.CheckIn(ctx, "wall-right", []string{"wall-left", "wall-centre"})
	if err != nil {
		t.Fatal(err)
	}
	if !start.IsZero() {
		t.Fatal("second of three should not release")
	}
	if c.Open() != 1 {
		t.Fatalf("Open() = %d, want 1", c.Open())
	}

	before := time.Now()
	start, err = c.CheckIn(ctx, "wall-centre", []string{"wall-left", "wall-right"})
	if err != nil {
		t.Fatal(err)
	}
	if start.IsZero() {
		t.Fatal("last check-in should release")
	}
	if start.Before(before.Add(5 * time.Second)) {
		t.Errorf("start time %v lacks jitter buffer", start)
	}
	if c.Open() != 0 {
		t.Errorf("Open() after release = %d, want 0", c.Open())
	}

	// Every member gets one identical begin command.
	want := BeginCommandPrefix + strconv.FormatInt(start.UnixMilli(), 10)
	for _, id := range []string{"wall-left", "wall-right", "wall-centre"} {
		got := q.commandsFor(id)
		if len(got) != 1 || got[0] != want {
			t.Errorf("commands for %s = %v, want [%s]", id, got, want)
		}
	}
}

func TestCheckInSoloParticipant(t *testing.T) {
	q := newFakeQueuer()
	c := New(q)

	start, err := c.CheckIn(context.Background(), "only-one", nil)
	if err != nil {
		t.Fatal(err)
	}
	if start.IsZero() {
		t.Fatal("a one-member barrier releases immediately")
	}
	if len(q.commandsFor("only-one")) != 1 {
		t.Errorf("commands = %v", q.commandsFor("only-one"))
	}
}

func TestCheckInRepeatIsIdempotent(t *testing.T) {
	q := newFakeQueuer()
	c := New(q)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		start, err := c.CheckIn(ctx, "a", []string{"b"})
		if err != nil {
			t.Fatal(err)
		}
		if !start.IsZero() {
			t.Fatal("repeat check-ins from the same member must not release")
		}
	}
	if c.Open() != 1 {
		t.Errorf("Open() = %d, want 1", c.Open())
	}
}

func TestCheckInMemberSetIsOrderAndDuplicateInsensitive(t *testing.T) {
	q := newFakeQueuer()
	c := New(q)
	ctx := context.Background()

	if _, err := c.CheckIn(ctx, "a", []string{"b", "c"}); err != nil {
		t.Fatal(err)
	}
	// Different ordering, duplicates, requester listed among others: still
	// the same barrier.
	if _, err := c.CheckIn(ctx, "b", []string{"c", "a", "a", ""}); err != nil {
		t.Fatal(err)
	}
	if c.Open() != 1 {
		t.Fatalf("Open() = %d, want 1 shared barrier", c.Open())
	}
	start, err := c.CheckIn(ctx, "c", []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if start.IsZero() {
		t.Error("third member should complete the barrier")
	}
}

func TestOverlappingRequestAbandonsOldBarrier(t *testing.T) {
	q := newFakeQueuer()
	c := New(q)
	ctx := context.Background()

	if _, err := c.CheckIn(ctx, "a", []string{"b"}); err != nil {
		t.Fatal(err)
	}
	// "b" now asks for a different set: {a,b} is abandoned wholesale.
	if _, err := c.CheckIn(ctx, "b", []string{"c"}); err != nil {
		t.Fatal(err)
	}
	if c.Open() != 1 {
		t.Fatalf("Open() = %d, want only the new barrier", c.Open())
	}

	// Completing the new barrier works; the old one never fires.
	start, err := c.CheckIn(ctx, "c", []string{"b"})
	if err != nil {
		t.Fatal(err)
	}
	if start.IsZero() {
		t.Fatal("new barrier should release")
	}
	if len(q.commandsFor("a")) != 0 {
		t.Errorf("abandoned member received commands: %v", q.commandsFor("a"))
	}

	// The abandoned requester can open a fresh barrier afterwards.
	if _, err := c.CheckIn(ctx, "a", []string{"d"}); err != nil {
		t.Fatal(err)
	}
	if c.Open() != 1 {
		t.Errorf("Open() = %d, want 1", c.Open())
	}
}

func TestCheckInEmptyRequester(t *testing.T) {
	c := New(newFakeQueuer())

	if _, err := c.CheckIn(context.Background(), "", []string{"b"}); err == nil {
		t.Fatal("empty requester should be rejected")
	}
}

func TestReleaseSurvivesQueueFailure(t *testing.T) {
	q := newFakeQueuer()
	c := New(q)
	ctx := context.Background()

	if _, err := c.CheckIn(ctx, "a", []string{"b"}); err != nil {
		t.Fatal(err)
	}
	q.mu.Lock()
	q.err = context.DeadlineExceeded
	q.mu.Unlock()

	// Queue failures are logged, not fatal: the barrier still releases.
	start, err := c.CheckIn(ctx, "b", []string{"a"})
	if err != nil {
		t.Fatalf("CheckIn() error = %v", err)
	}
	if start.IsZero() {
		t.Error("barrier should release despite queue failure")
	}
	if c.Open() != 0 {
		t.Errorf("Open() = %d, want 0", c.Open())
	}
}

func TestSetStartBuffer(t *testing.T) {
	q := newFakeQueuer()
	c := New(q)
	c.SetStartBuffer(time.Minute)

	before := time.Now()
	start, err := c.CheckIn(context.Background(), "a", nil)
	if err != nil {
		t.Fatal(err)
	}
	if start.Before(before.Add(59 * time.Second)) {
		t.Errorf("start %v ignores configured buffer", start)
	}
}

func TestBeginCommandFormat(t *testing.T) {
	q := newFakeQueuer()
	c := New(q)

	start, err := c.CheckIn(context.Background(), "a", nil)
	if err != nil {
		t.Fatal(err)
	}
	got := q.commandsFor("a")[0]
	suffix, ok := strings.CutPrefix(got, BeginCommandPrefix)
	if !ok {
		t.Fatalf("command %q missing prefix", got)
	}
	ms, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil {
		t.Fatalf("command suffix %q is not unix milliseconds", suffix)
	}
	if ms != start.UnixMilli() {
		t.Errorf("command timestamp %d != returned start %d", ms, start.UnixMilli())
	}
}

func TestConcurrentCheckInsReleaseOnce(t *testing.T) {
	q := newFakeQueuer()
	c := New(q)
	ctx := context.Background()

	members := make([]string, 10)
	for i := range members {
		members[i] = "m" + strconv.Itoa(i)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	released := 0
	for _, id := range members {
		wg.Add(1)
		go func(self string) {
			defer wg.Done()
			others := make([]string, 0, len(members)-1)
			for _, m := range members {
				if m != self {
					others = append(others, m)
				}
			}
			start, err := c.CheckIn(ctx, self, others)
			if err != nil {
				t.Error(err)
				return
			}
			if !start.IsZero() {
				mu.Lock()
				released++
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	if released != 1 {
		t.Errorf("barrier released %d times, want exactly once", released)
	}
	for _, id := range members {
		if n := len(q.commandsFor(id)); n != 1 {
			t.Errorf("member %s received %d begin commands, want 1", id, n)
		}
	}
}
