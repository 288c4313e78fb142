// Package barrier implements the cross-device synchronization coordinator.
//
// A group of exhibit components that must start playback together each ask
// the orchestrator for a synchronized start, naming the full participant
// set. The coordinator tracks check-ins; once every participant has checked
// in it picks one common start time far enough in the future to absorb
// heartbeat and network jitter, queues a begin command to all of them, and
// discards the barrier. Barriers are memory-only by design: after a restart
// devices simply re-request.
package barrier

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// defaultStartBuffer is how far in the future the common start time lands.
// Participants pick the command up on their next heartbeat, so the buffer
// must comfortably exceed one heartbeat interval plus network jitter.
const defaultStartBuffer = 10 * time.Second

// BeginCommandPrefix prefixes the queued begin command; the suffix is the
// shared start time in unix milliseconds.
const BeginCommandPrefix = "beginSynchronization_"

// Queuer queues a command for delivery on a component's next heartbeat.
// Implemented by the component registry.
type Queuer interface {
	Queue(ctx context.Context, componentID, command string) error
}

// Logger is the logging interface used by the coordinator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// request is one open barrier.
type request struct {
	key       string
	members   []string
	checkedIn map[string]bool
}

func (r *request) complete() bool {
	return len(r.checkedIn) == len(r.members)
}

// Coordinator tracks open synchronization barriers.
//
// An id belongs to at most one open barrier. A check-in naming a different
// participant set than the one an id is already tracked under silently
// abandons the old barrier and starts a fresh one — the behaviour operators
// rely on when a device is re-targeted mid-rehearsal. See DESIGN.md for
// why this is preserved rather than treated as an error.
type Coordinator struct {
	mu       sync.Mutex
	requests map[string]*request // canonical key -> barrier
	byMember map[string]string   // participant id -> canonical key

	queuer Queuer
	buffer time.Duration
	nowFn  func() time.Time
	logger Logger
}

// New creates a coordinator that queues begin commands through q.
func New(q Queuer) *Coordinator {
	return &Coordinator{
		requests: make(map[string]*request),
		byMember: make(map[string]string),
		queuer:   q,
		buffer:   defaultStartBuffer,
		nowFn:    time.Now,
		logger:   noopLogger{},
	}
}

// SetLogger sets the coordinator's logger.
func (c *Coordinator) SetLogger(logger Logger) { c.logger = logger }

// SetStartBuffer overrides the jitter buffer added to the start time.
func (c *Coordinator) SetStartBuffer(d time.Duration) { c.buffer = d }

// CheckIn registers a synchronization request from one participant. The
// participant set is the requester plus the named others; the first call
// for a new set opens the barrier, later calls from members check them in.
// When the last participant checks in, one begin command carrying an
// identical future start time is queued to every member and the barrier is
// discarded. Returns the released start time (zero until release).
func (c *Coordinator) CheckIn(ctx context.Context, requester string, others []string) (time.Time, error) {
	if requester == "" {
		return time.Time{}, fmt.Errorf("barrier: empty requester id")
	}

	members := canonicalMembers(requester, others)
	key := strings.Join(members, "\x1f")

	c.mu.Lock()
	req, ok := c.requests[key]
	if !ok {
		// Steal any members tracked under a different barrier: the old
		// barrier is abandoned wholesale, never merged.
		for _, id := range members {
			if oldKey, tracked := c.byMember[id]; tracked && oldKey != key {
				c.abandonLocked(oldKey)
			}
		}
		req = &request{key: key, members: members, checkedIn: make(map[string]bool, len(members))}
		c.requests[key] = req
		for _, id := range members {
			c.byMember[id] = key
		}
		c.logger.Debug("barrier opened", "members", members)
	}
	req.checkedIn[requester] = true

	if !req.complete() {
		c.mu.Unlock()
		return time.Time{}, nil
	}

	// Full check-in: release and discard before dropping the lock so a
	// re-request from the same set starts a fresh barrier.
	delete(c.requests, key)
	for _, id := range members {
		if c.byMember[id] == key {
			delete(c.byMember, id)
		}
	}
	c.mu.Unlock()

	startAt := c.nowFn().Add(c.buffer)
	command := fmt.Sprintf("%s%d", BeginCommandPrefix, startAt.UnixMilli())
	for _, id := range members {
		if err := c.queuer.Queue(ctx, id, command); err != nil {
			c.logger.Warn("queueing begin command failed", "id", id, "error", err)
		}
	}

	c.logger.Info("barrier released", "members", members, "start_at", startAt)
	return startAt, nil
}

// Open reports how many barriers are currently pending.
func (c *Coordinator) Open() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// abandonLocked drops an open barrier and all of its member tracking.
// Caller must hold c.mu.
func (c *Coordinator) abandonLocked(key string) {
	req, ok := c.requests[key]
	if !ok {
		return
	}
	delete(c.requests, key)
	for _, id := range req.members {
		if c.byMember[id] == key {
			delete(c.byMember, id)
		}
	}
	c.logger.Warn("barrier abandoned by overlapping request", "members", req.members)
}

// canonicalMembers builds the sorted, de-duplicated participant set.
func canonicalMembers(requester string, others []string) []string {
	seen := map[string]struct{}{requester: {}}
	members := []string{requester}
	for _, id := range others {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			members = append(members, id)
		}
	}
	sort.Strings(members)
	return members
}
