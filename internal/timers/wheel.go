// Package timers provides a single shared timer service backed by a min-heap.
//
// Rather than giving every device its own *time.Timer, the orchestrator arms
// all of its one-shot callbacks (status decay, health probes, schedule fires)
// on one Wheel serviced by one goroutine. Resource use stays bounded as the
// fleet grows, and cancellation is a map delete instead of a timer race.
//
// Thread Safety: all methods are safe for concurrent use. Callbacks run in
// their own goroutine so a slow callback never delays other timers.
package timers

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// Handle identifies a scheduled callback so it can be cancelled.
// The zero Handle is invalid.
type Handle uint64

// entry is one armed timer on the heap.
type entry struct {
	handle Handle
	at     time.Time
	fn     func()
	index  int // heap index, maintained by entryHeap
}

// Wheel schedules one-shot callbacks on a single min-heap.
type Wheel struct {
	mu      sync.Mutex
	heap    entryHeap
	byID    map[Handle]*entry
	nextID  Handle
	kick    chan struct{} // signals the loop that the earliest deadline changed
	running bool
}

// NewWheel creates an empty timer wheel. Run must be called for callbacks
// to fire; Schedule and Cancel work before Run starts.
func NewWheel() *Wheel {
	return &Wheel{
		byID: make(map[Handle]*entry),
		kick: make(chan struct{}, 1),
	}
}

// Schedule arms fn to run at the given time. Times in the past fire on the
// next loop iteration. Returns a Handle for cancellation.
func (w *Wheel) Schedule(at time.Time, fn func()) Handle {
	w.mu.Lock()
	w.nextID++
	e := &entry{handle: w.nextID, at: at, fn: fn}
	heap.Push(&w.heap, e)
	w.byID[e.handle] = e
	w.mu.Unlock()

	w.wake()
	return e.handle
}

// After is shorthand for Schedule(now+d, fn).
func (w *Wheel) After(d time.Duration, fn func()) Handle {
	return w.Schedule(time.Now().Add(d), fn)
}

// Cancel removes a scheduled callback. Returns false if the callback
// already fired or was cancelled before.
func (w *Wheel) Cancel(h Handle) bool {
	w.mu.Lock()
	e, ok := w.byID[h]
	if ok {
		delete(w.byID, h)
		heap.Remove(&w.heap, e.index)
	}
	w.mu.Unlock()

	if ok {
		w.wake()
	}
	return ok
}

// Len returns the number of armed timers.
func (w *Wheel) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.heap.Len()
}

// Run services the wheel until the context is cancelled. It fires due
// callbacks in their own goroutines and sleeps until the next deadline.
func (w *Wheel) Run(ctx context.Context) {
	w.mu.Lock()
	w.running = true
	w.mu.Unlock()

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		wait := w.fireDue()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			return
		case <-w.kick:
		case <-timer.C:
		}
	}
}

// fireDue pops and launches every entry whose deadline has passed and
// returns how long to sleep until the next one.
func (w *Wheel) fireDue() time.Duration {
	const idleWait = time.Hour

	now := time.Now()
	var due []*entry

	w.mu.Lock()
	for w.heap.Len() > 0 {
		next := w.heap[0]
		if next.at.After(now) {
			break
		}
		heap.Pop(&w.heap)
		delete(w.byID, next.handle)
		due = append(due, next)
	}
	wait := idleWait
	if w.heap.Len() > 0 {
		wait = time.Until(w.heap[0].at)
		if wait < 0 {
			wait = 0
		}
	}
	w.mu.Unlock()

	for _, e := range due {
		go e.fn()
	}
	return wait
}

// wake nudges the run loop to recompute its sleep after a schedule change.
func (w *Wheel) wake() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// entryHeap is a min-heap of entries ordered by fire time.
type entryHeap []*entry

func (h entryHeap) Len() int           { return len(h) }
func (h entryHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
