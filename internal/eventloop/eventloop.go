// Package eventloop provides Go-backed one-shot timers for guest scripts.
// Guests get setTimeout/clearTimeout only; the sandbox has no I/O of its own,
// so timers are the sole source of macro-tasks.
package eventloop

import (
	"fmt"
	"sync"
	"time"
)

// Runtime is the slice of the sandbox the loop needs to fire callbacks.
type Runtime interface {
	Eval(js string) error
	RunMicrotasks() int
}

// timerEntry represents a pending setTimeout callback. The actual callback
// is stored in globalThis.__timerCallbacks[id] on the JS side; Go only
// tracks scheduling metadata.
type timerEntry struct {
	deadline time.Time
	id       int
	cleared  bool
}

// EventLoop manages the timers of one session. Each session creates its own
// loop and discards it with the sandbox.
type EventLoop struct {
	mu     sync.Mutex
	timers map[int]*timerEntry
	nextID int
}

// New creates a new EventLoop.
func New() *EventLoop {
	return &EventLoop{
		timers: make(map[int]*timerEntry),
	}
}

// RegisterTimer creates a one-shot timer entry and returns its ID.
// The JS callback is stored in globalThis.__timerCallbacks[id].
func (el *EventLoop) RegisterTimer(delay time.Duration) int {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.nextID++
	id := el.nextID
	el.timers[id] = &timerEntry{
		deadline: time.Now().Add(delay),
		id:       id,
	}
	return id
}

// ClearTimer cancels a timer by ID.
func (el *EventLoop) ClearTimer(id int) {
	el.mu.Lock()
	defer el.mu.Unlock()
	if t, ok := el.timers[id]; ok {
		t.cleared = true
		delete(el.timers, id)
	}
}

// HasPending returns true if any timers are still armed.
func (el *EventLoop) HasPending() bool {
	el.mu.Lock()
	defer el.mu.Unlock()
	return len(el.timers) > 0
}

// fireTimer fires a timer callback by invoking the JS-side callback map.
func (el *EventLoop) fireTimer(rt Runtime, id int) {
	js := fmt.Sprintf(`(function() {
		var entry = globalThis.__timerCallbacks[%d];
		if (!entry) return;
		delete globalThis.__timerCallbacks[%d];
		entry.fn.apply(null, entry.args || []);
	})()`, id, id)
	_ = rt.Eval(js)
}

// Drain fires pending timers in deadline order until none remain or the
// execution deadline is reached. Must be called on the session's goroutine
// (the JS engine is single-threaded).
func (el *EventLoop) Drain(rt Runtime, deadline time.Time) {
	for {
		el.mu.Lock()
		var next *timerEntry
		for _, t := range el.timers {
			if t.cleared {
				continue
			}
			if next == nil || t.deadline.Before(next.deadline) {
				next = t
			}
		}
		el.mu.Unlock()

		if next == nil {
			return
		}

		now := time.Now()
		if next.deadline.After(now) {
			wait := next.deadline.Sub(now)
			if now.Add(wait).After(deadline) {
				return
			}
			time.Sleep(wait)
		}

		if time.Now().After(deadline) {
			return
		}

		el.mu.Lock()
		if next.cleared {
			el.mu.Unlock()
			continue
		}
		timerID := next.id
		delete(el.timers, next.id)
		el.mu.Unlock()

		el.fireTimer(rt, timerID)
		rt.RunMicrotasks()
	}
}
