package core

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const MaxLogEntries = 500
const MaxLogMessageSize = 4096

// InvocationState holds per-invocation mutable state shared between the
// session and the bridge callbacks: the captured log buffer, the invocation
// identity, the player-state collaborator, and the session context used to
// cancel in-flight bridge I/O on timeout.
//
// Bridge callbacks run on the session's goroutine (the JS engine is
// single-threaded), so the log buffer needs no lock.
type InvocationState struct {
	Logs        []LogEntry
	Inv         *InvocationContext
	Players     PlayerStore
	Ctx         context.Context
	BridgeCalls int
}

var (
	invocationCounter atomic.Uint64
	invocationStates  sync.Map // uint64 -> *InvocationState
)

// NewInvocationState registers state for one invocation and returns its
// unique call ID. The session injects the ID into the sandbox as a global;
// bridge callbacks use it to find their way back here.
func NewInvocationState(inv *InvocationContext, players PlayerStore, ctx context.Context) uint64 {
	id := invocationCounter.Add(1)
	invocationStates.Store(id, &InvocationState{
		Inv:     inv,
		Players: players,
		Ctx:     ctx,
	})
	return id
}

// GetInvocationState returns the state for the given call ID, or nil.
func GetInvocationState(id uint64) *InvocationState {
	v, ok := invocationStates.Load(id)
	if !ok {
		return nil
	}
	return v.(*InvocationState)
}

// ClearInvocationState removes and returns the state for the given call ID.
// Called exactly once per session, on disposal.
func ClearInvocationState(id uint64) *InvocationState {
	v, ok := invocationStates.LoadAndDelete(id)
	if !ok {
		return nil
	}
	return v.(*InvocationState)
}

// ActiveInvocations reports how many invocation states are registered.
// Used by leak checks: after all sessions dispose, this must be zero.
func ActiveInvocations() int {
	n := 0
	invocationStates.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// AddLog appends a log entry to the invocation identified by id. Entries
// past MaxLogEntries are dropped and long messages truncated, so a guest
// cannot grow the buffer without bound.
func AddLog(id uint64, level, message string) {
	state := GetInvocationState(id)
	if state == nil {
		return
	}
	if len(state.Logs) >= MaxLogEntries {
		return
	}
	if len(message) > MaxLogMessageSize {
		message = message[:MaxLogMessageSize] + "...(truncated)"
	}
	state.Logs = append(state.Logs, LogEntry{
		Level:   level,
		Message: message,
		Time:    time.Now(),
	})
}

// ParseCallID parses the call ID global as passed back from JS.
func ParseCallID(s string) uint64 {
	if s == "" || s == "undefined" {
		return 0
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// JsEscape escapes a string for safe embedding in JavaScript source.
func JsEscape(s string) string {
	return strconv.Quote(s)
}
