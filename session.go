package cloudscript

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/openbaas/cloudscript/internal/bridge"
	"github.com/openbaas/cloudscript/internal/core"
	"github.com/openbaas/cloudscript/internal/eventloop"
	"github.com/openbaas/cloudscript/internal/sandbox"
)

// sessionPhase tracks one sandbox through its lifecycle. Phases only move
// forward; a disposed session is never reused.
type sessionPhase int

const (
	phaseCreated sessionPhase = iota
	phaseBridged
	phaseRunning
	phaseCompleted
	phaseFailed
	phaseTimedOut
	phaseDisposed
)

// outcome is the metrics label for a terminal phase.
func (p sessionPhase) outcome() string {
	switch p {
	case phaseCompleted:
		return "completed"
	case phaseTimedOut:
		return "timed_out"
	default:
		return "failed"
	}
}

// session owns one disposable sandbox for one invocation. Created, bridged,
// run, and torn down on a single goroutine; only the watchdog touches it
// from outside, through Interrupt.
type session struct {
	rt      *sandbox.Runtime
	loop    *eventloop.EventLoop
	players core.PlayerStore
	inv     *core.InvocationContext
	timeout time.Duration

	phase       sessionPhase
	terminal    sessionPhase
	bridgeCalls int
}

// newSession allocates a fresh sandbox with the given heap ceiling and mounts
// the capability bridge. Failures here are engine faults, reported as
// SetupError; guest code has not run yet.
func newSession(players core.PlayerStore, inv *core.InvocationContext, timeout time.Duration, memoryMB int) (*session, error) {
	rt, err := sandbox.New(memoryMB)
	if err != nil {
		return nil, &core.SetupError{Err: err}
	}

	s := &session{
		rt:      rt,
		loop:    eventloop.New(),
		players: players,
		inv:     inv,
		timeout: timeout,
		phase:   phaseCreated,
	}

	if err := s.mount(); err != nil {
		rt.Close()
		return nil, &core.SetupError{Err: err}
	}
	s.phase = phaseBridged
	return s, nil
}

func (s *session) mount() error {
	if err := bridge.SetupServer(s.rt); err != nil {
		return err
	}
	if err := bridge.SetupLog(s.rt); err != nil {
		return err
	}
	if err := bridge.SetupTimers(s.rt, s.loop); err != nil {
		return err
	}
	if err := s.rt.Eval("globalThis.handlers = {};"); err != nil {
		return fmt.Errorf("initializing handlers object: %w", err)
	}
	return nil
}

// run evaluates the prepared source and invokes the named handler, returning
// the invocation's result. Guest failures of every kind land in the result;
// run never returns a Go error. The sandbox is disposed before run returns.
func (s *session) run(parent context.Context, source string) (result *core.ExecutionResult) {
	start := time.Now()
	result = &core.ExecutionResult{}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	callID := core.NewInvocationState(s.inv, s.players, ctx)

	var timedOut atomic.Bool
	watchdog := time.AfterFunc(s.timeout, func() {
		timedOut.Store(true)
		cancel()
		s.rt.Interrupt()
	})

	s.phase = phaseRunning
	s.terminal = phaseFailed

	defer func() {
		watchdog.Stop()
		if r := recover(); r != nil {
			result.Success = false
			if timedOut.Load() {
				result.Error = s.timeoutMessage()
				s.terminal = phaseTimedOut
			} else {
				result.Error = fmt.Sprintf("script panic: %v", r)
				s.terminal = phaseFailed
			}
		}
		if state := core.ClearInvocationState(callID); state != nil {
			result.Logs = state.Logs
			s.bridgeCalls = state.BridgeCalls
		}
		result.ExecutionTimeMs = time.Since(start).Milliseconds()
		s.phase = s.terminal
		s.dispose()
	}()

	if err := bridge.BuildHandlerContext(s.rt, callID, s.inv); err != nil {
		result.Error = fmt.Sprintf("preparing handler context: %v", err)
		return result
	}

	// Evaluate the guest source. This registers handlers and runs any
	// top-level statements.
	if err := s.rt.Eval(source); err != nil {
		if timedOut.Load() {
			result.Error = s.timeoutMessage()
			s.terminal = phaseTimedOut
		} else {
			result.Error = fmt.Sprintf("evaluating script: %v", err)
		}
		return result
	}

	// Invoke the handler. The result, promise or not, lands in a global
	// for the await phase.
	invokeJS := fmt.Sprintf(`globalThis.__call_result = (function() {
		var fn = globalThis.handlers ? globalThis.handlers[%s] : undefined;
		if (typeof fn !== 'function') {
			throw new Error('handler ' + %s + ' is not defined');
		}
		return fn(globalThis.__args, globalThis.__hctx);
	})();`, core.JsEscape(s.inv.FunctionName), core.JsEscape(s.inv.FunctionName))

	if err := s.rt.Eval(invokeJS); err != nil {
		if timedOut.Load() {
			result.Error = s.timeoutMessage()
			s.terminal = phaseTimedOut
		} else {
			result.Error = fmt.Sprintf("script error: %v", err)
		}
		return result
	}

	s.rt.RunMicrotasks()

	deadline := start.Add(s.timeout)
	if s.loop.HasPending() {
		s.loop.Drain(s.rt, deadline)
	}

	if err := bridge.Await(s.rt, "__call_result", deadline, s.loop); err != nil {
		if timedOut.Load() || time.Now().After(deadline) {
			result.Error = s.timeoutMessage()
			s.terminal = phaseTimedOut
		} else {
			result.Error = fmt.Sprintf("script error: %v", err)
		}
		return result
	}

	jsonStr, err := s.rt.EvalString(`(function() {
		var r = globalThis.__call_result;
		delete globalThis.__call_result;
		if (r === undefined || r === null) return "null";
		var s = JSON.stringify(r);
		return s === undefined ? "null" : s;
	})()`)
	if err != nil {
		if timedOut.Load() {
			result.Error = s.timeoutMessage()
			s.terminal = phaseTimedOut
		} else {
			result.Error = fmt.Sprintf("serializing script result: %v", err)
		}
		return result
	}

	if jsonStr != "null" {
		var value any
		if err := json.Unmarshal([]byte(jsonStr), &value); err != nil {
			result.Error = fmt.Sprintf("decoding script result: %v", err)
			return result
		}
		result.Result = value
	}

	result.Success = true
	s.terminal = phaseCompleted
	return result
}

func (s *session) timeoutMessage() string {
	return fmt.Sprintf("%s (limit: %v)", core.ErrExecutionTimeout.Error(), s.timeout)
}

// dispose closes the sandbox. Idempotent.
func (s *session) dispose() {
	if s.phase == phaseDisposed {
		return
	}
	if s.rt != nil {
		s.rt.Close()
	}
	s.phase = phaseDisposed
}
