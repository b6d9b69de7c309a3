// Package sandbox wraps the QuickJS engine behind a small runtime surface.
// Each Runtime is one disposable interpreter: no state survives Close, and
// nothing is shared between runtimes.
package sandbox

import (
	"fmt"

	"github.com/openbaas/cloudscript/internal/core"
	"modernc.org/quickjs"
)

// Runtime is a single QuickJS interpreter instance. Not safe for concurrent
// use; a session owns its runtime for the whole invocation.
type Runtime struct {
	vm *quickjs.VM
}

var _ core.JSRuntime = (*Runtime)(nil)

// New creates a fresh interpreter with the given heap ceiling.
func New(memoryLimitMB int) (*Runtime, error) {
	vm, err := quickjs.NewVM()
	if err != nil {
		return nil, fmt.Errorf("creating quickjs vm: %w", err)
	}
	if memoryLimitMB > 0 {
		vm.SetMemoryLimit(uintptr(memoryLimitMB) << 20)
	}
	return &Runtime{vm: vm}, nil
}

// Close destroys the interpreter and releases its heap.
func (r *Runtime) Close() error {
	return r.vm.Close()
}

// Interrupt aborts the currently running script. Safe to call from another
// goroutine; this is the watchdog's lever.
func (r *Runtime) Interrupt() {
	r.vm.Interrupt()
}

// Eval runs JavaScript for its side effects, discarding the result.
func (r *Runtime) Eval(js string) error {
	v, err := r.vm.EvalValue(js, quickjs.EvalGlobal)
	if err != nil {
		return err
	}
	v.Free()
	return nil
}

// EvalString runs JavaScript and stringifies whatever comes back.
func (r *Runtime) EvalString(js string) (string, error) {
	result, err := r.vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return "", err
	}
	if result == nil {
		return "", nil
	}
	return fmt.Sprint(result), nil
}

// EvalBool runs JavaScript expecting a boolean result.
func (r *Runtime) EvalBool(js string) (bool, error) {
	result, err := r.vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expected bool, got %T", result)
	}
	return b, nil
}

// EvalInt runs JavaScript expecting a numeric result. QuickJS hands back
// small integers as int and everything else as float64.
func (r *Runtime) EvalInt(js string) (int, error) {
	result, err := r.vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return 0, err
	}
	switch v := result.(type) {
	case int:
		return v, nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("expected int, got %T", result)
	}
}

// RegisterFunc exposes a Go function as a JavaScript global. The wrapper
// surfaces a (T, error) return as a two-element JS array, so a shim unwraps
// it: the value comes back plain and a non-nil error throws a TypeError.
func (r *Runtime) RegisterFunc(name string, fn any) error {
	rawName := "__raw_" + name
	if err := r.vm.RegisterFunc(rawName, fn, false); err != nil {
		return err
	}
	wrapJS := fmt.Sprintf(`(function() {
		var raw = globalThis[%q];
		globalThis[%q] = function() {
			var r = raw.apply(this, arguments);
			if (Array.isArray(r)) {
				if (r[1] !== null && r[1] !== undefined) throw new TypeError("calling %s: " + r[1]);
				return r[0];
			}
			return r;
		};
		delete globalThis[%q];
	})()`, rawName, name, name, rawName)
	return r.Eval(wrapJS)
}

// SetGlobal sets a global property on the interpreter's global object.
func (r *Runtime) SetGlobal(name string, value any) error {
	atom, err := r.vm.NewAtom(name)
	if err != nil {
		return fmt.Errorf("creating atom %q: %w", name, err)
	}
	glob := r.vm.GlobalObject()
	defer glob.Free()
	return glob.SetProperty(atom, value)
}

// RunMicrotasks pumps the QuickJS microtask queue until it is empty,
// returning the number of jobs executed.
func (r *Runtime) RunMicrotasks() int {
	return executePendingJobs(r.vm)
}
