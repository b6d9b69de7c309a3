package bridge

import (
	"fmt"
	"time"

	"github.com/openbaas/cloudscript/internal/core"
	"github.com/openbaas/cloudscript/internal/eventloop"
)

// SetupTimers installs setTimeout/clearTimeout backed by the session's event
// loop. Delays count against the invocation's wall-clock budget; there is no
// setInterval, a repeating timer has no place in a bounded invocation.
func SetupTimers(rt core.JSRuntime, el *eventloop.EventLoop) error {
	if err := rt.RegisterFunc("__timer_set", func(delayMs int) int {
		if delayMs < 0 {
			delayMs = 0
		}
		return el.RegisterTimer(time.Duration(delayMs) * time.Millisecond)
	}); err != nil {
		return fmt.Errorf("registering __timer_set: %w", err)
	}

	if err := rt.RegisterFunc("__timer_clear", func(id int) {
		el.ClearTimer(id)
	}); err != nil {
		return fmt.Errorf("registering __timer_clear: %w", err)
	}

	timersJS := `
globalThis.__timerCallbacks = {};

globalThis.setTimeout = function(fn, delay) {
	if (typeof fn !== "function") throw new TypeError("setTimeout callback must be a function");
	var args = Array.prototype.slice.call(arguments, 2);
	var id = __timer_set(delay | 0);
	globalThis.__timerCallbacks[id] = { fn: fn, args: args };
	return id;
};

globalThis.clearTimeout = function(id) {
	delete globalThis.__timerCallbacks[id | 0];
	__timer_clear(id | 0);
};
`
	if err := rt.Eval(timersJS); err != nil {
		return fmt.Errorf("evaluating timers JS: %w", err)
	}
	return nil
}
