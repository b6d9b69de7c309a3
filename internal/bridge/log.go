package bridge

import (
	"fmt"

	"github.com/openbaas/cloudscript/internal/core"
)

// SetupLog registers the log capture function and the __makeLog factory.
// Entries land in the invocation's log buffer, never on host stdout.
func SetupLog(rt core.JSRuntime) error {
	if err := rt.RegisterFunc("__cs_log", func(callIDStr, level, message string) {
		core.AddLog(core.ParseCallID(callIDStr), level, message)
	}); err != nil {
		return fmt.Errorf("registering __cs_log: %w", err)
	}

	logFactoryJS := `
globalThis.__cs_fmt = function(args) {
	var parts = [];
	for (var i = 0; i < args.length; i++) {
		var a = args[i];
		if (typeof a === "string") { parts.push(a); continue; }
		if (a instanceof Error) { parts.push(a.name + ": " + a.message); continue; }
		try { parts.push(JSON.stringify(a)); } catch (e) { parts.push(String(a)); }
	}
	return parts.join(" ");
};

globalThis.__makeLog = function() {
	var id = String(globalThis.__callID);
	var fmt = globalThis.__cs_fmt;
	return {
		info: function() { __cs_log(id, "info", fmt(arguments)); },
		warn: function() { __cs_log(id, "warn", fmt(arguments)); },
		error: function() { __cs_log(id, "error", fmt(arguments)); }
	};
};
`
	if err := rt.Eval(logFactoryJS); err != nil {
		return fmt.Errorf("evaluating log factory JS: %w", err)
	}
	return nil
}
