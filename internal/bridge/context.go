package bridge

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/openbaas/cloudscript/internal/core"
)

// BuildHandlerContext injects the per-invocation globals: the call ID, the
// decoded argument bundle, and the handler context object with its server
// and log capabilities. Must run after SetupServer and SetupLog.
func BuildHandlerContext(rt core.JSRuntime, callID uint64, inv *core.InvocationContext) error {
	if err := rt.SetGlobal("__callID", strconv.FormatUint(callID, 10)); err != nil {
		return fmt.Errorf("setting call ID: %w", err)
	}

	args := inv.Args
	if args == nil {
		args = map[string]any{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encoding handler args: %w", err)
	}

	setupJS := fmt.Sprintf(`
globalThis.__args = JSON.parse(%s);
globalThis.__hctx = {
	playerId: %s,
	titleId: %s,
	functionName: %s,
	server: globalThis.__makeServer(),
	log: globalThis.__makeLog()
};
`,
		core.JsEscape(string(argsJSON)),
		core.JsEscape(inv.PlayerID),
		core.JsEscape(inv.TitleID),
		core.JsEscape(inv.FunctionName),
	)
	if err := rt.Eval(setupJS); err != nil {
		return fmt.Errorf("building handler context: %w", err)
	}
	return nil
}
