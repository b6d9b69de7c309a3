package cloudscript

import (
	"context"
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"
	"github.com/openbaas/cloudscript/internal/core"
)

// auditWriteTimeout bounds the audit append so a slow store cannot hold the
// invocation path.
const auditWriteTimeout = 5 * time.Second

// recorder turns finished invocations into audit records. Appends are
// best-effort: a failed write is logged and counted, never surfaced to the
// caller or the guest.
type recorder struct {
	audit   core.AuditStore
	logger  *log.Logger
	metrics *Metrics
}

func (r *recorder) record(def *core.ScriptDefinition, inv *core.InvocationContext, result *core.ExecutionResult) {
	if r.audit == nil {
		return
	}

	rec := &core.ExecutionRecord{
		TitleID:         inv.TitleID,
		FunctionName:    inv.FunctionName,
		PlayerID:        inv.PlayerID,
		ArgsJSON:        ArgsJSON(inv),
		Error:           result.Error,
		ExecutionTimeMs: result.ExecutionTimeMs,
	}
	if result.Success && result.Result != nil {
		if data, err := json.Marshal(result.Result); err == nil {
			rec.ResultJSON = string(data)
		}
	}

	// The session context may already be cancelled (timeout); the record
	// still has to land.
	ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
	defer cancel()

	if err := r.audit.Append(ctx, rec); err != nil {
		r.metrics.auditFailed()
		if r.logger != nil {
			r.logger.Error("failed to persist execution record",
				"title", inv.TitleID, "function", inv.FunctionName, "err", err)
		}
	}
}
