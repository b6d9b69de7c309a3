package cloudscript

import (
	"context"
	"fmt"
	"testing"

	"github.com/openbaas/cloudscript/internal/core"
)

type failingAudit struct {
	calls int
}

func (f *failingAudit) Append(ctx context.Context, rec *core.ExecutionRecord) error {
	f.calls++
	return fmt.Errorf("disk full")
}

type capturingAudit struct {
	recs []*core.ExecutionRecord
}

func (c *capturingAudit) Append(ctx context.Context, rec *core.ExecutionRecord) error {
	c.recs = append(c.recs, rec)
	return nil
}

func TestRecorderBuildsRecord(t *testing.T) {
	audit := &capturingAudit{}
	r := &recorder{audit: audit}

	inv := &core.InvocationContext{
		TitleID: "t1", PlayerID: "p1", FunctionName: "main",
		Args: map[string]any{"n": 1},
	}
	result := &core.ExecutionResult{
		Success: true, Result: map[string]any{"ok": true}, ExecutionTimeMs: 12,
	}
	r.record(&core.ScriptDefinition{TitleID: "t1"}, inv, result)

	if len(audit.recs) != 1 {
		t.Fatalf("got %d records, want 1", len(audit.recs))
	}
	rec := audit.recs[0]
	if rec.TitleID != "t1" || rec.PlayerID != "p1" || rec.FunctionName != "main" {
		t.Errorf("record identity = %+v", rec)
	}
	if rec.ResultJSON != `{"ok":true}` {
		t.Errorf("result JSON = %q", rec.ResultJSON)
	}
	if rec.ArgsJSON != `{"n":1}` {
		t.Errorf("args JSON = %q", rec.ArgsJSON)
	}
	if rec.ExecutionTimeMs != 12 {
		t.Errorf("execution time = %d", rec.ExecutionTimeMs)
	}
}

func TestRecorderSwallowsAppendFailure(t *testing.T) {
	audit := &failingAudit{}
	r := &recorder{audit: audit}

	inv := &core.InvocationContext{TitleID: "t1", FunctionName: "main"}
	r.record(&core.ScriptDefinition{}, inv, &core.ExecutionResult{Success: true})

	if audit.calls != 1 {
		t.Fatalf("append called %d times, want 1", audit.calls)
	}
}

func TestRecorderNilAuditIsNoop(t *testing.T) {
	r := &recorder{}
	r.record(&core.ScriptDefinition{}, &core.InvocationContext{}, &core.ExecutionResult{})
}
