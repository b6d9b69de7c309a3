package cloudscript

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/openbaas/cloudscript/internal/core"
)

// Engine executes tenant scripts in disposable sandboxes. One Engine serves
// all titles; every invocation gets its own interpreter, so nothing leaks
// between calls and a crashed script takes only its own session down.
type Engine struct {
	cfg      core.EngineConfig
	registry core.Registry
	players  core.PlayerStore
	audit    core.AuditStore
	logger   *log.Logger
	metrics  *Metrics
	recorder *recorder
}

// Deps bundles the engine's collaborators. Registry is required only for
// Invoke; Audit, Logger, and Metrics are optional.
type Deps struct {
	Registry core.Registry
	Players  core.PlayerStore
	Audit    core.AuditStore
	Logger   *log.Logger
	Metrics  *Metrics
}

// New creates an Engine. Players is required; scripts without a player-state
// backend have nothing to act on.
func New(cfg EngineConfig, deps Deps) (*Engine, error) {
	if deps.Players == nil {
		return nil, fmt.Errorf("player store is required")
	}
	e := &Engine{
		cfg:      cfg.WithDefaults(),
		registry: deps.Registry,
		players:  deps.Players,
		audit:    deps.Audit,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
	}
	e.recorder = &recorder{audit: deps.Audit, logger: deps.Logger, metrics: deps.Metrics}
	return e, nil
}

// Execute runs one invocation of the given definition. The returned Go error
// is non-nil only for engine faults (SetupError); everything guest code does
// wrong, including timing out, is reported inside the ExecutionResult.
func (e *Engine) Execute(ctx context.Context, def *core.ScriptDefinition, inv *core.InvocationContext) (*core.ExecutionResult, error) {
	if def == nil {
		return nil, core.Setupf("script definition must not be nil")
	}
	if inv == nil {
		return nil, core.Setupf("invocation context must not be nil")
	}
	if inv.FunctionName == "" {
		inv.FunctionName = def.FunctionName
	}
	if inv.TitleID == "" {
		inv.TitleID = def.TitleID
	}

	timeout, memoryMB := resolveLimits(e.cfg, def)
	start := time.Now()

	source, err := PrepareSource(def.Source, e.cfg.MaxScriptSizeKB)
	if err != nil {
		// A script that does not compile fails like any other guest error.
		result := &core.ExecutionResult{
			Error:           err.Error(),
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}
		e.metrics.sessionStarted()
		e.metrics.sessionFinished("failed", time.Since(start), 0)
		e.recorder.record(def, inv, result)
		return result, nil
	}

	sess, err := newSession(e.players, inv, timeout, memoryMB)
	if err != nil {
		if e.logger != nil {
			e.logger.Error("sandbox setup failed",
				"title", def.TitleID, "function", inv.FunctionName, "err", err)
		}
		return nil, err
	}

	e.metrics.sessionStarted()
	result := sess.run(ctx, source)
	e.metrics.sessionFinished(sess.terminal.outcome(), time.Since(start), sess.bridgeCalls)

	if e.logger != nil {
		if result.Success {
			e.logger.Debug("script completed",
				"title", def.TitleID, "function", inv.FunctionName,
				"ms", result.ExecutionTimeMs)
		} else {
			e.logger.Warn("script failed",
				"title", def.TitleID, "function", inv.FunctionName,
				"ms", result.ExecutionTimeMs, "err", result.Error)
		}
	}

	e.recorder.record(def, inv, result)
	return result, nil
}

// Invoke resolves the function through the registry and executes it.
// requirePublished selects the live version; developer test calls pass false
// to run the latest saved version.
func (e *Engine) Invoke(ctx context.Context, titleID, functionName string, inv *core.InvocationContext, requirePublished bool) (*core.ExecutionResult, error) {
	if e.registry == nil {
		return nil, core.Setupf("no script registry configured")
	}
	def, err := e.registry.Lookup(ctx, titleID, functionName, requirePublished)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		inv = &core.InvocationContext{}
	}
	inv.TitleID = titleID
	inv.FunctionName = functionName
	return e.Execute(ctx, def, inv)
}

// ArgsJSON encodes an invocation's arguments the way the audit log stores
// them. Exposed for callers that surface records alongside live results.
func ArgsJSON(inv *core.InvocationContext) string {
	if inv == nil || len(inv.Args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(inv.Args)
	if err != nil {
		return "{}"
	}
	return string(data)
}
