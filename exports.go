package cloudscript

import "github.com/openbaas/cloudscript/internal/core"

// Type aliases re-exporting internal/core types so downstream code can use
// cloudscript.ExecutionResult, cloudscript.ScriptDefinition, etc. without
// importing the internal package directly.

type ScriptDefinition = core.ScriptDefinition
type InvocationContext = core.InvocationContext
type ExecutionResult = core.ExecutionResult
type ExecutionRecord = core.ExecutionRecord
type LogEntry = core.LogEntry
type PlayerProfile = core.PlayerProfile
type InventoryItem = core.InventoryItem
type EngineConfig = core.EngineConfig
type Registry = core.Registry
type PlayerStore = core.PlayerStore
type AuditStore = core.AuditStore
type SetupError = core.SetupError

// Sentinel errors re-exported from core.
var (
	ErrFunctionNotFound  = core.ErrFunctionNotFound
	ErrExecutionTimeout  = core.ErrExecutionTimeout
	ErrInsufficientFunds = core.ErrInsufficientFunds
	ErrPlayerNotFound    = core.ErrPlayerNotFound
	ErrNoTargetPlayer    = core.ErrNoTargetPlayer
)

// Platform limit constants re-exported from core.
const (
	MaxTimeoutSeconds = core.PlatformMaxTimeoutSeconds
	MinTimeoutSeconds = core.PlatformMinTimeoutSeconds
	MaxMemoryMB       = core.PlatformMaxMemoryMB
	MinMemoryMB       = core.PlatformMinMemoryMB
)
