package cloudscript

import (
	"time"

	"github.com/openbaas/cloudscript/internal/core"
)

// resolveLimits turns a definition's advisory limits into the effective
// session limits: defaults fill the gaps, platform ceilings clamp the rest.
func resolveLimits(cfg core.EngineConfig, def *core.ScriptDefinition) (timeout time.Duration, memoryMB int) {
	seconds := def.TimeoutSeconds
	if seconds == 0 {
		seconds = cfg.DefaultTimeoutSeconds
	}
	if seconds > core.PlatformMaxTimeoutSeconds {
		seconds = core.PlatformMaxTimeoutSeconds
	}
	if seconds < core.PlatformMinTimeoutSeconds {
		seconds = core.PlatformMinTimeoutSeconds
	}

	memoryMB = def.MemoryLimitMB
	if memoryMB == 0 {
		memoryMB = cfg.DefaultMemoryMB
	}
	if memoryMB > core.PlatformMaxMemoryMB {
		memoryMB = core.PlatformMaxMemoryMB
	}
	if memoryMB < core.PlatformMinMemoryMB {
		memoryMB = core.PlatformMinMemoryMB
	}

	return time.Duration(seconds) * time.Second, memoryMB
}
