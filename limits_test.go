package cloudscript

import (
	"testing"
	"time"

	"github.com/openbaas/cloudscript/internal/core"
)

func TestResolveLimits(t *testing.T) {
	cfg := core.EngineConfig{DefaultTimeoutSeconds: 10, DefaultMemoryMB: 256}

	tests := []struct {
		name        string
		def         core.ScriptDefinition
		wantTimeout time.Duration
		wantMemory  int
	}{
		{
			name:        "defaults when unset",
			def:         core.ScriptDefinition{},
			wantTimeout: 10 * time.Second,
			wantMemory:  256,
		},
		{
			name:        "declared within bounds",
			def:         core.ScriptDefinition{TimeoutSeconds: 5, MemoryLimitMB: 200},
			wantTimeout: 5 * time.Second,
			wantMemory:  200,
		},
		{
			name:        "clamped to ceilings",
			def:         core.ScriptDefinition{TimeoutSeconds: 600, MemoryLimitMB: 4096},
			wantTimeout: core.PlatformMaxTimeoutSeconds * time.Second,
			wantMemory:  core.PlatformMaxMemoryMB,
		},
		{
			name:        "clamped to floors",
			def:         core.ScriptDefinition{TimeoutSeconds: -3, MemoryLimitMB: 1},
			wantTimeout: core.PlatformMinTimeoutSeconds * time.Second,
			wantMemory:  core.PlatformMinMemoryMB,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			timeout, memory := resolveLimits(cfg, &tt.def)
			if timeout != tt.wantTimeout {
				t.Errorf("timeout = %v, want %v", timeout, tt.wantTimeout)
			}
			if memory != tt.wantMemory {
				t.Errorf("memory = %d, want %d", memory, tt.wantMemory)
			}
		})
	}
}

func TestEngineConfigWithDefaults(t *testing.T) {
	cfg := core.EngineConfig{}.WithDefaults()
	if cfg.DefaultTimeoutSeconds != 10 || cfg.DefaultMemoryMB != 256 || cfg.MaxScriptSizeKB != 512 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}

	custom := core.EngineConfig{DefaultTimeoutSeconds: 3}.WithDefaults()
	if custom.DefaultTimeoutSeconds != 3 {
		t.Errorf("explicit timeout overwritten: %+v", custom)
	}
}
