package core

// Platform-wide hard ceilings. Tenant-declared limits are advisory inputs;
// these caps bound every session regardless of registry configuration, so no
// title can request an unbounded sandbox.
const (
	PlatformMaxTimeoutSeconds = 30
	PlatformMinTimeoutSeconds = 1
	PlatformMaxMemoryMB       = 512
	PlatformMinMemoryMB       = 128
)

// EngineConfig holds runtime configuration for the script engine.
// Zero values take the platform defaults below.
type EngineConfig struct {
	DefaultTimeoutSeconds int // applied when a definition declares no timeout
	DefaultMemoryMB       int // applied when a definition declares no memory limit
	MaxScriptSizeKB       int // max guest source size accepted by the engine
}

// WithDefaults returns the config with zero values replaced.
func (c EngineConfig) WithDefaults() EngineConfig {
	if c.DefaultTimeoutSeconds <= 0 {
		c.DefaultTimeoutSeconds = 10
	}
	if c.DefaultMemoryMB <= 0 {
		c.DefaultMemoryMB = 256
	}
	if c.MaxScriptSizeKB <= 0 {
		c.MaxScriptSizeKB = 512
	}
	return c
}
