package core

import "time"

// ScriptDefinition is a title's script function as stored by the registry.
// Resource limits declared here are advisory; the engine clamps them to
// platform ceilings before a session is created. Immutable once a session
// has been spawned from it.
type ScriptDefinition struct {
	TitleID        string
	FunctionName   string
	Source         string
	Version        int
	Published      bool
	TimeoutSeconds int
	MemoryLimitMB  int
}

// InvocationContext carries the per-call identity and argument bundle.
// PlayerID is empty for developer test calls made without a player. An
// InvocationContext is consumed by exactly one session and never reused.
type InvocationContext struct {
	TitleID      string
	PlayerID     string
	FunctionName string
	Args         map[string]any
}

// LogEntry is a single log.info/warn/error line captured from guest code.
type LogEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// ExecutionResult is the outcome of one invocation. Produced exactly once
// per session and immutable after creation. Guest failures (thrown errors,
// failed bridge calls, timeouts) are represented here, never as Go errors.
type ExecutionResult struct {
	Success         bool       `json:"success"`
	Result          any        `json:"result,omitempty"`
	Error           string     `json:"error,omitempty"`
	ExecutionTimeMs int64      `json:"executionTimeMs"`
	Logs            []LogEntry `json:"logs,omitempty"`
}

// ExecutionRecord is the append-only audit row written for every invocation.
// Retention and expiry are the audit store's concern, not the engine's.
type ExecutionRecord struct {
	ID              string
	TitleID         string
	FunctionName    string
	PlayerID        string
	ArgsJSON        string
	ResultJSON      string
	Error           string
	ExecutionTimeMs int64
	CreatedAt       time.Time
}

// PlayerProfile is the read-only projection returned by getPlayerData.
type PlayerProfile struct {
	PlayerID        string             `json:"playerId"`
	DisplayName     string             `json:"displayName"`
	Level           int                `json:"level"`
	Experience      int64              `json:"experience"`
	Data            map[string]any     `json:"data"`
	Statistics      map[string]float64 `json:"statistics"`
	VirtualCurrency map[string]int64   `json:"virtualCurrency"`
}

// InventoryItem is one granted item instance in a player's inventory.
type InventoryItem struct {
	InstanceID     string    `json:"instanceId"`
	ItemID         string    `json:"itemId"`
	CatalogVersion int       `json:"catalogVersion"`
	GrantedAt      time.Time `json:"grantedAt"`
}
