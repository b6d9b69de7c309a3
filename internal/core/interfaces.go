package core

import "context"

// Registry resolves script definitions. Owned by an external collaborator;
// the engine only reads the currently published (or, for developer test
// calls, latest) definition.
type Registry interface {
	Lookup(ctx context.Context, titleID, functionName string, requirePublished bool) (*ScriptDefinition, error)
}

// PlayerStore is the player-state collaborator behind the capability bridge.
// Reads are idempotent. Writes are atomic at the store layer: in particular
// SubtractCurrency must be a conditional decrement that fails with
// ErrInsufficientFunds rather than driving a balance negative, since
// concurrent sessions against the same player are never serialized by the
// engine.
type PlayerStore interface {
	GetProfile(ctx context.Context, titleID, playerID string) (*PlayerProfile, error)
	SetCustomData(ctx context.Context, titleID, playerID string, data map[string]any) error
	GetInventory(ctx context.Context, titleID, playerID string) ([]InventoryItem, error)
	GrantItem(ctx context.Context, titleID, playerID, itemID string, catalogVersion int) (*InventoryItem, error)

	// AddCurrency and SubtractCurrency return the balance after the update.
	AddCurrency(ctx context.Context, titleID, playerID, code string, amount int64) (int64, error)
	SubtractCurrency(ctx context.Context, titleID, playerID, code string, amount int64) (int64, error)

	// UpdateStatistics increments each named statistic by its delta.
	// Semantics are additive per key, never replace.
	UpdateStatistics(ctx context.Context, titleID, playerID string, deltas map[string]float64) error
}

// AuditStore persists execution records. Appends are best-effort from the
// engine's point of view: a failed append never fails the invocation.
type AuditStore interface {
	Append(ctx context.Context, rec *ExecutionRecord) error
}
