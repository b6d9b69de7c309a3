package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openbaas/cloudscript/internal/core"
)

// MemoryPlayers is an in-memory core.PlayerStore for tests and embedding
// without a database. Semantics mirror the SQLite store, including the
// conditional currency decrement.
type MemoryPlayers struct {
	mu        sync.Mutex
	profiles  map[string]*core.PlayerProfile // key: titleID + "/" + playerID
	inventory map[string][]core.InventoryItem
}

var _ core.PlayerStore = (*MemoryPlayers)(nil)

// NewMemoryPlayers creates an empty in-memory player store.
func NewMemoryPlayers() *MemoryPlayers {
	return &MemoryPlayers{
		profiles:  make(map[string]*core.PlayerProfile),
		inventory: make(map[string][]core.InventoryItem),
	}
}

func playerKey(titleID, playerID string) string { return titleID + "/" + playerID }

// Seed installs a profile, overwriting any existing one.
func (m *MemoryPlayers) Seed(titleID string, prof *core.PlayerProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *prof
	if cp.Data == nil {
		cp.Data = map[string]any{}
	}
	if cp.Statistics == nil {
		cp.Statistics = map[string]float64{}
	}
	if cp.VirtualCurrency == nil {
		cp.VirtualCurrency = map[string]int64{}
	}
	m.profiles[playerKey(titleID, prof.PlayerID)] = &cp
}

// ensure returns the profile for the key, creating a blank one. Caller holds
// the lock. Used by the write paths, which create rows on demand.
func (m *MemoryPlayers) ensure(titleID, playerID string) *core.PlayerProfile {
	key := playerKey(titleID, playerID)
	prof, ok := m.profiles[key]
	if !ok {
		prof = &core.PlayerProfile{
			PlayerID:        playerID,
			Data:            map[string]any{},
			Statistics:      map[string]float64{},
			VirtualCurrency: map[string]int64{},
		}
		m.profiles[key] = prof
	}
	return prof
}

func (m *MemoryPlayers) GetProfile(ctx context.Context, titleID, playerID string) (*core.PlayerProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	prof, ok := m.profiles[playerKey(titleID, playerID)]
	if !ok {
		return nil, core.ErrPlayerNotFound
	}
	// Deep copy through JSON so callers cannot mutate stored state.
	data, err := json.Marshal(prof)
	if err != nil {
		return nil, err
	}
	var cp core.PlayerProfile
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (m *MemoryPlayers) SetCustomData(ctx context.Context, titleID, playerID string, data map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var cp map[string]any
	if err := json.Unmarshal(raw, &cp); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(titleID, playerID).Data = cp
	return nil
}

func (m *MemoryPlayers) GetInventory(ctx context.Context, titleID, playerID string) ([]core.InventoryItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.inventory[playerKey(titleID, playerID)]
	out := make([]core.InventoryItem, len(items))
	copy(out, items)
	return out, nil
}

func (m *MemoryPlayers) GrantItem(ctx context.Context, titleID, playerID, itemID string, catalogVersion int) (*core.InventoryItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	item := core.InventoryItem{
		InstanceID:     uuid.NewString(),
		ItemID:         itemID,
		CatalogVersion: catalogVersion,
		GrantedAt:      time.Now().UTC(),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := playerKey(titleID, playerID)
	m.inventory[key] = append(m.inventory[key], item)
	return &item, nil
}

func (m *MemoryPlayers) AddCurrency(ctx context.Context, titleID, playerID, code string, amount int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	prof := m.ensure(titleID, playerID)
	prof.VirtualCurrency[code] += amount
	return prof.VirtualCurrency[code], nil
}

func (m *MemoryPlayers) SubtractCurrency(ctx context.Context, titleID, playerID, code string, amount int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	prof, ok := m.profiles[playerKey(titleID, playerID)]
	if !ok || prof.VirtualCurrency[code] < amount {
		return 0, core.ErrInsufficientFunds
	}
	prof.VirtualCurrency[code] -= amount
	return prof.VirtualCurrency[code], nil
}

func (m *MemoryPlayers) UpdateStatistics(ctx context.Context, titleID, playerID string, deltas map[string]float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	prof := m.ensure(titleID, playerID)
	for name, delta := range deltas {
		prof.Statistics[name] += delta
	}
	return nil
}
