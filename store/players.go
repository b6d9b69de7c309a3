package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openbaas/cloudscript/internal/core"
)

// PlayerStore implements core.PlayerStore on the shared SQLite database.
// Currency, statistic, and inventory writes create their rows on demand; a
// player does not need a profile row before scripts can mutate their state.
type PlayerStore struct {
	db *sql.DB
}

var _ core.PlayerStore = (*PlayerStore)(nil)

// GetProfile loads the full player projection: profile row, statistics, and
// currency balances. Returns core.ErrPlayerNotFound if no profile row exists.
func (p *PlayerStore) GetProfile(ctx context.Context, titleID, playerID string) (*core.PlayerProfile, error) {
	var prof core.PlayerProfile
	var dataJSON string
	err := p.db.QueryRowContext(ctx,
		`SELECT player_id, display_name, level, experience, data_json
		 FROM player_profiles WHERE title_id = ? AND player_id = ?`,
		titleID, playerID,
	).Scan(&prof.PlayerID, &prof.DisplayName, &prof.Level, &prof.Experience, &dataJSON)
	if err == sql.ErrNoRows {
		return nil, core.ErrPlayerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading profile: %w", err)
	}
	if err := json.Unmarshal([]byte(dataJSON), &prof.Data); err != nil {
		prof.Data = map[string]any{}
	}

	prof.Statistics = map[string]float64{}
	rows, err := p.db.QueryContext(ctx,
		`SELECT name, value FROM player_statistics WHERE title_id = ? AND player_id = ?`,
		titleID, playerID)
	if err != nil {
		return nil, fmt.Errorf("loading statistics: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var value float64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		prof.Statistics[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prof.VirtualCurrency = map[string]int64{}
	crows, err := p.db.QueryContext(ctx,
		`SELECT code, balance FROM player_currencies WHERE title_id = ? AND player_id = ?`,
		titleID, playerID)
	if err != nil {
		return nil, fmt.Errorf("loading currencies: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var code string
		var balance int64
		if err := crows.Scan(&code, &balance); err != nil {
			return nil, err
		}
		prof.VirtualCurrency[code] = balance
	}
	return &prof, crows.Err()
}

// SetCustomData replaces the player's custom data blob, creating the profile
// row if needed.
func (p *PlayerStore) SetCustomData(ctx context.Context, titleID, playerID string, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding player data: %w", err)
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO player_profiles (title_id, player_id, data_json) VALUES (?, ?, ?)
		 ON CONFLICT (title_id, player_id) DO UPDATE SET data_json = excluded.data_json`,
		titleID, playerID, string(dataJSON))
	if err != nil {
		return fmt.Errorf("saving player data: %w", err)
	}
	return nil
}

// UpsertProfile writes the identity fields of a profile. Used by seeding and
// admin paths, not by the capability bridge.
func (p *PlayerStore) UpsertProfile(ctx context.Context, titleID string, prof *core.PlayerProfile) error {
	data := prof.Data
	if data == nil {
		data = map[string]any{}
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding player data: %w", err)
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO player_profiles (title_id, player_id, display_name, level, experience, data_json)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (title_id, player_id) DO UPDATE SET
			display_name = excluded.display_name,
			level = excluded.level,
			experience = excluded.experience,
			data_json = excluded.data_json`,
		titleID, prof.PlayerID, prof.DisplayName, prof.Level, prof.Experience, string(dataJSON))
	if err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}
	return nil
}

// GetInventory lists the player's item instances, oldest grant first.
func (p *PlayerStore) GetInventory(ctx context.Context, titleID, playerID string) ([]core.InventoryItem, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT instance_id, item_id, catalog_version, granted_at
		 FROM player_inventory WHERE title_id = ? AND player_id = ?
		 ORDER BY granted_at, instance_id`,
		titleID, playerID)
	if err != nil {
		return nil, fmt.Errorf("loading inventory: %w", err)
	}
	defer rows.Close()

	var items []core.InventoryItem
	for rows.Next() {
		var it core.InventoryItem
		if err := rows.Scan(&it.InstanceID, &it.ItemID, &it.CatalogVersion, &it.GrantedAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GrantItem inserts a new item instance and returns it. Every grant creates
// a distinct instance, even for the same item ID.
func (p *PlayerStore) GrantItem(ctx context.Context, titleID, playerID, itemID string, catalogVersion int) (*core.InventoryItem, error) {
	item := &core.InventoryItem{
		InstanceID:     uuid.NewString(),
		ItemID:         itemID,
		CatalogVersion: catalogVersion,
		GrantedAt:      time.Now().UTC(),
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO player_inventory (instance_id, title_id, player_id, item_id, catalog_version, granted_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		item.InstanceID, titleID, playerID, item.ItemID, item.CatalogVersion, item.GrantedAt)
	if err != nil {
		return nil, fmt.Errorf("granting item: %w", err)
	}
	return item, nil
}

// AddCurrency increments a balance, creating it at zero first, and returns
// the new balance.
func (p *PlayerStore) AddCurrency(ctx context.Context, titleID, playerID, code string, amount int64) (int64, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO player_currencies (title_id, player_id, code, balance) VALUES (?, ?, ?, ?)
		 ON CONFLICT (title_id, player_id, code) DO UPDATE SET balance = balance + excluded.balance`,
		titleID, playerID, code, amount)
	if err != nil {
		return 0, fmt.Errorf("adding currency: %w", err)
	}

	var balance int64
	if err := tx.QueryRowContext(ctx,
		`SELECT balance FROM player_currencies WHERE title_id = ? AND player_id = ? AND code = ?`,
		titleID, playerID, code).Scan(&balance); err != nil {
		return 0, err
	}
	return balance, tx.Commit()
}

// SubtractCurrency decrements a balance only if it covers the amount. The
// check and the decrement are one conditional UPDATE, so concurrent sessions
// cannot drive a balance negative; a shortfall is core.ErrInsufficientFunds
// and leaves the row untouched.
func (p *PlayerStore) SubtractCurrency(ctx context.Context, titleID, playerID, code string, amount int64) (int64, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE player_currencies SET balance = balance - ?
		 WHERE title_id = ? AND player_id = ? AND code = ? AND balance >= ?`,
		amount, titleID, playerID, code, amount)
	if err != nil {
		return 0, fmt.Errorf("subtracting currency: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, core.ErrInsufficientFunds
	}

	var balance int64
	if err := tx.QueryRowContext(ctx,
		`SELECT balance FROM player_currencies WHERE title_id = ? AND player_id = ? AND code = ?`,
		titleID, playerID, code).Scan(&balance); err != nil {
		return 0, err
	}
	return balance, tx.Commit()
}

// UpdateStatistics applies each delta as an increment, creating missing
// statistics at the delta value.
func (p *PlayerStore) UpdateStatistics(ctx context.Context, titleID, playerID string, deltas map[string]float64) error {
	if len(deltas) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for name, delta := range deltas {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO player_statistics (title_id, player_id, name, value) VALUES (?, ?, ?, ?)
			 ON CONFLICT (title_id, player_id, name) DO UPDATE SET value = value + excluded.value`,
			titleID, playerID, name, delta)
		if err != nil {
			return fmt.Errorf("updating statistic %q: %w", name, err)
		}
	}
	return tx.Commit()
}
