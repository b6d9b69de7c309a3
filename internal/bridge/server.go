// Package bridge wires the capability surface that guest scripts see.
// Every crossing goes through a registered Go function taking the call ID as
// its first argument and exchanging JSON strings, so guest and host never
// share object references.
package bridge

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/openbaas/cloudscript/internal/core"
)

// resolveTarget picks the effective player for a bridge call: an explicit
// target wins, otherwise the invocation's own player. No player at all is a
// guest-visible error.
func resolveTarget(state *core.InvocationState, playerID string) (string, error) {
	if playerID == "" {
		playerID = state.Inv.PlayerID
	}
	if playerID == "" {
		return "", core.ErrNoTargetPlayer
	}
	return playerID, nil
}

// parseAmount decodes a currency amount sent by __cs_amountOf. The JS side
// has already truncated and range-checked it, so anything unparsable or
// non-positive here is a guest bypassing the server object.
func parseAmount(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("currency amount must be a positive integer")
	}
	return n, nil
}

// SetupServer registers the player-state Go functions and the __makeServer
// factory that assembles the guest-facing server object from them.
func SetupServer(rt core.JSRuntime) error {
	// __cs_get_player_data(callID, playerID) -> profile JSON
	if err := rt.RegisterFunc("__cs_get_player_data", func(callIDStr, playerID string) (string, error) {
		state := core.GetInvocationState(core.ParseCallID(callIDStr))
		if state == nil || state.Players == nil {
			return "", fmt.Errorf("player state not available")
		}
		state.BridgeCalls++
		target, err := resolveTarget(state, playerID)
		if err != nil {
			return "", err
		}
		profile, err := state.Players.GetProfile(state.Ctx, state.Inv.TitleID, target)
		if err != nil {
			return "", err
		}
		data, _ := json.Marshal(profile)
		return string(data), nil
	}); err != nil {
		return fmt.Errorf("registering __cs_get_player_data: %w", err)
	}

	// __cs_set_player_data(callID, playerID, dataJSON) -> ""
	if err := rt.RegisterFunc("__cs_set_player_data", func(callIDStr, playerID, dataJSON string) (string, error) {
		state := core.GetInvocationState(core.ParseCallID(callIDStr))
		if state == nil || state.Players == nil {
			return "", fmt.Errorf("player state not available")
		}
		state.BridgeCalls++
		target, err := resolveTarget(state, playerID)
		if err != nil {
			return "", err
		}
		var data map[string]any
		if err := json.Unmarshal([]byte(dataJSON), &data); err != nil {
			return "", fmt.Errorf("player data must be an object: %w", err)
		}
		if err := state.Players.SetCustomData(state.Ctx, state.Inv.TitleID, target, data); err != nil {
			return "", err
		}
		return "", nil
	}); err != nil {
		return fmt.Errorf("registering __cs_set_player_data: %w", err)
	}

	// __cs_get_inventory(callID, playerID) -> item array JSON
	if err := rt.RegisterFunc("__cs_get_inventory", func(callIDStr, playerID string) (string, error) {
		state := core.GetInvocationState(core.ParseCallID(callIDStr))
		if state == nil || state.Players == nil {
			return "", fmt.Errorf("player state not available")
		}
		state.BridgeCalls++
		target, err := resolveTarget(state, playerID)
		if err != nil {
			return "", err
		}
		items, err := state.Players.GetInventory(state.Ctx, state.Inv.TitleID, target)
		if err != nil {
			return "", err
		}
		if items == nil {
			items = []core.InventoryItem{}
		}
		data, _ := json.Marshal(items)
		return string(data), nil
	}); err != nil {
		return fmt.Errorf("registering __cs_get_inventory: %w", err)
	}

	// __cs_grant_item(callID, playerID, itemID, catalogVersion) -> item JSON
	if err := rt.RegisterFunc("__cs_grant_item", func(callIDStr, playerID, itemID string, catalogVersion int) (string, error) {
		state := core.GetInvocationState(core.ParseCallID(callIDStr))
		if state == nil || state.Players == nil {
			return "", fmt.Errorf("player state not available")
		}
		state.BridgeCalls++
		target, err := resolveTarget(state, playerID)
		if err != nil {
			return "", err
		}
		if itemID == "" {
			return "", fmt.Errorf("itemId is required")
		}
		item, err := state.Players.GrantItem(state.Ctx, state.Inv.TitleID, target, itemID, catalogVersion)
		if err != nil {
			return "", err
		}
		data, _ := json.Marshal(item)
		return string(data), nil
	}); err != nil {
		return fmt.Errorf("registering __cs_grant_item: %w", err)
	}

	// __cs_add_currency(callID, playerID, code, amountStr) -> {"code","balance"} JSON
	// Amounts cross as decimal strings: QuickJS stores integers past int32 as
	// doubles, which the wrapper will not bind to a Go int parameter.
	if err := rt.RegisterFunc("__cs_add_currency", func(callIDStr, playerID, code, amountStr string) (string, error) {
		state := core.GetInvocationState(core.ParseCallID(callIDStr))
		if state == nil || state.Players == nil {
			return "", fmt.Errorf("player state not available")
		}
		state.BridgeCalls++
		target, err := resolveTarget(state, playerID)
		if err != nil {
			return "", err
		}
		amount, err := parseAmount(amountStr)
		if err != nil {
			return "", err
		}
		if code == "" {
			return "", fmt.Errorf("currency code is required")
		}
		balance, err := state.Players.AddCurrency(state.Ctx, state.Inv.TitleID, target, code, amount)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(`{"code":%s,"balance":%d}`, core.JsEscape(code), balance), nil
	}); err != nil {
		return fmt.Errorf("registering __cs_add_currency: %w", err)
	}

	// __cs_sub_currency(callID, playerID, code, amountStr) -> {"code","balance"} JSON
	if err := rt.RegisterFunc("__cs_sub_currency", func(callIDStr, playerID, code, amountStr string) (string, error) {
		state := core.GetInvocationState(core.ParseCallID(callIDStr))
		if state == nil || state.Players == nil {
			return "", fmt.Errorf("player state not available")
		}
		state.BridgeCalls++
		target, err := resolveTarget(state, playerID)
		if err != nil {
			return "", err
		}
		amount, err := parseAmount(amountStr)
		if err != nil {
			return "", err
		}
		if code == "" {
			return "", fmt.Errorf("currency code is required")
		}
		balance, err := state.Players.SubtractCurrency(state.Ctx, state.Inv.TitleID, target, code, amount)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(`{"code":%s,"balance":%d}`, core.JsEscape(code), balance), nil
	}); err != nil {
		return fmt.Errorf("registering __cs_sub_currency: %w", err)
	}

	// __cs_update_stats(callID, playerID, statsJSON) -> ""
	if err := rt.RegisterFunc("__cs_update_stats", func(callIDStr, playerID, statsJSON string) (string, error) {
		state := core.GetInvocationState(core.ParseCallID(callIDStr))
		if state == nil || state.Players == nil {
			return "", fmt.Errorf("player state not available")
		}
		state.BridgeCalls++
		target, err := resolveTarget(state, playerID)
		if err != nil {
			return "", err
		}
		var deltas map[string]float64
		if err := json.Unmarshal([]byte(statsJSON), &deltas); err != nil {
			return "", fmt.Errorf("statistics must be an object of numbers: %w", err)
		}
		if len(deltas) == 0 {
			return "", nil
		}
		if err := state.Players.UpdateStatistics(state.Ctx, state.Inv.TitleID, target, deltas); err != nil {
			return "", err
		}
		return "", nil
	}); err != nil {
		return fmt.Errorf("registering __cs_update_stats: %w", err)
	}

	if err := rt.Eval(serverFactoryJS); err != nil {
		return fmt.Errorf("evaluating server factory JS: %w", err)
	}
	return nil
}

// serverFactoryJS builds the guest-facing server object. Every method takes
// an optional trailing target (a playerId string or {playerId, catalogVersion}
// object) and returns a Promise; results are plain JSON-decoded copies.
const serverFactoryJS = `
globalThis.__cs_targetOf = function(t) {
	if (t === undefined || t === null) return { playerId: "", catalogVersion: 0 };
	if (typeof t === "string") return { playerId: t, catalogVersion: 0 };
	if (typeof t === "object") {
		return {
			playerId: t.playerId !== undefined && t.playerId !== null ? String(t.playerId) : "",
			catalogVersion: t.catalogVersion ? (t.catalogVersion | 0) : 0
		};
	}
	throw new TypeError("target player must be a string or an object");
};

globalThis.__cs_amountOf = function(amount) {
	var n = Math.trunc(Number(amount));
	if (!Number.isSafeInteger(n) || n <= 0) {
		throw new TypeError("currency amount must be a positive integer");
	}
	return String(n);
};

globalThis.__cs_call = function(fn) {
	try { return Promise.resolve(fn()); } catch (e) { return Promise.reject(e); }
};

globalThis.__makeServer = function() {
	var id = String(globalThis.__callID);
	var targetOf = globalThis.__cs_targetOf;
	var call = globalThis.__cs_call;
	return {
		getPlayerData: function(target) {
			var t = targetOf(target);
			return call(function() { return JSON.parse(__cs_get_player_data(id, t.playerId)); });
		},
		setPlayerData: function(data, target) {
			var t = targetOf(target);
			var json = JSON.stringify(data === undefined ? null : data);
			return call(function() { __cs_set_player_data(id, t.playerId, json); });
		},
		getPlayerInventory: function(target) {
			var t = targetOf(target);
			return call(function() { return JSON.parse(__cs_get_inventory(id, t.playerId)); });
		},
		grantItem: function(itemId, target) {
			var t = targetOf(target);
			return call(function() { return JSON.parse(__cs_grant_item(id, t.playerId, String(itemId), t.catalogVersion)); });
		},
		addVirtualCurrency: function(code, amount, target) {
			var t = targetOf(target);
			var amt = globalThis.__cs_amountOf(amount);
			return call(function() { return JSON.parse(__cs_add_currency(id, t.playerId, String(code), amt)); });
		},
		subtractVirtualCurrency: function(code, amount, target) {
			var t = targetOf(target);
			var amt = globalThis.__cs_amountOf(amount);
			return call(function() { return JSON.parse(__cs_sub_currency(id, t.playerId, String(code), amt)); });
		},
		updatePlayerStatistics: function(stats, target) {
			var t = targetOf(target);
			var json = JSON.stringify(stats === undefined ? null : stats);
			return call(function() { __cs_update_stats(id, t.playerId, json); });
		}
	};
};
`
