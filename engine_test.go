package cloudscript

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openbaas/cloudscript/internal/core"
	"github.com/openbaas/cloudscript/store"
)

type testEnv struct {
	engine  *Engine
	players *store.MemoryPlayers
	db      *store.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	players := store.NewMemoryPlayers()
	engine, err := New(EngineConfig{DefaultTimeoutSeconds: 5}, Deps{
		Registry: db.Scripts(),
		Players:  players,
		Audit:    db.Audit(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &testEnv{engine: engine, players: players, db: db}
}

func defFor(source string) *ScriptDefinition {
	return &ScriptDefinition{
		TitleID:      "title-1",
		FunctionName: "main",
		Source:       source,
	}
}

func invFor(playerID string) *InvocationContext {
	return &InvocationContext{
		TitleID:      "title-1",
		PlayerID:     playerID,
		FunctionName: "main",
	}
}

func TestExecuteGrantDailyReward(t *testing.T) {
	env := newTestEnv(t)
	env.players.Seed("title-1", &PlayerProfile{PlayerID: "p1", DisplayName: "Ada"})

	source := `
handlers.main = async (args, context) => {
	context.log.info("granting daily reward to", context.playerId);
	const gold = await context.server.addVirtualCurrency("GOLD", 100);
	const item = await context.server.grantItem("daily_chest");
	await context.server.updatePlayerStatistics({ logins: 1 });
	await context.server.setPlayerData({ lastReward: args.day });
	return { balance: gold.balance, instanceId: item.instanceId };
};`

	inv := invFor("p1")
	inv.Args = map[string]any{"day": "2026-08-31"}

	result, err := env.engine.Execute(context.Background(), defFor(source), inv)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}

	obj, ok := result.Result.(map[string]any)
	if !ok {
		t.Fatalf("expected object result, got %T", result.Result)
	}
	if obj["balance"] != float64(100) {
		t.Errorf("balance = %v, want 100", obj["balance"])
	}
	if obj["instanceId"] == "" || obj["instanceId"] == nil {
		t.Error("instanceId missing from result")
	}

	prof, err := env.players.GetProfile(context.Background(), "title-1", "p1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if prof.VirtualCurrency["GOLD"] != 100 {
		t.Errorf("GOLD balance = %d, want 100", prof.VirtualCurrency["GOLD"])
	}
	if prof.Statistics["logins"] != 1 {
		t.Errorf("logins = %v, want 1", prof.Statistics["logins"])
	}
	if prof.Data["lastReward"] != "2026-08-31" {
		t.Errorf("lastReward = %v", prof.Data["lastReward"])
	}

	items, _ := env.players.GetInventory(context.Background(), "title-1", "p1")
	if len(items) != 1 || items[0].ItemID != "daily_chest" {
		t.Errorf("inventory = %+v, want one daily_chest", items)
	}

	if len(result.Logs) != 1 || result.Logs[0].Level != "info" {
		t.Fatalf("logs = %+v, want one info entry", result.Logs)
	}
	if !strings.Contains(result.Logs[0].Message, "p1") {
		t.Errorf("log message %q missing player ID", result.Logs[0].Message)
	}
}

func TestExecuteThrownError(t *testing.T) {
	env := newTestEnv(t)

	source := `handlers.main = async () => { throw new Error("boom"); };`
	result, err := env.engine.Execute(context.Background(), defFor(source), invFor("p1"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Error, "boom") {
		t.Errorf("error %q missing thrown message", result.Error)
	}
}

func TestExecuteHandlerMissing(t *testing.T) {
	env := newTestEnv(t)

	source := `handlers.other = async () => 1;`
	result, err := env.engine.Execute(context.Background(), defFor(source), invFor("p1"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Error, "main") {
		t.Errorf("error %q should name the missing handler", result.Error)
	}
}

func TestExecuteCompileError(t *testing.T) {
	env := newTestEnv(t)

	source := `handlers.main = async ( => {};`
	result, err := env.engine.Execute(context.Background(), defFor(source), invFor("p1"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Error, "compiling script") {
		t.Errorf("error %q should be a compile error", result.Error)
	}
}

func TestExecuteBusyLoopTimesOut(t *testing.T) {
	env := newTestEnv(t)

	def := defFor(`handlers.main = async () => { while (true) {} };`)
	def.TimeoutSeconds = 1

	start := time.Now()
	result, err := env.engine.Execute(context.Background(), def, invFor("p1"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success {
		t.Fatal("expected timeout failure")
	}
	if !strings.Contains(result.Error, "timed out") {
		t.Errorf("error %q should report a timeout", result.Error)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took %v, watchdog did not fire", elapsed)
	}
}

func TestExecuteSetTimeoutPastDeadline(t *testing.T) {
	env := newTestEnv(t)

	def := defFor(`
handlers.main = async () => {
	await new Promise((resolve) => setTimeout(resolve, 10000));
	return "never";
};`)
	def.TimeoutSeconds = 1

	result, err := env.engine.Execute(context.Background(), def, invFor("p1"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success {
		t.Fatal("expected timeout failure")
	}
	if !strings.Contains(result.Error, "timed out") {
		t.Errorf("error %q should report a timeout", result.Error)
	}
}

func TestExecuteTargetPlayerOverride(t *testing.T) {
	env := newTestEnv(t)
	env.players.Seed("title-1", &PlayerProfile{PlayerID: "p1"})
	env.players.Seed("title-1", &PlayerProfile{PlayerID: "p2", DisplayName: "Bob"})

	source := `
handlers.main = async (args, context) => {
	const other = await context.server.getPlayerData("p2");
	await context.server.addVirtualCurrency("GEMS", 5, "p2");
	return other.displayName;
};`

	result, err := env.engine.Execute(context.Background(), defFor(source), invFor("p1"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got: %s", result.Error)
	}
	if result.Result != "Bob" {
		t.Errorf("result = %v, want Bob", result.Result)
	}

	p2, _ := env.players.GetProfile(context.Background(), "title-1", "p2")
	if p2.VirtualCurrency["GEMS"] != 5 {
		t.Errorf("p2 GEMS = %d, want 5", p2.VirtualCurrency["GEMS"])
	}
	p1, _ := env.players.GetProfile(context.Background(), "title-1", "p1")
	if p1.VirtualCurrency["GEMS"] != 0 {
		t.Errorf("p1 GEMS = %d, want 0", p1.VirtualCurrency["GEMS"])
	}
}

func TestExecuteNoTargetPlayer(t *testing.T) {
	env := newTestEnv(t)

	source := `handlers.main = async (args, context) => context.server.addVirtualCurrency("GOLD", 1);`
	result, err := env.engine.Execute(context.Background(), defFor(source), invFor(""))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure without a target player")
	}
	if !strings.Contains(result.Error, "no target player") {
		t.Errorf("error %q should report the missing target", result.Error)
	}
}

func TestExecuteInsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	env.players.Seed("title-1", &PlayerProfile{
		PlayerID:        "p1",
		VirtualCurrency: map[string]int64{"GOLD": 10},
	})

	source := `handlers.main = async (args, context) => context.server.subtractVirtualCurrency("GOLD", 50);`
	result, err := env.engine.Execute(context.Background(), defFor(source), invFor("p1"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Error, "insufficient funds") {
		t.Errorf("error = %q", result.Error)
	}

	prof, _ := env.players.GetProfile(context.Background(), "title-1", "p1")
	if prof.VirtualCurrency["GOLD"] != 10 {
		t.Errorf("balance changed to %d, want untouched 10", prof.VirtualCurrency["GOLD"])
	}
}

func TestExecuteResultIsolation(t *testing.T) {
	env := newTestEnv(t)
	env.players.Seed("title-1", &PlayerProfile{PlayerID: "p1", DisplayName: "Ada"})

	// Mutating the profile object inside the script must not touch the store.
	source := `
handlers.main = async (args, context) => {
	const prof = await context.server.getPlayerData();
	prof.displayName = "Hacked";
	prof.data.injected = true;
	return prof.displayName;
};`
	result, err := env.engine.Execute(context.Background(), defFor(source), invFor("p1"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got: %s", result.Error)
	}

	prof, _ := env.players.GetProfile(context.Background(), "title-1", "p1")
	if prof.DisplayName != "Ada" {
		t.Errorf("store profile mutated: displayName = %q", prof.DisplayName)
	}
	if _, ok := prof.Data["injected"]; ok {
		t.Error("store profile mutated: injected key present")
	}
}

func TestExecuteInventoryIsolation(t *testing.T) {
	env := newTestEnv(t)
	env.players.Seed("title-1", &PlayerProfile{PlayerID: "p1"})

	// Mutating a returned inventory array must affect neither later reads in
	// the same invocation nor the store.
	source := `
handlers.main = async (args, context) => {
	await context.server.grantItem("sword");
	const first = await context.server.getPlayerInventory();
	first[0].itemId = "axe";
	first.push({ itemId: "shield", instanceId: "forged" });
	const second = await context.server.getPlayerInventory();
	return { count: second.length, itemId: second[0].itemId };
};`
	result, err := env.engine.Execute(context.Background(), defFor(source), invFor("p1"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got: %s", result.Error)
	}

	obj, ok := result.Result.(map[string]any)
	if !ok {
		t.Fatalf("expected object result, got %T", result.Result)
	}
	if obj["count"] != float64(1) || obj["itemId"] != "sword" {
		t.Errorf("second read = %v, want one untouched sword", obj)
	}

	items, err := env.players.GetInventory(context.Background(), "title-1", "p1")
	if err != nil {
		t.Fatalf("GetInventory: %v", err)
	}
	if len(items) != 1 || items[0].ItemID != "sword" {
		t.Errorf("store inventory = %+v, want one sword", items)
	}
}

func TestExecuteLargeCurrencyAmount(t *testing.T) {
	env := newTestEnv(t)

	source := `
handlers.main = async (args, context) => {
	const r = await context.server.addVirtualCurrency("GOLD", Math.pow(2, 31));
	return r.balance;
};`
	result, err := env.engine.Execute(context.Background(), defFor(source), invFor("p1"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got: %s", result.Error)
	}
	if result.Result != float64(1<<31) {
		t.Errorf("balance = %v, want %d", result.Result, int64(1)<<31)
	}

	prof, _ := env.players.GetProfile(context.Background(), "title-1", "p1")
	if prof.VirtualCurrency["GOLD"] != 1<<31 {
		t.Errorf("store balance = %d, want %d", prof.VirtualCurrency["GOLD"], int64(1)<<31)
	}
}

func TestExecuteWritesAuditRecord(t *testing.T) {
	env := newTestEnv(t)

	source := `handlers.main = async (args) => ({ echoed: args.x });`
	inv := invFor("p1")
	inv.Args = map[string]any{"x": float64(7)}

	if _, err := env.engine.Execute(context.Background(), defFor(source), inv); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	recs, err := env.db.Audit().List(context.Background(), "title-1", 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	rec := recs[0]
	if rec.FunctionName != "main" || rec.PlayerID != "p1" {
		t.Errorf("record = %+v", rec)
	}
	if !strings.Contains(rec.ResultJSON, "echoed") {
		t.Errorf("result JSON %q missing payload", rec.ResultJSON)
	}
	if !strings.Contains(rec.ArgsJSON, `"x"`) {
		t.Errorf("args JSON %q missing arguments", rec.ArgsJSON)
	}
}

func TestInvokeThroughRegistry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	scripts := env.db.Scripts()

	v1, err := scripts.Save(ctx, &ScriptDefinition{
		TitleID: "title-1", FunctionName: "greet",
		Source: `handlers.greet = async () => "v1";`,
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := scripts.Save(ctx, &ScriptDefinition{
		TitleID: "title-1", FunctionName: "greet",
		Source: `handlers.greet = async () => "v2";`,
	}); err != nil {
		t.Fatalf("Save v2: %v", err)
	}
	if err := scripts.Publish(ctx, "title-1", "greet", v1); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	// Published lookup runs v1; test calls run the latest version.
	result, err := env.engine.Invoke(ctx, "title-1", "greet", nil, true)
	if err != nil {
		t.Fatalf("Invoke published: %v", err)
	}
	if result.Result != "v1" {
		t.Errorf("published result = %v, want v1", result.Result)
	}

	result, err = env.engine.Invoke(ctx, "title-1", "greet", nil, false)
	if err != nil {
		t.Fatalf("Invoke latest: %v", err)
	}
	if result.Result != "v2" {
		t.Errorf("latest result = %v, want v2", result.Result)
	}

	if _, err := env.engine.Invoke(ctx, "title-1", "missing", nil, true); !errors.Is(err, ErrFunctionNotFound) {
		t.Errorf("missing function error = %v, want ErrFunctionNotFound", err)
	}
}

func TestConcurrentExecutions(t *testing.T) {
	env := newTestEnv(t)

	source := `
handlers.main = async (args, context) => {
	const r = await context.server.addVirtualCurrency("GOLD", 1);
	return r.balance;
};`
	def := defFor(source)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := env.engine.Execute(context.Background(), def, invFor("p1"))
			if err != nil {
				errs <- err.Error()
				return
			}
			if !result.Success {
				errs <- result.Error
			}
		}()
	}
	wg.Wait()
	close(errs)
	for msg := range errs {
		t.Errorf("concurrent execution failed: %s", msg)
	}

	prof, _ := env.players.GetProfile(context.Background(), "title-1", "p1")
	if prof.VirtualCurrency["GOLD"] != n {
		t.Errorf("GOLD = %d, want %d", prof.VirtualCurrency["GOLD"], n)
	}

	if active := core.ActiveInvocations(); active != 0 {
		t.Errorf("%d invocation states leaked", active)
	}
}

func TestExecuteNilDefinition(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.Execute(context.Background(), nil, invFor("p1"))
	var setupErr *SetupError
	if !errors.As(err, &setupErr) {
		t.Fatalf("error = %v, want SetupError", err)
	}
}
