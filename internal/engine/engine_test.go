package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"pactline/internal/config"
	"pactline/internal/db"
	"pactline/internal/engine"
	"pactline/internal/engine/auth"
	"pactline/internal/migrate"
)

const (
	pactID = "pact-1"
	partyA = "alice"
	partyB = "bob"
	gateID = "gate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Clock  *time.Time
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default(pactID, partyA, partyB)
	eng := engine.New(conn, cfg)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }
	eng.Now = now
	eng.Events.Now = now
	ctx := context.Background()
	if _, err := eng.InitPact(ctx, cfg, "test pact", "tester"); err != nil {
		t.Fatalf("init pact: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, Clock: &clock}
}

func TestGateDualApproval(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Deposit(env.Ctx, pactID, partyA, 500); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	op, err := env.Engine.ProposeOperation(env.Ctx, pactID, partyA, "treasury.withdraw", 0,
		`{"recipient":"carol","amount":200}`)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if op.Executed || len(op.Approvals) != 0 {
		t.Fatalf("fresh operation should be unexecuted with no approvals: %+v", op)
	}

	// single approval is not enough to execute
	if _, err := env.Engine.ApproveOperation(env.Ctx, pactID, partyA, op.ID); err != nil {
		t.Fatalf("approve A: %v", err)
	}
	var stateErr auth.StateError
	if _, err := env.Engine.ExecuteOperation(env.Ctx, pactID, partyA, op.ID); !errors.As(err, &stateErr) {
		t.Fatalf("execute with one approval should fail with state error, got %v", err)
	}

	// repeat approval by the same party fails
	if _, err := env.Engine.ApproveOperation(env.Ctx, pactID, partyA, op.ID); !errors.As(err, &stateErr) {
		t.Fatalf("double approve should fail with state error, got %v", err)
	}

	if _, err := env.Engine.ApproveOperation(env.Ctx, pactID, partyB, op.ID); err != nil {
		t.Fatalf("approve B: %v", err)
	}
	op, err = env.Engine.ExecuteOperation(env.Ctx, pactID, partyB, op.ID)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !op.Executed {
		t.Fatalf("operation should be executed")
	}

	// dispatched withdrawal landed
	sum, err := env.Engine.TreasurySummary(env.Ctx, pactID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Balance != 300 {
		t.Fatalf("balance after gate withdraw = %d, want 300", sum.Balance)
	}
	acct, err := env.Engine.Account(env.Ctx, pactID, "carol")
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if acct.Balance != 200 {
		t.Fatalf("carol balance = %d, want 200", acct.Balance)
	}

	// re-execution fails
	if _, err := env.Engine.ExecuteOperation(env.Ctx, pactID, partyA, op.ID); !errors.As(err, &stateErr) {
		t.Fatalf("re-execute should fail with state error, got %v", err)
	}
}

func TestGateNonPartyUnauthorized(t *testing.T) {
	env := newTestEnv(t)
	var unauthorized auth.UnauthorizedError
	if _, err := env.Engine.ProposeOperation(env.Ctx, pactID, "mallory", "treasury.withdraw", 0, `{}`); !errors.As(err, &unauthorized) {
		t.Fatalf("non-party propose should be unauthorized, got %v", err)
	}
	op, err := env.Engine.ProposeOperation(env.Ctx, pactID, partyA, "tasks.cancel", 0, `{"task_id":1}`)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if _, err := env.Engine.ApproveOperation(env.Ctx, pactID, "mallory", op.ID); !errors.As(err, &unauthorized) {
		t.Fatalf("non-party approve should be unauthorized, got %v", err)
	}
	if _, err := env.Engine.ExecuteOperation(env.Ctx, pactID, "mallory", op.ID); !errors.As(err, &unauthorized) {
		t.Fatalf("non-party execute should be unauthorized, got %v", err)
	}
}

func TestGateDispatchFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	// no deposits, so the dispatched withdrawal must fail
	op, err := env.Engine.ProposeOperation(env.Ctx, pactID, partyA, "treasury.withdraw", 0,
		`{"recipient":"carol","amount":100}`)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if _, err := env.Engine.ApproveOperation(env.Ctx, pactID, partyA, op.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ApproveOperation(env.Ctx, pactID, partyB, op.ID); err != nil {
		t.Fatal(err)
	}
	var downstream auth.DownstreamError
	_, err = env.Engine.ExecuteOperation(env.Ctx, pactID, partyA, op.ID)
	if !errors.As(err, &downstream) {
		t.Fatalf("expected downstream error, got %v", err)
	}
	var insufficient auth.InsufficientFundsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("downstream error should wrap the insufficient-funds cause, got %v", err)
	}

	// the executed flag rolled back with the failed dispatch
	op, err = env.Engine.GetOperation(env.Ctx, pactID, op.ID)
	if err != nil {
		t.Fatal(err)
	}
	if op.Executed {
		t.Fatalf("failed dispatch must not leave the operation executed")
	}

	// funding the treasury makes the same operation executable
	if _, err := env.Engine.Deposit(env.Ctx, pactID, partyB, 100); err != nil {
		t.Fatal(err)
	}
	op, err = env.Engine.ExecuteOperation(env.Ctx, pactID, partyA, op.ID)
	if err != nil {
		t.Fatalf("execute after funding: %v", err)
	}
	if !op.Executed {
		t.Fatalf("operation should be executed after retry")
	}
}

func TestGateUnknownTarget(t *testing.T) {
	env := newTestEnv(t)
	var argErr auth.ArgumentError
	if _, err := env.Engine.ProposeOperation(env.Ctx, pactID, partyA, "treasury.drain", 0, `{}`); !errors.As(err, &argErr) {
		t.Fatalf("unknown target should be an argument error, got %v", err)
	}
	if _, err := env.Engine.ProposeOperation(env.Ctx, pactID, partyA, "tasks.assign", 0, `{not json`); !errors.As(err, &argErr) {
		t.Fatalf("bad payload should be an argument error, got %v", err)
	}
}
