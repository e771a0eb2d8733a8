package engine_test

import (
	"errors"
	"testing"

	"pactline/internal/engine/auth"
)

func TestTreasuryDepositAndWithdraw(t *testing.T) {
	env := newTestEnv(t)

	var argErr auth.ArgumentError
	if _, err := env.Engine.Deposit(env.Ctx, pactID, partyA, 0); !errors.As(err, &argErr) {
		t.Fatalf("zero deposit should fail, got %v", err)
	}
	if _, err := env.Engine.Deposit(env.Ctx, pactID, partyA, -5); !errors.As(err, &argErr) {
		t.Fatalf("negative deposit should fail, got %v", err)
	}

	if _, err := env.Engine.Deposit(env.Ctx, pactID, partyA, 300); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := env.Engine.Deposit(env.Ctx, pactID, "outsider", 200); err != nil {
		t.Fatalf("deposit from non-party should be allowed: %v", err)
	}

	// non-withdrawer is rejected
	var unauthorized auth.UnauthorizedError
	if _, err := env.Engine.Withdraw(env.Ctx, pactID, partyA, "carol", 100); !errors.As(err, &unauthorized) {
		t.Fatalf("non-withdrawer should be unauthorized, got %v", err)
	}

	// gate authority always may withdraw
	w, err := env.Engine.Withdraw(env.Ctx, pactID, gateID, "carol", 100)
	if err != nil {
		t.Fatalf("gate withdraw: %v", err)
	}
	if w.Amount != 100 || w.Recipient != "carol" {
		t.Fatalf("unexpected withdrawal: %+v", w)
	}

	sum, err := env.Engine.TreasurySummary(env.Ctx, pactID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.TotalDeposits != 500 || sum.TotalWithdrawals != 100 || sum.Balance != 400 {
		t.Fatalf("summary = %+v, want 500/100/400", sum)
	}

	acct, err := env.Engine.Account(env.Ctx, pactID, "carol")
	if err != nil {
		t.Fatal(err)
	}
	if acct.Balance != 100 {
		t.Fatalf("carol account = %d, want 100", acct.Balance)
	}
}

func TestTreasuryWithdrawBoundaries(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Deposit(env.Ctx, pactID, partyA, 250); err != nil {
		t.Fatal(err)
	}

	var insufficient auth.InsufficientFundsError
	if _, err := env.Engine.Withdraw(env.Ctx, pactID, gateID, "carol", 251); !errors.As(err, &insufficient) {
		t.Fatalf("overdraw should fail with insufficient funds, got %v", err)
	}
	if insufficient.Balance != 250 || insufficient.Requested != 251 {
		t.Fatalf("unexpected insufficient-funds detail: %+v", insufficient)
	}

	// withdrawing the exact balance is allowed
	if _, err := env.Engine.Withdraw(env.Ctx, pactID, gateID, "carol", 250); err != nil {
		t.Fatalf("exact-balance withdraw: %v", err)
	}
	sum, err := env.Engine.TreasurySummary(env.Ctx, pactID)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Balance != 0 {
		t.Fatalf("balance = %d, want 0", sum.Balance)
	}

	var argErr auth.ArgumentError
	if _, err := env.Engine.Withdraw(env.Ctx, pactID, gateID, "", 1); !errors.As(err, &argErr) {
		t.Fatalf("empty recipient should fail, got %v", err)
	}
	if _, err := env.Engine.Withdraw(env.Ctx, pactID, gateID, "carol", 0); !errors.As(err, &argErr) {
		t.Fatalf("zero withdraw should fail, got %v", err)
	}
}

func TestAuthorizedWithdrawer(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Deposit(env.Ctx, pactID, partyA, 100); err != nil {
		t.Fatal(err)
	}

	// only gate authority may grant
	var unauthorized auth.UnauthorizedError
	if err := env.Engine.SetAuthorizedWithdrawer(env.Ctx, pactID, partyA, partyB, true); !errors.As(err, &unauthorized) {
		t.Fatalf("party grant should be unauthorized, got %v", err)
	}
	if err := env.Engine.SetAuthorizedWithdrawer(env.Ctx, pactID, gateID, partyB, true); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := env.Engine.Withdraw(env.Ctx, pactID, partyB, partyB, 40); err != nil {
		t.Fatalf("authorized withdraw: %v", err)
	}

	// revocation takes effect immediately
	if err := env.Engine.SetAuthorizedWithdrawer(env.Ctx, pactID, gateID, partyB, false); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Withdraw(env.Ctx, pactID, partyB, partyB, 10); !errors.As(err, &unauthorized) {
		t.Fatalf("revoked withdrawer should be unauthorized, got %v", err)
	}
}
