package engine_test

import (
	"errors"
	"testing"
	"time"

	"pactline/internal/engine/auth"
)

func TestProposalQuorumAndExecution(t *testing.T) {
	env := newTestEnv(t)

	p, err := env.Engine.CreateProposal(env.Ctx, pactID, partyA, "raise the budget", "", 0, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	end, err := time.Parse(time.RFC3339, p.EndTime)
	if err != nil {
		t.Fatal(err)
	}
	if got := end.Sub(*env.Clock); got != 168*time.Hour {
		t.Fatalf("voting window = %v, want 168h", got)
	}

	// voting
	var argErr auth.ArgumentError
	if _, err := env.Engine.Vote(env.Ctx, pactID, "", p.ID, true); !errors.As(err, &argErr) {
		t.Fatalf("empty caller vote should fail, got %v", err)
	}
	if _, err := env.Engine.Vote(env.Ctx, pactID, partyA, p.ID, true); err != nil {
		t.Fatal(err)
	}
	var stateErr auth.StateError
	if _, err := env.Engine.Vote(env.Ctx, pactID, partyA, p.ID, false); !errors.As(err, &stateErr) {
		t.Fatalf("double vote should fail, got %v", err)
	}
	p, err = env.Engine.Vote(env.Ctx, pactID, partyB, p.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if p.ForVotes != 2 || p.AgainstVotes != 0 {
		t.Fatalf("tally = %d/%d, want 2/0", p.ForVotes, p.AgainstVotes)
	}

	// execution is blocked while the window is open
	ok, reason, err := env.Engine.CanExecute(env.Ctx, pactID, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ok || reason != "voting window still open" {
		t.Fatalf("can-execute = %v %q", ok, reason)
	}
	if _, err := env.Engine.ExecuteProposal(env.Ctx, pactID, gateID, p.ID); !errors.As(err, &stateErr) {
		t.Fatalf("early execute should fail, got %v", err)
	}

	// past the window it becomes executable, gate-only
	*env.Clock = env.Clock.Add(169 * time.Hour)
	ok, _, err = env.Engine.CanExecute(env.Ctx, pactID, p.ID)
	if err != nil || !ok {
		t.Fatalf("can-execute after window = %v (%v)", ok, err)
	}
	var unauthorized auth.UnauthorizedError
	if _, err := env.Engine.ExecuteProposal(env.Ctx, pactID, partyA, p.ID); !errors.As(err, &unauthorized) {
		t.Fatalf("party execute should be unauthorized, got %v", err)
	}
	p, err = env.Engine.ExecuteProposal(env.Ctx, pactID, gateID, p.ID)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !p.Executed {
		t.Fatalf("proposal should be executed")
	}
	if _, err := env.Engine.ExecuteProposal(env.Ctx, pactID, gateID, p.ID); !errors.As(err, &stateErr) {
		t.Fatalf("re-execute should fail, got %v", err)
	}

	// voting after the window is closed
	if _, err := env.Engine.Vote(env.Ctx, pactID, partyB, p.ID, true); !errors.As(err, &stateErr) {
		t.Fatalf("late vote should fail, got %v", err)
	}
}

func TestProposalVotingOpenToAnyParticipant(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.CreateProposal(env.Ctx, pactID, "carol", "outside idea", "", 0, "")
	if err != nil {
		t.Fatalf("non-party create: %v", err)
	}
	p, err = env.Engine.Vote(env.Ctx, pactID, "carol", p.ID, true)
	if err != nil {
		t.Fatalf("non-party vote: %v", err)
	}
	p, err = env.Engine.Vote(env.Ctx, pactID, "dave", p.ID, false)
	if err != nil {
		t.Fatalf("second non-party vote: %v", err)
	}
	if p.ForVotes != 1 || p.AgainstVotes != 1 {
		t.Fatalf("tally = %d/%d, want 1/1", p.ForVotes, p.AgainstVotes)
	}
	// the one-vote rule still binds outsiders
	var stateErr auth.StateError
	if _, err := env.Engine.Vote(env.Ctx, pactID, "carol", p.ID, false); !errors.As(err, &stateErr) {
		t.Fatalf("double vote should fail, got %v", err)
	}
}

func TestProposalQuorumNotReached(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.CreateProposal(env.Ctx, pactID, partyA, "half-hearted", "", 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Vote(env.Ctx, pactID, partyA, p.ID, true); err != nil {
		t.Fatal(err)
	}
	*env.Clock = env.Clock.Add(169 * time.Hour)

	ok, reason, err := env.Engine.CanExecute(env.Ctx, pactID, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ok || reason != "quorum not reached" {
		t.Fatalf("can-execute = %v %q, want quorum not reached", ok, reason)
	}
	var stateErr auth.StateError
	if _, err := env.Engine.ExecuteProposal(env.Ctx, pactID, gateID, p.ID); !errors.As(err, &stateErr) {
		t.Fatalf("execute without quorum should fail, got %v", err)
	}
}

func TestProposalNotPassing(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.CreateProposal(env.Ctx, pactID, partyA, "contested", "", 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Vote(env.Ctx, pactID, partyA, p.ID, true); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Vote(env.Ctx, pactID, partyB, p.ID, false); err != nil {
		t.Fatal(err)
	}
	*env.Clock = env.Clock.Add(169 * time.Hour)

	ok, reason, err := env.Engine.CanExecute(env.Ctx, pactID, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ok || reason != "not passing" {
		t.Fatalf("tied proposal should not pass, got %v %q", ok, reason)
	}
}

func TestProposalCancel(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.CreateProposal(env.Ctx, pactID, partyA, "doomed", "", 0, "")
	if err != nil {
		t.Fatal(err)
	}
	var unauthorized auth.UnauthorizedError
	if _, err := env.Engine.CancelProposal(env.Ctx, pactID, partyA, p.ID); !errors.As(err, &unauthorized) {
		t.Fatalf("party cancel should be unauthorized, got %v", err)
	}
	p, err = env.Engine.CancelProposal(env.Ctx, pactID, gateID, p.ID)
	if err != nil || !p.Cancelled {
		t.Fatalf("cancel: %v (%+v)", err, p)
	}
	var stateErr auth.StateError
	if _, err := env.Engine.Vote(env.Ctx, pactID, partyA, p.ID, true); !errors.As(err, &stateErr) {
		t.Fatalf("vote on cancelled proposal should fail, got %v", err)
	}
	if _, err := env.Engine.CancelProposal(env.Ctx, pactID, gateID, p.ID); !errors.As(err, &stateErr) {
		t.Fatalf("double cancel should fail, got %v", err)
	}
}

func TestProposalWithTarget(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Deposit(env.Ctx, pactID, partyA, 100); err != nil {
		t.Fatal(err)
	}
	p, err := env.Engine.CreateProposal(env.Ctx, pactID, partyA, "pay carol", "treasury.withdraw", 0,
		`{"recipient":"carol","amount":60}`)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Vote(env.Ctx, pactID, partyA, p.ID, true); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Vote(env.Ctx, pactID, partyB, p.ID, true); err != nil {
		t.Fatal(err)
	}
	*env.Clock = env.Clock.Add(169 * time.Hour)
	if _, err := env.Engine.ExecuteProposal(env.Ctx, pactID, gateID, p.ID); err != nil {
		t.Fatalf("execute with target: %v", err)
	}
	acct, err := env.Engine.Account(env.Ctx, pactID, "carol")
	if err != nil {
		t.Fatal(err)
	}
	if acct.Balance != 60 {
		t.Fatalf("carol account = %d, want 60", acct.Balance)
	}

	var argErr auth.ArgumentError
	if _, err := env.Engine.CreateProposal(env.Ctx, pactID, partyA, "recursive", "proposals.execute", 0, "{}"); !errors.As(err, &argErr) {
		t.Fatalf("proposal targeting proposals should fail, got %v", err)
	}
}
