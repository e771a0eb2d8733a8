package engine_test

import (
	"errors"
	"testing"

	"pactline/internal/domain"
	"pactline/internal/engine/auth"
)

func TestDisputeLifecycle(t *testing.T) {
	env := newTestEnv(t)

	d, err := env.Engine.CreateDispute(env.Ctx, pactID, partyA, partyB, "payment", 7, "work not delivered", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if d.Status != domain.DisputeCreated {
		t.Fatalf("status = %s, want created", d.Status)
	}

	// only the two dispute parties may submit evidence
	var unauthorized auth.UnauthorizedError
	if _, err := env.Engine.SubmitEvidence(env.Ctx, pactID, "mallory", d.ID, "noise"); !errors.As(err, &unauthorized) {
		t.Fatalf("outsider evidence should be unauthorized, got %v", err)
	}
	d, err = env.Engine.SubmitEvidence(env.Ctx, pactID, partyA, d.ID, "chat log v1")
	if err != nil || d.Status != domain.DisputeEvidenceSubmitted {
		t.Fatalf("submit evidence: %v (%+v)", err, d)
	}
	// resubmission overwrites the party's slot
	d, err = env.Engine.SubmitEvidence(env.Ctx, pactID, partyA, d.ID, "chat log v2")
	if err != nil || d.InitiatorEvidence != "chat log v2" {
		t.Fatalf("overwrite evidence: %v (%+v)", err, d)
	}
	d, err = env.Engine.SubmitEvidence(env.Ctx, pactID, partyB, d.ID, "delivery receipt")
	if err != nil || d.CounterpartyEvidence != "delivery receipt" {
		t.Fatalf("counterparty evidence: %v (%+v)", err, d)
	}

	// review and resolution are gate-only
	if _, err := env.Engine.MarkUnderReview(env.Ctx, pactID, partyA, d.ID); !errors.As(err, &unauthorized) {
		t.Fatalf("party review should be unauthorized, got %v", err)
	}
	d, err = env.Engine.MarkUnderReview(env.Ctx, pactID, gateID, d.ID)
	if err != nil || d.Status != domain.DisputeUnderReview {
		t.Fatalf("mark under review: %v (%+v)", err, d)
	}

	var stateErr auth.StateError
	// evidence window is closed once under review
	if _, err := env.Engine.SubmitEvidence(env.Ctx, pactID, partyB, d.ID, "late"); !errors.As(err, &stateErr) {
		t.Fatalf("late evidence should fail, got %v", err)
	}

	var argErr auth.ArgumentError
	if _, err := env.Engine.ResolveDispute(env.Ctx, pactID, gateID, d.ID, ""); !errors.As(err, &argErr) {
		t.Fatalf("empty resolution should fail, got %v", err)
	}
	d, err = env.Engine.ResolveDispute(env.Ctx, pactID, gateID, d.ID, "split the payment")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if d.Status != domain.DisputeResolved || d.Resolver == nil || *d.Resolver != gateID || d.ResolvedAt == nil {
		t.Fatalf("unexpected resolved dispute: %+v", d)
	}

	// resolved is terminal
	if _, err := env.Engine.CancelDispute(env.Ctx, pactID, partyA, d.ID); !errors.As(err, &stateErr) {
		t.Fatalf("cancel after resolve should fail, got %v", err)
	}
	if _, err := env.Engine.ResolveDispute(env.Ctx, pactID, gateID, d.ID, "again"); !errors.As(err, &stateErr) {
		t.Fatalf("re-resolve should fail, got %v", err)
	}
}

func TestDisputeCreateWithInitialEvidence(t *testing.T) {
	env := newTestEnv(t)
	d, err := env.Engine.CreateDispute(env.Ctx, pactID, partyB, partyA, "quality", 0, "deliverable broken", "stack trace")
	if err != nil {
		t.Fatal(err)
	}
	if d.Status != domain.DisputeEvidenceSubmitted || d.InitiatorEvidence != "stack trace" {
		t.Fatalf("initial evidence should start at evidence_submitted: %+v", d)
	}
	// a dispute with evidence may be resolved without an explicit review step
	if _, err := env.Engine.ResolveDispute(env.Ctx, pactID, gateID, d.ID, "refund"); err != nil {
		t.Fatalf("direct resolve: %v", err)
	}
}

func TestDisputeValidationAndCancel(t *testing.T) {
	env := newTestEnv(t)
	var argErr auth.ArgumentError
	if _, err := env.Engine.CreateDispute(env.Ctx, pactID, partyA, partyA, "self", 0, "desc", ""); !errors.As(err, &argErr) {
		t.Fatalf("self dispute should fail, got %v", err)
	}
	if _, err := env.Engine.CreateDispute(env.Ctx, pactID, partyA, partyB, "x", 0, "", ""); !errors.As(err, &argErr) {
		t.Fatalf("empty description should fail, got %v", err)
	}

	d, err := env.Engine.CreateDispute(env.Ctx, pactID, partyA, partyB, "payment", 0, "desc", "")
	if err != nil {
		t.Fatal(err)
	}
	// the counterparty cannot cancel, the initiator can
	var unauthorized auth.UnauthorizedError
	if _, err := env.Engine.CancelDispute(env.Ctx, pactID, partyB, d.ID); !errors.As(err, &unauthorized) {
		t.Fatalf("counterparty cancel should be unauthorized, got %v", err)
	}
	d, err = env.Engine.CancelDispute(env.Ctx, pactID, partyA, d.ID)
	if err != nil || d.Status != domain.DisputeCancelled {
		t.Fatalf("initiator cancel: %v (%+v)", err, d)
	}

	// gate authority can cancel too
	d2, err := env.Engine.CreateDispute(env.Ctx, pactID, partyA, partyB, "payment", 0, "desc", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CancelDispute(env.Ctx, pactID, gateID, d2.ID); err != nil {
		t.Fatalf("gate cancel: %v", err)
	}

	// the review step requires submitted evidence
	d3, err := env.Engine.CreateDispute(env.Ctx, pactID, partyA, partyB, "payment", 0, "desc", "")
	if err != nil {
		t.Fatal(err)
	}
	var stateErr auth.StateError
	if _, err := env.Engine.MarkUnderReview(env.Ctx, pactID, gateID, d3.ID); !errors.As(err, &stateErr) {
		t.Fatalf("review without evidence should fail, got %v", err)
	}
}
