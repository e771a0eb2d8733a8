package engine_test

import (
	"errors"
	"testing"

	"pactline/internal/config"
	"pactline/internal/engine/auth"
	"pactline/internal/identity"
	"pactline/internal/repo"
)

type keypair struct {
	ID   string
	Priv string
}

func genKeypair(t *testing.T) keypair {
	t.Helper()
	id, priv, err := identity.Keygen()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	return keypair{ID: id, Priv: priv}
}

func signedAck(t *testing.T, kp keypair, message string) string {
	t.Helper()
	sig, err := identity.Sign([]byte(message), kp.Priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return sig
}

func TestHandshakeActivation(t *testing.T) {
	env := newTestEnv(t)
	a := genKeypair(t)
	b := genKeypair(t)

	// first ack creates a half-open handshake
	ackA, err := env.Engine.SubmitAcknowledgment(env.Ctx, pactID, a.ID, b.ID, "hello b", signedAck(t, a, "hello b"), "")
	if err != nil {
		t.Fatalf("submit a: %v", err)
	}
	h, err := env.Engine.GetMutualHandshake(env.Ctx, pactID, a.ID, b.ID)
	if err != nil {
		t.Fatalf("handshake after first ack: %v", err)
	}
	if h.Active {
		t.Fatalf("handshake must not be active after one ack")
	}

	// the reciprocal ack activates it
	ackB, err := env.Engine.SubmitAcknowledgment(env.Ctx, pactID, b.ID, a.ID, "hello a", signedAck(t, b, "hello a"), "")
	if err != nil {
		t.Fatalf("submit b: %v", err)
	}
	h, err = env.Engine.GetMutualHandshake(env.Ctx, pactID, a.ID, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !h.Active || h.ActivatedAt == nil {
		t.Fatalf("handshake should be active: %+v", h)
	}
	if h.AckLowHash == "" || h.AckHighHash == "" {
		t.Fatalf("both ack slots should be filled: %+v", h)
	}

	// lookup is order-insensitive
	h2, err := env.Engine.GetMutualHandshake(env.Ctx, pactID, b.ID, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if h2.Hash != h.Hash {
		t.Fatalf("handshake lookup should not depend on argument order")
	}

	// each participant sees the handshake exactly once
	for _, p := range []string{a.ID, b.ID} {
		hs, err := env.Engine.ListHandshakes(env.Ctx, pactID, p)
		if err != nil {
			t.Fatal(err)
		}
		if len(hs) != 1 {
			t.Fatalf("participant %s handshake count = %d, want 1", p, len(hs))
		}
	}

	// acks are indexed under their signer
	acksA, err := env.Engine.ListAcknowledgments(env.Ctx, pactID, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(acksA) != 1 || acksA[0].Hash != ackA.Hash {
		t.Fatalf("signer index mismatch: %+v", acksA)
	}
	if ackA.Hash == ackB.Hash {
		t.Fatalf("distinct acks must have distinct hashes")
	}
}

func TestAcknowledgmentValidation(t *testing.T) {
	env := newTestEnv(t)
	a := genKeypair(t)
	b := genKeypair(t)

	var argErr auth.ArgumentError
	if _, err := env.Engine.SubmitAcknowledgment(env.Ctx, pactID, a.ID, a.ID, "me", signedAck(t, a, "me"), ""); !errors.As(err, &argErr) {
		t.Fatalf("self-acknowledgment should fail, got %v", err)
	}
	if _, err := env.Engine.SubmitAcknowledgment(env.Ctx, pactID, a.ID, b.ID, "", "sig", ""); !errors.As(err, &argErr) {
		t.Fatalf("empty message should fail, got %v", err)
	}
	if _, err := env.Engine.SubmitAcknowledgment(env.Ctx, pactID, a.ID, b.ID, "msg", "", ""); !errors.As(err, &argErr) {
		t.Fatalf("empty signature should fail, got %v", err)
	}
	// signature over a different message does not verify
	if _, err := env.Engine.SubmitAcknowledgment(env.Ctx, pactID, a.ID, b.ID, "msg", signedAck(t, a, "other"), ""); !errors.As(err, &argErr) {
		t.Fatalf("bad signature should fail, got %v", err)
	}
	// signature by a different key does not verify
	if _, err := env.Engine.SubmitAcknowledgment(env.Ctx, pactID, a.ID, b.ID, "msg", signedAck(t, b, "msg"), ""); !errors.As(err, &argErr) {
		t.Fatalf("wrong signer should fail, got %v", err)
	}
}

func TestAcknowledgmentDuplicateRejected(t *testing.T) {
	env := newTestEnv(t)
	a := genKeypair(t)
	b := genKeypair(t)
	sig := signedAck(t, a, "hello")

	// fixed clock: the identical tuple hashes identically
	if _, err := env.Engine.SubmitAcknowledgment(env.Ctx, pactID, a.ID, b.ID, "hello", sig, ""); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	var stateErr auth.StateError
	if _, err := env.Engine.SubmitAcknowledgment(env.Ctx, pactID, a.ID, b.ID, "hello", sig, ""); !errors.As(err, &stateErr) {
		t.Fatalf("duplicate submit should fail with state error, got %v", err)
	}

	// a different timestamp yields a new acknowledgment
	if _, err := env.Engine.SubmitAcknowledgment(env.Ctx, pactID, a.ID, b.ID, "hello", sig, "2024-02-01T00:00:00Z"); err != nil {
		t.Fatalf("submit with distinct ts: %v", err)
	}
	acks, err := env.Engine.ListAcknowledgments(env.Ctx, pactID, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(acks) != 2 {
		t.Fatalf("ack count = %d, want 2", len(acks))
	}
}

func TestHandshakesScopedToPact(t *testing.T) {
	env := newTestEnv(t)
	const otherPact = "pact-2"
	if _, err := env.Engine.InitPact(env.Ctx, config.Default(otherPact, partyA, partyB), "second pact", "tester"); err != nil {
		t.Fatalf("init second pact: %v", err)
	}
	a := genKeypair(t)
	b := genKeypair(t)

	// one ack per pact, by opposite parties: reciprocal only across pacts
	if _, err := env.Engine.SubmitAcknowledgment(env.Ctx, pactID, a.ID, b.ID, "hello b", signedAck(t, a, "hello b"), ""); err != nil {
		t.Fatalf("submit in first pact: %v", err)
	}
	if _, err := env.Engine.SubmitAcknowledgment(env.Ctx, otherPact, b.ID, a.ID, "hello a", signedAck(t, b, "hello a"), ""); err != nil {
		t.Fatalf("submit in second pact: %v", err)
	}

	h1, err := env.Engine.GetMutualHandshake(env.Ctx, pactID, a.ID, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := env.Engine.GetMutualHandshake(env.Ctx, otherPact, a.ID, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if h1.Hash == h2.Hash {
		t.Fatalf("the same pair in two pacts must not share a handshake")
	}
	if h1.Active || h2.Active {
		t.Fatalf("half-open handshakes activated across pacts: %+v / %+v", h1, h2)
	}
	if h1.AckLowHash != "" && h1.AckHighHash != "" {
		t.Fatalf("first pact handshake has both slots filled: %+v", h1)
	}

	// completing the pair inside one pact activates only that pact
	if _, err := env.Engine.SubmitAcknowledgment(env.Ctx, pactID, b.ID, a.ID, "hello a again", signedAck(t, b, "hello a again"), ""); err != nil {
		t.Fatalf("reciprocal submit in first pact: %v", err)
	}
	h1, err = env.Engine.GetMutualHandshake(env.Ctx, pactID, a.ID, b.ID)
	if err != nil || !h1.Active {
		t.Fatalf("first pact handshake should be active: %v (%+v)", err, h1)
	}
	h2, err = env.Engine.GetMutualHandshake(env.Ctx, otherPact, a.ID, b.ID)
	if err != nil || h2.Active {
		t.Fatalf("second pact handshake should stay half-open: %v (%+v)", err, h2)
	}
}

func TestHandshakeMissing(t *testing.T) {
	env := newTestEnv(t)
	a := genKeypair(t)
	b := genKeypair(t)
	if _, err := env.Engine.GetMutualHandshake(env.Ctx, pactID, a.ID, b.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("missing handshake should be not found, got %v", err)
	}
}
