package identity_test

import (
	"testing"

	"pactline/internal/identity"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	participant, priv, err := identity.Keygen()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	if len(participant) != 64 {
		t.Fatalf("participant id length = %d, want 64 hex chars", len(participant))
	}

	msg := []byte("I acknowledge working with you")
	sig, err := identity.Sign(msg, priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := identity.Verify(participant, msg, sig); err != nil {
		t.Fatalf("verify: %v", err)
	}

	// tampered message fails
	if err := identity.Verify(participant, []byte("something else"), sig); err == nil {
		t.Fatalf("expected verify failure on tampered message")
	}

	// a different key fails
	other, _, err := identity.Keygen()
	if err != nil {
		t.Fatal(err)
	}
	if err := identity.Verify(other, msg, sig); err == nil {
		t.Fatalf("expected verify failure with wrong key")
	}
}

func TestVerifyMalformedInputs(t *testing.T) {
	participant, priv, err := identity.Keygen()
	if err != nil {
		t.Fatal(err)
	}
	sig, err := identity.Sign([]byte("m"), priv)
	if err != nil {
		t.Fatal(err)
	}

	if err := identity.Verify("not-hex", []byte("m"), sig); err == nil {
		t.Fatalf("expected error for non-hex participant id")
	}
	if err := identity.Verify("abcd", []byte("m"), sig); err == nil {
		t.Fatalf("expected error for truncated public key")
	}
	if err := identity.Verify(participant, []byte("m"), "zz"); err == nil {
		t.Fatalf("expected error for non-hex signature")
	}
	if err := identity.Verify(participant, []byte("m"), "abcd"); err == nil {
		t.Fatalf("expected error for truncated signature")
	}
}

func TestParticipantIDDerivation(t *testing.T) {
	participant, priv, err := identity.Keygen()
	if err != nil {
		t.Fatal(err)
	}
	derived, err := identity.ParticipantID(priv)
	if err != nil {
		t.Fatal(err)
	}
	if derived != participant {
		t.Fatalf("derived id %s != generated id %s", derived, participant)
	}
}
