package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"pactline/internal/domain"
	"pactline/internal/engine/auth"
	"pactline/internal/events"
	"pactline/internal/identity"
	"pactline/internal/repo"
)

func ackHash(signer, target, message, signature, ts string) string {
	sum := sha256.Sum256([]byte(signer + "|" + target + "|" + message + "|" + signature + "|" + ts))
	return hex.EncodeToString(sum[:])
}

// canonicalPair orders two participant ids so a handshake key is
// order-insensitive.
func canonicalPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

// handshakeHash keys a handshake by pact and ordered pair, so the same two
// participants get independent handshakes in different pacts.
func handshakeHash(pactID, a, b string) string {
	low, high := canonicalPair(a, b)
	sum := sha256.Sum256([]byte(pactID + "|" + low + "|" + high))
	return hex.EncodeToString(sum[:])
}

// SubmitAcknowledgment stores a signed statement by caller about target and
// runs handshake matching. ts defaults to the engine clock; resubmitting the
// same tuple is rejected.
func (e Engine) SubmitAcknowledgment(ctx context.Context, pactID, caller, target, message, signature, ts string) (domain.Acknowledgment, error) {
	if caller == "" {
		return domain.Acknowledgment{}, auth.ArgumentError{Field: "caller", Reason: "required"}
	}
	if target == "" {
		return domain.Acknowledgment{}, auth.ArgumentError{Field: "target", Reason: "required"}
	}
	if caller == target {
		return domain.Acknowledgment{}, auth.ArgumentError{Field: "target", Reason: "self-acknowledgment not allowed"}
	}
	if message == "" {
		return domain.Acknowledgment{}, auth.ArgumentError{Field: "message", Reason: "required"}
	}
	if signature == "" {
		return domain.Acknowledgment{}, auth.ArgumentError{Field: "signature", Reason: "required"}
	}
	if err := identity.Verify(caller, []byte(message), signature); err != nil {
		return domain.Acknowledgment{}, auth.ArgumentError{Field: "signature", Reason: err.Error()}
	}
	if _, err := e.Repo.GetPact(ctx, pactID); err != nil {
		return domain.Acknowledgment{}, err
	}
	if ts == "" {
		ts = e.nowTS()
	}

	a := domain.Acknowledgment{
		Hash:      ackHash(caller, target, message, signature, ts),
		PactID:    pactID,
		Signer:    caller,
		Target:    target,
		Message:   message,
		Signature: signature,
		TS:        ts,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Acknowledgment{}, err
	}
	defer tx.Rollback()

	exists, err := e.Repo.AckExistsTx(ctx, tx, a.Hash)
	if err != nil {
		return domain.Acknowledgment{}, err
	}
	if exists {
		return domain.Acknowledgment{}, auth.StateError{Entity: "acknowledgment", Reason: "already submitted"}
	}
	if err := e.Repo.InsertAcknowledgmentTx(ctx, tx, a); err != nil {
		return domain.Acknowledgment{}, fmt.Errorf("insert acknowledgment: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "ack.submit", pactID, "acknowledgment", a.Hash, caller, events.EventPayload{
		"target": target,
	}); err != nil {
		return domain.Acknowledgment{}, err
	}

	// Handshake matching: fill the caller's slot and activate on the first
	// moment both slots are non-empty. The active flag guards re-entry.
	hHash := handshakeHash(pactID, caller, target)
	h, err := e.Repo.GetHandshakeTx(ctx, tx, hHash)
	if err == repo.ErrNotFound {
		low, high := canonicalPair(caller, target)
		h = domain.Handshake{Hash: hHash, PactID: pactID, PartyLow: low, PartyHigh: high}
	} else if err != nil {
		return domain.Acknowledgment{}, err
	}
	if h.PactID != pactID {
		return domain.Acknowledgment{}, auth.StateError{Entity: "handshake", Reason: "belongs to another pact"}
	}
	if caller == h.PartyLow {
		h.AckLowHash = a.Hash
	} else {
		h.AckHighHash = a.Hash
	}
	if !h.Active && h.AckLowHash != "" && h.AckHighHash != "" {
		h.Active = true
		activated := e.nowTS()
		h.ActivatedAt = &activated
		if err := e.Events.Append(ctx, tx, "handshake.activate", pactID, "handshake", h.Hash, caller, events.EventPayload{
			"party_low":  h.PartyLow,
			"party_high": h.PartyHigh,
		}); err != nil {
			return domain.Acknowledgment{}, err
		}
	}
	if err := e.Repo.UpsertHandshakeTx(ctx, tx, h); err != nil {
		return domain.Acknowledgment{}, fmt.Errorf("upsert handshake: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Acknowledgment{}, err
	}
	return a, nil
}

// GetMutualHandshake looks up the handshake between two participants,
// whichever order they are given in.
func (e Engine) GetMutualHandshake(ctx context.Context, pactID, a, b string) (domain.Handshake, error) {
	h, err := e.Repo.GetHandshake(ctx, handshakeHash(pactID, a, b))
	if err != nil {
		return domain.Handshake{}, err
	}
	if h.PactID != pactID {
		return domain.Handshake{}, repo.ErrNotFound
	}
	return h, nil
}

func (e Engine) GetAcknowledgment(ctx context.Context, hash string) (domain.Acknowledgment, error) {
	return e.Repo.GetAcknowledgment(ctx, hash)
}

func (e Engine) ListAcknowledgments(ctx context.Context, pactID, signer string) ([]domain.Acknowledgment, error) {
	return e.Repo.ListAcknowledgments(ctx, pactID, signer)
}

func (e Engine) ListHandshakes(ctx context.Context, pactID, participant string) ([]domain.Handshake, error) {
	return e.Repo.ListHandshakes(ctx, pactID, participant)
}
