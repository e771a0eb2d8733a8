package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// Participant identifiers are hex-encoded BIP-340 x-only public keys. Verify
// checks that a signature over a message was produced by the key behind the
// claimed identifier; the core never creates signatures on behalf of callers.

// Verify checks a hex Schnorr signature over message against the participant
// identifier.
func Verify(participant string, message []byte, signature string) error {
	pk, err := hex.DecodeString(participant)
	if err != nil {
		return fmt.Errorf("participant id is not hex: %w", err)
	}
	pubkey, err := schnorr.ParsePubKey(pk)
	if err != nil {
		return fmt.Errorf("participant id is not a valid public key: %w", err)
	}
	s, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("signature is not hex: %w", err)
	}
	sig, err := schnorr.ParseSignature(s)
	if err != nil {
		return fmt.Errorf("malformed signature: %w", err)
	}
	hash := sha256.Sum256(message)
	if !sig.Verify(hash[:], pubkey) {
		return fmt.Errorf("signature does not match participant")
	}
	return nil
}

// Sign produces a hex Schnorr signature over message with a hex private key.
// Used by the CLI and tests; the service side only ever verifies.
func Sign(message []byte, privateKey string) (string, error) {
	s, err := hex.DecodeString(privateKey)
	if err != nil {
		return "", fmt.Errorf("invalid private key: %w", err)
	}
	sk, _ := btcec.PrivKeyFromBytes(s)
	hash := sha256.Sum256(message)
	sig, err := schnorr.Sign(sk, hash[:])
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sig.Serialize()), nil
}

// Keygen creates a fresh keypair and returns (participant id, private key) as
// hex strings.
func Keygen() (string, string, error) {
	sk, err := btcec.NewPrivateKey()
	if err != nil {
		return "", "", err
	}
	pub := schnorr.SerializePubKey(sk.PubKey())
	return hex.EncodeToString(pub), hex.EncodeToString(sk.Serialize()), nil
}

// ParticipantID derives the participant identifier for a hex private key.
func ParticipantID(privateKey string) (string, error) {
	s, err := hex.DecodeString(privateKey)
	if err != nil {
		return "", fmt.Errorf("invalid private key: %w", err)
	}
	sk, _ := btcec.PrivKeyFromBytes(s)
	return hex.EncodeToString(schnorr.SerializePubKey(sk.PubKey())), nil
}
