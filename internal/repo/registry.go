package repo

import (
	"context"
	"database/sql"

	"pactline/internal/domain"
)

func (r Repo) InsertAcknowledgmentTx(ctx context.Context, tx *sql.Tx, a domain.Acknowledgment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO acknowledgments(hash,pact_id,signer,target,message,signature,ts) VALUES (?,?,?,?,?,?,?)`,
		a.Hash, a.PactID, a.Signer, a.Target, a.Message, a.Signature, a.TS)
	return err
}

func (r Repo) AckExistsTx(ctx context.Context, tx *sql.Tx, hash string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM acknowledgments WHERE hash=?`, hash).Scan(&n)
	return n > 0, err
}

func (r Repo) GetAcknowledgment(ctx context.Context, hash string) (domain.Acknowledgment, error) {
	var a domain.Acknowledgment
	err := r.DB.QueryRowContext(ctx, `SELECT hash,pact_id,signer,target,message,signature,ts FROM acknowledgments WHERE hash=?`, hash).
		Scan(&a.Hash, &a.PactID, &a.Signer, &a.Target, &a.Message, &a.Signature, &a.TS)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) ListAcknowledgments(ctx context.Context, pactID, signer string) ([]domain.Acknowledgment, error) {
	query := `SELECT hash,pact_id,signer,target,message,signature,ts FROM acknowledgments WHERE pact_id=? ORDER BY ts ASC, hash ASC`
	args := []any{pactID}
	if signer != "" {
		query = `SELECT hash,pact_id,signer,target,message,signature,ts FROM acknowledgments WHERE pact_id=? AND signer=? ORDER BY ts ASC, hash ASC`
		args = append(args, signer)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Acknowledgment
	for rows.Next() {
		var a domain.Acknowledgment
		if err := rows.Scan(&a.Hash, &a.PactID, &a.Signer, &a.Target, &a.Message, &a.Signature, &a.TS); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func scanHandshake(scan func(dest ...any) error) (domain.Handshake, error) {
	var h domain.Handshake
	var ackLow, ackHigh, activatedAt sql.NullString
	err := scan(&h.Hash, &h.PactID, &h.PartyLow, &h.PartyHigh, &ackLow, &ackHigh, &h.Active, &activatedAt)
	if err == sql.ErrNoRows {
		return h, ErrNotFound
	}
	if err != nil {
		return h, err
	}
	if ackLow.Valid {
		h.AckLowHash = ackLow.String
	}
	if ackHigh.Valid {
		h.AckHighHash = ackHigh.String
	}
	if activatedAt.Valid {
		h.ActivatedAt = &activatedAt.String
	}
	return h, nil
}

func (r Repo) GetHandshake(ctx context.Context, hash string) (domain.Handshake, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT hash,pact_id,party_low,party_high,ack_low_hash,ack_high_hash,active,activated_at FROM handshakes WHERE hash=?`, hash)
	return scanHandshake(row.Scan)
}

func (r Repo) GetHandshakeTx(ctx context.Context, tx *sql.Tx, hash string) (domain.Handshake, error) {
	row := tx.QueryRowContext(ctx, `SELECT hash,pact_id,party_low,party_high,ack_low_hash,ack_high_hash,active,activated_at FROM handshakes WHERE hash=?`, hash)
	return scanHandshake(row.Scan)
}

func (r Repo) UpsertHandshakeTx(ctx context.Context, tx *sql.Tx, h domain.Handshake) error {
	var activatedAt any
	if h.ActivatedAt != nil {
		activatedAt = *h.ActivatedAt
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO handshakes(hash,pact_id,party_low,party_high,ack_low_hash,ack_high_hash,active,activated_at) VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT(hash) DO UPDATE SET ack_low_hash=excluded.ack_low_hash, ack_high_hash=excluded.ack_high_hash, active=excluded.active, activated_at=excluded.activated_at`,
		h.Hash, h.PactID, h.PartyLow, h.PartyHigh, nullable(h.AckLowHash), nullable(h.AckHighHash), h.Active, activatedAt)
	if err != nil {
		return err
	}
	for _, p := range []string{h.PartyLow, h.PartyHigh} {
		if _, err := tx.ExecContext(ctx, `INSERT INTO handshake_index(pact_id,participant,handshake_hash) VALUES (?,?,?)
ON CONFLICT(participant,handshake_hash) DO NOTHING`, h.PactID, p, h.Hash); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) ListHandshakes(ctx context.Context, pactID, participant string) ([]domain.Handshake, error) {
	query := `SELECT hash,pact_id,party_low,party_high,ack_low_hash,ack_high_hash,active,activated_at FROM handshakes WHERE pact_id=? ORDER BY hash ASC`
	args := []any{pactID}
	if participant != "" {
		query = `SELECT h.hash,h.pact_id,h.party_low,h.party_high,h.ack_low_hash,h.ack_high_hash,h.active,h.activated_at
FROM handshakes h JOIN handshake_index i ON i.handshake_hash=h.hash
WHERE h.pact_id=? AND i.participant=? ORDER BY h.hash ASC`
		args = append(args, participant)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Handshake
	for rows.Next() {
		h, err := scanHandshake(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}
