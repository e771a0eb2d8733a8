package repo

import (
	"context"
	"database/sql"

	"pactline/internal/domain"
)

func scanDispute(scan func(dest ...any) error) (domain.Dispute, error) {
	var d domain.Dispute
	var initEv, counterEv, resolver, resolution, resolvedAt sql.NullString
	err := scan(&d.ID, &d.PactID, &d.Initiator, &d.Counterparty, &d.Type, &d.RelatedID, &d.Description,
		&initEv, &counterEv, &d.Status, &resolver, &resolution, &d.CreatedAt, &d.UpdatedAt, &resolvedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	if initEv.Valid {
		d.InitiatorEvidence = initEv.String
	}
	if counterEv.Valid {
		d.CounterpartyEvidence = counterEv.String
	}
	if resolver.Valid {
		d.Resolver = &resolver.String
	}
	if resolution.Valid {
		d.Resolution = resolution.String
	}
	if resolvedAt.Valid {
		d.ResolvedAt = &resolvedAt.String
	}
	return d, nil
}

const disputeColumns = `id,pact_id,initiator,counterparty,type,related_id,description,initiator_evidence,counterparty_evidence,status,resolver,resolution,created_at,updated_at,resolved_at`

func (r Repo) InsertDisputeTx(ctx context.Context, tx *sql.Tx, d domain.Dispute) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO disputes(pact_id,initiator,counterparty,type,related_id,description,initiator_evidence,counterparty_evidence,status,resolver,resolution,created_at,updated_at,resolved_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.PactID, d.Initiator, d.Counterparty, d.Type, d.RelatedID, d.Description,
		nullable(d.InitiatorEvidence), nullable(d.CounterpartyEvidence), d.Status,
		nullableStringPtr(d.Resolver), nullable(d.Resolution), d.CreatedAt, d.UpdatedAt, nullableStringPtr(d.ResolvedAt))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetDispute(ctx context.Context, pactID string, id int64) (domain.Dispute, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE pact_id=? AND id=?`, pactID, id)
	return scanDispute(row.Scan)
}

func (r Repo) GetDisputeTx(ctx context.Context, tx *sql.Tx, pactID string, id int64) (domain.Dispute, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE pact_id=? AND id=?`, pactID, id)
	return scanDispute(row.Scan)
}

func (r Repo) UpdateDisputeTx(ctx context.Context, tx *sql.Tx, d domain.Dispute) error {
	res, err := tx.ExecContext(ctx, `UPDATE disputes SET initiator_evidence=?, counterparty_evidence=?, status=?, resolver=?, resolution=?, updated_at=?, resolved_at=? WHERE pact_id=? AND id=?`,
		nullable(d.InitiatorEvidence), nullable(d.CounterpartyEvidence), d.Status,
		nullableStringPtr(d.Resolver), nullable(d.Resolution), d.UpdatedAt, nullableStringPtr(d.ResolvedAt), d.PactID, d.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListDisputes(ctx context.Context, pactID, participant, status string) ([]domain.Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE pact_id=?`
	args := []any{pactID}
	if participant != "" {
		query += ` AND (initiator=? OR counterparty=?)`
		args = append(args, participant, participant)
	}
	if status != "" {
		query += ` AND status=?`
		args = append(args, status)
	}
	query += ` ORDER BY id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Dispute
	for rows.Next() {
		d, err := scanDispute(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}
