package repo

import (
	"context"
	"database/sql"

	"pactline/internal/domain"
)

func (r Repo) InsertOperationTx(ctx context.Context, tx *sql.Tx, op domain.Operation) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO gate_operations(pact_id,proposer,target,value,payload_json,executed,created_at) VALUES (?,?,?,?,?,0,?)`,
		op.PactID, op.Proposer, op.Target, op.Value, nullable(op.PayloadJSON), op.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetOperation(ctx context.Context, pactID string, id int64) (domain.Operation, error) {
	return getOperation(ctx, r.DB.QueryRowContext, r.DB.QueryContext, pactID, id)
}

func (r Repo) GetOperationTx(ctx context.Context, tx *sql.Tx, pactID string, id int64) (domain.Operation, error) {
	return getOperation(ctx, tx.QueryRowContext, tx.QueryContext, pactID, id)
}

type queryRowFn func(ctx context.Context, query string, args ...any) *sql.Row
type queryFn func(ctx context.Context, query string, args ...any) (*sql.Rows, error)

func getOperation(ctx context.Context, queryRow queryRowFn, query queryFn, pactID string, id int64) (domain.Operation, error) {
	var op domain.Operation
	var payload sql.NullString
	var executedAt sql.NullString
	err := queryRow(ctx, `SELECT id,pact_id,proposer,target,value,payload_json,executed,created_at,executed_at FROM gate_operations WHERE pact_id=? AND id=?`, pactID, id).
		Scan(&op.ID, &op.PactID, &op.Proposer, &op.Target, &op.Value, &payload, &op.Executed, &op.CreatedAt, &executedAt)
	if err == sql.ErrNoRows {
		return op, ErrNotFound
	}
	if err != nil {
		return op, err
	}
	if payload.Valid {
		op.PayloadJSON = payload.String
	}
	if executedAt.Valid {
		op.ExecutedAt = &executedAt.String
	}
	rows, err := query(ctx, `SELECT participant FROM gate_approvals WHERE operation_id=? ORDER BY ts ASC, participant ASC`, id)
	if err != nil {
		return op, err
	}
	defer rows.Close()
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return op, err
		}
		op.Approvals = append(op.Approvals, p)
	}
	return op, rows.Err()
}

func (r Repo) ListOperations(ctx context.Context, pactID string, pending bool) ([]domain.Operation, error) {
	query := `SELECT id FROM gate_operations WHERE pact_id=? ORDER BY id ASC`
	if pending {
		query = `SELECT id FROM gate_operations WHERE pact_id=? AND executed=0 ORDER BY id ASC`
	}
	rows, err := r.DB.QueryContext(ctx, query, pactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var res []domain.Operation
	for _, id := range ids {
		op, err := r.GetOperation(ctx, pactID, id)
		if err != nil {
			return nil, err
		}
		res = append(res, op)
	}
	return res, nil
}

// InsertApprovalTx records an approval; a duplicate (operation, participant)
// pair violates the primary key and surfaces as an error.
func (r Repo) InsertApprovalTx(ctx context.Context, tx *sql.Tx, operationID int64, participant, ts string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO gate_approvals(operation_id,participant,ts) VALUES (?,?,?)`, operationID, participant, ts)
	return err
}

func (r Repo) HasApprovalTx(ctx context.Context, tx *sql.Tx, operationID int64, participant string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM gate_approvals WHERE operation_id=? AND participant=?`, operationID, participant).Scan(&n)
	return n > 0, err
}

func (r Repo) CountApprovalsTx(ctx context.Context, tx *sql.Tx, operationID int64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM gate_approvals WHERE operation_id=?`, operationID).Scan(&n)
	return n, err
}

// MarkOperationExecutedTx flips executed before the operation's effect is
// dispatched; the surrounding transaction rolls both back together on failure.
func (r Repo) MarkOperationExecutedTx(ctx context.Context, tx *sql.Tx, operationID int64, ts string) error {
	res, err := tx.ExecContext(ctx, `UPDATE gate_operations SET executed=1, executed_at=? WHERE id=? AND executed=0`, ts, operationID)
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
