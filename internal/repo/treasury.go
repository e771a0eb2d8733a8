package repo

import (
	"context"
	"database/sql"

	"pactline/internal/domain"
)

func (r Repo) GetTreasury(ctx context.Context, pactID string) (domain.TreasurySummary, error) {
	t := domain.TreasurySummary{PactID: pactID}
	err := r.DB.QueryRowContext(ctx, `SELECT total_deposits,total_withdrawals FROM treasuries WHERE pact_id=?`, pactID).
		Scan(&t.TotalDeposits, &t.TotalWithdrawals)
	if err == sql.ErrNoRows {
		return t, nil
	}
	t.Balance = t.TotalDeposits - t.TotalWithdrawals
	return t, err
}

func (r Repo) GetTreasuryTx(ctx context.Context, tx *sql.Tx, pactID string) (domain.TreasurySummary, error) {
	t := domain.TreasurySummary{PactID: pactID}
	err := tx.QueryRowContext(ctx, `SELECT total_deposits,total_withdrawals FROM treasuries WHERE pact_id=?`, pactID).
		Scan(&t.TotalDeposits, &t.TotalWithdrawals)
	if err == sql.ErrNoRows {
		return t, nil
	}
	t.Balance = t.TotalDeposits - t.TotalWithdrawals
	return t, err
}

func (r Repo) InsertDepositTx(ctx context.Context, tx *sql.Tx, d domain.Deposit) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO deposits(pact_id,depositor,amount,ts) VALUES (?,?,?,?)`,
		d.PactID, d.Depositor, d.Amount, d.TS)
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO treasuries(pact_id,total_deposits,total_withdrawals) VALUES (?,?,0)
ON CONFLICT(pact_id) DO UPDATE SET total_deposits=total_deposits+excluded.total_deposits`, d.PactID, d.Amount); err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) InsertWithdrawalTx(ctx context.Context, tx *sql.Tx, w domain.Withdrawal) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO withdrawals(pact_id,recipient,amount,ts,executed) VALUES (?,?,?,?,1)`,
		w.PactID, w.Recipient, w.Amount, w.TS)
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO treasuries(pact_id,total_deposits,total_withdrawals) VALUES (?,0,?)
ON CONFLICT(pact_id) DO UPDATE SET total_withdrawals=total_withdrawals+excluded.total_withdrawals`, w.PactID, w.Amount); err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) ListDeposits(ctx context.Context, pactID, depositor string) ([]domain.Deposit, error) {
	query := `SELECT id,pact_id,depositor,amount,ts FROM deposits WHERE pact_id=? ORDER BY id ASC`
	args := []any{pactID}
	if depositor != "" {
		query = `SELECT id,pact_id,depositor,amount,ts FROM deposits WHERE pact_id=? AND depositor=? ORDER BY id ASC`
		args = append(args, depositor)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Deposit
	for rows.Next() {
		var d domain.Deposit
		if err := rows.Scan(&d.ID, &d.PactID, &d.Depositor, &d.Amount, &d.TS); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) ListWithdrawals(ctx context.Context, pactID, recipient string) ([]domain.Withdrawal, error) {
	query := `SELECT id,pact_id,recipient,amount,ts,executed FROM withdrawals WHERE pact_id=? ORDER BY id ASC`
	args := []any{pactID}
	if recipient != "" {
		query = `SELECT id,pact_id,recipient,amount,ts,executed FROM withdrawals WHERE pact_id=? AND recipient=? ORDER BY id ASC`
		args = append(args, recipient)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Withdrawal
	for rows.Next() {
		var w domain.Withdrawal
		if err := rows.Scan(&w.ID, &w.PactID, &w.Recipient, &w.Amount, &w.TS, &w.Executed); err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

func (r Repo) IsWithdrawerTx(ctx context.Context, tx *sql.Tx, pactID, participant string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM withdrawers WHERE pact_id=? AND participant=?`, pactID, participant).Scan(&n)
	return n > 0, err
}

func (r Repo) SetWithdrawerTx(ctx context.Context, tx *sql.Tx, pactID, participant string, allowed bool, ts string) error {
	if allowed {
		_, err := tx.ExecContext(ctx, `INSERT INTO withdrawers(pact_id,participant,ts) VALUES (?,?,?)
ON CONFLICT(pact_id,participant) DO UPDATE SET ts=excluded.ts`, pactID, participant, ts)
		return err
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM withdrawers WHERE pact_id=? AND participant=?`, pactID, participant)
	return err
}

func (r Repo) ListWithdrawers(ctx context.Context, pactID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT participant FROM withdrawers WHERE pact_id=? ORDER BY participant ASC`, pactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
