package engine

import (
	"context"
	"database/sql"
	"fmt"

	"pactline/internal/domain"
	"pactline/internal/engine/auth"
	"pactline/internal/events"
)

// Deposit records an incoming amount from any participant.
func (e Engine) Deposit(ctx context.Context, pactID, caller string, amount int64) (domain.Deposit, error) {
	if caller == "" {
		return domain.Deposit{}, auth.ArgumentError{Field: "caller", Reason: "required"}
	}
	if amount <= 0 {
		return domain.Deposit{}, auth.ArgumentError{Field: "amount", Reason: "must be positive"}
	}
	if _, err := e.Repo.GetPact(ctx, pactID); err != nil {
		return domain.Deposit{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Deposit{}, err
	}
	defer tx.Rollback()

	d := domain.Deposit{PactID: pactID, Depositor: caller, Amount: amount, TS: e.nowTS()}
	id, err := e.Repo.InsertDepositTx(ctx, tx, d)
	if err != nil {
		return domain.Deposit{}, fmt.Errorf("insert deposit: %w", err)
	}
	d.ID = id
	if err := e.Events.Append(ctx, tx, "treasury.deposit", pactID, "deposit", fmt.Sprint(id), caller, events.EventPayload{
		"amount": amount,
	}); err != nil {
		return domain.Deposit{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Deposit{}, err
	}
	return d, nil
}

// Withdraw pays a recipient from the treasury. Callable by the gate owner
// identity or an authorized withdrawer.
func (e Engine) Withdraw(ctx context.Context, pactID, caller, recipient string, amount int64) (domain.Withdrawal, error) {
	cfg, err := e.pactConfig(ctx, pactID)
	if err != nil {
		return domain.Withdrawal{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Withdrawal{}, err
	}
	defer tx.Rollback()

	if caller != cfg.Gate.Owner {
		ok, err := e.Repo.IsWithdrawerTx(ctx, tx, pactID, caller)
		if err != nil {
			return domain.Withdrawal{}, err
		}
		if !ok {
			return domain.Withdrawal{}, auth.UnauthorizedError{Role: "authorized withdrawer"}
		}
	}
	w, err := e.withdrawTx(ctx, tx, pactID, recipient, amount, caller)
	if err != nil {
		return domain.Withdrawal{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Withdrawal{}, err
	}
	return w, nil
}

// withdrawTx journals a withdrawal, bumps the running total and credits the
// recipient's external account, all inside the caller's transaction.
func (e Engine) withdrawTx(ctx context.Context, tx *sql.Tx, pactID, recipient string, amount int64, actor string) (domain.Withdrawal, error) {
	if recipient == "" {
		return domain.Withdrawal{}, auth.ArgumentError{Field: "recipient", Reason: "required"}
	}
	if amount <= 0 {
		return domain.Withdrawal{}, auth.ArgumentError{Field: "amount", Reason: "must be positive"}
	}
	t, err := e.Repo.GetTreasuryTx(ctx, tx, pactID)
	if err != nil {
		return domain.Withdrawal{}, err
	}
	if amount > t.Balance {
		return domain.Withdrawal{}, auth.InsufficientFundsError{Balance: t.Balance, Requested: amount}
	}
	ts := e.nowTS()
	w := domain.Withdrawal{PactID: pactID, Recipient: recipient, Amount: amount, TS: ts, Executed: true}
	id, err := e.Repo.InsertWithdrawalTx(ctx, tx, w)
	if err != nil {
		return domain.Withdrawal{}, fmt.Errorf("insert withdrawal: %w", err)
	}
	w.ID = id
	if err := e.Repo.CreditAccountTx(ctx, tx, pactID, recipient, amount, ts); err != nil {
		return domain.Withdrawal{}, fmt.Errorf("credit account: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "treasury.withdraw", pactID, "withdrawal", fmt.Sprint(id), actor, events.EventPayload{
		"recipient": recipient,
		"amount":    amount,
	}); err != nil {
		return domain.Withdrawal{}, err
	}
	return w, nil
}

// SetAuthorizedWithdrawer grants or revokes standing withdraw authority.
// Gate-only; parties route it through a gate operation.
func (e Engine) SetAuthorizedWithdrawer(ctx context.Context, pactID, caller, participant string, allowed bool) error {
	cfg, err := e.pactConfig(ctx, pactID)
	if err != nil {
		return err
	}
	if err := requireGate(cfg, caller); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.setWithdrawerTx(ctx, tx, pactID, participant, allowed, caller); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) setWithdrawerTx(ctx context.Context, tx *sql.Tx, pactID, participant string, allowed bool, actor string) error {
	if participant == "" {
		return auth.ArgumentError{Field: "participant", Reason: "required"}
	}
	if err := e.Repo.SetWithdrawerTx(ctx, tx, pactID, participant, allowed, e.nowTS()); err != nil {
		return err
	}
	return e.Events.Append(ctx, tx, "treasury.set_withdrawer", pactID, "withdrawer", participant, actor, events.EventPayload{
		"allowed": allowed,
	})
}

// TreasurySummary returns the running totals and cross-checks them against
// the journals.
func (e Engine) TreasurySummary(ctx context.Context, pactID string) (domain.TreasurySummary, error) {
	t, err := e.Repo.GetTreasury(ctx, pactID)
	if err != nil {
		return domain.TreasurySummary{}, err
	}
	var journalDeposits, journalWithdrawals int64
	if err := e.DB.QueryRowContext(ctx, `SELECT COALESCE(SUM(amount),0) FROM deposits WHERE pact_id=?`, pactID).Scan(&journalDeposits); err != nil {
		return domain.TreasurySummary{}, err
	}
	if err := e.DB.QueryRowContext(ctx, `SELECT COALESCE(SUM(amount),0) FROM withdrawals WHERE pact_id=?`, pactID).Scan(&journalWithdrawals); err != nil {
		return domain.TreasurySummary{}, err
	}
	if journalDeposits != t.TotalDeposits || journalWithdrawals != t.TotalWithdrawals {
		return domain.TreasurySummary{}, fmt.Errorf("treasury totals diverge from journals (deposits %d/%d, withdrawals %d/%d)",
			t.TotalDeposits, journalDeposits, t.TotalWithdrawals, journalWithdrawals)
	}
	return t, nil
}

func (e Engine) ListDeposits(ctx context.Context, pactID, depositor string) ([]domain.Deposit, error) {
	return e.Repo.ListDeposits(ctx, pactID, depositor)
}

func (e Engine) ListWithdrawals(ctx context.Context, pactID, recipient string) ([]domain.Withdrawal, error) {
	return e.Repo.ListWithdrawals(ctx, pactID, recipient)
}

func (e Engine) ListWithdrawers(ctx context.Context, pactID string) ([]string, error) {
	return e.Repo.ListWithdrawers(ctx, pactID)
}

func (e Engine) Account(ctx context.Context, pactID, participant string) (domain.Account, error) {
	return e.Repo.GetAccount(ctx, pactID, participant)
}
