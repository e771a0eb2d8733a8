package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"pactline/internal/config"
	"pactline/internal/domain"
	"pactline/internal/engine/auth"
	"pactline/internal/events"
)

// CreateProposal opens a governance proposal with a voting window of the
// configured period starting now. The optional target runs on execution.
func (e Engine) CreateProposal(ctx context.Context, pactID, caller, description, target string, value int64, payloadJSON string) (domain.Proposal, error) {
	cfg, err := e.pactConfig(ctx, pactID)
	if err != nil {
		return domain.Proposal{}, err
	}
	if caller == "" {
		return domain.Proposal{}, auth.ArgumentError{Field: "caller", Reason: "required"}
	}
	if description == "" {
		return domain.Proposal{}, auth.ArgumentError{Field: "description", Reason: "required"}
	}
	if target != "" {
		if !gateTargets[target] || strings.HasPrefix(target, "proposals.") {
			return domain.Proposal{}, auth.ArgumentError{Field: "target", Reason: fmt.Sprintf("unknown dispatch target %q", target)}
		}
	}
	if payloadJSON != "" && !json.Valid([]byte(payloadJSON)) {
		return domain.Proposal{}, auth.ArgumentError{Field: "payload", Reason: "must be valid JSON"}
	}
	period, err := cfg.VotingPeriod()
	if err != nil {
		return domain.Proposal{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Proposal{}, err
	}
	defer tx.Rollback()

	start := e.now().UTC()
	p := domain.Proposal{
		PactID:      pactID,
		Proposer:    caller,
		Description: description,
		Target:      target,
		Value:       value,
		PayloadJSON: payloadJSON,
		StartTime:   start.Format(time.RFC3339),
		EndTime:     start.Add(period).Format(time.RFC3339),
	}
	id, err := e.Repo.InsertProposalTx(ctx, tx, p)
	if err != nil {
		return domain.Proposal{}, fmt.Errorf("insert proposal: %w", err)
	}
	p.ID = id
	if err := e.Events.Append(ctx, tx, "proposal.create", pactID, "proposal", fmt.Sprint(id), caller, events.EventPayload{
		"end_time": p.EndTime,
	}); err != nil {
		return domain.Proposal{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Proposal{}, err
	}
	return p, nil
}

// Vote records a vote. Any participant may vote, once, while the window is
// open.
func (e Engine) Vote(ctx context.Context, pactID, caller string, proposalID int64, support bool) (domain.Proposal, error) {
	if caller == "" {
		return domain.Proposal{}, auth.ArgumentError{Field: "caller", Reason: "required"}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Proposal{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProposalTx(ctx, tx, pactID, proposalID)
	if err != nil {
		return domain.Proposal{}, err
	}
	if p.Executed {
		return domain.Proposal{}, auth.StateError{Entity: "proposal", From: "executed", Reason: "voting closed"}
	}
	if p.Cancelled {
		return domain.Proposal{}, auth.StateError{Entity: "proposal", From: "cancelled", Reason: "voting closed"}
	}
	now := e.now().UTC()
	end, err := time.Parse(time.RFC3339, p.EndTime)
	if err != nil {
		return domain.Proposal{}, fmt.Errorf("parse end_time: %w", err)
	}
	if !now.Before(end) {
		return domain.Proposal{}, auth.StateError{Entity: "proposal", Reason: "voting window closed"}
	}
	voted, err := e.Repo.HasVoteTx(ctx, tx, proposalID, caller)
	if err != nil {
		return domain.Proposal{}, err
	}
	if voted {
		return domain.Proposal{}, auth.StateError{Entity: "proposal", Reason: "already voted"}
	}
	if err := e.Repo.InsertVoteTx(ctx, tx, domain.Vote{ProposalID: proposalID, Voter: caller, Support: support, TS: e.nowTS()}); err != nil {
		return domain.Proposal{}, fmt.Errorf("insert vote: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "proposal.vote", pactID, "proposal", fmt.Sprint(proposalID), caller, events.EventPayload{
		"support": support,
	}); err != nil {
		return domain.Proposal{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Proposal{}, err
	}
	return e.Repo.GetProposal(ctx, pactID, proposalID)
}

// cannotExecuteReason returns the first failing execute guard, or "" when the
// proposal is executable.
func cannotExecuteReason(p domain.Proposal, cfg *config.Config, now time.Time) string {
	if p.Executed {
		return "already executed"
	}
	if p.Cancelled {
		return "cancelled"
	}
	end, err := time.Parse(time.RFC3339, p.EndTime)
	if err != nil {
		return "unparseable end_time"
	}
	if now.Before(end) {
		return "voting window still open"
	}
	if p.ForVotes+p.AgainstVotes < cfg.Governance.Quorum {
		return "quorum not reached"
	}
	if p.ForVotes <= p.AgainstVotes {
		return "not passing"
	}
	return ""
}

// CanExecute mirrors the execute guard without side effects.
func (e Engine) CanExecute(ctx context.Context, pactID string, proposalID int64) (bool, string, error) {
	cfg, err := e.pactConfig(ctx, pactID)
	if err != nil {
		return false, "", err
	}
	p, err := e.Repo.GetProposal(ctx, pactID, proposalID)
	if err != nil {
		return false, "", err
	}
	reason := cannotExecuteReason(p, cfg, e.now().UTC())
	return reason == "", reason, nil
}

// ExecuteProposal is gate-only; parties route it through a gate operation.
func (e Engine) ExecuteProposal(ctx context.Context, pactID, caller string, proposalID int64) (domain.Proposal, error) {
	cfg, err := e.pactConfig(ctx, pactID)
	if err != nil {
		return domain.Proposal{}, err
	}
	if err := requireGate(cfg, caller); err != nil {
		return domain.Proposal{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Proposal{}, err
	}
	defer tx.Rollback()
	if err := e.executeProposalTx(ctx, tx, cfg, pactID, proposalID, caller); err != nil {
		return domain.Proposal{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Proposal{}, err
	}
	return e.Repo.GetProposal(ctx, pactID, proposalID)
}

// executeProposalTx marks the proposal executed before invoking its target;
// target failure fails the whole execution.
func (e Engine) executeProposalTx(ctx context.Context, tx *sql.Tx, cfg *config.Config, pactID string, proposalID int64, actor string) error {
	p, err := e.Repo.GetProposalTx(ctx, tx, pactID, proposalID)
	if err != nil {
		return err
	}
	if reason := cannotExecuteReason(p, cfg, e.now().UTC()); reason != "" {
		return auth.StateError{Entity: "proposal", Reason: reason}
	}
	if err := e.Repo.MarkProposalExecutedTx(ctx, tx, proposalID); err != nil {
		return err
	}
	if p.Target != "" {
		if err := e.dispatchTx(ctx, tx, cfg, pactID, p.Target, p.PayloadJSON); err != nil {
			return auth.DownstreamError{Op: p.Target, Err: err}
		}
	}
	return e.Events.Append(ctx, tx, "proposal.execute", pactID, "proposal", fmt.Sprint(proposalID), actor, events.EventPayload{
		"for":     p.ForVotes,
		"against": p.AgainstVotes,
	})
}

// CancelProposal is gate-only and blocked once executed.
func (e Engine) CancelProposal(ctx context.Context, pactID, caller string, proposalID int64) (domain.Proposal, error) {
	cfg, err := e.pactConfig(ctx, pactID)
	if err != nil {
		return domain.Proposal{}, err
	}
	if err := requireGate(cfg, caller); err != nil {
		return domain.Proposal{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Proposal{}, err
	}
	defer tx.Rollback()
	if err := e.cancelProposalTx(ctx, tx, pactID, proposalID, caller); err != nil {
		return domain.Proposal{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Proposal{}, err
	}
	return e.Repo.GetProposal(ctx, pactID, proposalID)
}

func (e Engine) cancelProposalTx(ctx context.Context, tx *sql.Tx, pactID string, proposalID int64, actor string) error {
	p, err := e.Repo.GetProposalTx(ctx, tx, pactID, proposalID)
	if err != nil {
		return err
	}
	if p.Executed {
		return auth.StateError{Entity: "proposal", From: "executed", Reason: "cannot cancel"}
	}
	if p.Cancelled {
		return auth.StateError{Entity: "proposal", From: "cancelled", Reason: "already cancelled"}
	}
	if err := e.Repo.MarkProposalCancelledTx(ctx, tx, proposalID); err != nil {
		return err
	}
	return e.Events.Append(ctx, tx, "proposal.cancel", pactID, "proposal", fmt.Sprint(proposalID), actor, nil)
}

func (e Engine) GetProposal(ctx context.Context, pactID string, proposalID int64) (domain.Proposal, error) {
	return e.Repo.GetProposal(ctx, pactID, proposalID)
}

func (e Engine) ListProposals(ctx context.Context, pactID string) ([]domain.Proposal, error) {
	return e.Repo.ListProposals(ctx, pactID)
}

func (e Engine) ListVotes(ctx context.Context, proposalID int64) ([]domain.Vote, error) {
	return e.Repo.ListVotes(ctx, proposalID)
}
