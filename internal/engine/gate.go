package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"pactline/internal/config"
	"pactline/internal/domain"
	"pactline/internal/engine/auth"
	"pactline/internal/events"
)

// Dispatch targets a gate operation may carry. The payload is a JSON object
// whose shape depends on the target.
var gateTargets = map[string]bool{
	"treasury.withdraw":       true,
	"treasury.set_withdrawer": true,
	"tasks.assign":            true,
	"tasks.cancel":            true,
	"proposals.execute":       true,
	"proposals.cancel":        true,
	"disputes.review":         true,
	"disputes.resolve":        true,
	"disputes.cancel":         true,
}

// ProposeOperation queues a privileged call behind the gate. Only a pact party
// may propose.
func (e Engine) ProposeOperation(ctx context.Context, pactID, caller, target string, value int64, payloadJSON string) (domain.Operation, error) {
	cfg, err := e.pactConfig(ctx, pactID)
	if err != nil {
		return domain.Operation{}, err
	}
	if err := requireParty(cfg, caller); err != nil {
		return domain.Operation{}, err
	}
	if !gateTargets[target] {
		return domain.Operation{}, auth.ArgumentError{Field: "target", Reason: fmt.Sprintf("unknown dispatch target %q", target)}
	}
	if value < 0 {
		return domain.Operation{}, auth.ArgumentError{Field: "value", Reason: "must not be negative"}
	}
	if payloadJSON != "" && !json.Valid([]byte(payloadJSON)) {
		return domain.Operation{}, auth.ArgumentError{Field: "payload", Reason: "must be valid JSON"}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Operation{}, err
	}
	defer tx.Rollback()

	op := domain.Operation{
		PactID:      pactID,
		Proposer:    caller,
		Target:      target,
		Value:       value,
		PayloadJSON: payloadJSON,
		CreatedAt:   e.nowTS(),
	}
	id, err := e.Repo.InsertOperationTx(ctx, tx, op)
	if err != nil {
		return domain.Operation{}, fmt.Errorf("insert operation: %w", err)
	}
	op.ID = id
	if err := e.Events.Append(ctx, tx, "gate.propose", pactID, "operation", fmt.Sprint(id), caller, events.EventPayload{
		"target": target,
		"value":  value,
	}); err != nil {
		return domain.Operation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Operation{}, err
	}
	return e.Repo.GetOperation(ctx, pactID, id)
}

// ApproveOperation records a party's approval. Each party approves at most
// once and approvals cannot be revoked.
func (e Engine) ApproveOperation(ctx context.Context, pactID, caller string, operationID int64) (domain.Operation, error) {
	cfg, err := e.pactConfig(ctx, pactID)
	if err != nil {
		return domain.Operation{}, err
	}
	if err := requireParty(cfg, caller); err != nil {
		return domain.Operation{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Operation{}, err
	}
	defer tx.Rollback()

	op, err := e.Repo.GetOperationTx(ctx, tx, pactID, operationID)
	if err != nil {
		return domain.Operation{}, err
	}
	if op.Executed {
		return domain.Operation{}, auth.StateError{Entity: "operation", From: "executed", Reason: "already executed"}
	}
	approved, err := e.Repo.HasApprovalTx(ctx, tx, operationID, caller)
	if err != nil {
		return domain.Operation{}, err
	}
	if approved {
		return domain.Operation{}, auth.StateError{Entity: "operation", Reason: "already approved by caller"}
	}
	if err := e.Repo.InsertApprovalTx(ctx, tx, operationID, caller, e.nowTS()); err != nil {
		return domain.Operation{}, fmt.Errorf("insert approval: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "gate.approve", pactID, "operation", fmt.Sprint(operationID), caller, nil); err != nil {
		return domain.Operation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Operation{}, err
	}
	return e.Repo.GetOperation(ctx, pactID, operationID)
}

// ExecuteOperation runs a fully approved operation. The executed flag is set
// before the target is dispatched; a dispatch failure rolls the whole
// transaction back, so the operation stays executable.
func (e Engine) ExecuteOperation(ctx context.Context, pactID, caller string, operationID int64) (domain.Operation, error) {
	cfg, err := e.pactConfig(ctx, pactID)
	if err != nil {
		return domain.Operation{}, err
	}
	if err := requireParty(cfg, caller); err != nil {
		return domain.Operation{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Operation{}, err
	}
	defer tx.Rollback()

	op, err := e.Repo.GetOperationTx(ctx, tx, pactID, operationID)
	if err != nil {
		return domain.Operation{}, err
	}
	if op.Executed {
		return domain.Operation{}, auth.StateError{Entity: "operation", From: "executed", Reason: "already executed"}
	}
	approvals, err := e.Repo.CountApprovalsTx(ctx, tx, operationID)
	if err != nil {
		return domain.Operation{}, err
	}
	if approvals < 2 {
		return domain.Operation{}, auth.StateError{Entity: "operation", Reason: "requires approval from both parties"}
	}
	if err := e.Repo.MarkOperationExecutedTx(ctx, tx, operationID, e.nowTS()); err != nil {
		return domain.Operation{}, err
	}
	if err := e.dispatchTx(ctx, tx, cfg, pactID, op.Target, op.PayloadJSON); err != nil {
		return domain.Operation{}, auth.DownstreamError{Op: op.Target, Err: err}
	}
	if err := e.Events.Append(ctx, tx, "gate.execute", pactID, "operation", fmt.Sprint(operationID), caller, events.EventPayload{
		"target": op.Target,
	}); err != nil {
		return domain.Operation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Operation{}, err
	}
	return e.Repo.GetOperation(ctx, pactID, operationID)
}

func (e Engine) GetOperation(ctx context.Context, pactID string, operationID int64) (domain.Operation, error) {
	return e.Repo.GetOperation(ctx, pactID, operationID)
}

func (e Engine) ListOperations(ctx context.Context, pactID string, pending bool) ([]domain.Operation, error) {
	return e.Repo.ListOperations(ctx, pactID, pending)
}

// dispatchTx invokes a target inside the caller's transaction with gate
// authority. The audit actor is the configured gate owner identity.
func (e Engine) dispatchTx(ctx context.Context, tx *sql.Tx, cfg *config.Config, pactID, target, payloadJSON string) error {
	if payloadJSON == "" {
		payloadJSON = "{}"
	}
	actor := cfg.Gate.Owner
	switch target {
	case "treasury.withdraw":
		var p struct {
			Recipient string `json:"recipient"`
			Amount    int64  `json:"amount"`
		}
		if err := json.Unmarshal([]byte(payloadJSON), &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		_, err := e.withdrawTx(ctx, tx, pactID, p.Recipient, p.Amount, actor)
		return err
	case "treasury.set_withdrawer":
		var p struct {
			Participant string `json:"participant"`
			Allowed     bool   `json:"allowed"`
		}
		if err := json.Unmarshal([]byte(payloadJSON), &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return e.setWithdrawerTx(ctx, tx, pactID, p.Participant, p.Allowed, actor)
	case "tasks.assign":
		var p struct {
			TaskID        int64  `json:"task_id"`
			Assignee      string `json:"assignee"`
			PaymentAmount int64  `json:"payment_amount"`
		}
		if err := json.Unmarshal([]byte(payloadJSON), &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return e.assignTaskTx(ctx, tx, pactID, p.TaskID, p.Assignee, p.PaymentAmount, actor)
	case "tasks.cancel":
		var p struct {
			TaskID int64 `json:"task_id"`
		}
		if err := json.Unmarshal([]byte(payloadJSON), &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return e.cancelTaskTx(ctx, tx, pactID, p.TaskID, actor)
	case "proposals.execute":
		var p struct {
			ProposalID int64 `json:"proposal_id"`
		}
		if err := json.Unmarshal([]byte(payloadJSON), &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return e.executeProposalTx(ctx, tx, cfg, pactID, p.ProposalID, actor)
	case "proposals.cancel":
		var p struct {
			ProposalID int64 `json:"proposal_id"`
		}
		if err := json.Unmarshal([]byte(payloadJSON), &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return e.cancelProposalTx(ctx, tx, pactID, p.ProposalID, actor)
	case "disputes.review":
		var p struct {
			DisputeID int64 `json:"dispute_id"`
		}
		if err := json.Unmarshal([]byte(payloadJSON), &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return e.markDisputeUnderReviewTx(ctx, tx, pactID, p.DisputeID, actor)
	case "disputes.resolve":
		var p struct {
			DisputeID  int64  `json:"dispute_id"`
			Resolution string `json:"resolution"`
		}
		if err := json.Unmarshal([]byte(payloadJSON), &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return e.resolveDisputeTx(ctx, tx, pactID, p.DisputeID, p.Resolution, actor)
	case "disputes.cancel":
		var p struct {
			DisputeID int64 `json:"dispute_id"`
		}
		if err := json.Unmarshal([]byte(payloadJSON), &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return e.cancelDisputeTx(ctx, tx, pactID, p.DisputeID, actor)
	}
	return fmt.Errorf("unknown dispatch target %q", target)
}
