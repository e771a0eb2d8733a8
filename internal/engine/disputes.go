package engine

import (
	"context"
	"database/sql"
	"fmt"

	"pactline/internal/domain"
	"pactline/internal/engine/auth"
	"pactline/internal/events"
)

func (e Engine) disputeEvent(ctx context.Context, tx *sql.Tx, pactID string, disputeID int64, evtType, actor, oldStatus, newStatus string) error {
	return e.Events.Append(ctx, tx, evtType, pactID, "dispute", fmt.Sprint(disputeID), actor, events.EventPayload{
		"old_status": oldStatus,
		"new_status": newStatus,
	})
}

// CreateDispute opens a dispute against a counterparty. Initial evidence, if
// given, lands in the initiator's slot and skips straight to
// evidence_submitted.
func (e Engine) CreateDispute(ctx context.Context, pactID, caller, counterparty, disputeType string, relatedID int64, description, evidence string) (domain.Dispute, error) {
	if caller == "" {
		return domain.Dispute{}, auth.ArgumentError{Field: "caller", Reason: "required"}
	}
	if counterparty == "" {
		return domain.Dispute{}, auth.ArgumentError{Field: "counterparty", Reason: "required"}
	}
	if caller == counterparty {
		return domain.Dispute{}, auth.ArgumentError{Field: "counterparty", Reason: "cannot dispute yourself"}
	}
	if description == "" {
		return domain.Dispute{}, auth.ArgumentError{Field: "description", Reason: "required"}
	}
	if _, err := e.Repo.GetPact(ctx, pactID); err != nil {
		return domain.Dispute{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Dispute{}, err
	}
	defer tx.Rollback()

	now := e.nowTS()
	d := domain.Dispute{
		PactID:            pactID,
		Initiator:         caller,
		Counterparty:      counterparty,
		Type:              disputeType,
		RelatedID:         relatedID,
		Description:       description,
		InitiatorEvidence: evidence,
		Status:            domain.DisputeCreated,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if evidence != "" {
		d.Status = domain.DisputeEvidenceSubmitted
	}
	id, err := e.Repo.InsertDisputeTx(ctx, tx, d)
	if err != nil {
		return domain.Dispute{}, fmt.Errorf("insert dispute: %w", err)
	}
	d.ID = id
	if err := e.disputeEvent(ctx, tx, pactID, id, "dispute.create", caller, "", d.Status); err != nil {
		return domain.Dispute{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Dispute{}, err
	}
	return d, nil
}

// SubmitEvidence overwrites the calling party's evidence slot while the
// dispute is still collecting evidence.
func (e Engine) SubmitEvidence(ctx context.Context, pactID, caller string, disputeID int64, evidence string) (domain.Dispute, error) {
	if evidence == "" {
		return domain.Dispute{}, auth.ArgumentError{Field: "evidence", Reason: "required"}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Dispute{}, err
	}
	defer tx.Rollback()

	d, err := e.Repo.GetDisputeTx(ctx, tx, pactID, disputeID)
	if err != nil {
		return domain.Dispute{}, err
	}
	if caller != d.Initiator && caller != d.Counterparty {
		return domain.Dispute{}, auth.UnauthorizedError{Role: "dispute party"}
	}
	if d.Status != domain.DisputeCreated && d.Status != domain.DisputeEvidenceSubmitted {
		return domain.Dispute{}, auth.StateError{Entity: "dispute", From: d.Status, Reason: "evidence window closed"}
	}
	old := d.Status
	if caller == d.Initiator {
		d.InitiatorEvidence = evidence
	} else {
		d.CounterpartyEvidence = evidence
	}
	d.Status = domain.DisputeEvidenceSubmitted
	d.UpdatedAt = e.nowTS()
	if err := e.Repo.UpdateDisputeTx(ctx, tx, d); err != nil {
		return domain.Dispute{}, err
	}
	if err := e.disputeEvent(ctx, tx, pactID, disputeID, "dispute.evidence", caller, old, d.Status); err != nil {
		return domain.Dispute{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Dispute{}, err
	}
	return d, nil
}

// MarkUnderReview is gate-only; parties route it through a gate operation.
func (e Engine) MarkUnderReview(ctx context.Context, pactID, caller string, disputeID int64) (domain.Dispute, error) {
	cfg, err := e.pactConfig(ctx, pactID)
	if err != nil {
		return domain.Dispute{}, err
	}
	if err := requireGate(cfg, caller); err != nil {
		return domain.Dispute{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Dispute{}, err
	}
	defer tx.Rollback()
	if err := e.markDisputeUnderReviewTx(ctx, tx, pactID, disputeID, caller); err != nil {
		return domain.Dispute{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Dispute{}, err
	}
	return e.Repo.GetDispute(ctx, pactID, disputeID)
}

func (e Engine) markDisputeUnderReviewTx(ctx context.Context, tx *sql.Tx, pactID string, disputeID int64, actor string) error {
	d, err := e.Repo.GetDisputeTx(ctx, tx, pactID, disputeID)
	if err != nil {
		return err
	}
	if d.Status != domain.DisputeEvidenceSubmitted {
		return auth.StateError{Entity: "dispute", From: d.Status, Reason: "review requires submitted evidence"}
	}
	old := d.Status
	d.Status = domain.DisputeUnderReview
	d.UpdatedAt = e.nowTS()
	if err := e.Repo.UpdateDisputeTx(ctx, tx, d); err != nil {
		return err
	}
	return e.disputeEvent(ctx, tx, pactID, disputeID, "dispute.review", actor, old, d.Status)
}

// ResolveDispute is gate-only; parties route it through a gate operation.
func (e Engine) ResolveDispute(ctx context.Context, pactID, caller string, disputeID int64, resolution string) (domain.Dispute, error) {
	cfg, err := e.pactConfig(ctx, pactID)
	if err != nil {
		return domain.Dispute{}, err
	}
	if err := requireGate(cfg, caller); err != nil {
		return domain.Dispute{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Dispute{}, err
	}
	defer tx.Rollback()
	if err := e.resolveDisputeTx(ctx, tx, pactID, disputeID, resolution, caller); err != nil {
		return domain.Dispute{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Dispute{}, err
	}
	return e.Repo.GetDispute(ctx, pactID, disputeID)
}

func (e Engine) resolveDisputeTx(ctx context.Context, tx *sql.Tx, pactID string, disputeID int64, resolution, actor string) error {
	if resolution == "" {
		return auth.ArgumentError{Field: "resolution", Reason: "required"}
	}
	d, err := e.Repo.GetDisputeTx(ctx, tx, pactID, disputeID)
	if err != nil {
		return err
	}
	if d.Status != domain.DisputeEvidenceSubmitted && d.Status != domain.DisputeUnderReview {
		return auth.StateError{Entity: "dispute", From: d.Status, Reason: "cannot resolve"}
	}
	old := d.Status
	now := e.nowTS()
	d.Status = domain.DisputeResolved
	d.Resolver = &actor
	d.Resolution = resolution
	d.ResolvedAt = &now
	d.UpdatedAt = now
	if err := e.Repo.UpdateDisputeTx(ctx, tx, d); err != nil {
		return err
	}
	return e.disputeEvent(ctx, tx, pactID, disputeID, "dispute.resolve", actor, old, d.Status)
}

// CancelDispute may be called by the initiator or with gate authority; a
// resolved dispute stays resolved.
func (e Engine) CancelDispute(ctx context.Context, pactID, caller string, disputeID int64) (domain.Dispute, error) {
	cfg, err := e.pactConfig(ctx, pactID)
	if err != nil {
		return domain.Dispute{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Dispute{}, err
	}
	defer tx.Rollback()

	d, err := e.Repo.GetDisputeTx(ctx, tx, pactID, disputeID)
	if err != nil {
		return domain.Dispute{}, err
	}
	if caller != d.Initiator && caller != cfg.Gate.Owner {
		return domain.Dispute{}, auth.UnauthorizedError{Role: "dispute initiator or gate"}
	}
	if err := e.cancelDisputeTxLoaded(ctx, tx, d, caller); err != nil {
		return domain.Dispute{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Dispute{}, err
	}
	return e.Repo.GetDispute(ctx, pactID, disputeID)
}

func (e Engine) cancelDisputeTx(ctx context.Context, tx *sql.Tx, pactID string, disputeID int64, actor string) error {
	d, err := e.Repo.GetDisputeTx(ctx, tx, pactID, disputeID)
	if err != nil {
		return err
	}
	return e.cancelDisputeTxLoaded(ctx, tx, d, actor)
}

func (e Engine) cancelDisputeTxLoaded(ctx context.Context, tx *sql.Tx, d domain.Dispute, actor string) error {
	if d.Status == domain.DisputeResolved {
		return auth.StateError{Entity: "dispute", From: d.Status, Reason: "cannot cancel a resolved dispute"}
	}
	if d.Status == domain.DisputeCancelled {
		return auth.StateError{Entity: "dispute", From: d.Status, Reason: "already cancelled"}
	}
	old := d.Status
	d.Status = domain.DisputeCancelled
	d.UpdatedAt = e.nowTS()
	if err := e.Repo.UpdateDisputeTx(ctx, tx, d); err != nil {
		return err
	}
	return e.disputeEvent(ctx, tx, d.PactID, d.ID, "dispute.cancel", actor, old, d.Status)
}

func (e Engine) GetDispute(ctx context.Context, pactID string, disputeID int64) (domain.Dispute, error) {
	return e.Repo.GetDispute(ctx, pactID, disputeID)
}

func (e Engine) ListDisputes(ctx context.Context, pactID, participant, status string) ([]domain.Dispute, error) {
	return e.Repo.ListDisputes(ctx, pactID, participant, status)
}
