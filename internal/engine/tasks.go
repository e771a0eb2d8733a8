package engine

import (
	"context"
	"database/sql"
	"fmt"

	"pactline/internal/domain"
	"pactline/internal/engine/auth"
	"pactline/internal/events"
)

func ensureTaskTransition(oldStatus, newStatus string) error {
	allowed := map[string][]string{
		domain.TaskCreated:       {domain.TaskAssigned, domain.TaskCancelled},
		domain.TaskAssigned:      {domain.TaskAssigned, domain.TaskInProgress, domain.TaskUnderReview, domain.TaskCancelled},
		domain.TaskInProgress:    {domain.TaskUnderReview, domain.TaskCancelled},
		domain.TaskUnderReview:   {domain.TaskAccepted, domain.TaskNeedsRevision, domain.TaskCancelled},
		domain.TaskNeedsRevision: {domain.TaskAssigned, domain.TaskInProgress, domain.TaskUnderReview, domain.TaskCancelled},
	}
	for _, s := range allowed[oldStatus] {
		if s == newStatus {
			return nil
		}
	}
	return auth.StateError{Entity: "task", From: oldStatus, Reason: fmt.Sprintf("cannot transition to %s", newStatus)}
}

func (e Engine) taskEvent(ctx context.Context, tx *sql.Tx, pactID string, taskID int64, evtType, actor, oldStatus, newStatus string) error {
	return e.Events.Append(ctx, tx, evtType, pactID, "task", fmt.Sprint(taskID), actor, events.EventPayload{
		"old_status": oldStatus,
		"new_status": newStatus,
	})
}

// CreateTask opens a task. Any participant may create one.
func (e Engine) CreateTask(ctx context.Context, pactID, caller, title, description string) (domain.Task, error) {
	if caller == "" {
		return domain.Task{}, auth.ArgumentError{Field: "caller", Reason: "required"}
	}
	if title == "" {
		return domain.Task{}, auth.ArgumentError{Field: "title", Reason: "required"}
	}
	if description == "" {
		return domain.Task{}, auth.ArgumentError{Field: "description", Reason: "required"}
	}
	if _, err := e.Repo.GetPact(ctx, pactID); err != nil {
		return domain.Task{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	now := e.nowTS()
	t := domain.Task{
		PactID:      pactID,
		Creator:     caller,
		Title:       title,
		Description: description,
		Status:      domain.TaskCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	id, err := e.Repo.InsertTaskTx(ctx, tx, t)
	if err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	t.ID = id
	if err := e.taskEvent(ctx, tx, pactID, id, "task.create", caller, "", t.Status); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// AssignTask is gate-only; parties route it through a gate operation.
func (e Engine) AssignTask(ctx context.Context, pactID, caller string, taskID int64, assignee string, paymentAmount int64) (domain.Task, error) {
	cfg, err := e.pactConfig(ctx, pactID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := requireGate(cfg, caller); err != nil {
		return domain.Task{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.assignTaskTx(ctx, tx, pactID, taskID, assignee, paymentAmount, caller); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.Repo.GetTask(ctx, pactID, taskID)
}

// assignTaskTx sets the assignee, the assigner and the payment, and clears any
// standing review comment.
func (e Engine) assignTaskTx(ctx context.Context, tx *sql.Tx, pactID string, taskID int64, assignee string, paymentAmount int64, actor string) error {
	if assignee == "" {
		return auth.ArgumentError{Field: "assignee", Reason: "required"}
	}
	if paymentAmount <= 0 {
		return auth.ArgumentError{Field: "payment_amount", Reason: "must be positive"}
	}
	t, err := e.Repo.GetTaskTx(ctx, tx, pactID, taskID)
	if err != nil {
		return err
	}
	if err := ensureTaskTransition(t.Status, domain.TaskAssigned); err != nil {
		return err
	}
	old := t.Status
	t.Assignee = &assignee
	t.Assigner = &actor
	t.PaymentAmount = paymentAmount
	t.Status = domain.TaskAssigned
	t.ReviewComment = ""
	t.UpdatedAt = e.nowTS()
	if err := e.Repo.UpdateTaskTx(ctx, tx, t); err != nil {
		return err
	}
	return e.taskEvent(ctx, tx, pactID, taskID, "task.assign", actor, old, t.Status)
}

// StartTask moves an assigned or revision-requested task into progress.
// Assignee-only.
func (e Engine) StartTask(ctx context.Context, pactID, caller string, taskID int64) (domain.Task, error) {
	return e.transitionTask(ctx, pactID, caller, taskID, domain.TaskInProgress, "task.start", func(t domain.Task) error {
		if t.Assignee == nil || *t.Assignee != caller {
			return auth.UnauthorizedError{Role: "task assignee"}
		}
		return nil
	}, nil)
}

// CompleteTask submits the work for review. Assignee-only; requires that an
// assigner exists to review it.
func (e Engine) CompleteTask(ctx context.Context, pactID, caller string, taskID int64) (domain.Task, error) {
	return e.transitionTask(ctx, pactID, caller, taskID, domain.TaskUnderReview, "task.complete", func(t domain.Task) error {
		if t.Assignee == nil || *t.Assignee != caller {
			return auth.UnauthorizedError{Role: "task assignee"}
		}
		if t.Assigner == nil {
			return auth.StateError{Entity: "task", From: t.Status, Reason: "no assigner to review"}
		}
		return nil
	}, nil)
}

// AcceptTask approves reviewed work and pays the assignee from the treasury in
// the same transaction. A failed payment aborts the acceptance.
func (e Engine) AcceptTask(ctx context.Context, pactID, caller string, taskID int64) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, pactID, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if t.Assigner == nil || *t.Assigner != caller {
		return domain.Task{}, auth.UnauthorizedError{Role: "task assigner"}
	}
	if t.Status != domain.TaskUnderReview {
		return domain.Task{}, auth.StateError{Entity: "task", From: t.Status, Reason: "only under_review tasks can be accepted"}
	}
	if t.Assignee == nil {
		return domain.Task{}, auth.StateError{Entity: "task", From: t.Status, Reason: "no assignee to pay"}
	}
	if t.PaymentAmount <= 0 {
		return domain.Task{}, auth.StateError{Entity: "task", From: t.Status, Reason: "no payment attached"}
	}
	old := t.Status
	now := e.nowTS()
	t.Status = domain.TaskAccepted
	t.AcceptedAt = &now
	t.UpdatedAt = now
	// Acceptance is recorded before the payment moves; both commit or neither.
	if err := e.Repo.UpdateTaskTx(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if _, err := e.withdrawTx(ctx, tx, pactID, *t.Assignee, t.PaymentAmount, caller); err != nil {
		return domain.Task{}, err
	}
	if err := e.taskEvent(ctx, tx, pactID, taskID, "task.accept", caller, old, t.Status); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// RequestRevision sends reviewed work back with a comment. Assigner-only.
func (e Engine) RequestRevision(ctx context.Context, pactID, caller string, taskID int64, comment string) (domain.Task, error) {
	if comment == "" {
		return domain.Task{}, auth.ArgumentError{Field: "comment", Reason: "required"}
	}
	return e.transitionTask(ctx, pactID, caller, taskID, domain.TaskNeedsRevision, "task.request_revision", func(t domain.Task) error {
		if t.Assigner == nil || *t.Assigner != caller {
			return auth.UnauthorizedError{Role: "task assigner"}
		}
		return nil
	}, func(t *domain.Task) {
		t.ReviewComment = comment
	})
}

// CancelTask is gate-only and blocked once a task is accepted or cancelled.
func (e Engine) CancelTask(ctx context.Context, pactID, caller string, taskID int64) (domain.Task, error) {
	cfg, err := e.pactConfig(ctx, pactID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := requireGate(cfg, caller); err != nil {
		return domain.Task{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.cancelTaskTx(ctx, tx, pactID, taskID, caller); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.Repo.GetTask(ctx, pactID, taskID)
}

func (e Engine) cancelTaskTx(ctx context.Context, tx *sql.Tx, pactID string, taskID int64, actor string) error {
	t, err := e.Repo.GetTaskTx(ctx, tx, pactID, taskID)
	if err != nil {
		return err
	}
	if err := ensureTaskTransition(t.Status, domain.TaskCancelled); err != nil {
		return err
	}
	old := t.Status
	t.Status = domain.TaskCancelled
	t.UpdatedAt = e.nowTS()
	if err := e.Repo.UpdateTaskTx(ctx, tx, t); err != nil {
		return err
	}
	return e.taskEvent(ctx, tx, pactID, taskID, "task.cancel", actor, old, t.Status)
}

// transitionTask is the shared guard+update path for simple status moves.
func (e Engine) transitionTask(ctx context.Context, pactID, caller string, taskID int64, newStatus, evtType string, authorize func(domain.Task) error, mutate func(*domain.Task)) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, pactID, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if authorize != nil {
		if err := authorize(t); err != nil {
			return domain.Task{}, err
		}
	}
	if err := ensureTaskTransition(t.Status, newStatus); err != nil {
		return domain.Task{}, err
	}
	old := t.Status
	t.Status = newStatus
	t.UpdatedAt = e.nowTS()
	if mutate != nil {
		mutate(&t)
	}
	if err := e.Repo.UpdateTaskTx(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.taskEvent(ctx, tx, pactID, taskID, evtType, caller, old, t.Status); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (e Engine) GetTask(ctx context.Context, pactID string, taskID int64) (domain.Task, error) {
	return e.Repo.GetTask(ctx, pactID, taskID)
}

func (e Engine) ListTasks(ctx context.Context, pactID, creator, assignee, status string) ([]domain.Task, error) {
	return e.Repo.ListTasks(ctx, pactID, creator, assignee, status)
}

// TaskCounts returns the number of tasks per status.
func (e Engine) TaskCounts(ctx context.Context, pactID string) (map[string]int64, error) {
	rows, err := e.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks WHERE pact_id=? GROUP BY status`, pactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int64{}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
