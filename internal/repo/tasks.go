package repo

import (
	"context"
	"database/sql"

	"pactline/internal/domain"
)

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var assignee, assigner, reviewComment, acceptedAt sql.NullString
	err := scan(&t.ID, &t.PactID, &t.Creator, &assignee, &assigner, &t.Title, &t.Description,
		&t.PaymentAmount, &t.Status, &reviewComment, &t.CreatedAt, &t.UpdatedAt, &acceptedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if assignee.Valid {
		t.Assignee = &assignee.String
	}
	if assigner.Valid {
		t.Assigner = &assigner.String
	}
	if reviewComment.Valid {
		t.ReviewComment = reviewComment.String
	}
	if acceptedAt.Valid {
		t.AcceptedAt = &acceptedAt.String
	}
	return t, nil
}

const taskColumns = `id,pact_id,creator,assignee,assigner,title,description,payment_amount,status,review_comment,created_at,updated_at,accepted_at`

func (r Repo) InsertTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO tasks(pact_id,creator,assignee,assigner,title,description,payment_amount,status,review_comment,created_at,updated_at,accepted_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.PactID, t.Creator, nullableStringPtr(t.Assignee), nullableStringPtr(t.Assigner), t.Title, t.Description,
		t.PaymentAmount, t.Status, nullable(t.ReviewComment), t.CreatedAt, t.UpdatedAt, nullableStringPtr(t.AcceptedAt))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetTask(ctx context.Context, pactID string, id int64) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE pact_id=? AND id=?`, pactID, id)
	return scanTask(row.Scan)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, pactID string, id int64) (domain.Task, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE pact_id=? AND id=?`, pactID, id)
	return scanTask(row.Scan)
}

func (r Repo) UpdateTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET assignee=?, assigner=?, title=?, description=?, payment_amount=?, status=?, review_comment=?, updated_at=?, accepted_at=? WHERE pact_id=? AND id=?`,
		nullableStringPtr(t.Assignee), nullableStringPtr(t.Assigner), t.Title, t.Description, t.PaymentAmount,
		t.Status, nullable(t.ReviewComment), t.UpdatedAt, nullableStringPtr(t.AcceptedAt), t.PactID, t.ID)
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

func (r Repo) ListTasks(ctx context.Context, pactID, creator, assignee, status string) ([]domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE pact_id=?`
	args := []any{pactID}
	if creator != "" {
		query += ` AND creator=?`
		args = append(args, creator)
	}
	if assignee != "" {
		query += ` AND assignee=?`
		args = append(args, assignee)
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
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}
