package repo

import (
	"context"
	"database/sql"

	"crewboard/internal/domain"
)

const assigneeColumns = `task_id,user_id,is_primary,has_approved,added_at`

func (r Repo) ListAssignees(ctx context.Context, taskID int64) ([]domain.Assignee, error) {
	return listAssignees(ctx, r.DB.QueryContext, taskID)
}

func (r Repo) ListAssigneesTx(ctx context.Context, tx *sql.Tx, taskID int64) ([]domain.Assignee, error) {
	return listAssignees(ctx, tx.QueryContext, taskID)
}

type queryFunc func(ctx context.Context, query string, args ...any) (*sql.Rows, error)

func listAssignees(ctx context.Context, query queryFunc, taskID int64) ([]domain.Assignee, error) {
	rows, err := query(ctx, `SELECT `+assigneeColumns+` FROM task_assignees WHERE task_id=? ORDER BY is_primary DESC, added_at, user_id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Assignee
	for rows.Next() {
		var a domain.Assignee
		if err := rows.Scan(&a.TaskID, &a.UserID, &a.IsPrimary, &a.HasApproved, &a.AddedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) AddAssigneeTx(ctx context.Context, tx *sql.Tx, taskID int64, userID string, isPrimary bool, addedAt string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO task_assignees(task_id,user_id,is_primary,has_approved,added_at) VALUES (?,?,?,0,?)
ON CONFLICT(task_id,user_id) DO NOTHING`, taskID, userID, isPrimary, addedAt)
	return err
}

func (r Repo) RemoveAssigneeTx(ctx context.Context, tx *sql.Tx, taskID int64, userID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM task_assignees WHERE task_id=? AND user_id=?`, taskID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) RemoveAllAssigneesTx(ctx context.Context, tx *sql.Tx, taskID int64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM task_assignees WHERE task_id=?`, taskID)
	return err
}

// SetPrimaryTx demotes any current primary before promoting userID, so
// the partial unique index never sees two primaries.
func (r Repo) SetPrimaryTx(ctx context.Context, tx *sql.Tx, taskID int64, userID string) error {
	if _, err := tx.ExecContext(ctx, `UPDATE task_assignees SET is_primary=0 WHERE task_id=? AND is_primary=1`, taskID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE task_assignees SET is_primary=1 WHERE task_id=? AND user_id=?`, taskID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ClearPrimaryTx(ctx context.Context, tx *sql.Tx, taskID int64) error {
	_, err := tx.ExecContext(ctx, `UPDATE task_assignees SET is_primary=0 WHERE task_id=? AND is_primary=1`, taskID)
	return err
}

// RecordApprovalTx marks userID's approval. Re-voting is a no-op.
func (r Repo) RecordApprovalTx(ctx context.Context, tx *sql.Tx, taskID int64, userID string) error {
	res, err := tx.ExecContext(ctx, `UPDATE task_assignees SET has_approved=1 WHERE task_id=? AND user_id=?`, taskID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ResetApprovalsTx(ctx context.Context, tx *sql.Tx, taskID int64) error {
	_, err := tx.ExecContext(ctx, `UPDATE task_assignees SET has_approved=0 WHERE task_id=?`, taskID)
	return err
}

// CountApprovalsTx returns (approved, total) for a task inside the
// voting transaction.
func (r Repo) CountApprovalsTx(ctx context.Context, tx *sql.Tx, taskID int64) (int, int, error) {
	var approved, total int
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(SUM(has_approved),0), COUNT(*) FROM task_assignees WHERE task_id=?`, taskID).Scan(&approved, &total)
	return approved, total, err
}
