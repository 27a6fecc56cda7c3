package history

import (
	"context"
	"database/sql"
	"time"
)

// Writer appends task_history rows inside the caller's transaction so
// the audit record commits or rolls back with the state change it
// describes.
type Writer struct {
	Now func() time.Time
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, taskID int64, actorID, action string, oldValue, newValue *string) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	_, err := tx.ExecContext(ctx, `INSERT INTO task_history(task_id,actor_id,action,old_value,new_value,ts) VALUES (?,?,?,?,?,?)`,
		taskID, actorID, action, nullablePtr(oldValue), nullablePtr(newValue), ts)
	return err
}

func nullablePtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
