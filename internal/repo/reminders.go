package repo

import "context"

// ReminderSent reports whether a reminder of this kind was already
// delivered for the task under the given key (the deadline date for
// due reminders, the updated_at stamp for stagnation check-ins).
func (r Repo) ReminderSent(ctx context.Context, taskID int64, kind, dueKey string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM reminder_log WHERE task_id=? AND kind=? AND due_key=?`,
		taskID, kind, dueKey).Scan(&n)
	return n > 0, err
}

// LogReminder records a delivered reminder so later sweeps skip it.
func (r Repo) LogReminder(ctx context.Context, id string, taskID int64, kind, dueKey, sentAt string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO reminder_log(id,task_id,kind,due_key,sent_at) VALUES (?,?,?,?,?)
ON CONFLICT(task_id,kind,due_key) DO NOTHING`, id, taskID, kind, dueKey, sentAt)
	return err
}
