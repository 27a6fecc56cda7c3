package repo

import (
	"context"
	"database/sql"

	"crewboard/internal/domain"
)

func (r Repo) ListHistory(ctx context.Context, taskID int64) ([]domain.HistoryEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,actor_id,action,old_value,new_value,ts FROM task_history WHERE task_id=? ORDER BY id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.HistoryEntry
	for rows.Next() {
		var h domain.HistoryEntry
		var oldV, newV sql.NullString
		if err := rows.Scan(&h.ID, &h.TaskID, &h.ActorID, &h.Action, &oldV, &newV, &h.TS); err != nil {
			return nil, err
		}
		h.OldValue = stringPtr(oldV)
		h.NewValue = stringPtr(newV)
		res = append(res, h)
	}
	return res, rows.Err()
}
