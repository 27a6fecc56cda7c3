package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"crewboard/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const taskColumns = `id,game_acronym,title,COALESCE(description,'') AS description,status,priority,deadline,eta,target_channel_id,thread_id,header_message_id,control_message_id,created_at,updated_at`

func scanTask(row interface{ Scan(...any) error }) (domain.Task, error) {
	var t domain.Task
	var priority, deadline, eta, channel, thread, header, control sql.NullString
	err := row.Scan(&t.ID, &t.GameAcronym, &t.Title, &t.Description, &t.Status,
		&priority, &deadline, &eta, &channel, &thread, &header, &control,
		&t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Priority = stringPtr(priority)
	t.Deadline = stringPtr(deadline)
	t.ETA = stringPtr(eta)
	t.TargetChannelID = stringPtr(channel)
	t.ThreadID = stringPtr(thread)
	t.HeaderMessageID = stringPtr(header)
	t.ControlMessageID = stringPtr(control)
	return t, nil
}

func (r Repo) InsertTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO tasks(game_acronym,title,description,status,priority,deadline,eta,target_channel_id,thread_id,header_message_id,control_message_id,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.GameAcronym, t.Title, nullable(t.Description), t.Status,
		nullablePtr(t.Priority), nullablePtr(t.Deadline), nullablePtr(t.ETA),
		nullablePtr(t.TargetChannelID), nullablePtr(t.ThreadID),
		nullablePtr(t.HeaderMessageID), nullablePtr(t.ControlMessageID),
		t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	return scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Task, error) {
	return scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

func (r Repo) UpdateTaskStatusTx(ctx context.Context, tx *sql.Tx, id int64, status, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateTaskFieldTx sets one of the free-form task columns. Only the
// columns the engine edits are accepted.
func (r Repo) UpdateTaskFieldTx(ctx context.Context, tx *sql.Tx, id int64, field string, value *string, updatedAt string) error {
	switch field {
	case "eta", "priority", "deadline", "description":
	default:
		return fmt.Errorf("unknown task field %s", field)
	}
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE tasks SET %s=?, updated_at=? WHERE id=?`, field), nullablePtr(value), updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateTaskMessageRefs records the presentation artifacts attached to
// a task. Nil pointers leave the stored value unchanged.
func (r Repo) UpdateTaskMessageRefs(ctx context.Context, id int64, channelID, threadID, headerID, controlID *string) error {
	var (
		fields []string
		args   []any
	)
	set := func(col string, v *string) {
		if v != nil {
			fields = append(fields, col+"=?")
			args = append(args, nullable(*v))
		}
	}
	set("target_channel_id", channelID)
	set("thread_id", threadID)
	set("header_message_id", headerID)
	set("control_message_id", controlID)
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE tasks SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTaskTx(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) listTasks(ctx context.Context, where string, args ...any) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) ListTasksByGame(ctx context.Context, acronym string) ([]domain.Task, error) {
	return r.listTasks(ctx, `WHERE game_acronym=? COLLATE NOCASE ORDER BY id`, acronym)
}

// ListBoardTasks returns a game's non-cancelled tasks in creation order
// for the board aggregator.
func (r Repo) ListBoardTasks(ctx context.Context, acronym string) ([]domain.Task, error) {
	return r.listTasks(ctx, `WHERE game_acronym=? COLLATE NOCASE AND status<>'cancelled' ORDER BY id`, acronym)
}

func (r Repo) ListTasksByAssignee(ctx context.Context, userID string) ([]domain.Task, error) {
	return r.listTasks(ctx, `WHERE id IN (SELECT task_id FROM task_assignees WHERE user_id=?) ORDER BY id`, userID)
}

// ListDueSoon returns non-terminal tasks whose deadline (YYYY-MM-DD)
// falls inside [from, to]. Dates compare lexicographically.
func (r Repo) ListDueSoon(ctx context.Context, from, to string) ([]domain.Task, error) {
	return r.listTasks(ctx, `WHERE deadline IS NOT NULL AND deadline>=? AND deadline<=? AND status NOT IN ('done','cancelled') ORDER BY deadline, id`, from, to)
}

// ListStagnant returns in-progress tasks untouched since the cutoff
// (RFC3339, compares lexicographically).
func (r Repo) ListStagnant(ctx context.Context, cutoff string) ([]domain.Task, error) {
	return r.listTasks(ctx, `WHERE status='progress' AND updated_at<? ORDER BY updated_at, id`, cutoff)
}

// LegacyAssigneeID reads the pre-migration single-assignee column. Only
// the reminder fan-out consults it, for rows older than the backfill.
func (r Repo) LegacyAssigneeID(ctx context.Context, taskID int64) (string, error) {
	var id sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT assignee_id FROM tasks WHERE id=?`, taskID).Scan(&id)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return id.String, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullablePtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
