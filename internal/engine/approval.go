package engine

import (
	"context"
	"database/sql"

	"crewboard/internal/config"
	"crewboard/internal/domain"
	"crewboard/internal/engine/auth"
)

// CloseResult reports what a close attempt did. When Done is false the
// attempt was recorded as an approval vote and the task stays in
// review; Approved/Required describe the tally after the vote.
type CloseResult struct {
	Task     domain.Task
	Done     bool
	Approved int
	Required int
}

// requiredApprovals maps the configured mode to a vote count. auto is
// the consensus default: both of a pair, majority of anything larger.
func requiredApprovals(mode string, total int) int {
	switch mode {
	case config.ApprovalAny:
		return 1
	case config.ApprovalAll:
		return total
	case config.ApprovalMajority:
		return total/2 + 1
	default:
		if total == 2 {
			return 2
		}
		return total/2 + 1
	}
}

// CloseTask runs the approval algorithm for a non-terminal task.
//
// Leads close immediately. If the team has a primary owner, only the
// primary closes; other assignees are rejected. Otherwise the attempt
// records an idempotent approval vote and the task completes once the
// tally reaches the configured requirement; until then the task keeps
// the status it was voted from.
func (e Engine) CloseTask(ctx context.Context, id int64, actorID string, actor auth.Permissions) (CloseResult, error) {
	cfg, err := e.guildConfig(ctx)
	if err != nil {
		return CloseResult{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return CloseResult{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, id)
	if err != nil {
		return CloseResult{}, err
	}
	if err := ensureTaskTransition(t.Status, domain.StatusDone); err != nil {
		return CloseResult{}, err
	}

	if actor.CanModerate() {
		return e.completeTask(ctx, tx, t, actorID, CloseResult{Done: true})
	}

	assignees, err := e.Repo.ListAssigneesTx(ctx, tx, id)
	if err != nil {
		return CloseResult{}, err
	}
	if !isAssignee(assignees, actorID) {
		return CloseResult{}, auth.PermissionError{Action: "close task", Reason: "only assignees may close"}
	}

	if primary := primaryOf(assignees); primary != nil {
		if primary.UserID != actorID {
			return CloseResult{}, auth.PermissionError{Action: "close task", Reason: "only the primary owner can close this task"}
		}
		return e.completeTask(ctx, tx, t, actorID, CloseResult{Done: true})
	}

	// Shared-ownership team: record the vote, then tally inside the
	// same transaction so concurrent closers see a consistent count.
	if err := e.Repo.RecordApprovalTx(ctx, tx, id, actorID); err != nil {
		return CloseResult{}, err
	}
	approved, total, err := e.Repo.CountApprovalsTx(ctx, tx, id)
	if err != nil {
		return CloseResult{}, err
	}
	required := requiredApprovals(cfg.ApprovalMode, total)
	res := CloseResult{Approved: approved, Required: required}

	if approved >= required {
		res.Done = true
		return e.completeTask(ctx, tx, t, actorID, res)
	}
	if err := tx.Commit(); err != nil {
		return CloseResult{}, err
	}
	e.logf("task %d: approval %d/%d by %s", id, approved, required, actorID)
	res.Task = t
	e.refreshPresentation(ctx, t, false)
	return res, nil
}

// completeTask finishes the close inside the caller's transaction:
// status, history, commit, then thread archive and board refresh.
func (e Engine) completeTask(ctx context.Context, tx *sql.Tx, t domain.Task, actorID string, res CloseResult) (CloseResult, error) {
	now := e.nowRFC3339()
	if err := e.Repo.UpdateTaskStatusTx(ctx, tx, t.ID, domain.StatusDone, now); err != nil {
		return CloseResult{}, err
	}
	if err := e.History.Append(ctx, tx, t.ID, actorID, domain.ActionStatusChange, strPtr(t.Status), strPtr(domain.StatusDone)); err != nil {
		return CloseResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return CloseResult{}, err
	}
	t.Status = domain.StatusDone
	t.UpdatedAt = now
	res.Task = t
	e.logf("task %d: done by %s", t.ID, actorID)
	e.refreshPresentation(ctx, t, true)
	return res, nil
}
