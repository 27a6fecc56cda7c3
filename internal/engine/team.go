package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"crewboard/internal/domain"
	"crewboard/internal/engine/auth"
)

// TaskDetail returns a task with its assignee set.
func (e Engine) TaskDetail(ctx context.Context, id int64) (domain.Task, []domain.Assignee, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, nil, err
	}
	assignees, err := e.Repo.ListAssignees(ctx, id)
	if err != nil {
		return domain.Task{}, nil, err
	}
	return t, assignees, nil
}

// AddAssignee adds a user to the team. Lead only. Adding an existing
// member is a no-op.
func (e Engine) AddAssignee(ctx context.Context, id int64, actorID, userID string, actor auth.Permissions) error {
	if !actor.CanModerate() {
		return auth.PermissionError{Action: "add assignee", Reason: "lead role required"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if domain.IsTerminal(t.Status) {
		return TransitionError{From: t.Status, To: t.Status}
	}
	assignees, err := e.Repo.ListAssigneesTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if isAssignee(assignees, userID) {
		return nil
	}
	now := e.nowRFC3339()
	if err := e.Repo.AddAssigneeTx(ctx, tx, id, userID, false, now); err != nil {
		return err
	}
	if err := e.Repo.UpdateTaskStatusTx(ctx, tx, id, t.Status, now); err != nil {
		return err
	}
	if err := e.History.Append(ctx, tx, id, actorID, domain.ActionAddAssignee, nil, strPtr(userID)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	t.UpdatedAt = now
	e.refreshPresentation(ctx, t, false)
	return nil
}

// RemoveAssignee drops a user from the team. The team never shrinks
// below one member. Removing a member who had approved simply lowers
// the tally on the next count.
func (e Engine) RemoveAssignee(ctx context.Context, id int64, actorID, userID string, actor auth.Permissions) error {
	if !actor.CanModerate() {
		return auth.PermissionError{Action: "remove assignee", Reason: "lead role required"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if domain.IsTerminal(t.Status) {
		return TransitionError{From: t.Status, To: t.Status}
	}
	assignees, err := e.Repo.ListAssigneesTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if !isAssignee(assignees, userID) {
		return fmt.Errorf("user %s is not assigned to task %d", userID, id)
	}
	if len(assignees) <= 1 {
		return ErrLastAssignee
	}
	now := e.nowRFC3339()
	if err := e.Repo.RemoveAssigneeTx(ctx, tx, id, userID); err != nil {
		return err
	}
	if err := e.Repo.UpdateTaskStatusTx(ctx, tx, id, t.Status, now); err != nil {
		return err
	}
	if err := e.History.Append(ctx, tx, id, actorID, domain.ActionRemoveAssignee, strPtr(userID), nil); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	t.UpdatedAt = now
	e.refreshPresentation(ctx, t, false)
	return nil
}

// SetPrimary promotes one assignee to primary owner, demoting any
// current primary in the same transaction. Existing approval votes are
// kept.
func (e Engine) SetPrimary(ctx context.Context, id int64, actorID, userID string, actor auth.Permissions) error {
	if !actor.CanModerate() {
		return auth.PermissionError{Action: "set primary", Reason: "lead role required"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if domain.IsTerminal(t.Status) {
		return TransitionError{From: t.Status, To: t.Status}
	}
	assignees, err := e.Repo.ListAssigneesTx(ctx, tx, id)
	if err != nil {
		return err
	}
	var oldPrimary *string
	if p := primaryOf(assignees); p != nil {
		if p.UserID == userID {
			return nil
		}
		oldPrimary = strPtr(p.UserID)
	}
	if err := e.Repo.SetPrimaryTx(ctx, tx, id, userID); err != nil {
		return err
	}
	if err := e.History.Append(ctx, tx, id, actorID, domain.ActionSetPrimary, oldPrimary, strPtr(userID)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.refreshPresentation(ctx, t, false)
	return nil
}

// RemovePrimary returns the team to shared ownership.
func (e Engine) RemovePrimary(ctx context.Context, id int64, actorID string, actor auth.Permissions) error {
	if !actor.CanModerate() {
		return auth.PermissionError{Action: "remove primary", Reason: "lead role required"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, id)
	if err != nil {
		return err
	}
	assignees, err := e.Repo.ListAssigneesTx(ctx, tx, id)
	if err != nil {
		return err
	}
	p := primaryOf(assignees)
	if p == nil {
		return nil
	}
	if err := e.Repo.ClearPrimaryTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.History.Append(ctx, tx, id, actorID, domain.ActionRemovePrimary, strPtr(p.UserID), nil); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.refreshPresentation(ctx, t, false)
	return nil
}

// ResetApprovals clears every recorded vote. It is an explicit
// operation: Reassign calls it, primary and mode changes do not.
func (e Engine) ResetApprovals(ctx context.Context, id int64) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetTaskTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Repo.ResetApprovalsTx(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

// Reassign replaces the whole team and resets approval votes.
func (e Engine) Reassign(ctx context.Context, id int64, actorID string, userIDs []string, primaryID string, actor auth.Permissions) error {
	if !actor.CanModerate() {
		return auth.PermissionError{Action: "reassign", Reason: "lead role required"}
	}
	userIDs = dedupeStrings(userIDs)
	if len(userIDs) == 0 {
		return errors.New("at least one assignee is required")
	}
	if primaryID != "" && !containsString(userIDs, primaryID) {
		return fmt.Errorf("primary %s is not among the assignees", primaryID)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if domain.IsTerminal(t.Status) {
		return TransitionError{From: t.Status, To: t.Status}
	}
	assignees, err := e.Repo.ListAssigneesTx(ctx, tx, id)
	if err != nil {
		return err
	}
	var oldTeam []string
	for _, a := range assignees {
		oldTeam = append(oldTeam, a.UserID)
	}
	now := e.nowRFC3339()
	if err := e.Repo.RemoveAllAssigneesTx(ctx, tx, id); err != nil {
		return err
	}
	for _, userID := range userIDs {
		if err := e.Repo.AddAssigneeTx(ctx, tx, id, userID, userID == primaryID, now); err != nil {
			return err
		}
	}
	if err := e.Repo.UpdateTaskStatusTx(ctx, tx, id, t.Status, now); err != nil {
		return err
	}
	oldValue := strings.Join(oldTeam, ",")
	newValue := strings.Join(userIDs, ",")
	if err := e.History.Append(ctx, tx, id, actorID, domain.ActionReassign, strPtr(oldValue), strPtr(newValue)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	t.UpdatedAt = now
	e.refreshPresentation(ctx, t, false)
	return nil
}

// ImportTask is one record of a bulk import payload.
type ImportTask struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	Deadline    string   `json:"deadline,omitempty"`
	AssigneeIDs []string `json:"assignee_ids"`
	PrimaryID   string   `json:"primary_id,omitempty"`
}

// ImportTasks bulk-creates tasks for a game from a JSON array. Records
// are validated before any insert so a bad payload imports nothing.
func (e Engine) ImportTasks(ctx context.Context, acronym string, data []byte, actorID string, actor auth.Permissions) ([]domain.Task, error) {
	if !actor.CanModerate() {
		return nil, auth.PermissionError{Action: "import tasks", Reason: "lead role required"}
	}
	var records []ImportTask
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse import payload: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("import payload is empty")
	}
	for i, rec := range records {
		if rec.Title == "" {
			return nil, fmt.Errorf("record %d: title is required", i+1)
		}
		if len(rec.AssigneeIDs) == 0 {
			return nil, fmt.Errorf("record %d: at least one assignee is required", i+1)
		}
		if rec.Priority != "" && !domain.ValidPriority(rec.Priority) {
			return nil, fmt.Errorf("record %d: unknown priority %s", i+1, rec.Priority)
		}
	}
	var created []domain.Task
	for i, rec := range records {
		t, err := e.CreateTask(ctx, TaskCreateOptions{
			GameAcronym: acronym,
			Title:       rec.Title,
			Description: rec.Description,
			Priority:    rec.Priority,
			Deadline:    rec.Deadline,
			AssigneeIDs: rec.AssigneeIDs,
			PrimaryID:   rec.PrimaryID,
			ActorID:     actorID,
		})
		if err != nil {
			return created, fmt.Errorf("record %d: %w", i+1, err)
		}
		created = append(created, t)
	}
	return created, nil
}
