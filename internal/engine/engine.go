package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"crewboard/internal/config"
	"crewboard/internal/domain"
	"crewboard/internal/engine/auth"
	"crewboard/internal/history"
	"crewboard/internal/notify"
	"crewboard/internal/repo"
)

// Engine owns the task lifecycle: status transitions, the approval
// algorithm, and the assignee model. Every mutating operation runs in
// one transaction together with its history entry; presentation refresh
// happens after commit and never rolls anything back.
type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	History   history.Writer
	Presenter notify.Presenter
	GuildID   string
	Logger    *log.Logger
	Now       func() time.Time
}

func New(db *sql.DB, guildID string) Engine {
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		History: history.Writer{},
		GuildID: guildID,
		Now:     time.Now,
	}
}

// TransitionError indicates a status change the state machine forbids.
type TransitionError struct {
	From string
	To   string
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// ErrLastAssignee guards the minimum team size of one.
var ErrLastAssignee = errors.New("cannot remove the last assignee")

func ensureTaskTransition(from, to string) error {
	if domain.IsTerminal(from) {
		return TransitionError{From: from, To: to}
	}
	switch to {
	case domain.StatusProgress:
		if from == domain.StatusTodo {
			return nil
		}
	case domain.StatusTodo:
		if from == domain.StatusProgress {
			return nil
		}
	case domain.StatusReview:
		if from == domain.StatusTodo || from == domain.StatusProgress {
			return nil
		}
	case domain.StatusDone:
		if from == domain.StatusTodo || from == domain.StatusProgress || from == domain.StatusReview {
			return nil
		}
	case domain.StatusCancelled:
		return nil
	}
	return TransitionError{From: from, To: to}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logf(format string, args ...any) {
	if e.Logger != nil {
		e.Logger.Printf(format, args...)
	}
}

func (e Engine) guildConfig(ctx context.Context) (*config.Config, error) {
	return e.Repo.GetGuildConfig(ctx, e.GuildID)
}

func strPtr(s string) *string { return &s }

func isAssignee(assignees []domain.Assignee, userID string) bool {
	for _, a := range assignees {
		if a.UserID == userID {
			return true
		}
	}
	return false
}

func primaryOf(assignees []domain.Assignee) *domain.Assignee {
	for i := range assignees {
		if assignees[i].IsPrimary {
			return &assignees[i]
		}
	}
	return nil
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	GameAcronym string
	Title       string
	Description string
	Priority    string
	Deadline    string
	AssigneeIDs []string
	PrimaryID   string
	ActorID     string
}

// CreateTask inserts a new task in todo with its initial team.
func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.Title == "" {
		return domain.Task{}, errors.New("title is required")
	}
	if len(opts.AssigneeIDs) == 0 {
		return domain.Task{}, errors.New("at least one assignee is required")
	}
	if opts.Priority != "" && !domain.ValidPriority(opts.Priority) {
		return domain.Task{}, fmt.Errorf("unknown priority %s", opts.Priority)
	}
	if opts.Deadline != "" {
		if _, err := time.Parse("2006-01-02", opts.Deadline); err != nil {
			return domain.Task{}, fmt.Errorf("deadline must be YYYY-MM-DD: %w", err)
		}
	}
	if opts.PrimaryID != "" && !containsString(opts.AssigneeIDs, opts.PrimaryID) {
		return domain.Task{}, fmt.Errorf("primary %s is not among the assignees", opts.PrimaryID)
	}
	game, err := e.Repo.GetGameByAcronym(ctx, opts.GameAcronym)
	if err != nil {
		return domain.Task{}, fmt.Errorf("game %s: %w", opts.GameAcronym, err)
	}

	now := e.nowRFC3339()
	t := domain.Task{
		GameAcronym: game.Acronym,
		Title:       opts.Title,
		Description: opts.Description,
		Status:      domain.StatusTodo,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if opts.Priority != "" {
		t.Priority = strPtr(opts.Priority)
	}
	if opts.Deadline != "" {
		t.Deadline = strPtr(opts.Deadline)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	id, err := e.Repo.InsertTaskTx(ctx, tx, t)
	if err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	t.ID = id
	for _, userID := range dedupeStrings(opts.AssigneeIDs) {
		isPrimary := userID == opts.PrimaryID
		if err := e.Repo.AddAssigneeTx(ctx, tx, id, userID, isPrimary, now); err != nil {
			return domain.Task{}, fmt.Errorf("add assignee %s: %w", userID, err)
		}
	}
	if err := e.History.Append(ctx, tx, id, opts.ActorID, domain.ActionStatusChange, nil, strPtr(domain.StatusTodo)); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	e.refreshPresentation(ctx, t, false)
	return t, nil
}

// StartTask moves todo -> progress. Only assignees start their own
// work; a lead role grants no bypass here.
func (e Engine) StartTask(ctx context.Context, id int64, actorID string, actor auth.Permissions) (domain.Task, error) {
	return e.transition(ctx, id, domain.StatusProgress, actorID, actor, "start task", true)
}

// PauseTask moves progress -> todo. Assignees only, like StartTask.
func (e Engine) PauseTask(ctx context.Context, id int64, actorID string, actor auth.Permissions) (domain.Task, error) {
	return e.transition(ctx, id, domain.StatusTodo, actorID, actor, "pause task", true)
}

// SubmitForReview moves todo|progress -> review. Assignee or lead.
func (e Engine) SubmitForReview(ctx context.Context, id int64, actorID string, actor auth.Permissions) (domain.Task, error) {
	return e.transition(ctx, id, domain.StatusReview, actorID, actor, "submit for review", false)
}

// CancelTask moves any non-terminal status to cancelled. Lead only.
func (e Engine) CancelTask(ctx context.Context, id int64, actorID string, actor auth.Permissions) (domain.Task, error) {
	if !actor.CanModerate() {
		return domain.Task{}, auth.PermissionError{Action: "cancel task", Reason: "lead role required"}
	}
	return e.transition(ctx, id, domain.StatusCancelled, actorID, actor, "cancel task", false)
}

// transition applies one guarded status change with its history entry.
// Guard failures mutate nothing and write no history. assigneeOnly
// requires team membership even from leads and administrators.
func (e Engine) transition(ctx context.Context, id int64, to, actorID string, actor auth.Permissions, action string, assigneeOnly bool) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if err := ensureTaskTransition(t.Status, to); err != nil {
		return domain.Task{}, err
	}
	if assigneeOnly || !actor.CanModerate() {
		assignees, err := e.Repo.ListAssigneesTx(ctx, tx, id)
		if err != nil {
			return domain.Task{}, err
		}
		if !isAssignee(assignees, actorID) {
			return domain.Task{}, auth.PermissionError{Action: action, Reason: "only assignees may do this"}
		}
	}
	now := e.nowRFC3339()
	if err := e.Repo.UpdateTaskStatusTx(ctx, tx, id, to, now); err != nil {
		return domain.Task{}, err
	}
	if err := e.History.Append(ctx, tx, id, actorID, domain.ActionStatusChange, strPtr(t.Status), strPtr(to)); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	old := t.Status
	t.Status = to
	t.UpdatedAt = now
	e.logf("task %d: %s -> %s by %s", id, old, to, actorID)
	e.refreshPresentation(ctx, t, false)
	return t, nil
}

// DeleteTask removes a task and its dependent rows. Administrator only.
func (e Engine) DeleteTask(ctx context.Context, id int64, actorID string, actor auth.Permissions) error {
	if !actor.Administrator {
		return auth.PermissionError{Action: "delete task", Reason: "administrator required"}
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
	if err := e.Repo.DeleteTaskTx(ctx, tx, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.logf("task %d deleted by %s", id, actorID)
	if e.Presenter != nil {
		if err := e.Presenter.RemoveTaskArtifacts(ctx, artifactsOf(t)); err != nil {
			e.logf("task %d: remove artifacts: %v", id, err)
		}
		if err := e.Presenter.RefreshBoard(ctx, t.GameAcronym); err != nil {
			e.logf("board %s: refresh: %v", t.GameAcronym, err)
		}
	}
	return nil
}

// UpdateETA sets the free-form estimate on a non-terminal task.
func (e Engine) UpdateETA(ctx context.Context, id int64, actorID, eta string, actor auth.Permissions) (domain.Task, error) {
	return e.updateField(ctx, id, "eta", eta, domain.ActionETAUpdate, actorID, actor)
}

// UpdatePriority sets the priority label on a non-terminal task.
func (e Engine) UpdatePriority(ctx context.Context, id int64, actorID, priority string, actor auth.Permissions) (domain.Task, error) {
	if priority != "" && !domain.ValidPriority(priority) {
		return domain.Task{}, fmt.Errorf("unknown priority %s", priority)
	}
	return e.updateField(ctx, id, "priority", priority, domain.ActionPriorityChange, actorID, actor)
}

func (e Engine) updateField(ctx context.Context, id int64, field, value, action, actorID string, actor auth.Permissions) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if domain.IsTerminal(t.Status) {
		return domain.Task{}, TransitionError{From: t.Status, To: t.Status}
	}
	if !actor.CanModerate() {
		assignees, err := e.Repo.ListAssigneesTx(ctx, tx, id)
		if err != nil {
			return domain.Task{}, err
		}
		if !isAssignee(assignees, actorID) {
			return domain.Task{}, auth.PermissionError{Action: "update " + field, Reason: "only assignees may do this"}
		}
	}
	var oldValue *string
	switch field {
	case "eta":
		oldValue = t.ETA
	case "priority":
		oldValue = t.Priority
	}
	var newValue *string
	if value != "" {
		newValue = strPtr(value)
	}
	now := e.nowRFC3339()
	if err := e.Repo.UpdateTaskFieldTx(ctx, tx, id, field, newValue, now); err != nil {
		return domain.Task{}, err
	}
	if err := e.History.Append(ctx, tx, id, actorID, action, oldValue, newValue); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	switch field {
	case "eta":
		t.ETA = newValue
	case "priority":
		t.Priority = newValue
	}
	t.UpdatedAt = now
	e.refreshPresentation(ctx, t, false)
	return t, nil
}

// ListTasksByAssignee returns every task a user is on, any status.
func (e Engine) ListTasksByAssignee(ctx context.Context, userID string) ([]domain.Task, error) {
	return e.Repo.ListTasksByAssignee(ctx, userID)
}

// refreshPresentation pushes the committed state out to chat. Errors
// are logged and dropped; the database already holds the truth.
func (e Engine) refreshPresentation(ctx context.Context, t domain.Task, archive bool) {
	if e.Presenter == nil {
		return
	}
	if err := e.Presenter.RefreshTask(ctx, t.ID); err != nil {
		e.logf("task %d: refresh panels: %v", t.ID, err)
	}
	if err := e.Presenter.RefreshBoard(ctx, t.GameAcronym); err != nil {
		e.logf("board %s: refresh: %v", t.GameAcronym, err)
	}
	if archive && t.ThreadID != nil {
		if err := e.Presenter.ArchiveThread(ctx, *t.ThreadID); err != nil {
			e.logf("task %d: archive thread: %v", t.ID, err)
		}
	}
}

func artifactsOf(t domain.Task) notify.Artifacts {
	deref := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}
	return notify.Artifacts{
		ChannelID:        deref(t.TargetChannelID),
		ThreadID:         deref(t.ThreadID),
		HeaderMessageID:  deref(t.HeaderMessageID),
		ControlMessageID: deref(t.ControlMessageID),
	}
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
