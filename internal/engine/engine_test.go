package engine_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"crewboard/internal/config"
	"crewboard/internal/db"
	"crewboard/internal/domain"
	"crewboard/internal/engine"
	"crewboard/internal/engine/auth"
	"crewboard/internal/migrate"
)

var (
	member = auth.Permissions{}
	lead   = auth.Permissions{Lead: true}
	admin  = auth.Permissions{Administrator: true}
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, "guild-1")
	eng.Now = func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.Repo.InsertGame(ctx, domain.Game{
		Name: "Steal a Brainrot", Acronym: "SaB", CreatedAt: "2026-08-01T00:00:00Z",
	}); err != nil {
		t.Fatalf("seed game: %v", err)
	}
	if err := eng.Repo.UpsertGuildConfig(ctx, "guild-1", config.Default(), true); err != nil {
		t.Fatalf("seed config: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func (env testEnv) setApprovalMode(t *testing.T, mode string) {
	t.Helper()
	cfg := config.Default()
	cfg.ApprovalMode = mode
	if err := env.Engine.Repo.UpsertGuildConfig(env.Ctx, "guild-1", cfg, true); err != nil {
		t.Fatalf("set approval mode: %v", err)
	}
}

func (env testEnv) newTask(t *testing.T, assignees []string, primary string) domain.Task {
	t.Helper()
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		GameAcronym: "SaB",
		Title:       "Build the thing",
		AssigneeIDs: assignees,
		PrimaryID:   primary,
		ActorID:     "creator",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func (env testEnv) toReview(t *testing.T, id int64, assignee string) {
	t.Helper()
	if _, err := env.Engine.StartTask(env.Ctx, id, assignee, member); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := env.Engine.SubmitForReview(env.Ctx, id, assignee, member); err != nil {
		t.Fatalf("submit for review: %v", err)
	}
}

func TestStatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	task := env.newTask(t, []string{"u1"}, "")

	task, err := env.Engine.StartTask(env.Ctx, task.ID, "u1", member)
	if err != nil || task.Status != domain.StatusProgress {
		t.Fatalf("start: %v status=%s", err, task.Status)
	}
	task, err = env.Engine.PauseTask(env.Ctx, task.ID, "u1", member)
	if err != nil || task.Status != domain.StatusTodo {
		t.Fatalf("pause: %v status=%s", err, task.Status)
	}
	// review straight from todo is allowed
	task, err = env.Engine.SubmitForReview(env.Ctx, task.ID, "u1", member)
	if err != nil || task.Status != domain.StatusReview {
		t.Fatalf("review: %v status=%s", err, task.Status)
	}
	// review -> progress is not a defined edge
	var te engine.TransitionError
	if _, err := env.Engine.StartTask(env.Ctx, task.ID, "u1", member); !errors.As(err, &te) {
		t.Fatalf("expected transition error, got %v", err)
	}
}

func TestTerminalStatesAreFinal(t *testing.T) {
	env := newTestEnv(t)
	task := env.newTask(t, []string{"u1"}, "")
	if _, err := env.Engine.CancelTask(env.Ctx, task.ID, "boss", lead); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	var te engine.TransitionError
	if _, err := env.Engine.StartTask(env.Ctx, task.ID, "u1", member); !errors.As(err, &te) {
		t.Fatalf("expected transition error from cancelled, got %v", err)
	}
	if _, err := env.Engine.CancelTask(env.Ctx, task.ID, "boss", lead); !errors.As(err, &te) {
		t.Fatalf("cancel of cancelled should fail, got %v", err)
	}
	if _, err := env.Engine.UpdateETA(env.Ctx, task.ID, "u1", "next week", member); !errors.As(err, &te) {
		t.Fatalf("eta update on terminal task should fail, got %v", err)
	}
}

func TestCancelRequiresLead(t *testing.T) {
	env := newTestEnv(t)
	task := env.newTask(t, []string{"u1"}, "")
	var pe auth.PermissionError
	if _, err := env.Engine.CancelTask(env.Ctx, task.ID, "u1", member); !errors.As(err, &pe) {
		t.Fatalf("expected permission error, got %v", err)
	}
	got, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil || got.Status != domain.StatusTodo {
		t.Fatalf("task should be untouched: %v status=%s", err, got.Status)
	}
}

func TestTransitionRequiresAssignee(t *testing.T) {
	env := newTestEnv(t)
	task := env.newTask(t, []string{"u1"}, "")
	var pe auth.PermissionError
	if _, err := env.Engine.StartTask(env.Ctx, task.ID, "stranger", member); !errors.As(err, &pe) {
		t.Fatalf("expected permission error, got %v", err)
	}
	// guard failure leaves no trace beyond creation
	entries, err := env.Engine.Repo.ListHistory(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Action != domain.ActionStatusChange {
		t.Fatalf("expected only the creation entry, got %d", len(entries))
	}
}

// Scenario: three shared owners under auto mode need a majority of two.
func TestCloseSharedTeamMajority(t *testing.T) {
	env := newTestEnv(t)
	task := env.newTask(t, []string{"u1", "u2", "u3"}, "")
	env.toReview(t, task.ID, "u1")

	res, err := env.Engine.CloseTask(env.Ctx, task.ID, "u1", member)
	if err != nil {
		t.Fatalf("first close: %v", err)
	}
	if res.Done || res.Approved != 1 || res.Required != 2 {
		t.Fatalf("expected 1/2 pending, got done=%v %d/%d", res.Done, res.Approved, res.Required)
	}
	res, err = env.Engine.CloseTask(env.Ctx, task.ID, "u2", member)
	if err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !res.Done || res.Task.Status != domain.StatusDone {
		t.Fatalf("expected completion, got done=%v status=%s", res.Done, res.Task.Status)
	}
}

// Scenario: a pair under auto mode needs both votes.
func TestCloseAutoPairNeedsBoth(t *testing.T) {
	env := newTestEnv(t)
	task := env.newTask(t, []string{"u1", "u2"}, "")
	env.toReview(t, task.ID, "u1")

	res, err := env.Engine.CloseTask(env.Ctx, task.ID, "u1", member)
	if err != nil {
		t.Fatal(err)
	}
	if res.Done || res.Required != 2 {
		t.Fatalf("pair should need both, got done=%v required=%d", res.Done, res.Required)
	}
	res, err = env.Engine.CloseTask(env.Ctx, task.ID, "u2", member)
	if err != nil || !res.Done {
		t.Fatalf("expected completion: %v done=%v", err, res.Done)
	}
}

// Scenario: with a primary owner set, only the primary closes.
func TestCloseWithPrimaryOwner(t *testing.T) {
	env := newTestEnv(t)
	task := env.newTask(t, []string{"u1", "u2"}, "u2")
	env.toReview(t, task.ID, "u1")

	var pe auth.PermissionError
	if _, err := env.Engine.CloseTask(env.Ctx, task.ID, "u1", member); !errors.As(err, &pe) {
		t.Fatalf("non-primary close should be rejected, got %v", err)
	}
	got, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil || got.Status != domain.StatusReview {
		t.Fatalf("task should stay in review: %v status=%s", err, got.Status)
	}
	res, err := env.Engine.CloseTask(env.Ctx, task.ID, "u2", member)
	if err != nil || !res.Done {
		t.Fatalf("primary close: %v done=%v", err, res.Done)
	}
}

// Scenario: a lead closes immediately regardless of votes.
func TestCloseByLeadBypassesVotes(t *testing.T) {
	env := newTestEnv(t)
	task := env.newTask(t, []string{"u1", "u2", "u3"}, "")
	env.toReview(t, task.ID, "u1")

	res, err := env.Engine.CloseTask(env.Ctx, task.ID, "boss", lead)
	if err != nil || !res.Done {
		t.Fatalf("lead close: %v done=%v", err, res.Done)
	}
}

// Scenario: a non-assignee without a lead role cannot close or vote.
func TestCloseByStrangerRejected(t *testing.T) {
	env := newTestEnv(t)
	task := env.newTask(t, []string{"u1", "u2"}, "")
	env.toReview(t, task.ID, "u1")

	var pe auth.PermissionError
	if _, err := env.Engine.CloseTask(env.Ctx, task.ID, "stranger", member); !errors.As(err, &pe) {
		t.Fatalf("expected permission error, got %v", err)
	}
	assignees, err := env.Engine.Repo.ListAssignees(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range assignees {
		if a.HasApproved {
			t.Fatalf("no vote should be recorded for %s", a.UserID)
		}
	}
}

func TestCloseFromTodoByLead(t *testing.T) {
	env := newTestEnv(t)
	task := env.newTask(t, []string{"u1"}, "")

	res, err := env.Engine.CloseTask(env.Ctx, task.ID, "boss", lead)
	if err != nil {
		t.Fatalf("lead close of a todo task: %v", err)
	}
	if !res.Done || res.Task.Status != domain.StatusDone {
		t.Fatalf("expected completion, got done=%v status=%s", res.Done, res.Task.Status)
	}
}

func TestCloseVoteFromProgress(t *testing.T) {
	env := newTestEnv(t)
	task := env.newTask(t, []string{"u1", "u2", "u3"}, "")
	if _, err := env.Engine.StartTask(env.Ctx, task.ID, "u1", member); err != nil {
		t.Fatal(err)
	}

	res, err := env.Engine.CloseTask(env.Ctx, task.ID, "u1", member)
	if err != nil {
		t.Fatalf("vote while in progress: %v", err)
	}
	if res.Done || res.Approved != 1 || res.Required != 2 {
		t.Fatalf("expected 1/2 pending, got done=%v %d/%d", res.Done, res.Approved, res.Required)
	}
	got, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil || got.Status != domain.StatusProgress {
		t.Fatalf("pending vote must not move the task: %v status=%s", err, got.Status)
	}
	res, err = env.Engine.CloseTask(env.Ctx, task.ID, "u2", member)
	if err != nil || !res.Done || res.Task.Status != domain.StatusDone {
		t.Fatalf("second vote should complete: %v done=%v", err, res.Done)
	}
}

func TestStartAndPauseRequireAssignment(t *testing.T) {
	env := newTestEnv(t)
	task := env.newTask(t, []string{"u1"}, "")

	var pe auth.PermissionError
	if _, err := env.Engine.StartTask(env.Ctx, task.ID, "boss", lead); !errors.As(err, &pe) {
		t.Fatalf("unassigned lead start should be rejected, got %v", err)
	}
	if _, err := env.Engine.StartTask(env.Ctx, task.ID, "u1", member); err != nil {
		t.Fatalf("assignee start: %v", err)
	}
	if _, err := env.Engine.PauseTask(env.Ctx, task.ID, "root", admin); !errors.As(err, &pe) {
		t.Fatalf("unassigned admin pause should be rejected, got %v", err)
	}
	if _, err := env.Engine.PauseTask(env.Ctx, task.ID, "u1", member); err != nil {
		t.Fatalf("assignee pause: %v", err)
	}
}

func TestCloseVoteIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	task := env.newTask(t, []string{"u1", "u2", "u3"}, "")
	env.toReview(t, task.ID, "u1")

	for i := 0; i < 3; i++ {
		res, err := env.Engine.CloseTask(env.Ctx, task.ID, "u1", member)
		if err != nil {
			t.Fatal(err)
		}
		if res.Done || res.Approved != 1 {
			t.Fatalf("repeat vote %d: got done=%v approved=%d", i, res.Done, res.Approved)
		}
	}
}

func TestRequiredApprovalsByMode(t *testing.T) {
	cases := []struct {
		mode     string
		team     []string
		required int
	}{
		{config.ApprovalAny, []string{"u1", "u2", "u3"}, 1},
		{config.ApprovalAll, []string{"u1", "u2", "u3"}, 3},
		{config.ApprovalMajority, []string{"u1", "u2", "u3", "u4"}, 3},
		{config.ApprovalMajority, []string{"u1", "u2", "u3", "u4", "u5"}, 3},
		{config.ApprovalAuto, []string{"u1", "u2"}, 2},
		{config.ApprovalAuto, []string{"u1", "u2", "u3", "u4", "u5"}, 3},
	}
	for _, tc := range cases {
		env := newTestEnv(t)
		env.setApprovalMode(t, tc.mode)
		task := env.newTask(t, tc.team, "")
		env.toReview(t, task.ID, "u1")
		res, err := env.Engine.CloseTask(env.Ctx, task.ID, "u1", member)
		if err != nil {
			t.Fatalf("%s/%d: %v", tc.mode, len(tc.team), err)
		}
		if tc.required == 1 {
			if !res.Done {
				t.Fatalf("%s/%d: single vote should complete", tc.mode, len(tc.team))
			}
			continue
		}
		if res.Required != tc.required {
			t.Fatalf("%s/%d: required=%d want %d", tc.mode, len(tc.team), res.Required, tc.required)
		}
	}
}

func TestRemoveAssigneeKeepsMinimumOfOne(t *testing.T) {
	env := newTestEnv(t)
	task := env.newTask(t, []string{"u1", "u2"}, "")
	if err := env.Engine.RemoveAssignee(env.Ctx, task.ID, "boss", "u2", lead); err != nil {
		t.Fatalf("remove u2: %v", err)
	}
	err := env.Engine.RemoveAssignee(env.Ctx, task.ID, "boss", "u1", lead)
	if !errors.Is(err, engine.ErrLastAssignee) {
		t.Fatalf("expected ErrLastAssignee, got %v", err)
	}
}

func TestRemovingApproverLowersTally(t *testing.T) {
	env := newTestEnv(t)
	task := env.newTask(t, []string{"u1", "u2", "u3"}, "")
	env.toReview(t, task.ID, "u1")
	if _, err := env.Engine.CloseTask(env.Ctx, task.ID, "u1", member); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.RemoveAssignee(env.Ctx, task.ID, "boss", "u1", lead); err != nil {
		t.Fatal(err)
	}
	// u2's vote is now 1 of 2 and completes immediately (auto pair rule
	// requires both of the remaining two, so it does not).
	res, err := env.Engine.CloseTask(env.Ctx, task.ID, "u2", member)
	if err != nil {
		t.Fatal(err)
	}
	if res.Done || res.Approved != 1 || res.Required != 2 {
		t.Fatalf("got done=%v %d/%d, want pending 1/2", res.Done, res.Approved, res.Required)
	}
}

func TestSinglePrimaryInvariant(t *testing.T) {
	env := newTestEnv(t)
	task := env.newTask(t, []string{"u1", "u2", "u3"}, "u1")
	if err := env.Engine.SetPrimary(env.Ctx, task.ID, "boss", "u3", lead); err != nil {
		t.Fatalf("set primary: %v", err)
	}
	assignees, err := env.Engine.Repo.ListAssignees(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	primaries := 0
	for _, a := range assignees {
		if a.IsPrimary {
			primaries++
			if a.UserID != "u3" {
				t.Fatalf("primary should be u3, got %s", a.UserID)
			}
		}
	}
	if primaries != 1 {
		t.Fatalf("expected exactly one primary, got %d", primaries)
	}
	if err := env.Engine.RemovePrimary(env.Ctx, task.ID, "boss", lead); err != nil {
		t.Fatal(err)
	}
	assignees, _ = env.Engine.Repo.ListAssignees(env.Ctx, task.ID)
	for _, a := range assignees {
		if a.IsPrimary {
			t.Fatalf("no primary expected after removal")
		}
	}
}

func TestReassignReplacesTeamAndResetsVotes(t *testing.T) {
	env := newTestEnv(t)
	task := env.newTask(t, []string{"u1", "u2", "u3"}, "")
	env.toReview(t, task.ID, "u1")
	if _, err := env.Engine.CloseTask(env.Ctx, task.ID, "u1", member); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.Reassign(env.Ctx, task.ID, "boss", []string{"u4", "u5", "u6"}, "u4", lead); err != nil {
		t.Fatalf("reassign: %v", err)
	}
	assignees, err := env.Engine.Repo.ListAssignees(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(assignees) != 3 {
		t.Fatalf("expected 3 assignees, got %d", len(assignees))
	}
	for _, a := range assignees {
		if a.HasApproved {
			t.Fatalf("votes should be reset, %s still approved", a.UserID)
		}
		if a.IsPrimary && a.UserID != "u4" {
			t.Fatalf("primary should be u4")
		}
	}
}

func TestHistoryRecordsLifecycle(t *testing.T) {
	env := newTestEnv(t)
	task := env.newTask(t, []string{"u1"}, "")
	if _, err := env.Engine.StartTask(env.Ctx, task.ID, "u1", member); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.UpdateETA(env.Ctx, task.ID, "u1", "friday", member); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.UpdatePriority(env.Ctx, task.ID, "boss", "High", lead); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.AddAssignee(env.Ctx, task.ID, "boss", "u2", lead); err != nil {
		t.Fatal(err)
	}
	entries, err := env.Engine.Repo.ListHistory(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		domain.ActionStatusChange,
		domain.ActionStatusChange,
		domain.ActionETAUpdate,
		domain.ActionPriorityChange,
		domain.ActionAddAssignee,
	}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i, e := range entries {
		if e.Action != want[i] {
			t.Fatalf("entry %d: action=%s want %s", i, e.Action, want[i])
		}
	}
	if *entries[1].OldValue != domain.StatusTodo || *entries[1].NewValue != domain.StatusProgress {
		t.Fatalf("start entry should record todo -> progress")
	}
	if entries[2].NewValue == nil || *entries[2].NewValue != "friday" {
		t.Fatalf("eta entry should record new value")
	}
}

func TestDeleteCascades(t *testing.T) {
	env := newTestEnv(t)
	task := env.newTask(t, []string{"u1", "u2"}, "")
	var pe auth.PermissionError
	if err := env.Engine.DeleteTask(env.Ctx, task.ID, "boss", lead); !errors.As(err, &pe) {
		t.Fatalf("lead delete should be rejected, got %v", err)
	}
	if err := env.Engine.DeleteTask(env.Ctx, task.ID, "root", admin); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.Repo.GetTask(env.Ctx, task.ID); err == nil {
		t.Fatalf("task should be gone")
	}
	assignees, err := env.Engine.Repo.ListAssignees(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(assignees) != 0 {
		t.Fatalf("assignees should cascade, got %d", len(assignees))
	}
	entries, err := env.Engine.Repo.ListHistory(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("history should cascade, got %d", len(entries))
	}
}

func TestImportTasks(t *testing.T) {
	env := newTestEnv(t)
	payload := []byte(`[
		{"title": "Model the map", "assignee_ids": ["u1"], "priority": "High"},
		{"title": "Script the door", "assignee_ids": ["u2", "u3"], "primary_id": "u2"}
	]`)
	created, err := env.Engine.ImportTasks(env.Ctx, "SaB", payload, "boss", lead)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(created))
	}
	bad := []byte(`[{"title": "", "assignee_ids": ["u1"]}]`)
	if _, err := env.Engine.ImportTasks(env.Ctx, "SaB", bad, "boss", lead); err == nil {
		t.Fatalf("empty title should fail validation")
	}
}
