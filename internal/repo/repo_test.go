package repo_test

import (
	"context"
	"path/filepath"
	"testing"

	"crewboard/internal/config"
	"crewboard/internal/db"
	"crewboard/internal/domain"
	"crewboard/internal/migrate"
	"crewboard/internal/repo"
)

func newTestRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}
}

func TestGetTaskNotFound(t *testing.T) {
	r := newTestRepo(t)
	if _, err := r.GetTask(context.Background(), 999); err != repo.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGuildConfigDefaultsWhenMissing(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	cfg, err := r.GetGuildConfig(ctx, "never-configured")
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if cfg.ApprovalMode != config.ApprovalAuto {
		t.Fatalf("approval mode = %s, want auto", cfg.ApprovalMode)
	}

	custom := config.Default()
	custom.ApprovalMode = config.ApprovalAny
	if err := r.UpsertGuildConfig(ctx, "g1", custom, true); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := r.GetGuildConfig(ctx, "g1")
	if err != nil || got.ApprovalMode != config.ApprovalAny {
		t.Fatalf("round trip: %v mode=%s", err, got.ApprovalMode)
	}
}

func TestBoardRoundTrip(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	b := domain.Board{
		GameAcronym: "SaB",
		ChannelID:   "chan-1",
		MessageIDs:  []string{"m1", "m2", "m3", "m4"},
	}
	if err := r.UpsertBoard(ctx, b); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := r.GetBoard(ctx, "sab")
	if err != nil {
		t.Fatalf("get (case-insensitive): %v", err)
	}
	if len(got.MessageIDs) != 4 || got.MessageIDs[3] != "m4" {
		t.Fatalf("message ids round trip: %v", got.MessageIDs)
	}
	b.MessageIDs[0] = "m9"
	if err := r.UpsertBoard(ctx, b); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	got, _ = r.GetBoard(ctx, "SaB")
	if got.MessageIDs[0] != "m9" {
		t.Fatalf("upsert should replace ids, got %v", got.MessageIDs)
	}
}

func TestUpdateTaskMessageRefs(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	tx, err := r.DB.Begin()
	if err != nil {
		t.Fatal(err)
	}
	id, err := r.InsertTaskTx(ctx, tx, domain.Task{
		GameAcronym: "SaB", Title: "t", Status: domain.StatusTodo,
		CreatedAt: "2026-08-01T00:00:00Z", UpdatedAt: "2026-08-01T00:00:00Z",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	channel, thread := "c1", "th1"
	if err := r.UpdateTaskMessageRefs(ctx, id, &channel, &thread, nil, nil); err != nil {
		t.Fatalf("set refs: %v", err)
	}
	got, err := r.GetTask(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.TargetChannelID == nil || *got.TargetChannelID != "c1" {
		t.Fatalf("channel ref: %+v", got.TargetChannelID)
	}
	if got.ThreadID == nil || *got.ThreadID != "th1" {
		t.Fatalf("thread ref: %+v", got.ThreadID)
	}
	header := "h1"
	if err := r.UpdateTaskMessageRefs(ctx, id, nil, nil, &header, nil); err != nil {
		t.Fatal(err)
	}
	got, _ = r.GetTask(ctx, id)
	if got.ThreadID == nil || *got.ThreadID != "th1" {
		t.Fatalf("nil fields must leave stored values alone")
	}
	if got.HeaderMessageID == nil || *got.HeaderMessageID != "h1" {
		t.Fatalf("header ref: %+v", got.HeaderMessageID)
	}
}

func TestGameAcronymUniqueCaseInsensitive(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	if _, err := r.InsertGame(ctx, domain.Game{Name: "Steal a Brainrot", Acronym: "SaB", CreatedAt: "2026-08-01T00:00:00Z"}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.InsertGame(ctx, domain.Game{Name: "Other", Acronym: "sab", CreatedAt: "2026-08-01T00:00:00Z"}); err == nil {
		t.Fatalf("case-insensitive duplicate acronym should fail")
	}
	g, err := r.GetGameByAcronym(ctx, "SAB")
	if err != nil || g.Name != "Steal a Brainrot" {
		t.Fatalf("lookup: %v %+v", err, g)
	}
}
