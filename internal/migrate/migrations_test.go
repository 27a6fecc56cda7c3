package migrate_test

import (
	"path/filepath"
	"testing"

	"crewboard/internal/db"
	"crewboard/internal/migrate"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	version, err := migrate.Version(conn)
	if err != nil {
		t.Fatal(err)
	}
	if version < 3 {
		t.Fatalf("schema version = %d, want >= 3", version)
	}
}

func TestLegacyAssigneeBackfill(t *testing.T) {
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	// Simulate a pre-backfill row, rewind past the backfill migration
	// and run it again.
	if _, err := conn.Exec(`INSERT INTO tasks(game_acronym,title,status,assignee_id,created_at,updated_at)
VALUES ('SaB','legacy task','todo','user-9','2026-01-01T00:00:00Z','2026-01-01T00:00:00Z')`); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Exec(`UPDATE schema_version SET version=1`); err != nil {
		t.Fatal(err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("re-migrate: %v", err)
	}

	var userID string
	var isPrimary bool
	err = conn.QueryRow(`SELECT user_id, is_primary FROM task_assignees a JOIN tasks t ON t.id=a.task_id WHERE t.title='legacy task'`).
		Scan(&userID, &isPrimary)
	if err != nil {
		t.Fatalf("backfill row: %v", err)
	}
	if userID != "user-9" || !isPrimary {
		t.Fatalf("backfill produced %s primary=%v", userID, isPrimary)
	}

	// Running the backfill twice must not duplicate rows.
	if _, err := conn.Exec(`UPDATE schema_version SET version=1`); err != nil {
		t.Fatal(err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("third migrate: %v", err)
	}
	var count int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM task_assignees`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected 1 assignee row, got %d", count)
	}
}
