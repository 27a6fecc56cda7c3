package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const defaultDBName = "crewboard.db"

type Config struct {
	// Path is the database file. Empty means ./data/crewboard.db.
	Path string
}

func dbPath(path string) string {
	if path == "" {
		return filepath.Join("data", defaultDBName)
	}
	return path
}

// Open opens the SQLite database with foreign keys on and WAL enabled.
// The parent directory is created if missing.
func Open(cfg Config) (*sql.DB, error) {
	path := dbPath(cfg.Path)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// The reminder sweeper and command handlers share one connection;
	// sqlite writes serialize on it.
	conn.SetMaxOpenConns(1)
	return conn, nil
}

// Path returns the resolved database file path.
func Path(path string) string {
	return dbPath(path)
}
