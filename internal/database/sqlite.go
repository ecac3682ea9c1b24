package database

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens (or creates) the embedded database file with foreign keys
// enabled. Every entity in the system lives in this one file.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	// The file is owned by a single process; one writer avoids
	// SQLITE_BUSY churn under request parallelism.
	db.SetMaxOpenConns(1)
	return db, nil
}

// OpenInMemory opens a throwaway database for tests.
func OpenInMemory() (*sql.DB, error) {
	db, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// MustOpenForTest opens a migrated in-memory database or panics. Test
// helper only.
func MustOpenForTest() *sql.DB {
	db, err := OpenInMemory()
	if err != nil {
		panic(err)
	}
	if err := Migrate(db); err != nil {
		panic(err)
	}
	return db
}

var logger = slog.Default().With("component", "database")
