package database

import (
	"database/sql"
	"fmt"
	"time"
)

// SchemaVersion is the current snapshot version. Bump when adding a
// migration to the chain below.
const SchemaVersion = 6

// migration is one step of the forward-only chain. Exactly one of SQL
// or Run is set; Run is used where the step must probe existing state
// (SQLite has no ADD COLUMN IF NOT EXISTS).
type migration struct {
	Version     int
	Description string
	SQL         string
	Run         func(*sql.DB) error
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema",
		// Fresh databases get the full base schema; legacy databases
		// already have these tables.
	},
	{
		Version:     2,
		Description: "Checkbox states with JSON storage",
		SQL: `
            DROP TABLE IF EXISTS checkbox_states;

            CREATE TABLE checkbox_states (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                note_id TEXT REFERENCES notes(id) ON DELETE CASCADE,
                general_note_month_key TEXT,
                viewing_month TEXT NOT NULL,
                states_json TEXT NOT NULL DEFAULT '[]',
                created_at DATETIME NOT NULL,
                updated_at DATETIME NOT NULL
            );

            CREATE UNIQUE INDEX idx_checkbox_note_viewing
                ON checkbox_states (note_id, viewing_month);
            CREATE UNIQUE INDEX idx_checkbox_general_viewing
                ON checkbox_states (general_note_month_key, viewing_month);
        `,
	},
	{
		Version:     3,
		Description: "Frozen target rollover tracking",
		Run:         migrateV3FrozenTarget,
	},
	{
		Version:     4,
		Description: "Refunds tables",
		SQL: `
            CREATE TABLE IF NOT EXISTS refunds_config (
                id INTEGER PRIMARY KEY CHECK (id = 1),
                replacement_tag_id TEXT,
                replace_tag_by_default INTEGER NOT NULL DEFAULT 1,
                aging_warning_days INTEGER NOT NULL DEFAULT 30,
                show_badge INTEGER NOT NULL DEFAULT 1,
                hide_matched_transactions INTEGER NOT NULL DEFAULT 0,
                hide_expected_transactions INTEGER NOT NULL DEFAULT 0,
                created_at DATETIME NOT NULL,
                updated_at DATETIME NOT NULL
            );

            CREATE TABLE IF NOT EXISTS refunds_saved_views (
                id TEXT PRIMARY KEY,
                name TEXT NOT NULL,
                tag_ids TEXT NOT NULL,
                sort_order INTEGER NOT NULL,
                created_at DATETIME NOT NULL,
                updated_at DATETIME NOT NULL
            );

            CREATE TABLE IF NOT EXISTS refunds_matches (
                id TEXT PRIMARY KEY,
                original_transaction_id TEXT NOT NULL UNIQUE,
                refund_transaction_id TEXT,
                refund_amount REAL,
                refund_merchant TEXT,
                refund_date TEXT,
                refund_account TEXT,
                skipped INTEGER NOT NULL DEFAULT 0,
                created_at DATETIME NOT NULL,
                updated_at DATETIME NOT NULL
            );
        `,
	},
	{
		Version:     5,
		Description: "Refunds extensions and stored notes key",
		Run:         migrateV5RefundsExtensions,
	},
	{
		Version:     6,
		Description: "Unique index on logical note key",
		SQL: `
            CREATE UNIQUE INDEX IF NOT EXISTS idx_notes_logical
                ON notes (category_type, category_id, month_key);
        `,
	},
}

// Migrate brings the database to the current schema version. Fresh
// databases (version 0) get the base schema in one shot and are stamped
// current; older databases replay pending migrations in order. Any
// failure is fatal to startup.
func Migrate(db *sql.DB) error {
	current, err := getSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if current == 0 {
		logger.Info("fresh database, creating base schema")
		if _, err := db.Exec(baseSchema); err != nil {
			return fmt.Errorf("failed to create base schema: %w", err)
		}
		if err := setSchemaVersion(db, SchemaVersion); err != nil {
			return err
		}
		return nil
	}

	if current >= SchemaVersion {
		logger.Info("database is up to date", "version", current)
		return nil
	}

	logger.Info("running migrations", "from", current, "to", SchemaVersion)
	for _, m := range migrations {
		if current >= m.Version {
			continue
		}
		logger.Info("applying migration", "version", m.Version, "description", m.Description)
		if m.Run != nil {
			if err := m.Run(db); err != nil {
				return fmt.Errorf("migration v%d failed: %w", m.Version, err)
			}
		} else if m.SQL != "" {
			if _, err := db.Exec(m.SQL); err != nil {
				return fmt.Errorf("migration v%d failed: %w", m.Version, err)
			}
		}
		if err := setSchemaVersion(db, m.Version); err != nil {
			return err
		}
	}
	return nil
}

// migrateV3FrozenTarget adds rollover tracking columns and clears all
// frozen targets so the next calculation re-freezes under the new
// balance model.
func migrateV3FrozenTarget(db *sql.DB) error {
	adds := []struct{ column, ddl string }{
		{"frozen_rollover_amount", "ALTER TABLE categories ADD COLUMN frozen_rollover_amount REAL"},
		{"frozen_next_due_date", "ALTER TABLE categories ADD COLUMN frozen_next_due_date TEXT"},
	}
	for _, a := range adds {
		exists, err := columnExists(db, "categories", a.column)
		if err != nil {
			return err
		}
		if !exists {
			if _, err := db.Exec(a.ddl); err != nil {
				return err
			}
		}
	}

	_, err := db.Exec(`
        UPDATE categories SET
            frozen_monthly_target = NULL,
            target_month = NULL,
            balance_at_month_start = NULL,
            frozen_amount = NULL,
            frozen_frequency_months = NULL,
            frozen_rollover_amount = NULL,
            frozen_next_due_date = NULL
    `)
	return err
}

// migrateV5RefundsExtensions adds the columns that arrived after the
// initial refunds tables, each guarded for idempotency, plus the
// stored notes key on credentials.
func migrateV5RefundsExtensions(db *sql.DB) error {
	adds := []struct{ table, column, ddl string }{
		{"refunds_saved_views", "category_ids", "ALTER TABLE refunds_saved_views ADD COLUMN category_ids TEXT"},
		{"refunds_saved_views", "exclude_from_all", "ALTER TABLE refunds_saved_views ADD COLUMN exclude_from_all INTEGER NOT NULL DEFAULT 0"},
		{"refunds_matches", "expected_refund", "ALTER TABLE refunds_matches ADD COLUMN expected_refund INTEGER NOT NULL DEFAULT 0"},
		{"refunds_matches", "expected_date", "ALTER TABLE refunds_matches ADD COLUMN expected_date TEXT"},
		{"refunds_matches", "expected_account", "ALTER TABLE refunds_matches ADD COLUMN expected_account TEXT"},
		{"refunds_matches", "expected_account_id", "ALTER TABLE refunds_matches ADD COLUMN expected_account_id TEXT"},
		{"refunds_matches", "expected_note", "ALTER TABLE refunds_matches ADD COLUMN expected_note TEXT"},
		{"refunds_matches", "expected_amount", "ALTER TABLE refunds_matches ADD COLUMN expected_amount REAL"},
		{"refunds_matches", "transaction_data", "ALTER TABLE refunds_matches ADD COLUMN transaction_data TEXT"},
		{"refunds_config", "aging_warning_days", "ALTER TABLE refunds_config ADD COLUMN aging_warning_days INTEGER NOT NULL DEFAULT 30"},
		{"refunds_config", "show_badge", "ALTER TABLE refunds_config ADD COLUMN show_badge INTEGER NOT NULL DEFAULT 1"},
		{"refunds_config", "hide_matched_transactions", "ALTER TABLE refunds_config ADD COLUMN hide_matched_transactions INTEGER NOT NULL DEFAULT 0"},
		{"refunds_config", "hide_expected_transactions", "ALTER TABLE refunds_config ADD COLUMN hide_expected_transactions INTEGER NOT NULL DEFAULT 0"},
		{"credentials", "notes_key_encrypted", "ALTER TABLE credentials ADD COLUMN notes_key_encrypted TEXT"},
	}
	for _, a := range adds {
		exists, err := columnExists(db, a.table, a.column)
		if err != nil {
			return err
		}
		if !exists {
			if _, err := db.Exec(a.ddl); err != nil {
				return err
			}
		}
	}
	return nil
}

// columnExists probes a table's columns via PRAGMA table_info.
func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// getSchemaVersion returns 0 for a fresh database, 1 for a legacy
// database that predates version tracking, or the stored version.
func getSchemaVersion(db *sql.DB) (int, error) {
	var name string
	err := db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'",
	).Scan(&name)
	if err == sql.ErrNoRows {
		// No version table. Legacy databases still have notes.
		err = db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'notes'",
		).Scan(&name)
		if err == sql.ErrNoRows {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}

// setSchemaVersion upserts the single schema_version row.
func setSchemaVersion(db *sql.DB, version int) error {
	if _, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS schema_version (
            id INTEGER PRIMARY KEY CHECK (id = 1),
            version INTEGER NOT NULL,
            updated_at DATETIME NOT NULL
        )
    `); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	_, err := db.Exec(`
        INSERT INTO schema_version (id, version, updated_at)
        VALUES (1, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            version = excluded.version,
            updated_at = excluded.updated_at
    `, version, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}
