package database

// baseSchema is the full current schema, applied in one shot to fresh
// databases. Existing databases reach the same shape through the
// numbered migration chain in migrations.go.
const baseSchema = `
CREATE TABLE IF NOT EXISTS credentials (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    salt TEXT NOT NULL,
    email_encrypted TEXT NOT NULL,
    password_encrypted TEXT NOT NULL,
    mfa_secret_encrypted TEXT,
    notes_key_encrypted TEXT,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS notes (
    id TEXT PRIMARY KEY,
    category_type TEXT NOT NULL,
    category_id TEXT NOT NULL,
    category_name TEXT NOT NULL,
    group_id TEXT,
    group_name TEXT,
    month_key TEXT NOT NULL,
    content_encrypted TEXT NOT NULL,
    salt TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notes_category
    ON notes (category_type, category_id);
CREATE INDEX IF NOT EXISTS idx_notes_month
    ON notes (month_key);
CREATE UNIQUE INDEX IF NOT EXISTS idx_notes_logical
    ON notes (category_type, category_id, month_key);

CREATE TABLE IF NOT EXISTS general_notes (
    month_key TEXT PRIMARY KEY,
    id TEXT NOT NULL,
    content_encrypted TEXT NOT NULL,
    salt TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS archived_notes (
    id TEXT PRIMARY KEY,
    category_type TEXT NOT NULL,
    category_id TEXT NOT NULL,
    category_name TEXT NOT NULL,
    group_id TEXT,
    group_name TEXT,
    month_key TEXT NOT NULL,
    content_encrypted TEXT NOT NULL,
    salt TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    archived_at DATETIME NOT NULL,
    original_category_name TEXT NOT NULL,
    original_group_name TEXT
);

CREATE TABLE IF NOT EXISTS known_categories (
    category_id TEXT PRIMARY KEY,
    name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS checkbox_states (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    note_id TEXT REFERENCES notes(id) ON DELETE CASCADE,
    general_note_month_key TEXT,
    viewing_month TEXT NOT NULL,
    states_json TEXT NOT NULL DEFAULT '[]',
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_checkbox_note_viewing
    ON checkbox_states (note_id, viewing_month);
CREATE UNIQUE INDEX IF NOT EXISTS idx_checkbox_general_viewing
    ON checkbox_states (general_note_month_key, viewing_month);

CREATE TABLE IF NOT EXISTS categories (
    recurring_id TEXT PRIMARY KEY,
    category_id TEXT,
    amount REAL,
    frequency_months REAL,
    frozen_monthly_target REAL,
    target_month TEXT,
    balance_at_month_start REAL,
    frozen_amount REAL,
    frozen_frequency_months REAL,
    frozen_rollover_amount REAL,
    frozen_next_due_date TEXT,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

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
    category_ids TEXT,
    sort_order INTEGER NOT NULL,
    exclude_from_all INTEGER NOT NULL DEFAULT 0,
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
    expected_refund INTEGER NOT NULL DEFAULT 0,
    expected_date TEXT,
    expected_account TEXT,
    expected_account_id TEXT,
    expected_note TEXT,
    expected_amount REAL,
    transaction_data TEXT,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS security_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    event_type TEXT NOT NULL,
    success INTEGER NOT NULL,
    timestamp TEXT NOT NULL,
    ip_address TEXT,
    country TEXT,
    city TEXT,
    details TEXT,
    user_agent TEXT
);

CREATE INDEX IF NOT EXISTS idx_security_events_timestamp
    ON security_events (timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_security_events_type
    ON security_events (event_type);
CREATE INDEX IF NOT EXISTS idx_security_events_success
    ON security_events (success);

CREATE TABLE IF NOT EXISTS ip_geolocation_cache (
    ip_address TEXT PRIMARY KEY,
    country TEXT,
    city TEXT,
    cached_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS security_preferences (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ip_lockouts (
    ip_address TEXT PRIMARY KEY,
    failed_attempts INTEGER NOT NULL DEFAULT 0,
    locked_until TEXT,
    last_attempt TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ip_lockouts_locked_until
    ON ip_lockouts (locked_until);
`
