// Package db provides SQLite database management for rollover history and metadata.
package db

// Schema defines the SQL statements to create database tables.
const Schema = `
-- Rollover history table
-- Tracks which source books have been rolled over into which target books
CREATE TABLE IF NOT EXISTS rollover_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_path TEXT NOT NULL,           -- Book path of the closing year
    target_path TEXT NOT NULL,           -- Book path of the new year
    opening_date TEXT NOT NULL,          -- YYYY-MM-DD
    accounts_created INTEGER NOT NULL,
    transactions_written INTEGER NOT NULL,
    rules_copied INTEGER NOT NULL,
    total_value TEXT NOT NULL,           -- Net opening value, decimal string
    base_currency TEXT NOT NULL,
    completed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(source_path, target_path)
);

CREATE INDEX IF NOT EXISTS idx_rollover_history_target
    ON rollover_history(target_path);

CREATE INDEX IF NOT EXISTS idx_rollover_history_date
    ON rollover_history(opening_date);

-- Verification history table
-- Tracks verification runs against completed rollovers
CREATE TABLE IF NOT EXISTS verification_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_path TEXT NOT NULL,
    target_path TEXT NOT NULL,
    problem_count INTEGER NOT NULL,
    problems TEXT,                       -- Newline-separated problem list
    verified_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_verification_history_target
    ON verification_history(target_path);

-- Rollover metadata table
-- Stores key-value metadata about rollover operations
CREATE TABLE IF NOT EXISTS rollover_metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// InitializeSchema initializes the database schema.
// It creates all tables if they don't exist.
func InitializeSchema(conn *Connection) error {
	if _, err := conn.Exec(Schema); err != nil {
		return err
	}
	return nil
}
