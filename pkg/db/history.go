package db

import (
	"database/sql"
	"fmt"
	"time"
)

// RolloverRecord represents one completed rollover.
type RolloverRecord struct {
	ID                  int64
	SourcePath          string
	TargetPath          string
	OpeningDate         string
	AccountsCreated     int64
	TransactionsWritten int64
	RulesCopied         int64
	TotalValue          string
	BaseCurrency        string
	CompletedAt         time.Time
}

// VerificationRecord represents one verification run against a target book.
type VerificationRecord struct {
	ID           int64
	SourcePath   string
	TargetPath   string
	ProblemCount int64
	Problems     sql.NullString
	VerifiedAt   time.Time
}

// History manages rollover history operations.
type History struct {
	conn *Connection
}

// NewHistory creates a new History instance.
func NewHistory(conn *Connection) *History {
	return &History{conn: conn}
}

// RecordRollover records a completed rollover.
// If a record for the same source/target pair already exists (a re-run with
// overwrite), it is updated in place.
func (h *History) RecordRollover(record RolloverRecord) error {
	query := `
		INSERT INTO rollover_history
			(source_path, target_path, opening_date, accounts_created,
			 transactions_written, rules_copied, total_value, base_currency)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_path, target_path) DO UPDATE SET
			opening_date = excluded.opening_date,
			accounts_created = excluded.accounts_created,
			transactions_written = excluded.transactions_written,
			rules_copied = excluded.rules_copied,
			total_value = excluded.total_value,
			base_currency = excluded.base_currency,
			completed_at = CURRENT_TIMESTAMP
	`

	_, err := h.conn.Exec(query,
		record.SourcePath,
		record.TargetPath,
		record.OpeningDate,
		record.AccountsCreated,
		record.TransactionsWritten,
		record.RulesCopied,
		record.TotalValue,
		record.BaseCurrency,
	)

	if err != nil {
		return fmt.Errorf("failed to record rollover: %w", err)
	}

	return nil
}

// HasRolledOver checks if a source book has already been rolled over into a target.
func (h *History) HasRolledOver(sourcePath, targetPath string) (bool, error) {
	query := `
		SELECT COUNT(*) as count FROM rollover_history
		WHERE source_path = ? AND target_path = ?
	`

	var count int
	err := h.conn.QueryRow(query, sourcePath, targetPath).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check rollover history: %w", err)
	}

	return count > 0, nil
}

// GetRollover retrieves the rollover record for a source/target pair.
func (h *History) GetRollover(sourcePath, targetPath string) (*RolloverRecord, error) {
	query := `
		SELECT id, source_path, target_path, opening_date, accounts_created,
		       transactions_written, rules_copied, total_value, base_currency, completed_at
		FROM rollover_history
		WHERE source_path = ? AND target_path = ?
	`

	var record RolloverRecord

	err := h.conn.QueryRow(query, sourcePath, targetPath).Scan(
		&record.ID,
		&record.SourcePath,
		&record.TargetPath,
		&record.OpeningDate,
		&record.AccountsCreated,
		&record.TransactionsWritten,
		&record.RulesCopied,
		&record.TotalValue,
		&record.BaseCurrency,
		&record.CompletedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rollover record: %w", err)
	}

	return &record, nil
}

// GetRecentRollovers retrieves the most recent rollover records, newest first.
func (h *History) GetRecentRollovers(limit int) ([]RolloverRecord, error) {
	query := `
		SELECT id, source_path, target_path, opening_date, accounts_created,
		       transactions_written, rules_copied, total_value, base_currency, completed_at
		FROM rollover_history
		ORDER BY completed_at DESC, id DESC
		LIMIT ?
	`

	rows, err := h.conn.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent rollovers: %w", err)
	}
	defer rows.Close()

	var records []RolloverRecord
	for rows.Next() {
		var record RolloverRecord

		if err := rows.Scan(
			&record.ID,
			&record.SourcePath,
			&record.TargetPath,
			&record.OpeningDate,
			&record.AccountsCreated,
			&record.TransactionsWritten,
			&record.RulesCopied,
			&record.TotalValue,
			&record.BaseCurrency,
			&record.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan rollover record: %w", err)
		}

		records = append(records, record)
	}

	return records, nil
}

// DeleteRollover deletes a rollover record.
// Use case: the target book was deleted by hand and the pair should be forgotten.
func (h *History) DeleteRollover(sourcePath, targetPath string) (bool, error) {
	query := `DELETE FROM rollover_history WHERE source_path = ? AND target_path = ?`

	result, err := h.conn.Exec(query, sourcePath, targetPath)
	if err != nil {
		return false, fmt.Errorf("failed to delete rollover record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

// RecordVerification records a verification run.
func (h *History) RecordVerification(record VerificationRecord) error {
	query := `
		INSERT INTO verification_history (source_path, target_path, problem_count, problems)
		VALUES (?, ?, ?, ?)
	`

	_, err := h.conn.Exec(query,
		record.SourcePath,
		record.TargetPath,
		record.ProblemCount,
		record.Problems,
	)

	if err != nil {
		return fmt.Errorf("failed to record verification: %w", err)
	}

	return nil
}

// GetVerifications retrieves verification runs for a target book, newest first.
func (h *History) GetVerifications(targetPath string) ([]VerificationRecord, error) {
	query := `
		SELECT id, source_path, target_path, problem_count, problems, verified_at
		FROM verification_history
		WHERE target_path = ?
		ORDER BY verified_at DESC, id DESC
	`

	rows, err := h.conn.Query(query, targetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get verifications: %w", err)
	}
	defer rows.Close()

	var records []VerificationRecord
	for rows.Next() {
		var record VerificationRecord

		if err := rows.Scan(
			&record.ID,
			&record.SourcePath,
			&record.TargetPath,
			&record.ProblemCount,
			&record.Problems,
			&record.VerifiedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan verification record: %w", err)
		}

		records = append(records, record)
	}

	return records, nil
}

// Stats represents rollover statistics.
type Stats struct {
	TotalRollovers     int
	TotalVerifications int
	CleanVerifications int
	LastRollover       sql.NullString
}

// GetStats retrieves rollover statistics.
func (h *History) GetStats() (*Stats, error) {
	var stats Stats

	// Get rollover count
	err := h.conn.QueryRow(`SELECT COUNT(*) FROM rollover_history`).Scan(&stats.TotalRollovers)
	if err != nil {
		return nil, fmt.Errorf("failed to get rollover count: %w", err)
	}

	// Get verification counts
	err = h.conn.QueryRow(`SELECT COUNT(*) FROM verification_history`).Scan(&stats.TotalVerifications)
	if err != nil {
		return nil, fmt.Errorf("failed to get verification count: %w", err)
	}

	err = h.conn.QueryRow(`SELECT COUNT(*) FROM verification_history WHERE problem_count = 0`).Scan(&stats.CleanVerifications)
	if err != nil {
		return nil, fmt.Errorf("failed to get clean verification count: %w", err)
	}

	// Get last rollover time
	err = h.conn.QueryRow(`SELECT MAX(completed_at) FROM rollover_history`).Scan(&stats.LastRollover)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get last rollover time: %w", err)
	}

	return &stats, nil
}

// GetMetadata retrieves a metadata value.
func (h *History) GetMetadata(key string) (string, error) {
	query := `SELECT value FROM rollover_metadata WHERE key = ?`

	var value string
	err := h.conn.QueryRow(query, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get metadata: %w", err)
	}

	return value, nil
}

// SetMetadata sets a metadata value.
func (h *History) SetMetadata(key, value string) error {
	query := `
		INSERT INTO rollover_metadata (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := h.conn.Exec(query, key, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata: %w", err)
	}

	return nil
}
