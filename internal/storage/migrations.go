package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS rules (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL DEFAULT '',
					keyword_pattern TEXT NOT NULL,
					is_regex BOOLEAN NOT NULL DEFAULT 0,
					calendar_ids TEXT NOT NULL DEFAULT '[]',
					lead_time_minutes INTEGER NOT NULL CHECK (lead_time_minutes BETWEEN 1 AND 10080),
					enabled BOOLEAN NOT NULL DEFAULT 1,
					first_event_of_day_only BOOLEAN NOT NULL DEFAULT 0,
					created_at INTEGER NOT NULL
				)`,
				`CREATE INDEX idx_rules_enabled ON rules(enabled)`,

				`CREATE TABLE IF NOT EXISTS alarms (
					id TEXT PRIMARY KEY,
					event_id TEXT NOT NULL,
					rule_id INTEGER NOT NULL,
					event_title TEXT NOT NULL DEFAULT '',
					event_start_ms INTEGER NOT NULL DEFAULT 0,
					alarm_time_ms INTEGER NOT NULL,
					scheduled_at_ms INTEGER NOT NULL DEFAULT 0,
					user_dismissed BOOLEAN NOT NULL DEFAULT 0,
					request_code INTEGER NOT NULL,
					last_event_modified INTEGER NOT NULL DEFAULT 0,
					event_all_day BOOLEAN NOT NULL DEFAULT 0
				)`,
				`CREATE INDEX idx_alarms_alarm_time ON alarms(alarm_time_ms)`,
				`CREATE INDEX idx_alarms_event ON alarms(event_id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Add day tracker for first-event-of-day rules",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS day_tracker (
					rule_id INTEGER NOT NULL,
					local_date TEXT NOT NULL,
					consumed_at_ms INTEGER NOT NULL,
					PRIMARY KEY (rule_id, local_date)
				)`,
				`CREATE INDEX idx_day_tracker_date ON day_tracker(local_date)`,

				`CREATE TABLE IF NOT EXISTS tracker_meta (
					key TEXT PRIMARY KEY,
					value TEXT NOT NULL
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Add ad-hoc flag for test and snooze alarms",
		Up: func(tx *sql.Tx) error {
			if _, err := tx.Exec(`ALTER TABLE alarms ADD COLUMN ad_hoc BOOLEAN NOT NULL DEFAULT 0`); err != nil {
				return fmt.Errorf("failed to add ad_hoc column: %w", err)
			}
			return nil
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	// Get current version
	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	// Apply migrations
	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		// Update version
		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	// Verify we're at the expected schema version
	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
