package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/the-alarm-must-ring/internal/model"
)

const trackerZoneKey = "tracker_zone"

// ListConsumedDays returns every consumed (rule, date) entry.
func (s *SQLiteStorage) ListConsumedDays(ctx context.Context) ([]model.ConsumedDay, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT rule_id, local_date, consumed_at_ms FROM day_tracker ORDER BY rule_id, local_date`)
	if err != nil {
		return nil, fmt.Errorf("failed to query day tracker: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var days []model.ConsumedDay
	for rows.Next() {
		var (
			day        model.ConsumedDay
			date       string
			consumedMs int64
		)
		if err := rows.Scan(&day.RuleID, &date, &consumedMs); err != nil {
			return nil, fmt.Errorf("failed to scan consumed day: %w", err)
		}
		day.Date = model.LocalDate(date)
		day.ConsumedAt = fromMillis(consumedMs)
		days = append(days, day)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating consumed days: %w", err)
	}
	return days, nil
}

// IsDayConsumed reports whether ruleID consumed its first event on date.
func (s *SQLiteStorage) IsDayConsumed(ctx context.Context, ruleID int64, date model.LocalDate) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM day_tracker WHERE rule_id = ? AND local_date = ?`,
		ruleID, string(date)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check day tracker: %w", err)
	}
	return count > 0, nil
}

// MarkDayConsumed records a consumed day. Marking twice keeps the first timestamp.
func (s *SQLiteStorage) MarkDayConsumed(ctx context.Context, ruleID int64, date model.LocalDate, at time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateDate(date); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO day_tracker (rule_id, local_date, consumed_at_ms) VALUES (?, ?, ?)`,
		ruleID, string(date), at.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to mark day consumed: %w", err)
	}
	return nil
}

// DeleteConsumedBefore removes entries dated strictly before date.
func (s *SQLiteStorage) DeleteConsumedBefore(ctx context.Context, date model.LocalDate) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateDate(date); err != nil {
		return 0, err
	}
	return s.deleteDays(ctx, `DELETE FROM day_tracker WHERE local_date < ?`, string(date))
}

// DeleteConsumedBetween removes entries dated within [from, to].
func (s *SQLiteStorage) DeleteConsumedBetween(ctx context.Context, from, to model.LocalDate) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateDate(from); err != nil {
		return 0, err
	}
	if err := validateDate(to); err != nil {
		return 0, err
	}
	return s.deleteDays(ctx, `DELETE FROM day_tracker WHERE local_date BETWEEN ? AND ?`, string(from), string(to))
}

func (s *SQLiteStorage) deleteDays(ctx context.Context, query string, args ...any) (int, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete consumed days: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// GetTrackerZone returns the persisted tracker zone, or "" if none is stored.
func (s *SQLiteStorage) GetTrackerZone(ctx context.Context) (string, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}

	var zone string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM tracker_meta WHERE key = ?`, trackerZoneKey).Scan(&zone)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read tracker zone: %w", err)
	}
	return zone, nil
}

// SetTrackerZone persists the tracker zone name.
func (s *SQLiteStorage) SetTrackerZone(ctx context.Context, zone string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(zone, "zone"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tracker_meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		trackerZoneKey, zone)
	if err != nil {
		return fmt.Errorf("failed to write tracker zone: %w", err)
	}
	return nil
}
