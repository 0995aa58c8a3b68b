package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/the-alarm-must-ring/internal/common"
	"github.com/Veraticus/the-alarm-must-ring/internal/model"
)

const alarmColumns = `id, event_id, rule_id, event_title, event_start_ms, alarm_time_ms,
			scheduled_at_ms, user_dismissed, request_code, last_event_modified, ad_hoc, event_all_day`

// ListAlarms returns alarms matching filter ordered by alarm time, then ID.
func (s *SQLiteStorage) ListAlarms(ctx context.Context, filter model.AlarmFilter) ([]model.ScheduledAlarm, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if filter.EventID != "" {
		where = append(where, "event_id = ?")
		args = append(args, filter.EventID)
	}
	if filter.RuleID != 0 {
		where = append(where, "rule_id = ?")
		args = append(args, filter.RuleID)
	}
	if filter.OnlyDismissed {
		where = append(where, "user_dismissed = 1")
	}
	if filter.ExcludeAdHoc {
		where = append(where, "ad_hoc = 0")
	}

	query := `SELECT ` + alarmColumns + ` FROM alarms`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY alarm_time_ms, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alarms: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var alarms []model.ScheduledAlarm
	for rows.Next() {
		alarm, err := scanAlarm(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alarm: %w", err)
		}
		alarms = append(alarms, *alarm)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alarms: %w", err)
	}

	return alarms, nil
}

// GetAlarm retrieves an alarm by ID.
func (s *SQLiteStorage) GetAlarm(ctx context.Context, id string) (*model.ScheduledAlarm, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+alarmColumns+` FROM alarms WHERE id = ?`, id)
	alarm, err := scanAlarm(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alarm %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alarm: %w", err)
	}
	return alarm, nil
}

// UpsertAlarm inserts or replaces an alarm row.
func (s *SQLiteStorage) UpsertAlarm(ctx context.Context, alarm *model.ScheduledAlarm) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAlarm(alarm); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alarms (
			id, event_id, rule_id, event_title, event_start_ms, alarm_time_ms,
			scheduled_at_ms, user_dismissed, request_code, last_event_modified, ad_hoc, event_all_day
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			event_id = excluded.event_id,
			rule_id = excluded.rule_id,
			event_title = excluded.event_title,
			event_start_ms = excluded.event_start_ms,
			alarm_time_ms = excluded.alarm_time_ms,
			scheduled_at_ms = excluded.scheduled_at_ms,
			user_dismissed = excluded.user_dismissed,
			request_code = excluded.request_code,
			last_event_modified = excluded.last_event_modified,
			ad_hoc = excluded.ad_hoc,
			event_all_day = excluded.event_all_day`,
		alarm.ID, alarm.EventID, alarm.RuleID, alarm.EventTitle,
		toMillis(alarm.EventStartTime), toMillis(alarm.AlarmTime), toMillis(alarm.ScheduledAt),
		alarm.UserDismissed, alarm.RequestCode, alarm.LastEventModified, alarm.AdHoc, alarm.EventAllDay,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert alarm: %w", err)
	}
	return nil
}

// DeleteAlarm deletes an alarm row.
func (s *SQLiteStorage) DeleteAlarm(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM alarms WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete alarm: %w", err)
	}
	return requireAffected(result, "alarm "+id)
}

// SetDismissed marks an alarm dismissed (or not) and snapshots the event's change marker.
func (s *SQLiteStorage) SetDismissed(ctx context.Context, id string, dismissed bool, marker int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE alarms SET user_dismissed = ?, last_event_modified = ? WHERE id = ?`,
		dismissed, marker, id)
	if err != nil {
		return fmt.Errorf("failed to update alarm: %w", err)
	}
	return requireAffected(result, "alarm "+id)
}

// DeleteExpired removes alarms whose fire time is before cutoff.
func (s *SQLiteStorage) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM alarms WHERE alarm_time_ms < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired alarms: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

func scanAlarm(row scanner) (*model.ScheduledAlarm, error) {
	var (
		alarm                            model.ScheduledAlarm
		startMs, alarmMs, scheduledAtMs int64
	)
	err := row.Scan(
		&alarm.ID, &alarm.EventID, &alarm.RuleID, &alarm.EventTitle, &startMs, &alarmMs,
		&scheduledAtMs, &alarm.UserDismissed, &alarm.RequestCode, &alarm.LastEventModified, &alarm.AdHoc,
		&alarm.EventAllDay,
	)
	if err != nil {
		return nil, err
	}
	alarm.EventStartTime = fromMillis(startMs)
	alarm.AlarmTime = fromMillis(alarmMs)
	alarm.ScheduledAt = fromMillis(scheduledAtMs)
	return &alarm, nil
}
