package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/the-alarm-must-ring/internal/common"
	"github.com/Veraticus/the-alarm-must-ring/internal/model"
)

const ruleColumns = `id, name, keyword_pattern, is_regex, calendar_ids, lead_time_minutes,
			enabled, first_event_of_day_only, created_at`

// CreateRule inserts a new rule and sets its ID and CreatedAt.
func (s *SQLiteStorage) CreateRule(ctx context.Context, rule *model.Rule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}
	return s.createRule(ctx, s.db, rule)
}

// ReplaceRules deletes every rule and inserts rules in one transaction.
func (s *SQLiteStorage) ReplaceRules(ctx context.Context, rules []model.Rule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	for i := range rules {
		if err := validateRule(&rules[i]); err != nil {
			return fmt.Errorf("rule at index %d: %w", i, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM rules"); err != nil {
		return fmt.Errorf("failed to clear rules: %w", err)
	}
	for i := range rules {
		if err := s.createRule(ctx, tx, &rules[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rules: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStorage) createRule(ctx context.Context, db execer, rule *model.Rule) error {
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	calendars, err := encodeCalendarIDs(rule.CalendarIDs)
	if err != nil {
		return err
	}

	result, err := db.ExecContext(ctx, `
		INSERT INTO rules (
			name, keyword_pattern, is_regex, calendar_ids, lead_time_minutes,
			enabled, first_event_of_day_only, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.Name, rule.KeywordPattern, rule.IsRegex, calendars, rule.LeadTimeMinutes,
		rule.Enabled, rule.FirstEventOfDayOnly, toMillis(rule.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get rule ID: %w", err)
	}
	rule.ID = id
	return nil
}

// GetRule retrieves a rule by ID.
func (s *SQLiteStorage) GetRule(ctx context.Context, id int64) (*model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM rules WHERE id = ?`, id)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// ListRules returns every rule ordered by ID.
func (s *SQLiteStorage) ListRules(ctx context.Context) ([]model.Rule, error) {
	return s.queryRules(ctx, `SELECT `+ruleColumns+` FROM rules ORDER BY id`)
}

// ListEnabledRules returns enabled rules ordered by ID.
func (s *SQLiteStorage) ListEnabledRules(ctx context.Context) ([]model.Rule, error) {
	return s.queryRules(ctx, `SELECT `+ruleColumns+` FROM rules WHERE enabled = 1 ORDER BY id`)
}

// UpdateRule updates an existing rule.
func (s *SQLiteStorage) UpdateRule(ctx context.Context, rule *model.Rule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}
	calendars, err := encodeCalendarIDs(rule.CalendarIDs)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE rules SET
			name = ?, keyword_pattern = ?, is_regex = ?, calendar_ids = ?,
			lead_time_minutes = ?, enabled = ?, first_event_of_day_only = ?
		WHERE id = ?`,
		rule.Name, rule.KeywordPattern, rule.IsRegex, calendars,
		rule.LeadTimeMinutes, rule.Enabled, rule.FirstEventOfDayOnly,
		rule.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	return requireAffected(result, fmt.Sprintf("rule %d", rule.ID))
}

// SetRuleEnabled enables or disables a rule.
func (s *SQLiteStorage) SetRuleEnabled(ctx context.Context, id int64, enabled bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `UPDATE rules SET enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	return requireAffected(result, fmt.Sprintf("rule %d", id))
}

// DeleteRule deletes a rule. Its alarms are canceled by the next refresh.
func (s *SQLiteStorage) DeleteRule(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return requireAffected(result, fmt.Sprintf("rule %d", id))
}

func (s *SQLiteStorage) queryRules(ctx context.Context, query string, args ...any) ([]model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, *rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return rules, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRule(row scanner) (*model.Rule, error) {
	var (
		rule      model.Rule
		calendars string
		createdAt int64
	)
	err := row.Scan(
		&rule.ID, &rule.Name, &rule.KeywordPattern, &rule.IsRegex, &calendars, &rule.LeadTimeMinutes,
		&rule.Enabled, &rule.FirstEventOfDayOnly, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	rule.CreatedAt = fromMillis(createdAt)
	if calendars != "" {
		if err := json.Unmarshal([]byte(calendars), &rule.CalendarIDs); err != nil {
			return nil, fmt.Errorf("failed to decode calendar IDs for rule %d: %w", rule.ID, err)
		}
	}
	if len(rule.CalendarIDs) == 0 {
		rule.CalendarIDs = nil
	}
	return &rule, nil
}

func encodeCalendarIDs(ids []string) (string, error) {
	if len(ids) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("failed to encode calendar IDs: %w", err)
	}
	return string(data), nil
}

func requireAffected(result sql.Result, what string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, common.ErrNotFound)
	}
	return nil
}
