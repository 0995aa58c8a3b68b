// Package testutil provides fakes and database helpers shared by package tests.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/the-alarm-must-ring/internal/model"
	"github.com/Veraticus/the-alarm-must-ring/internal/pattern"
	"github.com/Veraticus/the-alarm-must-ring/internal/storage"
)

// TestDB is a migrated in-memory database plus the rules seeded into it.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
	Rules   []model.Rule
}

// SetupTestDB creates a migrated in-memory database seeded with rules.
// It is closed when the test ends.
//
// Example:
//
//	db := testutil.SetupTestDB(t,
//		testutil.NewRuleBuilder().
//			WithRule("Standups", "stand.?up", 10).
//			Build()...,
//	)
func SetupTestDB(t *testing.T, rules ...model.Rule) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	seeded := make([]model.Rule, 0, len(rules))
	for _, rule := range rules {
		rule := rule
		if err := store.CreateRule(ctx, &rule); err != nil {
			t.Fatalf("failed to seed rule %q: %v", rule.Name, err)
		}
		seeded = append(seeded, rule)
	}

	return &TestDB{Storage: store, Rules: seeded, t: t}
}

// MustRule returns the seeded rule with name or fails the test.
func (db *TestDB) MustRule(name string) model.Rule {
	db.t.Helper()
	for _, rule := range db.Rules {
		if rule.Name == name {
			return rule
		}
	}
	db.t.Fatalf("rule %q not seeded", name)
	return model.Rule{}
}

// RuleBuilder assembles rules for tests.
type RuleBuilder struct {
	rules []model.Rule
}

// NewRuleBuilder creates an empty builder.
func NewRuleBuilder() *RuleBuilder {
	return &RuleBuilder{}
}

// WithRule adds an enabled rule that applies to every calendar.
func (b *RuleBuilder) WithRule(name, keyword string, leadMinutes int) *RuleBuilder {
	b.rules = append(b.rules, pattern.NewRule(name, keyword, leadMinutes, nil, false))
	return b
}

// WithFirstOfDayRule adds an enabled first-event-of-day rule.
func (b *RuleBuilder) WithFirstOfDayRule(name, keyword string, leadMinutes int) *RuleBuilder {
	b.rules = append(b.rules, pattern.NewRule(name, keyword, leadMinutes, nil, true))
	return b
}

// WithCalendars scopes the most recently added rule to calendarIDs.
func (b *RuleBuilder) WithCalendars(calendarIDs ...string) *RuleBuilder {
	if n := len(b.rules); n > 0 {
		b.rules[n-1].CalendarIDs = calendarIDs
	}
	return b
}

// Disabled disables the most recently added rule.
func (b *RuleBuilder) Disabled() *RuleBuilder {
	if n := len(b.rules); n > 0 {
		b.rules[n-1].Enabled = false
	}
	return b
}

// Build returns the assembled rules.
func (b *RuleBuilder) Build() []model.Rule {
	return append([]model.Rule(nil), b.rules...)
}
