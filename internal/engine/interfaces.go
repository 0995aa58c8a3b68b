package engine

import (
	"context"
	"time"

	"github.com/Veraticus/the-alarm-must-ring/internal/daytracker"
	"github.com/Veraticus/the-alarm-must-ring/internal/model"
)

// RuleStore supplies the rules a refresh evaluates.
type RuleStore interface {
	ListEnabledRules(ctx context.Context) ([]model.Rule, error)
}

// CalendarSource supplies upcoming calendar events.
type CalendarSource interface {
	ListUpcomingEvents(ctx context.Context, lookahead time.Duration) ([]model.CalendarEvent, error)
}

// SettingsProvider supplies the settings for one refresh.
type SettingsProvider interface {
	Settings() (model.Settings, error)
}

// DayTracker is the first-event-of-day state the engine consults and updates.
type DayTracker interface {
	Location() *time.Location
	Snapshot(ctx context.Context) (daytracker.Snapshot, error)
	MarkConsumed(ctx context.Context, ruleID int64, date model.LocalDate) error
	Reset(ctx context.Context, now time.Time) (int, error)
	ClearToday(ctx context.Context, now time.Time) (int, error)
	HandleTimezoneChange(ctx context.Context, loc *time.Location, now time.Time) error
}
