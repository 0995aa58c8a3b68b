// Package engine runs refresh cycles: it turns calendar events and keyword rules
// into the set of platform alarms that should exist, and applies the difference.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/the-alarm-must-ring/internal/common"
	"github.com/Veraticus/the-alarm-must-ring/internal/identity"
	"github.com/Veraticus/the-alarm-must-ring/internal/model"
	"github.com/Veraticus/the-alarm-must-ring/internal/reconcile"
)

// ErrMissingDependency is returned by New when a collaborator is nil.
var ErrMissingDependency = errors.New("missing engine dependency")

// Deps are the collaborators an Engine needs. Metrics is optional.
type Deps struct {
	Rules     RuleStore
	Calendar  CalendarSource
	Alarms    reconcile.AlarmStore
	Scheduler reconcile.Scheduler
	Tracker   DayTracker
	Settings  SettingsProvider
	Metrics   *Metrics
}

// Engine owns the alarm table. All mutations of alarm rows go through it.
type Engine struct {
	rules     RuleStore
	calendar  CalendarSource
	alarms    reconcile.AlarmStore
	scheduler reconcile.Scheduler
	tracker   DayTracker
	settings  SettingsProvider
	metrics   *Metrics
	applier   *reconcile.Applier
	now       func() time.Time
}

// New validates deps and creates an engine.
func New(deps Deps) (*Engine, error) {
	var missing []string
	if deps.Rules == nil {
		missing = append(missing, "rules")
	}
	if deps.Calendar == nil {
		missing = append(missing, "calendar")
	}
	if deps.Alarms == nil {
		missing = append(missing, "alarms")
	}
	if deps.Scheduler == nil {
		missing = append(missing, "scheduler")
	}
	if deps.Tracker == nil {
		missing = append(missing, "tracker")
	}
	if deps.Settings == nil {
		missing = append(missing, "settings")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingDependency, strings.Join(missing, ", "))
	}

	return &Engine{
		rules:     deps.Rules,
		calendar:  deps.Calendar,
		alarms:    deps.Alarms,
		scheduler: deps.Scheduler,
		tracker:   deps.Tracker,
		settings:  deps.Settings,
		metrics:   deps.Metrics,
		applier:   reconcile.NewApplier(deps.Alarms, deps.Scheduler),
		now:       time.Now,
	}, nil
}

// Metrics returns the engine's collectors, which may be nil.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// Dismiss marks an alarm as dismissed by the user. The dismissal holds until
// the underlying event is modified. The platform alarm is left alone.
func (e *Engine) Dismiss(ctx context.Context, alarmID string) error {
	unlock := e.applier.Lock(alarmID)
	defer unlock()

	alarm, err := e.alarms.GetAlarm(ctx, alarmID)
	if err != nil {
		return fmt.Errorf("failed to get alarm %s: %w", alarmID, err)
	}
	if alarm.UserDismissed {
		return nil
	}

	if err := e.alarms.SetDismissed(ctx, alarmID, true, alarm.LastEventModified); err != nil {
		return &common.PersistenceError{Operation: "dismiss", Err: err}
	}

	slog.Info("Alarm dismissed",
		"alarm_id", alarmID,
		"event_id", alarm.EventID,
		"marker", alarm.LastEventModified)
	return nil
}

// AlarmFired records that a platform alarm went off. Ad-hoc rows are removed.
// For first-event-of-day rules the event's local date is marked consumed.
func (e *Engine) AlarmFired(ctx context.Context, alarmID string) (*model.ScheduledAlarm, error) {
	unlock := e.applier.Lock(alarmID)
	defer unlock()

	alarm, err := e.alarms.GetAlarm(ctx, alarmID)
	if err != nil {
		return nil, fmt.Errorf("failed to get alarm %s: %w", alarmID, err)
	}

	if alarm.AdHoc {
		if err := e.alarms.DeleteAlarm(ctx, alarmID); err != nil && !errors.Is(err, common.ErrNotFound) {
			return alarm, &common.PersistenceError{Operation: "delete", Err: err}
		}
		slog.Info("Ad-hoc alarm fired", "alarm_id", alarmID, "title", alarm.EventTitle)
		return alarm, nil
	}

	rules, err := e.rules.ListEnabledRules(ctx)
	if err != nil {
		return alarm, fmt.Errorf("failed to load rules: %w", err)
	}
	for _, rule := range rules {
		if rule.ID != alarm.RuleID || !rule.FirstEventOfDayOnly {
			continue
		}
		date := alarm.EventDate(e.tracker.Location())
		if err := e.tracker.MarkConsumed(ctx, rule.ID, date); err != nil {
			return alarm, fmt.Errorf("failed to mark %s consumed for rule %d: %w", date, rule.ID, err)
		}
		slog.Info("First event of day consumed", "rule_id", rule.ID, "date", date)
	}

	slog.Info("Alarm fired",
		"alarm_id", alarmID,
		"event_id", alarm.EventID,
		"rule_id", alarm.RuleID,
		"title", alarm.EventTitle)
	return alarm, nil
}

// ScheduleAdHoc arms a one-off alarm that no rule owns, such as a test or snooze.
func (e *Engine) ScheduleAdHoc(ctx context.Context, title string, fireAt time.Time) (*model.ScheduledAlarm, error) {
	now := e.now()
	if !fireAt.After(now) {
		return nil, reconcile.ValidatePastDue(model.ScheduledAlarm{AlarmTime: fireAt}, now)
	}

	persisted, err := e.alarms.ListAlarms(ctx, model.AlarmFilter{})
	if err != nil {
		return nil, &common.PersistenceError{Operation: "list", Err: err}
	}
	assignment := identity.NewRegistry(persisted).AssignAdHoc()

	alarm := model.ScheduledAlarm{
		ID:             assignment.Key,
		EventTitle:     title,
		EventStartTime: fireAt.UTC(),
		AlarmTime:      fireAt.UTC(),
		RequestCode:    assignment.RequestCode,
		AdHoc:          true,
		ScheduledAt:    now.UTC(),
	}

	unlock := e.applier.Lock(alarm.ID)
	defer unlock()

	if !e.scheduler.CanScheduleExact(ctx) {
		return nil, &common.PlatformSchedulingError{Operation: "schedule", Err: common.ErrExactAlarmDenied}
	}
	if err := e.scheduler.ScheduleExact(ctx, alarm.ID, alarm.RequestCode, alarm.AlarmTime); err != nil {
		return nil, &common.PlatformSchedulingError{Operation: "schedule", Err: err}
	}
	if err := e.alarms.UpsertAlarm(ctx, &alarm); err != nil {
		if _, cancelErr := e.scheduler.Cancel(ctx, alarm.ID, alarm.RequestCode); cancelErr != nil {
			slog.Error("Failed to roll back ad-hoc alarm", "alarm_id", alarm.ID, "error", cancelErr)
		}
		return nil, &common.PersistenceError{Operation: "upsert", Err: err}
	}

	slog.Info("Ad-hoc alarm scheduled",
		"alarm_id", alarm.ID,
		"title", title,
		"fire_at", alarm.AlarmTime.Format(time.RFC3339))
	return &alarm, nil
}

// RolloverDay drops consumption dated before today and refreshes. It runs at
// local midnight; entries already recorded for the new day are kept.
func (e *Engine) RolloverDay(ctx context.Context) (model.RefreshResult, error) {
	if _, err := e.tracker.Reset(ctx, e.now()); err != nil {
		return model.RefreshResult{Trigger: model.TriggerImmediate}, fmt.Errorf("failed to roll over day tracker: %w", err)
	}
	return e.RunRefreshCycle(ctx, model.TriggerImmediate)
}

// ResetDay forgets all first-event-of-day consumption up to and including
// today, then refreshes, so later events today can arm again.
func (e *Engine) ResetDay(ctx context.Context) (model.RefreshResult, error) {
	now := e.now()
	stale, err := e.tracker.Reset(ctx, now)
	if err != nil {
		return model.RefreshResult{Trigger: model.TriggerImmediate}, fmt.Errorf("failed to reset day tracker: %w", err)
	}
	today, err := e.tracker.ClearToday(ctx, now)
	if err != nil {
		return model.RefreshResult{Trigger: model.TriggerImmediate}, fmt.Errorf("failed to reset day tracker: %w", err)
	}
	slog.Info("Day tracker reset", "removed", stale+today)
	return e.RunRefreshCycle(ctx, model.TriggerImmediate)
}
