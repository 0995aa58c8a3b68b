package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/the-alarm-must-ring/internal/common"
	"github.com/Veraticus/the-alarm-must-ring/internal/conflict"
	"github.com/Veraticus/the-alarm-must-ring/internal/firetime"
	"github.com/Veraticus/the-alarm-must-ring/internal/identity"
	"github.com/Veraticus/the-alarm-must-ring/internal/model"
	"github.com/Veraticus/the-alarm-must-ring/internal/pattern"
	"github.com/Veraticus/the-alarm-must-ring/internal/reconcile"
)

// retention is how long a fired row may linger before the sweep deletes it.
// It exceeds the longest lead time so a row is never swept while its event is
// still ahead.
const retention = model.MaxLeadTimeMinutes*time.Minute + 24*time.Hour

// RunRefreshCycle recomputes desired alarms and applies the difference.
//
// A failing collaborator ends the cycle early with a recorded failure and a nil
// error; the next cycle starts from persisted state. An error is returned only
// for an unknown trigger or a settings value outside the declared variants.
func (e *Engine) RunRefreshCycle(ctx context.Context, trigger model.Trigger) (model.RefreshResult, error) {
	start := time.Now()
	result := model.RefreshResult{Trigger: trigger}

	if _, err := model.ParseTrigger(string(trigger)); err != nil {
		return result, err
	}

	active, err := e.refresh(ctx, &result)
	if err != nil {
		return result, err
	}

	duration := time.Since(start)
	e.metrics.ObserveCycle(result, active, duration)

	level := slog.LevelInfo
	if !result.OK() {
		level = slog.LevelWarn
	}
	slog.Log(ctx, level, "Refresh cycle complete",
		"trigger", trigger,
		"scheduled", result.ScheduledCount,
		"updated", result.UpdatedCount,
		"canceled", result.CanceledCount,
		"refreshed", result.RefreshedCount,
		"rearmed", result.RearmedCount,
		"expired", result.ExpiredCount,
		"failures", len(result.Failures),
		"active", active,
		"duration", duration)

	return result, nil
}

// refresh runs the pipeline and returns how many alarms are active afterwards.
func (e *Engine) refresh(ctx context.Context, result *model.RefreshResult) (int, error) {
	settings, err := e.settings.Settings()
	if err != nil {
		result.Failures = append(result.Failures, stageFailure("load settings", err))
		return 0, nil
	}
	mode, err := model.ParseDuplicateMode(string(settings.DuplicateMode))
	if err != nil {
		return 0, fmt.Errorf("invalid settings: %w", err)
	}
	settings.DuplicateMode = mode
	if settings.Location == nil {
		settings.Location = time.UTC
	}

	now := e.now()

	if result.Trigger == model.TriggerTimezoneChange || e.tracker.Location().String() != settings.Location.String() {
		if err := e.tracker.HandleTimezoneChange(ctx, settings.Location, now); err != nil {
			result.Failures = append(result.Failures, stageFailure("apply timezone change", err))
			return 0, nil
		}
	}

	rules, err := e.rules.ListEnabledRules(ctx)
	if err != nil {
		result.Failures = append(result.Failures, stageFailure("load rules", err))
		return 0, nil
	}
	events, err := e.calendar.ListUpcomingEvents(ctx, settings.Lookahead)
	if err != nil {
		result.Failures = append(result.Failures, stageFailure("load events", err))
		return 0, nil
	}
	persisted, err := e.alarms.ListAlarms(ctx, model.AlarmFilter{})
	if err != nil {
		result.Failures = append(result.Failures, stageFailure("load alarms", err))
		return 0, nil
	}

	persisted = e.sweep(ctx, result, rules, persisted, now)

	snapshot, err := e.tracker.Snapshot(ctx)
	if err != nil {
		result.Failures = append(result.Failures, stageFailure("load day tracker", err))
		return 0, nil
	}

	matcher := pattern.NewMatcher(firetime.FromSettings(settings), settings.Lookahead)
	matches := conflict.Resolve(matcher.Match(events, rules, snapshot, now), settings.DuplicateMode)

	desired, persisted := e.assignIdentities(ctx, result, matches, persisted)

	plan := reconcile.Reconcile(desired, persisted, now, reconcile.ValidatePastDue)
	for _, rejection := range plan.Rejected {
		slog.Warn("Candidate alarm rejected",
			"event_id", rejection.Alarm.EventID,
			"rule_id", rejection.Alarm.RuleID,
			"error", rejection.Err)
		result.Failures = append(result.Failures, model.Failure{
			AlarmID: rejection.Alarm.ID,
			EventID: rejection.Alarm.EventID,
			RuleID:  rejection.Alarm.RuleID,
			Kind:    common.KindOf(rejection.Err),
			Message: rejection.Err.Error(),
		})
	}

	for _, item := range e.applier.Apply(ctx, plan) {
		if !item.Success {
			result.Failures = append(result.Failures, item.Failure())
			continue
		}
		switch item.Action {
		case reconcile.ActionSchedule:
			result.ScheduledCount++
		case reconcile.ActionUpdate:
			result.UpdatedCount++
		case reconcile.ActionCancel:
			result.CanceledCount++
		case reconcile.ActionRefresh:
			result.RefreshedCount++
		}
	}

	verify := append([]model.ScheduledAlarm(nil), plan.Unchanged...)
	for _, row := range persisted {
		if row.AdHoc {
			verify = append(verify, row)
		}
	}
	e.rearm(ctx, result, verify, now)

	active := len(plan.Unchanged) + len(plan.ToSchedule) + len(plan.ToUpdate) + len(plan.ToRefresh)
	return active, nil
}

// sweep records consumption for fired first-of-day alarms, drops fired ad-hoc
// rows, and deletes rows past retention. It returns the rows still present.
func (e *Engine) sweep(ctx context.Context, result *model.RefreshResult, rules []model.Rule, persisted []model.ScheduledAlarm, now time.Time) []model.ScheduledAlarm {
	firstOfDay := make(map[int64]bool, len(rules))
	for _, rule := range rules {
		if rule.FirstEventOfDayOnly {
			firstOfDay[rule.ID] = true
		}
	}

	cutoff := now.Add(-retention)
	kept := make([]model.ScheduledAlarm, 0, len(persisted))
	for _, row := range persisted {
		if row.AlarmTime.After(now) {
			kept = append(kept, row)
			continue
		}

		if row.AdHoc {
			if err := e.deleteRow(ctx, row); err != nil {
				result.Failures = append(result.Failures, rowFailure(row, err))
				kept = append(kept, row)
				continue
			}
			result.ExpiredCount++
			continue
		}

		if firstOfDay[row.RuleID] {
			date := row.EventDate(e.tracker.Location())
			if err := e.tracker.MarkConsumed(ctx, row.RuleID, date); err != nil {
				result.Failures = append(result.Failures, rowFailure(row, err))
			}
		}
		if row.AlarmTime.Before(cutoff) {
			continue
		}
		kept = append(kept, row)
	}

	expired, err := e.alarms.DeleteExpired(ctx, cutoff)
	if err != nil {
		result.Failures = append(result.Failures, stageFailure("delete expired alarms", err))
	}
	result.ExpiredCount += expired

	return kept
}

// assignIdentities gives every candidate its key and request code. Persisted
// rows orphaned by an unresolvable collision are canceled and removed.
func (e *Engine) assignIdentities(ctx context.Context, result *model.RefreshResult, matches []model.MatchResult, persisted []model.ScheduledAlarm) ([]model.ScheduledAlarm, []model.ScheduledAlarm) {
	registry := identity.NewRegistry(persisted)
	orphaned := make(map[string]bool)

	desired := make([]model.ScheduledAlarm, 0, len(matches))
	for _, match := range matches {
		alarm := match.Alarm
		assignment := registry.Assign(alarm.EventID, alarm.RuleID)
		alarm.ID = assignment.Key
		alarm.RequestCode = assignment.RequestCode
		if assignment.Collision != nil {
			orphaned[assignment.Orphaned] = true
			result.Failures = append(result.Failures, model.Failure{
				AlarmID: assignment.Orphaned,
				EventID: alarm.EventID,
				RuleID:  alarm.RuleID,
				Kind:    model.FailureCollision,
				Message: assignment.Collision.Error(),
			})
		}
		desired = append(desired, alarm)
	}

	if len(orphaned) == 0 {
		return desired, persisted
	}

	// A candidate assigned before its code was taken needs a fresh one.
	for i := range desired {
		if orphaned[desired[i].ID] {
			desired[i].RequestCode = registry.Assign(desired[i].EventID, desired[i].RuleID).RequestCode
		}
	}

	kept := make([]model.ScheduledAlarm, 0, len(persisted))
	for _, row := range persisted {
		if !orphaned[row.ID] {
			kept = append(kept, row)
			continue
		}
		if err := e.cancelRow(ctx, row); err != nil {
			result.Failures = append(result.Failures, rowFailure(row, err))
			kept = append(kept, row)
		}
	}
	return desired, kept
}

// rearm re-issues platform alarms that should be pending but are not, as after
// a reboot. Dismissed and elapsed rows are skipped.
func (e *Engine) rearm(ctx context.Context, result *model.RefreshResult, rows []model.ScheduledAlarm, now time.Time) {
	for _, row := range rows {
		if row.UserDismissed || !row.AlarmTime.After(now) {
			continue
		}
		rearmed, err := e.rearmRow(ctx, row)
		if err != nil {
			result.Failures = append(result.Failures, rowFailure(row, err))
			continue
		}
		if rearmed {
			result.RearmedCount++
		}
	}
}

func (e *Engine) rearmRow(ctx context.Context, row model.ScheduledAlarm) (bool, error) {
	unlock := e.applier.Lock(row.ID)
	defer unlock()

	pending, err := e.scheduler.IsScheduled(ctx, row.ID, row.RequestCode)
	if err != nil {
		return false, &common.PlatformSchedulingError{Operation: "query", Err: err}
	}
	if pending {
		return false, nil
	}
	if !e.scheduler.CanScheduleExact(ctx) {
		return false, &common.PlatformSchedulingError{Operation: "schedule", Err: common.ErrExactAlarmDenied}
	}
	if err := e.scheduler.ScheduleExact(ctx, row.ID, row.RequestCode, row.AlarmTime); err != nil {
		return false, &common.PlatformSchedulingError{Operation: "schedule", Err: err}
	}
	slog.Info("Re-armed missing platform alarm", "alarm_id", row.ID, "request_code", row.RequestCode)
	return true, nil
}

func (e *Engine) cancelRow(ctx context.Context, row model.ScheduledAlarm) error {
	unlock := e.applier.Lock(row.ID)
	defer unlock()

	if _, err := e.scheduler.Cancel(ctx, row.ID, row.RequestCode); err != nil {
		return &common.PlatformSchedulingError{Operation: "cancel", Err: err}
	}
	if err := e.alarms.DeleteAlarm(ctx, row.ID); err != nil && !errors.Is(err, common.ErrNotFound) {
		return &common.PersistenceError{Operation: "delete", Err: err}
	}
	return nil
}

func (e *Engine) deleteRow(ctx context.Context, row model.ScheduledAlarm) error {
	unlock := e.applier.Lock(row.ID)
	defer unlock()

	if err := e.alarms.DeleteAlarm(ctx, row.ID); err != nil && !errors.Is(err, common.ErrNotFound) {
		return &common.PersistenceError{Operation: "delete", Err: err}
	}
	return nil
}

func stageFailure(stage string, err error) model.Failure {
	common.LogError(err, "Refresh stage failed", common.Fields{"stage": stage})
	return model.Failure{
		Kind:    common.KindOf(err),
		Message: fmt.Sprintf("%s: %v", stage, err),
	}
}

func rowFailure(row model.ScheduledAlarm, err error) model.Failure {
	return model.Failure{
		AlarmID: row.ID,
		EventID: row.EventID,
		RuleID:  row.RuleID,
		Kind:    common.KindOf(err),
		Message: err.Error(),
	}
}
