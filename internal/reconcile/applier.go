package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/the-alarm-must-ring/internal/common"
	"github.com/Veraticus/the-alarm-must-ring/internal/model"
)

// Action names the effect an item applied.
type Action string

// Apply actions.
const (
	ActionSchedule Action = "schedule"
	ActionUpdate   Action = "update"
	ActionCancel   Action = "cancel"
	ActionRefresh  Action = "refresh"
)

// ItemResult is the outcome of one plan item.
type ItemResult struct {
	Err     error
	AlarmID string
	EventID string
	Message string
	Action  Action
	RuleID  int64
	Success bool
}

// Failure converts a failed item into a refresh failure.
func (r ItemResult) Failure() model.Failure {
	return model.Failure{
		AlarmID: r.AlarmID,
		EventID: r.EventID,
		RuleID:  r.RuleID,
		Kind:    common.KindOf(r.Err),
		Message: r.Message,
	}
}

// Applier executes plans against the alarm store and platform scheduler.
// All passes sharing an Applier are serialized per alarm identity.
type Applier struct {
	store     AlarmStore
	scheduler Scheduler
	locks     *keyedMutex
	now       func() time.Time
}

// NewApplier creates an applier. Share one Applier per alarm store.
func NewApplier(store AlarmStore, scheduler Scheduler) *Applier {
	return &Applier{
		store:     store,
		scheduler: scheduler,
		locks:     newKeyedMutex(),
		now:       time.Now,
	}
}

// Lock takes the single-writer lock for an alarm identity. Callers outside
// Apply that mutate alarm rows must hold it.
func (a *Applier) Lock(alarmID string) func() {
	return a.locks.Lock(alarmID)
}

// Apply runs cancels, then updates, then schedules. Items are independent: a
// failure is recorded and the pass continues. Nothing is retried. Cancellation
// of ctx is ignored so a pass always runs to completion.
func (a *Applier) Apply(ctx context.Context, plan Plan) []ItemResult {
	ctx = context.WithoutCancel(ctx)

	results := make([]ItemResult, 0, len(plan.ToCancel)+len(plan.ToUpdate)+len(plan.ToSchedule)+len(plan.ToRefresh))
	for _, alarm := range plan.ToCancel {
		results = append(results, a.cancel(ctx, alarm))
	}
	for _, update := range plan.ToUpdate {
		results = append(results, a.arm(ctx, ActionUpdate, update.New))
	}
	for _, alarm := range plan.ToSchedule {
		results = append(results, a.arm(ctx, ActionSchedule, alarm))
	}
	for _, alarm := range plan.ToRefresh {
		results = append(results, a.refresh(ctx, alarm))
	}

	for _, result := range results {
		if !result.Success {
			slog.Warn("Alarm apply item failed",
				"action", result.Action,
				"alarm_id", result.AlarmID,
				"event_id", result.EventID,
				"rule_id", result.RuleID,
				"error", result.Err)
		}
	}

	return results
}

// cancel removes a platform alarm and its row.
func (a *Applier) cancel(ctx context.Context, planned model.ScheduledAlarm) ItemResult {
	result := newResult(ActionCancel, planned)
	unlock := a.locks.Lock(planned.ID)
	defer unlock()

	current, err := a.store.GetAlarm(ctx, planned.ID)
	if errors.Is(err, common.ErrNotFound) {
		return result.ok("already removed")
	}
	if err != nil {
		return result.fail(&common.PersistenceError{Operation: "get", Err: err})
	}
	if !current.AlarmTime.Equal(planned.AlarmTime) || current.RequestCode != planned.RequestCode {
		return result.ok("skipped, row changed since planning")
	}

	if _, err := a.scheduler.Cancel(ctx, current.ID, current.RequestCode); err != nil {
		return result.fail(&common.PlatformSchedulingError{Operation: "cancel", Err: err})
	}

	if err := a.store.DeleteAlarm(ctx, current.ID); err != nil && !errors.Is(err, common.ErrNotFound) {
		return result.fail(&common.PersistenceError{Operation: "delete", Err: err})
	}
	return result.ok("canceled")
}

// arm schedules want, replacing whatever the store currently holds for its identity.
func (a *Applier) arm(ctx context.Context, action Action, want model.ScheduledAlarm) ItemResult {
	result := newResult(action, want)
	unlock := a.locks.Lock(want.ID)
	defer unlock()

	current, err := a.store.GetAlarm(ctx, want.ID)
	switch {
	case errors.Is(err, common.ErrNotFound):
		current = nil
	case err != nil:
		return result.fail(&common.PersistenceError{Operation: "get", Err: err})
	}

	if current != nil && !current.UserDismissed &&
		current.AlarmTime.Equal(want.AlarmTime) && current.RequestCode == want.RequestCode {
		return result.ok("skipped, already scheduled")
	}

	if !a.scheduler.CanScheduleExact(ctx) {
		return result.fail(&common.PlatformSchedulingError{Operation: "schedule", Err: common.ErrExactAlarmDenied})
	}

	if current != nil {
		if _, err := a.scheduler.Cancel(ctx, current.ID, current.RequestCode); err != nil {
			return result.fail(&common.PlatformSchedulingError{Operation: "cancel", Err: err})
		}
	}

	if err := a.scheduler.ScheduleExact(ctx, want.ID, want.RequestCode, want.AlarmTime); err != nil {
		return result.fail(&common.PlatformSchedulingError{Operation: "schedule", Err: err})
	}

	row := want
	row.UserDismissed = false
	row.ScheduledAt = a.now().UTC()
	if err := a.store.UpsertAlarm(ctx, &row); err != nil {
		// Without a row the alarm would be invisible to later passes.
		if _, cancelErr := a.scheduler.Cancel(ctx, want.ID, want.RequestCode); cancelErr != nil {
			slog.Error("Failed to roll back platform alarm after persistence failure",
				"alarm_id", want.ID, "error", cancelErr)
		}
		return result.fail(&common.PersistenceError{Operation: "upsert", Err: err})
	}

	return result.ok(fmt.Sprintf("scheduled for %s", want.AlarmTime.UTC().Format(time.RFC3339)))
}

// refresh rewrites row metadata without touching the platform scheduler.
func (a *Applier) refresh(ctx context.Context, want model.ScheduledAlarm) ItemResult {
	result := newResult(ActionRefresh, want)
	unlock := a.locks.Lock(want.ID)
	defer unlock()

	current, err := a.store.GetAlarm(ctx, want.ID)
	if errors.Is(err, common.ErrNotFound) {
		return result.ok("skipped, row removed since planning")
	}
	if err != nil {
		return result.fail(&common.PersistenceError{Operation: "get", Err: err})
	}
	if !current.AlarmTime.Equal(want.AlarmTime) {
		return result.ok("skipped, row changed since planning")
	}

	row := *current
	row.EventTitle = want.EventTitle
	row.EventStartTime = want.EventStartTime
	row.LastEventModified = want.LastEventModified
	if err := a.store.UpsertAlarm(ctx, &row); err != nil {
		return result.fail(&common.PersistenceError{Operation: "upsert", Err: err})
	}
	return result.ok("refreshed")
}

func newResult(action Action, alarm model.ScheduledAlarm) ItemResult {
	return ItemResult{
		Action:  action,
		AlarmID: alarm.ID,
		EventID: alarm.EventID,
		RuleID:  alarm.RuleID,
	}
}

func (r ItemResult) ok(message string) ItemResult {
	r.Success = true
	r.Message = message
	return r
}

func (r ItemResult) fail(err error) ItemResult {
	r.Success = false
	r.Err = err
	r.Message = err.Error()
	return r
}
