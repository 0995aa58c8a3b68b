package reconcile

import (
	"fmt"
	"sort"
	"time"

	"github.com/Veraticus/the-alarm-must-ring/internal/common"
	"github.com/Veraticus/the-alarm-must-ring/internal/model"
)

// Update replaces a persisted alarm with a new desired one.
type Update struct {
	Old model.ScheduledAlarm
	New model.ScheduledAlarm
}

// Rejection is a desired alarm dropped before scheduling.
type Rejection struct {
	Err   error
	Alarm model.ScheduledAlarm
}

// Plan is the diff between desired and persisted alarms.
type Plan struct {
	ToSchedule []model.ScheduledAlarm
	ToUpdate   []Update
	ToCancel   []model.ScheduledAlarm
	// ToRefresh holds rows whose metadata drifted while the fire time did not.
	// They are rewritten without touching the platform scheduler.
	ToRefresh []model.ScheduledAlarm
	Unchanged []model.ScheduledAlarm
	Rejected  []Rejection
}

// HasEffects reports whether applying the plan would change anything.
func (p Plan) HasEffects() bool {
	return len(p.ToSchedule)+len(p.ToUpdate)+len(p.ToCancel)+len(p.ToRefresh) > 0
}

// ValidateFunc vets a desired alarm before it is scheduled.
type ValidateFunc func(alarm model.ScheduledAlarm, now time.Time) error

// ValidatePastDue rejects alarms whose fire time is not strictly after now.
func ValidatePastDue(alarm model.ScheduledAlarm, now time.Time) error {
	if alarm.AlarmTime.After(now) {
		return nil
	}
	return &common.ValidationError{
		Reason: fmt.Sprintf("alarm time %s is not after %s",
			alarm.AlarmTime.UTC().Format(time.RFC3339), now.UTC().Format(time.RFC3339)),
		Err: common.ErrPastDue,
	}
}

// Reconcile computes the effects needed to move persisted state to desired
// state. Desired alarms must already carry their identity and request code.
// Ad-hoc persisted rows are never touched. A nil validate means ValidatePastDue.
func Reconcile(desired, persisted []model.ScheduledAlarm, now time.Time, validate ValidateFunc) Plan {
	if validate == nil {
		validate = ValidatePastDue
	}

	existing := make(map[string]model.ScheduledAlarm, len(persisted))
	for _, alarm := range persisted {
		if alarm.AdHoc {
			continue
		}
		existing[alarm.ID] = alarm
	}

	var plan Plan
	wanted := make(map[string]bool, len(desired))
	for _, want := range desired {
		if wanted[want.ID] {
			continue
		}
		wanted[want.ID] = true

		prior, exists := existing[want.ID]
		if !exists {
			if err := validate(want, now); err != nil {
				plan.Rejected = append(plan.Rejected, Rejection{Alarm: want, Err: err})
				continue
			}
			plan.ToSchedule = append(plan.ToSchedule, armed(want))
			continue
		}

		if prior.UserDismissed && want.LastEventModified <= prior.LastEventModified {
			plan.Unchanged = append(plan.Unchanged, prior)
			continue
		}

		if !prior.UserDismissed && prior.AlarmTime.Equal(want.AlarmTime) && prior.RequestCode == want.RequestCode {
			if metadataDrifted(prior, want) {
				plan.ToRefresh = append(plan.ToRefresh, refreshed(prior, want))
			} else {
				plan.Unchanged = append(plan.Unchanged, prior)
			}
			continue
		}

		// The fire time or request code moved, or a dismissed alarm is being re-armed.
		if err := validate(want, now); err != nil {
			plan.Rejected = append(plan.Rejected, Rejection{Alarm: want, Err: err})
			if !prior.UserDismissed {
				plan.ToCancel = append(plan.ToCancel, prior)
			}
			continue
		}
		plan.ToUpdate = append(plan.ToUpdate, Update{Old: prior, New: armed(want)})
	}

	for _, alarm := range persisted {
		if alarm.AdHoc || wanted[alarm.ID] {
			continue
		}
		plan.ToCancel = append(plan.ToCancel, alarm)
	}
	sort.SliceStable(plan.ToCancel, func(i, j int) bool {
		return plan.ToCancel[i].ID < plan.ToCancel[j].ID
	})

	return plan
}

func armed(alarm model.ScheduledAlarm) model.ScheduledAlarm {
	alarm.UserDismissed = false
	return alarm
}

func metadataDrifted(prior, want model.ScheduledAlarm) bool {
	return prior.EventTitle != want.EventTitle ||
		!prior.EventStartTime.Equal(want.EventStartTime) ||
		prior.LastEventModified != want.LastEventModified
}

// refreshed carries the new metadata onto the persisted row.
func refreshed(prior, want model.ScheduledAlarm) model.ScheduledAlarm {
	row := prior
	row.EventTitle = want.EventTitle
	row.EventStartTime = want.EventStartTime
	row.LastEventModified = want.LastEventModified
	return row
}
