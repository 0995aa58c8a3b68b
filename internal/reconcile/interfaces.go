// Package reconcile diffs desired alarms against persisted alarms and applies
// the resulting schedule, update, and cancel effects.
package reconcile

import (
	"context"
	"time"

	"github.com/Veraticus/the-alarm-must-ring/internal/model"
)

// AlarmStore persists scheduled alarm rows.
type AlarmStore interface {
	ListAlarms(ctx context.Context, filter model.AlarmFilter) ([]model.ScheduledAlarm, error)
	GetAlarm(ctx context.Context, id string) (*model.ScheduledAlarm, error)
	UpsertAlarm(ctx context.Context, alarm *model.ScheduledAlarm) error
	DeleteAlarm(ctx context.Context, id string) error
	SetDismissed(ctx context.Context, id string, dismissed bool, marker int64) error
	DeleteExpired(ctx context.Context, cutoff time.Time) (int, error)
}

// Scheduler is the platform exact-alarm primitive.
type Scheduler interface {
	ScheduleExact(ctx context.Context, id string, requestCode int32, fireAt time.Time) error
	// Cancel reports whether a pending alarm was actually removed.
	Cancel(ctx context.Context, id string, requestCode int32) (bool, error)
	IsScheduled(ctx context.Context, id string, requestCode int32) (bool, error)
	CanScheduleExact(ctx context.Context) bool
}
