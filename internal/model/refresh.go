package model

import (
	"fmt"
	"strings"
)

// Trigger identifies what started a refresh cycle.
type Trigger string

// Refresh triggers.
const (
	TriggerPeriodic       Trigger = "PERIODIC"
	TriggerImmediate      Trigger = "IMMEDIATE"
	TriggerBoot           Trigger = "BOOT"
	TriggerTimezoneChange Trigger = "TIMEZONE_CHANGE"
)

// ParseTrigger parses a trigger name case-insensitively.
func ParseTrigger(s string) (Trigger, error) {
	t := Trigger(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case TriggerPeriodic, TriggerImmediate, TriggerBoot, TriggerTimezoneChange:
		return t, nil
	}
	return "", fmt.Errorf("unknown refresh trigger %q", s)
}

// FailureKind classifies a per-item failure.
type FailureKind string

// Failure kinds.
const (
	FailureValidation FailureKind = "validation"
	FailurePlatform   FailureKind = "platform"
	FailurePersist    FailureKind = "persistence"
	FailureCollision  FailureKind = "collision"
)

// Failure describes one item that could not be processed.
type Failure struct {
	AlarmID string
	EventID string
	Message string
	Kind    FailureKind
	RuleID  int64
}

func (f Failure) String() string {
	return fmt.Sprintf("%s: alarm=%s event=%s rule=%d: %s", f.Kind, f.AlarmID, f.EventID, f.RuleID, f.Message)
}

// RefreshResult summarizes one refresh cycle.
type RefreshResult struct {
	Trigger        Trigger
	Failures       []Failure
	ScheduledCount int
	UpdatedCount   int
	CanceledCount  int
	RefreshedCount int
	RearmedCount   int
	ExpiredCount   int
}

// OK reports whether the cycle finished without failures.
func (r RefreshResult) OK() bool {
	return len(r.Failures) == 0
}
