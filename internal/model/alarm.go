package model

import "time"

// ScheduledAlarm is a persisted alarm row owned by the reconciliation engine.
type ScheduledAlarm struct {
	EventStartTime    time.Time
	AlarmTime         time.Time
	ScheduledAt       time.Time
	ID                string
	EventID           string
	EventTitle        string
	RuleID            int64
	LastEventModified int64
	RequestCode       int32
	UserDismissed     bool
	AdHoc             bool // test or snooze alarm, not owned by a rule
	EventAllDay       bool
}

// EventDate returns the local date the alarm's event belongs to in loc.
// All-day events keep their own calendar date regardless of loc.
func (a ScheduledAlarm) EventDate(loc *time.Location) LocalDate {
	if a.EventAllDay {
		return DateOf(a.EventStartTime, time.UTC)
	}
	return DateOf(a.EventStartTime, loc)
}

// AlarmFilter narrows ListAlarms queries. Zero values match everything.
type AlarmFilter struct {
	EventID       string
	RuleID        int64
	OnlyDismissed bool
	ExcludeAdHoc  bool
}

// Matches reports whether the alarm satisfies the filter.
func (f AlarmFilter) Matches(a ScheduledAlarm) bool {
	if f.EventID != "" && a.EventID != f.EventID {
		return false
	}
	if f.RuleID != 0 && a.RuleID != f.RuleID {
		return false
	}
	if f.OnlyDismissed && !a.UserDismissed {
		return false
	}
	if f.ExcludeAdHoc && a.AdHoc {
		return false
	}
	return true
}

// MatchResult pairs an event with the rule that matched it and the candidate alarm.
type MatchResult struct {
	Event CalendarEvent
	Alarm ScheduledAlarm
	Rule  Rule
}

// EpochMillis converts t to milliseconds since the Unix epoch.
func EpochMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromEpochMillis converts milliseconds since the Unix epoch to a UTC time.
func FromEpochMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
