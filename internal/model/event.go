package model

import "time"

// CalendarEvent is a read-only snapshot of a calendar event for one refresh.
type CalendarEvent struct {
	StartTime    time.Time // UTC instant
	EndTime      time.Time // UTC instant
	ID           string
	Title        string
	CalendarID   string
	Timezone     string // IANA zone of the event, empty when floating
	LastModified int64  // monotonically increasing change marker
	IsAllDay     bool
}

// LocalDate is a calendar date in the form 2006-01-02.
type LocalDate string

// LocalDateLayout is the layout used for LocalDate values.
const LocalDateLayout = "2006-01-02"

// DateOf returns the local date of t in loc.
func DateOf(t time.Time, loc *time.Location) LocalDate {
	if loc == nil {
		loc = time.UTC
	}
	return LocalDate(t.In(loc).Format(LocalDateLayout))
}

// Time returns midnight of the date in loc.
func (d LocalDate) Time(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(LocalDateLayout, string(d), loc)
}

// LocalDate returns the date the event belongs to in loc. All-day events keep
// their own calendar date.
func (e CalendarEvent) LocalDate(loc *time.Location) LocalDate {
	if e.IsAllDay {
		return e.AllDayDate()
	}
	return DateOf(e.StartTime, loc)
}

// AllDayDate returns the calendar date of an all-day event. All-day events are
// anchored at UTC midnight, so the date is read in UTC.
func (e CalendarEvent) AllDayDate() LocalDate {
	return DateOf(e.StartTime, time.UTC)
}

// ConsumedDay records that a first-event-of-day rule already fired for a local date.
type ConsumedDay struct {
	ConsumedAt time.Time
	Date       LocalDate
	RuleID     int64
}
