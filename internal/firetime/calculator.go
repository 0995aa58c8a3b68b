// Package firetime converts rule matches into concrete alarm fire times.
package firetime

import (
	"time"

	"github.com/Veraticus/the-alarm-must-ring/internal/model"
)

// Calculator computes alarm fire times for a device zone and all-day default time.
type Calculator struct {
	Location     *time.Location
	AllDayHour   int
	AllDayMinute int
}

// New creates a calculator. A nil location means UTC.
func New(loc *time.Location, allDayHour, allDayMinute int) Calculator {
	if loc == nil {
		loc = time.UTC
	}
	return Calculator{
		Location:     loc,
		AllDayHour:   allDayHour,
		AllDayMinute: allDayMinute,
	}
}

// FromSettings creates a calculator from refresh settings.
func FromSettings(s model.Settings) Calculator {
	return New(s.Location, s.AllDayHour, s.AllDayMinute)
}

// FireTime returns the UTC instant at which the alarm for event under rule should fire.
//
// Timed events fire LeadTimeMinutes before their start. All-day events ignore the
// lead time and fire at the all-day default time on the event's date in the
// calculator's zone. The local wall time is resolved with time.Date so DST
// transitions use the offset in effect at the target instant.
func (c Calculator) FireTime(event model.CalendarEvent, rule model.Rule) time.Time {
	if event.IsAllDay {
		return c.allDayFireTime(event)
	}
	return event.StartTime.Add(-rule.LeadTime()).UTC()
}

// FireTimeMillis is FireTime expressed in epoch milliseconds.
func (c Calculator) FireTimeMillis(event model.CalendarEvent, rule model.Rule) int64 {
	return model.EpochMillis(c.FireTime(event, rule))
}

func (c Calculator) allDayFireTime(event model.CalendarEvent) time.Time {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := event.StartTime.UTC().Date()
	return time.Date(y, m, d, c.AllDayHour, c.AllDayMinute, 0, 0, loc).UTC()
}

// ComputeFireTime is a convenience wrapper around Calculator.FireTime.
func ComputeFireTime(event model.CalendarEvent, rule model.Rule, allDayHour, allDayMinute int, loc *time.Location) time.Time {
	return New(loc, allDayHour, allDayMinute).FireTime(event, rule)
}
