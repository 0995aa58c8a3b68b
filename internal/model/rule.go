// Package model defines the core data structures for the ring application.
package model

import (
	"time"
)

// Lead time bounds, in minutes.
const (
	MinLeadTimeMinutes = 1
	MaxLeadTimeMinutes = 10080
)

// Rule is a user-defined keyword rule that arms an alarm ahead of matching calendar events.
type Rule struct {
	CreatedAt           time.Time `json:"created_at" yaml:"-"`
	Name                string    `json:"name" yaml:"name"`
	KeywordPattern      string    `json:"keyword_pattern" yaml:"pattern" validate:"required"`
	CalendarIDs         []string  `json:"calendar_ids,omitempty" yaml:"calendars,omitempty"`
	ID                  int64     `json:"id" yaml:"-"`
	LeadTimeMinutes     int       `json:"lead_time_minutes" yaml:"lead_time_minutes" validate:"min=1,max=10080"`
	IsRegex             bool      `json:"is_regex" yaml:"-"`
	Enabled             bool      `json:"enabled" yaml:"enabled"`
	FirstEventOfDayOnly bool      `json:"first_event_of_day_only" yaml:"first_event_of_day_only"`
}

// LeadTime returns the rule's lead time as a duration.
func (r Rule) LeadTime() time.Duration {
	return time.Duration(r.LeadTimeMinutes) * time.Minute
}

// AppliesToCalendar reports whether the rule is scoped to the given calendar.
// A rule without calendar IDs applies to every calendar.
func (r Rule) AppliesToCalendar(calendarID string) bool {
	if len(r.CalendarIDs) == 0 {
		return true
	}
	for _, id := range r.CalendarIDs {
		if id == calendarID {
			return true
		}
	}
	return false
}
