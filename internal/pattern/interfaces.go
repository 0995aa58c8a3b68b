// Package pattern matches calendar events against keyword rules.
package pattern

import (
	"github.com/Veraticus/the-alarm-must-ring/internal/model"
)

// DayState reports whether a first-event-of-day rule has already been used up for a local date.
type DayState interface {
	IsFirstEventConsumed(ruleID int64, date model.LocalDate) bool
}

// Rule is an alias to the model.Rule type for convenience.
type Rule = model.Rule
