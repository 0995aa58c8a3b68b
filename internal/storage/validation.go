package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/the-alarm-must-ring/internal/model"
	"github.com/Veraticus/the-alarm-must-ring/internal/pattern"
)

// Validation errors.
var (
	ErrNilContext   = errors.New("context cannot be nil")
	ErrEmptyString  = errors.New("string parameter cannot be empty")
	ErrNilParameter = errors.New("parameter cannot be nil")
	ErrInvalidAlarm = errors.New("invalid alarm")
	ErrInvalidDate  = errors.New("invalid local date")
)

var ruleValidator = pattern.NewValidator()

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateRule checks a rule before it is written.
func validateRule(rule *model.Rule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	return ruleValidator.ValidateRule(*rule)
}

// validateAlarm checks an alarm row before it is written.
func validateAlarm(alarm *model.ScheduledAlarm) error {
	if alarm == nil {
		return fmt.Errorf("%w: alarm", ErrNilParameter)
	}
	if alarm.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidAlarm)
	}
	if alarm.AlarmTime.IsZero() {
		return fmt.Errorf("%w: missing alarm time", ErrInvalidAlarm)
	}
	if !alarm.AdHoc && alarm.EventID == "" {
		return fmt.Errorf("%w: missing event ID", ErrInvalidAlarm)
	}
	if alarm.RequestCode < 0 {
		return fmt.Errorf("%w: negative request code %d", ErrInvalidAlarm, alarm.RequestCode)
	}
	return nil
}

// validateDate ensures a local date parses.
func validateDate(date model.LocalDate) error {
	if _, err := date.Time(nil); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return nil
}
