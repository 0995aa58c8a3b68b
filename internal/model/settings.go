package model

import (
	"fmt"
	"strings"
	"time"
)

// DuplicateMode selects how several rule matches on one event are collapsed.
type DuplicateMode string

// Duplicate handling modes.
const (
	AllowMultiple    DuplicateMode = "ALLOW_MULTIPLE"
	EarliestOnly     DuplicateMode = "EARLIEST_ONLY"
	ShortestLeadTime DuplicateMode = "SHORTEST_LEAD_TIME"
	LongestLeadTime  DuplicateMode = "LONGEST_LEAD_TIME"
)

// ParseDuplicateMode parses a mode name case-insensitively.
func ParseDuplicateMode(s string) (DuplicateMode, error) {
	mode := DuplicateMode(strings.ToUpper(strings.TrimSpace(s)))
	switch mode {
	case AllowMultiple, EarliestOnly, ShortestLeadTime, LongestLeadTime:
		return mode, nil
	}
	return "", fmt.Errorf("unknown duplicate handling mode %q", s)
}

// Settings is the user-facing configuration consumed by a refresh cycle.
type Settings struct {
	Location        *time.Location `validate:"required"`
	DuplicateMode   DuplicateMode  `validate:"required,oneof=ALLOW_MULTIPLE EARLIEST_ONLY SHORTEST_LEAD_TIME LONGEST_LEAD_TIME"`
	RefreshInterval time.Duration  `validate:"min=1m"`
	Lookahead       time.Duration  `validate:"min=1h"`
	AllDayHour      int            `validate:"min=0,max=23"`
	AllDayMinute    int            `validate:"min=0,max=59"`
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Location:        time.Local,
		DuplicateMode:   EarliestOnly,
		RefreshInterval: 15 * time.Minute,
		Lookahead:       7 * 24 * time.Hour,
		AllDayHour:      9,
		AllDayMinute:    0,
	}
}
