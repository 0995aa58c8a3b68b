// Package conflict collapses several rule matches on one event according to the
// configured duplicate handling mode.
package conflict

import (
	"fmt"

	"github.com/Veraticus/the-alarm-must-ring/internal/model"
)

// preferFunc reports whether candidate a should win over b within one event group.
type preferFunc func(a, b model.MatchResult) bool

// Resolve groups matches by event ID and keeps the survivors the mode allows.
// The relative order of the input is preserved. Resolve panics on a mode that is
// not one of the declared variants; use model.ParseDuplicateMode at the edges.
func Resolve(matches []model.MatchResult, mode model.DuplicateMode) []model.MatchResult {
	var prefer preferFunc
	switch mode {
	case model.AllowMultiple:
		return append([]model.MatchResult(nil), matches...)
	case model.EarliestOnly:
		prefer = earliestAlarm
	case model.ShortestLeadTime:
		prefer = shortestLead
	case model.LongestLeadTime:
		prefer = longestLead
	default:
		panic(fmt.Sprintf("conflict: unhandled duplicate mode %q", mode))
	}
	return collapse(matches, prefer)
}

// collapse keeps one winner per event ID, at the winner's own position in matches.
func collapse(matches []model.MatchResult, prefer preferFunc) []model.MatchResult {
	winners := make(map[string]int, len(matches))

	for i, match := range matches {
		id := match.Event.ID
		current, seen := winners[id]
		if !seen || prefer(match, matches[current]) {
			winners[id] = i
		}
	}

	survivors := make([]model.MatchResult, 0, len(winners))
	for i, match := range matches {
		if winners[match.Event.ID] == i {
			survivors = append(survivors, match)
		}
	}
	return survivors
}

func earliestAlarm(a, b model.MatchResult) bool {
	if !a.Alarm.AlarmTime.Equal(b.Alarm.AlarmTime) {
		return a.Alarm.AlarmTime.Before(b.Alarm.AlarmTime)
	}
	return olderRule(a.Rule, b.Rule)
}

func shortestLead(a, b model.MatchResult) bool {
	if a.Rule.LeadTimeMinutes != b.Rule.LeadTimeMinutes {
		return a.Rule.LeadTimeMinutes < b.Rule.LeadTimeMinutes
	}
	return olderRule(a.Rule, b.Rule)
}

func longestLead(a, b model.MatchResult) bool {
	if a.Rule.LeadTimeMinutes != b.Rule.LeadTimeMinutes {
		return a.Rule.LeadTimeMinutes > b.Rule.LeadTimeMinutes
	}
	return olderRule(a.Rule, b.Rule)
}

// olderRule breaks ties by creation time, then by rule ID.
func olderRule(a, b model.Rule) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
