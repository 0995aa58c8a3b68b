package pattern

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/Veraticus/the-alarm-must-ring/internal/firetime"
	"github.com/Veraticus/the-alarm-must-ring/internal/model"
)

// Matcher evaluates calendar events against keyword rules.
type Matcher struct {
	validator  *Validator
	calculator firetime.Calculator
	lookahead  time.Duration
}

// NewMatcher creates a matcher that computes candidate alarms with calc and only
// considers events starting within lookahead of now.
func NewMatcher(calc firetime.Calculator, lookahead time.Duration) *Matcher {
	return &Matcher{
		validator:  NewValidator(),
		calculator: calc,
		lookahead:  lookahead,
	}
}

// compiledRule is a validated rule plus its compiled regex, if any.
type compiledRule struct {
	re   *regexp.Regexp
	rule Rule
}

// Match returns every (event, rule) pair that should carry an alarm, sorted by
// alarm time, then event ID, then rule ID. Invalid and disabled rules are skipped.
func (m *Matcher) Match(events []model.CalendarEvent, rules []Rule, days DayState, now time.Time) []model.MatchResult {
	compiled := m.compileRules(rules)

	var matches []model.MatchResult
	for _, cr := range compiled {
		var ruleMatches []model.MatchResult
		for _, event := range events {
			if !m.inWindow(event, now) {
				continue
			}
			if !cr.rule.AppliesToCalendar(event.CalendarID) {
				continue
			}
			if !matchesTitle(cr, event.Title) {
				continue
			}
			ruleMatches = append(ruleMatches, m.newMatch(event, cr.rule))
		}

		if cr.rule.FirstEventOfDayOnly {
			ruleMatches = m.firstOfDay(cr.rule, ruleMatches, days)
		}
		matches = append(matches, ruleMatches...)
	}

	sortMatches(matches)

	return matches
}

// compileRules validates rules and pre-compiles regex patterns.
func (m *Matcher) compileRules(rules []Rule) []compiledRule {
	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		if !rule.Enabled {
			slog.Debug("Skipping disabled rule", "rule_id", rule.ID, "name", rule.Name)
			continue
		}
		if err := m.validator.ValidateRule(rule); err != nil {
			slog.Warn("Skipping invalid rule", "rule_id", rule.ID, "name", rule.Name, "error", err)
			continue
		}

		cr := compiledRule{rule: rule}
		if rule.IsRegex {
			// ValidateRule already proved the pattern compiles.
			cr.re, _ = CompilePattern(rule)
		}
		compiled = append(compiled, cr)
	}
	return compiled
}

// inWindow reports whether the event falls within [now, now+lookahead). All-day
// events stay eligible until their day has ended.
func (m *Matcher) inWindow(event model.CalendarEvent, now time.Time) bool {
	horizon := now.Add(m.lookahead)
	if !event.StartTime.Before(horizon) {
		return false
	}
	if event.IsAllDay {
		end := event.EndTime
		if end.IsZero() {
			end = event.StartTime.Add(24 * time.Hour)
		}
		return end.After(now)
	}
	return !event.StartTime.Before(now)
}

// matchesTitle checks the event title against the rule pattern, ignoring case.
func matchesTitle(cr compiledRule, title string) bool {
	if cr.rule.IsRegex {
		if cr.re == nil {
			return false
		}
		return cr.re.MatchString(title)
	}
	return strings.Contains(strings.ToLower(title), strings.ToLower(cr.rule.KeywordPattern))
}

func (m *Matcher) newMatch(event model.CalendarEvent, rule Rule) model.MatchResult {
	return model.MatchResult{
		Event: event,
		Rule:  rule,
		Alarm: model.ScheduledAlarm{
			EventID:           event.ID,
			RuleID:            rule.ID,
			EventTitle:        event.Title,
			EventStartTime:    event.StartTime.UTC(),
			AlarmTime:         m.calculator.FireTime(event, rule),
			LastEventModified: event.LastModified,
			EventAllDay:       event.IsAllDay,
		},
	}
}

// firstOfDay keeps only the earliest-starting match per local date, and nothing
// for dates the day tracker already marked consumed.
func (m *Matcher) firstOfDay(rule Rule, matches []model.MatchResult, days DayState) []model.MatchResult {
	earliest := make(map[model.LocalDate]model.MatchResult)
	for _, match := range matches {
		date := match.Event.LocalDate(m.calculator.Location)
		if days != nil && days.IsFirstEventConsumed(rule.ID, date) {
			slog.Debug("Suppressing event, first event of day already consumed",
				"rule_id", rule.ID, "event_id", match.Event.ID, "date", date)
			continue
		}
		current, ok := earliest[date]
		if !ok || startsBefore(match.Event, current.Event) {
			earliest[date] = match
		}
	}

	kept := make([]model.MatchResult, 0, len(earliest))
	for _, match := range earliest {
		kept = append(kept, match)
	}
	return kept
}

func startsBefore(a, b model.CalendarEvent) bool {
	if !a.StartTime.Equal(b.StartTime) {
		return a.StartTime.Before(b.StartTime)
	}
	return a.ID < b.ID
}

// sortMatches orders matches by alarm time, then event ID, then rule ID.
func sortMatches(matches []model.MatchResult) {
	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i].Alarm, matches[j].Alarm
		if !a.AlarmTime.Equal(b.AlarmTime) {
			return a.AlarmTime.Before(b.AlarmTime)
		}
		if a.EventID != b.EventID {
			return a.EventID < b.EventID
		}
		return a.RuleID < b.RuleID
	})
}
