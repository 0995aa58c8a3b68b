package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/the-alarm-must-ring/internal/model"
	"github.com/charmbracelet/lipgloss"
)

const timeLayout = "Mon Jan 02 15:04"

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(gray)
	cellStyle = lipgloss.NewStyle().PaddingRight(2)
)

// RenderTable lays out rows under a styled header, padding every column to
// its widest cell.
func RenderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if w := lipgloss.Width(row[i]); w > widths[i] {
				widths[i] = w
			}
		}
	}

	cells := make([]string, len(headers))
	for i, h := range headers {
		cells[i] = cellStyle.Width(widths[i] + 2).Render(h)
	}
	lines := []string{headerStyle.Render(lipgloss.JoinHorizontal(lipgloss.Top, cells...))}

	for _, row := range rows {
		cells = cells[:0]
		for i := range headers {
			value := ""
			if i < len(row) {
				value = row[i]
			}
			cells = append(cells, cellStyle.Width(widths[i]+2).Render(value))
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return strings.Join(lines, "\n")
}

// RenderAlarms renders alarms in loc, soonest first as given.
func RenderAlarms(alarms []model.ScheduledAlarm, loc *time.Location) string {
	if len(alarms) == 0 {
		return subtleStyle.Render("No alarms scheduled.")
	}

	rows := make([][]string, 0, len(alarms))
	for _, a := range alarms {
		state := BellIcon
		if a.UserDismissed {
			state = MutedIcon
		}
		rule := strconv.FormatInt(a.RuleID, 10)
		if a.AdHoc {
			rule = "ad-hoc"
		}
		start := a.EventStartTime.In(loc).Format(timeLayout)
		if a.EventAllDay {
			start = a.EventStartTime.UTC().Format("Mon Jan 02") + " (all day)"
		}
		rows = append(rows, []string{
			state,
			a.AlarmTime.In(loc).Format(timeLayout),
			truncate(a.EventTitle, 40),
			start,
			rule,
			a.ID,
		})
	}
	return RenderTable([]string{"", "Alarm", "Event", "Starts", "Rule", "ID"}, rows)
}

// RenderRules renders keyword rules.
func RenderRules(rules []model.Rule) string {
	if len(rules) == 0 {
		return subtleStyle.Render("No rules defined.")
	}

	rows := make([][]string, 0, len(rules))
	for _, r := range rules {
		enabled := successStyle.Render(SuccessIcon)
		if !r.Enabled {
			enabled = subtleStyle.Render("-")
		}
		kind := "keyword"
		if r.IsRegex {
			kind = "regex"
		}
		scope := "all"
		if len(r.CalendarIDs) > 0 {
			scope = strings.Join(r.CalendarIDs, ",")
		}
		first := ""
		if r.FirstEventOfDayOnly {
			first = "first of day"
		}
		rows = append(rows, []string{
			strconv.FormatInt(r.ID, 10),
			enabled,
			r.Name,
			fmt.Sprintf("%s (%s)", r.KeywordPattern, kind),
			fmt.Sprintf("%dm", r.LeadTimeMinutes),
			scope,
			first,
		})
	}
	return RenderTable([]string{"ID", "On", "Name", "Pattern", "Lead", "Calendars", ""}, rows)
}

// RenderResult summarizes a refresh cycle.
func RenderResult(result model.RefreshResult) string {
	summary := fmt.Sprintf("%s: %d scheduled, %d updated, %d canceled, %d refreshed, %d re-armed, %d expired",
		result.Trigger,
		result.ScheduledCount,
		result.UpdatedCount,
		result.CanceledCount,
		result.RefreshedCount,
		result.RearmedCount,
		result.ExpiredCount)

	if result.OK() {
		return FormatSuccess(summary)
	}

	lines := []string{FormatWarning(summary)}
	for _, f := range result.Failures {
		lines = append(lines, "  "+FormatError(f.String()))
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
