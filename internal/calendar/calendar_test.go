package calendar

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/the-alarm-must-ring/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC)

// ics joins lines with CRLF and wraps them in a VCALENDAR.
func ics(lines ...string) []byte {
	all := append([]string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//ring//test//EN"}, lines...)
	all = append(all, "END:VCALENDAR", "")
	return []byte(strings.Join(all, "\r\n"))
}

func newTestCalendar(t *testing.T, files map[string][]byte, zone *time.Location) *ICSCalendar {
	t.Helper()
	sources := make([]Source, 0, len(files))
	for path := range files {
		sources = append(sources, Source{ID: strings.TrimSuffix(path, ".ics"), Path: path})
	}
	cal, err := NewICSCalendar(sources, func() *time.Location { return zone })
	require.NoError(t, err)
	cal.now = func() time.Time { return testNow }
	cal.readFile = func(path string) ([]byte, error) {
		body, ok := files[path]
		if !ok {
			return nil, os.ErrNotExist
		}
		return body, nil
	}
	return cal
}

func TestNewICSCalendar_NoSources(t *testing.T) {
	_, err := NewICSCalendar(nil, nil)
	assert.ErrorIs(t, err, ErrNoSources)
}

func TestListUpcomingEvents(t *testing.T) {
	west := time.FixedZone("UTC-5", -5*3600)
	body := ics(
		"BEGIN:VEVENT",
		"UID:meeting-1",
		"DTSTAMP:20240601T000000Z",
		"DTSTART:20240615T110000Z",
		"DTEND:20240615T120000Z",
		"SUMMARY:Team meeting",
		"LAST-MODIFIED:20240610T120000Z",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:holiday-1",
		"DTSTART;VALUE=DATE:20240615",
		"DTEND;VALUE=DATE:20240616",
		"SUMMARY:Holiday",
		"SEQUENCE:3",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:standup",
		"DTSTART:20240616T090000",
		"DTEND:20240616T091500",
		"SUMMARY:Standup",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:berlin",
		"DTSTART;TZID=Europe/Berlin:20240617T100000",
		"SUMMARY:Berlin sync",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:cancelled",
		"STATUS:CANCELLED",
		"DTSTART:20240615T130000Z",
		"SUMMARY:Cancelled meeting",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"DTSTART:20240615T140000Z",
		"SUMMARY:No UID",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:past",
		"DTSTART:20240610T090000Z",
		"SUMMARY:Old",
		"END:VEVENT",
	)
	cal := newTestCalendar(t, map[string][]byte{"work.ics": body}, west)

	events, err := cal.ListUpcomingEvents(context.Background(), 72*time.Hour)
	require.NoError(t, err)

	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i] = ev.ID
	}
	assert.Equal(t, []string{"holiday-1", "meeting-1", "standup", "berlin"}, ids)

	holiday := events[0]
	assert.True(t, holiday.IsAllDay)
	assert.Equal(t, model.LocalDate("2024-06-15"), holiday.AllDayDate())
	assert.WithinDuration(t, time.Date(2024, 6, 16, 0, 0, 0, 0, time.UTC), holiday.EndTime, 0)
	assert.Equal(t, int64(3), holiday.LastModified)

	meeting := events[1]
	assert.Equal(t, "Team meeting", meeting.Title)
	assert.Equal(t, "work", meeting.CalendarID)
	assert.Equal(t, time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC).UnixMilli(), meeting.LastModified)

	standup := events[2]
	assert.WithinDuration(t, time.Date(2024, 6, 16, 14, 0, 0, 0, time.UTC), standup.StartTime, 0)
	assert.Empty(t, standup.Timezone)

	berlin := events[3]
	assert.WithinDuration(t, time.Date(2024, 6, 17, 8, 0, 0, 0, time.UTC), berlin.StartTime, 0)
	assert.Equal(t, "Europe/Berlin", berlin.Timezone)
}

func TestListUpcomingEvents_FloatingFollowsZone(t *testing.T) {
	body := ics(
		"BEGIN:VEVENT",
		"UID:standup",
		"DTSTART:20240616T090000",
		"SUMMARY:Standup",
		"END:VEVENT",
	)
	zone := time.FixedZone("UTC-5", -5*3600)
	cal := newTestCalendar(t, map[string][]byte{"work.ics": body}, nil)
	cal.zone = func() *time.Location { return zone }

	before, err := cal.ListUpcomingEvents(context.Background(), 72*time.Hour)
	require.NoError(t, err)
	require.Len(t, before, 1)

	zone = time.FixedZone("UTC+1", 3600)
	after, err := cal.ListUpcomingEvents(context.Background(), 72*time.Hour)
	require.NoError(t, err)
	require.Len(t, after, 1)

	assert.Equal(t, before[0].ID, after[0].ID)
	assert.WithinDuration(t, time.Date(2024, 6, 16, 14, 0, 0, 0, time.UTC), before[0].StartTime, 0)
	assert.WithinDuration(t, time.Date(2024, 6, 16, 8, 0, 0, 0, time.UTC), after[0].StartTime, 0)
}

func TestListUpcomingEvents_Recurrence(t *testing.T) {
	body := ics(
		"BEGIN:VEVENT",
		"UID:daily",
		"DTSTART:20240615T090000",
		"DTEND:20240615T093000",
		"RRULE:FREQ=DAILY;COUNT=10",
		"EXDATE:20240616T090000",
		"SUMMARY:Daily shift",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:daily",
		"RECURRENCE-ID:20240617T090000",
		"DTSTART:20240617T110000",
		"DTEND:20240617T113000",
		"SUMMARY:Daily shift (late)",
		"LAST-MODIFIED:20240612T000000Z",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:broken",
		"DTSTART:20240615T100000Z",
		"RRULE:FREQ=SOMETIMES",
		"SUMMARY:Broken",
		"END:VEVENT",
	)
	cal := newTestCalendar(t, map[string][]byte{"shifts.ics": body}, time.UTC)

	events, err := cal.ListUpcomingEvents(context.Background(), 72*time.Hour)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "daily@20240615T090000", events[0].ID)
	assert.WithinDuration(t, time.Date(2024, 6, 15, 9, 30, 0, 0, time.UTC), events[0].EndTime, 0)

	assert.Equal(t, "daily@20240617T090000", events[1].ID)
	assert.Equal(t, "Daily shift (late)", events[1].Title)
	assert.WithinDuration(t, time.Date(2024, 6, 17, 11, 0, 0, 0, time.UTC), events[1].StartTime, 0)
}

func TestListUpcomingEvents_SourceFailures(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		cal := newTestCalendar(t, map[string][]byte{"work.ics": ics()}, time.UTC)
		cal.sources = append(cal.sources, Source{ID: "home", Path: "home.ics"})

		_, err := cal.ListUpcomingEvents(context.Background(), time.Hour)
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})

	t.Run("empty file", func(t *testing.T) {
		cal := newTestCalendar(t, map[string][]byte{"work.ics": nil}, time.UTC)

		_, err := cal.ListUpcomingEvents(context.Background(), time.Hour)
		assert.ErrorIs(t, err, ErrEmptyCalendar)
	})

	t.Run("canceled context", func(t *testing.T) {
		cal := newTestCalendar(t, map[string][]byte{"work.ics": ics()}, time.UTC)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := cal.ListUpcomingEvents(ctx, time.Hour)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		want   time.Time
		params map[string][]string
		name   string
		value  string
		allDay bool
	}{
		{name: "utc", value: "20240615T110000Z", want: time.Date(2024, 6, 15, 11, 0, 0, 0, time.UTC)},
		{name: "date", value: "20240615", want: time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), allDay: true},
		{
			name: "value date param", value: "20240615", params: map[string][]string{"VALUE": {"DATE"}},
			want: time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), allDay: true,
		},
		{
			name: "unknown tzid is floating", value: "20240615T090000", params: map[string][]string{"TZID": {"Nowhere/Special"}},
			want: time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, allDay, err := parseTime(tt.value, tt.params, time.UTC)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
			assert.Equal(t, tt.allDay, allDay)
		})
	}

	_, _, err := parseTime("  ", nil, time.UTC)
	assert.Error(t, err)
}
