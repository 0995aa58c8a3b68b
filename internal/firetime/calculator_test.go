package firetime

import (
	"testing"
	"time"

	"github.com/Veraticus/the-alarm-must-ring/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestCalculator_TimedEvent(t *testing.T) {
	start := time.Date(2024, 6, 15, 14, 0, 0, 0, time.UTC)
	event := model.CalendarEvent{ID: "e1", Title: "Team meeting", StartTime: start, CalendarID: "1"}
	rule := model.Rule{ID: 1, KeywordPattern: "meeting", LeadTimeMinutes: 15}

	calc := New(time.UTC, 21, 0)
	got := calc.FireTime(event, rule)

	assert.Equal(t, start.Add(-15*time.Minute), got)
	assert.Equal(t, model.EpochMillis(start)-900000, calc.FireTimeMillis(event, rule))
}

func TestCalculator_AllDayEvent(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	berlin := mustLoad(t, "Europe/Berlin")

	tests := []struct {
		loc    *time.Location
		date   time.Time
		want   time.Time
		name   string
		hour   int
		minute int
	}{
		{
			name: "summer evening in New York",
			loc:  ny,
			date: time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC),
			hour: 21,
			want: time.Date(2024, 6, 16, 1, 0, 0, 0, time.UTC),
		},
		{
			name: "day before spring forward uses standard offset",
			loc:  ny,
			date: time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC),
			hour: 9,
			want: time.Date(2024, 3, 9, 14, 0, 0, 0, time.UTC),
		},
		{
			name: "spring forward day uses daylight offset",
			loc:  ny,
			date: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
			hour: 9,
			want: time.Date(2024, 3, 10, 13, 0, 0, 0, time.UTC),
		},
		{
			name:   "fall back day in Berlin",
			loc:    berlin,
			date:   time.Date(2024, 10, 27, 0, 0, 0, 0, time.UTC),
			hour:   7,
			minute: 30,
			want:   time.Date(2024, 10, 27, 6, 30, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := model.CalendarEvent{ID: "a", StartTime: tt.date, EndTime: tt.date.Add(24 * time.Hour), IsAllDay: true}
			calc := New(tt.loc, tt.hour, tt.minute)
			assert.Equal(t, tt.want, calc.FireTime(event, model.Rule{LeadTimeMinutes: 15}))
		})
	}
}

func TestCalculator_AllDayIgnoresLeadTime(t *testing.T) {
	date := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	event := model.CalendarEvent{ID: "a", StartTime: date, IsAllDay: true}
	calc := New(mustLoad(t, "Europe/Paris"), 21, 0)

	short := calc.FireTime(event, model.Rule{LeadTimeMinutes: 1})
	long := calc.FireTime(event, model.Rule{LeadTimeMinutes: 10080})

	assert.Equal(t, short, long)
	assert.Equal(t, "2024-06-15T21:00:00+02:00", short.In(calc.Location).Format(time.RFC3339))
}

func TestCalculator_Idempotent(t *testing.T) {
	event := model.CalendarEvent{ID: "e", StartTime: time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC)}
	rule := model.Rule{LeadTimeMinutes: 45}
	calc := New(time.UTC, 9, 0)

	first := calc.FireTimeMillis(event, rule)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, calc.FireTimeMillis(event, rule))
	}
	assert.Equal(t, calc.FireTime(event, rule), ComputeFireTime(event, rule, 9, 0, time.UTC))
}

func TestNew_NilLocation(t *testing.T) {
	calc := New(nil, 8, 0)
	assert.Equal(t, time.UTC, calc.Location)
}
