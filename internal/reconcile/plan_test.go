package reconcile

import (
	"testing"
	"time"

	"github.com/Veraticus/the-alarm-must-ring/internal/common"
	"github.com/Veraticus/the-alarm-must-ring/internal/identity"
	"github.com/Veraticus/the-alarm-must-ring/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC)

func alarm(id string, fireIn time.Duration, marker int64) model.ScheduledAlarm {
	return model.ScheduledAlarm{
		ID:                id,
		EventID:           "event-" + id,
		RuleID:            1,
		EventTitle:        "Team meeting",
		EventStartTime:    now.Add(fireIn + 15*time.Minute),
		AlarmTime:         now.Add(fireIn),
		RequestCode:       identity.ProbeRequestCode(id, 0),
		LastEventModified: marker,
	}
}

func ids(alarms []model.ScheduledAlarm) []string {
	out := make([]string, len(alarms))
	for i, a := range alarms {
		out[i] = a.ID
	}
	return out
}

func TestValidatePastDue(t *testing.T) {
	assert.NoError(t, ValidatePastDue(alarm("a", time.Minute, 1), now))

	err := ValidatePastDue(alarm("a", 0, 1), now)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrPastDue)
	assert.Equal(t, model.FailureValidation, common.KindOf(err))

	assert.ErrorIs(t, ValidatePastDue(alarm("a", -time.Hour, 1), now), common.ErrPastDue)
}

func TestReconcile(t *testing.T) {
	dismissed := func(a model.ScheduledAlarm) model.ScheduledAlarm {
		a.UserDismissed = true
		return a
	}
	retitled := alarm("a", time.Hour, 2)
	retitled.EventTitle = "Team meeting (moved room)"
	adHoc := alarm("snooze", time.Hour, 0)
	adHoc.AdHoc = true

	tests := []struct {
		name          string
		desired       []model.ScheduledAlarm
		persisted     []model.ScheduledAlarm
		wantSchedule  []string
		wantUpdate    []string
		wantCancel    []string
		wantRefresh   []string
		wantUnchanged []string
		wantRejected  []string
	}{
		{
			name:         "new desired alarm is scheduled",
			desired:      []model.ScheduledAlarm{alarm("a", time.Hour, 1)},
			wantSchedule: []string{"a"},
		},
		{
			name:          "identical alarm is unchanged",
			desired:       []model.ScheduledAlarm{alarm("a", time.Hour, 1)},
			persisted:     []model.ScheduledAlarm{alarm("a", time.Hour, 1)},
			wantUnchanged: []string{"a"},
		},
		{
			name:       "moved fire time is updated",
			desired:    []model.ScheduledAlarm{alarm("a", 2*time.Hour, 2)},
			persisted:  []model.ScheduledAlarm{alarm("a", time.Hour, 1)},
			wantUpdate: []string{"a"},
		},
		{
			name:        "metadata drift refreshes the row only",
			desired:     []model.ScheduledAlarm{retitled},
			persisted:   []model.ScheduledAlarm{alarm("a", time.Hour, 1)},
			wantRefresh: []string{"a"},
		},
		{
			name:          "dismissed with unchanged marker stays suppressed",
			desired:       []model.ScheduledAlarm{alarm("a", 2*time.Hour, 1)},
			persisted:     []model.ScheduledAlarm{dismissed(alarm("a", time.Hour, 1))},
			wantUnchanged: []string{"a"},
		},
		{
			name:       "dismissed with advanced marker is re-armed",
			desired:    []model.ScheduledAlarm{alarm("a", time.Hour, 2)},
			persisted:  []model.ScheduledAlarm{dismissed(alarm("a", time.Hour, 1))},
			wantUpdate: []string{"a"},
		},
		{
			name:       "persisted without desired is canceled",
			persisted:  []model.ScheduledAlarm{alarm("b", time.Hour, 1), alarm("a", time.Hour, 1)},
			wantCancel: []string{"a", "b"},
		},
		{
			name:      "ad-hoc rows are left alone",
			persisted: []model.ScheduledAlarm{adHoc},
		},
		{
			name:         "past-due new candidate is rejected",
			desired:      []model.ScheduledAlarm{alarm("a", -10*time.Minute, 1)},
			wantRejected: []string{"a"},
		},
		{
			name:          "already fired alarm with unchanged time is left for expiry",
			desired:       []model.ScheduledAlarm{alarm("a", -10*time.Minute, 1)},
			persisted:     []model.ScheduledAlarm{alarm("a", -10*time.Minute, 1)},
			wantUnchanged: []string{"a"},
		},
		{
			name:         "alarm moved into the past is rejected and the old one canceled",
			desired:      []model.ScheduledAlarm{alarm("a", -time.Minute, 2)},
			persisted:    []model.ScheduledAlarm{alarm("a", time.Hour, 1)},
			wantRejected: []string{"a"},
			wantCancel:   []string{"a"},
		},
		{
			name:         "duplicate desired identities are collapsed",
			desired:      []model.ScheduledAlarm{alarm("a", time.Hour, 1), alarm("a", 2*time.Hour, 1)},
			wantSchedule: []string{"a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Reconcile(tt.desired, tt.persisted, now, nil)

			updated := make([]string, len(plan.ToUpdate))
			for i, u := range plan.ToUpdate {
				updated[i] = u.New.ID
				assert.False(t, u.New.UserDismissed)
			}
			rejected := make([]string, len(plan.Rejected))
			for i, r := range plan.Rejected {
				rejected[i] = r.Alarm.ID
				assert.ErrorIs(t, r.Err, common.ErrPastDue)
			}

			assert.ElementsMatch(t, tt.wantSchedule, ids(plan.ToSchedule), "schedule")
			assert.ElementsMatch(t, tt.wantUpdate, updated, "update")
			assert.Equal(t, len(tt.wantCancel), len(plan.ToCancel), "cancel")
			if len(tt.wantCancel) > 0 {
				assert.Equal(t, tt.wantCancel, ids(plan.ToCancel), "cancel")
			}
			assert.ElementsMatch(t, tt.wantRefresh, ids(plan.ToRefresh), "refresh")
			assert.ElementsMatch(t, tt.wantUnchanged, ids(plan.Unchanged), "unchanged")
			assert.ElementsMatch(t, tt.wantRejected, rejected, "rejected")
		})
	}
}

func TestReconcile_RefreshKeepsRowState(t *testing.T) {
	prior := alarm("a", time.Hour, 1)
	prior.ScheduledAt = now.Add(-time.Hour)
	want := alarm("a", time.Hour, 3)
	want.EventTitle = "Renamed"
	want.ScheduledAt = time.Time{}

	plan := Reconcile([]model.ScheduledAlarm{want}, []model.ScheduledAlarm{prior}, now, nil)

	require.Len(t, plan.ToRefresh, 1)
	row := plan.ToRefresh[0]
	assert.Equal(t, "Renamed", row.EventTitle)
	assert.Equal(t, int64(3), row.LastEventModified)
	assert.Equal(t, prior.ScheduledAt, row.ScheduledAt)
	assert.True(t, plan.HasEffects())
}

func TestReconcile_CustomValidator(t *testing.T) {
	called := 0
	validate := func(model.ScheduledAlarm, time.Time) error {
		called++
		return &common.ValidationError{Reason: "nope", Err: common.ErrInvalidRule}
	}

	plan := Reconcile([]model.ScheduledAlarm{alarm("a", time.Hour, 1)}, nil, now, validate)

	assert.Equal(t, 1, called)
	assert.Empty(t, plan.ToSchedule)
	require.Len(t, plan.Rejected, 1)
	assert.ErrorIs(t, plan.Rejected[0].Err, common.ErrInvalidRule)
}

func TestPlan_HasEffects(t *testing.T) {
	assert.False(t, Plan{}.HasEffects())
	assert.False(t, Plan{Unchanged: []model.ScheduledAlarm{alarm("a", time.Hour, 1)}}.HasEffects())
	assert.False(t, Plan{Rejected: []Rejection{{Alarm: alarm("a", time.Hour, 1)}}}.HasEffects())
	assert.True(t, Plan{ToCancel: []model.ScheduledAlarm{alarm("a", time.Hour, 1)}}.HasEffects())
}
