package daytracker

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/Veraticus/the-alarm-must-ring/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dayKey struct {
	date   model.LocalDate
	ruleID int64
}

// memStore is an in-memory Store.
type memStore struct {
	err  error
	days map[dayKey]time.Time
	zone string
}

func newMemStore() *memStore {
	return &memStore{days: make(map[dayKey]time.Time)}
}

func (m *memStore) ListConsumedDays(_ context.Context) ([]model.ConsumedDay, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]model.ConsumedDay, 0, len(m.days))
	for k, at := range m.days {
		out = append(out, model.ConsumedDay{RuleID: k.ruleID, Date: k.date, ConsumedAt: at})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RuleID != out[j].RuleID {
			return out[i].RuleID < out[j].RuleID
		}
		return out[i].Date < out[j].Date
	})
	return out, nil
}

func (m *memStore) IsDayConsumed(_ context.Context, ruleID int64, date model.LocalDate) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.days[dayKey{ruleID: ruleID, date: date}]
	return ok, nil
}

func (m *memStore) MarkDayConsumed(_ context.Context, ruleID int64, date model.LocalDate, at time.Time) error {
	if m.err != nil {
		return m.err
	}
	m.days[dayKey{ruleID: ruleID, date: date}] = at
	return nil
}

func (m *memStore) DeleteConsumedBefore(_ context.Context, date model.LocalDate) (int, error) {
	return m.deleteWhere(func(d model.LocalDate) bool { return d < date })
}

func (m *memStore) DeleteConsumedBetween(_ context.Context, from, to model.LocalDate) (int, error) {
	return m.deleteWhere(func(d model.LocalDate) bool { return d >= from && d <= to })
}

func (m *memStore) deleteWhere(match func(model.LocalDate) bool) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	n := 0
	for k := range m.days {
		if match(k.date) {
			delete(m.days, k)
			n++
		}
	}
	return n, nil
}

func (m *memStore) GetTrackerZone(_ context.Context) (string, error) {
	return m.zone, m.err
}

func (m *memStore) SetTrackerZone(_ context.Context, zone string) error {
	if m.err != nil {
		return m.err
	}
	m.zone = zone
	return nil
}

func (m *memStore) dates(ruleID int64) []model.LocalDate {
	var out []model.LocalDate
	for k := range m.days {
		if k.ruleID == ruleID {
			out = append(out, k.date)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("nil store", func(t *testing.T) {
		_, err := Open(ctx, nil, time.UTC)
		assert.ErrorIs(t, err, ErrNilStore)
	})

	t.Run("persists fallback when no zone stored", func(t *testing.T) {
		store := newMemStore()
		tracker, err := Open(ctx, store, time.FixedZone("UTC-5", -5*3600))
		require.NoError(t, err)
		assert.Equal(t, "UTC-5", store.zone)
		assert.Equal(t, "UTC-5", tracker.Location().String())
	})

	t.Run("stored zone wins", func(t *testing.T) {
		store := newMemStore()
		store.zone = "Europe/Berlin"
		tracker, err := Open(ctx, store, time.UTC)
		require.NoError(t, err)
		assert.Equal(t, "Europe/Berlin", tracker.Location().String())
	})

	t.Run("unknown stored zone falls back", func(t *testing.T) {
		store := newMemStore()
		store.zone = "Mars/Olympus_Mons"
		tracker, err := Open(ctx, store, time.UTC)
		require.NoError(t, err)
		assert.Equal(t, time.UTC, tracker.Location())
	})

	t.Run("store failure", func(t *testing.T) {
		store := newMemStore()
		store.err = errors.New("disk gone")
		_, err := Open(ctx, store, time.UTC)
		assert.ErrorContains(t, err, "disk gone")
	})
}

func TestTracker_MarkAndSnapshot(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	tracker, err := Open(ctx, store, time.UTC)
	require.NoError(t, err)

	consumed, err := tracker.IsFirstEventConsumed(ctx, 1, "2024-06-15")
	require.NoError(t, err)
	assert.False(t, consumed)

	require.NoError(t, tracker.MarkConsumed(ctx, 1, "2024-06-15"))
	require.NoError(t, tracker.MarkConsumed(ctx, 2, "2024-06-16"))

	consumed, err = tracker.IsFirstEventConsumed(ctx, 1, "2024-06-15")
	require.NoError(t, err)
	assert.True(t, consumed)

	snap, err := tracker.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.IsFirstEventConsumed(1, "2024-06-15"))
	assert.True(t, snap.IsFirstEventConsumed(2, "2024-06-16"))
	assert.False(t, snap.IsFirstEventConsumed(1, "2024-06-16"))
	assert.False(t, snap.IsFirstEventConsumed(3, "2024-06-15"))
}

func TestTracker_Reset(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	tracker, err := Open(ctx, store, time.UTC)
	require.NoError(t, err)

	for _, d := range []model.LocalDate{"2024-06-13", "2024-06-14", "2024-06-15", "2024-06-16"} {
		require.NoError(t, tracker.MarkConsumed(ctx, 1, d))
	}

	removed, err := tracker.Reset(ctx, time.Date(2024, 6, 15, 0, 0, 1, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, []model.LocalDate{"2024-06-15", "2024-06-16"}, store.dates(1))
}

func TestTracker_ClearToday(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	tracker, err := Open(ctx, store, time.UTC)
	require.NoError(t, err)

	for _, d := range []model.LocalDate{"2024-06-14", "2024-06-15", "2024-06-16"} {
		require.NoError(t, tracker.MarkConsumed(ctx, 1, d))
	}

	removed, err := tracker.ClearToday(ctx, time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []model.LocalDate{"2024-06-14", "2024-06-16"}, store.dates(1))
}

func TestTracker_HandleTimezoneChange(t *testing.T) {
	ctx := context.Background()
	minus5 := time.FixedZone("UTC-5", -5*3600)
	plus1 := time.FixedZone("UTC+1", 3600)

	tests := []struct {
		name    string
		from    *time.Location
		to      *time.Location
		now     time.Time
		want    []model.LocalDate
		wantLoc string
	}{
		{
			// 23:30 UTC: the 14th in UTC-5, the 15th in UTC+1.
			name:    "eastward shift across midnight drops both days",
			from:    minus5,
			to:      plus1,
			now:     time.Date(2024, 6, 14, 23, 30, 0, 0, time.UTC),
			want:    []model.LocalDate{"2024-06-16"},
			wantLoc: "UTC+1",
		},
		{
			name:    "offset change on the same date drops today",
			from:    minus5,
			to:      plus1,
			now:     time.Date(2024, 6, 14, 12, 0, 0, 0, time.UTC),
			want:    []model.LocalDate{"2024-06-15", "2024-06-16"},
			wantLoc: "UTC+1",
		},
		{
			name:    "westward shift across midnight",
			from:    plus1,
			to:      minus5,
			now:     time.Date(2024, 6, 14, 23, 30, 0, 0, time.UTC),
			want:    []model.LocalDate{"2024-06-16"},
			wantLoc: "UTC-5",
		},
		{
			name:    "same offset keeps today",
			from:    time.FixedZone("A", 3600),
			to:      time.FixedZone("B", 3600),
			now:     time.Date(2024, 6, 14, 12, 0, 0, 0, time.UTC),
			want:    []model.LocalDate{"2024-06-14", "2024-06-15", "2024-06-16"},
			wantLoc: "B",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			tracker, err := Open(ctx, store, tt.from)
			require.NoError(t, err)
			for _, d := range []model.LocalDate{"2024-06-13", "2024-06-14", "2024-06-15", "2024-06-16"} {
				require.NoError(t, tracker.MarkConsumed(ctx, 7, d))
			}

			require.NoError(t, tracker.HandleTimezoneChange(ctx, tt.to, tt.now))

			assert.Equal(t, tt.want, store.dates(7))
			assert.Equal(t, tt.wantLoc, store.zone)
			assert.Equal(t, tt.wantLoc, tracker.Location().String())
		})
	}
}

func TestTracker_StoreFailures(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	tracker, err := Open(ctx, store, time.UTC)
	require.NoError(t, err)

	store.err = errors.New("locked")

	_, err = tracker.IsFirstEventConsumed(ctx, 1, "2024-06-15")
	assert.Error(t, err)
	assert.Error(t, tracker.MarkConsumed(ctx, 1, "2024-06-15"))
	_, err = tracker.Reset(ctx, time.Now())
	assert.Error(t, err)
	_, err = tracker.Snapshot(ctx)
	assert.Error(t, err)

	err = tracker.HandleTimezoneChange(ctx, time.FixedZone("X", 7200), time.Now())
	assert.Error(t, err)
	assert.Equal(t, time.UTC, tracker.Location(), "failed change must keep the old zone")
}
