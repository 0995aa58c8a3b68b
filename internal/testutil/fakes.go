package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Veraticus/the-alarm-must-ring/internal/common"
	"github.com/Veraticus/the-alarm-must-ring/internal/model"
)

// AlarmStore is an in-memory alarm store. Set the *Err fields to inject failures.
type AlarmStore struct {
	ListErr   error
	GetErr    error
	UpsertErr error
	DeleteErr error
	rows      map[string]model.ScheduledAlarm
	mu        sync.Mutex
}

// NewAlarmStore creates an alarm store seeded with rows.
func NewAlarmStore(rows ...model.ScheduledAlarm) *AlarmStore {
	s := &AlarmStore{rows: make(map[string]model.ScheduledAlarm)}
	for _, row := range rows {
		s.rows[row.ID] = row
	}
	return s
}

// ListAlarms returns rows matching filter, ordered by alarm time then ID.
func (s *AlarmStore) ListAlarms(_ context.Context, filter model.AlarmFilter) ([]model.ScheduledAlarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	out := make([]model.ScheduledAlarm, 0, len(s.rows))
	for _, row := range s.rows {
		if filter.Matches(row) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AlarmTime.Equal(out[j].AlarmTime) {
			return out[i].AlarmTime.Before(out[j].AlarmTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetAlarm returns a copy of the row with id.
func (s *AlarmStore) GetAlarm(_ context.Context, id string) (*model.ScheduledAlarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	row, ok := s.rows[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &row, nil
}

// UpsertAlarm stores a copy of alarm.
func (s *AlarmStore) UpsertAlarm(_ context.Context, alarm *model.ScheduledAlarm) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpsertErr != nil {
		return s.UpsertErr
	}
	s.rows[alarm.ID] = *alarm
	return nil
}

// DeleteAlarm removes the row with id.
func (s *AlarmStore) DeleteAlarm(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	if _, ok := s.rows[id]; !ok {
		return common.ErrNotFound
	}
	delete(s.rows, id)
	return nil
}

// SetDismissed flips the dismissed flag and snapshots marker.
func (s *AlarmStore) SetDismissed(_ context.Context, id string, dismissed bool, marker int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpsertErr != nil {
		return s.UpsertErr
	}
	row, ok := s.rows[id]
	if !ok {
		return common.ErrNotFound
	}
	row.UserDismissed = dismissed
	row.LastEventModified = marker
	s.rows[id] = row
	return nil
}

// DeleteExpired removes rows whose alarm time is before cutoff.
func (s *AlarmStore) DeleteExpired(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeleteErr != nil {
		return 0, s.DeleteErr
	}
	n := 0
	for id, row := range s.rows {
		if row.AlarmTime.Before(cutoff) {
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

// Rows returns every row ordered by ID.
func (s *AlarmStore) Rows() []model.ScheduledAlarm {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ScheduledAlarm, 0, len(s.rows))
	for _, row := range s.rows {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ScheduledCall records one ScheduleExact invocation.
type ScheduledCall struct {
	FireAt      time.Time
	ID          string
	RequestCode int32
}

// Scheduler is an in-memory platform scheduler that records calls.
type Scheduler struct {
	ScheduleErr error
	CancelErr   error
	FailFor     map[string]error // per alarm ID schedule failures
	pending     map[int32]ScheduledCall
	Scheduled   []ScheduledCall
	Canceled    []int32
	Denied      bool // CanScheduleExact returns false
	mu          sync.Mutex
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{pending: make(map[int32]ScheduledCall)}
}

// ScheduleExact records a pending alarm, replacing any with the same code.
func (s *Scheduler) ScheduleExact(_ context.Context, id string, requestCode int32, fireAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ScheduleErr != nil {
		return s.ScheduleErr
	}
	if s.Denied {
		return common.ErrExactAlarmDenied
	}
	if err := s.FailFor[id]; err != nil {
		return err
	}
	call := ScheduledCall{ID: id, RequestCode: requestCode, FireAt: fireAt}
	s.pending[requestCode] = call
	s.Scheduled = append(s.Scheduled, call)
	return nil
}

// Cancel removes a pending alarm.
func (s *Scheduler) Cancel(_ context.Context, _ string, requestCode int32) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CancelErr != nil {
		return false, s.CancelErr
	}
	s.Canceled = append(s.Canceled, requestCode)
	_, ok := s.pending[requestCode]
	delete(s.pending, requestCode)
	return ok, nil
}

// IsScheduled reports whether code is pending for id.
func (s *Scheduler) IsScheduled(_ context.Context, id string, requestCode int32) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call, ok := s.pending[requestCode]
	return ok && call.ID == id, nil
}

// CanScheduleExact reports whether exact alarms are allowed.
func (s *Scheduler) CanScheduleExact(_ context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.Denied
}

// Pending returns pending alarms ordered by fire time then ID.
func (s *Scheduler) Pending() []ScheduledCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduledCall, 0, len(s.pending))
	for _, call := range s.pending {
		out = append(out, call)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FireAt.Equal(out[j].FireAt) {
			return out[i].FireAt.Before(out[j].FireAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Forget drops a pending alarm without recording a cancel, as if the platform lost it.
func (s *Scheduler) Forget(requestCode int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, requestCode)
}

// CallCounts returns the number of schedule and cancel calls so far.
func (s *Scheduler) CallCounts() (scheduled, canceled int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Scheduled), len(s.Canceled)
}

// RuleStore serves a fixed set of rules.
type RuleStore struct {
	Err   error
	Rules []model.Rule
}

// ListEnabledRules returns the enabled rules.
func (r *RuleStore) ListEnabledRules(_ context.Context) ([]model.Rule, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	var out []model.Rule
	for _, rule := range r.Rules {
		if rule.Enabled {
			out = append(out, rule)
		}
	}
	return out, nil
}

// CalendarSource serves a fixed set of events.
type CalendarSource struct {
	Err    error
	Events []model.CalendarEvent
	mu     sync.Mutex
}

// ListUpcomingEvents returns the configured events.
func (c *CalendarSource) ListUpcomingEvents(_ context.Context, _ time.Duration) ([]model.CalendarEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	return append([]model.CalendarEvent(nil), c.Events...), nil
}

// SetEvents replaces the served events.
func (c *CalendarSource) SetEvents(events []model.CalendarEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Events = events
}
