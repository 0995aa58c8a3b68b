// Package wake provides an in-process exact-alarm scheduler backed by timers.
package wake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Veraticus/the-alarm-must-ring/internal/common"
)

// ErrClosed is returned when scheduling on a closed scheduler.
var ErrClosed = errors.New("scheduler is closed")

// FireFunc is called, on its own goroutine, when an alarm goes off.
type FireFunc func(id string, requestCode int32)

// Pending describes one armed alarm.
type Pending struct {
	FireAt      time.Time
	ID          string
	RequestCode int32
}

type entry struct {
	timer *time.Timer
	Pending
	seq uint64
}

// TimerScheduler arms one timer per request code. Like a platform alarm
// manager, scheduling a code that is already armed replaces it.
type TimerScheduler struct {
	onFire  FireFunc
	now     func() time.Time
	entries map[int32]*entry
	seq     uint64
	mu      sync.Mutex
	closed  bool
}

// NewTimerScheduler creates a scheduler that calls onFire for each alarm.
func NewTimerScheduler(onFire FireFunc) *TimerScheduler {
	if onFire == nil {
		onFire = func(string, int32) {}
	}
	return &TimerScheduler{
		onFire:  onFire,
		now:     time.Now,
		entries: make(map[int32]*entry),
	}
}

// ScheduleExact arms an alarm for fireAt.
func (s *TimerScheduler) ScheduleExact(_ context.Context, id string, requestCode int32, fireAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	delay := fireAt.Sub(s.now())
	if delay <= 0 {
		return fmt.Errorf("%w: fire time %s already passed", common.ErrSchedulerRejected, fireAt.UTC().Format(time.RFC3339))
	}

	if prior, ok := s.entries[requestCode]; ok {
		prior.timer.Stop()
		slog.Debug("Replacing armed alarm", "request_code", requestCode, "prior_id", prior.ID, "id", id)
	}

	s.seq++
	e := &entry{Pending: Pending{ID: id, RequestCode: requestCode, FireAt: fireAt.UTC()}, seq: s.seq}
	e.timer = time.AfterFunc(delay, func() { s.fire(requestCode, e.seq) })
	s.entries[requestCode] = e
	return nil
}

// Cancel disarms the alarm holding requestCode.
func (s *TimerScheduler) Cancel(_ context.Context, _ string, requestCode int32) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[requestCode]
	if !ok {
		return false, nil
	}
	e.timer.Stop()
	delete(s.entries, requestCode)
	return true, nil
}

// IsScheduled reports whether requestCode is armed for id.
func (s *TimerScheduler) IsScheduled(_ context.Context, id string, requestCode int32) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[requestCode]
	return ok && e.ID == id, nil
}

// CanScheduleExact reports whether the scheduler still accepts alarms.
func (s *TimerScheduler) CanScheduleExact(_ context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Pending returns armed alarms ordered by fire time.
func (s *TimerScheduler) Pending() []Pending {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Pending, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Pending)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FireAt.Equal(out[j].FireAt) {
			return out[i].FireAt.Before(out[j].FireAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Close disarms everything. Later schedules fail with ErrClosed.
func (s *TimerScheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for code, e := range s.entries {
		e.timer.Stop()
		delete(s.entries, code)
	}
	s.closed = true
}

func (s *TimerScheduler) fire(requestCode int32, seq uint64) {
	s.mu.Lock()
	e, ok := s.entries[requestCode]
	if !ok || e.seq != seq {
		s.mu.Unlock()
		return
	}
	delete(s.entries, requestCode)
	s.mu.Unlock()

	slog.Info("Alarm firing", "alarm_id", e.ID, "request_code", requestCode)
	s.onFire(e.ID, requestCode)
}
