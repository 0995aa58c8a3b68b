// Package daytracker keeps per-rule, per-local-date "first event consumed" state.
package daytracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/the-alarm-must-ring/internal/model"
)

// ErrNilStore is returned when a tracker is built without a store.
var ErrNilStore = errors.New("day tracker store cannot be nil")

// Store persists consumed days and the zone they were keyed under.
type Store interface {
	ListConsumedDays(ctx context.Context) ([]model.ConsumedDay, error)
	IsDayConsumed(ctx context.Context, ruleID int64, date model.LocalDate) (bool, error)
	MarkDayConsumed(ctx context.Context, ruleID int64, date model.LocalDate, at time.Time) error
	DeleteConsumedBefore(ctx context.Context, date model.LocalDate) (int, error)
	DeleteConsumedBetween(ctx context.Context, from, to model.LocalDate) (int, error)
	GetTrackerZone(ctx context.Context) (string, error)
	SetTrackerZone(ctx context.Context, zone string) error
}

// Tracker answers and records first-event-of-day consumption.
type Tracker struct {
	store Store
	loc   *time.Location
	mu    sync.Mutex
}

// Open builds a tracker over store. The zone persisted in the store wins; when
// none is stored, fallback is persisted and used.
func Open(ctx context.Context, store Store, fallback *time.Location) (*Tracker, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if fallback == nil {
		fallback = time.UTC
	}

	name, err := store.GetTrackerZone(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read tracker zone: %w", err)
	}

	if name == "" {
		if err := store.SetTrackerZone(ctx, fallback.String()); err != nil {
			return nil, fmt.Errorf("failed to persist tracker zone: %w", err)
		}
		return &Tracker{store: store, loc: fallback}, nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		slog.Warn("Stored tracker zone is unknown, using fallback", "zone", name, "fallback", fallback.String(), "error", err)
		loc = fallback
	}
	return &Tracker{store: store, loc: loc}, nil
}

// Location returns the zone the tracker's dates are keyed under.
func (t *Tracker) Location() *time.Location {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loc
}

// Today returns the local date of now in the tracker zone.
func (t *Tracker) Today(now time.Time) model.LocalDate {
	return model.DateOf(now, t.Location())
}

// IsFirstEventConsumed reports whether ruleID already used its first event on date.
func (t *Tracker) IsFirstEventConsumed(ctx context.Context, ruleID int64, date model.LocalDate) (bool, error) {
	consumed, err := t.store.IsDayConsumed(ctx, ruleID, date)
	if err != nil {
		return false, fmt.Errorf("failed to check consumed day: %w", err)
	}
	return consumed, nil
}

// MarkConsumed records that ruleID used its first event on date.
func (t *Tracker) MarkConsumed(ctx context.Context, ruleID int64, date model.LocalDate) error {
	if err := t.store.MarkDayConsumed(ctx, ruleID, date, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to mark day consumed: %w", err)
	}
	slog.Debug("Marked first event of day consumed", "rule_id", ruleID, "date", date)
	return nil
}

// Reset clears every entry dated before today. It is driven by the local-midnight trigger.
func (t *Tracker) Reset(ctx context.Context, now time.Time) (int, error) {
	today := t.Today(now)
	removed, err := t.store.DeleteConsumedBefore(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("failed to reset day tracker: %w", err)
	}
	slog.Info("Day tracker reset", "today", today, "removed", removed)
	return removed, nil
}

// ClearToday forgets today's consumption so the remaining events of the day
// can ring again. Used for a manual reset, not at midnight.
func (t *Tracker) ClearToday(ctx context.Context, now time.Time) (int, error) {
	today := t.Today(now)
	removed, err := t.store.DeleteConsumedBetween(ctx, today, today)
	if err != nil {
		return 0, fmt.Errorf("failed to clear today: %w", err)
	}
	slog.Info("Cleared today's consumption", "today", today, "removed", removed)
	return removed, nil
}

// HandleTimezoneChange re-keys the tracker under loc. Stale entries are dropped,
// and when the UTC offset actually moved, entries between the old and new
// "today" are discarded because their day boundaries no longer line up.
func (t *Tracker) HandleTimezoneChange(ctx context.Context, loc *time.Location, now time.Time) error {
	if loc == nil {
		loc = time.UTC
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	oldToday := model.DateOf(now, t.loc)
	newToday := model.DateOf(now, loc)
	_, oldOffset := now.In(t.loc).Zone()
	_, newOffset := now.In(loc).Zone()

	from, to := oldToday, newToday
	if to < from {
		from, to = to, from
	}

	stale, err := t.store.DeleteConsumedBefore(ctx, from)
	if err != nil {
		return fmt.Errorf("failed to drop stale days: %w", err)
	}

	var ambiguous int
	if oldOffset != newOffset {
		ambiguous, err = t.store.DeleteConsumedBetween(ctx, from, to)
		if err != nil {
			return fmt.Errorf("failed to drop ambiguous days: %w", err)
		}
	}

	if err := t.store.SetTrackerZone(ctx, loc.String()); err != nil {
		return fmt.Errorf("failed to persist tracker zone: %w", err)
	}

	slog.Info("Day tracker re-keyed for timezone change",
		"old_zone", t.loc.String(),
		"new_zone", loc.String(),
		"old_today", oldToday,
		"new_today", newToday,
		"stale_removed", stale,
		"ambiguous_removed", ambiguous)

	t.loc = loc
	return nil
}

// Snapshot loads all consumed days for one matcher pass.
func (t *Tracker) Snapshot(ctx context.Context) (Snapshot, error) {
	days, err := t.store.ListConsumedDays(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load consumed days: %w", err)
	}
	snap := make(Snapshot, len(days))
	for _, day := range days {
		if snap[day.RuleID] == nil {
			snap[day.RuleID] = make(map[model.LocalDate]bool)
		}
		snap[day.RuleID][day.Date] = true
	}
	return snap, nil
}

// Snapshot is an in-memory view of consumed days.
type Snapshot map[int64]map[model.LocalDate]bool

// IsFirstEventConsumed implements pattern.DayState.
func (s Snapshot) IsFirstEventConsumed(ruleID int64, date model.LocalDate) bool {
	return s[ruleID][date]
}
