package calendar

import (
	"log/slog"
	"sort"
	"time"

	"github.com/Veraticus/the-alarm-must-ring/internal/model"
	"github.com/teambition/rrule-go"
)

// maxOccurrences caps the instances produced for one recurring event.
const maxOccurrences = 5000

// window is the range of event starts an expansion keeps.
type window struct {
	from time.Time
	to   time.Time
}

func (w window) contains(t time.Time) bool {
	return !t.Before(w.from) && t.Before(w.to)
}

// expand turns parsed events into concrete instances whose start lies in w.
// Instances of a recurring event get IDs that stay stable while the series
// exists; overrides replace the instance they name.
func expand(calendarID string, events []parsedEvent, w window) []model.CalendarEvent {
	bases := make([]parsedEvent, 0, len(events))
	overrides := make(map[string]map[string]parsedEvent)
	for _, ev := range events {
		if ev.recurrenceID == nil {
			bases = append(bases, ev)
			continue
		}
		if overrides[ev.uid] == nil {
			overrides[ev.uid] = make(map[string]parsedEvent)
		}
		overrides[ev.uid][instanceKey(*ev.recurrenceID, ev.allDay)] = ev
	}

	var out []model.CalendarEvent
	for _, ev := range bases {
		if ev.rrule == "" {
			if w.contains(ev.start) {
				out = append(out, toEvent(calendarID, ev.uid, ev))
			}
			continue
		}
		out = append(out, expandRecurring(calendarID, ev, overrides[ev.uid], w)...)
	}

	// Overrides moved into the window from an instance outside it.
	for uid, byKey := range overrides {
		for key, ov := range byKey {
			if w.contains(ov.start) {
				out = append(out, toEvent(calendarID, uid+"@"+key, ov))
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func expandRecurring(calendarID string, ev parsedEvent, overrides map[string]parsedEvent, w window) []model.CalendarEvent {
	rule, err := rrule.StrToRRule(ev.rrule)
	if err != nil {
		slog.Warn("Skipping event with invalid RRULE", "calendar_id", calendarID, "uid", ev.uid, "rrule", ev.rrule, "error", err)
		return nil
	}
	rule.DTStart(ev.start)

	var set rrule.Set
	set.RRule(rule)
	for _, ex := range ev.exDates {
		set.ExDate(ex.In(ev.start.Location()))
	}

	starts := set.Between(w.from.In(ev.start.Location()), w.to.In(ev.start.Location()), true)
	if len(starts) > maxOccurrences {
		slog.Warn("Truncating recurring event", "calendar_id", calendarID, "uid", ev.uid, "cap", maxOccurrences)
		starts = starts[:maxOccurrences]
	}

	duration := ev.end.Sub(ev.start)
	out := make([]model.CalendarEvent, 0, len(starts))
	for _, start := range starts {
		key := instanceKey(start, ev.allDay)
		if ov, ok := overrides[key]; ok {
			delete(overrides, key)
			if w.contains(ov.start) {
				out = append(out, toEvent(calendarID, ev.uid+"@"+key, ov))
			}
			continue
		}
		if !w.contains(start) {
			continue
		}

		instance := ev
		instance.start = start
		instance.end = start.Add(duration)
		out = append(out, toEvent(calendarID, ev.uid+"@"+key, instance))
	}
	return out
}

// instanceKey names a recurrence instance by its wall-clock start, so floating
// instances keep their IDs when the device zone changes.
func instanceKey(start time.Time, allDay bool) string {
	if allDay {
		return start.UTC().Format(layoutDate)
	}
	return start.Format(layoutLocal)
}

func toEvent(calendarID, id string, ev parsedEvent) model.CalendarEvent {
	return model.CalendarEvent{
		ID:           id,
		Title:        ev.summary,
		StartTime:    ev.start.UTC(),
		EndTime:      ev.end.UTC(),
		CalendarID:   calendarID,
		Timezone:     ev.zone,
		LastModified: ev.marker,
		IsAllDay:     ev.allDay,
	}
}
