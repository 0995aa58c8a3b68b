// Package calendar reads calendar events from ICS files on disk.
package calendar

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
)

const (
	layoutDate     = "20060102"
	layoutLocal    = "20060102T150405"
	layoutUTC      = "20060102T150405Z"
	statusCanceled = "CANCELLED"
)

// ErrEmptyCalendar is returned for an ICS payload with no content.
var ErrEmptyCalendar = errors.New("empty ICS body")

// parsedEvent is one VEVENT before recurrence expansion.
type parsedEvent struct {
	start        time.Time
	end          time.Time
	recurrenceID *time.Time
	uid          string
	summary      string
	zone         string // TZID of DTSTART, empty when floating or UTC
	rrule        string
	exDates      []time.Time
	marker       int64
	allDay       bool
}

// parseICS parses body. Times without a zone are resolved in floating, so a
// "09:00" event follows the device zone. Malformed events are logged and skipped.
func parseICS(sourceID string, body []byte, floating *time.Location) ([]parsedEvent, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyCalendar
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse calendar %s: %w", sourceID, err)
	}

	events := make([]parsedEvent, 0, len(cal.Events()))
	for _, ve := range cal.Events() {
		if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil && strings.EqualFold(p.Value, statusCanceled) {
			continue
		}
		ev, err := parseVEvent(ve, floating)
		if err != nil {
			slog.Warn("Skipping malformed calendar event", "calendar_id", sourceID, "error", err)
			continue
		}
		events = append(events, ev)
	}

	slog.Debug("Parsed calendar", "calendar_id", sourceID, "events", len(events))
	return events, nil
}

func parseVEvent(ve *ical.VEvent, floating *time.Location) (parsedEvent, error) {
	var out parsedEvent

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || strings.TrimSpace(uid.Value) == "" {
		return out, errors.New("missing UID")
	}
	out.uid = strings.TrimSpace(uid.Value)

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.summary = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, fmt.Errorf("event %s: missing DTSTART", out.uid)
	}
	start, allDay, err := parseTime(dtStart.Value, dtStart.ICalParameters, floating)
	if err != nil {
		return out, fmt.Errorf("event %s: DTSTART: %w", out.uid, err)
	}
	out.start = start
	out.allDay = allDay
	out.zone = param(dtStart.ICalParameters, "TZID")

	out.end = defaultEnd(start, allDay)
	if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
		if end, _, err := parseTime(dtEnd.Value, dtEnd.ICalParameters, floating); err == nil && end.After(start) {
			out.end = end
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.rrule = strings.TrimSpace(p.Value)
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			if t, _, err := parseTime(part, p.ICalParameters, floating); err == nil {
				out.exDates = append(out.exDates, t)
			}
		}
	}

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if t, _, err := parseTime(p.Value, p.ICalParameters, floating); err == nil {
			out.recurrenceID = &t
		}
	}

	out.marker = changeMarker(ve)
	return out, nil
}

// parseTime reads a DATE or DATE-TIME value. All-day dates are anchored at UTC
// midnight. A TZID that cannot be loaded falls back to floating.
func parseTime(value string, params map[string][]string, floating *time.Location) (time.Time, bool, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return time.Time{}, false, errors.New("empty time value")
	}

	if strings.EqualFold(param(params, "VALUE"), "DATE") || !strings.Contains(v, "T") {
		t, err := time.ParseInLocation(layoutDate, v, time.UTC)
		return t, true, err
	}

	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse(layoutUTC, v)
		return t, false, err
	}

	loc := floating
	if tzid := param(params, "TZID"); tzid != "" {
		zone, err := time.LoadLocation(tzid)
		if err != nil {
			slog.Warn("Unknown TZID, treating time as floating", "tzid", tzid, "error", err)
		} else {
			loc = zone
		}
	}
	t, err := time.ParseInLocation(layoutLocal, v, loc)
	return t, false, err
}

// changeMarker derives a monotonic change marker from LAST-MODIFIED, falling
// back to SEQUENCE.
func changeMarker(ve *ical.VEvent) int64 {
	if p := ve.GetProperty("LAST-MODIFIED"); p != nil {
		if t, err := time.Parse(layoutUTC, strings.TrimSpace(p.Value)); err == nil {
			return t.UnixMilli()
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertySequence); p != nil {
		if n, err := strconv.ParseInt(strings.TrimSpace(p.Value), 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func defaultEnd(start time.Time, allDay bool) time.Time {
	if allDay {
		return start.AddDate(0, 0, 1)
	}
	return start
}

func param(params map[string][]string, name string) string {
	if vs := params[name]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}
