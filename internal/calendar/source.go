package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/Veraticus/the-alarm-must-ring/internal/model"
)

// allDayGrace widens the window backwards so all-day events running today are listed.
const allDayGrace = 24 * time.Hour

// ErrNoSources is returned when a calendar is built without sources.
var ErrNoSources = errors.New("no calendar sources configured")

// Source is one ICS file whose events belong to the calendar ID.
type Source struct {
	ID   string `mapstructure:"id" validate:"required"`
	Path string `mapstructure:"path" validate:"required"`
}

// ICSCalendar lists upcoming events from ICS files.
type ICSCalendar struct {
	zone     func() *time.Location
	now      func() time.Time
	readFile func(string) ([]byte, error)
	sources  []Source
}

// NewICSCalendar creates a calendar over sources. zone reports the device zone
// used for floating times; it is consulted on every listing.
func NewICSCalendar(sources []Source, zone func() *time.Location) (*ICSCalendar, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	if zone == nil {
		zone = func() *time.Location { return time.Local }
	}
	return &ICSCalendar{
		sources:  append([]Source(nil), sources...),
		zone:     zone,
		now:      time.Now,
		readFile: os.ReadFile,
	}, nil
}

// ListUpcomingEvents returns events starting within lookahead of now, plus
// all-day events still running. A source that cannot be read fails the whole
// listing so its alarms are not mistaken for deleted events.
func (c *ICSCalendar) ListUpcomingEvents(ctx context.Context, lookahead time.Duration) ([]model.CalendarEvent, error) {
	now := c.now()
	w := window{from: now.Add(-allDayGrace), to: now.Add(lookahead)}
	floating := c.zone()
	if floating == nil {
		floating = time.UTC
	}

	var events []model.CalendarEvent
	for _, src := range c.sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		body, err := c.readFile(src.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read calendar %s: %w", src.ID, err)
		}
		parsed, err := parseICS(src.ID, body, floating)
		if err != nil {
			return nil, err
		}
		expanded := expand(src.ID, parsed, w)
		slog.Debug("Loaded calendar source", "calendar_id", src.ID, "path", src.Path, "events", len(expanded))
		events = append(events, expanded...)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].StartTime.Before(events[j].StartTime)
	})
	return events, nil
}
