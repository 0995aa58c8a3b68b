package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/Veraticus/the-alarm-must-ring/internal/calendar"
	"github.com/Veraticus/the-alarm-must-ring/internal/common"
	"github.com/Veraticus/the-alarm-must-ring/internal/model"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Configuration keys.
const (
	KeyDatabasePath    = "database.path"
	KeyRefreshInterval = "refresh.interval_minutes"
	KeyLookahead       = "refresh.lookahead_hours"
	KeyAllDayHour      = "alarms.all_day_hour"
	KeyAllDayMinute    = "alarms.all_day_minute"
	KeyDuplicateMode   = "alarms.duplicate_mode"
	KeyTimezone        = "device.timezone"
	KeyCalendarSources = "calendar.sources"
	KeyMetricsListen   = "metrics.listen"
)

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	defaults := model.DefaultSettings()
	v.SetDefault(KeyDatabasePath, DefaultDatabasePath())
	v.SetDefault(KeyRefreshInterval, int(defaults.RefreshInterval/time.Minute))
	v.SetDefault(KeyLookahead, int(defaults.Lookahead/time.Hour))
	v.SetDefault(KeyAllDayHour, defaults.AllDayHour)
	v.SetDefault(KeyAllDayMinute, defaults.AllDayMinute)
	v.SetDefault(KeyDuplicateMode, string(defaults.DuplicateMode))
	v.SetDefault(KeyTimezone, "Local")
	v.SetDefault(KeyMetricsListen, "127.0.0.1:9464")
}

// LoadDotEnv loads .env style files into the process environment. Missing
// files are ignored; existing variables win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// Provider serves settings from viper. Values are re-read on every call so an
// edited config file takes effect on the next refresh.
type Provider struct {
	v        *viper.Viper
	validate *validator.Validate
}

// NewProvider creates a provider over v. A nil v means the global viper.
func NewProvider(v *viper.Viper) *Provider {
	if v == nil {
		v = viper.GetViper()
	}
	return &Provider{v: v, validate: validator.New()}
}

// Settings returns the validated refresh settings.
func (p *Provider) Settings() (model.Settings, error) {
	mode, err := model.ParseDuplicateMode(p.v.GetString(KeyDuplicateMode))
	if err != nil {
		return model.Settings{}, fmt.Errorf("%w: %s: %v", common.ErrInvalidConfig, KeyDuplicateMode, err)
	}

	loc, err := loadZone(p.v.GetString(KeyTimezone))
	if err != nil {
		return model.Settings{}, fmt.Errorf("%w: %s: %v", common.ErrInvalidConfig, KeyTimezone, err)
	}

	settings := model.Settings{
		Location:        loc,
		DuplicateMode:   mode,
		RefreshInterval: time.Duration(p.v.GetInt(KeyRefreshInterval)) * time.Minute,
		Lookahead:       time.Duration(p.v.GetInt(KeyLookahead)) * time.Hour,
		AllDayHour:      p.v.GetInt(KeyAllDayHour),
		AllDayMinute:    p.v.GetInt(KeyAllDayMinute),
	}
	if err := p.validate.Struct(settings); err != nil {
		return model.Settings{}, fmt.Errorf("%w: %s", common.ErrInvalidConfig, describe(err))
	}
	return settings, nil
}

// Location returns the configured device zone, or time.Local if it is invalid.
func (p *Provider) Location() *time.Location {
	loc, err := loadZone(p.v.GetString(KeyTimezone))
	if err != nil {
		return time.Local
	}
	return loc
}

// DatabasePath returns the expanded database path.
func (p *Provider) DatabasePath() string {
	if path := p.v.GetString(KeyDatabasePath); path != "" {
		return ExpandPath(path)
	}
	return DefaultDatabasePath()
}

// CalendarSources returns the configured ICS files with expanded paths.
func (p *Provider) CalendarSources() ([]calendar.Source, error) {
	var sources []calendar.Source
	if err := p.v.UnmarshalKey(KeyCalendarSources, &sources); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrInvalidConfig, KeyCalendarSources, err)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: %s", common.ErrMissingConfig, KeyCalendarSources)
	}

	seen := make(map[string]bool, len(sources))
	for i := range sources {
		if err := p.validate.Struct(sources[i]); err != nil {
			return nil, fmt.Errorf("%w: %s[%d]: %s", common.ErrInvalidConfig, KeyCalendarSources, i, describe(err))
		}
		if seen[sources[i].ID] {
			return nil, fmt.Errorf("%w: duplicate calendar id %q", common.ErrInvalidConfig, sources[i].ID)
		}
		seen[sources[i].ID] = true
		sources[i].Path = ExpandPath(sources[i].Path)
	}
	return sources, nil
}

// MetricsListen returns the metrics listen address. Empty disables metrics.
func (p *Provider) MetricsListen() string {
	return p.v.GetString(KeyMetricsListen)
}

func loadZone(name string) (*time.Location, error) {
	switch strings.TrimSpace(name) {
	case "", "Local":
		return time.Local, nil
	}
	return time.LoadLocation(strings.TrimSpace(name))
}

func describe(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
	}
	return strings.Join(parts, "; ")
}
