package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/the-alarm-must-ring/internal/common"
	"github.com/Veraticus/the-alarm-must-ring/internal/model"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T, values map[string]any) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	for key, value := range values {
		v.Set(key, value)
	}
	return v
}

func TestProvider_SettingsDefaults(t *testing.T) {
	p := NewProvider(newViper(t, nil))

	settings, err := p.Settings()
	require.NoError(t, err)

	want := model.DefaultSettings()
	assert.Equal(t, time.Local, settings.Location)
	assert.Equal(t, want.DuplicateMode, settings.DuplicateMode)
	assert.Equal(t, want.RefreshInterval, settings.RefreshInterval)
	assert.Equal(t, want.Lookahead, settings.Lookahead)
	assert.Equal(t, want.AllDayHour, settings.AllDayHour)
	assert.Equal(t, want.AllDayMinute, settings.AllDayMinute)
}

func TestProvider_Settings(t *testing.T) {
	tests := []struct {
		values  map[string]any
		check   func(t *testing.T, s model.Settings)
		name    string
		errMsg  string
		wantErr bool
	}{
		{
			name: "overrides",
			values: map[string]any{
				KeyTimezone:        "Europe/Berlin",
				KeyDuplicateMode:   "allow_multiple",
				KeyLookahead:       48,
				KeyRefreshInterval: 5,
				KeyAllDayHour:      7,
				KeyAllDayMinute:    30,
			},
			check: func(t *testing.T, s model.Settings) {
				assert.Equal(t, "Europe/Berlin", s.Location.String())
				assert.Equal(t, model.AllowMultiple, s.DuplicateMode)
				assert.Equal(t, 48*time.Hour, s.Lookahead)
				assert.Equal(t, 5*time.Minute, s.RefreshInterval)
				assert.Equal(t, 7, s.AllDayHour)
				assert.Equal(t, 30, s.AllDayMinute)
			},
		},
		{
			name:    "unknown duplicate mode",
			values:  map[string]any{KeyDuplicateMode: "loudest"},
			wantErr: true,
			errMsg:  KeyDuplicateMode,
		},
		{
			name:    "unknown timezone",
			values:  map[string]any{KeyTimezone: "Mars/Olympus"},
			wantErr: true,
			errMsg:  KeyTimezone,
		},
		{
			name:    "all-day hour out of range",
			values:  map[string]any{KeyAllDayHour: 24},
			wantErr: true,
			errMsg:  "AllDayHour",
		},
		{
			name:    "lookahead too short",
			values:  map[string]any{KeyLookahead: 0},
			wantErr: true,
			errMsg:  "Lookahead",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings, err := NewProvider(newViper(t, tt.values)).Settings()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, common.ErrInvalidConfig)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Equal(t, model.FailureValidation, common.KindOf(err))
				return
			}
			require.NoError(t, err)
			tt.check(t, settings)
		})
	}
}

func TestProvider_Location(t *testing.T) {
	assert.Equal(t, "Asia/Tokyo", NewProvider(newViper(t, map[string]any{KeyTimezone: "Asia/Tokyo"})).Location().String())
	assert.Equal(t, time.Local, NewProvider(newViper(t, map[string]any{KeyTimezone: "nowhere"})).Location())
}

func TestProvider_CalendarSources(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	t.Run("expands paths", func(t *testing.T) {
		p := NewProvider(newViper(t, map[string]any{
			KeyCalendarSources: []map[string]any{
				{"id": "work", "path": "~/cal/work.ics"},
				{"id": "home", "path": "/tmp/home.ics"},
			},
		}))

		sources, err := p.CalendarSources()
		require.NoError(t, err)
		require.Len(t, sources, 2)
		assert.Equal(t, "work", sources[0].ID)
		assert.Equal(t, filepath.Join(home, "cal", "work.ics"), sources[0].Path)
		assert.Equal(t, "/tmp/home.ics", sources[1].Path)
	})

	t.Run("none configured", func(t *testing.T) {
		_, err := NewProvider(newViper(t, nil)).CalendarSources()
		assert.ErrorIs(t, err, common.ErrMissingConfig)
	})

	t.Run("missing path", func(t *testing.T) {
		p := NewProvider(newViper(t, map[string]any{
			KeyCalendarSources: []map[string]any{{"id": "work"}},
		}))
		_, err := p.CalendarSources()
		assert.ErrorIs(t, err, common.ErrInvalidConfig)
	})

	t.Run("duplicate id", func(t *testing.T) {
		p := NewProvider(newViper(t, map[string]any{
			KeyCalendarSources: []map[string]any{
				{"id": "work", "path": "/a.ics"},
				{"id": "work", "path": "/b.ics"},
			},
		}))
		_, err := p.CalendarSources()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate calendar id")
	})
}

func TestProvider_DatabasePath(t *testing.T) {
	assert.Equal(t, DefaultDatabasePath(), NewProvider(newViper(t, nil)).DatabasePath())

	t.Setenv("RING_TEST_DATA", "/var/lib/ring")
	p := NewProvider(newViper(t, map[string]any{KeyDatabasePath: "$RING_TEST_DATA/ring.db"}))
	assert.Equal(t, "/var/lib/ring/ring.db", p.DatabasePath())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("RING_DOTENV_PROBE=loaded\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("RING_DOTENV_PROBE") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "loaded", os.Getenv("RING_DOTENV_PROBE"))
}
