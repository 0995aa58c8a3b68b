package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/the-alarm-must-ring/internal/config"
	"github.com/Veraticus/the-alarm-must-ring/internal/identity"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupConfig points the global viper at a fresh database and calendar.
func setupConfig(t *testing.T, icsLines ...string) string {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	config.SetDefaults(viper.GetViper())
	viper.Set(config.KeyDatabasePath, filepath.Join(dir, "ring.db"))
	viper.Set(config.KeyTimezone, "UTC")
	viper.Set(config.KeyMetricsListen, "")

	if len(icsLines) > 0 {
		path := filepath.Join(dir, "work.ics")
		body := strings.Join(append(append([]string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//test//EN"}, icsLines...), "END:VCALENDAR"), "\r\n")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		viper.Set(config.KeyCalendarSources, []map[string]any{{"id": "work", "path": path}})
	}
	return dir
}

func execute(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func vevent(uid, summary string, start time.Time) []string {
	return []string{
		"BEGIN:VEVENT",
		"UID:" + uid,
		"DTSTAMP:20240101T000000Z",
		"SUMMARY:" + summary,
		"DTSTART:" + start.UTC().Format("20060102T150405Z"),
		"DTEND:" + start.Add(time.Hour).UTC().Format("20060102T150405Z"),
		"END:VEVENT",
	}
}

func TestRulesCommands(t *testing.T) {
	dir := setupConfig(t)

	out, err := execute(t, rulesCmd(), "", "add", "meeting", "--lead", "20")
	require.NoError(t, err)
	assert.Contains(t, out, "Created rule 1")

	out, err = execute(t, rulesCmd(), "", "add", "stand.?up", "--name", "Standups", "--calendar", "work", "--first-of-day")
	require.NoError(t, err)
	assert.Contains(t, out, "Created rule 2 (Standups)")

	_, err = execute(t, rulesCmd(), "", "add", "x", "--lead", "0")
	require.Error(t, err)

	out, err = execute(t, rulesCmd(), "", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "meeting (keyword)")
	assert.Contains(t, out, "stand.?up (regex)")

	_, err = execute(t, rulesCmd(), "", "disable", "1")
	require.NoError(t, err)

	exported := filepath.Join(dir, "rules.yaml")
	_, err = execute(t, rulesCmd(), "", "export", "-o", exported)
	require.NoError(t, err)
	data, err := os.ReadFile(exported)
	require.NoError(t, err)
	assert.Contains(t, string(data), "pattern: meeting")
	assert.Contains(t, string(data), "enabled: false")

	out, err = execute(t, rulesCmd(), "n\n", "delete", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Kept")

	out, err = execute(t, rulesCmd(), "", "delete", "2", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted rule 2")

	out, err = execute(t, rulesCmd(), "", "import", exported, "--replace")
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2 rules")

	_, err = execute(t, rulesCmd(), "", "delete", "abc", "--yes")
	assert.ErrorContains(t, err, "invalid rule id")
}

func TestRefreshAndAlarmsCommands(t *testing.T) {
	start := time.Now().Add(3 * time.Hour).Truncate(time.Minute)
	setupConfig(t, vevent("evt-1", "Team meeting", start)...)

	_, err := execute(t, rulesCmd(), "", "add", "meeting", "--lead", "15")
	require.NoError(t, err)

	out, err := execute(t, refreshCmd(), "")
	require.NoError(t, err)
	assert.Contains(t, out, "IMMEDIATE: 1 scheduled")

	out, err = execute(t, refreshCmd(), "", "--trigger", "boot")
	require.NoError(t, err)
	assert.Contains(t, out, "BOOT: 0 scheduled")
	assert.Contains(t, out, "1 re-armed")

	_, err = execute(t, refreshCmd(), "", "--trigger", "sometimes")
	require.Error(t, err)

	out, err = execute(t, alarmsCmd(), "", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Team meeting")
	assert.Contains(t, out, start.Add(-15*time.Minute).UTC().Format("15:04"))

	out, err = execute(t, alarmsCmd(), "", "test", "--in", "1h", "--title", "Snooze")
	require.NoError(t, err)
	assert.Contains(t, out, "Snooze at")

	key := identity.DeriveKey("evt-1", 1)
	out, err = execute(t, alarmsCmd(), "", "dismiss", key)
	require.NoError(t, err)
	assert.Contains(t, out, "Dismissed "+key)

	out, err = execute(t, alarmsCmd(), "", "list", "--dismissed")
	require.NoError(t, err)
	assert.Contains(t, out, key)
	assert.NotContains(t, out, "Snooze")
}

func TestRefreshCommand_RequiresCalendar(t *testing.T) {
	setupConfig(t)

	_, err := execute(t, refreshCmd(), "")
	assert.ErrorContains(t, err, "calendar.sources")
}

func TestMigrateCommand(t *testing.T) {
	setupConfig(t)

	out, err := execute(t, migrateCmd(), "", "--status")
	require.NoError(t, err)
	assert.Contains(t, out, "Current version: 0")
	assert.Contains(t, out, "Migrations pending")

	out, err = execute(t, migrateCmd(), "")
	require.NoError(t, err)
	assert.Contains(t, out, "was 0")
}
