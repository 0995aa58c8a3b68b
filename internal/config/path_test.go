package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("RING_TEST_DIR", "/srv/cal")

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"~", home},
		{"~/work.ics", filepath.Join(home, "work.ics")},
		{"$RING_TEST_DIR/work.ics", "/srv/cal/work.ics"},
		{"/abs/work.ics", "/abs/work.ics"},
		{"~user/work.ics", "~user/work.ics"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.in))
		})
	}
}

func TestDefaultPaths(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".config", "ring"), DefaultConfigDir())
	assert.Equal(t, filepath.Join(home, ".local", "share", "ring", "ring.db"), DefaultDatabasePath())
}
