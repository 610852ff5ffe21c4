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
	t.Setenv("SHOTSCAN_PATH_TEST", "/opt/x")
	t.Setenv("SHOTSCAN_PATH_HOME", "~/library")
	t.Setenv("SHOTSCAN_PATH_EMPTY", "")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"tilde only", "~", home},
		{"tilde prefix", "~/shots", filepath.Join(home, "shots")},
		{"env var", "$SHOTSCAN_PATH_TEST/data", "/opt/x/data"},
		{"absolute", "/tmp/a", "/tmp/a"},
		{"tilde mid path untouched", "/a/~b", "/a/~b"},
		{"braced env var", "${SHOTSCAN_PATH_TEST}/data", "/opt/x/data"},
		{"env var holding tilde", "$SHOTSCAN_PATH_HOME/shots", filepath.Join(home, "library", "shots")},
		{"env var expanding to empty", "$SHOTSCAN_PATH_EMPTY", ""},
		{"cleaned", "/tmp//a/./b/", "/tmp/a/b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.in))
		})
	}
}
