// Package config loads and validates shotscan settings.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath resolves $VAR and ${VAR} references, then a leading ~ for the
// home directory, and cleans the result. Variables are expanded first so a
// variable may itself hold a ~ path. The empty string stays empty.
func ExpandPath(path string) string {
	path = os.ExpandEnv(path)
	if path == "" {
		return ""
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = home + path[1:]
		}
	}
	return filepath.Clean(path)
}
