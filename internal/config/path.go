// Package config loads spice-sync settings from Viper and the environment.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ExpandPath expands a leading ~ and $VAR references in a file path.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = home + path[1:]
		}
	}
	return filepath.Clean(os.ExpandEnv(path))
}

// DatabasePath returns the SQLite database path from database.path, defaulting
// to spice-sync.db under $XDG_DATA_HOME (or ~/.local/share).
func DatabasePath() string {
	if path := viper.GetString("database.path"); path != "" {
		return ExpandPath(path)
	}

	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		dataDir = "~/.local/share"
	}
	return ExpandPath(filepath.Join(dataDir, "spice-sync", "spice-sync.db"))
}
