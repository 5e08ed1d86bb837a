package config

import (
	"path/filepath"
	"strings"

	gfconfig "github.com/fulmenhq/gofulmen/config"
)

// DefaultConfigDir returns the XDG config directory for the app.
func DefaultConfigDir() string {
	return gfconfig.GetAppConfigDir(AppName)
}

// DefaultConfigPath returns the XDG config file path, or "" when the
// config directory cannot be resolved.
func DefaultConfigPath() string {
	return joinUnder(DefaultConfigDir(), "config.yaml", "")
}

// DefaultDataDir returns the XDG data directory for the app.
func DefaultDataDir() string {
	return gfconfig.GetAppDataDir(AppName)
}

// DefaultStorePath returns the knowledge database path. Without a data
// directory the database lives in the working directory.
func DefaultStorePath() string {
	name := AppName + ".db"
	return joinUnder(DefaultDataDir(), name, "./"+name)
}

func joinUnder(dir, name, fallback string) string {
	if strings.TrimSpace(dir) == "" {
		return fallback
	}
	return filepath.Join(dir, name)
}
