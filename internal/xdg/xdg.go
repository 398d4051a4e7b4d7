// Package xdg provides XDG Base Directory paths for sessionauth.
package xdg

import (
	"os"
	"path/filepath"
)

const appName = "sessionauth"

// ConfigDir returns the XDG config directory for sessionauth.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// ConfigFile returns the default configuration file path.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
