// Package config provides the persisted Config and Theme stores for
// termscp, plus the platform-specific directory layout they and the
// bookmark store share (spec §4.5, §6).
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Dir returns termscp's config directory.
//
// Locations:
//   - Windows: %USERPROFILE%\.config\termscp
//   - Unix:    $XDG_CONFIG_HOME/termscp, falling back to ~/.config/termscp
//
// Grounded on the teacher's internal/config/paths.go GOOS-branching
// directory resolution.
func Dir() (string, error) {
	if runtime.GOOS == "windows" {
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			userProfile = home
		}
		return filepath.Join(userProfile, ".config", "termscp"), nil
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "termscp"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "termscp"), nil
}

// EnsureDir creates the config directory (and ssh_keys/ subdirectory)
// if they don't exist.
func EnsureDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	if err := os.MkdirAll(SSHKeysDir(dir), 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// SSHKeysDir returns the subdirectory holding one PEM private key file
// per (host, user) referenced from bookmarks (spec §6).
func SSHKeysDir(configDir string) string {
	return filepath.Join(configDir, "ssh_keys")
}

// ConfigPath, ThemePath, BookmarksPath return the well-known file paths
// inside the config directory (spec §6).
func ConfigPath(dir string) string     { return filepath.Join(dir, "config.toml") }
func ThemePath(dir string) string      { return filepath.Join(dir, "theme.toml") }
func BookmarksPath(dir string) string  { return filepath.Join(dir, "bookmarks.toml") }
