package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Platform identifiers.
const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// Application directory name used across all platforms.
const appName = "yfa"

const (
	configFileName = "config.toml"
	tokenFileName  = "tokens.json"
)

// DefaultConfigDir returns the platform-specific directory for config files.
// On Linux it respects XDG_CONFIG_HOME; macOS uses Application Support.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return xdgDir("XDG_CONFIG_HOME", home, ".config")
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

// DefaultDataDir returns the platform-specific directory for application
// data such as the token file.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return xdgDir("XDG_DATA_HOME", home, filepath.Join(".local", "share"))
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}

func xdgDir(envVar, home, fallback string) string {
	if xdg := os.Getenv(envVar); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(home, fallback, appName)
}

// DefaultConfigPath returns the full path to the default config file.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

// DefaultTokenPath returns the full path to the default credential file.
func DefaultTokenPath() string {
	dir := DefaultDataDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, tokenFileName)
}

// expandTilde replaces a leading "~/" with the user's home directory.
func expandTilde(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
