// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

// Package xdg resolves AuthGate's XDG base directory paths.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "authgate"

// ConfigFileName is the name of the default config file.
const ConfigFileName = "config.yaml"

// ConfigDir returns $XDG_CONFIG_HOME/authgate, falling back to
// ~/.config/authgate.
func ConfigDir() (string, error) {
	if base := os.Getenv("XDG_CONFIG_HOME"); base != "" {
		return filepath.Join(base, appName), nil
	}
	home := os.Getenv("HOME")
	if home == "" {
		return "", oops.Code("XDG_NO_HOME").Errorf("neither XDG_CONFIG_HOME nor HOME is set")
	}
	return filepath.Join(home, ".config", appName), nil
}

// CertsDir returns the directory the cert subcommand writes to by default.
func CertsDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "certs"), nil
}

// DefaultConfigFile returns the config file path under ConfigDir and
// whether the file exists.
func DefaultConfigFile() (string, bool) {
	dir, err := ConfigDir()
	if err != nil {
		return "", false
	}
	path := filepath.Join(dir, ConfigFileName)
	info, err := os.Stat(path)
	return path, err == nil && !info.IsDir()
}
