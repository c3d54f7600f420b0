package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// StateDirEnv overrides the default state root.
	StateDirEnv = "PROMPTPOLISH_STATE_DIR"

	xdgStateHomeEnv = "XDG_STATE_HOME"
	appName         = "promptpolish"
)

// ResolveStateDir returns the directory holding promptpolish runtime state
// (the handoff file). Resolution order:
//  1. PROMPTPOLISH_STATE_DIR (if set)
//  2. XDG_STATE_HOME/promptpolish (if XDG_STATE_HOME is set)
//  3. os.UserConfigDir()/promptpolish
func ResolveStateDir() (string, error) {
	if override := strings.TrimSpace(os.Getenv(StateDirEnv)); override != "" {
		return filepath.Abs(override)
	}

	if xdg := strings.TrimSpace(os.Getenv(xdgStateHomeEnv)); xdg != "" {
		root, err := filepath.Abs(xdg)
		if err != nil {
			return "", err
		}
		return filepath.Join(root, appName), nil
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine user config directory: %w", err)
	}
	return filepath.Join(configDir, appName), nil
}

// EnsureStateDir resolves the state directory and creates it if missing.
func EnsureStateDir() (string, error) {
	dir, err := ResolveStateDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}
	return dir, nil
}
