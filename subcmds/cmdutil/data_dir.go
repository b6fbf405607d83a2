// Copyright (c) 2026 BVK Chaitanya

package cmdutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultDataDir is the data directory name under the user's home directory.
const DefaultDataDir = ".sigbot"

// DataDir returns the absolute path of the data directory, creating it when
// it doesn't exist. Empty dir selects $HOME/.sigbot.
func DataDir(dir string) (string, error) {
	if len(dir) == 0 {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not determine home directory: %w", err)
		}
		dir = filepath.Join(home, DefaultDataDir)
	}
	if _, err := os.Stat(dir); err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("could not stat data directory %q: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return "", fmt.Errorf("could not create data directory %q: %w", dir, err)
		}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("could not determine data-dir %q absolute path: %w", dir, err)
	}
	return abs, nil
}

func SecretsPath(dataDir string) string {
	return filepath.Join(dataDir, "secrets.json")
}

func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "sigbot.toml")
}

func JournalPath(dataDir string) string {
	return filepath.Join(dataDir, "journal.db")
}

func LockPath(dataDir string) string {
	return filepath.Join(dataDir, "sigbot.lock")
}

func LogsDir(dataDir string) string {
	return filepath.Join(dataDir, "logs")
}

func BadgerDir(dataDir string) string {
	return filepath.Join(dataDir, "badger")
}
