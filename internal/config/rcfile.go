package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const rcFile = ".wavehostrc"

// FindRC walks up from startDir looking for a .wavehostrc file.
// Returns the path to the file if found, or empty string and nil if not found.
func FindRC(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	for {
		candidate := filepath.Join(dir, rcFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			return "", nil
		}
		dir = parent
	}
}

// ReadRC reads the sandbox home path from a .wavehostrc file.
// The file is expected to contain just the path (optionally with whitespace).
func ReadRC(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading .wavehostrc: %w", err)
	}
	home := strings.TrimSpace(string(data))
	if home == "" {
		return "", fmt.Errorf(".wavehostrc is empty: %s", path)
	}
	return home, nil
}

// WriteRC writes a sandbox home path to a .wavehostrc file in the given directory.
func WriteRC(dir, home string) error {
	path := filepath.Join(dir, rcFile)
	return os.WriteFile(path, []byte(home+"\n"), 0o644)
}
