package config

import (
	"fmt"
	"os"
)

// ResolveHome determines which directory a sandbox guest is rooted at.
// Precedence:
//  1. flagHome (from --home flag)
//  2. envHome (from WAVEHOST_HOME env var)
//  3. .wavehostrc walk-up from cwd
//  4. config.toml default_home
func ResolveHome(flagHome, envHome string) (string, error) {
	// 1. Explicit flag
	if flagHome != "" {
		return flagHome, nil
	}

	// 2. Environment variable
	if envHome != "" {
		return envHome, nil
	}

	// 3. .wavehostrc walk-up
	cwd, err := os.Getwd()
	if err == nil {
		if rcPath, err := FindRC(cwd); err == nil && rcPath != "" {
			if home, err := ReadRC(rcPath); err == nil {
				return home, nil
			}
		}
	}

	// 4. config.toml default_home
	cfg, err := Load()
	if err == nil && cfg.DefaultHome != "" {
		return cfg.DefaultHome, nil
	}

	return "", fmt.Errorf("no sandbox home configured; use --home, set WAVEHOST_HOME, create .wavehostrc, or set default_home in config.toml")
}
