package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment variables that override the default locations.
const (
	EnvConfigPath = "PACKSYNC_CONFIG_PATH"
	EnvHome       = "PACKSYNC_HOME"
)

// GetDefaults returns application default paths, checking environment variables first.
//   - PACKSYNC_CONFIG_PATH: config file location (default: ~/.config/packsync.toml)
//   - PACKSYNC_HOME: base directory for data (default: ~/.local/share/packsync)
func GetDefaults() (map[string]string, error) {
	configPath, err := fromEnvOrHome(EnvConfigPath, ".config", "packsync.toml")
	if err != nil {
		return nil, err
	}
	baseDir, err := fromEnvOrHome(EnvHome, ".local", "share", "packsync")
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// fromEnvOrHome returns the value of env, or the path under the user's home dir.
func fromEnvOrHome(env string, elem ...string) (string, error) {
	if path := os.Getenv(env); path != "" {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{homeDir}, elem...)...), nil
}
