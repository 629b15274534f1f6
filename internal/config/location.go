package config

import (
	"os"
	"path/filepath"
)

// ConfigEnvVar overrides the configuration file location.
const ConfigEnvVar = "WHATSDEMO_CONFIG"

// GetConfigPath returns $WHATSDEMO_CONFIG if set, else ~/.whatsdemo/config.
func GetConfigPath() (string, error) {
	if configPath := os.Getenv(ConfigEnvVar); configPath != "" {
		return configPath, nil
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config"), nil
}

// DataDir is the directory holding the config file, the saved state and the
// default log file: ~/.whatsdemo.
func DataDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".whatsdemo"), nil
}

// DefaultStatePath is where the current script is persisted unless
// state.file says otherwise.
func DefaultStatePath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "state.json"), nil
}
