// Package config loads the whatsdemo configuration file.
//
// The file holds one "key value" pair per line. Lines starting with "#" are
// comments and "[name]" starts a section. Keys above the first section apply
// to every command; a command section such as [record] overrides them for
// that command only. The [retention] section bounds the recordings kept in
// the output directory and is parsed strictly.
package config

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

const retentionSection = "retention"

// Config is a parsed configuration file.
type Config struct {
	// Global holds the keys above the first section.
	Global map[string]string
	// Commands holds per-command overrides, keyed by section name.
	Commands  map[string]map[string]string
	Retention RetentionConfig
	// Warnings lists unknown keys and malformed values found while loading.
	// They never stop the program.
	Warnings []string
}

func NewConfig() *Config {
	return &Config{
		Global:    make(map[string]string),
		Commands:  make(map[string]map[string]string),
		Retention: RetentionConfig{CleanupIntervalHours: 24},
		Warnings:  make([]string, 0),
	}
}

// RetentionConfig bounds how many recordings accumulate in the output
// directory. A zero limit disables that rule.
type RetentionConfig struct {
	MaxAgeDays int `json:"maxAgeDays" default:"0"`
	MaxCount   int `json:"maxCount" default:"0"`
	MaxSizeMB  int `json:"maxSizeMb" default:"0"`
	// AutoCleanupEnabled makes the record and play commands prune the output
	// directory on startup and then every CleanupIntervalHours.
	AutoCleanupEnabled   bool `json:"autoCleanupEnabled" default:"false"`
	CleanupIntervalHours int  `json:"cleanupIntervalHours" default:"24"`
}

// Load reads the file named by GetConfigPath.
func Load() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}
	return LoadFromPath(path)
}

// LoadFromPath reads the config at path. A missing file is an empty config;
// a symlink is an error.
func LoadFromPath(path string) (*Config, error) {
	fi, err := os.Lstat(path)
	switch {
	case os.IsNotExist(err):
		return NewConfig(), nil
	case err != nil:
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	case fi.Mode()&os.ModeSymlink != 0:
		return nil, fmt.Errorf("symlink not allowed in config path: %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()
	return LoadFromReader(f)
}

// LoadFromReader parses a config. Only a malformed [retention] entry or a
// read error fails the load; everything else becomes a warning.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := NewConfig()
	section := ""
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		if name, ok := sectionHeader(line); ok {
			section = name
			if section != retentionSection && cfg.Commands[section] == nil {
				cfg.Commands[section] = make(map[string]string)
			}
			continue
		}

		key, value, _ := strings.Cut(line, " ")
		value = strings.TrimSpace(value)
		switch section {
		case retentionSection:
			if err := cfg.Retention.set(key, value); err != nil {
				return nil, fmt.Errorf("invalid retention option %q: %w", key, err)
			}
		case "":
			cfg.Global[key] = value
		default:
			cfg.Commands[section][key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	for _, issue := range ValidateConfig(cfg, DefaultSchema()) {
		cfg.Warnings = append(cfg.Warnings, issue)
		slog.Warn("config: " + issue)
	}
	return cfg, nil
}

func sectionHeader(line string) (string, bool) {
	if len(line) < 2 || line[0] != '[' || line[len(line)-1] != ']' {
		return "", false
	}
	return strings.TrimSpace(line[1 : len(line)-1]), true
}

// set applies one [retention] line.
func (rc *RetentionConfig) set(key, value string) error {
	if key == "autoCleanupEnabled" {
		enabled, err := parseBool(value)
		if err != nil {
			return err
		}
		rc.AutoCleanupEnabled = enabled
		return nil
	}

	limits := map[string]struct {
		dst *int
		min int
	}{
		"maxAgeDays":           {&rc.MaxAgeDays, 0},
		"maxCount":             {&rc.MaxCount, 0},
		"maxSizeMB":            {&rc.MaxSizeMB, 0},
		"cleanupIntervalHours": {&rc.CleanupIntervalHours, 1},
	}
	limit, ok := limits[key]
	if !ok {
		return fmt.Errorf("unknown retention option: %s", key)
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer value %q: %w", value, err)
	}
	if n < limit.min {
		return fmt.Errorf("%s must be at least %d, got %d", key, limit.min, n)
	}
	*limit.dst = n
	return nil
}

// parseBool accepts true/false, 1/0, yes/no and on/off in any case.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean value: %s", s)
}

func (c *Config) GetGlobalOption(key string) (string, bool) {
	v, ok := c.Global[key]
	return v, ok
}

// GetCommandOption looks key up in the command section first and then at the
// top level.
func (c *Config) GetCommandOption(command, key string) (string, bool) {
	if v, ok := c.Commands[command][key]; ok {
		return v, true
	}
	return c.GetGlobalOption(key)
}

func (c *Config) SetGlobalOption(key, value string) {
	c.Global[key] = value
}

func (c *Config) SetCommandOption(command, key, value string) {
	if c.Commands[command] == nil {
		c.Commands[command] = make(map[string]string)
	}
	c.Commands[command][key] = value
}

func (c *Config) HasWarnings() bool {
	return len(c.Warnings) > 0
}
