package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joeycumines/whatsdemo/internal/storage"
)

// SetKeyInFile sets a global option in the config file at path, preserving
// every other line. See SetOptionInFile.
func SetKeyInFile(path, key, value string) error {
	return SetOptionInFile(path, "", key, value)
}

// SetOptionInFile updates or adds key in the given section ("" for the
// global section) of the config file at path. An existing line for the key
// is replaced in place; otherwise the line is appended to the end of the
// section, creating the section header if needed. Comments and unrelated
// lines are kept. The file is written atomically.
func SetOptionInFile(path, section, key, value string) error {
	if key == "" || strings.ContainsAny(key, " \t\n") {
		return fmt.Errorf("invalid option name %q", key)
	}
	if strings.Contains(value, "\n") {
		return fmt.Errorf("option %q: value must be a single line", key)
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config file: %w", err)
	}

	var lines []string
	if len(data) > 0 {
		lines = strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	}

	newLine := key
	if value != "" {
		newLine = key + " " + value
	}

	current := ""
	// insertAt is the index after the last non-blank line of the target section.
	insertAt := -1
	if section == "" {
		insertAt = 0
	}
	replaced := false

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			current = strings.Trim(trimmed, "[]")
			if current == section {
				insertAt = i + 1
			}
			continue
		}
		if current != section {
			continue
		}
		if trimmed == "" {
			continue
		}
		insertAt = i + 1
		if strings.HasPrefix(trimmed, "#") {
			continue
		}
		if name, _, _ := strings.Cut(trimmed, " "); name == key {
			lines[i] = newLine
			replaced = true
			break
		}
	}

	if !replaced {
		switch {
		case insertAt < 0:
			if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) != "" {
				lines = append(lines, "")
			}
			lines = append(lines, "["+section+"]", newLine)
		default:
			lines = append(lines[:insertAt], append([]string{newLine}, lines[insertAt:]...)...)
		}
	}

	return storage.AtomicWriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644)
}
