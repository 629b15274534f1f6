package command

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/joeycumines/whatsdemo/internal/config"
)

const configUsageText = `Configuration management:
  config <key>                  - Get configuration value
  config <key> <value>          - Set configuration value
  config --section s <key> <v>  - Set a value inside [s]
  config --global               - Show global configuration
  config --all                  - Show all configuration
  config validate               - Validate configuration
  config schema                 - Show configuration schema
`

// ConfigCommand reads and edits the config file. Writes update the loaded
// Config and are persisted to configPath, keeping the rest of the file as is.
type ConfigCommand struct {
	*BaseCommand
	config     *config.Config
	configPath string

	showGlobal bool
	showAll    bool
	section    string
}

// NewConfigCommand creates the config command. An empty configPath persists
// to config.GetConfigPath.
func NewConfigCommand(cfg *config.Config, configPath string) *ConfigCommand {
	return &ConfigCommand{
		BaseCommand: NewBaseCommand("config", "Manage configuration settings", "config [options] [key] [value]"),
		config:      cfg,
		configPath:  configPath,
	}
}

func (c *ConfigCommand) SetupFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.showGlobal, "global", false, "Show only global configuration")
	fs.BoolVar(&c.showAll, "all", false, "Show all configuration (global and section-specific)")
	fs.StringVar(&c.section, "section", "", "Read or write the option inside this [section]")
}

func (c *ConfigCommand) Execute(_ context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		c.show(stdout)
		return nil
	}
	schema := config.DefaultSchema()
	switch {
	case args[0] == "validate":
		c.validate(stdout)
		return nil
	case args[0] == "schema":
		_, _ = fmt.Fprint(stdout, schema.FormatHelp())
		return nil
	case len(args) == 1:
		c.get(stdout, schema, args[0])
		return nil
	case len(args) == 2:
		c.set(stdout, stderr, args[0], args[1])
		return nil
	}
	_, _ = fmt.Fprintln(stderr, "Invalid number of arguments")
	return errors.New("invalid arguments")
}

func (c *ConfigCommand) show(w io.Writer) {
	if !c.showAll && !c.showGlobal {
		_, _ = fmt.Fprint(w, configUsageText)
		return
	}
	_, _ = fmt.Fprintln(w, "Global configuration:")
	printOptions(w, "  ", c.config.Global)
	if !c.showAll {
		return
	}
	_, _ = fmt.Fprintln(w, "\nSection configuration:")
	for _, section := range slices.Sorted(maps.Keys(c.config.Commands)) {
		_, _ = fmt.Fprintf(w, "  [%s]\n", section)
		printOptions(w, "    ", c.config.Commands[section])
	}
}

// get prints the value a command would see for key, so environment overrides
// and defaults show up too.
func (c *ConfigCommand) get(w io.Writer, schema *config.Schema, key string) {
	if c.section == "" && schema.Lookup("", key) == nil {
		if _, ok := c.config.GetGlobalOption(key); !ok {
			_, _ = fmt.Fprintf(w, "Configuration key '%s' not found\n", key)
			return
		}
	}
	_, _ = fmt.Fprintf(w, "%s: %s\n", key, schema.ResolveFor(c.config, c.section, key))
}

func (c *ConfigCommand) set(stdout, stderr io.Writer, key, value string) {
	if c.section == "" {
		c.config.SetGlobalOption(key, value)
	} else {
		c.config.SetCommandOption(c.section, key, value)
	}

	path := c.configPath
	if path == "" {
		path, _ = config.GetConfigPath()
	}
	if path != "" {
		var err error
		if c.section == "" {
			err = config.SetKeyInFile(path, key, value)
		} else {
			err = config.SetOptionInFile(path, c.section, key, value)
		}
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Warning: failed to persist config to disk: %v\n", err)
		}
	}
	_, _ = fmt.Fprintf(stdout, "Set configuration: %s = %s\n", key, value)
}

func (c *ConfigCommand) validate(w io.Writer) {
	issues := config.ValidateConfig(c.config, config.DefaultSchema())
	if len(issues) == 0 {
		_, _ = fmt.Fprintln(w, "Configuration is valid.")
		return
	}
	_, _ = fmt.Fprintf(w, "Configuration has %d issue(s):\n", len(issues))
	for _, issue := range issues {
		_, _ = fmt.Fprintf(w, "  - %s\n", issue)
	}
}

func printOptions(w io.Writer, indent string, opts map[string]string) {
	for _, key := range slices.Sorted(maps.Keys(opts)) {
		_, _ = fmt.Fprintf(w, "%s%s: %s\n", indent, key, opts[key])
	}
}
