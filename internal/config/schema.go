package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// OptionType names how an option value is parsed.
type OptionType string

const (
	TypeString   OptionType = "string"
	TypeBool     OptionType = "bool"
	TypeInt      OptionType = "int"
	TypeDuration OptionType = "duration"
	// TypeList is comma separated; blank items are dropped.
	TypeList OptionType = "list"
)

// typeCheckers reject values that cannot be parsed as their declared type.
// Types missing from the map accept anything.
var typeCheckers = map[OptionType]func(string) error{
	TypeBool: func(v string) error {
		_, err := parseBool(v)
		return err
	},
	TypeInt: func(v string) error {
		_, err := strconv.Atoi(v)
		return err
	},
	TypeDuration: func(v string) error {
		_, err := time.ParseDuration(v)
		return err
	},
}

// Option is one documented key of the whatsdemo config file.
type Option struct {
	Key         string
	Type        OptionType
	Default     string
	Description string
	// Section is "" for keys that live at the top of the file.
	Section string
	// EnvVar, when set and present in the environment, beats any file value.
	EnvVar string
}

type optionRef struct{ section, key string }

// Schema is the set of options whatsdemo understands, in declaration order.
type Schema struct {
	order []optionRef
	index map[optionRef]Option
}

func newSchema(groups ...[]Option) *Schema {
	s := &Schema{index: make(map[optionRef]Option)}
	for _, group := range groups {
		for _, opt := range group {
			ref := optionRef{opt.Section, opt.Key}
			if _, dup := s.index[ref]; !dup {
				s.order = append(s.order, ref)
			}
			s.index[ref] = opt
		}
	}
	return s
}

// DefaultSchema returns the schema declaring every known whatsdemo option.
func DefaultSchema() *Schema {
	return newSchema(defaultGlobalOptions(), defaultCommandOptions())
}

// Lookup finds key in section ("" for the top level).
func (s *Schema) Lookup(section, key string) *Option {
	if opt, ok := s.index[optionRef{section, key}]; ok {
		return &opt
	}
	return nil
}

// definition is the option governing key inside section. Top level keys may
// be repeated inside any section to override them for one command.
func (s *Schema) definition(section, key string) *Option {
	if opt := s.Lookup(section, key); opt != nil {
		return opt
	}
	return s.Lookup("", key)
}

func (s *Schema) options(section string) []Option {
	var out []Option
	for _, ref := range s.order {
		if ref.section == section {
			out = append(out, s.index[ref])
		}
	}
	return out
}

func (s *Schema) sections() []string {
	var out []string
	for _, ref := range s.order {
		if ref.section != "" && !slices.Contains(out, ref.section) {
			out = append(out, ref.section)
		}
	}
	slices.Sort(out)
	return out
}

// Resolve is ResolveFor without a command section.
func (s *Schema) Resolve(c *Config, key string) string {
	return s.ResolveFor(c, "", key)
}

// ResolveFor returns the effective value of a top level key for command. The
// declared environment variable wins, then the [command] section of c, then
// the top level of c, then the declared default.
func (s *Schema) ResolveFor(c *Config, command, key string) string {
	opt := s.Lookup("", key)
	if opt != nil && opt.EnvVar != "" {
		if v, ok := os.LookupEnv(opt.EnvVar); ok {
			return v
		}
	}
	if c != nil {
		if v, ok := c.GetCommandOption(command, key); ok {
			return v
		}
	}
	if opt == nil {
		return ""
	}
	return opt.Default
}

// resolveParsed parses the resolved value of key, retrying with the declared
// default when the configured value is malformed.
func resolveParsed[T any](s *Schema, c *Config, command, key string, parse func(string) (T, error)) T {
	if v, err := parse(s.ResolveFor(c, command, key)); err == nil {
		return v
	}
	var fallback T
	if opt := s.Lookup("", key); opt != nil {
		if v, err := parse(opt.Default); err == nil {
			fallback = v
		}
	}
	return fallback
}

func (s *Schema) ResolveInt(c *Config, command, key string) int {
	return resolveParsed(s, c, command, key, strconv.Atoi)
}

func (s *Schema) ResolveDuration(c *Config, command, key string) time.Duration {
	return resolveParsed(s, c, command, key, time.ParseDuration)
}

func (s *Schema) ResolveBool(c *Config, command, key string) bool {
	return resolveParsed(s, c, command, key, parseBool)
}

func (s *Schema) ResolveList(c *Config, command, key string) []string {
	var items []string
	for _, item := range strings.Split(s.ResolveFor(c, command, key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// ValidateConfig lists, sorted, every key of c the schema does not declare
// and every value that does not parse as its declared type. An empty result
// means c is valid.
func ValidateConfig(c *Config, s *Schema) []string {
	var issues []string
	for key, value := range c.Global {
		opt := s.Lookup("", key)
		if opt == nil {
			issues = append(issues, fmt.Sprintf("unknown global option: %q (value: %q)", key, value))
		} else if err := validateType(opt.Type, value); err != nil {
			issues = append(issues, fmt.Sprintf("global option %q: %v", key, err))
		}
	}
	for section, values := range c.Commands {
		for key, value := range values {
			opt := s.definition(section, key)
			if opt == nil {
				issues = append(issues, fmt.Sprintf("unknown option for command %q: %q (value: %q)", section, key, value))
			} else if err := validateType(opt.Type, value); err != nil {
				issues = append(issues, fmt.Sprintf("option %q in [%s]: %v", key, section, err))
			}
		}
	}
	slices.Sort(issues)
	return issues
}

func validateType(t OptionType, value string) error {
	switch t {
	case "", TypeString, TypeList:
		return nil
	}
	check, ok := typeCheckers[t]
	if !ok {
		return fmt.Errorf("unknown option type %q", t)
	}
	if check(value) != nil {
		return fmt.Errorf("expected %s, got %q", t, value)
	}
	return nil
}

// FormatHelp renders the reference printed by "whatsdemo config schema".
func (s *Schema) FormatHelp() string {
	var b strings.Builder
	if opts := s.options(""); len(opts) > 0 {
		b.WriteString("Global Options:\n")
		writeOptions(&b, opts)
	}
	for _, section := range s.sections() {
		fmt.Fprintf(&b, "\n[%s] Options:\n", section)
		writeOptions(&b, s.options(section))
	}
	return b.String()
}

func writeOptions(b *strings.Builder, opts []Option) {
	for _, o := range opts {
		var notes []string
		if o.Type != "" && o.Type != TypeString {
			notes = append(notes, "type: "+string(o.Type))
		}
		if o.Default != "" {
			notes = append(notes, "default: "+o.Default)
		}
		if o.EnvVar != "" {
			notes = append(notes, "env: "+o.EnvVar)
		}
		fmt.Fprintf(b, "  %-35s %s", o.Key, o.Description)
		if len(notes) > 0 {
			fmt.Fprintf(b, " (%s)", strings.Join(notes, ", "))
		}
		b.WriteByte('\n')
	}
}

func defaultGlobalOptions() []Option {
	return []Option{
		// Playback
		{Key: "playback.speed", Type: TypeDuration, Default: "900ms", Description: "Delay between revealed messages (clamped to 300ms..2s)", EnvVar: "WHATSDEMO_SPEED"},

		// Recording
		{Key: "record.fps", Type: TypeInt, Default: "15", Description: "Frames captured per second"},
		{Key: "record.scale", Type: TypeInt, Default: "2", Description: "Pixel multiplier applied to the rasterized phone"},
		{Key: "record.elapsed-interval", Type: TypeDuration, Default: "250ms", Description: "Refresh interval of the recording timer"},
		{Key: "record.output-dir", Type: TypeString, Default: ".", Description: "Directory that receives finished recordings", EnvVar: "WHATSDEMO_OUTPUT_DIR"},
		{Key: "record.codecs", Type: TypeList, Default: "video/webm;codecs=vp9,video/webm;codecs=vp8,video/webm", Description: "Preferred MIME types, most preferred first"},
		{Key: "record.prefix", Type: TypeString, Default: "whatsdemo", Description: "File name prefix of recordings"},
		{Key: "record.ffmpeg", Type: TypeString, Default: "ffmpeg", Description: "ffmpeg binary used for WebM encoding", EnvVar: "WHATSDEMO_FFMPEG"},
		{Key: "record.hold", Type: TypeDuration, Default: "1s", Description: "Time the final frame stays on screen in headless recordings"},

		// Phone
		{Key: "phone.width", Type: TypeInt, Default: "40", Description: "Phone width in terminal cells"},
		{Key: "phone.height", Type: TypeInt, Default: "30", Description: "Phone height in terminal cells"},

		// State
		{Key: "state.file", Type: TypeString, Default: "", Description: "Saved script location (default ~/.whatsdemo/state.json)", EnvVar: "WHATSDEMO_STATE"},
		{Key: "state.watch", Type: TypeBool, Default: "true", Description: "Reload the script when the state file changes on disk"},

		// Logging
		{Key: "log.file", Type: TypeString, Default: "", Description: "Log file path (JSON output)", EnvVar: "WHATSDEMO_LOG_FILE"},
		{Key: "log.level", Type: TypeString, Default: "info", Description: "Log level: debug, info, warn, error", EnvVar: "WHATSDEMO_LOG_LEVEL"},
		{Key: "log.max-size-mb", Type: TypeInt, Default: "10", Description: "Max log file size in MB before rotation"},
		{Key: "log.max-files", Type: TypeInt, Default: "5", Description: "Max number of rotated log backup files"},
		{Key: "log.buffer-size", Type: TypeInt, Default: "200", Description: "In-memory log buffer size (entries)"},
	}
}

func defaultCommandOptions() []Option {
	return []Option{
		// [retention] section, parsed into RetentionConfig.
		{Key: "maxAgeDays", Section: "retention", Type: TypeInt, Default: "0", Description: "Remove recordings older than this many days"},
		{Key: "maxCount", Section: "retention", Type: TypeInt, Default: "0", Description: "Maximum number of recordings to keep"},
		{Key: "maxSizeMB", Section: "retention", Type: TypeInt, Default: "0", Description: "Maximum total size of recordings in MB"},
		{Key: "autoCleanupEnabled", Section: "retention", Type: TypeBool, Default: "false", Description: "Prune recordings on startup and periodically"},
		{Key: "cleanupIntervalHours", Section: "retention", Type: TypeInt, Default: "24", Description: "Hours between automatic cleanup runs"},
	}
}
