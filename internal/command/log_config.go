package command

import (
	"flag"
	"fmt"
	"io"

	"github.com/joeycumines/whatsdemo/internal/config"
	"github.com/joeycumines/whatsdemo/internal/logging"
)

// logFlags are the logging flags shared by the long-running commands.
type logFlags struct {
	file  string
	level string
}

func (f *logFlags) setup(fs *flag.FlagSet) {
	fs.StringVar(&f.file, "log-file", "", "Write JSON logs to this file (overrides config log.file)")
	fs.StringVar(&f.level, "log-level", "", "Log level: debug, info, warn, error (overrides config log.level)")
}

// resolveLogging builds the logger for command from flags and config.
// Flag values take precedence over config values. The caller must Close the
// returned logger.
func resolveLogging(flags logFlags, cfg *config.Config, command string) (*logging.Logger, error) {
	schema := config.DefaultSchema()

	levelStr := flags.level
	if levelStr == "" {
		levelStr = schema.ResolveFor(cfg, command, "log.level")
	}
	level, err := logging.ParseLevel(levelStr)
	if err != nil {
		return nil, err
	}

	bufferSize := schema.ResolveInt(cfg, command, "log.buffer-size")
	if bufferSize <= 0 {
		bufferSize = 200
	}

	logPath := flags.file
	if logPath == "" {
		logPath = schema.ResolveFor(cfg, command, "log.file")
	}

	var file io.WriteCloser
	if logPath != "" {
		maxSizeMB := schema.ResolveInt(cfg, command, "log.max-size-mb")
		if maxSizeMB <= 0 {
			maxSizeMB = 10
		}
		// Zero maxFiles is valid (no backups, just truncate on rotate).
		maxFiles := max(schema.ResolveInt(cfg, command, "log.max-files"), 0)

		w, err := logging.NewRotatingFileWriter(logPath, maxSizeMB, maxFiles)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", logPath, err)
		}
		file = w
	}

	return logging.New(logging.Options{
		Level:      level,
		File:       file,
		BufferSize: bufferSize,
	}), nil
}
