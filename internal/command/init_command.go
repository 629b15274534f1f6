package command

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joeycumines/whatsdemo/internal/config"
	"github.com/joeycumines/whatsdemo/internal/storage"
)

// starterConfig is written by "whatsdemo init". It must pass
// config.ValidateConfig.
const starterConfig = `# whatsdemo configuration file
# One "key value" pair per line. A [play] or [record] section overrides
# the keys above it for that command only.

# Delay between revealed messages (300ms..2s)
playback.speed 900ms

# Recording
record.fps 15
record.scale 2
record.output-dir .
# record.codecs video/webm;codecs=vp9,video/webm;codecs=vp8,image/gif
# record.ffmpeg /usr/local/bin/ffmpeg

# Phone size in terminal cells
phone.width 40
phone.height 30

# log.file ~/.whatsdemo/whatsdemo.log
log.level info

[record]
record.hold 1500ms

[retention]
autoCleanupEnabled false
maxCount 50
`

// InitCommand writes starterConfig to the config location.
type InitCommand struct {
	*BaseCommand
	configPath string
	force      bool
}

// NewInitCommand creates the init command. An empty configPath means
// config.GetConfigPath.
func NewInitCommand(configPath string) *InitCommand {
	return &InitCommand{
		BaseCommand: NewBaseCommand("init", "Write a starter configuration file", "init [options]"),
		configPath:  configPath,
	}
}

func (c *InitCommand) SetupFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.force, "force", false, "Overwrite an existing configuration")
}

func (c *InitCommand) Execute(_ context.Context, args []string, stdout, stderr io.Writer) error {
	if err := rejectArgs(args, stderr); err != nil {
		return err
	}
	path := c.configPath
	if path == "" {
		var err error
		if path, err = config.GetConfigPath(); err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
	}

	if _, err := os.Stat(path); err == nil && !c.force {
		_, _ = fmt.Fprintf(stdout, "Configuration already exists at: %s\nUse --force to overwrite existing configuration\n", path)
		return nil
	}
	if err := storage.AtomicWriteFile(path, []byte(starterConfig), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	// Re-read what was written so a broken starter config is noticed.
	written, err := config.LoadFromPath(path)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Warning: failed to load created config: %v\n", err)
	} else if written.HasWarnings() {
		_, _ = fmt.Fprintf(stderr, "Warning: created config has %d issue(s)\n", len(written.Warnings))
	}
	_, _ = fmt.Fprintf(stdout, "Initialized whatsdemo configuration at: %s\n", path)
	return nil
}
