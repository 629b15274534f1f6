package command

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/joeycumines/whatsdemo/internal/config"
	"github.com/joeycumines/whatsdemo/internal/encoding"
	"github.com/joeycumines/whatsdemo/internal/storage"
)

// newCleaner builds the retention cleaner for the recordings produced by
// command.
func newCleaner(cfg *config.Config, command, dir string, registry *encoding.Registry) *storage.Cleaner {
	return &storage.Cleaner{
		Dir:        dir,
		Prefix:     config.DefaultSchema().ResolveFor(cfg, command, "record.prefix"),
		Extensions: recordingExtensions(registry),
		MaxAgeDays: cfg.Retention.MaxAgeDays,
		MaxCount:   cfg.Retention.MaxCount,
		MaxSizeMB:  cfg.Retention.MaxSizeMB,
	}
}

// maybeStartCleanupScheduler starts a background cleanup scheduler if
// automatic cleanup is enabled in the configuration. It returns a stop
// function that cancels the scheduler; callers must defer it.
//
// When cfg is nil, or AutoCleanupEnabled is false, the returned stop
// function is a no-op.
func maybeStartCleanupScheduler(cfg *config.Config, command string, s *stage, logger *slog.Logger) (stop func()) {
	if cfg == nil || !cfg.Retention.AutoCleanupEnabled {
		return func() {}
	}

	scheduler := &storage.CleanupScheduler{
		Cleaner:  newCleaner(cfg, command, s.outputDir, s.registry),
		Interval: time.Duration(cfg.Retention.CleanupIntervalHours) * time.Hour,
		OnReport: func(report *storage.CleanupReport, err error) {
			if err != nil {
				logger.Warn("recording cleanup failed", "dir", s.outputDir, "error", err)
				return
			}
			if len(report.Removed) > 0 || len(report.Skipped) > 0 {
				logger.Info("pruned old recordings", "dir", s.outputDir, "removed", len(report.Removed), "skipped", len(report.Skipped))
			}
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		scheduler.Run(ctx)
	}()

	return func() {
		cancel()
		<-done
	}
}

// CleanupCommand applies the retention policy to the output directory once.
type CleanupCommand struct {
	*BaseCommand
	config *config.Config
	dir    string
	dryRun bool
}

// NewCleanupCommand creates a new cleanup command.
func NewCleanupCommand(cfg *config.Config) *CleanupCommand {
	return &CleanupCommand{
		BaseCommand: NewBaseCommand(
			"cleanup",
			"Remove old recordings according to the [retention] settings",
			"cleanup [options]",
		),
		config: cfg,
	}
}

// SetupFlags configures the flags for the cleanup command.
func (c *CleanupCommand) SetupFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.dir, "dir", "", "Recordings directory (overrides config record.output-dir)")
	fs.BoolVar(&c.dryRun, "dry-run", false, "List what would be removed without removing it")
}

// Execute runs one cleanup pass.
func (c *CleanupCommand) Execute(_ context.Context, args []string, stdout, stderr io.Writer) error {
	if err := rejectArgs(args, stderr); err != nil {
		return err
	}
	schema := config.DefaultSchema()
	dir := c.dir
	if dir == "" {
		dir = schema.ResolveFor(c.config, "record", "record.output-dir")
	}
	registry := encoding.DefaultRegistry(schema.ResolveFor(c.config, "record", "record.ffmpeg"))

	cleaner := newCleaner(c.config, "record", dir, registry)
	cleaner.DryRun = c.dryRun
	if cleaner.MaxAgeDays <= 0 && cleaner.MaxCount <= 0 && cleaner.MaxSizeMB <= 0 {
		_, _ = fmt.Fprintln(stdout, "No retention limits configured; set maxAgeDays, maxCount or maxSizeMB under [retention].")
		return nil
	}

	report, err := cleaner.ExecuteCleanup()
	if err != nil {
		return err
	}
	verb := "Removed"
	if c.dryRun {
		verb = "Would remove"
	}
	for _, name := range report.Removed {
		_, _ = fmt.Fprintf(stdout, "%s %s\n", verb, name)
	}
	for _, name := range report.Skipped {
		_, _ = fmt.Fprintf(stderr, "Could not remove %s\n", name)
	}
	_, _ = fmt.Fprintf(stdout, "%s %d recording(s) from %s\n", verb, len(report.Removed), dir)
	return nil
}
