package command

import (
	"context"
	"flag"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/joeycumines/whatsdemo/internal/config"
	"github.com/joeycumines/whatsdemo/internal/playback"
	"github.com/joeycumines/whatsdemo/internal/recorder"
)

// RecordCommand plays the saved conversation from the start while recording
// it, without a terminal UI.
type RecordCommand struct {
	*BaseCommand
	config    *config.Config
	overrides stageOverrides

	logFlags  logFlags
	statePath string
	outDir    string
	codec     string
	speed     time.Duration
	hold      time.Duration
	quiet     bool
}

// NewRecordCommand creates a new record command.
func NewRecordCommand(cfg *config.Config) *RecordCommand {
	return &RecordCommand{
		BaseCommand: NewBaseCommand(
			"record",
			"Record the saved conversation to a video file (headless)",
			"record [options]",
		),
		config: cfg,
	}
}

// SetupFlags configures the flags for the record command.
func (c *RecordCommand) SetupFlags(fs *flag.FlagSet) {
	c.logFlags.setup(fs)
	fs.StringVar(&c.statePath, "state", "", "State file to record (overrides config state.file)")
	fs.StringVar(&c.outDir, "out", "", "Output directory (overrides config record.output-dir)")
	fs.StringVar(&c.codec, "codec", "", "Preferred MIME type, e.g. image/gif (overrides config record.codecs)")
	fs.DurationVar(&c.speed, "speed", 0, "Delay between messages (overrides config playback.speed)")
	fs.DurationVar(&c.hold, "hold", -1, "How long the last frame stays on screen (overrides config record.hold)")
	fs.BoolVar(&c.quiet, "quiet", false, "Only print the saved file location")
}

// Execute records one full playback.
func (c *RecordCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if err := rejectArgs(args, stderr); err != nil {
		return err
	}

	cfg := c.config
	logger, err := resolveLogging(c.logFlags, cfg, c.Name())
	if err != nil {
		return err
	}
	defer logger.Close()

	store, err := openStore(cfg, c.Name(), c.statePath, logger.Logger)
	if err != nil {
		return err
	}
	o := c.overrides
	o.outputDir = c.outDir
	o.speed = c.speed
	if c.codec != "" {
		o.codecs = []string{c.codec}
	}
	s := newStage(cfg, c.Name(), store, logger.Logger, o)
	defer func() {
		if err := s.Close(); err != nil {
			logger.Error("failed to close recorder", "error", err)
		}
	}()
	defer maybeStartCleanupScheduler(cfg, c.Name(), s, logger.Logger)()

	hold := c.hold
	if hold < 0 {
		hold = config.DefaultSchema().ResolveDuration(cfg, c.Name(), "record.hold")
	}

	// Reveals are reported from the driver's timer goroutine.
	var mu sync.Mutex
	say := func(format string, args ...any) {
		if c.quiet {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		_, _ = fmt.Fprintf(stderr, format, args...)
	}

	finished := make(chan struct{}, 1)
	s.driver.OnChange(func(st playback.State) {
		if st.VisibleCount > 0 {
			say("revealed %d/%d\n", st.VisibleCount, st.Length)
		}
		if st.AtEnd() && !st.Playing {
			select {
			case finished <- struct{}{}:
			default:
			}
		}
	})

	s.driver.Reset()

	done := make(chan recorder.Result, 1)
	if err := s.engine.Start(s.surface, func(r recorder.Result) { done <- r }); err != nil {
		return err
	}
	st := s.driver.State()
	say("recording %d messages at %s per message\n", st.Length, st.Speed)
	s.driver.Play()
	// Play on an empty script leaves the state unchanged, so no observer
	// fires.
	if st := s.driver.State(); st.AtEnd() && !st.Playing {
		select {
		case finished <- struct{}{}:
		default:
		}
	}

	select {
	case <-finished:
		select {
		case <-s.clock.After(hold):
		case <-ctx.Done():
		}
	case <-ctx.Done():
		say("interrupted, saving what was recorded\n")
	}
	s.driver.Pause()
	s.engine.Stop()

	res := <-done
	if res.Location != "" {
		if c.quiet {
			_, _ = fmt.Fprintln(stdout, res.Location)
		} else {
			_, _ = fmt.Fprintf(stdout, "Saved %s (%s, %d frames, %s)\n", res.Location, res.MimeType, res.Frames, res.Duration.Round(time.Millisecond))
		}
	}
	if res.Err != nil {
		return fmt.Errorf("recording failed: %w", res.Err)
	}
	return nil
}
