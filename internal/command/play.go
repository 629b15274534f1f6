package command

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/term"

	"github.com/joeycumines/whatsdemo/internal/chat"
	"github.com/joeycumines/whatsdemo/internal/config"
	"github.com/joeycumines/whatsdemo/internal/storage"
	"github.com/joeycumines/whatsdemo/internal/tui"
)

// ErrNotTerminal is returned by play when stdin or stdout is not a terminal.
var ErrNotTerminal = errors.New("play needs an interactive terminal; use 'whatsdemo record' for headless recording")

// PlayCommand runs the interactive player.
type PlayCommand struct {
	*BaseCommand
	config    *config.Config
	stdin     *os.File
	logFlags  logFlags
	statePath string
	noWatch   bool
	inline    bool
}

// NewPlayCommand creates a new play command reading keys from stdin.
func NewPlayCommand(cfg *config.Config, stdin *os.File) *PlayCommand {
	return &PlayCommand{
		BaseCommand: NewBaseCommand(
			"play",
			"Play the saved conversation on the phone preview (interactive)",
			"play [options]",
		),
		config: cfg,
		stdin:  stdin,
	}
}

// SetupFlags configures the flags for the play command.
func (c *PlayCommand) SetupFlags(fs *flag.FlagSet) {
	c.logFlags.setup(fs)
	fs.StringVar(&c.statePath, "state", "", "State file to play (overrides config state.file)")
	fs.BoolVar(&c.noWatch, "no-watch", false, "Do not reload the script when the state file changes")
	fs.BoolVar(&c.inline, "inline", false, "Render inline instead of on the alternate screen")
}

// Execute runs the player until the user quits.
func (c *PlayCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if err := rejectArgs(args, stderr); err != nil {
		return err
	}
	out, ok := stdout.(*os.File)
	if c.stdin == nil || !term.IsTerminal(int(c.stdin.Fd())) || !ok || !term.IsTerminal(int(out.Fd())) {
		_, _ = fmt.Fprintln(stderr, ErrNotTerminal.Error())
		return ErrNotTerminal
	}

	logger, err := resolveLogging(c.logFlags, c.config, c.Name())
	if err != nil {
		return err
	}
	defer logger.Close()

	store, err := openStore(c.config, c.Name(), c.statePath, logger.Logger)
	if err != nil {
		return err
	}
	s := newStage(c.config, c.Name(), store, logger.Logger, stageOverrides{})
	defer func() {
		if err := s.Close(); err != nil {
			logger.Error("failed to close player", "error", err)
		}
	}()
	defer maybeStartCleanupScheduler(c.config, c.Name(), s, logger.Logger)()

	var watch func(func(chat.Script)) (io.Closer, error)
	if !c.noWatch && config.DefaultSchema().ResolveBool(c.config, c.Name(), "state.watch") {
		watch = func(onChange func(chat.Script)) (io.Closer, error) {
			if err := os.MkdirAll(filepath.Dir(store.Path), 0755); err != nil {
				return nil, err
			}
			w, err := storage.WatchState(store, onChange)
			if err != nil {
				return nil, err
			}
			return w, nil
		}
	}

	logger.Info("player started", "state", store.Path, "messages", s.driver.State().Length)
	return tui.Run(ctx, tui.Options{
		Driver:      s.driver,
		Engine:      s.engine,
		Scene:       s.scene,
		Surface:     s.surface,
		Store:       store,
		Logs:        logger.Buffer,
		Logger:      logger.Logger,
		PhoneWidth:  s.phoneWidth,
		PhoneHeight: s.phoneHeight,
		Input:       c.stdin,
		Output:      out,
		AltScreen:   !c.inline,
	}, watch)
}
