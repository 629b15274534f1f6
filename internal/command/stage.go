package command

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/joeycumines/whatsdemo/internal/chat"
	"github.com/joeycumines/whatsdemo/internal/config"
	"github.com/joeycumines/whatsdemo/internal/encoding"
	"github.com/joeycumines/whatsdemo/internal/playback"
	"github.com/joeycumines/whatsdemo/internal/preview"
	"github.com/joeycumines/whatsdemo/internal/raster"
	"github.com/joeycumines/whatsdemo/internal/recorder"
	"github.com/joeycumines/whatsdemo/internal/storage"
)

// stageOverrides replace parts of a stage built from config. Zero fields
// keep the configured behavior.
type stageOverrides struct {
	clock    clockwork.Clock
	registry *encoding.Registry
	sink     recorder.Sink

	outputDir string
	codecs    []string
	speed     time.Duration
}

// stage is everything a playback session needs: the persisted script, the
// driver revealing it, the scene and surface showing it and the engine
// recording that surface.
type stage struct {
	clock   clockwork.Clock
	store   *storage.StateStore
	scene   *preview.Scene
	driver  *playback.Driver
	surface *preview.Surface
	engine  *recorder.Engine

	// registry holds the codecs the engine negotiates from.
	registry *encoding.Registry

	outputDir   string
	phoneWidth  int
	phoneHeight int
}

// openStore returns the state store configured for command. statePath
// overrides state.file.
func openStore(cfg *config.Config, command, statePath string, logger *slog.Logger) (*storage.StateStore, error) {
	if statePath == "" {
		statePath = config.DefaultSchema().ResolveFor(cfg, command, "state.file")
	}
	if statePath == "" {
		var err error
		if statePath, err = config.DefaultStatePath(); err != nil {
			return nil, fmt.Errorf("failed to resolve state path: %w", err)
		}
	}
	return &storage.StateStore{Path: statePath, Logger: logger}, nil
}

// loadScript returns the saved script, or the default one when nothing
// valid is saved.
func loadScript(store *storage.StateStore) chat.Script {
	if s := store.Load(); s != nil {
		return *s
	}
	return chat.DefaultScript()
}

func newStage(cfg *config.Config, command string, store *storage.StateStore, logger *slog.Logger, o stageOverrides) *stage {
	schema := config.DefaultSchema()
	clock := o.clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	outputDir := o.outputDir
	if outputDir == "" {
		outputDir = schema.ResolveFor(cfg, command, "record.output-dir")
	}
	codecs := o.codecs
	if len(codecs) == 0 {
		codecs = schema.ResolveList(cfg, command, "record.codecs")
	}
	speed := o.speed
	if speed <= 0 {
		speed = schema.ResolveDuration(cfg, command, "playback.speed")
	}

	script := loadScript(store)
	s := &stage{
		clock:       clock,
		store:       store,
		outputDir:   outputDir,
		phoneWidth:  schema.ResolveInt(cfg, command, "phone.width"),
		phoneHeight: schema.ResolveInt(cfg, command, "phone.height"),
	}
	s.scene = preview.NewScene(script)
	s.driver = playback.NewDriver(len(script.Messages),
		playback.WithClock(clock),
		playback.WithSpeed(speed),
		playback.WithLogger(logger),
	)
	s.scene.Follow(s.driver)
	s.surface = preview.NewSurface(s.scene, s.phoneWidth, s.phoneHeight)

	s.registry = o.registry
	if s.registry == nil {
		s.registry = encoding.DefaultRegistry(schema.ResolveFor(cfg, command, "record.ffmpeg"))
	}
	sink := o.sink
	if sink == nil {
		sink = recorder.DirSink{Dir: s.outputDir}
	}
	s.engine = recorder.NewEngine(sink,
		recorder.WithClock(clock),
		recorder.WithLogger(logger),
		recorder.WithRegistry(s.registry),
		recorder.WithConfig(recorder.Config{
			FPS:             schema.ResolveInt(cfg, command, "record.fps"),
			Scale:           schema.ResolveInt(cfg, command, "record.scale"),
			ElapsedInterval: schema.ResolveDuration(cfg, command, "record.elapsed-interval"),
			Codecs:          codecs,
			Prefix:          schema.ResolveFor(cfg, command, "record.prefix"),
			Palette:         raster.Palette,
		}),
	)
	return s
}

// recordingExtensions lists the file extensions registry can produce, with
// the leading dot, for retention scans.
func recordingExtensions(registry *encoding.Registry) []string {
	var exts []string
	for _, mime := range registry.MimeTypes() {
		if c, ok := registry.Lookup(mime); ok && !slices.Contains(exts, "."+c.Extension) {
			exts = append(exts, "."+c.Extension)
		}
	}
	return exts
}

// Close stops playback and waits for any recording to be delivered.
func (s *stage) Close() error {
	s.driver.Close()
	return s.engine.Close()
}
