// Package recorder captures a live surface into an encoded video file.
//
// While a recording is active three activities run independently of each
// other and of whatever drives the surface's content:
//
//   - the frame loop rasterizes the surface, clears the canvas and draws the
//     scaled still into it, then waits one frame period before the next
//     cycle. A slow rasterization delays later cycles; it never causes a
//     catch-up burst.
//   - the capture stream samples the canvas at the target rate and writes
//     each frame to the encoder.
//   - the elapsed ticker publishes the running time for display.
//
// Stop cancels all three synchronously. Finalization then runs in the
// background: the stream is drained, the encoder flushed, its chunks joined
// into one artifact and delivered to the Sink.
package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/joeycumines/whatsdemo/internal/encoding"
)

// Defaults for Config.
const (
	DefaultFPS             = 15
	DefaultScale           = 2
	DefaultElapsedInterval = 250 * time.Millisecond
	DefaultPrefix          = "whatsdemo"
)

// Surface is something that can be rasterized. Rasterize may be slow; it is
// never called concurrently by one recording.
type Surface interface {
	Bounds() image.Rectangle
	Rasterize(ctx context.Context) (image.Image, error)
}

// Config controls the capture parameters.
type Config struct {
	// FPS is the rate of both the frame loop and the capture stream.
	FPS int
	// Scale enlarges the canvas relative to the surface.
	Scale int
	// ElapsedInterval is how often Elapsed is refreshed.
	ElapsedInterval time.Duration
	// Codecs is the MIME type preference list.
	Codecs []string
	// Prefix starts every file name.
	Prefix string
	// Palette is passed to palette based encoders.
	Palette color.Palette
}

func (c Config) withDefaults() Config {
	if c.FPS <= 0 {
		c.FPS = DefaultFPS
	}
	if c.Scale <= 0 {
		c.Scale = DefaultScale
	}
	if c.ElapsedInterval <= 0 {
		c.ElapsedInterval = DefaultElapsedInterval
	}
	if len(c.Codecs) == 0 {
		c.Codecs = encoding.DefaultPreferences
	}
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	return c
}

// Result describes a finished recording.
type Result struct {
	ID       string
	MimeType string
	// Name is the file name handed to the sink; Location is where the sink
	// put it.
	Name     string
	Location string
	Size     int
	// Frames counts frames written to the encoder, Captures successful
	// rasterizations and CaptureErrors failed ones.
	Frames        int
	Captures      int
	CaptureErrors int
	Duration      time.Duration
	// Err is set if the recording was cut short by the encoder or could not
	// be finalized or delivered. What could be salvaged is still delivered.
	Err error
}

// FileName returns the artifact name for a recording finished at t.
func FileName(prefix string, t time.Time, ext string) string {
	return fmt.Sprintf("%s-%s.%s", prefix, t.Format("20060102-1504"), ext)
}

// Engine records surfaces, one recording at a time. All methods are safe for
// concurrent use.
type Engine struct {
	cfg      Config
	sink     Sink
	registry *encoding.Registry
	clock    clockwork.Clock
	logger   *slog.Logger

	mu        sync.Mutex
	current   *session
	onElapsed []func(time.Duration)
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock behind every timer. Defaults to the real clock.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithRegistry sets the encoders to negotiate from. Defaults to
// encoding.DefaultRegistry("ffmpeg").
func WithRegistry(r *encoding.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithConfig sets the capture parameters. Zero fields keep their defaults.
func WithConfig(c Config) Option {
	return func(e *Engine) { e.cfg = c.withDefaults() }
}

// NewEngine returns an idle engine delivering recordings to sink.
func NewEngine(sink Sink, opts ...Option) *Engine {
	e := &Engine{
		cfg:    Config{}.withDefaults(),
		sink:   sink,
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = encoding.DefaultRegistry("ffmpeg")
	}
	return e
}

// Config returns the capture parameters in use.
func (e *Engine) Config() Config {
	return e.cfg
}

// OnElapsed registers fn to receive the running time on every elapsed tick.
func (e *Engine) OnElapsed(fn func(time.Duration)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onElapsed = append(e.onElapsed, fn)
}

type session struct {
	id      string
	log     *slog.Logger
	mime    string
	ext     string
	surface Surface
	canvas  *Canvas
	enc     encoding.Encoder
	stream  *captureStream
	start   time.Time
	onStop  func(Result)

	ctx    context.Context
	cancel context.CancelFunc
	active atomic.Bool
	loops  sync.WaitGroup

	stopOnce  sync.Once
	finalized chan struct{}
	duration  time.Duration
	cause     error

	elapsed       atomic.Int64
	captures      atomic.Int64
	captureErrors atomic.Int64

	chunksMu sync.Mutex
	chunks   [][]byte
}

func (s *session) appendChunk(b []byte) {
	s.chunksMu.Lock()
	defer s.chunksMu.Unlock()
	s.chunks = append(s.chunks, b)
}

// Start begins recording surface. It does nothing if surface is nil or a
// recording is already active or still finalizing. onStop, if non-nil, is
// called once the recording has been finalized.
//
// If no encoder can be opened the error wraps encoding.ErrUnavailable and
// nothing is left running.
func (e *Engine) Start(surface Surface, onStop func(Result)) error {
	if surface == nil {
		e.logger.Debug("recording not started: no surface")
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil {
		e.logger.Debug("recording not started: already recording", "recording", e.current.id)
		return nil
	}

	bounds := surface.Bounds()
	if bounds.Empty() {
		return fmt.Errorf("recorder: surface has no size")
	}

	s := &session{
		id:        uuid.NewString(),
		surface:   surface,
		canvas:    NewCanvas(bounds, e.cfg.Scale),
		onStop:    onStop,
		finalized: make(chan struct{}),
	}
	s.log = e.logger.With("recording", s.id)

	size := s.canvas.Bounds()
	enc, codec, err := e.registry.Open(encoding.Select(e.cfg.Codecs, e.registry), encoding.Options{
		Width:   size.Dx(),
		Height:  size.Dy(),
		FPS:     e.cfg.FPS,
		OnData:  s.appendChunk,
		Palette: e.cfg.Palette,
		Logger:  s.log,
	})
	if err != nil {
		s.canvas.Release()
		return fmt.Errorf("recorder: %w", err)
	}
	s.enc = enc
	s.mime = codec.MimeType
	s.ext = codec.Extension
	s.start = e.clock.Now()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.active.Store(true)
	s.stream = newCaptureStream(s.canvas, enc, e.clock, e.cfg.FPS, func(err error) {
		s.log.Error("encoder failed, stopping recording", "error", err)
		e.stopSession(s, err)
	})

	e.current = s
	s.loops.Add(3)
	go func() {
		defer s.loops.Done()
		s.stream.run(s.ctx)
	}()
	go func() {
		defer s.loops.Done()
		e.frameLoop(s)
	}()
	go func() {
		defer s.loops.Done()
		e.elapsedLoop(s)
	}()

	s.log.Info("recording started", "mime", s.mime,
		"size", fmt.Sprintf("%dx%d", size.Dx(), size.Dy()), "fps", e.cfg.FPS)
	return nil
}

// frameLoop is the self re-arming capture cycle.
func (e *Engine) frameLoop(s *session) {
	period := time.Second / time.Duration(e.cfg.FPS)
	for {
		if !s.active.Load() {
			return
		}
		e.captureFrame(s)
		if !s.active.Load() {
			return
		}
		timer := e.clock.NewTimer(period)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
		}
	}
}

func (e *Engine) captureFrame(s *session) {
	defer func() {
		if r := recover(); r != nil {
			s.captureErrors.Add(1)
			s.log.Error("error capturing frame", "panic", r)
		}
	}()
	img, err := s.surface.Rasterize(s.ctx)
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		s.captureErrors.Add(1)
		s.log.Error("error capturing frame", "error", err)
		return
	}
	if !s.active.Load() {
		return
	}
	s.canvas.Draw(img)
	s.captures.Add(1)
}

func (e *Engine) elapsedLoop(s *session) {
	ticker := e.clock.NewTicker(e.cfg.ElapsedInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.Chan():
			if !s.active.Load() {
				return
			}
			d := e.clock.Since(s.start)
			s.elapsed.Store(int64(d))
			e.mu.Lock()
			observers := e.onElapsed
			e.mu.Unlock()
			for _, fn := range observers {
				fn(d)
			}
		}
	}
}

// Stop ends the active recording. It is safe to call at any time; extra
// calls do nothing. Finalization continues in the background, see Wait.
func (e *Engine) Stop() {
	e.mu.Lock()
	s := e.current
	e.mu.Unlock()
	if s != nil {
		e.stopSession(s, nil)
	}
}

func (e *Engine) stopSession(s *session, cause error) {
	s.stopOnce.Do(func() {
		s.cancel()
		s.active.Store(false)
		s.duration = e.clock.Since(s.start)
		s.cause = cause
		go e.finalize(s)
	})
}

func (e *Engine) finalize(s *session) {
	defer close(s.finalized)

	s.loops.Wait()
	frames, _ := s.stream.wait()
	s.canvas.Release()

	errs := []error{s.cause}
	if err := s.enc.Close(); err != nil {
		errs = append(errs, fmt.Errorf("finalizing encoder: %w", err))
	}

	s.chunksMu.Lock()
	data := bytes.Join(s.chunks, nil)
	s.chunks = nil
	s.chunksMu.Unlock()

	res := Result{
		ID:            s.id,
		MimeType:      s.mime,
		Name:          FileName(e.cfg.Prefix, e.clock.Now(), s.ext),
		Size:          len(data),
		Frames:        frames,
		Captures:      int(s.captures.Load()),
		CaptureErrors: int(s.captureErrors.Load()),
		Duration:      s.duration,
	}
	if e.sink != nil {
		loc, err := e.sink.Deliver(res.Name, data)
		if err != nil {
			errs = append(errs, err)
		}
		res.Location = loc
	}
	res.Err = errors.Join(errs...)

	e.mu.Lock()
	if e.current == s {
		e.current = nil
	}
	e.mu.Unlock()

	if res.Err != nil {
		s.log.Error("recording finished with errors", "error", res.Err, "location", res.Location)
	} else {
		s.log.Info("recording saved", "location", res.Location, "bytes", res.Size,
			"frames", res.Frames, "duration", res.Duration)
	}
	if s.onStop != nil {
		s.onStop(res)
	}
}

// Wait blocks until the current recording, if any, has been finalized or
// ctx is done. While a recording is still active it waits for someone to
// stop it.
func (e *Engine) Wait(ctx context.Context) error {
	e.mu.Lock()
	s := e.current
	e.mu.Unlock()
	if s == nil {
		return nil
	}
	select {
	case <-s.finalized:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops any recording and waits for it to be finalized.
func (e *Engine) Close() error {
	e.Stop()
	return e.Wait(context.Background())
}

// Recording reports whether a recording exists, from Start until its
// finalization completes.
func (e *Engine) Recording() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != nil
}

// Stopping reports whether a recording has been stopped but not yet
// finalized.
func (e *Engine) Stopping() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != nil && !e.current.active.Load()
}

// Elapsed returns the running time of the current recording as of the last
// elapsed tick. It returns to zero once the recording is finalized.
func (e *Engine) Elapsed() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return 0
	}
	return time.Duration(e.current.elapsed.Load())
}
