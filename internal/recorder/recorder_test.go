package recorder

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/whatsdemo/internal/encoding"
)

const testMime = "video/x-test"

var epoch = time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)

type fakeSurface struct {
	bounds image.Rectangle

	mu          sync.Mutex
	calls       int
	inFlight    int
	maxInFlight int
	fail        func(call int) error
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{bounds: image.Rect(0, 0, 5, 3)}
}

func (f *fakeSurface) Bounds() image.Rectangle { return f.bounds }

func (f *fakeSurface) Rasterize(ctx context.Context) (image.Image, error) {
	f.mu.Lock()
	f.calls++
	f.inFlight++
	f.maxInFlight = max(f.maxInFlight, f.inFlight)
	call := f.calls
	fail := f.fail
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()
	if fail != nil {
		if err := fail(call); err != nil {
			return nil, err
		}
	}
	img := image.NewRGBA(f.bounds)
	img.Set(0, 0, color.White)
	return img, nil
}

func (f *fakeSurface) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeSurface) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

// testEncoder emits one byte per frame and "end" on Close.
type testEncoder struct {
	opts      encoding.Options
	failAt    int
	closeGate chan struct{}

	mu     sync.Mutex
	frames []time.Duration
	closed int
}

func (e *testEncoder) WriteFrame(img image.Image, at time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frames = append(e.frames, at)
	if e.failAt > 0 && len(e.frames) >= e.failAt {
		return errors.New("disk full")
	}
	e.opts.OnData([]byte{'f'})
	return nil
}

func (e *testEncoder) Close() error {
	if e.closeGate != nil {
		<-e.closeGate
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed++
	e.opts.OnData([]byte("end"))
	return nil
}

func (e *testEncoder) Frames() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.frames)
}

type harness struct {
	t       *testing.T
	clock   clockwork.FakeClock
	engine  *Engine
	surface *fakeSurface

	mu       sync.Mutex
	encoders []*testEncoder
	results  []Result
	sunk     map[string][]byte

	configure func(*testEncoder)
}

func newHarness(t *testing.T, cfg Config) *harness {
	h := &harness{
		t:       t,
		clock:   clockwork.NewFakeClockAt(epoch),
		surface: newFakeSurface(),
		sunk:    map[string][]byte{},
	}
	reg := encoding.NewRegistry()
	reg.Register(encoding.Codec{
		MimeType:  testMime,
		Extension: "test",
		New: func(opts encoding.Options) (encoding.Encoder, error) {
			enc := &testEncoder{opts: opts}
			h.mu.Lock()
			defer h.mu.Unlock()
			if h.configure != nil {
				h.configure(enc)
			}
			h.encoders = append(h.encoders, enc)
			return enc, nil
		},
	})
	sink := SinkFunc(func(name string, data []byte) (string, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.sunk[name] = data
		return "mem://" + name, nil
	})
	if cfg.FPS == 0 {
		cfg.FPS = 10
	}
	h.engine = NewEngine(sink, WithClock(h.clock), WithRegistry(reg), WithConfig(cfg))
	t.Cleanup(func() { _ = h.engine.Close() })
	return h
}

func (h *harness) onStop(r Result) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, r)
}

func (h *harness) start() {
	h.t.Helper()
	require.NoError(h.t, h.engine.Start(h.surface, h.onStop))
	require.True(h.t, h.engine.Recording())
}

func (h *harness) resultCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.results)
}

func (h *harness) encoder(i int) *testEncoder {
	h.mu.Lock()
	defer h.mu.Unlock()
	require.Greater(h.t, len(h.encoders), i)
	return h.encoders[i]
}

// advanceUntil moves the fake clock one step per poll until cond holds.
func (h *harness) advanceUntil(step time.Duration, cond func() bool) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		if cond() {
			return true
		}
		h.clock.Advance(step)
		return false
	}, 5*time.Second, time.Millisecond)
}

func (h *harness) stopAndWait() Result {
	h.t.Helper()
	h.engine.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(h.t, h.engine.Wait(ctx))
	h.mu.Lock()
	defer h.mu.Unlock()
	require.NotEmpty(h.t, h.results)
	return h.results[len(h.results)-1]
}

// requireNoTimers fails unless every timer and ticker on the clock is gone.
func (h *harness) requireNoTimers() {
	h.t.Helper()
	done := make(chan struct{})
	go func() {
		h.clock.BlockUntil(0)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		h.t.Fatal("timers still armed after the recording finished")
	}
}

func TestEngine_RecordsAndDelivers(t *testing.T) {
	h := newHarness(t, Config{FPS: 10, Prefix: "demo"})
	h.start()

	h.advanceUntil(100*time.Millisecond, func() bool {
		return h.surface.Calls() >= 4 && h.encoder(0).Frames() >= 3
	})
	res := h.stopAndWait()

	assert.False(t, h.engine.Recording())
	assert.Zero(t, h.engine.Elapsed())
	assert.NoError(t, res.Err)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, testMime, res.MimeType)
	assert.Equal(t, FileName("demo", h.clock.Now(), "test"), res.Name)
	assert.Equal(t, "mem://"+res.Name, res.Location)
	assert.GreaterOrEqual(t, res.Frames, 3)
	assert.GreaterOrEqual(t, res.Captures, 3)
	assert.Zero(t, res.CaptureErrors)

	enc := h.encoder(0)
	assert.Equal(t, 1, enc.closed)
	assert.Equal(t, 10, enc.opts.Width, "surface width times the default scale")
	assert.Equal(t, 6, enc.opts.Height)
	assert.Equal(t, 10, enc.opts.FPS)

	h.mu.Lock()
	data := h.sunk[res.Name]
	h.mu.Unlock()
	assert.Equal(t, append(bytes.Repeat([]byte{'f'}, res.Frames), "end"...), data, "chunks are joined in order")
	assert.Equal(t, len(data), res.Size)

	h.requireNoTimers()
}

func TestEngine_FrameOffsetsFollowTheClock(t *testing.T) {
	h := newHarness(t, Config{FPS: 10})
	h.start()
	h.advanceUntil(100*time.Millisecond, func() bool { return h.encoder(0).Frames() >= 4 })
	h.stopAndWait()

	enc := h.encoder(0)
	enc.mu.Lock()
	defer enc.mu.Unlock()
	require.GreaterOrEqual(t, len(enc.frames), 4)
	for i := 1; i < len(enc.frames); i++ {
		assert.GreaterOrEqual(t, enc.frames[i], enc.frames[i-1])
	}
}

func TestEngine_StartIsInertWhenBusyOrWithoutSurface(t *testing.T) {
	h := newHarness(t, Config{})

	require.NoError(t, h.engine.Start(nil, nil))
	assert.False(t, h.engine.Recording())

	h.start()
	other := newFakeSurface()
	require.NoError(t, h.engine.Start(other, nil))
	h.advanceUntil(100*time.Millisecond, func() bool { return h.surface.Calls() >= 2 })
	assert.Zero(t, other.Calls())

	h.stopAndWait()
	h.mu.Lock()
	assert.Len(t, h.encoders, 1, "one session, one encoder")
	assert.Len(t, h.results, 1)
	h.mu.Unlock()
}

func TestEngine_StopIsIdempotent(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.Stop()
	require.NoError(t, h.engine.Wait(context.Background()))

	h.start()
	h.engine.Stop()
	h.engine.Stop()
	h.stopAndWait()

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Len(t, h.results, 1)
}

func TestEngine_ImmediateStopStillFinalizes(t *testing.T) {
	h := newHarness(t, Config{})
	h.start()
	res := h.stopAndWait()

	assert.NoError(t, res.Err)
	assert.Equal(t, 1, res.Frames, "the stream samples once on open")
	h.mu.Lock()
	assert.Equal(t, []byte("fend"), h.sunk[res.Name])
	h.mu.Unlock()
	assert.Equal(t, 1, h.encoder(0).closed)
	assert.False(t, h.engine.Recording())
	h.requireNoTimers()
}

func TestEngine_CaptureErrorsDoNotStopTheLoop(t *testing.T) {
	h := newHarness(t, Config{})
	h.surface.fail = func(call int) error {
		if call == 1 {
			return errors.New("surface detached")
		}
		return nil
	}
	h.start()
	h.advanceUntil(100*time.Millisecond, func() bool { return h.surface.Calls() >= 4 })
	assert.True(t, h.engine.Recording())

	res := h.stopAndWait()
	assert.NoError(t, res.Err)
	assert.Equal(t, 1, res.CaptureErrors)
	assert.GreaterOrEqual(t, res.Captures, 2)
}

func TestEngine_SlowRasterizeDoesNotQueueCaptures(t *testing.T) {
	h := newHarness(t, Config{FPS: 10})
	gate := make(chan struct{})
	h.surface.fail = func(call int) error {
		if call == 2 {
			<-gate
		}
		return nil
	}
	h.start()
	h.advanceUntil(100*time.Millisecond, func() bool { return h.surface.Calls() >= 2 })

	// Capture 2 outlasts several periods.
	for range 5 {
		h.clock.Advance(100 * time.Millisecond)
	}
	assert.Equal(t, 2, h.surface.Calls(), "no capture starts while one is running")

	close(gate)
	assert.Never(t, func() bool { return h.surface.Calls() > 2 }, 100*time.Millisecond, 5*time.Millisecond,
		"missed periods are not replayed")

	h.advanceUntil(100*time.Millisecond, func() bool { return h.surface.Calls() >= 3 })
	assert.Never(t, func() bool { return h.surface.Calls() > 3 }, 50*time.Millisecond, 5*time.Millisecond,
		"one period arms exactly one capture")

	res := h.stopAndWait()
	assert.Equal(t, 1, h.surface.MaxInFlight())
	assert.Zero(t, res.CaptureErrors)
	h.requireNoTimers()
}

func TestEngine_PanickingSurfaceIsContained(t *testing.T) {
	h := newHarness(t, Config{})
	h.surface.fail = func(call int) error {
		if call == 2 {
			panic("boom")
		}
		return nil
	}
	h.start()
	h.advanceUntil(100*time.Millisecond, func() bool { return h.surface.Calls() >= 3 })
	res := h.stopAndWait()
	assert.Equal(t, 1, res.CaptureErrors)
}

func TestEngine_ElapsedResetsAfterFinalize(t *testing.T) {
	h := newHarness(t, Config{ElapsedInterval: 250 * time.Millisecond})
	gate := make(chan struct{})
	h.configure = func(e *testEncoder) { e.closeGate = gate }

	var (
		mu   sync.Mutex
		seen []time.Duration
	)
	h.engine.OnElapsed(func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, d)
	})

	h.start()
	h.advanceUntil(50*time.Millisecond, func() bool { return h.engine.Elapsed() >= 500*time.Millisecond })

	h.engine.Stop()
	assert.True(t, h.engine.Stopping())
	assert.True(t, h.engine.Recording(), "still finalizing")
	assert.GreaterOrEqual(t, h.engine.Elapsed(), 500*time.Millisecond, "kept until finalized")

	// A new recording cannot start while the previous one finalizes.
	require.NoError(t, h.engine.Start(newFakeSurface(), nil))
	h.mu.Lock()
	assert.Len(t, h.encoders, 1)
	h.mu.Unlock()

	close(gate)
	require.NoError(t, h.engine.Wait(context.Background()))
	assert.Zero(t, h.engine.Elapsed())
	assert.False(t, h.engine.Stopping())

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1])
	}
}

func TestEngine_EncoderFailureForcesStop(t *testing.T) {
	h := newHarness(t, Config{})
	h.configure = func(e *testEncoder) { e.failAt = 2 }
	h.start()

	h.advanceUntil(100*time.Millisecond, func() bool { return h.resultCount() == 1 })

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.results, 1)
	res := h.results[0]
	assert.ErrorContains(t, res.Err, "disk full")
	assert.Equal(t, 1, res.Frames)
	assert.Equal(t, []byte("fend"), h.sunk[res.Name], "what was encoded is still delivered")
}

func TestEngine_NoEncoder(t *testing.T) {
	e := NewEngine(nil, WithRegistry(encoding.NewRegistry()), WithClock(clockwork.NewFakeClock()))
	err := e.Start(newFakeSurface(), nil)
	assert.ErrorIs(t, err, encoding.ErrUnavailable)
	assert.False(t, e.Recording())
	assert.NoError(t, e.Close())
}

func TestEngine_EmptySurface(t *testing.T) {
	h := newHarness(t, Config{})
	h.surface.bounds = image.Rectangle{}
	assert.Error(t, h.engine.Start(h.surface, nil))
	assert.False(t, h.engine.Recording())
}

func TestEngine_NegotiatesFromPreferences(t *testing.T) {
	h := newHarness(t, Config{Codecs: []string{encoding.MimeWebMVP9, testMime}})
	h.engine.registry.Register(encoding.GIFCodec())
	h.engine.registry.SetDefault(encoding.MimeGIF)

	h.start()
	res := h.stopAndWait()
	assert.Equal(t, testMime, res.MimeType)

	h2 := newHarness(t, Config{Codecs: []string{encoding.MimeWebMVP9}})
	h2.engine.registry.Register(encoding.GIFCodec())
	h2.engine.registry.SetDefault(encoding.MimeGIF)
	h2.start()
	res = h2.stopAndWait()
	assert.Equal(t, encoding.MimeGIF, res.MimeType, "falls back to the default")
	assert.Equal(t, FileName(DefaultPrefix, h2.clock.Now(), "gif"), res.Name)
	assert.Positive(t, res.Size)
}

func TestCanvas(t *testing.T) {
	c := NewCanvas(image.Rect(0, 0, 3, 5), 3)
	assert.Equal(t, image.Rect(0, 0, 10, 16), c.Bounds(), "rounded up to even")

	src := image.NewRGBA(image.Rect(0, 0, 3, 5))
	src.Set(1, 1, color.RGBA{R: 255, A: 255})
	c.Draw(src)
	assert.Equal(t, 1, c.Draws())

	dst := image.NewRGBA(c.Bounds())
	require.True(t, c.CopyTo(dst))
	assert.Equal(t, color.RGBA{R: 255, A: 255}, dst.RGBAAt(3, 3))
	assert.Equal(t, color.RGBA{R: 255, A: 255}, dst.RGBAAt(5, 5))
	assert.Equal(t, color.RGBA{A: 255}, dst.RGBAAt(6, 6), "transparent pixels show the black background")

	// Drawing clears what was there before.
	c.Draw(image.NewRGBA(image.Rect(0, 0, 3, 5)))
	require.True(t, c.CopyTo(dst))
	assert.Equal(t, color.RGBA{A: 255}, dst.RGBAAt(3, 3))
	assert.Equal(t, color.RGBA{A: 255}, dst.RGBAAt(9, 15), "outside the scaled surface stays black")

	c.Release()
	assert.False(t, c.CopyTo(dst))
	assert.True(t, c.Bounds().Empty())
	c.Draw(src)
}

func TestDirSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	sink := DirSink{Dir: dir}

	p1, err := sink.Deliver("rec.gif", []byte("one"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "rec.gif"), p1)

	p2, err := sink.Deliver("rec.gif", []byte("two"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "rec-1.gif"), p2)

	data, err := os.ReadFile(p1)
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))
}

func TestFileName(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 59, 0, time.UTC)
	assert.Equal(t, "whatsdemo-20240102-0304.webm", FileName("whatsdemo", at, "webm"))
}
