package encoding

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMimeType(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"video/webm", "video/webm"},
		{"VIDEO/WebM", "video/webm"},
		{"video/webm;codecs=vp9", "video/webm;codecs=vp9"},
		{`video/webm; codecs="VP9"`, "video/webm;codecs=vp9"},
		{" image/gif ", "image/gif"},
		{"", ""},
		{"not a mime", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeMimeType(tt.in))
		})
	}
}

func TestNegotiate(t *testing.T) {
	caps := StaticCapabilities{
		"video/webm;codecs=vp8": true,
		"video/webm":            true,
	}

	got := Negotiate([]string{MimeWebMVP9, MimeWebMVP8, "VIDEO/WEBM;codecs=vp8", MimeWebM, "garbage/"}, caps)
	assert.Equal(t, []string{MimeWebMVP8, MimeWebM}, got)

	assert.Equal(t, MimeWebMVP8, Select(DefaultPreferences, caps))
	assert.Empty(t, Select(DefaultPreferences, StaticCapabilities{}))
	assert.Nil(t, Negotiate(nil, caps))
}

type recordingEncoder struct {
	frames int
	closed bool
}

func (r *recordingEncoder) WriteFrame(image.Image, time.Duration) error {
	r.frames++
	return nil
}

func (r *recordingEncoder) Close() error {
	r.closed = true
	return nil
}

func testRegistry() *Registry {
	r := NewRegistry()
	r.Register(GIFCodec())
	r.Register(Codec{
		MimeType:  "video/webm;codecs=vp9",
		Extension: "webm",
		Supported: func() bool { return false },
		New:       func(Options) (Encoder, error) { return &recordingEncoder{}, nil },
	})
	r.Register(Codec{
		MimeType:  "video/webm;codecs=vp8",
		Extension: "webm",
		New:       func(Options) (Encoder, error) { return &recordingEncoder{}, nil },
	})
	r.Register(Codec{
		MimeType:  "video/x-broken",
		Extension: "bin",
		New:       func(Options) (Encoder, error) { return nil, errors.New("boom") },
	})
	return r
}

func TestRegistry_Capabilities(t *testing.T) {
	r := testRegistry()

	assert.Equal(t, MimeGIF, r.Default())
	assert.True(t, r.IsTypeSupported("image/gif"))
	assert.False(t, r.IsTypeSupported(MimeWebMVP9))
	assert.True(t, r.IsTypeSupported(`video/webm; codecs="vp8"`))
	assert.False(t, r.IsTypeSupported("video/mp4"))
	assert.Equal(t, []string{MimeGIF, MimeWebMVP9, MimeWebMVP8, "video/x-broken"}, r.MimeTypes())

	assert.Equal(t, MimeWebMVP8, Select(DefaultPreferences, r))
}

func TestRegistry_Open(t *testing.T) {
	r := testRegistry()
	opts := Options{Width: 4, Height: 4, FPS: 10, OnData: func([]byte) {}}

	t.Run("requested", func(t *testing.T) {
		enc, c, err := r.Open(MimeWebMVP8, opts)
		require.NoError(t, err)
		assert.Equal(t, MimeWebMVP8, c.MimeType)
		assert.IsType(t, &recordingEncoder{}, enc)
	})

	t.Run("empty means default", func(t *testing.T) {
		_, c, err := r.Open("", opts)
		require.NoError(t, err)
		assert.Equal(t, MimeGIF, c.MimeType)
		assert.Equal(t, "gif", c.Extension)
	})

	for _, mt := range []string{MimeWebMVP9, "video/x-broken", "video/mp4"} {
		t.Run("falls back from "+mt, func(t *testing.T) {
			_, c, err := r.Open(mt, opts)
			require.NoError(t, err)
			assert.Equal(t, MimeGIF, c.MimeType)
		})
	}

	t.Run("on data required", func(t *testing.T) {
		_, _, err := r.Open(MimeGIF, Options{Width: 1, Height: 1})
		assert.Error(t, err)
	})

	t.Run("nothing usable", func(t *testing.T) {
		empty := NewRegistry()
		_, _, err := empty.Open(MimeWebMVP9, opts)
		assert.ErrorIs(t, err, ErrUnavailable)

		r := testRegistry()
		r.SetDefault("video/x-broken")
		_, _, err = r.Open(MimeWebMVP9, opts)
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestGIFEncoder(t *testing.T) {
	var out bytes.Buffer
	chunks := 0
	enc, err := NewGIFEncoder(Options{
		Width: 8, Height: 6, FPS: 10,
		OnData: func(b []byte) {
			chunks++
			out.Write(b)
		},
	})
	require.NoError(t, err)

	red := solid(8, 6, color.RGBA{R: 255, A: 255})
	blue := solid(8, 6, color.RGBA{B: 255, A: 255})
	require.NoError(t, enc.WriteFrame(red, 0))
	require.NoError(t, enc.WriteFrame(red, 100*time.Millisecond))
	require.NoError(t, enc.WriteFrame(red, 200*time.Millisecond))
	require.NoError(t, enc.WriteFrame(blue, 300*time.Millisecond))
	assert.Zero(t, out.Len(), "nothing is emitted before Close")

	require.NoError(t, enc.Close())
	require.NoError(t, enc.Close())
	assert.Equal(t, 1, chunks)
	assert.Error(t, enc.WriteFrame(red, time.Second))

	decoded, err := gif.DecodeAll(bytes.NewReader(out.Bytes()))
	require.NoError(t, err)
	require.Len(t, decoded.Image, 2, "identical frames are merged")
	assert.Equal(t, []int{30, 10}, decoded.Delay)
	assert.Equal(t, 0, decoded.LoopCount)
	assert.Equal(t, 8, decoded.Config.Width)
	assert.Equal(t, 6, decoded.Config.Height)
}

func TestGIFEncoder_NoFrames(t *testing.T) {
	called := false
	enc, err := NewGIFEncoder(Options{Width: 2, Height: 2, OnData: func([]byte) { called = true }})
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	assert.False(t, called)

	_, err = NewGIFEncoder(Options{Width: 0, Height: 2, OnData: func([]byte) {}})
	assert.Error(t, err)
}

func TestGIFDelay(t *testing.T) {
	assert.Equal(t, 2, gifDelay(0))
	assert.Equal(t, 2, gifDelay(10*time.Millisecond))
	assert.Equal(t, 7, gifDelay(66*time.Millisecond))
	assert.Equal(t, 100, gifDelay(time.Second))
}

func TestFrameRepeat(t *testing.T) {
	tests := []struct {
		name    string
		at      time.Duration
		fps     int
		written int
		want    int
	}{
		{"first frame", 0, 10, 0, 1},
		{"first frame late", 250 * time.Millisecond, 10, 0, 3},
		{"on time", 100 * time.Millisecond, 10, 1, 1},
		{"early", 120 * time.Millisecond, 10, 2, 0},
		{"late", 450 * time.Millisecond, 10, 2, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, frameRepeat(tt.at, tt.fps, tt.written))
		})
	}
}

func TestParseEncoders(t *testing.T) {
	out := []byte(`Encoders:
 V..... = Video
 A..... = Audio
 ------
 V....D libvpx               libvpx VP8 (codec vp8)
 V....D libvpx-vp9           libvpx VP9 (codec vp9)
 A....D libopus              libopus Opus
`)
	got := parseEncoders(out)
	assert.Equal(t, map[string]bool{"libvpx": true, "libvpx-vp9": true, "libopus": true}, got)
}

func TestDefaultRegistry_MissingFFmpeg(t *testing.T) {
	r := DefaultRegistry(filepath.Join(t.TempDir(), "no-such-ffmpeg"))
	assert.Equal(t, MimeGIF, r.Default())
	assert.False(t, r.IsTypeSupported(MimeWebMVP9))
	assert.Empty(t, Negotiate(DefaultPreferences, r))

	_, c, err := r.Open(Select(DefaultPreferences, r), Options{Width: 2, Height: 2, FPS: 5, OnData: func([]byte) {}})
	require.NoError(t, err)
	assert.Equal(t, MimeGIF, c.MimeType)
}

// fakeFFmpeg writes a shell script that lists only libvpx-vp9 and otherwise
// copies stdin to stdout, so the "encoded" stream is the raw frames.
func fakeFFmpeg(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\n" +
		"if [ \"$2\" = \"-encoders\" ]; then\n" +
		"  echo ' V....D libvpx-vp9           libvpx VP9'\n" +
		"  exit 0\n" +
		"fi\n" +
		"exec cat\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestFFmpegEncoder_StreamsFrames(t *testing.T) {
	path := fakeFFmpeg(t)
	r := DefaultRegistry(path)
	assert.True(t, r.IsTypeSupported(MimeWebMVP9))
	assert.True(t, r.IsTypeSupported(MimeWebM))
	assert.False(t, r.IsTypeSupported(MimeWebMVP8))
	assert.Equal(t, []string{MimeWebMVP9, MimeWebM}, Negotiate(DefaultPreferences, r))

	var out bytes.Buffer
	enc, c, err := r.Open(MimeWebMVP9, Options{
		Width: 3, Height: 2, FPS: 10,
		OnData: func(b []byte) { out.Write(b) },
	})
	require.NoError(t, err)
	assert.Equal(t, "webm", c.Extension)

	white := solid(3, 2, color.White)
	require.NoError(t, enc.WriteFrame(white, 0))
	require.NoError(t, enc.WriteFrame(white, 50*time.Millisecond))  // too early, dropped
	require.NoError(t, enc.WriteFrame(white, 300*time.Millisecond)) // late, repeated
	require.NoError(t, enc.Close())

	assert.Equal(t, 4*3*2*4, out.Len())
	assert.Equal(t, bytes.Repeat([]byte{255}, out.Len()), out.Bytes())
}

func TestDefaultRegistry_NonExecutableFFmpeg(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	dir := t.TempDir()
	marker := filepath.Join(dir, "ran")
	path := filepath.Join(dir, "ffmpeg")
	script := "#!/bin/sh\ntouch '" + marker + "'\necho ' V....D libvpx-vp9           libvpx VP9'\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o644))

	r := DefaultRegistry(path)
	assert.False(t, r.IsTypeSupported(MimeWebMVP9))
	_, err := NewFFmpegEncoder(path, "libvpx-vp9", Options{Width: 2, Height: 2, FPS: 5, OnData: func([]byte) {}})
	assert.ErrorContains(t, err, "ffmpeg not found")
	assert.NoFileExists(t, marker, "a binary that cannot be resolved is never run")
}

func TestFFmpegEncoder_CancelledContext(t *testing.T) {
	path := fakeFFmpeg(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFFmpegEncoder(path, "libvpx-vp9", Options{
		Width: 2, Height: 2, FPS: 5,
		OnData:  func([]byte) {},
		Context: ctx,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), err.Error())
}

func TestFFmpegEncoder_InvalidOptions(t *testing.T) {
	_, err := NewFFmpegEncoder("ffmpeg", "libvpx", Options{Width: 2, Height: 2, OnData: func([]byte) {}})
	assert.Error(t, err)
	_, err = NewFFmpegEncoder("ffmpeg", "libvpx", Options{Width: 0, Height: 2, FPS: 1, OnData: func([]byte) {}})
	assert.Error(t, err)
}
