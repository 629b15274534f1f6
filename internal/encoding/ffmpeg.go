package encoding

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/image/draw"
)

// WebM MIME types, in the default preference order.
const (
	MimeWebMVP9 = "video/webm;codecs=vp9"
	MimeWebMVP8 = "video/webm;codecs=vp8"
	MimeWebM    = "video/webm"
)

// DefaultPreferences is the ordered codec preference list used when none is
// configured.
var DefaultPreferences = []string{MimeWebMVP9, MimeWebMVP8, MimeWebM}

const ffmpegChunkSize = 64 << 10

// probeTimeout bounds the `ffmpeg -encoders` capability probe.
const probeTimeout = 10 * time.Second

// stderrLimit bounds how much of ffmpeg's stderr is kept for error messages.
const stderrLimit = 4 << 10

// DefaultRegistry returns a registry holding the WebM codecs backed by the
// ffmpeg binary at ffmpegPath and the pure Go GIF codec, which is the
// default.
func DefaultRegistry(ffmpegPath string) *Registry {
	r := NewRegistry()
	r.Register(GIFCodec())
	for _, c := range WebMCodecs(ffmpegPath) {
		r.Register(c)
	}
	r.SetDefault(MimeGIF)
	return r
}

// WebMCodecs returns the ffmpeg backed codecs. Each reports itself
// supported only if ffmpeg can be run and lists the matching libvpx encoder.
func WebMCodecs(ffmpegPath string) []Codec {
	probe := probeFor(ffmpegPath)
	codec := func(mimeType string, encoders ...string) Codec {
		pick := func() string {
			available := probe()
			for _, name := range encoders {
				if available[name] {
					return name
				}
			}
			return ""
		}
		return Codec{
			MimeType:  mimeType,
			Extension: "webm",
			Supported: func() bool { return pick() != "" },
			New: func(opts Options) (Encoder, error) {
				name := pick()
				if name == "" {
					return nil, fmt.Errorf("ffmpeg at %q has none of %s", ffmpegPath, strings.Join(encoders, ", "))
				}
				return NewFFmpegEncoder(ffmpegPath, name, opts)
			},
		}
	}
	return []Codec{
		codec(MimeWebMVP9, "libvpx-vp9"),
		codec(MimeWebMVP8, "libvpx"),
		codec(MimeWebM, "libvpx-vp9", "libvpx"),
	}
}

var (
	probesMu sync.Mutex
	probes   = map[string]func() map[string]bool{}
)

// probeFor returns a memoized lookup of the encoders ffmpegPath provides.
func probeFor(ffmpegPath string) func() map[string]bool {
	probesMu.Lock()
	defer probesMu.Unlock()
	if p, ok := probes[ffmpegPath]; ok {
		return p
	}
	p := sync.OnceValue(func() map[string]bool {
		path, err := exec.LookPath(ffmpegPath)
		if err != nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		defer cancel()
		out, err := exec.CommandContext(ctx, path, "-hide_banner", "-encoders").Output()
		if err != nil {
			return nil
		}
		return parseEncoders(out)
	})
	probes[ffmpegPath] = p
	return p
}

// parseEncoders extracts the encoder names from `ffmpeg -encoders` output,
// whose entries look like " V....D libvpx-vp9  libvpx VP9".
func parseEncoders(out []byte) map[string]bool {
	encoders := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || len(fields[0]) != 6 || strings.Trim(fields[0], "VASFXBD.") != "" {
			continue
		}
		if fields[1] == "=" {
			continue
		}
		encoders[fields[1]] = true
	}
	return encoders
}

type ffmpegEncoder struct {
	opts    Options
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stderr  *limitedBuffer
	done    chan error
	frame   *image.RGBA
	written int
	closed  bool
}

// NewFFmpegEncoder starts ffmpeg reading raw RGBA frames from stdin and
// writing a WebM stream to stdout, which is forwarded to Options.OnData in
// chunks as it is produced. videoCodec is an ffmpeg encoder name such as
// libvpx-vp9.
//
// ffmpeg sees a constant frame rate, so frames are repeated as needed to keep
// the stream aligned with the capture offsets. Cancelling Options.Context
// kills the process.
func NewFFmpegEncoder(ffmpegPath, videoCodec string, opts Options) (Encoder, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("ffmpeg: invalid frame size %dx%d", opts.Width, opts.Height)
	}
	if opts.FPS <= 0 {
		return nil, fmt.Errorf("ffmpeg: invalid frame rate %d", opts.FPS)
	}
	path, err := exec.LookPath(ffmpegPath)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	cmd := exec.CommandContext(opts.context(), path, ffmpegArgs(videoCodec, opts)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: stdout: %w", err)
	}
	stderr := &limitedBuffer{limit: stderrLimit}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg: start: %w", err)
	}

	e := &ffmpegEncoder{
		opts:   opts,
		cmd:    cmd,
		stdin:  stdin,
		stderr: stderr,
		done:   make(chan error, 1),
		frame:  image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height)),
	}
	go e.pump(stdout)
	opts.logger().Debug("ffmpeg started", "pid", cmd.Process.Pid, "codec", videoCodec,
		"size", fmt.Sprintf("%dx%d", opts.Width, opts.Height), "fps", opts.FPS)
	return e, nil
}

func ffmpegArgs(videoCodec string, opts Options) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"-framerate", strconv.Itoa(opts.FPS),
		"-i", "pipe:0",
		"-an",
		"-pix_fmt", "yuv420p",
		"-c:v", videoCodec,
		"-deadline", "realtime",
		"-f", "webm",
		"pipe:1",
	}
}

// pump forwards stdout to OnData until EOF.
func (e *ffmpegEncoder) pump(stdout io.Reader) {
	buf := make([]byte, ffmpegChunkSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			e.opts.OnData(bytes.Clone(buf[:n]))
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			e.done <- err
			return
		}
	}
}

func (e *ffmpegEncoder) WriteFrame(img image.Image, at time.Duration) error {
	if e.closed {
		return fmt.Errorf("ffmpeg: write after close")
	}
	repeat := frameRepeat(at, e.opts.FPS, e.written)
	if repeat == 0 {
		return nil
	}
	draw.Draw(e.frame, e.frame.Bounds(), img, img.Bounds().Min, draw.Src)
	for range repeat {
		if _, err := e.stdin.Write(e.frame.Pix); err != nil {
			return fmt.Errorf("ffmpeg: write frame %d: %w%s", e.written, err, e.stderr.suffix())
		}
		e.written++
	}
	return nil
}

// frameRepeat returns how many copies of a frame captured at offset at must
// be written, given written frames so far, to keep a constant rate stream in
// step with wall-clock time. The first frame is always written once.
func frameRepeat(at time.Duration, fps, written int) int {
	target := int(at*time.Duration(fps)/time.Second) + 1
	if written == 0 {
		return max(target, 1)
	}
	return max(target-written, 0)
}

func (e *ffmpegEncoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	errs := []error{e.stdin.Close()}
	errs = append(errs, <-e.done)
	if err := e.cmd.Wait(); err != nil {
		errs = append(errs, fmt.Errorf("ffmpeg: %w%s", err, e.stderr.suffix()))
	}
	e.opts.logger().Debug("ffmpeg finished", "frames", e.written)
	return errors.Join(errs...)
}

// limitedBuffer keeps the first limit bytes written to it.
type limitedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - b.buf.Len(); room > 0 {
		b.buf.Write(p[:min(len(p), room)])
	}
	return len(p), nil
}

func (b *limitedBuffer) suffix() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s := strings.TrimSpace(b.buf.String()); s != "" {
		return ": " + s
	}
	return ""
}
