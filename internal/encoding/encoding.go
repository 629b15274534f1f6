// Package encoding turns a stream of still frames into an encoded artifact.
//
// Encoders are looked up by MIME type in a Registry. Callers pass an ordered
// list of preferred types to Negotiate, which keeps the ones the registry can
// currently produce; Registry.Open falls back to the registry default when
// none of them are usable, and returns ErrUnavailable only if nothing at all
// can be opened.
package encoding

import (
	"context"
	"errors"
	"image"
	"image/color"
	"log/slog"
	"mime"
	"strings"
	"time"
)

// ErrUnavailable is returned when no encoder can be opened.
var ErrUnavailable = errors.New("no usable encoder")

// Encoder consumes frames and emits encoded bytes through Options.OnData.
// Implementations may emit data during WriteFrame or only on Close. An
// Encoder is used from one goroutine at a time.
type Encoder interface {
	// WriteFrame appends img, captured at offset at from the start of the
	// recording. Offsets are non-decreasing.
	WriteFrame(img image.Image, at time.Duration) error
	// Close flushes any remaining output. It must be called exactly once,
	// including after a WriteFrame error.
	Close() error
}

// Options configures a new Encoder.
type Options struct {
	// Width and Height of every frame in pixels.
	Width, Height int
	// FPS is the nominal frame rate of the incoming stream.
	FPS int
	// OnData receives encoded chunks in order. Required.
	OnData func([]byte)
	// Palette is a hint for palette-based formats. Optional.
	Palette color.Palette
	// Logger for diagnostics. Optional.
	Logger *slog.Logger
	// Context bounds encoders backed by an external process. Optional.
	Context context.Context
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o Options) context() context.Context {
	if o.Context != nil {
		return o.Context
	}
	return context.Background()
}

// Capabilities answers whether a MIME type can currently be produced.
type Capabilities interface {
	IsTypeSupported(mimeType string) bool
}

// StaticCapabilities is a fixed set of supported (normalized) MIME types.
type StaticCapabilities map[string]bool

// IsTypeSupported implements Capabilities.
func (s StaticCapabilities) IsTypeSupported(mimeType string) bool {
	return s[NormalizeMimeType(mimeType)]
}

// Negotiate returns the candidates that caps supports, in preference order.
// Duplicates are dropped.
func Negotiate(candidates []string, caps Capabilities) []string {
	var out []string
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		n := NormalizeMimeType(c)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		if caps.IsTypeSupported(n) {
			out = append(out, n)
		}
	}
	return out
}

// Select returns the most preferred supported candidate, or "" if none is.
func Select(candidates []string, caps Capabilities) string {
	if supported := Negotiate(candidates, caps); len(supported) > 0 {
		return supported[0]
	}
	return ""
}

// NormalizeMimeType lower-cases a MIME type and reduces its parameters to a
// canonical form, so `video/webm; codecs="VP9"` and `video/webm;codecs=vp9`
// compare equal. Unparseable input yields "".
func NormalizeMimeType(s string) string {
	mediaType, params, err := mime.ParseMediaType(strings.TrimSpace(s))
	if err != nil {
		return ""
	}
	if codecs, ok := params["codecs"]; ok && codecs != "" {
		return mediaType + ";codecs=" + strings.ToLower(strings.ReplaceAll(codecs, " ", ""))
	}
	return mediaType
}
