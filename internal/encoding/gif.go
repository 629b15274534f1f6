package encoding

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"time"

	"golang.org/x/image/draw"
)

// MimeGIF is the pure Go fallback format.
const MimeGIF = "image/gif"

// gifChunkSize bounds the size of each OnData call.
const gifChunkSize = 64 << 10

// GIFCodec returns the animated GIF codec. It is always supported.
func GIFCodec() Codec {
	return Codec{
		MimeType:  MimeGIF,
		Extension: "gif",
		New:       NewGIFEncoder,
	}
}

type gifEncoder struct {
	opts    Options
	palette color.Palette
	bounds  image.Rectangle
	anim    gif.GIF
	// offsets[i] is the capture offset of anim.Image[i].
	offsets []time.Duration
	closed  bool
}

// NewGIFEncoder returns an Encoder producing an animated, looping GIF.
// Frames are quantized to Options.Palette (palette.Plan9 if nil) and
// identical consecutive frames are merged into one longer frame. The file is
// emitted on Close; with no frames nothing is emitted.
func NewGIFEncoder(opts Options) (Encoder, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("gif: invalid frame size %dx%d", opts.Width, opts.Height)
	}
	pal := opts.Palette
	if len(pal) == 0 {
		pal = palette.Plan9
	}
	if len(pal) > 256 {
		pal = pal[:256]
	}
	return &gifEncoder{
		opts:    opts,
		palette: pal,
		bounds:  image.Rect(0, 0, opts.Width, opts.Height),
	}, nil
}

func (e *gifEncoder) WriteFrame(img image.Image, at time.Duration) error {
	if e.closed {
		return fmt.Errorf("gif: write after close")
	}
	frame := image.NewPaletted(e.bounds, e.palette)
	draw.Draw(frame, e.bounds, img, img.Bounds().Min, draw.Src)

	if n := len(e.anim.Image); n > 0 && bytes.Equal(e.anim.Image[n-1].Pix, frame.Pix) {
		return nil
	}
	e.anim.Image = append(e.anim.Image, frame)
	e.offsets = append(e.offsets, at)
	return nil
}

func (e *gifEncoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if len(e.anim.Image) == 0 {
		return nil
	}

	frameTime := time.Second / time.Duration(max(e.opts.FPS, 1))
	e.anim.Delay = make([]int, len(e.anim.Image))
	for i := range e.anim.Image {
		d := frameTime
		if i+1 < len(e.offsets) {
			d = e.offsets[i+1] - e.offsets[i]
		}
		e.anim.Delay[i] = gifDelay(d)
	}
	e.anim.LoopCount = 0
	e.anim.Config = image.Config{ColorModel: e.palette, Width: e.bounds.Dx(), Height: e.bounds.Dy()}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, &e.anim); err != nil {
		return fmt.Errorf("gif: encode: %w", err)
	}
	data := buf.Bytes()
	for len(data) > 0 {
		n := min(len(data), gifChunkSize)
		e.opts.OnData(bytes.Clone(data[:n]))
		data = data[n:]
	}
	e.opts.logger().Debug("gif encoded", "frames", len(e.anim.Image), "bytes", buf.Len())
	return nil
}

// gifDelay converts d to the centisecond delay GIF stores. Most viewers
// treat delays below 2 as "as fast as possible", so 2 is the floor.
func gifDelay(d time.Duration) int {
	return max(int((d+5*time.Millisecond)/(10*time.Millisecond)), 2)
}
