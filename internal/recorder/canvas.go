package recorder

import (
	"image"
	"image/color"
	"sync"

	"golang.org/x/image/draw"
)

// Canvas is the output raster a recording draws into and the capture stream
// samples. It is owned by a single recording.
type Canvas struct {
	mu    sync.RWMutex
	img   *image.RGBA
	scale int
	draws int
}

// NewCanvas returns a canvas for a surface of the given size, enlarged by
// scale (at least 1). Each dimension is rounded up to an even number of
// pixels, which video encoders using 4:2:0 chroma require.
func NewCanvas(surface image.Rectangle, scale int) *Canvas {
	scale = max(scale, 1)
	w := surface.Dx() * scale
	h := surface.Dy() * scale
	w += w % 2
	h += h % 2
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	return &Canvas{img: img, scale: scale}
}

// Bounds returns the canvas size. It is empty after Release.
func (c *Canvas) Bounds() image.Rectangle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.img == nil {
		return image.Rectangle{}
	}
	return c.img.Bounds()
}

// Draw clears the canvas and draws src scaled by the canvas scale, anchored
// at the top left corner.
func (c *Canvas) Draw(src image.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.img == nil {
		return
	}
	draw.Draw(c.img, c.img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	sb := src.Bounds()
	dr := image.Rect(0, 0, sb.Dx()*c.scale, sb.Dy()*c.scale)
	draw.NearestNeighbor.Scale(c.img, dr, src, sb, draw.Over, nil)
	c.draws++
}

// Draws returns how many times Draw has been called.
func (c *Canvas) Draws() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.draws
}

// CopyTo copies the canvas pixels into dst, which must have the canvas
// bounds. It reports false once the canvas is released.
func (c *Canvas) CopyTo(dst *image.RGBA) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.img == nil {
		return false
	}
	copy(dst.Pix, c.img.Pix)
	return true
}

// Release drops the pixel buffer.
func (c *Canvas) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.img = nil
}
