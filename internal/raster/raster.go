// Package raster converts ANSI-styled terminal frames into images.
//
// A frame is the string a terminal UI would print: lines separated by "\n",
// styled with SGR escape sequences. Each cell becomes a CellWidth x CellHeight
// pixel block. Text is drawn with the basicfont 7x13 face, box-drawing and
// block characters are drawn geometrically, and wide characters the face
// lacks (emoji, CJK) are drawn as filled placeholders spanning both cells.
package raster

import (
	"image"
	"image/color"
	"image/draw"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Cell size in pixels.
const (
	CellWidth  = 7
	CellHeight = 13
)

// Theme holds the colors used where the frame sets none.
type Theme struct {
	Foreground color.RGBA
	Background color.RGBA
}

// DefaultTheme is a dark terminal.
var DefaultTheme = Theme{
	Foreground: Indexed(252),
	Background: Indexed(235),
}

// Options configures Render.
type Options struct {
	// Cols and Rows fix the grid size. Zero means the size of the frame
	// (see Measure). Content outside the grid is clipped.
	Cols, Rows int
	Theme      Theme
}

// Bounds returns the pixel rectangle of a cols x rows grid.
func Bounds(cols, rows int) image.Rectangle {
	return image.Rect(0, 0, max(cols, 0)*CellWidth, max(rows, 0)*CellHeight)
}

type cell struct {
	r     rune
	wide  bool
	cont  bool // right half of a wide cell
	style style
}

// Measure returns the grid size of frame: the widest line in cells and the
// number of lines.
func Measure(frame string) (cols, rows int) {
	lines := parse(frame)
	for _, l := range lines {
		cols = max(cols, len(l))
	}
	return cols, len(lines)
}

// Render draws frame onto a new image.
func Render(frame string, opts Options) *image.RGBA {
	lines := parse(frame)
	cols, rows := opts.Cols, opts.Rows
	if cols <= 0 || rows <= 0 {
		mc, mr := 0, len(lines)
		for _, l := range lines {
			mc = max(mc, len(l))
		}
		if cols <= 0 {
			cols = mc
		}
		if rows <= 0 {
			rows = mr
		}
	}
	theme := opts.Theme
	if theme == (Theme{}) {
		theme = DefaultTheme
	}

	img := image.NewRGBA(Bounds(cols, rows))
	draw.Draw(img, img.Bounds(), image.NewUniform(theme.Background), image.Point{}, draw.Src)

	for y, line := range lines {
		if y >= rows {
			break
		}
		for x, c := range line {
			if x >= cols {
				break
			}
			if c.cont {
				continue
			}
			drawCell(img, x, y, c, theme)
		}
	}
	return img
}

func drawCell(img *image.RGBA, col, row int, c cell, theme Theme) {
	fg, bg := c.style.colors(theme)
	span := 1
	if c.wide {
		span = 2
	}
	rect := image.Rect(col*CellWidth, row*CellHeight, (col+span)*CellWidth, (row+1)*CellHeight).Intersect(img.Bounds())
	if bg != theme.Background {
		fill(img, rect, bg)
	}

	switch {
	case c.r == ' ' || c.r == 0:
	case drawBox(img, rect, c.r, fg, c.style.bold):
	case c.wide && !hasGlyph(c.r):
		fill(img, rect.Inset(2), fg)
	default:
		drawGlyph(img, rect.Min, c.r, fg)
		if c.style.bold {
			drawGlyph(img, rect.Min.Add(image.Pt(1, 0)), c.r, fg)
		}
	}
	if c.style.underline {
		fill(img, image.Rect(rect.Min.X, rect.Max.Y-1, rect.Max.X, rect.Max.Y), fg)
	}
}

func fill(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Src)
}

var face = basicfont.Face7x13

func hasGlyph(r rune) bool {
	for _, rng := range face.Ranges {
		if r >= rng.Low && r < rng.High {
			return true
		}
	}
	return false
}

func drawGlyph(img *image.RGBA, at image.Point, r rune, fg color.RGBA) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(fg),
		Face: face,
		Dot:  fixed.P(at.X, at.Y+face.Ascent),
	}
	d.DrawString(string(r))
}

// parse splits frame into lines of cells, applying SGR sequences and
// skipping every other control or escape sequence.
func parse(frame string) [][]cell {
	frame = strings.TrimSuffix(frame, "\n")
	if frame == "" {
		return nil
	}
	var (
		lines [][]cell
		line  []cell
		st    style
		state byte
	)
	p := ansi.NewParser()
	for len(frame) > 0 {
		seq, width, n, newState := ansi.DecodeSequence(frame, state, p)
		state = newState
		if n <= 0 {
			break
		}
		frame = frame[n:]

		switch {
		case width > 0:
			r, _ := utf8.DecodeRuneInString(seq)
			if width >= 2 {
				line = append(line, cell{r: r, wide: true, style: st}, cell{cont: true, style: st})
			} else {
				line = append(line, cell{r: r, style: st})
			}
		case seq == "\n":
			lines = append(lines, line)
			line = nil
		case seq == "\t":
			for pad := 8 - len(line)%8; pad > 0; pad-- {
				line = append(line, cell{r: ' ', style: st})
			}
		case ansi.HasCsiPrefix(seq):
			if cmd := ansi.Cmd(p.Command()); cmd.Final() == 'm' && cmd.Prefix() == 0 && cmd.Intermediate() == 0 {
				st.applySGR(p.Params())
			}
		}
	}
	return append(lines, line)
}
