package raster

import (
	"image"
	"image/color"
	"testing"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPalette(t *testing.T) {
	require.Len(t, Palette, 256)
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, Indexed(0))
	assert.Equal(t, color.RGBA{255, 0, 0, 255}, Indexed(9))
	assert.Equal(t, color.RGBA{255, 0, 0, 255}, Indexed(196))
	assert.Equal(t, color.RGBA{0, 0, 255, 255}, Indexed(21))
	assert.Equal(t, color.RGBA{8, 8, 8, 255}, Indexed(232))
	assert.Equal(t, color.RGBA{238, 238, 238, 255}, Indexed(255))
	assert.Equal(t, Indexed(255), Indexed(1000))
	assert.Equal(t, Indexed(0), Indexed(-1))
}

// sgr applies the parameters of "CSI params m" to s.
func sgr(s *style, params string) {
	p := ansi.NewParser()
	ansi.DecodeSequence("\x1b["+params+"m", ansi.NormalState, p)
	s.applySGR(p.Params())
}

func TestApplySGR(t *testing.T) {
	var s style
	sgr(&s, "1;38;5;196;48;2;1;2;3")
	assert.True(t, s.bold)
	assert.Equal(t, Indexed(196), s.fg)
	assert.Equal(t, color.RGBA{1, 2, 3, 255}, s.bg)
	assert.True(t, s.fgSet)
	assert.True(t, s.bgSet)

	sgr(&s, "39;22")
	assert.False(t, s.fgSet)
	assert.False(t, s.bold)
	assert.True(t, s.bgSet)

	sgr(&s, "31;104;7")
	fg, bg := s.colors(DefaultTheme)
	assert.Equal(t, Indexed(12), fg, "reverse swaps")
	assert.Equal(t, Indexed(1), bg)

	sgr(&s, "")
	assert.Equal(t, style{}, s)

	sgr(&s, "38;5")
	assert.False(t, s.fgSet, "truncated extended color is ignored")
}

func TestApplySGR_TruecolorForms(t *testing.T) {
	red := color.RGBA{255, 0, 0, 255}
	for _, params := range []string{
		"38;2;255;0;0",
		"38:2:255:0:0",
		"38:2::255:0:0",
		"38:2:1:255:0:0",
	} {
		t.Run(params, func(t *testing.T) {
			var s style
			sgr(&s, params+";1")
			assert.True(t, s.fgSet)
			assert.Equal(t, red, s.fg)
			assert.True(t, s.bold, "parameters after the color still apply")
			assert.False(t, s.underline)
			assert.False(t, s.bgSet)
		})
	}

	var s style
	sgr(&s, "48:2::0:0:255")
	assert.Equal(t, color.RGBA{0, 0, 255, 255}, s.bg)
}

func TestApplySGR_IndexedForms(t *testing.T) {
	for _, params := range []string{"38;5;196", "38:5:196"} {
		var s style
		sgr(&s, params)
		assert.Equal(t, Indexed(196), s.fg, params)
	}

	var s style
	sgr(&s, "48;5;21")
	assert.Equal(t, Indexed(21), s.bg)
	assert.False(t, s.fgSet)
}

func TestApplySGR_SubParams(t *testing.T) {
	var s style
	sgr(&s, "4:3")
	assert.True(t, s.underline, "curly underline is still underline")
	assert.False(t, s.reverse)

	sgr(&s, "4:0")
	assert.False(t, s.underline)

	sgr(&s, "58:2::1:2:3;7")
	assert.True(t, s.reverse, "unknown parameters skip their sub-parameters")
	assert.False(t, s.bold)
}

func TestRender_ColonTruecolor(t *testing.T) {
	red := color.RGBA{255, 0, 0, 255}
	img := Render("\x1b[48:2::255:0:0m \x1b[m ", Options{})
	assert.Equal(t, CellWidth*CellHeight, countColor(img, cellRect(0, 0), red))
	assert.Equal(t, CellWidth*CellHeight, countColor(img, cellRect(1, 0), DefaultTheme.Background))
}

func TestMeasure(t *testing.T) {
	cols, rows := Measure("ab\n\x1b[31mcde\x1b[0m\n")
	assert.Equal(t, 3, cols)
	assert.Equal(t, 2, rows)

	cols, rows = Measure("世界")
	assert.Equal(t, 4, cols)
	assert.Equal(t, 1, rows)

	cols, rows = Measure("\x1b]0;title\a\tx")
	assert.Equal(t, 9, cols)
	assert.Equal(t, 1, rows)

	cols, rows = Measure("")
	assert.Zero(t, cols)
	assert.Zero(t, rows)
}

func countColor(img *image.RGBA, r image.Rectangle, c color.RGBA) int {
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if img.RGBAAt(x, y) == c {
				n++
			}
		}
	}
	return n
}

func cellRect(col, row int) image.Rectangle {
	return image.Rect(col*CellWidth, row*CellHeight, (col+1)*CellWidth, (row+1)*CellHeight)
}

func TestRender_Size(t *testing.T) {
	img := Render("ab\nc", Options{})
	assert.Equal(t, image.Rect(0, 0, 14, 26), img.Bounds())

	img = Render("abcdef", Options{Cols: 2, Rows: 3})
	assert.Equal(t, Bounds(2, 3), img.Bounds())
	assert.Equal(t, CellWidth*CellHeight, countColor(img, cellRect(0, 2), DefaultTheme.Background))
}

func TestRender_Colors(t *testing.T) {
	red := Indexed(196)
	blue := Indexed(21)
	img := Render("\x1b[38;5;196mX\x1b[0m\x1b[48;5;21m \x1b[0m ", Options{})

	assert.Positive(t, countColor(img, cellRect(0, 0), red), "glyph drawn in foreground")
	assert.Equal(t, CellWidth*CellHeight, countColor(img, cellRect(1, 0), blue), "background fills the cell")
	assert.Equal(t, CellWidth*CellHeight, countColor(img, cellRect(2, 0), DefaultTheme.Background))
}

func TestRender_BoxDrawing(t *testing.T) {
	fg := DefaultTheme.Foreground
	img := Render("╭─╮\n│ │\n╰─╯", Options{})

	// The horizontal edge crosses the whole cell on its middle row.
	mid := CellHeight / 2
	for x := CellWidth; x < 2*CellWidth; x++ {
		assert.Equal(t, fg, img.RGBAAt(x, mid), "x=%d", x)
	}
	// The vertical edge spans the whole cell height.
	for y := CellHeight; y < 2*CellHeight; y++ {
		assert.Equal(t, fg, img.RGBAAt(CellWidth/2, y), "y=%d", y)
	}
	assert.Zero(t, countColor(img, cellRect(1, 1), fg), "interior is empty")
}

func TestRender_WideRunes(t *testing.T) {
	fg := Indexed(46)
	img := Render("\x1b[38;5;46m😀\x1b[0mx", Options{})
	assert.Equal(t, Bounds(3, 1), img.Bounds())

	both := image.Rect(0, 0, 2*CellWidth, CellHeight)
	assert.Equal(t, (2*CellWidth-4)*(CellHeight-4), countColor(img, both, fg))
}

func TestRender_Underline(t *testing.T) {
	fg := DefaultTheme.Foreground
	img := Render("\x1b[4m \x1b[24m ", Options{})
	assert.Equal(t, CellWidth, countColor(img, cellRect(0, 0), fg))
	assert.Zero(t, countColor(img, cellRect(1, 0), fg))
}
