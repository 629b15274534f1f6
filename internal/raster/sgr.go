package raster

import (
	"image/color"

	"github.com/charmbracelet/x/ansi"
)

// style is the SGR state applying to a cell.
type style struct {
	fg, bg    color.RGBA
	fgSet     bool
	bgSet     bool
	bold      bool
	underline bool
	reverse   bool
}

// colors resolves the cell colors against the theme defaults.
func (s style) colors(theme Theme) (fg, bg color.RGBA) {
	fg, bg = theme.Foreground, theme.Background
	if s.fgSet {
		fg = s.fg
	}
	if s.bgSet {
		bg = s.bg
	}
	if s.reverse {
		fg, bg = bg, fg
	}
	return fg, bg
}

// applySGR updates s with the parameters of one "CSI ... m" sequence.
// Unknown parameters are ignored, along with their sub-parameters.
func (s *style) applySGR(params ansi.Params) {
	if len(params) == 0 {
		*s = style{}
		return
	}
	for i := 0; i < len(params); i++ {
		switch n := params[i].Param(0); {
		case n == 0:
			*s = style{}
		case n == 1:
			s.bold = true
		case n == 22:
			s.bold = false
		case n == 4:
			// 4:0 is the colon form of 24.
			s.underline = !params[i].HasMore() || i+1 == len(params) || params[i+1].Param(1) != 0
		case n == 24:
			s.underline = false
		case n == 7:
			s.reverse = true
		case n == 27:
			s.reverse = false
		case n >= 30 && n <= 37:
			s.fg, s.fgSet = Indexed(n-30), true
		case n >= 90 && n <= 97:
			s.fg, s.fgSet = Indexed(n-90+8), true
		case n == 39:
			s.fgSet = false
		case n >= 40 && n <= 47:
			s.bg, s.bgSet = Indexed(n-40), true
		case n >= 100 && n <= 107:
			s.bg, s.bgSet = Indexed(n-100+8), true
		case n == 49:
			s.bgSet = false
		case n == 38 || n == 48:
			var c color.Color
			used := ansi.ReadStyleColor(params[i:], &c)
			if used == 0 {
				break
			}
			i += used - 1
			rgba, ok := toRGBA(c)
			if n == 38 {
				s.fg, s.fgSet = rgba, ok
			} else {
				s.bg, s.bgSet = rgba, ok
			}
			continue
		}
		i = skipSubParams(params, i)
	}
}

// skipSubParams returns the index of the last sub-parameter of params[i].
func skipSubParams(params ansi.Params, i int) int {
	for i < len(params)-1 && params[i].HasMore() {
		i++
	}
	return i
}

// toRGBA maps a decoded SGR color onto the palette. Palette colors resolve
// through Indexed so every index matches the GIF palette exactly. A nil or
// transparent color means the theme default.
func toRGBA(c color.Color) (color.RGBA, bool) {
	switch c := c.(type) {
	case nil:
		return color.RGBA{}, false
	case ansi.IndexedColor:
		return Indexed(int(c)), true
	case ansi.BasicColor:
		return Indexed(int(c)), true
	}
	rgba := color.RGBAModel.Convert(c).(color.RGBA)
	if rgba.A == 0 {
		return color.RGBA{}, false
	}
	rgba.A = 255
	return rgba, true
}
