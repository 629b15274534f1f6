package raster

import (
	"image"
	"image/color"
)

type arms uint8

const (
	armUp arms = 1 << iota
	armDown
	armLeft
	armRight
	armHeavy
)

var boxRunes = map[rune]arms{
	'─': armLeft | armRight, '━': armLeft | armRight | armHeavy, '═': armLeft | armRight | armHeavy,
	'│': armUp | armDown, '┃': armUp | armDown | armHeavy, '║': armUp | armDown | armHeavy,
	'╭': armRight | armDown, '┌': armRight | armDown, '┏': armRight | armDown | armHeavy, '╔': armRight | armDown | armHeavy,
	'╮': armLeft | armDown, '┐': armLeft | armDown, '┓': armLeft | armDown | armHeavy, '╗': armLeft | armDown | armHeavy,
	'╰': armRight | armUp, '└': armRight | armUp, '┗': armRight | armUp | armHeavy, '╚': armRight | armUp | armHeavy,
	'╯': armLeft | armUp, '┘': armLeft | armUp, '┛': armLeft | armUp | armHeavy, '╝': armLeft | armUp | armHeavy,
	'├': armUp | armDown | armRight, '┣': armUp | armDown | armRight | armHeavy, '╠': armUp | armDown | armRight | armHeavy,
	'┤': armUp | armDown | armLeft, '┫': armUp | armDown | armLeft | armHeavy, '╣': armUp | armDown | armLeft | armHeavy,
	'┬': armLeft | armRight | armDown, '┳': armLeft | armRight | armDown | armHeavy, '╦': armLeft | armRight | armDown | armHeavy,
	'┴': armLeft | armRight | armUp, '┻': armLeft | armRight | armUp | armHeavy, '╩': armLeft | armRight | armUp | armHeavy,
	'┼': armUp | armDown | armLeft | armRight, '╋': armUp | armDown | armLeft | armRight | armHeavy,
	'╬': armUp | armDown | armLeft | armRight | armHeavy,
}

// drawBox draws box-drawing and block element runes into rect. It reports
// false for any other rune.
func drawBox(img *image.RGBA, rect image.Rectangle, r rune, fg color.RGBA, bold bool) bool {
	switch r {
	case '█':
		fill(img, rect, fg)
		return true
	case '▀':
		fill(img, image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+rect.Dy()/2), fg)
		return true
	case '▄':
		fill(img, image.Rect(rect.Min.X, rect.Min.Y+rect.Dy()/2, rect.Max.X, rect.Max.Y), fg)
		return true
	case '▌':
		fill(img, image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+rect.Dx()/2, rect.Max.Y), fg)
		return true
	case '▐':
		fill(img, image.Rect(rect.Min.X+rect.Dx()/2, rect.Min.Y, rect.Max.X, rect.Max.Y), fg)
		return true
	}

	a, ok := boxRunes[r]
	if !ok {
		return false
	}
	thick := 1
	if a&armHeavy != 0 || bold {
		thick = 2
	}
	cx := rect.Min.X + CellWidth/2
	cy := rect.Min.Y + CellHeight/2
	if a&armLeft != 0 {
		fill(img, image.Rect(rect.Min.X, cy, cx+thick, cy+thick), fg)
	}
	if a&armRight != 0 {
		fill(img, image.Rect(cx, cy, rect.Max.X, cy+thick), fg)
	}
	if a&armUp != 0 {
		fill(img, image.Rect(cx, rect.Min.Y, cx+thick, cy+thick), fg)
	}
	if a&armDown != 0 {
		fill(img, image.Rect(cx, cy, cx+thick, rect.Max.Y), fg)
	}
	return true
}
