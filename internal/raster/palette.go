package raster

import "image/color"

// Palette is the xterm 256-color palette: the 16 ANSI colors, the 6x6x6
// color cube and the 24-step gray ramp. Frames rendered with a 256-color
// profile only use these colors, so it also serves as the GIF palette.
var Palette = xtermPalette()

var ansi16 = [16]color.RGBA{
	{0, 0, 0, 255},
	{205, 0, 0, 255},
	{0, 205, 0, 255},
	{205, 205, 0, 255},
	{0, 0, 238, 255},
	{205, 0, 205, 255},
	{0, 205, 205, 255},
	{229, 229, 229, 255},
	{127, 127, 127, 255},
	{255, 0, 0, 255},
	{0, 255, 0, 255},
	{255, 255, 0, 255},
	{92, 92, 255, 255},
	{255, 0, 255, 255},
	{0, 255, 255, 255},
	{255, 255, 255, 255},
}

func xtermPalette() color.Palette {
	p := make(color.Palette, 0, 256)
	for _, c := range ansi16 {
		p = append(p, c)
	}
	levels := [6]uint8{0, 95, 135, 175, 215, 255}
	for r := range 6 {
		for g := range 6 {
			for b := range 6 {
				p = append(p, color.RGBA{levels[r], levels[g], levels[b], 255})
			}
		}
	}
	for i := range 24 {
		v := uint8(8 + 10*i)
		p = append(p, color.RGBA{v, v, v, 255})
	}
	return p
}

// Indexed returns palette entry n, clamped to [0, 255].
func Indexed(n int) color.RGBA {
	n = min(max(n, 0), 255)
	return Palette[n].(color.RGBA)
}
