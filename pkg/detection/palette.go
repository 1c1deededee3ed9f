package detection

import "image/color"

// Palette is a cyclic list of box colors indexed by slot.
type Palette []color.RGBA

// At returns the color for slot i: p[i mod len(p)].
func (p Palette) At(i int) color.RGBA {
	if len(p) == 0 {
		return color.RGBA{R: 255, A: 255}
	}
	n := len(p)
	return p[((i%n)+n)%n]
}

// DefaultPalette: blue, green, red, cyan, gray, black, dark gray, magenta, yellow, red.
var DefaultPalette = Palette{
	{R: 0x00, G: 0x00, B: 0xFF, A: 0xFF},
	{R: 0x00, G: 0xFF, B: 0x00, A: 0xFF},
	{R: 0xFF, G: 0x00, B: 0x00, A: 0xFF},
	{R: 0x00, G: 0xFF, B: 0xFF, A: 0xFF},
	{R: 0x88, G: 0x88, B: 0x88, A: 0xFF},
	{R: 0x00, G: 0x00, B: 0x00, A: 0xFF},
	{R: 0x44, G: 0x44, B: 0x44, A: 0xFF},
	{R: 0xFF, G: 0x00, B: 0xFF, A: 0xFF},
	{R: 0xFF, G: 0xFF, B: 0x00, A: 0xFF},
	{R: 0xFF, G: 0x00, B: 0x00, A: 0xFF},
}
