package render

import (
	"image/color"
	"math"
)

// Colormap interpolates linearly between evenly spaced colour stops.
type Colormap []color.RGBA

// OrRd is the 9-class ColorBrewer orange-red sequential ramp.
var OrRd = Colormap{
	{0xff, 0xf7, 0xec, 0xff},
	{0xfe, 0xe8, 0xc8, 0xff},
	{0xfd, 0xd4, 0x9e, 0xff},
	{0xfd, 0xbb, 0x84, 0xff},
	{0xfc, 0x8d, 0x59, 0xff},
	{0xef, 0x65, 0x48, 0xff},
	{0xd7, 0x30, 0x1f, 0xff},
	{0xb3, 0x00, 0x00, 0xff},
	{0x7f, 0x00, 0x00, 0xff},
}

// At returns the colour for v, clamped to [0, 1]. NaN maps to the first stop.
func (c Colormap) At(v float64) color.RGBA {
	if len(c) == 0 {
		return color.RGBA{A: 0xff}
	}
	if math.IsNaN(v) || v <= 0 || len(c) == 1 {
		return c[0]
	}
	if v >= 1 {
		return c[len(c)-1]
	}
	pos := v * float64(len(c)-1)
	i := int(pos)
	f := pos - float64(i)
	a, b := c[i], c[i+1]
	return color.RGBA{
		R: lerp(a.R, b.R, f),
		G: lerp(a.G, b.G, f),
		B: lerp(a.B, b.B, f),
		A: lerp(a.A, b.A, f),
	}
}

func lerp(a, b uint8, f float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*f))
}
