package raster

import "math"

// GeoTransform maps pixel space to world space for north-up rasters.
// Column c, row r has its top-left corner at
// (OriginX + c*PixelWidth, OriginY - r*PixelHeight).
type GeoTransform struct {
	OriginX     float64 `json:"origin_x" yaml:"origin_x"`
	OriginY     float64 `json:"origin_y" yaml:"origin_y"`
	PixelWidth  float64 `json:"pixel_width" yaml:"pixel_width"`
	PixelHeight float64 `json:"pixel_height" yaml:"pixel_height"`
}

// ToWorld returns the world coordinate of fractional pixel position (col, row).
func (t GeoTransform) ToWorld(col, row float64) (x, y float64) {
	return t.OriginX + col*t.PixelWidth, t.OriginY - row*t.PixelHeight
}

// ToPixel returns the fractional pixel position of a world coordinate.
func (t GeoTransform) ToPixel(x, y float64) (col, row float64) {
	return (x - t.OriginX) / t.PixelWidth, (t.OriginY - y) / t.PixelHeight
}

// CellCenter returns the world coordinate of the centre of cell (col, row).
func (t GeoTransform) CellCenter(col, row int) (x, y float64) {
	return t.ToWorld(float64(col)+0.5, float64(row)+0.5)
}

// Window is a rectangular block of pixels. It may extend past the raster.
type Window struct {
	Col    int `json:"col"`
	Row    int `json:"row"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Empty reports whether the window covers no pixels.
func (w Window) Empty() bool { return w.Width <= 0 || w.Height <= 0 }

// Size returns the number of pixels.
func (w Window) Size() int {
	if w.Empty() {
		return 0
	}
	return w.Width * w.Height
}

// Intersect returns the overlap of two windows.
func (w Window) Intersect(o Window) Window {
	c0 := max(w.Col, o.Col)
	r0 := max(w.Row, o.Row)
	c1 := min(w.Col+w.Width, o.Col+o.Width)
	r1 := min(w.Row+w.Height, o.Row+o.Height)
	if c1 <= c0 || r1 <= r0 {
		return Window{Col: c0, Row: r0}
	}
	return Window{Col: c0, Row: r0, Width: c1 - c0, Height: r1 - r0}
}

// WindowFor returns the smallest pixel window covering the world box.
// The window is not clipped to the raster extent.
func (t GeoTransform) WindowFor(minX, minY, maxX, maxY float64) Window {
	c0, r0 := t.ToPixel(minX, maxY)
	c1, r1 := t.ToPixel(maxX, minY)
	col0 := int(math.Floor(c0))
	row0 := int(math.Floor(r0))
	col1 := int(math.Ceil(c1))
	row1 := int(math.Ceil(r1))
	if col1 == col0 {
		col1++
	}
	if row1 == row0 {
		row1++
	}
	return Window{Col: col0, Row: row0, Width: col1 - col0, Height: row1 - row0}
}

// Bounds is a world-space box (left, bottom, right, top).
type Bounds struct {
	Left   float64 `json:"left" yaml:"left"`
	Bottom float64 `json:"bottom" yaml:"bottom"`
	Right  float64 `json:"right" yaml:"right"`
	Top    float64 `json:"top" yaml:"top"`
}

// WindowBounds returns the world box covered by a window.
func (t GeoTransform) WindowBounds(w Window) Bounds {
	left, top := t.ToWorld(float64(w.Col), float64(w.Row))
	right, bottom := t.ToWorld(float64(w.Col+w.Width), float64(w.Row+w.Height))
	return Bounds{Left: left, Bottom: bottom, Right: right, Top: top}
}
