package render

import (
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/wildfire-exposure/internal/exposure"
)

func ptr(v float64) *float64 { return &v }

func TestColormap_Stops(t *testing.T) {
	assert.Equal(t, color.RGBA{0xff, 0xf7, 0xec, 0xff}, OrRd.At(0))
	assert.Equal(t, color.RGBA{0x7f, 0x00, 0x00, 0xff}, OrRd.At(1))
	assert.Equal(t, color.RGBA{0xfc, 0x8d, 0x59, 0xff}, OrRd.At(0.5))
}

func TestColormap_ClampAndInterpolate(t *testing.T) {
	assert.Equal(t, OrRd.At(0), OrRd.At(-3))
	assert.Equal(t, OrRd.At(1), OrRd.At(7))
	assert.Equal(t, OrRd.At(0), OrRd.At(math.NaN()))

	// Halfway between the last two stops.
	mid := OrRd.At(1 - 1.0/16)
	assert.Equal(t, uint8(0x99), mid.R)
	assert.Equal(t, uint8(0), mid.G)

	var empty Colormap
	assert.Equal(t, color.RGBA{A: 0xff}, empty.At(0.5))
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.WidthIn, opts.HeightIn, opts.DPI = 4, 3, 60
	return opts
}

func square(minX, minY, maxX, maxY float64) *geom.Polygon {
	return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{minX, minY}, {minX, maxY}, {maxX, maxY}, {maxX, minY}, {minX, minY},
	}})
}

func hline(y float64) *geom.MultiLineString {
	mls := geom.NewMultiLineString(geom.XY)
	if err := mls.Push(geom.NewLineStringFlat(geom.XY, []float64{100000, y, 900000, y})); err != nil {
		panic(err)
	}
	return mls
}

func decode(t *testing.T, path string) image.Image {
	t.Helper()
	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close() //nolint:errcheck
	img, err := png.Decode(fh)
	require.NoError(t, err)
	return img
}

func countMatching(img image.Image, match func(r, g, b uint8) bool) int {
	var n int
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			if match(uint8(r>>8), uint8(g>>8), uint8(bl>>8)) {
				n++
			}
		}
	}
	return n
}

func TestRenderMap(t *testing.T) {
	ds := &exposure.Dataset{Records: []exposure.Record{
		{Geom: hline(300000), BurnNorm: ptr(1)},
		{Geom: hline(500000), BurnNorm: ptr(0.2)},
		{Geom: hline(700000)},
	}}
	province := []geom.T{square(0, 0, 1000000, 1000000)}

	opts := testOptions()
	opts.LineWidth = 4
	opts.MissingColor = missingBlue
	path := filepath.Join(t.TempDir(), "map.png")
	require.NoError(t, RenderMap(path, opts, province, ds))

	img := decode(t, path)
	assert.Equal(t, 240, img.Bounds().Dx())
	assert.Equal(t, 180, img.Bounds().Dy())

	r, g, b, _ := img.At(0, img.Bounds().Dy()-1).RGBA()
	assert.Equal(t, [3]uint32{0xffff, 0xffff, 0xffff}, [3]uint32{r, g, b}, "background is white")

	darkRed := countMatching(img, func(r, g, b uint8) bool { return r > 0x70 && r < 0x90 && g < 0x10 && b < 0x10 })
	assert.Greater(t, darkRed, 0, "fully exposed segment drawn in the darkest stop")

	assert.Positive(t, countBlue(img), "segments without data drawn in the missing colour")
}

// missingBlue is a colour neither the ramp nor the black decorations can
// produce, anti-aliased or not.
var missingBlue = color.RGBA{0x20, 0x80, 0xff, 0xff}

func countBlue(img image.Image) int {
	return countMatching(img, func(r, g, b uint8) bool { return r == 0x20 && g == 0x80 && b == 0xff })
}

func TestRenderMap_MissingColor(t *testing.T) {
	ds := &exposure.Dataset{Records: []exposure.Record{{Geom: hline(700000)}}}
	province := []geom.T{square(0, 0, 1000000, 1000000)}

	tests := []struct {
		name    string
		missing color.Color
		drawn   bool
	}{
		{"drawn", missingBlue, true},
		{"skipped", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			opts.LineWidth = 4
			opts.MissingColor = tt.missing

			path := filepath.Join(t.TempDir(), "map.png")
			require.NoError(t, RenderMap(path, opts, province, ds))

			n := countBlue(decode(t, path))
			if tt.drawn {
				assert.Positive(t, n)
			} else {
				assert.Zero(t, n)
			}
		})
	}
}

func TestRenderMap_Errors(t *testing.T) {
	dir := t.TempDir()

	err := RenderMap(filepath.Join(dir, "a.png"), testOptions(), nil, &exposure.Dataset{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to draw")

	opts := testOptions()
	opts.DPI = 0
	err = RenderMap(filepath.Join(dir, "b.png"), opts, []geom.T{square(0, 0, 1, 1)}, &exposure.Dataset{})
	assert.Error(t, err)
}

func TestLayoutKeepsAspect(t *testing.T) {
	b := geom.NewBounds(geom.XY).Set(0, 0, 2000, 1000)
	f := layout(1000, 800, 72, b)

	x0, y0 := f.px(0, 1000)
	x1, y1 := f.px(2000, 0)
	assert.InDelta(t, (x1-x0)/(y1-y0), 2.0, 1e-9)
	assert.GreaterOrEqual(t, x0, f.axX)
	assert.LessOrEqual(t, x1, f.axX+f.axW+1e-9)
}

func TestLines(t *testing.T) {
	mp := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, mp.Push(square(0, 0, 1, 1)))
	require.NoError(t, mp.Push(square(2, 2, 3, 3)))
	assert.Len(t, lines(mp), 2)
	assert.Len(t, lines(hline(5)), 1)
	assert.Empty(t, lines(geom.NewPoint(geom.XY)))
}
