package vector

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"
)

// writePolyLines writes a POLYLINE shapefile with a LICENCE and SUBSTANCE
// attribute per record. prj is written as a sidecar when non-empty.
func writePolyLines(t *testing.T, lines [][][]shp.Point, attrs [][2]string, prj string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipes.shp")

	w, err := shp.Create(path, shp.POLYLINE)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("LICENCE", 20),
		shp.StringField("SUBSTANCE", 20),
	}))
	for i, parts := range lines {
		n := w.Write(shp.NewPolyLine(parts))
		require.NoError(t, w.WriteAttribute(int(n), 0, attrs[i][0]))
		require.NoError(t, w.WriteAttribute(int(n), 1, attrs[i][1]))
	}
	w.Close()

	if prj != "" {
		require.NoError(t, os.WriteFile(strings.TrimSuffix(path, ".shp")+".prj", []byte(prj), 0o644))
	}
	return path
}

// writePolygons writes a POLYGON shapefile with a PRUID attribute.
func writePolygons(t *testing.T, polys [][][]shp.Point, ids []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prov.shp")

	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("PRUID", 2)}))
	for i, rings := range polys {
		poly := shp.Polygon(*shp.NewPolyLine(rings))
		n := w.Write(&poly)
		require.NoError(t, w.WriteAttribute(int(n), 0, ids[i]))
	}
	w.Close()
	return path
}

// square returns a clockwise closed ring (shapefile shell orientation).
func square(x0, y0, size float64) []shp.Point {
	return []shp.Point{
		{X: x0, Y: y0},
		{X: x0, Y: y0 + size},
		{X: x0 + size, Y: y0 + size},
		{X: x0 + size, Y: y0},
		{X: x0, Y: y0},
	}
}

// reversed returns the ring in the opposite orientation.
func reversed(ring []shp.Point) []shp.Point {
	out := make([]shp.Point, len(ring))
	for i, p := range ring {
		out[len(ring)-1-i] = p
	}
	return out
}
