// Package exposure turns zonal burn statistics into per-segment exposure
// records.
package exposure

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/wildfire-exposure/internal/crs"
	"github.com/sells-group/wildfire-exposure/internal/vector"
	"github.com/sells-group/wildfire-exposure/internal/zonal"
)

// Output attribute names.
const (
	FieldBurnMean    = "burn_mean"
	FieldBurnMin     = "burn_min"
	FieldBurnCount   = "burn_count"
	FieldBurnNodata  = "burn_nodata"
	FieldBurnExposed = "burn_exposed"
	FieldBurnNorm    = "burn_norm"
)

// Record is one pipeline segment with its exposure attributes.
type Record struct {
	FeatureID int
	Attrs     map[string]string
	Geom      geom.T
	// Buffer is the corridor the statistics were computed over.
	Buffer geom.T

	BurnMean    *float64
	BurnMin     *float64
	BurnCount   int
	BurnNodata  int
	BurnExposed int
	BurnNorm    *float64
}

// Exposed reports whether any burned cell lies in the corridor.
func (r Record) Exposed() bool { return r.BurnExposed == 1 }

// Dataset is an ordered set of records sharing a schema and CRS.
type Dataset struct {
	Fields []string
	// FieldTypes maps field name to its dBase type; missing means text.
	FieldTypes map[string]byte
	CRS        *crs.CRS
	Records    []Record
}

// Assess builds the exposure record of feature f from the statistics of
// its buffer. A segment is exposed when its corridor has at least one
// valid cell, the minimum is not the nodata value, and valid cells
// outnumber nodata cells.
func Assess(f vector.Feature, buffer geom.T, st zonal.Stats, nodata float64) Record {
	rec := Record{
		FeatureID:  f.ID,
		Attrs:      f.Attrs,
		Geom:       f.Geom,
		Buffer:     buffer,
		BurnCount:  st.Count,
		BurnNodata: st.NodataCount,
	}
	if !st.Valid {
		return rec
	}
	mean, minV := st.Mean, st.Min
	rec.BurnMean = &mean
	rec.BurnMin = &minV
	if minV != nodata && st.Count > st.NodataCount {
		rec.BurnExposed = 1
	}
	return rec
}

// AssessAll pairs features, buffers and stats by index.
func AssessAll(layer *vector.Layer, buffers []geom.T, stats []zonal.Stats, nodata float64) (*Dataset, error) {
	if len(buffers) != layer.Len() || len(stats) != layer.Len() {
		return nil, eris.Errorf("exposure: %d features, %d buffers, %d stats", layer.Len(), len(buffers), len(stats))
	}
	ds := &Dataset{
		Fields:     layer.Fields,
		FieldTypes: layer.FieldTypes,
		CRS:        layer.CRS,
		Records:    make([]Record, layer.Len()),
	}
	for i, f := range layer.Features {
		ds.Records[i] = Assess(f, buffers[i], stats[i], nodata)
	}
	return ds, nil
}
