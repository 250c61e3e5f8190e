// Package export writes exposure datasets to GeoJSON, GeoPackage, XLSX,
// PostGIS and a YAML run manifest.
package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/wildfire-exposure/internal/crs"
	"github.com/sells-group/wildfire-exposure/internal/exposure"
)

// FieldBuffer holds the corridor polygon when buffers are kept.
const FieldBuffer = "buffer"

// GeoJSONOptions configures WriteGeoJSON.
type GeoJSONOptions struct {
	// KeepBuffer writes the corridor polygon as a GeoJSON string property.
	KeepBuffer bool
}

type namedCRS struct {
	Type       string            `json:"type"`
	Properties map[string]string `json:"properties"`
}

// WriteGeoJSON streams ds as a FeatureCollection, one feature per line.
func WriteGeoJSON(path string, ds *exposure.Dataset, opts GeoJSONOptions) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	w := bufio.NewWriterSize(f, 1<<20)

	if err := writeFeatureCollection(w, ds, opts); err != nil {
		_ = f.Close()
		return eris.Wrapf(err, "export: write %s", path)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return eris.Wrapf(err, "export: flush %s", path)
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "export: close %s", path)
	}

	zap.L().Info("export: wrote geojson",
		zap.String("path", path),
		zap.Int("features", len(ds.Records)),
	)
	return nil
}

func writeFeatureCollection(w *bufio.Writer, ds *exposure.Dataset, opts GeoJSONOptions) error {
	if _, err := w.WriteString(`{"type":"FeatureCollection",`); err != nil {
		return err
	}
	if ds.CRS != nil && ds.CRS.EPSG() != 0 {
		b, err := json.Marshal(namedCRS{
			Type:       "name",
			Properties: map[string]string{"name": fmt.Sprintf("urn:ogc:def:crs:EPSG::%d", ds.CRS.EPSG())},
		})
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, `"crs":%s,`, b); err != nil {
			return err
		}
	}
	if _, err := w.WriteString("\"features\":[\n"); err != nil {
		return err
	}

	for i, rec := range ds.Records {
		feat, err := toFeature(ds.Fields, ds.FieldTypes, rec, opts)
		if err != nil {
			return eris.Wrapf(err, "export: feature %d", rec.FeatureID)
		}
		b, err := json.Marshal(feat)
		if err != nil {
			return eris.Wrapf(err, "export: marshal feature %d", rec.FeatureID)
		}
		if i > 0 {
			if _, err := w.WriteString(",\n"); err != nil {
				return err
			}
		}
		if _, err := w.Write(b); err != nil {
			return err
		}
	}
	_, err := w.WriteString("\n]}\n")
	return err
}

func toFeature(fields []string, types map[string]byte, rec exposure.Record, opts GeoJSONOptions) (*geojson.Feature, error) {
	props := make(map[string]any, len(fields)+8)
	for _, name := range fields {
		props[name] = attrValue(types[name], rec.Attrs[name])
	}
	props[exposure.FieldBurnMean] = rec.BurnMean
	props[exposure.FieldBurnMin] = rec.BurnMin
	props[exposure.FieldBurnCount] = rec.BurnCount
	props[exposure.FieldBurnNodata] = rec.BurnNodata
	props[exposure.FieldBurnExposed] = rec.BurnExposed
	props[exposure.FieldBurnNorm] = rec.BurnNorm

	if opts.KeepBuffer && rec.Buffer != nil {
		b, err := geojson.Marshal(rec.Buffer)
		if err != nil {
			return nil, eris.Wrap(err, "export: encode buffer")
		}
		props[FieldBuffer] = string(b)
	}
	return &geojson.Feature{
		ID:         strconv.Itoa(rec.FeatureID),
		Geometry:   rec.Geom,
		Properties: props,
	}, nil
}

// attrValue types a dBase attribute for JSON. Unparseable numbers and
// blanks become null.
func attrValue(typ byte, s string) any {
	switch typ {
	case 'N', 'F':
		if s == "" {
			return nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return nil
	case 'L':
		switch s {
		case "T", "t", "Y", "y", "true":
			return true
		case "F", "f", "N", "n", "false":
			return false
		}
		return nil
	default:
		return s
	}
}

// ReadGeoJSON loads an exposure GeoJSON written by WriteGeoJSON.
func ReadGeoJSON(path string) (*exposure.Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "export: read %s", path)
	}

	var head struct {
		CRS *namedCRS `json:"crs"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, eris.Wrapf(err, "export: parse %s", path)
	}
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrapf(err, "export: parse features in %s", path)
	}

	ds := &exposure.Dataset{
		FieldTypes: make(map[string]byte),
		Records:    make([]exposure.Record, 0, len(fc.Features)),
	}
	if head.CRS != nil {
		var code int
		if _, err := fmt.Sscanf(head.CRS.Properties["name"], "urn:ogc:def:crs:EPSG::%d", &code); err == nil {
			if ds.CRS, err = crs.FromEPSG(code); err != nil {
				return nil, eris.Wrapf(err, "export: crs of %s", path)
			}
		}
	}

	seen := make(map[string]bool)
	for i, f := range fc.Features {
		rec := exposure.Record{FeatureID: i, Geom: f.Geometry, Attrs: make(map[string]string)}
		if id, err := strconv.Atoi(f.ID); err == nil {
			rec.FeatureID = id
		}
		for k, v := range f.Properties {
			switch k {
			case exposure.FieldBurnMean:
				rec.BurnMean = floatProp(v)
			case exposure.FieldBurnMin:
				rec.BurnMin = floatProp(v)
			case exposure.FieldBurnNorm:
				rec.BurnNorm = floatProp(v)
			case exposure.FieldBurnCount:
				rec.BurnCount = intProp(v)
			case exposure.FieldBurnNodata:
				rec.BurnNodata = intProp(v)
			case exposure.FieldBurnExposed:
				rec.BurnExposed = intProp(v)
			case FieldBuffer:
				if s, ok := v.(string); ok {
					var g geom.T
					if err := geojson.Unmarshal([]byte(s), &g); err == nil {
						rec.Buffer = g
					}
				}
			default:
				if v != nil {
					rec.Attrs[k] = fmt.Sprint(v)
				}
				if !seen[k] {
					seen[k] = true
					ds.Fields = append(ds.Fields, k)
				}
				if typ, ok := jsonFieldType(v); ok {
					ds.FieldTypes[k] = typ
				}
			}
		}
		ds.Records = append(ds.Records, rec)
	}
	sort.Strings(ds.Fields)
	return ds, nil
}

func jsonFieldType(v any) (byte, bool) {
	switch v.(type) {
	case float64:
		return 'N', true
	case bool:
		return 'L', true
	case string:
		return 'C', true
	}
	return 0, false
}

func floatProp(v any) *float64 {
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	return &f
}

func intProp(v any) int {
	f, ok := v.(float64)
	if !ok {
		return 0
	}
	return int(f)
}
