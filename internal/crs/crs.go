// Package crs resolves coordinate reference systems and reprojects go-geom
// geometries between them.
package crs

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/ctessum/geom/proj"
	"github.com/rotisserie/eris"
)

// ErrUnknownCRS is returned when a CRS code is not in the registry.
var ErrUnknownCRS = errors.New("crs: unknown coordinate reference system")

// Common EPSG codes used by the exposure analysis.
const (
	WGS84          = "EPSG:4326"
	NAD83          = "EPSG:4269"
	StatCanLambert = "EPSG:3347"
	CanadaAtlasLCC = "EPSG:3978"
	Alberta10TMFor = "EPSG:3400"
	Alberta10TMRes = "EPSG:3401"
	WebMercator    = "EPSG:3857"
	UTM11N         = "EPSG:26911"
	UTM12N         = "EPSG:26912"
	CanadaAlbers   = "ESRI:102001"
)

const nad83 = "+ellps=GRS80 +towgs84=0,0,0,0,0,0,0"

// registry maps codes to PROJ.4 definitions.
var registry = map[string]string{
	WGS84:          "+proj=longlat +datum=WGS84 +no_defs",
	NAD83:          "+proj=longlat " + nad83 + " +no_defs",
	StatCanLambert: "+proj=lcc +lat_1=49 +lat_2=77 +lat_0=63.390675 +lon_0=-91.86666666666666 +x_0=6200000 +y_0=3000000 " + nad83 + " +units=m +no_defs",
	CanadaAtlasLCC: "+proj=lcc +lat_1=49 +lat_2=77 +lat_0=49 +lon_0=-95 +x_0=0 +y_0=0 " + nad83 + " +units=m +no_defs",
	Alberta10TMFor: "+proj=tmerc +lat_0=0 +lon_0=-115 +k=0.9992 +x_0=500000 +y_0=0 " + nad83 + " +units=m +no_defs",
	Alberta10TMRes: "+proj=tmerc +lat_0=0 +lon_0=-115 +k=0.9992 +x_0=0 +y_0=0 " + nad83 + " +units=m +no_defs",
	WebMercator:    "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs",
	UTM11N:         "+proj=utm +zone=11 " + nad83 + " +units=m +no_defs",
	UTM12N:         "+proj=utm +zone=12 " + nad83 + " +units=m +no_defs",
	CanadaAlbers:   "+proj=aea +lat_1=50 +lat_2=70 +lat_0=40 +lon_0=-96 +x_0=0 +y_0=0 " + nad83 + " +units=m +no_defs",
}

// CRS is a parsed coordinate reference system.
type CRS struct {
	// Code is the registry code (e.g. "EPSG:3347"), empty for ad-hoc definitions.
	Code string
	// Def is the PROJ.4 or WKT definition the CRS was parsed from.
	Def string

	sr *proj.SR
}

// Codes lists the registered CRS codes, sorted.
func Codes() []string {
	codes := make([]string, 0, len(registry))
	for c := range registry {
		codes = append(codes, c)
	}
	slices.Sort(codes)
	return codes
}

// Parse resolves def, which may be a registry code ("EPSG:3347"), a
// PROJ.4 string, or a WKT definition.
func Parse(def string) (*CRS, error) {
	def = strings.TrimSpace(def)
	if def == "" {
		return nil, eris.New("crs: empty definition")
	}

	code := ""
	if p, ok := lookup(def); ok {
		code = normalizeCode(def)
		def = p
	} else if looksLikeCode(def) {
		return nil, eris.Wrapf(ErrUnknownCRS, "crs: %s (registered: %s)", def, strings.Join(Codes(), ", "))
	}

	sr, err := proj.Parse(def)
	if err != nil {
		return nil, eris.Wrapf(err, "crs: parse %q", truncate(def, 60))
	}
	return &CRS{Code: code, Def: def, sr: sr}, nil
}

// MustParse is Parse for registry constants; it panics on error.
func MustParse(def string) *CRS {
	c, err := Parse(def)
	if err != nil {
		panic(err)
	}
	return c
}

// FromPRJ reads a shapefile .prj sidecar. It returns nil, nil when the file
// does not exist.
func FromPRJ(path string) (*CRS, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "crs: read %s", path)
	}
	c, err := Parse(string(data))
	if err != nil {
		return nil, eris.Wrapf(err, "crs: parse %s", path)
	}
	c.Code = matchKnown(c)
	return c, nil
}

// FromEPSG resolves a numeric EPSG code.
func FromEPSG(code int) (*CRS, error) {
	return Parse(fmt.Sprintf("EPSG:%d", code))
}

// GeoTIFF GeoKey value meaning "user defined".
const userDefined = 32767

// FromGeoKeys resolves the ProjectedCSTypeGeoKey / GeographicTypeGeoKey pair
// of a GeoTIFF. The projected key wins when both are set.
func FromGeoKeys(projected, geographic int) (*CRS, error) {
	if projected != 0 && projected != userDefined {
		return FromEPSG(projected)
	}
	if geographic != 0 && geographic != userDefined {
		return FromEPSG(geographic)
	}
	return nil, eris.Wrap(ErrUnknownCRS, "crs: GeoTIFF has no EPSG code in its GeoKeys")
}

// IsGeographic reports whether coordinates are longitude/latitude degrees.
func (c *CRS) IsGeographic() bool {
	return c.sr.Name == "longlat"
}

// Equal reports whether two CRSs describe the same system.
func (c *CRS) Equal(o *CRS) bool {
	if c == nil || o == nil {
		return c == o
	}
	if c.Code != "" && c.Code == o.Code {
		return true
	}
	return c.Def == o.Def
}

// EPSG returns the numeric EPSG code, or 0 when the CRS has none.
func (c *CRS) EPSG() int {
	var n int
	if _, err := fmt.Sscanf(c.Code, "EPSG:%d", &n); err != nil {
		return 0
	}
	return n
}

func (c *CRS) String() string {
	if c.Code != "" {
		return c.Code
	}
	return truncate(c.Def, 60)
}

func lookup(def string) (string, bool) {
	p, ok := registry[normalizeCode(def)]
	return p, ok
}

func normalizeCode(def string) string {
	return strings.ToUpper(strings.TrimSpace(def))
}

func looksLikeCode(def string) bool {
	up := normalizeCode(def)
	return strings.HasPrefix(up, "EPSG:") || strings.HasPrefix(up, "ESRI:")
}

// matchKnown finds the registry code whose parameters match a parsed
// definition, so WKT sidecars report a familiar code.
func matchKnown(c *CRS) string {
	for code, def := range registry {
		known, err := proj.Parse(def)
		if err != nil {
			continue
		}
		if sameSR(known, c.sr) {
			return code
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
