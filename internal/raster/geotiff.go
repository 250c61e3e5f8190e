// Package raster reads single-band GeoTIFF rasters window by window, so
// zonal statistics never need the whole grid in memory.
package raster

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wildfire-exposure/internal/crs"
)

// ErrUnsupported is returned for TIFF layouts the reader does not handle.
var ErrUnsupported = errors.New("raster: unsupported GeoTIFF")

// Compression schemes.
const (
	CompressionNone        = 1
	CompressionLZW         = 5
	CompressionAdobeDeflat = 8
	CompressionPackBits    = 32773
	CompressionDeflate     = 32946
)

// Predictors.
const (
	PredictorNone       = 1
	PredictorHorizontal = 2
)

// GeoKey IDs.
const (
	keyModelType       = 1024
	keyRasterType      = 1025
	keyGeographicType  = 2048
	keyProjectedCSType = 3072
)

const rasterPixelIsPoint = 2

// DefaultCacheBlocks bounds the decoded-block cache.
const DefaultCacheBlocks = 256

// Options configures Open.
type Options struct {
	// CRS overrides the CRS declared by the GeoKeys.
	CRS string
	// CacheBlocks caps the decoded strips/tiles kept in memory.
	CacheBlocks int
}

// Raster is an open GeoTIFF. It is safe for concurrent reads.
type Raster struct {
	path string
	f    *os.File

	order        binary.ByteOrder
	width        int
	height       int
	dtype        DataType
	spp          int
	compression  int
	predictor    int
	tiled        bool
	blockW       int
	blockH       int
	blocksAcross int
	offsets      []uint64
	counts       []uint64

	transform GeoTransform
	nodata    *float64
	crs       *crs.CRS
	crsErr    error

	mu    sync.Mutex
	cache *blockCache
}

// Open parses the first image of a GeoTIFF.
func Open(path string, opts Options) (*Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: open %s", path)
	}
	r, err := parse(f, opts)
	if err != nil {
		_ = f.Close()
		return nil, eris.Wrapf(err, "raster: parse %s", path)
	}
	r.path = path

	zap.L().Debug("raster: opened",
		zap.String("path", path),
		zap.Int("width", r.width),
		zap.Int("height", r.height),
		zap.String("dtype", r.dtype.String()),
		zap.Int("compression", r.compression),
		zap.Bool("tiled", r.tiled),
	)
	return r, nil
}

func parse(f *os.File, opts Options) (*Raster, error) {
	order, big, off, err := readHeader(f)
	if err != nil {
		return nil, err
	}
	d, err := readIFD(f, order, big, off)
	if err != nil {
		return nil, err
	}

	r := &Raster{
		f:           f,
		order:       order,
		width:       int(d.uintOr(tagImageWidth, 0)),
		height:      int(d.uintOr(tagImageLength, 0)),
		spp:         int(d.uintOr(tagSamplesPerPixel, 1)),
		compression: int(d.uintOr(tagCompression, CompressionNone)),
		predictor:   int(d.uintOr(tagPredictor, PredictorNone)),
	}
	if r.width <= 0 || r.height <= 0 {
		return nil, eris.New("raster: missing image dimensions")
	}
	if r.spp > 1 && d.uintOr(tagPlanarConfiguration, 1) != 1 {
		return nil, eris.Wrap(ErrUnsupported, "raster: planar configuration 2")
	}

	bits := d.uints(tagBitsPerSample)
	if len(bits) == 0 {
		bits = []uint64{1}
	}
	for _, b := range bits[1:] {
		if b != bits[0] {
			return nil, eris.Wrap(ErrUnsupported, "raster: mixed bits per sample")
		}
	}
	if r.dtype, err = dataTypeFor(int(d.uintOr(tagSampleFormat, 1)), int(bits[0])); err != nil {
		return nil, err
	}

	switch r.compression {
	case CompressionNone, CompressionLZW, CompressionAdobeDeflat, CompressionDeflate, CompressionPackBits:
	default:
		return nil, eris.Wrapf(ErrUnsupported, "raster: compression %d", r.compression)
	}
	if r.predictor != PredictorNone && r.predictor != PredictorHorizontal {
		return nil, eris.Wrapf(ErrUnsupported, "raster: predictor %d", r.predictor)
	}
	if r.predictor == PredictorHorizontal && r.dtype.Float() {
		return nil, eris.Wrap(ErrUnsupported, "raster: horizontal predictor on float samples")
	}

	if d.has(tagTileWidth) {
		r.tiled = true
		r.blockW = int(d.uintOr(tagTileWidth, 0))
		r.blockH = int(d.uintOr(tagTileLength, 0))
		r.offsets = d.uints(tagTileOffsets)
		r.counts = d.uints(tagTileByteCounts)
	} else {
		r.blockW = r.width
		r.blockH = int(d.uintOr(tagRowsPerStrip, uint64(r.height)))
		if r.blockH > r.height {
			r.blockH = r.height
		}
		r.offsets = d.uints(tagStripOffsets)
		r.counts = d.uints(tagStripByteCounts)
	}
	if r.blockW <= 0 || r.blockH <= 0 {
		return nil, eris.New("raster: invalid block size")
	}
	r.blocksAcross = (r.width + r.blockW - 1) / r.blockW
	blocksDown := (r.height + r.blockH - 1) / r.blockH
	if len(r.offsets) < r.blocksAcross*blocksDown || len(r.counts) < len(r.offsets) {
		return nil, eris.Errorf("raster: expected %d blocks, found %d offsets and %d byte counts",
			r.blocksAcross*blocksDown, len(r.offsets), len(r.counts))
	}

	keys := parseGeoKeys(d.uints(tagGeoKeyDirectory))
	if r.transform, err = readTransform(d, keys[keyRasterType] == rasterPixelIsPoint); err != nil {
		return nil, err
	}

	if s := strings.TrimSpace(d.ascii(tagGDALNodata)); s != "" {
		if v, perr := strconv.ParseFloat(s, 64); perr == nil {
			r.nodata = &v
		}
	}

	if opts.CRS != "" {
		r.crs, r.crsErr = crs.Parse(opts.CRS)
	} else {
		r.crs, r.crsErr = crs.FromGeoKeys(keys[keyProjectedCSType], keys[keyGeographicType])
	}

	cacheSize := opts.CacheBlocks
	if cacheSize <= 0 {
		cacheSize = DefaultCacheBlocks
	}
	r.cache = newBlockCache(cacheSize)
	return r, nil
}

// parseGeoKeys reads the short-valued keys of a GeoKeyDirectory.
func parseGeoKeys(dir []uint64) map[int]int {
	keys := make(map[int]int)
	if len(dir) < 4 {
		return keys
	}
	n := int(dir[3])
	for i := 0; i < n && 4+4*i+3 < len(dir); i++ {
		e := dir[4+4*i : 8+4*i]
		// Location 0 means the value is stored inline.
		if e[1] == 0 {
			keys[int(e[0])] = int(e[3])
		}
	}
	return keys
}

func readTransform(d *ifd, pixelIsPoint bool) (GeoTransform, error) {
	var t GeoTransform
	switch {
	case d.has(tagModelTransformation):
		m := d.floats(tagModelTransformation)
		if len(m) < 16 {
			return t, eris.New("raster: short ModelTransformation tag")
		}
		if m[1] != 0 || m[4] != 0 {
			return t, eris.Wrap(ErrUnsupported, "raster: rotated rasters")
		}
		t = GeoTransform{OriginX: m[3], OriginY: m[7], PixelWidth: m[0], PixelHeight: -m[5]}
	case d.has(tagModelTiepoint) && d.has(tagModelPixelScale):
		tp := d.floats(tagModelTiepoint)
		sc := d.floats(tagModelPixelScale)
		if len(tp) < 6 || len(sc) < 2 {
			return t, eris.New("raster: short tiepoint or pixel scale tag")
		}
		t = GeoTransform{
			OriginX:     tp[3] - tp[0]*sc[0],
			OriginY:     tp[4] + tp[1]*sc[1],
			PixelWidth:  sc[0],
			PixelHeight: sc[1],
		}
	default:
		return t, eris.Wrap(ErrUnsupported, "raster: no georeferencing tags")
	}
	if t.PixelWidth <= 0 || t.PixelHeight <= 0 {
		return t, eris.Wrap(ErrUnsupported, "raster: non north-up pixel size")
	}
	if pixelIsPoint {
		t.OriginX -= t.PixelWidth / 2
		t.OriginY += t.PixelHeight / 2
	}
	return t, nil
}

// Close releases the file handle.
func (r *Raster) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}

// Path returns the file the raster was opened from.
func (r *Raster) Path() string { return r.path }

// Width returns the number of columns.
func (r *Raster) Width() int { return r.width }

// Height returns the number of rows.
func (r *Raster) Height() int { return r.height }

// Transform returns the pixel-to-world transform.
func (r *Raster) Transform() GeoTransform { return r.transform }

// DataType returns the sample type of band 1.
func (r *Raster) DataType() DataType { return r.dtype }

// Nodata returns the GDAL nodata value, if the file declares one.
func (r *Raster) Nodata() (float64, bool) {
	if r.nodata == nil {
		return 0, false
	}
	return *r.nodata, true
}

// CRS returns the raster CRS, or an error when the GeoKeys could not be
// resolved and no override was given.
func (r *Raster) CRS() (*crs.CRS, error) {
	if r.crsErr != nil {
		return nil, r.crsErr
	}
	return r.crs, nil
}

// Extent returns the full-raster window.
func (r *Raster) Extent() Window {
	return Window{Width: r.width, Height: r.height}
}

// Bounds returns the world box of the raster.
func (r *Raster) Bounds() Bounds {
	return r.transform.WindowBounds(r.Extent())
}

// Info summarises the raster for display and run manifests.
type Info struct {
	Path        string       `json:"path" yaml:"path"`
	Width       int          `json:"width" yaml:"width"`
	Height      int          `json:"height" yaml:"height"`
	DataType    string       `json:"data_type" yaml:"data_type"`
	Compression string       `json:"compression" yaml:"compression"`
	Layout      string       `json:"layout" yaml:"layout"`
	CRS         string       `json:"crs" yaml:"crs"`
	Nodata      *float64     `json:"nodata,omitempty" yaml:"nodata,omitempty"`
	Transform   GeoTransform `json:"transform" yaml:"transform"`
	Bounds      Bounds       `json:"bounds" yaml:"bounds"`
}

// Info returns a summary of the raster.
func (r *Raster) Info() Info {
	crsName := "unknown"
	if c, err := r.CRS(); err == nil {
		crsName = c.String()
	}
	layout := fmt.Sprintf("strips of %d rows", r.blockH)
	if r.tiled {
		layout = fmt.Sprintf("tiles %dx%d", r.blockW, r.blockH)
	}
	return Info{
		Path:        r.path,
		Width:       r.width,
		Height:      r.height,
		DataType:    r.dtype.String(),
		Compression: compressionName(r.compression),
		Layout:      layout,
		CRS:         crsName,
		Nodata:      r.nodata,
		Transform:   r.transform,
		Bounds:      r.Bounds(),
	}
}

func compressionName(c int) string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZW:
		return "lzw"
	case CompressionAdobeDeflat, CompressionDeflate:
		return "deflate"
	case CompressionPackBits:
		return "packbits"
	default:
		return strconv.Itoa(c)
	}
}
