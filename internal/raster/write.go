package raster

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"sort"
	"strconv"

	"github.com/klauspost/compress/zlib"
	"github.com/rotisserie/eris"

	"github.com/sells-group/wildfire-exposure/internal/crs"
)

// WriteOptions configures WriteGeoTIFF.
type WriteOptions struct {
	Transform    GeoTransform
	EPSG         int
	Nodata       *float64
	DataType     DataType
	Compression  int
	Predictor    int
	RowsPerStrip int
	// TileSize switches to a tiled layout when > 0. Must be a multiple of 16.
	TileSize     int
	PixelIsPoint bool
}

type tiffEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

// WriteGeoTIFF writes a single-band little-endian GeoTIFF. values holds
// width*height samples in row-major order.
func WriteGeoTIFF(path string, width, height int, values []float64, opts WriteOptions) error {
	if width <= 0 || height <= 0 || len(values) != width*height {
		return eris.Errorf("raster: %d values for a %dx%d grid", len(values), width, height)
	}
	if opts.DataType == 0 {
		opts.DataType = Float32
	}
	if opts.Compression == 0 {
		opts.Compression = CompressionNone
	}
	if opts.Predictor == 0 {
		opts.Predictor = PredictorNone
	}
	if opts.Predictor == PredictorHorizontal && opts.DataType.Float() {
		return eris.Wrap(ErrUnsupported, "raster: horizontal predictor on float samples")
	}
	if opts.TileSize > 0 && opts.TileSize%16 != 0 {
		return eris.Errorf("raster: tile size %d is not a multiple of 16", opts.TileSize)
	}

	order := binary.LittleEndian
	bw, bh := width, opts.RowsPerStrip
	if bh <= 0 || bh > height {
		bh = height
	}
	if opts.TileSize > 0 {
		bw, bh = opts.TileSize, opts.TileSize
	}
	across := (width + bw - 1) / bw
	down := (height + bh - 1) / bh

	var body bytes.Buffer
	offsets := make([]uint32, 0, across*down)
	counts := make([]uint32, 0, across*down)
	for by := 0; by < down; by++ {
		for bx := 0; bx < across; bx++ {
			rows := bh
			if opts.TileSize == 0 && (by+1)*bh > height {
				rows = height - by*bh
			}
			raw := encodeBlock(values, width, height, bx*bw, by*bh, bw, rows, order, opts)
			enc, err := compressBlock(opts.Compression, raw)
			if err != nil {
				return err
			}
			offsets = append(offsets, uint32(8+body.Len()))
			counts = append(counts, uint32(len(enc)))
			body.Write(enc)
			if body.Len()%2 == 1 {
				body.WriteByte(0)
			}
		}
	}

	format := uint16(1)
	switch {
	case opts.DataType.Float():
		format = 3
	case opts.DataType == Int8 || opts.DataType == Int16 || opts.DataType == Int32:
		format = 2
	}

	entries := []tiffEntry{
		shortEntry(order, tagImageWidth, uint16(width)),
		shortEntry(order, tagImageLength, uint16(height)),
		shortEntry(order, tagBitsPerSample, uint16(opts.DataType.Size()*8)),
		shortEntry(order, tagCompression, uint16(opts.Compression)),
		shortEntry(order, tagPhotometric, 1),
		shortEntry(order, tagSamplesPerPixel, 1),
		shortEntry(order, tagPlanarConfiguration, 1),
		shortEntry(order, tagSampleFormat, format),
		doubleEntry(order, tagModelPixelScale, opts.Transform.PixelWidth, opts.Transform.PixelHeight, 0),
	}
	if opts.Predictor != PredictorNone {
		entries = append(entries, shortEntry(order, tagPredictor, uint16(opts.Predictor)))
	}
	if opts.TileSize > 0 {
		entries = append(entries,
			shortEntry(order, tagTileWidth, uint16(bw)),
			shortEntry(order, tagTileLength, uint16(bh)),
			longEntry(order, tagTileOffsets, offsets...),
			longEntry(order, tagTileByteCounts, counts...),
		)
	} else {
		entries = append(entries,
			shortEntry(order, tagRowsPerStrip, uint16(bh)),
			longEntry(order, tagStripOffsets, offsets...),
			longEntry(order, tagStripByteCounts, counts...),
		)
	}

	ox, oy := opts.Transform.OriginX, opts.Transform.OriginY
	rasterType := uint16(1)
	if opts.PixelIsPoint {
		ox += opts.Transform.PixelWidth / 2
		oy -= opts.Transform.PixelHeight / 2
		rasterType = rasterPixelIsPoint
	}
	entries = append(entries, doubleEntry(order, tagModelTiepoint, 0, 0, 0, ox, oy, 0))

	if opts.EPSG > 0 {
		c, err := crs.FromEPSG(opts.EPSG)
		if err != nil {
			return eris.Wrapf(err, "raster: geokeys for EPSG:%d", opts.EPSG)
		}
		modelType, csKey := uint16(1), uint16(keyProjectedCSType)
		if c.IsGeographic() {
			modelType, csKey = 2, keyGeographicType
		}
		entries = append(entries, shortEntry(order, tagGeoKeyDirectory,
			1, 1, 0, 3,
			keyModelType, 0, 1, modelType,
			keyRasterType, 0, 1, rasterType,
			csKey, 0, 1, uint16(opts.EPSG),
		))
	} else if opts.PixelIsPoint {
		entries = append(entries, shortEntry(order, tagGeoKeyDirectory,
			1, 1, 0, 1,
			keyRasterType, 0, 1, rasterType,
		))
	}
	if opts.Nodata != nil {
		s := strconv.FormatFloat(*opts.Nodata, 'g', -1, 64) + "\x00"
		entries = append(entries, tiffEntry{tag: tagGDALNodata, typ: typeASCII, count: uint32(len(s)), data: []byte(s)})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	ifdOffset := uint32(8 + body.Len())
	overflow := ifdOffset + 2 + uint32(12*len(entries)) + 4
	var ifdBuf, extra bytes.Buffer
	_ = binary.Write(&ifdBuf, order, uint16(len(entries)))
	for _, e := range entries {
		var ent [12]byte
		order.PutUint16(ent[0:], e.tag)
		order.PutUint16(ent[2:], e.typ)
		order.PutUint32(ent[4:], e.count)
		if len(e.data) <= 4 {
			copy(ent[8:], e.data)
		} else {
			order.PutUint32(ent[8:], overflow+uint32(extra.Len()))
			extra.Write(e.data)
			if extra.Len()%2 == 1 {
				extra.WriteByte(0)
			}
		}
		ifdBuf.Write(ent[:])
	}
	_ = binary.Write(&ifdBuf, order, uint32(0))

	var out bytes.Buffer
	out.WriteString("II")
	_ = binary.Write(&out, order, uint16(42))
	_ = binary.Write(&out, order, ifdOffset)
	out.Write(body.Bytes())
	out.Write(ifdBuf.Bytes())
	out.Write(extra.Bytes())

	if err := os.WriteFile(path, out.Bytes(), 0o644); err != nil {
		return eris.Wrapf(err, "raster: write %s", path)
	}
	return nil
}

// encodeBlock lays out one strip or tile, padding cells past the grid with 0.
func encodeBlock(values []float64, width, height, col0, row0, bw, bh int, order binary.ByteOrder, opts WriteOptions) []byte {
	size := opts.DataType.Size()
	buf := make([]byte, bw*bh*size)
	for r := 0; r < bh; r++ {
		for c := 0; c < bw; c++ {
			v := 0.0
			if row0+r < height && col0+c < width {
				v = values[(row0+r)*width+col0+c]
			}
			if math.IsNaN(v) && !opts.DataType.Float() {
				v = 0
			}
			putSample(buf, r*bw+c, order, opts.DataType, v)
		}
	}
	if opts.Predictor == PredictorHorizontal {
		applyHorizontalPredictor(buf, order, opts.DataType, bw)
	}
	return buf
}

// applyHorizontalPredictor differences each row from right to left.
func applyHorizontalPredictor(buf []byte, order binary.ByteOrder, dt DataType, width int) {
	size := dt.Size()
	rowBytes := width * size
	for row := 0; row+rowBytes <= len(buf); row += rowBytes {
		line := buf[row : row+rowBytes]
		for i := len(line) - size; i >= size; i -= size {
			switch size {
			case 1:
				line[i] -= line[i-1]
			case 2:
				order.PutUint16(line[i:], order.Uint16(line[i:])-order.Uint16(line[i-2:]))
			case 4:
				order.PutUint32(line[i:], order.Uint32(line[i:])-order.Uint32(line[i-4:]))
			}
		}
	}
}

func compressBlock(compression int, raw []byte) ([]byte, error) {
	switch compression {
	case CompressionNone:
		return raw, nil
	case CompressionAdobeDeflat, CompressionDeflate:
		var b bytes.Buffer
		zw := zlib.NewWriter(&b)
		if _, err := zw.Write(raw); err != nil {
			return nil, eris.Wrap(err, "raster: deflate block")
		}
		if err := zw.Close(); err != nil {
			return nil, eris.Wrap(err, "raster: deflate block")
		}
		return b.Bytes(), nil
	case CompressionPackBits:
		return packBits(raw), nil
	}
	return nil, eris.Wrapf(ErrUnsupported, "raster: cannot write compression %d", compression)
}

// packBits encodes runs of 3+ equal bytes as repeats, everything else as
// literals.
func packBits(src []byte) []byte {
	var out []byte
	for i := 0; i < len(src); {
		run := 1
		for i+run < len(src) && run < 128 && src[i+run] == src[i] {
			run++
		}
		if run >= 3 {
			out = append(out, byte(int8(1-run)), src[i])
			i += run
			continue
		}
		start := i
		for i < len(src) && i-start < 128 {
			if i+2 < len(src) && src[i] == src[i+1] && src[i] == src[i+2] {
				break
			}
			i++
		}
		out = append(out, byte(i-start-1))
		out = append(out, src[start:i]...)
	}
	return out
}

func shortEntry(order binary.ByteOrder, tag uint16, vals ...uint16) tiffEntry {
	b := make([]byte, 2*len(vals))
	for i, v := range vals {
		order.PutUint16(b[2*i:], v)
	}
	return tiffEntry{tag: tag, typ: typeShort, count: uint32(len(vals)), data: b}
}

func longEntry(order binary.ByteOrder, tag uint16, vals ...uint32) tiffEntry {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		order.PutUint32(b[4*i:], v)
	}
	return tiffEntry{tag: tag, typ: typeLong, count: uint32(len(vals)), data: b}
}

func doubleEntry(order binary.ByteOrder, tag uint16, vals ...float64) tiffEntry {
	b := make([]byte, 8*len(vals))
	for i, v := range vals {
		order.PutUint64(b[8*i:], math.Float64bits(v))
	}
	return tiffEntry{tag: tag, typ: typeDouble, count: uint32(len(vals)), data: b}
}
