package raster

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/rotisserie/eris"
)

// TIFF tags read by the GeoTIFF reader.
const (
	tagImageWidth          = 256
	tagImageLength         = 257
	tagBitsPerSample       = 258
	tagCompression         = 259
	tagPhotometric         = 262
	tagStripOffsets        = 273
	tagSamplesPerPixel     = 277
	tagRowsPerStrip        = 278
	tagStripByteCounts     = 279
	tagPlanarConfiguration = 284
	tagPredictor           = 317
	tagTileWidth           = 322
	tagTileLength          = 323
	tagTileOffsets         = 324
	tagTileByteCounts      = 325
	tagSampleFormat        = 339
	tagModelPixelScale     = 33550
	tagModelTiepoint       = 33922
	tagModelTransformation = 34264
	tagGeoKeyDirectory     = 34735
	tagGDALNodata          = 42113
)

// TIFF field types.
const (
	typeByte      = 1
	typeASCII     = 2
	typeShort     = 3
	typeLong      = 4
	typeRational  = 5
	typeSByte     = 6
	typeUndefined = 7
	typeSShort    = 8
	typeSLong     = 9
	typeSRational = 10
	typeFloat     = 11
	typeDouble    = 12
	typeLong8     = 16
	typeSLong8    = 17
	typeIFD8      = 18
)

var typeSizes = map[uint16]int{
	typeByte:  1, typeASCII: 1, typeShort: 2, typeLong: 4, typeRational: 8,
	typeSByte: 1, typeUndefined: 1, typeSShort: 2, typeSLong: 4, typeSRational: 8,
	typeFloat: 4, typeDouble: 8, typeLong8: 8, typeSLong8: 8, typeIFD8: 8,
}

// field is one decoded IFD entry with its value bytes.
type field struct {
	typ   uint16
	count uint64
	raw   []byte
}

// ifd holds the entries of the first image file directory.
type ifd struct {
	order  binary.ByteOrder
	fields map[uint16]field
}

// readHeader parses the TIFF/BigTIFF header and returns the byte order,
// whether the file is BigTIFF, and the offset of the first IFD.
func readHeader(r io.ReaderAt) (binary.ByteOrder, bool, uint64, error) {
	var hdr [16]byte
	if _, err := r.ReadAt(hdr[:8], 0); err != nil {
		return nil, false, 0, eris.Wrap(err, "raster: read TIFF header")
	}

	var order binary.ByteOrder
	switch string(hdr[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, false, 0, eris.Wrap(ErrUnsupported, "raster: not a TIFF file")
	}

	switch order.Uint16(hdr[2:4]) {
	case 42:
		return order, false, uint64(order.Uint32(hdr[4:8])), nil
	case 43:
		if _, err := r.ReadAt(hdr[8:16], 8); err != nil {
			return nil, false, 0, eris.Wrap(err, "raster: read BigTIFF header")
		}
		if order.Uint16(hdr[4:6]) != 8 {
			return nil, false, 0, eris.Wrap(ErrUnsupported, "raster: BigTIFF offset size")
		}
		return order, true, order.Uint64(hdr[8:16]), nil
	default:
		return nil, false, 0, eris.Wrap(ErrUnsupported, "raster: unknown TIFF version")
	}
}

// readIFD decodes the directory at offset, loading out-of-line values.
func readIFD(r io.ReaderAt, order binary.ByteOrder, big bool, offset uint64) (*ifd, error) {
	countSize, entrySize, inline := 2, 12, 4
	if big {
		countSize, entrySize, inline = 8, 20, 8
	}

	buf := make([]byte, countSize)
	if _, err := r.ReadAt(buf, int64(offset)); err != nil {
		return nil, eris.Wrap(err, "raster: read IFD entry count")
	}
	var n uint64
	if big {
		n = order.Uint64(buf)
	} else {
		n = uint64(order.Uint16(buf))
	}
	if n == 0 || n > 4096 {
		return nil, eris.Errorf("raster: implausible IFD entry count %d", n)
	}

	entries := make([]byte, int(n)*entrySize)
	if _, err := r.ReadAt(entries, int64(offset)+int64(countSize)); err != nil {
		return nil, eris.Wrap(err, "raster: read IFD entries")
	}

	d := &ifd{order: order, fields: make(map[uint16]field, n)}
	for i := 0; i < int(n); i++ {
		e := entries[i*entrySize : (i+1)*entrySize]
		tag := order.Uint16(e[0:2])
		typ := order.Uint16(e[2:4])
		size, ok := typeSizes[typ]
		if !ok {
			continue
		}

		var count uint64
		var valueBytes []byte
		if big {
			count = order.Uint64(e[4:12])
			valueBytes = e[12:20]
		} else {
			count = uint64(order.Uint32(e[4:8]))
			valueBytes = e[8:12]
		}

		total := count * uint64(size)
		if total > 1<<31 {
			return nil, eris.Errorf("raster: tag %d too large (%d bytes)", tag, total)
		}
		raw := make([]byte, total)
		if total <= uint64(inline) {
			copy(raw, valueBytes[:total])
		} else {
			var off uint64
			if big {
				off = order.Uint64(valueBytes)
			} else {
				off = uint64(order.Uint32(valueBytes))
			}
			if _, err := r.ReadAt(raw, int64(off)); err != nil {
				return nil, eris.Wrapf(err, "raster: read tag %d values", tag)
			}
		}
		d.fields[tag] = field{typ: typ, count: count, raw: raw}
	}
	return d, nil
}

func (d *ifd) has(tag uint16) bool {
	_, ok := d.fields[tag]
	return ok
}

// uints returns integer-typed values of tag.
func (d *ifd) uints(tag uint16) []uint64 {
	f, ok := d.fields[tag]
	if !ok {
		return nil
	}
	out := make([]uint64, 0, f.count)
	for i := uint64(0); i < f.count; i++ {
		switch f.typ {
		case typeByte, typeUndefined:
			out = append(out, uint64(f.raw[i]))
		case typeShort:
			out = append(out, uint64(d.order.Uint16(f.raw[2*i:])))
		case typeLong:
			out = append(out, uint64(d.order.Uint32(f.raw[4*i:])))
		case typeLong8, typeIFD8:
			out = append(out, d.order.Uint64(f.raw[8*i:]))
		default:
			return nil
		}
	}
	return out
}

// uintOr returns the first value of tag, or def when absent.
func (d *ifd) uintOr(tag uint16, def uint64) uint64 {
	v := d.uints(tag)
	if len(v) == 0 {
		return def
	}
	return v[0]
}

// floats returns floating-point values of tag (DOUBLE or FLOAT).
func (d *ifd) floats(tag uint16) []float64 {
	f, ok := d.fields[tag]
	if !ok {
		return nil
	}
	out := make([]float64, 0, f.count)
	for i := uint64(0); i < f.count; i++ {
		switch f.typ {
		case typeDouble:
			out = append(out, math.Float64frombits(d.order.Uint64(f.raw[8*i:])))
		case typeFloat:
			out = append(out, float64(math.Float32frombits(d.order.Uint32(f.raw[4*i:]))))
		default:
			return nil
		}
	}
	return out
}

// ascii returns an ASCII tag without its NUL terminator.
func (d *ifd) ascii(tag uint16) string {
	f, ok := d.fields[tag]
	if !ok || f.typ != typeASCII {
		return ""
	}
	s := f.raw
	for len(s) > 0 && s[len(s)-1] == 0 {
		s = s[:len(s)-1]
	}
	return string(s)
}
