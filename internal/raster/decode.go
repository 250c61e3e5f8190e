package raster

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/klauspost/compress/zlib"
	"github.com/rotisserie/eris"
	"golang.org/x/image/tiff/lzw"
)

// DataType is the sample type of a band.
type DataType int

// Supported sample types.
const (
	Uint8 DataType = iota + 1
	Int8
	Uint16
	Int16
	Uint32
	Int32
	Float32
	Float64
)

// String returns the GDAL-style name.
func (t DataType) String() string {
	switch t {
	case Uint8:
		return "Byte"
	case Int8:
		return "Int8"
	case Uint16:
		return "UInt16"
	case Int16:
		return "Int16"
	case Uint32:
		return "UInt32"
	case Int32:
		return "Int32"
	case Float32:
		return "Float32"
	case Float64:
		return "Float64"
	default:
		return "Unknown"
	}
}

// Size returns the bytes per sample.
func (t DataType) Size() int {
	switch t {
	case Uint8, Int8:
		return 1
	case Uint16, Int16:
		return 2
	case Uint32, Int32, Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

// Float reports whether samples are IEEE floats.
func (t DataType) Float() bool { return t == Float32 || t == Float64 }

// dataTypeFor maps SampleFormat and BitsPerSample to a DataType.
func dataTypeFor(format, bits int) (DataType, error) {
	switch {
	case format == 1 && bits == 8:
		return Uint8, nil
	case format == 2 && bits == 8:
		return Int8, nil
	case format == 1 && bits == 16:
		return Uint16, nil
	case format == 2 && bits == 16:
		return Int16, nil
	case format == 1 && bits == 32:
		return Uint32, nil
	case format == 2 && bits == 32:
		return Int32, nil
	case format == 3 && bits == 32:
		return Float32, nil
	case format == 3 && bits == 64:
		return Float64, nil
	}
	return 0, eris.Wrapf(ErrUnsupported, "raster: sample format %d with %d bits", format, bits)
}

// decompress inflates one strip or tile.
func decompress(compression int, src []byte, want int) ([]byte, error) {
	switch compression {
	case CompressionNone:
		return src, nil
	case CompressionLZW:
		rc := lzw.NewReader(bytes.NewReader(src), lzw.MSB, 8)
		defer rc.Close() //nolint:errcheck
		return readAtMost(rc, want)
	case CompressionAdobeDeflat, CompressionDeflate:
		rc, err := zlib.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, eris.Wrap(err, "raster: deflate header")
		}
		defer rc.Close() //nolint:errcheck
		return readAtMost(rc, want)
	case CompressionPackBits:
		return unpackBits(src, want)
	}
	return nil, eris.Wrapf(ErrUnsupported, "raster: compression %d", compression)
}

// readAtMost reads up to want bytes. Encoders may leave trailing padding
// or end early on the last block, so a short read is not an error here.
func readAtMost(r io.Reader, want int) ([]byte, error) {
	buf := make([]byte, want)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, eris.Wrap(err, "raster: decompress block")
	}
	return buf[:n], nil
}

// unpackBits decodes Apple PackBits run-length data.
func unpackBits(src []byte, want int) ([]byte, error) {
	out := make([]byte, 0, want)
	for i := 0; i < len(src) && len(out) < want; {
		n := int(int8(src[i]))
		i++
		switch {
		case n >= 0:
			end := i + n + 1
			if end > len(src) {
				return nil, eris.New("raster: truncated PackBits literal run")
			}
			out = append(out, src[i:end]...)
			i = end
		case n != -128:
			if i >= len(src) {
				return nil, eris.New("raster: truncated PackBits repeat run")
			}
			for k := 0; k < 1-n; k++ {
				out = append(out, src[i])
			}
			i++
		}
	}
	return out, nil
}

// undoHorizontalPredictor reverses predictor 2 in place over rows of
// width samples.
func undoHorizontalPredictor(buf []byte, order binary.ByteOrder, dt DataType, width, spp int) {
	size := dt.Size()
	rowBytes := width * spp * size
	if rowBytes == 0 {
		return
	}
	for row := 0; row+rowBytes <= len(buf); row += rowBytes {
		line := buf[row : row+rowBytes]
		switch size {
		case 1:
			for i := spp; i < len(line); i++ {
				line[i] += line[i-spp]
			}
		case 2:
			for i := spp * 2; i < len(line); i += 2 {
				order.PutUint16(line[i:], order.Uint16(line[i:])+order.Uint16(line[i-2*spp:]))
			}
		case 4:
			for i := spp * 4; i < len(line); i += 4 {
				order.PutUint32(line[i:], order.Uint32(line[i:])+order.Uint32(line[i-4*spp:]))
			}
		}
	}
}

// sample decodes sample i of buf as float64.
func sample(buf []byte, i int, order binary.ByteOrder, dt DataType) float64 {
	switch dt {
	case Uint8:
		return float64(buf[i])
	case Int8:
		return float64(int8(buf[i]))
	case Uint16:
		return float64(order.Uint16(buf[2*i:]))
	case Int16:
		return float64(int16(order.Uint16(buf[2*i:])))
	case Uint32:
		return float64(order.Uint32(buf[4*i:]))
	case Int32:
		return float64(int32(order.Uint32(buf[4*i:])))
	case Float32:
		return float64(math.Float32frombits(order.Uint32(buf[4*i:])))
	case Float64:
		return math.Float64frombits(order.Uint64(buf[8*i:]))
	}
	return math.NaN()
}

// putSample encodes v as sample i of buf.
func putSample(buf []byte, i int, order binary.ByteOrder, dt DataType, v float64) {
	switch dt {
	case Uint8:
		buf[i] = uint8(int64(v))
	case Int8:
		buf[i] = byte(int8(int64(v)))
	case Uint16:
		order.PutUint16(buf[2*i:], uint16(int64(v)))
	case Int16:
		order.PutUint16(buf[2*i:], uint16(int16(int64(v))))
	case Uint32:
		order.PutUint32(buf[4*i:], uint32(int64(v)))
	case Int32:
		order.PutUint32(buf[4*i:], uint32(int32(int64(v))))
	case Float32:
		order.PutUint32(buf[4*i:], math.Float32bits(float32(v)))
	case Float64:
		order.PutUint64(buf[8*i:], math.Float64bits(v))
	}
}
