package raster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackBitsRoundTrip(t *testing.T) {
	inputs := [][]byte{
		{},
		{1},
		{7, 7, 7, 7, 7, 7},
		{1, 2, 3, 3, 3, 3, 4, 5, 5},
		make([]byte, 400),
	}
	long := make([]byte, 300)
	for i := range long {
		long[i] = byte(i)
	}
	inputs = append(inputs, long)

	for _, in := range inputs {
		enc := packBits(in)
		out, err := unpackBits(enc, len(in))
		require.NoError(t, err)
		assert.Equal(t, len(in), len(out))
		if len(in) > 0 {
			assert.Equal(t, in, out)
		}
	}
}

func TestUnpackBits_Truncated(t *testing.T) {
	_, err := unpackBits([]byte{5, 1, 2}, 6)
	assert.Error(t, err)

	_, err = unpackBits([]byte{0xFE}, 3)
	assert.Error(t, err)
}

func TestUnpackBits_NoOp(t *testing.T) {
	out, err := unpackBits([]byte{0x80, 0x00, 9}, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, out)
}

func TestDataTypeFor(t *testing.T) {
	dt, err := dataTypeFor(1, 16)
	require.NoError(t, err)
	assert.Equal(t, Uint16, dt)
	assert.Equal(t, 2, dt.Size())

	dt, err = dataTypeFor(3, 32)
	require.NoError(t, err)
	assert.True(t, dt.Float())

	_, err = dataTypeFor(3, 16)
	assert.ErrorIs(t, err, ErrUnsupported)
}
