package rawcodec

import (
	"bytes"
	"compress/zlib"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrmstation/qrmlogger/internal/xerrors"
)

func TestWriteLoadRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data [][]int32
	}{
		{name: "single row", data: [][]int32{{1, 2, 3}}},
		{name: "multiple rows", data: [][]int32{{-10, 0, 10}, {5, 5, 5}, {100, -100, 0}}},
		{name: "single column", data: [][]int32{{7}, {8}, {9}}},
		{name: "empty", data: [][]int32{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			_, _, err := Write(&buf, tt.data)
			require.NoError(t, err)

			got, err := Load(&buf, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.data, got)
		})
	}
}

func TestWriteRejectsRaggedRows(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	_, _, err := Write(&buf, [][]int32{{1, 2}, {3}})
	require.Error(t, err)
}

func TestLoadRejectsTruncatedHeader(t *testing.T) {
	t.Parallel()

	// A valid zlib stream whose payload is shorter than the array header.
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write([]byte{0x01, 0x02})
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = Load(&buf, 0)
	require.Error(t, err)
	assert.True(t, xerrors.IsCategory(err, xerrors.CategoryBadArrayHeader))
}

func TestLoadRejectsBadMagic(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	_, _, err := Write(&buf, [][]int32{{1, 2, 3}})
	require.NoError(t, err)

	// Decompress, overwrite the first magic byte, and recompress, so the
	// zlib stream stays valid and only the array magic is wrong.
	zr, err := zlib.NewReader(&buf)
	require.NoError(t, err)
	payload, err := io.ReadAll(zr)
	require.NoError(t, err)
	payload[0] = 'X'

	var corrupted bytes.Buffer
	zw := zlib.NewWriter(&corrupted)
	_, err = zw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = Load(&corrupted, 0)
	require.Error(t, err)
	assert.True(t, xerrors.IsCategory(err, xerrors.CategoryBadArrayHeader))
}

func TestCompressionReducesSize(t *testing.T) {
	t.Parallel()

	data := make([][]int32, 64)
	for i := range data {
		row := make([]int32, 64)
		data[i] = row // all zero rows compress well
	}

	var buf bytes.Buffer
	uncompressed, compressed, err := Write(&buf, data)
	require.NoError(t, err)
	assert.Less(t, compressed, uncompressed)
}
