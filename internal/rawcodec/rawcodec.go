// Package rawcodec serializes and deserializes 2-D int32 spectrograms to
// disk as a self-describing array blob wrapped in a zlib stream. The blob
// uses this package's own fixed "QRM1" header (see headerSize), not the
// numpy .npy layout.
package rawcodec

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"

	kzlib "github.com/klauspost/compress/zlib"

	"github.com/qrmstation/qrmlogger/internal/xerrors"
)

// magic identifies the array-blob header; version allows future format
// changes without breaking readers of older files.
var magic = [4]byte{'Q', 'R', 'M', '1'}

const headerVersion = 1

// dtype tags. Only int32 is produced by this station, but the tag is kept
// so a reader can reject an unexpected format rather than misinterpret it.
const dtypeInt32 = 1

// byte order flags.
const littleEndian = 0

// header is the fixed-layout prefix before row-major int32 data:
// magic(4) | version(1) | dtype(1) | byteOrder(1) | reserved(1) | rows(u32) | cols(u32)
const headerSize = 4 + 1 + 1 + 1 + 1 + 4 + 4

// Write serializes data (rows x cols, row-major) with its shape header,
// compresses it, and writes it to w. Returns the uncompressed and
// compressed byte counts for the caller's performance logging.
func Write(w io.Writer, data [][]int32) (uncompressedBytes, compressedBytes int, err error) {
	rows := len(data)
	cols := 0
	if rows > 0 {
		cols = len(data[0])
	}

	buf := make([]byte, headerSize, headerSize+rows*cols*4)
	copy(buf[0:4], magic[:])
	buf[4] = headerVersion
	buf[5] = dtypeInt32
	buf[6] = littleEndian
	buf[7] = 0 // reserved
	binary.LittleEndian.PutUint32(buf[8:12], uint32(rows))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(cols))

	for _, row := range data {
		if len(row) != cols {
			return 0, 0, xerrors.New(fmt.Errorf("ragged row: expected %d cols, got %d", cols, len(row))).
				Category(xerrors.CategoryBadArrayHeader).Build()
		}
		rowBytes := make([]byte, cols*4)
		for i, v := range row {
			binary.LittleEndian.PutUint32(rowBytes[i*4:i*4+4], uint32(v))
		}
		buf = append(buf, rowBytes...)
	}
	uncompressedBytes = len(buf)

	var compressed bytes.Buffer
	zw := kzlib.NewWriter(&compressed)
	if _, err := zw.Write(buf); err != nil {
		return 0, 0, fmt.Errorf("compressing spectrogram: %w", err)
	}
	if err := zw.Close(); err != nil {
		return 0, 0, fmt.Errorf("closing compressor: %w", err)
	}
	compressedBytes = compressed.Len()

	if _, err := w.Write(compressed.Bytes()); err != nil {
		return 0, 0, fmt.Errorf("writing compressed spectrogram: %w", err)
	}
	return uncompressedBytes, compressedBytes, nil
}

// Load reads and decompresses a spectrogram previously written by Write.
// expectedFFTSize is advisory only; the header's column count is
// authoritative.
func Load(r io.Reader, expectedFFTSize int) ([][]int32, error) {
	zr, err := kzlib.NewReader(r)
	if err != nil {
		return nil, xerrors.New(fmt.Errorf("opening zlib stream: %w", err)).
			Category(xerrors.CategoryCorruptRaw).Build()
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		if err == zlib.ErrChecksum || err == io.ErrUnexpectedEOF {
			return nil, xerrors.New(fmt.Errorf("decompressing spectrogram: %w", err)).
				Category(xerrors.CategoryCorruptRaw).Build()
		}
		return nil, xerrors.New(fmt.Errorf("decompressing spectrogram: %w", err)).
			Category(xerrors.CategoryCorruptRaw).Build()
	}

	if len(raw) < headerSize {
		return nil, xerrors.New(fmt.Errorf("array header truncated: %d bytes", len(raw))).
			Category(xerrors.CategoryBadArrayHeader).Build()
	}
	if !bytes.Equal(raw[0:4], magic[:]) {
		return nil, xerrors.New(fmt.Errorf("bad array magic")).
			Category(xerrors.CategoryBadArrayHeader).Build()
	}
	if raw[5] != dtypeInt32 {
		return nil, xerrors.New(fmt.Errorf("unsupported dtype tag %d", raw[5])).
			Category(xerrors.CategoryBadArrayHeader).Build()
	}

	rows := int(binary.LittleEndian.Uint32(raw[8:12]))
	cols := int(binary.LittleEndian.Uint32(raw[12:16]))
	wantLen := headerSize + rows*cols*4
	if len(raw) != wantLen {
		return nil, xerrors.New(fmt.Errorf("array body size mismatch: header claims %dx%d (%d bytes), got %d",
			rows, cols, wantLen-headerSize, len(raw)-headerSize)).
			Category(xerrors.CategoryBadArrayHeader).Build()
	}

	_ = expectedFFTSize // advisory only; header is authoritative

	data := make([][]int32, rows)
	offset := headerSize
	for i := range rows {
		row := make([]int32, cols)
		for j := range cols {
			row[j] = int32(binary.LittleEndian.Uint32(raw[offset : offset+4]))
			offset += 4
		}
		data[i] = row
	}
	return data, nil
}
