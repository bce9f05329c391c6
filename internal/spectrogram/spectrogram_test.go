package spectrogram

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrmstation/qrmlogger/internal/domain"
	"github.com/qrmstation/qrmlogger/internal/pathguard"
	"github.com/qrmstation/qrmlogger/internal/rawcodec"
)

func writeRaw(t *testing.T, guard *pathguard.Guard, path string, cols int) {
	t.Helper()
	data := make([][]int32, 3)
	for i := range data {
		row := make([]int32, cols)
		for j := range row {
			row[j] = int32(j)
		}
		data[i] = row
	}
	var buf bytes.Buffer
	_, _, err := rawcodec.Write(&buf, data)
	require.NoError(t, err)
	require.NoError(t, guard.WriteFile(path, buf.Bytes(), 0o644))
}

func TestLoadWithoutFreqRangeReturnsUncropped(t *testing.T) {
	t.Parallel()

	guard, err := pathguard.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = guard.Close() })
	writeRaw(t, guard, "run.raw", 100)

	path := "run.raw"
	spec := domain.CaptureSpec{ID: "run1", CenterKHz: 14200}
	run := domain.NewCaptureRun(spec, "setA", "2026-07-30", 100, 10000, time.Now(), 1, 14200000, 100000)
	run.RawFilename = &path

	original, cropped, err := Load(guard, run)
	require.NoError(t, err)
	assert.Len(t, cropped, 3)
	assert.Len(t, cropped[0], 100)
	assert.Equal(t, original, cropped)
}

func TestLoadNilWhenNoRawFilename(t *testing.T) {
	t.Parallel()

	guard, err := pathguard.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = guard.Close() })

	spec := domain.CaptureSpec{ID: "run1", CenterKHz: 14200}
	run := domain.NewCaptureRun(spec, "setA", "2026-07-30", 100, 10000, time.Now(), 1, 14200000, 100000)

	original, cropped, err := Load(guard, run)
	require.NoError(t, err)
	assert.Nil(t, original)
	assert.Nil(t, cropped)
}

func TestCropNarrowsToFreqRangeAndUpdatesEffectiveTuning(t *testing.T) {
	t.Parallel()

	guard, err := pathguard.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = guard.Close() })
	writeRaw(t, guard, "run.raw", 100)

	path := "run.raw"
	fr := &domain.FreqRange{ID: "roi", StartKHz: 14180, EndKHz: 14220, CropMarginKHz: 2}
	spec := domain.CaptureSpec{ID: "run1", CenterKHz: 14200, FreqRange: fr}
	run := domain.NewCaptureRun(spec, "setA", "2026-07-30", 100, 10000, time.Now(), 1, 14200000, 100000)
	run.RawFilename = &path

	_, cropped, err := Load(guard, run)
	require.NoError(t, err)
	assert.Less(t, len(cropped[0]), 100)
	assert.Less(t, run.SpanEffectiveHz, int64(100000))
}

func TestCropRejectsRangeOutsideOriginalWindow(t *testing.T) {
	t.Parallel()

	guard, err := pathguard.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = guard.Close() })
	writeRaw(t, guard, "run.raw", 100)

	path := "run.raw"
	fr := &domain.FreqRange{ID: "roi", StartKHz: 99999, EndKHz: 100000}
	spec := domain.CaptureSpec{ID: "run1", CenterKHz: 14200, FreqRange: fr}
	run := domain.NewCaptureRun(spec, "setA", "2026-07-30", 100, 10000, time.Now(), 1, 14200000, 100000)
	run.RawFilename = &path

	_, _, err = Load(guard, run)
	require.Error(t, err)
}
