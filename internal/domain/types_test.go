package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureParamsCloneIsDeep(t *testing.T) {
	t.Parallel()

	recTime := 30
	minDB := -90.0
	maxDB := 0.0
	original := CaptureParams{
		RecTimeSec: &recTime,
		Note:       "original",
		MinDBVal:   &minDB,
		MaxDBVal:   &maxDB,
	}

	clone := original.Clone()
	*clone.RecTimeSec = 60
	*clone.MinDBVal = -80.0
	clone.Note = "mutated"

	assert.Equal(t, 30, *original.RecTimeSec)
	assert.Equal(t, -90.0, *original.MinDBVal)
	assert.Equal(t, "original", original.Note)

	assert.Equal(t, 60, *clone.RecTimeSec)
	assert.Equal(t, -80.0, *clone.MinDBVal)
}

func TestCaptureParamsCloneHandlesNilPointers(t *testing.T) {
	t.Parallel()

	original := CaptureParams{Note: "bare"}
	clone := original.Clone()

	assert.Nil(t, clone.RecTimeSec)
	assert.Nil(t, clone.MinDBVal)
	assert.Nil(t, clone.MaxDBVal)
}

func TestNewCaptureRunPopulatesFromSpec(t *testing.T) {
	t.Parallel()

	span := 48.0
	spec := CaptureSpec{SpecIndex: 2, ID: "spec-1", CenterKHz: 14200, SpanKHz: &span}
	batchTime := time.Now()

	run := NewCaptureRun(spec, "setA", "2026-07-30", 4096, 20000, batchTime, 7, 14200000, 48000)

	require.NotNil(t, run)
	assert.Equal(t, "spec-1", run.ID)
	assert.Equal(t, int64(14200000), run.FreqHz)
	assert.Equal(t, int64(48000), run.SpanHz)
	assert.Equal(t, run.FreqHz, run.FreqEffectiveHz)
	assert.Equal(t, run.SpanHz, run.SpanEffectiveHz)
	assert.Equal(t, 2, run.Position)
	assert.Equal(t, 7, run.Counter)
	assert.Nil(t, run.RawFilename)
	assert.Nil(t, run.CaptureStartTime)
}

func TestAtomicBoolSetGet(t *testing.T) {
	t.Parallel()

	var b AtomicBool
	assert.False(t, b.Get())
	b.Set(true)
	assert.True(t, b.Get())
	b.Set(false)
	assert.False(t, b.Get())
}

func TestRecordingStatusSnapshotCopiesFields(t *testing.T) {
	t.Parallel()

	status := &RecordingStatus{
		Operation:        "capturing",
		CurrentJobNumber: 2,
		JobsTotalNumber:  5,
		IsError:          false,
		SDRActive:        true,
	}
	status.CancelRequested.Set(true)

	snap := status.Snapshot()
	assert.Equal(t, "capturing", snap.Operation)
	assert.Equal(t, 2, snap.CurrentJobNumber)
	assert.Equal(t, 5, snap.JobsTotalNumber)
	assert.True(t, snap.SDRActive)
}
