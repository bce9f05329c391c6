package recorder

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrmstation/qrmlogger/internal/conf"
	"github.com/qrmstation/qrmlogger/internal/domain"
	"github.com/qrmstation/qrmlogger/internal/pathguard"
	"github.com/qrmstation/qrmlogger/internal/sink"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testSettings() *conf.Settings {
	s := &conf.Settings{}
	s.Recording.FrequencyChangeDelaySec = 0
	s.Recording.FrameRateDefault = 200
	s.SDR.BandwidthKHz = 48
	return s
}

func newTestRecorder(t *testing.T) (*Recorder, *sink.Sink) {
	t.Helper()
	guard, err := pathguard.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = guard.Close() })

	logger := testLogger()
	s := sink.New(guard, logger)
	src := NewSimulate(logger)
	r := New(src, s, testSettings(), logger)
	return r, s
}

func oneRun(recTimeMS int64) []*domain.CaptureRun {
	spec := domain.CaptureSpec{ID: "run1", CenterKHz: 14200}
	run := domain.NewCaptureRun(spec, "setA", "2026-07-30", 8, recTimeMS, time.Now(), 1, 14200000, 48000)
	return []*domain.CaptureRun{run}
}

func TestExecuteRecordingsCompletesRun(t *testing.T) {
	t.Parallel()

	r, s := newTestRecorder(t)
	require.NoError(t, r.OnRecordStart())
	defer r.OnRecordEnd()

	status := &domain.RecordingStatus{}
	runs := oneRun(50)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cancelled := r.ExecuteRecordings(ctx, status, runs)

	assert.False(t, cancelled)
	assert.Equal(t, sink.Idle, s.State())
	assert.NotNil(t, runs[0].RawFilename)
}

func TestExecuteRecordingsHonorsCancelBeforeRun(t *testing.T) {
	t.Parallel()

	r, _ := newTestRecorder(t)
	require.NoError(t, r.OnRecordStart())
	defer r.OnRecordEnd()

	status := &domain.RecordingStatus{}
	status.CancelRequested.Set(true)
	runs := oneRun(50)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cancelled := r.ExecuteRecordings(ctx, status, runs)

	assert.True(t, cancelled)
	assert.Nil(t, runs[0].RawFilename)
}

func TestExecuteRecordingsStopsMidRun(t *testing.T) {
	t.Parallel()

	r, s := newTestRecorder(t)
	require.NoError(t, r.OnRecordStart())
	defer r.OnRecordEnd()

	status := &domain.RecordingStatus{}
	runs := oneRun(10_000)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		time.Sleep(150 * time.Millisecond)
		status.CancelRequested.Set(true)
	}()

	cancelled := r.ExecuteRecordings(ctx, status, runs)

	assert.True(t, cancelled)
	assert.Equal(t, sink.Idle, s.State())
}

func TestBuildRunsSpanResolutionPriority(t *testing.T) {
	t.Parallel()

	settings := testSettings()
	explicitSpan := 12.0
	set := domain.CaptureSet{
		ID: "setA",
		Specs: []domain.CaptureSpec{
			{ID: "explicit", CenterKHz: 7100, SpanKHz: &explicitSpan},
			{ID: "fallback", CenterKHz: 14200},
		},
	}

	dynamic := &conf.DynamicConfig{
		SDRBandwidthKHz: 96,
		CaptureSetConfigurations: map[string]conf.CaptureSetOverride{
			"setA": {BandwidthKHz: 24},
		},
	}

	runs := BuildRuns(set, "2026-07-30", 4096, 20000, time.Now(), 1, settings, dynamic)
	require.Len(t, runs, 2)

	assert.Equal(t, int64(12_000), runs[0].SpanHz)
	assert.Equal(t, int64(24_000), runs[1].SpanHz)
}

func TestBuildRunsFallsBackToGlobalBandwidth(t *testing.T) {
	t.Parallel()

	settings := testSettings()
	set := domain.CaptureSet{
		ID: "setB",
		Specs: []domain.CaptureSpec{
			{ID: "only", CenterKHz: 14200},
		},
	}

	runs := BuildRuns(set, "2026-07-30", 4096, 20000, time.Now(), 1, settings, nil)
	require.Len(t, runs, 1)
	assert.Equal(t, int64(48_000), runs[0].SpanHz)
}

func TestGainClampingNeverRejects(t *testing.T) {
	t.Parallel()

	logger := testLogger()
	d := NewRTLSDR(logger)
	require.NoError(t, d.SetGain(1000, 0))
	_, max := d.GainRange()
	assert.Equal(t, max, d.rfGain)
}
