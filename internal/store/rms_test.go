package store

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrmstation/qrmlogger/internal/domain"
	"github.com/qrmstation/qrmlogger/internal/pathguard"
)

func newGuard(t *testing.T) *pathguard.Guard {
	t.Helper()
	guard, err := pathguard.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = guard.Close() })
	return guard
}

func ptr(v float64) *float64 { return &v }

func TestRMSWriterCreatesHeaderOnFirstWrite(t *testing.T) {
	t.Parallel()
	guard := newGuard(t)
	w := NewRMSWriter(guard)

	results := []domain.ProcessingResult{
		{Run: &domain.CaptureRun{ID: "run1"}, RMSNormalized: ptr(42.4), RMSTruncated: ptr(40.1)},
		{Run: &domain.CaptureRun{ID: "run2"}, RMSNormalized: ptr(10.0), RMSTruncated: ptr(9.0)},
	}
	require.NoError(t, w.Write("setA", results, 1, time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC), ""))

	data, err := guard.ReadFile(rmsPath("setA", "rms_standard.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "counter, date, time, note, total, avg, run1, run2", lines[0])
	assert.Equal(t, "1, 2026-07-30, 12:00, , 52, 26, 42, 10", lines[1])
}

func TestRMSWriterAppendsWithoutRewriteWhenColumnsUnchanged(t *testing.T) {
	t.Parallel()
	guard := newGuard(t)
	w := NewRMSWriter(guard)

	results := []domain.ProcessingResult{{Run: &domain.CaptureRun{ID: "run1"}, RMSNormalized: ptr(50)}}
	require.NoError(t, w.Write("setA", results, 1, time.Now(), ""))
	require.NoError(t, w.Write("setA", results, 2, time.Now(), ""))

	data, err := guard.ReadFile(rmsPath("setA", "rms_standard.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
}

func TestRMSWriterBackfillsNewSpecColumnWithNegativeOne(t *testing.T) {
	t.Parallel()
	guard := newGuard(t)
	w := NewRMSWriter(guard)

	first := []domain.ProcessingResult{{Run: &domain.CaptureRun{ID: "run1"}, RMSNormalized: ptr(50)}}
	require.NoError(t, w.Write("setA", first, 1, time.Now(), ""))

	second := []domain.ProcessingResult{
		{Run: &domain.CaptureRun{ID: "run1"}, RMSNormalized: ptr(60)},
		{Run: &domain.CaptureRun{ID: "run2"}, RMSNormalized: ptr(20)},
	}
	require.NoError(t, w.Write("setA", second, 2, time.Now(), ""))

	data, err := guard.ReadFile(rmsPath("setA", "rms_standard.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "counter, date, time, note, total, avg, run1, run2", lines[0])
	assert.Contains(t, lines[1], "-1") // run2 backfilled on the row predating it
}

func TestSanitizeFieldEscapesNewlinesAndCommas(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "a b;c", sanitizeField("a\nb,c"))
}

func TestMergeSpecColumnsPreservesOrderAndAppendsNew(t *testing.T) {
	t.Parallel()
	canonical, changed := mergeSpecColumns([]string{"run1", "run2"}, []string{"run2", "run3"})
	assert.True(t, changed)
	assert.Equal(t, []string{"run1", "run2", "run3"}, canonical)
}

func TestMergeSpecColumnsNoChange(t *testing.T) {
	t.Parallel()
	canonical, changed := mergeSpecColumns([]string{"run1", "run2"}, []string{"run1", "run2"})
	assert.False(t, changed)
	assert.Equal(t, []string{"run1", "run2"}, canonical)
}
