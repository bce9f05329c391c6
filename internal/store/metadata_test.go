package store

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrmstation/qrmlogger/internal/domain"
)

func TestMetadataWriterSavesRowWithHeaderOnFirstCall(t *testing.T) {
	t.Parallel()
	guard := newGuard(t)
	w := NewMetadataWriter(guard)

	run := &domain.CaptureRun{CaptureSetID: "setA", DateString: "2026-07-30", Counter: 3, Position: 1, ID: "run1", BatchTime: time.Date(2026, 7, 30, 9, 5, 0, 0, time.UTC)}
	require.NoError(t, w.Save(run, "waterfall", "", "setA_run1_waterfall.png"))

	data, err := guard.ReadFile(MetadataPath("setA", "2026-07-30", "waterfall"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "count,time_string,position,capture_id,note,filename", lines[0])
	assert.Equal(t, "0003,09:05,01,run1,,setA_run1_waterfall.png", lines[1])
}

func TestMetadataWriterAppendsSubsequentRows(t *testing.T) {
	t.Parallel()
	guard := newGuard(t)
	w := NewMetadataWriter(guard)

	run := &domain.CaptureRun{CaptureSetID: "setA", DateString: "2026-07-30", Counter: 1, Position: 0, ID: "run1", BatchTime: time.Now()}
	require.NoError(t, w.Save(run, "average", "", "a.png"))
	require.NoError(t, w.Save(run, "average", "note here", "b.png"))

	data, err := guard.ReadFile(MetadataPath("setA", "2026-07-30", "average"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
}
