package store

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrmstation/qrmlogger/internal/domain"
)

func testRun(setID string, counter int, id string) *domain.CaptureRun {
	return &domain.CaptureRun{CaptureSetID: setID, Counter: counter, ID: id}
}

func TestLogStoreCoalescesConsecutiveSameTypeMessages(t *testing.T) {
	t.Parallel()
	s := NewLogStore(newGuard(t))
	run := testRun("setA", 1, "run1")

	s.Collect(run, "calculate_rms", "first line")
	s.Collect(run, "calculate_rms", "second line")

	s.mu.Lock()
	require.Len(t, s.buffer, 1)
	assert.Equal(t, "first line\nsecond line", s.buffer[0].text)
	s.mu.Unlock()
}

func TestLogStoreKeepsDistinctTypesSeparate(t *testing.T) {
	t.Parallel()
	s := NewLogStore(newGuard(t))
	run := testRun("setA", 1, "run1")

	s.Collect(run, "calculate_rms", "a")
	s.Collect(run, "process_spectrum", "b")

	s.mu.Lock()
	require.Len(t, s.buffer, 2)
	s.mu.Unlock()
}

func TestLogStoreFlushWritesHeaderAndEscapesText(t *testing.T) {
	t.Parallel()
	guard := newGuard(t)
	s := NewLogStore(guard)
	run := testRun("setA", 1, "run1")

	s.Collect(run, "calculate_rms", "line one\nline two, with comma")
	require.NoError(t, s.Flush(run, time.Date(2026, 7, 30, 8, 30, 0, 0, time.UTC)))

	data, err := guard.ReadFile("setA/log/log_2026-07-30.csv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "counter,date,time,id,type,log_text", lines[0])
	assert.Contains(t, lines[1], "line one | line two; with comma")
}

func TestLogStoreFlushOnlyWritesMessagesForThatRun(t *testing.T) {
	t.Parallel()
	guard := newGuard(t)
	s := NewLogStore(guard)
	runA := testRun("setA", 1, "run1")
	runB := testRun("setA", 1, "run2")

	s.Collect(runA, "x", "for A")
	s.Collect(runB, "x", "for B")

	require.NoError(t, s.Flush(runA, time.Now()))

	s.mu.Lock()
	require.Len(t, s.buffer, 1)
	assert.Equal(t, "for B", s.buffer[0].text)
	s.mu.Unlock()
}

func TestLogStoreClearDiscardsBufferedMessages(t *testing.T) {
	t.Parallel()
	s := NewLogStore(newGuard(t))
	run := testRun("setA", 1, "run1")
	s.Collect(run, "x", "msg")
	s.Clear(run)

	s.mu.Lock()
	assert.Empty(t, s.buffer)
	s.mu.Unlock()
}

func TestLogStoreFlushNoOpWhenNothingBuffered(t *testing.T) {
	t.Parallel()
	s := NewLogStore(newGuard(t))
	run := testRun("setA", 1, "run1")
	require.NoError(t, s.Flush(run, time.Now()))
}
