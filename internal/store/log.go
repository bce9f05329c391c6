package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/qrmstation/qrmlogger/internal/domain"
	"github.com/qrmstation/qrmlogger/internal/pathguard"
)

type logKey struct {
	setID   string
	counter int
	runID   string
}

type logEntry struct {
	key     logKey
	msgType string
	text    string
}

// LogStore buffers log messages per-run in memory, coalescing consecutive
// same-type entries for the same run, until Flush writes them out as one
// CSV row per (run, type) to that capture set's daily log_<date>.csv.
type LogStore struct {
	guard *pathguard.Guard

	mu     sync.Mutex
	buffer []logEntry
}

// NewLogStore returns a LogStore rooted at guard.
func NewLogStore(guard *pathguard.Guard) *LogStore {
	return &LogStore{guard: guard}
}

func keyFor(run *domain.CaptureRun) logKey {
	return logKey{setID: run.CaptureSetID, counter: run.Counter, runID: run.ID}
}

// Collect appends message to the buffer, merging it into the immediately
// preceding entry when that entry is for the same run and type.
func (s *LogStore) Collect(run *domain.CaptureRun, msgType, message string) {
	if run == nil || message == "" {
		return
	}
	key := keyFor(run)

	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.buffer); n > 0 {
		last := &s.buffer[n-1]
		if last.key == key && last.msgType == msgType {
			last.text = last.text + "\n" + message
			return
		}
	}
	s.buffer = append(s.buffer, logEntry{key: key, msgType: msgType, text: message})
}

// Clear discards any buffered, unflushed messages for run.
func (s *LogStore) Clear(run *domain.CaptureRun) {
	if run == nil {
		return
	}
	key := keyFor(run)

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.buffer[:0]
	for _, e := range s.buffer {
		if e.key != key {
			kept = append(kept, e)
		}
	}
	s.buffer = kept
}

// ClearAll discards every buffered, unflushed message.
func (s *LogStore) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer = nil
}

// Flush writes every buffered message for run to its capture set's daily
// log CSV, one row per message, and removes them from the buffer.
// recordingStart stamps every row's date/time columns.
func (s *LogStore) Flush(run *domain.CaptureRun, recordingStart time.Time) error {
	if run == nil {
		return fmt.Errorf("log flush called without a run context")
	}
	key := keyFor(run)

	s.mu.Lock()
	var msgs []logEntry
	kept := s.buffer[:0]
	for _, e := range s.buffer {
		if e.key == key {
			msgs = append(msgs, e)
		} else {
			kept = append(kept, e)
		}
	}
	s.buffer = kept
	s.mu.Unlock()

	if len(msgs) == 0 {
		return nil
	}

	dateString := recordingStart.Format("2006-01-02")
	timeString := recordingStart.Format("15:04")
	path := fmt.Sprintf("%s/log/log_%s.csv", run.CaptureSetID, dateString)

	exists, err := s.guard.Exists(path)
	if err != nil {
		return fmt.Errorf("checking %s: %w", path, err)
	}
	if !exists {
		if err := writeHeader(s.guard, path, []string{"counter", "date", "time", "id", "type", "log_text"}); err != nil {
			return err
		}
	}

	for _, e := range msgs {
		row := []string{
			fmt.Sprintf("%d", run.Counter),
			dateString,
			timeString,
			run.ID,
			sanitizeField(e.msgType),
			sanitizeLogText(e.text),
		}
		if err := appendRow(s.guard, path, row); err != nil {
			return err
		}
	}
	return nil
}

// sanitizeLogText escapes embedded newlines to a " | " placeholder (the
// column is single-line CSV but may hold multi-line collected output) and
// commas to semicolons so the row never needs quoting.
func sanitizeLogText(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch r {
		case '\n':
			out = append(out, ' ', '|', ' ')
		case ',':
			out = append(out, ';')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
