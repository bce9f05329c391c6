// Package sink implements the timed FFT frame accumulator that bounds one
// capture run in wall time, serializes its frames via rawcodec, and hands
// the run back to the recorder when the time budget is spent.
package sink

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/qrmstation/qrmlogger/internal/domain"
	"github.com/qrmstation/qrmlogger/internal/pathguard"
	"github.com/qrmstation/qrmlogger/internal/rawcodec"
)

// State is one of the sink's three lifecycle states.
type State int

const (
	Idle State = iota
	Recording
	Finalizing
)

func (s State) String() string {
	switch s {
	case Recording:
		return "recording"
	case Finalizing:
		return "finalizing"
	default:
		return "idle"
	}
}

// Sink accumulates FFT frames for exactly one run at a time.
type Sink struct {
	mu    sync.Mutex
	state State

	guard     *pathguard.Guard
	logger    *slog.Logger
	recTimeMS int64
	startedAt time.Time
	run       *domain.CaptureRun
	data      [][]int32

	receiverStartedAt       time.Time
	firstFrameAfterStartLog bool
}

// New creates a Sink whose raw files are written under guard's root.
func New(guard *pathguard.Guard, logger *slog.Logger) *Sink {
	return &Sink{guard: guard, logger: logger, state: Idle}
}

// MarkReceiverStart records a high-resolution timestamp used to measure
// time-to-first-frame once the SDR is armed.
func (s *Sink) MarkReceiverStart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receiverStartedAt = time.Now()
	s.firstFrameAfterStartLog = false
}

// State returns the sink's current lifecycle state.
func (s *Sink) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StartRecord arms the sink for run. Only valid from Idle; otherwise this
// logs and is a no-op, matching the source's "record in progress" guard.
func (s *Sink) StartRecord(run *domain.CaptureRun) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Idle {
		s.logger.Warn("record in progress, ignoring start_record", "run", run.ID)
		return
	}

	now := time.Now()
	run.CaptureStartTime = &now
	s.recTimeMS = run.RecTimeMS
	s.startedAt = now
	s.run = run
	s.data = s.data[:0]
	s.state = Recording

	s.logger.Info("record start",
		"run", run.ID,
		"center_khz", run.FreqHz/1000,
		"span_khz", run.SpanHz/1000,
		"rec_time_sec", float64(run.RecTimeMS)/1000.0)
}

// OnFrame feeds one FFT frame (log-power bins, DC at index 0) into the
// sink. While Recording and within the time budget the frame is
// fftshifted, rounded to int32, and appended. Once elapsed crosses
// rec_time_ms, the run is flushed to disk and the sink returns to Idle.
func (s *Sink) OnFrame(frame []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.receiverStartedAt.IsZero() && !s.firstFrameAfterStartLog {
		elapsedMS := float64(time.Since(s.receiverStartedAt).Microseconds()) / 1000.0
		s.logger.Debug("time to first fft frame", "elapsed_ms", elapsedMS)
		s.firstFrameAfterStartLog = true
		s.receiverStartedAt = time.Time{}
	}

	if s.state != Recording {
		return
	}

	elapsedMS := time.Since(s.startedAt).Milliseconds()
	if elapsedMS < s.recTimeMS {
		s.data = append(s.data, fftShiftRound(frame))
		return
	}

	s.finalizeLocked()
}

// StopNow cooperatively cancels the current recording, flushing whatever
// rows have accumulated so far (or leaving RawFilename nil if none).
// Idempotent: calling it while Idle or already Finalizing is a no-op.
func (s *Sink) StopNow() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Recording {
		return
	}
	s.finalizeLocked()
}

// finalizeLocked must be called with mu held. It writes the accumulated
// rows (if any), clears the buffer, and returns to Idle.
func (s *Sink) finalizeLocked() {
	s.state = Finalizing
	run := s.run

	if len(s.data) > 0 && run != nil {
		path, err := s.writeRaw(run)
		if err != nil {
			s.logger.Error("failed to write raw data", "run", run.ID, "error", err)
		} else {
			run.RawFilename = &path
		}
	} else if run != nil {
		s.logger.Warn("no data to write to raw file", "run", run.ID)
	}

	s.data = s.data[:0]
	s.run = nil
	s.state = Idle
}

func (s *Sink) writeRaw(run *domain.CaptureRun) (string, error) {
	start := time.Now()

	dir := filepath.Join(run.CaptureSetID, "raw", run.DateString)
	filename := fmt.Sprintf("fft-%s-%04d.raw", run.ID, run.Counter)
	relPath := filepath.Join(dir, filename)

	if err := s.guard.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating raw directory: %w", err)
	}

	f, err := s.guard.OpenFile(relPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("opening raw file: %w", err)
	}
	defer f.Close()

	uncompressed, compressed, err := rawcodec.Write(f, s.data)
	if err != nil {
		return "", fmt.Errorf("writing raw spectrogram: %w", err)
	}

	ratio := 0.0
	if uncompressed > 0 {
		ratio = float64(compressed) / float64(uncompressed) * 100.0
	}
	s.logger.Info("raw write complete",
		"run", run.ID,
		"rows", len(s.data),
		"uncompressed_bytes", uncompressed,
		"compressed_bytes", compressed,
		"ratio_pct", ratio,
		"total_ms", float64(time.Since(start).Microseconds())/1000.0)

	return relPath, nil
}

// fftShiftRound rounds each bin to the nearest integer and swaps the two
// halves of the frame so DC lands at the center, matching numpy's
// fft.fftshift(np.around(bins)) applied per incoming frame.
func fftShiftRound(frame []float64) []int32 {
	n := len(frame)
	out := make([]int32, n)
	shift := n / 2
	for i, v := range frame {
		out[(i+shift)%n] = int32(math.Round(v))
	}
	return out
}
