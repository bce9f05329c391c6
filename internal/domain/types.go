// Package domain holds the shared entities passed between the capture
// pipeline's components: specs and sets loaded once at startup, runs
// materialized per batch, and the status/result types read by callers.
package domain

import "time"

// Band is an amateur-radio or service band annotation, used only as
// metadata and as a source for band-centered capture specs.
type Band struct {
	ID       string
	StartKHz float64
	EndKHz   float64
}

// FreqRange is a region-of-interest or crop window, in kHz.
type FreqRange struct {
	ID            string
	StartKHz      float64
	EndKHz        float64
	CropMarginKHz float64
}

// CaptureSpec is one tuning description inside a CaptureSet.
type CaptureSpec struct {
	SpecIndex int
	ID        string
	CenterKHz float64
	SpanKHz   *float64 // nil -> use the active SDR bandwidth
	FreqRange *FreqRange
}

// CaptureSet is a named ordered list of capture specs.
type CaptureSet struct {
	ID          string
	Description string
	Specs       []CaptureSpec
}

// CaptureParams is a per-batch request, deep-copied per capture set inside
// the orchestrator so per-set mutation (note, calibration dB window) never
// leaks across sets.
type CaptureParams struct {
	RecTimeSec             *int
	Note                   string
	IsCalibration          bool
	Counter                int
	RecordingStartDatetime time.Time
	MinDBVal               *float64
	MaxDBVal               *float64
}

// Clone deep-copies p so a caller can safely mutate the copy per set.
func (p CaptureParams) Clone() CaptureParams {
	clone := p
	if p.RecTimeSec != nil {
		v := *p.RecTimeSec
		clone.RecTimeSec = &v
	}
	if p.MinDBVal != nil {
		v := *p.MinDBVal
		clone.MinDBVal = &v
	}
	if p.MaxDBVal != nil {
		v := *p.MaxDBVal
		clone.MaxDBVal = &v
	}
	return clone
}

// CaptureRun is the runtime realization of one spec inside one batch.
type CaptureRun struct {
	ID               string
	FreqHz           int64
	SpanHz           int64
	FreqEffectiveHz  int64
	SpanEffectiveHz  int64
	Position         int
	Counter          int
	CaptureSetID     string
	DateString       string
	FFTSize          int
	RecTimeMS        int64
	BatchTime        time.Time
	CaptureStartTime *time.Time
	Spec             *CaptureSpec
	RawFilename      *string
	ROIID            *string
}

// NewCaptureRun materializes run from spec, the parent set and batch
// params. freq/span are already resolved to Hz by the caller (recorder).
func NewCaptureRun(spec CaptureSpec, setID, dateString string, fftSize int, recTimeMS int64, batchTime time.Time, counter int, freqHz, spanHz int64) *CaptureRun {
	return &CaptureRun{
		ID:              spec.ID,
		FreqHz:          freqHz,
		SpanHz:          spanHz,
		FreqEffectiveHz: freqHz,
		SpanEffectiveHz: spanHz,
		Position:        spec.SpecIndex,
		Counter:         counter,
		CaptureSetID:    setID,
		DateString:      dateString,
		FFTSize:         fftSize,
		RecTimeMS:       recTimeMS,
		BatchTime:       batchTime,
		Spec:            &spec,
	}
}

// ProcessingResult is the outcome of processing one run's spectrogram.
type ProcessingResult struct {
	Run           *CaptureRun
	RawFilename   string
	RMSNormalized *float64
	RMSTruncated  *float64
	MinDB         float64
	MaxDB         float64
	IsCalibration bool
}

// RecordingStatus is mutated by the pipeline/recorder and read concurrently
// by any control surface.
type RecordingStatus struct {
	Operation        string
	CurrentJobNumber int
	JobsTotalNumber  int
	IsError          bool
	CancelRequested  AtomicBool
	ErrorText        string
	SDRActive        bool
}

// StatusSnapshot is a read-only copy of RecordingStatus for any future
// status surface.
type StatusSnapshot struct {
	Operation        string
	CurrentJobNumber int
	JobsTotalNumber  int
	IsError          bool
	ErrorText        string
	SDRActive        bool
	FreeDiskMB       int64
	FreeDiskKnown    bool
}

// Snapshot copies s into a StatusSnapshot.
func (s *RecordingStatus) Snapshot() StatusSnapshot {
	return StatusSnapshot{
		Operation:        s.Operation,
		CurrentJobNumber: s.CurrentJobNumber,
		JobsTotalNumber:  s.JobsTotalNumber,
		IsError:          s.IsError,
		ErrorText:        s.ErrorText,
		SDRActive:        s.SDRActive,
	}
}
