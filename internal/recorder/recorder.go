// Package recorder drives one SdrSource through a batch of capture runs,
// arming the frame sink for each run in turn and cooperatively honoring a
// stop request between runs and while waiting out the frequency-change
// settling delay.
package recorder

import (
	"context"
	"log/slog"
	"time"

	"github.com/qrmstation/qrmlogger/internal/conf"
	"github.com/qrmstation/qrmlogger/internal/domain"
	"github.com/qrmstation/qrmlogger/internal/sink"
	"github.com/qrmstation/qrmlogger/internal/xerrors"
)

// pollInterval is the cadence at which startCaptureRun checks the sink's
// state and the cancellation flag, matching the source's 100ms poll loop.
const pollInterval = 100 * time.Millisecond

// Recorder owns one SdrSource and the Sink it feeds. It is created once by
// the App root and reused for every batch, rather than accessed through a
// package-level singleton.
type Recorder struct {
	source SdrSource
	sink   *sink.Sink
	logger *slog.Logger

	frequencyChangeDelay time.Duration
	frameRate            int
}

// New wires source and sink together under logger.
func New(source SdrSource, s *sink.Sink, settings *conf.Settings, logger *slog.Logger) *Recorder {
	return &Recorder{
		source:               source,
		sink:                 s,
		logger:               logger,
		frequencyChangeDelay: time.Duration(settings.Recording.FrequencyChangeDelaySec * float64(time.Second)),
		frameRate:            settings.Recording.FrameRateDefault,
	}
}

// OnRecordStart arms the SdrSource, surfacing any failure as
// SdrUnavailable so the pipeline can skip the batch rather than crash.
func (r *Recorder) OnRecordStart() error {
	if err := r.source.Arm(); err != nil {
		return xerrors.New(err).Category(xerrors.CategorySdrUnavailable).Build()
	}
	r.sink.MarkReceiverStart()
	return nil
}

// OnRecordEnd tears the SdrSource back down after a batch completes.
func (r *Recorder) OnRecordEnd() {
	if err := r.source.Disconnect(); err != nil {
		r.logger.Warn("error disconnecting sdr source", "error", err)
	}
}

// ExecuteRecordings runs every capture set's runs in order, retuning
// between runs and sleeping frequency_change_delay_sec after each retune
// so the front end settles before data is collected. It returns early,
// leaving later runs untouched, as soon as status.CancelRequested is
// observed.
func (r *Recorder) ExecuteRecordings(ctx context.Context, status *domain.RecordingStatus, runs []*domain.CaptureRun) (cancelled bool) {
	for i, run := range runs {
		if status.CancelRequested.Get() {
			r.logger.Info("recording cancelled before run", "run", run.ID, "position", i)
			return true
		}

		if err := r.source.SetCenterFreq(run.FreqEffectiveHz); err != nil {
			r.logger.Error("failed to set center frequency", "run", run.ID, "error", err)
			continue
		}
		if err := r.source.SetSampleRate(run.SpanEffectiveHz); err != nil {
			r.logger.Error("failed to set sample rate", "run", run.ID, "error", err)
			continue
		}

		if !r.sleepOrCancel(ctx, status, r.frequencyChangeDelay) {
			return true
		}

		if cancelled := r.startCaptureRun(ctx, status, run); cancelled {
			return true
		}
	}
	return false
}

// startCaptureRun arms the sink for run, streams frames from the source
// until the sink's own time budget finalizes the run, and polls every
// pollInterval so a stop request lands within one tick rather than at the
// run's natural end.
func (r *Recorder) startCaptureRun(ctx context.Context, status *domain.RecordingStatus, run *domain.CaptureRun) (cancelled bool) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.sink.StartRecord(run)
	status.SDRActive = true
	defer func() { status.SDRActive = false }()

	streamErrCh := make(chan error, 1)
	go func() {
		streamErrCh <- r.source.Start(runCtx, run.FFTSize, r.frameRate, r.sink.OnFrame)
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-streamErrCh:
			if err != nil {
				r.logger.Error("sdr source stream ended with error", "run", run.ID, "error", err)
			}
			return status.CancelRequested.Get()
		case <-ticker.C:
			if r.sink.State() == sink.Idle {
				_ = r.source.Stop()
				<-streamErrCh
				return false
			}
			if status.CancelRequested.Get() {
				r.sink.StopNow()
				_ = r.source.Stop()
				<-streamErrCh
				return true
			}
		}
	}
}

// sleepOrCancel waits for d, waking early (and returning false) if ctx is
// cancelled or a stop is requested. It returns true if the full delay
// elapsed uninterrupted.
func (r *Recorder) sleepOrCancel(ctx context.Context, status *domain.RecordingStatus, d time.Duration) bool {
	if d <= 0 {
		return !status.CancelRequested.Get()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return !status.CancelRequested.Get()
		case <-ticker.C:
			if status.CancelRequested.Get() {
				return false
			}
		}
	}
}
