// Package pipeline orchestrates one capture batch end to end: arming the
// SDR, recording every enabled capture set's runs, then for each set
// running spectrum analysis, plot/grid generation, RMS export, and
// region-of-interest post-processing. It also holds the single in-flight
// recording's status so a control surface can observe progress.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/qrmstation/qrmlogger/internal/analysis"
	"github.com/qrmstation/qrmlogger/internal/conf"
	"github.com/qrmstation/qrmlogger/internal/counter"
	"github.com/qrmstation/qrmlogger/internal/diskspace"
	"github.com/qrmstation/qrmlogger/internal/domain"
	"github.com/qrmstation/qrmlogger/internal/grid"
	"github.com/qrmstation/qrmlogger/internal/imaging"
	"github.com/qrmstation/qrmlogger/internal/pathguard"
	"github.com/qrmstation/qrmlogger/internal/perfstats"
	"github.com/qrmstation/qrmlogger/internal/recorder"
	"github.com/qrmstation/qrmlogger/internal/roi"
	"github.com/qrmstation/qrmlogger/internal/spectrogram"
	"github.com/qrmstation/qrmlogger/internal/store"
)

// dbConfig is one dB-window pass over a run: the normal single pass, or,
// in calibration mode, one of seven offsets around the configured window.
type dbConfig struct {
	minDB, maxDB float64
	name         string
}

func dbConfigurations(settings *conf.Settings, isCalibration bool) []dbConfig {
	base := settings.Recording.FFT
	if !isCalibration {
		return []dbConfig{{base.MinDB, base.MaxDB, ""}}
	}
	configs := make([]dbConfig, len(conf.CalibrationDBOffsets))
	for i, o := range conf.CalibrationDBOffsets {
		configs[i] = dbConfig{base.MinDB + o.DeltaDB, base.MaxDB + o.DeltaDB, o.Name}
	}
	return configs
}

// Pipeline is the single execution engine for this process; the App root
// holds the one instance rather than exposing it as a package singleton.
type Pipeline struct {
	guard    *pathguard.Guard
	settings *conf.Settings
	dynamic  *conf.DynamicConfig
	recorder *recorder.Recorder
	counter  *counter.Counter

	rmsWriter      *store.RMSWriter
	metadataWriter *store.MetadataWriter
	logStore       *store.LogStore
	perf           *perfstats.Tracker

	logger *slog.Logger

	mu              sync.Mutex
	recording       bool
	recordStartTime time.Time
	status          *domain.RecordingStatus
	errorText       string
}

// New wires a Pipeline from its already-constructed dependencies.
func New(
	guard *pathguard.Guard,
	settings *conf.Settings,
	dynamic *conf.DynamicConfig,
	rec *recorder.Recorder,
	cnt *counter.Counter,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		guard:          guard,
		settings:       settings,
		dynamic:        dynamic,
		recorder:       rec,
		counter:        cnt,
		rmsWriter:      store.NewRMSWriter(guard),
		metadataWriter: store.NewMetadataWriter(guard),
		logStore:       store.NewLogStore(guard),
		perf:           perfstats.NewTracker(),
		logger:         logger,
	}
}

// IsRecording reports whether a batch is currently in flight.
func (p *Pipeline) IsRecording() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recording
}

// RecordStartTime returns when the in-flight batch started, or the zero
// time when idle.
func (p *Pipeline) RecordStartTime() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recordStartTime
}

// Status returns a snapshot of the in-flight batch's status, or nil when
// idle.
func (p *Pipeline) Status() *domain.StatusSnapshot {
	p.mu.Lock()
	status := p.status
	p.mu.Unlock()
	if status == nil {
		return nil
	}
	snap := status.Snapshot()
	snap.FreeDiskMB, snap.FreeDiskKnown = diskspace.FreeMB(p.settings.Paths.OutputDirectory)
	return &snap
}

// ErrorText returns the error text from the most recently completed
// batch, if any.
func (p *Pipeline) ErrorText() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errorText
}

// RequestStopRecording cooperatively asks the in-flight batch to stop.
// Returns false if nothing is recording.
func (p *Pipeline) RequestStopRecording() bool {
	p.mu.Lock()
	status := p.status
	p.mu.Unlock()
	if status == nil {
		return false
	}
	status.Operation = "CANCEL"
	status.CancelRequested.Set(true)
	return true
}

// ExecuteCaptureDefault runs a batch with default (non-calibration)
// parameters over sets, applying roiCfg's region-of-interest overlays.
func (p *Pipeline) ExecuteCaptureDefault(ctx context.Context, sets []domain.CaptureSet, roiCfg roi.Config) error {
	return p.ExecuteCapture(ctx, domain.CaptureParams{}, sets, roiCfg)
}

// ExecuteCapture runs one full batch: recording every enabled set in
// sets, then processing each set's results. A batch already in flight
// causes this call to log and return immediately rather than queue or
// block, matching a single-flight scheduler invariant enforced above this
// package too (see internal/scheduler's singleton job mode).
func (p *Pipeline) ExecuteCapture(ctx context.Context, params domain.CaptureParams, sets []domain.CaptureSet, roiCfg roi.Config) error {
	p.mu.Lock()
	if p.recording {
		p.mu.Unlock()
		p.logger.Warn("recording in progress, skip execution")
		return nil
	}
	p.recording = true
	p.recordStartTime = time.Now()
	status := &domain.RecordingStatus{}
	p.status = status
	p.errorText = ""
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.recording = false
		p.status = nil
		p.recordStartTime = time.Time{}
		p.mu.Unlock()
	}()

	newCounter, err := p.counter.Inc()
	if err != nil {
		return fmt.Errorf("incrementing counter: %w", err)
	}
	params.Counter = newCounter
	params.RecordingStartDatetime = time.Now()
	if params.RecTimeSec == nil {
		v := p.settings.Recording.RecTimeDefaultSec
		params.RecTimeSec = &v
	}

	return p.execute(ctx, status, params, sets, roiCfg)
}

func (p *Pipeline) execute(ctx context.Context, status *domain.RecordingStatus, params domain.CaptureParams, sets []domain.CaptureSet, roiCfg roi.Config) error {
	defer p.logStore.ClearAll()

	p.logger.Info("run", "counter", params.Counter)

	enabled := make(map[string]bool, len(p.dynamic.CaptureSetsEnabled))
	for _, id := range p.dynamic.CaptureSetsEnabled {
		enabled[id] = true
	}
	var setsToRecord []domain.CaptureSet
	for _, s := range sets {
		if enabled[s.ID] {
			setsToRecord = append(setsToRecord, s)
		}
	}
	p.logger.Info("recording sets", "count", len(setsToRecord), "total", len(sets))

	if err := p.recorder.OnRecordStart(); err != nil {
		status.IsError = true
		status.ErrorText = err.Error()
		p.errorText = err.Error()
		return err
	}

	if status.CancelRequested.Get() {
		p.logger.Info("recording cancelled")
		p.recorder.OnRecordEnd()
		return nil
	}

	fftSize := p.settings.Recording.FFT.FFTSizeDefault
	if p.dynamic.FFTSize > 0 {
		fftSize = p.dynamic.FFTSize
	}
	recTimeMS := int64(*params.RecTimeSec) * 1000
	dateString := params.RecordingStartDatetime.Format("2006-01-02")

	runsBySet := make(map[string][]*domain.CaptureRun, len(setsToRecord))
	var allRuns []*domain.CaptureRun
	for _, set := range setsToRecord {
		runs := recorder.BuildRuns(set, dateString, fftSize, recTimeMS, params.RecordingStartDatetime, params.Counter, p.settings, p.dynamic)
		runsBySet[set.ID] = runs
		allRuns = append(allRuns, runs...)
	}

	cancelled := p.recorder.ExecuteRecordings(ctx, status, allRuns)
	p.recorder.OnRecordEnd()

	if cancelled || status.CancelRequested.Get() {
		p.logger.Info("processing cancelled")
		return nil
	}

	p.processSets(status, setsToRecord, runsBySet, params, roiCfg)
	p.logger.Info("processing completed")
	return nil
}

func (p *Pipeline) processSets(status *domain.RecordingStatus, setsToRecord []domain.CaptureSet, runsBySet map[string][]*domain.CaptureRun, params domain.CaptureParams, roiCfg roi.Config) {
	for _, set := range setsToRecord {
		runs := runsBySet[set.ID]
		setParams := params.Clone()

		results := p.processSpectrumData(status, runs, &setParams)
		if status.CancelRequested.Get() {
			p.logger.Info("processing cancelled; skipping finalize and remaining sets")
			break
		}

		p.finalizeProcessing(status, results, &setParams)

		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("roi processing panicked", "set", set.ID, "error", r)
				}
			}()
			p.processROIs(status, set, runs, &setParams, roiCfg)
		}()

		if !p.settings.Paths.KeepRawFiles {
			p.cleanupRawFiles(runs)
		}
	}

	if params.IsCalibration {
		for i := 0; i < conf.CalibrationCounterBump; i++ {
			if _, err := p.counter.Inc(); err != nil {
				p.logger.Error("failed to bump counter after calibration", "error", err)
			}
		}
		v, _ := p.counter.Get()
		p.logger.Info("calibration: adjusted counter", "counter", v)
	}
}

// processROIs runs ROI-overlay spectrum processing, RMS export and grid
// generation for set's matching regions of interest, reusing each ROI's
// source run's already-captured raw data.
func (p *Pipeline) processROIs(status *domain.RecordingStatus, set domain.CaptureSet, runs []*domain.CaptureRun, params *domain.CaptureParams, roiCfg roi.Config) {
	recTimeMS := int64(0)
	if params.RecTimeSec != nil {
		recTimeMS = int64(*params.RecTimeSec) * 1000
	}

	roiRuns := roi.BuildRuns(roiCfg, set, runs, recTimeMS)
	if len(roiRuns) == 0 {
		return
	}

	p.logger.Info("processing roi runs", "count", len(roiRuns), "set", set.ID)
	roiParams := params.Clone()
	results := p.processSpectrumData(status, roiRuns, &roiParams)
	if len(results) == 0 {
		return
	}

	roiSetID := set.ID + "_ROI"
	if err := p.rmsWriter.Write(roiSetID, results, roiParams.Counter, roiParams.RecordingStartDatetime, roiParams.Note); err != nil {
		p.logger.Error("error writing roi rms", "error", err)
	}

	status.Operation = "GRID (ROI)"
	p.generateGrids(roiSetID, results[0].Run.DateString)
	p.generateTimesliceGrids(roiSetID, roiParams)
}

// processSpectrumData loads, crops, analyzes and renders every run,
// iterating dB-window configurations (seven, in calibration mode) per
// run, returning one ProcessingResult per surviving (run, dB-window)
// combination.
func (p *Pipeline) processSpectrumData(status *domain.RecordingStatus, runs []*domain.CaptureRun, params *domain.CaptureParams) []domain.ProcessingResult {
	if len(runs) == 0 {
		return nil
	}
	status.Operation = "PLOT " + runs[0].CaptureSetID
	status.CurrentJobNumber = 0

	var results []domain.ProcessingResult
	for i, run := range runs {
		if status.CancelRequested.Get() {
			p.logger.Info("processing cancelled; aborting runs loop")
			break
		}

		p.logStore.Clear(run)

		original, cropped, err := spectrogram.Load(p.guard, run)
		if err != nil || original == nil {
			if err != nil {
				p.logger.Error("skipping processing due to data loading failure", "run", run.ID, "error", err)
			}
			_ = p.logStore.Flush(run, params.RecordingStartDatetime)
			continue
		}
		rawData := cropped
		if rawData == nil {
			rawData = original
		}

		configs := dbConfigurations(p.settings, params.IsCalibration)
		for configNum, cfg := range configs {
			if status.CancelRequested.Get() {
				break
			}
			runForProcessing := run
			if params.IsCalibration {
				params.Note = fmt.Sprintf("calib [%s]", cfg.name)
				if configNum > 0 {
					cloned := *run
					if run.Spec != nil {
						clonedSpec := *run.Spec
						cloned.Spec = &clonedSpec
					}
					cloned.Counter = run.Counter + configNum
					runForProcessing = &cloned
				}
			}
			minDB, maxDB := cfg.minDB, cfg.maxDB
			params.MinDBVal = &minDB
			params.MaxDBVal = &maxDB

			if result := p.process(runForProcessing, rawData, params); result != nil {
				results = append(results, *result)
			}
		}

		if err := p.logStore.Flush(run, params.RecordingStartDatetime); err != nil {
			p.logger.Error("failed to flush log text", "run", run.ID, "error", err)
		}

		status.CurrentJobNumber = i + 1
	}
	return results
}

// process runs RMS analysis and (unless the run carries no usable data)
// plot generation for one run at one dB window, returning nil when data
// is unusable.
func (p *Pipeline) process(run *domain.CaptureRun, data [][]int32, params *domain.CaptureParams) *domain.ProcessingResult {
	if data == nil {
		p.logger.Error("no data provided for processing", "run", run.ID)
		return nil
	}

	avgWf := analysis.AverageSpectrum(data)
	centerKHz := float64(run.FreqEffectiveHz) / 1000
	spanKHz := float64(run.SpanEffectiveHz) / 1000
	var freqRange *domain.FreqRange
	if run.Spec != nil {
		freqRange = run.Spec.FreqRange
	}

	rmsResult := analysis.CalculateRMS(avgWf, centerKHz, spanKHz, freqRange, *params.MinDBVal, *params.MaxDBVal, p.settings.Analysis.ExcludeFreqsKHz, p.settings.Analysis.HalfWindowKHz,
		func(msgType, message string) { p.logStore.Collect(run, msgType, message) })

	result := &domain.ProcessingResult{
		Run:           run,
		RMSNormalized: rmsResult.RMSNormalized,
		RMSTruncated:  rmsResult.RMSTruncated5,
		MinDB:         *params.MinDBVal,
		MaxDB:         *params.MaxDBVal,
		IsCalibration: params.IsCalibration,
	}
	if run.RawFilename != nil {
		result.RawFilename = *run.RawFilename
	}

	p.generateImages(run, data, avgWf, *params.MinDBVal, *params.MaxDBVal, "waterfall")
	p.generateImages(run, data, avgWf, *params.MinDBVal, *params.MaxDBVal, "average")

	if err := p.metadataWriter.Save(run, "waterfall", params.Note, store.PlotFilename(run, "waterfall")); err != nil {
		p.logger.Error("failed to save waterfall plot metadata", "run", run.ID, "error", err)
	}
	if err := p.metadataWriter.Save(run, "average", params.Note, store.PlotFilename(run, "average")); err != nil {
		p.logger.Error("failed to save average plot metadata", "run", run.ID, "error", err)
	}

	return result
}

func (p *Pipeline) generateImages(run *domain.CaptureRun, data [][]int32, avgWf []float64, minDB, maxDB float64, plotType string) {
	start := time.Now()
	defer func() {
		summary := p.perf.Record("image:"+plotType, time.Since(start).Seconds())
		p.logger.Debug("image generation timing", "type", plotType, "seconds", time.Since(start).Seconds(), "avg_seconds", summary.Avg, "samples", summary.Count)
	}()

	filename := store.PlotFilename(run, plotType)
	fullPath := store.PlotsDir(run.CaptureSetID, run.DateString, false) + "/" + filename
	resizedPath := store.PlotsDir(run.CaptureSetID, run.DateString, true) + "/" + filename

	var err error
	switch plotType {
	case "waterfall":
		err = imaging.GenerateWaterfallPNG(p.guard, run, data, minDB, maxDB, fullPath)
	case "average":
		err = imaging.GenerateAverageSpectrumPNG(p.guard, run, avgWf, &minDB, &maxDB, fullPath)
	default:
		p.logger.Error("invalid plot type", "type", plotType)
		return
	}
	if err != nil {
		p.logger.Error("failed to generate plot", "run", run.ID, "type", plotType, "error", err)
		return
	}

	if err := imaging.Thumbnail(p.guard, fullPath, resizedPath, 512, 512); err != nil {
		p.logger.Error("failed to generate thumbnail", "run", run.ID, "type", plotType, "error", err)
	}
}

// finalizeProcessing regenerates the daily grid mosaics and writes the
// batch's RMS row once every run in the set has been processed.
func (p *Pipeline) finalizeProcessing(status *domain.RecordingStatus, results []domain.ProcessingResult, params *domain.CaptureParams) {
	status.Operation = "GRID"
	if len(results) == 0 {
		return
	}
	firstRun := results[0].Run
	p.generateGrids(firstRun.CaptureSetID, firstRun.DateString)
	if err := p.rmsWriter.Write(firstRun.CaptureSetID, results, params.Counter, params.RecordingStartDatetime, params.Note); err != nil {
		p.logger.Error("failed to write rms", "set", firstRun.CaptureSetID, "error", err)
	}
	p.generateTimesliceGrids(firstRun.CaptureSetID, *params)
}

func (p *Pipeline) generateGrids(captureSetID, dateString string) {
	start := time.Now()
	defer func() {
		summary := p.perf.Record("grid:daily", time.Since(start).Seconds())
		p.logger.Debug("grid generation timing", "set", captureSetID, "seconds", time.Since(start).Seconds(), "avg_seconds", summary.Avg, "samples", summary.Count)
	}()

	g := p.settings.Visualization.Grid
	for _, plotType := range []string{"waterfall", "average"} {
		if err := grid.BuildDailyGrid(p.guard, captureSetID, dateString, plotType, g.TimeWindowHours, g.MaxRows, g.SortLatestFirst); err != nil {
			p.logger.Error("error generating grid", "set", captureSetID, "type", plotType, "error", err)
		}
	}
}

func (p *Pipeline) generateTimesliceGrids(captureSetID string, params domain.CaptureParams) {
	if !p.dynamic.TimesliceAutogenerate {
		return
	}
	anchorHour := params.RecordingStartDatetime.Hour()
	inHours := false
	for _, h := range p.dynamic.TimesliceHours {
		if h == anchorHour {
			inHours = true
			break
		}
	}
	if !inHours {
		return
	}

	days := p.settings.Visualization.Timeslice.DaysBack
	for _, plotType := range []string{"waterfall", "average"} {
		if err := grid.BuildTimeSliceGrids(p.guard, captureSetID, plotType, params.RecordingStartDatetime, days, p.dynamic.TimesliceHours); err != nil {
			p.logger.Error("time-slice grid generation failed", "set", captureSetID, "type", plotType, "error", err)
		}
	}
}

func (p *Pipeline) cleanupRawFiles(runs []*domain.CaptureRun) {
	if freeMB, ok := diskspace.FreeMB(p.settings.Paths.OutputDirectory); ok {
		p.logger.Debug("disk headroom before raw file cleanup", "free_mb", freeMB)
	} else {
		p.logger.Debug("disk headroom unknown", "path", p.settings.Paths.OutputDirectory)
	}
	for _, run := range runs {
		if run.RawFilename == nil {
			continue
		}
		exists, err := p.guard.Exists(*run.RawFilename)
		if err != nil || !exists {
			continue
		}
		if err := p.guard.Remove(*run.RawFilename); err != nil {
			p.logger.Error("failed to delete raw file", "path", *run.RawFilename, "error", err)
			continue
		}
		p.logger.Debug("deleted raw file", "path", *run.RawFilename)
	}
	p.logger.Info("raw file cleanup completed")
}
