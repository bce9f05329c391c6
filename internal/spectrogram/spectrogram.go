// Package spectrogram loads a run's raw spectrogram from disk and, when
// the run carries a region-of-interest frequency window, crops it before
// analysis and rendering see it.
package spectrogram

import (
	"fmt"
	"math"

	"github.com/qrmstation/qrmlogger/internal/domain"
	"github.com/qrmstation/qrmlogger/internal/pathguard"
	"github.com/qrmstation/qrmlogger/internal/rawcodec"
	"github.com/qrmstation/qrmlogger/internal/xerrors"
)

// Load reads run's raw file through guard, then crops it to
// run.Spec.FreqRange when present, updating run.FreqEffectiveHz and
// run.SpanEffectiveHz in place. If run has no RawFilename, or the read
// fails, both returned matrices are nil.
func Load(guard *pathguard.Guard, run *domain.CaptureRun) ([][]int32, [][]int32, error) {
	if run.RawFilename == nil {
		return nil, nil, nil
	}

	f, err := guard.Open(*run.RawFilename)
	if err != nil {
		return nil, nil, fmt.Errorf("opening raw file %s: %w", *run.RawFilename, err)
	}
	defer f.Close()

	original, err := rawcodec.Load(f, run.FFTSize)
	if err != nil {
		return nil, nil, err
	}

	if run.Spec == nil || run.Spec.FreqRange == nil {
		return original, original, nil
	}

	cropped, err := crop(original, run, run.Spec.FreqRange)
	if err != nil {
		return original, nil, err
	}
	return original, cropped, nil
}

// crop narrows original to [freqRange.StartKHz-margin, freqRange.EndKHz+margin]
// (clamped to the original window), updating run's effective tuning to the
// actual cropped window.
func crop(original [][]int32, run *domain.CaptureRun, freqRange *domain.FreqRange) ([][]int32, error) {
	cols := 0
	if len(original) > 0 {
		cols = len(original[0])
	}
	if cols == 0 {
		return nil, xerrors.New(fmt.Errorf("cannot crop an empty spectrogram")).
			Category(xerrors.CategoryCropOutOfRange).RunContext(run.CaptureSetID, run.ID, run.Counter).Build()
	}

	centerKHz := float64(run.FreqEffectiveHz) / 1000
	spanKHz := float64(run.SpanEffectiveHz) / 1000
	originalStart := centerKHz - spanKHz/2
	originalEnd := centerKHz + spanKHz/2
	freqPerBin := spanKHz / float64(cols)

	cropStart := freqRange.StartKHz - freqRange.CropMarginKHz
	cropEnd := freqRange.EndKHz + freqRange.CropMarginKHz

	if cropEnd < originalStart || cropStart > originalEnd {
		return nil, xerrors.New(fmt.Errorf("crop range %.1f-%.1f kHz is outside original spectrum %.1f-%.1f kHz",
			cropStart, cropEnd, originalStart, originalEnd)).
			Category(xerrors.CategoryCropOutOfRange).RunContext(run.CaptureSetID, run.ID, run.Counter).Build()
	}
	if cropStart >= cropEnd {
		return nil, xerrors.New(fmt.Errorf("invalid crop range: start %.1f kHz must be < end %.1f kHz", cropStart, cropEnd)).
			Category(xerrors.CategoryCropOutOfRange).RunContext(run.CaptureSetID, run.ID, run.Counter).Build()
	}

	clampedStart := math.Max(cropStart, originalStart)
	clampedEnd := math.Min(cropEnd, originalEnd)

	startBin := int(math.Round((clampedStart - originalStart) / freqPerBin))
	endBin := int(math.Round((clampedEnd - originalStart) / freqPerBin))

	if startBin < 0 {
		startBin = 0
	}
	if endBin > cols {
		endBin = cols
	}
	if endBin <= startBin {
		return nil, xerrors.New(fmt.Errorf("invalid bin range: start_bin=%d end_bin=%d", startBin, endBin)).
			Category(xerrors.CategoryCropOutOfRange).RunContext(run.CaptureSetID, run.ID, run.Counter).Build()
	}

	cropped := make([][]int32, len(original))
	for i, row := range original {
		cropped[i] = append([]int32(nil), row[startBin:endBin]...)
	}

	actualStart := originalStart + float64(startBin)*freqPerBin
	actualEnd := originalStart + float64(endBin)*freqPerBin

	run.FreqEffectiveHz = int64((actualStart + actualEnd) / 2 * 1000)
	run.SpanEffectiveHz = int64((actualEnd - actualStart) * 1000)

	return cropped, nil
}
