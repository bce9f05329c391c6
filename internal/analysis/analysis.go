// Package analysis computes interference metrics from a capture run's
// averaged spectrum: frequency-exclusion masks, linear-domain RMS, a
// percentile-truncated RMS robust to narrowband interference, and a
// greedy strong-peak selection.
package analysis

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/qrmstation/qrmlogger/internal/domain"
)

// AverageSpectrum collapses a run's accumulated int32 dB frames to one
// float64 spectrum by column-wise mean over time.
func AverageSpectrum(data [][]int32) []float64 {
	if len(data) == 0 {
		return nil
	}
	cols := len(data[0])
	sums := make([]float64, cols)
	for _, row := range data {
		for i, v := range row {
			sums[i] += float64(v)
		}
	}
	avg := make([]float64, cols)
	for i, s := range sums {
		avg[i] = s / float64(len(data))
	}
	return avg
}

// BuildIncludeMask marks true for bins to keep, excluding a half_window_khz
// window around each center frequency in excludeFreqsKHz.
func BuildIncludeMask(nBins int, centerKHz, spanKHz float64, excludeFreqsKHz []float64, halfWindowKHz float64) []bool {
	mask := make([]bool, nBins)
	for i := range mask {
		mask[i] = true
	}

	startFreq := centerKHz - spanKHz/2
	freqPerBin := spanKHz / float64(nBins)

	for _, f0 := range excludeFreqsKHz {
		excStart := f0 - halfWindowKHz
		excEnd := f0 + halfWindowKHz

		startBin := int(math.Round((excStart - startFreq) / freqPerBin))
		endBin := int(math.Round((excEnd - startFreq) / freqPerBin))

		if startBin < 0 {
			startBin = 0
		}
		if endBin > nBins-1 {
			endBin = nBins - 1
		}
		if startBin <= endBin && startBin < nBins && endBin >= 0 {
			for b := startBin; b <= endBin; b++ {
				mask[b] = false
			}
		}
	}
	return mask
}

// BuildCoreMask restricts to the bins inside freqRange (if non-nil),
// excluding its crop margin from the RMS window. A nil freqRange keeps
// every bin.
func BuildCoreMask(nBins int, startFreqKHz, freqPerBinKHz float64, freqRange *domain.FreqRange) []bool {
	mask := make([]bool, nBins)
	if freqRange == nil {
		for i := range mask {
			mask[i] = true
		}
		return mask
	}

	startBin := int(math.Ceil((freqRange.StartKHz - startFreqKHz) / freqPerBinKHz))
	endBin := int(math.Floor((freqRange.EndKHz - startFreqKHz) / freqPerBinKHz))

	startBin = clampInt(startBin, 0, nBins-1)
	endBin = clampInt(endBin, 0, nBins-1)

	if endBin >= startBin {
		for b := startBin; b <= endBin; b++ {
			mask[b] = true
		}
	}
	return mask
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Result is the full output of CalculateRMS: full-window RMS, a 5%
// percentile-truncated RMS, and the inclusion mask used for both.
type Result struct {
	RMSNormalized *float64
	RMSTruncated5 *float64
	IncludeMask   []bool
}

// LogFunc records one collected log message for the run currently under
// analysis, keyed by the caller's name the way the source's
// collect_log_text(run, type, message) does. A nil LogFunc is a valid,
// silent no-op for callers (tests, mainly) that don't care about the log
// stream.
type LogFunc func(msgType, message string)

func noopLog(string, string) {}

// CalculateRMS combines the global exclusion mask with the run's core
// freq_range window, computes linear-domain RMS over the surviving bins,
// and normalizes it to the [minDB,maxDB] -> [0,100] range (clamped only at
// the low end, so a strong signal can read above 100). Returns nil
// pointers, not an error, when no bins survive both masks — matching the
// source's "no RMS for this run" outcome rather than treating it as a
// failure. Mirrors calculate_rms's running commentary into log via log:
// bins-kept, the signal-analysis breakdown, both truncated-RMS variants,
// and strong-peak detection when the strongest bin is 100x the median.
func CalculateRMS(avgWf []float64, centerKHz, spanKHz float64, freqRange *domain.FreqRange, minDB, maxDB float64, excludeFreqsKHz []float64, halfWindowKHz float64, log LogFunc) Result {
	if log == nil {
		log = noopLog
	}

	nBins := len(avgWf)
	startFreq := centerKHz - spanKHz/2
	freqPerBin := spanKHz / float64(nBins)

	includeGlobal := BuildIncludeMask(nBins, centerKHz, spanKHz, excludeFreqsKHz, halfWindowKHz)
	coreMask := BuildCoreMask(nBins, startFreq, freqPerBin, freqRange)

	includeMask := make([]bool, nBins)
	includedCount := 0
	for i := range includeMask {
		includeMask[i] = includeGlobal[i] && coreMask[i]
		if includeMask[i] {
			includedCount++
		}
	}
	log("calculate_rms", fmt.Sprintf("RMS bins kept: %d/%d", includedCount, nBins))
	if includedCount == 0 {
		log("calculate_rms", "WARNING: No bins left after applying exclusions + core window; returning empty RMS")
		return Result{IncludeMask: includeMask}
	}

	filtered := make([]float64, 0, includedCount)
	linearFiltered := make([]float64, 0, includedCount)
	originalIndices := make([]int, 0, includedCount)
	for i, keep := range includeMask {
		if !keep {
			continue
		}
		filtered = append(filtered, avgWf[i])
		linearFiltered = append(linearFiltered, dbToLinear(avgWf[i]))
		originalIndices = append(originalIndices, i)
	}

	maxDBSignal, minDBSignal := filtered[0], filtered[0]
	maxIdxFiltered, minIdxFiltered := 0, 0
	maxLinearPower := linearFiltered[0]
	for i, v := range filtered {
		if v > maxDBSignal {
			maxDBSignal, maxIdxFiltered = v, i
		}
		if v < minDBSignal {
			minDBSignal, minIdxFiltered = v, i
		}
		if linearFiltered[i] > maxLinearPower {
			maxLinearPower = linearFiltered[i]
		}
	}
	medianDBSignal := medianOf(filtered)
	medianLinearPower := medianOf(linearFiltered)

	maxIdx := originalIndices[maxIdxFiltered]
	minIdx := originalIndices[minIdxFiltered]
	maxFreq := startFreq + float64(maxIdx)*freqPerBin
	minFreq := startFreq + float64(minIdx)*freqPerBin

	powerRatio := 0.0
	if medianLinearPower > 0 {
		powerRatio = maxLinearPower / medianLinearPower
	}

	log("calculate_rms", "Signal Analysis:")
	log("calculate_rms", fmt.Sprintf("  Strongest: %.1f dB at %.0f kHz (bin %d)", maxDBSignal, maxFreq, maxIdx))
	log("calculate_rms", fmt.Sprintf("  Weakest: %.1f dB at %.0f kHz (bin %d)", minDBSignal, minFreq, minIdx))
	log("calculate_rms", fmt.Sprintf("  Median: %.1f dB", medianDBSignal))
	log("calculate_rms", fmt.Sprintf("  Peak/Median ratio: %.1fx", powerRatio))
	log("calculate_rms", fmt.Sprintf("  Signal range: %.1f dB", maxDBSignal-minDBSignal))

	rmsLinear := rmsOf(linearFiltered)
	rmsDB := linearToDB(rmsLinear)
	rmsNormalized := normalize(rmsDB, minDB, maxDB)

	truncated5, threshold5, capped5 := CalculateTruncatedRMS(avgWf, minDB, maxDB, includeMask, 5)
	truncated10, threshold10, capped10 := CalculateTruncatedRMS(avgWf, minDB, maxDB, includeMask, 10)

	log("calculate_rms", fmt.Sprintf("  Full RMS: Linear=%.2e, dB=%.1f, Normalized=%.1f%%", rmsLinear, rmsDB, rmsNormalized))
	log("calculate_rms", fmt.Sprintf("  Truncated RMS (5%%): %.1f%% (capped %d bins at %.1f dB)", truncated5, capped5, threshold5))
	log("calculate_rms", fmt.Sprintf("  Truncated RMS (10%%): %.1f%% (capped %d bins at %.1f dB)", truncated10, capped10, threshold10))

	diff10 := math.Abs(rmsNormalized - truncated10)
	diff5 := math.Abs(rmsNormalized - truncated5)
	if diff10 > 15 {
		log("calculate_rms", fmt.Sprintf("  -> Large RMS difference (10%%: %.1fpp, 5%%: %.1fpp) suggests narrowband interference", diff10, diff5))
	}

	if powerRatio > 100 {
		peaks := FindStrongPeaks(filtered, originalIndices, startFreq, freqPerBin, medianLinearPower, 5, 3.0, 100)
		switch {
		case len(peaks) == 1:
			peak := peaks[0]
			log("calculate_rms", fmt.Sprintf("Strong peak detected at %.0f kHz! Peak is %.0fx stronger than median - may dominate RMS", peak.FreqKHz, peak.Ratio))
		case len(peaks) > 1:
			log("calculate_rms", fmt.Sprintf("Multiple strong peaks detected (%d peaks):", len(peaks)))
			for i, peak := range peaks {
				log("calculate_rms", fmt.Sprintf("  Peak %d: %.0f kHz (%.1f dB) - %.0fx stronger than median", i+1, peak.FreqKHz, peak.PowerDB, peak.Ratio))
			}
		}
	}

	return Result{
		RMSNormalized: &rmsNormalized,
		RMSTruncated5: &truncated5,
		IncludeMask:   includeMask,
	}
}

// medianOf returns the median of values, matching numpy.median's
// even-length average-of-middle-two behavior.
func medianOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// CalculateTruncatedRMS caps the top truncationPct of linear-power bins at
// their percentile threshold before recomputing RMS, so one dominant
// carrier cannot single-handedly set the reported interference level.
func CalculateTruncatedRMS(avgWf []float64, minDB, maxDB float64, includeMask []bool, truncationPct float64) (truncatedNormalized, thresholdDB float64, cappedBins int) {
	var filtered []float64
	if includeMask != nil {
		for i, keep := range includeMask {
			if keep {
				filtered = append(filtered, avgWf[i])
			}
		}
	} else {
		filtered = append(filtered, avgWf...)
	}

	linear := make([]float64, len(filtered))
	for i, v := range filtered {
		linear[i] = dbToLinear(v)
	}

	sorted := append([]float64(nil), linear...)
	sort.Float64s(sorted)

	thresholdPercentile := (100 - truncationPct) / 100
	threshold := stat.Quantile(thresholdPercentile, stat.LinInterp, sorted, nil)

	truncated := make([]float64, len(linear))
	for i, v := range linear {
		if v > threshold {
			truncated[i] = threshold
			cappedBins++
		} else {
			truncated[i] = v
		}
	}

	thresholdDB = linearToDB(threshold)
	truncRMSLinear := rmsOf(truncated)
	truncRMSDB := linearToDB(truncRMSLinear)
	truncatedNormalized = normalize(truncRMSDB, minDB, maxDB)
	return truncatedNormalized, thresholdDB, cappedBins
}

// Peak is one strong, separated carrier found by FindStrongPeaks.
type Peak struct {
	FreqKHz float64
	PowerDB float64
	Ratio   float64
	BinIdx  int
}

// FindStrongPeaks greedily selects up to maxPeaks bins whose linear power
// exceeds minRatio times medianLinearPower, enforcing minSeparationKHz
// between any two selected peaks, strongest first.
func FindStrongPeaks(avgWfFiltered []float64, originalIndices []int, startFreqKHz, freqPerBinKHz, medianLinearPower float64, maxPeaks int, minSeparationKHz, minRatio float64) []Peak {
	type candidate struct {
		filteredIdx int
		power       float64
	}
	var candidates []candidate
	for i, db := range avgWfFiltered {
		power := dbToLinear(db)
		if power > medianLinearPower*minRatio {
			candidates = append(candidates, candidate{filteredIdx: i, power: power})
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].power > candidates[j].power })

	var peaks []Peak
	for _, c := range candidates {
		if len(peaks) >= maxPeaks {
			break
		}
		originalBin := originalIndices[c.filteredIdx]
		freq := startFreqKHz + float64(originalBin)*freqPerBinKHz

		tooClose := false
		for _, p := range peaks {
			if math.Abs(freq-p.FreqKHz) < minSeparationKHz {
				tooClose = true
				break
			}
		}
		if tooClose {
			continue
		}

		peaks = append(peaks, Peak{
			FreqKHz: freq,
			PowerDB: avgWfFiltered[c.filteredIdx],
			Ratio:   c.power / medianLinearPower,
			BinIdx:  originalBin,
		})
	}

	sort.SliceStable(peaks, func(i, j int) bool { return peaks[i].Ratio > peaks[j].Ratio })
	return peaks
}

func dbToLinear(db float64) float64 { return math.Pow(10, db/10) }

func linearToDB(linear float64) float64 {
	if linear > 0 {
		return 10 * math.Log10(linear)
	}
	return -100
}

func rmsOf(linearPower []float64) float64 {
	if len(linearPower) == 0 {
		return 0
	}
	var sumSq float64
	for _, p := range linearPower {
		sumSq += p * p
	}
	return math.Sqrt(sumSq / float64(len(linearPower)))
}

func normalize(db, minDB, maxDB float64) float64 {
	if maxDB <= minDB {
		return 0
	}
	v := ((db - minDB) / (maxDB - minDB)) * 100
	if v < 0 {
		return 0
	}
	return v
}
