package recorder

import (
	"time"

	"github.com/qrmstation/qrmlogger/internal/conf"
	"github.com/qrmstation/qrmlogger/internal/domain"
)

// BuildRuns materializes one domain.CaptureRun per spec in set, resolving
// each run's span in priority order: the spec's own explicit span_khz
// wins; failing that, a per-set bandwidth override in
// dynamic.CaptureSetConfigurations; failing that, the global sdr_bandwidth.
// freq_hz is always center_khz * 1000.
func BuildRuns(set domain.CaptureSet, dateString string, fftSize int, recTimeMS int64, batchTime time.Time, counter int, settings *conf.Settings, dynamic *conf.DynamicConfig) []*domain.CaptureRun {
	globalBandwidthKHz := settings.SDR.BandwidthKHz
	if dynamic != nil && dynamic.SDRBandwidthKHz > 0 {
		globalBandwidthKHz = dynamic.SDRBandwidthKHz
	}

	setBandwidthKHz := globalBandwidthKHz
	if dynamic != nil {
		if override, ok := dynamic.CaptureSetConfigurations[set.ID]; ok && override.BandwidthKHz > 0 {
			setBandwidthKHz = override.BandwidthKHz
		}
	}

	runs := make([]*domain.CaptureRun, 0, len(set.Specs))
	for _, spec := range set.Specs {
		spanKHz := setBandwidthKHz
		if spec.SpanKHz != nil {
			spanKHz = *spec.SpanKHz
		}

		freqHz := int64(spec.CenterKHz * 1000)
		spanHz := int64(spanKHz * 1000)

		run := domain.NewCaptureRun(spec, set.ID, dateString, fftSize, recTimeMS, batchTime, counter, freqHz, spanHz)
		runs = append(runs, run)
	}
	return runs
}
