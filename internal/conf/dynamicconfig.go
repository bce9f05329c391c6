package conf

import (
	"encoding/json"
	"fmt"
	"os"
)

// CaptureSetOverride is a per-set override of SDR bandwidth, nested under
// DynamicConfig.CaptureSetConfigurations keyed by capture-set id.
type CaptureSetOverride struct {
	BandwidthKHz float64 `json:"bandwidth,omitempty"`
}

// DynamicConfig is the per-batch overlay that lives alongside the main TOML
// file and is mutated at runtime (enabling/disabling sets, tweaking gain)
// without touching the TOML. Missing keys are backfilled from the TOML
// Settings and the file is rewritten so it always round-trips completely.
type DynamicConfig struct {
	RFGain                     float64                        `json:"rf_gain"`
	IFGain                     float64                        `json:"if_gain"`
	SDRBandwidthKHz            float64                        `json:"sdr_bandwidth"`
	RecTimeDefaultSec          int                            `json:"rec_time_default_sec"`
	SchedulerCron              string                         `json:"scheduler_cron"`
	SchedulerAutostart         bool                           `json:"scheduler_autostart"`
	FFTSize                    int                            `json:"fft_size"`
	MinDB                      float64                        `json:"min_db"`
	MaxDB                      float64                        `json:"max_db"`
	CaptureSetsEnabled         []string                       `json:"capture_sets_enabled"`
	SDRShutdownAfterRecording  bool                           `json:"sdr_shutdown_after_recording"`
	CaptureSetConfigurations   map[string]CaptureSetOverride  `json:"capture_set_configurations"`
	TimesliceHours             []int                          `json:"timeslice_hours"`
	TimesliceAutogenerate      bool                           `json:"timeslice_autogenerate"`

	// present records which top-level keys existed in the file as read; it
	// is cleared once the merged config is decoded. Whether backfilling
	// changed anything (and the file needs rewriting) is tracked by
	// LoadDynamicConfig's own changed flag.
	present map[string]bool `json:"-"`
}

// LoadDynamicConfig reads the per-batch dynamic config JSON at path,
// backfilling any missing key from settings and rewriting the file if
// backfilling changed it, per spec: "Missing keys are backfilled from TOML
// and the file is rewritten."
func LoadDynamicConfig(path string, settings *Settings) (*DynamicConfig, error) {
	raw := map[string]json.RawMessage{}
	existed := false

	if data, err := os.ReadFile(path); err == nil {
		existed = true
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing dynamic config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading dynamic config %s: %w", path, err)
	}

	dc := &DynamicConfig{present: map[string]bool{}}
	for k := range raw {
		dc.present[k] = true
	}

	changed := !existed
	setIfMissing := func(key string, dst *json.RawMessage, value any) {
		if raw, ok := raw[key]; ok {
			*dst = raw
			return
		}
		b, _ := json.Marshal(value)
		*dst = b
		changed = true
	}

	var (
		rfGain, ifGain, bandwidth, recTime, cron, autostart         json.RawMessage
		fftSize, minDB, maxDB, setsEnabled, shutdownAfter           json.RawMessage
		setConfigs, timesliceHours, timesliceAuto                  json.RawMessage
	)
	setIfMissing("rf_gain", &rfGain, settings.SDR.RFGain)
	setIfMissing("if_gain", &ifGain, settings.SDR.IFGain)
	setIfMissing("sdr_bandwidth", &bandwidth, settings.SDR.BandwidthKHz)
	setIfMissing("rec_time_default_sec", &recTime, settings.Recording.RecTimeDefaultSec)
	setIfMissing("scheduler_cron", &cron, settings.Scheduler.Cron)
	setIfMissing("scheduler_autostart", &autostart, settings.Scheduler.Autostart)
	setIfMissing("fft_size", &fftSize, settings.Recording.FFT.FFTSizeDefault)
	setIfMissing("min_db", &minDB, settings.Recording.FFT.MinDB)
	setIfMissing("max_db", &maxDB, settings.Recording.FFT.MaxDB)
	setIfMissing("capture_sets_enabled", &setsEnabled, []string{})
	setIfMissing("sdr_shutdown_after_recording", &shutdownAfter, settings.SDR.ShutdownAfterRecording)
	setIfMissing("capture_set_configurations", &setConfigs, map[string]CaptureSetOverride{})
	setIfMissing("timeslice_hours", &timesliceHours, settings.Visualization.Timeslice.HoursDefault)
	setIfMissing("timeslice_autogenerate", &timesliceAuto, settings.Visualization.Timeslice.AutogenerateDefault)

	merged := map[string]json.RawMessage{
		"rf_gain":                       rfGain,
		"if_gain":                       ifGain,
		"sdr_bandwidth":                 bandwidth,
		"rec_time_default_sec":          recTime,
		"scheduler_cron":                cron,
		"scheduler_autostart":           autostart,
		"fft_size":                      fftSize,
		"min_db":                        minDB,
		"max_db":                        maxDB,
		"capture_sets_enabled":          setsEnabled,
		"sdr_shutdown_after_recording":  shutdownAfter,
		"capture_set_configurations":    setConfigs,
		"timeslice_hours":               timesliceHours,
		"timeslice_autogenerate":        timesliceAuto,
	}
	mergedBytes, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("remarshaling dynamic config: %w", err)
	}
	if err := json.Unmarshal(mergedBytes, dc); err != nil {
		return nil, fmt.Errorf("decoding merged dynamic config: %w", err)
	}
	dc.present = nil

	if changed {
		if err := writeDynamicConfig(path, dc); err != nil {
			return nil, fmt.Errorf("rewriting backfilled dynamic config: %w", err)
		}
	}

	return dc, nil
}

func writeDynamicConfig(path string, dc *DynamicConfig) error {
	b, err := json.MarshalIndent(dc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
