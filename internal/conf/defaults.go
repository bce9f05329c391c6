// conf/defaults.go default values for settings
package conf

import "github.com/spf13/viper"

// setDefaultConfig sets default values for every known configuration key
// before the config file is read, so a freshly created station runs with
// sane behaviour before an operator ever edits a TOML file.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("paths.output_directory", "./output")
	v.SetDefault("paths.keep_raw_files", true)

	v.SetDefault("recording.rec_time_default_sec", 10)
	v.SetDefault("recording.frame_rate_default", 25)
	v.SetDefault("recording.frequency_change_delay_sec", 0.5)
	v.SetDefault("recording.fft.fft_size_default", 2048)
	v.SetDefault("recording.fft.fft_avg_alpha", 0.2)
	v.SetDefault("recording.fft.min_db", -85.0)
	v.SetDefault("recording.fft.max_db", -60.0)

	v.SetDefault("scheduler.autostart", true)
	v.SetDefault("scheduler.cron", "*/30 * * * *")

	v.SetDefault("sdr.device_name", "rtlsdr")
	v.SetDefault("sdr.bandwidth_khz", 250.0)
	v.SetDefault("sdr.rf_gain", 20.0)
	v.SetDefault("sdr.if_gain", 20.0)
	v.SetDefault("sdr.bias_t_enabled", false)
	v.SetDefault("sdr.shutdown_after_recording", false)

	v.SetDefault("visualization.draw_bandplan", true)
	v.SetDefault("visualization.draw_mhz_separators", true)
	v.SetDefault("visualization.png_compression_level", 6)
	v.SetDefault("visualization.decimation_method", "mean")
	v.SetDefault("visualization.grid.time_window_hours", 12)
	v.SetDefault("visualization.grid.max_rows", 0) // 0 == unlimited, preserved literally
	v.SetDefault("visualization.grid.sort_latest_first", true)
	v.SetDefault("visualization.grid.show_title_label", true)
	v.SetDefault("visualization.timeslice.days_back", 14)
	v.SetDefault("visualization.timeslice.hours_default", []int{6, 12, 18})
	v.SetDefault("visualization.timeslice.autogenerate_default", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file_path", "logs/qrmlogger.log")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 10)
	v.SetDefault("logging.max_age_days", 30)

	v.SetDefault("analysis.exclude_freqs_khz", []float64{0, 28800})
	v.SetDefault("analysis.half_window_khz", 1.0)

	v.SetDefault("capture_plan.capture_sets_file", "capture_sets.json")
	v.SetDefault("capture_plan.roi_config_file", "roi.json")
	v.SetDefault("capture_plan.band_defs_file", "bands.toml")
}
