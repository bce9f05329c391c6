// conf/config.go
package conf

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Settings is the typed view over the main TOML configuration file. It is
// owned by the App root (see internal/app) rather than a package-level
// singleton: callers hold a *Settings and pass it down explicitly.
type Settings struct {
	Debug bool `mapstructure:"debug"`

	Paths struct {
		OutputDirectory string `mapstructure:"output_directory"`
		KeepRawFiles    bool   `mapstructure:"keep_raw_files"`
	} `mapstructure:"paths"`

	Recording struct {
		RecTimeDefaultSec       int     `mapstructure:"rec_time_default_sec"`
		FrameRateDefault        int     `mapstructure:"frame_rate_default"`
		FrequencyChangeDelaySec float64 `mapstructure:"frequency_change_delay_sec"`

		FFT struct {
			FFTSizeDefault int     `mapstructure:"fft_size_default"`
			FFTAvgAlpha    float64 `mapstructure:"fft_avg_alpha"`
			MinDB          float64 `mapstructure:"min_db"`
			MaxDB          float64 `mapstructure:"max_db"`
		} `mapstructure:"fft"`
	} `mapstructure:"recording"`

	Analysis struct {
		ExcludeFreqsKHz  []float64 `mapstructure:"exclude_freqs_khz"`
		HalfWindowKHz    float64   `mapstructure:"half_window_khz"`
	} `mapstructure:"analysis"`

	Scheduler struct {
		Autostart bool   `mapstructure:"autostart"`
		Cron      string `mapstructure:"cron"`
	} `mapstructure:"scheduler"`

	SDR struct {
		DeviceName             string  `mapstructure:"device_name"`
		BandwidthKHz           float64 `mapstructure:"bandwidth_khz"`
		RFGain                 float64 `mapstructure:"rf_gain"`
		IFGain                 float64 `mapstructure:"if_gain"`
		BiasTEnabled           bool    `mapstructure:"bias_t_enabled"`
		ShutdownAfterRecording bool    `mapstructure:"shutdown_after_recording"`
	} `mapstructure:"sdr"`

	Visualization struct {
		DrawBandplan        bool   `mapstructure:"draw_bandplan"`
		DrawMHzSeparators   bool   `mapstructure:"draw_mhz_separators"`
		PNGCompressionLevel int    `mapstructure:"png_compression_level"`
		DecimationMethod    string `mapstructure:"decimation_method"` // mean | max | sample

		Grid struct {
			TimeWindowHours int  `mapstructure:"time_window_hours"`
			MaxRows         int  `mapstructure:"max_rows"`
			SortLatestFirst bool `mapstructure:"sort_latest_first"`
			ShowTitleLabel  bool `mapstructure:"show_title_label"`
		} `mapstructure:"grid"`

		Timeslice struct {
			DaysBack            int   `mapstructure:"days_back"`
			HoursDefault        []int `mapstructure:"hours_default"`
			AutogenerateDefault bool  `mapstructure:"autogenerate_default"`
		} `mapstructure:"timeslice"`
	} `mapstructure:"visualization"`

	Logging struct {
		Level      string `mapstructure:"level"`
		FilePath   string `mapstructure:"file_path"`
		MaxSizeMB  int    `mapstructure:"max_size_mb"`
		MaxBackups int    `mapstructure:"max_backups"`
		MaxAgeDays int    `mapstructure:"max_age_days"`
	} `mapstructure:"logging"`

	CapturePlan struct {
		CaptureSetsFile string `mapstructure:"capture_sets_file"`
		ROIConfigFile   string `mapstructure:"roi_config_file"`
		BandDefsFile    string `mapstructure:"band_defs_file"`
	} `mapstructure:"capture_plan"`
}

// Load reads the TOML configuration file (and environment overrides) from
// configPath into a fresh Settings value. If configPath does not exist, a
// default config populated from setDefaultConfig is written there first,
// mirroring the teacher's create-default-then-read flow.
func Load(configPath string) (*Settings, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	setDefaultConfig(v)

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			if writeErr := writeDefaultConfig(v, configPath); writeErr != nil {
				return nil, fmt.Errorf("creating default config: %w", writeErr)
			}
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("reading freshly created config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("unmarshaling config into struct: %w", err)
	}

	if err := Validate(settings); err != nil {
		return nil, err
	}

	return settings, nil
}

func writeDefaultConfig(v *viper.Viper, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := v.SafeWriteConfigAs(configPath); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	return nil
}
