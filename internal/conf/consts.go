// conf/consts.go hard coded constants
package conf

import "regexp"

// Filenames and path segments fixed by the external interface contract.
const (
	CounterFileName = "counter.txt"
	RMSStandardCSV  = "rms_standard.csv"
	RMSTruncatedCSV = "rms_truncated.csv"
	RawDirName      = "raw"
	PlotsFullDir    = "plots_full"
	PlotsResizedDir = "plots_resized"
	GridsFullDir    = "grids_full"
	GridsResizedDir = "grids_resized"
	CSVDirName      = "csv"
	LogDirName      = "log"
	MetadataDirName = "metadata"
	ROISuffix       = "_ROI"
	DateFormat      = "2006-01-02"
	ClockFormat     = "15:04"
	FileClockFormat = "15.04"
)

// IDPattern matches the capture-id regex used for capture sets, specs and ROI ids.
var IDPattern = regexp.MustCompile(`^[A-Za-z0-9_\- ]{1,50}$`)

// InvalidPathChars are rejected in capture-set ids (cross-platform filesystem safety).
const InvalidPathChars = `<>:"/\|?*`

// CalibrationDBOffset is one named dB shift applied to both min_db and
// max_db in calibration mode.
type CalibrationDBOffset struct {
	DeltaDB float64
	Name    string
}

// CalibrationDBOffsets are the named dB-window shifts applied in
// calibration mode, in order.
var CalibrationDBOffsets = []CalibrationDBOffset{
	{0, "+0 dB"},
	{-12, "-12 dB"},
	{-6, "-6 dB"},
	{-3, "-3 dB"},
	{3, "+3 dB"},
	{6, "+6 dB"},
	{12, "+12 dB"},
}

// CalibrationCounterBump is how much the counter advances, beyond the normal +1,
// once a calibration batch finishes processing its last set. len(CalibrationDBOffsets)-1,
// preserved exactly as observed upstream.
const CalibrationCounterBump = len(CalibrationDBOffsets) - 1

// DecimationFactors are the allowed column-decimation strides for plotting.
var DecimationFactors = []int{1, 2, 3, 4, 6, 8, 12, 16}

// NiceKHzSteps are the allowed tick-step sizes for frequency axes.
var NiceKHzSteps = []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}

// DefaultExclusionCentersKHz are frequencies masked out of RMS computation by default.
var DefaultExclusionCentersKHz = []float64{0, 28800}

const (
	DefaultExclusionHalfWindowKHz = 1.0
	DefaultTruncationPercent5     = 5.0
	DefaultTruncationPercent10    = 10.0
	StrongPeakRatio               = 100.0
	StrongPeakMaxCount            = 5
	StrongPeakMinSeparationKHz    = 3.0
	SparseColumnThreshold         = 5
	SparseTimeColumnWidthFactor   = 0.6
	GridThumbnailSmallPx          = 2048
	GridThumbnailLargePx          = 4096
	GridThumbnailRowThreshold     = 50
	PlotThumbnailMaxPx            = 512
	SinkPollInterval              = 100 // milliseconds
)
