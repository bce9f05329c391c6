package captureplan

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrmstation/qrmlogger/internal/domain"
	"github.com/qrmstation/qrmlogger/internal/pathguard"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadBandsFallsBackWhenFileMissing(t *testing.T) {
	t.Parallel()
	guard, err := pathguard.New(t.TempDir())
	require.NoError(t, err)
	defer guard.Close()

	bands := LoadBands(guard, "bandplan.toml", testLogger())
	assert.Equal(t, 14, len(bands))
	assert.Equal(t, 14000.0, bands["20m"].StartKHz)
}

func TestLoadBandsParsesTOML(t *testing.T) {
	t.Parallel()
	guard, err := pathguard.New(t.TempDir())
	require.NoError(t, err)
	defer guard.Close()

	toml := "[20m]\nstart_khz = 14000.0\nend_khz = 14350.0\n"
	require.NoError(t, guard.WriteFile("bandplan.toml", []byte(toml), 0o644))

	bands := LoadBands(guard, "bandplan.toml", testLogger())
	require.Len(t, bands, 1)
	assert.Equal(t, 14350.0, bands["20m"].EndKHz)
}

func TestLoadCaptureSetsMissingFileReturnsNil(t *testing.T) {
	t.Parallel()
	guard, err := pathguard.New(t.TempDir())
	require.NoError(t, err)
	defer guard.Close()

	sets, err := LoadCaptureSets(guard, "capture_sets.json", fallbackBands(), testLogger())
	require.NoError(t, err)
	assert.Nil(t, sets)
}

func TestLoadCaptureSetsRejectsUnknownVersion(t *testing.T) {
	t.Parallel()
	guard, err := pathguard.New(t.TempDir())
	require.NoError(t, err)
	defer guard.Close()

	require.NoError(t, guard.WriteFile("capture_sets.json", []byte(`{"version":2,"capture_sets":[]}`), 0o644))
	_, err = LoadCaptureSets(guard, "capture_sets.json", fallbackBands(), testLogger())
	assert.Error(t, err)
}

func TestLoadCaptureSetsBuildsEachType(t *testing.T) {
	t.Parallel()
	guard, err := pathguard.New(t.TempDir())
	require.NoError(t, err)
	defer guard.Close()

	doc := `{
		"version": 1,
		"capture_sets": [
			{"id": "HF", "type": "step_specs", "params": {"start_mhz": 1, "end_mhz": 3, "step_mhz": 1, "suffix": "m"}},
			{"id": "VHF", "type": "vhf_specs"},
			{"id": "UHF", "type": "uhf_specs"},
			{"id": "Bands", "type": "band_specs", "params": {"band_ids": ["20m", "40m"]}},
			{"id": "Raw", "type": "raw_specs", "specs": [{"id": "custom", "center_khz": 10000, "span_khz": 50}]}
		]
	}`
	require.NoError(t, guard.WriteFile("capture_sets.json", []byte(doc), 0o644))

	sets, err := LoadCaptureSets(guard, "capture_sets.json", fallbackBands(), testLogger())
	require.NoError(t, err)
	require.Len(t, sets, 5)

	byID := make(map[string]int)
	for _, s := range sets {
		byID[s.ID] = len(s.Specs)
	}
	assert.Equal(t, 3, byID["HF"])
	assert.Equal(t, 1, byID["VHF"])
	assert.Equal(t, 2, byID["UHF"])
	assert.Equal(t, 2, byID["Bands"])
	assert.Equal(t, 1, byID["Raw"])
}

func TestLoadCaptureSetsSkipsSetWithBadParams(t *testing.T) {
	t.Parallel()
	guard, err := pathguard.New(t.TempDir())
	require.NoError(t, err)
	defer guard.Close()

	doc := `{"version":1,"capture_sets":[{"id":"Bad","type":"step_specs","params":"not-an-object"}]}`
	require.NoError(t, guard.WriteFile("capture_sets.json", []byte(doc), 0o644))

	sets, err := LoadCaptureSets(guard, "capture_sets.json", fallbackBands(), testLogger())
	require.NoError(t, err)
	assert.Empty(t, sets)
}

func TestBuildStepSpecsCropToStep(t *testing.T) {
	t.Parallel()
	specs := buildStepSpecs(stepParams{StartMHz: 1, EndMHz: 2, StepMHz: 1, CropToStep: true, CropMarginKHz: 5})
	require.Len(t, specs, 2)
	require.NotNil(t, specs[0].FreqRange)
	assert.Equal(t, 500.0, specs[0].FreqRange.StartKHz)
	assert.Equal(t, 1500.0, specs[0].FreqRange.EndKHz)
}

func TestBuildBandSpecsSkipsUnknownBand(t *testing.T) {
	t.Parallel()
	specs := buildBandSpecs([]string{"20m", "nope"}, "", fallbackBands())
	require.Len(t, specs, 1)
	assert.Equal(t, "20m", specs[0].ID)
}

func TestValidateCaptureSetsFlagsDuplicatesAndBadChars(t *testing.T) {
	t.Parallel()
	sets := []domain.CaptureSet{
		{ID: "HF", Specs: []domain.CaptureSpec{{ID: "a"}, {ID: "a"}}},
		{ID: "HF", Specs: []domain.CaptureSpec{{ID: "b"}}},
		{ID: "bad/id", Specs: []domain.CaptureSpec{{ID: "c"}}},
	}
	issues := ValidateCaptureSets(sets)
	assert.NotEmpty(t, issues)
}
