// Package captureplan loads the station's capture sets, region-of-interest
// configuration and band definitions from disk into the domain types the
// rest of the system operates on. Capture sets are described in JSON by a
// type tag plus per-type parameters; this package resolves each tag into a
// concrete list of domain.CaptureSpec the same way the source's per-type
// builder functions do.
package captureplan

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/qrmstation/qrmlogger/internal/conf"
	"github.com/qrmstation/qrmlogger/internal/domain"
	"github.com/qrmstation/qrmlogger/internal/pathguard"
	"github.com/qrmstation/qrmlogger/internal/roi"
)

// Plan is everything loaded once at startup to drive scheduled captures.
type Plan struct {
	CaptureSets []domain.CaptureSet
	ROIConfig   roi.Config
	Bands       map[string]domain.Band
}

// Load reads the band definitions, capture-set definitions and ROI
// configuration named in settings.CapturePlan.
func Load(guard *pathguard.Guard, settings *conf.Settings, logger *slog.Logger) (Plan, error) {
	bands := LoadBands(guard, settings.CapturePlan.BandDefsFile, logger)

	sets, err := LoadCaptureSets(guard, settings.CapturePlan.CaptureSetsFile, bands, logger)
	if err != nil {
		return Plan{}, err
	}

	roiCfg, err := roi.LoadConfig(guard, settings.CapturePlan.ROIConfigFile)
	if err != nil {
		return Plan{}, fmt.Errorf("loading ROI config: %w", err)
	}

	return Plan{CaptureSets: sets, ROIConfig: roiCfg, Bands: bands}, nil
}

type rawBand struct {
	StartKHz    float64 `toml:"start_khz"`
	EndKHz      float64 `toml:"end_khz"`
	Description string  `toml:"description"`
}

// LoadBands reads a band_id -> {start_khz, end_khz} TOML map. A missing
// path, missing file, or parse failure falls back to the hardcoded IARU
// Region 1 defaults rather than failing startup.
func LoadBands(guard *pathguard.Guard, path string, logger *slog.Logger) map[string]domain.Band {
	if path == "" {
		return fallbackBands()
	}

	exists, err := guard.Exists(path)
	if err != nil || !exists {
		logger.Info("band definitions file not found, using fallback bands", "path", path)
		return fallbackBands()
	}

	data, err := guard.ReadFile(path)
	if err != nil {
		logger.Error("reading band definitions, using fallback bands", "path", path, "error", err)
		return fallbackBands()
	}

	var raw map[string]rawBand
	if err := toml.Unmarshal(data, &raw); err != nil {
		logger.Error("parsing band definitions, using fallback bands", "path", path, "error", err)
		return fallbackBands()
	}

	bands := make(map[string]domain.Band, len(raw))
	for id, b := range raw {
		bands[id] = domain.Band{ID: id, StartKHz: b.StartKHz, EndKHz: b.EndKHz}
	}
	logger.Info("loaded band definitions", "count", len(bands))
	return bands
}

func fallbackBands() map[string]domain.Band {
	defaults := []domain.Band{
		{ID: "160m", StartKHz: 1810, EndKHz: 2000},
		{ID: "80m", StartKHz: 3500, EndKHz: 3800},
		{ID: "60m", StartKHz: 5351, EndKHz: 5367},
		{ID: "40m", StartKHz: 7000, EndKHz: 7200},
		{ID: "30m", StartKHz: 10100, EndKHz: 10150},
		{ID: "20m", StartKHz: 14000, EndKHz: 14350},
		{ID: "17m", StartKHz: 18068, EndKHz: 18168},
		{ID: "15m", StartKHz: 21000, EndKHz: 21450},
		{ID: "12m", StartKHz: 24890, EndKHz: 24990},
		{ID: "10m", StartKHz: 28000, EndKHz: 29700},
		{ID: "VHF-SAT-DL", StartKHz: 145800, EndKHz: 146000},
		{ID: "VHF-RPT-OUT", StartKHz: 145600, EndKHz: 145800},
		{ID: "UHF-SAT-DL", StartKHz: 435000, EndKHz: 438000},
		{ID: "UHF-RPT-OUT", StartKHz: 439000, EndKHz: 440000},
	}
	bands := make(map[string]domain.Band, len(defaults))
	for _, b := range defaults {
		bands[b.ID] = b
	}
	return bands
}

type document struct {
	Version     int             `json:"version"`
	CaptureSets []rawCaptureSet `json:"capture_sets"`
}

type rawCaptureSet struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Type        string          `json:"type"`
	Params      json.RawMessage `json:"params"`
	Specs       []rawSpec       `json:"specs"`
}

type rawSpec struct {
	ID        string        `json:"id"`
	CenterKHz float64       `json:"center_khz"`
	SpanKHz   *float64      `json:"span_khz"`
	FreqRange *rawFreqRange `json:"freq_range"`
}

type rawFreqRange struct {
	ID            string  `json:"id"`
	StartKHz      float64 `json:"start_khz"`
	EndKHz        float64 `json:"end_khz"`
	CropMarginKHz float64 `json:"crop_margin_khz"`
}

type stepParams struct {
	StartMHz      int     `json:"start_mhz"`
	EndMHz        int     `json:"end_mhz"`
	StepMHz       int     `json:"step_mhz"`
	Suffix        string  `json:"suffix"`
	CropToStep    bool    `json:"crop_to_step"`
	CropMarginKHz float64 `json:"crop_margin_khz"`
}

type bandSpecsParams struct {
	BandIDs []string `json:"band_ids"`
	Suffix  string   `json:"suffix"`
}

// LoadCaptureSets reads the capture-set configuration JSON at path and
// resolves every set's type tag into concrete specs. A missing path or
// missing file returns (nil, nil) so the caller can fall back to built-in
// defaults; an unrecognized document version is the one fatal condition.
func LoadCaptureSets(guard *pathguard.Guard, path string, bands map[string]domain.Band, logger *slog.Logger) ([]domain.CaptureSet, error) {
	if path == "" {
		return nil, nil
	}
	exists, err := guard.Exists(path)
	if err != nil {
		return nil, fmt.Errorf("checking %s: %w", path, err)
	}
	if !exists {
		return nil, nil
	}

	data, err := guard.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if doc.Version != 1 {
		return nil, fmt.Errorf("%s: unsupported capture-set document version %d", path, doc.Version)
	}

	sets := make([]domain.CaptureSet, 0, len(doc.CaptureSets))
	for _, rs := range doc.CaptureSets {
		specs, err := buildSpecs(rs, bands)
		if err != nil {
			logger.Warn("skipping capture set with unbuildable specs", "set_id", rs.ID, "type", rs.Type, "error", err)
			continue
		}
		sets = append(sets, domain.CaptureSet{ID: rs.ID, Description: rs.Description, Specs: specs})
	}

	for _, issue := range ValidateCaptureSets(sets) {
		logger.Warn("capture set validation issue", "issue", issue)
	}
	return sets, nil
}

func buildSpecs(rs rawCaptureSet, bands map[string]domain.Band) ([]domain.CaptureSpec, error) {
	switch rs.Type {
	case "step_specs":
		var p stepParams
		if err := json.Unmarshal(rs.Params, &p); err != nil {
			return nil, fmt.Errorf("invalid step_specs params: %w", err)
		}
		return buildStepSpecs(p), nil
	case "band_specs":
		var p bandSpecsParams
		if err := json.Unmarshal(rs.Params, &p); err != nil {
			return nil, fmt.Errorf("invalid band_specs params: %w", err)
		}
		return buildBandSpecs(p.BandIDs, p.Suffix, bands), nil
	case "vhf_specs":
		return buildVHFSpecs(), nil
	case "uhf_specs":
		return buildUHFSpecs(), nil
	case "raw_specs":
		return buildRawSpecs(rs.Specs)
	default:
		return nil, fmt.Errorf("unknown capture set type %q", rs.Type)
	}
}

// buildStepSpecs mirrors create_step_specs: one spec per step_mhz-sized
// slice between start_mhz and end_mhz inclusive, optionally carrying a
// FreqRange cropped to that step.
func buildStepSpecs(p stepParams) []domain.CaptureSpec {
	var specs []domain.CaptureSpec
	count := 0
	for mhz := p.StartMHz; mhz <= p.EndMHz; mhz += p.StepMHz {
		name := fmt.Sprintf("%02d%s", mhz, p.Suffix)
		freqKHz := float64(mhz * 1000)

		spec := domain.CaptureSpec{SpecIndex: count, ID: name, CenterKHz: freqKHz}
		if p.CropToStep {
			halfStepKHz := math.Round(float64(p.StepMHz) * 1000 / 2)
			spec.FreqRange = &domain.FreqRange{
				ID:            strconv.Itoa(mhz),
				StartKHz:      freqKHz - halfStepKHz,
				EndKHz:        freqKHz + halfStepKHz,
				CropMarginKHz: p.CropMarginKHz,
			}
		}
		specs = append(specs, spec)
		count++
	}
	return specs
}

// buildSimpleSpec mirrors create_simple_spec: a spec whose FreqRange crops
// to center +/- span/2, leaving SpanKHz unset so recording itself still
// uses the active SDR bandwidth.
func buildSimpleSpec(index int, id string, centerKHz, spanKHz float64) domain.CaptureSpec {
	fr := &domain.FreqRange{
		ID:            id,
		StartKHz:      centerKHz - spanKHz/2,
		EndKHz:        centerKHz + spanKHz/2,
		CropMarginKHz: 10,
	}
	return domain.CaptureSpec{SpecIndex: index, ID: id, CenterKHz: centerKHz, FreqRange: fr}
}

// buildVHFSpecs mirrors create_vhf_specs: the single 145 MHz satellite spec.
func buildVHFSpecs() []domain.CaptureSpec {
	fr := &domain.FreqRange{ID: "145 MHz", StartKHz: 144_000, EndKHz: 146_000, CropMarginKHz: 10}
	return []domain.CaptureSpec{{SpecIndex: 0, ID: "145 MHz", CenterKHz: 145_000, FreqRange: fr}}
}

// buildUHFSpecs mirrors create_uhf_specs: the 432/437 MHz satellite specs.
func buildUHFSpecs() []domain.CaptureSpec {
	return []domain.CaptureSpec{
		buildSimpleSpec(0, "432 MHz", 432_000, 2_000),
		buildSimpleSpec(1, "437 MHz", 437_000, 2_000),
	}
}

// buildBandSpecs mirrors create_band_specs: one spec per known band id,
// centered on the band's start frequency, unknown ids silently skipped.
func buildBandSpecs(bandIDs []string, suffix string, bands map[string]domain.Band) []domain.CaptureSpec {
	var specs []domain.CaptureSpec
	count := 0
	for _, bandID := range bandIDs {
		band, ok := bands[bandID]
		if !ok {
			continue
		}
		name := bandID
		if suffix != "" {
			name = bandID + suffix
		}
		fr := &domain.FreqRange{ID: bandID, StartKHz: band.StartKHz, EndKHz: band.EndKHz, CropMarginKHz: 50}
		specs = append(specs, domain.CaptureSpec{SpecIndex: count, ID: name, CenterKHz: band.StartKHz, FreqRange: fr})
		count++
	}
	return specs
}

// buildRawSpecs passes an explicit "specs" array through, for capture sets
// that name exact frequencies rather than deriving them from a parameter
// set.
func buildRawSpecs(raw []rawSpec) ([]domain.CaptureSpec, error) {
	specs := make([]domain.CaptureSpec, 0, len(raw))
	for i, rs := range raw {
		if rs.ID == "" {
			return nil, fmt.Errorf("raw spec %d: missing id", i)
		}
		spec := domain.CaptureSpec{SpecIndex: i, ID: rs.ID, CenterKHz: rs.CenterKHz, SpanKHz: rs.SpanKHz}
		if rs.FreqRange != nil {
			spec.FreqRange = &domain.FreqRange{
				ID:            rs.FreqRange.ID,
				StartKHz:      rs.FreqRange.StartKHz,
				EndKHz:        rs.FreqRange.EndKHz,
				CropMarginKHz: rs.FreqRange.CropMarginKHz,
			}
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_\- ]+$`)

// ValidateCaptureSets checks id charset, length and uniqueness rules for
// every set and spec, returning a human-readable issue per violation. It
// never fails the load; callers log these as warnings.
func ValidateCaptureSets(sets []domain.CaptureSet) []string {
	var issues []string
	setIDsSeen := make(map[string]bool, len(sets))

	for _, cs := range sets {
		if cs.ID == "" {
			issues = append(issues, "capture set has an empty id")
			continue
		}
		if !idPattern.MatchString(cs.ID) {
			issues = append(issues, fmt.Sprintf("capture set id %q contains invalid characters; only alphanumeric, underscore, dash, and space are allowed", cs.ID))
		}
		if len(cs.ID) > 50 {
			issues = append(issues, fmt.Sprintf("capture set id %q is too long (max 50 characters)", cs.ID))
		}
		if setIDsSeen[cs.ID] {
			issues = append(issues, fmt.Sprintf("duplicate capture set id %q", cs.ID))
		}
		setIDsSeen[cs.ID] = true

		if len(cs.Specs) == 0 {
			issues = append(issues, fmt.Sprintf("capture set %q has no specs defined", cs.ID))
			continue
		}

		specIDsSeen := make(map[string]bool, len(cs.Specs))
		for _, spec := range cs.Specs {
			id := strings.TrimSpace(spec.ID)
			if id == "" {
				issues = append(issues, fmt.Sprintf("capture set %q: spec has an empty id", cs.ID))
				continue
			}
			if !idPattern.MatchString(id) {
				issues = append(issues, fmt.Sprintf("capture set %q: spec id %q contains invalid characters", cs.ID, id))
			}
			if len(id) > 50 {
				issues = append(issues, fmt.Sprintf("capture set %q: spec id %q is too long (max 50 characters)", cs.ID, id))
			}
			if specIDsSeen[id] {
				issues = append(issues, fmt.Sprintf("capture set %q: duplicate spec id %q", cs.ID, id))
			}
			specIDsSeen[id] = true
		}
	}
	return issues
}
