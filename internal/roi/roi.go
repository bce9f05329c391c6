// Package roi manages the runtime-editable regions-of-interest
// configuration: JSON-backed load/save, grouping into synthetic ROI
// capture sets, and building ROI runs that re-crop an existing run's raw
// spectrogram instead of capturing fresh samples.
package roi

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/qrmstation/qrmlogger/internal/domain"
	"github.com/qrmstation/qrmlogger/internal/pathguard"
)

// Definition is one region of interest: a named crop window layered on
// top of an existing capture spec's raw data.
type Definition struct {
	ROIID            string   `json:"roi_id"`
	BaseCaptureSetID string   `json:"base_capture_set_id"`
	CaptureSpecID    string   `json:"capture_spec_id"`
	CenterKHz        *float64 `json:"center_khz"`
	SpanKHz          *float64 `json:"span_khz"`
	MarginKHz        float64  `json:"margin_khz"`
}

// Config is the full contents of the ROI JSON store.
type Config struct {
	ProcessingEnabled bool         `json:"processing_enabled"`
	ROIs              []Definition `json:"rois"`
}

var roiIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_\- ]+$`)

// LoadConfig reads path's ROI JSON, dropping any entry missing a required
// field instead of failing the whole load. A missing file or malformed
// JSON returns the same safe default as the source: processing disabled,
// no ROIs.
func LoadConfig(guard *pathguard.Guard, path string) (Config, error) {
	exists, err := guard.Exists(path)
	if err != nil {
		return Config{}, fmt.Errorf("checking %s: %w", path, err)
	}
	if !exists {
		return Config{}, nil
	}

	data, err := guard.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var raw struct {
		ProcessingEnabled bool              `json:"processing_enabled"`
		ROIs              []json.RawMessage `json:"rois"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Config{}, nil
	}

	validated := make([]Definition, 0, len(raw.ROIs))
	for _, rm := range raw.ROIs {
		var d Definition
		if err := json.Unmarshal(rm, &d); err != nil {
			continue
		}
		if d.ROIID == "" || d.BaseCaptureSetID == "" || d.CaptureSpecID == "" || d.CenterKHz == nil || d.SpanKHz == nil {
			continue
		}
		validated = append(validated, d)
	}
	return Config{ProcessingEnabled: raw.ProcessingEnabled, ROIs: validated}, nil
}

// SaveConfig validates cfg (roi_id charset/length, required numeric
// fields) and writes it as the full replacement ROI JSON at path.
func SaveConfig(guard *pathguard.Guard, path string, cfg Config) error {
	for i, d := range cfg.ROIs {
		if err := validateDefinition(i, d); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding ROI config: %w", err)
	}
	return guard.WriteFile(path, data, 0o644)
}

func validateDefinition(i int, d Definition) error {
	roiID := strings.TrimSpace(d.ROIID)
	if roiID == "" {
		return fmt.Errorf("roi entry %d: roi_id cannot be empty", i)
	}
	if !roiIDPattern.MatchString(roiID) {
		return fmt.Errorf("roi entry %d: roi_id %q contains invalid characters; only alphanumeric, underscore, dash, and space are allowed", i, roiID)
	}
	if len(roiID) > 50 {
		return fmt.Errorf("roi entry %d: roi_id %q is too long (max 50 characters)", i, roiID)
	}
	if d.BaseCaptureSetID == "" || d.CaptureSpecID == "" {
		return fmt.Errorf("roi entry %d: missing required fields", i)
	}
	if d.CenterKHz == nil || d.SpanKHz == nil {
		return fmt.Errorf("roi entry %d: center_khz and span_khz must be numbers", i)
	}
	return nil
}

func freqRangeFor(d Definition) (*domain.FreqRange, float64) {
	roiID := strings.TrimSpace(d.ROIID)
	centerKHz, spanKHz := *d.CenterKHz, *d.SpanKHz
	startKHz := centerKHz - spanKHz/2
	endKHz := centerKHz + spanKHz/2
	return &domain.FreqRange{ID: roiID, StartKHz: startKHz, EndKHz: endKHz, CropMarginKHz: d.MarginKHz}, spanKHz
}

// Specs groups cfg's ROI definitions into synthetic capture sets, one per
// distinct base capture set ("<base>_ROI"), each holding one spec per ROI.
// Returns an empty map when processing is disabled.
func Specs(cfg Config) map[string]domain.CaptureSet {
	result := make(map[string]domain.CaptureSet)
	if !cfg.ProcessingEnabled {
		return result
	}

	var order []string
	byBase := make(map[string][]Definition)
	for _, d := range cfg.ROIs {
		if _, ok := byBase[d.BaseCaptureSetID]; !ok {
			order = append(order, d.BaseCaptureSetID)
		}
		byBase[d.BaseCaptureSetID] = append(byBase[d.BaseCaptureSetID], d)
	}

	for _, baseID := range order {
		var specs []domain.CaptureSpec
		for idx, d := range byBase[baseID] {
			fr, spanKHz := freqRangeFor(d)
			span := spanKHz
			specs = append(specs, domain.CaptureSpec{
				SpecIndex: idx, ID: fr.ID, CenterKHz: *d.CenterKHz, SpanKHz: &span, FreqRange: fr,
			})
		}
		if len(specs) == 0 {
			continue
		}
		roiSetID := baseID + "_ROI"
		result[roiSetID] = domain.CaptureSet{
			ID:          roiSetID,
			Description: fmt.Sprintf("Custom ROI configuration based on %s", baseID),
			Specs:       specs,
		}
	}
	return result
}

// BuildRuns materializes ROI runs for captureSet's batch, reusing each
// matched source run's raw file and tuning rather than recording fresh
// samples. Source runs are matched by capture_spec_id against runs' IDs;
// a ROI whose source spec didn't run (or has no raw file) is skipped.
func BuildRuns(cfg Config, captureSet domain.CaptureSet, runs []*domain.CaptureRun, recTimeMS int64) []*domain.CaptureRun {
	if !cfg.ProcessingEnabled {
		return nil
	}

	sourceBySpecID := make(map[string]*domain.CaptureRun, len(runs))
	for _, r := range runs {
		if r.RawFilename != nil {
			sourceBySpecID[r.ID] = r
		}
	}

	roiSetID := captureSet.ID + "_ROI"
	var roiRuns []*domain.CaptureRun
	idx := 0
	for _, d := range cfg.ROIs {
		if d.BaseCaptureSetID != captureSet.ID {
			continue
		}
		baseSpecID := strings.TrimSpace(d.CaptureSpecID)
		sourceRun, ok := sourceBySpecID[baseSpecID]
		if !ok {
			continue
		}

		fr, spanKHz := freqRangeFor(d)
		span := spanKHz
		spec := domain.CaptureSpec{SpecIndex: idx, ID: fr.ID, CenterKHz: *d.CenterKHz, SpanKHz: &span, FreqRange: fr}

		rr := domain.NewCaptureRun(spec, roiSetID, sourceRun.DateString, sourceRun.FFTSize, recTimeMS, sourceRun.BatchTime, sourceRun.Counter, sourceRun.FreqHz, sourceRun.SpanHz)
		rr.CaptureStartTime = sourceRun.CaptureStartTime
		rr.RawFilename = sourceRun.RawFilename
		roiID := fr.ID
		rr.ROIID = &roiID
		rr.Position = idx

		roiRuns = append(roiRuns, rr)
		idx++
	}
	return roiRuns
}
