package store

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/qrmstation/qrmlogger/internal/domain"
	"github.com/qrmstation/qrmlogger/internal/pathguard"
)

// PlotMetaRow is one saved-plot record, as read back from a metadata CSV.
type PlotMetaRow struct {
	Count      string
	TimeString string
	Position   string
	CaptureID  string
	Note       string
}

// MetadataWriter appends one row per saved plot to a per-capture-set,
// per-plot-type CSV, so the grid builder can enumerate a day's plots
// without re-statting the filesystem.
type MetadataWriter struct {
	guard *pathguard.Guard
}

// NewMetadataWriter returns a MetadataWriter rooted at guard.
func NewMetadataWriter(guard *pathguard.Guard) *MetadataWriter {
	return &MetadataWriter{guard: guard}
}

// MetadataPath returns the per-day, per-plot-type metadata CSV path for
// setID, so the grid builder can locate it without duplicating the
// convention.
func MetadataPath(setID, dateString, plotType string) string {
	return fmt.Sprintf("%s/metadata/%s/%s_plots_metadata.csv", setID, dateString, plotType)
}

// Save appends run's plot metadata (count, time, position, id, note,
// filename) to that day's "<plotType>_plots_metadata.csv" under the run's
// capture set.
func (w *MetadataWriter) Save(run *domain.CaptureRun, plotType, note, plotFilename string) error {
	path := MetadataPath(run.CaptureSetID, run.DateString, plotType)

	exists, err := w.guard.Exists(path)
	if err != nil {
		return fmt.Errorf("checking %s: %w", path, err)
	}

	if !exists {
		if err := writeHeader(w.guard, path, []string{"count", "time_string", "position", "capture_id", "note", "filename"}); err != nil {
			return err
		}
	}

	row := []string{
		fmt.Sprintf("%04d", run.Counter),
		run.BatchTime.Format("15:04"),
		fmt.Sprintf("%02d", run.Position),
		run.ID,
		sanitizeField(note),
		plotFilename,
	}
	return appendRow(w.guard, path, row)
}

// LoadPlotMetadata reads a day's plot-metadata CSV, keyed by filename, for
// the grid builder to enumerate. Returns an empty map, not an error, when
// the file doesn't exist yet.
func LoadPlotMetadata(guard *pathguard.Guard, setID, dateString, plotType string) (map[string]PlotMetaRow, error) {
	path := MetadataPath(setID, dateString, plotType)

	exists, err := guard.Exists(path)
	if err != nil {
		return nil, fmt.Errorf("checking %s: %w", path, err)
	}
	if !exists {
		return map[string]PlotMetaRow{}, nil
	}

	data, err := guard.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil || len(records) == 0 {
		return map[string]PlotMetaRow{}, nil
	}

	colIdx := make(map[string]int, len(records[0]))
	for i, col := range records[0] {
		colIdx[strings.TrimSpace(col)] = i
	}
	get := func(row []string, col string) string {
		if i, ok := colIdx[col]; ok && i < len(row) {
			return row[i]
		}
		return ""
	}

	out := make(map[string]PlotMetaRow, len(records)-1)
	for _, row := range records[1:] {
		filename := get(row, "filename")
		if filename == "" {
			continue
		}
		out[filename] = PlotMetaRow{
			Count:      get(row, "count"),
			TimeString: get(row, "time_string"),
			Position:   get(row, "position"),
			CaptureID:  get(row, "capture_id"),
			Note:       get(row, "note"),
		}
	}
	return out, nil
}
