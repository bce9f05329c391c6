// Package store persists per-run results to the CSV files a capture set's
// output directory accumulates over time: RMS summaries, plot metadata
// (used by the grid builder), and collected log text.
package store

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/qrmstation/qrmlogger/internal/domain"
	"github.com/qrmstation/qrmlogger/internal/pathguard"
	"github.com/qrmstation/qrmlogger/internal/xerrors"
)

// RMSWriter appends standard and truncated RMS values to per-capture-set
// CSVs, evolving each file's spec-id columns as capture sets gain or lose
// specs over time.
type RMSWriter struct {
	guard *pathguard.Guard
}

// NewRMSWriter returns an RMSWriter rooted at guard.
func NewRMSWriter(guard *pathguard.Guard) *RMSWriter {
	return &RMSWriter{guard: guard}
}

// Write appends one row to rms_standard.csv and one to rms_truncated.csv
// for the given batch of results.
func (w *RMSWriter) Write(setID string, results []domain.ProcessingResult, counter int, recordingStart time.Time, note string) error {
	ids := make([]string, len(results))
	standard := make([]float64, len(results))
	truncated := make([]float64, len(results))
	for i, r := range results {
		if r.Run != nil {
			ids[i] = r.Run.ID
		}
		if r.RMSNormalized != nil {
			standard[i] = *r.RMSNormalized
		}
		if r.RMSTruncated != nil {
			truncated[i] = *r.RMSTruncated
		}
	}

	if err := w.writeCSV(setID, standard, ids, counter, recordingStart, note, "rms_standard.csv"); err != nil {
		return err
	}
	return w.writeCSV(setID, truncated, ids, counter, recordingStart, note, "rms_truncated.csv")
}

func rmsPath(setID, filename string) string {
	return fmt.Sprintf("%s/csv/%s", setID, filename)
}

func (w *RMSWriter) writeCSV(setID string, values []float64, ids []string, counter int, recordingStart time.Time, note, filename string) error {
	path := rmsPath(setID, filename)

	existingColumns, err := readSpecColumns(w.guard, path)
	if err != nil {
		return err
	}

	current := make(map[string]int, len(ids))
	for i, id := range ids {
		current[id] = int(math.Round(values[i]))
	}

	canonicalColumns, changed := mergeSpecColumns(existingColumns, ids)

	rmsValues := make([]int, len(canonicalColumns))
	for i, col := range canonicalColumns {
		if v, ok := current[col]; ok {
			rmsValues[i] = v
		} else {
			rmsValues[i] = -1
		}
	}

	total, activeCount := 0, 0
	for _, v := range rmsValues {
		if v != -1 {
			total += v
			activeCount++
		}
	}
	avg := 0
	if activeCount > 0 {
		avg = int(math.Round(float64(total) / float64(activeCount)))
	}

	if changed {
		if len(existingColumns) > 0 {
			if err := rewriteWithColumns(w.guard, path, canonicalColumns); err != nil {
				return xerrors.New(err).Category(xerrors.CategoryCsvHeaderConflict).Context("set_id", setID).Context("file", filename).Build()
			}
		} else {
			header := append([]string{"counter", "date", "time", "note", "total", "avg"}, canonicalColumns...)
			if err := writeHeader(w.guard, path, header); err != nil {
				return err
			}
		}
	}

	row := []string{
		strconv.Itoa(counter),
		recordingStart.Format("2006-01-02"),
		recordingStart.Format("15:04"),
		sanitizeField(note),
		strconv.Itoa(total),
		strconv.Itoa(avg),
	}
	for _, v := range rmsValues {
		row = append(row, strconv.Itoa(v))
	}
	return appendRow(w.guard, path, row)
}

// readSpecColumns returns the spec-id columns following "avg" in an
// existing CSV's header, or nil if the file doesn't exist yet.
func readSpecColumns(guard *pathguard.Guard, path string) ([]string, error) {
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
	r := csv.NewReader(bytes.NewReader(data))
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if err != nil {
		return nil, nil
	}
	for i, col := range header {
		if strings.TrimSpace(col) == "avg" {
			return header[i+1:], nil
		}
	}
	return nil, nil
}

// mergeSpecColumns preserves existing column order and appends any spec
// ids not already present.
func mergeSpecColumns(existing, specIDs []string) (canonical []string, changed bool) {
	canonical = append([]string(nil), existing...)
	present := make(map[string]bool, len(existing))
	for _, c := range existing {
		present[c] = true
	}
	for _, id := range specIDs {
		if !present[id] {
			canonical = append(canonical, id)
			present[id] = true
			changed = true
		}
	}
	return canonical, changed
}

// rewriteWithColumns rereads path's existing rows under their current
// header, then rewrites the file with newColumns as the canonical spec
// columns, backfilling any newly-added or reordered columns with -1. The
// replacement is published via a temp file + atomic rename so no reader
// observes a torn file.
func rewriteWithColumns(guard *pathguard.Guard, path string, newColumns []string) error {
	data, err := guard.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s for rewrite: %w", path, err)
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil || len(records) == 0 {
		return fmt.Errorf("parsing %s for rewrite: %w", path, err)
	}
	header := records[0]
	fixedCols := header[:6] // counter, date, time, note, total, avg

	var buf bytes.Buffer
	buf.WriteString(joinRow(append(append([]string(nil), fixedCols...), newColumns...)) + "\n")

	for _, row := range records[1:] {
		byName := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(row) {
				byName[col] = row[i]
			}
		}
		newRow := make([]string, 0, 6+len(newColumns))
		for _, c := range fixedCols {
			newRow = append(newRow, byName[c])
		}
		for _, c := range newColumns {
			if v, ok := byName[c]; ok {
				newRow = append(newRow, v)
			} else {
				newRow = append(newRow, "-1")
			}
		}
		buf.WriteString(joinRow(newRow) + "\n")
	}

	tmpPath := path + ".tmp"
	if err := guard.WriteFile(tmpPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing rewritten %s: %w", path, err)
	}
	return guard.Rename(tmpPath, path)
}

func writeHeader(guard *pathguard.Guard, path string, header []string) error {
	return guard.WriteFile(path, []byte(joinRow(header)+"\n"), 0o644)
}

func appendRow(guard *pathguard.Guard, path string, row []string) error {
	f, err := guard.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s for append: %w", path, err)
	}
	defer f.Close()

	_, err = f.WriteString(joinRow(row) + "\n")
	return err
}

// joinRow renders a row the way the source's ", ".join(data_parts) does:
// comma-space separated, no quoting. sanitizeField keeps field values free
// of commas/newlines before they ever reach here.
func joinRow(fields []string) string {
	return strings.Join(fields, ", ")
}

func sanitizeField(s string) string {
	return strings.NewReplacer("\n", " ", ",", ";").Replace(s)
}
