package store

import (
	"fmt"

	"github.com/qrmstation/qrmlogger/internal/domain"
)

// PlotsDir returns the directory holding a capture set's full-resolution
// or thumbnail plot PNGs for dateString, following the same flat,
// capture-set-rooted layout as the CSV stores.
func PlotsDir(setID, dateString string, resized bool) string {
	if resized {
		return fmt.Sprintf("%s/plots/%s/resized", setID, dateString)
	}
	return fmt.Sprintf("%s/plots/%s/full", setID, dateString)
}

// RawDir returns the directory holding a capture set's raw spectrogram
// files for dateString.
func RawDir(setID, dateString string) string {
	return fmt.Sprintf("%s/raw/%s", setID, dateString)
}

// GridsDir returns the directory holding a capture set's full-resolution
// or thumbnail grid mosaics.
func GridsDir(setID string, resized bool) string {
	if resized {
		return fmt.Sprintf("%s/grids/resized", setID)
	}
	return fmt.Sprintf("%s/grids/full", setID)
}

// PlotFilename names one run's plot PNG: "<prefix>-<pos>-<id>-<counter>
// [<HH.MM>].png", matching the token order the metadata CSV and grid
// builder both key on.
func PlotFilename(run *domain.CaptureRun, prefix string) string {
	return fmt.Sprintf("%s-%02d-%s-%04d [%s].png", prefix, run.Position, run.ID, run.Counter, run.BatchTime.Format("15.04"))
}
