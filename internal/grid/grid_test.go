package grid

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/basicfont"

	"github.com/qrmstation/qrmlogger/internal/domain"
	"github.com/qrmstation/qrmlogger/internal/pathguard"
	"github.com/qrmstation/qrmlogger/internal/store"
)

func TestParseHourClampsAndDefaultsOnError(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 9, parseHour("09:30"))
	assert.Equal(t, 0, parseHour("garbage"))
	assert.Equal(t, 23, parseHour("99:00"))
}

func TestUniformColumnWidths(t *testing.T) {
	t.Parallel()
	widths := uniformColumnWidths(3)
	assert.Equal(t, []int{tileSize, tileSize, tileSize}, widths)
}

func TestTruncateToWidthShrinksUntilItFits(t *testing.T) {
	t.Parallel()
	truncated := truncateToWidth("a very long note that will not fit", basicfont.Face7x13, 40)
	assert.LessOrEqual(t, len(truncated), len("a very long note that will not fit"))
}

func writeSolidPNG(t *testing.T, guard *pathguard.Guard, path string, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := guard.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestBuildDailyGridRendersFullAndResizedMosaics(t *testing.T) {
	t.Parallel()

	guard, err := pathguard.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = guard.Close() })

	require.NoError(t, guard.MkdirAll(store.PlotsDir("setA", "2026-07-30", true), 0o755))
	writeSolidPNG(t, guard, store.PlotsDir("setA", "2026-07-30", true)+"/run1.png", color.RGBA{R: 255, A: 255})
	writeSolidPNG(t, guard, store.PlotsDir("setA", "2026-07-30", true)+"/run2.png", color.RGBA{G: 255, A: 255})

	writer := store.NewMetadataWriter(guard)
	run1 := &domain.CaptureRun{CaptureSetID: "setA", DateString: "2026-07-30", Counter: 1, Position: 0, ID: "run1", BatchTime: time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)}
	run2 := &domain.CaptureRun{CaptureSetID: "setA", DateString: "2026-07-30", Counter: 2, Position: 0, ID: "run1", BatchTime: time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)}
	require.NoError(t, writer.Save(run1, "waterfall", "", "run1.png"))
	require.NoError(t, writer.Save(run2, "waterfall", "note1", "run2.png"))

	err = BuildDailyGrid(guard, "setA", "2026-07-30", "waterfall", 12, 0, true)
	require.NoError(t, err)

	entries, err := guard.ReadDir(store.GridsDir("setA", false))
	require.NoError(t, err)
	assert.NotEmpty(t, entries)

	resizedEntries, err := guard.ReadDir(store.GridsDir("setA", true))
	require.NoError(t, err)
	assert.NotEmpty(t, resizedEntries)
}

func TestBuildDailyGridNoopWhenNoMetadata(t *testing.T) {
	t.Parallel()
	guard, err := pathguard.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = guard.Close() })

	err = BuildDailyGrid(guard, "setA", "2026-07-30", "waterfall", 12, 0, true)
	require.NoError(t, err)
}
