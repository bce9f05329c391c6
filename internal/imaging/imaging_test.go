package imaging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrmstation/qrmlogger/internal/domain"
	"github.com/qrmstation/qrmlogger/internal/pathguard"
)

func TestDecimationFactorSkipsSmallData(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 1, DecimationFactor(150, 1600))
	assert.Equal(t, 1, DecimationFactor(1600, 1600))
}

func TestDecimationFactorPicksSmallestAllowed(t *testing.T) {
	t.Parallel()
	// 4000 cols needing ~2 columns-per-pixel ratio down to 1600 -> need factor ceil(4000/1600)=3.
	assert.Equal(t, 3, DecimationFactor(4000, 1600))
	// 20000 cols -> need ceil(20000/1600)=13 -> smallest allowed >=13 is 16.
	assert.Equal(t, 16, DecimationFactor(20000, 1600))
}

func TestDecimateMeanAndMax(t *testing.T) {
	t.Parallel()

	data := [][]float64{
		{0, 2, 4, 6},
		{10, 10, 10, 10},
	}
	mean := Decimate(data, 2, "mean")
	require.Len(t, mean, 2)
	assert.Equal(t, []float64{1, 5}, mean[0])
	assert.Equal(t, []float64{10, 10}, mean[1])

	max := Decimate(data, 2, "max")
	assert.Equal(t, []float64{2, 6}, max[0])

	sample := Decimate(data, 2, "sample")
	assert.Equal(t, []float64{0, 4}, sample[0])
}

func TestDecimateFactorOneIsNoop(t *testing.T) {
	t.Parallel()
	data := [][]float64{{1, 2, 3}}
	assert.Equal(t, data, Decimate(data, 1, "mean"))
}

func TestTickIntervalKHzPicksNiceStep(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 10.0, TickIntervalKHz(200)) // 200/20 = 10, exact match
	assert.Equal(t, 1.0, TickIntervalKHz(10))   // small span clamps toward the smallest step
}

func TestFreqTickerGeneratesBinPositions(t *testing.T) {
	t.Parallel()

	ticker := freqTicker{startFreqKHz: 0, stopFreqKHz: 100, freqPerBin: 1}
	ticks := ticker.Ticks(0, 100)
	require.NotEmpty(t, ticks)
	assert.Equal(t, "0", ticks[0].Label)
}

func TestJetPaletteProducesDistinctEndpoints(t *testing.T) {
	t.Parallel()

	pal := newJetPalette(256)
	colors := pal.Colors()
	require.Len(t, colors, 256)
	assert.NotEqual(t, colors[0], colors[255])
}

func TestGenerateWaterfallPNGAndThumbnail(t *testing.T) {
	t.Parallel()

	guard, err := pathguard.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = guard.Close() })

	data := make([][]int32, 10)
	for i := range data {
		row := make([]int32, 300)
		for j := range row {
			row[j] = int32(-90 + (j % 20))
		}
		data[i] = row
	}

	spec := domain.CaptureSpec{ID: "run1", CenterKHz: 14200}
	run := domain.NewCaptureRun(spec, "setA", "2026-07-30", 300, 10000, time.Now(), 1, 14200000, 100000)

	err = GenerateWaterfallPNG(guard, run, data, -90, -40, "plots/run1_waterfall.png")
	require.NoError(t, err)

	exists, err := guard.Exists("plots/run1_waterfall.png")
	require.NoError(t, err)
	assert.True(t, exists)

	err = Thumbnail(guard, "plots/run1_waterfall.png", "plots/run1_waterfall_thumb.png", 256, 256)
	require.NoError(t, err)

	exists, err = guard.Exists("plots/run1_waterfall_thumb.png")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestGenerateAverageSpectrumPNG(t *testing.T) {
	t.Parallel()

	guard, err := pathguard.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = guard.Close() })

	avgWf := make([]float64, 300)
	for i := range avgWf {
		avgWf[i] = -80 + float64(i%10)
	}

	spec := domain.CaptureSpec{ID: "run1", CenterKHz: 14200}
	run := domain.NewCaptureRun(spec, "setA", "2026-07-30", 300, 10000, time.Now(), 1, 14200000, 100000)

	minDB, maxDB := -90.0, -40.0
	err = GenerateAverageSpectrumPNG(guard, run, avgWf, &minDB, &maxDB, "plots/run1_avg.png")
	require.NoError(t, err)

	exists, err := guard.Exists("plots/run1_avg.png")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestGenerateWaterfallPNGRejectsEmptyData(t *testing.T) {
	t.Parallel()

	guard, err := pathguard.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = guard.Close() })

	spec := domain.CaptureSpec{ID: "run1", CenterKHz: 14200}
	run := domain.NewCaptureRun(spec, "setA", "2026-07-30", 300, 10000, time.Now(), 1, 14200000, 100000)

	err = GenerateWaterfallPNG(guard, run, nil, -90, -40, "plots/empty.png")
	assert.Error(t, err)
}
