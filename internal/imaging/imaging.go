// Package imaging renders a capture run's spectrogram as a waterfall
// heatmap and a time-averaged line plot, with display-width decimation,
// frequency-axis tick generation, and PNG thumbnailing.
package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	xdraw "golang.org/x/image/draw"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/qrmstation/qrmlogger/internal/domain"
	"github.com/qrmstation/qrmlogger/internal/pathguard"
)

// allowedDecimationFactors are the only block sizes the decimator may pick,
// matching the source's fixed candidate list.
var allowedDecimationFactors = []int{1, 2, 3, 4, 6, 8, 12, 16}

// DecimationFactor picks the smallest allowed factor that brings cols down
// to roughly targetPixels. No decimation below 200 columns or when the
// data already fits the target.
func DecimationFactor(cols, targetPixels int) int {
	if targetPixels < 1 {
		targetPixels = 1
	}
	if cols <= targetPixels || cols < 200 {
		return 1
	}
	need := int(math.Ceil(float64(cols) / float64(targetPixels)))
	for _, f := range allowedDecimationFactors {
		if f >= need {
			return f
		}
	}
	return allowedDecimationFactors[len(allowedDecimationFactors)-1]
}

// Decimate reduces data's column count by factor using mean, max
// (peak-preserving), or sample (stride) combining. factor<=1 returns data
// unchanged. For mean and max, any trailing columns that don't fill a
// whole block are dropped; sample keeps every factor-th column, so a
// trailing partial block still contributes its first column.
func Decimate(data [][]float64, factor int, method string) [][]float64 {
	if factor <= 1 || len(data) == 0 {
		return data
	}

	if method == "sample" {
		out := make([][]float64, len(data))
		for i, row := range data {
			var nr []float64
			for j := 0; j < len(row); j += factor {
				nr = append(nr, row[j])
			}
			out[i] = nr
		}
		return out
	}

	outCols := len(data[0]) / factor
	out := make([][]float64, len(data))
	for i, row := range data {
		nr := make([]float64, outCols)
		for c := 0; c < outCols; c++ {
			switch method {
			case "max":
				m := row[c*factor]
				for k := 1; k < factor; k++ {
					if v := row[c*factor+k]; v > m {
						m = v
					}
				}
				nr[c] = m
			default: // "mean"
				sum := 0.0
				for k := 0; k < factor; k++ {
					sum += row[c*factor+k]
				}
				nr[c] = sum / float64(factor)
			}
		}
		out[i] = nr
	}
	return out
}

// niceKHzSteps are the tick-interval candidates the axis search picks from.
var niceKHzSteps = []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}

// TickIntervalKHz finds the nice step closest to spanKHz/20, targeting
// roughly 20 ticks across the window.
func TickIntervalKHz(spanKHz float64) float64 {
	raw := math.Max(spanKHz/20, 1)
	best := niceKHzSteps[0]
	bestDiff := math.Abs(best - raw)
	for _, s := range niceKHzSteps[1:] {
		if d := math.Abs(s - raw); d < bestDiff {
			bestDiff, best = d, s
		}
	}
	return best
}

// freqTicker maps frequency-axis ticks (nice kHz multiples) to bin
// positions in a plot whose X domain is [0, cols).
type freqTicker struct {
	startFreqKHz float64
	stopFreqKHz  float64
	freqPerBin   float64
}

func (t freqTicker) Ticks(min, max float64) []plot.Tick {
	step := TickIntervalKHz(t.stopFreqKHz - t.startFreqKHz)
	first := math.Ceil(t.startFreqKHz/step) * step

	var ticks []plot.Tick
	for freq := first; freq <= t.stopFreqKHz+1e-9; freq += step {
		bin := (freq - t.startFreqKHz) / t.freqPerBin
		ticks = append(ticks, plot.Tick{Value: bin, Label: fmt.Sprintf("%d", int(math.Round(freq)))})
	}
	return ticks
}

// jetPalette is a 256-step approximation of MATLAB's jet colormap, the
// waterfall's color scheme.
type jetPalette struct{ colors []color.Color }

func newJetPalette(n int) jetPalette {
	colors := make([]color.Color, n)
	for i := range colors {
		t := float64(i) / float64(n-1)
		colors[i] = jetColor(t)
	}
	return jetPalette{colors: colors}
}

func (p jetPalette) Colors() []color.Color { return p.colors }

func jetColor(t float64) color.Color {
	r := clamp01(1.5 - math.Abs(4*t-3))
	g := clamp01(1.5 - math.Abs(4*t-2))
	b := clamp01(1.5 - math.Abs(4*t-1))
	return color.RGBA{R: uint8(r * 255), G: uint8(g * 255), B: uint8(b * 255), A: 255}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// waterfallGrid adapts a decimated dB matrix to plotter.GridXYZ.
type waterfallGrid struct {
	data [][]float64
}

func (g waterfallGrid) Dims() (c, r int) { return len(g.data[0]), len(g.data) }
func (g waterfallGrid) Z(c, r int) float64 { return g.data[r][c] }
func (g waterfallGrid) X(c int) float64    { return float64(c) }
func (g waterfallGrid) Y(r int) float64    { return float64(r) }

// targetPixelWidth approximates the rendered figure width the source
// queries from matplotlib (20in figure at 80dpi).
const targetPixelWidth = 1600

// toFloat converts a cropped int32 dB matrix to float64 for plotting.
func toFloat(data [][]int32) [][]float64 {
	out := make([][]float64, len(data))
	for i, row := range data {
		fr := make([]float64, len(row))
		for j, v := range row {
			fr[j] = float64(v)
		}
		out[i] = fr
	}
	return out
}

// GenerateWaterfallPNG renders a 2-D heatmap (time on Y, frequency bin on
// X) of data clamped to [minDB,maxDB], writing a PNG at relPath under
// guard.
func GenerateWaterfallPNG(guard *pathguard.Guard, run *domain.CaptureRun, data [][]int32, minDB, maxDB float64, relPath string) error {
	if len(data) == 0 || len(data[0]) == 0 {
		return fmt.Errorf("cannot render an empty spectrogram")
	}

	centerKHz := float64(run.FreqEffectiveHz) / 1000
	spanKHz := float64(run.SpanEffectiveHz) / 1000
	startFreq := centerKHz - spanKHz/2
	stopFreq := centerKHz + spanKHz/2

	factor := DecimationFactor(len(data[0]), targetPixelWidth)
	decimated := Decimate(toFloat(data), factor, "mean")

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s  span=%d kHz", run.ID, int(math.Round(spanKHz)))
	p.BackgroundColor = color.Black

	freqPerBin := spanKHz / float64(len(decimated[0]))
	p.X.Tick.Marker = freqTicker{startFreqKHz: startFreq, stopFreqKHz: stopFreq, freqPerBin: freqPerBin}

	heatmap := plotter.NewHeatMap(waterfallGrid{data: decimated}, newJetPalette(256))
	heatmap.Min, heatmap.Max = minDB, maxDB
	p.Add(heatmap)

	return savePNG(guard, p, relPath, 20*vg.Inch, 8*vg.Inch)
}

// GenerateAverageSpectrumPNG renders the time-averaged 1-D spectrum as a
// line plot, y-ranging [minDB-10, maxDB+10] (or the data's own min/max if
// no bounds were supplied).
func GenerateAverageSpectrumPNG(guard *pathguard.Guard, run *domain.CaptureRun, avgWf []float64, minDB, maxDB *float64, relPath string) error {
	if len(avgWf) == 0 {
		return fmt.Errorf("cannot render an empty average spectrum")
	}

	centerKHz := float64(run.FreqEffectiveHz) / 1000
	spanKHz := float64(run.SpanEffectiveHz) / 1000
	startFreq := centerKHz - spanKHz/2
	stopFreq := centerKHz + spanKHz/2

	yMinBase, yMaxBase := minOf(avgWf), maxOf(avgWf)
	if minDB != nil {
		yMinBase = *minDB
	}
	if maxDB != nil {
		yMaxBase = *maxDB
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s  span=%d kHz", run.ID, int(math.Round(spanKHz)))
	p.BackgroundColor = color.RGBA{R: 0, G: 0, B: 139, A: 255} // darkblue

	freqPerBin := spanKHz / float64(len(avgWf))
	p.X.Tick.Marker = freqTicker{startFreqKHz: startFreq, stopFreqKHz: stopFreq, freqPerBin: freqPerBin}
	p.Y.Min, p.Y.Max = yMinBase-10, yMaxBase+10

	pts := make(plotter.XYs, len(avgWf))
	for i, v := range avgWf {
		pts[i].X = float64(i)
		pts[i].Y = v
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("building average-spectrum line: %w", err)
	}
	line.Color = color.RGBA{R: 255, G: 255, B: 0, A: 255} // yellow
	p.Add(line)

	return savePNG(guard, p, relPath, 20*vg.Inch, 8*vg.Inch)
}

func savePNG(guard *pathguard.Guard, p *plot.Plot, relPath string, w, h vg.Length) error {
	dir := direcOf(relPath)
	if dir != "" {
		if err := guard.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating plot directory: %w", err)
		}
	}

	tmpPath := relPath + ".tmp"
	f, err := guard.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("opening plot file: %w", err)
	}

	writer, err := p.WriterTo(w, h, "png")
	if err != nil {
		f.Close()
		return fmt.Errorf("building PNG encoder: %w", err)
	}
	if _, err := writer.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("encoding plot PNG: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing plot file: %w", err)
	}

	return guard.Rename(tmpPath, relPath)
}

// Thumbnail reads the PNG at srcRelPath, scales it to fit within
// maxW x maxH (preserving aspect ratio) using a Catmull-Rom resampler, and
// writes the result at dstRelPath.
func Thumbnail(guard *pathguard.Guard, srcRelPath, dstRelPath string, maxW, maxH int) error {
	f, err := guard.Open(srcRelPath)
	if err != nil {
		return fmt.Errorf("opening source plot: %w", err)
	}
	src, err := png.Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("decoding source plot: %w", err)
	}

	bounds := src.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	scale := math.Min(float64(maxW)/float64(srcW), float64(maxH)/float64(srcH))
	if scale > 1 {
		scale = 1
	}
	dstW, dstH := int(float64(srcW)*scale), int(float64(srcH)*scale)
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)

	dir := direcOf(dstRelPath)
	if dir != "" {
		if err := guard.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating thumbnail directory: %w", err)
		}
	}
	out, err := guard.OpenFile(dstRelPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("opening thumbnail file: %w", err)
	}
	defer out.Close()

	return png.Encode(out, dst)
}

func minOf(xs []float64) float64 {
	m := xs[0]
	for _, v := range xs[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, v := range xs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func direcOf(relPath string) string {
	for i := len(relPath) - 1; i >= 0; i-- {
		if relPath[i] == '/' {
			return relPath[:i]
		}
	}
	return ""
}
