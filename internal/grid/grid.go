// Package grid composes a capture set's saved plots into time-series
// mosaics: a daily grid windowed into fixed-width time buckets, and a
// cross-day time-slice grid anchored at fixed hours of day.
package grid

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/fixed"

	"github.com/qrmstation/qrmlogger/internal/imaging"
	"github.com/qrmstation/qrmlogger/internal/pathguard"
	"github.com/qrmstation/qrmlogger/internal/store"
)

// sparseColumnThreshold is the data-column count at or below which the time
// column gets extra width (0.6x a data tile) since there's room to spare.
const sparseColumnThreshold = 5

// tileSize is the placeholder and fallback tile edge length; real plot
// tiles are scaled to fit it.
const tileSize = 512

var (
	colorGrey  = color.RGBA{R: 128, G: 128, B: 128, A: 255}
	colorBlack = color.RGBA{A: 255}
)

type imageEntry struct {
	filename string
	row      store.PlotMetaRow
}

type countGroup struct {
	countInt int
	entries  []imageEntry
}

func parseHour(timeString string) int {
	parts := strings.SplitN(timeString, ":", 2)
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0
	}
	if h < 0 {
		return 0
	}
	if h > 23 {
		return 23
	}
	return h
}

// BuildDailyGrid groups plotType's saved plots by recording and windows
// them into the most recent windowHours-wide bucket of the day, then
// renders a time x spec-id mosaic. sortLatestFirst controls row order;
// maxRows>0 keeps only the maxRows most recent recordings, and maxRows<=0
// means unlimited.
func BuildDailyGrid(guard *pathguard.Guard, setID, dateString, plotType string, windowHours, maxRows int, sortLatestFirst bool) error {
	metadata, err := store.LoadPlotMetadata(guard, setID, dateString, plotType)
	if err != nil {
		return err
	}
	if len(metadata) == 0 {
		return nil
	}

	groupsByCount := make(map[string]*countGroup)
	for filename, row := range metadata {
		g, ok := groupsByCount[row.Count]
		if !ok {
			countInt, _ := strconv.Atoi(row.Count)
			g = &countGroup{countInt: countInt}
			groupsByCount[row.Count] = g
		}
		g.entries = append(g.entries, imageEntry{filename: filename, row: row})
	}

	groups := make([]*countGroup, 0, len(groupsByCount))
	for _, g := range groupsByCount {
		groups = append(groups, g)
	}
	// Newest first, so the row cap and the bucket choice see the most
	// recent recording first; ascending order is applied afterwards.
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].countInt > groups[j].countInt
	})
	if maxRows > 0 && len(groups) > maxRows {
		groups = groups[:maxRows]
	}
	if len(groups) == 0 {
		return nil
	}
	latestHour := parseHour(groups[0].entries[0].row.TimeString)
	if !sortLatestFirst {
		sort.Slice(groups, func(i, j int) bool {
			return groups[i].countInt < groups[j].countInt
		})
	}

	if windowHours <= 0 {
		windowHours = 12
	}
	startH := (latestHour / windowHours) * windowHours
	endH := startH + windowHours
	if endH > 24 {
		endH = 24
	}
	label := fmt.Sprintf("%02d-%02d", startH, endH)

	var windowed []*countGroup
	for _, g := range groups {
		hh := parseHour(g.entries[0].row.TimeString)
		if hh >= startH && hh < endH {
			windowed = append(windowed, g)
		}
	}
	if len(windowed) == 0 {
		return nil
	}

	var columnLabels []string
	seen := make(map[string]bool)
	for _, g := range windowed {
		for _, e := range g.entries {
			if !seen[e.row.CaptureID] {
				columnLabels = append(columnLabels, e.row.CaptureID)
				seen[e.row.CaptureID] = true
			}
		}
	}

	type tile struct {
		kind     string // "image", "blank", "time"
		filename string
		timeText string
		noteText string
	}

	rows := make([][]tile, 0, len(windowed))
	for _, g := range windowed {
		available := make(map[string]string, len(g.entries))
		for _, e := range g.entries {
			available[e.row.CaptureID] = e.filename
		}
		note := ""
		if len(g.entries) > 0 {
			note = g.entries[0].row.Note
		}
		tiles := []tile{{kind: "time", timeText: g.entries[0].row.TimeString, noteText: note}}
		for _, col := range columnLabels {
			if fn, ok := available[col]; ok {
				tiles = append(tiles, tile{kind: "image", filename: fn})
			} else {
				tiles = append(tiles, tile{kind: "blank"})
			}
		}
		rows = append(rows, tiles)
	}

	colWidths := uniformColumnWidths(len(columnLabels) + 1)
	if len(columnLabels) <= sparseColumnThreshold {
		colWidths[0] = int(float64(tileSize) * 0.6)
	}

	totalWidth := 0
	for _, w := range colWidths {
		totalWidth += w
	}
	rowCount := len(rows) + 1
	canvas := image.NewRGBA(image.Rect(0, 0, totalWidth, rowCount*tileSize))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(colorBlack), image.Point{}, draw.Src)

	colX := make([]int, len(colWidths))
	x := 0
	for i, w := range colWidths {
		colX[i] = x
		x += w
	}

	// Header row.
	pasteTile(canvas, renderTextTile(colWidths[0], tileSize, dateString, ""), colX[0], 0)
	for i, label := range columnLabels {
		pasteTile(canvas, renderTextTile(colWidths[i+1], tileSize, label, ""), colX[i+1], 0)
	}

	// Body rows.
	for r, tiles := range rows {
		y := (r + 1) * tileSize
		for c, t := range tiles {
			var img image.Image
			switch t.kind {
			case "time":
				img = renderTextTile(colWidths[c], tileSize, t.timeText, t.noteText)
			case "blank":
				img = renderTextTile(colWidths[c], tileSize, "Not Recorded", "")
			default:
				loaded, err := loadPlotTile(guard, store.PlotsDir(setID, dateString, true)+"/"+t.filename)
				if err != nil {
					img = renderTextTile(colWidths[c], tileSize, "Missing Image", "")
				} else {
					img = loaded
				}
			}
			pasteTile(canvas, img, colX[c], y)
		}
	}

	fullPath := fmt.Sprintf("%s/%s_%s_grid_%s_[%s]_full.png", store.GridsDir(setID, false), setID, plotType, dateString, label)
	if err := savePNG(guard, canvas, fullPath); err != nil {
		return err
	}

	resizeTarget := 2048
	if rowCount >= 50 {
		resizeTarget = 4096
	}
	resizedPath := fmt.Sprintf("%s/%s_%s_grid_%s_[%s]_resized.png", store.GridsDir(setID, true), setID, plotType, dateString, label)
	return imaging.Thumbnail(guard, fullPath, resizedPath, resizeTarget, resizeTarget)
}

func uniformColumnWidths(n int) []int {
	widths := make([]int, n)
	for i := range widths {
		widths[i] = tileSize
	}
	return widths
}

func loadPlotTile(guard *pathguard.Guard, relPath string) (image.Image, error) {
	f, err := guard.Open(relPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, err
	}
	scaled := image.NewRGBA(image.Rect(0, 0, tileSize, tileSize))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), img, img.Bounds(), xdraw.Over, nil)
	return scaled, nil
}

// pasteTile copies src onto dst at (x,y). Callers are responsible for
// pre-scaling src to its target column width via loadPlotTile/renderTextTile.
func pasteTile(dst draw.Image, src image.Image, x, y int) {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	draw.Draw(dst, image.Rect(x, y, x+w, y+h), src, image.Point{}, draw.Src)
}

// renderTextTile draws a grey placeholder tile with up to two lines of
// centered black text (a header label, or a time+note body tile).
func renderTextTile(w, h int, line1, line2 string) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(colorGrey), image.Point{}, draw.Src)

	face := basicfont.Face7x13
	drawCenteredText(img, face, line1, w, h/2-10)
	if line2 != "" {
		drawCenteredText(img, face, truncateToWidth(line2, face, w-20), w, h/2+10)
	}
	return img
}

func drawCenteredText(img draw.Image, face font.Face, text string, width, y int) {
	if text == "" {
		return
	}
	textWidth := font.MeasureString(face, text).Ceil()
	x := (width - textWidth) / 2
	if x < 0 {
		x = 0
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(colorBlack),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

func truncateToWidth(text string, face font.Face, maxWidth int) string {
	for len(text) > 0 && font.MeasureString(face, text).Ceil() > maxWidth {
		text = text[:len(text)-1]
	}
	return text
}

func savePNG(guard *pathguard.Guard, img image.Image, relPath string) error {
	dir := relPath
	if i := strings.LastIndexByte(relPath, '/'); i >= 0 {
		dir = relPath[:i]
		if err := guard.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating grid directory: %w", err)
		}
	}

	tmp := relPath + ".tmp"
	f, err := guard.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("opening grid file: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encoding grid PNG: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing grid file: %w", err)
	}
	return guard.Rename(tmp, relPath)
}

// defaultAnchorHours are the times of day a time-slice grid is built at
// when no operator-configured timeslice_hours are supplied, so a dashboard
// can still show "this morning vs yesterday morning" comparisons.
var defaultAnchorHours = []int{6, 12, 18}

// BuildTimeSliceGrids rebuilds the cross-day time-slice grid for every
// anchor hour (from anchorHours, or defaultAnchorHours if empty) that has
// elapsed in the current day, skipping any whose output was already
// written during the current clock hour.
func BuildTimeSliceGrids(guard *pathguard.Guard, setID, plotType string, now time.Time, days int, anchorHours []int) error {
	if len(anchorHours) == 0 {
		anchorHours = defaultAnchorHours
	}
	for _, hour := range anchorHours {
		if now.Hour() < hour {
			continue
		}
		if err := buildTimeSliceGrid(guard, setID, plotType, hour, now, days); err != nil {
			return err
		}
	}
	return nil
}

func timeSliceGridName(setID, plotType string, hour int, resized bool) string {
	kind := "full"
	if resized {
		kind = "resized"
	}
	return fmt.Sprintf("%s_%s_timeslice_H%02d_%s.png", setID, plotType, hour, kind)
}

func buildTimeSliceGrid(guard *pathguard.Guard, setID, plotType string, hour int, now time.Time, days int) error {
	fullPath := fmt.Sprintf("%s/%s", store.GridsDir(setID, false), timeSliceGridName(setID, plotType, hour, false))

	if info, err := guard.Stat(fullPath); err == nil {
		mod := info.ModTime().In(now.Location())
		if mod.Year() == now.Year() && mod.YearDay() == now.YearDay() && mod.Hour() == now.Hour() {
			return nil
		}
	}

	var rowTiles [][2]image.Image // [time-label tile, plot tile]
	for d := 0; d < days; d++ {
		day := now.AddDate(0, 0, -d)
		dateString := day.Format("2006-01-02")
		metadata, err := store.LoadPlotMetadata(guard, setID, dateString, plotType)
		if err != nil {
			return err
		}

		var best *imageEntry
		for filename, row := range metadata {
			if parseHour(row.TimeString) != hour {
				continue
			}
			if best == nil || row.TimeString < best.row.TimeString ||
				(row.TimeString == best.row.TimeString && filename < best.filename) {
				e := imageEntry{filename: filename, row: row}
				best = &e
			}
		}
		if best == nil {
			continue
		}

		labelTile := renderTextTile(tileSize, tileSize, dateString, best.row.TimeString)
		plotTile, err := loadPlotTile(guard, store.PlotsDir(setID, dateString, true)+"/"+best.filename)
		if err != nil {
			plotTile = renderTextTile(tileSize, tileSize, "Missing Image", "")
		}
		rowTiles = append(rowTiles, [2]image.Image{labelTile, plotTile})
	}

	if len(rowTiles) == 0 {
		return nil
	}

	canvas := image.NewRGBA(image.Rect(0, 0, 2*tileSize, len(rowTiles)*tileSize))
	for i, pair := range rowTiles {
		y := i * tileSize
		pasteTile(canvas, pair[0], 0, y)
		pasteTile(canvas, pair[1], tileSize, y)
	}

	if err := savePNG(guard, canvas, fullPath); err != nil {
		return err
	}

	resizedPath := fmt.Sprintf("%s/%s", store.GridsDir(setID, true), timeSliceGridName(setID, plotType, hour, true))
	return imaging.Thumbnail(guard, fullPath, resizedPath, 2048, 2048)
}
