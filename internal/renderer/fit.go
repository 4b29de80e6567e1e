package renderer

import "math"

const (
	// DefaultFontSize is the font size in pixels used when none is configured.
	DefaultFontSize = 14
	// DefaultLineHeight is the line height multiplier.
	DefaultLineHeight = 1.2

	cellWidthRatio = 0.6

	minCols = 2
	minRows = 1
)

// FontMetrics describe the glyph cell used to turn pixel sizes into a grid.
type FontMetrics struct {
	Family     string
	Size       int
	LineHeight float64
}

func (m FontMetrics) cell() (w, h float64) {
	size := m.Size
	if size <= 0 {
		size = DefaultFontSize
	}

	lh := m.LineHeight
	if lh <= 0 {
		lh = DefaultLineHeight
	}

	return float64(size) * cellWidthRatio, float64(size) * lh
}

// Fit computes the grid that best fills m. Mounts reporting cells are used as
// is; pixel-only mounts are divided by the font cell. ok is false when the
// container is hidden.
func Fit(m Mount, metrics FontMetrics) (cols, rows int, ok bool) {
	if cols, rows, ok = m.Size(); ok && cols > 0 && rows > 0 {
		cols, rows = clampGrid(cols, rows)

		return cols, rows, true
	}

	ps, isPixel := m.(PixelSizer)
	if !isPixel {
		return 0, 0, false
	}

	w, h, ok := ps.PixelSize()
	if !ok || w <= 0 || h <= 0 {
		return 0, 0, false
	}

	cw, ch := metrics.cell()
	cols, rows = clampGrid(cells(w, cw), cells(h, ch))

	return cols, rows, true
}

// cells tolerates float error so 840px / 8.4px yields 100, not 99.
func cells(px int, cell float64) int {
	return int(math.Floor(float64(px)/cell + 1e-9))
}

func clampGrid(cols, rows int) (int, int) {
	return max(cols, minCols), max(rows, minRows)
}
