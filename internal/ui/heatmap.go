package ui

import (
	"strings"
)

// DefaultHeatmapWidth is the column cap used when none is given.
const DefaultHeatmapWidth = 50

// Heatmap is a row-major probability matrix with the class of every cell.
type Heatmap struct {
	Rows          int
	Cols          int
	Probabilities []float64
	Classes       []string
}

// heatGlyphs maps class names to the glyph drawn for them.
var heatGlyphs = map[string]string{
	"CRITICAL":   "█",
	"HIGH":       "▓",
	"MODERATE":   "▒",
	"LOW":        "░",
	"BACKGROUND": "·",
}

// RenderHeatmap draws the matrix with one glyph per cell, colored by class.
// Grids wider than maxWidth are reduced in square blocks, each block showing
// its strongest cell.
func RenderHeatmap(h Heatmap, maxWidth int) string {
	if h.Rows <= 0 || h.Cols <= 0 || len(h.Probabilities) < h.Rows*h.Cols {
		return Muted.Render("(empty grid)")
	}
	if maxWidth <= 0 {
		maxWidth = DefaultHeatmapWidth
	}
	block := (h.Cols + maxWidth - 1) / maxWidth

	var sb strings.Builder
	for i := 0; i < h.Rows; i += block {
		if i > 0 {
			sb.WriteString("\n")
		}
		for j := 0; j < h.Cols; j += block {
			idx := h.strongest(i, j, block)
			class := "BACKGROUND"
			if idx < len(h.Classes) {
				class = h.Classes[idx]
			}
			glyph, ok := heatGlyphs[class]
			if !ok {
				glyph = "?"
			}
			sb.WriteString(ClassStyle(class).Render(glyph))
		}
	}
	return sb.String()
}

// strongest returns the row-major index of the highest probability in the
// block starting at (row, col). Ties keep the first cell.
func (h Heatmap) strongest(row, col, block int) int {
	best := row*h.Cols + col
	for i := row; i < row+block && i < h.Rows; i++ {
		for j := col; j < col+block && j < h.Cols; j++ {
			idx := i*h.Cols + j
			if h.Probabilities[idx] > h.Probabilities[best] {
				best = idx
			}
		}
	}
	return best
}

// HeatmapLegend renders the glyph key.
func HeatmapLegend() string {
	order := []string{"CRITICAL", "HIGH", "MODERATE", "LOW", "BACKGROUND"}
	parts := make([]string, 0, len(order))
	for _, c := range order {
		parts = append(parts, ClassStyle(c).Render(heatGlyphs[c])+" "+Dim.Render(strings.ToLower(c)))
	}
	return strings.Join(parts, "  ")
}
