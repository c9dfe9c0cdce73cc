package sensor

import (
	"errors"
	"fmt"
	"math"

	"github.com/idlab-discover/anomalyfusion-cli/internal/geo"
)

// ErrInvalidGridDimensions is returned when a requested grid resolution is
// zero or negative, or when a layer's shape does not match the batch.
var ErrInvalidGridDimensions = errors.New("invalid grid dimensions")

// Request describes one fusion run: where to look and at which resolution.
type Request struct {
	Center       geo.Coordinate
	RadiusMeters float64
	Rows         int
	Cols         int

	// Seed only matters for synthetic acquisition.
	Seed uint64

	// Modalities restricts acquisition. Empty means all.
	Modalities []Modality
}

// Validate checks the request before any acquisition happens.
func (r Request) Validate() error {
	if r.Rows <= 0 || r.Cols <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidGridDimensions, r.Rows, r.Cols)
	}
	if err := r.Center.Validate(); err != nil {
		return fmt.Errorf("center: %w", err)
	}
	if math.IsNaN(r.RadiusMeters) || r.RadiusMeters <= 0 {
		return fmt.Errorf("radius must be positive, got %v", r.RadiusMeters)
	}
	for _, m := range r.Modalities {
		if !m.Valid() {
			return fmt.Errorf("unknown modality %q", m)
		}
	}
	return nil
}

// Wants reports whether modality m is part of the request.
func (r Request) Wants(m Modality) bool {
	if len(r.Modalities) == 0 {
		return true
	}
	for _, v := range r.Modalities {
		if v == m {
			return true
		}
	}
	return false
}

// Layer holds one modality's raw measurements aligned to the grid.
// Values are row-major; NaN marks a cell without a usable sample.
// A layer is immutable once handed to the fusion engine.
type Layer struct {
	Modality Modality
	Values   [][]float64

	// Baseline, when set, overrides the configured background value for
	// this acquisition (e.g. a measured ambient temperature).
	Baseline *float64

	Source string

	Unavailable bool
	Reason      string
}

// UnavailableLayer returns the explicit marker for a modality that has no
// samples in this run.
func UnavailableLayer(m Modality, reason string) *Layer {
	return &Layer{Modality: m, Unavailable: true, Reason: reason}
}

// Available reports whether the layer carries any samples.
func (l *Layer) Available() bool {
	return l != nil && !l.Unavailable && len(l.Values) > 0
}

// At returns the raw sample at (row, col). ok is false for missing cells,
// non-finite values and out-of-range indices.
func (l *Layer) At(row, col int) (float64, bool) {
	if !l.Available() || row < 0 || row >= len(l.Values) {
		return 0, false
	}
	r := l.Values[row]
	if col < 0 || col >= len(r) {
		return 0, false
	}
	v := r[col]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Covered counts the cells with a usable sample.
func (l *Layer) Covered() int {
	if !l.Available() {
		return 0
	}
	n := 0
	for i, row := range l.Values {
		for j := range row {
			if _, ok := l.At(i, j); ok {
				n++
			}
		}
	}
	return n
}

func (l *Layer) checkShape(rows, cols int) error {
	if !l.Available() {
		return nil
	}
	if len(l.Values) != rows {
		return fmt.Errorf("%w: %s layer has %d rows, grid has %d", ErrInvalidGridDimensions, l.Modality, len(l.Values), rows)
	}
	for i, r := range l.Values {
		if len(r) != cols {
			return fmt.Errorf("%w: %s layer row %d has %d columns, grid has %d", ErrInvalidGridDimensions, l.Modality, i, len(r), cols)
		}
	}
	return nil
}

// Batch is the completed set of layers for one run.
type Batch struct {
	Rows   int
	Cols   int
	Layers map[Modality]*Layer
}

// NewBatch returns an empty batch for a rows x cols grid.
func NewBatch(rows, cols int) *Batch {
	return &Batch{Rows: rows, Cols: cols, Layers: make(map[Modality]*Layer)}
}

// Set stores l under its modality, replacing any previous layer.
func (b *Batch) Set(l *Layer) {
	if l == nil {
		return
	}
	if b.Layers == nil {
		b.Layers = make(map[Modality]*Layer)
	}
	b.Layers[l.Modality] = l
}

// Layer returns the layer for m. A modality that was never set is reported
// as unavailable rather than nil.
func (b *Batch) Layer(m Modality) *Layer {
	if b != nil && b.Layers != nil {
		if l, ok := b.Layers[m]; ok && l != nil {
			return l
		}
	}
	return UnavailableLayer(m, "not acquired")
}

// Validate checks the batch dimensions and every available layer's shape.
func (b *Batch) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: nil batch", ErrInvalidGridDimensions)
	}
	if b.Rows <= 0 || b.Cols <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidGridDimensions, b.Rows, b.Cols)
	}
	for _, m := range All() {
		if err := b.Layer(m).checkShape(b.Rows, b.Cols); err != nil {
			return err
		}
	}
	return nil
}

// NewLayerValues allocates a rows x cols matrix filled with NaN.
func NewLayerValues(rows, cols int) [][]float64 {
	out := make([][]float64, rows)
	for i := range out {
		out[i] = make([]float64, cols)
		for j := range out[i] {
			out[i][j] = math.NaN()
		}
	}
	return out
}
