// Package grid holds the result of one fusion run: a fixed rows x cols grid
// of fused cells mapped onto a lat/lon extent, plus the ranked and summary
// views derived from it.
package grid

import (
	"fmt"
	"math"
	"time"

	"github.com/idlab-discover/anomalyfusion-cli/internal/geo"
	"github.com/idlab-discover/anomalyfusion-cli/internal/sensor"
)

// Cell is the fused result for one grid cell.
type Cell struct {
	Row    int            `json:"row" yaml:"row"`
	Col    int            `json:"col" yaml:"col"`
	Center geo.Coordinate `json:"center" yaml:"center"`

	// Probability is the final value: Combined scaled by the agreement
	// bonus and clamped to 1.
	Probability    float64 `json:"probability" yaml:"probability"`
	Combined       float64 `json:"combined" yaml:"combined"`
	AgreementBonus float64 `json:"agreementBonus" yaml:"agreementBonus"`
	Agreeing       int     `json:"agreeing" yaml:"agreeing"`
	Class          Class   `json:"class" yaml:"class"`

	// Scores only contains the modalities that contributed to this cell.
	Scores map[sensor.Modality]float64 `json:"scores" yaml:"scores"`
}

// Status describes how much of the grid a modality covered.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusPartial     Status = "partial"
	StatusUnavailable Status = "unavailable"
)

// Availability is the per-modality coverage of a run.
type Availability struct {
	Modality     sensor.Modality `json:"modality" yaml:"modality"`
	Status       Status          `json:"status" yaml:"status"`
	CellsCovered int             `json:"cellsCovered" yaml:"cellsCovered"`
	Weight       float64         `json:"weight" yaml:"weight"`
	Baseline     float64         `json:"baseline" yaml:"baseline"`
	Source       string          `json:"source,omitempty" yaml:"source,omitempty"`
	Reason       string          `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Used reports whether the modality contributed to at least one cell.
func (a Availability) Used() bool { return a.Status != StatusUnavailable }

// AgreementTier is one step of the agreement bonus function.
type AgreementTier struct {
	Count int     `json:"count" yaml:"count"`
	Bonus float64 `json:"bonus" yaml:"bonus"`
}

// Methodology records the parameters a grid was produced with.
type Methodology struct {
	Weights            map[sensor.Modality]float64 `json:"weights" yaml:"weights"`
	AgreementThreshold float64                     `json:"agreementThreshold" yaml:"agreementThreshold"`
	AgreementTiers     []AgreementTier             `json:"agreementTiers" yaml:"agreementTiers"`
	AnomalyThreshold   float64                     `json:"anomalyThreshold" yaml:"anomalyThreshold"`
}

// Grid is the output of one fusion run. Cells are stored row-major and
// every index in range has exactly one cell.
type Grid struct {
	RunID        string         `json:"runId" yaml:"runId"`
	CreatedAt    time.Time      `json:"createdAt" yaml:"createdAt"`
	Center       geo.Coordinate `json:"center" yaml:"center"`
	RadiusMeters float64        `json:"radiusMeters" yaml:"radiusMeters"`
	Bounds       geo.Bounds     `json:"bounds" yaml:"bounds"`
	Rows         int            `json:"rows" yaml:"rows"`
	Cols         int            `json:"cols" yaml:"cols"`

	Methodology  Methodology    `json:"methodology" yaml:"methodology"`
	Availability []Availability `json:"availability" yaml:"availability"`

	Cells []Cell `json:"cells" yaml:"cells"`
}

// At returns the cell at (row, col).
func (g *Grid) At(row, col int) (*Cell, bool) {
	if g == nil || row < 0 || row >= g.Rows || col < 0 || col >= g.Cols {
		return nil, false
	}
	i := row*g.Cols + col
	if i >= len(g.Cells) {
		return nil, false
	}
	return &g.Cells[i], true
}

// ModalityAvailability returns the availability entry for m.
func (g *Grid) ModalityAvailability(m sensor.Modality) (Availability, bool) {
	for _, a := range g.Availability {
		if a.Modality == m {
			return a, true
		}
	}
	return Availability{}, false
}

// Validate checks the grid invariants: fixed dimensions, one cell per index
// in row-major order, and every probability and score inside [0,1].
func (g *Grid) Validate() error {
	if g == nil {
		return fmt.Errorf("grid is nil")
	}
	if g.Rows <= 0 || g.Cols <= 0 {
		return fmt.Errorf("%w: %dx%d", sensor.ErrInvalidGridDimensions, g.Rows, g.Cols)
	}
	if len(g.Cells) != g.Rows*g.Cols {
		return fmt.Errorf("%w: %d cells for a %dx%d grid", sensor.ErrInvalidGridDimensions, len(g.Cells), g.Rows, g.Cols)
	}
	for i, c := range g.Cells {
		if c.Row != i/g.Cols || c.Col != i%g.Cols {
			return fmt.Errorf("cell %d has index (%d,%d), want (%d,%d)", i, c.Row, c.Col, i/g.Cols, i%g.Cols)
		}
		if !unit(c.Probability) || !unit(c.Combined) {
			return fmt.Errorf("cell (%d,%d): probability out of [0,1]", c.Row, c.Col)
		}
		for m, s := range c.Scores {
			if !m.Valid() {
				return fmt.Errorf("cell (%d,%d): unknown modality %q", c.Row, c.Col, m)
			}
			if !unit(s) {
				return fmt.Errorf("cell (%d,%d): %s score %v out of [0,1]", c.Row, c.Col, m, s)
			}
		}
	}
	return nil
}

func unit(v float64) bool { return !math.IsNaN(v) && v >= 0 && v <= 1 }
