package fusion

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/mdobak/go-xerrors"

	"github.com/idlab-discover/anomalyfusion-cli/internal/geo"
	"github.com/idlab-discover/anomalyfusion-cli/internal/grid"
	"github.com/idlab-discover/anomalyfusion-cli/internal/logging"
	"github.com/idlab-discover/anomalyfusion-cli/internal/scorer"
	"github.com/idlab-discover/anomalyfusion-cli/internal/sensor"
)

// Config is the fixed parameter set of a fusion engine.
type Config struct {
	Weights          Weights
	Agreement        Agreement
	AnomalyThreshold float64
}

// DefaultConfig returns the stock weights, agreement bonus and anomaly
// threshold.
func DefaultConfig() Config {
	return Config{
		Weights:          DefaultWeights(),
		Agreement:        DefaultAgreement(),
		AnomalyThreshold: grid.DefaultAnomalyThreshold,
	}
}

// Validate checks every part of the configuration.
func (c Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if err := c.Agreement.Validate(); err != nil {
		return err
	}
	if math.IsNaN(c.AnomalyThreshold) || c.AnomalyThreshold < 0 || c.AnomalyThreshold > 1 {
		return fmt.Errorf("anomaly threshold %v out of [0,1]", c.AnomalyThreshold)
	}
	return nil
}

// Methodology returns the parameters recorded on every grid the engine
// produces.
func (c Config) Methodology() grid.Methodology {
	return grid.Methodology{
		Weights:            c.Weights.Clone(),
		AgreementThreshold: c.Agreement.Threshold,
		AgreementTiers:     c.Agreement.sorted(),
		AnomalyThreshold:   c.AnomalyThreshold,
	}
}

// Engine runs the scorer and combinator over a batch. It holds no state
// between runs.
type Engine struct {
	scorer scorer.Scorer
	cfg    Config

	now   func() time.Time
	newID func() string
}

// NewEngine validates cfg and returns an engine using s to score samples.
func NewEngine(s scorer.Scorer, cfg Config) (*Engine, error) {
	if s == nil {
		return nil, fmt.Errorf("fusion: scorer is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("fusion: %w", err)
	}
	cfg.Weights = cfg.Weights.Clone()
	cfg.Agreement.Tiers = cfg.Agreement.sorted()
	return &Engine{
		scorer: s,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// modalityPlan is the resolved per-run input for one modality.
type modalityPlan struct {
	m        sensor.Modality
	layer    *sensor.Layer
	weight   float64
	baseline float64
	covered  int
}

// Run fuses a completed batch into a grid. Dimension problems are rejected
// before any cell is computed; a scorer returning a value outside [0,1]
// aborts the run. Missing modalities only show up in the availability list.
func (e *Engine) Run(req sensor.Request, batch *sensor.Batch) (*grid.Grid, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := batch.Validate(); err != nil {
		return nil, err
	}
	if batch.Rows != req.Rows || batch.Cols != req.Cols {
		return nil, fmt.Errorf("%w: request is %dx%d, batch is %dx%d",
			ErrInvalidGridDimensions, req.Rows, req.Cols, batch.Rows, batch.Cols)
	}
	bounds, err := geo.BoundsFromRadius(req.Center, req.RadiusMeters)
	if err != nil {
		return nil, err
	}

	runID := e.newID()
	logf(runID, "fusing %dx%d grid around %s (radius %.0fm)", req.Rows, req.Cols, req.Center, req.RadiusMeters)

	plans := make([]*modalityPlan, 0, len(sensor.All()))
	for _, m := range sensor.All() {
		p := &modalityPlan{
			m:        m,
			layer:    batch.Layer(m),
			weight:   e.cfg.Weights[m],
			baseline: e.scorer.Baseline(m),
		}
		if p.layer.Baseline != nil {
			p.baseline = *p.layer.Baseline
		}
		plans = append(plans, p)
	}

	g := &grid.Grid{
		RunID:        runID,
		CreatedAt:    e.now(),
		Center:       req.Center,
		RadiusMeters: req.RadiusMeters,
		Bounds:       bounds,
		Rows:         req.Rows,
		Cols:         req.Cols,
		Methodology:  e.cfg.Methodology(),
		Cells:        make([]grid.Cell, 0, req.Rows*req.Cols),
	}

	for i := 0; i < req.Rows; i++ {
		for j := 0; j < req.Cols; j++ {
			cell, err := e.fuseCell(plans, i, j)
			if err != nil {
				logf(runID, "aborted: %v", err)
				return nil, err
			}
			cell.Center = bounds.CellCenter(i, j, req.Rows, req.Cols)
			g.Cells = append(g.Cells, cell)
		}
	}

	total := req.Rows * req.Cols
	for _, p := range plans {
		a := availability(p, total)
		logkv(runID, "sensor", logging.F("modality", p.m), logging.F("status", a.Status), logging.F("cells", a.CellsCovered), logging.F("of", total), logging.F("weight", a.Weight))
		g.Availability = append(g.Availability, a)
	}

	s := grid.Summarize(g, e.cfg.AnomalyThreshold)
	logkv(runID, "done", logging.F("max", s.MaxProbability), logging.F("threshold", e.cfg.AnomalyThreshold), logging.F("above", s.AboveThreshold))
	return g, nil
}

func (e *Engine) fuseCell(plans []*modalityPlan, row, col int) (grid.Cell, error) {
	scores := make(map[sensor.Modality]float64, len(plans))
	for _, p := range plans {
		if p.weight <= 0 {
			continue
		}
		raw, ok := p.layer.At(row, col)
		if !ok {
			continue
		}
		s, ok := e.scorer.Score(p.m, raw, p.baseline)
		if !ok {
			continue
		}
		if math.IsNaN(s) || s < 0 || s > 1 {
			return grid.Cell{}, xerrors.New(&OutOfRangeScoreError{Modality: p.m, Row: row, Col: col, Score: s})
		}
		scores[p.m] = s
		p.covered++
	}

	combined := Combine(scores, e.cfg.Weights)
	agreeing := CountAgreeing(scores, e.cfg.Agreement.Threshold)
	bonus := e.cfg.Agreement.BonusFor(agreeing)
	prob := ApplyBonus(combined, bonus)

	return grid.Cell{
		Row:            row,
		Col:            col,
		Probability:    prob,
		Combined:       combined,
		AgreementBonus: bonus,
		Agreeing:       agreeing,
		Class:          grid.Classify(prob),
		Scores:         scores,
	}, nil
}

func availability(p *modalityPlan, total int) grid.Availability {
	a := grid.Availability{
		Modality:     p.m,
		CellsCovered: p.covered,
		Weight:       p.weight,
		Baseline:     p.baseline,
		Source:       p.layer.Source,
	}
	switch {
	case p.covered == 0:
		a.Status = grid.StatusUnavailable
		a.Reason = p.layer.Reason
		if p.weight <= 0 {
			a.Reason = "disabled (weight 0)"
		} else if a.Reason == "" {
			a.Reason = "no usable samples"
		}
	case p.covered < total:
		a.Status = grid.StatusPartial
	default:
		a.Status = grid.StatusAvailable
	}
	return a
}
