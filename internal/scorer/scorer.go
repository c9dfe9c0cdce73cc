// Package scorer turns one raw sensor measurement into a normalized anomaly
// score in [0,1] by comparing it against the modality's background value.
package scorer

import (
	"fmt"
	"math"

	"github.com/idlab-discover/anomalyfusion-cli/internal/sensor"
)

// DefaultNoiseFloor is the score given to an unperturbed measurement.
const DefaultNoiseFloor = 0.1

// Calibration holds the fixed constants for one modality.
type Calibration struct {
	// Baseline is the expected background value, in the modality's unit.
	Baseline float64 `json:"baseline" yaml:"baseline"`

	// Ceiling is the absolute deviation at which the score saturates at 1.
	Ceiling float64 `json:"ceiling" yaml:"ceiling"`

	// NoiseFloor is the minimum score.
	NoiseFloor float64 `json:"noiseFloor" yaml:"noiseFloor"`
}

// Validate checks that the calibration can produce scores in [0,1].
func (c Calibration) Validate() error {
	if !finite(c.Baseline) {
		return fmt.Errorf("baseline must be finite, got %v", c.Baseline)
	}
	if !finite(c.Ceiling) || c.Ceiling <= 0 {
		return fmt.Errorf("ceiling must be positive, got %v", c.Ceiling)
	}
	if !finite(c.NoiseFloor) || c.NoiseFloor < 0 || c.NoiseFloor >= 1 {
		return fmt.Errorf("noise floor must be in [0,1), got %v", c.NoiseFloor)
	}
	return nil
}

// DefaultCalibrations returns the calibration used when no profile overrides it.
func DefaultCalibrations() map[sensor.Modality]Calibration {
	return map[sensor.Modality]Calibration{
		sensor.SAR:      {Baseline: -15, Ceiling: 10, NoiseFloor: DefaultNoiseFloor},
		sensor.Thermal:  {Baseline: 25, Ceiling: 5, NoiseFloor: DefaultNoiseFloor},
		sensor.Seismic:  {Baseline: 2500, Ceiling: 750, NoiseFloor: DefaultNoiseFloor},
		sensor.Gravity:  {Baseline: 0, Ceiling: 200, NoiseFloor: DefaultNoiseFloor},
		sensor.Magnetic: {Baseline: 38000, Ceiling: 100, NoiseFloor: DefaultNoiseFloor},
	}
}

// Scorer maps a raw measurement to an anomaly score.
//
// ok is false when the measurement is unusable; the caller then leaves the
// modality out of that cell instead of inventing a score.
type Scorer interface {
	Score(m sensor.Modality, raw, baseline float64) (score float64, ok bool)

	// Baseline is the configured background value for m.
	Baseline(m sensor.Modality) float64
}

// Linear scores the absolute deviation from baseline on a straight line from
// the noise floor up to 1 at the ceiling.
type Linear struct {
	calibrations map[sensor.Modality]Calibration
}

// NewLinear validates the calibrations and returns a Linear scorer. Every
// supported modality must be calibrated.
func NewLinear(cal map[sensor.Modality]Calibration) (*Linear, error) {
	out := make(map[sensor.Modality]Calibration, len(cal))
	for _, m := range sensor.All() {
		c, ok := cal[m]
		if !ok {
			return nil, fmt.Errorf("scorer: no calibration for %s", m)
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("scorer: %s: %w", m, err)
		}
		out[m] = c
	}
	for m := range cal {
		if !m.Valid() {
			return nil, fmt.Errorf("scorer: unknown modality %q", m)
		}
	}
	return &Linear{calibrations: out}, nil
}

// Default returns a Linear scorer over DefaultCalibrations.
func Default() *Linear {
	s, err := NewLinear(DefaultCalibrations())
	if err != nil {
		panic(err)
	}
	return s
}

// Calibration returns the calibration used for m.
func (s *Linear) Calibration(m sensor.Modality) (Calibration, bool) {
	c, ok := s.calibrations[m]
	return c, ok
}

func (s *Linear) Baseline(m sensor.Modality) float64 {
	return s.calibrations[m].Baseline
}

func (s *Linear) Score(m sensor.Modality, raw, baseline float64) (float64, bool) {
	c, ok := s.calibrations[m]
	if !ok || !finite(raw) || !finite(baseline) {
		return 0, false
	}
	deviation := math.Min(1, math.Abs(raw-baseline)/c.Ceiling)
	return c.NoiseFloor + (1-c.NoiseFloor)*deviation, true
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
