// Package fusion combines per-modality anomaly scores into one probability
// per grid cell and runs the scorer and combinator over a whole batch.
package fusion

import (
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/idlab-discover/anomalyfusion-cli/internal/sensor"
)

// Weights is the relative trust placed in each modality. Weights are in
// [0,1] and need not sum to 1; a weight of 0 disables the modality.
type Weights map[sensor.Modality]float64

// DefaultWeights returns the stock weighting.
func DefaultWeights() Weights {
	return Weights{
		sensor.SAR:      0.25,
		sensor.Thermal:  0.25,
		sensor.Seismic:  0.20,
		sensor.Gravity:  0.15,
		sensor.Magnetic: 0.15,
	}
}

// EqualWeights gives every modality the same weight w.
func EqualWeights(w float64) Weights {
	out := make(Weights, len(sensor.All()))
	for _, m := range sensor.All() {
		out[m] = w
	}
	return out
}

// Validate checks that every weight is a known modality in [0,1] and that at
// least one modality is enabled.
func (w Weights) Validate() error {
	enabled := 0
	for m, v := range w {
		if !m.Valid() {
			return fmt.Errorf("weights: unknown modality %q", m)
		}
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("weights: %s weight %v out of [0,1]", m, v)
		}
		if v > 0 {
			enabled++
		}
	}
	if enabled == 0 {
		return fmt.Errorf("weights: every modality has weight 0")
	}
	return nil
}

// Clone returns a copy of w.
func (w Weights) Clone() Weights { return maps.Clone(w) }

// Combine fuses the available scores into one probability in [0,1].
//
// Weights are normalized over the modalities that have a score and a
// positive weight, so a missing modality drops out instead of counting as a
// zero score. With normalized weights ŵ the result is
//
//	Π s^ŵ / (Π s^ŵ + Π (1-s)^ŵ)
//
// and 0 when no modality contributes.
func Combine(scores map[sensor.Modality]float64, weights Weights) float64 {
	return combineOrdered(slices.Sorted(maps.Keys(scores)), scores, weights)
}

func combineOrdered(order []sensor.Modality, scores map[sensor.Modality]float64, weights Weights) float64 {
	var total float64
	for _, m := range order {
		if contributes(m, scores, weights) {
			total += weights[m]
		}
	}
	if total <= 0 {
		return 0
	}

	likelihood, anti := 1.0, 1.0
	for _, m := range order {
		if !contributes(m, scores, weights) {
			continue
		}
		s, w := scores[m], weights[m]/total
		likelihood *= math.Pow(s, w)
		anti *= math.Pow(1-s, w)
	}
	sum := likelihood + anti
	if sum <= 0 {
		return 0
	}
	return likelihood / sum
}

func contributes(m sensor.Modality, scores map[sensor.Modality]float64, weights Weights) bool {
	s, ok := scores[m]
	if !ok || math.IsNaN(s) {
		return false
	}
	w := weights[m]
	return w > 0 && !math.IsNaN(w)
}
