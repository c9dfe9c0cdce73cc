package fusion

import (
	"fmt"
	"math"
	"sort"

	"github.com/idlab-discover/anomalyfusion-cli/internal/grid"
	"github.com/idlab-discover/anomalyfusion-cli/internal/sensor"
)

// DefaultAgreementThreshold is the score a modality must reach to count as
// agreeing that a cell is anomalous.
const DefaultAgreementThreshold = 0.5

// Agreement configures the corroboration bonus.
type Agreement struct {
	Threshold float64
	Tiers     []grid.AgreementTier
}

// DefaultAgreement returns the stock step function: all five modalities
// agreeing adds 30%, four add 20%, three add 10%.
func DefaultAgreement() Agreement {
	return Agreement{
		Threshold: DefaultAgreementThreshold,
		Tiers: []grid.AgreementTier{
			{Count: 5, Bonus: 0.3},
			{Count: 4, Bonus: 0.2},
			{Count: 3, Bonus: 0.1},
		},
	}
}

// Validate checks the threshold and tiers. Tiers may be given in any order
// but a tier requiring more agreeing modalities must not pay a smaller bonus.
func (a Agreement) Validate() error {
	if math.IsNaN(a.Threshold) || a.Threshold < 0 || a.Threshold > 1 {
		return fmt.Errorf("agreement threshold %v out of [0,1]", a.Threshold)
	}
	tiers := a.sorted()
	for i, t := range tiers {
		if t.Count <= 0 {
			return fmt.Errorf("agreement tier count must be positive, got %d", t.Count)
		}
		if math.IsNaN(t.Bonus) || t.Bonus < 0 {
			return fmt.Errorf("agreement tier %d bonus must be >= 0, got %v", t.Count, t.Bonus)
		}
		if i > 0 {
			if tiers[i-1].Count == t.Count {
				return fmt.Errorf("duplicate agreement tier for %d modalities", t.Count)
			}
			if tiers[i-1].Bonus < t.Bonus {
				return fmt.Errorf("agreement tier %d pays less than tier %d", tiers[i-1].Count, t.Count)
			}
		}
	}
	return nil
}

// sorted returns the tiers by descending count.
func (a Agreement) sorted() []grid.AgreementTier {
	out := append([]grid.AgreementTier(nil), a.Tiers...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// CountAgreeing counts the available scores at or above threshold.
func CountAgreeing(scores map[sensor.Modality]float64, threshold float64) int {
	n := 0
	for _, s := range scores {
		if s >= threshold {
			n++
		}
	}
	return n
}

// BonusFor returns the bonus of the highest tier whose count is met.
func (a Agreement) BonusFor(agreeing int) float64 {
	for _, t := range a.sorted() {
		if agreeing >= t.Count {
			return t.Bonus
		}
	}
	return 0
}

// Bonus is the agreement bonus earned by scores. Only the modalities present
// in scores are counted.
func (a Agreement) Bonus(scores map[sensor.Modality]float64) float64 {
	return a.BonusFor(CountAgreeing(scores, a.Threshold))
}

// ApplyBonus scales a combined probability by the bonus, clamped to 1.
func ApplyBonus(combined, bonus float64) float64 {
	return math.Min(1, combined*(1+bonus))
}
