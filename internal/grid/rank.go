package grid

import "sort"

// DefaultAnomalyThreshold is the probability a cell must reach to be listed
// as an anomaly.
const DefaultAnomalyThreshold = 0.7

// RankedAnomaly is a cell that passed the anomaly threshold, with its
// 1-based rank.
type RankedAnomaly struct {
	Rank int `json:"rank" yaml:"rank"`
	Cell `yaml:",inline"`
}

// ExtractRanked returns every cell with probability >= threshold, sorted by
// descending probability. Equal probabilities keep row-major order.
func ExtractRanked(g *Grid, threshold float64) []RankedAnomaly {
	if g == nil {
		return nil
	}
	var out []RankedAnomaly
	for _, c := range g.Cells {
		if c.Probability >= threshold {
			out = append(out, RankedAnomaly{Cell: c})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Probability > out[j].Probability
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// Top returns at most n entries. n <= 0 returns all of them.
func Top(ranked []RankedAnomaly, n int) []RankedAnomaly {
	if n <= 0 || n >= len(ranked) {
		return ranked
	}
	return ranked[:n]
}
