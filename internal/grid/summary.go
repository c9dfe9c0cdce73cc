package grid

import "github.com/idlab-discover/anomalyfusion-cli/internal/sensor"

// Confidence grades how many independent modalities backed a run.
type Confidence string

const (
	ConfidenceHigh     Confidence = "HIGH"
	ConfidenceModerate Confidence = "MODERATE"
	ConfidenceLow      Confidence = "LOW"
)

// Quality describes how much sensor evidence a run had.
type Quality struct {
	SensorsUsed    int        `json:"sensorsUsed" yaml:"sensorsUsed"`
	TotalSensors   int        `json:"totalSensors" yaml:"totalSensors"`
	Coverage       float64    `json:"coverage" yaml:"coverage"`
	Confidence     Confidence `json:"confidence" yaml:"confidence"`
	Recommendation string     `json:"recommendation" yaml:"recommendation"`
}

// Summary is the run-level statistics derived from a grid.
type Summary struct {
	RunID           string         `json:"runId" yaml:"runId"`
	Cells           int            `json:"cells" yaml:"cells"`
	Threshold       float64        `json:"threshold" yaml:"threshold"`
	MaxProbability  float64        `json:"maxProbability" yaml:"maxProbability"`
	MeanProbability float64        `json:"meanProbability" yaml:"meanProbability"`
	AboveThreshold  int            `json:"aboveThreshold" yaml:"aboveThreshold"`
	AnomalyRatio    float64        `json:"anomalyRatio" yaml:"anomalyRatio"`
	ClassCounts     map[Class]int  `json:"classCounts" yaml:"classCounts"`
	Availability    []Availability `json:"availability" yaml:"availability"`
	Quality         Quality        `json:"quality" yaml:"quality"`
}

// Summarize computes the summary statistics of g at the given threshold.
func Summarize(g *Grid, threshold float64) Summary {
	s := Summary{
		Threshold:   threshold,
		ClassCounts: make(map[Class]int, len(classNames)),
	}
	for _, c := range Classes() {
		s.ClassCounts[c] = 0
	}
	if g == nil {
		s.Quality = Assess(nil)
		return s
	}

	s.RunID = g.RunID
	s.Cells = len(g.Cells)
	s.Availability = append([]Availability(nil), g.Availability...)

	var sum float64
	for _, c := range g.Cells {
		sum += c.Probability
		if c.Probability > s.MaxProbability {
			s.MaxProbability = c.Probability
		}
		if c.Probability >= threshold {
			s.AboveThreshold++
		}
		s.ClassCounts[c.Class]++
	}
	if s.Cells > 0 {
		s.MeanProbability = sum / float64(s.Cells)
		s.AnomalyRatio = float64(s.AboveThreshold) / float64(s.Cells)
	}
	s.Quality = Assess(g.Availability)
	return s
}

// Assess grades the sensor evidence behind a run: four or more modalities
// is HIGH confidence, three is MODERATE, anything less is LOW.
func Assess(av []Availability) Quality {
	q := Quality{TotalSensors: len(sensor.All())}
	for _, a := range av {
		if a.Used() {
			q.SensorsUsed++
		}
	}
	if q.TotalSensors > 0 {
		q.Coverage = float64(q.SensorsUsed) / float64(q.TotalSensors)
	}
	switch {
	case q.SensorsUsed >= 4:
		q.Confidence = ConfidenceHigh
		q.Recommendation = "Results are suitable for targeting excavation"
	case q.SensorsUsed >= 3:
		q.Confidence = ConfidenceModerate
		q.Recommendation = "Corroborate top anomalies with an additional modality"
	default:
		q.Confidence = ConfidenceLow
		q.Recommendation = "Acquire more sensor data before drawing conclusions"
	}
	return q
}
