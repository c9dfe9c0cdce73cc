package cmd

import (
	"io"
	"strings"

	"github.com/spf13/viper"

	"github.com/idlab-discover/anomalyfusion-cli/internal/apperr"
	"github.com/idlab-discover/anomalyfusion-cli/internal/archive"
	"github.com/idlab-discover/anomalyfusion-cli/internal/config"
	"github.com/idlab-discover/anomalyfusion-cli/internal/fusion"
	"github.com/idlab-discover/anomalyfusion-cli/internal/grid"
	"github.com/idlab-discover/anomalyfusion-cli/internal/provenance"
	"github.com/idlab-discover/anomalyfusion-cli/internal/sensor"
	"github.com/idlab-discover/anomalyfusion-cli/internal/ui"
)

// resolveLogLevel reads <command>.log-level from viper (config, env or flag).
func resolveLogLevel(key string) (string, error) {
	level := strings.ToLower(strings.TrimSpace(viper.GetString(key)))
	if level == "" {
		level = "standard"
	}
	switch level {
	case "quiet", "standard", "debug":
		return level, nil
	default:
		return "", apperr.Userf("invalid --log-level %q (expected quiet|standard|debug)", level)
	}
}

// wireLogging points the internal package loggers at w in debug mode and
// silences them otherwise.
func wireLogging(level string, w io.Writer) {
	var dst io.Writer
	if level == "debug" {
		dst = w
	}
	sensor.SetLogger(dst)
	fusion.SetLogger(dst)
	provenance.SetLogger(dst)
	archive.SetLogger(dst)
}

// loadProfile resolves the fusion profile from the global viper instance.
func loadProfile() (config.Profile, error) {
	p, err := config.FromViper(viper.GetViper())
	if err != nil {
		return config.Profile{}, apperr.Input(err)
	}
	return p, nil
}

// archiveDSN returns <command>.archive, falling back to archive.dsn.
func archiveDSN(key string) string {
	if dsn := strings.TrimSpace(viper.GetString(key)); dsn != "" {
		return dsn
	}
	return strings.TrimSpace(viper.GetString("archive.dsn"))
}

// reportFor converts a grid into the ui mirror used for rendering.
func reportFor(g *grid.Grid, threshold float64, ranked []grid.RankedAnomaly) ui.FusionReport {
	s := grid.Summarize(g, threshold)
	r := ui.FusionReport{
		RunID:           g.RunID,
		CreatedAt:       g.CreatedAt,
		Center:          g.Center.String(),
		RadiusMeters:    g.RadiusMeters,
		Rows:            g.Rows,
		Cols:            g.Cols,
		Threshold:       threshold,
		MaxProbability:  s.MaxProbability,
		MeanProbability: s.MeanProbability,
		AboveThreshold:  s.AboveThreshold,
		AnomalyRatio:    s.AnomalyRatio,
		Quality: ui.QualityView{
			SensorsUsed:    s.Quality.SensorsUsed,
			TotalSensors:   s.Quality.TotalSensors,
			Coverage:       s.Quality.Coverage,
			Confidence:     string(s.Quality.Confidence),
			Recommendation: s.Quality.Recommendation,
		},
		Heatmap:   heatmapFor(g),
		Anomalies: anomalyRows(ranked),
	}

	classes := grid.Classes()
	for i := len(classes) - 1; i >= 0; i-- {
		c := classes[i]
		r.ClassCounts = append(r.ClassCounts, ui.ClassCount{Class: c.String(), Count: s.ClassCounts[c]})
	}
	for _, a := range g.Availability {
		r.Sensors = append(r.Sensors, ui.SensorRow{
			Modality:     a.Modality.String(),
			Status:       string(a.Status),
			Weight:       a.Weight,
			CellsCovered: a.CellsCovered,
			Source:       a.Source,
			Reason:       a.Reason,
		})
	}
	return r
}

func heatmapFor(g *grid.Grid) *ui.Heatmap {
	h := &ui.Heatmap{
		Rows:          g.Rows,
		Cols:          g.Cols,
		Probabilities: make([]float64, len(g.Cells)),
		Classes:       make([]string, len(g.Cells)),
	}
	for i, c := range g.Cells {
		h.Probabilities[i] = c.Probability
		h.Classes[i] = c.Class.String()
	}
	return h
}

func anomalyRows(ranked []grid.RankedAnomaly) []ui.AnomalyRow {
	rows := make([]ui.AnomalyRow, 0, len(ranked))
	for _, a := range ranked {
		scores := make(map[string]float64, len(a.Scores))
		for m, v := range a.Scores {
			scores[m.String()] = v
		}
		rows = append(rows, ui.AnomalyRow{
			Rank:        a.Rank,
			Row:         a.Row,
			Col:         a.Col,
			Lat:         a.Center.Lat,
			Lon:         a.Center.Lon,
			Probability: a.Probability,
			Class:       a.Class.String(),
			Agreeing:    a.Agreeing,
			Scores:      scores,
		})
	}
	return rows
}
