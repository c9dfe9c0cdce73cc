package ui

import (
	"fmt"
	"strings"
)

// RunRow is one archived run as shown by the history listing.
type RunRow struct {
	RunID          string
	CreatedAt      string
	Center         string
	Grid           string
	Threshold      float64
	MaxProbability float64
	Anomalies      int
	SensorsUsed    int
	Confidence     string
	Digest         string
}

// RenderRunHistory renders archived runs, newest first as given.
func RenderRunHistory(driver string, rows []RunRow) string {
	var sb strings.Builder
	sb.WriteString(SectionHeader.Render(fmt.Sprintf("Archived Runs (%d)", len(rows))))
	sb.WriteString("\n")
	sb.WriteString(FormatKeyValue("Archive", driver))
	if len(rows) == 0 {
		sb.WriteString("\n")
		sb.WriteString(Dim.Render("no runs archived yet"))
		return sb.String()
	}
	for _, r := range rows {
		sb.WriteString("\n\n")
		sb.WriteString(Bold.Render(r.RunID))
		sb.WriteString("  ")
		sb.WriteString(Dim.Render(r.CreatedAt))
		sb.WriteString("\n  ")
		sb.WriteString(fmt.Sprintf("%s  grid %s  max %s  anomalies %d @ %.2f  sensors %d  %s",
			r.Center, r.Grid, renderProbability(r.MaxProbability), r.Anomalies, r.Threshold,
			r.SensorsUsed, renderConfidence(r.Confidence)))
		if r.Digest != "" {
			sb.WriteString("\n  ")
			sb.WriteString(Muted.Render(shortDigest(r.Digest)))
		}
	}
	return sb.String()
}

func shortDigest(d string) string {
	const keep = 24
	if len(d) > keep {
		return d[:keep] + "…"
	}
	return d
}

// PrintHistory writes the run listing.
func (r *FusionReportUI) PrintHistory(driver string, rows []RunRow) {
	if r.quiet {
		for _, row := range rows {
			fmt.Fprintf(r.writer, "%s\t%s\t%d\t%.4f\t%s\n", row.RunID, row.CreatedAt, row.Anomalies, row.MaxProbability, row.Digest)
		}
		return
	}
	fmt.Fprintln(r.writer, Box.Render(RenderRunHistory(driver, rows)))
}
