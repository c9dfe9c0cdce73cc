package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"charm.land/lipgloss/v2"
)

// FusionReport mirrors a fused grid and its summary so the ui package does
// not import the domain packages.
type FusionReport struct {
	RunID        string
	CreatedAt    time.Time
	Center       string
	RadiusMeters float64
	Rows         int
	Cols         int

	Threshold       float64
	MaxProbability  float64
	MeanProbability float64
	AboveThreshold  int
	AnomalyRatio    float64
	ClassCounts     []ClassCount

	Sensors   []SensorRow
	Quality   QualityView
	Heatmap   *Heatmap
	Anomalies []AnomalyRow

	OutputPath string
	Digest     string
}

// ClassCount is the number of cells in one anomaly class.
type ClassCount struct {
	Class string
	Count int
}

// SensorRow describes one modality's participation in a run.
type SensorRow struct {
	Modality     string
	Status       string // available|partial|unavailable
	Weight       float64
	CellsCovered int
	Source       string
	Reason       string
}

// QualityView mirrors the run quality assessment.
type QualityView struct {
	SensorsUsed    int
	TotalSensors   int
	Coverage       float64
	Confidence     string
	Recommendation string
}

// AnomalyRow is one ranked anomaly.
type AnomalyRow struct {
	Rank        int
	Row         int
	Col         int
	Lat         float64
	Lon         float64
	Probability float64
	Class       string
	Agreeing    int
	Scores      map[string]float64
}

// FusionReportUI renders fusion runs for the fuse and rank commands.
type FusionReportUI struct {
	writer io.Writer
	quiet  bool

	// HeatmapWidth caps the number of heatmap columns. Zero means 50.
	HeatmapWidth int
}

// NewFusionReportUI creates a new report renderer
func NewFusionReportUI(w io.Writer, quiet bool) *FusionReportUI {
	return &FusionReportUI{
		writer: w,
		quiet:  quiet,
	}
}

// PrintReport renders the full run report: run header, sensors, heatmap,
// summary, quality and the top anomalies.
func (r *FusionReportUI) PrintReport(report FusionReport) {
	if r.quiet {
		return
	}

	var output strings.Builder

	output.WriteString(Success.Bold(true).Render("Anomaly Fusion Report"))
	output.WriteString("\n\n")

	output.WriteString(r.renderRun(report))
	output.WriteString("\n\n")

	if len(report.Sensors) > 0 {
		output.WriteString(r.renderSensors(report.Sensors))
		output.WriteString("\n\n")
	}

	if report.Heatmap != nil {
		width := r.HeatmapWidth
		if width <= 0 {
			width = DefaultHeatmapWidth
		}
		output.WriteString(SectionHeader.Render("Probability Heatmap"))
		output.WriteString("\n")
		output.WriteString(RenderHeatmap(*report.Heatmap, width))
		output.WriteString("\n")
		output.WriteString(HeatmapLegend())
		output.WriteString("\n\n")
	}

	output.WriteString(r.renderSummary(report))
	output.WriteString("\n\n")

	output.WriteString(r.renderQuality(report.Quality))

	if len(report.Anomalies) > 0 {
		output.WriteString("\n\n")
		output.WriteString(RenderAnomalyTable(report.Anomalies))
	}

	fmt.Fprintln(r.writer, SuccessBox.Render(output.String()))
}

// PrintAnomalies renders only the ranked anomaly table.
func (r *FusionReportUI) PrintAnomalies(threshold float64, rows []AnomalyRow) {
	if r.quiet {
		return
	}
	if len(rows) == 0 {
		fmt.Fprintln(r.writer, Warning.Render(fmt.Sprintf("%s No cells at or above %.2f", GetWarnMark(), threshold)))
		return
	}
	fmt.Fprintln(r.writer, Box.Render(RenderAnomalyTable(rows)))
}

func (r *FusionReportUI) renderRun(report FusionReport) string {
	var sb strings.Builder
	sb.WriteString(SectionHeader.Render("Run"))
	sb.WriteString("\n")
	if report.RunID != "" {
		sb.WriteString(FormatKeyValue("ID", Highlight.Render(report.RunID)))
		sb.WriteString("\n")
	}
	if !report.CreatedAt.IsZero() {
		sb.WriteString(FormatKeyValue("Created", report.CreatedAt.Format(time.RFC3339)))
		sb.WriteString("\n")
	}
	sb.WriteString(FormatKeyValue("Center", report.Center))
	sb.WriteString("\n")
	sb.WriteString(FormatKeyValue("Radius", fmt.Sprintf("%.0f m", report.RadiusMeters)))
	sb.WriteString("\n")
	sb.WriteString(FormatKeyValue("Grid", fmt.Sprintf("%dx%d", report.Rows, report.Cols)))
	if report.OutputPath != "" {
		sb.WriteString("\n")
		sb.WriteString(FormatKeyValue("Output", report.OutputPath))
	}
	if report.Digest != "" {
		sb.WriteString("\n")
		sb.WriteString(FormatKeyValue("Digest", Dim.Render(report.Digest)))
	}
	return sb.String()
}

func (r *FusionReportUI) renderSensors(rows []SensorRow) string {
	var sb strings.Builder
	sb.WriteString(SectionHeader.Render("Sensors"))
	for _, s := range rows {
		sb.WriteString("\n  ")
		switch s.Status {
		case "available":
			sb.WriteString(GetCheckMark())
		case "partial":
			sb.WriteString(GetWarnMark())
		default:
			sb.WriteString(GetCrossMark())
		}
		sb.WriteString(" ")
		sb.WriteString(Bold.Render(fmt.Sprintf("%-9s", s.Modality)))
		sb.WriteString(Dim.Render(fmt.Sprintf(" w=%.2f", s.Weight)))
		if s.Status == "unavailable" {
			if s.Reason != "" {
				sb.WriteString(" " + Error.Render("→ "+s.Reason))
			}
			continue
		}
		sb.WriteString(Dim.Render(fmt.Sprintf(" cells=%d", s.CellsCovered)))
		if s.Source != "" {
			sb.WriteString(" " + Muted.Render(s.Source))
		}
	}
	return sb.String()
}

func (r *FusionReportUI) renderSummary(report FusionReport) string {
	var sb strings.Builder
	sb.WriteString(SectionHeader.Render("Summary"))
	sb.WriteString("\n")
	sb.WriteString(FormatKeyValue("Max probability", renderProbability(report.MaxProbability)))
	sb.WriteString("\n")
	sb.WriteString(FormatKeyValue("Mean probability", fmt.Sprintf("%.3f", report.MeanProbability)))
	sb.WriteString("\n")
	sb.WriteString(FormatKeyValue(fmt.Sprintf("Cells ≥ %.2f", report.Threshold),
		fmt.Sprintf("%d (%.1f%%)", report.AboveThreshold, report.AnomalyRatio*100)))
	if len(report.ClassCounts) > 0 {
		parts := make([]string, 0, len(report.ClassCounts))
		for _, c := range report.ClassCounts {
			parts = append(parts, ClassStyle(c.Class).Render(fmt.Sprintf("%s %d", c.Class, c.Count)))
		}
		sb.WriteString("\n")
		sb.WriteString(FormatKeyValue("Classes", strings.Join(parts, Muted.Render(" · "))))
	}
	return sb.String()
}

func (r *FusionReportUI) renderQuality(q QualityView) string {
	var sb strings.Builder
	sb.WriteString(SectionHeader.Render("Quality"))
	sb.WriteString("\n")
	sb.WriteString(FormatKeyValue("Sensors used", fmt.Sprintf("%d/%d", q.SensorsUsed, q.TotalSensors)))
	sb.WriteString("\n")
	sb.WriteString(FormatKeyValue("Coverage", renderBar(q.Coverage, 30)+" "+fmt.Sprintf("%.0f%%", q.Coverage*100)))
	sb.WriteString("\n")
	sb.WriteString(FormatKeyValue("Confidence", renderConfidence(q.Confidence)))
	if q.Recommendation != "" {
		sb.WriteString("\n")
		sb.WriteString(Subtitle.Render(q.Recommendation))
	}
	return sb.String()
}

// RenderAnomalyTable renders ranked anomalies as an aligned table.
func RenderAnomalyTable(rows []AnomalyRow) string {
	var sb strings.Builder
	sb.WriteString(SectionHeader.Render(fmt.Sprintf("Top Anomalies (%d)", len(rows))))
	sb.WriteString("\n")
	sb.WriteString(Dim.Render(fmt.Sprintf("%4s  %9s  %-22s  %6s  %-8s  %s", "#", "cell", "location", "prob", "class", "agree")))
	for _, a := range rows {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%4d  %9s  %-22s  %s  %s  %d",
			a.Rank,
			fmt.Sprintf("(%d,%d)", a.Row, a.Col),
			fmt.Sprintf("%.5f, %.5f", a.Lat, a.Lon),
			renderProbability(a.Probability),
			ClassStyle(a.Class).Render(fmt.Sprintf("%-8s", a.Class)),
			a.Agreeing,
		))
	}
	return sb.String()
}

// PrintSimpleReport prints a plain text summary (fallback for quiet mode or
// piping into other tools).
func (r *FusionReportUI) PrintSimpleReport(report FusionReport) {
	fmt.Fprintf(r.writer, "run=%s grid=%dx%d max=%.4f mean=%.4f above=%d threshold=%.2f\n",
		report.RunID, report.Rows, report.Cols, report.MaxProbability, report.MeanProbability,
		report.AboveThreshold, report.Threshold)
	fmt.Fprintf(r.writer, "sensors=%d/%d coverage=%.2f confidence=%s\n",
		report.Quality.SensorsUsed, report.Quality.TotalSensors, report.Quality.Coverage, report.Quality.Confidence)
	for _, s := range report.Sensors {
		if s.Status == "unavailable" {
			fmt.Fprintf(r.writer, "unavailable %s: %s\n", s.Modality, s.Reason)
		}
	}
	for _, a := range report.Anomalies {
		fmt.Fprintf(r.writer, "%d\t%d\t%d\t%.6f\t%.6f\t%.4f\t%s\n",
			a.Rank, a.Row, a.Col, a.Lat, a.Lon, a.Probability, a.Class)
	}
}

// LogStep prints a simple log message (non-workflow mode)
func (r *FusionReportUI) LogStep(icon, message string) {
	if r.quiet {
		return
	}

	var iconStyled string
	switch icon {
	case "success":
		iconStyled = GetCheckMark()
	case "error":
		iconStyled = GetCrossMark()
	case "warning":
		iconStyled = GetWarnMark()
	case "info":
		iconStyled = GetInfoMark()
	default:
		iconStyled = Secondary.Render("→")
	}

	fmt.Fprintf(r.writer, "%s %s\n", iconStyled, message)
}

// renderBar creates a visual progress bar
func renderBar(ratio float64, width int) string {
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	filled := int(ratio * float64(width))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	var style lipgloss.Style
	switch {
	case ratio >= 0.8:
		style = lipgloss.NewStyle().Foreground(ColorSuccess)
	case ratio >= 0.5:
		style = lipgloss.NewStyle().Foreground(ColorWarning)
	default:
		style = lipgloss.NewStyle().Foreground(ColorError)
	}
	return style.Render(bar)
}

func renderProbability(p float64) string {
	s := fmt.Sprintf("%.4f", p)
	switch {
	case p >= 0.9:
		return ClassCritical.Render(s)
	case p >= 0.7:
		return Warning.Render(s)
	default:
		return s
	}
}

func renderConfidence(c string) string {
	switch c {
	case "HIGH":
		return Success.Render(c)
	case "MODERATE":
		return Warning.Render(c)
	default:
		return Error.Render(c)
	}
}
