package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"
)

func TestColorAppliesANSICodes(t *testing.T) {
	got := Color("hello", FgGreen)
	want := FgGreen + "hello" + Reset
	if got != want {
		t.Fatalf("Color() = %q, want %q", got, want)
	}
}

func TestColorWithoutCode(t *testing.T) {
	if got := Color("sar", ""); got != "sar" {
		t.Fatalf("Color() with empty code = %q, want plain text", got)
	}
	if got := Color("", FgRed); got != FgRed+Reset {
		t.Fatalf("Color(\"\") = %q", got)
	}
}

func sampleReport() FusionReport {
	return FusionReport{
		RunID:           "run-42",
		CreatedAt:       time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC),
		Center:          "29.97920, 31.13420",
		RadiusMeters:    5000,
		Rows:            2,
		Cols:            2,
		Threshold:       0.7,
		MaxProbability:  0.95,
		MeanProbability: 0.55,
		AboveThreshold:  1,
		AnomalyRatio:    0.25,
		ClassCounts: []ClassCount{
			{Class: "CRITICAL", Count: 1},
			{Class: "BACKGROUND", Count: 3},
		},
		Sensors: []SensorRow{
			{Modality: "sar", Status: "available", Weight: 0.25, CellsCovered: 4, Source: "synthetic:sar"},
			{Modality: "gravity", Status: "unavailable", Weight: 0.15, Reason: "no GRACE tile"},
		},
		Quality: QualityView{SensorsUsed: 4, TotalSensors: 5, Coverage: 0.8, Confidence: "HIGH", Recommendation: "Proceed with ground survey"},
		Heatmap: &Heatmap{
			Rows:          2,
			Cols:          2,
			Probabilities: []float64{0.95, 0.3, 0.2, 0.1},
			Classes:       []string{"CRITICAL", "BACKGROUND", "BACKGROUND", "BACKGROUND"},
		},
		Anomalies: []AnomalyRow{
			{Rank: 1, Row: 0, Col: 0, Lat: 30.0, Lon: 31.1, Probability: 0.95, Class: "CRITICAL", Agreeing: 4},
		},
		OutputPath: "dist/fusion-grid.json",
	}
}

func TestFusionReportUI_PrintReport(t *testing.T) {
	var buf bytes.Buffer
	NewFusionReportUI(&buf, false).PrintReport(sampleReport())

	out := buf.String()
	for _, want := range []string{
		"Anomaly Fusion Report",
		"run-42",
		"5000 m",
		"2x2",
		"Sensors",
		"no GRACE tile",
		"Probability Heatmap",
		"0.9500",
		"1 (25.0%)",
		"4/5",
		"HIGH",
		"Proceed with ground survey",
		"Top Anomalies (1)",
		"(0,0)",
		"dist/fusion-grid.json",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestFusionReportUI_QuietPrintsNothing(t *testing.T) {
	var buf bytes.Buffer
	r := NewFusionReportUI(&buf, true)
	r.PrintReport(sampleReport())
	r.PrintAnomalies(0.7, nil)
	r.LogStep("info", "x")
	if buf.Len() != 0 {
		t.Fatalf("expected no output in quiet mode, got %q", buf.String())
	}
}

func TestFusionReportUI_PrintSimpleReport(t *testing.T) {
	var buf bytes.Buffer
	// Plain output is written even in quiet mode.
	NewFusionReportUI(&buf, true).PrintSimpleReport(sampleReport())

	out := buf.String()
	for _, want := range []string{
		"run=run-42 grid=2x2 max=0.9500",
		"above=1 threshold=0.70",
		"sensors=4/5 coverage=0.80 confidence=HIGH",
		"unavailable gravity: no GRACE tile",
		"1\t0\t0\t30.000000\t31.100000\t0.9500\tCRITICAL",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\033[") {
		t.Fatalf("plain summary must not contain ANSI sequences: %q", out)
	}
}

func TestFusionReportUI_PrintAnomaliesEmpty(t *testing.T) {
	var buf bytes.Buffer
	NewFusionReportUI(&buf, false).PrintAnomalies(0.8, nil)
	if !strings.Contains(buf.String(), "No cells at or above 0.80") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestFusionReportUI_LogStep(t *testing.T) {
	var buf bytes.Buffer
	NewFusionReportUI(&buf, false).LogStep("success", "grid written")
	if !strings.Contains(buf.String(), "✓") || !strings.Contains(buf.String(), "grid written") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestRenderHeatmap_GlyphPerCell(t *testing.T) {
	h := Heatmap{
		Rows:          2,
		Cols:          3,
		Probabilities: []float64{0.95, 0.85, 0.75, 0.55, 0.1, 0.2},
		Classes:       []string{"CRITICAL", "HIGH", "MODERATE", "LOW", "BACKGROUND", "BACKGROUND"},
	}
	out := RenderHeatmap(h, 10)
	lines := strings.Split(out, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), out)
	}
	for _, g := range []string{"█", "▓", "▒", "░", "·"} {
		if !strings.Contains(out, g) {
			t.Fatalf("expected glyph %q in %q", g, out)
		}
	}
}

func TestRenderHeatmap_DownsamplesKeepingStrongest(t *testing.T) {
	const n = 4
	h := Heatmap{Rows: n, Cols: n, Probabilities: make([]float64, n*n), Classes: make([]string, n*n)}
	for i := range h.Classes {
		h.Classes[i] = "BACKGROUND"
	}
	// One critical cell inside the bottom-right 2x2 block.
	h.Probabilities[3*n+2] = 0.97
	h.Classes[3*n+2] = "CRITICAL"

	out := RenderHeatmap(h, 2)
	lines := strings.Split(out, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 block rows, got %d", len(lines))
	}
	if strings.Count(out, "█") != 1 {
		t.Fatalf("expected exactly one critical block, got %q", out)
	}
	if !strings.Contains(lines[1], "█") {
		t.Fatalf("expected the critical block on the second row, got %q", out)
	}
}

func TestRenderHeatmap_Empty(t *testing.T) {
	if out := RenderHeatmap(Heatmap{}, 10); !strings.Contains(out, "empty grid") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestClassStyle_UnknownIsMuted(t *testing.T) {
	if ClassStyle("nope").Render("x") != ClassBackground.Render("x") {
		t.Fatalf("expected background style for unknown class")
	}
	if ClassStyle("CRITICAL").Render("x") != ClassCritical.Render("x") {
		t.Fatalf("expected critical style")
	}
}

func TestPipeline_FinalRender(t *testing.T) {
	var buf bytes.Buffer
	p := NewPipeline(&buf, false)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	acquire := p.AddStage("Acquiring samples")
	fuse := p.AddStage("Fusing")
	archive := p.AddStage("Archiving run")
	write := p.AddStage("Writing grid")

	p.Start()
	p.StartStage(acquire, "synthetic")
	p.CompleteStage(acquire, "5 modalities")
	p.StartStage(fuse, "")
	p.CompleteStage(fuse, "2500 cells")
	p.SkipStage(archive, "no archive configured")
	p.FailStage(write, "permission denied")
	p.Stop()

	out := buf.String()
	for _, want := range []string{
		"Acquiring samples", "→ 5 modalities (0s)",
		"→ 2500 cells",
		"→ no archive configured",
		"→ permission denied",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\033[A") {
		t.Fatalf("non-animated pipeline must not move the cursor: %q", out)
	}

	stages := p.Stages()
	if stages[fuse].Status != StageDone || stages[write].Status != StageFailed || stages[archive].Status != StageSkipped {
		t.Fatalf("unexpected stage states: %+v", stages)
	}
}

func TestPipeline_StopWithoutStart(t *testing.T) {
	var buf bytes.Buffer
	p := NewPipeline(&buf, false)
	p.AddStage("x")
	p.Stop()
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}

func TestPipeline_OutOfRangeIndexIgnored(t *testing.T) {
	p := NewPipeline(&bytes.Buffer{}, false)
	p.StartStage(3, "x")
	p.CompleteStage(-1, "x")
	if len(p.Stages()) != 0 {
		t.Fatalf("expected no stages")
	}
}

func TestSetupFields_Result(t *testing.T) {
	f := newSetupFields(RunSetup{
		Source:       "synthetic",
		Latitude:     29.9792,
		Longitude:    31.1342,
		RadiusMeters: 5000,
		Rows:         50,
		Cols:         40,
		Modalities:   []string{"sar", "thermal"},
	})
	got, err := f.result()
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if got.Latitude != 29.9792 || got.Longitude != 31.1342 || got.RadiusMeters != 5000 {
		t.Fatalf("unexpected site %+v", got)
	}
	if got.Rows != 50 || got.Cols != 40 || len(got.Modalities) != 2 {
		t.Fatalf("unexpected grid %+v", got)
	}
}

func TestSetupFields_ResultErrors(t *testing.T) {
	base := RunSetup{Source: "synthetic", Latitude: 1, Longitude: 1, RadiusMeters: 10, Rows: 2, Cols: 2, Modalities: []string{"sar"}}
	tests := []struct {
		name   string
		mutate func(f *setupFields)
	}{
		{"latitude out of range", func(f *setupFields) { f.lat = "91" }},
		{"longitude not a number", func(f *setupFields) { f.lon = "east" }},
		{"radius NaN", func(f *setupFields) { f.radius = "NaN" }},
		{"radius zero", func(f *setupFields) { f.radius = "0" }},
		{"rows zero", func(f *setupFields) { f.rows = "0" }},
		{"cols fractional", func(f *setupFields) { f.cols = "2.5" }},
		{"file without path", func(f *setupFields) { f.source = "file" }},
		{"no modalities", func(f *setupFields) { f.modalities = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSetupFields(base)
			tt.mutate(f)
			if _, err := f.result(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func browserRows() []AnomalyRow {
	return []AnomalyRow{
		{Rank: 1, Row: 2, Col: 3, Probability: 0.97, Class: "CRITICAL", Agreeing: 5, Scores: map[string]float64{"sar": 0.9}},
		{Rank: 2, Row: 4, Col: 1, Probability: 0.81, Class: "HIGH", Agreeing: 3},
	}
}

func TestAnomalyBrowser_EnterChoosesSelected(t *testing.T) {
	m := NewAnomalyBrowser("Run run-1", browserRows())
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})

	_, cmd := m.Update(tea.KeyPressMsg{Code: tea.KeyEnter})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if !m.WasConfirmed() {
		t.Fatalf("expected confirmation")
	}
	if c := m.Chosen(); c == nil || c.Rank != 1 {
		t.Fatalf("expected first anomaly chosen, got %+v", c)
	}
}

func TestAnomalyBrowser_EscCancels(t *testing.T) {
	m := NewAnomalyBrowser("Run run-1", browserRows())
	m.Update(tea.KeyPressMsg{Code: tea.KeyEscape})
	if m.WasConfirmed() || m.Chosen() != nil {
		t.Fatalf("expected no confirmation")
	}
}

func TestAnomalyBrowser_DetailView(t *testing.T) {
	m := NewAnomalyBrowser("Run run-1", browserRows())
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m.Update(tea.KeyPressMsg{Code: 'd', Text: "d"})
	if !m.detail {
		t.Fatalf("expected detail view")
	}
	// Esc leaves the detail view before quitting.
	m.Update(tea.KeyPressMsg{Code: tea.KeyEscape})
	if m.detail || m.quitting {
		t.Fatalf("expected to return to the list, detail=%v quitting=%v", m.detail, m.quitting)
	}
}

func TestRenderAnomalyDetail(t *testing.T) {
	out := RenderAnomalyDetail(browserRows()[0])
	for _, want := range []string{"Anomaly #1", "(2,3)", "Agreeing sensors", "sar"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}

func TestRenderRunHistory(t *testing.T) {
	out := RenderRunHistory("sqlite", []RunRow{{
		RunID:          "run-7",
		CreatedAt:      "2026-10-18T09:00:00Z",
		Center:         "29.97920, 31.13420",
		Grid:           "50x50",
		Threshold:      0.7,
		MaxProbability: 0.91,
		Anomalies:      12,
		SensorsUsed:    5,
		Confidence:     "HIGH",
		Digest:         strings.Repeat("ab", 32),
	}})
	for _, want := range []string{"Archived Runs (1)", "sqlite", "run-7", "50x50", "anomalies 12 @ 0.70", strings.Repeat("ab", 12) + "…"} {
		if !strings.Contains(out, want) {
			t.Fatalf("history missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, strings.Repeat("ab", 13)) {
		t.Fatalf("digest should be shortened:\n%s", out)
	}

	if empty := RenderRunHistory("postgres", nil); !strings.Contains(empty, "no runs archived yet") {
		t.Fatalf("unexpected empty history:\n%s", empty)
	}
}

func TestFusionReportUI_PrintHistoryQuiet(t *testing.T) {
	var buf bytes.Buffer
	NewFusionReportUI(&buf, true).PrintHistory("sqlite", []RunRow{{RunID: "run-7", CreatedAt: "t", Anomalies: 3, MaxProbability: 0.8, Digest: "abc"}})
	if got, want := buf.String(), "run-7\tt\t3\t0.8000\tabc\n"; got != want {
		t.Fatalf("PrintHistory() = %q, want %q", got, want)
	}
}
