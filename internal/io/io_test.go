package io

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	cdx "github.com/CycloneDX/cyclonedx-go"

	"github.com/idlab-discover/anomalyfusion-cli/internal/geo"
	"github.com/idlab-discover/anomalyfusion-cli/internal/grid"
	"github.com/idlab-discover/anomalyfusion-cli/internal/sensor"
)

func sampleGrid() *grid.Grid {
	g := &grid.Grid{
		RunID:        "0f8fad5b-d9cb-469f-a165-70867728950e",
		CreatedAt:    time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC),
		Center:       geo.Coordinate{Lat: 29.9792, Lon: 31.1342},
		RadiusMeters: 5000,
		Bounds:       geo.Bounds{North: 30.02, South: 29.93, East: 31.18, West: 31.08},
		Rows:         1,
		Cols:         2,
		Methodology: grid.Methodology{
			Weights:            map[sensor.Modality]float64{sensor.SAR: 0.25, sensor.Thermal: 0.25},
			AgreementThreshold: 0.5,
			AgreementTiers:     []grid.AgreementTier{{Count: 5, Bonus: 0.3}},
			AnomalyThreshold:   0.7,
		},
		Availability: []grid.Availability{
			{Modality: sensor.SAR, Status: grid.StatusAvailable, CellsCovered: 2, Weight: 0.25, Source: "synthetic:sar"},
			{Modality: sensor.Gravity, Status: grid.StatusUnavailable, Reason: "offline"},
		},
	}
	g.Cells = []grid.Cell{
		{
			Row: 0, Col: 0, Center: geo.Coordinate{Lat: 29.99, Lon: 31.11},
			Probability: 0.9312345678901234, Combined: 0.8, AgreementBonus: 0.1, Agreeing: 3,
			Class:  grid.Critical,
			Scores: map[sensor.Modality]float64{sensor.SAR: 0.91, sensor.Thermal: 1.0 / 3.0},
		},
		{
			Row: 0, Col: 1, Center: geo.Coordinate{Lat: 29.99, Lon: 31.15},
			Probability: 0.1, Combined: 0.1, Class: grid.Background,
			Scores: map[sensor.Modality]float64{},
		},
	}
	return g
}

func assertSameGrid(t *testing.T, want, got *grid.Grid) {
	t.Helper()
	if got.RunID != want.RunID || !got.CreatedAt.Equal(want.CreatedAt) {
		t.Fatalf("run metadata = %q %v", got.RunID, got.CreatedAt)
	}
	if got.Rows != want.Rows || got.Cols != want.Cols || got.Bounds != want.Bounds {
		t.Fatalf("geometry mismatch: %+v", got)
	}
	if len(got.Availability) != len(want.Availability) || got.Availability[1].Reason != "offline" {
		t.Fatalf("availability = %+v", got.Availability)
	}
	if got.Methodology.Weights[sensor.SAR] != 0.25 || got.Methodology.AgreementTiers[0].Bonus != 0.3 {
		t.Fatalf("methodology = %+v", got.Methodology)
	}
	for i := range want.Cells {
		w, c := want.Cells[i], got.Cells[i]
		if c.Probability != w.Probability || c.Combined != w.Combined || c.Class != w.Class || c.AgreementBonus != w.AgreementBonus {
			t.Fatalf("cell %d = %+v, want %+v", i, c, w)
		}
		if len(c.Scores) != len(w.Scores) {
			t.Fatalf("cell %d scores = %v, want %v", i, c.Scores, w.Scores)
		}
		for m, s := range w.Scores {
			if c.Scores[m] != s {
				t.Fatalf("cell %d %s score = %v, want %v", i, m, c.Scores[m], s)
			}
		}
	}
}

func TestGrid_RoundTrip(t *testing.T) {
	for _, name := range []string{"grid.json", "grid.yaml", "grid.yml"} {
		t.Run(name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), name)
			want := sampleGrid()
			if err := WriteGrid(want, out, "auto"); err != nil {
				t.Fatalf("WriteGrid: %v", err)
			}
			got, err := ReadGrid(out, "")
			if err != nil {
				t.Fatalf("ReadGrid: %v", err)
			}
			assertSameGrid(t, want, got)
		})
	}
}

func TestGrid_JSONUsesClassNames(t *testing.T) {
	out := filepath.Join(t.TempDir(), "grid.json")
	if err := WriteGrid(sampleGrid(), out, "json"); err != nil {
		t.Fatalf("WriteGrid: %v", err)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(b), `"class": "CRITICAL"`) {
		t.Fatalf("expected class names in output:\n%s", b)
	}
}

func TestWriteGrid_FormatErrors(t *testing.T) {
	dir := t.TempDir()
	if err := WriteGrid(sampleGrid(), filepath.Join(dir, "grid.json"), "yaml"); err == nil {
		t.Fatalf("expected extension mismatch error")
	}
	if err := WriteGrid(sampleGrid(), filepath.Join(dir, "grid.xml"), "auto"); err == nil {
		t.Fatalf("expected unsupported format error for xml grid")
	}
	if err := WriteGrid(nil, filepath.Join(dir, "grid.json"), "json"); err == nil {
		t.Fatalf("expected error for nil grid")
	}
}

func TestReadGrid_RejectsInvalidGrid(t *testing.T) {
	p := filepath.Join(t.TempDir(), "grid.json")
	if err := os.WriteFile(p, []byte(`{"rows":2,"cols":2,"cells":[]}`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := ReadGrid(p, "auto"); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, err := ReadGrid(filepath.Join(t.TempDir(), "missing.json"), "auto"); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func minimalBOM() *cdx.BOM {
	bom := cdx.NewBOM()
	bom.SpecVersion = cdx.SpecVersion1_6
	bom.Metadata = &cdx.Metadata{
		Component: &cdx.Component{
			Type: cdx.ComponentTypeMachineLearningModel,
			Name: "multi-sensor-anomaly-fusion",
		},
	}
	return bom
}

func TestParseSpecVersion(t *testing.T) {
	tcs := []struct {
		in   string
		want cdx.SpecVersion
		ok   bool
	}{
		{"1.5", cdx.SpecVersion1_5, true},
		{"1.6", cdx.SpecVersion1_6, true},
		{" 1.6 ", cdx.SpecVersion1_6, true},
		{"1.4", cdx.SpecVersion1_6, false},
		{"", cdx.SpecVersion1_6, false},
		{"nope", cdx.SpecVersion1_6, false},
	}
	for _, tc := range tcs {
		got, ok := ParseSpecVersion(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParseSpecVersion(%q) = (%v,%v), want (%v,%v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestBOM_RoundTrip(t *testing.T) {
	for _, name := range []string{"bom.json", "bom.xml"} {
		t.Run(name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), name)
			if err := WriteBOM(minimalBOM(), out, "auto", "1.6"); err != nil {
				t.Fatalf("WriteBOM: %v", err)
			}
			got, err := ReadBOM(out, "auto")
			if err != nil {
				t.Fatalf("ReadBOM: %v", err)
			}
			if got.Metadata == nil || got.Metadata.Component == nil || got.Metadata.Component.Name != "multi-sensor-anomaly-fusion" {
				t.Fatalf("roundtrip BOM missing metadata.component.name")
			}
		})
	}
}

func TestWriteBOM_Errors(t *testing.T) {
	dir := t.TempDir()
	if err := WriteBOM(minimalBOM(), filepath.Join(dir, "bom.json"), "xml", ""); err == nil {
		t.Fatalf("expected extension mismatch error")
	}
	if err := WriteBOM(minimalBOM(), filepath.Join(dir, "bom.json"), "yaml", ""); err == nil {
		t.Fatalf("expected unsupported format error")
	}
	if err := WriteBOM(minimalBOM(), filepath.Join(dir, "bom.json"), "json", "1.2"); err == nil {
		t.Fatalf("expected unsupported spec error")
	}
}

func TestReadBOM_DecodeError(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bom.json")
	if err := os.WriteFile(p, []byte(`{`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := ReadBOM(p, "json"); err == nil {
		t.Fatalf("expected decode error for invalid JSON")
	}
}
