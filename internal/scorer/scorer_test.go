package scorer

import (
	"math"
	"testing"

	"github.com/idlab-discover/anomalyfusion-cli/internal/sensor"
)

func TestLinear_Score(t *testing.T) {
	s := Default()

	tcs := []struct {
		name string
		m    sensor.Modality
		raw  float64
		want float64
	}{
		{"at baseline is noise floor", sensor.Thermal, 25, 0.1},
		{"half ceiling", sensor.Thermal, 27.5, 0.55},
		{"below baseline is symmetric", sensor.Thermal, 22.5, 0.55},
		{"saturates at ceiling", sensor.Magnetic, 38100, 1},
		{"saturates beyond ceiling", sensor.Gravity, -900, 1},
		{"sar negative baseline", sensor.SAR, -10, 0.55},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := s.Score(tc.m, tc.raw, s.Baseline(tc.m))
			if !ok {
				t.Fatalf("Score() not ok")
			}
			if math.Abs(got-tc.want) > 1e-12 {
				t.Fatalf("Score() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestLinear_Score_NonFiniteExcluded(t *testing.T) {
	s := Default()
	for _, raw := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, ok := s.Score(sensor.SAR, raw, -15); ok {
			t.Fatalf("Score(%v) should be excluded", raw)
		}
	}
	if _, ok := s.Score(sensor.SAR, -15, math.NaN()); ok {
		t.Fatalf("NaN baseline should be excluded")
	}
	if _, ok := s.Score(sensor.Modality("lidar"), 1, 0); ok {
		t.Fatalf("unknown modality should be excluded")
	}
}

func TestLinear_Score_MonotoneAndBounded(t *testing.T) {
	s := Default()
	for _, m := range sensor.All() {
		c, _ := s.Calibration(m)
		prev := -1.0
		for k := 0; k <= 40; k++ {
			dev := float64(k) * c.Ceiling / 20
			got, ok := s.Score(m, c.Baseline+dev, c.Baseline)
			if !ok {
				t.Fatalf("%s: Score() not ok", m)
			}
			if got < 0 || got > 1 {
				t.Fatalf("%s: score %v out of [0,1]", m, got)
			}
			if got < prev {
				t.Fatalf("%s: score decreased from %v to %v at deviation %v", m, prev, got, dev)
			}
			prev = got
		}
		if math.Abs(prev-1) > 1e-12 {
			t.Fatalf("%s: score beyond ceiling = %v, want 1", m, prev)
		}
	}
}

func TestNewLinear_Validation(t *testing.T) {
	cal := DefaultCalibrations()
	cal[sensor.Gravity] = Calibration{Baseline: 0, Ceiling: 0, NoiseFloor: 0.1}
	if _, err := NewLinear(cal); err == nil {
		t.Fatalf("expected error for zero ceiling")
	}

	cal = DefaultCalibrations()
	cal[sensor.SAR] = Calibration{Baseline: -15, Ceiling: 10, NoiseFloor: 1}
	if _, err := NewLinear(cal); err == nil {
		t.Fatalf("expected error for noise floor 1")
	}

	cal = DefaultCalibrations()
	delete(cal, sensor.Seismic)
	if _, err := NewLinear(cal); err == nil {
		t.Fatalf("expected error for missing calibration")
	}

	cal = DefaultCalibrations()
	cal[sensor.Modality("sonar")] = Calibration{Ceiling: 1}
	if _, err := NewLinear(cal); err == nil {
		t.Fatalf("expected error for unknown modality")
	}
}

func TestNewLinear_CopiesInput(t *testing.T) {
	cal := DefaultCalibrations()
	s, err := NewLinear(cal)
	if err != nil {
		t.Fatalf("NewLinear() error = %v", err)
	}
	cal[sensor.Thermal] = Calibration{Baseline: 99, Ceiling: 1}
	if s.Baseline(sensor.Thermal) != 25 {
		t.Fatalf("scorer calibration changed after construction")
	}
}
