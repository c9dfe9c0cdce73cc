package config

import (
	"bytes"
	"testing"

	"github.com/spf13/viper"

	"github.com/idlab-discover/anomalyfusion-cli/internal/sensor"
)

func viperFromYAML(t *testing.T, doc string) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewBufferString(doc)); err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}
	return v
}

func TestFromViper_EmptyIsDefault(t *testing.T) {
	p, err := FromViper(viper.New())
	if err != nil {
		t.Fatalf("FromViper() error = %v", err)
	}
	d := Default()
	if p.Fusion.AnomalyThreshold != d.Fusion.AnomalyThreshold {
		t.Fatalf("threshold = %v, want %v", p.Fusion.AnomalyThreshold, d.Fusion.AnomalyThreshold)
	}
	for _, m := range sensor.All() {
		if p.Fusion.Weights[m] != d.Fusion.Weights[m] || p.Calibrations[m] != d.Calibrations[m] {
			t.Fatalf("%s differs from default", m)
		}
	}
	if len(p.Fusion.Agreement.Tiers) != 3 {
		t.Fatalf("tiers = %+v", p.Fusion.Agreement.Tiers)
	}
}

func TestFromViper_Overrides(t *testing.T) {
	v := viperFromYAML(t, `
fusion:
  threshold: 0.8
  weights:
    sar: 0.4
    magnetic: 0
  calibration:
    thermal:
      baseline: 31.5
      noise-floor: 0.05
  agreement:
    threshold: 0.6
    tiers:
      "3": 0.25
      "2": 0.1
`)
	p, err := FromViper(v)
	if err != nil {
		t.Fatalf("FromViper() error = %v", err)
	}
	if p.Fusion.AnomalyThreshold != 0.8 {
		t.Fatalf("threshold = %v", p.Fusion.AnomalyThreshold)
	}
	if p.Fusion.Weights[sensor.SAR] != 0.4 || p.Fusion.Weights[sensor.Magnetic] != 0 || p.Fusion.Weights[sensor.Thermal] != 0.25 {
		t.Fatalf("weights = %v", p.Fusion.Weights)
	}
	th := p.Calibrations[sensor.Thermal]
	if th.Baseline != 31.5 || th.NoiseFloor != 0.05 || th.Ceiling != 5 {
		t.Fatalf("thermal calibration = %+v", th)
	}
	a := p.Fusion.Agreement
	if a.Threshold != 0.6 || len(a.Tiers) != 2 || a.Tiers[0].Count != 3 || a.Tiers[0].Bonus != 0.25 {
		t.Fatalf("agreement = %+v", a)
	}
	if _, err := p.Engine(); err != nil {
		t.Fatalf("Engine() error = %v", err)
	}
}

func TestFromViper_SetOverridesFile(t *testing.T) {
	v := viperFromYAML(t, "fusion:\n  threshold: 0.8\n")
	v.Set("fusion.threshold", 0.55)
	p, err := FromViper(v)
	if err != nil {
		t.Fatalf("FromViper() error = %v", err)
	}
	if p.Fusion.AnomalyThreshold != 0.55 {
		t.Fatalf("threshold = %v, want flag value 0.55", p.Fusion.AnomalyThreshold)
	}
}

func TestFromViper_Invalid(t *testing.T) {
	tcs := map[string]string{
		"weight above one":    "fusion:\n  weights:\n    sar: 1.5\n",
		"unknown modality":    "fusion:\n  weights:\n    lidar: 0.5\n",
		"zero ceiling":        "fusion:\n  calibration:\n    gravity:\n      ceiling: 0\n",
		"threshold above 1":   "fusion:\n  threshold: 3\n",
		"bad tier key":        "fusion:\n  agreement:\n    tiers:\n      all: 0.3\n",
		"all disabled":        "fusion:\n  weights: {sar: 0, thermal: 0, seismic: 0, gravity: 0, magnetic: 0}\n",
		"weight twice":        "fusion:\n  weights:\n    sar: 0.3\n    radar: 0.9\n",
		"calibration twice":   "fusion:\n  calibration:\n    thermal: {baseline: 20}\n    ir: {baseline: 30}\n",
		"unknown calibration": "fusion:\n  calibration:\n    lidar:\n      ceiling: 2\n",
	}
	for name, doc := range tcs {
		t.Run(name, func(t *testing.T) {
			if _, err := FromViper(viperFromYAML(t, doc)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestFromViper_AliasKeys(t *testing.T) {
	v := viperFromYAML(t, `
fusion:
  weights:
    radar: 0.9
  calibration:
    ir:
      baseline: 31
`)
	p, err := FromViper(v)
	if err != nil {
		t.Fatalf("FromViper() error = %v", err)
	}
	if p.Fusion.Weights[sensor.SAR] != 0.9 {
		t.Fatalf("sar weight = %v, want 0.9 from the radar alias", p.Fusion.Weights[sensor.SAR])
	}
	if p.Calibrations[sensor.Thermal].Baseline != 31 {
		t.Fatalf("thermal baseline = %v, want 31 from the ir alias", p.Calibrations[sensor.Thermal].Baseline)
	}
}

func TestFromViper_Nil(t *testing.T) {
	p, err := FromViper(nil)
	if err != nil || p.Fusion.Weights[sensor.Gravity] != 0.15 {
		t.Fatalf("FromViper(nil) = %+v, %v", p, err)
	}
}
