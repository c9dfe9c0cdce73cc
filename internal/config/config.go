// Package config resolves the fusion profile (weights, calibration,
// agreement bonus and anomaly threshold) from viper, so the same values can
// come from a config file, ANOMALYFUSION_* environment variables or flags.
package config

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strconv"

	"github.com/spf13/viper"

	"github.com/idlab-discover/anomalyfusion-cli/internal/fusion"
	"github.com/idlab-discover/anomalyfusion-cli/internal/grid"
	"github.com/idlab-discover/anomalyfusion-cli/internal/scorer"
	"github.com/idlab-discover/anomalyfusion-cli/internal/sensor"
)

// Profile is everything needed to build a fusion engine.
type Profile struct {
	Fusion       fusion.Config
	Calibrations map[sensor.Modality]scorer.Calibration
}

// Default returns the built-in profile.
func Default() Profile {
	return Profile{
		Fusion:       fusion.DefaultConfig(),
		Calibrations: scorer.DefaultCalibrations(),
	}
}

// FromViper overlays every fusion.* key set in v on top of Default.
//
//	fusion.threshold
//	fusion.weights.<modality>
//	fusion.calibration.<modality>.{baseline,ceiling,noise-floor}
//	fusion.agreement.threshold
//	fusion.agreement.tiers.<count>: <bonus>
func FromViper(v *viper.Viper) (Profile, error) {
	p := Default()
	if v == nil {
		return p, nil
	}

	if v.IsSet("fusion.threshold") {
		p.Fusion.AnomalyThreshold = v.GetFloat64("fusion.threshold")
	}

	weightKeys, err := modalityKeys(v, "fusion.weights")
	if err != nil {
		return Profile{}, err
	}
	calKeys, err := modalityKeys(v, "fusion.calibration")
	if err != nil {
		return Profile{}, err
	}

	for _, m := range sensor.All() {
		key := "fusion.weights." + weightKeys[m]
		if v.IsSet(key) {
			p.Fusion.Weights[m] = v.GetFloat64(key)
		}

		c := p.Calibrations[m]
		prefix := "fusion.calibration." + calKeys[m] + "."
		if v.IsSet(prefix + "baseline") {
			c.Baseline = v.GetFloat64(prefix + "baseline")
		}
		if v.IsSet(prefix + "ceiling") {
			c.Ceiling = v.GetFloat64(prefix + "ceiling")
		}
		if v.IsSet(prefix + "noise-floor") {
			c.NoiseFloor = v.GetFloat64(prefix + "noise-floor")
		}
		p.Calibrations[m] = c
	}

	if v.IsSet("fusion.agreement.threshold") {
		p.Fusion.Agreement.Threshold = v.GetFloat64("fusion.agreement.threshold")
	}
	if raw := v.GetStringMap("fusion.agreement.tiers"); len(raw) > 0 {
		tiers := make([]grid.AgreementTier, 0, len(raw))
		for k := range raw {
			n, err := strconv.Atoi(k)
			if err != nil {
				return Profile{}, fmt.Errorf("config: fusion.agreement.tiers: key %q is not a modality count", k)
			}
			tiers = append(tiers, grid.AgreementTier{Count: n, Bonus: v.GetFloat64("fusion.agreement.tiers." + k)})
		}
		sort.Slice(tiers, func(i, j int) bool { return tiers[i].Count > tiers[j].Count })
		p.Fusion.Agreement.Tiers = tiers
	}

	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// modalityKeys maps every modality to the key naming it under section.
// Aliases ("radar", "ir") resolve to their modality; a modality named twice
// is rejected. Modalities absent from the section keep their canonical name
// so environment overrides still apply.
func modalityKeys(v *viper.Viper, section string) (map[sensor.Modality]string, error) {
	keys := make(map[sensor.Modality]string, len(sensor.All()))
	names := slices.Sorted(maps.Keys(v.GetStringMap(section)))
	for _, name := range names {
		m, err := sensor.ParseModality(name)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", section, err)
		}
		if prev, dup := keys[m]; dup {
			return nil, fmt.Errorf("config: %s: %s is set twice (%s, %s)", section, m, prev, name)
		}
		keys[m] = name
	}
	for _, m := range sensor.All() {
		if _, ok := keys[m]; !ok {
			keys[m] = m.String()
		}
	}
	return keys, nil
}

// Validate checks the fusion configuration and every calibration.
func (p Profile) Validate() error {
	if err := p.Fusion.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	for _, m := range sensor.All() {
		c, ok := p.Calibrations[m]
		if !ok {
			return fmt.Errorf("config: no calibration for %s", m)
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("config: fusion.calibration.%s: %w", m, err)
		}
	}
	return nil
}

// Engine builds a fusion engine with a linear scorer from the profile.
func (p Profile) Engine() (*fusion.Engine, error) {
	s, err := scorer.NewLinear(p.Calibrations)
	if err != nil {
		return nil, err
	}
	return fusion.NewEngine(s, p.Fusion)
}
