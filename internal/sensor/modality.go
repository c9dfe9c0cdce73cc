// Package sensor defines the per-cell sample model for each sensing modality
// and the acquisition boundary that delivers a completed batch of samples
// before fusion starts.
package sensor

import (
	"fmt"
	"strings"
)

// Modality is one independent sensing technique.
type Modality string

const (
	SAR      Modality = "sar"
	Thermal  Modality = "thermal"
	Seismic  Modality = "seismic"
	Gravity  Modality = "gravity"
	Magnetic Modality = "magnetic"
)

var allModalities = []Modality{SAR, Thermal, Seismic, Gravity, Magnetic}

// All returns every supported modality in canonical order.
func All() []Modality {
	out := make([]Modality, len(allModalities))
	copy(out, allModalities)
	return out
}

func (m Modality) String() string { return string(m) }

// Valid reports whether m is one of the supported modalities.
func (m Modality) Valid() bool {
	for _, v := range allModalities {
		if v == m {
			return true
		}
	}
	return false
}

// Unit is the physical unit raw measurements of m are expressed in.
func (m Modality) Unit() string {
	switch m {
	case SAR:
		return "dB"
	case Thermal:
		return "°C"
	case Seismic:
		return "m/s"
	case Gravity:
		return "µGal"
	case Magnetic:
		return "nT"
	default:
		return ""
	}
}

// Label is a short human readable description of the measured quantity.
func (m Modality) Label() string {
	switch m {
	case SAR:
		return "SAR backscatter"
	case Thermal:
		return "Surface temperature"
	case Seismic:
		return "P-wave velocity"
	case Gravity:
		return "Gravity anomaly"
	case Magnetic:
		return "Total magnetic field"
	default:
		return string(m)
	}
}

var modalityAliases = map[string]Modality{
	"radar":    SAR,
	"ir":       Thermal,
	"infrared": Thermal,
	"mag":      Magnetic,
	"grav":     Gravity,
}

// ParseModality parses a modality name, case-insensitively, accepting a few
// common aliases ("radar", "ir", "mag", ...).
func ParseModality(s string) (Modality, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	m := Modality(key)
	if m.Valid() {
		return m, nil
	}
	if alias, ok := modalityAliases[key]; ok {
		return alias, nil
	}
	return "", fmt.Errorf("unknown modality %q (expected sar|thermal|seismic|gravity|magnetic)", s)
}

// ParseModalities parses a list of modality names, dropping blanks and
// duplicates while keeping first-seen order.
func ParseModalities(names []string) ([]Modality, error) {
	var out []Modality
	seen := make(map[Modality]bool)
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		m, err := ParseModality(n)
		if err != nil {
			return nil, err
		}
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out, nil
}
