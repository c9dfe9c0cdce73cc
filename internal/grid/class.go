package grid

import (
	"fmt"
	"strings"
)

// Class is the discrete label given to a fused probability.
type Class int

const (
	Background Class = iota
	Low
	Moderate
	High
	Critical
)

// Class thresholds. A probability equal to a threshold belongs to the
// higher class.
const (
	CriticalThreshold = 0.9
	HighThreshold     = 0.8
	ModerateThreshold = 0.7
	LowThreshold      = 0.5
)

var classNames = [...]string{"BACKGROUND", "LOW", "MODERATE", "HIGH", "CRITICAL"}

// Classes returns every class from lowest to highest.
func Classes() []Class {
	return []Class{Background, Low, Moderate, High, Critical}
}

// Classify maps a probability to its class.
func Classify(p float64) Class {
	switch {
	case p >= CriticalThreshold:
		return Critical
	case p >= HighThreshold:
		return High
	case p >= ModerateThreshold:
		return Moderate
	case p >= LowThreshold:
		return Low
	default:
		return Background
	}
}

func (c Class) String() string {
	if c < Background || c > Critical {
		return fmt.Sprintf("Class(%d)", int(c))
	}
	return classNames[c]
}

// Description is a short interpretation of the class for reports.
func (c Class) Description() string {
	switch c {
	case Critical:
		return "Strong multi-sensor evidence of a buried structure"
	case High:
		return "Likely subsurface feature"
	case Moderate:
		return "Possible feature, worth a closer survey"
	case Low:
		return "Weak or single-sensor signal"
	default:
		return "Consistent with background terrain"
	}
}

// ParseClass parses a class name case-insensitively.
func ParseClass(s string) (Class, error) {
	key := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range classNames {
		if n == key {
			return Class(i), nil
		}
	}
	return Background, fmt.Errorf("unknown class %q", s)
}

func (c Class) MarshalText() ([]byte, error) {
	if c < Background || c > Critical {
		return nil, fmt.Errorf("invalid class %d", int(c))
	}
	return []byte(c.String()), nil
}

func (c *Class) UnmarshalText(b []byte) error {
	v, err := ParseClass(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}
