package fusion

import (
	"errors"
	"fmt"

	"github.com/idlab-discover/anomalyfusion-cli/internal/sensor"
)

// ErrInvalidGridDimensions is returned before any computation when the
// requested grid is empty or a layer does not match it.
var ErrInvalidGridDimensions = sensor.ErrInvalidGridDimensions

// OutOfRangeScoreError reports a scorer that returned a value outside [0,1].
// It indicates a miscalibrated scorer and aborts the run.
type OutOfRangeScoreError struct {
	Modality sensor.Modality
	Row, Col int
	Score    float64
}

func (e *OutOfRangeScoreError) Error() string {
	return fmt.Sprintf("scorer returned %v for %s at (%d,%d), outside [0,1]", e.Score, e.Modality, e.Row, e.Col)
}

// IsOutOfRange reports whether err is (or wraps) an *OutOfRangeScoreError.
func IsOutOfRange(err error) bool {
	var e *OutOfRangeScoreError
	return errors.As(err, &e)
}
