package fusion

import (
	"io"

	"github.com/idlab-discover/anomalyfusion-cli/internal/logging"
	"github.com/idlab-discover/anomalyfusion-cli/internal/ui"
)

var logger = &logging.Logger{PrefixText: "Fusion:", PrefixColor: ui.FgCyan}

// SetLogger sets an optional destination for fusion logs.
func SetLogger(w io.Writer) { logger.SetWriter(w) }

func logf(runID string, format string, args ...any) {
	logger.Logf(runID, format, args...)
}

func logkv(runID string, msg string, fields ...logging.Field) {
	logger.Log(runID, msg, fields...)
}
