// Package logging is the debug log shared by the acquisition, fusion,
// provenance and archive packages. Every line is scoped to a fusion run and
// carries key=value fields in call order:
//
//	<ColoredPrefix> run=<runID> <message> [key=value ...]
//
// Run IDs are UUIDs; only their first block is printed unless FullRunID is
// set. Lines written before a run has an identifier show run=(pending).
package logging

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/idlab-discover/anomalyfusion-cli/internal/ui"
)

// Field is one key=value pair appended to a log line.
type Field struct {
	Key   string
	Value any
}

// F builds a Field.
func F(key string, value any) Field { return Field{Key: key, Value: value} }

// Logger writes run-scoped debug lines. A nil Logger or one without a
// Writer discards everything.
type Logger struct {
	Writer io.Writer

	PrefixText  string
	PrefixColor string

	// FullRunID prints the whole run identifier instead of its first block.
	FullRunID bool

	// Acquisition logs from concurrent sensor goroutines share one writer.
	mu sync.Mutex
}

func (l *Logger) SetWriter(w io.Writer) {
	l.mu.Lock()
	l.Writer = w
	l.mu.Unlock()
}

func (l *Logger) Enabled() bool { return l != nil && l.Writer != nil }

// Logf writes a formatted message without fields.
func (l *Logger) Logf(runID string, format string, args ...any) {
	if !l.Enabled() {
		return
	}
	l.Log(runID, fmt.Sprintf(format, args...))
}

// Log writes msg followed by fields in call order.
func (l *Logger) Log(runID string, msg string, fields ...Field) {
	if !l.Enabled() {
		return
	}
	prefix := l.PrefixText
	if prefix == "" {
		prefix = "Log:"
	}
	if l.PrefixColor != "" {
		prefix = ui.Color(prefix, l.PrefixColor)
	}

	var sb strings.Builder
	sb.WriteString(prefix)
	sb.WriteString(" run=")
	sb.WriteString(l.runLabel(runID))
	sb.WriteByte(' ')
	sb.WriteString(msg)
	for _, f := range fields {
		sb.WriteByte(' ')
		sb.WriteString(f.Key)
		sb.WriteByte('=')
		sb.WriteString(formatValue(f.Value))
	}
	sb.WriteByte('\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	io.WriteString(l.Writer, sb.String())
}

func (l *Logger) runLabel(runID string) string {
	r := strings.TrimSpace(runID)
	if r == "" {
		return "(pending)"
	}
	if !l.FullRunID {
		if i := strings.IndexByte(r, '-'); i > 0 {
			return r[:i]
		}
	}
	return r
}

func formatValue(v any) string {
	var s string
	switch x := v.(type) {
	case float64:
		s = strconv.FormatFloat(x, 'g', 4, 64)
	case float32:
		s = strconv.FormatFloat(float64(x), 'g', 4, 32)
	case error:
		s = x.Error()
	case fmt.Stringer:
		s = x.String()
	default:
		s = fmt.Sprint(x)
	}
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}
