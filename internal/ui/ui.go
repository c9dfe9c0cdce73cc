package ui

// Raw ANSI codes for the prefixes of the debug loggers (sensor, fusion,
// provenance, archive). Those lines go straight to stderr, outside lipgloss.
const (
	Reset     = "\033[0m"
	FgCyan    = "\033[36m"
	FgGreen   = "\033[32m"
	FgMagenta = "\033[35m"
	FgYellow  = "\033[33m"
	FgRed     = "\033[31m"
)

// Color wraps s with the given ANSI code. An empty code leaves s as is.
func Color(s string, code string) string {
	if code == "" {
		return s
	}
	return code + s + Reset
}
