// Package io reads and writes the documents the CLI exchanges with the file
// system: fusion grids (JSON or YAML) and provenance BOMs (JSON or XML).
package io

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format is a document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatXML  Format = "xml"
)

// formatFromExt guesses the format of path; unknown extensions are JSON.
func formatFromExt(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml":
		return FormatXML
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// resolveFormat turns a user supplied format ("auto" or empty meaning "by
// extension") into one of allowed.
func resolveFormat(path, format string, allowed ...Format) (Format, error) {
	actual := Format(strings.ToLower(strings.TrimSpace(format)))
	if actual == "" || actual == "auto" {
		actual = formatFromExt(path)
	}
	for _, a := range allowed {
		if a == actual {
			return actual, nil
		}
	}
	return "", fmt.Errorf("unsupported format %q (expected %s)", format, joinFormats(allowed))
}

// checkExt rejects an output path whose extension contradicts the format.
func checkExt(path string, f Format) error {
	ext := strings.ToLower(filepath.Ext(path))
	ok := false
	switch f {
	case FormatJSON:
		ok = ext == ".json"
	case FormatXML:
		ok = ext == ".xml"
	case FormatYAML:
		ok = ext == ".yaml" || ext == ".yml"
	}
	if !ok {
		return fmt.Errorf("output path extension %q does not match format %q", filepath.Ext(path), f)
	}
	return nil
}

func joinFormats(fs []Format) string {
	parts := make([]string, 0, len(fs)+1)
	for _, f := range fs {
		parts = append(parts, string(f))
	}
	parts = append(parts, "auto")
	return strings.Join(parts, "|")
}
