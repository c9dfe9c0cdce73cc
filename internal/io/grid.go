package io

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	yaml "go.yaml.in/yaml/v3"

	"github.com/idlab-discover/anomalyfusion-cli/internal/grid"
)

// ReadGrid reads a fusion grid written by WriteGrid and checks its
// invariants.
func ReadGrid(path string, format string) (*grid.Grid, error) {
	actual, err := resolveFormat(path, format, FormatJSON, FormatYAML)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	g, err := DecodeGrid(f, actual)
	if err != nil {
		return nil, fmt.Errorf("read grid %s: %w", path, err)
	}
	return g, nil
}

// WriteGrid writes g to outputPath.
func WriteGrid(g *grid.Grid, outputPath string, format string) error {
	actual, err := resolveFormat(outputPath, format, FormatJSON, FormatYAML)
	if err != nil {
		return err
	}
	if err := checkExt(outputPath, actual); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := EncodeGrid(&buf, g, actual); err != nil {
		return err
	}
	return os.WriteFile(outputPath, buf.Bytes(), 0o644)
}

// EncodeGrid writes g to w in the given format.
func EncodeGrid(w io.Writer, g *grid.Grid, f Format) error {
	if g == nil {
		return fmt.Errorf("encode grid: nil grid")
	}
	switch f {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(g); err != nil {
			return err
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(g)
	default:
		return fmt.Errorf("unsupported grid format: %q", f)
	}
}

// DecodeGrid reads one grid from r and validates it.
func DecodeGrid(r io.Reader, f Format) (*grid.Grid, error) {
	g := new(grid.Grid)
	switch f {
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(g); err != nil {
			return nil, err
		}
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(g); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported grid format: %q", f)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}
