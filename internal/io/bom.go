package io

import (
	"fmt"
	"os"
	"strings"

	cdx "github.com/CycloneDX/cyclonedx-go"
)

// ReadBOM reads a provenance BOM (JSON or XML). "auto" picks the format from
// the file extension.
func ReadBOM(path string, format string) (*cdx.BOM, error) {
	actual, err := resolveFormat(path, format, FormatJSON, FormatXML)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	bom := new(cdx.BOM)
	if err := cdx.NewBOMDecoder(f, bomFileFormat(actual)).Decode(bom); err != nil {
		return nil, err
	}
	return bom, nil
}

// WriteBOM writes a provenance BOM. If spec is set, the BOM is encoded for
// that CycloneDX version.
func WriteBOM(bom *cdx.BOM, outputPath string, format string, spec string) error {
	actual, err := resolveFormat(outputPath, format, FormatJSON, FormatXML)
	if err != nil {
		return err
	}
	if err := checkExt(outputPath, actual); err != nil {
		return err
	}

	sv := cdx.SpecVersion1_6
	if spec != "" {
		var ok bool
		if sv, ok = ParseSpecVersion(spec); !ok {
			return fmt.Errorf("unsupported CycloneDX spec version: %q", spec)
		}
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := cdx.NewBOMEncoder(f, bomFileFormat(actual))
	encoder.SetPretty(true)
	if spec == "" {
		return encoder.Encode(bom)
	}
	return encoder.EncodeVersion(bom, sv)
}

func bomFileFormat(f Format) cdx.BOMFileFormat {
	if f == FormatXML {
		return cdx.BOMFileFormatXML
	}
	return cdx.BOMFileFormatJSON
}

// ParseSpecVersion parses a CycloneDX spec version. Model cards need at
// least 1.5, so older versions are rejected.
func ParseSpecVersion(s string) (cdx.SpecVersion, bool) {
	switch strings.TrimSpace(s) {
	case "1.5":
		return cdx.SpecVersion1_5, true
	case "1.6":
		return cdx.SpecVersion1_6, true
	default:
		return cdx.SpecVersion1_6, false
	}
}
