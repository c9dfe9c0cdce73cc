package sensor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"math"
	"os"
	"slices"

	yaml "go.yaml.in/yaml/v3"

	"github.com/idlab-discover/anomalyfusion-cli/internal/geo"
	"github.com/idlab-discover/anomalyfusion-cli/internal/logging"
)

// Survey is an acquired dataset read from disk: the request it was taken for
// and the per-modality grids.
type Survey struct {
	Request Request
	Batch   *Batch
}

// surveyFile is the on-disk schema. JSON documents decode through the same
// YAML decoder.
type surveyFile struct {
	Name         string                 `yaml:"name"`
	Center       *geo.Coordinate        `yaml:"center"`
	RadiusMeters float64                `yaml:"radiusMeters"`
	Rows         int                    `yaml:"rows"`
	Cols         int                    `yaml:"cols"`
	Layers       map[string]surveyLayer `yaml:"layers"`
}

type surveyLayer struct {
	Unavailable bool         `yaml:"unavailable"`
	Reason      string       `yaml:"reason"`
	Source      string       `yaml:"source"`
	Unit        string       `yaml:"unit"`
	Baseline    *float64     `yaml:"baseline"`
	Values      [][]*float64 `yaml:"values"`
}

// ReadSurvey decodes and validates a survey document (YAML or JSON).
func ReadSurvey(r io.Reader) (*Survey, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var f surveyFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode survey: %w", err)
	}

	if f.Center == nil {
		return nil, fmt.Errorf("survey: center is required")
	}
	req := Request{
		Center:       *f.Center,
		RadiusMeters: f.RadiusMeters,
		Rows:         f.Rows,
		Cols:         f.Cols,
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("survey: %w", err)
	}

	batch := NewBatch(f.Rows, f.Cols)
	seen := make(map[Modality]string, len(f.Layers))
	for _, name := range slices.Sorted(maps.Keys(f.Layers)) {
		sl := f.Layers[name]
		m, err := ParseModality(name)
		if err != nil {
			return nil, fmt.Errorf("survey: %w", err)
		}
		if prev, dup := seen[m]; dup {
			return nil, fmt.Errorf("survey: duplicate layer for %s (%s, %s)", m, prev, name)
		}
		seen[m] = name
		if sl.Unit != "" && sl.Unit != m.Unit() {
			return nil, fmt.Errorf("survey: %s layer unit %q, expected %q", m, sl.Unit, m.Unit())
		}
		if sl.Unavailable {
			batch.Set(UnavailableLayer(m, sl.Reason))
			continue
		}
		if sl.Baseline != nil && (math.IsNaN(*sl.Baseline) || math.IsInf(*sl.Baseline, 0)) {
			return nil, fmt.Errorf("survey: %s baseline is not finite", m)
		}
		batch.Set(&Layer{
			Modality: m,
			Values:   materialize(sl.Values),
			Baseline: sl.Baseline,
			Source:   sl.Source,
		})
	}

	for _, m := range All() {
		if _, ok := batch.Layers[m]; !ok {
			batch.Set(UnavailableLayer(m, "not present in survey"))
		}
	}

	if err := batch.Validate(); err != nil {
		return nil, fmt.Errorf("survey: %w", err)
	}
	return &Survey{Request: req, Batch: batch}, nil
}

// LoadSurvey reads a survey file from disk.
func LoadSurvey(path string) (*Survey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadSurvey(f)
}

func materialize(in [][]*float64) [][]float64 {
	out := make([][]float64, len(in))
	for i, row := range in {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			if v == nil {
				out[i][j] = math.NaN()
				continue
			}
			out[i][j] = *v
		}
	}
	return out
}

// FileProvider serves a survey as a Provider. The file at Path is read on
// Acquire unless Survey was already loaded.
type FileProvider struct {
	Path   string
	Survey *Survey
}

func NewFileProvider(path string) *FileProvider { return &FileProvider{Path: path} }

// NewSurveyProvider serves an already decoded survey; path only labels it.
func NewSurveyProvider(s *Survey, path string) *FileProvider {
	return &FileProvider{Path: path, Survey: s}
}

func (p *FileProvider) Acquire(ctx context.Context, req Request) (*Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := p.Survey
	if s == nil {
		var err error
		if s, err = LoadSurvey(p.Path); err != nil {
			return nil, err
		}
	}
	if req.Rows != 0 || req.Cols != 0 {
		if req.Rows != s.Batch.Rows || req.Cols != s.Batch.Cols {
			return nil, fmt.Errorf("%w: requested %dx%d, survey %s is %dx%d",
				ErrInvalidGridDimensions, req.Rows, req.Cols, p.Path, s.Batch.Rows, s.Batch.Cols)
		}
	}

	// A fresh batch per call; the loaded survey is never mutated.
	batch := NewBatch(s.Batch.Rows, s.Batch.Cols)
	for _, m := range All() {
		if req.Wants(m) {
			batch.Set(s.Batch.Layer(m))
		} else {
			batch.Set(UnavailableLayer(m, "not requested"))
		}
	}
	logkv("", "survey loaded", logging.F("path", p.Path), logging.F("rows", batch.Rows), logging.F("cols", batch.Cols))
	return batch, nil
}
