// Package anomalyfusion runs the complete fusion pipeline: acquire sensor
// samples, fuse them into a probability grid, write the grid and optionally
// archive the run. It is the entry point used by the CLI and by programs that
// embed the fusion core.
package anomalyfusion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/idlab-discover/anomalyfusion-cli/internal/archive"
	"github.com/idlab-discover/anomalyfusion-cli/internal/config"
	"github.com/idlab-discover/anomalyfusion-cli/internal/geo"
	"github.com/idlab-discover/anomalyfusion-cli/internal/grid"
	bomio "github.com/idlab-discover/anomalyfusion-cli/internal/io"
	"github.com/idlab-discover/anomalyfusion-cli/internal/provenance"
	"github.com/idlab-discover/anomalyfusion-cli/internal/sensor"
)

// Sample sources.
const (
	SourceSynthetic = "synthetic"
	SourceFile      = "file"
)

// ErrInvalidOptions reports RunOptions that cannot describe a run: an unknown
// source or modality, a file source without a survey, or every modality
// disabled.
var ErrInvalidOptions = errors.New("invalid run options")

// DefaultTop is the number of ranked anomalies kept in a Result.
const DefaultTop = 10

// ProgressCallback is called during a run to report progress
type ProgressCallback func(event ProgressEvent)

// ProgressEvent represents a progress update
type ProgressEvent struct {
	Type    ProgressEventType
	RunID   string
	Message string
	Count   int
	Error   error
}

// ProgressEventType identifies the type of progress event
type ProgressEventType int

const (
	EventAcquireStart ProgressEventType = iota
	EventAcquireComplete
	EventFuseStart
	EventFuseComplete
	EventWriteStart
	EventWriteComplete
	EventArchiveStart
	EventArchiveComplete
	EventArchiveSkipped
	EventError
)

// RunOptions configures a fusion run.
type RunOptions struct {
	// Source is synthetic or file. Empty means synthetic.
	Source     string
	SurveyPath string

	// Site and grid. Ignored for the file source, whose survey carries its own.
	Center       geo.Coordinate
	RadiusMeters float64
	Rows         int
	Cols         int
	Seed         uint64

	// Modalities restricts acquisition (empty means all). Disabled modalities
	// are acquired as unavailable.
	Modalities []string
	Disabled   []string

	// Profile holds weights, calibration and thresholds. Zero value means
	// config.Default().
	Profile *config.Profile

	// OutputPath and Format control where the grid is written. An empty path
	// skips writing.
	OutputPath string
	Format     string

	// ArchiveDSN, when set, archives the run (sqlite path or postgres URL).
	ArchiveDSN string

	// Top caps Result.Ranked. Zero means DefaultTop, negative keeps all.
	Top int

	// Provider overrides the sample source.
	Provider sensor.Provider

	OnProgress ProgressCallback
}

// Result is the outcome of a run.
type Result struct {
	Grid       *grid.Grid
	Summary    grid.Summary
	Ranked     []grid.RankedAnomaly
	Digest     string
	OutputPath string
	Archived   bool
}

func (o RunOptions) emit(evt ProgressEvent) {
	if o.OnProgress != nil {
		o.OnProgress(evt)
	}
}

// Run executes the pipeline. Acquisition honours ctx; fusion itself is
// synchronous.
func Run(ctx context.Context, opts RunOptions) (*Result, error) {
	profile := config.Default()
	if opts.Profile != nil {
		profile = *opts.Profile
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	engine, err := profile.Engine()
	if err != nil {
		return nil, err
	}

	provider, req, err := resolveProvider(opts)
	if err != nil {
		return nil, err
	}

	opts.emit(ProgressEvent{Type: EventAcquireStart, Message: sourceName(opts)})
	batch, err := provider.Acquire(ctx, req)
	if err != nil {
		opts.emit(ProgressEvent{Type: EventError, Error: err})
		return nil, fmt.Errorf("acquire: %w", err)
	}
	available := 0
	for _, m := range sensor.All() {
		if batch.Layer(m).Available() {
			available++
		}
	}
	opts.emit(ProgressEvent{Type: EventAcquireComplete, Count: available})

	opts.emit(ProgressEvent{Type: EventFuseStart, Count: req.Rows * req.Cols})
	g, err := engine.Run(req, batch)
	if err != nil {
		opts.emit(ProgressEvent{Type: EventError, Error: err})
		return nil, err
	}
	threshold := profile.Fusion.AnomalyThreshold
	res := &Result{
		Grid:    g,
		Summary: grid.Summarize(g, threshold),
		Ranked:  grid.Top(grid.ExtractRanked(g, threshold), topN(opts.Top)),
	}
	opts.emit(ProgressEvent{Type: EventFuseComplete, RunID: g.RunID, Count: len(g.Cells)})

	if res.Digest, err = provenance.Digest(g); err != nil {
		return nil, err
	}

	if opts.OutputPath != "" {
		opts.emit(ProgressEvent{Type: EventWriteStart, RunID: g.RunID, Message: opts.OutputPath})
		if err := writeGrid(g, opts.OutputPath, opts.Format); err != nil {
			opts.emit(ProgressEvent{Type: EventError, RunID: g.RunID, Error: err})
			return nil, err
		}
		res.OutputPath = opts.OutputPath
		opts.emit(ProgressEvent{Type: EventWriteComplete, RunID: g.RunID, Message: opts.OutputPath})
	}

	if strings.TrimSpace(opts.ArchiveDSN) == "" {
		opts.emit(ProgressEvent{Type: EventArchiveSkipped, RunID: g.RunID})
		return res, nil
	}
	opts.emit(ProgressEvent{Type: EventArchiveStart, RunID: g.RunID, Message: archive.DriverFor(opts.ArchiveDSN)})
	if err := archiveRun(ctx, opts.ArchiveDSN, g, threshold, res.Digest); err != nil {
		opts.emit(ProgressEvent{Type: EventError, RunID: g.RunID, Error: err})
		return nil, err
	}
	res.Archived = true
	opts.emit(ProgressEvent{Type: EventArchiveComplete, RunID: g.RunID, Count: res.Summary.AboveThreshold})
	return res, nil
}

func topN(n int) int {
	switch {
	case n == 0:
		return DefaultTop
	case n < 0:
		return 0
	default:
		return n
	}
}

func sourceName(opts RunOptions) string {
	switch {
	case opts.Provider != nil:
		return "custom"
	case opts.Source == SourceFile:
		return opts.SurveyPath
	default:
		return SourceSynthetic
	}
}

// resolveProvider builds the provider and the request it is asked for.
func resolveProvider(opts RunOptions) (sensor.Provider, sensor.Request, error) {
	wanted, err := sensor.ParseModalities(opts.Modalities)
	if err != nil {
		return nil, sensor.Request{}, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	disabled, err := sensor.ParseModalities(opts.Disabled)
	if err != nil {
		return nil, sensor.Request{}, fmt.Errorf("%w: disable: %w", ErrInvalidOptions, err)
	}

	req := sensor.Request{
		Center:       opts.Center,
		RadiusMeters: opts.RadiusMeters,
		Rows:         opts.Rows,
		Cols:         opts.Cols,
		Seed:         opts.Seed,
		Modalities:   wanted,
	}

	switch {
	case opts.Provider != nil:
		return opts.Provider, req, nil

	case opts.Source == SourceFile:
		if opts.SurveyPath == "" {
			return nil, sensor.Request{}, fmt.Errorf("%w: file source requires a survey path", ErrInvalidOptions)
		}
		s, err := sensor.LoadSurvey(opts.SurveyPath)
		if err != nil {
			return nil, sensor.Request{}, err
		}
		req.Center = s.Request.Center
		req.RadiusMeters = s.Request.RadiusMeters
		req.Rows = s.Request.Rows
		req.Cols = s.Request.Cols
		req.Modalities = without(wanted, disabled)
		if len(disabled) > 0 && len(req.Modalities) == 0 {
			return nil, sensor.Request{}, fmt.Errorf("%w: every requested modality is disabled", ErrInvalidOptions)
		}
		return sensor.NewSurveyProvider(s, opts.SurveyPath), req, nil

	case opts.Source == "" || opts.Source == SourceSynthetic:
		return sensor.NewSyntheticProvider(disabled...), req, nil

	default:
		return nil, sensor.Request{}, fmt.Errorf("%w: unknown source %q (expected %s|%s)", ErrInvalidOptions, opts.Source, SourceSynthetic, SourceFile)
	}
}

// without returns the requested modalities minus the disabled ones. An empty
// request means all modalities.
func without(wanted, disabled []sensor.Modality) []sensor.Modality {
	if len(disabled) == 0 {
		return wanted
	}
	if len(wanted) == 0 {
		wanted = sensor.All()
	}
	off := make(map[sensor.Modality]bool, len(disabled))
	for _, m := range disabled {
		off[m] = true
	}
	out := make([]sensor.Modality, 0, len(wanted))
	for _, m := range wanted {
		if !off[m] {
			out = append(out, m)
		}
	}
	return out
}

func writeGrid(g *grid.Grid, path, format string) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return bomio.WriteGrid(g, path, format)
}

func archiveRun(ctx context.Context, dsn string, g *grid.Grid, threshold float64, digest string) error {
	store, err := archive.Open(ctx, dsn)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Save(ctx, g, threshold, digest)
}
