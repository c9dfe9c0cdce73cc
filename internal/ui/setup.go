package ui

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/idlab-discover/anomalyfusion-cli/internal/apperr"
)

// RunSetup holds the values collected by the interactive fuse setup form.
type RunSetup struct {
	Source       string // synthetic|file
	SurveyPath   string
	Latitude     float64
	Longitude    float64
	RadiusMeters float64
	Rows         int
	Cols         int
	Modalities   []string
}

// setupFields holds the raw form values; huh inputs edit strings.
type setupFields struct {
	source     string
	survey     string
	lat        string
	lon        string
	radius     string
	rows       string
	cols       string
	modalities []string
	confirm    bool
}

func newSetupFields(d RunSetup) *setupFields {
	return &setupFields{
		source:     d.Source,
		survey:     d.SurveyPath,
		lat:        strconv.FormatFloat(d.Latitude, 'f', -1, 64),
		lon:        strconv.FormatFloat(d.Longitude, 'f', -1, 64),
		radius:     strconv.FormatFloat(d.RadiusMeters, 'f', -1, 64),
		rows:       strconv.Itoa(d.Rows),
		cols:       strconv.Itoa(d.Cols),
		modalities: append([]string(nil), d.Modalities...),
		confirm:    true,
	}
}

// result parses the raw values back into a RunSetup.
func (f *setupFields) result() (RunSetup, error) {
	var out RunSetup
	var err error
	out.Source = f.source
	out.SurveyPath = strings.TrimSpace(f.survey)
	if out.Latitude, err = parseBounded(f.lat, -90, 90); err != nil {
		return RunSetup{}, fmt.Errorf("latitude: %w", err)
	}
	if out.Longitude, err = parseBounded(f.lon, -180, 180); err != nil {
		return RunSetup{}, fmt.Errorf("longitude: %w", err)
	}
	if out.RadiusMeters, err = parsePositive(f.radius); err != nil {
		return RunSetup{}, fmt.Errorf("radius: %w", err)
	}
	if out.Rows, err = parseCount(f.rows); err != nil {
		return RunSetup{}, fmt.Errorf("rows: %w", err)
	}
	if out.Cols, err = parseCount(f.cols); err != nil {
		return RunSetup{}, fmt.Errorf("cols: %w", err)
	}
	if out.Source == "file" && out.SurveyPath == "" {
		return RunSetup{}, fmt.Errorf("survey file is required for the file source")
	}
	if len(f.modalities) == 0 {
		return RunSetup{}, fmt.Errorf("select at least one modality")
	}
	out.Modalities = append([]string(nil), f.modalities...)
	return out, nil
}

// RunSetupForm asks for the survey site and grid. defaults pre-fill the form
// and modalities lists the selectable sensor modalities.
func RunSetupForm(defaults RunSetup, modalities []string) (RunSetup, error) {
	f := newSetupFields(defaults)
	if len(f.modalities) == 0 {
		f.modalities = append([]string(nil), modalities...)
	}

	modalityOptions := make([]huh.Option[string], 0, len(modalities))
	for _, m := range modalities {
		modalityOptions = append(modalityOptions, huh.NewOption(m, m))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Anomaly Fusion").
				Description("Describe the survey site.\nValues are pre-filled from flags and config.").
				Next(true).
				NextLabel("Continue"),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Sample source").
				Options(
					huh.NewOption("Synthetic survey (reproducible)", "synthetic"),
					huh.NewOption("Survey file (yaml/json)", "file"),
				).
				Value(&f.source),
			huh.NewInput().
				Title("Survey file").
				Description(Muted.Render("Only used with the file source")).
				Value(&f.survey),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Latitude").
				Value(&f.lat).
				Validate(func(s string) error { _, err := parseBounded(s, -90, 90); return err }),
			huh.NewInput().
				Title("Longitude").
				Value(&f.lon).
				Validate(func(s string) error { _, err := parseBounded(s, -180, 180); return err }),
			huh.NewInput().
				Title("Radius (m)").
				Value(&f.radius).
				Validate(func(s string) error { _, err := parsePositive(s); return err }),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Rows").
				Value(&f.rows).
				Validate(func(s string) error { _, err := parseCount(s); return err }),
			huh.NewInput().
				Title("Columns").
				Value(&f.cols).
				Validate(func(s string) error { _, err := parseCount(s); return err }),
			huh.NewMultiSelect[string]().
				Title("Modalities").
				Options(modalityOptions...).
				Value(&f.modalities),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Run fusion?").
				Value(&f.confirm).
				Affirmative("Run").
				Negative("Cancel"),
		),
	)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return RunSetup{}, apperr.ErrCancelled
		}
		return RunSetup{}, err
	}
	if !f.confirm {
		return RunSetup{}, apperr.ErrCancelled
	}
	return f.result()
}

func parseBounded(s string, lo, hi float64) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a number")
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("must be within [%g, %g]", lo, hi)
	}
	return v, nil
}

func parsePositive(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a number")
	}
	if v <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return v, nil
}

func parseCount(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("not an integer")
	}
	if v <= 0 {
		return 0, fmt.Errorf("must be at least 1")
	}
	return v, nil
}
