package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/idlab-discover/anomalyfusion-cli/internal/apperr"
	"github.com/idlab-discover/anomalyfusion-cli/internal/geo"
	"github.com/idlab-discover/anomalyfusion-cli/internal/sensor"
	"github.com/idlab-discover/anomalyfusion-cli/internal/ui"
	"github.com/idlab-discover/anomalyfusion-cli/pkg/anomalyfusion"
)

var (
	fuseLat          float64
	fuseLon          float64
	fuseRadius       float64
	fuseRows         int
	fuseCols         int
	fuseSource       string
	fuseSurvey       string
	fuseSeed         uint64
	fuseModalities   []string
	fuseDisable      []string
	fuseOutput       string
	fuseFormat       string
	fuseArchive      string
	fuseTop          int
	fuseThreshold    float64
	fuseLogLevel     string
	fuseInteractive  bool
	fusePlainSummary bool
)

// fuseCmd represents the fuse command
var fuseCmd = &cobra.Command{
	Use:   "fuse",
	Short: "Acquire survey layers and fuse them into an anomaly probability grid",
	Long:  "Acquire SAR, thermal, seismic, gravity and magnetic layers for a site (synthetic or from a survey file), fuse them cell by cell into a probability grid, write the grid and optionally archive the run. Use --interactive for a guided setup.",
	RunE:  runFuse,
}

func runFuse(cmd *cobra.Command, args []string) error {
	level, err := resolveLogLevel("fuse.log-level")
	if err != nil {
		return err
	}
	quiet := level == "quiet"
	wireLogging(level, cmd.ErrOrStderr())

	profile, err := loadProfile()
	if err != nil {
		return err
	}

	opts := anomalyfusion.RunOptions{
		Source:       strings.ToLower(strings.TrimSpace(viper.GetString("fuse.source"))),
		SurveyPath:   viper.GetString("fuse.survey"),
		Center:       geo.Coordinate{Lat: viper.GetFloat64("fuse.lat"), Lon: viper.GetFloat64("fuse.lon")},
		RadiusMeters: viper.GetFloat64("fuse.radius"),
		Rows:         viper.GetInt("fuse.rows"),
		Cols:         viper.GetInt("fuse.cols"),
		Seed:         viper.GetUint64("fuse.seed"),
		Modalities:   viper.GetStringSlice("fuse.modalities"),
		Disabled:     viper.GetStringSlice("fuse.disable"),
		Profile:      &profile,
		OutputPath:   viper.GetString("fuse.output"),
		Format:       viper.GetString("fuse.format"),
		ArchiveDSN:   archiveDSN("fuse.archive"),
		Top:          viper.GetInt("fuse.top"),
	}
	if opts.Source == "" {
		opts.Source = anomalyfusion.SourceSynthetic
	}
	if opts.Source != anomalyfusion.SourceSynthetic && opts.Source != anomalyfusion.SourceFile {
		return apperr.Userf("invalid --source %q (expected synthetic|file)", opts.Source)
	}
	if opts.Source == anomalyfusion.SourceFile && strings.TrimSpace(opts.SurveyPath) == "" {
		return apperr.User("--survey is required with --source file")
	}

	if viper.GetBool("fuse.interactive") {
		if err := applySetupForm(&opts); err != nil {
			return err
		}
	}

	if opts.Source == anomalyfusion.SourceSynthetic {
		req := sensor.Request{Center: opts.Center, RadiusMeters: opts.RadiusMeters, Rows: opts.Rows, Cols: opts.Cols}
		if err := req.Validate(); err != nil {
			return apperr.Input(err)
		}
	}

	out := cmd.OutOrStdout()
	plain := viper.GetBool("fuse.plain-summary")

	var pipeline *ui.Pipeline
	var acquireIdx, fuseIdx, writeIdx, archiveIdx int
	if !quiet && !plain {
		pipeline = ui.NewPipeline(out, isTerminal(out))
		acquireIdx = pipeline.AddStage("Acquiring sensor layers")
		fuseIdx = pipeline.AddStage("Fusing grid")
		writeIdx = pipeline.AddStage("Writing grid")
		archiveIdx = pipeline.AddStage("Archiving run")
		pipeline.Start()
	}

	opts.OnProgress = func(evt anomalyfusion.ProgressEvent) {
		if pipeline == nil {
			return
		}
		switch evt.Type {
		case anomalyfusion.EventAcquireStart:
			pipeline.StartStage(acquireIdx, ui.Dim.Render(evt.Message))
		case anomalyfusion.EventAcquireComplete:
			pipeline.CompleteStage(acquireIdx, fmt.Sprintf("%d/%d modalities", evt.Count, len(sensor.All())))
		case anomalyfusion.EventFuseStart:
			pipeline.StartStage(fuseIdx, ui.Dim.Render(fmt.Sprintf("%d cells", evt.Count)))
		case anomalyfusion.EventFuseComplete:
			pipeline.CompleteStage(fuseIdx, fmt.Sprintf("%d cells, run %s", evt.Count, evt.RunID))
		case anomalyfusion.EventWriteStart:
			pipeline.StartStage(writeIdx, ui.Dim.Render(evt.Message))
		case anomalyfusion.EventWriteComplete:
			pipeline.CompleteStage(writeIdx, evt.Message)
		case anomalyfusion.EventArchiveStart:
			pipeline.StartStage(archiveIdx, ui.Dim.Render(evt.Message))
		case anomalyfusion.EventArchiveComplete:
			pipeline.CompleteStage(archiveIdx, fmt.Sprintf("%d anomalies", evt.Count))
		case anomalyfusion.EventArchiveSkipped:
			pipeline.SkipStage(archiveIdx, "no archive configured")
		case anomalyfusion.EventError:
			failRunning(pipeline, evt.Error)
		}
	}
	if opts.OutputPath == "" && pipeline != nil {
		pipeline.SkipStage(writeIdx, "no output path")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := anomalyfusion.Run(ctx, opts)
	if pipeline != nil {
		pipeline.Stop()
	}
	if err != nil {
		return apperr.Input(err, sensor.ErrInvalidGridDimensions, anomalyfusion.ErrInvalidOptions)
	}

	threshold := profile.Fusion.AnomalyThreshold
	report := reportFor(res.Grid, threshold, res.Ranked)
	report.OutputPath = res.OutputPath
	report.Digest = res.Digest

	r := ui.NewFusionReportUI(out, quiet)
	if plain {
		r.PrintSimpleReport(report)
		return nil
	}
	fmt.Fprintln(out)
	r.PrintReport(report)
	return nil
}

// failRunning marks whichever stage is running as failed.
func failRunning(p *ui.Pipeline, err error) {
	if err == nil {
		return
	}
	for i, s := range p.Stages() {
		if s.Status == ui.StageRunning {
			p.FailStage(i, err.Error())
			return
		}
	}
}

// applySetupForm lets the user adjust the run interactively.
func applySetupForm(opts *anomalyfusion.RunOptions) error {
	names := make([]string, 0, len(sensor.All()))
	for _, m := range sensor.All() {
		names = append(names, m.String())
	}
	setup, err := ui.RunSetupForm(ui.RunSetup{
		Source:       opts.Source,
		SurveyPath:   opts.SurveyPath,
		Latitude:     opts.Center.Lat,
		Longitude:    opts.Center.Lon,
		RadiusMeters: opts.RadiusMeters,
		Rows:         opts.Rows,
		Cols:         opts.Cols,
		Modalities:   opts.Modalities,
	}, names)
	if err != nil {
		return err
	}
	opts.Source = setup.Source
	opts.SurveyPath = setup.SurveyPath
	opts.Center = geo.Coordinate{Lat: setup.Latitude, Lon: setup.Longitude}
	opts.RadiusMeters = setup.RadiusMeters
	opts.Rows = setup.Rows
	opts.Cols = setup.Cols
	opts.Modalities = setup.Modalities
	return nil
}

// isTerminal reports whether w is an interactive terminal; the stage
// spinner only animates there.
func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func init() {
	fuseCmd.Flags().Float64Var(&fuseLat, "lat", 0, "Latitude of the survey center")
	fuseCmd.Flags().Float64Var(&fuseLon, "lon", 0, "Longitude of the survey center")
	fuseCmd.Flags().Float64Var(&fuseRadius, "radius", 0, "Survey radius in meters")
	fuseCmd.Flags().IntVar(&fuseRows, "rows", 0, "Grid rows")
	fuseCmd.Flags().IntVar(&fuseCols, "cols", 0, "Grid columns")
	fuseCmd.Flags().StringVar(&fuseSource, "source", "", "Sample source: synthetic|file")
	fuseCmd.Flags().StringVar(&fuseSurvey, "survey", "", "Survey file (yaml/json) for --source file")
	fuseCmd.Flags().Uint64Var(&fuseSeed, "seed", 0, "Seed of the synthetic survey")
	fuseCmd.Flags().StringSliceVarP(&fuseModalities, "modality", "m", []string{}, "Modalities to acquire (default all) - can be used multiple times or comma-separated")
	fuseCmd.Flags().StringSliceVar(&fuseDisable, "disable", []string{}, "Modalities to treat as unavailable")
	fuseCmd.Flags().StringVarP(&fuseOutput, "output", "o", "", "Output grid path")
	fuseCmd.Flags().StringVarP(&fuseFormat, "format", "f", "", "Output grid format: json|yaml|auto")
	fuseCmd.Flags().StringVar(&fuseArchive, "archive", "", "Archive DSN: SQLite file path or postgres:// URL")
	fuseCmd.Flags().IntVar(&fuseTop, "top", 0, "Number of ranked anomalies to show")
	fuseCmd.Flags().Float64Var(&fuseThreshold, "threshold", 0, "Anomaly threshold (overrides fusion.threshold)")
	fuseCmd.Flags().StringVar(&fuseLogLevel, "log-level", "", "Log level: quiet|standard|debug")
	fuseCmd.Flags().BoolVar(&fuseInteractive, "interactive", false, "Interactive run setup")
	fuseCmd.Flags().BoolVar(&fusePlainSummary, "plain-summary", false, "Print a plain summary (no styling)")

	// Bind all flags to viper for config file support
	viper.BindPFlag("fuse.lat", fuseCmd.Flags().Lookup("lat"))
	viper.BindPFlag("fuse.lon", fuseCmd.Flags().Lookup("lon"))
	viper.BindPFlag("fuse.radius", fuseCmd.Flags().Lookup("radius"))
	viper.BindPFlag("fuse.rows", fuseCmd.Flags().Lookup("rows"))
	viper.BindPFlag("fuse.cols", fuseCmd.Flags().Lookup("cols"))
	viper.BindPFlag("fuse.source", fuseCmd.Flags().Lookup("source"))
	viper.BindPFlag("fuse.survey", fuseCmd.Flags().Lookup("survey"))
	viper.BindPFlag("fuse.seed", fuseCmd.Flags().Lookup("seed"))
	viper.BindPFlag("fuse.modalities", fuseCmd.Flags().Lookup("modality"))
	viper.BindPFlag("fuse.disable", fuseCmd.Flags().Lookup("disable"))
	viper.BindPFlag("fuse.output", fuseCmd.Flags().Lookup("output"))
	viper.BindPFlag("fuse.format", fuseCmd.Flags().Lookup("format"))
	viper.BindPFlag("fuse.archive", fuseCmd.Flags().Lookup("archive"))
	viper.BindPFlag("fuse.top", fuseCmd.Flags().Lookup("top"))
	viper.BindPFlag("fusion.threshold", fuseCmd.Flags().Lookup("threshold"))
	viper.BindPFlag("fuse.log-level", fuseCmd.Flags().Lookup("log-level"))
	viper.BindPFlag("fuse.interactive", fuseCmd.Flags().Lookup("interactive"))
	viper.BindPFlag("fuse.plain-summary", fuseCmd.Flags().Lookup("plain-summary"))
}
