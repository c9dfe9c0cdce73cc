package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/idlab-discover/anomalyfusion-cli/internal/apperr"
	"github.com/idlab-discover/anomalyfusion-cli/internal/archive"
	"github.com/idlab-discover/anomalyfusion-cli/internal/ui"
)

var (
	historyArchive  string
	historyLimit    int
	historyRun      string
	historyLogLevel string
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived fusion runs",
	Long:  "List the runs stored in the archive (SQLite file or PostgreSQL), newest first. Use --run to list the ranked anomalies archived for one run.",
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	level, err := resolveLogLevel("history.log-level")
	if err != nil {
		return err
	}
	quiet := level == "quiet"
	wireLogging(level, cmd.ErrOrStderr())

	dsn := archiveDSN("history.archive")
	if dsn == "" {
		return apperr.User("--archive (or archive.dsn) is required")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := archive.Open(ctx, dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	r := ui.NewFusionReportUI(out, quiet)

	if runID := viper.GetString("history.run"); runID != "" {
		recs, err := store.Anomalies(ctx, runID)
		if err != nil {
			return err
		}
		rows := make([]ui.AnomalyRow, 0, len(recs))
		for _, a := range recs {
			rows = append(rows, ui.AnomalyRow{
				Rank:        a.Rank,
				Row:         a.Row,
				Col:         a.Col,
				Lat:         a.Location.Lat,
				Lon:         a.Location.Lon,
				Probability: a.Probability,
				Class:       a.Class.String(),
			})
		}
		if quiet {
			r.PrintSimpleReport(ui.FusionReport{RunID: runID, Anomalies: rows})
			return nil
		}
		if len(rows) == 0 {
			fmt.Fprintln(out, ui.FormatStatus("warning", "no anomalies archived for run "+runID))
			return nil
		}
		r.PrintAnomalies(0, rows)
		return nil
	}

	limit := viper.GetInt("history.limit")
	runs, err := store.Runs(ctx, limit)
	if err != nil {
		return err
	}
	rows := make([]ui.RunRow, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, ui.RunRow{
			RunID:          run.RunID,
			CreatedAt:      run.CreatedAt.Format(time.RFC3339),
			Center:         run.Center.String(),
			Grid:           fmt.Sprintf("%dx%d", run.Rows, run.Cols),
			Threshold:      run.Threshold,
			MaxProbability: run.MaxProbability,
			Anomalies:      run.AnomalyCount,
			SensorsUsed:    run.SensorsUsed,
			Confidence:     run.Confidence,
			Digest:         run.Digest,
		})
	}
	r.PrintHistory(store.Driver(), rows)
	return nil
}

func init() {
	historyCmd.Flags().StringVar(&historyArchive, "archive", "", "Archive DSN: SQLite file path or postgres:// URL")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to list")
	historyCmd.Flags().StringVar(&historyRun, "run", "", "List the archived anomalies of this run")
	historyCmd.Flags().StringVar(&historyLogLevel, "log-level", "", "Log level: quiet|standard|debug")

	viper.BindPFlag("history.archive", historyCmd.Flags().Lookup("archive"))
	viper.BindPFlag("history.limit", historyCmd.Flags().Lookup("limit"))
	viper.BindPFlag("history.run", historyCmd.Flags().Lookup("run"))
	viper.BindPFlag("history.log-level", historyCmd.Flags().Lookup("log-level"))
}
