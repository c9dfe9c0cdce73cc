package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/idlab-discover/anomalyfusion-cli/internal/apperr"
	"github.com/idlab-discover/anomalyfusion-cli/internal/grid"
	bomio "github.com/idlab-discover/anomalyfusion-cli/internal/io"
	"github.com/idlab-discover/anomalyfusion-cli/internal/ui"
)

var (
	rankInput        string
	rankFormat       string
	rankThreshold    float64
	rankTop          int
	rankBrowse       bool
	rankPlainSummary bool
	rankLogLevel     string
)

// rankCmd represents the rank command
var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank the anomalies of a fused grid",
	Long:  "Read a fused grid, extract every cell at or above the anomaly threshold ordered by probability and print the top entries. Use --browse to explore them interactively.",
	RunE:  runRank,
}

func runRank(cmd *cobra.Command, args []string) error {
	level, err := resolveLogLevel("rank.log-level")
	if err != nil {
		return err
	}
	quiet := level == "quiet"
	wireLogging(level, cmd.ErrOrStderr())

	input := strings.TrimSpace(viper.GetString("rank.input"))
	if input == "" {
		return apperr.User("--input is required")
	}
	g, err := bomio.ReadGrid(input, viper.GetString("rank.format"))
	if err != nil {
		return err
	}

	threshold := g.Methodology.AnomalyThreshold
	if cmd.Flags().Changed("threshold") {
		threshold = viper.GetFloat64("rank.threshold")
	}
	if threshold < 0 || threshold > 1 {
		return apperr.Userf("--threshold %v is outside [0, 1]", threshold)
	}

	top := viper.GetInt("rank.top")
	if top == 0 {
		top = 10
	}
	if top < 0 {
		top = 0
	}
	ranked := grid.Top(grid.ExtractRanked(g, threshold), top)
	rows := anomalyRows(ranked)

	out := cmd.OutOrStdout()
	if viper.GetBool("rank.browse") {
		chosen, err := ui.RunAnomalyBrowser(fmt.Sprintf("Anomalies of run %s", g.RunID), rows)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, ui.RenderAnomalyDetail(*chosen))
		return nil
	}

	r := ui.NewFusionReportUI(out, quiet)
	if viper.GetBool("rank.plain-summary") {
		report := reportFor(g, threshold, ranked)
		r.PrintSimpleReport(report)
		return nil
	}
	r.PrintAnomalies(threshold, rows)
	return nil
}

func init() {
	rankCmd.Flags().StringVarP(&rankInput, "input", "i", "", "Path to a fused grid (json/yaml)")
	rankCmd.Flags().StringVarP(&rankFormat, "format", "f", "auto", "Input grid format: json|yaml|auto")
	rankCmd.Flags().Float64Var(&rankThreshold, "threshold", 0, "Anomaly threshold (default: the grid's own)")
	rankCmd.Flags().IntVar(&rankTop, "top", 0, "Number of anomalies to list (negative lists all)")
	rankCmd.Flags().BoolVar(&rankBrowse, "browse", false, "Browse anomalies interactively")
	rankCmd.Flags().BoolVar(&rankPlainSummary, "plain-summary", false, "Print a plain summary (no styling)")
	rankCmd.Flags().StringVar(&rankLogLevel, "log-level", "", "Log level: quiet|standard|debug")

	viper.BindPFlag("rank.input", rankCmd.Flags().Lookup("input"))
	viper.BindPFlag("rank.format", rankCmd.Flags().Lookup("format"))
	viper.BindPFlag("rank.threshold", rankCmd.Flags().Lookup("threshold"))
	viper.BindPFlag("rank.top", rankCmd.Flags().Lookup("top"))
	viper.BindPFlag("rank.browse", rankCmd.Flags().Lookup("browse"))
	viper.BindPFlag("rank.plain-summary", rankCmd.Flags().Lookup("plain-summary"))
	viper.BindPFlag("rank.log-level", rankCmd.Flags().Lookup("log-level"))
}
