package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/idlab-discover/anomalyfusion-cli/internal/apperr"
	bomio "github.com/idlab-discover/anomalyfusion-cli/internal/io"
	"github.com/idlab-discover/anomalyfusion-cli/internal/provenance"
	"github.com/idlab-discover/anomalyfusion-cli/internal/ui"
)

var (
	provInput       string
	provInputFormat string
	provOutput      string
	provFormat      string
	provSpec        string
	provQR          string
	provQRSize      int
	provThreshold   float64
	provVerify      string
	provLogLevel    string
)

// provenanceCmd represents the provenance command
var provenanceCmd = &cobra.Command{
	Use:   "provenance",
	Short: "Export a CycloneDX provenance BOM for a fused grid",
	Long:  "Describe a fused grid as a CycloneDX BOM: the fusion model, its methodology, one data component per modality and the grid itself with its BLAKE2b digest. Optionally render the run record as a QR code or verify a digest.",
	RunE:  runProvenance,
}

func runProvenance(cmd *cobra.Command, args []string) error {
	level, err := resolveLogLevel("provenance.log-level")
	if err != nil {
		return err
	}
	quiet := level == "quiet"
	wireLogging(level, cmd.ErrOrStderr())
	out := cmd.OutOrStdout()

	input := strings.TrimSpace(viper.GetString("provenance.input"))
	if input == "" {
		return apperr.User("--input is required")
	}
	g, err := bomio.ReadGrid(input, viper.GetString("provenance.input-format"))
	if err != nil {
		return err
	}

	threshold := g.Methodology.AnomalyThreshold
	if cmd.Flags().Changed("threshold") {
		threshold = viper.GetFloat64("provenance.threshold")
	}
	if threshold < 0 || threshold > 1 {
		return apperr.Userf("--threshold %v is outside [0, 1]", threshold)
	}

	if want := strings.TrimSpace(viper.GetString("provenance.verify")); want != "" {
		ok, err := provenance.Verify(g, want)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Userf("digest mismatch for run %s", g.RunID)
		}
		if !quiet {
			fmt.Fprintln(out, ui.FormatStatus("success", ui.FormatKeyValue("Digest verified", g.RunID)))
		}
		return nil
	}

	output := strings.TrimSpace(viper.GetString("provenance.output"))
	format := viper.GetString("provenance.format")
	if output == "" {
		ext := ".json"
		if strings.EqualFold(format, "xml") {
			ext = ".xml"
		}
		output = filepath.Join("dist", "provenance-"+g.RunID+ext)
	}

	version := provenance.ToolVersion()
	if version == "devel" && rootCmd.Version != "" {
		version = rootCmd.Version
	}
	bom, err := provenance.Build(g, provenance.Options{
		ToolName:    "anomalyfusion-cli",
		ToolVersion: version,
		Threshold:   threshold,
	})
	if err != nil {
		return err
	}

	if dir := filepath.Dir(output); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := bomio.WriteBOM(bom, output, format, viper.GetString("provenance.spec")); err != nil {
		return err
	}
	if !quiet {
		fmt.Fprintln(out, ui.FormatStatus("success", ui.FormatKeyValue("Provenance written", output)))
	}

	if qr := strings.TrimSpace(viper.GetString("provenance.qr")); qr != "" {
		rec, err := provenance.NewRecord(g, threshold)
		if err != nil {
			return err
		}
		if err := provenance.WriteQR(rec, qr, viper.GetInt("provenance.qr-size")); err != nil {
			return err
		}
		if !quiet {
			fmt.Fprintln(out, ui.FormatStatus("success", ui.FormatKeyValue("QR record written", qr)))
		}
	}
	return nil
}

func init() {
	provenanceCmd.Flags().StringVarP(&provInput, "input", "i", "", "Path to a fused grid (json/yaml)")
	provenanceCmd.Flags().StringVar(&provInputFormat, "input-format", "auto", "Input grid format: json|yaml|auto")
	provenanceCmd.Flags().StringVarP(&provOutput, "output", "o", "", "Output BOM path (default: dist/provenance-<run>.json)")
	provenanceCmd.Flags().StringVarP(&provFormat, "format", "f", "auto", "Output BOM format: json|xml|auto")
	provenanceCmd.Flags().StringVar(&provSpec, "spec", "", "CycloneDX spec version for output (e.g., 1.4, 1.5, 1.6)")
	provenanceCmd.Flags().StringVar(&provQR, "qr", "", "Also write the run record as a QR code PNG")
	provenanceCmd.Flags().IntVar(&provQRSize, "qr-size", 256, "QR code size in pixels")
	provenanceCmd.Flags().Float64Var(&provThreshold, "threshold", 0, "Anomaly threshold (default: the grid's own)")
	provenanceCmd.Flags().StringVar(&provVerify, "verify", "", "Verify the grid against a digest instead of exporting")
	provenanceCmd.Flags().StringVar(&provLogLevel, "log-level", "", "Log level: quiet|standard|debug")

	viper.BindPFlag("provenance.input", provenanceCmd.Flags().Lookup("input"))
	viper.BindPFlag("provenance.input-format", provenanceCmd.Flags().Lookup("input-format"))
	viper.BindPFlag("provenance.output", provenanceCmd.Flags().Lookup("output"))
	viper.BindPFlag("provenance.format", provenanceCmd.Flags().Lookup("format"))
	viper.BindPFlag("provenance.spec", provenanceCmd.Flags().Lookup("spec"))
	viper.BindPFlag("provenance.qr", provenanceCmd.Flags().Lookup("qr"))
	viper.BindPFlag("provenance.qr-size", provenanceCmd.Flags().Lookup("qr-size"))
	viper.BindPFlag("provenance.threshold", provenanceCmd.Flags().Lookup("threshold"))
	viper.BindPFlag("provenance.verify", provenanceCmd.Flags().Lookup("verify"))
	viper.BindPFlag("provenance.log-level", provenanceCmd.Flags().Lookup("log-level"))
}
