package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/idlab-discover/anomalyfusion-cli/internal/ui"
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "anomalyfusion-cli",
	Short: "Multi-sensor anomaly fusion for archaeological survey",
	Long:  longDescription,

	// Input errors are explained by the command itself; repeating usage
	// after them only hides the message.
	SilenceUsage: true,

	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initUIAndBanner(cmd)
	},

	// When invoked without a subcommand, show help (with banner) instead of
	// printing a plain usage output.
	RunE: func(cmd *cobra.Command, args []string) error {
		initUIAndBanner(cmd)
		return cmd.Help()
	},
}

var cfgFile string
var version string

// SetVersion sets the version for the CLI
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// GetRootCmd returns the root command for use with fang
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.anomalyfusion-cli.yaml or ./config/defaults.yaml)")

	defaultHelp := rootCmd.HelpFunc()
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		initUIAndBanner(cmd)
		defaultHelp(cmd, args)
	})

	rootCmd.AddCommand(fuseCmd, rankCmd, provenanceCmd, historyCmd)
}

func initConfig() {
	// A .env next to the working directory may carry ANOMALYFUSION_* values
	// (archive DSNs with credentials, mostly). It is optional.
	_ = godotenv.Load()

	// Enable environment variable support (e.g., ANOMALYFUSION_ARCHIVE_DSN)
	// Replace dots with underscores: fusion.weights.sar -> ANOMALYFUSION_FUSION_WEIGHTS_SAR
	viper.SetEnvPrefix("ANOMALYFUSION")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
		err := viper.ReadInConfig()
		notFound := &viper.ConfigFileNotFoundError{}
		switch {
		case err != nil && !errors.As(err, notFound):
			cobra.CheckErr(err)
		case err == nil:
			printConfigUsed()
		}
		return
	}

	home, err := os.UserHomeDir()
	cobra.CheckErr(err)

	viper.SetConfigType("yaml")
	viper.AddConfigPath(home)
	viper.AddConfigPath("./config")

	// Try .anomalyfusion-cli first
	viper.SetConfigName(".anomalyfusion-cli")
	err = viper.ReadInConfig()

	// If not found, try defaults.yaml
	notFound := &viper.ConfigFileNotFoundError{}
	if err != nil && errors.As(err, notFound) {
		viper.SetConfigName("defaults")
		err = viper.ReadInConfig()
	}

	if err != nil && !errors.As(err, notFound) {
		cobra.CheckErr(err)
	}

	if err == nil {
		printConfigUsed()
	}
}

func printConfigUsed() {
	configMsg := ui.Dim.Render("Using config file: ") + ui.Secondary.Render(viper.ConfigFileUsed())
	fmt.Fprintln(os.Stderr, configMsg)
}

const longDescription = "Fuses SAR, thermal, seismic, gravity and magnetic survey layers into a per-cell probability grid of buried structures, ranks the anomalies and records the provenance of every run."

func initUIAndBanner(cmd *cobra.Command) {
	if cmd == nil {
		return
	}
	cmd.Root().Long = ui.RenderGradientBanner(ui.BannerASCII) + "\n" + longDescription
}
