package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/telhawk-systems/fusion-engine/fusion/cli/pkg/output"
	"github.com/telhawk-systems/fusion-engine/fusion/internal/config"
)

var (
	cfgFile      string
	outputFormat string
	noColor      bool
)

var rootCmd = &cobra.Command{
	Use:   "fusionctl",
	Short: "Fusion Engine CLI",
	Long: `fusionctl is the command-line companion of the Fusion Engine geyser plugin.

Inspect the account and transaction streams the plugin writes, follow the
JetStream subjects it publishes to, and drive the plugin with generated
traffic without a validator.`,
	Version:      "0.1.0",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor {
			color.NoColor = true
		}
		return output.ValidateFormat(outputFormat)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "plugin config file (default: built-in defaults and FUSION_* variables)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", output.FormatTable, "output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

func printer(cmd *cobra.Command) *output.Printer {
	return output.New(cmd.OutOrStdout(), cmd.ErrOrStderr())
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}
