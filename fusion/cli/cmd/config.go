package cmd

import (
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect plugin configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration the plugin would run with: the --config file
merged over the defaults, with FUSION_* environment overrides applied. Always YAML.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		data, err := cfg.Dump()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a configuration file without starting the plugin",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := printer(cmd)
		cfg, err := loadConfig()
		if err != nil {
			p.Error("%v", err)
			return err
		}
		p.Success("configuration is valid (backends: %v)", cfg.Storage.Backends)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}
