package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging the config file, TP_* environment
variables, and defaults. The auth token is masked.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfigOnly()
		if err != nil {
			fatal("%v", err)
		}

		out, err := cfg.Dump()
		if err != nil {
			fatal("%v", err)
		}
		fmt.Print(out)
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
