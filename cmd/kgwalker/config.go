package main

import (
	"github.com/spf13/cobra"
)

func newConfigCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Long:  "Print the configuration after applying defaults, the config file and KGWALKER_ environment variables.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.config.WriteYAML(cmd.OutOrStdout())
		},
	}
}
