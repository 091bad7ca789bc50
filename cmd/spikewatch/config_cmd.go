package main

import (
	"github.com/spf13/cobra"

	"github.com/srodi/spikewatch/pkg/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect spikewatch configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Long: `show resolves flags, SPIKEWATCH_* environment variables, the config file
and defaults in that order and prints the result.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := loadViper(cmd)
			if err != nil {
				return err
			}
			return config.Dump(v, cmd.OutOrStdout())
		},
	}
	// Same flags as live so `config show --cpu-threshold 90` previews a run.
	addRuntimeFlags(show)
	show.Flags().String(config.KeyMetricsAddr, "", "metrics listen address")

	cmd.AddCommand(show)
	return cmd
}
