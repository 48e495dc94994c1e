package main

import (
	"github.com/spf13/cobra"

	"helicase/internal/version"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var socketFlag string

	rootCmd := &cobra.Command{
		Use:           "helicase",
		Short:         "Operator CLI for the helicase daemon",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&socketFlag, "socket", "", "Path to the helicased control socket")

	rootCmd.AddCommand(newStatusCommand(&configFlag, &socketFlag))
	rootCmd.AddCommand(newConfigCommand(&configFlag))

	return rootCmd
}
