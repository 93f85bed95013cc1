package main

import (
	"context"

	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "fleetstats",
		Short:         "Fleet availability statistics engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "config.yaml", "path to config file")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before the config")

	root.AddCommand(runCmd(flags), serveCmd(flags))
	return root
}

// Execute runs the fleetstats CLI.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}
