package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

func runCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Compute one run, write outputs and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, level, err := loadConfig(flags)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, level)
			if err != nil {
				return err
			}
			defer a.close()

			snap, err := a.runner.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			slog.Info("fleetstats run complete", "run", snap.String())
			return nil
		},
	}
}
