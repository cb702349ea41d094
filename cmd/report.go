package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/signalnine/bestgate/internal/config"
	"github.com/signalnine/bestgate/internal/report"
)

var flagFormat string

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [results-dir]",
		Short: "Summarize stored compare decisions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			dir := cfg.Results.Dir
			if len(args) > 0 {
				dir = args[0]
			}
			if dir == "" {
				return fmt.Errorf("%w: no results directory given and results.dir is not set", config.ErrConfiguration)
			}
			resolved, err := filepath.EvalSymlinks(dir)
			if err != nil {
				return fmt.Errorf("resolving results dir: %w", err)
			}
			return report.Generate(resolved, flagFormat, cmd.OutOrStdout(), report.WithLogger(logger))
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "table", "output format (table, markdown, json)")
	return cmd
}
