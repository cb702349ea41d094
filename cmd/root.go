package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	cfgFile string
	verbose bool

	logger = zap.NewNop()
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bestgate",
		Short: "Promote the ClearML task for a commit when its metric matches or beats the best",
		Long: `bestgate finds the completed ClearML task that ran the exact code at a commit,
compares the maximum of one scalar series against the task tagged as best, and moves
the best tag onto it when it ties or wins.

Settings come from CLEARML_* environment variables, optionally backed by a yaml file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config := zap.NewProductionConfig()
			if verbose {
				config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			l, err := config.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "optional yaml config file; environment variables take precedence")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.AddCommand(newCompareCmd())
	root.AddCommand(newResolveCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newValidateCmd())
	return root
}
