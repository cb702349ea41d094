package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/signalnine/bestgate/internal/clearml"
	"github.com/signalnine/bestgate/internal/config"
	"github.com/signalnine/bestgate/internal/gate"
	"github.com/signalnine/bestgate/internal/gitops"
	"github.com/signalnine/bestgate/internal/report"
	"github.com/signalnine/bestgate/internal/result"
	"github.com/signalnine/bestgate/internal/tracker"
)

var (
	flagRevision       string
	flagRepo           string
	flagRecords        string
	flagOut            string
	flagDecisionFormat string
)

func newCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare the task for a commit against the best task and tag it if it ties or wins",
		Args:  cobra.NoArgs,
		RunE:  runCompare,
	}
	addRevisionFlags(cmd)
	cmd.Flags().StringVar(&flagOut, "out", "", "results directory for decision.json (defaults to results.dir from config)")
	cmd.Flags().StringVar(&flagDecisionFormat, "format", "", "also print the decision (table, markdown, json)")
	return cmd
}

func addRevisionFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagRevision, "revision", "", "commit hash to look up (overrides "+config.EnvRevision+")")
	cmd.Flags().StringVar(&flagRepo, "repo", "", "read the revision from HEAD of this git checkout when none is set")
	cmd.Flags().StringVar(&flagRecords, "records", "", "read tasks from a yaml snapshot instead of the ClearML server")
}

func runCompare(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	revision, err := resolveRevision(flagRevision, cfg, flagRepo)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Running on commit hash: %s\n", revision)

	client, err := openTracker(cfg, flagRecords)
	if err != nil {
		return err
	}
	g := gate.New(client, cfg, gate.WithOutput(cmd.OutOrStdout()), gate.WithLogger(logger))
	decision, err := g.CompareAndPromote(cmd.Context(), revision)
	if err != nil {
		return err
	}

	outDir := flagOut
	if outDir == "" {
		outDir = cfg.Results.Dir
	}
	if outDir != "" {
		runDir, err := result.StoreDecision(outDir, decision)
		if err != nil {
			return err
		}
		logger.Info("decision stored", zap.String("run_dir", runDir), zap.String("decision_id", decision.ID))
	}

	if flagDecisionFormat != "" {
		return report.WriteDecision(decision, flagDecisionFormat, cmd.OutOrStdout())
	}
	return nil
}

// resolveRevision picks the revision from the flag, then the environment or config file,
// then HEAD of repo.
func resolveRevision(flag string, cfg *config.Config, repo string) (string, error) {
	switch {
	case flag != "":
		return flag, nil
	case cfg.Revision != "":
		return cfg.Revision, nil
	case repo != "":
		rev, err := gitops.HeadRevision(repo)
		if err != nil {
			return "", err
		}
		dirty, err := gitops.IsDirty(repo)
		if err != nil {
			logger.Warn("could not inspect worktree", zap.String("repo", repo), zap.Error(err))
		} else if dirty {
			logger.Warn("checkout has uncommitted changes; tracked runs of it carry a diff and are skipped",
				zap.String("repo", repo), zap.String("revision", rev))
		}
		return rev, nil
	default:
		return "", &config.MissingError{Vars: []string{config.EnvRevision}}
	}
}

// openTracker returns an offline snapshot client when records is set, otherwise a ClearML client.
func openTracker(cfg *config.Config, records string) (tracker.Client, error) {
	if records != "" {
		logger.Debug("using record snapshot", zap.String("path", records))
		mem, err := tracker.LoadSnapshot(records)
		if err != nil {
			return nil, err
		}
		return mem, nil
	}
	if err := cfg.ValidateServer(); err != nil {
		return nil, err
	}
	return clearml.New(clearml.Options{
		APIHost:   cfg.Server.APIHost,
		AccessKey: cfg.Server.AccessKey,
		SecretKey: cfg.Server.SecretKey,
		Timeout:   time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		Logger:    logger,
	}), nil
}
