package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalnine/bestgate/internal/config"
	"github.com/signalnine/bestgate/internal/gate"
)

var flagAll bool

func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Show the completed, diff-free task that ran a commit",
		Args:  cobra.NoArgs,
		RunE:  runResolve,
	}
	addRevisionFlags(cmd)
	cmd.Flags().BoolVar(&flagAll, "all", false, "list every completed task for the commit, including ones with a diff")
	return cmd
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	revision, err := resolveRevision(flagRevision, cfg, flagRepo)
	if err != nil {
		return err
	}
	client, err := openTracker(cfg, flagRecords)
	if err != nil {
		return err
	}
	g := gate.New(client, cfg, gate.WithLogger(logger))
	out := cmd.OutOrStdout()

	if flagAll {
		candidates, err := g.Candidates(cmd.Context(), revision)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tREVISION\tDIFF\tLAST UPDATE\tTAGS")
		for _, r := range candidates {
			fmt.Fprintf(tw, "%s\t%s\t%v\t%s\t%v\n", r.ID, r.Revision, r.HasDiff(), r.LastUpdate.UTC().Format(time.RFC3339), r.Tags)
		}
		return tw.Flush()
	}

	rec, err := g.ResolveRecord(cmd.Context(), revision)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Task: %s\n", rec.ID)
	fmt.Fprintf(out, "  project:     %s\n", cfg.Project)
	fmt.Fprintf(out, "  name:        %s\n", rec.Name)
	fmt.Fprintf(out, "  revision:    %s\n", rec.Revision)
	fmt.Fprintf(out, "  last update: %s\n", rec.LastUpdate.UTC().Format(time.RFC3339))
	if len(rec.Tags) > 0 {
		fmt.Fprintf(out, "  tags:        %v\n", rec.Tags)
	}
	return nil
}
