package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalnine/bestgate/internal/config"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check that every setting compare needs is present and well formed",
		Long:  "Load the config file and environment, then report missing or invalid settings without contacting the server.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			checks := []struct {
				name string
				err  error
			}{
				{"compare settings", cfg.ValidateCompare()},
				{"server credentials", cfg.ValidateServer()},
			}
			var errs []error
			for _, c := range checks {
				if c.err != nil {
					fmt.Fprintf(out, "FAIL %s: %v\n", c.name, c.err)
					errs = append(errs, c.err)
					continue
				}
				fmt.Fprintf(out, "ok   %s\n", c.name)
			}
			if cfg.Revision == "" {
				fmt.Fprintf(out, "note %s is not set; pass --revision or --repo to compare\n", config.EnvRevision)
			}
			if len(errs) > 0 {
				return errors.Join(errs...)
			}

			fmt.Fprintf(out, "\nproject:    %s\n", cfg.Project)
			fmt.Fprintf(out, "task:       %s\n", cfg.TaskName)
			fmt.Fprintf(out, "best tag:   %s\n", cfg.BestTag)
			fmt.Fprintf(out, "scalar:     %s / %s (%s)\n", cfg.Scalar.Title, cfg.Scalar.Series, cfg.Scalar.Direction)
			fmt.Fprintf(out, "api host:   %s\n", cfg.Server.APIHost)
			fmt.Fprintf(out, "access key: %s\n", mask(cfg.Server.AccessKey))
			return nil
		},
	}
}

func mask(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}
