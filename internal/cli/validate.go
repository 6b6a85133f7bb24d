package cli

import (
	"fmt"

	"github.com/DanielMTyler/ellie-sub000/internal/scenario"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <scenario.yaml>",
		Short: "Check a scenario file without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := scenario.Load(args[0])
			if err != nil {
				return err
			}

			managers := make(map[string]bool)
			for _, name := range cfg.Frame.Managers {
				managers[name] = true
			}
			steps := 0
			for i, c := range sc.Chains {
				if !managers[c.ManagerName()] {
					return fmt.Errorf("chains[%d]: unknown manager %q", i, c.ManagerName())
				}
				steps += len(c.Steps)
			}

			logger.Debug("scenario valid", "path", args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%s chains, %s steps, %d event types)\n",
				args[0], humanize.Comma(int64(len(sc.Chains))), humanize.Comma(int64(steps)), len(sc.PublishedTypes()))
			return nil
		},
	}
}
