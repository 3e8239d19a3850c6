package cli

import (
	"context"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current branch, context, open releases, locks, and database version",
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := orchestratorFor(cmd)
			if err != nil {
				return err
			}
			report, code, err := orch.Status(context.Background())
			return emit(code, err, report)
		},
	}
}
