package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/halfxyz/hop/internal/app"
	"github.com/halfxyz/hop/internal/wire"
)

func newDeployCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deploy <target-version>",
		Short: "Deploy every pending production and hotfix snapshot up to the target version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseVersionArg(args[0])
			if err != nil {
				return err
			}
			orch, err := orchestratorFor(cmd)
			if err != nil {
				return err
			}
			result, code, err := orch.Deploy(context.Background(), target)
			return emit(code, err, result)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply any pending repository-layout migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, _ := cmd.Flags().GetString("repo")
			modelDir, _ := cmd.Flags().GetString("model-dir")
			dsn, _ := cmd.Flags().GetString("dsn")
			wire.Init(wire.Options{RepoRoot: repo, ModelDir: modelDir, DSN: dsn})

			m, err := wire.Migrator()
			if err != nil {
				return err
			}
			result, err := m.Migrate(context.Background())
			return emit(app.ExitCodeFor(err), err, result)
		},
	}
}
