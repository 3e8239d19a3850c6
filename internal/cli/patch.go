package cli

import (
	"context"

	"github.com/spf13/cobra"
)

func newPatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patch",
		Short: "Create, apply, and merge patches",
	}
	cmd.AddCommand(
		newPatchCreateCmd(),
		newPatchApplyCmd(),
		newPatchMergeCmd(),
	)
	return cmd
}

func newPatchCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <patch-id>",
		Short: "Reserve and check out a new patch branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := orchestratorFor(cmd)
			if err != nil {
				return err
			}
			result, code, err := orch.CreatePatch(context.Background(), args[0])
			return emit(code, err, result)
		},
	}
}

func newPatchApplyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Apply the current patch branch's files to the working database",
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := orchestratorFor(cmd)
			if err != nil {
				return err
			}
			result, code, err := orch.ApplyPatch(context.Background())
			return emit(code, err, result)
		},
	}
}

func newPatchMergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge",
		Short: "Prove idempotency, run the test gate, and merge the current patch into its release",
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := orchestratorFor(cmd)
			if err != nil {
				return err
			}
			result, code, err := orch.MergePatch(context.Background())
			return emit(code, err, result)
		},
	}
}
