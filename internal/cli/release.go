package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/halfxyz/hop/internal/release"
)

func newReleaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "release",
		Short: "Create and promote release branches",
	}
	cmd.AddCommand(
		newReleaseNewCmd(),
		newReleasePromoteRCCmd(),
		newReleasePromoteProdCmd(),
		newReleaseHotfixOpenCmd(),
		newReleasePromoteHotfixCmd(),
	)
	return cmd
}

func newReleaseNewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new [patch|minor|major]",
		Short: "Open a new release branch off ho-prod",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := release.ParseLevel(args[0])
			if err != nil {
				return err
			}
			orch, err := orchestratorFor(cmd)
			if err != nil {
				return err
			}
			result, code, err := orch.NewRelease(context.Background(), level)
			return emit(code, err, result)
		},
	}
}

func newReleasePromoteRCCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "promote-rc",
		Short: "Promote the lowest open release branch to a release candidate",
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := orchestratorFor(cmd)
			if err != nil {
				return err
			}
			result, code, err := orch.PromoteRC(context.Background())
			return emit(code, err, result)
		},
	}
}

func newReleasePromoteProdCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "promote-prod",
		Short: "Promote the active release candidate to production",
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := orchestratorFor(cmd)
			if err != nil {
				return err
			}
			result, code, err := orch.PromoteProd(context.Background())
			return emit(code, err, result)
		},
	}
}

func newReleaseHotfixOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hotfix-open <version>",
		Short: "Reopen a shipped production version for a hotfix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseVersionArg(args[0])
			if err != nil {
				return err
			}
			orch, err := orchestratorFor(cmd)
			if err != nil {
				return err
			}
			result, code, err := orch.HotfixOpen(context.Background(), v)
			return emit(code, err, result)
		},
	}
}

func newReleasePromoteHotfixCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "promote-hotfix",
		Short: "Promote a reopened release's hotfix patches to production",
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := orchestratorFor(cmd)
			if err != nil {
				return err
			}
			result, code, err := orch.PromoteHotfix(context.Background())
			return emit(code, err, result)
		},
	}
}
