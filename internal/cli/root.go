// Package cli adapts primary.Orchestrator to cobra subcommands. Per
// spec.md §1, terminal formatting and prompting are out of scope: every
// command prints the Orchestrator's structured Result or StatusReport as
// JSON on stdout and uses the returned ExitCode as the process exit
// status. Color is used only for the one-line human hint printed to
// stderr, and only when stderr is a terminal.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/halfxyz/hop/internal/ports/primary"
	"github.com/halfxyz/hop/internal/release"
	"github.com/halfxyz/hop/internal/wire"
)

// RootCmd builds the hop command tree.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hop",
		Short: "hop manages patch-based SQL schema releases",
		Long: `hop tracks SQL and Python patches through candidate, staged, release
candidate, and production phases against a Postgres database, backed by a
git repository as the durable state store.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().String("repo", ".", "path to the hop-managed repository")
	cmd.PersistentFlags().String("model-dir", ".hop/model", "path to the model directory, relative to --repo")
	cmd.PersistentFlags().String("dsn", os.Getenv("HOP_DSN"), "Postgres connection string (defaults to $HOP_DSN)")

	cmd.AddCommand(
		newReleaseCmd(),
		newPatchCmd(),
		newDeployCmd(),
		newStatusCmd(),
		newMigrateCmd(),
	)
	return cmd
}

func orchestratorFor(cmd *cobra.Command) (primary.Orchestrator, error) {
	repo, _ := cmd.Flags().GetString("repo")
	modelDir, _ := cmd.Flags().GetString("model-dir")
	dsn, _ := cmd.Flags().GetString("dsn")

	wire.Init(wire.Options{RepoRoot: repo, ModelDir: modelDir, DSN: dsn})
	return wire.Orchestrator()
}

// emit prints v as JSON to stdout and returns the exit code to use. The
// human-facing one-line hint is left to main, which prints it once for
// every code path, including errors emit never sees (flag parsing).
func emit(code primary.ExitCode, err error, v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(v); encErr != nil {
		return encErr
	}

	if code != primary.ExitSuccess {
		return &exitError{code: code, err: err}
	}
	return nil
}

// PrintHint writes a colorized one-line status to stderr when it is a
// terminal; a no-op otherwise so piped/scripted invocations stay quiet
// beyond the JSON on stdout.
func PrintHint(err error) {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, color.New(color.FgRed).Sprint("hop: "+err.Error()))
		return
	}
	fmt.Fprintln(os.Stderr, color.New(color.FgGreen).Sprint("hop: ok"))
}

// exitError carries the spec's ExitCode contract through cobra's plain
// error-returning RunE without losing the numeric code.
type exitError struct {
	code primary.ExitCode
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit %d", e.code)
}

// ExitCode extracts the process exit code from an error returned by a
// command RunE, defaulting to ExitInternal for anything unrecognized.
func ExitCode(err error) int {
	if err == nil {
		return int(primary.ExitSuccess)
	}
	if ee, ok := err.(*exitError); ok {
		return int(ee.code)
	}
	return int(primary.ExitInternal)
}

func parseVersionArg(s string) (release.Version, error) {
	v, err := release.ParseVersion(s)
	if err != nil {
		return release.Version{}, fmt.Errorf("invalid version %q: %w", s, err)
	}
	return v, nil
}
