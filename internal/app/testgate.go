package app

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/halfxyz/hop/internal/hoperrors"
)

// testRunnerMarkers are the presence checks spec.md §4.6 step 9 names for
// detecting a configured test suite: a pytest.ini file, a recognized test
// directory, or a pyproject.toml carrying a [tool.pytest] section.
var testRunnerMarkers = []string{"pytest.ini", "tests", "pyproject.toml"}

// runTestGate runs the configured test suite from the project root. A
// missing runner is a non-blocking warning (nil error, logged); a
// non-zero exit aborts the merge with KindValidation.
func (s *PatchLifecycleService) runTestGate(ctx context.Context) error {
	if !s.hasTestRunner() {
		s.Deps.logger().Printf("merge_patch: no test runner detected, skipping test gate")
		return nil
	}

	cmd := exec.CommandContext(ctx, "pytest", "-q")
	cmd.Dir = s.Deps.RepoRoot
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	if err == nil {
		return nil
	}

	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return hoperrors.Internal("merge_patch", err)
	}
	return hoperrors.Validation("merge_patch", "TestsFailed", fmt.Errorf("exit %d: %s", exitErr.ExitCode(), tail(out.String(), 20)))
}

func (s *PatchLifecycleService) hasTestRunner() bool {
	for _, marker := range testRunnerMarkers {
		path := filepath.Join(s.Deps.RepoRoot, marker)
		if marker == "pyproject.toml" {
			data, err := os.ReadFile(path)
			if err == nil && strings.Contains(string(data), "[tool.pytest") {
				return true
			}
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return true
		}
	}
	return false
}

// tail returns the last n lines of s, used to keep TestsFailed's
// remediation hint short per spec.md §7.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
