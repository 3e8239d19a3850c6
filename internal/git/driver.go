// Package git implements GitDriver: typed operations over a local+remote
// Git working copy, modeled on the teacher's subprocess-driven
// internal/app/git_service.go. Every operation fails with a distinct error
// kind from hoperrors so higher layers can react without parsing stderr.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/halfxyz/hop/internal/hoperrors"
	"github.com/halfxyz/hop/internal/ports/secondary"
)

// Driver implements GitDriver against a working copy rooted at Dir.
type Driver struct {
	Dir string
}

// New returns a Driver rooted at dir.
func New(dir string) *Driver { return &Driver{Dir: dir} }

func (d *Driver) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = d.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		return stdout.String(), fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// CurrentBranch returns the checked-out branch name.
func (d *Driver) CurrentBranch(ctx context.Context) (string, error) {
	out, err := d.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", hoperrors.Internal("current_branch", err)
	}
	branch := strings.TrimSpace(out)
	if branch == "HEAD" {
		return "", hoperrors.Precondition("current_branch", "NotOnBranch", fmt.Errorf("repository is in detached HEAD state"))
	}
	return branch, nil
}

// IsClean reports whether the worktree has no untracked or modified files.
func (d *Driver) IsClean(ctx context.Context) (bool, error) {
	out, err := d.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, hoperrors.Internal("is_clean", err)
	}
	return strings.TrimSpace(out) == "", nil
}

// IsSyncedWith reports whether HEAD is neither ahead of nor behind
// origin/branch.
func (d *Driver) IsSyncedWith(ctx context.Context, branch string) (bool, error) {
	out, err := d.run(ctx, "rev-list", "--left-right", "--count", fmt.Sprintf("origin/%s...HEAD", branch))
	if err != nil {
		return false, hoperrors.Internal("is_synced_with", err)
	}
	parts := strings.Fields(strings.TrimSpace(out))
	if len(parts) != 2 {
		return false, hoperrors.Internal("is_synced_with", fmt.Errorf("unexpected rev-list output %q", out))
	}
	return parts[0] == "0" && parts[1] == "0", nil
}

// Fetch fetches from origin, optionally pruning stale remote-tracking refs
// and tags.
func (d *Driver) Fetch(ctx context.Context, prune, tags bool) error {
	args := []string{"fetch", "origin"}
	if prune {
		args = append(args, "--prune")
	}
	if tags {
		args = append(args, "--tags")
	}
	if _, err := d.run(ctx, args...); err != nil {
		return hoperrors.Coordination("fetch", "RemoteUnavailable", err)
	}
	return nil
}

// Checkout checks out branch, optionally creating it from the current HEAD
// first.
func (d *Driver) Checkout(ctx context.Context, branch string, create bool) error {
	args := []string{"checkout"}
	if create {
		args = append(args, "-b")
	}
	args = append(args, branch)
	if _, err := d.run(ctx, args...); err != nil {
		if create {
			return hoperrors.Precondition("checkout", "BranchExists", err)
		}
		return hoperrors.Precondition("checkout", "BranchMissing", err)
	}
	return nil
}

// CreateBranch creates branchName from fromRef without checking it out.
func (d *Driver) CreateBranch(ctx context.Context, branchName, fromRef string) error {
	if exists, _ := d.BranchExists(ctx, branchName); exists {
		return hoperrors.Precondition("create_branch", "BranchExists", fmt.Errorf("branch %s already exists", branchName))
	}
	if _, err := d.run(ctx, "branch", branchName, fromRef); err != nil {
		return hoperrors.Internal("create_branch", err)
	}
	return nil
}

// BranchExists checks for a local branch by that name.
func (d *Driver) BranchExists(ctx context.Context, branchName string) (bool, error) {
	_, err := d.run(ctx, "rev-parse", "--verify", "refs/heads/"+branchName)
	return err == nil, nil
}

// DeleteBranch deletes branchName locally and, if remote is true, on origin
// too. force allows deleting a branch not fully merged.
func (d *Driver) DeleteBranch(ctx context.Context, branchName string, force, remote bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	if exists, _ := d.BranchExists(ctx, branchName); exists {
		if _, err := d.run(ctx, "branch", flag, branchName); err != nil {
			return hoperrors.Internal("delete_branch", err)
		}
	}
	if remote {
		if _, err := d.run(ctx, "push", "origin", "--delete", branchName); err != nil {
			// Remote branch may already be gone; that is not fatal.
			if !strings.Contains(err.Error(), "remote ref does not exist") {
				return hoperrors.Coordination("delete_branch", "RemoteUnavailable", err)
			}
		}
	}
	return nil
}

// Merge merges branch into the current HEAD with --no-ff when noFF is set.
func (d *Driver) Merge(ctx context.Context, branch string, noFF bool, message string) error {
	args := []string{"merge"}
	if noFF {
		args = append(args, "--no-ff")
	}
	args = append(args, "-m", message, branch)
	if _, err := d.run(ctx, args...); err != nil {
		return hoperrors.Coordination("merge", "MergeConflict", err)
	}
	return nil
}

// ListRemoteBranches lists origin branches, optionally filtered by prefix.
func (d *Driver) ListRemoteBranches(ctx context.Context, prefix string) ([]string, error) {
	out, err := d.run(ctx, "branch", "-r", "--format=%(refname:short)")
	if err != nil {
		return nil, hoperrors.Internal("list_remote_branches", err)
	}
	var result []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "origin/")
		if line == "" || line == "HEAD" {
			continue
		}
		if prefix == "" || strings.HasPrefix(line, prefix) {
			result = append(result, line)
		}
	}
	return result, nil
}

// ListTags lists tags matching pattern (a git for-each-ref glob; empty means
// all tags).
func (d *Driver) ListTags(ctx context.Context, pattern string) ([]string, error) {
	args := []string{"tag", "-l"}
	if pattern != "" {
		args = append(args, pattern)
	}
	out, err := d.run(ctx, args...)
	if err != nil {
		return nil, hoperrors.Internal("list_tags", err)
	}
	var result []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			result = append(result, line)
		}
	}
	return result, nil
}

// CreateTag creates a tag on ref (HEAD if empty). annotatedMessage, if
// non-empty, creates an annotated tag with that message.
func (d *Driver) CreateTag(ctx context.Context, name, ref, annotatedMessage string) error {
	if ref == "" {
		ref = "HEAD"
	}
	args := []string{"tag"}
	if annotatedMessage != "" {
		args = append(args, "-a", name, "-m", annotatedMessage, ref)
	} else {
		args = append(args, name, ref)
	}
	if _, err := d.run(ctx, args...); err != nil {
		return hoperrors.Coordination("create_tag", "TagExists", err)
	}
	return nil
}

// PushTag pushes name to origin. The result distinguishes Accepted from
// Rejected (a concurrent winner already pushed the same ref) without
// treating rejection as a Go error, since losing a race is an expected
// outcome for reservation/lock callers.
func (d *Driver) PushTag(ctx context.Context, name string) (secondary.PushResult, error) {
	_, err := d.run(ctx, "push", "origin", "refs/tags/"+name)
	if err == nil {
		return secondary.Accepted, nil
	}
	msg := err.Error()
	if strings.Contains(msg, "rejected") || strings.Contains(msg, "already exists") || strings.Contains(msg, "non-fast-forward") {
		return secondary.Rejected, nil
	}
	return secondary.Rejected, hoperrors.Coordination("push_tag", "RemoteUnavailable", err)
}

// DeleteTag deletes a tag locally and, if remote is true, on origin.
// Failure to delete remotely is not fatal (callers log and move on).
func (d *Driver) DeleteTag(ctx context.Context, name string, remote bool) error {
	_, _ = d.run(ctx, "tag", "-d", name)
	if remote {
		_, _ = d.run(ctx, "push", "origin", "--delete", "refs/tags/"+name)
	}
	return nil
}

// CommitEmpty creates an empty commit with message on the current branch.
// Used for notification commits.
func (d *Driver) CommitEmpty(ctx context.Context, message string) error {
	if _, err := d.run(ctx, "commit", "--allow-empty", "-m", message); err != nil {
		return hoperrors.Internal("commit_empty", err)
	}
	return nil
}

// Commit stages paths and commits message.
func (d *Driver) Commit(ctx context.Context, paths []string, message string) error {
	if err := d.Add(ctx, paths); err != nil {
		return err
	}
	if _, err := d.run(ctx, "commit", "-m", message); err != nil {
		return hoperrors.Internal("commit", err)
	}
	return nil
}

// Add stages paths.
func (d *Driver) Add(ctx context.Context, paths []string) error {
	args := append([]string{"add"}, paths...)
	if _, err := d.run(ctx, args...); err != nil {
		return hoperrors.Internal("add", err)
	}
	return nil
}

// Mv moves src to dst in the working tree and stages the rename.
func (d *Driver) Mv(ctx context.Context, src, dst string) error {
	if _, err := d.run(ctx, "mv", src, dst); err != nil {
		return hoperrors.Internal("mv", err)
	}
	return nil
}

// ResetHard resets the working tree and index to ref, discarding local
// changes.
func (d *Driver) ResetHard(ctx context.Context, ref string) error {
	if _, err := d.run(ctx, "reset", "--hard", ref); err != nil {
		return hoperrors.Internal("reset_hard", err)
	}
	return nil
}

// Push pushes branch to origin.
func (d *Driver) Push(ctx context.Context, branch string) error {
	if _, err := d.run(ctx, "push", "origin", branch); err != nil {
		return hoperrors.Coordination("push", "PushRejected", err)
	}
	return nil
}

// PushWithRetry retries Push up to attempts times with exponential backoff
// delays supplied by the caller (no sleeping happens inside the driver so
// tests stay fast); it returns the last error if every attempt fails.
func (d *Driver) PushWithRetry(ctx context.Context, branch string, attempts int, sleep func(int)) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := d.Push(ctx, branch); err != nil {
			lastErr = err
			if sleep != nil {
				sleep(i)
			}
			continue
		}
		return nil
	}
	return lastErr
}

// TagAge returns the unix-ms timestamp embedded in a "lock-<scope>-<ms>" or
// "patch-id" style tag name if present as a trailing integer component.
func TagAge(name string) (int64, bool) {
	idx := strings.LastIndex(name, "-")
	if idx < 0 {
		return 0, false
	}
	suffix := name[idx+1:]
	// Unix-ms timestamps from the 2000s onward are 13 digits; anything
	// shorter is almost certainly a version component (e.g. "1.3.4" from
	// "release-1.3.4"), not an embedded lock timestamp.
	if len(suffix) < 13 {
		return 0, false
	}
	ms, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil {
		return 0, false
	}
	return ms, true
}
