// Package patch contains the pure precondition guards for PatchLifecycle
// (spec.md §4.6). Guards never touch Git, the database, or the
// filesystem; internal/app evaluates them against state it has already
// gathered and turns a failing GuardResult into a hoperrors.Error.
package patch

import (
	"fmt"

	"github.com/halfxyz/hop/internal/release"
)

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
	Code    string // hoperrors code when Allowed is false
}

func ok() GuardResult { return GuardResult{Allowed: true} }

func deny(code, format string, args ...any) GuardResult {
	return GuardResult{Allowed: false, Code: code, Reason: fmt.Sprintf(format, args...)}
}

// CreateContext carries the facts CanCreatePatch needs.
type CreateContext struct {
	CurrentBranch     string
	ReleaseVersion    release.Version
	IsClean           bool
	IsSynced          bool
	ID                string
	PatchDirExists    bool
	PatchBranchExists bool
}

// CanCreatePatch evaluates spec.md §4.6 create_patch preconditions: on a
// RELEASE(v) branch; worktree clean; synced with origin; id well-formed;
// Patches/<id>/ absent; no PATCH(id) branch anywhere.
func CanCreatePatch(ctx CreateContext) GuardResult {
	wantBranch := "ho-release/" + ctx.ReleaseVersion.String()
	if ctx.CurrentBranch != wantBranch {
		return deny("NotOnBranch", "must be on %s, currently on %s", wantBranch, ctx.CurrentBranch)
	}
	if !ctx.IsClean {
		return deny("DirtyWorktree", "worktree has uncommitted changes")
	}
	if !ctx.IsSynced {
		return deny("Diverged", "%s is not synced with origin", wantBranch)
	}
	if !release.ValidPatchID(ctx.ID) {
		return deny("MalformedID", "patch id %q does not match the required pattern", ctx.ID)
	}
	if ctx.PatchDirExists {
		return deny("PatchExists", "Patches/%s already exists", ctx.ID)
	}
	if ctx.PatchBranchExists {
		return deny("PatchExists", "branch ho-patch/%s already exists", ctx.ID)
	}
	return ok()
}

// ApplyContext carries the facts CanApplyPatch needs.
type ApplyContext struct {
	CurrentBranch  string
	PatchID        string
	PatchDirExists bool
	SchemaPresent  bool
}

// CanApplyPatch evaluates spec.md §4.6 apply_patch preconditions: on
// PATCH(id); Patches/<id>/ exists; model/schema.sql present.
func CanApplyPatch(ctx ApplyContext) GuardResult {
	wantBranch := "ho-patch/" + ctx.PatchID
	if ctx.CurrentBranch != wantBranch {
		return deny("NotOnBranch", "must be on %s, currently on %s", wantBranch, ctx.CurrentBranch)
	}
	if !ctx.PatchDirExists {
		return deny("PatchMissing", "Patches/%s does not exist", ctx.PatchID)
	}
	if !ctx.SchemaPresent {
		return deny("BranchMissing", "model/schema.sql is not present")
	}
	return ok()
}

// MergeContext carries the facts CanMergePatch needs.
type MergeContext struct {
	CurrentBranch    string
	PatchID          string
	IsClean          bool
	ReleaseVersion   release.Version
	ReleaseExists    bool
	ReleaseSynced    bool
	AlreadyStagedAny bool
}

// CanMergePatch evaluates spec.md §4.6 merge_patch preconditions: on
// PATCH(id); worktree clean; RELEASE(v) exists and is synced; id not
// already staged in any manifest.
func CanMergePatch(ctx MergeContext) GuardResult {
	wantBranch := "ho-patch/" + ctx.PatchID
	if ctx.CurrentBranch != wantBranch {
		return deny("NotOnBranch", "must be on %s, currently on %s", wantBranch, ctx.CurrentBranch)
	}
	if !ctx.IsClean {
		return deny("DirtyWorktree", "worktree has uncommitted changes")
	}
	if !ctx.ReleaseExists {
		return deny("BranchMissing", "ho-release/%s does not exist", ctx.ReleaseVersion)
	}
	if !ctx.ReleaseSynced {
		return deny("Diverged", "ho-release/%s is not synced with origin", ctx.ReleaseVersion)
	}
	if ctx.AlreadyStagedAny {
		return deny("PatchExists", "patch %s is already staged", ctx.PatchID)
	}
	return ok()
}
