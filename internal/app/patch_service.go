package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	corepatch "github.com/halfxyz/hop/internal/core/patch"
	"github.com/halfxyz/hop/internal/hoperrors"
	"github.com/halfxyz/hop/internal/ports/primary"
	"github.com/halfxyz/hop/internal/ports/secondary"
	"github.com/halfxyz/hop/internal/release"
)

// PatchLifecycleService implements primary.PatchLifecycle (spec.md §4.6)
// against the secondary ports bundled in Deps. It tracks which release
// branch/patch id the current working copy is on by reading Git state
// directly rather than caching it, matching the teacher's stateless
// service pattern (internal/app/git_service.go never caches branch state).
type PatchLifecycleService struct {
	Deps *Deps
}

// NewPatchLifecycleService returns a PatchLifecycleService over deps.
func NewPatchLifecycleService(deps *Deps) *PatchLifecycleService {
	return &PatchLifecycleService{Deps: deps}
}

func (s *PatchLifecycleService) currentReleaseVersion(ctx context.Context) (release.Version, error) {
	branch, err := s.Deps.Git.CurrentBranch(ctx)
	if err != nil {
		return release.Version{}, err
	}
	const prefix = "ho-release/"
	if !strings.HasPrefix(branch, prefix) {
		return release.Version{}, hoperrors.Precondition("release_context", "NotOnBranch", fmt.Errorf("not on a release branch (on %s)", branch))
	}
	return release.ParseVersion(strings.TrimPrefix(branch, prefix))
}

func (s *PatchLifecycleService) currentPatchID(ctx context.Context) (string, error) {
	branch, err := s.Deps.Git.CurrentBranch(ctx)
	if err != nil {
		return "", err
	}
	const prefix = "ho-patch/"
	if !strings.HasPrefix(branch, prefix) {
		return "", hoperrors.Precondition("patch_context", "NotOnBranch", fmt.Errorf("not on a patch branch (on %s)", branch))
	}
	return strings.TrimPrefix(branch, prefix), nil
}

// CreatePatch implements spec.md §4.6's tag-first reservation workflow.
func (s *PatchLifecycleService) CreatePatch(ctx context.Context, id string) (primary.Result, error) {
	v, err := s.currentReleaseVersion(ctx)
	if err != nil {
		// An existing patch is reported as such even when the caller is no
		// longer on a release branch (e.g. still on the patch's own branch).
		if s.Deps.Patches.Exists(id) {
			return primary.Result{}, hoperrors.Precondition("create_patch", "PatchExists", fmt.Errorf("Patches/%s already exists", id))
		}
		return primary.Result{}, err
	}

	clean, synced := true, true
	if !s.Deps.devel() {
		clean, err = s.Deps.Git.IsClean(ctx)
		if err != nil {
			return primary.Result{}, err
		}
		synced, err = s.Deps.Git.IsSyncedWith(ctx, "origin/"+releaseBranch(v))
		if err != nil {
			return primary.Result{}, err
		}
	}
	branchExists, err := s.Deps.Git.BranchExists(ctx, patchBranch(id))
	if err != nil {
		return primary.Result{}, err
	}

	guard := corepatch.CanCreatePatch(corepatch.CreateContext{
		CurrentBranch:     releaseBranch(v),
		ReleaseVersion:    v,
		IsClean:           clean,
		IsSynced:          synced,
		ID:                id,
		PatchDirExists:    s.Deps.Patches.Exists(id),
		PatchBranchExists: branchExists,
	})
	if !guard.Allowed {
		return primary.Result{}, hoperrors.Precondition("create_patch", guard.Code, errors.New(guard.Reason))
	}

	pb := patchBranch(id)
	if err := s.Deps.Git.CreateBranch(ctx, pb, releaseBranch(v)); err != nil {
		return primary.Result{}, err
	}
	if err := s.Deps.Git.Checkout(ctx, pb, false); err != nil {
		_ = s.Deps.Git.DeleteBranch(ctx, pb, true, false)
		return primary.Result{}, err
	}

	issueNumber, _ := release.IssueNumber(id)
	if err := s.Deps.Patches.Create(id, issueNumber); err != nil {
		s.rollbackCreate(ctx, pb, id)
		return primary.Result{}, err
	}
	if err := s.Deps.Git.Add(ctx, []string{"Patches/" + id}); err != nil {
		s.rollbackCreate(ctx, pb, id)
		return primary.Result{}, err
	}
	if err := s.Deps.Git.Commit(ctx, []string{"Patches/" + id}, fmt.Sprintf("Add Patches/%s directory", id)); err != nil {
		s.rollbackCreate(ctx, pb, id)
		return primary.Result{}, err
	}

	// Point of no return: the reservation tag is pushed next.
	if err := s.Deps.Locks.ReservePatch(ctx, id, "HEAD"); err != nil {
		s.rollbackCreate(ctx, pb, id)
		return primary.Result{}, err
	}

	result := primary.Result{
		Status:      "created",
		Identifiers: map[string]string{"patch_id": id, "branch": pb},
		TagsPushed:  []string{"patch-id/" + id},
	}

	var warnings []string
	if err := s.Deps.Git.PushWithRetry(ctx, pb, 3, s.Deps.Sleep); err != nil {
		warnings = append(warnings, fmt.Sprintf("reservation stands but push of %s failed: %v", pb, err))
	}

	if err := s.Deps.Manifests.AddCandidate(v, id, ""); err != nil {
		warnings = append(warnings, fmt.Sprintf("manifest update failed, push manually: %v", err))
	} else if err := s.Deps.Git.Checkout(ctx, releaseBranch(v), false); err == nil {
		manifestPath := filepath.Join(".hop", "releases", release.Filename(v, release.Phase{Kind: release.PhaseDevelopment}))
		if err := s.Deps.Git.Add(ctx, []string{manifestPath}); err == nil {
			if err := s.Deps.Git.Commit(ctx, []string{manifestPath}, fmt.Sprintf("Add %s to manifest for %s", id, v)); err == nil {
				if err := s.Deps.Git.Push(ctx, releaseBranch(v)); err != nil {
					warnings = append(warnings, fmt.Sprintf("manifest commit made but push failed, push manually: %v", err))
				}
			}
		}
		_ = s.Deps.Git.Checkout(ctx, pb, false)
	}

	result.NotificationsEmitted = warnings
	return result, nil
}

func (s *PatchLifecycleService) rollbackCreate(ctx context.Context, branch, id string) {
	_ = s.Deps.Git.Checkout(ctx, ProdBranch, false)
	_ = s.Deps.Git.DeleteBranch(ctx, branch, true, false)
	_ = os.RemoveAll(filepath.Join(s.Deps.RepoRoot, "Patches", id))
}

// ApplyPatch implements spec.md §4.6 apply_patch: reset to schema, compute
// the release context (staged patches plus the current one), and apply every
// executable file in order. No code generator is invoked.
func (s *PatchLifecycleService) ApplyPatch(ctx context.Context) (primary.Result, error) {
	id, err := s.currentPatchID(ctx)
	if err != nil {
		return primary.Result{}, err
	}

	guard := corepatch.CanApplyPatch(corepatch.ApplyContext{
		CurrentBranch:  patchBranch(id),
		PatchID:        id,
		PatchDirExists: s.Deps.Patches.Exists(id),
		SchemaPresent:  s.schemaPresent(),
	})
	if !guard.Allowed {
		return primary.Result{}, hoperrors.Precondition("apply_patch", guard.Code, errors.New(guard.Reason))
	}

	if err := s.resetAndApply(ctx, id); err != nil {
		return primary.Result{}, err
	}
	return primary.Result{
		Status:      "applied",
		Identifiers: map[string]string{"patch_id": id},
	}, nil
}

// resetAndApply is the branch-agnostic core of ApplyPatch: reset to
// schema, compute the release context sequence for id, and apply it.
// proveIdempotent calls this directly from the VALIDATE branch, bypassing
// ApplyPatch's ho-patch/* branch guard, which is a precondition on the
// user-facing apply_patch operation, not on this internal reapply check.
func (s *PatchLifecycleService) resetAndApply(ctx context.Context, id string) error {
	sequence, err := s.releaseContextSequence(ctx, id)
	if err != nil {
		return err
	}

	schemaPath := filepath.Join(s.Deps.ModelDir, "schema.sql")
	if err := s.Deps.DB.ResetToSchema(ctx, schemaPath); err != nil {
		return err
	}

	if err := s.applySequence(ctx, sequence); err != nil {
		// Roll back via the same snapshot; the original error is preserved,
		// rollback failures are swallowed.
		_ = s.Deps.DB.ResetToSchema(ctx, schemaPath)
		return err
	}
	return nil
}

// releaseContextSequence computes the ordered list of patch ids to apply:
// every Staged patch in manifest order, plus the current patch, either in
// its recorded position (re-apply of an already-staged patch) or appended
// at the end.
func (s *PatchLifecycleService) releaseContextSequence(ctx context.Context, currentID string) ([]string, error) {
	v, err := s.releaseVersionForPatchContext(ctx, currentID)
	if err != nil {
		return nil, err
	}
	entries, err := s.Deps.Manifests.Load(v)
	if err != nil {
		return nil, err
	}

	var sequence []string
	found := false
	for _, e := range entries {
		if e.State != secondary.Staged {
			continue
		}
		sequence = append(sequence, e.PatchID)
		if e.PatchID == currentID {
			found = true
		}
	}
	if !found {
		sequence = append(sequence, currentID)
	}
	return sequence, nil
}

// releaseVersionForPatchContext finds the release branch the current patch
// branch was cut from: the only ho-release/* branch on origin when exactly
// one exists, otherwise the first one whose manifest already references
// the patch. This mirrors original_source's lookup of the "owning release"
// for a patch branch.
func (s *PatchLifecycleService) releaseVersionForPatchContext(ctx context.Context, id string) (release.Version, error) {
	branches, err := s.Deps.Git.ListRemoteBranches(ctx, "ho-release/")
	if err != nil {
		return release.Version{}, err
	}
	if len(branches) == 1 {
		return release.ParseVersion(strings.TrimPrefix(branches[0], "ho-release/"))
	}
	for _, b := range branches {
		v, err := release.ParseVersion(strings.TrimPrefix(b, "ho-release/"))
		if err != nil {
			continue
		}
		entries, err := s.Deps.Manifests.Load(v)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.PatchID == id {
				return v, nil
			}
		}
	}
	return release.Version{}, hoperrors.Internal("release_context", fmt.Errorf("could not determine the owning release for the current patch"))
}

func (s *PatchLifecycleService) applySequence(ctx context.Context, ids []string) error {
	for _, id := range ids {
		files, err := s.Deps.Patches.ExecutableFiles(id)
		if err != nil {
			return err
		}
		for _, f := range files {
			if strings.HasSuffix(f, ".py") {
				if err := s.Deps.DB.ApplyPythonFile(ctx, f, nil); err != nil {
					return hoperrors.Validation("apply_patch", "ApplyFailed", fmt.Errorf("%s/%s: %w", id, filepath.Base(f), err))
				}
			} else {
				if err := s.Deps.DB.ApplySQLFile(ctx, f); err != nil {
					return hoperrors.Validation("apply_patch", "ApplyFailed", fmt.Errorf("%s/%s: %w", id, filepath.Base(f), err))
				}
			}
		}
	}
	return nil
}

func (s *PatchLifecycleService) schemaPresent() bool {
	_, err := os.Stat(filepath.Join(s.Deps.ModelDir, "schema.sql"))
	return err == nil
}

// MergePatch implements spec.md §4.6's validation-gated merge protocol.
func (s *PatchLifecycleService) MergePatch(ctx context.Context) (primary.Result, error) {
	id, err := s.currentPatchID(ctx)
	if err != nil {
		return primary.Result{}, err
	}
	v, err := s.releaseVersionForPatchContext(ctx, id)
	if err != nil {
		return primary.Result{}, err
	}

	clean, synced := true, true
	if !s.Deps.devel() {
		clean, err = s.Deps.Git.IsClean(ctx)
		if err != nil {
			return primary.Result{}, err
		}
	}
	releaseExists, err := s.Deps.Git.BranchExists(ctx, releaseBranch(v))
	if err != nil {
		return primary.Result{}, err
	}
	if !s.Deps.devel() {
		synced, err = s.Deps.Git.IsSyncedWith(ctx, "origin/"+releaseBranch(v))
		if err != nil {
			return primary.Result{}, err
		}
	}
	entries, err := s.Deps.Manifests.Load(v)
	if err != nil {
		return primary.Result{}, err
	}
	alreadyStaged := false
	for _, e := range entries {
		if e.PatchID == id && e.State == secondary.Staged {
			alreadyStaged = true
		}
	}

	guard := corepatch.CanMergePatch(corepatch.MergeContext{
		CurrentBranch:    patchBranch(id),
		PatchID:          id,
		IsClean:          clean,
		ReleaseVersion:   v,
		ReleaseExists:    releaseExists,
		ReleaseSynced:    synced,
		AlreadyStagedAny: alreadyStaged,
	})
	if !guard.Allowed {
		return primary.Result{}, hoperrors.Precondition("merge_patch", guard.Code, errors.New(guard.Reason))
	}

	lockHandle, err := s.Deps.Locks.Lock(ctx, releaseBranch(v))
	if err != nil {
		return primary.Result{}, err
	}
	defer lockHandle.Release(ctx)

	if err := s.Deps.Git.Fetch(ctx, true, true); err != nil {
		return primary.Result{}, err
	}

	vb := validateBranch(id)
	if err := s.Deps.Git.CreateBranch(ctx, vb, releaseBranch(v)); err != nil {
		return primary.Result{}, err
	}
	defer s.Deps.Git.DeleteBranch(ctx, vb, true, false)

	if err := s.Deps.Git.Checkout(ctx, vb, false); err != nil {
		return primary.Result{}, err
	}

	// Already-staged patches are not re-merged here: vb is cut from
	// releaseBranch(v), which already carries their commits, and their
	// ho-patch/* branches are hard-deleted at merge/RC time (SPEC_FULL §4
	// clarification #4), so re-merging them would hit a missing branch.
	mergeMsg := fmt.Sprintf("Merge %s into %s\n\nCloses #%s", patchBranch(id), releaseBranch(v), leadingIssue(id))
	if err := s.Deps.Git.Merge(ctx, patchBranch(id), true, mergeMsg); err != nil {
		return primary.Result{}, hoperrors.Coordination("merge_patch", "MergeConflict", err)
	}

	if err := s.Deps.Manifests.SetStaged(v, id); err != nil {
		return primary.Result{}, err
	}
	manifestPath := filepath.Join(".hop", "releases", release.Filename(v, release.Phase{Kind: release.PhaseDevelopment}))
	if err := s.Deps.Git.Commit(ctx, []string{manifestPath}, fmt.Sprintf("Stage %s in manifest for %s", id, v)); err != nil {
		return primary.Result{}, err
	}

	if err := s.proveIdempotent(ctx, id, vb); err != nil {
		return primary.Result{}, err
	}
	if err := s.runTestGate(ctx); err != nil {
		return primary.Result{}, err
	}

	if err := s.Deps.Git.Checkout(ctx, releaseBranch(v), false); err != nil {
		return primary.Result{}, err
	}
	if err := s.Deps.Git.Merge(ctx, vb, false, ""); err != nil {
		return primary.Result{}, hoperrors.Coordination("merge_patch", "MergeConflict", err)
	}
	if err := s.Deps.Git.Push(ctx, releaseBranch(v)); err != nil {
		return primary.Result{}, hoperrors.Coordination("merge_patch", "PushRejected", err)
	}

	pb := patchBranch(id)
	_ = s.Deps.Git.DeleteBranch(ctx, pb, true, true)

	notifyMsg := fmt.Sprintf("[notify] merge_patch %s integrated into %s", id, releaseBranch(v))
	_ = s.Deps.Git.CommitEmpty(ctx, notifyMsg)
	_ = s.Deps.Git.Push(ctx, releaseBranch(v))

	return primary.Result{
		Status:               "merged",
		Identifiers:          map[string]string{"patch_id": id, "release": v.String()},
		BranchesDeleted:      []string{pb, vb},
		NotificationsEmitted: []string{notifyMsg},
		LockTag:              lockHandle.TagName(),
	}, nil
}

func leadingIssue(id string) string {
	n, err := release.IssueNumber(id)
	if err != nil {
		return "0"
	}
	return fmt.Sprintf("%d", n)
}

// proveIdempotent re-runs the reset-and-apply sequence against the
// just-merged VALIDATE branch vb, identified by the patch id merge_patch
// already resolved; any working-tree change after the reapply is an
// idempotency violation per spec.md §4.6 step 8. vb is unused beyond
// documenting which branch this runs on: resetAndApply itself is
// branch-agnostic.
func (s *PatchLifecycleService) proveIdempotent(ctx context.Context, id, vb string) error {
	clean, err := s.Deps.Git.IsClean(ctx)
	if err != nil {
		return err
	}
	if !clean {
		return hoperrors.Validation("merge_patch", "IdempotencyViolation", fmt.Errorf("working tree was not clean before the idempotency reapply"))
	}
	if err := s.resetAndApply(ctx, id); err != nil {
		return err
	}
	cleanAfter, err := s.Deps.Git.IsClean(ctx)
	if err != nil {
		return err
	}
	if !cleanAfter {
		return hoperrors.Validation("merge_patch", "IdempotencyViolation", fmt.Errorf("patch is not idempotent with the declared state"))
	}
	return nil
}

