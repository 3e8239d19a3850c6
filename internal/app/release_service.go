package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	corerelease "github.com/halfxyz/hop/internal/core/release"
	"github.com/halfxyz/hop/internal/hoperrors"
	"github.com/halfxyz/hop/internal/ports/primary"
	"github.com/halfxyz/hop/internal/release"
)

// ReleaseLifecycleService implements primary.ReleaseLifecycle (spec.md
// §4.7).
type ReleaseLifecycleService struct {
	Deps *Deps
}

// NewReleaseLifecycleService returns a ReleaseLifecycleService over deps.
func NewReleaseLifecycleService(deps *Deps) *ReleaseLifecycleService {
	return &ReleaseLifecycleService{Deps: deps}
}

func (s *ReleaseLifecycleService) productionVersion(ctx context.Context) (release.Version, error) {
	return s.Deps.DB.ReadCurrentVersion(ctx)
}

// openReleaseVersions lists the version of every ho-release/* branch whose
// manifest loads and holds at least one staged patch; other release
// branches are skipped.
func (s *ReleaseLifecycleService) openReleaseVersions(ctx context.Context) ([]release.Version, error) {
	branches, err := s.Deps.Git.ListRemoteBranches(ctx, "ho-release/")
	if err != nil {
		return nil, err
	}
	var versions []release.Version
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
			if e.State.String() == "staged" {
				versions = append(versions, v)
				break
			}
		}
	}
	return versions, nil
}

// CreateRelease implements spec.md §4.7 create_release.
func (s *ReleaseLifecycleService) CreateRelease(ctx context.Context, level release.Level) (primary.Result, error) {
	prod, err := s.productionVersion(ctx)
	if err != nil {
		return primary.Result{}, err
	}
	v := prod.Next(level)

	exists, err := s.Deps.Git.BranchExists(ctx, releaseBranch(v))
	if err != nil {
		return primary.Result{}, err
	}
	guard := corerelease.CanCreateRelease(corerelease.CreateReleaseContext{TargetVersion: v, ReleaseExists: exists})
	if !guard.Allowed {
		return primary.Result{}, hoperrors.Precondition("create_release", guard.Code, errors.New(guard.Reason))
	}

	rb := releaseBranch(v)
	if err := s.Deps.Git.CreateBranch(ctx, rb, ProdBranch); err != nil {
		return primary.Result{}, err
	}
	if err := s.Deps.Git.Checkout(ctx, rb, false); err != nil {
		return primary.Result{}, err
	}
	if err := s.Deps.Manifests.CreateEmpty(v); err != nil {
		return primary.Result{}, err
	}
	manifestPath := filepath.Join(".hop", "releases", release.Filename(v, release.Phase{Kind: release.PhaseDevelopment}))
	if err := s.Deps.Git.Add(ctx, []string{manifestPath}); err != nil {
		return primary.Result{}, err
	}
	if err := s.Deps.Git.Commit(ctx, []string{manifestPath}, fmt.Sprintf("Create release %s", v)); err != nil {
		return primary.Result{}, err
	}
	if err := s.Deps.Git.Push(ctx, rb); err != nil {
		return primary.Result{}, hoperrors.Coordination("create_release", "PushRejected", err)
	}

	return primary.Result{
		Status:      "created",
		Identifiers: map[string]string{"version": v.String(), "branch": rb},
	}, nil
}

var rcTagRe = regexp.MustCompile(`^release-rc-(\d+\.\d+\.\d+)-(\d+)$`)

// activeRC scans release-rc-* tags for one whose version has not yet been
// promoted to production, returning its version, highest rc number, and
// whether one was found.
func (s *ReleaseLifecycleService) activeRC(ctx context.Context) (release.Version, int, bool, error) {
	tags, err := s.Deps.Git.ListTags(ctx, "release-rc-*")
	if err != nil {
		return release.Version{}, 0, false, err
	}
	found := false
	var version release.Version
	maxN := 0
	for _, t := range tags {
		m := rcTagRe.FindStringSubmatch(t)
		if m == nil {
			continue
		}
		v, err := release.ParseVersion(m[1])
		if err != nil {
			continue
		}
		n, _ := strconv.Atoi(m[2])
		prodTag := "release-" + v.String()
		promoted, err := s.tagExists(ctx, prodTag)
		if err != nil {
			return release.Version{}, 0, false, err
		}
		if promoted {
			continue
		}
		if !found || v.Compare(version) == 0 {
			found = true
			version = v
			if n > maxN {
				maxN = n
			}
		}
	}
	return version, maxN, found, nil
}

func (s *ReleaseLifecycleService) tagExists(ctx context.Context, name string) (bool, error) {
	tags, err := s.Deps.Git.ListTags(ctx, name)
	if err != nil {
		return false, err
	}
	return len(tags) > 0, nil
}

// PromoteToRC implements spec.md §4.7 promote_to_rc.
func (s *ReleaseLifecycleService) PromoteToRC(ctx context.Context) (primary.Result, error) {
	lockHandle, err := s.Deps.Locks.Lock(ctx, ProdBranch)
	if err != nil {
		return primary.Result{}, err
	}
	defer lockHandle.Release(ctx)

	if err := s.Deps.Git.Fetch(ctx, true, true); err != nil {
		return primary.Result{}, err
	}

	open, err := s.openReleaseVersions(ctx)
	if err != nil {
		return primary.Result{}, err
	}
	if len(open) == 0 {
		return primary.Result{}, hoperrors.Invariant("promote_to_rc", "UnknownPhase", fmt.Errorf("no release has any staged patches"))
	}
	target := open[0]
	for _, v := range open[1:] {
		if v.Compare(target) < 0 {
			target = v
		}
	}
	prod, err := s.productionVersion(ctx)
	if err != nil {
		return primary.Result{}, err
	}
	activeVersion, activeMaxN, activeFound, err := s.activeRC(ctx)
	if err != nil {
		return primary.Result{}, err
	}

	guard := corerelease.CanPromoteToRC(corerelease.PromoteContext{
		TargetVersion:     target,
		OpenReleases:      open,
		ProductionVersion: prod,
		ActiveRCExists:    activeFound,
		ActiveRCVersion:   activeVersion,
	})
	if !guard.Allowed {
		return primary.Result{}, hoperrors.Invariant("promote_to_rc", guard.Code, errors.New(guard.Reason))
	}

	n := activeMaxN + 1
	if !activeFound || activeVersion.Compare(target) != 0 {
		n = 1
	}

	ids, err := s.Deps.Manifests.ToSnapshot(target)
	if err != nil {
		return primary.Result{}, err
	}
	phase := release.Phase{Kind: release.PhaseCandidate, N: n}
	if err := s.Deps.Manifests.WriteSnapshot(target, phase, ids); err != nil {
		return primary.Result{}, err
	}
	for _, id := range ids {
		if err := s.Deps.Manifests.Remove(target, id); err != nil {
			return primary.Result{}, err
		}
	}

	if err := s.Deps.Git.Checkout(ctx, ProdBranch, false); err != nil {
		return primary.Result{}, err
	}
	if err := s.Deps.Git.Merge(ctx, releaseBranch(target), true, fmt.Sprintf("Promote %s to RC%d", target, n)); err != nil {
		return primary.Result{}, hoperrors.Coordination("promote_to_rc", "MergeConflict", err)
	}

	tagName := fmt.Sprintf("release-rc-%s-%d", target, n)
	if err := s.Deps.Git.CreateTag(ctx, tagName, "HEAD", fmt.Sprintf("RC %d of %s", n, target)); err != nil {
		return primary.Result{}, err
	}
	if _, err := s.Deps.Git.PushTag(ctx, tagName); err != nil {
		return primary.Result{}, err
	}

	var deleted []string
	for _, id := range ids {
		pb := patchBranch(id)
		if err := s.Deps.Git.DeleteBranch(ctx, pb, true, true); err == nil {
			deleted = append(deleted, pb)
		}
	}

	if err := s.Deps.Git.Push(ctx, ProdBranch); err != nil {
		return primary.Result{}, hoperrors.Coordination("promote_to_rc", "PushRejected", err)
	}

	return primary.Result{
		Status:          "promoted_rc",
		Identifiers:     map[string]string{"version": target.String(), "rc": fmt.Sprintf("%d", n)},
		TagsPushed:      []string{tagName},
		BranchesDeleted: deleted,
		LockTag:         lockHandle.TagName(),
	}, nil
}

// PromoteToProd implements spec.md §4.7 promote_to_prod.
func (s *ReleaseLifecycleService) PromoteToProd(ctx context.Context) (primary.Result, error) {
	lockHandle, err := s.Deps.Locks.Lock(ctx, ProdBranch)
	if err != nil {
		return primary.Result{}, err
	}
	defer lockHandle.Release(ctx)

	if err := s.Deps.Git.Fetch(ctx, true, true); err != nil {
		return primary.Result{}, err
	}

	version, _, found, err := s.activeRC(ctx)
	if err != nil {
		return primary.Result{}, err
	}
	if !found {
		return primary.Result{}, hoperrors.Invariant("promote_to_prod", "UnknownPhase", fmt.Errorf("no active RC to promote"))
	}
	prod, err := s.productionVersion(ctx)
	if err != nil {
		return primary.Result{}, err
	}
	guard := corerelease.CanPromoteToProd(corerelease.PromoteContext{TargetVersion: version, ProductionVersion: prod})
	if !guard.Allowed {
		return primary.Result{}, hoperrors.Invariant("promote_to_prod", guard.Code, errors.New(guard.Reason))
	}

	_, maxN, _, err := s.activeRC(ctx)
	if err != nil {
		return primary.Result{}, err
	}
	rcPhase := release.Phase{Kind: release.PhaseCandidate, N: maxN}
	prodPhase := release.Phase{Kind: release.PhaseProduction}
	if err := s.Deps.Manifests.Rename(version, rcPhase, version, prodPhase); err != nil {
		return primary.Result{}, err
	}
	if err := s.Deps.Manifests.DeleteManifest(version); err != nil {
		return primary.Result{}, err
	}

	ids, err := s.Deps.Manifests.LoadSnapshot(version, prodPhase)
	if err != nil {
		return primary.Result{}, err
	}
	if err := s.deployPristine(ctx, version, prodPhase, ids); err != nil {
		return primary.Result{}, err
	}

	tagName := "release-" + version.String()
	if err := s.Deps.Git.CreateTag(ctx, tagName, "HEAD", "Production release "+version.String()); err != nil {
		return primary.Result{}, err
	}
	if _, err := s.Deps.Git.PushTag(ctx, tagName); err != nil {
		return primary.Result{}, err
	}

	rb := releaseBranch(version)
	_ = s.Deps.Git.DeleteBranch(ctx, rb, true, true)

	if err := s.Deps.Git.Checkout(ctx, ProdBranch, false); err != nil {
		return primary.Result{}, err
	}
	if err := s.Deps.Git.Commit(ctx, nil, fmt.Sprintf("Promote %s to production", version)); err != nil {
		s.Deps.logger().Printf("promote_to_prod: commit of already-staged tree was a no-op: %v", err)
	}
	if err := s.Deps.Git.Push(ctx, ProdBranch); err != nil {
		return primary.Result{}, hoperrors.Coordination("promote_to_prod", "PushRejected", err)
	}
	if err := s.Deps.DB.WriteReleaseRow(ctx, version, prodPhase, "promote_to_prod"); err != nil {
		s.Deps.logger().Printf("promote_to_prod: write_release_row failed (non-fatal): %v", err)
	}

	return primary.Result{
		Status:          "promoted_prod",
		Identifiers:     map[string]string{"version": version.String()},
		TagsPushed:      []string{tagName},
		BranchesDeleted: []string{rb},
		LockTag:         lockHandle.TagName(),
	}, nil
}

// deployPristine resets a pristine replica to the previous production
// schema, applies ids in order, and dumps the new versioned artifacts.
func (s *ReleaseLifecycleService) deployPristine(ctx context.Context, v release.Version, phase release.Phase, ids []string) error {
	prevSchema := filepath.Join(s.Deps.ModelDir, "schema.sql")
	if err := s.Deps.DB.ResetToSchema(ctx, prevSchema); err != nil {
		return err
	}
	for _, id := range ids {
		files, err := s.Deps.Patches.ExecutableFiles(id)
		if err != nil {
			return err
		}
		for _, f := range files {
			var applyErr error
			if strings.HasSuffix(f, ".py") {
				applyErr = s.Deps.DB.ApplyPythonFile(ctx, f, nil)
			} else {
				applyErr = s.Deps.DB.ApplySQLFile(ctx, f)
			}
			if applyErr != nil {
				return hoperrors.Validation("deploy_pristine", "ApplyFailed", fmt.Errorf("%s/%s: %w", id, filepath.Base(f), applyErr))
			}
		}
	}
	schemaPath, err := s.Deps.DB.DumpSchema(ctx, v)
	if err != nil {
		return err
	}
	metadataPath, err := s.Deps.DB.DumpMetadata(ctx, v)
	if err != nil {
		return err
	}
	symlink := filepath.Join(s.Deps.ModelDir, "schema.sql")
	_ = os.Remove(symlink)
	if err := os.Symlink(filepath.Base(schemaPath), symlink); err != nil {
		return err
	}
	// Stage the dumped artifacts and the rewritten schema.sql pointer so the
	// caller's commit actually persists them; os.Symlink alone only changes
	// the working tree.
	return s.Deps.Git.Add(ctx, []string{schemaPath, metadataPath, symlink})
}

// HotfixOpen implements spec.md §4.7 hotfix_open.
func (s *ReleaseLifecycleService) HotfixOpen(ctx context.Context, v release.Version) (primary.Result, error) {
	prodTag := "release-" + v.String()
	tagExists, err := s.tagExists(ctx, prodTag)
	if err != nil {
		return primary.Result{}, err
	}
	releaseExists, err := s.Deps.Git.BranchExists(ctx, releaseBranch(v))
	if err != nil {
		return primary.Result{}, err
	}
	guard := corerelease.CanHotfixOpen(corerelease.HotfixOpenContext{Version: v, ProductionTagExists: tagExists, ReleaseExists: releaseExists})
	if !guard.Allowed {
		return primary.Result{}, hoperrors.Precondition("hotfix_open", guard.Code, errors.New(guard.Reason))
	}

	rb := releaseBranch(v)
	if err := s.Deps.Git.CreateBranch(ctx, rb, prodTag); err != nil {
		return primary.Result{}, err
	}
	if err := s.Deps.Git.Checkout(ctx, rb, false); err != nil {
		return primary.Result{}, err
	}
	if err := s.Deps.Manifests.CreateEmpty(v); err != nil {
		return primary.Result{}, err
	}
	manifestPath := filepath.Join(".hop", "releases", release.Filename(v, release.Phase{Kind: release.PhaseDevelopment}))
	if err := s.Deps.Git.Add(ctx, []string{manifestPath}); err != nil {
		return primary.Result{}, err
	}
	if err := s.Deps.Git.Commit(ctx, []string{manifestPath}, fmt.Sprintf("Reopen %s for hotfix", v)); err != nil {
		return primary.Result{}, err
	}
	if err := s.Deps.Git.Push(ctx, rb); err != nil {
		return primary.Result{}, hoperrors.Coordination("hotfix_open", "PushRejected", err)
	}

	return primary.Result{Status: "hotfix_opened", Identifiers: map[string]string{"version": v.String(), "branch": rb}}, nil
}

var hotfixTagRe = regexp.MustCompile(`^release-(\d+\.\d+\.\d+)-hotfix(\d+)$`)

func (s *ReleaseLifecycleService) nextHotfixNumber(ctx context.Context, v release.Version) (int, error) {
	tags, err := s.Deps.Git.ListTags(ctx, fmt.Sprintf("release-%s-hotfix*", v))
	if err != nil {
		return 0, err
	}
	max := 0
	for _, t := range tags {
		m := hotfixTagRe.FindStringSubmatch(t)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[2])
		if n > max {
			max = n
		}
	}
	return max + 1, nil
}

// PromoteToHotfix implements spec.md §4.7 promote_to_hotfix.
func (s *ReleaseLifecycleService) PromoteToHotfix(ctx context.Context) (primary.Result, error) {
	lockHandle, err := s.Deps.Locks.Lock(ctx, ProdBranch)
	if err != nil {
		return primary.Result{}, err
	}
	defer lockHandle.Release(ctx)

	open, err := s.openReleaseVersionsIncludingEmpty(ctx)
	if err != nil {
		return primary.Result{}, err
	}
	if len(open) == 0 {
		return primary.Result{}, hoperrors.Invariant("promote_to_hotfix", "UnknownPhase", fmt.Errorf("no reopened hotfix release found"))
	}
	v := open[0]

	n, err := s.nextHotfixNumber(ctx, v)
	if err != nil {
		return primary.Result{}, err
	}
	ids, err := s.Deps.Manifests.ToSnapshot(v)
	if err != nil {
		return primary.Result{}, err
	}
	phase := release.Phase{Kind: release.PhaseHotfix, N: n}
	if err := s.Deps.Manifests.WriteSnapshot(v, phase, ids); err != nil {
		return primary.Result{}, err
	}
	if err := s.deployPristine(ctx, v, phase, ids); err != nil {
		return primary.Result{}, err
	}
	if err := s.Deps.Git.Commit(ctx, nil, fmt.Sprintf("Dump schema for hotfix %d of %s", n, v)); err != nil {
		s.Deps.logger().Printf("promote_to_hotfix: commit of dumped schema was a no-op: %v", err)
	}

	tagName := fmt.Sprintf("release-%s-hotfix%d", v, n)
	if err := s.Deps.Git.CreateTag(ctx, tagName, "HEAD", fmt.Sprintf("Hotfix %d of %s", n, v)); err != nil {
		return primary.Result{}, err
	}
	if _, err := s.Deps.Git.PushTag(ctx, tagName); err != nil {
		return primary.Result{}, err
	}

	rb := releaseBranch(v)
	_ = s.Deps.Git.DeleteBranch(ctx, rb, true, true)
	if err := s.Deps.DB.WriteReleaseRow(ctx, v, phase, "promote_to_hotfix"); err != nil {
		s.Deps.logger().Printf("promote_to_hotfix: write_release_row failed (non-fatal): %v", err)
	}

	return primary.Result{
		Status:          "promoted_hotfix",
		Identifiers:     map[string]string{"version": v.String(), "hotfix": fmt.Sprintf("%d", n)},
		TagsPushed:      []string{tagName},
		BranchesDeleted: []string{rb},
		LockTag:         lockHandle.TagName(),
	}, nil
}

// openReleaseVersionsIncludingEmpty lists every ho-release/* branch's
// version regardless of staged count, used by promote_to_hotfix where the
// reopened release may have zero-or-more staged patches.
func (s *ReleaseLifecycleService) openReleaseVersionsIncludingEmpty(ctx context.Context) ([]release.Version, error) {
	branches, err := s.Deps.Git.ListRemoteBranches(ctx, "ho-release/")
	if err != nil {
		return nil, err
	}
	var versions []release.Version
	for _, b := range branches {
		v, err := release.ParseVersion(strings.TrimPrefix(b, "ho-release/"))
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}
	return versions, nil
}
