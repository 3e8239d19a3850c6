package app

import (
	"context"
	"errors"
	"strings"

	"github.com/halfxyz/hop/internal/hoperrors"
	"github.com/halfxyz/hop/internal/ports/primary"
	"github.com/halfxyz/hop/internal/ports/secondary"
	"github.com/halfxyz/hop/internal/release"
)

// Orchestrator implements primary.Orchestrator (spec.md §4.10):
// dependency-injects the components and exposes the single stable API the
// CLI collaborator calls, owning transactional rollback and the Kind→exit
// code translation.
type Orchestrator struct {
	Deps     *Deps
	Patches  *PatchLifecycleService
	Releases *ReleaseLifecycleService
	Deployer *DeployerService
	Migrator primary.Migrator
}

// NewOrchestrator wires every service over deps, mirroring the teacher's
// internal/wire singleton-construction pattern but threaded explicitly
// per spec.md §9's "no process-global mutable state" design note.
func NewOrchestrator(deps *Deps, migrator primary.Migrator, backups BackupStore) *Orchestrator {
	return &Orchestrator{
		Deps:     deps,
		Patches:  NewPatchLifecycleService(deps),
		Releases: NewReleaseLifecycleService(deps),
		Deployer: NewDeployerService(deps, backups),
		Migrator: migrator,
	}
}

// requireRemote enforces spec.md §3's "hop operates only with a remote":
// every mutating operation below checks it first, in the one place
// ExitCodeFor's translation contract expects preconditions to originate.
func (o *Orchestrator) requireRemote() error {
	if !o.Deps.hasRemote() {
		return hoperrors.Environment("orchestrator", "NoRemote", errors.New("repository has no remote configured"))
	}
	return nil
}

func (o *Orchestrator) NewRelease(ctx context.Context, level release.Level) (primary.Result, primary.ExitCode, error) {
	if err := o.requireRemote(); err != nil {
		return primary.Result{}, ExitCodeFor(err), err
	}
	r, err := o.Releases.CreateRelease(ctx, level)
	return r, ExitCodeFor(err), err
}

func (o *Orchestrator) CreatePatch(ctx context.Context, id string) (primary.Result, primary.ExitCode, error) {
	if err := o.requireRemote(); err != nil {
		return primary.Result{}, ExitCodeFor(err), err
	}
	r, err := o.Patches.CreatePatch(ctx, id)
	return r, ExitCodeFor(err), err
}

func (o *Orchestrator) ApplyPatch(ctx context.Context) (primary.Result, primary.ExitCode, error) {
	if err := o.requireRemote(); err != nil {
		return primary.Result{}, ExitCodeFor(err), err
	}
	r, err := o.Patches.ApplyPatch(ctx)
	return r, ExitCodeFor(err), err
}

func (o *Orchestrator) MergePatch(ctx context.Context) (primary.Result, primary.ExitCode, error) {
	if err := o.requireRemote(); err != nil {
		return primary.Result{}, ExitCodeFor(err), err
	}
	r, err := o.Patches.MergePatch(ctx)
	return r, ExitCodeFor(err), err
}

func (o *Orchestrator) PromoteRC(ctx context.Context) (primary.Result, primary.ExitCode, error) {
	if err := o.requireRemote(); err != nil {
		return primary.Result{}, ExitCodeFor(err), err
	}
	r, err := o.Releases.PromoteToRC(ctx)
	return r, ExitCodeFor(err), err
}

func (o *Orchestrator) PromoteProd(ctx context.Context) (primary.Result, primary.ExitCode, error) {
	if err := o.requireRemote(); err != nil {
		return primary.Result{}, ExitCodeFor(err), err
	}
	r, err := o.Releases.PromoteToProd(ctx)
	return r, ExitCodeFor(err), err
}

func (o *Orchestrator) HotfixOpen(ctx context.Context, v release.Version) (primary.Result, primary.ExitCode, error) {
	if err := o.requireRemote(); err != nil {
		return primary.Result{}, ExitCodeFor(err), err
	}
	r, err := o.Releases.HotfixOpen(ctx, v)
	return r, ExitCodeFor(err), err
}

func (o *Orchestrator) PromoteHotfix(ctx context.Context) (primary.Result, primary.ExitCode, error) {
	if err := o.requireRemote(); err != nil {
		return primary.Result{}, ExitCodeFor(err), err
	}
	r, err := o.Releases.PromoteToHotfix(ctx)
	return r, ExitCodeFor(err), err
}

func (o *Orchestrator) Deploy(ctx context.Context, target release.Version) (primary.Result, primary.ExitCode, error) {
	if err := o.requireRemote(); err != nil {
		return primary.Result{}, ExitCodeFor(err), err
	}
	r, err := o.Deployer.Deploy(ctx, target)
	return r, ExitCodeFor(err), err
}

// Status implements the supplemental Orchestrator.Status operation carried
// in from original_source/hop.py's status command (SPEC_FULL.md §3).
func (o *Orchestrator) Status(ctx context.Context) (primary.StatusReport, primary.ExitCode, error) {
	report := primary.StatusReport{}

	branch, err := o.Deps.Git.CurrentBranch(ctx)
	if err != nil {
		return report, ExitCodeFor(err), err
	}
	report.CurrentBranch = branch
	report.Context = classifyContext(ctx, o.Deps, branch)

	branches, err := o.Deps.Git.ListRemoteBranches(ctx, "ho-release/")
	if err != nil {
		return report, ExitCodeFor(err), err
	}
	for _, b := range branches {
		v, err := release.ParseVersion(strings.TrimPrefix(b, "ho-release/"))
		if err != nil {
			continue
		}
		entries, err := o.Deps.Manifests.Load(v)
		if err != nil {
			continue
		}
		summary := primary.ReleaseSummary{Version: v, Phase: release.Phase{Kind: release.PhaseDevelopment}}
		for _, e := range entries {
			if e.State == secondary.Staged {
				summary.StagedCount++
			} else {
				summary.CandidateCount++
			}
		}
		report.OpenReleases = append(report.OpenReleases, summary)
	}

	lockTags, err := o.Deps.Git.ListTags(ctx, "lock-*")
	if err != nil {
		return report, ExitCodeFor(err), err
	}
	report.LockTags = lockTags

	v, err := o.Deps.DB.ReadCurrentVersion(ctx)
	if err != nil {
		report.DBReachable = false
	} else {
		report.DBReachable = true
		report.DBVersion = v
	}

	return report, primary.ExitSuccess, nil
}

// classifyContext replaces the source's context-dependent command dispatch
// with a value computed once per operation (spec.md §9).
func classifyContext(ctx context.Context, deps *Deps, branch string) primary.Context {
	clean, err := deps.Git.IsClean(ctx)
	if err != nil {
		return primary.ContextOutside
	}
	if !clean {
		return primary.ContextDirty
	}
	switch {
	case branch == ProdBranch:
		return primary.ContextDevProd
	case strings.HasPrefix(branch, "ho-release/"), strings.HasPrefix(branch, "ho-patch/"):
		synced, err := deps.Git.IsSyncedWith(ctx, "origin/"+branch)
		if err == nil && !synced {
			return primary.ContextSyncOnly
		}
		return primary.ContextDevDev
	default:
		return primary.ContextOutside
	}
}

var _ primary.Orchestrator = (*Orchestrator)(nil)
