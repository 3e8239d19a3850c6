// Package primary declares the driving ports the CLI collaborator (or any
// other caller) uses to operate hop: PatchLifecycle, ReleaseLifecycle,
// Deployer, Migrator, and the composing Orchestrator, plus the structured
// result/error/status types spec.md §4.10 and §6 require.
package primary

import (
	"context"

	"github.com/halfxyz/hop/internal/release"
)

// Result is the structured outcome of every mutating Orchestrator
// operation (spec.md §4.10): what happened, not how it looks on a
// terminal — the CLI collaborator owns formatting.
type Result struct {
	Status               string
	Identifiers          map[string]string
	TagsPushed           []string
	BranchesDeleted      []string
	NotificationsEmitted []string
	LockTag              string
}

// Context classifies the repository's current situation, replacing the
// source's context-dependent command dispatch (spec.md §9) with a value
// computed once per operation.
type Context int

const (
	ContextOutside  Context = iota // not inside a hop-managed repository
	ContextDirty                   // worktree has uncommitted changes
	ContextDevProd                 // on PROD with no active release branch
	ContextDevDev                  // on a PATCH or RELEASE branch
	ContextSyncOnly                // clean but not synced with origin
)

func (c Context) String() string {
	switch c {
	case ContextOutside:
		return "outside"
	case ContextDirty:
		return "dirty"
	case ContextDevProd:
		return "dev-prod"
	case ContextDevDev:
		return "dev-dev"
	case ContextSyncOnly:
		return "sync-only"
	default:
		return "unknown"
	}
}

// ReleaseSummary is one open (non-production) release's manifest state, as
// surfaced by Orchestrator.Status.
type ReleaseSummary struct {
	Version        release.Version
	Phase          release.Phase
	CandidateCount int
	StagedCount    int
}

// StatusReport is the structured snapshot original_source/hop.py's status
// command produces (carried into SPEC_FULL.md as a supplemental feature).
type StatusReport struct {
	CurrentBranch  string
	Context        Context
	OpenReleases   []ReleaseSummary
	LockTags       []string
	DBVersion      release.Version
	DBReachable    bool
}

// ExitCode is the CLI collaborator contract of spec.md §6, carried
// alongside the error from every Orchestrator method.
type ExitCode int

const (
	ExitSuccess      ExitCode = 0
	ExitPrecondition ExitCode = 1
	ExitCoordination ExitCode = 2
	ExitValidation   ExitCode = 3
	ExitEnvironment  ExitCode = 4
	ExitInternal     ExitCode = 5
)

// PatchLifecycle is the driving port for create/apply/merge patch
// (spec.md §4.6).
type PatchLifecycle interface {
	CreatePatch(ctx context.Context, id string) (Result, error)
	ApplyPatch(ctx context.Context) (Result, error)
	MergePatch(ctx context.Context) (Result, error)
}

// ReleaseLifecycle is the driving port for release creation and promotion
// (spec.md §4.7).
type ReleaseLifecycle interface {
	CreateRelease(ctx context.Context, level release.Level) (Result, error)
	PromoteToRC(ctx context.Context) (Result, error)
	PromoteToProd(ctx context.Context) (Result, error)
	HotfixOpen(ctx context.Context, v release.Version) (Result, error)
	PromoteToHotfix(ctx context.Context) (Result, error)
}

// Deployer applies a production or hotfix release to a target database
// (spec.md §4.8).
type Deployer interface {
	Deploy(ctx context.Context, target release.Version) (Result, error)
}

// Migrator migrates a repository's own on-disk layout between tool
// versions (spec.md §4.9).
type Migrator interface {
	Migrate(ctx context.Context) (Result, error)
}

// Orchestrator is the single stable API the CLI collaborator consumes
// (spec.md §4.10). Every method returns its Result, an ExitCode derived
// from any error's hoperrors.Kind, and the error itself.
type Orchestrator interface {
	NewRelease(ctx context.Context, level release.Level) (Result, ExitCode, error)
	CreatePatch(ctx context.Context, id string) (Result, ExitCode, error)
	ApplyPatch(ctx context.Context) (Result, ExitCode, error)
	MergePatch(ctx context.Context) (Result, ExitCode, error)
	PromoteRC(ctx context.Context) (Result, ExitCode, error)
	PromoteProd(ctx context.Context) (Result, ExitCode, error)
	HotfixOpen(ctx context.Context, v release.Version) (Result, ExitCode, error)
	PromoteHotfix(ctx context.Context) (Result, ExitCode, error)
	Deploy(ctx context.Context, target release.Version) (Result, ExitCode, error)
	Status(ctx context.Context) (StatusReport, ExitCode, error)
}
