// Package secondary declares the driven ports hop's application services
// depend on: GitDriver, DBDriver, ManifestStore, PatchStore and
// LockService. Concrete adapters live in internal/git, internal/dbdriver,
// internal/manifest, internal/patchstore and internal/lock.
package secondary

import (
	"context"

	"github.com/halfxyz/hop/internal/release"
)

// GitDriver is the typed operation set of spec.md §4.1.
type GitDriver interface {
	CurrentBranch(ctx context.Context) (string, error)
	IsClean(ctx context.Context) (bool, error)
	IsSyncedWith(ctx context.Context, branch string) (bool, error)
	Fetch(ctx context.Context, prune, tags bool) error
	Checkout(ctx context.Context, branch string, create bool) error
	CreateBranch(ctx context.Context, branchName, fromRef string) error
	BranchExists(ctx context.Context, branchName string) (bool, error)
	DeleteBranch(ctx context.Context, branchName string, force, remote bool) error
	Merge(ctx context.Context, branch string, noFF bool, message string) error
	ListRemoteBranches(ctx context.Context, prefix string) ([]string, error)
	ListTags(ctx context.Context, pattern string) ([]string, error)
	CreateTag(ctx context.Context, name, ref, annotatedMessage string) error
	PushTag(ctx context.Context, name string) (PushResult, error)
	DeleteTag(ctx context.Context, name string, remote bool) error
	CommitEmpty(ctx context.Context, message string) error
	Commit(ctx context.Context, paths []string, message string) error
	Add(ctx context.Context, paths []string) error
	Mv(ctx context.Context, src, dst string) error
	ResetHard(ctx context.Context, ref string) error
	Push(ctx context.Context, branch string) error
	PushWithRetry(ctx context.Context, branch string, attempts int, sleep func(int)) error
}

// PushResult mirrors git.PushResult without importing the adapter package
// from the port, keeping the dependency direction inward.
type PushResult int

const (
	Accepted PushResult = iota
	Rejected
)

// DBDriver is the contract of spec.md §4.2.
type DBDriver interface {
	ResetToSchema(ctx context.Context, schemaPath string) error
	ApplySQLFile(ctx context.Context, path string) error
	ApplyPythonFile(ctx context.Context, path string, pyContext map[string]any) error
	DumpSchema(ctx context.Context, version release.Version) (path string, err error)
	DumpMetadata(ctx context.Context, version release.Version) (path string, err error)
	DumpSeed(ctx context.Context, version release.Version, tables []string) (path string, err error)
	ReadCurrentVersion(ctx context.Context) (release.Version, error)
	WriteReleaseRow(ctx context.Context, version release.Version, phase release.Phase, comment string) error
}

// PatchState is the per-manifest-row state of spec.md §3.
type PatchState int

const (
	Candidate PatchState = iota
	Staged
)

func (s PatchState) String() string {
	if s == Staged {
		return "staged"
	}
	return "candidate"
}

// ManifestEntry is one row of an ordered manifest or snapshot.
type ManifestEntry struct {
	PatchID string
	State   PatchState
}

// ManifestStore is the contract of spec.md §4.3.
type ManifestStore interface {
	Load(version release.Version) ([]ManifestEntry, error)
	CreateEmpty(version release.Version) error
	AddCandidate(version release.Version, id string, before string) error
	SetStaged(version release.Version, id string) error
	Remove(version release.Version, id string) error
	ToSnapshot(version release.Version) ([]string, error)
	Rename(srcVersion release.Version, srcPhase release.Phase, dstVersion release.Version, dstPhase release.Phase) error
	LoadSnapshot(version release.Version, phase release.Phase) ([]string, error)
	WriteSnapshot(version release.Version, phase release.Phase, ids []string) error
	DeleteManifest(version release.Version) error
}

// PatchStore is the contract of spec.md §4.4.
type PatchStore interface {
	Exists(id string) bool
	Create(id string, issueNumber int) error
	ExecutableFiles(id string) ([]string, error)
	Validate(id string) error
}

// LockHandle represents an acquired mutex lock; Release is idempotent and
// guaranteed safe to call on every exit path.
type LockHandle interface {
	Release(ctx context.Context)
	TagName() string
}

// LockService is the contract of spec.md §4.5.
type LockService interface {
	ReservePatch(ctx context.Context, id string, ref string) error
	Lock(ctx context.Context, scope string) (LockHandle, error)
}
