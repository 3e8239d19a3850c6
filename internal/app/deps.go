package app

import (
	"log"

	"github.com/halfxyz/hop/internal/ports/secondary"
	"github.com/halfxyz/hop/internal/repoconfig"
)

// Deps bundles every secondary port and piece of repository state hop's
// services need. It is constructed once per process by internal/wire and
// passed to every *Service, mirroring the teacher's GitService/pattern of
// small stateless services operating over an injected path.
type Deps struct {
	Git       secondary.GitDriver
	DB        secondary.DBDriver
	Manifests secondary.ManifestStore
	Patches   secondary.PatchStore
	Locks     secondary.LockService

	RepoRoot string
	ModelDir string
	Config   *repoconfig.Config

	Log   *log.Logger
	Now   func() int64 // unix-ms, injected for deterministic tests
	Sleep func(attempt int)
}

func (d *Deps) logger() *log.Logger {
	if d.Log != nil {
		return d.Log
	}
	return log.Default()
}

// devel reports whether the repository's .hop/config has the devel flag
// set (SPEC_FULL §3): in devel mode, CreatePatch and MergePatch skip their
// IsClean/IsSyncedWith calls and treat the worktree as clean and synced. A
// nil Config (e.g. a
// test harness that never loaded one) behaves as devel=false.
func (d *Deps) devel() bool {
	return d.Config != nil && d.Config.Devel
}

// hasRemote reports whether the repository has a remote configured
// (spec.md §3: hop operates only with a remote). A nil Config behaves as
// "has a remote" so callers that never wire a Config (tests, the fakes
// harness) are not forced to opt in.
func (d *Deps) hasRemote() bool {
	return d.Config == nil || d.Config.HasRemote()
}
