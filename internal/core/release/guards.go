// Package release contains the pure precondition and invariant guards for
// ReleaseLifecycle (spec.md §4.7): sequential promotion, single active RC,
// and hotfix re-entry. It is deliberately distinct from internal/release
// (ReleaseNaming, a value package with no guard concept) — this package
// reasons about the *set* of open releases, that one about a single
// version's syntax.
package release

import (
	"fmt"

	"github.com/halfxyz/hop/internal/release"
)

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
	Code    string
}

func ok() GuardResult { return GuardResult{Allowed: true} }

func deny(code, format string, args ...any) GuardResult {
	return GuardResult{Allowed: false, Code: code, Reason: fmt.Sprintf(format, args...)}
}

// CreateReleaseContext carries the facts CanCreateRelease needs.
type CreateReleaseContext struct {
	TargetVersion release.Version
	ReleaseExists bool
}

// CanCreateRelease evaluates spec.md §4.7 create_release preconditions: no
// RELEASE(v) already exists for the computed target version.
func CanCreateRelease(ctx CreateReleaseContext) GuardResult {
	if ctx.ReleaseExists {
		return deny("BranchExists", "ho-release/%s already exists", ctx.TargetVersion)
	}
	return ok()
}

// PromoteContext carries the facts CanPromoteToRC and CanPromoteToProd need.
// OpenReleases covers every development-phase version with a non-empty
// staged set; ProductionVersion is the current PROD version (zero value
// means none yet); ActiveRCVersion/ActiveRCExists describe any RC family
// not yet in production.
type PromoteContext struct {
	TargetVersion     release.Version
	OpenReleases      []release.Version
	ProductionVersion release.Version
	ActiveRCExists    bool
	ActiveRCVersion   release.Version
}

// minOpenVersion returns the smallest of vs, or the zero Version if vs is
// empty.
func minOpenVersion(vs []release.Version) (release.Version, bool) {
	if len(vs) == 0 {
		return release.Version{}, false
	}
	min := vs[0]
	for _, v := range vs[1:] {
		if v.Compare(min) < 0 {
			min = v
		}
	}
	return min, true
}

// CanPromoteToRC evaluates the sequential-promotion and single-active-RC
// invariants of spec.md §4.7. The target version must be the minimal open
// version, and its semver predecessor must already be in production;
// unless an RC family is already active, in which case only that same
// version may be promoted further.
func CanPromoteToRC(ctx PromoteContext) GuardResult {
	if ctx.ActiveRCExists && ctx.ActiveRCVersion.Compare(ctx.TargetVersion) != 0 {
		return deny("ActiveRCExists", "version %s already has an active RC; promote it to production first", ctx.ActiveRCVersion)
	}

	min, any := minOpenVersion(ctx.OpenReleases)
	if any && min.Compare(ctx.TargetVersion) != 0 {
		return deny("SequentialityViolated", "version %s must be promoted before %s", min, ctx.TargetVersion)
	}

	if !isImmediateSuccessor(ctx.TargetVersion, ctx.ProductionVersion) {
		return deny("SequentialityViolated", "version %s's predecessor is not yet in production (production is at %s)", ctx.TargetVersion, ctx.ProductionVersion)
	}
	return ok()
}

// CanPromoteToProd evaluates the same sequential-predecessor invariant at
// production-promotion time; by this point the single-active-RC rule is no
// longer relevant because exactly one RC family exists for the target.
func CanPromoteToProd(ctx PromoteContext) GuardResult {
	if !isImmediateSuccessor(ctx.TargetVersion, ctx.ProductionVersion) {
		return deny("SequentialityViolated", "version %s's predecessor is not yet in production (production is at %s)", ctx.TargetVersion, ctx.ProductionVersion)
	}
	return ok()
}

// isImmediateSuccessor reports whether target is production's immediate
// semver successor: production itself (0.0.0 sentinel for "none") is
// always an eligible predecessor, and any version strictly greater than
// production qualifies as long as no lower open release still intervenes —
// that ordering is enforced separately via minOpenVersion.
func isImmediateSuccessor(target, production release.Version) bool {
	return target.Compare(production) > 0
}

// HotfixOpenContext carries the facts CanHotfixOpen needs.
type HotfixOpenContext struct {
	Version             release.Version
	ProductionTagExists bool
	ReleaseExists       bool
}

// CanHotfixOpen evaluates spec.md §4.7 hotfix_open preconditions: the
// production marker tag for the version must exist, and no RELEASE(v) may
// already be open.
func CanHotfixOpen(ctx HotfixOpenContext) GuardResult {
	if !ctx.ProductionTagExists {
		return deny("TagMissing", "release-%s tag does not exist; %s was never promoted to production", ctx.Version, ctx.Version)
	}
	if ctx.ReleaseExists {
		return deny("BranchExists", "ho-release/%s already exists", ctx.Version)
	}
	return ok()
}
