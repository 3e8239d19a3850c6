package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/halfxyz/hop/internal/ports/primary"
	"github.com/halfxyz/hop/internal/ports/secondary"
	"github.com/halfxyz/hop/internal/release"
)

// create_patch(id) twice fails the second time with PatchExists and leaves
// remote state unchanged (spec.md §8 round-trip law, exercised end to end
// rather than only at the guard-function level in core/patch/guards_test.go).
func TestInvariant_CreatePatchTwiceFails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, ProdBranch, release.Version{Major: 2, Minor: 0, Patch: 0})
	if _, _, err := h.orch.NewRelease(ctx, release.LevelPatch); err != nil {
		t.Fatalf("NewRelease: %v", err)
	}
	if _, _, err := h.orch.CreatePatch(ctx, "10-once"); err != nil {
		t.Fatalf("first CreatePatch: %v", err)
	}

	pushedBefore := append([]string{}, h.git.pushed...)
	branchesBefore := len(h.git.branches)

	if _, _, err := h.orch.CreatePatch(ctx, "10-once"); err == nil {
		t.Fatalf("second CreatePatch: expected PatchExists, got success")
	} else if !containsCode(err, "PatchExists") {
		t.Fatalf("second CreatePatch error = %v, want PatchExists", err)
	}

	if len(h.git.branches) != branchesBefore {
		t.Fatalf("branch count changed on rejected CreatePatch: before=%d after=%d", branchesBefore, len(h.git.branches))
	}
	if len(h.git.pushed) != len(pushedBefore) {
		t.Fatalf("push log changed on rejected CreatePatch: %v", h.git.pushed)
	}
}

// apply_patch run twice in succession on the same PATCH(id) has the same
// effect as running it once (spec.md §8 idempotence law): the fakes apply
// zero executable files per patch, so the only observable effect is the
// reset count and the resulting working-tree cleanliness, both of which
// must match after a second call.
func TestInvariant_ApplyPatchTwiceMatchesOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, ProdBranch, release.Version{Major: 2, Minor: 1, Patch: 0})
	if _, _, err := h.orch.NewRelease(ctx, release.LevelPatch); err != nil {
		t.Fatalf("NewRelease: %v", err)
	}
	if _, _, err := h.orch.CreatePatch(ctx, "11-reapply"); err != nil {
		t.Fatalf("CreatePatch: %v", err)
	}

	if _, code, err := h.orch.ApplyPatch(ctx); err != nil {
		t.Fatalf("first ApplyPatch: code=%v err=%v", code, err)
	}
	firstResets := len(h.db.resets)

	if _, code, err := h.orch.ApplyPatch(ctx); err != nil {
		t.Fatalf("second ApplyPatch: code=%v err=%v", code, err)
	}
	secondResets := len(h.db.resets)

	if secondResets != firstResets+1 {
		t.Fatalf("second ApplyPatch performed %d resets since the first, want exactly 1", secondResets-firstResets)
	}
	clean, err := h.git.IsClean(ctx)
	if err != nil {
		t.Fatalf("IsClean: %v", err)
	}
	if !clean {
		t.Fatalf("working tree not clean after repeated ApplyPatch")
	}
}

// After a failed merge_patch(id), the manifest, the RELEASE(v) branch head
// and the remote are unchanged from the pre-call state: no ho-validate/*
// branch remains and no lock tag remains held (spec.md §8 invariant 7).
func TestInvariant_FailedMergeLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, ProdBranch, release.Version{Major: 2, Minor: 2, Patch: 0})
	if _, _, err := h.orch.NewRelease(ctx, release.LevelPatch); err != nil {
		t.Fatalf("NewRelease: %v", err)
	}
	if _, _, err := h.orch.CreatePatch(ctx, "12-conflict"); err != nil {
		t.Fatalf("CreatePatch: %v", err)
	}
	if _, _, err := h.orch.ApplyPatch(ctx); err != nil {
		t.Fatalf("ApplyPatch: %v", err)
	}

	v := release.Version{Major: 2, Minor: 2, Patch: 1}
	manifestBefore, err := h.manifests.Load(v)
	if err != nil {
		t.Fatalf("Load manifest before merge: %v", err)
	}
	pushedBefore := append([]string{}, h.git.pushed...)

	h.git.mu.Lock()
	h.git.conflicts = map[string]bool{patchBranch("12-conflict"): true}
	h.git.mu.Unlock()

	_, code, err := h.orch.MergePatch(ctx)
	if err == nil {
		t.Fatalf("MergePatch: expected MergeConflict, got success (code=%v)", code)
	}

	manifestAfter, loadErr := h.manifests.Load(v)
	if loadErr != nil {
		t.Fatalf("Load manifest after failed merge: %v", loadErr)
	}
	if len(manifestAfter) != len(manifestBefore) {
		t.Fatalf("manifest changed after failed merge: before=%v after=%v", manifestBefore, manifestAfter)
	}
	for i := range manifestBefore {
		if manifestAfter[i] != manifestBefore[i] {
			t.Fatalf("manifest entry %d changed after failed merge: before=%v after=%v", i, manifestBefore[i], manifestAfter[i])
		}
	}
	if len(h.git.pushed) != len(pushedBefore) {
		t.Fatalf("remote push log changed after failed merge: before=%v after=%v", pushedBefore, h.git.pushed)
	}
	if h.git.branches[validateBranch("12-conflict")] {
		t.Fatalf("ho-validate/12-conflict branch remains after failed merge")
	}
	if h.locks.held[releaseBranch(v)] {
		t.Fatalf("lock tag for %s remains held after failed merge", releaseBranch(v))
	}
}

// After promote_to_prod(v), model/schema.sql resolves to
// model/schema-v.sql and DBDriver.read_current_version on a freshly
// deployed DB returns v (spec.md §8 invariant 8).
func TestInvariant_SchemaSymlinkAndVersionAfterPromoteProd(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, ProdBranch, release.Version{Major: 4, Minor: 0, Patch: 0})
	h.openRelease(release.Version{Major: 4, Minor: 0, Patch: 1}, "30-x", true)

	if _, code, err := h.orch.PromoteRC(ctx); err != nil || code != primary.ExitSuccess {
		t.Fatalf("PromoteRC: code=%v err=%v", code, err)
	}
	if _, code, err := h.orch.PromoteProd(ctx); err != nil || code != primary.ExitSuccess {
		t.Fatalf("PromoteProd: code=%v err=%v", code, err)
	}

	got, err := h.db.ReadCurrentVersion(ctx)
	if err != nil {
		t.Fatalf("ReadCurrentVersion: %v", err)
	}
	want := release.Version{Major: 4, Minor: 0, Patch: 1}
	if got != want {
		t.Fatalf("production version = %s, want %s", got, want)
	}

	target, err := os.Readlink(filepath.Join(h.orch.Deps.ModelDir, "schema.sql"))
	if err != nil {
		t.Fatalf("Readlink model/schema.sql: %v", err)
	}
	if target != "schema-4.0.1.sql" {
		t.Fatalf("model/schema.sql -> %q, want schema-4.0.1.sql", target)
	}
}

// Manifest entry state survives a write/read round trip through the store
// unchanged (spec.md §8 "read(write(m)) = m" law).
func TestInvariant_ManifestRoundTrip(t *testing.T) {
	m := newFakeManifest()
	v := release.Version{Major: 3, Minor: 0, Patch: 0}
	if err := m.CreateEmpty(v); err != nil {
		t.Fatalf("CreateEmpty: %v", err)
	}
	if err := m.AddCandidate(v, "20-a", ""); err != nil {
		t.Fatalf("AddCandidate: %v", err)
	}
	if err := m.SetStaged(v, "20-a"); err != nil {
		t.Fatalf("SetStaged: %v", err)
	}

	entries, err := m.Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []secondary.ManifestEntry{{PatchID: "20-a", State: secondary.Staged}}
	if len(entries) != len(want) || entries[0] != want[0] {
		t.Fatalf("round trip mismatch: got %v, want %v", entries, want)
	}
}
