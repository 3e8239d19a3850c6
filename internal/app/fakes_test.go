package app

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/halfxyz/hop/internal/ports/secondary"
	"github.com/halfxyz/hop/internal/release"
)

var (
	_ secondary.GitDriver     = (*fakeGit)(nil)
	_ secondary.DBDriver      = (*fakeDB)(nil)
	_ secondary.ManifestStore = (*fakeManifest)(nil)
	_ secondary.PatchStore    = (*fakePatchStore)(nil)
	_ secondary.LockService   = (*fakeLockService)(nil)
	_ secondary.LockHandle    = (*fakeLockHandle)(nil)
)

// fakeGit is an in-memory secondary.GitDriver standing in for a real
// clone: branches, tags and the working tree are plain maps guarded by a
// mutex so the concurrent-reservation scenario can race two goroutines
// against it, mirroring internal/lock/lock_test.go's fakeGit.
type fakeGit struct {
	mu sync.Mutex

	current    string
	branches   map[string]bool
	tags       map[string]bool
	clean      bool
	cleanQueue []bool // if non-empty, IsClean pops from here instead of using clean
	synced     map[string]bool
	conflicts  map[string]bool // branch name -> Merge fails

	pushed    []string
	pushedTag []string
}

func newFakeGit(initialBranch string) *fakeGit {
	return &fakeGit{
		current:  initialBranch,
		branches: map[string]bool{initialBranch: true},
		tags:     map[string]bool{},
		clean:    true,
		synced:   map[string]bool{},
	}
}

func (g *fakeGit) CurrentBranch(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current, nil
}

func (g *fakeGit) IsClean(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.cleanQueue) > 0 {
		v := g.cleanQueue[0]
		g.cleanQueue = g.cleanQueue[1:]
		return v, nil
	}
	return g.clean, nil
}

func (g *fakeGit) IsSyncedWith(ctx context.Context, branch string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if v, ok := g.synced[branch]; ok {
		return v, nil
	}
	return true, nil
}

func (g *fakeGit) Fetch(ctx context.Context, prune, tags bool) error { return nil }

func (g *fakeGit) Checkout(ctx context.Context, branch string, create bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if create {
		g.branches[branch] = true
	} else if !g.branches[branch] {
		return fmt.Errorf("checkout: no such branch %s", branch)
	}
	g.current = branch
	return nil
}

func (g *fakeGit) CreateBranch(ctx context.Context, branchName, fromRef string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.branches[branchName] {
		return fmt.Errorf("branch %s already exists", branchName)
	}
	g.branches[branchName] = true
	return nil
}

func (g *fakeGit) BranchExists(ctx context.Context, branchName string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.branches[branchName], nil
}

func (g *fakeGit) DeleteBranch(ctx context.Context, branchName string, force, remote bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.branches, branchName)
	return nil
}

func (g *fakeGit) Merge(ctx context.Context, branch string, noFF bool, message string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conflicts[branch] {
		return fmt.Errorf("merge conflict in %s", branch)
	}
	return nil
}

func (g *fakeGit) ListRemoteBranches(ctx context.Context, prefix string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for b := range g.branches {
		if strings.HasPrefix(b, prefix) {
			out = append(out, b)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (g *fakeGit) ListTags(ctx context.Context, pattern string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for t := range g.tags {
		if ok, _ := path.Match(pattern, t); ok {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (g *fakeGit) CreateTag(ctx context.Context, name, ref, annotatedMessage string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tags[name] = true
	return nil
}

func (g *fakeGit) PushTag(ctx context.Context, name string) (secondary.PushResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pushedTag = append(g.pushedTag, name)
	return secondary.Accepted, nil
}

func (g *fakeGit) DeleteTag(ctx context.Context, name string, remote bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.tags, name)
	return nil
}

func (g *fakeGit) CommitEmpty(ctx context.Context, message string) error { return nil }

func (g *fakeGit) Commit(ctx context.Context, paths []string, message string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clean = true
	return nil
}

func (g *fakeGit) Add(ctx context.Context, paths []string) error { return nil }

func (g *fakeGit) Mv(ctx context.Context, src, dst string) error { return nil }

func (g *fakeGit) ResetHard(ctx context.Context, ref string) error { return nil }

func (g *fakeGit) Push(ctx context.Context, branch string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pushed = append(g.pushed, branch)
	return nil
}

func (g *fakeGit) PushWithRetry(ctx context.Context, branch string, attempts int, sleep func(int)) error {
	return g.Push(ctx, branch)
}

type fakeDB struct {
	mu      sync.Mutex
	current release.Version

	resets  []string
	written []string
}

func newFakeDB(current release.Version) *fakeDB {
	return &fakeDB{current: current}
}

func (d *fakeDB) ResetToSchema(ctx context.Context, schemaPath string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resets = append(d.resets, schemaPath)
	return nil
}

func (d *fakeDB) ApplySQLFile(ctx context.Context, path string) error { return nil }

func (d *fakeDB) ApplyPythonFile(ctx context.Context, path string, pyContext map[string]any) error {
	return nil
}

func (d *fakeDB) DumpSchema(ctx context.Context, version release.Version) (string, error) {
	return fmt.Sprintf("schema-%s.sql", version), nil
}

func (d *fakeDB) DumpMetadata(ctx context.Context, version release.Version) (string, error) {
	return fmt.Sprintf("metadata-%s.json", version), nil
}

func (d *fakeDB) DumpSeed(ctx context.Context, version release.Version, tables []string) (string, error) {
	return fmt.Sprintf("seed-%s.sql", version), nil
}

func (d *fakeDB) ReadCurrentVersion(ctx context.Context) (release.Version, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current, nil
}

func (d *fakeDB) WriteReleaseRow(ctx context.Context, version release.Version, phase release.Phase, comment string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.written = append(d.written, fmt.Sprintf("%s %s %s", version, phase, comment))
	d.current = version
	return nil
}

// fakeManifest is an in-memory secondary.ManifestStore. It keeps both the
// live development manifest (per version) and the immutable RC/prod/hotfix
// snapshots Rename and WriteSnapshot produce, exactly as
// internal/manifest's real store separates the two on disk.
type fakeManifest struct {
	mu        sync.Mutex
	manifests map[release.Version][]secondary.ManifestEntry
	snapshots map[string][]string // key: version.String()+"/"+phase.String()
}

func newFakeManifest() *fakeManifest {
	return &fakeManifest{
		manifests: map[release.Version][]secondary.ManifestEntry{},
		snapshots: map[string][]string{},
	}
}

func snapKey(v release.Version, p release.Phase) string { return v.String() + "/" + p.String() }

// putEntry seeds a manifest row directly, for scenarios that need an
// already-in-flight release without separately driving create_release and
// create_patch for every supporting fixture.
func (m *fakeManifest) putEntry(v release.Version, id string, state secondary.PatchState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manifests[v] = append(m.manifests[v], secondary.ManifestEntry{PatchID: id, State: state})
}

func (m *fakeManifest) Load(version release.Version) ([]secondary.ManifestEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries, ok := m.manifests[version]
	if !ok {
		return nil, fmt.Errorf("no manifest for %s", version)
	}
	out := make([]secondary.ManifestEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (m *fakeManifest) CreateEmpty(version release.Version) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.manifests[version]; ok {
		return fmt.Errorf("manifest for %s already exists", version)
	}
	m.manifests[version] = []secondary.ManifestEntry{}
	return nil
}

func (m *fakeManifest) AddCandidate(version release.Version, id string, before string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.manifests[version]
	for _, e := range entries {
		if e.PatchID == id {
			return fmt.Errorf("patch %s already in manifest for %s", id, version)
		}
	}
	m.manifests[version] = append(entries, secondary.ManifestEntry{PatchID: id, State: secondary.Candidate})
	return nil
}

func (m *fakeManifest) SetStaged(version release.Version, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.manifests[version]
	for i, e := range entries {
		if e.PatchID == id {
			entries[i].State = secondary.Staged
			return nil
		}
	}
	return fmt.Errorf("patch %s not found in manifest for %s", id, version)
}

func (m *fakeManifest) Remove(version release.Version, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.manifests[version]
	for i, e := range entries {
		if e.PatchID == id {
			m.manifests[version] = append(entries[:i], entries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("patch %s not found in manifest for %s", id, version)
}

func (m *fakeManifest) ToSnapshot(version release.Version) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, e := range m.manifests[version] {
		if e.State == secondary.Staged {
			ids = append(ids, e.PatchID)
		}
	}
	return ids, nil
}

func (m *fakeManifest) Rename(srcVersion release.Version, srcPhase release.Phase, dstVersion release.Version, dstPhase release.Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids, ok := m.snapshots[snapKey(srcVersion, srcPhase)]
	if !ok {
		return fmt.Errorf("no snapshot %s/%s", srcVersion, srcPhase)
	}
	delete(m.snapshots, snapKey(srcVersion, srcPhase))
	m.snapshots[snapKey(dstVersion, dstPhase)] = ids
	return nil
}

func (m *fakeManifest) LoadSnapshot(version release.Version, phase release.Phase) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids, ok := m.snapshots[snapKey(version, phase)]
	if !ok {
		return nil, fmt.Errorf("no snapshot %s/%s", version, phase)
	}
	out := make([]string, len(ids))
	copy(out, ids)
	return out, nil
}

func (m *fakeManifest) WriteSnapshot(version release.Version, phase release.Phase, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snapKey(version, phase)] = append([]string{}, ids...)
	return nil
}

func (m *fakeManifest) DeleteManifest(version release.Version) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.manifests, version)
	return nil
}

// fakePatchStore is an in-memory secondary.PatchStore; every patch has
// zero executable files so applySequence/applyInOrder are no-ops,
// matching the scenarios below, which assert on branch/manifest/tag state
// rather than on SQL/Python execution order.
type fakePatchStore struct {
	mu     sync.Mutex
	exists map[string]bool
}

func newFakePatchStore() *fakePatchStore {
	return &fakePatchStore{exists: map[string]bool{}}
}

func (p *fakePatchStore) Exists(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exists[id]
}

func (p *fakePatchStore) Create(id string, issueNumber int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exists[id] = true
	return nil
}

func (p *fakePatchStore) ExecutableFiles(id string) ([]string, error) { return nil, nil }

func (p *fakePatchStore) Validate(id string) error { return nil }

// fakeLockHandle is a no-op secondary.LockHandle whose Release calls back
// into the owning fakeLockService so Lock/Release pairs are observable.
type fakeLockHandle struct {
	scope string
	svc   *fakeLockService
}

func (h *fakeLockHandle) Release(ctx context.Context) { h.svc.unlock(h.scope) }
func (h *fakeLockHandle) TagName() string             { return "lock-" + h.scope }

// fakeLockService is an in-memory secondary.LockService. ReservePatch
// atomically claims a patch id exactly once, which is what drives the
// concurrent-reservation scenario below; Lock serializes on scope with a
// per-scope mutex, refusing a second concurrent holder the way the real
// adapter's remote lock tag does.
type fakeLockService struct {
	mu       sync.Mutex
	reserved map[string]bool
	held     map[string]bool
}

func newFakeLockService() *fakeLockService {
	return &fakeLockService{reserved: map[string]bool{}, held: map[string]bool{}}
}

func (l *fakeLockService) ReservePatch(ctx context.Context, id string, ref string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.reserved[id] {
		return fmt.Errorf("reservation tag patch-id/%s already exists", id)
	}
	l.reserved[id] = true
	return nil
}

func (l *fakeLockService) Lock(ctx context.Context, scope string) (secondary.LockHandle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[scope] {
		return nil, fmt.Errorf("lock-%s is held by another process", scope)
	}
	l.held[scope] = true
	return &fakeLockHandle{scope: scope, svc: l}, nil
}

func (l *fakeLockService) unlock(scope string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, scope)
}
