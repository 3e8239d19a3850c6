// Package manifest implements ManifestStore: the per-release mutable
// manifest and the immutable RC/production/hotfix snapshot files of
// spec.md §4.3.
//
// The development manifest format is a narrow, single-section,
// order-sensitive key/value list (`"<PatchId>" = "candidate" | "staged"`,
// one row per line under a `[patches]` header). No library in the example
// corpus parses TOML while preserving map insertion order (encoding/json
// preserves slice order but not map order; a generic TOML decoder degrades
// ordered keys to a Go map). Because insertion order IS the single source
// of truth for patch application order (spec.md §4.3's central invariant),
// this package hand-rolls a minimal line-oriented reader/writer instead of
// reaching for a general TOML library — see DESIGN.md for the full
// justification.
package manifest

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/halfxyz/hop/internal/hoperrors"
	"github.com/halfxyz/hop/internal/ports/secondary"
	"github.com/halfxyz/hop/internal/release"
)

// Store implements secondary.ManifestStore rooted at a .hop/releases
// directory.
type Store struct {
	Dir string // path to .hop/releases
}

// New returns a Store rooted at dir.
func New(dir string) *Store { return &Store{Dir: dir} }

func (s *Store) devPath(v release.Version) string {
	return filepath.Join(s.Dir, release.Filename(v, release.Phase{Kind: release.PhaseDevelopment}))
}

func (s *Store) snapshotPath(v release.Version, p release.Phase) string {
	return filepath.Join(s.Dir, release.Filename(v, p))
}

var manifestRowRe = regexp.MustCompile(`^"([^"]+)"\s*=\s*"(candidate|staged)"\s*$`)

// Load reads the development manifest for version, preserving row order.
func (s *Store) Load(v release.Version) ([]secondary.ManifestEntry, error) {
	f, err := os.Open(s.devPath(v))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, hoperrors.Precondition("load_manifest", "UnknownVersion", fmt.Errorf("no development manifest for %s", v))
		}
		return nil, hoperrors.Internal("load_manifest", err)
	}
	defer f.Close()

	var entries []secondary.ManifestEntry
	inSection := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "[patches]" {
			inSection = true
			continue
		}
		if !inSection {
			continue
		}
		m := manifestRowRe.FindStringSubmatch(line)
		if m == nil {
			return nil, hoperrors.Internal("load_manifest", fmt.Errorf("malformed manifest row %q", line))
		}
		state := secondary.Candidate
		if m[2] == "staged" {
			state = secondary.Staged
		}
		entries = append(entries, secondary.ManifestEntry{PatchID: m[1], State: state})
	}
	if err := scanner.Err(); err != nil {
		return nil, hoperrors.Internal("load_manifest", err)
	}
	return entries, nil
}

func (s *Store) write(v release.Version, entries []secondary.ManifestEntry) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return hoperrors.Internal("write_manifest", err)
	}
	var b strings.Builder
	b.WriteString("[patches]\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%q = %q\n", e.PatchID, e.State.String())
	}
	tmp := s.devPath(v) + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return hoperrors.Internal("write_manifest", err)
	}
	if err := os.Rename(tmp, s.devPath(v)); err != nil {
		return hoperrors.Internal("write_manifest", err)
	}
	return nil
}

// CreateEmpty creates a manifest file for version with an empty [patches]
// section.
func (s *Store) CreateEmpty(v release.Version) error {
	if _, err := os.Stat(s.devPath(v)); err == nil {
		return hoperrors.Precondition("create_empty", "ManifestExists", fmt.Errorf("manifest for %s already exists", v))
	}
	return s.write(v, nil)
}

// AddCandidate appends id (or inserts it immediately before an existing
// `before` id) as Candidate. Rejects duplicates and an unknown before.
func (s *Store) AddCandidate(v release.Version, id string, before string) error {
	entries, err := s.Load(v)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.PatchID == id {
			return hoperrors.Precondition("add_candidate", "DuplicatePatch", fmt.Errorf("patch %s already in manifest for %s", id, v))
		}
	}
	row := secondary.ManifestEntry{PatchID: id, State: secondary.Candidate}
	if before == "" {
		entries = append(entries, row)
	} else {
		idx := indexOf(entries, before)
		if idx < 0 {
			return hoperrors.Precondition("add_candidate", "UnknownPatch", fmt.Errorf("before-patch %s not found in manifest for %s", before, v))
		}
		entries = append(entries[:idx:idx], append([]secondary.ManifestEntry{row}, entries[idx:]...)...)
	}
	return s.write(v, entries)
}

// SetStaged transitions id to Staged in place, preserving row order.
func (s *Store) SetStaged(v release.Version, id string) error {
	entries, err := s.Load(v)
	if err != nil {
		return err
	}
	idx := indexOf(entries, id)
	if idx < 0 {
		return hoperrors.Precondition("set_staged", "UnknownPatch", fmt.Errorf("patch %s not found in manifest for %s", id, v))
	}
	if entries[idx].State == secondary.Staged {
		return hoperrors.Precondition("set_staged", "AlreadyStaged", fmt.Errorf("patch %s already staged in %s", id, v))
	}
	entries[idx].State = secondary.Staged
	return s.write(v, entries)
}

// Remove deletes id from the manifest. Permitted only in Development phase,
// which is automatically implied since only the mutable manifest exposes
// Remove.
func (s *Store) Remove(v release.Version, id string) error {
	entries, err := s.Load(v)
	if err != nil {
		return err
	}
	idx := indexOf(entries, id)
	if idx < 0 {
		return hoperrors.Precondition("remove", "UnknownPatch", fmt.Errorf("patch %s not found in manifest for %s", id, v))
	}
	entries = append(entries[:idx], entries[idx+1:]...)
	return s.write(v, entries)
}

// ToSnapshot returns the ordered list of Staged patch ids.
func (s *Store) ToSnapshot(v release.Version) ([]string, error) {
	entries, err := s.Load(v)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.State == secondary.Staged {
			ids = append(ids, e.PatchID)
		}
	}
	return ids, nil
}

// WriteSnapshot writes an immutable RC/production/hotfix snapshot file: one
// PatchId per line with a single header comment, never re-emitting
// trailing comments on read.
func (s *Store) WriteSnapshot(v release.Version, p release.Phase, ids []string) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return hoperrors.Internal("write_snapshot", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Release %s", v)
	switch p.Kind {
	case release.PhaseCandidate:
		fmt.Fprintf(&b, "-rc%d", p.N)
	case release.PhaseHotfix:
		fmt.Fprintf(&b, "-hotfix%d", p.N)
	}
	b.WriteString("\n")
	for _, id := range ids {
		b.WriteString(id)
		b.WriteString("\n")
	}
	path := s.snapshotPath(v, p)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return hoperrors.Internal("write_snapshot", err)
	}
	return os.Rename(tmp, path)
}

// LoadSnapshot reads an immutable snapshot file, tolerating `#` comments
// and blank lines.
func (s *Store) LoadSnapshot(v release.Version, p release.Phase) ([]string, error) {
	f, err := os.Open(s.snapshotPath(v, p))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, hoperrors.Precondition("load_snapshot", "UnknownVersion", fmt.Errorf("no %s snapshot for %s", p, v))
		}
		return nil, hoperrors.Internal("load_snapshot", err)
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, hoperrors.Internal("load_snapshot", err)
	}
	return ids, nil
}

// Rename materializes a promotion transition by moving srcVersion/srcPhase's
// file to dstVersion/dstPhase's filename in the working tree.
func (s *Store) Rename(srcVersion release.Version, srcPhase release.Phase, dstVersion release.Version, dstPhase release.Phase) error {
	srcPath := s.snapshotPathOrDev(srcVersion, srcPhase)
	dstPath := s.snapshotPathOrDev(dstVersion, dstPhase)
	if err := os.Rename(srcPath, dstPath); err != nil {
		return hoperrors.Internal("rename", err)
	}
	return nil
}

func (s *Store) snapshotPathOrDev(v release.Version, p release.Phase) string {
	if p.Kind == release.PhaseDevelopment {
		return s.devPath(v)
	}
	return s.snapshotPath(v, p)
}

// DeleteManifest removes the mutable manifest file for version, used once a
// promotion to production has consumed it.
func (s *Store) DeleteManifest(v release.Version) error {
	if err := os.Remove(s.devPath(v)); err != nil && !os.IsNotExist(err) {
		return hoperrors.Internal("delete_manifest", err)
	}
	return nil
}

func indexOf(entries []secondary.ManifestEntry, id string) int {
	for i, e := range entries {
		if e.PatchID == id {
			return i
		}
	}
	return -1
}

var _ secondary.ManifestStore = (*Store)(nil)
