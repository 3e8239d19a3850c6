// Package patchstore implements PatchStore: the on-disk Patches/<id>/
// directory of spec.md §4.4 — enumerating executable files in
// lexicographic order, classifying by extension, and validating structure.
package patchstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/halfxyz/hop/internal/hoperrors"
)

// executableExts are the file extensions the applier runs, in spec.md §3's
// PatchArtifact definition.
var executableExts = map[string]bool{".sql": true, ".py": true}

// readmeTemplate mirrors the teacher's templated scaffolding (e.g.
// internal/core/grove/planner.go's generated config) adapted to the patch
// directory README the original_source/half_orm_packager/patch.py writes
// on patch creation.
const readmeTemplate = `# Patch %s

Issue: #%d

Add SQL (.sql) or Python (.py) files to this directory. They are applied in
strict lexicographic order of filename.
`

// Store implements secondary.PatchStore rooted at a repository's Patches/
// directory.
type Store struct {
	Dir string // path to Patches/
}

// New returns a Store rooted at dir.
func New(dir string) *Store { return &Store{Dir: dir} }

func (s *Store) path(id string) string { return filepath.Join(s.Dir, id) }

// Exists reports whether Patches/<id>/ exists.
func (s *Store) Exists(id string) bool {
	info, err := os.Stat(s.path(id))
	return err == nil && info.IsDir()
}

// Create makes Patches/<id>/ with a minimal README naming the issue number.
func (s *Store) Create(id string, issueNumber int) error {
	dir := s.path(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return hoperrors.Internal("create_patch_dir", err)
	}
	content := fmt.Sprintf(readmeTemplate, id, issueNumber)
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte(content), 0o644); err != nil {
		return hoperrors.Internal("create_patch_dir", err)
	}
	return nil
}

// ExecutableFiles returns the .sql/.py files under Patches/<id>/ sorted
// lexicographically by filename.
func (s *Store) ExecutableFiles(id string) ([]string, error) {
	dir := s.path(id)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, hoperrors.Precondition("executable_files", "PatchMissing", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if executableExts[filepath.Ext(e.Name())] {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	full := make([]string, len(files))
	for i, f := range files {
		full[i] = filepath.Join(dir, f)
	}
	return full, nil
}

// Validate requires the patch directory to be non-empty and contain at
// least one executable file.
func (s *Store) Validate(id string) error {
	if !s.Exists(id) {
		return hoperrors.Precondition("validate_patch", "PatchMissing", fmt.Errorf("Patches/%s does not exist", id))
	}
	files, err := s.ExecutableFiles(id)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return hoperrors.Precondition("validate_patch", "NoExecutableFiles", fmt.Errorf("patch %s has no .sql or .py files", id))
	}
	return nil
}
