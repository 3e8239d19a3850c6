package patchstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCreateAndExists(t *testing.T) {
	s := New(t.TempDir())
	if s.Exists("42-login") {
		t.Fatal("should not exist before Create")
	}
	if err := s.Create("42-login", 42); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !s.Exists("42-login") {
		t.Fatal("should exist after Create")
	}
	readme, err := os.ReadFile(filepath.Join(s.Dir, "42-login", "README.md"))
	if err != nil {
		t.Fatalf("reading README: %v", err)
	}
	if !strings.Contains(string(readme), "42-login") || !strings.Contains(string(readme), "#42") {
		t.Fatalf("README content = %q, missing id/issue", readme)
	}
}

func TestExecutableFilesSortedAndFiltered(t *testing.T) {
	s := New(t.TempDir())
	must(t, s.Create("42-login", 42))
	dir := filepath.Join(s.Dir, "42-login")
	writeFile(t, filepath.Join(dir, "02.sql"), "SELECT 2;")
	writeFile(t, filepath.Join(dir, "01.sql"), "SELECT 1;")
	writeFile(t, filepath.Join(dir, "seed.py"), "pass")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignore me")

	files, err := s.ExecutableFiles("42-login")
	if err != nil {
		t.Fatalf("ExecutableFiles: %v", err)
	}
	want := []string{"01.sql", "02.sql", "seed.py"}
	if len(files) != len(want) {
		t.Fatalf("ExecutableFiles() = %v, want %v", files, want)
	}
	for i, w := range want {
		if filepath.Base(files[i]) != w {
			t.Fatalf("ExecutableFiles()[%d] = %q, want %q", i, filepath.Base(files[i]), w)
		}
	}
}

func TestValidateRejectsEmptyAndNonExecutableOnly(t *testing.T) {
	s := New(t.TempDir())
	must(t, s.Create("1", 1))
	if err := s.Validate("1"); err == nil {
		t.Fatal("expected NoExecutableFiles error for README-only patch")
	}

	dir := filepath.Join(s.Dir, "1")
	writeFile(t, filepath.Join(dir, "01.sql"), "SELECT 1;")
	if err := s.Validate("1"); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsMissingDirectory(t *testing.T) {
	s := New(t.TempDir())
	if err := s.Validate("99"); err == nil {
		t.Fatal("expected PatchMissing error")
	}
}

func TestPythonOnlyPatchAccepted(t *testing.T) {
	s := New(t.TempDir())
	must(t, s.Create("7", 7))
	writeFile(t, filepath.Join(s.Dir, "7", "01.py"), "pass")
	if err := s.Validate("7"); err != nil {
		t.Fatalf("Validate python-only patch: %v", err)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
