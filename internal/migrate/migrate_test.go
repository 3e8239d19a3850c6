package migrate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/halfxyz/hop/internal/repoconfig"
)

func setupRepo(t *testing.T, toolVersion string) string {
	t.Helper()
	dir := t.TempDir()
	if err := repoconfig.Save(dir, &repoconfig.Config{ToolVersion: toolVersion, RemoteURL: "git@example.com:x.git"}); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestMigrateAppliesRelocation(t *testing.T) {
	dir := setupRepo(t, "0.16.0")
	if err := os.MkdirAll(filepath.Join(dir, "releases"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "model"), 0o755); err != nil {
		t.Fatal(err)
	}

	m := New(dir)
	result, err := m.Migrate(context.Background())
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if result.Status != "migrated" {
		t.Fatalf("Status = %q, want migrated", result.Status)
	}
	if _, err := os.Stat(filepath.Join(dir, ".hop", "releases")); err != nil {
		t.Fatalf(".hop/releases missing after migration: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".hop", "model")); err != nil {
		t.Fatalf(".hop/model missing after migration: %v", err)
	}

	cfg, err := repoconfig.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ToolVersion != "0.17.1" {
		t.Fatalf("ToolVersion = %q, want 0.17.1", cfg.ToolVersion)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	dir := setupRepo(t, "0.17.1")
	m := New(dir)
	result, err := m.Migrate(context.Background())
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if result.Status != "already_applied" {
		t.Fatalf("Status = %q, want already_applied", result.Status)
	}
}

func TestCompareDotted(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"0.16.0", "0.17.1", -1},
		{"0.17.1", "0.17.1", 0},
		{"0.18.0", "0.17.1", 1},
		{"1.0.0", "0.99.99", 1},
	}
	for _, tt := range tests {
		if got := compareDotted(tt.a, tt.b); got != tt.want {
			t.Errorf("compareDotted(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
