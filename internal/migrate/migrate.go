// Package migrate implements Migrator (spec.md §4.9): idempotent,
// version-guarded migrations of a repository's on-disk .hop/ layout
// between own-tool versions, grounded on the teacher's ordered migration
// list (internal/db/migrations.go) adapted from SQL migrations to
// filesystem migrations.
package migrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/halfxyz/hop/internal/hoperrors"
	"github.com/halfxyz/hop/internal/ports/primary"
	"github.com/halfxyz/hop/internal/repoconfig"
)

// Outcome is the per-migration result of spec.md §4.9.
type Outcome int

const (
	Migrated Outcome = iota
	AlreadyApplied
)

// Migration is one ordered, idempotent repository-layout migration.
type Migration struct {
	TargetVersion string
	Name          string
	Up            func(repoRoot string) error
}

// migrations is the ordered list of all migrations, by increasing target
// tool version.
var migrations = []Migration{
	{
		TargetVersion: "0.17.1",
		Name:          "relocate_layout_under_dot_hop",
		Up:            migrationRelocateUnderDotHop,
	},
}

// Migrator runs every migration whose TargetVersion is strictly greater
// than the repository's recorded tool_version.
type Migrator struct {
	RepoRoot string
}

// New returns a Migrator rooted at repoRoot.
func New(repoRoot string) *Migrator { return &Migrator{RepoRoot: repoRoot} }

// Migrate implements primary.Migrator.
func (m *Migrator) Migrate(ctx context.Context) (primary.Result, error) {
	cfg, err := repoconfig.Load(m.RepoRoot)
	if err != nil {
		return primary.Result{}, hoperrors.Internal("migrate", err)
	}

	var applied []string
	for _, mig := range migrations {
		if !needsMigration(cfg.ToolVersion, mig.TargetVersion) {
			continue
		}
		if err := mig.Up(m.RepoRoot); err != nil {
			return primary.Result{}, hoperrors.Internal("migrate", fmt.Errorf("%s: %w", mig.Name, err))
		}
		cfg.ToolVersion = mig.TargetVersion
		applied = append(applied, mig.Name)
	}
	if len(applied) == 0 {
		return primary.Result{Status: "already_applied"}, nil
	}

	if err := repoconfig.Save(m.RepoRoot, cfg); err != nil {
		return primary.Result{}, hoperrors.Internal("migrate", err)
	}
	return primary.Result{
		Status:      "migrated",
		Identifiers: map[string]string{"tool_version": cfg.ToolVersion},
		NotificationsEmitted: applied,
	}, nil
}

// needsMigration reports whether recorded is strictly lower than target,
// comparing dotted version strings component-wise.
func needsMigration(recorded, target string) bool {
	return compareDotted(recorded, target) < 0
}

func compareDotted(a, b string) int {
	as := splitDotted(a)
	bs := splitDotted(b)
	for i := 0; i < len(as) || i < len(bs); i++ {
		var av, bv int
		if i < len(as) {
			av = as[i]
		}
		if i < len(bs) {
			bv = bs[i]
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}

func splitDotted(s string) []int {
	var parts []int
	cur := 0
	has := false
	for _, c := range s {
		if c >= '0' && c <= '9' {
			cur = cur*10 + int(c-'0')
			has = true
			continue
		}
		if has {
			parts = append(parts, cur)
		}
		cur, has = 0, false
	}
	if has {
		parts = append(parts, cur)
	}
	return parts
}

// migrationRelocateUnderDotHop moves legacy top-level releases/ and
// model/ directories under .hop/, and ensures .gitignore ignores
// .hop/backups/ — the v0.17.1 migration named in spec.md §4.9.
func migrationRelocateUnderDotHop(repoRoot string) error {
	legacyReleases := filepath.Join(repoRoot, "releases")
	legacyModel := filepath.Join(repoRoot, "model")
	hopDir := filepath.Join(repoRoot, ".hop")

	if info, err := os.Stat(legacyReleases); err == nil && info.IsDir() {
		if err := os.MkdirAll(hopDir, 0o755); err != nil {
			return err
		}
		if err := os.Rename(legacyReleases, filepath.Join(hopDir, "releases")); err != nil {
			return err
		}
	}
	if info, err := os.Stat(legacyModel); err == nil && info.IsDir() {
		if err := os.Rename(legacyModel, filepath.Join(hopDir, "model")); err != nil {
			return err
		}
	}

	gitignore := filepath.Join(repoRoot, ".gitignore")
	existing, _ := os.ReadFile(gitignore)
	marker := ".hop/backups/\n"
	if !strings.Contains(string(existing), marker) {
		f, err := os.OpenFile(gitignore, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := f.WriteString(marker); err != nil {
			return err
		}
	}
	return nil
}

var _ primary.Migrator = (*Migrator)(nil)
