package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/halfxyz/hop/internal/hoperrors"
	"github.com/halfxyz/hop/internal/ports/primary"
	"github.com/halfxyz/hop/internal/release"
)

// BackupStore is the external collaborator of spec.md §1 that writes
// opaque database snapshots before a deploy step. Backup storage
// mechanics themselves are out of scope; hop only calls Dump.
type BackupStore interface {
	Dump(ctx context.Context, label string) error
}

// noopBackupStore satisfies BackupStore when the caller has not wired a
// real one, logging instead of erroring so Deploy remains usable in
// environments without a configured backup destination.
type noopBackupStore struct{ Log func(string) }

func (n noopBackupStore) Dump(ctx context.Context, label string) error {
	if n.Log != nil {
		n.Log(fmt.Sprintf("deploy: no BackupStore configured, skipping backup before %s", label))
	}
	return nil
}

// DeployerService implements primary.Deployer (spec.md §4.8).
type DeployerService struct {
	Deps    *Deps
	Backups BackupStore
}

// NewDeployerService returns a DeployerService over deps, defaulting to a
// logging no-op BackupStore when backups is nil.
func NewDeployerService(deps *Deps, backups BackupStore) *DeployerService {
	if backups == nil {
		backups = noopBackupStore{Log: func(s string) { deps.logger().Print(s) }}
	}
	return &DeployerService{Deps: deps, Backups: backups}
}

type snapshotStep struct {
	version release.Version
	phase   release.Phase
}

// Deploy implements spec.md §4.8: apply every production/hotfix snapshot
// newer than the current DB version, up to and including target, in order.
func (s *DeployerService) Deploy(ctx context.Context, target release.Version) (primary.Result, error) {
	current, err := s.Deps.DB.ReadCurrentVersion(ctx)
	if err != nil {
		return primary.Result{}, err
	}

	if current.IsZero() {
		return s.fastPathFreshTarget(ctx, target)
	}

	steps, err := s.pendingSteps(ctx, current, target)
	if err != nil {
		return primary.Result{}, err
	}

	var applied []string
	for _, step := range steps {
		label := step.phase.String() + "-" + step.version.String()
		if err := s.Backups.Dump(ctx, label); err != nil {
			return primary.Result{}, hoperrors.Environment("deploy", "BackupFailed", err)
		}
		ids, err := s.Deps.Manifests.LoadSnapshot(step.version, step.phase)
		if err != nil {
			return primary.Result{}, err
		}
		if err := s.applyInOrder(ctx, ids); err != nil {
			return primary.Result{}, err
		}
		if err := s.Deps.DB.WriteReleaseRow(ctx, step.version, step.phase, "deploy"); err != nil {
			return primary.Result{}, err
		}
		applied = append(applied, label)
	}

	return primary.Result{
		Status:      "deployed",
		Identifiers: map[string]string{"target": target.String()},
		NotificationsEmitted: applied,
	}, nil
}

// pendingSteps enumerates every production snapshot with version strictly
// greater than current and ≤ target, plus any hotfix snapshots chaining
// from each applied production version and ≤ target.
func (s *DeployerService) pendingSteps(ctx context.Context, current, target release.Version) ([]snapshotStep, error) {
	prodTags, err := s.Deps.Git.ListTags(ctx, "release-*")
	if err != nil {
		return nil, err
	}
	var versions []release.Version
	seen := map[string]bool{}
	for _, t := range prodTags {
		name := strings.TrimPrefix(t, "release-")
		if strings.Contains(name, "-rc-") || strings.Contains(name, "-hotfix") {
			continue
		}
		v, err := release.ParseVersion(name)
		if err != nil {
			continue
		}
		if v.Compare(current) > 0 && v.Compare(target) <= 0 && !seen[v.String()] {
			versions = append(versions, v)
			seen[v.String()] = true
		}
	}
	for i := 0; i < len(versions); i++ {
		for j := i + 1; j < len(versions); j++ {
			if versions[j].Compare(versions[i]) < 0 {
				versions[i], versions[j] = versions[j], versions[i]
			}
		}
	}

	var steps []snapshotStep
	for _, v := range versions {
		steps = append(steps, snapshotStep{version: v, phase: release.Phase{Kind: release.PhaseProduction}})
		hotfixTags, err := s.Deps.Git.ListTags(ctx, fmt.Sprintf("release-%s-hotfix*", v))
		if err != nil {
			return nil, err
		}
		var hotfixNs []int
		for _, ht := range hotfixTags {
			m := hotfixTagRe.FindStringSubmatch(ht)
			if m == nil {
				continue
			}
			n, _ := strconv.Atoi(m[2])
			hotfixNs = append(hotfixNs, n)
		}
		for i := 0; i < len(hotfixNs); i++ {
			for j := i + 1; j < len(hotfixNs); j++ {
				if hotfixNs[j] < hotfixNs[i] {
					hotfixNs[i], hotfixNs[j] = hotfixNs[j], hotfixNs[i]
				}
			}
		}
		for _, n := range hotfixNs {
			if v.Compare(target) <= 0 {
				steps = append(steps, snapshotStep{version: v, phase: release.Phase{Kind: release.PhaseHotfix, N: n}})
			}
		}
	}
	return steps, nil
}

func (s *DeployerService) applyInOrder(ctx context.Context, ids []string) error {
	for _, id := range ids {
		files, err := s.Deps.Patches.ExecutableFiles(id)
		if err != nil {
			return err
		}
		for _, f := range files {
			var applyErr error
			if strings.HasSuffix(f, ".py") {
				applyErr = s.Deps.DB.ApplyPythonFile(ctx, f, nil)
			} else {
				applyErr = s.Deps.DB.ApplySQLFile(ctx, f)
			}
			if applyErr != nil {
				return hoperrors.Validation("deploy", "ApplyFailed", fmt.Errorf("%s/%s: %w", id, filepath.Base(f), applyErr))
			}
		}
	}
	return nil
}

// fastPathFreshTarget loads model/schema-<target>.sql, then
// metadata-<target>.sql and seed-<target>.sql when they are present,
// directly instead of replaying every intermediate patch, per spec.md §4.8
// step 4.
func (s *DeployerService) fastPathFreshTarget(ctx context.Context, target release.Version) (primary.Result, error) {
	schemaPath := filepath.Join(s.Deps.ModelDir, fmt.Sprintf("schema-%s.sql", target))
	if err := s.Deps.DB.ResetToSchema(ctx, schemaPath); err != nil {
		return primary.Result{}, err
	}
	for _, kind := range []string{"metadata", "seed"} {
		path := filepath.Join(s.Deps.ModelDir, fmt.Sprintf("%s-%s.sql", kind, target))
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := s.Deps.DB.ApplySQLFile(ctx, path); err != nil {
			return primary.Result{}, err
		}
	}
	if err := s.Deps.DB.WriteReleaseRow(ctx, target, release.Phase{Kind: release.PhaseProduction}, "deploy-fastpath"); err != nil {
		return primary.Result{}, err
	}
	return primary.Result{
		Status:      "deployed",
		Identifiers: map[string]string{"target": target.String(), "mode": "fastpath"},
	}, nil
}
