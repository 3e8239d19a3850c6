// Package dbdriver implements DBDriver (spec.md §4.2): resetting a
// PostgreSQL schema from a snapshot, applying patch files, dumping
// versioned artifacts, and reading/writing the release-tracking table.
//
// The connection itself goes through database/sql with the pgx/v5 stdlib
// driver (grounded in other_examples/colonystack-colonycore__store.go,
// which registers "pgx" the same way); schema dump/load/reset goes through
// the psql/pg_dump subprocess tools per spec.md §4.2's stated policy, the
// same "shell out to the real binary" idiom the teacher uses for git.
package dbdriver

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/halfxyz/hop/internal/hoperrors"
	"github.com/halfxyz/hop/internal/release"
)

// Driver implements secondary.DBDriver against a PostgreSQL database and a
// model/ directory of versioned snapshot artifacts.
type Driver struct {
	DB       *sql.DB
	ModelDir string // path to model/
	DSN      string // used by psql/pg_dump subprocesses
}

// Open connects to dsn via the pgx stdlib driver and returns a Driver
// rooted at modelDir.
func Open(ctx context.Context, dsn, modelDir string) (*Driver, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, hoperrors.Environment("open", "DBUnreachable", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, classifyConnError(err)
	}
	return &Driver{DB: db, ModelDir: modelDir, DSN: dsn}, nil
}

func classifyConnError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "password") || strings.Contains(msg, "authentication"):
		return hoperrors.Environment("connect", "AuthFailed", err)
	case strings.Contains(msg, "permission denied"):
		return hoperrors.Environment("connect", "PermissionDenied", err)
	default:
		return hoperrors.Environment("connect", "DBUnreachable", err)
	}
}

// ResetToSchema drops every non-system schema the connected role owns and
// reloads schemaPath via a psql subprocess, per spec.md §4.2: no superuser
// required, extensions/foreign servers/event triggers/database settings are
// preserved by construction since only schema-level DROP/CREATE happens.
func (d *Driver) ResetToSchema(ctx context.Context, schemaPath string) error {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT nspname FROM pg_namespace
		WHERE nspname NOT IN ('pg_catalog', 'information_schema')
		  AND nspname NOT LIKE 'pg\_temp\_%' AND nspname NOT LIKE 'pg\_toast%'
		  AND pg_get_userbyid(nspowner) = current_user
	`)
	if err != nil {
		return hoperrors.Internal("reset_to_schema", err)
	}
	var schemas []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return hoperrors.Internal("reset_to_schema", err)
		}
		schemas = append(schemas, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return hoperrors.Internal("reset_to_schema", err)
	}

	for _, s := range schemas {
		if s == "public" {
			continue
		}
		if _, err := d.DB.ExecContext(ctx, fmt.Sprintf(`DROP SCHEMA IF EXISTS %s CASCADE`, quoteIdent(s))); err != nil {
			return err
		}
	}
	if _, err := d.DB.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`); err != nil {
		return err
	}

	return d.psqlFile(ctx, schemaPath)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d *Driver) psqlFile(ctx context.Context, path string) error {
	cmd := exec.CommandContext(ctx, "psql", d.DSN, "-v", "ON_ERROR_STOP=1", "-f", path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return hoperrors.Validation("apply_sql_file", "ApplyFailed", fmt.Errorf("%s: %w: %s", path, err, strings.TrimSpace(stderr.String())))
	}
	return nil
}

// ApplySQLFile executes a single SQL file in a single session, stopping on
// the first error.
func (d *Driver) ApplySQLFile(ctx context.Context, path string) error {
	return d.psqlFile(ctx, path)
}

// ApplyPythonFile runs a patch script through the system python3
// interpreter with an injected context serialized as environment variables
// (the connection string as HOP_DSN, each pyContext entry as
// HOP_CTX_<KEY>), since hop's own
// process has no embedded Python runtime — the script is an external
// collaborator invoked with its expected context, matching spec.md §4.2.
func (d *Driver) ApplyPythonFile(ctx context.Context, path string, pyContext map[string]any) error {
	cmd := exec.CommandContext(ctx, "python3", path)
	cmd.Env = append(os.Environ(), "HOP_DSN="+d.DSN)
	for k, v := range pyContext {
		cmd.Env = append(cmd.Env, fmt.Sprintf("HOP_CTX_%s=%v", strings.ToUpper(k), v))
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return hoperrors.Validation("apply_python_file", "ApplyFailed", fmt.Errorf("%s: %w: %s", path, err, strings.TrimSpace(stderr.String())))
	}
	return nil
}

func (d *Driver) dump(ctx context.Context, version release.Version, suffix string, args ...string) (string, error) {
	path := filepath.Join(d.ModelDir, fmt.Sprintf("%s-%s.sql", suffix, version))
	fullArgs := append([]string{d.DSN, "-f", path}, args...)
	cmd := exec.CommandContext(ctx, "pg_dump", fullArgs...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", hoperrors.Internal("dump", fmt.Errorf("%s: %w: %s", suffix, err, strings.TrimSpace(stderr.String())))
	}
	return path, nil
}

// DumpSchema produces model/schema-X.Y.Z.sql (schema-only, no data).
func (d *Driver) DumpSchema(ctx context.Context, version release.Version) (string, error) {
	return d.dump(ctx, version, "schema", "--schema-only")
}

// DumpMetadata produces model/metadata-X.Y.Z.sql, the half_orm_meta
// bookkeeping schema dumped separately from application schemas.
func (d *Driver) DumpMetadata(ctx context.Context, version release.Version) (string, error) {
	return d.dump(ctx, version, "metadata", "--schema-only", "--schema=half_orm_meta")
}

// DumpSeed produces an optional model/seed-X.Y.Z.sql, a data-only dump
// restricted to the named tables.
func (d *Driver) DumpSeed(ctx context.Context, version release.Version, tables []string) (string, error) {
	if len(tables) == 0 {
		return "", nil
	}
	args := []string{"--data-only"}
	for _, t := range tables {
		args = append(args, "--table="+t)
	}
	return d.dump(ctx, version, "seed", args...)
}

// ReadCurrentVersion queries half_orm_meta.hop_release for the highest
// created_at row. It reads the model/schema.sql symlink target instead only
// when no database handle is configured or the table has no rows; any other
// query error, including an unreachable database, is returned as a
// classified connection error without consulting the symlink.
func (d *Driver) ReadCurrentVersion(ctx context.Context) (release.Version, error) {
	if d.DB != nil {
		var major, minor, patch int
		err := d.DB.QueryRowContext(ctx, `
			SELECT major, minor, patch FROM half_orm_meta.hop_release
			ORDER BY created_at DESC LIMIT 1
		`).Scan(&major, &minor, &patch)
		if err == nil {
			return release.Version{Major: uint64(major), Minor: uint64(minor), Patch: uint64(patch)}, nil
		}
		if err != sql.ErrNoRows {
			return release.Version{}, classifyConnError(err)
		}
	}
	return d.readVersionFromSymlink()
}

func (d *Driver) readVersionFromSymlink() (release.Version, error) {
	target, err := os.Readlink(filepath.Join(d.ModelDir, "schema.sql"))
	if err != nil {
		if os.IsNotExist(err) {
			return release.Version{}, nil
		}
		return release.Version{}, hoperrors.Internal("read_current_version", err)
	}
	base := filepath.Base(target)
	base = strings.TrimPrefix(base, "schema-")
	base = strings.TrimSuffix(base, ".sql")
	v, err := release.ParseVersion(base)
	if err != nil {
		return release.Version{}, hoperrors.Internal("read_current_version", err)
	}
	return v, nil
}

// WriteReleaseRow inserts a tracking row recording that version/phase was
// deployed, with an optional free-text comment (carried from
// original_source/half_orm_packager/database.py's release-tracking insert,
// which records the triggering operation).
func (d *Driver) WriteReleaseRow(ctx context.Context, version release.Version, phase release.Phase, comment string) error {
	var preRelease sql.NullString
	var preReleaseNum sql.NullInt64
	switch phase.Kind {
	case release.PhaseCandidate:
		preRelease = sql.NullString{String: "rc", Valid: true}
		preReleaseNum = sql.NullInt64{Int64: int64(phase.N), Valid: true}
	case release.PhaseHotfix:
		preRelease = sql.NullString{String: "hotfix", Valid: true}
		preReleaseNum = sql.NullInt64{Int64: int64(phase.N), Valid: true}
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO half_orm_meta.hop_release
			(major, minor, patch, pre_release, pre_release_num, created_at, comment)
		VALUES ($1, $2, $3, $4, $5, now(), $6)
	`, version.Major, version.Minor, version.Patch, preRelease, preReleaseNum, comment)
	if err != nil {
		return hoperrors.Internal("write_release_row", err)
	}
	return nil
}
