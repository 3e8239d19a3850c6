// Package wire provides dependency injection for the hop CLI. Unlike a
// long-lived server, a hop process operates on exactly one repository and
// one database DSN for its entire lifetime, so the singleton pattern below
// is parameterized once at process start (via Init) rather than reading
// fixed paths the way the teacher's package does.
package wire

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/halfxyz/hop/internal/app"
	"github.com/halfxyz/hop/internal/dbdriver"
	"github.com/halfxyz/hop/internal/git"
	"github.com/halfxyz/hop/internal/localstate"
	"github.com/halfxyz/hop/internal/lock"
	"github.com/halfxyz/hop/internal/manifest"
	"github.com/halfxyz/hop/internal/migrate"
	"github.com/halfxyz/hop/internal/patchstore"
	"github.com/halfxyz/hop/internal/ports/primary"
	"github.com/halfxyz/hop/internal/repoconfig"
)

// Options configures the singleton wiring for one process invocation.
type Options struct {
	RepoRoot string
	ModelDir string
	DSN      string
	Backups  app.BackupStore
}

var (
	orchestrator *app.Orchestrator
	localCache   *localstate.Store
	once         sync.Once
	initErr      error
	opts         Options
)

// Init records the options used by the first call to Orchestrator or
// LocalCache. Must be called before either accessor; a second call has no
// effect once initialization has already run.
func Init(o Options) {
	opts = o
}

// Orchestrator returns the singleton primary.Orchestrator for this
// process, constructing every adapter and service on first use.
func Orchestrator() (primary.Orchestrator, error) {
	once.Do(initAll)
	return orchestrator, initErr
}

// LocalCache returns the singleton local coordination-state cache.
func LocalCache() (*localstate.Store, error) {
	once.Do(initAll)
	return localCache, initErr
}

// Migrator returns the singleton Migrator. It sits outside the
// Orchestrator interface because it operates on the repository before any
// hop-managed branch or database connection can be assumed valid.
func Migrator() (primary.Migrator, error) {
	once.Do(initAll)
	if initErr != nil {
		return nil, initErr
	}
	return orchestrator.Migrator, nil
}

// Close releases process-lifetime resources (the local cache database
// handle). Safe to call even if Init/Orchestrator were never invoked.
func Close() {
	if localCache != nil {
		localCache.Close()
	}
}

func initAll() {
	cfg, err := repoconfig.Load(opts.RepoRoot)
	if err != nil {
		initErr = fmt.Errorf("wire: load repo config: %w", err)
		return
	}

	gitDriver := git.New(opts.RepoRoot)

	dbDriver, err := dbdriver.Open(context.Background(), opts.DSN, opts.ModelDir)
	if err != nil {
		initErr = fmt.Errorf("wire: open db driver: %w", err)
		return
	}

	manifestStore := manifest.New(filepath.Join(opts.RepoRoot, ".hop", "releases"))
	patchStore := patchstore.New(filepath.Join(opts.RepoRoot, "Patches"))

	logger := log.New(os.Stderr, "hop: ", 0)
	lockService := lock.New(gitDriver, func() int64 { return time.Now().UnixMilli() }, logger)

	cache, err := localstate.Open(opts.RepoRoot)
	if err != nil {
		initErr = fmt.Errorf("wire: open local cache: %w", err)
		return
	}
	localCache = cache

	deps := &app.Deps{
		Git:       gitDriver,
		DB:        dbDriver,
		Manifests: manifestStore,
		Patches:   patchStore,
		Locks:     lockService,
		RepoRoot:  opts.RepoRoot,
		ModelDir:  opts.ModelDir,
		Config:    cfg,
		Log:       logger,
		Now:       func() int64 { return time.Now().UnixMilli() },
		Sleep:     func(attempt int) { time.Sleep(time.Duration(attempt) * 200 * time.Millisecond) },
	}

	migrator := migrate.New(opts.RepoRoot)
	orchestrator = app.NewOrchestrator(deps, migrator, opts.Backups)
}
