// Package companion exposes the catalog and sync operations as a single context
// object owning the store handle and path configuration.
package companion

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/ianscrivener/draw-things-companion/internal/errdefs"
	"github.com/ianscrivener/draw-things-companion/internal/probe"
	"github.com/ianscrivener/draw-things-companion/internal/registry"
	"github.com/ianscrivener/draw-things-companion/internal/syncer"
	"github.com/ianscrivener/draw-things-companion/internal/transfer"
	"github.com/ianscrivener/draw-things-companion/pkg/db/models"
	"github.com/ianscrivener/draw-things-companion/pkg/db/store"
	"github.com/ianscrivener/draw-things-companion/pkg/log"
	"github.com/spf13/afero"
)

type Options struct {
	// Fallbacks used until the catalog records its own paths
	HostDir  string
	StashDir string

	ModelsSubdir    string
	Extensions      []string
	SafetyMargin    float64
	VerifyChecksums bool

	// FreeSpace defaults to probing the real volume
	FreeSpace probe.FreeSpaceFunc
}

type App struct {
	mutex sync.Mutex

	fs       afero.Fs
	catalog  store.CatalogStore
	open     syncer.Opener
	opts     Options
	transfer *transfer.Transferer
	registry *registry.Registry
	task     *syncer.Task

	events *log.EventLog
	log    log.LoggerService
}

// New wires an App around an open catalog. open is used to obtain a separate
// catalog handle for background syncs.
func New(fs afero.Fs, catalog store.CatalogStore, open syncer.Opener, opts Options, events *log.EventLog, logger log.LoggerService) *App {
	if opts.ModelsSubdir == "" {
		opts.ModelsSubdir = "Models"
	}
	if opts.FreeSpace == nil {
		opts.FreeSpace = probe.FreeSpace
	}
	if events == nil {
		events = log.NewEventLog(log.DefaultRetention)
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	logger = logger.Record(events)

	return &App{
		fs:       fs,
		catalog:  catalog,
		open:     open,
		opts:     opts,
		transfer: transfer.New(fs, opts.FreeSpace, opts.SafetyMargin, logger.Named("transfer")),
		events:   events,
		log:      logger,
	}
}

// Cleanup waits for a running sync to finish or ctx to expire. The catalog handle
// belongs to the caller and is left open.
func (a *App) Cleanup(ctx context.Context) error {
	a.mutex.Lock()
	task := a.task
	a.mutex.Unlock()

	if task == nil || task.Finished() {
		return nil
	}

	a.log.Info("Waiting for sync %s to finish...", task.ID)
	if _, err := task.Wait(ctx); ctx.Err() != nil {
		return err
	}
	return nil
}

// SetRegistry replaces the remote filename lists used for classification.
func (a *App) SetRegistry(reg *registry.Registry) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.registry = reg
}

func (a *App) currentRegistry() *registry.Registry {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.registry
}

// LoadRegistry fetches the configured lists. Unreachable lists are logged and
// left empty.
func (a *App) LoadRegistry(ctx context.Context, fetcher *registry.Fetcher, sources registry.Sources) *registry.Registry {
	if sources.Empty() {
		return nil
	}

	reg, errs := fetcher.Load(ctx, sources)
	for _, err := range errs {
		a.log.Warn("Registry list unavailable: %v", err)
	}
	a.SetRegistry(reg)
	return reg
}

func (a *App) GetConfig(ctx context.Context, key string) (string, bool, error) {
	return a.catalog.GetConfig(ctx, key)
}

func (a *App) SetConfig(ctx context.Context, key, value string) error {
	return a.catalog.SetConfig(ctx, key, value)
}

// GetLogs returns the retained log events, oldest first
func (a *App) GetLogs() []log.Event {
	return a.events.Events()
}

// Paths are the configured host and stash base directories
type Paths struct {
	HostDir  string `json:"host_dir"`
	StashDir string `json:"stash_dir"`
}

func (a *App) GetPaths(ctx context.Context) (Paths, error) {
	paths := Paths{HostDir: a.opts.HostDir, StashDir: a.opts.StashDir}

	if value, ok, err := a.catalog.GetConfig(ctx, models.ConfigHostDir); err != nil {
		return paths, err
	} else if ok && value != "" {
		paths.HostDir = value
	}

	if value, ok, err := a.catalog.GetConfig(ctx, models.ConfigStashDir); err != nil {
		return paths, err
	} else if ok && value != "" {
		paths.StashDir = value
	}

	return paths, nil
}

// SetStashDir creates the directory and records it.
func (a *App) SetStashDir(ctx context.Context, path string) error {
	if path == "" {
		return errdefs.NotConfigured(models.ConfigStashDir)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return &errdefs.IOError{Op: "resolve", Path: path, Err: err}
	}
	if err := a.fs.MkdirAll(abs, 0o755); err != nil {
		return &errdefs.IOError{Op: "mkdir", Path: abs, Err: err}
	}

	if err := a.catalog.SetConfig(ctx, models.ConfigStashDir, abs); err != nil {
		return err
	}
	a.log.Info("Stash directory set to '%s'", abs)
	return a.catalog.SetConfig(ctx, models.ConfigStashExists, "true")
}

// SetHostDir records the host base directory.
func (a *App) SetHostDir(ctx context.Context, path string) error {
	if path == "" {
		return errdefs.NotConfigured(models.ConfigHostDir)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return &errdefs.IOError{Op: "resolve", Path: path, Err: err}
	}
	return a.catalog.SetConfig(ctx, models.ConfigHostDir, abs)
}

func (a *App) modelsDirs(ctx context.Context) (host, stash string, err error) {
	paths, err := a.GetPaths(ctx)
	if err != nil {
		return "", "", err
	}

	if paths.HostDir != "" {
		host = filepath.Join(paths.HostDir, a.opts.ModelsSubdir)
	}
	if paths.StashDir != "" {
		stash = filepath.Join(paths.StashDir, a.opts.ModelsSubdir)
	}
	return host, stash, nil
}
