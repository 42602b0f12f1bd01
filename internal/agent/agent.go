package agent

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/ianscrivener/draw-things-companion/internal/companion"
	config "github.com/ianscrivener/draw-things-companion/internal/config/server"
	"github.com/ianscrivener/draw-things-companion/internal/registry"
	"github.com/ianscrivener/draw-things-companion/internal/syncer"
	"github.com/ianscrivener/draw-things-companion/pkg/db/store"
	"github.com/ianscrivener/draw-things-companion/pkg/log"
	"github.com/mwantia/fabric/pkg/container"
	"github.com/spf13/afero"
)

type CompanionAgent struct {
	mutex sync.RWMutex
	wait  sync.WaitGroup

	cfg    *config.BaseServerConfig
	sc     *container.ServiceContainer
	log    log.LoggerService
	events *log.EventLog

	store *store.SQLiteStore
	app   *companion.App
}

func NewAgent(cfg *config.BaseServerConfig) *CompanionAgent {
	return &CompanionAgent{
		cfg:    cfg,
		sc:     container.NewServiceContainer(),
		log:    log.NewLoggerService("agent", cfg.Log),
		events: log.NewEventLog(cfg.Log.Retention),
	}
}

// Open connects the catalog, migrates it and builds the App without serving.
func (ca *CompanionAgent) Open(ctx context.Context) (*companion.App, error) {
	ca.mutex.Lock()
	defer ca.mutex.Unlock()

	if ca.app != nil {
		return ca.app, nil
	}

	if ca.cfg.Metadata.Type != "" && ca.cfg.Metadata.Type != "sqlite" {
		return nil, fmt.Errorf("unsupported metadata type '%s'", ca.cfg.Metadata.Type)
	}

	catalog, err := openCatalog(ctx, ca.sqliteConfig())
	if err != nil {
		return nil, err
	}
	ca.store = catalog

	ca.app = companion.New(afero.NewOsFs(), catalog, ca.opener(), companion.Options{
		HostDir:         ca.cfg.Paths.HostDir,
		StashDir:        ca.cfg.Paths.StashDir,
		ModelsSubdir:    ca.cfg.Paths.ModelsSubdir,
		Extensions:      ca.cfg.Scan.Extensions,
		SafetyMargin:    ca.cfg.Transfer.SafetyMargin,
		VerifyChecksums: ca.cfg.Transfer.VerifyChecksums,
	}, ca.events, ca.log.Named("companion"))

	return ca.app, nil
}

// Close releases the catalog handle opened by Open.
func (ca *CompanionAgent) Close(ctx context.Context) error {
	ca.mutex.Lock()
	defer ca.mutex.Unlock()

	if ca.app != nil {
		if err := ca.app.Cleanup(ctx); err != nil {
			ca.log.Warn("Sync still running at shutdown: %v", err)
		}
	}
	if ca.store != nil {
		if err := ca.store.Close(); err != nil {
			return fmt.Errorf("failed to close catalog: %w", err)
		}
	}
	return nil
}

// LoadRegistry fetches the remote filename lists into the App.
func (ca *CompanionAgent) LoadRegistry(ctx context.Context) {
	sources := registry.Sources{
		Models:      ca.cfg.Registry.Models,
		Loras:       ca.cfg.Registry.Loras,
		ControlNets: ca.cfg.Registry.ControlNets,
		Embeddings:  ca.cfg.Registry.Embeddings,
	}
	if sources.Empty() || ca.app == nil {
		return
	}

	fetcher := registry.NewFetcher(
		parseDuration(ca.cfg.Registry.Timeout, registry.DefaultTimeout),
		parseDuration(ca.cfg.Registry.CacheTTL, registry.DefaultCacheTTL),
		ca.cfg.Registry.CacheSize,
		ca.log.Named("registry"))

	if reg := ca.app.LoadRegistry(ctx, fetcher, sources); reg != nil {
		ca.log.Info("Registry loaded with %d filenames", reg.Len())
	}
}

func (ca *CompanionAgent) opener() syncer.Opener {
	cfg := ca.sqliteConfig()
	return func(ctx context.Context) (store.CatalogStore, error) {
		return openCatalog(ctx, cfg)
	}
}

func (ca *CompanionAgent) sqliteConfig() store.SQLiteConfig {
	return store.SQLiteConfig{
		Path:        ca.cfg.Metadata.SQLite.Path,
		BusyTimeout: parseDuration(ca.cfg.Metadata.SQLite.BusyTimeout, store.DefaultBusyTimeout),
	}
}

func openCatalog(ctx context.Context, cfg store.SQLiteConfig) (*store.SQLiteStore, error) {
	catalog, err := store.NewSQLiteStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := catalog.Connect(ctx); err != nil {
		_ = catalog.Close()
		return nil, fmt.Errorf("failed to connect catalog: %w", err)
	}
	if err := catalog.Migrate(ctx); err != nil {
		_ = catalog.Close()
		return nil, fmt.Errorf("failed to migrate catalog: %w", err)
	}
	return catalog, nil
}

func (ca *CompanionAgent) setupServices() error {
	errs := container.Errors{}

	ca.log.Debug("Registering 'LoggerService'...")
	errs.Add(container.Register[log.LoggerServiceImpl](ca.sc,
		container.With[log.LoggerService](),
		container.WithInstance(ca.log)))

	ca.log.Debug("Registering 'EventLog'...")
	errs.Add(container.Register[log.EventLog](ca.sc,
		container.WithInstance(ca.events)))

	ca.log.Debug("Registering 'CatalogStore'...")
	errs.Add(container.Register[store.SQLiteStore](ca.sc,
		container.With[store.CatalogStore](),
		container.WithInstance(ca.store)))

	ca.log.Debug("Registering 'App'...")
	errs.Add(container.Register[companion.App](ca.sc,
		container.WithInstance(ca.app)))

	return errs.Errors()
}

func (ca *CompanionAgent) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	app, err := ca.Open(ctx)
	if err != nil {
		return err
	}

	ca.mutex.Lock()
	if err := ca.setupServices(); err != nil {
		ca.mutex.Unlock()
		return err
	}
	ca.mutex.Unlock()

	ca.LoadRegistry(ctx)

	if ca.cfg.Agent.AutoSync {
		ca.autoSync(ctx, app)
	}

	ca.log.Info("Agent ready")
	<-ctx.Done()

	timeout, err := time.ParseDuration(ca.cfg.ShutdownTimeout)
	if err != nil {
		// Set default of 60 seconds if error
		timeout = 60 * time.Second
	}

	shutdown, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := ca.sc.Cleanup(shutdown); err != nil {
		return fmt.Errorf("failed to complete service container cleanup: %w", err)
	}

	ca.wait.Wait()
	return ca.Close(shutdown)
}

// autoSync starts a sync when both paths are known and logs its outcome.
func (ca *CompanionAgent) autoSync(ctx context.Context, app *companion.App) {
	paths, err := app.GetPaths(ctx)
	if err != nil {
		ca.log.Error("Failed to read paths: %v", err)
		return
	}
	if paths.HostDir == "" || paths.StashDir == "" {
		ca.log.Warn("Skipping sync, host and stash directories must both be set")
		return
	}

	task, err := app.Initialize(ctx, paths.HostDir, paths.StashDir)
	if err != nil {
		ca.log.Error("Failed to start sync: %v", err)
		return
	}

	ca.wait.Add(1)
	go func() {
		defer ca.wait.Done()

		report, err := task.Wait(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			ca.log.Error("Sync %s finished with errors: %v", task.ID, err)
			return
		}
		ca.log.Info("Sync %s complete: %d copied, %d skipped, %d imported",
			task.ID, report.FilesCopied, report.FilesSkipped, report.Host.Imported+report.Stash.Imported)
	}()
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
