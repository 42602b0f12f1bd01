// Package syncer runs the full host to stash synchronization.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ianscrivener/draw-things-companion/internal/classify"
	"github.com/ianscrivener/draw-things-companion/internal/errdefs"
	"github.com/ianscrivener/draw-things-companion/internal/library"
	"github.com/ianscrivener/draw-things-companion/internal/manifest"
	"github.com/ianscrivener/draw-things-companion/internal/probe"
	"github.com/ianscrivener/draw-things-companion/internal/registry"
	"github.com/ianscrivener/draw-things-companion/internal/relations"
	"github.com/ianscrivener/draw-things-companion/internal/scanner"
	"github.com/ianscrivener/draw-things-companion/internal/transfer"
	"github.com/ianscrivener/draw-things-companion/pkg/db/models"
	"github.com/ianscrivener/draw-things-companion/pkg/db/store"
	"github.com/ianscrivener/draw-things-companion/pkg/log"
	"github.com/spf13/afero"
)

// Opener returns a catalog handle owned by the caller
type Opener func(ctx context.Context) (store.CatalogStore, error)

type Config struct {
	ModelsSubdir    string
	Extensions      []string
	VerifyChecksums bool
}

// Options names the two locations of a run
type Options struct {
	HostDir  string
	StashDir string
}

// Report is the aggregate outcome of a run
type Report struct {
	ID         string    `json:"id"`
	Status     Status    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	ManifestsCopied int   `json:"manifests_copied"`
	FilesCopied     int   `json:"files_copied"`
	FilesSkipped    int   `json:"files_skipped"`
	FilesFailed     int   `json:"files_failed"`
	BytesCopied     int64 `json:"bytes_copied"`

	Host      library.ScanReport `json:"host"`
	Stash     library.ScanReport `json:"stash"`
	Relations relations.Report   `json:"relations"`

	Warnings []string `json:"warnings"`
	Errors   []string `json:"errors"`
}

func (r *Report) fail(step string, err error) {
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", step, err))
}

type Syncer struct {
	fs       afero.Fs
	cfg      Config
	transfer *transfer.Transferer
	registry *registry.Registry
	log      log.LoggerService
}

func New(fs afero.Fs, cfg Config, tr *transfer.Transferer, reg *registry.Registry, logger log.LoggerService) *Syncer {
	if cfg.ModelsSubdir == "" {
		cfg.ModelsSubdir = "Models"
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}

	return &Syncer{
		fs:       fs,
		cfg:      cfg,
		transfer: tr,
		registry: reg,
		log:      logger,
	}
}

// Start runs a sync in the background on a catalog handle obtained from open, and
// closes that handle when the run ends.
func (s *Syncer) Start(ctx context.Context, open Opener, opts Options) *Task {
	task := newTask(uuid.NewString())

	go func() {
		catalog, err := open(ctx)
		if err != nil {
			s.log.Error("Failed to open catalog for sync %s: %v", task.ID, err)
			task.finish(Report{ID: task.ID, Status: StatusError, Errors: []string{err.Error()}}, err)
			return
		}
		defer func() {
			if err := catalog.Close(); err != nil {
				s.log.Warn("Failed to close sync catalog: %v", err)
			}
		}()

		task.finish(s.run(ctx, catalog, task.ID, opts))
	}()

	return task
}

// Run performs a sync in the calling goroutine.
func (s *Syncer) Run(ctx context.Context, catalog store.CatalogStore, opts Options) (Report, error) {
	return s.run(ctx, catalog, uuid.NewString(), opts)
}

func (s *Syncer) run(ctx context.Context, catalog store.CatalogStore, id string, opts Options) (Report, error) {
	report := Report{
		ID:        id,
		Status:    StatusInProgress,
		StartedAt: time.Now().UTC(),
		Warnings:  []string{},
		Errors:    []string{},
	}

	if opts.HostDir == "" {
		return s.abort(ctx, catalog, report, errdefs.NotConfigured(models.ConfigHostDir))
	}
	if opts.StashDir == "" {
		return s.abort(ctx, catalog, report, errdefs.NotConfigured(models.ConfigStashDir))
	}

	if err := s.setStatus(ctx, catalog, id, StatusInProgress, ""); err != nil {
		return report, err
	}

	hostModels := filepath.Join(opts.HostDir, s.cfg.ModelsSubdir)
	stashModels := filepath.Join(opts.StashDir, s.cfg.ModelsSubdir)
	logger := s.log.Named(id[:8])

	logger.Info("Starting sync from '%s' to '%s'", hostModels, stashModels)

	// 1. Stash directory
	if err := s.fs.MkdirAll(stashModels, 0o755); err != nil {
		return s.abort(ctx, catalog, report, &errdefs.IOError{Op: "mkdir", Path: stashModels, Err: err})
	}
	if err := catalog.SetConfig(ctx, models.ConfigStashExists, strconv.FormatBool(true)); err != nil {
		return s.abort(ctx, catalog, report, err)
	}

	// 2. Manifests
	s.mirrorManifests(ctx, logger, hostModels, stashModels, &report)

	// 3. Model files
	s.transferModels(ctx, logger, catalog, hostModels, stashModels, &report)

	// 4. Scan both locations
	index, errs := manifest.Load(s.fs, hostModels)
	for _, err := range errs {
		logger.Warn("Ignoring manifest: %v", err)
		report.Warnings = append(report.Warnings, err.Error())
	}
	classifier := classify.New(index, s.registry)
	importer := library.NewImporter(s.fs, catalog, classifier, index, s.cfg.Extensions, logger.Named("library"))

	host, err := importer.ScanLocation(ctx, models.LocationHost, hostModels, nil)
	report.Host = host
	if err != nil {
		report.fail("scan host", err)
	}
	stash, err := importer.ScanLocation(ctx, models.LocationStash, stashModels, nil)
	report.Stash = stash
	if err != nil {
		report.fail("scan stash", err)
	}
	for _, e := range host.Errors {
		report.fail("scan host", errors.New(e))
	}
	for _, e := range stash.Errors {
		report.fail("scan stash", errors.New(e))
	}

	// 5. Relationships
	rel, err := relations.Resolve(ctx, catalog, index.Edges())
	report.Relations = rel
	if err != nil {
		report.fail("relationships", err)
	}

	return s.complete(ctx, catalog, logger, report)
}

func (s *Syncer) mirrorManifests(ctx context.Context, logger log.LoggerService, hostModels, stashModels string, report *Report) {
	names, err := scanner.Scan(s.fs, hostModels, []string{"json"})
	if err != nil {
		report.fail("mirror manifests", err)
		return
	}

	for _, name := range names {
		result := s.transfer.SyncFile(ctx, filepath.Join(hostModels, name), stashModels, nil)
		switch result.Outcome {
		case transfer.Copied:
			report.ManifestsCopied++
		case transfer.Failed:
			logger.Error("Failed to mirror '%s': %v", name, result.Err)
			report.fail("mirror "+name, result.Err)
		}
	}
}

func (s *Syncer) transferModels(ctx context.Context, logger log.LoggerService, catalog store.CatalogStore, hostModels, stashModels string, report *Report) {
	exists, err := afero.DirExists(s.fs, hostModels)
	if err != nil || !exists {
		report.fail("transfer", errdefs.NotFound(hostModels))
		return
	}

	names, err := scanner.Scan(s.fs, hostModels, s.cfg.Extensions)
	if err != nil {
		report.fail("transfer", err)
		return
	}

	for _, name := range names {
		source := filepath.Join(hostModels, name)
		checksum := s.knownChecksum(ctx, logger, catalog, source, filepath.Join(stashModels, name))

		result := s.transfer.SyncFile(ctx, source, stashModels, checksum)
		switch result.Outcome {
		case transfer.Copied:
			report.FilesCopied++
			report.BytesCopied += result.Bytes
		case transfer.Skipped:
			report.FilesSkipped++
		case transfer.Failed:
			report.FilesFailed++
			logger.Error("Failed to transfer '%s': %v", name, result.Err)
			report.fail("transfer "+name, result.Err)
		}
	}

	logger.Info("Transfer finished: %d copied, %d skipped, %d failed",
		report.FilesCopied, report.FilesSkipped, report.FilesFailed)
}

// knownChecksum returns the digest recorded for the current content of source.
// With verification enabled and no usable digest, one is computed for files about
// to be copied.
func (s *Syncer) knownChecksum(ctx context.Context, logger log.LoggerService, catalog store.CatalogStore, source, dest string) *string {
	name := filepath.Base(source)

	info, err := probe.Stat(s.fs, source)
	if err != nil {
		return nil
	}

	entry, err := catalog.GetModel(ctx, name)
	if err == nil {
		if sum := entry.ChecksumFor(info.Size(), info.ModTime()); sum != nil {
			return sum
		}
	}
	if !s.cfg.VerifyChecksums {
		return nil
	}
	if needed, err := s.transfer.NeedsCopy(source, dest); err != nil || !needed {
		return nil
	}

	sum, err := probe.Checksum(s.fs, source)
	if err != nil {
		logger.Warn("Failed to checksum '%s': %v", name, err)
		return nil
	}
	if entry != nil {
		if err := catalog.SetChecksum(ctx, name, sum, info.Size(), info.ModTime()); err != nil {
			logger.Warn("Failed to record checksum for '%s': %v", name, err)
		}
	}
	return &sum
}

func (s *Syncer) complete(ctx context.Context, catalog store.CatalogStore, logger log.LoggerService, report Report) (Report, error) {
	report.FinishedAt = time.Now().UTC()

	if len(report.Errors) == 0 {
		report.Status = StatusComplete
		if err := s.setStatus(ctx, catalog, report.ID, StatusComplete, ""); err != nil {
			return report, err
		}
		logger.Info("Sync complete in %s", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
		return report, nil
	}

	report.Status = StatusError
	message := strings.Join(report.Errors, "; ")
	if err := s.setStatus(ctx, catalog, report.ID, StatusError, message); err != nil {
		return report, err
	}
	logger.Error("Sync finished with %d errors", len(report.Errors))
	return report, fmt.Errorf("sync finished with %d errors: %s", len(report.Errors), message)
}

func (s *Syncer) abort(ctx context.Context, catalog store.CatalogStore, report Report, cause error) (Report, error) {
	report.Status = StatusError
	report.FinishedAt = time.Now().UTC()
	report.fail("sync", cause)

	s.log.Error("Sync aborted: %v", cause)
	if err := s.setStatus(ctx, catalog, report.ID, StatusError, cause.Error()); err != nil {
		return report, errors.Join(cause, err)
	}
	return report, cause
}

func (s *Syncer) setStatus(ctx context.Context, catalog store.CatalogStore, id string, status Status, message string) error {
	for _, kv := range [][2]string{
		{models.ConfigInitStatus, string(status)},
		{models.ConfigInitError, message},
		{models.ConfigLastSyncID, id},
	} {
		if err := catalog.SetConfig(ctx, kv[0], kv[1]); err != nil {
			return fmt.Errorf("failed to persist sync status: %w", err)
		}
	}
	return nil
}
