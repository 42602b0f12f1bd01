package companion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/ianscrivener/draw-things-companion/internal/classify"
	"github.com/ianscrivener/draw-things-companion/internal/errdefs"
	"github.com/ianscrivener/draw-things-companion/internal/library"
	"github.com/ianscrivener/draw-things-companion/internal/manifest"
	"github.com/ianscrivener/draw-things-companion/internal/probe"
	"github.com/ianscrivener/draw-things-companion/internal/syncer"
	"github.com/ianscrivener/draw-things-companion/internal/transfer"
	"github.com/ianscrivener/draw-things-companion/pkg/db/models"
)

// ScanResult merges the per-location scan reports
type ScanResult struct {
	Scanned   int                  `json:"scanned_count"`
	Imported  int                  `json:"imported_count"`
	Errors    []string             `json:"errors"`
	Locations []library.ScanReport `json:"locations"`
}

// Scan imports the host models directory and, when configured, the stash.
func (a *App) Scan(ctx context.Context, kind *models.Kind) (ScanResult, error) {
	result := ScanResult{Errors: []string{}}

	host, stash, err := a.modelsDirs(ctx)
	if err != nil {
		return result, err
	}
	if host == "" {
		return result, errdefs.NotConfigured(models.ConfigHostDir)
	}

	index, errs := manifest.Load(a.fs, host)
	for _, err := range errs {
		a.log.Warn("Ignoring manifest: %v", err)
		result.Errors = append(result.Errors, err.Error())
	}

	classifier := classify.New(index, a.currentRegistry())
	importer := library.NewImporter(a.fs, a.catalog, classifier, index, a.opts.Extensions, a.log.Named("library"))

	type target struct {
		loc models.Location
		dir string
	}

	targets := []target{{models.LocationHost, host}}
	if stash != "" {
		targets = append(targets, target{models.LocationStash, stash})
	}

	for _, l := range targets {
		report, err := importer.ScanLocation(ctx, l.loc, l.dir, kind)
		if err != nil {
			return result, err
		}

		result.Scanned += report.Scanned
		result.Imported += report.Imported
		result.Errors = append(result.Errors, report.Errors...)
		result.Locations = append(result.Locations, report)
	}

	return result, nil
}

// CopyToStash copies a catalogued host file into the stash. The destination must
// not exist yet.
func (a *App) CopyToStash(ctx context.Context, filename string) (transfer.Result, error) {
	host, stash, err := a.modelsDirs(ctx)
	if err != nil {
		return transfer.Result{Outcome: transfer.Failed, Err: err}, err
	}
	if stash == "" {
		err := errdefs.NotConfigured(models.ConfigStashDir)
		return transfer.Result{Outcome: transfer.Failed, Err: err}, err
	}

	entry, err := a.catalog.GetModel(ctx, filename)
	if err != nil {
		return transfer.Result{Outcome: transfer.Failed, Err: err}, err
	}

	source := filepath.Join(host, filename)
	info, err := probe.Stat(a.fs, source)
	if err != nil {
		return transfer.Result{Outcome: transfer.Failed, Err: err}, err
	}

	checksum := entry.ChecksumFor(info.Size(), info.ModTime())
	if checksum == nil && a.opts.VerifyChecksums {
		sum, err := probe.Checksum(a.fs, source)
		if err != nil {
			return transfer.Result{Outcome: transfer.Failed, Err: err}, err
		}
		if err := a.catalog.SetChecksum(ctx, filename, sum, info.Size(), info.ModTime()); err != nil {
			return transfer.Result{Outcome: transfer.Failed, Err: err}, err
		}
		checksum = &sum
	}

	result := a.transfer.Copy(ctx, source, stash, checksum)
	if result.Err != nil {
		a.log.Error("Failed to copy '%s' to stash: %v", filename, result.Err)
		return result, result.Err
	}

	if err := a.catalog.SetStashPresence(ctx, filename, true); err != nil {
		return result, err
	}
	a.log.Info("Copied '%s' to stash (%s)", filename, humanize.Bytes(uint64(result.Bytes)))
	return result, nil
}

// Initialize records both paths and starts the first sync in the background. Only
// one sync runs at a time.
func (a *App) Initialize(ctx context.Context, hostDir, stashDir string) (*syncer.Task, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.task != nil && !a.task.Finished() {
		return nil, errdefs.Conflict("sync " + a.task.ID + " is still running")
	}
	if a.open == nil {
		return nil, errors.New("no catalog opener configured")
	}

	if err := a.SetHostDir(ctx, hostDir); err != nil {
		return nil, err
	}
	if err := a.SetStashDir(ctx, stashDir); err != nil {
		return nil, err
	}

	paths, err := a.GetPaths(ctx)
	if err != nil {
		return nil, err
	}

	s := syncer.New(a.fs, syncer.Config{
		ModelsSubdir:    a.opts.ModelsSubdir,
		Extensions:      a.opts.Extensions,
		VerifyChecksums: a.opts.VerifyChecksums,
	}, a.transfer, a.registry, a.log.Named("sync"))

	a.task = s.Start(context.WithoutCancel(ctx), a.open, syncer.Options{
		HostDir:  paths.HostDir,
		StashDir: paths.StashDir,
	})
	a.log.Info("Started sync %s", a.task.ID)
	return a.task, nil
}

// Task returns the most recently started sync, if any
func (a *App) Task() *syncer.Task {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.task
}

type InitStatus struct {
	Status      syncer.Status `json:"status"`
	StashExists bool          `json:"stash_exists"`
	Error       string        `json:"error,omitempty"`
	LastSyncID  string        `json:"last_sync_id,omitempty"`
}

// InitializationStatus reads the persisted state of the last sync.
func (a *App) InitializationStatus(ctx context.Context) (InitStatus, error) {
	status := InitStatus{Status: syncer.StatusNotStarted}

	value, _, err := a.catalog.GetConfig(ctx, models.ConfigInitStatus)
	if err != nil {
		return status, err
	}
	status.Status = syncer.ParseStatus(value)

	if value, _, err = a.catalog.GetConfig(ctx, models.ConfigStashExists); err != nil {
		return status, err
	}
	status.StashExists, _ = strconv.ParseBool(value)

	if status.Error, _, err = a.catalog.GetConfig(ctx, models.ConfigInitError); err != nil {
		return status, err
	}
	if status.LastSyncID, _, err = a.catalog.GetConfig(ctx, models.ConfigLastSyncID); err != nil {
		return status, err
	}
	return status, nil
}

type DiskSpace struct {
	Location  models.Location `json:"location"`
	Path      string          `json:"path"`
	Available uint64          `json:"available"`
	Human     string          `json:"human"`
}

// DiskSpace reports the free space on the volume holding a location.
func (a *App) DiskSpace(ctx context.Context, loc models.Location) (DiskSpace, error) {
	paths, err := a.GetPaths(ctx)
	if err != nil {
		return DiskSpace{}, err
	}

	var dir string
	switch loc {
	case models.LocationHost:
		dir = paths.HostDir
		if dir == "" {
			return DiskSpace{}, errdefs.NotConfigured(models.ConfigHostDir)
		}
	case models.LocationStash:
		dir = paths.StashDir
		if dir == "" {
			return DiskSpace{}, errdefs.NotConfigured(models.ConfigStashDir)
		}
	default:
		return DiskSpace{}, errdefs.NotFound("location " + string(loc))
	}

	available, err := a.opts.FreeSpace(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DiskSpace{}, errdefs.NotFound(dir)
		}
		return DiskSpace{}, err
	}

	return DiskSpace{
		Location:  loc,
		Path:      dir,
		Available: available,
		Human:     humanize.Bytes(available),
	}, nil
}
