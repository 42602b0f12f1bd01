// Package library imports the files found in a location into the catalog.
package library

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ianscrivener/draw-things-companion/internal/classify"
	"github.com/ianscrivener/draw-things-companion/internal/manifest"
	"github.com/ianscrivener/draw-things-companion/internal/probe"
	"github.com/ianscrivener/draw-things-companion/internal/scanner"
	"github.com/ianscrivener/draw-things-companion/pkg/db/models"
	"github.com/ianscrivener/draw-things-companion/pkg/log"
	"github.com/spf13/afero"
)

// CatalogWriter is the part of the catalog an import touches
type CatalogWriter interface {
	UpsertModel(ctx context.Context, obs models.Observation) (bool, error)
	ClearMissing(ctx context.Context, location models.Location, present []string, kind *models.Kind) (int, error)
}

// ScanReport summarizes one location scan
type ScanReport struct {
	Location models.Location `json:"location"`
	Scanned  int             `json:"scanned_count"`
	Imported int             `json:"imported_count"`
	Cleared  int             `json:"cleared_count"`
	Errors   []string        `json:"errors"`
}

func (r *ScanReport) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

type Importer struct {
	fs         afero.Fs
	catalog    CatalogWriter
	classifier *classify.Classifier
	index      *manifest.Index
	extensions []string
	log        log.LoggerService
}

func NewImporter(fs afero.Fs, catalog CatalogWriter, classifier *classify.Classifier, index *manifest.Index, extensions []string, logger log.LoggerService) *Importer {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	return &Importer{
		fs:         fs,
		catalog:    catalog,
		classifier: classifier,
		index:      index,
		extensions: extensions,
		log:        logger,
	}
}

// ScanLocation records every model file in dir as present at loc, then clears the
// flag on catalog rows whose file is gone. With kind set only files of that kind
// are imported or cleared. Per-file problems are collected in the report; catalog
// errors abort the scan.
func (im *Importer) ScanLocation(ctx context.Context, loc models.Location, dir string, kind *models.Kind) (ScanReport, error) {
	report := ScanReport{Location: loc, Errors: []string{}}

	files, err := scanner.Scan(im.fs, dir, im.extensions)
	if err != nil {
		report.addError("%v", err)
		return report, nil
	}

	present := make([]string, 0, len(files))
	for _, name := range files {
		present = append(present, name)

		fileKind, source := im.classifier.Classify(name)
		if kind != nil && fileKind != *kind {
			continue
		}
		report.Scanned++

		path := filepath.Join(dir, name)
		info, err := probe.Stat(im.fs, path)
		if err != nil {
			report.addError("%s: %v", name, err)
			continue
		}
		size, modTime := info.Size(), info.ModTime()

		obs := models.Observation{
			Filename:   name,
			Location:   loc,
			Path:       path,
			FileSize:   &size,
			ModTime:    &modTime,
			Kind:       fileKind,
			KindSource: source,
		}
		if entry, ok := im.index.Lookup(name); ok {
			obs.DisplayName = entry.Name
			if loc == models.LocationHost {
				obs.DisplayOrder = entry.Order
			}
			if fileKind == models.KindLora {
				obs.Strength = entry.Strength
			}
		}

		created, err := im.catalog.UpsertModel(ctx, obs)
		if err != nil {
			return report, fmt.Errorf("failed to record '%s': %w", name, err)
		}
		if created {
			im.log.Debug("Imported '%s' as %s (%s)", name, fileKind, source)
			report.Imported++
		}
	}

	cleared, err := im.catalog.ClearMissing(ctx, loc, present, kind)
	if err != nil {
		return report, fmt.Errorf("failed to clear missing %s entries: %w", loc, err)
	}
	report.Cleared = cleared

	im.log.Info("Scanned %s: %d files, %d imported, %d cleared, %d errors",
		loc, report.Scanned, report.Imported, report.Cleared, len(report.Errors))
	return report, nil
}
