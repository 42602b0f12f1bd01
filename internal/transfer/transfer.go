// Package transfer copies model files into the stash under disk space admission
// control and checksum verification.
package transfer

import (
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ianscrivener/draw-things-companion/internal/errdefs"
	"github.com/ianscrivener/draw-things-companion/internal/probe"
	"github.com/ianscrivener/draw-things-companion/pkg/log"
	"github.com/spf13/afero"
)

// DefaultSafetyMargin is the factor applied to a file's size before comparing it
// to the free space at the destination.
const DefaultSafetyMargin = 1.1

// Modification times are compared at this granularity so that volumes with coarse
// timestamps do not cause endless recopies.
const mtimeGranularity = time.Second

type Outcome int

const (
	Skipped Outcome = iota
	Copied
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Copied:
		return "copied"
	case Failed:
		return "failed"
	}
	return "skipped"
}

// Result describes what happened to a single file
type Result struct {
	Outcome     Outcome
	Source      string
	Destination string
	Bytes       int64
	Err         error
}

type Transferer struct {
	fs        afero.Fs
	freeSpace probe.FreeSpaceFunc
	margin    float64
	log       log.LoggerService
}

func New(fs afero.Fs, freeSpace probe.FreeSpaceFunc, margin float64, logger log.LoggerService) *Transferer {
	if freeSpace == nil {
		freeSpace = probe.FreeSpace
	}
	if margin < 1 {
		margin = DefaultSafetyMargin
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}

	return &Transferer{
		fs:        fs,
		freeSpace: freeSpace,
		margin:    margin,
		log:       logger,
	}
}

// NeedsCopy reports whether dest is missing, differs in size from source, or is
// older than source.
func (t *Transferer) NeedsCopy(source, dest string) (bool, error) {
	src, err := t.fs.Stat(source)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, errdefs.NotFound(source)
		}
		return false, &errdefs.IOError{Op: "stat", Path: source, Err: err}
	}

	dst, err := t.fs.Stat(dest)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return true, nil
		}
		return false, &errdefs.IOError{Op: "stat", Path: dest, Err: err}
	}

	if src.Size() != dst.Size() {
		return true, nil
	}

	srcTime := src.ModTime().Truncate(mtimeGranularity)
	dstTime := dst.ModTime().Truncate(mtimeGranularity)
	return srcTime.After(dstTime), nil
}

// Admit checks that the volume holding destDir has more than size times the
// safety margin available.
func (t *Transferer) Admit(destDir string, size int64) error {
	required := uint64(math.Round(float64(size) * t.margin))

	available, err := t.freeSpace(destDir)
	if err != nil {
		return err
	}

	if available <= required {
		return &errdefs.InsufficientSpaceError{
			Path:      destDir,
			Required:  required,
			Available: available,
		}
	}
	return nil
}

// SyncFile copies source into destDir when the destination is missing or stale.
// When checksum is set the copy is verified against it.
func (t *Transferer) SyncFile(ctx context.Context, source, destDir string, checksum *string) Result {
	dest := filepath.Join(destDir, filepath.Base(source))
	result := Result{Source: source, Destination: dest}

	needed, err := t.NeedsCopy(source, dest)
	if err != nil {
		result.Outcome = Failed
		result.Err = err
		return result
	}
	if !needed {
		t.log.Debug("Skipping '%s', destination is up to date", filepath.Base(source))
		result.Outcome = Skipped
		return result
	}

	return t.copy(ctx, source, dest, checksum)
}

// Copy copies source into destDir unconditionally. An existing destination is a
// conflict.
func (t *Transferer) Copy(ctx context.Context, source, destDir string, checksum *string) Result {
	dest := filepath.Join(destDir, filepath.Base(source))

	if _, err := t.fs.Stat(dest); err == nil {
		return Result{
			Outcome:     Failed,
			Source:      source,
			Destination: dest,
			Err:         errdefs.Conflict(dest),
		}
	}

	return t.copy(ctx, source, dest, checksum)
}

func (t *Transferer) copy(ctx context.Context, source, dest string, checksum *string) Result {
	result := Result{Source: source, Destination: dest, Outcome: Failed}

	if err := ctx.Err(); err != nil {
		result.Err = err
		return result
	}

	info, err := t.fs.Stat(source)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			result.Err = errdefs.NotFound(source)
		} else {
			result.Err = &errdefs.IOError{Op: "stat", Path: source, Err: err}
		}
		return result
	}

	destDir := filepath.Dir(dest)
	if err := t.fs.MkdirAll(destDir, 0o755); err != nil {
		result.Err = &errdefs.IOError{Op: "mkdir", Path: destDir, Err: err}
		return result
	}

	if err := t.Admit(destDir, info.Size()); err != nil {
		result.Err = err
		return result
	}

	t.log.Info("Copying '%s' (%s) to '%s'", filepath.Base(source), humanize.Bytes(uint64(info.Size())), destDir)

	written, err := t.write(source, dest, info.ModTime(), checksum)
	if err != nil {
		result.Err = err
		return result
	}
	result.Bytes = written

	result.Outcome = Copied
	return result
}

// write streams source into a hidden temporary file next to dest. With a checksum
// the temporary file is verified first and removed on mismatch, so a previous copy
// at dest is only replaced by verified content.
func (t *Transferer) write(source, dest string, modTime time.Time, checksum *string) (int64, error) {
	in, err := t.fs.Open(source)
	if err != nil {
		return 0, &errdefs.IOError{Op: "open", Path: source, Err: err}
	}
	defer in.Close()

	tmp, err := afero.TempFile(t.fs, filepath.Dir(dest), "."+filepath.Base(dest)+".*.partial")
	if err != nil {
		return 0, &errdefs.IOError{Op: "create", Path: dest, Err: err}
	}
	tmpName := tmp.Name()

	written, err := io.Copy(tmp, in)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = t.fs.Remove(tmpName)
		return 0, &errdefs.IOError{Op: "copy", Path: dest, Err: err}
	}

	if checksum != nil && *checksum != "" {
		actual, err := probe.Checksum(t.fs, tmpName)
		if err != nil {
			_ = t.fs.Remove(tmpName)
			return 0, err
		}
		if actual != *checksum {
			t.log.Error("Checksum mismatch for '%s', discarding copy", dest)
			if err := t.fs.Remove(tmpName); err != nil {
				t.log.Error("Failed to remove corrupt copy '%s': %v", tmpName, err)
			}
			return 0, &errdefs.IntegrityError{Path: dest, Expected: *checksum, Actual: actual}
		}
	}

	if err := t.fs.Chtimes(tmpName, modTime, modTime); err != nil {
		_ = t.fs.Remove(tmpName)
		return 0, &errdefs.IOError{Op: "chtimes", Path: dest, Err: err}
	}

	if err := t.fs.Rename(tmpName, dest); err != nil {
		_ = t.fs.Remove(tmpName)
		return 0, &errdefs.IOError{Op: "rename", Path: dest, Err: err}
	}

	return written, nil
}
