// Package probe reads file sizes, digests and free space.
package probe

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/ianscrivener/draw-things-companion/internal/errdefs"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/spf13/afero"
)

// FreeSpaceFunc reports the bytes available to an unprivileged user on the volume
// holding path.
type FreeSpaceFunc func(path string) (uint64, error)

// Checksum streams the file through SHA-256 and returns the lowercase hex digest.
func Checksum(fs afero.Fs, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", &errdefs.IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", &errdefs.IOError{Op: "read", Path: path, Err: err}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Stat returns the file info of path, mapping a missing file to NotFound.
func Stat(fs afero.Fs, path string) (os.FileInfo, error) {
	info, err := fs.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errdefs.NotFound(path)
		}
		return nil, &errdefs.IOError{Op: "stat", Path: path, Err: err}
	}
	return info, nil
}

// Size returns the byte length of a regular file.
func Size(fs afero.Fs, path string) (int64, error) {
	info, err := Stat(fs, path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// FreeSpace reports available space at path. Paths that do not exist yet are
// resolved against their nearest existing ancestor.
func FreeSpace(path string) (uint64, error) {
	dir, err := filepath.Abs(path)
	if err != nil {
		return 0, &errdefs.IOError{Op: "resolve", Path: path, Err: err}
	}

	for {
		if _, err := os.Stat(dir); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	usage, err := disk.Usage(dir)
	if err != nil {
		return 0, &errdefs.IOError{Op: "statfs", Path: dir, Err: err}
	}
	return usage.Free, nil
}
