// Package scanner lists candidate model files in a directory.
package scanner

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ianscrivener/draw-things-companion/internal/errdefs"
	"github.com/spf13/afero"
)

// DefaultExtensions are the model file extensions managed when none are configured
var DefaultExtensions = []string{"ckpt", "safetensors", "pt", "pth"}

// Scan returns the sorted basenames of the regular, non-hidden files directly inside
// dir whose extension matches one of exts, ignoring case. A missing directory yields
// an empty result.
func Scan(fs afero.Fs, dir string, exts []string) ([]string, error) {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}

	accepted := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			accepted[ext] = struct{}{}
		}
	}

	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, &errdefs.IOError{Op: "readdir", Path: dir, Err: err}
	}

	var files []string
	for _, info := range infos {
		name := info.Name()
		if strings.HasPrefix(name, ".") || !info.Mode().IsRegular() {
			continue
		}

		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
		if _, ok := accepted[ext]; !ok {
			continue
		}
		files = append(files, name)
	}

	sort.Strings(files)
	return files, nil
}

// Match reports whether filename carries one of the accepted extensions.
func Match(filename string, exts []string) bool {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}

	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	for _, e := range exts {
		if strings.EqualFold(ext, strings.TrimPrefix(e, ".")) {
			return true
		}
	}
	return false
}
