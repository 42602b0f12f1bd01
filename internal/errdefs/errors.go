// Package errdefs holds the error kinds shared by the catalog, transfer and sync packages.
package errdefs

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

var (
	ErrNotConfigured     = errors.New("not configured")
	ErrNotFound          = errors.New("not found")
	ErrIO                = errors.New("io failure")
	ErrInsufficientSpace = errors.New("insufficient disk space")
	ErrIntegrity         = errors.New("integrity check failed")
	ErrConflict          = errors.New("conflict")
	ErrManifestParse     = errors.New("manifest parse failure")
)

// NotConfigured reports a required setting that has no value.
func NotConfigured(key string) error {
	return fmt.Errorf("%s: %w", key, ErrNotConfigured)
}

// NotFound reports a missing model or file.
func NotFound(what string) error {
	return fmt.Errorf("%s: %w", what, ErrNotFound)
}

// Conflict reports an operation that would clobber existing state.
func Conflict(what string) error {
	return fmt.Errorf("%s: %w", what, ErrConflict)
}

// IOError wraps an operating system error raised during a file operation.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func (e *IOError) Is(target error) bool {
	return target == ErrIO
}

// InsufficientSpaceError is returned by admission control before any bytes are written.
type InsufficientSpaceError struct {
	Path      string
	Required  uint64
	Available uint64
}

func (e *InsufficientSpaceError) Error() string {
	return fmt.Sprintf("insufficient disk space at %s: required %s, available %s",
		e.Path, humanize.Bytes(e.Required), humanize.Bytes(e.Available))
}

func (e *InsufficientSpaceError) Is(target error) bool {
	return target == ErrInsufficientSpace
}

// IntegrityError reports a digest mismatch after a copy. The destination has been removed.
type IntegrityError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}

func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}

// ManifestError reports a malformed manifest or registry list.
type ManifestError struct {
	Source string
	Err    error
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("failed to parse %s: %v", e.Source, e.Err)
}

func (e *ManifestError) Unwrap() error {
	return e.Err
}

func (e *ManifestError) Is(target error) bool {
	return target == ErrManifestParse
}
