// Package storage abstracts the file operations the index and document
// catalog perform, so the same engine can run against the local
// filesystem, memory (tests), or object stores (see the s3 and minio
// subpackages).
package storage

import (
	"context"
	"os"
	"time"
)

// ErrNotFound is returned when a file or folder does not exist.
//
// Implementations should return an error that satisfies
// `errors.Is(err, ErrNotFound)`. The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// ErrExists is returned by CreateFile when the target already exists.
var ErrExists = os.ErrExist

// FileDetails describes a stored file.
type FileDetails struct {
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// Storage is the file abstraction consumed by the index and catalog.
// All operations may fail with an I/O error that preserves its cause.
type Storage interface {
	// CreateFile writes a new file. It must fail with ErrExists if the
	// target already exists.
	CreateFile(ctx context.Context, path string, data []byte) error

	// CreateFolder creates a folder, including missing parents.
	CreateFolder(ctx context.Context, path string) error

	// DeleteFile removes a file. Removing a missing file fails with
	// ErrNotFound.
	DeleteFile(ctx context.Context, path string) error

	// DeleteFolder removes a folder and everything beneath it.
	DeleteFolder(ctx context.Context, path string) error

	// GetDetails returns size and modification details for a path.
	GetDetails(ctx context.Context, path string) (FileDetails, error)

	// ListFiles returns the names of the files directly inside a folder.
	ListFiles(ctx context.Context, path string) ([]string, error)

	// PathExists reports whether a file or folder exists.
	PathExists(ctx context.Context, path string) (bool, error)

	// ReadFile returns the full contents of a file.
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// UpsertFile writes a file, replacing any existing content. It must
	// not fail merely because the target exists.
	UpsertFile(ctx context.Context, path string, data []byte) error
}
