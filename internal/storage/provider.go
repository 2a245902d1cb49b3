// Package storage defines the content-root file-system abstraction.
package storage

import "github.com/starford/growthlab/internal/models"

// Provider is the interface for file operations under the content root.
// All paths are slash-separated and relative to the root.
type Provider interface {
	// List returns every file under dir whose name ends with ext (any file when ext is empty).
	List(dir, ext string) ([]models.FileInfo, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically replaces the content of path.
	Write(path string, content []byte) error
	// Delete removes the file at path. A missing file yields an error wrapping os.ErrNotExist.
	Delete(path string) error
	// Stat reports size and modification time of path.
	Stat(path string) (models.FileInfo, error)
	// Abs resolves path to an absolute OS path, rejecting traversal.
	Abs(path string) (string, error)
}
