// Package storage defines the content-tree file-system abstraction.
package storage

import "github.com/starford/gridedit/internal/models"

// Provider is the interface for content tree operations.
// All paths are slash-separated and relative to the content root.
type Provider interface {
	// List returns metadata for every file named name under dir.
	List(dir, name string) ([]models.FileMetadata, error)
	// ListDirs returns the names of the immediate subdirectories of dir.
	ListDirs(dir string) ([]string, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Mkdir creates the directory path. It fails if path already exists.
	Mkdir(path string) error
	// Rename renames oldPath to newPath. It fails if newPath already exists.
	Rename(oldPath, newPath string) error
	// RemoveAll removes path and everything below it.
	RemoveAll(path string) error
}
