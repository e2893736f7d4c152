// Package storage defines the file-system abstraction behind the capture inbox.
package storage

import "time"

// File describes one file found in the inbox.
type File struct {
	Path     string // relative to the root
	Checksum string
	Size     int64
	ModTime  time.Time
}

// Provider is the interface for inbox file operations. Paths are relative to
// the provider root and may not escape it.
type Provider interface {
	// List returns every regular file under dir whose extension is in exts,
	// skipping hidden files and directories.
	List(dir string, exts ...string) ([]File, error)
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	Delete(path string) error
	// Move renames oldPath to newPath, creating parent directories.
	Move(oldPath, newPath string) error
}
