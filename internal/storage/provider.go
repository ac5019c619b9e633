// Package storage defines the workspace file-system abstraction.
//
// All paths are workspace paths: forward-slash separated and rooted at the
// workspace directory, so "/notes/api.md" names <root>/notes/api.md. A
// missing leading slash is tolerated on input; returned paths always carry
// one.
package storage

import "github.com/starford/ansuz/internal/models"

// Provider is the interface for workspace file operations.
type Provider interface {
	// List returns info for every .md file under dir ("" or "/" for the
	// whole workspace).
	List(dir string) ([]models.DocInfo, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path, creating parent directories.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Move renames oldPath to newPath, creating parent directories.
	Move(oldPath, newPath string) error
	// Snapshot captures content plus mtime as the unit of optimistic
	// concurrency. CommitIfUnchanged writes content back only while the
	// file's mtime still equals the snapshot's; otherwise it fails with a
	// ConflictError and the caller must re-read.
	Snapshot(path string) (*Snapshot, error)
	CommitIfUnchanged(snap *Snapshot, content []byte) error
}
