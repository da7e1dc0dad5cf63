// Package vfs bridges a capability-scoped directory handle to the
// POSIX-style file operations the repository engines expect.
package vfs

import "time"

// Permission is the capability state of a directory handle. It can change
// at any time outside the engine's control, so it is re-checked before
// every sensitive operation.
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionPrompt  Permission = "prompt"
)

// FileInfo holds file metadata.
type FileInfo struct {
	Name    string
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// DirEntry represents a single directory entry.
type DirEntry struct {
	Name  string
	IsDir bool
}

// DirHandle is an opaque capability granting scoped access to a real
// directory. All paths are relative to the handle's root, use forward
// slashes, and may not escape the root. Primitive operations do not
// create missing parents; that is the Adapter's job.
type DirHandle interface {
	// Permission reports the current capability state for the requested
	// access level without prompting.
	Permission(write bool) Permission

	// Request asks for the capability, possibly prompting, and returns
	// the resulting state.
	Request(write bool) Permission

	Open(path string) ([]byte, error)
	Create(path string, data []byte) error
	Delete(path string) error
	MakeDir(path string) error
	DeleteDir(path string) error
	List(path string) ([]DirEntry, error)
	Info(path string) (FileInfo, error)
}
