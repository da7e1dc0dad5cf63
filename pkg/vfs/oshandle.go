package vfs

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/easelhq/framegit/pkg/errs"
)

// OSHandle is a DirHandle backed by a directory on the local filesystem.
// Paths are confined to the root; attempts to escape resolve to not-found.
// The capability can be revoked at runtime, mirroring a browser sandbox
// withdrawing access.
type OSHandle struct {
	root string

	mu    sync.Mutex
	state Permission
}

// NewOSHandle creates a granted handle rooted at dir.
func NewOSHandle(dir string) *OSHandle {
	return &OSHandle{root: dir, state: PermissionGranted}
}

// Revoke withdraws the capability. Subsequent operations fail with
// permission errors until Grant is called.
func (h *OSHandle) Revoke() {
	h.mu.Lock()
	h.state = PermissionDenied
	h.mu.Unlock()
}

// Grant restores the capability.
func (h *OSHandle) Grant() {
	h.mu.Lock()
	h.state = PermissionGranted
	h.mu.Unlock()
}

// Permission reports the current capability state.
func (h *OSHandle) Permission(write bool) Permission {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Request returns the current state; an OS-backed handle has no prompt.
func (h *OSHandle) Request(write bool) Permission {
	return h.Permission(write)
}

// resolve maps a forward-slash relative path into the root, rejecting
// escapes and denied capabilities.
func (h *OSHandle) resolve(path string, write bool) (string, error) {
	if h.Permission(write) != PermissionGranted {
		return "", fmt.Errorf("handle %q: %w", path, errs.ErrPermissionDenied)
	}
	// Rooted clean confines the path to the handle's directory: any ".."
	// segments resolve against the virtual root, never above it.
	clean := filepath.Clean("/" + filepath.FromSlash(path))
	return filepath.Join(h.root, clean), nil
}

func (h *OSHandle) Open(path string) ([]byte, error) {
	abs, err := h.resolve(path, false)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, wrapOSErr(path, err)
	}
	return data, nil
}

func (h *OSHandle) Create(path string, data []byte) error {
	abs, err := h.resolve(path, true)
	if err != nil {
		return err
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return wrapOSErr(path, err)
	}
	return nil
}

func (h *OSHandle) Delete(path string) error {
	abs, err := h.resolve(path, true)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return wrapOSErr(path, err)
	}
	return nil
}

func (h *OSHandle) MakeDir(path string) error {
	abs, err := h.resolve(path, true)
	if err != nil {
		return err
	}
	if err := os.Mkdir(abs, 0o755); err != nil && !os.IsExist(err) {
		return wrapOSErr(path, err)
	}
	return nil
}

func (h *OSHandle) DeleteDir(path string) error {
	abs, err := h.resolve(path, true)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return wrapOSErr(path, err)
	}
	return nil
}

func (h *OSHandle) List(path string) ([]DirEntry, error) {
	abs, err := h.resolve(path, false)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, wrapOSErr(path, err)
	}
	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, DirEntry{Name: e.Name(), IsDir: e.IsDir()})
	}
	return out, nil
}

func (h *OSHandle) Info(path string) (FileInfo, error) {
	abs, err := h.resolve(path, false)
	if err != nil {
		return FileInfo{}, err
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return FileInfo{}, wrapOSErr(path, err)
	}
	return FileInfo{
		Name:    fi.Name(),
		IsDir:   fi.IsDir(),
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
	}, nil
}

func wrapOSErr(path string, err error) error {
	if os.IsNotExist(err) {
		return fmt.Errorf("%q: %w", path, errs.ErrNotFound)
	}
	if os.IsPermission(err) {
		return fmt.Errorf("%q: %w", path, errs.ErrPermissionDenied)
	}
	return fmt.Errorf("%q: %w", path, err)
}
