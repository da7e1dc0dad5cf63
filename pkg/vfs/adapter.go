package vfs

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/easelhq/framegit/pkg/errs"
	"github.com/easelhq/framegit/pkg/ignore"
)

// MetaDir is the engine's metadata directory inside the synced root.
// Paths under it bypass ignore filtering: they are engine storage, not
// user content.
const MetaDir = ".framegit"

// Adapter exposes POSIX-style operations over a DirHandle, in the shape a
// dotdir repository engine's storage expects.
//
// Behavior beyond plain delegation:
//   - paths are normalized (leading slashes stripped, forward slashes);
//   - reads and listings are filtered through the ignore rule set, and an
//     ignored path is reported as not found rather than silently hidden;
//   - writes auto-vivify intermediate directories;
//   - the object fan-out space under MetaDir/objects is eagerly created so
//     engine writes need no mkdir, and reading a not-yet-written object
//     path yields an empty buffer to satisfy existence probing;
//   - rename is emulated as read + write + delete (non-atomic).
type Adapter struct {
	handle DirHandle

	rulesOnce sync.Once
	rules     *ignore.RuleSet

	objectSpaceMu    sync.Mutex
	objectSpaceReady bool
}

// NewAdapter wraps a directory handle.
func NewAdapter(handle DirHandle) *Adapter {
	return &Adapter{handle: handle}
}

// Rules returns the memoized ignore rule set, loading .gitignore from the
// handle on first use. A missing or unreadable rule file yields only the
// hardcoded excludes.
func (a *Adapter) Rules() *ignore.RuleSet {
	a.rulesOnce.Do(func() {
		data, err := a.handle.Open(".gitignore")
		if err != nil {
			a.rules = ignore.Default()
			return
		}
		a.rules = ignore.Parse(string(data))
	})
	return a.rules
}

// normalize strips leading slashes and collapses empty segments.
func normalize(path string) string {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" && p != "." {
			out = append(out, p)
		}
	}
	return strings.Join(out, "/")
}

func isMeta(path string) bool {
	return path == MetaDir || strings.HasPrefix(path, MetaDir+"/")
}

func (a *Adapter) objectPrefixDir() string {
	return MetaDir + "/objects"
}

func (a *Adapter) isObjectPath(path string) bool {
	return strings.HasPrefix(path, a.objectPrefixDir()+"/")
}

// checkAccess verifies the capability and applies ignore filtering.
// Ignored paths are reported as absent so callers treat them uniformly.
func (a *Adapter) checkAccess(path string, write bool) error {
	if a.handle.Permission(write) != PermissionGranted {
		return fmt.Errorf("%q: %w", path, errs.ErrPermissionDenied)
	}
	if !isMeta(path) && a.Rules().Match(path) {
		return fmt.Errorf("%q: %w", path, errs.ErrNotFound)
	}
	return nil
}

// ensureObjectSpace eagerly creates the metadata layout and the full
// two-character hash-prefix directory space, so the engine's
// write-without-mkdir assumption holds. A failed attempt is not latched:
// the next call retries creation, since MakeDir tolerates directories
// that already exist.
func (a *Adapter) ensureObjectSpace() error {
	a.objectSpaceMu.Lock()
	defer a.objectSpaceMu.Unlock()
	if a.objectSpaceReady {
		return nil
	}
	dirs := []string{
		MetaDir,
		MetaDir + "/objects",
		MetaDir + "/refs",
		MetaDir + "/refs/heads",
	}
	for _, d := range dirs {
		if err := a.handle.MakeDir(d); err != nil {
			return err
		}
	}
	for i := 0; i < 256; i++ {
		prefix := fmt.Sprintf("%s/objects/%02x", MetaDir, i)
		if err := a.handle.MakeDir(prefix); err != nil {
			return err
		}
	}
	a.objectSpaceReady = true
	return nil
}

// ReadFile reads a file. Reading a not-yet-written object path returns an
// empty buffer instead of an error.
func (a *Adapter) ReadFile(path string) ([]byte, error) {
	path = normalize(path)
	if err := a.checkAccess(path, false); err != nil {
		return nil, err
	}
	data, err := a.handle.Open(path)
	if err != nil {
		if a.isObjectPath(path) {
			return []byte{}, nil
		}
		return nil, normalizeErr(path, err)
	}
	return data, nil
}

// WriteFile writes a file, creating intermediate directories as needed.
func (a *Adapter) WriteFile(path string, data []byte) error {
	path = normalize(path)
	if err := a.checkAccess(path, true); err != nil {
		return err
	}
	if a.isObjectPath(path) {
		if err := a.ensureObjectSpace(); err != nil {
			return normalizeErr(path, err)
		}
	} else if err := a.vivifyParents(path); err != nil {
		return err
	}
	if err := a.handle.Create(path, data); err != nil {
		return normalizeErr(path, err)
	}
	return nil
}

// vivifyParents creates every intermediate directory of path.
func (a *Adapter) vivifyParents(path string) error {
	segs := strings.Split(path, "/")
	for i := 1; i < len(segs); i++ {
		dir := strings.Join(segs[:i], "/")
		if err := a.handle.MakeDir(dir); err != nil {
			return normalizeErr(dir, err)
		}
	}
	return nil
}

// Mkdir creates a directory and its parents.
func (a *Adapter) Mkdir(path string) error {
	path = normalize(path)
	if err := a.checkAccess(path, true); err != nil {
		return err
	}
	if err := a.vivifyParents(path); err != nil {
		return err
	}
	if err := a.handle.MakeDir(path); err != nil {
		return normalizeErr(path, err)
	}
	return nil
}

// Stat resolves file-vs-directory ambiguity by attempting file access
// first and falling back to directory access.
func (a *Adapter) Stat(path string) (FileInfo, error) {
	path = normalize(path)
	if err := a.checkAccess(path, false); err != nil {
		return FileInfo{}, err
	}
	info, err := a.handle.Info(path)
	if err == nil {
		return info, nil
	}
	if _, listErr := a.handle.List(path); listErr == nil {
		name := path
		if i := strings.LastIndexByte(path, '/'); i >= 0 {
			name = path[i+1:]
		}
		return FileInfo{Name: name, IsDir: true}, nil
	}
	return FileInfo{}, normalizeErr(path, err)
}

// Lstat is identical to Stat; the capability API exposes no symlinks.
func (a *Adapter) Lstat(path string) (FileInfo, error) {
	return a.Stat(path)
}

// ReadDir lists a directory, dropping ignored entries. The listing itself
// is subject to the same filtering as reads.
func (a *Adapter) ReadDir(path string) ([]DirEntry, error) {
	path = normalize(path)
	if err := a.checkAccess(path, false); err != nil {
		return nil, err
	}
	entries, err := a.handle.List(path)
	if err != nil {
		return nil, normalizeErr(path, err)
	}
	if isMeta(path) {
		return entries, nil
	}
	out := entries[:0]
	for _, e := range entries {
		child := e.Name
		if path != "" {
			child = path + "/" + e.Name
		}
		if a.Rules().Match(child) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Unlink removes a file.
func (a *Adapter) Unlink(path string) error {
	path = normalize(path)
	if err := a.checkAccess(path, true); err != nil {
		return err
	}
	if err := a.handle.Delete(path); err != nil {
		return normalizeErr(path, err)
	}
	return nil
}

// Rmdir removes an empty directory.
func (a *Adapter) Rmdir(path string) error {
	path = normalize(path)
	if err := a.checkAccess(path, true); err != nil {
		return err
	}
	if err := a.handle.DeleteDir(path); err != nil {
		return normalizeErr(path, err)
	}
	return nil
}

// Rename moves a file. The capability API has no atomic rename primitive,
// so this is read + write + delete; a crash mid-rename can leave both or
// neither path present.
func (a *Adapter) Rename(oldPath, newPath string) error {
	data, err := a.ReadFile(oldPath)
	if err != nil {
		return err
	}
	if err := a.WriteFile(newPath, data); err != nil {
		return err
	}
	return a.Unlink(oldPath)
}

// Exists reports whether the path resolves to a file or directory.
func (a *Adapter) Exists(path string) bool {
	_, err := a.Stat(path)
	return err == nil
}

// normalizeErr maps storage failures to the not-found taxonomy while
// keeping the failing path. Permission failures keep their identity.
func normalizeErr(path string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, errs.ErrPermissionDenied) {
		return fmt.Errorf("%q: %w", path, errs.ErrPermissionDenied)
	}
	return fmt.Errorf("%q: %w", path, errs.ErrNotFound)
}
