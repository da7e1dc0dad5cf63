package syncer

import (
	"errors"
	"fmt"

	"github.com/easelhq/framegit/pkg/errs"
	"github.com/easelhq/framegit/pkg/object"
	"github.com/easelhq/framegit/pkg/store"
	"github.com/easelhq/framegit/pkg/vfs"
)

// Source resolves commits to trees and blob hashes to content. The local
// object database and the remote gateway client both satisfy it.
type Source interface {
	Tree(commit object.Hash) (*object.Tree, error)
	Blob(sha object.Hash) ([]byte, error)
}

// Observer receives per-file sync notifications. It replaces event
// emission: callers that want progress subscribe here, everyone else
// gets plain return values.
type Observer interface {
	FileSynced(path string, status Class)
	FileFailed(path string, err error)
}

// Result summarizes an applied sync pass.
type Result struct {
	Written int // files created or rewritten
	Removed int // files deleted
	Skipped int // per-file failures logged and skipped
}

// Engine reconciles a directory with a target branch tree, writing and
// deleting the minimum necessary files. Sync passes are not
// transactional; re-running against the same target is idempotent and
// self-heals a previously interrupted pass.
type Engine struct {
	fs  *vfs.Adapter
	obs Observer
}

// Option configures a sync Engine.
type Option func(*Engine)

// WithObserver subscribes an observer to per-file outcomes.
func WithObserver(obs Observer) Option {
	return func(e *Engine) { e.obs = obs }
}

// New creates a sync engine writing through the filesystem adapter.
func New(fs *vfs.Adapter, opts ...Option) *Engine {
	e := &Engine{fs: fs}
	for _, o := range opts {
		o(e)
	}
	return e
}

// SyncCommit resolves the source and target trees through src and applies
// the diff. An empty sourceCommit means first activation: the source is
// treated as an empty tree, so every target file classifies as added.
func (e *Engine) SyncCommit(src Source, sourceCommit, targetCommit object.Hash) (*Result, error) {
	targetTree, err := src.Tree(targetCommit)
	if err != nil {
		return nil, fmt.Errorf("sync: resolve target tree: %w", err)
	}
	sourceTree := &object.Tree{}
	if sourceCommit != "" {
		sourceTree, err = src.Tree(sourceCommit)
		if err != nil {
			// A source that no longer resolves is treated as empty; the
			// content-hash diff still converges on the target state.
			sourceTree = &object.Tree{}
		}
	}
	return e.Apply(Classify(sourceTree, targetTree), src)
}

// Apply performs the filesystem pass for a classified diff. Unchanged
// files incur zero I/O. Ignored paths are never written or deleted,
// whatever their classification. A single file's failure is reported to
// the observer and skipped; the pass continues with the remaining files.
func (e *Engine) Apply(diff *Diff, blobs Source) (*Result, error) {
	rules := e.fs.Rules()
	res := &Result{}

	for _, change := range diff.Files {
		if change.Status == ClassUnchanged {
			continue
		}
		if rules.Match(change.Path) {
			continue
		}
		content, err := blobs.Blob(change.SHA)
		if err != nil {
			e.fileFailed(change.Path, err)
			res.Skipped++
			continue
		}
		if err := e.fs.WriteFile(change.Path, content); err != nil {
			if errors.Is(err, errs.ErrPermissionDenied) {
				return res, fmt.Errorf("sync %q: %w", change.Path, err)
			}
			e.fileFailed(change.Path, err)
			res.Skipped++
			continue
		}
		res.Written++
		e.fileSynced(change.Path, change.Status)
	}

	for _, path := range diff.Deleted {
		if rules.Match(path) {
			continue
		}
		if err := e.fs.Unlink(path); err != nil {
			if errors.Is(err, errs.ErrPermissionDenied) {
				return res, fmt.Errorf("sync delete %q: %w", path, err)
			}
			if errors.Is(err, errs.ErrNotFound) {
				// Already absent: an earlier interrupted pass got here first.
				continue
			}
			e.fileFailed(path, err)
			res.Skipped++
			continue
		}
		res.Removed++
		e.fileSynced(path, ClassDeleted)
	}

	return res, nil
}

func (e *Engine) fileSynced(path string, status Class) {
	if e.obs != nil {
		e.obs.FileSynced(path, status)
	}
}

func (e *Engine) fileFailed(path string, err error) {
	if e.obs != nil {
		e.obs.FileFailed(path, err)
	}
}

// StoreSource adapts the local object database to the Source interface.
type StoreSource struct {
	DB *store.DB
}

// Tree reads the commit and returns its tree.
func (s StoreSource) Tree(commit object.Hash) (*object.Tree, error) {
	c, err := s.DB.ReadCommit(commit)
	if err != nil {
		return nil, err
	}
	return s.DB.ReadTree(c.TreeHash)
}

// Blob returns a blob's content.
func (s StoreSource) Blob(sha object.Hash) ([]byte, error) {
	b, err := s.DB.ReadBlob(sha)
	if err != nil {
		return nil, err
	}
	return b.Data, nil
}
