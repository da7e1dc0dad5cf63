// Package repo implements the repository engine: one external contract
// with two interchangeable strategies selected at construction. The
// minimal strategy keeps all state in the content-addressed object
// database; the dotdir strategy drives a standard on-disk object layout
// through the filesystem adapter.
package repo

import (
	"github.com/easelhq/framegit/pkg/object"
	"github.com/easelhq/framegit/pkg/store"
)

// DefaultBranch is the initial branch created by Init.
const DefaultBranch = "main"

// FileState classifies one path in the status matrix.
type FileState string

const (
	StateUnchanged FileState = "unchanged"
	StateAdded     FileState = "added"
	StateModified  FileState = "modified"
	StateDeleted   FileState = "deleted"
)

// Status is the staged-vs-committed matrix. A repository with no commit
// yet yields an empty matrix, never an error.
type Status struct {
	Branch  string
	Entries map[string]FileState
}

// CommitInfo is one entry in the commit log.
type CommitInfo struct {
	Hash      object.Hash
	TreeHash  object.Hash
	Parents   []object.Hash
	Author    string
	Timestamp int64
	Message   string
}

// SyncFunc is invoked by Checkout after the target commit is resolved and
// before the branch state is persisted. It reconciles the sandboxed
// directory from the outgoing branch's tip (source, "" when nothing
// resolves yet) to the target commit's tree.
type SyncFunc func(source, target object.Hash) error

// Engine is the single external contract consumed by UI collaborators.
// Implementations serialize their public operations internally; callers
// need no external locking.
type Engine interface {
	// Init is idempotent: when a current ref already resolves it does
	// nothing, otherwise it creates a root commit and the initial branch.
	Init() error

	AddFile(path string, content []byte) error
	Commit(message, author string) (object.Hash, error)

	// ListFiles, GetFileContent, Log and Status are read-only; Log and
	// Status degrade to empty results when no commit exists yet.
	ListFiles() ([]string, error)
	GetFileContent(path string) ([]byte, error)
	Log(limit int) ([]CommitInfo, error)
	Status() (*Status, error)

	ListBranches() ([]string, error)
	CreateBranch(name string) error
	Checkout(name string) error
	CurrentBranch() (string, error)

	// Info returns the persisted repository state.
	Info() (*store.RepoInfo, error)

	// TreeAt resolves the named branch's current tree. A branch with no
	// commit resolves to an empty tree.
	TreeAt(branch string) (*object.Tree, error)
}
