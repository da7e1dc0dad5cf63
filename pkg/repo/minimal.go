package repo

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/easelhq/framegit/pkg/errs"
	"github.com/easelhq/framegit/pkg/object"
	"github.com/easelhq/framegit/pkg/store"
)

// MinimalEngine keeps all repository state in the object database: blobs,
// flat trees, single-parent commits, and ref objects. A branch is a named
// pointer to a ref object resolved through the key-value table. It needs
// none of the filesystem adapter's special-casing.
type MinimalEngine struct {
	db      *store.DB
	repoURL string
	syncFn  SyncFunc

	mu sync.Mutex
}

// MinimalOption configures a MinimalEngine.
type MinimalOption func(*MinimalEngine)

// WithSync installs the checkout synchronizer.
func WithSync(fn SyncFunc) MinimalOption {
	return func(e *MinimalEngine) { e.syncFn = fn }
}

// WithRepoURL records the upstream repository URL in the persisted state.
func WithRepoURL(url string) MinimalOption {
	return func(e *MinimalEngine) { e.repoURL = url }
}

// NewMinimal creates a minimal-strategy engine over the given store.
func NewMinimal(db *store.DB, opts ...MinimalOption) *MinimalEngine {
	e := &MinimalEngine{db: db}
	for _, o := range opts {
		o(e)
	}
	return e
}

func branchKey(name string) string { return "branch/" + name }

const stagingKey = "staging"

// Init creates a root commit and the initial branch ref. It is
// idempotent: when the current branch already resolves, nothing happens.
func (e *MinimalEngine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	info, err := e.db.LoadRepoInfo()
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if info.Initialized && info.CurrentBranch != "" {
		if _, err := e.resolveBranch(info.CurrentBranch); err == nil {
			return nil
		}
	}

	treeHash, err := e.db.WriteTree(&object.Tree{})
	if err != nil {
		return fmt.Errorf("init: write root tree: %w", err)
	}
	commitHash, err := e.db.WriteCommit(&object.Commit{
		TreeHash:  treeHash,
		Author:    "framegit",
		Timestamp: time.Now().Unix(),
		Message:   "initial commit",
	})
	if err != nil {
		return fmt.Errorf("init: write root commit: %w", err)
	}
	if err := e.advanceBranch(DefaultBranch, commitHash); err != nil {
		return fmt.Errorf("init: %w", err)
	}

	info.RepoURL = e.repoURL
	info.CurrentBranch = DefaultBranch
	info.Initialized = true
	info.LastCommitDate = time.Now()
	if err := e.db.SaveRepoInfo(info); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	_ = e.db.AppendHistory("init", map[string]string{"branch": DefaultBranch})
	return nil
}

// resolveBranch resolves a branch name to its commit hash.
func (e *MinimalEngine) resolveBranch(name string) (object.Hash, error) {
	refHash, err := e.db.GetKV(branchKey(name))
	if err != nil {
		return "", fmt.Errorf("branch %q: %w", name, errs.ErrNotFound)
	}
	ref, err := e.db.ReadRef(object.Hash(refHash))
	if err != nil {
		return "", fmt.Errorf("branch %q: %w", name, err)
	}
	return ref.Target, nil
}

// advanceBranch points the named branch at a commit by storing a new ref
// object; ref objects are immutable, so the branch map holds the hash of
// the latest one.
func (e *MinimalEngine) advanceBranch(name string, commit object.Hash) error {
	refHash, err := e.db.WriteRef(&object.Ref{Target: commit})
	if err != nil {
		return fmt.Errorf("advance branch %q: %w", name, err)
	}
	if err := e.db.SetKV(branchKey(name), []byte(refHash)); err != nil {
		return fmt.Errorf("advance branch %q: %w", name, err)
	}
	return nil
}

// currentTree returns the current branch's tree, or an empty tree when no
// commit resolves.
func (e *MinimalEngine) currentTree() (*object.Tree, object.Hash, error) {
	info, err := e.db.LoadRepoInfo()
	if err != nil {
		return nil, "", err
	}
	if info.CurrentBranch == "" {
		return &object.Tree{}, "", nil
	}
	commitHash, err := e.resolveBranch(info.CurrentBranch)
	if err != nil {
		return &object.Tree{}, "", nil
	}
	commit, err := e.db.ReadCommit(commitHash)
	if err != nil {
		return nil, "", err
	}
	tree, err := e.db.ReadTree(commit.TreeHash)
	if err != nil {
		return nil, "", err
	}
	return tree, commitHash, nil
}

func (e *MinimalEngine) loadStaging() (map[string]object.Hash, error) {
	data, err := e.db.GetKV(stagingKey)
	if errors.Is(err, errs.ErrNotFound) {
		return map[string]object.Hash{}, nil
	}
	if err != nil {
		return nil, err
	}
	staged := map[string]object.Hash{}
	if err := json.Unmarshal(data, &staged); err != nil {
		return nil, fmt.Errorf("load staging: %w", err)
	}
	return staged, nil
}

func (e *MinimalEngine) saveStaging(staged map[string]object.Hash) error {
	data, err := json.Marshal(staged)
	if err != nil {
		return fmt.Errorf("save staging: %w", err)
	}
	return e.db.SetKV(stagingKey, data)
}

// AddFile stages a file's content for the next commit. The blob is
// written immediately; staging only records the path-to-hash binding.
func (e *MinimalEngine) AddFile(path string, content []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	blobHash, err := e.db.WriteBlob(&object.Blob{Data: content})
	if err != nil {
		return fmt.Errorf("add %q: %w", path, err)
	}
	staged, err := e.loadStaging()
	if err != nil {
		return fmt.Errorf("add %q: %w", path, err)
	}
	staged[path] = blobHash
	if err := e.saveStaging(staged); err != nil {
		return fmt.Errorf("add %q: %w", path, err)
	}
	return nil
}

// Commit clones the current tree's entries, upserts the staged paths,
// hashes the new tree, and creates a commit referencing the previous
// commit as its sole parent before advancing the branch ref.
func (e *MinimalEngine) Commit(message, author string) (object.Hash, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	staged, err := e.loadStaging()
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	if len(staged) == 0 {
		return "", fmt.Errorf("commit: nothing staged")
	}

	tree, parent, err := e.currentTree()
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	merged := make(map[string]object.TreeEntry, len(tree.Entries)+len(staged))
	for _, entry := range tree.Entries {
		merged[entry.Path] = entry
	}
	for path, blobHash := range staged {
		merged[path] = object.TreeEntry{
			Path: path,
			Mode: object.ModeFile,
			Type: object.TypeBlob,
			SHA:  blobHash,
		}
	}
	newTree := &object.Tree{Entries: make([]object.TreeEntry, 0, len(merged))}
	for _, entry := range merged {
		newTree.Entries = append(newTree.Entries, entry)
	}
	sort.Slice(newTree.Entries, func(i, j int) bool {
		return newTree.Entries[i].Path < newTree.Entries[j].Path
	})

	treeHash, err := e.db.WriteTree(newTree)
	if err != nil {
		return "", fmt.Errorf("commit: write tree: %w", err)
	}

	commit := &object.Commit{
		TreeHash:  treeHash,
		Author:    author,
		Timestamp: time.Now().Unix(),
		Message:   message,
	}
	if parent != "" {
		commit.Parents = []object.Hash{parent}
	}
	commitHash, err := e.db.WriteCommit(commit)
	if err != nil {
		return "", fmt.Errorf("commit: write commit: %w", err)
	}

	info, err := e.db.LoadRepoInfo()
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	branch := info.CurrentBranch
	if branch == "" {
		branch = DefaultBranch
	}
	if err := e.advanceBranch(branch, commitHash); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	if err := e.saveStaging(map[string]object.Hash{}); err != nil {
		return "", fmt.Errorf("commit: clear staging: %w", err)
	}

	info.CurrentBranch = branch
	info.Initialized = true
	info.LastCommitDate = time.Now()
	if err := e.db.SaveRepoInfo(info); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	_ = e.db.AppendHistory("commit", map[string]string{
		"branch": branch, "hash": string(commitHash), "message": message,
	})
	return commitHash, nil
}

// ListFiles returns the sorted paths of the current tree. A repository
// with no commit yields an empty list.
func (e *MinimalEngine) ListFiles() ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tree, _, err := e.currentTree()
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	paths := make([]string, 0, len(tree.Entries))
	for _, entry := range tree.Entries {
		paths = append(paths, entry.Path)
	}
	sort.Strings(paths)
	return paths, nil
}

// GetFileContent reads a file from the current tree.
func (e *MinimalEngine) GetFileContent(path string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tree, _, err := e.currentTree()
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", path, err)
	}
	entry, ok := tree.Lookup(path)
	if !ok {
		return nil, fmt.Errorf("get %q: %w", path, errs.ErrNotFound)
	}
	blob, err := e.db.ReadBlob(entry.SHA)
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", path, err)
	}
	return blob.Data, nil
}

// Log walks single-parent history from the current branch head. A
// repository with no commit yields an empty log.
func (e *MinimalEngine) Log(limit int) ([]CommitInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	info, err := e.db.LoadRepoInfo()
	if err != nil {
		return nil, fmt.Errorf("log: %w", err)
	}
	if info.CurrentBranch == "" {
		return nil, nil
	}
	head, err := e.resolveBranch(info.CurrentBranch)
	if err != nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}

	var out []CommitInfo
	current := head
	for current != "" && len(out) < limit {
		c, err := e.db.ReadCommit(current)
		if err != nil {
			return nil, fmt.Errorf("log: read commit %s: %w", current, err)
		}
		out = append(out, CommitInfo{
			Hash:      current,
			TreeHash:  c.TreeHash,
			Parents:   c.Parents,
			Author:    c.Author,
			Timestamp: c.Timestamp,
			Message:   c.Message,
		})
		if len(c.Parents) == 0 {
			break
		}
		current = c.Parents[0]
	}
	return out, nil
}

// Status compares the staging area against the current tree.
func (e *MinimalEngine) Status() (*Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	info, err := e.db.LoadRepoInfo()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	st := &Status{Branch: info.CurrentBranch, Entries: map[string]FileState{}}

	tree, _, err := e.currentTree()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	staged, err := e.loadStaging()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	committed := make(map[string]object.Hash, len(tree.Entries))
	for _, entry := range tree.Entries {
		committed[entry.Path] = entry.SHA
	}
	for path, blobHash := range staged {
		prev, ok := committed[path]
		switch {
		case !ok:
			st.Entries[path] = StateAdded
		case prev != blobHash:
			st.Entries[path] = StateModified
		default:
			st.Entries[path] = StateUnchanged
		}
	}
	for path := range committed {
		if _, ok := st.Entries[path]; !ok {
			st.Entries[path] = StateUnchanged
		}
	}
	return st, nil
}

// ListBranches returns the recorded branch names, sorted.
func (e *MinimalEngine) ListBranches() ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	info, err := e.db.LoadRepoInfo()
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	names := append([]string(nil), info.Branches...)
	sort.Strings(names)
	return names, nil
}

// CreateBranch adds a ref at the current commit. No history is rewritten.
func (e *MinimalEngine) CreateBranch(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.createBranchLocked(name)
}

func (e *MinimalEngine) createBranchLocked(name string) error {
	if name == "" {
		return fmt.Errorf("create branch: name is required")
	}
	_, current, err := e.currentTree()
	if err != nil {
		return fmt.Errorf("create branch %q: %w", name, err)
	}
	if current == "" {
		return fmt.Errorf("create branch %q: no commit to branch from", name)
	}
	if err := e.advanceBranch(name, current); err != nil {
		return err
	}

	info, err := e.db.LoadRepoInfo()
	if err != nil {
		return fmt.Errorf("create branch %q: %w", name, err)
	}
	info.AddBranch(name)
	if err := e.db.SaveRepoInfo(info); err != nil {
		return fmt.Errorf("create branch %q: %w", name, err)
	}
	_ = e.db.AppendHistory("create-branch", map[string]string{"branch": name})
	return nil
}

// Checkout switches to the named branch, creating it from the current
// commit when it does not exist yet (which yields an empty sync diff).
// The synchronizer runs before the branch state is persisted.
func (e *MinimalEngine) Checkout(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	target, err := e.resolveBranch(name)
	if errors.Is(err, errs.ErrNotFound) {
		if err := e.createBranchLocked(name); err != nil {
			return fmt.Errorf("checkout %q: %w", name, err)
		}
		target, err = e.resolveBranch(name)
	}
	if err != nil {
		return fmt.Errorf("checkout %q: %w", name, err)
	}

	if e.syncFn != nil {
		_, source, err := e.currentTree()
		if err != nil {
			return fmt.Errorf("checkout %q: %w", name, err)
		}
		if err := e.syncFn(source, target); err != nil {
			return fmt.Errorf("checkout %q: sync: %w", name, err)
		}
	}

	info, err := e.db.LoadRepoInfo()
	if err != nil {
		return fmt.Errorf("checkout %q: %w", name, err)
	}
	info.CurrentBranch = name
	info.AddBranch(name)
	if err := e.db.SaveRepoInfo(info); err != nil {
		return fmt.Errorf("checkout %q: %w", name, err)
	}
	_ = e.db.AppendHistory("checkout", map[string]string{"branch": name})
	return nil
}

// CurrentBranch returns the persisted current branch name.
func (e *MinimalEngine) CurrentBranch() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	info, err := e.db.LoadRepoInfo()
	if err != nil {
		return "", fmt.Errorf("current branch: %w", err)
	}
	return info.CurrentBranch, nil
}

// Info returns the persisted repository state.
func (e *MinimalEngine) Info() (*store.RepoInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.db.LoadRepoInfo()
}

// TreeAt resolves the named branch's tree.
func (e *MinimalEngine) TreeAt(branch string) (*object.Tree, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	commitHash, err := e.resolveBranch(branch)
	if err != nil {
		return nil, err
	}
	commit, err := e.db.ReadCommit(commitHash)
	if err != nil {
		return nil, err
	}
	return e.db.ReadTree(commit.TreeHash)
}

var _ Engine = (*MinimalEngine)(nil)
