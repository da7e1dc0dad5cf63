package repo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/easelhq/framegit/pkg/errs"
	"github.com/easelhq/framegit/pkg/object"
	"github.com/easelhq/framegit/pkg/store"
	"github.com/easelhq/framegit/pkg/vfs"
)

// DotdirEngine stores standard-format objects through the filesystem
// adapter: HEAD and refs/heads/* files plus an objects/ fan-out of
// "type len\0content" envelopes. It exercises the adapter's eager
// prefix creation and empty-buffer existence probing. Repository state
// and the history log still live in the object database's KV tables.
type DotdirEngine struct {
	fs      *vfs.Adapter
	db      *store.DB
	repoURL string
	syncFn  SyncFunc

	mu sync.Mutex
}

// DotdirOption configures a DotdirEngine.
type DotdirOption func(*DotdirEngine)

// WithDotdirSync installs the checkout synchronizer.
func WithDotdirSync(fn SyncFunc) DotdirOption {
	return func(e *DotdirEngine) { e.syncFn = fn }
}

// WithDotdirRepoURL records the upstream repository URL.
func WithDotdirRepoURL(url string) DotdirOption {
	return func(e *DotdirEngine) { e.repoURL = url }
}

// NewDotdir creates a dotdir-strategy engine over the adapter and state
// database.
func NewDotdir(fs *vfs.Adapter, db *store.DB, opts ...DotdirOption) *DotdirEngine {
	e := &DotdirEngine{fs: fs, db: db}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *DotdirEngine) headPath() string  { return vfs.MetaDir + "/HEAD" }
func (e *DotdirEngine) indexPath() string { return vfs.MetaDir + "/index" }

func refPath(name string) string { return vfs.MetaDir + "/refs/heads/" + name }

func objectPath(h object.Hash) string {
	return fmt.Sprintf("%s/objects/%s/%s", vfs.MetaDir, h[:2], h[2:])
}

// writeObject stores an envelope-format object, skipping the write when
// the object already exists (probed via the adapter's empty-buffer read).
func (e *DotdirEngine) writeObject(objType object.Type, data []byte) (object.Hash, error) {
	h := object.HashObject(objType, data)
	existing, err := e.fs.ReadFile(objectPath(h))
	if err == nil && len(existing) > 0 {
		return h, nil
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %d\x00", objType, len(data))
	buf.Write(data)
	if err := e.fs.WriteFile(objectPath(h), buf.Bytes()); err != nil {
		return "", fmt.Errorf("write object %s: %w", h, err)
	}
	return h, nil
}

// readObject loads and parses an envelope-format object. The adapter
// returns an empty buffer for unwritten object paths, which reads as
// not found here.
func (e *DotdirEngine) readObject(h object.Hash) (object.Type, []byte, error) {
	raw, err := e.fs.ReadFile(objectPath(h))
	if err != nil {
		return "", nil, err
	}
	if len(raw) == 0 {
		return "", nil, fmt.Errorf("object %s: %w", h, errs.ErrNotFound)
	}
	nul := bytes.IndexByte(raw, 0)
	if nul < 0 {
		return "", nil, fmt.Errorf("object %s: invalid envelope (no NUL)", h)
	}
	header := string(raw[:nul])
	content := raw[nul+1:]
	typStr, lenStr, ok := strings.Cut(header, " ")
	if !ok {
		return "", nil, fmt.Errorf("object %s: invalid header %q", h, header)
	}
	length, err := strconv.Atoi(lenStr)
	if err != nil || length != len(content) {
		return "", nil, fmt.Errorf("object %s: length mismatch", h)
	}
	return object.Type(typStr), content, nil
}

func (e *DotdirEngine) readTyped(h object.Hash, want object.Type) ([]byte, error) {
	objType, data, err := e.readObject(h)
	if err != nil {
		return nil, err
	}
	if objType != want {
		return nil, fmt.Errorf("object %s: type mismatch: got %q, want %q", h, objType, want)
	}
	return data, nil
}

// head returns the branch name HEAD points at, or "" when HEAD is absent.
func (e *DotdirEngine) head() (string, error) {
	data, err := e.fs.ReadFile(e.headPath())
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	content := strings.TrimSpace(string(data))
	if name, ok := strings.CutPrefix(content, "ref: refs/heads/"); ok {
		return name, nil
	}
	return "", nil
}

func (e *DotdirEngine) setHead(branch string) error {
	return e.fs.WriteFile(e.headPath(), []byte("ref: refs/heads/"+branch+"\n"))
}

// resolveBranch reads refs/heads/<name> into a commit hash.
func (e *DotdirEngine) resolveBranch(name string) (object.Hash, error) {
	data, err := e.fs.ReadFile(refPath(name))
	if err != nil {
		return "", fmt.Errorf("branch %q: %w", name, errs.ErrNotFound)
	}
	h := object.Hash(strings.TrimSpace(string(data)))
	if h == "" {
		return "", fmt.Errorf("branch %q: %w", name, errs.ErrNotFound)
	}
	return h, nil
}

func (e *DotdirEngine) updateRef(name string, h object.Hash) error {
	return e.fs.WriteFile(refPath(name), []byte(string(h)+"\n"))
}

// Init creates the dotdir layout, a root commit, and the initial branch.
// When HEAD already resolves to a commit it does nothing.
func (e *DotdirEngine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if branch, err := e.head(); err == nil && branch != "" {
		if _, err := e.resolveBranch(branch); err == nil {
			return nil
		}
	}

	treeHash, err := e.writeObject(object.TypeTree, object.MarshalTree(&object.Tree{}))
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	commitHash, err := e.writeObject(object.TypeCommit, object.MarshalCommit(&object.Commit{
		TreeHash:  treeHash,
		Author:    "framegit",
		Timestamp: time.Now().Unix(),
		Message:   "initial commit",
	}))
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if err := e.updateRef(DefaultBranch, commitHash); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if err := e.setHead(DefaultBranch); err != nil {
		return fmt.Errorf("init: %w", err)
	}

	info, err := e.db.LoadRepoInfo()
	if err != nil {
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

func (e *DotdirEngine) loadStaging() (map[string]object.Hash, error) {
	data, err := e.fs.ReadFile(e.indexPath())
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return map[string]object.Hash{}, nil
		}
		return nil, err
	}
	staged := map[string]object.Hash{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &staged); err != nil {
			return nil, fmt.Errorf("load index: %w", err)
		}
	}
	return staged, nil
}

func (e *DotdirEngine) saveStaging(staged map[string]object.Hash) error {
	data, err := json.Marshal(staged)
	if err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	return e.fs.WriteFile(e.indexPath(), data)
}

// currentTree resolves HEAD's tree, or an empty tree when nothing resolves.
func (e *DotdirEngine) currentTree() (*object.Tree, object.Hash, error) {
	branch, err := e.head()
	if err != nil || branch == "" {
		return &object.Tree{}, "", nil
	}
	commitHash, err := e.resolveBranch(branch)
	if err != nil {
		return &object.Tree{}, "", nil
	}
	data, err := e.readTyped(commitHash, object.TypeCommit)
	if err != nil {
		return nil, "", err
	}
	commit, err := object.UnmarshalCommit(data)
	if err != nil {
		return nil, "", err
	}
	treeData, err := e.readTyped(commit.TreeHash, object.TypeTree)
	if err != nil {
		return nil, "", err
	}
	tree, err := object.UnmarshalTree(treeData)
	if err != nil {
		return nil, "", err
	}
	return tree, commitHash, nil
}

// AddFile stages a file for the next commit.
func (e *DotdirEngine) AddFile(path string, content []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	blobHash, err := e.writeObject(object.TypeBlob, object.MarshalBlob(&object.Blob{Data: content}))
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

// Commit builds a tree from the current tree plus staged paths and
// advances the current branch ref.
func (e *DotdirEngine) Commit(message, author string) (object.Hash, error) {
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
			Path: path, Mode: object.ModeFile, Type: object.TypeBlob, SHA: blobHash,
		}
	}
	newTree := &object.Tree{}
	for _, entry := range merged {
		newTree.Entries = append(newTree.Entries, entry)
	}
	sort.Slice(newTree.Entries, func(i, j int) bool {
		return newTree.Entries[i].Path < newTree.Entries[j].Path
	})

	treeHash, err := e.writeObject(object.TypeTree, object.MarshalTree(newTree))
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
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
	commitHash, err := e.writeObject(object.TypeCommit, object.MarshalCommit(commit))
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	branch, err := e.head()
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	if branch == "" {
		branch = DefaultBranch
		if err := e.setHead(branch); err != nil {
			return "", fmt.Errorf("commit: %w", err)
		}
	}
	if err := e.updateRef(branch, commitHash); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	if err := e.saveStaging(map[string]object.Hash{}); err != nil {
		return "", fmt.Errorf("commit: clear index: %w", err)
	}

	info, err := e.db.LoadRepoInfo()
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
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

// ListFiles returns the sorted paths of the current tree.
func (e *DotdirEngine) ListFiles() ([]string, error) {
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
func (e *DotdirEngine) GetFileContent(path string) ([]byte, error) {
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
	data, err := e.readTyped(entry.SHA, object.TypeBlob)
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", path, err)
	}
	blob, err := object.UnmarshalBlob(data)
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", path, err)
	}
	return blob.Data, nil
}

// Log walks first-parent history from HEAD; empty when nothing resolves.
func (e *DotdirEngine) Log(limit int) ([]CommitInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	branch, err := e.head()
	if err != nil || branch == "" {
		return nil, nil
	}
	head, err := e.resolveBranch(branch)
	if err != nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}

	var out []CommitInfo
	current := head
	for current != "" && len(out) < limit {
		data, err := e.readTyped(current, object.TypeCommit)
		if err != nil {
			return nil, fmt.Errorf("log: read commit %s: %w", current, err)
		}
		c, err := object.UnmarshalCommit(data)
		if err != nil {
			return nil, fmt.Errorf("log: parse commit %s: %w", current, err)
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

// Status compares the staging index against the current tree.
func (e *DotdirEngine) Status() (*Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	branch, err := e.head()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	st := &Status{Branch: branch, Entries: map[string]FileState{}}

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

// ListBranches lists refs/heads through the adapter.
func (e *DotdirEngine) ListBranches() ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries, err := e.fs.ReadDir(vfs.MetaDir + "/refs/heads")
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list branches: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir {
			names = append(names, entry.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// CreateBranch adds a ref file at the current commit.
func (e *DotdirEngine) CreateBranch(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.createBranchLocked(name)
}

func (e *DotdirEngine) createBranchLocked(name string) error {
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
	if err := e.updateRef(name, current); err != nil {
		return fmt.Errorf("create branch %q: %w", name, err)
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

// Checkout switches HEAD to the named branch, creating it from the
// current commit when missing. The synchronizer runs before HEAD and the
// persisted state are updated.
func (e *DotdirEngine) Checkout(name string) error {
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
	if err := e.setHead(name); err != nil {
		return fmt.Errorf("checkout %q: %w", name, err)
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

// CurrentBranch reads HEAD.
func (e *DotdirEngine) CurrentBranch() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.head()
}

// Info returns the persisted repository state.
func (e *DotdirEngine) Info() (*store.RepoInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.db.LoadRepoInfo()
}

// TreeAt resolves the named branch's tree.
func (e *DotdirEngine) TreeAt(branch string) (*object.Tree, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	commitHash, err := e.resolveBranch(branch)
	if err != nil {
		return nil, err
	}
	data, err := e.readTyped(commitHash, object.TypeCommit)
	if err != nil {
		return nil, err
	}
	commit, err := object.UnmarshalCommit(data)
	if err != nil {
		return nil, err
	}
	treeData, err := e.readTyped(commit.TreeHash, object.TypeTree)
	if err != nil {
		return nil, err
	}
	return object.UnmarshalTree(treeData)
}

// CommitTree resolves a commit hash to its tree. Objects are immutable
// once written, so this does not serialize with mutating operations and
// is safe to call from a sync callback.
func (e *DotdirEngine) CommitTree(h object.Hash) (*object.Tree, error) {
	data, err := e.readTyped(h, object.TypeCommit)
	if err != nil {
		return nil, err
	}
	commit, err := object.UnmarshalCommit(data)
	if err != nil {
		return nil, err
	}
	treeData, err := e.readTyped(commit.TreeHash, object.TypeTree)
	if err != nil {
		return nil, err
	}
	return object.UnmarshalTree(treeData)
}

// BlobContent returns a blob's raw content. Like CommitTree it reads the
// immutable object space without taking the engine lock.
func (e *DotdirEngine) BlobContent(h object.Hash) ([]byte, error) {
	data, err := e.readTyped(h, object.TypeBlob)
	if err != nil {
		return nil, err
	}
	blob, err := object.UnmarshalBlob(data)
	if err != nil {
		return nil, err
	}
	return blob.Data, nil
}

var _ Engine = (*DotdirEngine)(nil)
