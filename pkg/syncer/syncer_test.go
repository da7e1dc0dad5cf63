package syncer

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/easelhq/framegit/pkg/object"
	"github.com/easelhq/framegit/pkg/store"
	"github.com/easelhq/framegit/pkg/vfs"
)

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "objects.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// commitFiles stores blobs for each path, a flat tree over them, and a
// commit pointing at the tree. Returns the commit hash.
func commitFiles(t *testing.T, db *store.DB, files map[string]string) object.Hash {
	t.Helper()
	tree := &object.Tree{}
	for path, content := range files {
		sha, err := db.WriteBlob(&object.Blob{Data: []byte(content)})
		if err != nil {
			t.Fatalf("write blob %q: %v", path, err)
		}
		tree.Entries = append(tree.Entries, object.TreeEntry{
			Path: path,
			Mode: object.ModeFile,
			Type: object.TypeBlob,
			SHA:  sha,
		})
	}
	treeHash, err := db.WriteTree(tree)
	if err != nil {
		t.Fatalf("write tree: %v", err)
	}
	commitHash, err := db.WriteCommit(&object.Commit{
		TreeHash: treeHash,
		Author:   "tester",
		Message:  "snapshot",
	})
	if err != nil {
		t.Fatalf("write commit: %v", err)
	}
	return commitHash
}

func tree(files map[string]object.Hash) *object.Tree {
	t := &object.Tree{}
	for path, sha := range files {
		t.Entries = append(t.Entries, object.TreeEntry{
			Path: path,
			Mode: object.ModeFile,
			Type: object.TypeBlob,
			SHA:  sha,
		})
	}
	sort.Slice(t.Entries, func(i, j int) bool { return t.Entries[i].Path < t.Entries[j].Path })
	return t
}

func TestClassify_Partition(t *testing.T) {
	h1 := object.HashBytes([]byte("1"))
	h2 := object.HashBytes([]byte("2"))
	h3 := object.HashBytes([]byte("3"))

	source := tree(map[string]object.Hash{"a": h1, "b": h2})
	target := tree(map[string]object.Hash{"b": h2, "c": h3})
	d := Classify(source, target)

	if got := d.Paths(ClassAdded); len(got) != 1 || got[0] != "c" {
		t.Errorf("added = %v, want [c]", got)
	}
	if got := d.Paths(ClassUnchanged); len(got) != 1 || got[0] != "b" {
		t.Errorf("unchanged = %v, want [b]", got)
	}
	if got := d.Paths(ClassModified); len(got) != 0 {
		t.Errorf("modified = %v, want none", got)
	}
	if len(d.Deleted) != 1 || d.Deleted[0] != "a" {
		t.Errorf("deleted = %v, want [a]", d.Deleted)
	}
}

func TestClassify_Modified(t *testing.T) {
	source := tree(map[string]object.Hash{"a": object.HashBytes([]byte("old"))})
	target := tree(map[string]object.Hash{"a": object.HashBytes([]byte("new"))})
	d := Classify(source, target)

	if got := d.Paths(ClassModified); len(got) != 1 || got[0] != "a" {
		t.Errorf("modified = %v, want [a]", got)
	}
	if len(d.Deleted) != 0 {
		t.Errorf("deleted = %v, want none", d.Deleted)
	}
}

func TestClassify_NilTrees(t *testing.T) {
	d := Classify(nil, nil)
	if len(d.Files) != 0 || len(d.Deleted) != 0 {
		t.Errorf("nil trees produced %+v", d)
	}
}

type recordingObserver struct {
	synced []string
	failed []string
}

func (r *recordingObserver) FileSynced(path string, _ Class) { r.synced = append(r.synced, path) }
func (r *recordingObserver) FileFailed(path string, _ error) { r.failed = append(r.failed, path) }

func TestSync_FirstActivation(t *testing.T) {
	db := openTestDB(t)
	dir := t.TempDir()
	eng := New(vfs.NewAdapter(vfs.NewOSHandle(dir)))

	commit := commitFiles(t, db, map[string]string{
		"readme.md":   "hello",
		"src/main.go": "package main",
		"src/util.go": "package main // util",
	})

	res, err := eng.SyncCommit(StoreSource{DB: db}, "", commit)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Written != 3 || res.Removed != 0 || res.Skipped != 0 {
		t.Fatalf("result = %+v, want 3 writes", res)
	}
	data, err := os.ReadFile(filepath.Join(dir, "src", "main.go"))
	if err != nil {
		t.Fatalf("read synced file: %v", err)
	}
	if string(data) != "package main" {
		t.Errorf("content = %q", data)
	}
}

func TestSync_Idempotent(t *testing.T) {
	db := openTestDB(t)
	dir := t.TempDir()
	obs := &recordingObserver{}
	eng := New(vfs.NewAdapter(vfs.NewOSHandle(dir)), WithObserver(obs))

	commit := commitFiles(t, db, map[string]string{"a.txt": "1", "b.txt": "2"})

	if _, err := eng.SyncCommit(StoreSource{DB: db}, "", commit); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	res, err := eng.SyncCommit(StoreSource{DB: db}, commit, commit)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if res.Written != 0 || res.Removed != 0 {
		t.Errorf("re-sync result = %+v, want zero I/O", res)
	}
}

func TestSync_TransitionWritesAndDeletes(t *testing.T) {
	db := openTestDB(t)
	dir := t.TempDir()
	eng := New(vfs.NewAdapter(vfs.NewOSHandle(dir)))

	source := commitFiles(t, db, map[string]string{"a.txt": "1", "b.txt": "2"})
	target := commitFiles(t, db, map[string]string{"b.txt": "2", "c.txt": "3"})

	if _, err := eng.SyncCommit(StoreSource{DB: db}, "", source); err != nil {
		t.Fatalf("activate: %v", err)
	}
	res, err := eng.SyncCommit(StoreSource{DB: db}, source, target)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if res.Written != 1 || res.Removed != 1 {
		t.Fatalf("result = %+v, want 1 write 1 delete", res)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.txt")); !os.IsNotExist(err) {
		t.Error("a.txt should be removed")
	}
	if data, _ := os.ReadFile(filepath.Join(dir, "c.txt")); string(data) != "3" {
		t.Errorf("c.txt = %q", data)
	}
}

func TestSync_IgnoredPathsNeverTouched(t *testing.T) {
	db := openTestDB(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("*.log\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	obs := &recordingObserver{}
	eng := New(vfs.NewAdapter(vfs.NewOSHandle(dir)), WithObserver(obs))

	commit := commitFiles(t, db, map[string]string{
		"keep.txt":  "keep",
		"debug.log": "noise",
	})
	res, err := eng.SyncCommit(StoreSource{DB: db}, "", commit)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Written != 1 {
		t.Fatalf("result = %+v, want exactly one write", res)
	}
	if _, err := os.Stat(filepath.Join(dir, "debug.log")); !os.IsNotExist(err) {
		t.Error("ignored file must not be written")
	}
	for _, path := range obs.synced {
		if path == "debug.log" {
			t.Error("observer saw ignored path")
		}
	}

	// An ignored on-disk file must also survive a deletion pass.
	if err := os.WriteFile(filepath.Join(dir, "local.log"), []byte("local"), 0o644); err != nil {
		t.Fatal(err)
	}
	source := commitFiles(t, db, map[string]string{"keep.txt": "keep", "local.log": "local"})
	target := commitFiles(t, db, map[string]string{"keep.txt": "keep"})
	if _, err := eng.SyncCommit(StoreSource{DB: db}, source, target); err != nil {
		t.Fatalf("deletion pass: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "local.log")); err != nil {
		t.Error("ignored file must not be deleted")
	}
}

func TestSync_MissingBlobSkipped(t *testing.T) {
	db := openTestDB(t)
	dir := t.TempDir()
	obs := &recordingObserver{}
	eng := New(vfs.NewAdapter(vfs.NewOSHandle(dir)), WithObserver(obs))

	good, err := db.WriteBlob(&object.Blob{Data: []byte("ok")})
	if err != nil {
		t.Fatal(err)
	}
	missing := object.HashBytes([]byte("never stored"))
	treeHash, err := db.WriteTree(tree(map[string]object.Hash{
		"ok.txt":   good,
		"gone.txt": missing,
	}))
	if err != nil {
		t.Fatal(err)
	}
	commit, err := db.WriteCommit(&object.Commit{TreeHash: treeHash, Author: "tester", Message: "partial"})
	if err != nil {
		t.Fatal(err)
	}

	res, err := eng.SyncCommit(StoreSource{DB: db}, "", commit)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Written != 1 || res.Skipped != 1 {
		t.Fatalf("result = %+v, want 1 written 1 skipped", res)
	}
	if len(obs.failed) != 1 || obs.failed[0] != "gone.txt" {
		t.Errorf("failed = %v, want [gone.txt]", obs.failed)
	}
}
