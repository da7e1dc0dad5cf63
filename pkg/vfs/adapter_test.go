package vfs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/easelhq/framegit/pkg/errs"
)

func newTestAdapter(t *testing.T) (*Adapter, *OSHandle, string) {
	t.Helper()
	dir := t.TempDir()
	h := NewOSHandle(dir)
	return NewAdapter(h), h, dir
}

func TestWriteRead_AutoVivify(t *testing.T) {
	a, _, dir := newTestAdapter(t)

	if err := a.WriteFile("/deep/nested/file.txt", []byte("hi")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := a.ReadFile("deep/nested/file.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "hi" {
		t.Errorf("content = %q, want %q", got, "hi")
	}
	// Leading slash was stripped: the file lives under the sandbox root.
	if _, err := os.Stat(filepath.Join(dir, "deep", "nested", "file.txt")); err != nil {
		t.Errorf("file not under root: %v", err)
	}
}

func TestReadFile_MissingIsNotFound(t *testing.T) {
	a, _, _ := newTestAdapter(t)

	_, err := a.ReadFile("nope.txt")
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestIgnoredPath_ReportedAsNotFound(t *testing.T) {
	a, _, dir := newTestAdapter(t)

	// The file exists on disk but matches a hardcoded exclude.
	if err := os.MkdirAll(filepath.Join(dir, "node_modules"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "node_modules", "x.js"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := a.ReadFile("node_modules/x.js")
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("ignored read err = %v, want ErrNotFound", err)
	}
	if a.Exists("node_modules/x.js") {
		t.Error("ignored path reported as existing")
	}
}

func TestGitignore_LoadedOnceFromHandle(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("*.secret\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	a := NewAdapter(NewOSHandle(dir))

	if err := os.WriteFile(filepath.Join(dir, "token.secret"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := a.ReadFile("token.secret"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	// Rewriting .gitignore after first load has no effect: rules are memoized.
	if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := a.ReadFile("token.secret"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("memoized rules not applied: %v", err)
	}
}

func TestObjectPath_EmptyBufferAndEagerPrefixes(t *testing.T) {
	a, _, dir := newTestAdapter(t)

	// Reading a not-yet-written object path probes as empty, not an error.
	data, err := a.ReadFile(MetaDir + "/objects/ab/cdef")
	if err != nil {
		t.Fatalf("object probe read: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("probe returned %d bytes, want 0", len(data))
	}

	// A write needs no mkdir: the prefix space is created eagerly.
	if err := a.WriteFile(MetaDir+"/objects/ab/cdef", []byte("obj")); err != nil {
		t.Fatalf("object write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, MetaDir, "objects", "ff")); err != nil {
		t.Errorf("prefix dir ff missing: %v", err)
	}

	got, err := a.ReadFile(MetaDir + "/objects/ab/cdef")
	if err != nil || string(got) != "obj" {
		t.Fatalf("object readback = %q, %v", got, err)
	}
}

func TestObjectSpace_CreationRetriesAfterFailure(t *testing.T) {
	a, _, dir := newTestAdapter(t)

	// A plain file where the metadata directory belongs makes creation fail.
	if err := os.WriteFile(filepath.Join(dir, MetaDir), []byte("in the way"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := a.WriteFile(MetaDir+"/objects/ab/cdef", []byte("obj")); err == nil {
		t.Fatal("object write succeeded with metadata path blocked")
	}

	// Once the obstruction is gone, the same adapter recovers: the failed
	// attempt is not latched.
	if err := os.Remove(filepath.Join(dir, MetaDir)); err != nil {
		t.Fatal(err)
	}
	if err := a.WriteFile(MetaDir+"/objects/ab/cdef", []byte("obj")); err != nil {
		t.Fatalf("object write after unblocking: %v", err)
	}
	got, err := a.ReadFile(MetaDir + "/objects/ab/cdef")
	if err != nil || string(got) != "obj" {
		t.Fatalf("object readback = %q, %v", got, err)
	}
}

func TestStat_FileFirstThenDirectory(t *testing.T) {
	a, _, _ := newTestAdapter(t)

	if err := a.WriteFile("docs/readme.md", []byte("r")); err != nil {
		t.Fatal(err)
	}

	fi, err := a.Stat("docs/readme.md")
	if err != nil || fi.IsDir {
		t.Fatalf("file stat = %+v, %v", fi, err)
	}
	di, err := a.Stat("docs")
	if err != nil || !di.IsDir {
		t.Fatalf("dir stat = %+v, %v", di, err)
	}
}

func TestReadDir_FiltersIgnored(t *testing.T) {
	a, _, dir := newTestAdapter(t)

	if err := a.WriteFile("a.txt", []byte("a")); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}

	entries, err := a.ReadDir("")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if e.Name == ".git" {
			t.Error("ReadDir leaked ignored entry .git")
		}
	}
}

func TestRename_ReadWriteDelete(t *testing.T) {
	a, _, _ := newTestAdapter(t)

	if err := a.WriteFile("old.txt", []byte("data")); err != nil {
		t.Fatal(err)
	}
	if err := a.Rename("old.txt", "sub/new.txt"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if a.Exists("old.txt") {
		t.Error("old path still present after rename")
	}
	got, err := a.ReadFile("sub/new.txt")
	if err != nil || string(got) != "data" {
		t.Fatalf("new path = %q, %v", got, err)
	}
}

func TestPermissionRevocation(t *testing.T) {
	a, h, _ := newTestAdapter(t)

	if err := a.WriteFile("f.txt", []byte("x")); err != nil {
		t.Fatal(err)
	}

	h.Revoke()
	if _, err := a.ReadFile("f.txt"); !errors.Is(err, errs.ErrPermissionDenied) {
		t.Fatalf("read after revoke = %v, want ErrPermissionDenied", err)
	}
	if err := a.WriteFile("g.txt", []byte("y")); !errors.Is(err, errs.ErrPermissionDenied) {
		t.Fatalf("write after revoke = %v, want ErrPermissionDenied", err)
	}

	// Permission is re-checked per operation, so restoring it recovers.
	h.Grant()
	if _, err := a.ReadFile("f.txt"); err != nil {
		t.Fatalf("read after re-grant: %v", err)
	}
}

func TestUnlinkRmdir(t *testing.T) {
	a, _, _ := newTestAdapter(t)

	if err := a.WriteFile("d/f.txt", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := a.Unlink("d/f.txt"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if err := a.Rmdir("d"); err != nil {
		t.Fatalf("Rmdir: %v", err)
	}
	if a.Exists("d") {
		t.Error("directory still present after Rmdir")
	}
}

func TestPathEscape_Denied(t *testing.T) {
	a, _, _ := newTestAdapter(t)

	if _, err := a.ReadFile("../outside.txt"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("escape read = %v, want ErrNotFound", err)
	}
}
