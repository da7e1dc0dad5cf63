package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/easelhq/framegit/pkg/errs"
	"github.com/easelhq/framegit/pkg/object"
	"github.com/easelhq/framegit/pkg/repo"
	"github.com/easelhq/framegit/pkg/store"
	"github.com/easelhq/framegit/pkg/syncer"
	"github.com/easelhq/framegit/pkg/vfs"
)

var (
	flagDir      string
	flagStrategy string
)

const syncStateKey = "sync/last"

// workspace bundles everything a command needs: the object database,
// the filesystem adapter over the working directory, the repository
// engine, and a blob source for diff output.
type workspace struct {
	dir string
	db  *store.DB
	fs  *vfs.Adapter
	eng repo.Engine
	src syncer.Source
}

func openWorkspace() (*workspace, error) {
	dir, err := filepath.Abs(flagDir)
	if err != nil {
		return nil, fmt.Errorf("resolve directory: %w", err)
	}
	metaDir := filepath.Join(dir, vfs.MetaDir)
	if err := os.MkdirAll(metaDir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", metaDir, err)
	}

	db, err := store.Open(filepath.Join(metaDir, "framegit.db"))
	if err != nil {
		return nil, err
	}
	fs := vfs.NewAdapter(vfs.NewOSHandle(dir))

	// Record the granted directory root so state and capability
	// rehydrate together on the next open.
	if err := db.SetKV("handle/root", []byte(dir)); err != nil {
		db.Close()
		return nil, err
	}

	ws := &workspace{dir: dir, db: db, fs: fs}
	syncFn := ws.syncFunc()

	switch flagStrategy {
	case "dotdir":
		eng := repo.NewDotdir(fs, db, repo.WithDotdirSync(syncFn))
		ws.eng = eng
		ws.src = dotdirSource{eng: eng}
	case "minimal", "":
		ws.eng = repo.NewMinimal(db, repo.WithSync(syncFn))
		ws.src = syncer.StoreSource{DB: db}
	default:
		db.Close()
		return nil, fmt.Errorf("unknown strategy %q: %w", flagStrategy, errs.ErrMisconfigured)
	}
	return ws, nil
}

func (w *workspace) Close() error {
	return w.db.Close()
}

// syncFunc reconciles the working directory on checkout, diffing from
// the outgoing branch tip to the target commit. The synced commit is
// tracked in the KV store so `framegit sync` can self-heal an
// interrupted pass later.
func (w *workspace) syncFunc() repo.SyncFunc {
	eng := syncer.New(w.fs)
	return func(source, target object.Hash) error {
		if _, err := eng.SyncCommit(w.src, source, target); err != nil {
			return err
		}
		return w.db.SetKV(syncStateKey, []byte(target))
	}
}

// lastSynced returns the commit the working directory was last synced
// to, or "" when no sync has happened yet.
func lastSynced(w *workspace) object.Hash {
	raw, err := w.db.GetKV(syncStateKey)
	if err != nil {
		return ""
	}
	return object.Hash(raw)
}

// dotdirSource reads trees and blobs out of the on-disk object space.
type dotdirSource struct {
	eng *repo.DotdirEngine
}

func (s dotdirSource) Tree(commit object.Hash) (*object.Tree, error) {
	return s.eng.CommitTree(commit)
}

func (s dotdirSource) Blob(sha object.Hash) ([]byte, error) {
	return s.eng.BlobContent(sha)
}
