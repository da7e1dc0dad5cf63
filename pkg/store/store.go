// Package store persists content-addressed objects, repository state, and
// the operation history in a single SQLite database. The object table is
// append-only: objects are immutable once written and never deleted.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/easelhq/framegit/pkg/errs"
	"github.com/easelhq/framegit/pkg/object"
)

// DB is a content-addressed object database with a secondary index on
// object type, plus a key-value table and an append-only history log.
type DB struct {
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Record is one stored object.
type Record struct {
	Hash object.Hash
	Type object.Type
	Size int64
	Data []byte
}

const schema = `
CREATE TABLE IF NOT EXISTS objects (
	hash TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	size INTEGER NOT NULL,
	data BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_objects_type ON objects(type);

CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS history (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	details TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_timestamp ON history(timestamp);
`

// Open opens (creating if necessary) the database at path. Use ":memory:"
// for an ephemeral store.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store %q: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open store %q: ping: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("open store %q: schema: %w", path, err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open store: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, fmt.Errorf("open store: zstd decoder: %w", err)
	}
	return &DB{db: db, enc: enc, dec: dec}, nil
}

// Close releases the underlying database handle.
func (s *DB) Close() error {
	s.enc.Close()
	s.dec.Close()
	return s.db.Close()
}

// Put stores an object under its content hash. The write is an idempotent
// upsert: storing the same hash twice is a no-op. Object payloads are
// zstd-compressed at rest.
func (s *DB) Put(h object.Hash, objType object.Type, data []byte) error {
	if err := object.ValidateHash(h); err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	compressed := s.enc.EncodeAll(data, nil)
	_, err := s.db.Exec(
		`INSERT INTO objects (hash, type, size, data) VALUES (?, ?, ?, ?)
		 ON CONFLICT(hash) DO NOTHING`,
		string(h), string(objType), len(data), compressed,
	)
	if err != nil {
		return fmt.Errorf("put object %s: %w", h, err)
	}
	return nil
}

// Get retrieves an object by hash. A missing hash reports errs.ErrNotFound.
func (s *DB) Get(h object.Hash) (object.Type, []byte, error) {
	var typ string
	var size int64
	var compressed []byte
	err := s.db.QueryRow(
		`SELECT type, size, data FROM objects WHERE hash = ?`, string(h),
	).Scan(&typ, &size, &compressed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, fmt.Errorf("object %s: %w", h, errs.ErrNotFound)
	}
	if err != nil {
		return "", nil, fmt.Errorf("get object %s: %w", h, err)
	}
	data, err := s.dec.DecodeAll(compressed, nil)
	if err != nil {
		return "", nil, fmt.Errorf("get object %s: decompress: %w", h, err)
	}
	if int64(len(data)) != size {
		return "", nil, fmt.Errorf("get object %s: size mismatch (stored=%d, actual=%d)", h, size, len(data))
	}
	return object.Type(typ), data, nil
}

// Has reports whether the store contains an object with the given hash.
func (s *DB) Has(h object.Hash) bool {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM objects WHERE hash = ?`, string(h)).Scan(&one)
	return err == nil
}

// GetByType scans the secondary type index and returns all objects of the
// given type. Payloads are decompressed.
func (s *DB) GetByType(objType object.Type) ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT hash, size, data FROM objects WHERE type = ? ORDER BY hash`, string(objType),
	)
	if err != nil {
		return nil, fmt.Errorf("get objects by type %q: %w", objType, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var compressed []byte
		if err := rows.Scan((*string)(&rec.Hash), &rec.Size, &compressed); err != nil {
			return nil, fmt.Errorf("get objects by type %q: scan: %w", objType, err)
		}
		rec.Type = objType
		if rec.Data, err = s.dec.DecodeAll(compressed, nil); err != nil {
			return nil, fmt.Errorf("get objects by type %q: decompress %s: %w", objType, rec.Hash, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get objects by type %q: %w", objType, err)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Typed convenience methods
// ---------------------------------------------------------------------------

// WriteBlob serializes and stores a Blob, returning its content hash.
func (s *DB) WriteBlob(b *object.Blob) (object.Hash, error) {
	data := object.MarshalBlob(b)
	h := object.HashObject(object.TypeBlob, data)
	return h, s.Put(h, object.TypeBlob, data)
}

// ReadBlob reads and deserializes a Blob.
func (s *DB) ReadBlob(h object.Hash) (*object.Blob, error) {
	data, err := s.readTyped(h, object.TypeBlob)
	if err != nil {
		return nil, err
	}
	return object.UnmarshalBlob(data)
}

// WriteTree serializes and stores a Tree, returning its content hash.
func (s *DB) WriteTree(t *object.Tree) (object.Hash, error) {
	data := object.MarshalTree(t)
	h := object.HashObject(object.TypeTree, data)
	return h, s.Put(h, object.TypeTree, data)
}

// ReadTree reads and deserializes a Tree.
func (s *DB) ReadTree(h object.Hash) (*object.Tree, error) {
	data, err := s.readTyped(h, object.TypeTree)
	if err != nil {
		return nil, err
	}
	return object.UnmarshalTree(data)
}

// WriteCommit serializes and stores a Commit, returning its content hash.
func (s *DB) WriteCommit(c *object.Commit) (object.Hash, error) {
	data := object.MarshalCommit(c)
	h := object.HashObject(object.TypeCommit, data)
	return h, s.Put(h, object.TypeCommit, data)
}

// ReadCommit reads and deserializes a Commit.
func (s *DB) ReadCommit(h object.Hash) (*object.Commit, error) {
	data, err := s.readTyped(h, object.TypeCommit)
	if err != nil {
		return nil, err
	}
	return object.UnmarshalCommit(data)
}

// WriteRef serializes and stores a Ref, returning its content hash.
func (s *DB) WriteRef(r *object.Ref) (object.Hash, error) {
	data := object.MarshalRef(r)
	h := object.HashObject(object.TypeRef, data)
	return h, s.Put(h, object.TypeRef, data)
}

// ReadRef reads and deserializes a Ref.
func (s *DB) ReadRef(h object.Hash) (*object.Ref, error) {
	data, err := s.readTyped(h, object.TypeRef)
	if err != nil {
		return nil, err
	}
	return object.UnmarshalRef(data)
}

func (s *DB) readTyped(h object.Hash, want object.Type) ([]byte, error) {
	objType, data, err := s.Get(h)
	if err != nil {
		return nil, err
	}
	if objType != want {
		return nil, fmt.Errorf("object %s: type mismatch: got %q, want %q", h, objType, want)
	}
	return data, nil
}
