package object

// Hash is a 64-character hex-encoded SHA-256 digest.
type Hash string

// Type identifies the kind of object stored.
type Type string

const (
	TypeBlob   Type = "blob"
	TypeTree   Type = "tree"
	TypeCommit Type = "commit"
	TypeRef    Type = "ref"
)

const (
	// Tree mode constants compatible with Git's canonical mode strings.
	ModeFile       = "100644"
	ModeExecutable = "100755"
	ModeDir        = "40000"
)

// Blob holds raw file data.
type Blob struct {
	Data []byte
}

// TreeEntry is one entry in a tree object. Trees are flat: Path is the
// full repository-relative path of a file, not a single name segment.
type TreeEntry struct {
	Path string
	Mode string
	Type Type
	SHA  Hash
}

// Tree holds entries sorted by Path. Paths are unique within a tree.
type Tree struct {
	Entries []TreeEntry
}

// Commit points at a tree with authorship metadata.
type Commit struct {
	TreeHash           Hash
	Parents            []Hash
	Author             string
	Timestamp          int64
	Committer          string
	CommitterTimestamp int64
	Message            string
}

// Ref is a stored pointer to a commit hash.
type Ref struct {
	Target Hash
}

// Lookup returns the entry for path, if present.
func (t *Tree) Lookup(path string) (TreeEntry, bool) {
	for _, e := range t.Entries {
		if e.Path == path {
			return e, true
		}
	}
	return TreeEntry{}, false
}
