package object

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Blob
// ---------------------------------------------------------------------------

// MarshalBlob serializes a Blob to raw bytes (identity).
func MarshalBlob(b *Blob) []byte {
	out := make([]byte, len(b.Data))
	copy(out, b.Data)
	return out
}

// UnmarshalBlob deserializes raw bytes into a Blob.
func UnmarshalBlob(data []byte) (*Blob, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return &Blob{Data: out}, nil
}

// ---------------------------------------------------------------------------
// Tree
// ---------------------------------------------------------------------------

// MarshalTree serializes a Tree to a deterministic line format:
//
//	mode type sha\tpath
//
// Entries are sorted by path before serialization so structurally equal
// trees always marshal to identical bytes.
func MarshalTree(t *Tree) []byte {
	entries := make([]TreeEntry, len(t.Entries))
	copy(entries, t.Entries)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	var buf bytes.Buffer
	for _, e := range entries {
		mode := e.Mode
		if mode == "" {
			mode = ModeFile
		}
		typ := e.Type
		if typ == "" {
			typ = TypeBlob
		}
		fmt.Fprintf(&buf, "%s %s %s\t%s\n", mode, typ, e.SHA, e.Path)
	}
	return buf.Bytes()
}

// UnmarshalTree parses a Tree from its serialized form.
func UnmarshalTree(data []byte) (*Tree, error) {
	t := &Tree{}
	if len(data) == 0 {
		return t, nil
	}
	seen := make(map[string]bool)
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		head, path, ok := strings.Cut(line, "\t")
		if !ok {
			return nil, fmt.Errorf("unmarshal tree: malformed entry %q", line)
		}
		fields := strings.Fields(head)
		if len(fields) != 3 {
			return nil, fmt.Errorf("unmarshal tree: malformed entry header %q", head)
		}
		if seen[path] {
			return nil, fmt.Errorf("unmarshal tree: duplicate path %q", path)
		}
		seen[path] = true
		t.Entries = append(t.Entries, TreeEntry{
			Path: path,
			Mode: fields[0],
			Type: Type(fields[1]),
			SHA:  Hash(fields[2]),
		})
	}
	return t, nil
}

// ---------------------------------------------------------------------------
// Commit
// ---------------------------------------------------------------------------

// MarshalCommit serializes a Commit to a deterministic text format:
//
//	tree <hash>
//	parent <hash>        (zero or more)
//	author <name> <ts>
//	committer <name> <ts>
//
//	<message>
func MarshalCommit(c *Commit) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", c.TreeHash)
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", p)
	}
	fmt.Fprintf(&buf, "author %s %d\n", c.Author, c.Timestamp)
	committer := c.Committer
	if committer == "" {
		committer = c.Author
	}
	committerTS := c.CommitterTimestamp
	if committerTS == 0 {
		committerTS = c.Timestamp
	}
	fmt.Fprintf(&buf, "committer %s %d\n", committer, committerTS)
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}

// UnmarshalCommit parses a Commit from its serialized form.
func UnmarshalCommit(data []byte) (*Commit, error) {
	idx := bytes.Index(data, []byte("\n\n"))
	if idx < 0 {
		return nil, fmt.Errorf("unmarshal commit: missing header/message separator")
	}
	header := string(data[:idx])
	c := &Commit{Message: string(data[idx+2:])}

	for _, line := range strings.Split(header, "\n") {
		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("unmarshal commit: malformed header line %q", line)
		}
		switch key {
		case "tree":
			c.TreeHash = Hash(val)
		case "parent":
			c.Parents = append(c.Parents, Hash(val))
		case "author", "committer":
			name, ts, err := splitIdentity(val)
			if err != nil {
				return nil, fmt.Errorf("unmarshal commit: %s: %w", key, err)
			}
			if key == "author" {
				c.Author, c.Timestamp = name, ts
			} else {
				c.Committer, c.CommitterTimestamp = name, ts
			}
		default:
			return nil, fmt.Errorf("unmarshal commit: unknown header key %q", key)
		}
	}
	if c.TreeHash == "" {
		return nil, fmt.Errorf("unmarshal commit: missing tree header")
	}
	return c, nil
}

// splitIdentity splits "<name> <unix-ts>" where name may contain spaces.
func splitIdentity(s string) (string, int64, error) {
	sp := strings.LastIndexByte(s, ' ')
	if sp < 0 {
		return "", 0, fmt.Errorf("malformed identity %q", s)
	}
	ts, err := strconv.ParseInt(s[sp+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed timestamp in %q: %w", s, err)
	}
	return s[:sp], ts, nil
}

// ---------------------------------------------------------------------------
// Ref
// ---------------------------------------------------------------------------

// MarshalRef serializes a Ref as "target <hash>\n".
func MarshalRef(r *Ref) []byte {
	return []byte(fmt.Sprintf("target %s\n", r.Target))
}

// UnmarshalRef parses a Ref from its serialized form.
func UnmarshalRef(data []byte) (*Ref, error) {
	line := strings.TrimRight(string(data), "\n")
	target, ok := strings.CutPrefix(line, "target ")
	if !ok {
		return nil, fmt.Errorf("unmarshal ref: malformed payload %q", line)
	}
	return &Ref{Target: Hash(strings.TrimSpace(target))}, nil
}
