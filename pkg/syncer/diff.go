// Package syncer computes minimal file-level deltas between two branch
// trees and reconciles a sandboxed directory with the target tree.
package syncer

import (
	"sort"

	"github.com/easelhq/framegit/pkg/object"
)

// Class classifies one path in a branch diff.
type Class string

const (
	ClassAdded     Class = "added"
	ClassModified  Class = "modified"
	ClassUnchanged Class = "unchanged"
	ClassDeleted   Class = "deleted"
)

// Change is one classified target-tree entry.
type Change struct {
	Path   string
	SHA    object.Hash
	Status Class
}

// Diff is the classified delta from a source tree to a target tree.
// Files holds every target path (added, modified, or unchanged);
// Deleted holds source paths absent from the target.
type Diff struct {
	Files   []Change
	Deleted []string
}

// Paths returns the target paths with the given classification, sorted.
func (d *Diff) Paths(status Class) []string {
	var out []string
	for _, c := range d.Files {
		if c.Status == status {
			out = append(out, c.Path)
		}
	}
	sort.Strings(out)
	return out
}

// Classify partitions paths(source) ∪ paths(target):
// a target path absent from the source is added, present with a
// different content hash is modified, present with an equal hash is
// unchanged; source paths never matched by a target entry are deleted.
func Classify(source, target *object.Tree) *Diff {
	remaining := make(map[string]object.Hash)
	if source != nil {
		for _, e := range source.Entries {
			remaining[e.Path] = e.SHA
		}
	}

	d := &Diff{}
	if target != nil {
		for _, e := range target.Entries {
			sha, ok := remaining[e.Path]
			switch {
			case !ok:
				d.Files = append(d.Files, Change{Path: e.Path, SHA: e.SHA, Status: ClassAdded})
			case sha != e.SHA:
				d.Files = append(d.Files, Change{Path: e.Path, SHA: e.SHA, Status: ClassModified})
			default:
				d.Files = append(d.Files, Change{Path: e.Path, SHA: e.SHA, Status: ClassUnchanged})
			}
			// Consume the path so the leftover map is exactly the deletions.
			delete(remaining, e.Path)
		}
	}

	for path := range remaining {
		d.Deleted = append(d.Deleted, path)
	}
	sort.Strings(d.Deleted)
	sort.Slice(d.Files, func(i, j int) bool { return d.Files[i].Path < d.Files[j].Path })
	return d
}
