// Package index implements the binary staging-index format of spec §6.4
// and §4.5: the DIRC header, per-entry stat/mode/hash/flags/name fields
// padded to 8-byte alignment, the TREE and REUC extensions, and a
// trailing SHA over everything preceding.
//
// Grounded on go-git's plumbing/format/index package (index.go,
// decoder.go, encoder.go): same entry shape and extension framing,
// trimmed to the two extensions spec §6.4 names as "recognized" (TREE,
// REUC) and to versions 2/3 (the spec's named range — go-git's v4
// name-compression scheme is out of scope here).
package index

import (
	"path/filepath"
	"time"

	"github.com/vcsforge/gitcore/modules/plumbing"
	"github.com/vcsforge/gitcore/modules/plumbing/filemode"
)

// Stage distinguishes the merge-conflict slot an entry occupies.
type Stage int

const (
	Merged       Stage = 0
	AncestorMode Stage = 1
	OurMode      Stage = 2
	TheirMode    Stage = 3
)

// Index is the in-memory form of the staging manifest (spec §3's
// "Index").
type Index struct {
	Version     uint32
	Entries     []*Entry
	Cache       *Tree
	ResolveUndo *ResolveUndo
}

// Entry is a single staged path at a given Stage.
type Entry struct {
	Hash         plumbing.Hash
	Name         string
	CreatedAt    time.Time
	ModifiedAt   time.Time
	Dev, Inode   uint32
	Mode         filemode.FileMode
	UID, GID     uint32
	Size         uint32
	Stage        Stage
	Valid        bool
	SkipWorktree bool
	IntentToAdd  bool

	// Uptodate marks an entry that Manager.Refresh has already validated
	// against the working tree this session; it is not part of the
	// on-disk encoding.
	Uptodate bool
}

// Add appends and returns a new zero-value entry for path.
func (i *Index) Add(path string) *Entry {
	e := &Entry{Name: filepath.ToSlash(path)}
	i.Entries = append(i.Entries, e)
	return e
}

// Entry returns the stage-0 entry at path, if any.
func (i *Index) Entry(path string) (*Entry, error) {
	path = filepath.ToSlash(path)
	for _, e := range i.Entries {
		if e.Name == path && e.Stage == Merged {
			return e, nil
		}
	}
	return nil, ErrEntryNotFound
}

// Remove deletes the stage-0 entry at path and returns it.
func (i *Index) Remove(path string) (*Entry, error) {
	path = filepath.ToSlash(path)
	for idx, e := range i.Entries {
		if e.Name == path && e.Stage == Merged {
			i.Entries = append(i.Entries[:idx], i.Entries[idx+1:]...)
			return e, nil
		}
	}
	return nil, ErrEntryNotFound
}

// Glob returns every entry whose name matches pattern (filepath.Match
// syntax applied per path segment via filepath.Glob's matcher).
func (i *Index) Glob(pattern string) ([]*Entry, error) {
	pattern = filepath.ToSlash(pattern)
	var matches []*Entry
	for _, e := range i.Entries {
		ok, err := filepath.Match(pattern, e.Name)
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, e)
		}
	}
	return matches, nil
}

// Tree is the 'TREE' cache-tree extension: precomputed subtree digests
// that let commit-tree generation skip already-known spans of the index.
type Tree struct {
	Entries []TreeEntry
}

// TreeEntry is one cached span of the index, rooted at Path.
type TreeEntry struct {
	Path    string
	Entries int
	Trees   int
	Hash    plumbing.Hash
}

// Invalidate marks path's cached span (and all of its ancestors) as
// stale by setting Entries to -1, mirroring git's cache-tree
// invalidation rule: any write under a subtree invalidates every
// enclosing tree's cached digest.
func (t *Tree) Invalidate(path string) {
	path = filepath.ToSlash(path)
	for idx := range t.Entries {
		e := &t.Entries[idx]
		if e.Path == "" || path == e.Path || hasPathPrefix(path, e.Path) {
			e.Entries = -1
		}
	}
}

func hasPathPrefix(path, prefix string) bool {
	if prefix == "" {
		return true
	}
	return len(path) > len(prefix) && path[:len(prefix)] == prefix && path[len(prefix)] == '/'
}

// ResolveUndo is the 'REUC' extension: the higher-stage entries most
// recently removed by resolving a conflict, kept so the resolution can
// be undone.
type ResolveUndo struct {
	Entries []ResolveUndoEntry
}

// ResolveUndoEntry records the pre-resolution digests for one path.
type ResolveUndoEntry struct {
	Path   string
	Stages map[Stage]plumbing.Hash
}
