package object

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/vcsforge/gitcore/modules/plumbing"
	"github.com/vcsforge/gitcore/modules/plumbing/filemode"
	"github.com/vcsforge/gitcore/modules/plumbing/format/objfile"
)

// ErrMaxTreeDepth bounds recursive tree descent (Tree.File's directory walk), mirroring
// the teacher's own maxTreeDepth guard against cyclic or pathologically deep
// trees.
var ErrMaxTreeDepth = errors.New("object: maximum tree depth exceeded")

const maxTreeDepth = 1024

// ErrEntryNotFound is returned when a path component cannot be found
// while resolving a Tree path.
type ErrEntryNotFound struct{ entry string }

func (e *ErrEntryNotFound) Error() string { return fmt.Sprintf("object: entry '%s' not found", e.entry) }

func IsErrEntryNotFound(err error) bool {
	var e *ErrEntryNotFound
	return errors.As(err, &e)
}

// TreeEntry is one (mode, name, digest) tuple of a Tree (§3). Unlike the
// teacher's TreeEntry, there is no inline Payload field: plain trees hold
// no content, only references, per spec §3/§6.
type TreeEntry struct {
	Name string
	Mode filemode.FileMode
	Hash plumbing.Hash
}

// Equal returns whether two entries are identical in name, mode and hash.
func (e *TreeEntry) Equal(other *TreeEntry) bool {
	if (e == nil) != (other == nil) {
		return false
	}
	if e == nil {
		return true
	}
	return e.Name == other.Name && e.Mode == other.Mode && e.Hash == other.Hash
}

// IsDir, IsLink, IsRegular, IsSubmodule classify an entry by its mode.
func (e *TreeEntry) IsDir() bool       { return e.Mode.IsDir() }
func (e *TreeEntry) IsLink() bool      { return e.Mode.IsSymlink() }
func (e *TreeEntry) IsRegular() bool   { return e.Mode.IsRegular() }
func (e *TreeEntry) IsSubmodule() bool { return e.Mode.IsSubmodule() }

// Type derives the object type an entry points at.
func (e *TreeEntry) Type() objfile.ObjectType {
	switch {
	case e.IsDir():
		return objfile.TreeObject
	case e.IsSubmodule():
		return objfile.CommitObject
	default:
		return objfile.BlobObject
	}
}

// Renamed reports whether other is a pure rename of e: same mode and
// content, different name is implied by the caller already having
// matched on hash.
func (e *TreeEntry) Renamed(other *TreeEntry) bool {
	return e.Mode == other.Mode && e.Hash == other.Hash
}

// Chmod reports whether other differs from e only by mode.
func (e *TreeEntry) Chmod(other *TreeEntry) bool {
	return e.Mode != other.Mode && e.Hash == other.Hash && e.Name == other.Name
}

// SubtreeOrder sorts entries by git's canonical tree-entry order (§3):
// directories compare as if their name carried a trailing "/", so that
// "a" sorts before "a.c" but "a/" sorts after "a.c". Ported from the
// teacher's object.SubtreeOrder (modules/zeta/object/tree.go), which in
// turn mirrors git's own fsck.c ordering check.
type SubtreeOrder []*TreeEntry

func (s SubtreeOrder) Len() int      { return len(s) }
func (s SubtreeOrder) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
func (s SubtreeOrder) Less(i, j int) bool {
	return s.Name(i) < s.Name(j)
}

// Name returns the comparison key for the entry at i: its name suffixed
// with "/" for subtrees, or "\x00" otherwise. This makes "a" sort before
// "a.c" (since a bare name is shorter) while "a/" sorts after "a.c"
// (since '/' > '.' in byte order), matching git's canonical tree order.
func (s SubtreeOrder) Name(i int) string {
	if i < 0 || i >= len(s) {
		return ""
	}
	e := s[i]
	if e.IsDir() {
		return e.Name + "/"
	}
	return e.Name + "\x00"
}

// Tree is an ordered sequence of (mode, name, digest) entries (§3).
type Tree struct {
	Hash    plumbing.Hash
	Entries []*TreeEntry

	b Backend
	m map[string]*TreeEntry // lazy name -> entry index
}

func (t *Tree) Type() objfile.ObjectType { return objfile.TreeObject }
func (t *Tree) ID() plumbing.Hash        { return t.Hash }

func (t *Tree) buildMap() {
	if t.m != nil {
		return
	}
	t.m = make(map[string]*TreeEntry, len(t.Entries))
	for _, e := range t.Entries {
		t.m[e.Name] = e
	}
}

// Entry returns the direct child entry named name, or ErrEntryNotFound.
func (t *Tree) Entry(name string) (*TreeEntry, error) {
	t.buildMap()
	if e, ok := t.m[name]; ok {
		return e, nil
	}
	return nil, &ErrEntryNotFound{entry: name}
}

// Append inserts or replaces the entry named other.Name, grounded on the
// teacher's Tree.Append (modules/zeta/object/tree.go).
func (t *Tree) Append(other *TreeEntry) {
	for i, e := range t.Entries {
		if e.Name == other.Name {
			t.Entries[i] = other
			t.m = nil
			return
		}
	}
	t.Entries = append(t.Entries, other)
	t.m = nil
}

// Merge replaces or appends entries by name and returns a new, re-sorted
// Tree, leaving the receiver untouched. Ported from the teacher's
// Tree.Merge.
func (t *Tree) Merge(others ...*TreeEntry) *Tree {
	unseen := make(map[string]*TreeEntry, len(others))
	for _, o := range others {
		unseen[o.Name] = o
	}

	entries := make([]*TreeEntry, 0, len(t.Entries))
	for _, e := range t.Entries {
		if o, ok := unseen[e.Name]; ok {
			entries = append(entries, o)
			delete(unseen, e.Name)
		} else {
			cp := *e
			entries = append(entries, &cp)
		}
	}
	for _, o := range unseen {
		entries = append(entries, o)
	}
	sort.Sort(SubtreeOrder(entries))
	return &Tree{Entries: entries, b: t.b}
}

// Equal compares two trees entry-by-entry in stored order.
func (t *Tree) Equal(other *Tree) bool {
	if (t == nil) != (other == nil) {
		return false
	}
	if t == nil {
		return true
	}
	if len(t.Entries) != len(other.Entries) {
		return false
	}
	for i, e := range t.Entries {
		if !e.Equal(other.Entries[i]) {
			return false
		}
	}
	return true
}

// Fsck validates the path-order, uniqueness, and mode invariants of §3
// and §8 ("fsck_tree(T) succeeds iff entries are path-ordered, unique,
// modes in the allowed set, no name is empty, no name contains '/'").
func (t *Tree) Fsck() error {
	seen := make(map[string]bool, len(t.Entries))
	order := SubtreeOrder(t.Entries)
	for i, e := range t.Entries {
		if e.Name == "" {
			return fmt.Errorf("object: tree %s: empty entry name", t.Hash)
		}
		if strings.ContainsRune(e.Name, '/') {
			return fmt.Errorf("object: tree %s: entry name %q contains '/'", t.Hash, e.Name)
		}
		if e.Mode.IsMalformed() {
			return fmt.Errorf("object: tree %s: entry %q has disallowed mode %s", t.Hash, e.Name, e.Mode)
		}
		if seen[e.Name] {
			return fmt.Errorf("object: tree %s: duplicate entry name %q", t.Hash, e.Name)
		}
		seen[e.Name] = true
		if i > 0 && order.Less(i, i-1) {
			return fmt.Errorf("object: tree %s: entries not path-ordered at %q", t.Hash, e.Name)
		}
	}
	return nil
}

// Encode writes the git-literal tree object framing (§6): entries
// path-ordered, each as "<octal-mode> <name>\0<20-byte-hash>"
// concatenated with no magic header, length field, or payload —
// replacing the teacher's TREE_MAGIC-prefixed, size-annotated,
// fragments-capable envelope (modules/zeta/object/tree.go Encode).
func (t *Tree) Encode(w io.Writer) error {
	entries := make([]*TreeEntry, len(t.Entries))
	copy(entries, t.Entries)
	sort.Sort(SubtreeOrder(entries))

	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "%o %s\x00", uint32(e.Mode), e.Name); err != nil {
			return err
		}
		if _, err := w.Write(e.Hash[:]); err != nil {
			return err
		}
	}
	return nil
}

// Payload returns the canonical uncompressed bytes of the tree, for
// hashing or loose/pack writing.
func (t *Tree) Payload() ([]byte, error) {
	var buf bytes.Buffer
	if err := t.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses the git-literal tree framing out of r.
func (t *Tree) Decode(oid plumbing.Hash, r io.Reader) error {
	t.Hash = oid
	br := bufio.NewReader(r)
	for {
		modeField, err := br.ReadString(' ')
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("object: tree %s: reading mode: %w", oid, err)
		}
		mode, err := filemode.New(strings.TrimSuffix(modeField, " "))
		if err != nil {
			return fmt.Errorf("object: tree %s: parsing mode: %w", oid, err)
		}
		name, err := br.ReadString(0)
		if err != nil {
			return fmt.Errorf("object: tree %s: reading name: %w", oid, err)
		}
		name = strings.TrimSuffix(name, "\x00")

		var hash plumbing.Hash
		if _, err := io.ReadFull(br, hash[:]); err != nil {
			return fmt.Errorf("object: tree %s: reading hash: %w", oid, err)
		}
		t.Entries = append(t.Entries, &TreeEntry{Name: name, Mode: mode, Hash: hash})
	}
	return nil
}

// simpleJoin concatenates a parent directory path and a child entry
// name with a single "/", avoiding path.Join's cleaning (entry names
// never contain "." or ".." components per Fsck, so no cleaning is
// ever needed, and path.Join would incorrectly collapse a leading "").
func simpleJoin(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// dir resolves a '/'-separated directory path to its Tree, descending
// through subtrees via the Backend.
func (t *Tree) dir(ctx context.Context, name string) (*Tree, error) {
	if name == "" {
		return t, nil
	}
	cur := t
	depth := 0
	for _, part := range strings.Split(name, "/") {
		depth++
		if depth > maxTreeDepth {
			return nil, ErrMaxTreeDepth
		}
		e, err := cur.Entry(part)
		if err != nil {
			return nil, err
		}
		if !e.IsDir() {
			return nil, &ErrEntryNotFound{entry: name}
		}
		sub, err := cur.b.Tree(ctx, e.Hash)
		if err != nil {
			return nil, err
		}
		cur = sub
	}
	return cur, nil
}

// File resolves a '/'-separated path to the Blob it names.
func (t *Tree) File(ctx context.Context, name string) (*Blob, error) {
	dir, base := path.Split(name)
	dir = strings.TrimSuffix(dir, "/")
	sub, err := t.dir(ctx, dir)
	if err != nil {
		return nil, err
	}
	e, err := sub.Entry(base)
	if err != nil {
		return nil, err
	}
	if e.IsDir() {
		return nil, &ErrEntryNotFound{entry: name}
	}
	return t.b.Blob(ctx, e.Hash)
}

func resolveTree(ctx context.Context, b Backend, oid plumbing.Hash) (*Tree, error) {
	return b.Tree(ctx, oid)
}

// parseOctal parses an ASCII octal field. Nothing in this package calls
// it; Tree.Decode parses entry modes through filemode.New.
func parseOctal(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 8, 32)
	return uint32(n), err
}
