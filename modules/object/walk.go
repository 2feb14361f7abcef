package object

import (
	"context"
	"strings"
)

// Pathspec filters which paths an n-way walk descends into and emits.
type Pathspec interface {
	Match(path string) bool
}

// AllPathspec matches every path; the zero-value pathspec.
type AllPathspec struct{}

func (AllPathspec) Match(string) bool { return true }

// WalkEntries holds one entry per input tree at the current walk step;
// a nil slot means that tree has no entry at this path.
type WalkEntries []*TreeEntry

// DirMask reports, per input tree, whether its entry at this step is a
// subtree.
func (w WalkEntries) DirMask() uint64 {
	var mask uint64
	for i, e := range w {
		if e != nil && e.IsDir() {
			mask |= 1 << uint(i)
		}
	}
	return mask
}

// Mask reports, per input tree, whether it carries any entry at all at
// this step.
func (w WalkEntries) Mask() uint64 {
	var mask uint64
	for i, e := range w {
		if e != nil {
			mask |= 1 << uint(i)
		}
	}
	return mask
}

// WalkFunc is invoked once per distinct path across all input trees.
// Returning descend=true causes NWayWalk to recurse into the
// subtree-valued entries at this step (any tree lacking a matching
// subtree contributes nil at the next level).
type WalkFunc func(path string, entries WalkEntries) (descend bool, err error)

// byteAt returns the byte at index i of s, or 0 if i is out of range —
// the Go equivalent of C's implicit NUL terminator read one past a
// string's last byte.
func byteAt(s string, i int) byte {
	if i < len(s) {
		return s[i]
	}
	return 0
}

// orderCompare ranks two entry names for traversal order: a directory
// name compares as if it carried a trailing "/", so "t-2" (file) sorts
// before "t" (directory) even though "t" is a byte-prefix of "t-2".
// This is git's base_name_compare rule (tree-walk.c), reimplemented
// here since it is the load-bearing invariant behind SubtreeOrder too.
func orderCompare(n1 string, dir1 bool, n2 string, dir2 bool) int {
	l := len(n1)
	if len(n2) < l {
		l = len(n2)
	}
	if c := strings.Compare(n1[:l], n2[:l]); c != 0 {
		return c
	}
	c1, c2 := byteAt(n1, l), byteAt(n2, l)
	if c1 == 0 && dir1 {
		c1 = '/'
	}
	if c2 == 0 && dir2 {
		c2 = '/'
	}
	switch {
	case c1 < c2:
		return -1
	case c1 > c2:
		return 1
	default:
		return 0
	}
}

// sameTarget reports whether two cursor-head entries name the "same"
// path step for the purpose of grouping them into one WalkEntries tuple,
// even when one is a directory and the other a file of the identical
// name. This is git's df_name_compare rule: two entries with
// byte-identical, equal-length names always match regardless of mode.
// Only cursor heads are compared, with no look-ahead: when one tree
// holds a blob "t-2" ahead of a subtree "t" and another tree holds a
// blob "t", the two "t" entries are emitted in separate steps.
func sameTarget(n1 string, dir1 bool, n2 string, dir2 bool) bool {
	l := len(n1)
	if len(n2) < l {
		l = len(n2)
	}
	if strings.Compare(n1[:l], n2[:l]) != 0 {
		return false
	}
	if len(n1) == len(n2) {
		return true
	}
	c1, c2 := byteAt(n1, l), byteAt(n2, l)
	if c1 == 0 && dir1 {
		c1 = '/'
	}
	if c2 == 0 && dir2 {
		c2 = '/'
	}
	if c1 == '/' && c2 == 0 {
		return true
	}
	if c2 == '/' && c1 == 0 {
		return true
	}
	return false
}

// NWayWalk performs the simultaneous n-way traversal of §4.3: at each
// step it selects the lexicographically-least pending name across all
// trees under path-order comparison, emits a WalkEntries tuple for every
// tree that names that step, advances only those cursors, and -- when
// fn asks it to -- recurses into the subtree-valued entries, resolving
// each via b. A tree slot may be nil (absent at this level).
func NWayWalk(ctx context.Context, b Backend, trees []*Tree, ps Pathspec, fn WalkFunc) error {
	if ps == nil {
		ps = AllPathspec{}
	}
	return nWayWalk(ctx, b, "", trees, ps, fn)
}

func nWayWalk(ctx context.Context, b Backend, prefix string, trees []*Tree, ps Pathspec, fn WalkFunc) error {
	n := len(trees)
	idx := make([]int, n)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		bestTree := -1
		for i, t := range trees {
			if t == nil || idx[i] >= len(t.Entries) {
				continue
			}
			e := t.Entries[idx[i]]
			if bestTree == -1 {
				bestTree = i
				continue
			}
			best := trees[bestTree].Entries[idx[bestTree]]
			if orderCompare(e.Name, e.IsDir(), best.Name, best.IsDir()) < 0 {
				bestTree = i
			}
		}
		if bestTree == -1 {
			return nil
		}
		best := trees[bestTree].Entries[idx[bestTree]]

		entries := make(WalkEntries, n)
		for i, t := range trees {
			if t == nil || idx[i] >= len(t.Entries) {
				continue
			}
			e := t.Entries[idx[i]]
			if !sameTarget(e.Name, e.IsDir(), best.Name, best.IsDir()) {
				continue
			}
			entries[i] = e
			idx[i]++
		}

		fullPath := simpleJoin(prefix, best.Name)
		if !ps.Match(fullPath) {
			continue
		}

		descend, err := fn(fullPath, entries)
		if err != nil {
			return err
		}
		if !descend || entries.DirMask() == 0 {
			continue
		}

		subtrees := make([]*Tree, n)
		for i, e := range entries {
			if e == nil || !e.IsDir() {
				continue
			}
			sub, err := b.Tree(ctx, e.Hash)
			if err != nil {
				return err
			}
			subtrees[i] = sub
		}
		if err := nWayWalk(ctx, b, fullPath, subtrees, ps, fn); err != nil {
			return err
		}
	}
}
