package object

import (
	"context"
	"io"

	"github.com/emirpasic/gods/trees/binaryheap"

	"github.com/vcsforge/gitcore/modules/plumbing"
)

// WalkFlag is the per-commit state bitset of §4.4: SEEN, UNINTERESTING,
// COMPLETE, BOUNDARY, SYMMETRIC_LEFT, CHILD_SHOWN, TREESAME.
type WalkFlag uint16

const (
	FlagSeen WalkFlag = 1 << iota
	FlagUninteresting
	FlagComplete
	FlagBoundary
	FlagSymmetricLeft
	FlagChildShown
	FlagTreeSame
)

type walkNode struct {
	c      *Commit
	flags  WalkFlag
	queued bool
}

// commitHeap is a date-ordered (newest-first, hash-tiebroken) priority
// queue of pending commits, grounded on the teacher's commitHeap
// (modules/zeta/object/commit_walker_topo_order.go), backed by the same
// gods/binaryheap the teacher uses.
type commitHeap struct {
	*binaryheap.Heap
}

func newCommitHeap() *commitHeap {
	return &commitHeap{Heap: binaryheap.NewWith(func(a, b any) int {
		na, nb := a.(*walkNode), b.(*walkNode)
		if na.c.Committer.When.Equal(nb.c.Committer.When) {
			return na.c.Hash.Compare(nb.c.Hash)
		}
		if na.c.Committer.When.After(nb.c.Committer.When) {
			return -1
		}
		return 1
	})}
}

func (h *commitHeap) push(n *walkNode) { h.Heap.Push(n) }
func (h *commitHeap) pop() (*walkNode, bool) {
	v, ok := h.Heap.Pop()
	if !ok {
		return nil, false
	}
	return v.(*walkNode), true
}

// WalkOptions configures a commit graph walk (C9).
type WalkOptions struct {
	// Tips are walked as interesting (reachability / range "B" side).
	Tips []plumbing.Hash
	// Uninteresting are walked as UNINTERESTING roots (range "A" side);
	// their ancestors are pruned from the emitted output per §4.4's
	// range semantics.
	Uninteresting []plumbing.Hash
	// FirstParentOnly enqueues only a commit's first parent.
	FirstParentOnly bool
	// Boundary re-admits UNINTERESTING commits with at least one shown
	// child, flagged BOUNDARY, instead of silently dropping them.
	Boundary bool
}

// Walker enumerates commits from a Backend per WalkOptions, in commit-date
// priority order (ties broken by hash), implementing reachability, range
// A..B, first-parent-only, and boundary mode (§4.4).
type Walker struct {
	ctx     context.Context
	b       Backend
	nodes   map[plumbing.Hash]*walkNode
	heap    *commitHeap
	opts    WalkOptions
	started bool
}

// NewWalker constructs a Walker. Call Next repeatedly until io.EOF.
func NewWalker(ctx context.Context, b Backend, opts WalkOptions) *Walker {
	return &Walker{ctx: ctx, b: b, nodes: make(map[plumbing.Hash]*walkNode), opts: opts}
}

func (w *Walker) nodeFor(c *Commit) *walkNode {
	if n, ok := w.nodes[c.Hash]; ok {
		return n
	}
	n := &walkNode{c: c}
	w.nodes[c.Hash] = n
	return n
}

func (w *Walker) seed() error {
	w.heap = newCommitHeap()
	seed := func(hash plumbing.Hash, uninteresting bool) error {
		c, err := w.b.Commit(w.ctx, hash)
		if err != nil {
			return err
		}
		n := w.nodeFor(c)
		if uninteresting {
			n.flags |= FlagUninteresting
		}
		if !n.queued {
			n.queued = true
			n.flags |= FlagSeen
			w.heap.push(n)
		}
		return nil
	}
	for _, h := range w.opts.Tips {
		if err := seed(h, false); err != nil {
			return err
		}
	}
	for _, h := range w.opts.Uninteresting {
		if err := seed(h, true); err != nil {
			return err
		}
	}
	return nil
}

// Next returns the next commit in the walk, or io.EOF when exhausted.
func (w *Walker) Next() (*Commit, error) {
	if !w.started {
		w.started = true
		if err := w.seed(); err != nil {
			return nil, err
		}
	}

	for {
		n, ok := w.heap.pop()
		if !ok {
			return nil, io.EOF
		}

		uninteresting := n.flags&FlagUninteresting != 0
		if err := w.enqueueParents(n); err != nil {
			return nil, err
		}

		if !uninteresting {
			return n.c, nil
		}
		if w.opts.Boundary && n.flags&FlagChildShown != 0 && n.flags&FlagBoundary == 0 {
			n.flags |= FlagBoundary
			return n.c, nil
		}
		// Skip: UNINTERESTING with no boundary re-admission, keep draining.
	}
}

// enqueueParents pushes n's parents (or only the first, in first-parent
// mode), propagating the UNINTERESTING flag down parent edges per §4.4's
// "propagating the flag down parent edges", and recording CHILD_SHOWN on
// each parent when n itself was emitted as an interesting commit.
func (w *Walker) enqueueParents(n *walkNode) error {
	parents := n.c.Parents
	if w.opts.FirstParentOnly && len(parents) > 1 {
		parents = parents[:1]
	}
	uninteresting := n.flags&FlagUninteresting != 0

	for _, ph := range parents {
		pc, err := w.b.Commit(w.ctx, ph)
		if plumbing.IsNoSuchObject(err) {
			continue
		}
		if err != nil {
			return err
		}
		pn := w.nodeFor(pc)
		if !uninteresting {
			pn.flags |= FlagChildShown
		}
		if uninteresting {
			pn.flags |= FlagUninteresting
		}
		if !pn.queued {
			pn.queued = true
			pn.flags |= FlagSeen
			w.heap.push(pn)
		}
		// If pn was already queued, the heap holds this same *walkNode
		// pointer, so the flag update above is visible when it is popped.
	}
	return nil
}

// All drains the walker into a slice, in emission order.
func (w *Walker) All() ([]*Commit, error) {
	var out []*Commit
	for {
		c, err := w.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
}

// Reachable enumerates every ancestor of tips (inclusive), per §4.4's
// "Reachability" mode.
func Reachable(ctx context.Context, b Backend, tips []plumbing.Hash) ([]*Commit, error) {
	w := NewWalker(ctx, b, WalkOptions{Tips: tips})
	return w.All()
}

// Range enumerates ancestors of b that are not ancestors of a (§4.4,
// §8's "range A..B" property): reachable(b) \ reachable(a).
func Range(ctx context.Context, be Backend, a, b plumbing.Hash) ([]*Commit, error) {
	w := NewWalker(ctx, be, WalkOptions{Tips: []plumbing.Hash{b}, Uninteresting: []plumbing.Hash{a}})
	return w.All()
}

// reachableSet collects the full ancestor set of tip (inclusive) as a
// hash set, used by MergeBase.
func reachableSet(ctx context.Context, b Backend, tip plumbing.Hash) (map[plumbing.Hash]bool, error) {
	seen := make(map[plumbing.Hash]bool)
	stack := []plumbing.Hash{tip}
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[h] {
			continue
		}
		seen[h] = true
		c, err := b.Commit(ctx, h)
		if err != nil {
			return nil, err
		}
		stack = append(stack, c.Parents...)
	}
	return seen, nil
}

// MergeBase returns the youngest commit (by committer date) reachable
// from both a and b, per §4.4/§8: ancestors of a are collected first,
// then b is walked in date-descending order until a commit also in
// that ancestor set is found.
func MergeBase(ctx context.Context, b Backend, a, bTip plumbing.Hash) (*Commit, error) {
	ancestorsA, err := reachableSet(ctx, b, a)
	if err != nil {
		return nil, err
	}

	w := NewWalker(ctx, b, WalkOptions{Tips: []plumbing.Hash{bTip}})
	for {
		c, err := w.Next()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if ancestorsA[c.Hash] {
			return c, nil
		}
	}
}
