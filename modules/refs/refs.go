// Package refs implements the reference store of spec §4.6/§6.6/§8 (C8):
// symbolic and direct refs under refs/, loose-over-packed precedence on
// read, lock+rename atomicity on write, and a reflog append on every
// update. Grounded on modules/zeta/refs (backend.go, references.go,
// rules.go, filesystem.go) and modules/zeta/reflog/reflog.go, which
// already model a git-shaped ref store (hugescm's refs are the same
// symbolic/hash duality as git's); adapted to write ref updates through
// the shared storage.Lockfile primitive (removal and packed-refs still
// use the teacher's openNotExists/lockPackedRefs pair), and to append a reflog entry as
// part of ReferenceUpdate itself, per spec §4.6 step 4, rather than as
// a separately-wired call.
package refs

import (
	"errors"
	"io"
	"sort"

	"github.com/vcsforge/gitcore/modules/object"
	"github.com/vcsforge/gitcore/modules/plumbing"
)

// Backend is the reference store's storage interface (C8), ported from
// the teacher's refs.Backend.
type Backend interface {
	// HEAD returns the repository's current reference, or nil if unset.
	HEAD() (*plumbing.Reference, error)
	// References returns a snapshot DB of every loose and packed ref.
	References() (*DB, error)
	// Reference looks up one ref by its full name.
	Reference(name plumbing.ReferenceName) (*plumbing.Reference, error)
	// ReferencePrefixMatch resolves the first ref matching a "/"-bounded
	// prefix (e.g. "refs/heads" matches "refs/heads/main", not
	// "refs/headsx").
	ReferencePrefixMatch(prefix plumbing.ReferenceName) (*plumbing.Reference, error)
	// ReferenceUpdate is spec §4.6's update_ref: compare-and-swap against
	// old (nil means "don't check"), write, and append a reflog entry
	// naming committer and reason.
	ReferenceUpdate(r, old *plumbing.Reference, committer object.Signature, reason string) error
	// ReferenceRemove deletes a ref, rewriting packed-refs if it lived
	// there, and records the deletion in its reflog.
	ReferenceRemove(r *plumbing.Reference, committer object.Signature, reason string) error
	// Packed folds every loose ref into packed-refs.
	Packed() error
}

// MaxResolveRecursion bounds symref chain-following (spec's "symbolic
// refs update the target" implies chains can exist; this guards against
// a cycle).
const MaxResolveRecursion = 1024

// ErrMaxResolveRecursion is returned when resolving a symref chain
// exceeds MaxResolveRecursion hops.
var ErrMaxResolveRecursion = errors.New("refs: max resolve recursion reached")

// Resolve follows name through any symbolic indirection to its direct
// (hash) reference.
func Resolve(b Backend, name plumbing.ReferenceName) (*plumbing.Reference, error) {
	for range MaxResolveRecursion {
		ref, err := b.Reference(name)
		if err != nil {
			return nil, err
		}
		if ref.Type() != plumbing.SymbolicReference {
			return ref, nil
		}
		name = ref.Target()
	}
	return nil, ErrMaxResolveRecursion
}

// DB is an in-memory snapshot of every reference, built by one
// References() call; used for enumeration, shortening, and ambiguity
// checks without re-reading the filesystem per lookup.
type DB struct {
	references []*plumbing.Reference
	cache      map[plumbing.ReferenceName]*plumbing.Reference
	head       *plumbing.Reference
}

func (d *DB) References() []*plumbing.Reference { return d.references }

func (d *DB) Sort() { sort.Sort(plumbing.ReferenceSlice(d.references)) }

func (d *DB) HEAD() *plumbing.Reference { return d.head }

// Lookup resolves name through git's rev-parse disambiguation rules
// (bare name, then refs/, refs/tags/, refs/heads/, refs/remotes/, ...).
func (d *DB) Lookup(name string) *plumbing.Reference {
	for _, r := range refRevParseRules {
		if ref, ok := d.cache[r.ReferenceName(name)]; ok {
			return ref
		}
	}
	return nil
}

// ShortName returns the shortest name unambiguously resolving to
// refname under the same rev-parse rules, per git's
// shorten_unambiguous_ref.
func (d *DB) ShortName(refname plumbing.ReferenceName, strict bool) string {
	for i := len(refRevParseRules) - 1; i > 0; i-- {
		shortName := refRevParseRules[i].ShortName(string(refname))
		if len(shortName) == 0 {
			continue
		}
		rulesToFail := i
		if strict {
			rulesToFail = len(refRevParseRules)
		}
		j := 0
		for ; j < rulesToFail; j++ {
			if i == j {
				continue
			}
			if d.Exists(refRevParseRules[j].ReferenceName(shortName)) {
				break
			}
		}
		if j == rulesToFail {
			return shortName
		}
	}
	return string(refname)
}

func (d *DB) Exists(refname plumbing.ReferenceName) bool {
	_, ok := d.cache[refname]
	return ok
}

func (d *DB) IsCurrent(refname plumbing.ReferenceName) bool {
	return d.head != nil && d.head.Name() == refname
}

// Iter enumerates a DB's references one at a time, in the style of the
// object package's other iterators.
type Iter struct {
	series []*plumbing.Reference
	pos    int
}

func NewIter(db *DB) *Iter { return &Iter{series: db.references} }

func (it *Iter) Next() (*plumbing.Reference, error) {
	if it.pos >= len(it.series) {
		return nil, io.EOF
	}
	r := it.series[it.pos]
	it.pos++
	return r, nil
}

func (it *Iter) ForEach(cb func(*plumbing.Reference) error) error {
	for {
		r, err := it.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := cb(r); err != nil {
			if err == plumbing.ErrStop {
				return nil
			}
			return err
		}
	}
}
