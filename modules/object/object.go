// Package object implements the four typed objects of the data model
// (§3) — Blob, Tree, Commit, Tag — plus the higher-level machinery built
// on top of them: the n-way tree walk (§4.3), the commit graph walk
// (§4.4), the diff engine (§4.7, package diff) and the pretty-printer
// (§4.8, package pretty). Object framing and parsing follow the teacher's
// modules/zeta/object package; the wire encoding itself is git's literal
// one (§6) rather than hugescm's ZT/ZC/ZTAG-magic envelopes.
package object

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/vcsforge/gitcore/modules/plumbing"
	"github.com/vcsforge/gitcore/modules/plumbing/format/objfile"
)

// ErrUnsupportedObject is returned when a decoder is handed bytes tagged
// with a type it does not know how to parse.
var ErrUnsupportedObject = errors.New("object: unsupported object type")

// Backend is the subset of the object lookup façade (C4) that the object
// model needs to resolve references lazily: a tree entry's blob, a
// commit's parents, a tag's target. Grounded on the teacher's
// modules/zeta/object.Backend, trimmed of the fragments extension.
type Backend interface {
	Commit(ctx context.Context, oid plumbing.Hash) (*Commit, error)
	Tree(ctx context.Context, oid plumbing.Hash) (*Tree, error)
	Tag(ctx context.Context, oid plumbing.Hash) (*Tag, error)
	Blob(ctx context.Context, oid plumbing.Hash) (*Blob, error)
}

// Object is the tagged sum named by spec §9 ("Polymorphism over object
// types"): the façade returns one of these four, and upper layers type
// switch on it.
type Object interface {
	Type() objfile.ObjectType
	ID() plumbing.Hash
}

func decodeError(typ objfile.ObjectType) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedObject, typ)
}

// Decode parses the payload read from r (already unzlibed, per objfile's
// framing) as typ and returns the resulting Object with b wired in as
// its Backend, so later lazy lookups (a tree entry's blob, a commit's
// parent) resolve through the same façade that produced it. Grounded on
// the teacher's object.Decode (modules/zeta/object/object.go), which
// does the same type switch and backend wiring at construction time.
func Decode(r io.Reader, oid plumbing.Hash, typ objfile.ObjectType, b Backend) (Object, error) {
	switch typ {
	case objfile.CommitObject:
		c := &Commit{b: b}
		if err := c.Decode(oid, r); err != nil {
			return nil, err
		}
		return c, nil
	case objfile.TreeObject:
		t := &Tree{b: b}
		if err := t.Decode(oid, r); err != nil {
			return nil, err
		}
		return t, nil
	case objfile.TagObject:
		g := &Tag{}
		if err := g.Decode(oid, r); err != nil {
			return nil, err
		}
		return g, nil
	case objfile.BlobObject:
		return nil, decodeError(typ) // blobs are streamed by Backend.Blob, not Decode
	default:
		return nil, decodeError(typ)
	}
}
