package object

import (
	"io"

	"github.com/vcsforge/gitcore/modules/plumbing"
	"github.com/vcsforge/gitcore/modules/plumbing/format/objfile"
)

// Blob is the leaf of the data tree: opaque content with no further
// structure (§3). Unlike Tree/Commit/Tag it is never cached by the
// lookup façade (§4.2), so it carries a Size known up front and a
// reader opened lazily against the backing store rather than a
// resident payload.
type Blob struct {
	Hash plumbing.Hash
	Size int64

	open func() (io.ReadCloser, error)
}

// NewBlob wraps an already-resolved opener (typically a storage.Database
// read path) as a Blob value.
func NewBlob(oid plumbing.Hash, size int64, open func() (io.ReadCloser, error)) *Blob {
	return &Blob{Hash: oid, Size: size, open: open}
}

func (b *Blob) Type() objfile.ObjectType { return objfile.BlobObject }
func (b *Blob) ID() plumbing.Hash        { return b.Hash }

// Reader opens the blob's content stream. Callers must Close it.
func (b *Blob) Reader() (io.ReadCloser, error) {
	return b.open()
}

// Bytes reads the blob's entire content into memory. Use sparingly —
// blobs are not size-bounded by the object model.
func (b *Blob) Bytes() ([]byte, error) {
	r, err := b.open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
