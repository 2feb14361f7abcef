// Package objfile implements the loose-object encoding described in
// spec §6.1: a zlib-deflated "<type> <decimal-length>\0<payload>" blob,
// written one file per object under a 2-level hex fanout directory.
package objfile

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/klauspost/compress/zlib"

	"github.com/vcsforge/gitcore/modules/plumbing"
)

// ObjectType is the four-member type tag carried in the loose-object
// header and the pack entry header.
type ObjectType int8

const (
	InvalidObject ObjectType = 0
	CommitObject  ObjectType = 1
	TreeObject    ObjectType = 2
	BlobObject    ObjectType = 3
	TagObject     ObjectType = 4
	OFSDeltaObject ObjectType = 6
	REFDeltaObject ObjectType = 7
)

func (t ObjectType) String() string {
	switch t {
	case CommitObject:
		return "commit"
	case TreeObject:
		return "tree"
	case BlobObject:
		return "blob"
	case TagObject:
		return "tag"
	case OFSDeltaObject:
		return "ofs-delta"
	case REFDeltaObject:
		return "ref-delta"
	}
	return "unknown"
}

func (t ObjectType) Valid() bool {
	return t >= CommitObject && t <= TagObject
}

// ParseObjectType parses the ASCII type field of a loose-object header.
func ParseObjectType(s string) (ObjectType, error) {
	switch s {
	case "commit":
		return CommitObject, nil
	case "tree":
		return TreeObject, nil
	case "blob":
		return BlobObject, nil
	case "tag":
		return TagObject, nil
	}
	return InvalidObject, fmt.Errorf("objfile: invalid object type %q", s)
}

// ErrCorruptObject is returned when a loose object's on-disk framing is
// malformed: bad zlib stream, unparsable header, or a length mismatch
// against the decoded payload.
type ErrCorruptObject struct {
	OID plumbing.Hash
	Err error
}

func (e *ErrCorruptObject) Error() string {
	return fmt.Sprintf("objfile: corrupt object %s: %v", e.OID, e.Err)
}

func (e *ErrCorruptObject) Unwrap() error { return e.Err }

// Reader decodes a loose object's header and exposes its payload as an
// io.Reader. The header line is read eagerly; payload bytes are streamed
// out of the underlying zlib reader lazily.
type Reader struct {
	zr   io.ReadCloser
	r    *bufio.Reader
	typ  ObjectType
	size int64
}

// NewReader opens a loose-object stream, decompresses it, and parses the
// "<type> <len>\0" header. The caller must call Close when done.
func NewReader(r io.Reader) (*Reader, error) {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, &ErrCorruptObject{Err: err}
	}
	br := bufio.NewReader(zr)

	typeField, err := br.ReadString(' ')
	if err != nil {
		zr.Close()
		return nil, &ErrCorruptObject{Err: fmt.Errorf("reading type: %w", err)}
	}
	typ, err := ParseObjectType(typeField[:len(typeField)-1])
	if err != nil {
		zr.Close()
		return nil, &ErrCorruptObject{Err: err}
	}

	lenField, err := br.ReadString(0)
	if err != nil {
		zr.Close()
		return nil, &ErrCorruptObject{Err: fmt.Errorf("reading length: %w", err)}
	}
	size, err := strconv.ParseInt(lenField[:len(lenField)-1], 10, 64)
	if err != nil {
		zr.Close()
		return nil, &ErrCorruptObject{Err: fmt.Errorf("parsing length: %w", err)}
	}

	return &Reader{zr: zr, r: br, typ: typ, size: size}, nil
}

// Header returns the object's type and declared payload length.
func (r *Reader) Header() (ObjectType, int64, error) {
	return r.typ, r.size, nil
}

func (r *Reader) Read(p []byte) (int, error) {
	return r.r.Read(p)
}

func (r *Reader) Close() error {
	return r.zr.Close()
}

// Writer encodes a loose object's canonical byte framing and feeds it
// through zlib into the wrapped io.Writer, tracking a running digest of
// the uncompressed framing so the caller can recover the object's Hash.
type Writer struct {
	w      io.WriteCloser
	hasher plumbing.Hasher
	size   int64
	n      int64
}

// NewWriter starts encoding a loose object of the given type and
// declared length into w.
func NewWriter(w io.Writer, typ ObjectType, size int64) (*Writer, error) {
	zw := zlib.NewWriter(w)
	ww := &Writer{w: zw, hasher: plumbing.NewHasher(), size: size}

	header := fmt.Sprintf("%s %d\x00", typ, size)
	if _, err := ww.writeRaw([]byte(header)); err != nil {
		return nil, err
	}
	return ww, nil
}

func (w *Writer) writeRaw(p []byte) (int, error) {
	w.hasher.Write(p)
	return w.w.Write(p)
}

func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.writeRaw(p)
	w.n += int64(n)
	return n, err
}

// Hash returns the object's digest, computed over "<type> <len>\0<payload>"
// exactly as defined in spec §3.
func (w *Writer) Hash() plumbing.Hash {
	return w.hasher.Sum()
}

// Size returns the number of payload bytes written so far.
func (w *Writer) Size() int64 { return w.n }

func (w *Writer) Close() error {
	if w.n != w.size {
		return fmt.Errorf("objfile: wrote %d bytes, declared size was %d", w.n, w.size)
	}
	return w.w.Close()
}

// HashObject computes the digest of an object without writing it
// anywhere, used by callers that only need the content address (e.g.
// hash-object --stdin, or dry-run add).
func HashObject(typ ObjectType, payload []byte) plumbing.Hash {
	h := plumbing.NewHasher()
	fmt.Fprintf(h, "%s %d\x00", typ, len(payload))
	h.Write(payload)
	return h.Sum()
}

// Frame returns the canonical uncompressed byte framing of an object,
// suitable for hashing or for feeding into a Writer-less codec path.
func Frame(typ ObjectType, payload []byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %d\x00", typ, len(payload))
	buf.Write(payload)
	return buf.Bytes()
}
