package index

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"strconv"
	"time"

	"github.com/vcsforge/gitcore/modules/plumbing"
	"github.com/vcsforge/gitcore/modules/plumbing/filemode"
)

var (
	signature        = [4]byte{'D', 'I', 'R', 'C'}
	treeSignature    = [4]byte{'T', 'R', 'E', 'E'}
	reucSignature    = [4]byte{'R', 'E', 'U', 'C'}
)

const (
	entryHeaderLength = 62
	entryExtended     = 0x4000
	assumeValidMask   = 0x8000
	nameMask          = 0x0fff
	intentToAddMask   = 1 << 13
	skipWorktreeMask  = 1 << 14
)

// Decoder reads the binary encoding of an Index.
type Decoder struct {
	buf       *bufio.Reader
	r         io.Reader
	hasher    plumbing.Hasher
	lastEntry *Entry
}

func NewDecoder(r io.Reader) *Decoder {
	h := plumbing.NewHasher()
	buf := bufio.NewReader(r)
	return &Decoder{buf: buf, r: io.TeeReader(buf, h), hasher: h}
}

func (d *Decoder) Decode(idx *Index) error {
	version, err := validateHeader(d.r)
	if err != nil {
		return err
	}
	idx.Version = version

	var count uint32
	if err := binary.Read(d.r, binary.BigEndian, &count); err != nil {
		return err
	}

	for i := uint32(0); i < count; i++ {
		e, err := d.readEntry(idx)
		if err != nil {
			return err
		}
		d.lastEntry = e
		idx.Entries = append(idx.Entries, e)
	}

	return d.readExtensions(idx)
}

func validateHeader(r io.Reader) (uint32, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, err
	}
	if hdr != signature {
		return 0, ErrMalformedSignature
	}
	var version uint32
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return 0, err
	}
	if version != 2 && version != 3 {
		return 0, ErrUnsupportedVersion
	}
	return version, nil
}

func (d *Decoder) readEntry(idx *Index) (*Entry, error) {
	e := &Entry{}

	var sec, nsec, msec, mnsec, mode uint32
	fields := []*uint32{&sec, &nsec, &msec, &mnsec, &e.Dev, &e.Inode, &mode, &e.UID, &e.GID, &e.Size}
	for _, f := range fields {
		if err := binary.Read(d.r, binary.BigEndian, f); err != nil {
			return nil, err
		}
	}
	e.Mode = filemode.FileMode(mode)

	if _, err := io.ReadFull(d.r, e.Hash[:]); err != nil {
		return nil, err
	}

	var flags uint16
	if err := binary.Read(d.r, binary.BigEndian, &flags); err != nil {
		return nil, err
	}

	read := entryHeaderLength

	if sec != 0 || nsec != 0 {
		e.CreatedAt = time.Unix(int64(sec), int64(nsec))
	}
	if msec != 0 || mnsec != 0 {
		e.ModifiedAt = time.Unix(int64(msec), int64(mnsec))
	}
	e.Stage = Stage((flags >> 12) & 0x3)
	e.Valid = flags&assumeValidMask != 0

	if flags&entryExtended != 0 {
		var extended uint16
		if err := binary.Read(d.r, binary.BigEndian, &extended); err != nil {
			return nil, err
		}
		read += 2
		e.IntentToAdd = extended&intentToAddMask != 0
		e.SkipWorktree = extended&skipWorktreeMask != 0
	}

	nameLen := int(flags & nameMask)
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(d.r, name); err != nil {
		return nil, err
	}
	e.Name = string(name)

	entrySize := read + nameLen
	padLen := 8 - entrySize%8
	if _, err := io.CopyN(io.Discard, d.r, int64(padLen)); err != nil {
		return nil, err
	}

	return e, nil
}

func (d *Decoder) readExtensions(idx *Index) error {
	trailerLen := 4 + 4 + plumbing.HASH_DIGEST_SIZE
	for {
		peeked, err := d.buf.Peek(trailerLen)
		if len(peeked) < trailerLen {
			break
		}
		if err != nil {
			return err
		}
		if err := d.readExtension(idx); err != nil {
			return err
		}
	}
	return d.readChecksum(d.hasher.Sum())
}

func (d *Decoder) readExtension(idx *Index) error {
	var header [4]byte
	if _, err := io.ReadFull(d.r, header[:]); err != nil {
		return err
	}

	var length uint32
	if err := binary.Read(d.r, binary.BigEndian, &length); err != nil {
		return err
	}
	body := io.LimitReader(d.r, int64(length))
	br := bufio.NewReader(body)

	switch header {
	case treeSignature:
		idx.Cache = &Tree{}
		return decodeTree(br, idx.Cache)
	case reucSignature:
		idx.ResolveUndo = &ResolveUndo{}
		return decodeResolveUndo(br, idx.ResolveUndo)
	default:
		if header[0] >= 'A' && header[0] <= 'Z' {
			return ErrUnknownExtension
		}
		_, err := io.Copy(io.Discard, br)
		return err
	}
}

func decodeTree(r *bufio.Reader, t *Tree) error {
	for {
		e, err := readTreeEntry(r)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		t.Entries = append(t.Entries, *e)
	}
}

func readTreeEntry(r *bufio.Reader) (*TreeEntry, error) {
	path, err := r.ReadString(0)
	if err != nil {
		return nil, err
	}
	e := &TreeEntry{Path: path[:len(path)-1]}

	countASCII, err := r.ReadString(' ')
	if err != nil {
		return nil, err
	}
	count, err := strconv.Atoi(countASCII[:len(countASCII)-1])
	if err != nil {
		return nil, err
	}
	e.Entries = count

	treesASCII, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	trees, err := strconv.Atoi(treesASCII[:len(treesASCII)-1])
	if err != nil {
		return nil, err
	}
	e.Trees = trees

	if count == -1 {
		return e, nil
	}
	if _, err := io.ReadFull(r, e.Hash[:]); err != nil {
		return nil, err
	}
	return e, nil
}

func decodeResolveUndo(r *bufio.Reader, ru *ResolveUndo) error {
	for {
		e, err := readResolveUndoEntry(r)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		ru.Entries = append(ru.Entries, *e)
	}
}

func readResolveUndoEntry(r *bufio.Reader) (*ResolveUndoEntry, error) {
	path, err := r.ReadString(0)
	if err != nil {
		return nil, err
	}
	e := &ResolveUndoEntry{Path: path[:len(path)-1], Stages: make(map[Stage]plumbing.Hash)}

	present := map[Stage]bool{}
	for _, stage := range []Stage{AncestorMode, OurMode, TheirMode} {
		modeASCII, err := r.ReadString(0)
		if err != nil {
			return nil, err
		}
		mode, err := strconv.ParseInt(modeASCII[:len(modeASCII)-1], 8, 64)
		if err != nil {
			return nil, err
		}
		if mode != 0 {
			present[stage] = true
		}
	}
	for _, stage := range []Stage{AncestorMode, OurMode, TheirMode} {
		if !present[stage] {
			continue
		}
		var h plumbing.Hash
		if _, err := io.ReadFull(r, h[:]); err != nil {
			return nil, err
		}
		e.Stages[stage] = h
	}
	return e, nil
}

func (d *Decoder) readChecksum(expected plumbing.Hash) error {
	var got plumbing.Hash
	if _, err := io.ReadFull(d.buf, got[:]); err != nil {
		return err
	}
	if !bytes.Equal(got[:], expected[:]) {
		return ErrInvalidChecksum
	}
	return nil
}
