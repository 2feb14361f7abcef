package index

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/vcsforge/gitcore/modules/plumbing"
)

// Encoder writes the binary encoding of an Index (spec §6.4).
type Encoder struct {
	raw    io.Writer
	w      io.Writer
	hasher plumbing.Hasher
}

func NewEncoder(w io.Writer) *Encoder {
	h := plumbing.NewHasher()
	return &Encoder{raw: w, w: io.MultiWriter(w, h), hasher: h}
}

// Encode writes idx in path-sorted order, emitting a byte-exact
// round-trip per spec §8 ("save(load(I)) = I").
func (e *Encoder) Encode(idx *Index) error {
	if idx.Version != 2 && idx.Version != 3 {
		return ErrUnsupportedVersion
	}
	if err := e.encodeHeader(idx); err != nil {
		return err
	}
	if err := e.encodeEntries(idx); err != nil {
		return err
	}
	if err := e.encodeExtensions(idx); err != nil {
		return err
	}
	sum := e.hasher.Sum()
	_, err := e.raw.Write(sum[:])
	return err
}

func (e *Encoder) encodeHeader(idx *Index) error {
	var hdr [8]byte
	copy(hdr[0:4], signature[:])
	binary.BigEndian.PutUint32(hdr[4:8], idx.Version)
	if _, err := e.w.Write(hdr[:]); err != nil {
		return err
	}
	var count [4]byte
	binary.BigEndian.PutUint32(count[:], uint32(len(idx.Entries)))
	_, err := e.w.Write(count[:])
	return err
}

type byName []*Entry

func (b byName) Len() int      { return len(b) }
func (b byName) Swap(i, j int) { b[i], b[j] = b[j], b[i] }
func (b byName) Less(i, j int) bool {
	if b[i].Name != b[j].Name {
		return b[i].Name < b[j].Name
	}
	return b[i].Stage < b[j].Stage
}

func (e *Encoder) encodeEntries(idx *Index) error {
	sort.Sort(byName(idx.Entries))

	for _, entry := range idx.Entries {
		if err := e.encodeEntry(entry); err != nil {
			return err
		}
		written := entryHeaderLength
		if entry.IntentToAdd || entry.SkipWorktree {
			written += 2
		}
		written += len(entry.Name)
		pad := 8 - written%8
		if _, err := e.w.Write(make([]byte, pad)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) encodeEntry(entry *Entry) error {
	var sec, nsec, msec, mnsec uint32
	if !entry.CreatedAt.IsZero() {
		sec = uint32(entry.CreatedAt.Unix())
		nsec = uint32(entry.CreatedAt.Nanosecond())
	}
	if !entry.ModifiedAt.IsZero() {
		msec = uint32(entry.ModifiedAt.Unix())
		mnsec = uint32(entry.ModifiedAt.Nanosecond())
	}

	fields := []uint32{sec, nsec, msec, mnsec, entry.Dev, entry.Inode, uint32(entry.Mode), entry.UID, entry.GID, entry.Size}
	for _, f := range fields {
		if err := binary.Write(e.w, binary.BigEndian, f); err != nil {
			return err
		}
	}

	if _, err := e.w.Write(entry.Hash[:]); err != nil {
		return err
	}

	flags := uint16(entry.Stage&0x3) << 12
	if entry.Valid {
		flags |= assumeValidMask
	}
	nameLen := len(entry.Name)
	if nameLen < nameMask {
		flags |= uint16(nameLen)
	} else {
		flags |= nameMask
	}

	if entry.IntentToAdd || entry.SkipWorktree {
		flags |= entryExtended
		if err := binary.Write(e.w, binary.BigEndian, flags); err != nil {
			return err
		}
		var extended uint16
		if entry.IntentToAdd {
			extended |= intentToAddMask
		}
		if entry.SkipWorktree {
			extended |= skipWorktreeMask
		}
		if err := binary.Write(e.w, binary.BigEndian, extended); err != nil {
			return err
		}
	} else {
		if err := binary.Write(e.w, binary.BigEndian, flags); err != nil {
			return err
		}
	}

	_, err := e.w.Write([]byte(entry.Name))
	return err
}

func (e *Encoder) encodeExtensions(idx *Index) error {
	if idx.Cache != nil {
		if err := e.encodeTree(idx.Cache); err != nil {
			return err
		}
	}
	if idx.ResolveUndo != nil {
		if err := e.encodeResolveUndo(idx.ResolveUndo); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) encodeRawExtension(sig [4]byte, data []byte) error {
	if _, err := e.w.Write(sig[:]); err != nil {
		return err
	}
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(data)))
	if _, err := e.w.Write(length[:]); err != nil {
		return err
	}
	_, err := e.w.Write(data)
	return err
}

func (e *Encoder) encodeTree(t *Tree) error {
	var data []byte
	for _, te := range t.Entries {
		data = append(data, te.Path...)
		data = append(data, 0)
		data = append(data, []byte(fmt.Sprintf("%d %d\n", te.Entries, te.Trees))...)
		if te.Entries != -1 {
			data = append(data, te.Hash[:]...)
		}
	}
	return e.encodeRawExtension(treeSignature, data)
}

func (e *Encoder) encodeResolveUndo(ru *ResolveUndo) error {
	var data []byte
	for _, re := range ru.Entries {
		data = append(data, re.Path...)
		data = append(data, 0)
		for _, stage := range []Stage{AncestorMode, OurMode, TheirMode} {
			if _, ok := re.Stages[stage]; ok {
				data = append(data, strconv.FormatInt(int64(stage), 8)...)
			} else {
				data = append(data, '0')
			}
			data = append(data, 0)
		}
		for _, stage := range []Stage{AncestorMode, OurMode, TheirMode} {
			h, ok := re.Stages[stage]
			if !ok {
				continue
			}
			data = append(data, h[:]...)
		}
	}
	return e.encodeRawExtension(reucSignature, data)
}
