package idxfile

import (
	"encoding/binary"
	"io"
	"sort"

	"github.com/vcsforge/gitcore/modules/plumbing"
)

// ObjectEntry is one to-be-written index record, paired with its content
// address and per-entry CRC32 (computed over the compressed pack bytes
// by the packfile writer).
type ObjectEntry struct {
	Hash       plumbing.Hash
	PackOffset uint64
	CRC32      uint32
}

// Encode writes a complete v2 index (fanout, sorted names, CRC32s,
// offsets, overflow table, trailing pack+index digests) for entries,
// which need not be pre-sorted. packSum is the packfile's own trailing
// digest (spec §6.3's final 20 bytes before the index's own checksum).
func Encode(w io.Writer, entries []ObjectEntry, packSum plumbing.Hash) (plumbing.Hash, error) {
	sorted := make([]ObjectEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Hash.Compare(sorted[j].Hash) < 0
	})

	h := plumbing.NewHasher()
	mw := io.MultiWriter(w, h)

	if _, err := mw.Write(magic[:]); err != nil {
		return plumbing.ZeroHash, err
	}
	if err := binary.Write(mw, binary.BigEndian, uint32(Version)); err != nil {
		return plumbing.ZeroHash, err
	}

	var fanout [256]uint32
	for _, e := range sorted {
		for b := int(e.Hash[0]); b < 256; b++ {
			fanout[b]++
		}
	}
	for _, v := range fanout {
		if err := binary.Write(mw, binary.BigEndian, v); err != nil {
			return plumbing.ZeroHash, err
		}
	}

	for _, e := range sorted {
		if _, err := mw.Write(e.Hash[:]); err != nil {
			return plumbing.ZeroHash, err
		}
	}
	for _, e := range sorted {
		if err := binary.Write(mw, binary.BigEndian, e.CRC32); err != nil {
			return plumbing.ZeroHash, err
		}
	}

	var large []uint64
	for _, e := range sorted {
		if e.PackOffset > 0x7fffffff {
			idx := uint32(len(large)) | 0x80000000
			large = append(large, e.PackOffset)
			if err := binary.Write(mw, binary.BigEndian, idx); err != nil {
				return plumbing.ZeroHash, err
			}
			continue
		}
		if err := binary.Write(mw, binary.BigEndian, uint32(e.PackOffset)); err != nil {
			return plumbing.ZeroHash, err
		}
	}
	for _, off := range large {
		if err := binary.Write(mw, binary.BigEndian, off); err != nil {
			return plumbing.ZeroHash, err
		}
	}

	if _, err := mw.Write(packSum[:]); err != nil {
		return plumbing.ZeroHash, err
	}

	sum := h.Sum()
	if _, err := w.Write(sum[:]); err != nil {
		return plumbing.ZeroHash, err
	}
	return sum, nil
}
