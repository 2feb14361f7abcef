package packfile

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vcsforge/gitcore/modules/plumbing"
	"github.com/vcsforge/gitcore/modules/plumbing/format/idxfile"
	"github.com/vcsforge/gitcore/modules/plumbing/format/objfile"
)

// writeEntryHeader encodes the type+size varint header used by both whole
// objects and delta entries (spec §6.2).
func writeEntryHeader(buf *bytes.Buffer, typ objfile.ObjectType, size int) {
	first := byte(typ)<<4 | byte(size&0x0f)
	size >>= 4
	if size != 0 {
		first |= 0x80
	}
	buf.WriteByte(first)
	for size != 0 {
		b := byte(size & 0x7f)
		size >>= 7
		if size != 0 {
			b |= 0x80
		}
		buf.WriteByte(b)
	}
}

// writeOfsDeltaOffset encodes the negative-offset varint used by
// OFS_DELTA entries: 7 bits per byte, +128 bias per continuation byte.
func writeOfsDeltaOffset(buf *bytes.Buffer, negOffset int64) {
	var stack []byte
	stack = append(stack, byte(negOffset&0x7f))
	negOffset >>= 7
	for negOffset != 0 {
		negOffset--
		stack = append(stack, byte(negOffset&0x7f)|0x80)
		negOffset >>= 7
	}
	for i := len(stack) - 1; i >= 0; i-- {
		buf.WriteByte(stack[i])
	}
}

func deflate(t *testing.T, payload []byte) []byte {
	t.Helper()
	var out bytes.Buffer
	zw := zlib.NewWriter(&out)
	_, err := zw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return out.Bytes()
}

// buildCopyCommand encodes a single COPY command (offset, length) using
// the minimal set of present sub-bytes.
func buildCopyCommand(buf *bytes.Buffer, offset, length uint32) {
	op := byte(0x80)
	var rest []byte
	if offset&0xff != 0 {
		op |= 0x01
		rest = append(rest, byte(offset))
	}
	if (offset>>8)&0xff != 0 {
		op |= 0x02
		rest = append(rest, byte(offset>>8))
	}
	if (offset>>16)&0xff != 0 {
		op |= 0x04
		rest = append(rest, byte(offset>>16))
	}
	if (offset>>24)&0xff != 0 {
		op |= 0x08
		rest = append(rest, byte(offset>>24))
	}
	if length&0xff != 0 {
		op |= 0x10
		rest = append(rest, byte(length))
	}
	if (length>>8)&0xff != 0 {
		op |= 0x20
		rest = append(rest, byte(length>>8))
	}
	if (length>>16)&0xff != 0 {
		op |= 0x40
		rest = append(rest, byte(length>>16))
	}
	buf.WriteByte(op)
	buf.Write(rest)
}

func writeDeltaSizeVarint(buf *bytes.Buffer, size uint64) {
	for {
		b := byte(size & 0x7f)
		size >>= 7
		if size != 0 {
			b |= 0x80
		}
		buf.WriteByte(b)
		if size == 0 {
			break
		}
	}
}

// buildPack assembles a two-object pack: B1 stored whole, B2 stored as an
// OFS_DELTA rebuilding B2's payload from B1's via one COPY + one INSERT.
func buildPack(t *testing.T) (packBytes []byte, idxBytes []byte, oidB1, oidB2 plumbing.Hash) {
	t.Helper()

	b1Payload := []byte("the quick brown fox jumps over the lazy dog")
	b2Payload := []byte("the quick brown fox jumps over the lazy cat, twice")

	oidB1 = objfile.HashObject(objfile.BlobObject, b1Payload)

	var delta bytes.Buffer
	writeDeltaSizeVarint(&delta, uint64(len(b1Payload)))
	writeDeltaSizeVarint(&delta, uint64(len(b2Payload)))
	// COPY "the quick brown fox jumps over the lazy " (first 40 bytes of B1).
	buildCopyCommand(&delta, 0, 40)
	insertLiteral := []byte("cat, twice")
	delta.WriteByte(byte(len(insertLiteral)))
	delta.Write(insertLiteral)

	oidB2 = objfile.HashObject(objfile.BlobObject, b2Payload)

	var pack bytes.Buffer
	pack.WriteString("PACK")
	binary.Write(&pack, binary.BigEndian, uint32(2))
	binary.Write(&pack, binary.BigEndian, uint32(2))

	offsetB1 := int64(pack.Len())
	writeEntryHeader(&pack, objfile.BlobObject, len(b1Payload))
	compressedB1 := deflate(t, b1Payload)
	pack.Write(compressedB1)
	crcB1 := crc32.ChecksumIEEE(pack.Bytes()[offsetB1:])

	offsetB2 := int64(pack.Len())
	writeEntryHeader(&pack, objfile.OFSDeltaObject, delta.Len())
	writeOfsDeltaOffset(&pack, offsetB2-offsetB1)
	entryStartForCRC := pack.Len()
	compressedDelta := deflate(t, delta.Bytes())
	pack.Write(compressedDelta)
	crcB2 := crc32.ChecksumIEEE(pack.Bytes()[offsetB2 : entryStartForCRC+len(compressedDelta)])

	sum := plumbing.NewHasher()
	sum.Write(pack.Bytes())
	trailer := sum.Sum()
	pack.Write(trailer[:])

	var idx bytes.Buffer
	_, err := idxfile.Encode(&idx, []idxfile.ObjectEntry{
		{Hash: oidB1, PackOffset: uint64(offsetB1), CRC32: crcB1},
		{Hash: oidB2, PackOffset: uint64(offsetB2), CRC32: crcB2},
	}, trailer)
	require.NoError(t, err)

	return pack.Bytes(), idx.Bytes(), oidB1, oidB2
}

type readerAtBytes struct{ b []byte }

func (r *readerAtBytes) ReadAt(p []byte, off int64) (int, error) {
	return bytes.NewReader(r.b).ReadAt(p, off)
}

func TestPackfileOfsDeltaRoundTrip(t *testing.T) {
	packBytes, idxBytes, oidB1, oidB2 := buildPack(t)

	idx, err := idxfile.Decode(&readerAtBytes{idxBytes})
	require.NoError(t, err)

	pf, err := Open("test.pack", &readerAtBytes{packBytes}, idx)
	require.NoError(t, err)
	defer pf.Close()

	typ, data, err := pf.Get(oidB1)
	require.NoError(t, err)
	require.Equal(t, objfile.BlobObject, typ)
	require.Equal(t, "the quick brown fox jumps over the lazy dog", string(data))

	typ, data, err = pf.Get(oidB2)
	require.NoError(t, err)
	require.Equal(t, objfile.BlobObject, typ)
	require.Equal(t, "the quick brown fox jumps over the lazy cat, twice", string(data))
}

func TestPackfileCorruptionDetected(t *testing.T) {
	packBytes, idxBytes, _, oidB2 := buildPack(t)

	// Flip a byte inside the deflate stream for the OFS_DELTA entry.
	corrupt := make([]byte, len(packBytes))
	copy(corrupt, packBytes)
	corrupt[len(corrupt)-25] ^= 0xff

	idx, err := idxfile.Decode(&readerAtBytes{idxBytes})
	require.NoError(t, err)

	pf, err := Open("test.pack", &readerAtBytes{corrupt}, idx)
	require.NoError(t, err)
	defer pf.Close()

	_, _, err = pf.Get(oidB2)
	require.Error(t, err)
}
