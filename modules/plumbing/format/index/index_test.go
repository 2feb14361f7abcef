package index

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vcsforge/gitcore/modules/plumbing"
	"github.com/vcsforge/gitcore/modules/plumbing/filemode"
)

func TestIndexRoundTripByteExact(t *testing.T) {
	idx := &Index{Version: 2}
	e1 := idx.Add("dir/file")
	e1.Hash = plumbing.NewHash("e69de29bb2d1d6434b8b29ae775ad8c2e48c5391")
	e1.Mode = filemode.Regular

	e2 := idx.Add("dir.txt")
	e2.Hash = plumbing.NewHash("e69de29bb2d1d6434b8b29ae775ad8c2e48c5391")
	e2.Mode = filemode.Regular

	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(idx))

	first := buf.Bytes()

	var loaded Index
	require.NoError(t, NewDecoder(bytes.NewReader(first)).Decode(&loaded))

	// Path-ordered: "dir.txt" sorts before "dir/file" (spec §8 scenario 3).
	require.Len(t, loaded.Entries, 2)
	require.Equal(t, "dir.txt", loaded.Entries[0].Name)
	require.Equal(t, "dir/file", loaded.Entries[1].Name)

	var second bytes.Buffer
	require.NoError(t, NewEncoder(&second).Encode(&loaded))
	require.True(t, bytes.Equal(first, second.Bytes()), "save(load(I)) must equal I byte-for-byte")
}

func TestIndexTreeExtensionRoundTrip(t *testing.T) {
	idx := &Index{Version: 2}
	e := idx.Add("a")
	e.Hash = plumbing.NewHash("e69de29bb2d1d6434b8b29ae775ad8c2e48c5391")
	e.Mode = filemode.Regular

	idx.Cache = &Tree{Entries: []TreeEntry{
		{Path: "", Entries: 1, Trees: 0, Hash: plumbing.NewHash("2e81171448eb9f2ec0b41beb2b0f1a7a0c3fe1fe")},
	}}

	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(idx))

	var loaded Index
	require.NoError(t, NewDecoder(bytes.NewReader(buf.Bytes())).Decode(&loaded))

	require.NotNil(t, loaded.Cache)
	require.Len(t, loaded.Cache.Entries, 1)
	require.Equal(t, 1, loaded.Cache.Entries[0].Entries)
}

func TestIndexBadSignatureRejected(t *testing.T) {
	var loaded Index
	err := NewDecoder(bytes.NewReader([]byte("XXXX"))).Decode(&loaded)
	require.Error(t, err)
}

func TestTreeInvalidate(t *testing.T) {
	tr := &Tree{Entries: []TreeEntry{
		{Path: "", Entries: 3},
		{Path: "a", Entries: 2},
		{Path: "b", Entries: 1},
	}}
	tr.Invalidate("a/file")

	require.Equal(t, -1, tr.Entries[0].Entries, "root span always invalidated")
	require.Equal(t, -1, tr.Entries[1].Entries, "ancestor span invalidated")
	require.Equal(t, 1, tr.Entries[2].Entries, "sibling span untouched")
}
